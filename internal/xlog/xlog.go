// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package xlog is the structured-logging facade shared by the stream
// runtime, the coordination session, and the topic writer:
// github.com/rs/zerolog wrapped down to the handful of methods each
// component actually calls, so that swapping the backend never touches
// call sites.
package xlog

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the minimal structured-logging surface used by this module.
type Logger struct {
	z zerolog.Logger
}

// New returns a Logger writing human-readable output to os.Stderr. Call
// With to attach fields such as "component" or "session_id".
func New() Logger {
	z := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	return Logger{z: z}
}

// Nop returns a Logger that discards everything, used as the default when a
// caller does not configure logging.
func Nop() Logger {
	return Logger{z: zerolog.Nop()}
}

// With returns a derived Logger with the given key/value pair attached to
// every subsequent event.
func (l Logger) With(key string, value any) Logger {
	return Logger{z: l.z.With().Interface(key, value).Logger()}
}

func (l Logger) Debug(msg string) { l.z.Debug().Msg(msg) }
func (l Logger) Info(msg string)  { l.z.Info().Msg(msg) }
func (l Logger) Warn(msg string)  { l.z.Warn().Msg(msg) }

func (l Logger) Error(msg string, err error) {
	l.z.Error().Err(err).Msg(msg)
}
