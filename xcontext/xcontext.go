// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package xcontext provides the abortable-context primitive used by every
// long-lived session and writer in this module: a cancellation token with an
// optional deadline, any-of composition with other contexts, and a
// throw-on-abort helper that turns an already-fired context into a
// *xerrors.Error instead of a bare context error. It is deliberately a thin
// layer over context.Context.
package xcontext

import (
	"context"
	"sync"
	"time"

	"github.com/ydb-platform/ydb-go-sdk-core/xerrors"
)

// WithAbort returns a context that is cancelled either when parent is done
// or when the returned cancel func is called, and records the reason passed
// to that func as the context's Cause.
func WithAbort(parent context.Context) (context.Context, context.CancelCauseFunc) {
	return context.WithCancelCause(parent)
}

// WithDeadlineMillis returns a context bounded by millis from now, or parent
// unchanged (plus a no-op cancel) if millis <= 0, matching the
// "timeoutMillis" configuration fields used throughout the wire protocol.
func WithDeadlineMillis(parent context.Context, millis int64) (context.Context, context.CancelFunc) {
	if millis <= 0 {
		return parent, func() {}
	}
	return context.WithTimeout(parent, time.Duration(millis)*time.Millisecond)
}

// Merge returns a context that is done as soon as any of ctxs is done (an
// "any-of" composition), with Cause taken from whichever ctx fired first.
// Err is the first ctx's Err when ctxs[0] fired first, and
// context.Canceled when any other ctx did. The returned cancel func must be
// called to release resources once
// the merged context is no longer needed.
func Merge(ctxs ...context.Context) (context.Context, context.CancelFunc) {
	if len(ctxs) == 0 {
		ctx, cancel := context.WithCancel(context.Background())
		return ctx, cancel
	}
	merged, cancel := context.WithCancelCause(ctxs[0])
	done := make(chan struct{})
	var stopOnce sync.Once
	stop := func() { stopOnce.Do(func() { close(done) }) }
	for _, c := range ctxs[1:] {
		c := c
		go func() {
			select {
			case <-c.Done():
				cancel(context.Cause(c))
			case <-done:
			case <-merged.Done():
			}
		}()
	}
	return merged, func() { stop(); cancel(context.Canceled) }
}

// Await blocks until ctx is done and returns a *xerrors.Error describing the
// abort (KindCancelled), or nil if ctx is nil. Callers that need to suspend
// until a cancellation signal fires call Await instead of inspecting
// ctx.Err() directly, so the resulting error is already in the module's
// taxonomy.
func Await(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	<-ctx.Done()
	return ThrowOnAbort(ctx)
}

// ThrowOnAbort returns nil if ctx is not yet done, or a *xerrors.Error
// wrapping ctx's cause if it is.
func ThrowOnAbort(ctx context.Context) error {
	select {
	case <-ctx.Done():
		cause := context.Cause(ctx)
		if cause == nil {
			cause = ctx.Err()
		}
		return xerrors.Wrap(xerrors.KindCancelled, "context aborted", cause)
	default:
		return nil
	}
}
