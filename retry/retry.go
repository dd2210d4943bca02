// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package retry implements the bounded-retry driver used by the
// coordination session's connection loop and the topic writer's reconnect
// loop: exponential backoff with jitter, error
// classification into retryable/non-retryable, and an optional idempotency
// gate, built on github.com/cenkalti/backoff/v4.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ydb-platform/ydb-go-sdk-core/xerrors"
)

// Config parameterizes a single Do call.
type Config struct {
	// MaxAttempts bounds the number of calls to fn. Zero means unbounded,
	// which is how reconnection loops are configured.
	MaxAttempts int
	// BaseDelay is the delay before the first retry. Defaults to 50ms.
	BaseDelay time.Duration
	// MaxDelay caps the exponential backoff. Defaults to 5s.
	MaxDelay time.Duration
	// JitterFraction is the +/- percentage applied to each delay, as a
	// fraction (0.5 means +/-50%). Defaults to 0.5.
	JitterFraction float64
	// Idempotent gates retrying transport/overloaded/aborted failures:
	// these are only retried automatically when the operation is safe to
	// repeat.
	Idempotent bool
	// IsStreamReconnect marks fn as driving a stream reconnect rather than
	// a unary call. A CANCELLED error is retried unconditionally for
	// streams, which must survive periodic discovery-driven channel
	// rotation, while for unary calls CANCELLED is never retried
	// regardless of Idempotent.
	IsStreamReconnect bool
	// OnRetry, if set, is invoked after each failed attempt with the
	// 1-based attempt number and the error that triggered the retry.
	OnRetry func(attempt int, err error)
}

func (c Config) withDefaults() Config {
	if c.BaseDelay <= 0 {
		c.BaseDelay = 50 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.JitterFraction <= 0 {
		c.JitterFraction = 0.5
	}
	return c
}

// Do invokes fn repeatedly until it succeeds, a non-retryable error occurs,
// the attempt budget is exhausted, or ctx is cancelled. Cancellation of ctx
// always propagates as a non-retryable *xerrors.Error (KindCancelled).
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = cfg.BaseDelay
	eb.MaxInterval = cfg.MaxDelay
	eb.Multiplier = 2
	eb.RandomizationFactor = cfg.JitterFraction
	eb.MaxElapsedTime = 0 // unbounded in time; MaxAttempts bounds attempt count instead

	var bo backoff.BackOff = eb
	if cfg.MaxAttempts > 0 {
		bo = backoff.WithMaxRetries(bo, uint64(cfg.MaxAttempts-1))
	}
	bo = backoff.WithContext(bo, ctx)

	attempt := 0
	op := func() error {
		attempt++
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(xerrors.Wrap(xerrors.KindCancelled, "retry cancelled", err))
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !Retryable(err, cfg.Idempotent, cfg.IsStreamReconnect) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, _ time.Duration) {
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}
	}
	err := backoff.RetryNotify(op, bo, notify)
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return xerrors.Wrap(xerrors.KindCancelled, "retry cancelled", err)
	}
	return err
}

// Retryable classifies err: BAD_SESSION and SESSION_EXPIRED are always
// retryable; transport codes UNAVAILABLE, OVERLOADED, and ABORTED are
// retryable when idempotent is true; CANCELLED is retryable exactly when
// isStream is true, regardless of idempotent.
func Retryable(err error, idempotent, isStream bool) bool {
	if err == nil {
		return false
	}

	if xe, ok := xerrors.As(err); ok {
		switch xe.Kind {
		case xerrors.KindCancelled:
			return isStream
		case xerrors.KindSessionExpired, xerrors.KindBadSession:
			return true
		case xerrors.KindTransport, xerrors.KindRetryableServer:
			return idempotent
		default:
			return false
		}
	}

	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Canceled:
		return isStream
	case codes.Unavailable, codes.Aborted, codes.ResourceExhausted:
		return idempotent
	default:
		return false
	}
}
