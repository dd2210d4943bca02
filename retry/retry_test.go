// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ydb-platform/ydb-go-sdk-core/xerrors"
)

func TestDoStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{BaseDelay: time.Millisecond, Idempotent: true}, func(context.Context) error {
		calls++
		if calls < 3 {
			return xerrors.New(xerrors.KindTransport, "flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestDoRespectsMaxAttempts(t *testing.T) {
	calls := 0
	wantErr := xerrors.New(xerrors.KindTransport, "down")
	err := Do(context.Background(), Config{MaxAttempts: 2, BaseDelay: time.Millisecond, Idempotent: true}, func(context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected the last attempt's error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestDoDoesNotRetryNonRetryable(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{BaseDelay: time.Millisecond, Idempotent: true}, func(context.Context) error {
		calls++
		return xerrors.New(xerrors.KindNonRetryableServer, "bad request")
	})
	if !xerrors.Is(err, xerrors.KindNonRetryableServer) {
		t.Fatalf("expected the error to propagate, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestDoPropagatesContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, Config{Idempotent: true}, func(context.Context) error {
		return xerrors.New(xerrors.KindTransport, "never retried")
	})
	if !xerrors.Is(err, xerrors.KindCancelled) {
		t.Fatalf("expected cancelled, got %v", err)
	}
}

func TestDoNotifiesObserver(t *testing.T) {
	var attempts []int
	err := Do(context.Background(), Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Idempotent:  true,
		OnRetry:     func(attempt int, _ error) { attempts = append(attempts, attempt) },
	}, func(context.Context) error {
		return xerrors.New(xerrors.KindTransport, "down")
	})
	if err == nil {
		t.Fatal("expected failure after budget exhaustion")
	}
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Fatalf("expected observers for attempts 1 and 2, got %v", attempts)
	}
}

func TestRetryableClassification(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		idempotent bool
		isStream   bool
		want       bool
	}{
		{"nil", nil, true, true, false},
		{"transport idempotent", xerrors.New(xerrors.KindTransport, "x"), true, false, true},
		{"transport non-idempotent", xerrors.New(xerrors.KindTransport, "x"), false, false, false},
		{"retryable server", xerrors.New(xerrors.KindRetryableServer, "x"), true, false, true},
		{"session expired", xerrors.New(xerrors.KindSessionExpired, "x"), false, false, true},
		{"bad session", xerrors.New(xerrors.KindBadSession, "x"), false, false, true},
		{"cancelled unary", xerrors.New(xerrors.KindCancelled, "x"), true, false, false},
		{"cancelled stream", xerrors.New(xerrors.KindCancelled, "x"), false, true, true},
		{"non-retryable server", xerrors.New(xerrors.KindNonRetryableServer, "x"), true, true, false},
		{"grpc unavailable", status.Error(codes.Unavailable, "x"), true, false, true},
		{"grpc canceled stream", status.Error(codes.Canceled, "x"), false, true, true},
		{"grpc canceled unary", status.Error(codes.Canceled, "x"), true, false, false},
		{"grpc invalid argument", status.Error(codes.InvalidArgument, "x"), true, true, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Retryable(tc.err, tc.idempotent, tc.isStream); got != tc.want {
				t.Fatalf("Retryable(%v, %v, %v) = %v, want %v", tc.err, tc.idempotent, tc.isStream, got, tc.want)
			}
		})
	}
}
