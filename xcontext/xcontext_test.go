// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package xcontext

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ydb-platform/ydb-go-sdk-core/xerrors"
)

func TestMergeFiresOnAnyContext(t *testing.T) {
	ctx1 := context.Background()
	ctx2, cancel2 := context.WithCancel(context.Background())

	merged, cancel := Merge(ctx1, ctx2)
	defer cancel()

	select {
	case <-merged.Done():
		t.Fatal("merged context done before any input fired")
	default:
	}

	cancel2()
	select {
	case <-merged.Done():
	case <-time.After(time.Second):
		t.Fatal("merged context never fired after an input was cancelled")
	}
}

func TestMergePropagatesCause(t *testing.T) {
	cause := errors.New("the reason")
	ctx, abort := WithAbort(context.Background())
	merged, cancel := Merge(context.Background(), ctx)
	defer cancel()

	abort(cause)
	<-merged.Done()
	if got := context.Cause(merged); !errors.Is(got, cause) {
		t.Fatalf("expected cause %v, got %v", cause, got)
	}
}

func TestThrowOnAbort(t *testing.T) {
	ctx, abort := WithAbort(context.Background())
	if err := ThrowOnAbort(ctx); err != nil {
		t.Fatalf("expected nil before abort, got %v", err)
	}
	abort(errors.New("stop"))
	err := ThrowOnAbort(ctx)
	if !xerrors.Is(err, xerrors.KindCancelled) {
		t.Fatalf("expected cancelled, got %v", err)
	}
}

func TestWithDeadlineMillis(t *testing.T) {
	ctx, cancel := WithDeadlineMillis(context.Background(), 10)
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Fatal("expected a deadline to be set")
	}

	parent := context.Background()
	same, cancel2 := WithDeadlineMillis(parent, 0)
	defer cancel2()
	if same != parent {
		t.Fatal("expected millis<=0 to return the parent unchanged")
	}
}
