// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package xerrors

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestIsMatchesThroughWrapping(t *testing.T) {
	inner := New(KindSessionExpired, "session gone")
	outer := fmt.Errorf("while acquiring: %w", inner)

	if !Is(outer, KindSessionExpired) {
		t.Fatal("expected KindSessionExpired to match through fmt wrapping")
	}
	if Is(outer, KindBadSession) {
		t.Fatal("did not expect KindBadSession to match")
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("tcp reset")
	err := Wrap(KindTransport, "stream broke", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to reach the cause")
	}
}

func TestFromGRPCStatusClassification(t *testing.T) {
	tests := []struct {
		code codes.Code
		want Kind
	}{
		{codes.Canceled, KindCancelled},
		{codes.Unavailable, KindTransport},
		{codes.Aborted, KindRetryableServer},
		{codes.ResourceExhausted, KindRetryableServer},
		{codes.DeadlineExceeded, KindTransport},
		{codes.InvalidArgument, KindNonRetryableServer},
	}
	for _, tc := range tests {
		err := FromGRPCStatus(status.Error(tc.code, "x"))
		if err.Kind != tc.want {
			t.Fatalf("code %v: expected %v, got %v", tc.code, tc.want, err.Kind)
		}
		if err.Code != tc.code {
			t.Fatalf("code %v: expected the grpc code preserved, got %v", tc.code, err.Code)
		}
	}
}
