// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package codec

import (
	"bytes"
	"testing"

	"github.com/ydb-platform/ydb-go-sdk-core/driver"
)

func TestRegistryRoundTrip(t *testing.T) {
	reg := NewRegistry()
	payload := bytes.Repeat([]byte("a quick payload to compress and decompress "), 100)

	for _, id := range []driver.Codec{driver.CodecRaw, driver.CodecGzip, driver.CodecZstd} {
		c, err := reg.Get(id)
		if err != nil {
			t.Fatalf("Get(%d): %v", id, err)
		}
		compressed, err := c.Compress(payload)
		if err != nil {
			t.Fatalf("codec %d Compress: %v", id, err)
		}
		restored, err := c.Decompress(compressed)
		if err != nil {
			t.Fatalf("codec %d Decompress: %v", id, err)
		}
		if !bytes.Equal(restored, payload) {
			t.Fatalf("codec %d round-trip mismatch", id)
		}
	}
}

func TestRegistryUnknownCodec(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Get(driver.Codec(99)); err == nil {
		t.Fatal("expected error for unregistered codec id")
	}
}

func TestRegistryRegisterOverrides(t *testing.T) {
	reg := NewRegistry()
	reg.Register(rawCodec{})
	c, err := reg.Get(driver.CodecRaw)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	out, err := c.Compress([]byte("x"))
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if string(out) != "x" {
		t.Fatalf("expected identity compression, got %q", out)
	}
}
