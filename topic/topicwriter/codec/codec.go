// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package codec implements the topic writer's RAW/GZIP/ZSTD compressor
// registry. Both algorithms come from github.com/klauspost/compress: its
// gzip is a drop-in, faster replacement for the standard library's, and
// its zstd package has no standard-library equivalent at all.
package codec

import (
	"bytes"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/ydb-platform/ydb-go-sdk-core/driver"
	"github.com/ydb-platform/ydb-go-sdk-core/xerrors"
)

// DefaultMinRawSize is the default threshold below which a writer skips
// compression even when a non-RAW codec is configured.
const DefaultMinRawSize = 1024

// Codec compresses and decompresses message payloads for one codec id.
type Codec interface {
	ID() driver.Codec
	Compress(b []byte) ([]byte, error)
	Decompress(b []byte) ([]byte, error)
}

type rawCodec struct{}

func (rawCodec) ID() driver.Codec                    { return driver.CodecRaw }
func (rawCodec) Compress(b []byte) ([]byte, error)   { return b, nil }
func (rawCodec) Decompress(b []byte) ([]byte, error) { return b, nil }

type gzipCodec struct {
	writerPool sync.Pool
}

func newGzipCodec() *gzipCodec {
	return &gzipCodec{
		writerPool: sync.Pool{New: func() any { return gzip.NewWriter(io.Discard) }},
	}
}

func (c *gzipCodec) ID() driver.Codec { return driver.CodecGzip }

func (c *gzipCodec) Compress(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := c.writerPool.Get().(*gzip.Writer)
	defer c.writerPool.Put(w)
	w.Reset(&buf)
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *gzipCodec) Decompress(b []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec() (*zstdCodec, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &zstdCodec{enc: enc, dec: dec}, nil
}

func (c *zstdCodec) ID() driver.Codec { return driver.CodecZstd }

func (c *zstdCodec) Compress(b []byte) ([]byte, error) {
	return c.enc.EncodeAll(b, make([]byte, 0, len(b))), nil
}

func (c *zstdCodec) Decompress(b []byte) ([]byte, error) {
	return c.dec.DecodeAll(b, nil)
}

// Registry maps codec ids to their Codec implementation. The zero value is
// not usable; construct with NewRegistry.
type Registry struct {
	mu     sync.RWMutex
	codecs map[driver.Codec]Codec
}

// NewRegistry returns a Registry pre-populated with RAW, GZIP, and ZSTD.
// Panics only if the zstd library itself fails to construct its default
// writer/reader, which does not happen with nil options.
func NewRegistry() *Registry {
	r := &Registry{codecs: make(map[driver.Codec]Codec)}
	r.Register(rawCodec{})
	r.Register(newGzipCodec())
	z, err := newZstdCodec()
	if err != nil {
		panic("codec: construct zstd codec: " + err.Error())
	}
	r.Register(z)
	return r
}

// Register adds or replaces the Codec for c.ID().
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[c.ID()] = c
}

// Get returns the Codec for id, or a KindUnsupportedCodec error.
func (r *Registry) Get(id driver.Codec) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[id]
	if !ok {
		return nil, xerrors.Newf(xerrors.KindUnsupportedCodec, "unsupported codec id %d", id)
	}
	return c, nil
}
