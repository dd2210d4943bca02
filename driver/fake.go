// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package driver

import (
	"context"
	"io"
	"sync"
)

// FakeConn is an in-memory Conn used by tests in this module and by the
// fake Driver below: a controllable stream a test can push server frames
// into and inspect client frames out of.
type FakeConn[R, S any] struct {
	mu        sync.Mutex
	sent      []R
	inbox     chan S
	done      chan struct{}
	endErr    error
	closeOnce sync.Once
}

// NewFakeConn returns a ready-to-use FakeConn.
func NewFakeConn[R, S any]() *FakeConn[R, S] {
	return &FakeConn[R, S]{inbox: make(chan S, 64), done: make(chan struct{})}
}

func (c *FakeConn[R, S]) Send(r R) error {
	select {
	case <-c.done:
		return io.EOF
	default:
	}
	c.mu.Lock()
	c.sent = append(c.sent, r)
	c.mu.Unlock()
	return nil
}

func (c *FakeConn[R, S]) Recv() (S, error) {
	var zero S
	select {
	case v := <-c.inbox:
		return v, nil
	case <-c.done:
		c.mu.Lock()
		err := c.endErr
		c.mu.Unlock()
		if err == nil {
			err = io.EOF
		}
		return zero, err
	}
}

func (c *FakeConn[R, S]) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// Push delivers v to the next Recv call, as if the server had sent it.
func (c *FakeConn[R, S]) Push(v S) {
	select {
	case c.inbox <- v:
	case <-c.done:
	}
}

// EndWithError ends the connection: the next Recv (and every Recv after)
// returns err.
func (c *FakeConn[R, S]) EndWithError(err error) {
	c.mu.Lock()
	c.endErr = err
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.done) })
}

// Sent returns a snapshot of every request transmitted on this connection,
// in transmission order.
func (c *FakeConn[R, S]) Sent() []R {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]R, len(c.sent))
	copy(out, c.sent)
	return out
}

// FakeDriver is an in-memory Driver: OpenCoordinationStream and
// OpenTopicWriteStream each hand out a fresh FakeConn that the test then
// drives directly, so the coordination session and topic writer can be
// exercised end-to-end without a real server.
type FakeDriver struct {
	mu         sync.Mutex
	coordConns []*FakeConn[*SessionRequest, *SessionResponse]
	topicConns []*FakeConn[*WriteClientMessage, *WriteServerMessage]

	TokenValue string
	ReadyErr   error

	// OpenCoordinationFunc and OpenTopicFunc, when set, replace the default
	// "hand out a fresh FakeConn" behavior, letting a test simulate open
	// failures or a specific connection sequence.
	OpenCoordinationFunc func(ctx context.Context) (CoordinationStream, error)
	OpenTopicFunc        func(ctx context.Context) (TopicWriteStream, error)
}

// NewFakeDriver returns a FakeDriver with a usable default token.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{TokenValue: "fake-token"}
}

func (d *FakeDriver) Ready(context.Context) error { return d.ReadyErr }

func (d *FakeDriver) Token(context.Context) (string, error) { return d.TokenValue, nil }

func (d *FakeDriver) OpenCoordinationStream(ctx context.Context) (CoordinationStream, error) {
	if d.OpenCoordinationFunc != nil {
		return d.OpenCoordinationFunc(ctx)
	}
	conn := NewFakeConn[*SessionRequest, *SessionResponse]()
	d.mu.Lock()
	d.coordConns = append(d.coordConns, conn)
	d.mu.Unlock()
	return conn, nil
}

func (d *FakeDriver) OpenTopicWriteStream(ctx context.Context) (TopicWriteStream, error) {
	if d.OpenTopicFunc != nil {
		return d.OpenTopicFunc(ctx)
	}
	conn := NewFakeConn[*WriteClientMessage, *WriteServerMessage]()
	d.mu.Lock()
	d.topicConns = append(d.topicConns, conn)
	d.mu.Unlock()
	return conn, nil
}

// CoordinationConns returns every FakeConn handed out by
// OpenCoordinationStream so far, oldest first.
func (d *FakeDriver) CoordinationConns() []*FakeConn[*SessionRequest, *SessionResponse] {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*FakeConn[*SessionRequest, *SessionResponse], len(d.coordConns))
	copy(out, d.coordConns)
	return out
}

// TopicConns returns every FakeConn handed out by OpenTopicWriteStream so
// far, oldest first.
func (d *FakeDriver) TopicConns() []*FakeConn[*WriteClientMessage, *WriteServerMessage] {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*FakeConn[*WriteClientMessage, *WriteServerMessage], len(d.topicConns))
	copy(out, d.topicConns)
	return out
}
