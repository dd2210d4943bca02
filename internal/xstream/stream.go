// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package xstream is the generic bidirectional-stream runtime shared by the
// coordination session and the topic writer's stream actor: it multiplexes
// tagged requests and responses over a single connection, survives
// reconnection by replaying unresolved work, and fans every response
// through a host-supplied dispatcher.
//
// A dedicated goroutine owns the write side and drains a queue of outbound
// messages, a second goroutine owns the read side, and the connection's
// "done" channel is how the rest of the type signals disconnection to
// waiters. Reconnection re-enqueues every request that is still awaiting a
// response.
package xstream

import (
	"context"
	"sort"
	"sync"

	"github.com/ydb-platform/ydb-go-sdk-core/xerrors"
)

// Conn is a single opened bidirectional stream connection: one Send/Recv
// pair a driver's generated RPC client would normally provide. Recv must
// return an error (typically from the underlying gRPC status) once the
// stream ends, for any reason.
type Conn[R, S any] interface {
	Send(R) error
	Recv() (S, error)
	Close() error
}

// OpenFunc opens a new Conn for a fresh connection attempt.
type OpenFunc[R, S any] func(ctx context.Context) (Conn[R, S], error)

// Handlers are the host's callbacks for dispatching responses.
type Handlers[S, T any] struct {
	// HandleResponse is called for every response frame before request-id
	// extraction, so the host can react to side-channel frames (pings,
	// server-pushed events) that never resolve an outstanding request.
	HandleResponse func(resp S)
	// ExtractReqID returns the tagged request id carried by resp, if any.
	ExtractReqID func(resp S) (id int64, ok bool)
	// ExtractResult returns the T extracted from resp (or an error) when
	// resp both carries a request id and concludes that request. ok is
	// false for responses that carry a request id but don't resolve it
	// yet (e.g. an "acquire pending" notification).
	ExtractResult func(resp S) (result T, err error, ok bool)
}

type outstandingEntry[R, T any] struct {
	req R
	ch  chan response[T]
	// sent reports whether the request has been transmitted on the current
	// connection. Untransmitted requests are still sitting in the queue, so
	// endConnection must not replay them a second time.
	sent bool
}

type response[T any] struct {
	val T
	err error
}

// queueItem is one outbound message. id is the tagged request id for
// requests registered in the outstanding map, 0 for fire-and-forget sends.
type queueItem[R any] struct {
	req R
	id  int64
}

type epoch struct {
	done     chan struct{}
	downOnce sync.Once
}

// Stream is a request/response multiplexer over a single reconnecting
// bidirectional connection.
type Stream[R, S, T any] struct {
	h Handlers[S, T]

	mu          sync.Mutex
	queue       []queueItem[R]
	outstanding map[int64]*outstandingEntry[R, T]
	nextID      int64
	conn        Conn[R, S]
	cur         *epoch
	closed      bool
	wake        chan struct{}
}

// New constructs an idle Stream. Call Start to open the first connection.
func New[R, S, T any](h Handlers[S, T]) *Stream[R, S, T] {
	return &Stream[R, S, T]{
		h:           h,
		outstanding: make(map[int64]*outstandingEntry[R, T]),
		cur:         &epoch{done: make(chan struct{})},
		wake:        make(chan struct{}, 1),
	}
}

// NextRequestID returns a fresh, strictly increasing request id.
func (s *Stream[R, S, T]) NextRequestID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID
}

func (s *Stream[R, S, T]) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Send enqueues r for transmission on the active (or next) connection. It
// never blocks on I/O and fails only if the stream is closed.
func (s *Stream[R, S, T]) Send(r R) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return xerrors.New(xerrors.KindClosed, "stream is closed")
	}
	s.queue = append(s.queue, queueItem[R]{req: r})
	s.mu.Unlock()
	s.poke()
	return nil
}

// SendRequest enqueues r tagged with id and blocks until the first response
// extracting that id arrives, the stream closes, or ctx is cancelled.
// Cancelling ctx removes id from the outstanding map but cannot un-send an
// already-transmitted request; a later response for id is discarded.
func (s *Stream[R, S, T]) SendRequest(ctx context.Context, id int64, r R) (T, error) {
	var zero T
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return zero, xerrors.New(xerrors.KindClosed, "stream is closed")
	}
	entry := &outstandingEntry[R, T]{req: r, ch: make(chan response[T], 1)}
	s.outstanding[id] = entry
	s.queue = append(s.queue, queueItem[R]{req: r, id: id})
	s.mu.Unlock()
	s.poke()

	select {
	case res := <-entry.ch:
		return res.val, res.err
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.outstanding, id)
		s.mu.Unlock()
		return zero, xerrors.Wrap(xerrors.KindCancelled, "send request cancelled", ctx.Err())
	}
}

// Start (re)opens the stream by calling open, transmits initial ahead of
// anything carried over from a previous connection, and launches the
// read/write loops in the background. It returns once the connection is
// open and the initial request has been queued; callers await the outcome
// of the handshake (e.g. a "started" response) themselves via SendRequest
// or a dedicated ready signal, and call WaitForDisconnect to learn when to
// reconnect.
func (s *Stream[R, S, T]) Start(ctx context.Context, open OpenFunc[R, S], initial R) error {
	conn, err := open(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return xerrors.New(xerrors.KindClosed, "stream is closed")
	}
	s.queue = append([]queueItem[R]{{req: initial}}, s.queue...)
	s.conn = conn
	e := &epoch{done: make(chan struct{})}
	s.cur = e
	s.mu.Unlock()

	go s.writeLoop(conn, e)
	go s.readLoop(conn, e)
	return nil
}

// WaitForDisconnect returns a channel that is closed when the current
// connection ends, for any reason (error, Disconnect, or Close).
func (s *Stream[R, S, T]) WaitForDisconnect() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.done
}

// Disconnect forces the current connection to end without closing the
// stream. Pending requests are preserved and replayed on the next Start.
func (s *Stream[R, S, T]) Disconnect() {
	s.mu.Lock()
	e := s.cur
	s.mu.Unlock()
	s.endConnection(e)
}

// Close terminates the stream: it stops the loops, drains the outbound
// queue, and fails all outstanding requests with a terminal KindClosed
// error. Close is idempotent.
func (s *Stream[R, S, T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	outstanding := s.outstanding
	s.outstanding = make(map[int64]*outstandingEntry[R, T])
	s.queue = nil
	e := s.cur
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	terminal := xerrors.New(xerrors.KindClosed, "stream closed")
	for _, entry := range outstanding {
		entry.ch <- response[T]{err: terminal}
	}
	e.downOnce.Do(func() { close(e.done) })
	s.poke()
	return nil
}

func (s *Stream[R, S, T]) writeLoop(conn Conn[R, S], e *epoch) {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed && s.cur == e {
			s.mu.Unlock()
			select {
			case <-s.wake:
			case <-e.done:
				return
			}
			s.mu.Lock()
		}
		if s.closed || s.cur != e {
			s.mu.Unlock()
			return
		}
		item := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		if err := conn.Send(item.req); err != nil {
			s.mu.Lock()
			if !s.closed {
				s.queue = append([]queueItem[R]{item}, s.queue...)
			}
			s.mu.Unlock()
			s.endConnection(e)
			return
		}
		if item.id != 0 {
			s.mu.Lock()
			if entry, ok := s.outstanding[item.id]; ok {
				entry.sent = true
			}
			s.mu.Unlock()
		}
	}
}

func (s *Stream[R, S, T]) readLoop(conn Conn[R, S], e *epoch) {
	for {
		resp, err := conn.Recv()
		if err != nil {
			s.endConnection(e)
			return
		}
		if s.h.HandleResponse != nil {
			s.h.HandleResponse(resp)
		}
		if s.h.ExtractReqID == nil || s.h.ExtractResult == nil {
			continue
		}
		id, ok := s.h.ExtractReqID(resp)
		if !ok {
			continue
		}
		val, resErr, ok := s.h.ExtractResult(resp)
		if !ok {
			continue
		}
		s.mu.Lock()
		entry, found := s.outstanding[id]
		if found {
			delete(s.outstanding, id)
		}
		s.mu.Unlock()
		if found {
			entry.ch <- response[T]{val: val, err: resErr}
		}
	}
}

// endConnection tears down the connection owned by e, exactly once per
// epoch no matter how many of Disconnect, the write loop, and the read loop
// race to report the same failure. Every outstanding request that was
// actually transmitted moves back onto the front of the queue (ordered by
// request id) so the next Start retransmits it before any newly enqueued
// work; untransmitted requests are still in the queue and stay where they
// are.
func (s *Stream[R, S, T]) endConnection(e *epoch) {
	e.downOnce.Do(func() {
		s.mu.Lock()
		conn := s.conn
		s.conn = nil

		ids := make([]int64, 0, len(s.outstanding))
		for id, entry := range s.outstanding {
			if entry.sent {
				ids = append(ids, id)
			}
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		replay := make([]queueItem[R], 0, len(ids))
		for _, id := range ids {
			entry := s.outstanding[id]
			entry.sent = false
			replay = append(replay, queueItem[R]{req: entry.req, id: id})
		}
		s.queue = append(replay, s.queue...)
		s.mu.Unlock()

		if conn != nil {
			_ = conn.Close()
		}
		close(e.done)
	})
}
