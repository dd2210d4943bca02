// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package coordination implements a reconnecting coordination session:
// semaphore acquire/release/create/update/delete/describe, server
// ping/pong, session-id preservation across reconnects, one-shot describe
// watches, and a session-expired event.
//
// Watches are one-shot: a watch entry is removed on its first change
// notification, and re-establishing the watch takes another
// DescribeSemaphore call with a watch flag set.
package coordination

import (
	"context"
	"sync"
	"time"

	"github.com/ydb-platform/ydb-go-sdk-core/driver"
	"github.com/ydb-platform/ydb-go-sdk-core/internal/xlog"
	"github.com/ydb-platform/ydb-go-sdk-core/internal/xstream"
	"github.com/ydb-platform/ydb-go-sdk-core/retry"
	"github.com/ydb-platform/ydb-go-sdk-core/xcontext"
	"github.com/ydb-platform/ydb-go-sdk-core/xerrors"
)

// Config configures a Session.
type Config struct {
	Path               string
	Description        string
	TimeoutMillis      int64        // default 30s
	StartTimeoutMillis int64        // default 5s
	Logger             *xlog.Logger // nil means xlog.Nop()
}

func (c Config) withDefaults() Config {
	if c.TimeoutMillis <= 0 {
		c.TimeoutMillis = 30_000
	}
	if c.StartTimeoutMillis <= 0 {
		c.StartTimeoutMillis = 5_000
	}
	return c
}

// Handlers are the session's event callbacks. Both are optional; nil means
// "not interested".
type Handlers struct {
	// OnSessionExpired fires when the server invalidates the session
	// (SESSION_EXPIRED or BAD_SESSION), carrying the session id that was
	// just invalidated.
	OnSessionExpired func(oldSessionID uint64, at time.Time)
	// OnSemaphoreChanged fires once per active watch, when the server
	// reports that the watched semaphore's data or owners changed.
	OnSemaphoreChanged func(name string, dataChanged, ownersChanged bool)
}

// AcquireSemaphoreParams are the parameters to AcquireSemaphore.
type AcquireSemaphoreParams struct {
	Name          string
	Count         uint64 // default 1
	TimeoutMillis int64
	Data          []byte
	Ephemeral     bool
}

// DescribeSemaphoreParams are the parameters to DescribeSemaphore.
type DescribeSemaphoreParams struct {
	Name           string
	IncludeOwners  bool
	IncludeWaiters bool
	WatchData      bool
	WatchOwners    bool
}

// DescribeSemaphoreResult is the return value of DescribeSemaphore.
type DescribeSemaphoreResult struct {
	Description driver.SemaphoreDescription
	WatchAdded  bool
}

// Session is a reconnecting coordination session over a single logical
// path. Construct with Open.
type Session struct {
	drv    driver.Driver
	cfg    Config
	h      Handlers
	log    xlog.Logger
	stream *xstream.Stream[*driver.SessionRequest, *driver.SessionResponse, *driver.SessionResponse]

	mu        sync.Mutex
	sessionID uint64
	seqNo     int64
	watch     map[int64]string
	startAck  chan uint64
	stopAck   chan uint64
	closed    bool
	fatalErr  error

	readyOnce sync.Once
	readyCh   chan struct{}
	doneCh    chan struct{}

	// abortCtx/abortCancel is the session's own closing signal, composed
	// with the caller's ctx in connectOnce via xcontext.Merge so a single
	// select case covers both "caller cancelled" and "Close was called".
	abortCtx    context.Context
	abortCancel context.CancelCauseFunc
}

// Open starts a coordination session against path and blocks until the
// first sessionStarted response arrives, ctx is done, or the connection
// loop gives up (a non-retryable failure on the very first attempt).
func Open(ctx context.Context, drv driver.Driver, cfg Config, h Handlers) (*Session, error) {
	cfg = cfg.withDefaults()
	log := xlog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	abortCtx, abortCancel := xcontext.WithAbort(context.Background())
	s := &Session{
		drv:         drv,
		cfg:         cfg,
		h:           h,
		log:         log.With("path", cfg.Path),
		watch:       make(map[int64]string),
		readyCh:     make(chan struct{}),
		doneCh:      make(chan struct{}),
		abortCtx:    abortCtx,
		abortCancel: abortCancel,
	}
	s.stream = xstream.New[*driver.SessionRequest, *driver.SessionResponse, *driver.SessionResponse](xstream.Handlers[*driver.SessionResponse, *driver.SessionResponse]{
		HandleResponse: s.handleResponse,
		ExtractReqID:   extractReqID,
		ExtractResult:  extractResult,
	})

	go s.run(ctx)

	select {
	case <-s.readyCh:
		return s, nil
	case <-s.doneCh:
		return nil, s.err()
	case <-ctx.Done():
		return nil, xerrors.Wrap(xerrors.KindCancelled, "open cancelled", ctx.Err())
	}
}

func (s *Session) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatalErr != nil {
		return s.fatalErr
	}
	return xerrors.New(xerrors.KindClosed, "session_closed")
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return xerrors.New(xerrors.KindClosed, "session_closed")
	}
	return nil
}

// run drives the unbounded reconnection loop.
func (s *Session) run(ctx context.Context) {
	err := retry.Do(ctx, retry.Config{
		BaseDelay:         50 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		JitterFraction:    0.5,
		Idempotent:        true,
		IsStreamReconnect: true,
		OnRetry: func(attempt int, err error) {
			s.log.Warn("coordination session reconnecting: " + err.Error())
		},
	}, s.connectOnce)

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.fatalErr = err
	}
	s.mu.Unlock()
	close(s.doneCh)
}

// connectOnce performs steps 1-5 of the reconnection protocol for a single
// connection attempt, returning a retryable error on disconnect (so retry.Do
// reconnects) or nil once the session is closing.
func (s *Session) connectOnce(ctx context.Context) error {
	if s.abortCtx.Err() != nil {
		return nil
	}
	if err := s.drv.Ready(ctx); err != nil {
		return xerrors.Wrap(xerrors.KindTransport, "driver not ready", err)
	}

	ack := make(chan uint64, 1)
	s.mu.Lock()
	s.startAck = ack
	s.seqNo++
	seq := s.seqNo
	sessID := s.sessionID
	s.mu.Unlock()

	initial := &driver.SessionRequest{SessionStart: &driver.SessionStart{
		Path:          s.cfg.Path,
		SessionID:     sessID,
		TimeoutMillis: s.cfg.TimeoutMillis,
		Description:   s.cfg.Description,
		SeqNo:         seq,
	}}

	if err := s.stream.Start(ctx, func(ctx context.Context) (driver.CoordinationStream, error) {
		return s.drv.OpenCoordinationStream(ctx)
	}, initial); err != nil {
		if xerrors.Is(err, xerrors.KindClosed) {
			return nil
		}
		return xerrors.Wrap(xerrors.KindTransport, "open coordination stream", err)
	}

	// merged fires when either the caller's ctx is done or Close/abortCancel
	// has been called, letting both shutdown paths share one select arm.
	merged, cancelMerge := xcontext.Merge(ctx, s.abortCtx)
	defer cancelMerge()

	startTimeout := time.Duration(s.cfg.StartTimeoutMillis) * time.Millisecond
	select {
	case newID := <-ack:
		s.mu.Lock()
		s.sessionID = newID
		s.mu.Unlock()
		s.readyOnce.Do(func() { close(s.readyCh) })
	case <-time.After(startTimeout):
		s.stream.Disconnect()
		return xerrors.New(xerrors.KindTransport, "timed out waiting for sessionStarted")
	case <-s.stream.WaitForDisconnect():
		return xerrors.New(xerrors.KindTransport, "stream disconnected before sessionStarted")
	case <-merged.Done():
		return nil
	}

	select {
	case <-s.stream.WaitForDisconnect():
		return xerrors.New(xerrors.KindTransport, "stream disconnected")
	case <-merged.Done():
		return nil
	}
}

// handleResponse is the dispatcher called for every frame before request-id
// extraction, reacting to the side-channel frames that never resolve an
// outstanding request. The switch is kept total: a default case logs and
// ignores.
func (s *Session) handleResponse(resp *driver.SessionResponse) {
	switch {
	case resp.Ping != nil:
		_ = s.stream.Send(&driver.SessionRequest{Pong: &driver.Pong{Opaque: resp.Ping.Opaque}})

	case resp.Failure != nil:
		st := resp.Failure.Status
		if st == driver.StatusSessionExpired || st == driver.StatusBadSession {
			s.mu.Lock()
			old := s.sessionID
			s.sessionID = 0
			s.watch = make(map[int64]string)
			s.mu.Unlock()
			if s.h.OnSessionExpired != nil {
				s.h.OnSessionExpired(old, time.Now())
			}
		}
		s.stream.Disconnect()

	case resp.SessionStarted != nil:
		s.mu.Lock()
		ack := s.startAck
		s.mu.Unlock()
		if ack != nil {
			select {
			case ack <- resp.SessionStarted.SessionID:
			default:
			}
		}

	case resp.SessionStopped != nil:
		s.mu.Lock()
		ack := s.stopAck
		s.mu.Unlock()
		if ack != nil {
			select {
			case ack <- resp.SessionStopped.SessionID:
			default:
			}
		}

	case resp.DescribeSemaphoreChanged != nil:
		c := resp.DescribeSemaphoreChanged
		s.mu.Lock()
		name, ok := s.watch[c.ReqID]
		if ok {
			delete(s.watch, c.ReqID)
		}
		s.mu.Unlock()
		if ok && s.h.OnSemaphoreChanged != nil {
			s.h.OnSemaphoreChanged(name, c.DataChanged, c.OwnersChanged)
		}

	default:
		s.log.Debug("ignoring response carrying only a routed result")
	}
}

func extractReqID(resp *driver.SessionResponse) (int64, bool) {
	switch {
	case resp.AcquireSemaphoreResult != nil:
		return resp.AcquireSemaphoreResult.ReqID, true
	case resp.ReleaseSemaphoreResult != nil:
		return resp.ReleaseSemaphoreResult.ReqID, true
	case resp.CreateSemaphoreResult != nil:
		return resp.CreateSemaphoreResult.ReqID, true
	case resp.UpdateSemaphoreResult != nil:
		return resp.UpdateSemaphoreResult.ReqID, true
	case resp.DeleteSemaphoreResult != nil:
		return resp.DeleteSemaphoreResult.ReqID, true
	case resp.DescribeSemaphoreResult != nil:
		return resp.DescribeSemaphoreResult.ReqID, true
	default:
		return 0, false
	}
}

func extractResult(resp *driver.SessionResponse) (*driver.SessionResponse, error, bool) {
	header, ok := resultHeader(resp)
	if !ok {
		return nil, nil, false
	}
	return resp, statusErr(header.Status, header.Issues), true
}

func resultHeader(resp *driver.SessionResponse) (driver.ResultHeader, bool) {
	switch {
	case resp.AcquireSemaphoreResult != nil:
		return resp.AcquireSemaphoreResult.ResultHeader, true
	case resp.ReleaseSemaphoreResult != nil:
		return resp.ReleaseSemaphoreResult.ResultHeader, true
	case resp.CreateSemaphoreResult != nil:
		return resp.CreateSemaphoreResult.ResultHeader, true
	case resp.UpdateSemaphoreResult != nil:
		return resp.UpdateSemaphoreResult.ResultHeader, true
	case resp.DeleteSemaphoreResult != nil:
		return resp.DeleteSemaphoreResult.ResultHeader, true
	case resp.DescribeSemaphoreResult != nil:
		return resp.DescribeSemaphoreResult.ResultHeader, true
	default:
		return driver.ResultHeader{}, false
	}
}

func statusErr(status driver.Status, issues []driver.Issue) error {
	if status == driver.StatusSuccess {
		return nil
	}
	msg := status.String()
	if len(issues) > 0 {
		msg = msg + ": " + issues[0].Message
	}
	switch status {
	case driver.StatusSessionExpired:
		return xerrors.New(xerrors.KindSessionExpired, msg)
	case driver.StatusBadSession:
		return xerrors.New(xerrors.KindBadSession, msg)
	case driver.StatusOverloaded, driver.StatusAborted:
		return xerrors.New(xerrors.KindRetryableServer, msg)
	case driver.StatusAlreadyExists:
		return xerrors.New(xerrors.KindNonRetryableServer, "already_exists: "+msg)
	case driver.StatusNotFound:
		return xerrors.New(xerrors.KindNonRetryableServer, "not_found: "+msg)
	default:
		return xerrors.New(xerrors.KindNonRetryableServer, msg)
	}
}

// AcquireSemaphore asks the server for Count units of the named semaphore
// and reports whether they were granted. The server may answer with an
// informational "pending" frame first; the result resolves only when the
// final answer arrives.
func (s *Session) AcquireSemaphore(ctx context.Context, p AcquireSemaphoreParams) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	count := p.Count
	if count == 0 {
		count = 1
	}
	id := s.stream.NextRequestID()
	req := &driver.SessionRequest{AcquireSemaphore: &driver.AcquireSemaphore{
		ReqID: id, Name: p.Name, Count: count, TimeoutMillis: p.TimeoutMillis, Data: p.Data, Ephemeral: p.Ephemeral,
	}}
	resp, err := s.stream.SendRequest(ctx, id, req)
	if err != nil {
		return false, err
	}
	return resp.AcquireSemaphoreResult.Acquired, nil
}

// ReleaseSemaphore releases this session's hold on the named semaphore and
// reports whether anything was actually released.
func (s *Session) ReleaseSemaphore(ctx context.Context, name string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	id := s.stream.NextRequestID()
	req := &driver.SessionRequest{ReleaseSemaphore: &driver.ReleaseSemaphore{ReqID: id, Name: name}}
	resp, err := s.stream.SendRequest(ctx, id, req)
	if err != nil {
		return false, err
	}
	return resp.ReleaseSemaphoreResult.Released, nil
}

// CreateSemaphore creates a semaphore with the given limit and attached
// data; the server rejects names that already exist.
func (s *Session) CreateSemaphore(ctx context.Context, name string, limit uint64, data []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	id := s.stream.NextRequestID()
	req := &driver.SessionRequest{CreateSemaphore: &driver.CreateSemaphore{ReqID: id, Name: name, Limit: limit, Data: data}}
	_, err := s.stream.SendRequest(ctx, id, req)
	return err
}

// UpdateSemaphore replaces the data attached to the named semaphore.
func (s *Session) UpdateSemaphore(ctx context.Context, name string, data []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	id := s.stream.NextRequestID()
	req := &driver.SessionRequest{UpdateSemaphore: &driver.UpdateSemaphore{ReqID: id, Name: name, Data: data}}
	_, err := s.stream.SendRequest(ctx, id, req)
	return err
}

// DeleteSemaphore deletes the named semaphore; force deletes it even while
// it has owners or waiters.
func (s *Session) DeleteSemaphore(ctx context.Context, name string, force bool) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	id := s.stream.NextRequestID()
	req := &driver.SessionRequest{DeleteSemaphore: &driver.DeleteSemaphore{ReqID: id, Name: name, Force: force}}
	_, err := s.stream.SendRequest(ctx, id, req)
	return err
}

// DescribeSemaphore fetches the named semaphore's description, optionally
// including owners/waiters, and optionally registering a one-shot watch on
// its data or owners.
func (s *Session) DescribeSemaphore(ctx context.Context, p DescribeSemaphoreParams) (DescribeSemaphoreResult, error) {
	if err := s.checkOpen(); err != nil {
		return DescribeSemaphoreResult{}, err
	}
	id := s.stream.NextRequestID()
	req := &driver.SessionRequest{DescribeSemaphore: &driver.DescribeSemaphore{
		ReqID: id, Name: p.Name, IncludeOwners: p.IncludeOwners, IncludeWaiters: p.IncludeWaiters,
		WatchData: p.WatchData, WatchOwners: p.WatchOwners,
	}}
	resp, err := s.stream.SendRequest(ctx, id, req)
	if err != nil {
		return DescribeSemaphoreResult{}, err
	}
	res := resp.DescribeSemaphoreResult
	if res.WatchAdded && (p.WatchData || p.WatchOwners) {
		s.mu.Lock()
		s.watch[id] = p.Name
		s.mu.Unlock()
	}
	return DescribeSemaphoreResult{Description: res.Description, WatchAdded: res.WatchAdded}, nil
}

// Close sends a stop request and waits for the server-acknowledged stop (or
// ctx's deadline, whichever comes first), always closing the underlying
// stream on the way out. Close is idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stopAck := make(chan uint64, 1)
	s.stopAck = stopAck
	s.mu.Unlock()

	_ = s.stream.Send(&driver.SessionRequest{SessionStop: &driver.SessionStop{}})

	select {
	case <-stopAck:
	case <-s.doneCh:
	case <-ctx.Done():
	}

	s.abortCancel(xerrors.New(xerrors.KindClosed, "session_closed"))
	<-s.doneCh
	return s.stream.Close()
}

// SessionID returns the server-assigned session id, or 0 if none has been
// assigned yet or the session has been reset.
func (s *Session) SessionID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}
