// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package topicwriter

import (
	"context"
	"time"

	"github.com/ydb-platform/ydb-go-sdk-core/driver"
	"github.com/ydb-platform/ydb-go-sdk-core/internal/xlog"
	"github.com/ydb-platform/ydb-go-sdk-core/internal/xstream"
)

type actorEventKind int

const (
	actorStart actorEventKind = iota
	actorInit
	actorWrite
	actorToken
	actorError
)

type actorEvent struct {
	kind  actorEventKind
	init  *driver.InitResponse
	write *driver.WriteResponse
	err   error
}

// streamActor is the thin, isolated owner of one gRPC topic write stream.
// It is built directly on top of the generic stream runtime, using only its
// connection-lifecycle half (Start, Send, WaitForDisconnect, Disconnect,
// Close) and never SendRequest: the topic write protocol carries no
// per-request tag, so request/response pairing is the writer state
// machine's job (it matches acks to the in-flight region by position), not
// the generic runtime's outstanding map.
type streamActor struct {
	stream              *xstream.Stream[*driver.WriteClientMessage, *driver.WriteServerMessage, struct{}]
	drv                 driver.Driver
	updateTokenInterval time.Duration
	log                 xlog.Logger

	events chan actorEvent
}

func newStreamActor(drv driver.Driver, updateTokenInterval time.Duration, log xlog.Logger) *streamActor {
	a := &streamActor{
		drv:                 drv,
		updateTokenInterval: updateTokenInterval,
		log:                 log,
		events:              make(chan actorEvent, 64),
	}
	a.stream = xstream.New[*driver.WriteClientMessage, *driver.WriteServerMessage, struct{}](xstream.Handlers[*driver.WriteServerMessage, struct{}]{
		HandleResponse: a.handleResponse,
		ExtractReqID:   func(*driver.WriteServerMessage) (int64, bool) { return 0, false },
		ExtractResult:  func(*driver.WriteServerMessage) (struct{}, error, bool) { return struct{}{}, nil, false },
	})
	return a
}

func (a *streamActor) handleResponse(resp *driver.WriteServerMessage) {
	if resp.Status != driver.StatusSuccess {
		a.push(actorEvent{kind: actorError, err: statusErrTopic(resp.Status, resp.Issues)})
		return
	}
	switch {
	case resp.Init != nil:
		a.push(actorEvent{kind: actorInit, init: resp.Init})
	case resp.Write != nil:
		a.push(actorEvent{kind: actorWrite, write: resp.Write})
	case resp.Token != nil:
		a.push(actorEvent{kind: actorToken})
	}
}

func (a *streamActor) push(e actorEvent) {
	select {
	case a.events <- e:
	case <-a.stream.WaitForDisconnect():
	}
}

func (a *streamActor) recvEvents() <-chan actorEvent { return a.events }

// start opens the stream, transmits init, and begins the periodic
// auth-token refresh. It returns once the handshake request has been
// queued; the caller learns the outcome via recvEvents/waitForDisconnect.
func (a *streamActor) start(ctx context.Context, open xstream.OpenFunc[*driver.WriteClientMessage, *driver.WriteServerMessage], init *driver.InitRequest) error {
	initial := &driver.WriteClientMessage{Init: init}
	if err := a.stream.Start(ctx, open, initial); err != nil {
		return err
	}
	go a.refreshTokenLoop(ctx)
	select {
	case a.events <- actorEvent{kind: actorStart}:
	case <-a.stream.WaitForDisconnect():
	}
	return nil
}

func (a *streamActor) refreshTokenLoop(ctx context.Context) {
	if a.updateTokenInterval <= 0 {
		return
	}
	ticker := time.NewTicker(a.updateTokenInterval)
	defer ticker.Stop()
	disc := a.stream.WaitForDisconnect()
	for {
		select {
		case <-ticker.C:
			token, err := a.drv.Token(ctx)
			if err != nil {
				a.log.Warn("refresh topic write token: " + err.Error())
				continue
			}
			_ = a.stream.Send(&driver.WriteClientMessage{UpdateToken: &driver.UpdateTokenRequest{Token: token}})
		case <-disc:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (a *streamActor) sendWrite(req *driver.WriteRequest) error {
	return a.stream.Send(&driver.WriteClientMessage{Write: req})
}

func (a *streamActor) disconnect() { a.stream.Disconnect() }

func (a *streamActor) close() error { return a.stream.Close() }

func (a *streamActor) waitForDisconnect() <-chan struct{} { return a.stream.WaitForDisconnect() }
