// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/ydb-platform/ydb-go-sdk-core/driver"
)

// closeSession bounds Close with a short deadline: the fake server never
// acknowledges the stop request, and Close is specified to give up and
// close the stream anyway once its timeout elapses.
func closeSession(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = s.Close(ctx)
}

func openReady(t *testing.T, drv *driver.FakeDriver, cfg Config, h Handlers) (*Session, *driver.FakeConn[*driver.SessionRequest, *driver.SessionResponse]) {
	t.Helper()

	openDone := make(chan *Session, 1)
	openErr := make(chan error, 1)
	go func() {
		s, err := Open(context.Background(), drv, cfg, h)
		if err != nil {
			openErr <- err
			return
		}
		openDone <- s
	}()

	var conn *driver.FakeConn[*driver.SessionRequest, *driver.SessionResponse]
	for i := 0; i < 100 && conn == nil; i++ {
		conns := drv.CoordinationConns()
		if len(conns) > 0 {
			conn = conns[0]
			break
		}
		time.Sleep(time.Millisecond)
	}
	if conn == nil {
		t.Fatal("no coordination connection opened")
	}
	conn.Push(&driver.SessionResponse{SessionStarted: &driver.SessionStarted{SessionID: 42}})

	select {
	case s := <-openDone:
		return s, conn
	case err := <-openErr:
		t.Fatalf("Open failed: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for session to become ready")
	}
	return nil, nil
}

func TestAcquireSemaphoreSuccess(t *testing.T) {
	drv := driver.NewFakeDriver()
	s, conn := openReady(t, drv, Config{Path: "/local/lock"}, Handlers{})
	defer closeSession(t, s)

	result := make(chan bool, 1)
	errCh := make(chan error, 1)
	go func() {
		ok, err := s.AcquireSemaphore(context.Background(), AcquireSemaphoreParams{Name: "sem", Count: 1})
		if err != nil {
			errCh <- err
			return
		}
		result <- ok
	}()

	var reqID int64
	for i := 0; i < 100; i++ {
		for _, r := range conn.Sent() {
			if r.AcquireSemaphore != nil {
				reqID = r.AcquireSemaphore.ReqID
			}
		}
		if reqID != 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if reqID == 0 {
		t.Fatal("acquireSemaphore request never sent")
	}
	conn.Push(&driver.SessionResponse{AcquireSemaphoreResult: &driver.AcquireSemaphoreResult{
		ResultHeader: driver.ResultHeader{ReqID: reqID, Status: driver.StatusSuccess},
		Acquired:     true,
	}})

	select {
	case ok := <-result:
		if !ok {
			t.Fatal("expected acquired=true")
		}
	case err := <-errCh:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for acquire result")
	}
}

func TestSessionSurvivesReconnectAndPreservesSessionID(t *testing.T) {
	drv := driver.NewFakeDriver()
	s, conn1 := openReady(t, drv, Config{Path: "/local/lock"}, Handlers{})
	defer closeSession(t, s)

	if s.SessionID() != 42 {
		t.Fatalf("expected session id 42, got %d", s.SessionID())
	}

	// Kick the first connection; the session should reconnect and replay its
	// session id in the next SessionStart.
	conn1.EndWithError(nil)

	var conn2 *driver.FakeConn[*driver.SessionRequest, *driver.SessionResponse]
	for i := 0; i < 200; i++ {
		conns := drv.CoordinationConns()
		if len(conns) > 1 {
			conn2 = conns[1]
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if conn2 == nil {
		t.Fatal("session never reconnected")
	}

	var start *driver.SessionStart
	for i := 0; i < 100 && start == nil; i++ {
		for _, r := range conn2.Sent() {
			if r.SessionStart != nil {
				start = r.SessionStart
			}
		}
		time.Sleep(time.Millisecond)
	}
	if start == nil {
		t.Fatal("no sessionStart sent on reconnect")
	}
	if start.SessionID != 42 {
		t.Fatalf("expected reconnect to carry session id 42, got %d", start.SessionID)
	}
}

func TestSessionExpiredResetsSessionID(t *testing.T) {
	drv := driver.NewFakeDriver()
	expired := make(chan uint64, 1)
	s, conn := openReady(t, drv, Config{Path: "/local/lock"}, Handlers{
		OnSessionExpired: func(old uint64, _ time.Time) { expired <- old },
	})
	defer closeSession(t, s)

	conn.Push(&driver.SessionResponse{Failure: &driver.Failure{Status: driver.StatusSessionExpired}})

	select {
	case old := <-expired:
		if old != 42 {
			t.Fatalf("expected expired session id 42, got %d", old)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for session-expired event")
	}

	for i := 0; i < 100 && s.SessionID() != 0; i++ {
		time.Sleep(time.Millisecond)
	}
	if s.SessionID() != 0 {
		t.Fatalf("expected session id reset to 0, got %d", s.SessionID())
	}
}

func TestDescribeSemaphoreWatchFiresOnce(t *testing.T) {
	drv := driver.NewFakeDriver()
	changed := make(chan string, 2)
	s, conn := openReady(t, drv, Config{Path: "/local/lock"}, Handlers{
		OnSemaphoreChanged: func(name string, _, _ bool) { changed <- name },
	})
	defer closeSession(t, s)

	descResult := make(chan DescribeSemaphoreResult, 1)
	go func() {
		res, err := s.DescribeSemaphore(context.Background(), DescribeSemaphoreParams{Name: "sem", WatchData: true})
		if err != nil {
			t.Errorf("describe failed: %v", err)
			return
		}
		descResult <- res
	}()

	var reqID int64
	for i := 0; i < 100 && reqID == 0; i++ {
		for _, r := range conn.Sent() {
			if r.DescribeSemaphore != nil {
				reqID = r.DescribeSemaphore.ReqID
			}
		}
		time.Sleep(time.Millisecond)
	}
	conn.Push(&driver.SessionResponse{DescribeSemaphoreResult: &driver.DescribeSemaphoreResult{
		ResultHeader: driver.ResultHeader{ReqID: reqID, Status: driver.StatusSuccess},
		WatchAdded:   true,
	}})

	res := <-descResult
	if !res.WatchAdded {
		t.Fatal("expected WatchAdded=true")
	}

	conn.Push(&driver.SessionResponse{DescribeSemaphoreChanged: &driver.DescribeSemaphoreChanged{ReqID: reqID, DataChanged: true}})
	select {
	case name := <-changed:
		if name != "sem" {
			t.Fatalf("expected sem, got %s", name)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for semaphore-changed event")
	}

	// A second delivery for the same request id must not fire again (one-shot).
	conn.Push(&driver.SessionResponse{DescribeSemaphoreChanged: &driver.DescribeSemaphoreChanged{ReqID: reqID, DataChanged: true}})
	select {
	case name := <-changed:
		t.Fatalf("watch fired twice: %s", name)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestPendingAcquireReplayedAcrossReconnect drives the full reconnection
// story: an acquire is in flight when the stream drops, the next connection
// re-establishes the same session id with an incremented seqNo, replays the
// acquire, and the original caller's result resolves from the replayed
// request's response.
func TestPendingAcquireReplayedAcrossReconnect(t *testing.T) {
	drv := driver.NewFakeDriver()
	s, conn1 := openReady(t, drv, Config{Path: "/local/n"}, Handlers{})
	defer closeSession(t, s)

	result := make(chan bool, 1)
	errCh := make(chan error, 1)
	go func() {
		ok, err := s.AcquireSemaphore(context.Background(), AcquireSemaphoreParams{Name: "S", Count: 1})
		if err != nil {
			errCh <- err
			return
		}
		result <- ok
	}()

	var reqID int64
	for i := 0; i < 200 && reqID == 0; i++ {
		for _, r := range conn1.Sent() {
			if r.AcquireSemaphore != nil {
				reqID = r.AcquireSemaphore.ReqID
			}
		}
		time.Sleep(time.Millisecond)
	}
	if reqID == 0 {
		t.Fatal("acquire never transmitted on the first connection")
	}

	// Drop the stream before the server answers.
	conn1.EndWithError(nil)

	var conn2 *driver.FakeConn[*driver.SessionRequest, *driver.SessionResponse]
	for i := 0; i < 500 && conn2 == nil; i++ {
		conns := drv.CoordinationConns()
		if len(conns) > 1 {
			conn2 = conns[1]
		}
		time.Sleep(time.Millisecond)
	}
	if conn2 == nil {
		t.Fatal("session never reconnected")
	}

	var start *driver.SessionStart
	var replayed *driver.AcquireSemaphore
	for i := 0; i < 500 && (start == nil || replayed == nil); i++ {
		for _, r := range conn2.Sent() {
			if r.SessionStart != nil {
				start = r.SessionStart
			}
			if r.AcquireSemaphore != nil {
				replayed = r.AcquireSemaphore
			}
		}
		time.Sleep(time.Millisecond)
	}
	if start == nil || start.SessionID != 42 || start.SeqNo != 2 {
		t.Fatalf("expected sessionStart{sessionId=42, seqNo=2}, got %+v", start)
	}
	if replayed == nil || replayed.ReqID != reqID {
		t.Fatalf("expected the pending acquire replayed with reqId %d, got %+v", reqID, replayed)
	}

	conn2.Push(&driver.SessionResponse{SessionStarted: &driver.SessionStarted{SessionID: 42}})
	conn2.Push(&driver.SessionResponse{AcquireSemaphoreResult: &driver.AcquireSemaphoreResult{
		ResultHeader: driver.ResultHeader{ReqID: reqID, Status: driver.StatusSuccess},
		Acquired:     true,
	}})

	select {
	case ok := <-result:
		if !ok {
			t.Fatal("expected acquired=true from the replayed request")
		}
	case err := <-errCh:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the original promise to resolve")
	}
}

func TestPingAnsweredWithPong(t *testing.T) {
	drv := driver.NewFakeDriver()
	s, conn := openReady(t, drv, Config{Path: "/local/lock"}, Handlers{})
	defer closeSession(t, s)

	conn.Push(&driver.SessionResponse{Ping: &driver.Ping{Opaque: 777}})

	var pong *driver.Pong
	for i := 0; i < 500 && pong == nil; i++ {
		for _, r := range conn.Sent() {
			if r.Pong != nil {
				pong = r.Pong
			}
		}
		time.Sleep(time.Millisecond)
	}
	if pong == nil || pong.Opaque != 777 {
		t.Fatalf("expected pong{777}, got %+v", pong)
	}
}
