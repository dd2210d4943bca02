// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package topicwriter implements a high-throughput topic producer: it
// buffers messages, assigns/renumbers sequence numbers, batches under size
// and in-flight caps, compresses via the codec registry, maintains a
// sliding-window message store, retries on retryable stream errors, and
// shuts down gracefully.
//
// All window/seqno/pending state is owned by a single event-loop goroutine
// reached only through command channels; no locks guard it.
package topicwriter

import (
	"context"
	"sync"
	"time"

	"github.com/ydb-platform/ydb-go-sdk-core/driver"
	"github.com/ydb-platform/ydb-go-sdk-core/internal/xlog"
	"github.com/ydb-platform/ydb-go-sdk-core/retry"
	"github.com/ydb-platform/ydb-go-sdk-core/topic/topicwriter/codec"
	"github.com/ydb-platform/ydb-go-sdk-core/xcontext"
	"github.com/ydb-platform/ydb-go-sdk-core/xerrors"
)

// Server limits enforced client-side: a single write request may not
// exceed maxBatchSize, and a single message payload may not exceed
// maxPayloadSize.
const (
	maxBatchSize   = 50 * 1024 * 1024
	maxPayloadSize = 48 * 1024 * 1024
)

// Config configures a Writer.
type Config struct {
	Topic          string
	ProducerID     string
	PartitionID    *int64
	MessageGroupID string
	Codec          driver.Codec

	MaxBufferBytes        int64 // default 256 MiB
	MaxInflightCount      int   // default 1000
	FlushIntervalMs       int64 // default 1000
	UpdateTokenIntervalMs int64 // default 60000
	GracefulShutdownMs    int64 // default 30000
	MaxGarbageCount       int   // default 1000
	MaxGarbageSize        int64 // default 100 MiB
	MinRawSize            int64 // default 1024

	Logger *xlog.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxBufferBytes <= 0 {
		c.MaxBufferBytes = 256 * 1024 * 1024
	}
	if c.MaxInflightCount <= 0 {
		c.MaxInflightCount = 1000
	}
	if c.FlushIntervalMs <= 0 {
		c.FlushIntervalMs = 1000
	}
	if c.UpdateTokenIntervalMs <= 0 {
		c.UpdateTokenIntervalMs = 60_000
	}
	if c.GracefulShutdownMs <= 0 {
		c.GracefulShutdownMs = 30_000
	}
	if c.MaxGarbageCount <= 0 {
		c.MaxGarbageCount = 1000
	}
	if c.MaxGarbageSize <= 0 {
		c.MaxGarbageSize = 100 * 1024 * 1024
	}
	if c.MinRawSize <= 0 {
		c.MinRawSize = codec.DefaultMinRawSize
	}
	return c
}

// MessageMeta is one key/value metadata pair attached to a written message.
type MessageMeta struct {
	Key   string
	Value []byte
}

// WriteMessageParams are the parameters to Write. A nil SeqNo means "assign
// automatically"; a non-nil SeqNo pins the writer to manual mode.
type WriteMessageParams struct {
	Data     []byte
	SeqNo    *int64
	Metadata []MessageMeta
}

// Ack is one acknowledgment reported via Handlers.OnAcknowledgments.
type Ack struct {
	SeqNo  int64
	Status driver.AckStatus
}

// Handlers are the writer's event callbacks. All are optional.
type Handlers struct {
	OnAcknowledgments func(acks []Ack)
	OnSession         func(sessionID string, lastSeqNo, nextSeqNo int64)
	OnError           func(err error)
}

type writeCmd struct {
	params WriteMessageParams
	result chan error
}

type flushCmd struct {
	result chan error
}

// Writer is a reconnecting topic producer. Construct with Open.
type Writer struct {
	cfg    Config
	drv    driver.Driver
	codecs *codec.Registry
	h      Handlers
	log    xlog.Logger
	actor  *streamActor

	writeCh   chan writeCmd
	flushCh   chan flushCmd
	closeCh   chan chan error
	destroyCh chan struct{}

	doneCh      chan struct{}
	initCh      chan struct{}
	initOnce    sync.Once
	destroyOnce sync.Once

	// abortCtx/abortCancel is the writer's own closing signal, merged with
	// the caller's ctx in connectOnce so the connection loop needs only one
	// select arm to notice either "caller cancelled" or "the writer is
	// shutting down".
	abortCtx    context.Context
	abortCancel context.CancelCauseFunc

	// event-loop-owned state; touched only from eventLoop.
	window       *window
	seqno        seqNoManager
	ready        bool
	sessionID    string
	closing      bool
	terminal     bool
	pendingFlush []chan error
}

// Open starts a topic writer against cfg.Topic. It returns immediately;
// writes are buffered until the underlying stream initializes.
func Open(ctx context.Context, drv driver.Driver, cfg Config, codecs *codec.Registry, h Handlers) (*Writer, error) {
	cfg = cfg.withDefaults()
	log := xlog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	log = log.With("topic", cfg.Topic)

	abortCtx, abortCancel := xcontext.WithAbort(context.Background())
	w := &Writer{
		cfg:         cfg,
		drv:         drv,
		codecs:      codecs,
		h:           h,
		log:         log,
		window:      newWindow(),
		writeCh:     make(chan writeCmd),
		flushCh:     make(chan flushCmd),
		closeCh:     make(chan chan error),
		destroyCh:   make(chan struct{}),
		doneCh:      make(chan struct{}),
		initCh:      make(chan struct{}),
		abortCtx:    abortCtx,
		abortCancel: abortCancel,
	}
	w.actor = newStreamActor(drv, time.Duration(cfg.UpdateTokenIntervalMs)*time.Millisecond, log)

	go w.connectionLoop(ctx)
	go w.eventLoop(ctx)
	return w, nil
}

func statusErrTopic(status driver.Status, issues []driver.Issue) error {
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
	default:
		return xerrors.New(xerrors.KindNonRetryableServer, msg)
	}
}

// connectionLoop drives the unbounded reconnection loop around the stream
// actor, mirroring the coordination session's connection loop.
func (w *Writer) connectionLoop(ctx context.Context) {
	_ = retry.Do(ctx, retry.Config{
		BaseDelay:         50 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		JitterFraction:    0.5,
		Idempotent:        true,
		IsStreamReconnect: true,
		OnRetry: func(attempt int, err error) {
			w.log.Warn("topic writer reconnecting: " + err.Error())
		},
	}, w.connectOnce)
}

func (w *Writer) connectOnce(ctx context.Context) error {
	if w.abortCtx.Err() != nil {
		return nil
	}
	if err := w.drv.Ready(ctx); err != nil {
		return xerrors.Wrap(xerrors.KindTransport, "driver not ready", err)
	}
	init := &driver.InitRequest{
		Path: w.cfg.Topic, ProducerID: w.cfg.ProducerID, GetLastSeqNo: true,
		PartitionID: w.cfg.PartitionID, MessageGroupID: w.cfg.MessageGroupID,
	}
	if err := w.actor.start(ctx, func(ctx context.Context) (driver.TopicWriteStream, error) {
		return w.drv.OpenTopicWriteStream(ctx)
	}, init); err != nil {
		if xerrors.Is(err, xerrors.KindClosed) {
			return nil
		}
		return xerrors.Wrap(xerrors.KindTransport, "open topic write stream", err)
	}

	merged, cancelMerge := xcontext.Merge(ctx, w.abortCtx)
	defer cancelMerge()

	select {
	case <-w.actor.waitForDisconnect():
		return xerrors.New(xerrors.KindTransport, "topic write stream disconnected")
	case <-merged.Done():
		return nil
	}
}

// eventLoop owns window/seqno/pending state exclusively.
func (w *Writer) eventLoop(ctx context.Context) {
	flushTicker := time.NewTicker(time.Duration(w.cfg.FlushIntervalMs) * time.Millisecond)
	defer flushTicker.Stop()

	var gracefulDeadline <-chan time.Time
	var closeResult chan error

	for {
		select {
		case cmd := <-w.writeCh:
			cmd.result <- w.handleWrite(cmd.params)

		case cmd := <-w.flushCh:
			w.trySend(true)
			if w.window.bufferLength() == 0 && w.window.inflightLength() == 0 {
				cmd.result <- nil
			} else {
				w.pendingFlush = append(w.pendingFlush, cmd.result)
			}

		case resultCh := <-w.closeCh:
			if w.closing {
				resultCh <- nil
				continue
			}
			w.closing = true
			closeResult = resultCh
			gracefulDeadline = time.After(time.Duration(w.cfg.GracefulShutdownMs) * time.Millisecond)
			w.trySend(true)
			if w.window.bufferLength() == 0 && w.window.inflightLength() == 0 {
				w.finish(closeResult, nil)
				return
			}

		case <-w.destroyCh:
			w.finish(closeResult, xerrors.New(xerrors.KindClosed, "writer destroyed"))
			return

		case ev := <-w.actor.recvEvents():
			stop := w.handleActorEvent(ev)
			if stop {
				w.finish(closeResult, nil)
				return
			}
			if w.closing && w.window.bufferLength() == 0 && w.window.inflightLength() == 0 {
				w.finish(closeResult, nil)
				return
			}

		case <-flushTicker.C:
			w.trySend(true)

		case <-gracefulDeadline:
			if w.closing {
				err := xerrors.New(xerrors.KindClosed, "graceful shutdown timed out")
				if w.h.OnError != nil {
					w.h.OnError(err)
				}
				w.finish(closeResult, nil)
				return
			}

		case <-ctx.Done():
			w.finish(closeResult, xerrors.Wrap(xerrors.KindCancelled, "writer context done", ctx.Err()))
			return
		}
	}
}

// finish stops the connection loop, closes the underlying stream, resolves
// any pending flush/close waiters, and closes doneCh. Called exactly once,
// from the single eventLoop goroutine.
func (w *Writer) finish(closeResult chan error, pendingErr error) {
	w.abortCancel(xerrors.New(xerrors.KindClosed, "writer_closed"))
	_ = w.actor.close()
	for _, ch := range w.pendingFlush {
		if pendingErr != nil {
			ch <- pendingErr
		} else {
			ch <- xerrors.New(xerrors.KindClosed, "writer_closed")
		}
	}
	w.pendingFlush = nil
	if closeResult != nil {
		closeResult <- nil
	}
	close(w.doneCh)
}

func (w *Writer) handleWrite(p WriteMessageParams) error {
	if w.terminal || w.closing {
		return xerrors.New(xerrors.KindClosed, "writer_closed")
	}
	if int64(len(p.Data)) > maxPayloadSize {
		return xerrors.Newf(xerrors.KindPayloadTooLarge, "message of %d bytes exceeds max payload size %d", len(p.Data), maxPayloadSize)
	}

	seq, err := w.seqno.assign(p.SeqNo)
	if err != nil {
		return err
	}

	data := p.Data
	uncompressed := int64(len(p.Data))
	if w.cfg.Codec != driver.CodecRaw && uncompressed >= w.cfg.MinRawSize {
		c, err := w.codecs.Get(w.cfg.Codec)
		if err != nil {
			return err
		}
		compressed, err := c.Compress(p.Data)
		if err != nil {
			return xerrors.Wrap(xerrors.KindProtocol, "compress message", err)
		}
		data = compressed
	}

	meta := make([]metadataItem, len(p.Metadata))
	for i, m := range p.Metadata {
		meta[i] = metadataItem{Key: m.Key, Value: m.Value}
	}

	w.window.append(message{data: data, seqNo: seq, createdAt: time.Now(), uncompressedSize: uncompressed, metadata: meta})
	w.trySend(false)
	return nil
}

// trySend drains the buffer into write requests while inflight has room.
// When force is false, a batch is only cut once the buffer has reached
// MaxBufferBytes; force is set by flush requests, the flush ticker,
// post-reconnect draining, and the closing drain.
func (w *Writer) trySend(force bool) {
	if !w.ready {
		return
	}
	for w.window.bufferLength() > 0 && w.window.inflightLength() < w.cfg.MaxInflightCount {
		if !force && w.window.bufferSize < w.cfg.MaxBufferBytes {
			return
		}
		room := w.cfg.MaxInflightCount - w.window.inflightLength()
		batch := w.window.takeBatch(maxBatchSize, room)
		if len(batch) == 0 {
			return
		}
		req := &driver.WriteRequest{Codec: w.cfg.Codec, Messages: toWireMessages(batch)}
		if err := w.actor.sendWrite(req); err != nil {
			return
		}
	}
}

func toWireMessages(batch []message) []driver.Message {
	out := make([]driver.Message, len(batch))
	for i, m := range batch {
		items := make([]driver.MessageMeta, len(m.metadata))
		for j, md := range m.metadata {
			items[j] = driver.MessageMeta{Key: md.Key, Value: md.Value}
		}
		out[i] = driver.Message{
			Data: m.data, SeqNo: m.seqNo, CreatedAt: m.createdAt,
			UncompressedSize: m.uncompressedSize, MetadataItems: items,
		}
	}
	return out
}

// handleActorEvent applies one stream-actor event to the window/seqno state
// and reports true when the writer should terminate entirely (a
// non-retryable server failure).
func (w *Writer) handleActorEvent(ev actorEvent) bool {
	switch ev.kind {
	case actorStart:
		w.ready = false

	case actorInit:
		w.sessionID = ev.init.SessionID
		lastSeqNo := ev.init.LastSeqNo
		if w.seqno.mode == seqNoModeManual {
			w.window.reconcileInit(lastSeqNo, nil)
		} else {
			w.window.reconcileInit(lastSeqNo, func(n int) []int64 { return w.seqno.reconcileAuto(lastSeqNo, n) })
		}
		w.ready = true
		w.initOnce.Do(func() { close(w.initCh) })
		if w.h.OnSession != nil {
			w.h.OnSession(w.sessionID, lastSeqNo, w.seqno.lastSeqNo+1)
		}
		w.trySend(true)

	case actorWrite:
		n := len(ev.write.Acks)
		w.window.ackPrefix(n)
		if w.window.shouldCompact(w.cfg.MaxGarbageCount, w.cfg.MaxGarbageSize) {
			w.window.compact()
		}
		if w.h.OnAcknowledgments != nil {
			acks := make([]Ack, n)
			for i, a := range ev.write.Acks {
				acks[i] = Ack{SeqNo: a.SeqNo, Status: a.Status}
			}
			w.h.OnAcknowledgments(acks)
		}
		w.maybeResolveFlushes()
		w.trySend(len(w.pendingFlush) > 0 || w.closing)

	case actorToken:
		// informational only.

	case actorError:
		w.ready = false
		if retry.Retryable(ev.err, true, false) {
			w.actor.disconnect()
			return false
		}
		w.terminal = true
		if w.h.OnError != nil {
			w.h.OnError(ev.err)
		}
		return true
	}
	return false
}

func (w *Writer) maybeResolveFlushes() {
	if w.window.bufferLength() != 0 || w.window.inflightLength() != 0 {
		return
	}
	for _, ch := range w.pendingFlush {
		ch <- nil
	}
	w.pendingFlush = nil
}

// Write appends a message to the writer's buffer. It validates the payload
// size, assigns a seqNo, compresses if configured, and returns once the
// message has been accounted for; it does not wait for the server ack.
func (w *Writer) Write(ctx context.Context, p WriteMessageParams) error {
	cmd := writeCmd{params: p, result: make(chan error, 1)}
	select {
	case w.writeCh <- cmd:
	case <-ctx.Done():
		return xerrors.Wrap(xerrors.KindCancelled, "write cancelled", ctx.Err())
	case <-w.doneCh:
		return xerrors.New(xerrors.KindClosed, "writer_closed")
	}
	select {
	case err := <-cmd.result:
		return err
	case <-ctx.Done():
		return xerrors.Wrap(xerrors.KindCancelled, "write cancelled", ctx.Err())
	case <-w.doneCh:
		return xerrors.New(xerrors.KindClosed, "writer_closed")
	}
}

// Ready blocks until the writer's stream has initialized at least once,
// ctx is done, or the writer is closed.
func (w *Writer) Ready(ctx context.Context) error {
	select {
	case <-w.initCh:
		return nil
	case <-ctx.Done():
		return xerrors.Wrap(xerrors.KindCancelled, "ready cancelled", ctx.Err())
	case <-w.doneCh:
		return xerrors.New(xerrors.KindClosed, "writer_closed")
	}
}

// Flush blocks until the buffer and in-flight region are both empty. It is
// idempotent when already empty.
func (w *Writer) Flush(ctx context.Context) error {
	cmd := flushCmd{result: make(chan error, 1)}
	select {
	case w.flushCh <- cmd:
	case <-ctx.Done():
		return xerrors.Wrap(xerrors.KindCancelled, "flush cancelled", ctx.Err())
	case <-w.doneCh:
		return nil
	}
	select {
	case err := <-cmd.result:
		return err
	case <-ctx.Done():
		return xerrors.Wrap(xerrors.KindCancelled, "flush cancelled", ctx.Err())
	case <-w.doneCh:
		return nil
	}
}

// Close starts a graceful shutdown: remaining messages continue to be sent
// until drained, falling back to a forced close after
// GracefulShutdownMs. Close is idempotent.
func (w *Writer) Close(ctx context.Context) error {
	result := make(chan error, 1)
	select {
	case w.closeCh <- result:
	case <-w.doneCh:
		return nil
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return xerrors.Wrap(xerrors.KindCancelled, "close cancelled", ctx.Err())
	case <-w.doneCh:
		return nil
	}
}

// Destroy transitions directly to closed, rejecting all pending work.
func (w *Writer) Destroy() {
	w.destroyOnce.Do(func() { close(w.destroyCh) })
	<-w.doneCh
}
