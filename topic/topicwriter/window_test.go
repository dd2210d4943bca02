// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package topicwriter

import "testing"

func msg(seqNo int64, size int) message {
	return message{data: make([]byte, size), seqNo: seqNo}
}

func TestWindowTakeBatchRespectsByteCap(t *testing.T) {
	w := newWindow()
	w.append(msg(1, 10))
	w.append(msg(2, 10))
	w.append(msg(3, 10))

	batch := w.takeBatch(15, 100)
	if len(batch) != 1 {
		t.Fatalf("expected a single message under the byte cap, got %d", len(batch))
	}
	if w.bufferLength() != 2 {
		t.Fatalf("expected 2 remaining in buffer, got %d", w.bufferLength())
	}
}

func TestWindowTakeBatchAlwaysSendsOneEvenOversized(t *testing.T) {
	w := newWindow()
	w.append(msg(1, 1000))
	w.append(msg(2, 10))

	batch := w.takeBatch(100, 100)
	if len(batch) != 1 || batch[0].seqNo != 1 {
		t.Fatalf("expected the single oversized message alone, got %d messages", len(batch))
	}
}

func TestWindowTakeBatchRespectsInflightRoom(t *testing.T) {
	w := newWindow()
	for i := int64(1); i <= 5; i++ {
		w.append(msg(i, 1))
	}
	batch := w.takeBatch(1<<20, 2)
	if len(batch) != 2 {
		t.Fatalf("expected 2 messages capped by inflight room, got %d", len(batch))
	}
}

func TestWindowAckPrefixAndCompact(t *testing.T) {
	w := newWindow()
	for i := int64(1); i <= 4; i++ {
		w.append(msg(i, 1))
	}
	w.takeBatch(1<<20, 4)
	w.ackPrefix(2)

	if w.inflightStart != 2 {
		t.Fatalf("expected inflightStart=2, got %d", w.inflightStart)
	}
	if !w.shouldCompact(1, 1<<30) {
		t.Fatal("expected shouldCompact to trip on garbage count")
	}
	w.compact()
	if w.inflightStart != 0 || w.bufferStart != 2 {
		t.Fatalf("unexpected cursors after compact: inflightStart=%d bufferStart=%d", w.inflightStart, w.bufferStart)
	}
	if len(w.messages) != 2 {
		t.Fatalf("expected 2 surviving messages, got %d", len(w.messages))
	}
}

func TestWindowReconcileInitAutoModeRenumbers(t *testing.T) {
	w := newWindow()
	w.append(msg(1, 1))
	w.append(msg(2, 1))
	w.takeBatch(1<<20, 10) // both now in-flight
	w.append(msg(3, 1))    // buffered, never sent

	// Server says it already durably wrote seqNo<=1; seqNo 2 must be resent,
	// and everything renumbers sequentially from lastSeqNo+1.
	w.reconcileInit(1, func(n int) []int64 {
		out := make([]int64, n)
		for i := range out {
			out[i] = 1 + int64(i) + 1
		}
		return out
	})

	if len(w.messages) != 2 {
		t.Fatalf("expected 2 survivors, got %d", len(w.messages))
	}
	if w.messages[0].seqNo != 2 || w.messages[1].seqNo != 3 {
		t.Fatalf("unexpected renumbering: %+v", w.messages)
	}
	if w.inflightStart != 0 || w.bufferStart != 0 {
		t.Fatalf("expected both cursors reset to 0, got inflightStart=%d bufferStart=%d", w.inflightStart, w.bufferStart)
	}
}

func TestWindowReconcileInitManualModePreservesSeqNo(t *testing.T) {
	w := newWindow()
	w.append(msg(10, 1))
	w.append(msg(20, 1))
	w.takeBatch(1<<20, 10)
	w.append(msg(30, 1))

	w.reconcileInit(10, nil)

	if len(w.messages) != 2 {
		t.Fatalf("expected 2 survivors, got %d", len(w.messages))
	}
	if w.messages[0].seqNo != 20 || w.messages[1].seqNo != 30 {
		t.Fatalf("expected literal seqNos preserved, got %+v", w.messages)
	}
}
