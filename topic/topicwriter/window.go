// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package topicwriter

import "time"

// metadataItem is a single key/value pair attached to a message.
type metadataItem struct {
	Key   string
	Value []byte
}

// message is one entry of the writer's sliding window.
type message struct {
	data             []byte // possibly compressed
	seqNo            int64
	createdAt        time.Time
	uncompressedSize int64
	metadata         []metadataItem
}

// window is the writer's three-region sliding array: messages is a single
// growable slice split by two cursors into garbage ([0, inflightStart)),
// in-flight ([inflightStart, bufferStart)), and buffer ([bufferStart,
// len)). Only inflightStart and bufferStart ever advance; random deletion
// is forbidden, only bulk prefix compaction.
//
// Like seqNoManager, window is touched only from the writer's event-loop
// goroutine.
type window struct {
	messages      []message
	inflightStart int
	bufferStart   int

	bufferSize   int64
	inflightSize int64
	garbageSize  int64
}

func newWindow() *window { return &window{} }

func (w *window) bufferLength() int   { return len(w.messages) - w.bufferStart }
func (w *window) inflightLength() int { return w.bufferStart - w.inflightStart }

// append adds m to the end of the buffer region.
func (w *window) append(m message) {
	w.messages = append(w.messages, m)
	w.bufferSize += int64(len(m.data))
}

// takeBatch slices a prefix of the buffer region: total bytes <=
// maxBatchBytes, count <= maxInflightRoom, with at least one message always
// included even if it alone exceeds maxBatchBytes. It advances bufferStart
// and returns the batch; the returned slice aliases w.messages and is only
// valid until the next window mutation.
func (w *window) takeBatch(maxBatchBytes int64, maxInflightRoom int) []message {
	if w.bufferLength() == 0 || maxInflightRoom <= 0 {
		return nil
	}
	start := w.bufferStart
	end := start
	var size int64
	for end < len(w.messages) && end-start < maxInflightRoom {
		msz := int64(len(w.messages[end].data))
		if end > start && size+msz > maxBatchBytes {
			break
		}
		size += msz
		end++
	}
	if end == start {
		end = start + 1
		size = int64(len(w.messages[start].data))
	}
	batch := w.messages[start:end]
	w.bufferStart = end
	w.bufferSize -= size
	w.inflightSize += size
	return batch
}

// ackPrefix marks the first n still-inflight messages as garbage.
func (w *window) ackPrefix(n int) {
	for i := 0; i < n && w.inflightStart < w.bufferStart; i++ {
		sz := int64(len(w.messages[w.inflightStart].data))
		w.inflightSize -= sz
		w.garbageSize += sz
		w.inflightStart++
	}
}

// shouldCompact reports whether the garbage region has crossed either
// configured threshold.
func (w *window) shouldCompact(maxGarbageCount int, maxGarbageSize int64) bool {
	return w.inflightStart > maxGarbageCount || w.garbageSize > maxGarbageSize
}

// compact drops the garbage region in one bulk slice operation.
func (w *window) compact() {
	if w.inflightStart == 0 {
		return
	}
	removed := w.inflightStart
	w.messages = append(w.messages[:0], w.messages[removed:]...)
	w.inflightStart = 0
	w.bufferStart -= removed
	w.garbageSize = 0
}

// reconcileInit reconciles the window against the last sequence number the
// server reports when a session (re)initializes: in-flight messages with
// seqNo <= lastSeqNo are dropped (already durably written before the
// disconnect); everything else, in-flight and buffered alike, moves back
// into the buffer. When renumber is non-nil (auto mode) survivors are
// renumbered in original order; in manual mode renumber is nil and seqNos
// are preserved literally.
func (w *window) reconcileInit(lastSeqNo int64, renumber func(count int) []int64) {
	survivors := make([]message, 0, len(w.messages)-w.inflightStart)
	for i := w.inflightStart; i < len(w.messages); i++ {
		m := w.messages[i]
		if i < w.bufferStart && m.seqNo <= lastSeqNo {
			continue
		}
		survivors = append(survivors, m)
	}

	if renumber != nil {
		seqs := renumber(len(survivors))
		for i := range survivors {
			survivors[i].seqNo = seqs[i]
		}
	}

	w.messages = survivors
	w.inflightStart = 0
	w.bufferStart = 0
	w.inflightSize = 0
	w.garbageSize = 0
	var bufSize int64
	for _, m := range w.messages {
		bufSize += int64(len(m.data))
	}
	w.bufferSize = bufSize
}
