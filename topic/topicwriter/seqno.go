// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package topicwriter

import "github.com/ydb-platform/ydb-go-sdk-core/xerrors"

type seqNoMode int

const (
	seqNoModeUnset seqNoMode = iota
	seqNoModeAuto
	seqNoModeManual
)

// seqNoManager assigns and tracks sequence numbers for one writer. It is
// touched only from the writer's event-loop goroutine, so unlike a shared
// cache it carries no internal lock.
type seqNoManager struct {
	mode             seqNoMode
	lastSeqNo        int64
	highestUserSeqNo int64
}

// assign pins the mode on the first call (a non-nil userSeqNo pins manual,
// nil pins auto) and returns the seqNo to use for this message.
func (m *seqNoManager) assign(userSeqNo *int64) (int64, error) {
	wantManual := userSeqNo != nil

	switch m.mode {
	case seqNoModeUnset:
		if wantManual {
			m.mode = seqNoModeManual
		} else {
			m.mode = seqNoModeAuto
		}
	case seqNoModeAuto:
		if wantManual {
			return 0, xerrors.New(xerrors.KindSeqNoModeConflict, "writer is pinned to automatic seqNo assignment")
		}
	case seqNoModeManual:
		if !wantManual {
			return 0, xerrors.New(xerrors.KindSeqNoModeConflict, "writer is pinned to manual seqNo assignment")
		}
	}

	if m.mode == seqNoModeManual {
		seq := *userSeqNo
		if seq <= m.highestUserSeqNo {
			return 0, xerrors.Newf(xerrors.KindSeqNoRegression, "seqNo %d is not strictly greater than the highest submitted seqNo %d", seq, m.highestUserSeqNo)
		}
		m.highestUserSeqNo = seq
		m.lastSeqNo = seq
		return seq, nil
	}

	m.lastSeqNo++
	return m.lastSeqNo, nil
}

// reconcileAuto renumbers count surviving messages sequentially starting at
// serverLastSeqNo+1.
func (m *seqNoManager) reconcileAuto(serverLastSeqNo int64, count int) []int64 {
	m.lastSeqNo = serverLastSeqNo
	out := make([]int64, count)
	for i := range out {
		m.lastSeqNo++
		out[i] = m.lastSeqNo
	}
	return out
}
