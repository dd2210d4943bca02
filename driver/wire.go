// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package driver defines the external collaborator contracts consumed by
// the coordination session and the topic writer: a Driver that hands out
// ready gRPC streams and the current auth token, a CredentialsProvider, and
// the wire message types for the coordination and topic-write streams. The
// SDK core does not generate protobuf bindings for these services, so these
// are plain Go types standing in for what a generated client would provide;
// Fake implementations (fake.go) let every other package in this module be
// tested without a real server.
package driver

import "time"

// Status is the YDB operation status carried in a *Result envelope or a
// failure{} frame. It is distinct from a gRPC transport code: it travels
// inside the message payload, not the RPC status.
type Status int

const (
	StatusSuccess Status = iota
	StatusBadSession
	StatusSessionExpired
	StatusOverloaded
	StatusAborted
	StatusAlreadyExists
	StatusNotFound
	StatusBadRequest
	StatusUnauthorized
	StatusUnavailable
	StatusInternalError
	StatusTimeout
	StatusPreconditionFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusBadSession:
		return "BAD_SESSION"
	case StatusSessionExpired:
		return "SESSION_EXPIRED"
	case StatusOverloaded:
		return "OVERLOADED"
	case StatusAborted:
		return "ABORTED"
	case StatusAlreadyExists:
		return "ALREADY_EXISTS"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusBadRequest:
		return "BAD_REQUEST"
	case StatusUnauthorized:
		return "UNAUTHORIZED"
	case StatusUnavailable:
		return "UNAVAILABLE"
	case StatusInternalError:
		return "INTERNAL_ERROR"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusPreconditionFailed:
		return "PRECONDITION_FAILED"
	default:
		return "UNKNOWN"
	}
}

// Issue is a single diagnostic attached to a non-success Status.
type Issue struct {
	Message string
	Code    int32
}

// ResultHeader is embedded in every *Result variant of SessionResponse: it
// carries the tagged request id the result answers and its outcome.
type ResultHeader struct {
	ReqID  int64
	Status Status
	Issues []Issue
}

// --- Coordination wire protocol ---

type SessionStart struct {
	Path          string
	SessionID     uint64
	TimeoutMillis int64
	Description   string
	SeqNo         int64
}

type SessionStop struct{}

type Pong struct {
	Opaque int64
}

type AcquireSemaphore struct {
	ReqID         int64
	Name          string
	Count         uint64
	TimeoutMillis int64
	Data          []byte
	Ephemeral     bool
}

type ReleaseSemaphore struct {
	ReqID int64
	Name  string
}

type CreateSemaphore struct {
	ReqID int64
	Name  string
	Limit uint64
	Data  []byte
}

type UpdateSemaphore struct {
	ReqID int64
	Name  string
	Data  []byte
}

type DeleteSemaphore struct {
	ReqID int64
	Name  string
	Force bool
}

type DescribeSemaphore struct {
	ReqID          int64
	Name           string
	IncludeOwners  bool
	IncludeWaiters bool
	WatchData      bool
	WatchOwners    bool
}

// SessionRequest is the client->server union for the coordination stream.
// Exactly one field is set.
type SessionRequest struct {
	SessionStart      *SessionStart
	SessionStop       *SessionStop
	Pong              *Pong
	AcquireSemaphore  *AcquireSemaphore
	ReleaseSemaphore  *ReleaseSemaphore
	CreateSemaphore   *CreateSemaphore
	UpdateSemaphore   *UpdateSemaphore
	DeleteSemaphore   *DeleteSemaphore
	DescribeSemaphore *DescribeSemaphore
}

type Ping struct {
	Opaque int64
}

type Failure struct {
	Status Status
	Issues []Issue
}

type SessionStarted struct {
	SessionID uint64
}

type SessionStopped struct {
	SessionID uint64
}

type AcquireSemaphorePending struct {
	ReqID int64
}

// SemaphoreOwner describes one holder of a semaphore's count, returned by
// DescribeSemaphore when IncludeOwners is set.
type SemaphoreOwner struct {
	SessionID uint64
	Count     uint64
	Data      []byte
}

// SemaphoreWaiter describes one pending acquirer, returned when
// IncludeWaiters is set.
type SemaphoreWaiter struct {
	SessionID uint64
	Count     uint64
	Data      []byte
}

// SemaphoreDescription is the payload of a successful DescribeSemaphore.
type SemaphoreDescription struct {
	Name    string
	Data    []byte
	Limit   uint64
	Owners  []SemaphoreOwner
	Waiters []SemaphoreWaiter
}

type AcquireSemaphoreResult struct {
	ResultHeader
	Acquired bool
}

type ReleaseSemaphoreResult struct {
	ResultHeader
	Released bool
}

type CreateSemaphoreResult struct {
	ResultHeader
}

type UpdateSemaphoreResult struct {
	ResultHeader
}

type DeleteSemaphoreResult struct {
	ResultHeader
}

type DescribeSemaphoreResult struct {
	ResultHeader
	Description SemaphoreDescription
	WatchAdded  bool
}

type DescribeSemaphoreChanged struct {
	ReqID         int64
	DataChanged   bool
	OwnersChanged bool
}

// SessionResponse is the server->client union for the coordination stream.
// Exactly one field is set.
type SessionResponse struct {
	Ping                     *Ping
	Failure                  *Failure
	SessionStarted           *SessionStarted
	SessionStopped           *SessionStopped
	AcquireSemaphorePending  *AcquireSemaphorePending
	AcquireSemaphoreResult   *AcquireSemaphoreResult
	ReleaseSemaphoreResult   *ReleaseSemaphoreResult
	CreateSemaphoreResult    *CreateSemaphoreResult
	UpdateSemaphoreResult    *UpdateSemaphoreResult
	DeleteSemaphoreResult    *DeleteSemaphoreResult
	DescribeSemaphoreResult  *DescribeSemaphoreResult
	DescribeSemaphoreChanged *DescribeSemaphoreChanged
}

// --- Topic write wire protocol ---

// Codec identifies the compression algorithm a WriteRequest's messages were
// encoded with, matching the ids negotiated in InitResponse.SupportedCodecs.
type Codec int32

const (
	CodecRaw Codec = iota
	CodecGzip
	CodecZstd
)

type MessageMeta struct {
	Key   string
	Value []byte
}

// Message is one entry of WriteRequest.Messages.
type Message struct {
	Data             []byte
	SeqNo            int64
	CreatedAt        time.Time
	UncompressedSize int64
	MetadataItems    []MessageMeta
}

type InitRequest struct {
	Path           string
	ProducerID     string
	GetLastSeqNo   bool
	PartitionID    *int64
	MessageGroupID string
}

type WriteRequest struct {
	TxID     string
	Codec    Codec
	Messages []Message
}

type UpdateTokenRequest struct {
	Token string
}

// WriteClientMessage is the client->server union for the topic write
// stream. Exactly one field is set.
type WriteClientMessage struct {
	Init        *InitRequest
	Write       *WriteRequest
	UpdateToken *UpdateTokenRequest
}

type InitResponse struct {
	SessionID       string
	LastSeqNo       int64
	PartitionID     int64
	SupportedCodecs []Codec
}

// AckStatus is the per-message outcome carried by a WriteResponse ack.
type AckStatus int

const (
	AckSkipped AckStatus = iota
	AckWritten
	AckWrittenInTx
)

type Ack struct {
	SeqNo  int64
	Offset *int64
	Status AckStatus
}

type WriteResponse struct {
	Acks []Ack
}

type UpdateTokenResponse struct{}

// WriteServerMessage is the server->client union for the topic write
// stream, wrapped in the outer status/issues envelope every frame carries.
type WriteServerMessage struct {
	Status  Status
	Issues  []Issue
	Init    *InitResponse
	Write   *WriteResponse
	Token   *UpdateTokenResponse
}
