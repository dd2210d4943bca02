// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package driver

import (
	"context"

	"github.com/ydb-platform/ydb-go-sdk-core/internal/xstream"
)

// CoordinationStream is a single opened coordination gRPC stream.
type CoordinationStream = xstream.Conn[*SessionRequest, *SessionResponse]

// TopicWriteStream is a single opened topic-write gRPC stream.
type TopicWriteStream = xstream.Conn[*WriteClientMessage, *WriteServerMessage]

// Driver is the discovery-aware gRPC driver consumed by the coordination
// session and the topic writer. Endpoint discovery and channel pooling
// live behind this interface; Driver is the seam a real driver
// implementation plugs into.
type Driver interface {
	// Ready blocks until the driver has at least one usable endpoint, or
	// ctx is done.
	Ready(ctx context.Context) error
	// Token returns the current auth bearer token, refreshing it if the
	// credentials provider deems it stale.
	Token(ctx context.Context) (string, error)
	// OpenCoordinationStream opens a new coordination-service stream.
	OpenCoordinationStream(ctx context.Context) (CoordinationStream, error)
	// OpenTopicWriteStream opens a new topic-service write stream.
	OpenTopicWriteStream(ctx context.Context) (TopicWriteStream, error)
}

// CredentialsProvider hands out auth tokens: GetToken returns the current
// bearer token, forcing a refresh when force is true. Full provider
// implementations (service-account keys, metadata service, OAuth) live
// outside this module; StaticCredentials and TokenCredentials
// (credentials.go) are
// the minimal collaborators the core subsystems are tested against.
type CredentialsProvider interface {
	GetToken(ctx context.Context, force bool) (string, error)
}
