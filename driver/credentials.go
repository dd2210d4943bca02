// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"google.golang.org/grpc/credentials"
)

// authTicketHeader is the metadata key the driver attaches to every
// outgoing RPC.
const authTicketHeader = "x-ydb-auth-ticket"

// StaticCredentials is a CredentialsProvider that always returns the same
// token.
type StaticCredentials struct {
	Token string
}

func (c StaticCredentials) GetToken(_ context.Context, _ bool) (string, error) {
	return c.Token, nil
}

// TokenCredentials wraps an oauth2.TokenSource, refreshing through the
// standard oauth2 machinery and only forcing a refresh when the caller
// asks for one or the cached token has expired (see tokenExpired).
type TokenCredentials struct {
	Source oauth2.TokenSource

	mu     sync.Mutex
	cached *oauth2.Token
}

func NewTokenCredentials(source oauth2.TokenSource) *TokenCredentials {
	return &TokenCredentials{Source: source}
}

func (c *TokenCredentials) GetToken(_ context.Context, force bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && c.cached != nil && !tokenExpired(c.cached) {
		return c.cached.AccessToken, nil
	}
	tok, err := c.Source.Token()
	if err != nil {
		return "", fmt.Errorf("refresh token: %w", err)
	}
	c.cached = tok
	return tok.AccessToken, nil
}

// tokenExpired reports whether tok is past its oauth2 Expiry, or, for
// tokens whose AccessToken is itself a JWT, past the "exp" claim it carries.
func tokenExpired(tok *oauth2.Token) bool {
	if !tok.Expiry.IsZero() {
		return time.Now().After(tok.Expiry)
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(tok.AccessToken, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Now().After(exp.Time)
}

// PerRPCCredentials adapts a CredentialsProvider into a
// credentials.PerRPCCredentials, attaching the x-ydb-auth-ticket header to
// every outgoing request.
type PerRPCCredentials struct {
	Provider          CredentialsProvider
	TransportSecurity bool
}

var _ credentials.PerRPCCredentials = (*PerRPCCredentials)(nil)

func (c *PerRPCCredentials) GetRequestMetadata(ctx context.Context, _ ...string) (map[string]string, error) {
	token, err := c.Provider.GetToken(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("get auth token: %w", err)
	}
	return map[string]string{authTicketHeader: token}, nil
}

func (c *PerRPCCredentials) RequireTransportSecurity() bool {
	return c.TransportSecurity
}
