package providers

import (
	"context"
	"fmt"
	"net/http"
)

// Authenticator handles authentication for a provider.
// Vendors put an API key in a header with a scheme-specific prefix
// (Bearer for EvoLink/Replicate/Kie, Key for Fal, none for Gemini downloads).
type Authenticator interface {
	// Authenticate prepares authentication for a request
	Authenticate(ctx context.Context) (AuthContext, error)
}

// AuthContext holds authentication information for a request
type AuthContext interface {
	// ApplyToRequest applies authentication to an HTTP request
	ApplyToRequest(ctx context.Context, req any) error
}

// SimpleAPIKeyAuth sets a static API key header
type SimpleAPIKeyAuth struct {
	apiKey string
	header string
	prefix string
}

// NewSimpleAPIKeyAuth creates an authenticator writing prefix+apiKey into header
func NewSimpleAPIKeyAuth(apiKey, header, prefix string) *SimpleAPIKeyAuth {
	return &SimpleAPIKeyAuth{apiKey: apiKey, header: header, prefix: prefix}
}

// Authenticate returns itself; static keys need no preparation
func (a *SimpleAPIKeyAuth) Authenticate(ctx context.Context) (AuthContext, error) {
	if a.apiKey == "" {
		return nil, fmt.Errorf("api key is empty")
	}
	return a, nil
}

// ApplyToRequest sets the auth header on an *http.Request
func (a *SimpleAPIKeyAuth) ApplyToRequest(ctx context.Context, req any) error {
	httpReq, ok := req.(*http.Request)
	if !ok {
		return fmt.Errorf("unsupported request type %T", req)
	}
	httpReq.Header.Set(a.header, a.prefix+a.apiKey)
	return nil
}
