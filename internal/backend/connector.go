// Package backend provides the inference backend connectors for Gravitas.
// Each connector exposes one remote model as a uniform capability: invoke
// with a bounded deadline, get back an intent payload or a typed failure.
// Supports Ollama (local), OpenAI, Anthropic, and Google Gemini.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Security limits to prevent unbounded memory usage
const (
	// MaxErrorBodySize limits how much error response body we read (1MB)
	MaxErrorBodySize = 1 * 1024 * 1024

	// MaxResponseSize limits total response size (10MB). Intent payloads
	// are small; anything near this limit is malformed.
	MaxResponseSize = 10 * 1024 * 1024
)

// readLimitedBody reads up to maxBytes from r, returning the bytes read.
func readLimitedBody(r io.Reader, maxBytes int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxBytes))
}

// Connector is the uniform capability exposed by each inference backend.
type Connector interface {
	// Invoke sends the input and returns the backend's intent payload.
	// The context carries the invocation deadline; failures are returned
	// as *InvokeError so the caller can read the failure kind.
	Invoke(ctx context.Context, req *InvokeRequest) (*Payload, error)

	// Name returns the backend identity.
	Name() string

	// Available returns true if the backend is configured and reachable.
	Available() bool
}

// InvokeRequest carries one input to a backend.
type InvokeRequest struct {
	// Text is the raw input text.
	Text string `json:"text"`

	// Units is the classifier's extracted meaning unit set, passed along
	// as a hint so backends anchor on the same vocabulary.
	Units []string `json:"units,omitempty"`
}

// Payload is the structured response declared by a backend: the three
// intent vector slots. A missing slot is an empty sequence, not an error.
type Payload struct {
	Explicit []string `json:"explicit"`
	Implicit []string `json:"implicit"`
	Deep     []string `json:"deep"`

	// Model is the model that produced the payload.
	Model string `json:"model,omitempty"`

	// Latency is the invocation round-trip time.
	Latency time.Duration `json:"latency"`
}

// normalize replaces nil slots with empty sequences so downstream merge
// code never branches on missing slots.
func (p *Payload) normalize() {
	if p.Explicit == nil {
		p.Explicit = []string{}
	}
	if p.Implicit == nil {
		p.Implicit = []string{}
	}
	if p.Deep == nil {
		p.Deep = []string{}
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// FAILURE TAXONOMY
// ═══════════════════════════════════════════════════════════════════════════════

// FailureKind classifies a failed invocation. The council treats every kind
// identically for quorum purposes; the kind is preserved for diagnostics.
// FailureCancelled marks an invocation the council cancelled after reaching
// quorum, so diagnostics don't misread it as a backend fault.
type FailureKind string

const (
	FailureTimeout   FailureKind = "timeout"
	FailureRemote    FailureKind = "remote_error"
	FailureMalformed FailureKind = "malformed_response"
	FailureCancelled FailureKind = "cancelled"
)

// InvokeError is the typed failure returned by connectors.
type InvokeError struct {
	Backend string
	Kind    FailureKind
	Err     error
}

// Error implements the error interface.
func (e *InvokeError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Backend, e.Kind, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *InvokeError) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from an error. Unclassified errors
// report as remote errors.
func KindOf(err error) FailureKind {
	var ie *InvokeError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	if errors.Is(err, context.Canceled) {
		return FailureCancelled
	}
	return FailureRemote
}

// ═══════════════════════════════════════════════════════════════════════════════
// BASE CONNECTOR (DRY helper for HTTP-based backends)
// ═══════════════════════════════════════════════════════════════════════════════

// baseConnector provides common functionality for HTTP-based backends.
type baseConnector struct {
	name     string
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

func newBaseConnector(name, endpoint, apiKey, model string) baseConnector {
	return baseConnector{
		name:     name,
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{},
	}
}

// Name returns the backend identity.
func (b *baseConnector) Name() string {
	return b.name
}

// failf wraps an error with this backend's identity and a failure kind.
func (b *baseConnector) failf(kind FailureKind, format string, args ...interface{}) *InvokeError {
	return &InvokeError{Backend: b.name, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// classifyTransport maps an http.Client error onto the failure taxonomy.
func (b *baseConnector) classifyTransport(ctx context.Context, err error) *InvokeError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &InvokeError{Backend: b.name, Kind: FailureTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &InvokeError{Backend: b.name, Kind: FailureTimeout, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return &InvokeError{Backend: b.name, Kind: FailureCancelled, Err: err}
	}
	return &InvokeError{Backend: b.name, Kind: FailureRemote, Err: err}
}
