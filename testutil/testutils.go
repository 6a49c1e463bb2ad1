package testutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/glaciation-heu/sap-uc3/coordinator"
	"github.com/glaciation-heu/sap-uc3/crypto"
)

// =====================================
// Configuration Generators
// =====================================

// ProviderConfigOption modifies a ProviderConfig.
type ProviderConfigOption func(*coordinator.ProviderConfig)

// WithProviderURLs replaces the providers by one endpoint per base URL.
func WithProviderURLs(urls ...string) ProviderConfigOption {
	return func(cfg *coordinator.ProviderConfig) {
		cfg.Providers = cfg.Providers[:0]
		for i, u := range urls {
			cfg.Providers = append(cfg.Providers, coordinator.ProviderEndpoint{
				ID:                  i + 1,
				AmphoraServiceURL:   fmt.Sprintf("%s/%d/amphora", u, i),
				CastorServiceURL:    fmt.Sprintf("%s/%d/castor", u, i),
				EphemeralServiceURL: fmt.Sprintf("%s/%d", u, i),
				BaseURL:             u,
			})
		}
	}
}

// WithNoSSLValidation sets the NoSSLValidation flag.
func WithNoSSLValidation() ProviderConfigOption {
	return func(cfg *coordinator.ProviderConfig) {
		cfg.NoSSLValidation = true
	}
}

// NewTestProviderConfig returns a two-provider configuration over the default field.
func NewTestProviderConfig(options ...ProviderConfigOption) *coordinator.ProviderConfig {
	cfg := &coordinator.ProviderConfig{
		Prime: crypto.DefaultPrime,
		R:     crypto.DefaultR,
		RInv:  crypto.DefaultRInv,
	}
	WithProviderURLs("http://provider.test", "http://provider.test")(cfg)
	for _, opt := range options {
		opt(cfg)
	}
	return cfg
}

// CollaborationOption modifies a NewCollaboration.
type CollaborationOption func(*coordinator.NewCollaboration)

// WithParties sets the number of required uploads.
func WithParties(n int) CollaborationOption {
	return func(c *coordinator.NewCollaboration) {
		c.ParticipantCount = n
	}
}

// WithProgram sets the MPC program.
func WithProgram(program string) CollaborationOption {
	return func(c *coordinator.NewCollaboration) {
		c.Program = []byte(program)
	}
}

// WithProviderConfig sets the provider configuration.
func WithProviderConfig(cfg *coordinator.ProviderConfig) CollaborationOption {
	return func(c *coordinator.NewCollaboration) {
		c.Config = cfg
	}
}

// NewTestCollaboration returns a valid collaboration requiring one party.
func NewTestCollaboration(options ...CollaborationOption) *coordinator.NewCollaboration {
	c := &coordinator.NewCollaboration{
		Name:             "test-collaboration",
		Program:          []byte("listen_for_clients(15000)\n"),
		InputSchema:      "age,income",
		ParticipantCount: 1,
		Config:           NewTestProviderConfig(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// =====================================
// Collaborator Stubs
// =====================================

// StubEngine is a ComputationEngine returning a fixed outcome and counting calls.
type StubEngine struct {
	mu       sync.Mutex
	calls    int
	shareIDs [][]string

	// ResultID is returned on success.
	ResultID string
	// Err, when non-empty, is returned as failure message.
	Err string
	// Block, when non-nil, delays every call until it is closed or the
	// context ends.
	Block chan struct{}
}

// NewStubEngine returns an engine succeeding with resultID.
func NewStubEngine(resultID string) *StubEngine {
	return &StubEngine{ResultID: resultID}
}

// NewFailingEngine returns an engine failing with msg.
func NewFailingEngine(msg string) *StubEngine {
	return &StubEngine{Err: msg}
}

func (e *StubEngine) Execute(ctx context.Context, _ []byte, _ *coordinator.ProviderConfig, shareIDs []string) (string, error) {
	e.mu.Lock()
	e.calls++
	e.shareIDs = append(e.shareIDs, append([]string{}, shareIDs...))
	block := e.Block
	e.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if e.Err != "" {
		return "", errors.New(e.Err)
	}
	return e.ResultID, nil
}

// Calls returns how often Execute was invoked.
func (e *StubEngine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// ShareIDs returns the share ids of every invocation.
func (e *StubEngine) ShareIDs() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]string{}, e.shareIDs...)
}

// Notification is one recorded Notify call.
type Notification struct {
	Endpoints []string
	Result    coordinator.ExecutionResult
}

// RecordingNotifier records notifications instead of delivering them.
type RecordingNotifier struct {
	mu    sync.Mutex
	items []Notification
}

func (n *RecordingNotifier) Notify(_ context.Context, endpoints []string, result coordinator.ExecutionResult) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, Notification{Endpoints: append([]string{}, endpoints...), Result: result})
}

// Notifications returns the recorded notifications.
func (n *RecordingNotifier) Notifications() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification{}, n.items...)
}

// =====================================
// Logging
// =====================================

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
