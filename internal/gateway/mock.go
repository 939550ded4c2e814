package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/krittin/tallyscan/internal/telemetry"
)

const MockName = "mock"

// MockClient is a Client for testing.
type MockClient struct {
	// Configurable behavior
	ResponseText string
	Truncated    bool
	Err          error
	Latency      time.Duration

	// OnSubmit, when set, runs after the response is built and before it
	// is returned. Tests use it to cancel contexts mid-pipeline.
	OnSubmit func()

	Sink telemetry.Sink

	mu       sync.Mutex
	requests []Request
	configs  []Config
}

// NewMockClient creates a mock with a minimal valid reply.
func NewMockClient() *MockClient {
	return &MockClient{ResponseText: "[]"}
}

// Name returns the client identifier.
func (c *MockClient) Name() string { return MockName }

// Submit records the request and returns the configured reply.
func (c *MockClient) Submit(ctx context.Context, req *Request, cfg Config) (*Response, error) {
	c.mu.Lock()
	c.requests = append(c.requests, *req)
	c.configs = append(c.configs, cfg)
	c.mu.Unlock()

	if c.Sink != nil {
		temp := cfg.Temperature
		_ = c.Sink.Annotate(context.WithoutCancel(ctx), telemetry.AnnotationEvent{
			Span:        cfg.Span,
			Model:       cfg.Model,
			Temperature: &temp,
			MaxTokens:   cfg.MaxTokens,
			ImageCount:  len(req.Images),
			SchemaHash:  cfg.SchemaHash,
			Truncated:   c.Truncated,
			Success:     c.Err == nil,
		})
	}

	if c.OnSubmit != nil {
		c.OnSubmit()
	}
	if c.Err != nil {
		return nil, c.Err
	}
	return &Response{
		Text:      c.ResponseText,
		Truncated: c.Truncated,
		Latency:   c.Latency,
		Model:     cfg.Model,
		RequestID: "mock-request",
	}, nil
}

// Requests returns a copy of the recorded requests.
func (c *MockClient) Requests() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Request, len(c.requests))
	copy(out, c.requests)
	return out
}

// Configs returns a copy of the recorded per-call configs.
func (c *MockClient) Configs() []Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Config, len(c.configs))
	copy(out, c.configs)
	return out
}

var _ Client = (*MockClient)(nil)
