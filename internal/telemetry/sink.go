package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
)

// Sink accepts annotation and evaluation events.
type Sink interface {
	Annotate(ctx context.Context, ev AnnotationEvent) error
	Evaluate(ctx context.Context, ev EvaluationEvent) error
}

// HTTPSinkConfig holds configuration for the hosted sink client.
type HTTPSinkConfig struct {
	BaseURL    string
	APIKey     string
	Project    string
	Timeout    time.Duration
	MaxRetries uint
	HTTPClient *http.Client // Optional (tests)
}

// HTTPSink delivers events to the telemetry backend over HTTP. Delivery is
// retried with backoff; a duplicate caused by a retried accept simply shows
// up as an extra event, which the sink contract allows.
type HTTPSink struct {
	baseURL    string
	apiKey     string
	project    string
	maxRetries uint
	client     *http.Client
}

// NewHTTPSink creates a sink client.
func NewHTTPSink(cfg HTTPSinkConfig) *HTTPSink {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPSink{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		project:    cfg.Project,
		maxRetries: cfg.MaxRetries,
		client:     client,
	}
}

// Annotate sends a usage/timing annotation event.
func (s *HTTPSink) Annotate(ctx context.Context, ev AnnotationEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	return s.send(ctx, "/v1/annotations", ev)
}

// Evaluate sends an evaluation event.
func (s *HTTPSink) Evaluate(ctx context.Context, ev EvaluationEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	return s.send(ctx, "/v1/evaluations", ev)
}

func (s *HTTPSink) send(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return retry.Do(
		func() error { return s.post(ctx, path, body) },
		retry.Context(ctx),
		retry.Attempts(s.maxRetries),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

func (s *HTTPSink) post(ctx context.Context, path string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	if s.project != "" {
		req.Header.Set("X-Project", s.project)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sink request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	err = fmt.Errorf("sink rejected event (status %d): %s", resp.StatusCode, string(msg))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return retry.Unrecoverable(err)
	}
	return err
}

var _ Sink = (*HTTPSink)(nil)
