package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/krittin/tallyscan/internal/telemetry"
)

const OpenAIName = "openai"

// OpenAIConfig holds configuration for the hosted-model client.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string        // Optional (proxies, tests)
	Timeout    time.Duration // Per-call HTTP timeout
	HTTPClient *http.Client  // Optional (tests)
	Sink       telemetry.Sink
	Logger     *slog.Logger
}

// OpenAIClient implements Client using the official OpenAI SDK. The SDK's
// transport retries are disabled: one Submit is exactly one model call.
type OpenAIClient struct {
	client openai.Client
	sink   telemetry.Sink
	logger *slog.Logger
}

// NewOpenAIClient creates a gateway client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 180 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		client: openai.NewClient(opts...),
		sink:   cfg.Sink,
		logger: cfg.Logger,
	}
}

// Name returns the client identifier.
func (c *OpenAIClient) Name() string {
	return OpenAIName
}

// Submit sends the assembled prompt as a single multimodal chat completion.
func (c *OpenAIClient) Submit(ctx context.Context, req *Request, cfg Config) (*Response, error) {
	start := time.Now()

	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(req.Images)+1)
	parts = append(parts, openai.TextContentPart(req.Instructions))
	for _, img := range req.Images {
		mime := img.MIME
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
		}))
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(parts),
		},
		Temperature: openai.Float(cfg.Temperature),
		MaxTokens:   openai.Int(int64(cfg.MaxTokens)),
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	elapsed := time.Since(start)

	if err != nil {
		mapped := mapProviderError(err, cfg.Model, elapsed)
		c.annotate(ctx, req, cfg, nil, elapsed, mapped)
		return nil, mapped
	}
	if len(completion.Choices) == 0 {
		mapped := &UnavailableError{Message: "no choices in completion"}
		c.annotate(ctx, req, cfg, nil, elapsed, mapped)
		return nil, mapped
	}

	choice := completion.Choices[0]
	resp := &Response{
		Text:             choice.Message.Content,
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
		TotalTokens:      int(completion.Usage.TotalTokens),
		Latency:          elapsed,
		Model:            completion.Model,
		RequestID:        completion.ID,
	}
	resp.Truncated = detectTruncation(resp.Text, string(choice.FinishReason), resp.CompletionTokens, cfg.MaxTokens)

	c.annotate(ctx, req, cfg, resp, elapsed, nil)
	return resp, nil
}

// annotate emits the usage/timing event. Observability only: a sink failure
// is logged and never surfaces to the caller.
func (c *OpenAIClient) annotate(ctx context.Context, req *Request, cfg Config, resp *Response, elapsed time.Duration, callErr error) {
	if c.sink == nil {
		return
	}

	temp := cfg.Temperature
	ev := telemetry.AnnotationEvent{
		Span:        cfg.Span,
		Model:       cfg.Model,
		Temperature: &temp,
		MaxTokens:   cfg.MaxTokens,
		ImageCount:  len(req.Images),
		SchemaHash:  cfg.SchemaHash,
		LatencyMs:   int(elapsed.Milliseconds()),
		Success:     callErr == nil,
	}
	if resp != nil {
		ev.PromptTokens = resp.PromptTokens
		ev.CompletionTokens = resp.CompletionTokens
		ev.TotalTokens = resp.TotalTokens
		ev.Truncated = resp.Truncated
	}
	if callErr != nil {
		ev.Error = callErr.Error()
	}

	// The event still has value when the caller has gone away.
	if err := c.sink.Annotate(context.WithoutCancel(ctx), ev); err != nil {
		c.logger.Warn("failed to deliver annotation event",
			"error", err,
			"operation_id", fmt.Sprint(cfg.Span.OperationID))
	}
}

var _ Client = (*OpenAIClient)(nil)
