// Package llm provides OpenAI-compatible LLM client functionality.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-canvas/pkg/logging"
)

// requestIDHeader carries the pipeline request id to the provider so that
// provider-side logs can be correlated with ours.
const requestIDHeader = "X-Request-Id"

// Client provides access to OpenAI-compatible chat completion endpoints.
type Client struct {
	client   *openai.Client
	endpoint string
	model    string
	logger   *zap.Logger
}

// Config holds configuration for creating an LLM client.
type Config struct {
	Endpoint   string       // Base URL, e.g., "https://api.openai.com/v1"
	Model      string       // Model name, e.g., "gpt-4o"
	APIKey     string       // Optional for local endpoints
	HTTPClient *http.Client // Optional; defaults to a client without a global timeout
}

// GenerateResponseResult is a completed chat response with usage stats.
type GenerateResponseResult struct {
	Content          string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// WasTruncated reports whether the model stopped because it hit max_tokens.
func (r *GenerateResponseResult) WasTruncated() bool {
	return r.FinishReason == string(openai.FinishReasonLength)
}

// ImageInput is an inline image attachment sent as a data URL.
type ImageInput struct {
	Base64   string
	MimeType string
}

// DataURL returns the attachment encoded as a data URL.
func (i *ImageInput) DataURL() string {
	return "data:" + i.MimeType + ";base64," + i.Base64
}

// NewClient creates a new OpenAI-compatible LLM client.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// Per-call deadlines come from the caller's context.
		httpClient = &http.Client{}
	}
	base := httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped := *httpClient
	wrapped.Transport = &contextAwareTransport{base: base}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	clientConfig.HTTPClient = &wrapped

	return &Client{
		client:   openai.NewClientWithConfig(clientConfig),
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		logger:   logger.Named("llm"),
	}, nil
}

// GenerateResponse generates a chat completion for a text prompt.
func (c *Client) GenerateResponse(
	ctx context.Context,
	prompt string,
	systemMessage string,
	temperature float64,
	maxTokens int,
) (*GenerateResponseResult, error) {
	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt}
	return c.complete(ctx, systemMessage, user, temperature, maxTokens, len(prompt), false)
}

// GenerateWithImage generates a chat completion whose user turn carries a
// short instruction plus an inline image. The model does the visual analysis.
func (c *Client) GenerateWithImage(
	ctx context.Context,
	prompt string,
	image *ImageInput,
	systemMessage string,
	temperature float64,
	maxTokens int,
) (*GenerateResponseResult, error) {
	if image == nil || image.Base64 == "" {
		return nil, NewError(ErrorTypeUnknown, "image attachment is empty", false, nil)
	}

	user := openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: prompt},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    image.DataURL(),
					Detail: openai.ImageURLDetailHigh,
				},
			},
		},
	}
	return c.complete(ctx, systemMessage, user, temperature, maxTokens, len(prompt)+len(image.Base64), true)
}

func (c *Client) complete(
	ctx context.Context,
	systemMessage string,
	user openai.ChatCompletionMessage,
	temperature float64,
	maxTokens int,
	promptLen int,
	hasImage bool,
) (*GenerateResponseResult, error) {
	meta := GetContext(ctx)

	c.logger.Debug("LLM request",
		zap.String("model", c.model),
		zap.Any("context", meta),
		zap.Int("prompt_len", promptLen),
		zap.Bool("has_image", hasImage),
		zap.Float64("temperature", temperature),
		zap.Int("max_tokens", maxTokens))

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
			user,
		},
		Temperature: float32(temperature),
		MaxTokens:   maxTokens,
	})
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Any("context", meta),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, c.parseError(ctx, err)
	}

	if len(resp.Choices) == 0 {
		return nil, NewErrorWithContext(ErrorTypeUnknown, "no choices in response", false, nil, c.model, c.endpoint, 0)
	}

	choice := resp.Choices[0]
	elapsed := time.Since(start)

	c.logger.Info("LLM request completed",
		zap.Any("context", meta),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.String("finish_reason", string(choice.FinishReason)),
		zap.Duration("elapsed", elapsed))

	return &GenerateResponseResult{
		Content:          choice.Message.Content,
		FinishReason:     string(choice.FinishReason),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

// GetModel returns the configured model name.
func (c *Client) GetModel() string {
	return c.model
}

// GetEndpoint returns the configured endpoint.
func (c *Client) GetEndpoint() string {
	return c.endpoint
}

// parseError categorizes OpenAI API errors using the structured Error type.
// A context that expired or was cancelled wins over whatever the transport reported.
func (c *Client) parseError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return NewErrorWithContext(ErrorTypeTimeout, "request timeout", true, err, c.model, c.endpoint, 0)
	}
	llmErr := ClassifyError(err)
	if llmErr.Model == "" {
		llmErr.Model = c.model
	}
	if llmErr.Endpoint == "" {
		llmErr.Endpoint = c.endpoint
	}
	return llmErr
}

// contextAwareTransport copies the request id from the context onto outgoing requests.
type contextAwareTransport struct {
	base http.RoundTripper
}

func (t *contextAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if id := RequestIDFromContext(req.Context()); id != "" {
		req = req.Clone(req.Context())
		req.Header.Set(requestIDHeader, id)
	}
	return t.base.RoundTrip(req)
}
