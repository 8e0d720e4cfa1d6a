// Package genai wraps the OpenAI-compatible chat completion backend used for
// every decision step of the reservation assistant.
//
// The gateway is stateless: one request, one response, no retries and no
// caching. Transport, auth and quota failures surface as *ServiceError so the
// session layer can abort with a clear message instead of a stack trace.
package genai

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default backend configuration, matching the OpenAI-compatible
// SenseNova endpoint the assistant was built against.
const (
	DefaultBaseURL     = "https://api.sensenova.cn/compatible-mode/v1/"
	DefaultModel       = "DeepSeek-V3"
	DefaultTemperature = 0.7
)

// ErrNoChoicesReturned indicates the backend answered without any completion.
var ErrNoChoicesReturned = errors.New("no choices returned")

// ServiceError wraps a completion backend failure. It is session-fatal for
// the caller but never swallowed at the decision-step layer.
type ServiceError struct {
	Op    string
	Cause error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("completion service failed during %s: %v", e.Op, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

// chatService defines the minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// ClientInterface abstracts the completion gateway for the conversation
// engine and its tests.
type ClientInterface interface {
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
	GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Opts holds configuration for the gateway client.
type Opts struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
}

// Option configures the gateway client.
type Option func(*Opts)

// WithAPIKey sets the API key for the completion backend.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL points the client at an alternative OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithModel selects the completion model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// Client is the completion gateway used by the conversation engine.
type Client struct {
	chat        chatService
	model       string
	temperature float64
}

// NewClient initializes a gateway client. The API key comes from options or
// falls back to OPENAI_API_KEY; a missing key is a configuration error.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		BaseURL:     DefaultBaseURL,
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	cli := openai.NewClient(reqOpts...)
	return &Client{
		chat:        &cli.Chat.Completions,
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

// GenerateWithMessages sends the full role-tagged message sequence and
// returns the model's text completion.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(c.temperature),
	})
	if err != nil {
		return "", &ServiceError{Op: "chat completion", Cause: err}
	}
	if len(resp.Choices) == 0 {
		return "", &ServiceError{Op: "chat completion", Cause: ErrNoChoicesReturned}
	}
	return resp.Choices[0].Message.Content, nil
}

// GeneratePrompt is a convenience for the common system+user prompt pair.
func (c *Client) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.GenerateWithMessages(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(userPrompt),
	})
}
