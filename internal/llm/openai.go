package llm

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient is the alternate gateway backend using the OpenAI chat
// completions API. It applies the same retry policy as the Gemini client:
// exponential backoff on rate-limit responses, bounded attempts.
type OpenAIClient struct {
	client      *openai.Client
	baseURL     string
	model       string
	maxAttempts int
	sleep       func(time.Duration)
	log         zerolog.Logger
}

// OpenAIOption customises an OpenAIClient.
type OpenAIOption func(*OpenAIClient)

// WithOpenAIBaseURL points the client at a compatible endpoint. The API
// key passed to NewOpenAIClient is kept.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(c *OpenAIClient) { c.baseURL = url }
}

// WithOpenAIMaxAttempts overrides the retry budget.
func WithOpenAIMaxAttempts(n int) OpenAIOption {
	return func(c *OpenAIClient) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithOpenAISleep replaces the backoff sleep function (used by tests).
func WithOpenAISleep(fn func(time.Duration)) OpenAIOption {
	return func(c *OpenAIClient) { c.sleep = fn }
}

// NewOpenAIClient constructs an OpenAI-backed gateway.
func NewOpenAIClient(apiKey, model string, log zerolog.Logger, opts ...OpenAIOption) *OpenAIClient {
	c := &OpenAIClient{
		model:       model,
		maxAttempts: 5,
		sleep:       time.Sleep,
		log:         log.With().Str("component", "openai").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	cfg := openai.DefaultConfig(apiKey)
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	c.client = openai.NewClientWithConfig(cfg)
	return c
}

// Generate implements Client over chat completions. The system instruction
// becomes the leading system message; jsonMode requests the JSON object
// response format.
func (c *OpenAIClient) Generate(ctx context.Context, system string, history []Message, jsonMode bool) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: 0.2,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", &GatewayError{Body: "empty choices"}
			}
			return resp.Choices[0].Message.Content, nil
		}
		lastErr = err
		if attempt == c.maxAttempts-1 {
			break
		}
		apiErr := &openai.APIError{}
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 && apiErr.HTTPStatusCode != 429 {
			return "", &GatewayError{Status: apiErr.HTTPStatusCode, Body: apiErr.Message, Err: err}
		}
		delay := time.Duration(1<<uint(attempt)) * time.Second
		c.log.Warn().Int("attempt", attempt+1).Dur("delay", delay).Err(err).Msg("request failed, backing off")
		c.sleep(delay)
		if ctx.Err() != nil {
			return "", &GatewayError{Err: ctx.Err()}
		}
	}
	return "", &GatewayError{Err: lastErr}
}
