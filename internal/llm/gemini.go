package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient calls the Gemini generateContent REST API. The retry policy
// is fixed: up to maxAttempts tries, sleeping 2^attempt seconds after a 429
// response. Any other non-success status fails immediately; transport
// errors are retried until the final attempt.
type GeminiClient struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	maxAttempts int
	sleep       func(time.Duration)
	log         zerolog.Logger
}

// GeminiOption customises a GeminiClient.
type GeminiOption func(*GeminiClient)

// WithGeminiBaseURL overrides the API base URL (used by tests).
func WithGeminiBaseURL(url string) GeminiOption {
	return func(c *GeminiClient) { c.baseURL = url }
}

// WithGeminiHTTPClient overrides the underlying HTTP client.
func WithGeminiHTTPClient(hc *http.Client) GeminiOption {
	return func(c *GeminiClient) { c.httpClient = hc }
}

// WithGeminiMaxAttempts overrides the retry budget.
func WithGeminiMaxAttempts(n int) GeminiOption {
	return func(c *GeminiClient) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithGeminiSleep replaces the backoff sleep function (used by tests).
func WithGeminiSleep(fn func(time.Duration)) GeminiOption {
	return func(c *GeminiClient) { c.sleep = fn }
}

// NewGeminiClient constructs a Gemini-backed gateway for the given API key
// and model name.
func NewGeminiClient(apiKey, model string, log zerolog.Logger, opts ...GeminiOption) *GeminiClient {
	c := &GeminiClient{
		httpClient:  http.DefaultClient,
		baseURL:     defaultGeminiBaseURL,
		apiKey:      apiKey,
		model:       model,
		maxAttempts: 5,
		sleep:       time.Sleep,
		log:         log.With().Str("component", "gemini").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Model             string                  `json:"model"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate implements Client against the generateContent endpoint.
func (c *GeminiClient) Generate(ctx context.Context, system string, history []Message, jsonMode bool) (string, error) {
	req := geminiRequest{
		Contents:          toGeminiContents(history),
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: system}}},
		Model:             c.model,
	}
	if jsonMode {
		req.GenerationConfig = &geminiGenerationConfig{ResponseMimeType: "application/json"}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		text, retry, err := c.do(ctx, url, body)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retry {
			return "", err
		}
		if attempt == c.maxAttempts-1 {
			break
		}
		var ge *GatewayError
		if errors.As(err, &ge) && ge.Status == http.StatusTooManyRequests {
			delay := time.Duration(1<<uint(attempt)) * time.Second
			c.log.Warn().Int("attempt", attempt+1).Dur("delay", delay).Msg("rate limited, backing off")
			c.sleep(delay)
		} else {
			c.log.Warn().Int("attempt", attempt+1).Err(err).Msg("transport error, retrying")
		}
		if ctx.Err() != nil {
			return "", &GatewayError{Err: ctx.Err()}
		}
	}
	return "", fmt.Errorf("gemini call failed after %d attempts: %w", c.maxAttempts, lastErr)
}

// do performs one POST. retry reports whether the failure is retryable
// (429 or a transport error).
func (c *GeminiClient) do(ctx context.Context, url string, body []byte) (text string, retry bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", false, &GatewayError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", true, &GatewayError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, &GatewayError{Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var gr geminiResponse
		if err := json.Unmarshal(respBody, &gr); err != nil {
			return "", false, &GatewayError{Status: resp.StatusCode, Body: string(respBody), Err: err}
		}
		if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
			return "", false, &GatewayError{Status: resp.StatusCode, Body: "empty candidates"}
		}
		return gr.Candidates[0].Content.Parts[0].Text, false, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", true, &GatewayError{Status: resp.StatusCode, Body: string(respBody)}
	default:
		return "", false, &GatewayError{Status: resp.StatusCode, Body: string(respBody)}
	}
}

func toGeminiContents(history []Message) []geminiContent {
	contents := make([]geminiContent, 0, len(history))
	for _, m := range history {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}
	return contents
}
