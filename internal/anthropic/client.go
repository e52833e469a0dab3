package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/curator/internal/llm"
)

const apiURL = "https://api.anthropic.com/v1/messages"

// defaultMaxTokens is enough for the five-field JSON object curator asks for.
const defaultMaxTokens = 1024

type Client struct {
	apiKey string
	model  string
	url    string
	client *http.Client
	logger *slog.Logger
}

func NewClient(apiKey, model string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey: apiKey,
		model:  model,
		url:    apiURL,
		client: &http.Client{Timeout: 120 * time.Second},
		logger: logger.With("provider", "anthropic"),
	}
}

// SetTestTransport points the client at a test server instead of the public API.
func (c *Client) SetTestTransport(baseURL string) {
	c.url = strings.TrimRight(baseURL, "/") + "/v1/messages"
}

type request struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []llm.Message `json:"messages"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type response struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a message to the Anthropic API and returns the text response.
func (c *Client) Complete(ctx context.Context, system string, messages []llm.Message, maxTokens int) (string, error) {
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	}

	respBody, err := llm.SendJSON(ctx, c.client, c.url, request{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  messages,
	}, headers, c.logger)
	if err != nil {
		var statusErr *llm.StatusError
		if errors.As(err, &statusErr) {
			var errResp errorResponse
			if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
				statusErr.Message = errResp.Error.Type + ": " + errResp.Error.Message
			}
		}
		return "", err
	}

	var apiResp response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("%w: unmarshal response: %v", llm.ErrMalformedResponse, err)
	}

	if len(apiResp.Content) == 0 {
		return "", fmt.Errorf("%w: empty response content", llm.ErrMalformedResponse)
	}

	c.logger.Debug("completion received",
		"stop_reason", apiResp.StopReason,
		"input_tokens", apiResp.Usage.InputTokens,
		"output_tokens", apiResp.Usage.OutputTokens,
	)

	return apiResp.Content[0].Text, nil
}

// CompleteJSON implements llm.Completer with a single user turn.
func (c *Client) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	return c.Complete(ctx, system, []llm.Message{{Role: "user", Content: user}}, defaultMaxTokens)
}
