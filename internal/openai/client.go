// Package openai talks to any OpenAI-compatible chat/completions endpoint.
// The defaults target Groq.
package openai

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

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama-3.1-8b-instant"
)

// Config for the client. Zero values fall back to the defaults above.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.With("provider", "openai", "model", cfg.Model),
	}
}

type chatRequest struct {
	Model          string         `json:"model"`
	Temperature    float32        `json:"temperature"`
	Messages       []llm.Message  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// CompleteJSON implements llm.Completer using json_object response format.
func (c *Client) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	body := chatRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: responseFormat{Type: "json_object"},
	}

	headers := map[string]string{}
	if c.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + c.cfg.APIKey
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		var statusErr *llm.StatusError
		if errors.As(err, &statusErr) {
			var cr chatResponse
			if json.Unmarshal(raw, &cr) == nil && cr.Error != nil && cr.Error.Message != "" {
				statusErr.Message = cr.Error.Message
			}
		}
		return "", err
	}

	if strings.TrimSpace(string(raw)) == "" {
		return "", fmt.Errorf("%w: empty response from api", llm.ErrMalformedResponse)
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return "", fmt.Errorf("%w: decode chat response: %v", llm.ErrMalformedResponse, err)
	}
	if cr.Error != nil {
		msg := cr.Error.Message
		if msg == "" {
			msg = "provider error"
		}
		return "", errors.New(msg)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", llm.ErrMalformedResponse)
	}

	content := strings.TrimSpace(cr.Choices[0].Message.Content)
	if content == "" {
		content = "{}"
	}
	return content, nil
}
