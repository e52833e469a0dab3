package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/curator/internal/submit"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger.With("component", "slack"),
	}
}

// Submit posts the listing and threads the raw row beneath it. It satisfies
// submit.Submitter.
func (p *Poster) Submit(ctx context.Context, sub submit.Submission) error {
	ts, err := p.PostSubmission(ctx, sub)
	if err != nil {
		return err
	}
	if err := p.PostThread(ctx, ts, "Raw row: `"+sub.RawText+"`"); err != nil {
		p.logger.Warn("failed to post raw row thread", "row_id", sub.RowID, "error", err)
	}
	return nil
}

// PostSubmission posts a reviewed listing. Returns the message timestamp.
func (p *Poster) PostSubmission(ctx context.Context, sub submit.Submission) (string, error) {
	text := formatSubmissionMessage(sub)

	ts, err := p.post(ctx, map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": fmt.Sprintf("row %d | %s", sub.Index+1, sub.RowID),
					},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}

	p.logger.Info("posted submission to slack", "ts", ts, "row_id", sub.RowID)
	return ts, nil
}

// PostThread posts a threaded reply to a message.
func (p *Poster) PostThread(ctx context.Context, threadTS, text string) error {
	_, err := p.post(ctx, map[string]any{
		"channel":   p.channel,
		"thread_ts": threadTS,
		"text":      text,
	})
	return err
}

func (p *Poster) post(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}
	return slackResp.TS, nil
}

func formatSubmissionMessage(sub submit.Submission) string {
	var sb strings.Builder
	f := sub.Fields

	title := strings.TrimSpace(strings.Join([]string{f.Year, f.Make, f.Model}, " "))
	if title == "" {
		title = "_Unidentified vehicle_"
	}
	fmt.Fprintf(&sb, "*%s*\n", title)

	if f.Color != "" {
		fmt.Fprintf(&sb, "Color: %s\n", f.Color)
	}
	if f.Condition != "" {
		fmt.Fprintf(&sb, "Condition: %s\n", f.Condition)
	}
	fmt.Fprintf(&sb, "Submitted: %s", sub.SubmittedAt.UTC().Format(time.RFC3339))
	return sb.String()
}
