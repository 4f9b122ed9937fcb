// Package slack posts stage notifications to a chat channel using the
// chat.postMessage block API.
//
// The client does not retry on its own: the notifier owns the retry loop so
// every attempt is visible in the notification log. PostError carries the
// retryable/fatal classification (network and 5xx retry; validation, auth,
// and other 4xx do not).
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ignite/campaign-pilot/internal/config"
	"github.com/ignite/campaign-pilot/internal/pkg/httpretry"
)

// Block is one Slack Block Kit block. Only the fields the renderers use.
type Block struct {
	Type   string   `json:"type"`
	Text   *Text    `json:"text,omitempty"`
	Fields []Text   `json:"fields,omitempty"`
}

// Text is a Block Kit text object.
type Text struct {
	Type string `json:"type"` // "mrkdwn" or "plain_text"
	Text string `json:"text"`
}

// Header builds a plain-text header block.
func Header(text string) Block {
	return Block{Type: "header", Text: &Text{Type: "plain_text", Text: text}}
}

// Section builds a mrkdwn section block.
func Section(text string) Block {
	return Block{Type: "section", Text: &Text{Type: "mrkdwn", Text: text}}
}

// FieldSection builds a section block with a field grid.
func FieldSection(fields ...Text) Block {
	return Block{Type: "section", Fields: fields}
}

// Divider builds a divider block.
func Divider() Block {
	return Block{Type: "divider"}
}

// PostResult is the chat service's acknowledgement of a posted message.
type PostResult struct {
	MessageID string // the service's message timestamp, used as message id
	Channel   string
}

// PostError describes a failed post with its retry classification.
type PostError struct {
	StatusCode int
	APIError   string
	Retryable  bool
	Err        error
}

func (e *PostError) Error() string {
	if e.APIError != "" {
		return fmt.Sprintf("slack: post failed: %s (status %d)", e.APIError, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("slack: post failed: %v", e.Err)
	}
	return fmt.Sprintf("slack: post failed (status %d)", e.StatusCode)
}

func (e *PostError) Unwrap() error { return e.Err }

// Client posts messages to Slack.
type Client struct {
	baseURL    string
	token      string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a Slack client.
func NewClient(cfg config.SlackConfig) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		token:      cfg.BotToken,
		httpClient: &http.Client{Timeout: cfg.Timeout()},
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing).
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

type postMessageRequest struct {
	Channel string  `json:"channel"`
	Blocks  []Block `json:"blocks,omitempty"`
	Text    string  `json:"text"` // fallback text for notifications
}

type postMessageResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Channel string `json:"channel,omitempty"`
	TS      string `json:"ts,omitempty"`
}

// PostMessage posts blocks to a channel. The fallback text shows in
// notifications and clients that cannot render blocks.
func (c *Client) PostMessage(ctx context.Context, channel string, blocks []Block, fallback string) (*PostResult, error) {
	body, err := json.Marshal(postMessageRequest{
		Channel: channel,
		Blocks:  blocks,
		Text:    fallback,
	})
	if err != nil {
		return nil, &PostError{Retryable: false, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat.postMessage", bytes.NewReader(body))
	if err != nil {
		return nil, &PostError{Retryable: false, Err: err}
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network or timeout error, retryable.
		return nil, &PostError{Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &PostError{Retryable: true, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &PostError{
			StatusCode: resp.StatusCode,
			Retryable:  httpretry.IsRetryableStatus(resp.StatusCode),
			Err:        fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var parsed postMessageResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &PostError{StatusCode: resp.StatusCode, Retryable: false, Err: fmt.Errorf("parse response: %w", err)}
	}
	if !parsed.OK {
		// Slack returns 200 with ok=false for validation/auth problems.
		return nil, &PostError{StatusCode: resp.StatusCode, APIError: parsed.Error, Retryable: false}
	}

	return &PostResult{MessageID: parsed.TS, Channel: parsed.Channel}, nil
}

// Retryable reports whether err is a retryable post failure. Unknown errors
// are treated as retryable (network-level failures usually surface as plain
// errors from the transport).
func Retryable(err error) bool {
	var pe *PostError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return true
}
