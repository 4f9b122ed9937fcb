// Package ongage is the mail-platform client. It covers the six operations
// the lifecycle engine needs: draft inspection, readiness verification, list
// statistics, sender reputation, send-now, and detailed post-send statistics.
package ongage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/campaign-pilot/internal/config"
	"github.com/ignite/campaign-pilot/internal/pkg/httpretry"
)

// Client is the Ongage API client.
type Client struct {
	baseURL     string
	username    string
	password    string
	accountCode string
	httpClient  httpretry.HTTPDoer
}

// NewClient creates a new Ongage API client. Transient failures (network,
// 429, 5xx) are retried by the underlying client.
func NewClient(cfg config.OngageConfig) *Client {
	return &Client{
		baseURL:     cfg.BaseURL,
		username:    cfg.Username,
		password:    cfg.Password,
		accountCode: cfg.AccountCode,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, 3),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing).
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// doRequest performs an authenticated request to the Ongage API and returns
// the payload portion of the response envelope.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body interface{}) (json.RawMessage, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X_USERNAME", c.username)
	req.Header.Set("X_PASSWORD", c.password)
	req.Header.Set("X_ACCOUNT_CODE", c.accountCode)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var envelope apiResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("parse response envelope: %w", err)
	}
	if envelope.Metadata.Error {
		return nil, fmt.Errorf("API returned error: %s", string(envelope.Payload))
	}
	return envelope.Payload, nil
}

// GetDraft fetches an email draft by id.
func (c *Client) GetDraft(ctx context.Context, draftID string) (*Draft, error) {
	payload, err := c.doRequest(ctx, http.MethodGet, "/api/emails/"+draftID, nil)
	if err != nil {
		return nil, fmt.Errorf("get draft %s: %w", draftID, err)
	}
	var d Draft
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, fmt.Errorf("parse draft %s: %w", draftID, err)
	}
	return &d, nil
}

// VerifyReadiness runs the platform's pre-send checks against a draft.
func (c *Client) VerifyReadiness(ctx context.Context, draftID string) (*Readiness, error) {
	payload, err := c.doRequest(ctx, http.MethodGet, "/api/emails/"+draftID+"/verify", nil)
	if err != nil {
		return nil, fmt.Errorf("verify readiness %s: %w", draftID, err)
	}
	var r Readiness
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("parse readiness %s: %w", draftID, err)
	}
	return &r, nil
}

// GetListStatistics fetches a point-in-time snapshot for a contact list.
func (c *Client) GetListStatistics(ctx context.Context, listID string) (*ListStats, error) {
	payload, err := c.doRequest(ctx, http.MethodGet, "/api/lists/"+listID+"/statistics", nil)
	if err != nil {
		return nil, fmt.Errorf("get list statistics %s: %w", listID, err)
	}
	var s ListStats
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("parse list statistics %s: %w", listID, err)
	}
	return &s, nil
}

// GetSenderReputation fetches the reputation snapshot for a sender address.
func (c *Client) GetSenderReputation(ctx context.Context, email string) (*Reputation, error) {
	payload, err := c.doRequest(ctx, http.MethodGet, "/api/senders/reputation?email="+email, nil)
	if err != nil {
		return nil, fmt.Errorf("get sender reputation: %w", err)
	}
	var r Reputation
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("parse sender reputation: %w", err)
	}
	return &r, nil
}

// SendCampaignNow instructs the platform to send the campaign immediately.
func (c *Client) SendCampaignNow(ctx context.Context, campaignID int64) (*SendResult, error) {
	payload, err := c.doRequest(ctx, http.MethodPost,
		fmt.Sprintf("/api/mailings/%d/send_now", campaignID), map[string]interface{}{})
	if err != nil {
		return nil, fmt.Errorf("send campaign %d: %w", campaignID, err)
	}
	var raw struct {
		MessageID   string    `json:"message_id"`
		QueuedCount FlexInt64 `json:"queued"`
		SendStartAt string    `json:"sending_start_date"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("parse send result %d: %w", campaignID, err)
	}
	result := &SendResult{
		CampaignID:  campaignID,
		MessageID:   raw.MessageID,
		QueuedCount: raw.QueuedCount.Int64(),
		SendStartAt: parsePlatformTime(raw.SendStartAt),
	}
	return result, nil
}

// GetDetailedStatistics fetches the raw post-send counters for a campaign.
func (c *Client) GetDetailedStatistics(ctx context.Context, campaignID int64) (*DetailedStats, error) {
	payload, err := c.doRequest(ctx, http.MethodGet,
		fmt.Sprintf("/api/mailings/%d/statistics", campaignID), nil)
	if err != nil {
		return nil, fmt.Errorf("get statistics %d: %w", campaignID, err)
	}
	var s DetailedStats
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("parse statistics %d: %w", campaignID, err)
	}
	return &s, nil
}

// parsePlatformTime parses the platform's timestamp format, falling back to
// the zero time on malformed input.
func parsePlatformTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
