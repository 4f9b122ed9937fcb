package ongage

import (
	"encoding/json"
	"fmt"
	"time"
)

// FlexInt64 unmarshals from both string and number JSON values. The Ongage
// API is inconsistent about numeric fields.
type FlexInt64 int64

// UnmarshalJSON implements json.Unmarshaler for FlexInt64.
func (f *FlexInt64) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		v, convErr := n.Int64()
		if convErr != nil {
			return fmt.Errorf("FlexInt64: %w", convErr)
		}
		*f = FlexInt64(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			*f = 0
			return nil
		}
		var v int64
		if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
			return fmt.Errorf("FlexInt64: cannot parse %q", s)
		}
		*f = FlexInt64(v)
		return nil
	}
	return fmt.Errorf("FlexInt64: cannot unmarshal %s", string(data))
}

// Int64 returns the numeric value.
func (f FlexInt64) Int64() int64 { return int64(f) }

// apiResponse is the envelope every Ongage endpoint returns.
type apiResponse struct {
	Metadata struct {
		Error bool `json:"error"`
	} `json:"metadata"`
	Payload json.RawMessage `json:"payload"`
}

// Draft is a mail-platform email draft.
type Draft struct {
	ID          FlexInt64 `json:"id"`
	Name        string    `json:"name"`
	Subject     string    `json:"subject"`
	FromName    string    `json:"from_name"`
	FromEmail   string    `json:"from_email"`
	ListID      string    `json:"list_id"`
	HTMLContent string    `json:"html_content"`
	Status      string    `json:"status_desc"`
}

// SendResult is the outcome of instructing the platform to send now.
type SendResult struct {
	CampaignID  int64
	MessageID   string
	QueuedCount int64
	SendStartAt time.Time
}

// ReadinessCheck names the individual checks VerifyReadiness evaluates.
type ReadinessCheck string

const (
	CheckHasSubject   ReadinessCheck = "has_subject"
	CheckHasSender    ReadinessCheck = "has_sender"
	CheckHasList      ReadinessCheck = "has_list"
	CheckHasContent   ReadinessCheck = "has_content"
	CheckListNonEmpty ReadinessCheck = "list_non_empty"
	CheckNoBlocked    ReadinessCheck = "no_blocked"
)

// Issue is one readiness problem, severity "error" or "warning".
type Issue struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// Readiness is the platform's pre-send verification result.
type Readiness struct {
	IsReady bool                    `json:"is_ready"`
	Checks  map[ReadinessCheck]bool `json:"checks"`
	Issues  []Issue                 `json:"issues"`
}

// ListStats is a point-in-time snapshot of a contact list.
type ListStats struct {
	Total         int64 `json:"total"`
	Subscribed    int64 `json:"subscribed"`
	Unsubscribed  int64 `json:"unsubscribed"`
	Blocked       int64 `json:"blocked"`
	RecentBounces int64 `json:"recent_bounces"`
}

// Reputation is the sender-reputation snapshot for a from address.
type Reputation struct {
	Score float64 `json:"score"`
	Trend string  `json:"trend"`
}

// DetailedStats carries the raw post-send counters for a campaign.
type DetailedStats struct {
	Processed    FlexInt64 `json:"processed"`
	Delivered    FlexInt64 `json:"delivered"`
	Bounced      FlexInt64 `json:"bounced"`
	HardBounces  FlexInt64 `json:"hard_bounces"`
	SoftBounces  FlexInt64 `json:"soft_bounces"`
	Blocked      FlexInt64 `json:"blocked"`
	Queued       FlexInt64 `json:"queued"`
	Opened       FlexInt64 `json:"opened"`
	Clicked      FlexInt64 `json:"clicked"`
	Unsubscribed FlexInt64 `json:"unsubscribes"`
	Complained   FlexInt64 `json:"complaints"`
	SendStartAt  string    `json:"sending_start_date"`
	SendEndAt    string    `json:"sending_end_date"`
}

// SendWindow parses the send start/end timestamps. Either value is nil when
// absent or malformed.
func (d *DetailedStats) SendWindow() (start, end *time.Time) {
	if t := parsePlatformTime(d.SendStartAt); !t.IsZero() {
		start = &t
	}
	if t := parsePlatformTime(d.SendEndAt); !t.IsZero() {
		end = &t
	}
	return start, end
}
