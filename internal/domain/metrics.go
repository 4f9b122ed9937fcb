package domain

import (
	"fmt"
	"time"
)

// CampaignMetrics is one immutable post-send statistics row for a round.
// Counters are int64 because external counts can exceed 32-bit ranges.
type CampaignMetrics struct {
	ID                 string `json:"id" db:"id"`
	ScheduleID         string `json:"schedule_id" db:"schedule_id"`
	ExternalCampaignID int64  `json:"external_campaign_id" db:"external_campaign_id"`

	Processed    int64 `json:"processed" db:"processed"`
	Delivered    int64 `json:"delivered" db:"delivered"`
	Bounced      int64 `json:"bounced" db:"bounced"`
	HardBounces  int64 `json:"hard_bounces" db:"hard_bounces"`
	SoftBounces  int64 `json:"soft_bounces" db:"soft_bounces"`
	Blocked      int64 `json:"blocked" db:"blocked"`
	Queued       int64 `json:"queued" db:"queued"`
	Opened       int64 `json:"opened" db:"opened"`
	Clicked      int64 `json:"clicked" db:"clicked"`
	Unsubscribed int64 `json:"unsubscribed" db:"unsubscribed"`
	Complained   int64 `json:"complained" db:"complained"`

	// Derived percentages relative to Processed, full precision.
	// OpenRate and ClickRate use Delivered as denominator and are nil
	// exactly when Delivered is zero, never 0 and never NaN.
	DeliveryRate   float64  `json:"delivery_rate" db:"delivery_rate"`
	BounceRate     float64  `json:"bounce_rate" db:"bounce_rate"`
	HardBounceRate float64  `json:"hard_bounce_rate" db:"hard_bounce_rate"`
	SoftBounceRate float64  `json:"soft_bounce_rate" db:"soft_bounce_rate"`
	OpenRate       *float64 `json:"open_rate" db:"open_rate"`
	ClickRate      *float64 `json:"click_rate" db:"click_rate"`

	CollectedAt time.Time  `json:"collected_at" db:"collected_at"`
	SendStartAt *time.Time `json:"send_start_at" db:"send_start_at"`
	SendEndAt   *time.Time `json:"send_end_at" db:"send_end_at"`
}

// DeriveRates recomputes every derived rate from the raw counters.
func (m *CampaignMetrics) DeriveRates() {
	m.DeliveryRate = pct(m.Delivered, m.Processed)
	m.BounceRate = pct(m.Bounced, m.Processed)
	m.HardBounceRate = pct(m.HardBounces, m.Processed)
	m.SoftBounceRate = pct(m.SoftBounces, m.Processed)

	if m.Delivered == 0 {
		m.OpenRate = nil
		m.ClickRate = nil
		return
	}
	or := pct(m.Opened, m.Delivered)
	cr := pct(m.Clicked, m.Delivered)
	m.OpenRate = &or
	m.ClickRate = &cr
}

// Validate checks counter sanity before persisting.
func (m *CampaignMetrics) Validate() error {
	counters := []struct {
		name string
		v    int64
	}{
		{"processed", m.Processed}, {"delivered", m.Delivered},
		{"bounced", m.Bounced}, {"hard_bounces", m.HardBounces},
		{"soft_bounces", m.SoftBounces}, {"blocked", m.Blocked},
		{"queued", m.Queued}, {"opened", m.Opened},
		{"clicked", m.Clicked}, {"unsubscribed", m.Unsubscribed},
		{"complained", m.Complained},
	}
	for _, c := range counters {
		if c.v < 0 {
			return fmt.Errorf("counter %s is negative (%d)", c.name, c.v)
		}
	}
	if m.Delivered+m.Bounced+m.Blocked+m.Queued > m.Processed {
		return fmt.Errorf("delivered+bounced+blocked+queued (%d) exceeds processed (%d)",
			m.Delivered+m.Bounced+m.Blocked+m.Queued, m.Processed)
	}
	return nil
}

func pct(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den) * 100
}
