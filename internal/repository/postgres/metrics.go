package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/campaign-pilot/internal/domain"
)

const metricsColumns = `
	m.id, m.schedule_id, m.external_campaign_id,
	m.processed, m.delivered, m.bounced, m.hard_bounces, m.soft_bounces,
	m.blocked, m.queued, m.opened, m.clicked, m.unsubscribed, m.complained,
	m.delivery_rate, m.bounce_rate, m.hard_bounce_rate, m.soft_bounce_rate,
	m.open_rate, m.click_rate,
	m.collected_at, m.send_start_at, m.send_end_at`

// AppendMetrics stores one immutable metrics snapshot. Rows are never
// updated; each collection appends a new row and readers take the latest.
func (s *Store) AppendMetrics(ctx context.Context, m *domain.CampaignMetrics) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid metrics: %w", err)
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campaign_metrics
			(id, schedule_id, external_campaign_id,
			 processed, delivered, bounced, hard_bounces, soft_bounces,
			 blocked, queued, opened, clicked, unsubscribed, complained,
			 delivery_rate, bounce_rate, hard_bounce_rate, soft_bounce_rate,
			 open_rate, click_rate, collected_at, send_start_at, send_end_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`, m.ID, m.ScheduleID, m.ExternalCampaignID,
		m.Processed, m.Delivered, m.Bounced, m.HardBounces, m.SoftBounces,
		m.Blocked, m.Queued, m.Opened, m.Clicked, m.Unsubscribed, m.Complained,
		m.DeliveryRate, m.BounceRate, m.HardBounceRate, m.SoftBounceRate,
		m.OpenRate, m.ClickRate, m.CollectedAt.UTC(), m.SendStartAt, m.SendEndAt)
	if err != nil {
		return fmt.Errorf("append metrics: %w", err)
	}
	return nil
}

// LatestMetrics returns the most recent metrics snapshot for a campaign
// round, or domain.ErrNoMetrics when the round has none (not launched, or
// collection never succeeded).
func (s *Store) LatestMetrics(ctx context.Context, campaignName string, round int) (*domain.CampaignMetrics, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+metricsColumns+`
		FROM campaign_metrics m
		JOIN campaign_schedules cs ON cs.id = m.schedule_id
		WHERE cs.campaign_name = $1 AND cs.round_number = $2
		ORDER BY m.collected_at DESC
		LIMIT 1
	`, campaignName, round)
	return scanMetrics(row)
}

// MetricsForSchedule returns the most recent metrics snapshot for a
// schedule, or domain.ErrNoMetrics.
func (s *Store) MetricsForSchedule(ctx context.Context, scheduleID string) (*domain.CampaignMetrics, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+metricsColumns+`
		FROM campaign_metrics m
		WHERE m.schedule_id = $1
		ORDER BY m.collected_at DESC
		LIMIT 1
	`, scheduleID)
	return scanMetrics(row)
}

func scanMetrics(row rowScanner) (*domain.CampaignMetrics, error) {
	m := &domain.CampaignMetrics{}
	var openRate, clickRate sql.NullFloat64
	var sendStart, sendEnd sql.NullTime

	err := row.Scan(
		&m.ID, &m.ScheduleID, &m.ExternalCampaignID,
		&m.Processed, &m.Delivered, &m.Bounced, &m.HardBounces, &m.SoftBounces,
		&m.Blocked, &m.Queued, &m.Opened, &m.Clicked, &m.Unsubscribed, &m.Complained,
		&m.DeliveryRate, &m.BounceRate, &m.HardBounceRate, &m.SoftBounceRate,
		&openRate, &clickRate, &m.CollectedAt, &sendStart, &sendEnd,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNoMetrics
	}
	if err != nil {
		return nil, fmt.Errorf("scan metrics: %w", err)
	}

	if openRate.Valid {
		m.OpenRate = &openRate.Float64
	}
	if clickRate.Valid {
		m.ClickRate = &clickRate.Float64
	}
	if sendStart.Valid {
		t := sendStart.Time.UTC()
		m.SendStartAt = &t
	}
	if sendEnd.Valid {
		t := sendEnd.Time.UTC()
		m.SendEndAt = &t
	}
	return m, nil
}
