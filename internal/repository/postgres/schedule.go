package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-pilot/internal/domain"
)

const scheduleColumns = `
	id, campaign_name, round_number, scheduled_date, scheduled_time,
	list_name, external_list_id, recipient_count, recipient_range,
	subject, sender_name, sender_email, external_draft_id,
	external_campaign_id, notification_status, status, created_at, updated_at`

// CreateSchedules inserts all rounds of a campaign in one transaction.
// Either every round is persisted or none is. Returns
// domain.ErrDuplicateSchedule when any (campaign_name, round_number)
// already exists.
func (s *Store) CreateSchedules(ctx context.Context, schedules []*domain.CampaignSchedule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create schedules: %w", err)
	}
	defer tx.Rollback()

	for _, sched := range schedules {
		if sched.ID == "" {
			sched.ID = uuid.New().String()
		}
		notifJSON, err := json.Marshal(sched.Notifications)
		if err != nil {
			return fmt.Errorf("marshal notification status: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO campaign_schedules
				(id, campaign_name, round_number, scheduled_date, scheduled_time,
				 list_name, external_list_id, recipient_count, recipient_range,
				 subject, sender_name, sender_email, external_draft_id,
				 notification_status, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
		`, sched.ID, sched.CampaignName, sched.RoundNumber, sched.ScheduledDate.UTC(),
			sched.ScheduledTime, sched.ListName, sched.ExternalListID,
			sched.RecipientCount, sched.RecipientRange, sched.Subject,
			sched.SenderName, sched.SenderEmail, sched.ExternalDraftID,
			notifJSON, sched.Status)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrDuplicateSchedule
			}
			return fmt.Errorf("insert schedule round %d: %w", sched.RoundNumber, err)
		}
	}

	return tx.Commit()
}

// GetSchedule returns a single schedule by id.
func (s *Store) GetSchedule(ctx context.Context, id string) (*domain.CampaignSchedule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM campaign_schedules WHERE id = $1`, id)
	return scanSchedule(row)
}

// GetByCampaign returns every round of a campaign ordered by round number.
func (s *Store) GetByCampaign(ctx context.Context, campaignName string) ([]domain.CampaignSchedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM campaign_schedules
		 WHERE campaign_name = $1 ORDER BY round_number`, campaignName)
	if err != nil {
		return nil, fmt.Errorf("get by campaign: %w", err)
	}
	defer rows.Close()

	var out []domain.CampaignSchedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sched)
	}
	if len(out) == 0 {
		return nil, domain.ErrScheduleNotFound
	}
	return out, rows.Err()
}

// ListActive returns schedules that can still fire stages, ordered by
// launch instant. The safety-net poller scans these.
func (s *Store) ListActive(ctx context.Context) ([]domain.CampaignSchedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM campaign_schedules
		 WHERE status IN ('SCHEDULED', 'READY', 'LAUNCHING', 'SENT')
		 ORDER BY scheduled_date`)
	if err != nil {
		return nil, fmt.Errorf("list active schedules: %w", err)
	}
	defer rows.Close()

	var out []domain.CampaignSchedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sched)
	}
	return out, rows.Err()
}

// UpdateStatus writes the schedule's status. Transition validation happens
// in the orchestrator under the per-schedule lock; the store only persists.
func (s *Store) UpdateStatus(ctx context.Context, id string, status domain.ScheduleStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE campaign_schedules SET status = $1, updated_at = NOW() WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

// SetExternalCampaign records the mail-platform campaign id at launch.
func (s *Store) SetExternalCampaign(ctx context.Context, id string, externalID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE campaign_schedules SET external_campaign_id = $1, updated_at = NOW() WHERE id = $2
	`, externalID, id)
	if err != nil {
		return fmt.Errorf("set external campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

// UpdateScheduledDate moves the schedule's launch instant. Used by
// reschedule; job timing is recomputed by the caller.
func (s *Store) UpdateScheduledDate(ctx context.Context, id string, date time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE campaign_schedules SET scheduled_date = $1, updated_at = NOW() WHERE id = $2
	`, date.UTC(), id)
	if err != nil {
		return fmt.Errorf("update scheduled date: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

// UpdateNotification applies mutate to the schedule's notification record
// inside a transaction holding the schedule's row lock, serializing
// concurrent read-modify-writes on the same schedule.
func (s *Store) UpdateNotification(ctx context.Context, id string, mutate func(*domain.NotificationStatus) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update notification: %w", err)
	}
	defer tx.Rollback()

	var raw []byte
	err = tx.QueryRowContext(ctx, `
		SELECT notification_status FROM campaign_schedules WHERE id = $1 FOR UPDATE
	`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return domain.ErrScheduleNotFound
	}
	if err != nil {
		return fmt.Errorf("lock notification status: %w", err)
	}

	var ns domain.NotificationStatus
	if err := json.Unmarshal(raw, &ns); err != nil {
		return fmt.Errorf("parse notification status: %w", err)
	}

	if err := mutate(&ns); err != nil {
		return err
	}

	updated, err := json.Marshal(ns)
	if err != nil {
		return fmt.Errorf("marshal notification status: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE campaign_schedules SET notification_status = $1, updated_at = NOW() WHERE id = $2
	`, updated, id); err != nil {
		return fmt.Errorf("write notification status: %w", err)
	}

	return tx.Commit()
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSchedule(row rowScanner) (*domain.CampaignSchedule, error) {
	sched := &domain.CampaignSchedule{}
	var notifJSON []byte
	var draftID sql.NullString
	var extCampaignID sql.NullInt64

	err := row.Scan(
		&sched.ID, &sched.CampaignName, &sched.RoundNumber,
		&sched.ScheduledDate, &sched.ScheduledTime,
		&sched.ListName, &sched.ExternalListID,
		&sched.RecipientCount, &sched.RecipientRange,
		&sched.Subject, &sched.SenderName, &sched.SenderEmail,
		&draftID, &extCampaignID, &notifJSON, &sched.Status,
		&sched.CreatedAt, &sched.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrScheduleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}

	if draftID.Valid {
		sched.ExternalDraftID = &draftID.String
	}
	if extCampaignID.Valid {
		sched.ExternalCampaignID = &extCampaignID.Int64
	}
	if err := json.Unmarshal(notifJSON, &sched.Notifications); err != nil {
		return nil, fmt.Errorf("parse notification status: %w", err)
	}
	sched.ScheduledDate = sched.ScheduledDate.UTC()
	return sched, nil
}
