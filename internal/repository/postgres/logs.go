package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-pilot/internal/domain"
)

// AppendLog records one notification attempt. The (schedule_id, stage,
// attempt) unique constraint rejects double-recording of an attempt, which
// surfaces as domain.ErrDuplicateLogAttempt.
func (s *Store) AppendLog(ctx context.Context, entry *domain.NotificationLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_logs
			(id, schedule_id, stage, attempt, status, external_message_id, error_message, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.ScheduleID, entry.Stage, entry.Attempt,
		entry.Status, entry.ExternalMessageID, entry.ErrorMessage, entry.SentAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateLogAttempt
		}
		return fmt.Errorf("append notification log: %w", err)
	}
	return nil
}

// NextAttempt returns the attempt number the next try of a stage should use,
// max(attempt)+1, starting at 1.
func (s *Store) NextAttempt(ctx context.Context, scheduleID string, stage domain.Stage) (int, error) {
	var max int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(attempt), 0) FROM notification_logs
		WHERE schedule_id = $1 AND stage = $2
	`, scheduleID, stage).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("next attempt: %w", err)
	}
	return max + 1, nil
}

// FailedLogsNeedingRetry returns the latest attempt of every stage whose
// most recent attempt failed, oldest first. These are the stages an operator
// has to re-run once the automatic retries are spent.
func (s *Store) FailedLogsNeedingRetry(ctx context.Context, limit int) ([]domain.NotificationLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, schedule_id, stage, attempt, status, external_message_id, error_message, sent_at
		FROM notification_logs l
		WHERE status = 'FAILURE'
		  AND attempt = (
			SELECT MAX(attempt) FROM notification_logs
			WHERE schedule_id = l.schedule_id AND stage = l.stage
		  )
		ORDER BY sent_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed logs needing retry: %w", err)
	}
	defer rows.Close()

	var out []domain.NotificationLog
	for rows.Next() {
		var l domain.NotificationLog
		if err := rows.Scan(&l.ID, &l.ScheduleID, &l.Stage, &l.Attempt,
			&l.Status, &l.ExternalMessageID, &l.ErrorMessage, &l.SentAt); err != nil {
			return nil, fmt.Errorf("scan failed log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// LogsForSchedule returns every attempt for a schedule in send order.
func (s *Store) LogsForSchedule(ctx context.Context, scheduleID string) ([]domain.NotificationLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, schedule_id, stage, attempt, status, external_message_id, error_message, sent_at
		FROM notification_logs
		WHERE schedule_id = $1
		ORDER BY sent_at, attempt
	`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("logs for schedule: %w", err)
	}
	defer rows.Close()

	var out []domain.NotificationLog
	for rows.Next() {
		var l domain.NotificationLog
		if err := rows.Scan(&l.ID, &l.ScheduleID, &l.Stage, &l.Attempt,
			&l.Status, &l.ExternalMessageID, &l.ErrorMessage, &l.SentAt); err != nil {
			return nil, fmt.Errorf("scan notification log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
