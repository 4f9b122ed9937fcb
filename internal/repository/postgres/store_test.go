package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/ignite/campaign-pilot/internal/domain"
)

func setupTestDB(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	return NewStore(db), mock, func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	}
}

func uniqueViolation() error {
	return &pq.Error{Code: "23505", Constraint: "campaign_schedules_campaign_name_round_number_key"}
}

func sampleSchedules() []*domain.CampaignSchedule {
	launch := time.Date(2025, 10, 2, 9, 15, 0, 0, time.UTC)
	out := make([]*domain.CampaignSchedule, 0, 3)
	for round := 1; round <= 3; round++ {
		out = append(out, &domain.CampaignSchedule{
			CampaignName:   "oct-offer",
			RoundNumber:    round,
			ScheduledDate:  launch.AddDate(0, 0, (round-1)*5),
			ScheduledTime:  "09:15",
			ListName:       "oct-offer-r" + string(rune('0'+round)),
			ExternalListID: "list-1",
			RecipientCount: 1177,
			RecipientRange: "1-1177",
			Subject:        "October offer",
			SenderName:     "Ignite Offers",
			SenderEmail:    "offers@ignite.example",
			Status:         domain.StatusScheduled,
		})
	}
	return out
}

func TestCreateSchedulesCommitsAllRounds(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	for i := 0; i < 3; i++ {
		mock.ExpectExec("INSERT INTO campaign_schedules").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	schedules := sampleSchedules()
	if err := store.CreateSchedules(context.Background(), schedules); err != nil {
		t.Fatalf("CreateSchedules() error: %v", err)
	}
	for _, s := range schedules {
		if s.ID == "" {
			t.Errorf("round %d was not assigned an id", s.RoundNumber)
		}
	}
}

func TestCreateSchedulesDuplicateRollsBack(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO campaign_schedules").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO campaign_schedules").
		WillReturnError(uniqueViolation())
	mock.ExpectRollback()

	err := store.CreateSchedules(context.Background(), sampleSchedules())
	if !errors.Is(err, domain.ErrDuplicateSchedule) {
		t.Fatalf("got %v, want ErrDuplicateSchedule", err)
	}
}

func scheduleRow(t *testing.T, sched *domain.CampaignSchedule) *sqlmock.Rows {
	t.Helper()
	notifJSON, err := json.Marshal(sched.Notifications)
	if err != nil {
		t.Fatal(err)
	}
	var draftID interface{}
	if sched.ExternalDraftID != nil {
		draftID = *sched.ExternalDraftID
	}
	var campaignID interface{}
	if sched.ExternalCampaignID != nil {
		campaignID = *sched.ExternalCampaignID
	}
	return sqlmock.NewRows([]string{
		"id", "campaign_name", "round_number", "scheduled_date", "scheduled_time",
		"list_name", "external_list_id", "recipient_count", "recipient_range",
		"subject", "sender_name", "sender_email", "external_draft_id",
		"external_campaign_id", "notification_status", "status", "created_at", "updated_at",
	}).AddRow(
		sched.ID, sched.CampaignName, sched.RoundNumber, sched.ScheduledDate, sched.ScheduledTime,
		sched.ListName, sched.ExternalListID, sched.RecipientCount, sched.RecipientRange,
		sched.Subject, sched.SenderName, sched.SenderEmail, draftID,
		campaignID, notifJSON, sched.Status, time.Now(), time.Now(),
	)
}

func TestGetScheduleScansNullableColumns(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	sched := sampleSchedules()[0]
	sched.ID = "sched-1"
	mock.ExpectQuery("FROM campaign_schedules WHERE id").
		WithArgs("sched-1").
		WillReturnRows(scheduleRow(t, sched))

	got, err := store.GetSchedule(context.Background(), "sched-1")
	if err != nil {
		t.Fatalf("GetSchedule() error: %v", err)
	}
	if got.CampaignName != "oct-offer" || got.RoundNumber != 1 {
		t.Errorf("scanned %s round %d", got.CampaignName, got.RoundNumber)
	}
	// Null draft and campaign ids stay nil pointers.
	if got.ExternalDraftID != nil || got.ExternalCampaignID != nil {
		t.Errorf("nullable ids not nil: draft=%v campaign=%v", got.ExternalDraftID, got.ExternalCampaignID)
	}
	if got.Notifications.PreLaunch.Sent {
		t.Error("fresh schedule has a sent prelaunch entry")
	}
	if got.ScheduledDate.Location() != time.UTC {
		t.Errorf("scheduled date not normalized to UTC: %v", got.ScheduledDate.Location())
	}
}

func TestGetScheduleNotFound(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("FROM campaign_schedules WHERE id").
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetSchedule(context.Background(), "nope")
	if !errors.Is(err, domain.ErrScheduleNotFound) {
		t.Fatalf("got %v, want ErrScheduleNotFound", err)
	}
}

func TestGetByCampaignEmptyIsNotFound(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("WHERE campaign_name").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetByCampaign(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrScheduleNotFound) {
		t.Fatalf("got %v, want ErrScheduleNotFound", err)
	}
}

func TestUpdateStatusMissingRow(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE campaign_schedules SET status").
		WithArgs(domain.StatusReady, "nope").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateStatus(context.Background(), "nope", domain.StatusReady)
	if !errors.Is(err, domain.ErrScheduleNotFound) {
		t.Fatalf("got %v, want ErrScheduleNotFound", err)
	}
}

func TestSetExternalCampaign(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE campaign_schedules SET external_campaign_id").
		WithArgs(int64(424242), "sched-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SetExternalCampaign(context.Background(), "sched-1", 424242); err != nil {
		t.Fatalf("SetExternalCampaign() error: %v", err)
	}
}

func TestUpdateNotificationRowLockedReadModifyWrite(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	raw, _ := json.Marshal(domain.NotificationStatus{})
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT notification_status FROM campaign_schedules").
		WithArgs("sched-1").
		WillReturnRows(sqlmock.NewRows([]string{"notification_status"}).AddRow(raw))
	mock.ExpectExec("UPDATE campaign_schedules SET notification_status").
		WithArgs(sqlmock.AnyArg(), "sched-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sentAt := time.Date(2025, 10, 1, 12, 15, 0, 0, time.UTC)
	err := store.UpdateNotification(context.Background(), "sched-1", func(ns *domain.NotificationStatus) error {
		return ns.MarkSent(domain.StagePreLaunch, sentAt, "1700000000.000001", "")
	})
	if err != nil {
		t.Fatalf("UpdateNotification() error: %v", err)
	}
}

func TestUpdateNotificationMutateErrorAborts(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	sent := domain.NotificationStatus{}
	if err := sent.MarkSent(domain.StagePreLaunch, time.Now(), "msg-1", ""); err != nil {
		t.Fatal(err)
	}
	raw, _ := json.Marshal(sent)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT notification_status FROM campaign_schedules").
		WithArgs("sched-1").
		WillReturnRows(sqlmock.NewRows([]string{"notification_status"}).AddRow(raw))
	mock.ExpectRollback()

	// The second MarkSent fails inside the transaction; no UPDATE runs.
	err := store.UpdateNotification(context.Background(), "sched-1", func(ns *domain.NotificationStatus) error {
		return ns.MarkSent(domain.StagePreLaunch, time.Now(), "msg-2", "")
	})
	if !errors.Is(err, domain.ErrAlreadyNotified) {
		t.Fatalf("got %v, want ErrAlreadyNotified", err)
	}
}

func TestUpdateNotificationMissingRow(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT notification_status FROM campaign_schedules").
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := store.UpdateNotification(context.Background(), "nope", func(*domain.NotificationStatus) error {
		t.Error("mutate ran for a missing schedule")
		return nil
	})
	if !errors.Is(err, domain.ErrScheduleNotFound) {
		t.Fatalf("got %v, want ErrScheduleNotFound", err)
	}
}

func TestNextAttemptStartsAtOne(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("FROM notification_logs").
		WithArgs("sched-1", domain.StagePreFlight).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))

	n, err := store.NextAttempt(context.Background(), "sched-1", domain.StagePreFlight)
	if err != nil {
		t.Fatalf("NextAttempt() error: %v", err)
	}
	if n != 1 {
		t.Errorf("NextAttempt = %d, want 1", n)
	}
}

func TestNextAttemptFollowsMax(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("FROM notification_logs").
		WithArgs("sched-1", domain.StagePreFlight).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(2))

	n, err := store.NextAttempt(context.Background(), "sched-1", domain.StagePreFlight)
	if err != nil {
		t.Fatalf("NextAttempt() error: %v", err)
	}
	if n != 3 {
		t.Errorf("NextAttempt = %d, want 3", n)
	}
}

func TestAppendLogAssignsDefaults(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO notification_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &domain.NotificationLog{
		ScheduleID: "sched-1",
		Stage:      domain.StagePreLaunch,
		Attempt:    1,
		Status:     domain.LogSuccess,
	}
	if err := store.AppendLog(context.Background(), entry); err != nil {
		t.Fatalf("AppendLog() error: %v", err)
	}
	if entry.ID == "" {
		t.Error("log entry was not assigned an id")
	}
	if entry.SentAt.IsZero() {
		t.Error("log entry was not stamped")
	}
}

func TestAppendLogDuplicateAttempt(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO notification_logs").
		WillReturnError(uniqueViolation())

	err := store.AppendLog(context.Background(), &domain.NotificationLog{
		ScheduleID: "sched-1",
		Stage:      domain.StagePreLaunch,
		Attempt:    1,
		Status:     domain.LogSuccess,
	})
	if !errors.Is(err, domain.ErrDuplicateLogAttempt) {
		t.Fatalf("got %v, want ErrDuplicateLogAttempt", err)
	}
}

func TestFailedLogsNeedingRetry(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	sentAt := time.Date(2025, 10, 2, 6, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "schedule_id", "stage", "attempt", "status",
		"external_message_id", "error_message", "sent_at",
	}).AddRow("log-3", "sched-1", string(domain.StagePreFlight), 3,
		string(domain.LogFailure), "", "slack: 500", sentAt)

	mock.ExpectQuery("FROM notification_logs").
		WithArgs(50).
		WillReturnRows(rows)

	logs, err := store.FailedLogsNeedingRetry(context.Background(), 50)
	if err != nil {
		t.Fatalf("FailedLogsNeedingRetry() error: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("got %d logs, want 1", len(logs))
	}
	if logs[0].Attempt != 3 || logs[0].Status != domain.LogFailure {
		t.Errorf("log = %+v, want attempt 3 FAILURE", logs[0])
	}
	if logs[0].ErrorMessage != "slack: 500" {
		t.Errorf("ErrorMessage = %q", logs[0].ErrorMessage)
	}
}

func metricsRow(m *domain.CampaignMetrics) *sqlmock.Rows {
	var openRate, clickRate interface{}
	if m.OpenRate != nil {
		openRate = *m.OpenRate
	}
	if m.ClickRate != nil {
		clickRate = *m.ClickRate
	}
	return sqlmock.NewRows([]string{
		"id", "schedule_id", "external_campaign_id",
		"processed", "delivered", "bounced", "hard_bounces", "soft_bounces",
		"blocked", "queued", "opened", "clicked", "unsubscribed", "complained",
		"delivery_rate", "bounce_rate", "hard_bounce_rate", "soft_bounce_rate",
		"open_rate", "click_rate", "collected_at", "send_start_at", "send_end_at",
	}).AddRow(
		m.ID, m.ScheduleID, m.ExternalCampaignID,
		m.Processed, m.Delivered, m.Bounced, m.HardBounces, m.SoftBounces,
		m.Blocked, m.Queued, m.Opened, m.Clicked, m.Unsubscribed, m.Complained,
		m.DeliveryRate, m.BounceRate, m.HardBounceRate, m.SoftBounceRate,
		openRate, clickRate, m.CollectedAt, nil, nil,
	)
}

func TestAppendMetricsRejectsInvalidCounters(t *testing.T) {
	store, _, cleanup := setupTestDB(t)
	defer cleanup()

	// Delivered exceeding processed never reaches the database.
	err := store.AppendMetrics(context.Background(), &domain.CampaignMetrics{
		ScheduleID: "sched-1",
		Processed:  100,
		Delivered:  200,
	})
	if err == nil {
		t.Fatal("invalid metrics should be rejected")
	}
}

func TestAppendMetricsInserts(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO campaign_metrics").
		WillReturnResult(sqlmock.NewResult(0, 1))

	m := &domain.CampaignMetrics{
		ScheduleID:         "sched-1",
		ExternalCampaignID: 424242,
		Processed:          1177,
		Delivered:          1150,
		Bounced:            20,
		CollectedAt:        time.Now().UTC(),
	}
	m.DeriveRates()
	if err := store.AppendMetrics(context.Background(), m); err != nil {
		t.Fatalf("AppendMetrics() error: %v", err)
	}
	if m.ID == "" {
		t.Error("metrics row was not assigned an id")
	}
}

func TestLatestMetricsNone(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("FROM campaign_metrics").
		WithArgs("oct-offer", 1).
		WillReturnError(sql.ErrNoRows)

	_, err := store.LatestMetrics(context.Background(), "oct-offer", 1)
	if !errors.Is(err, domain.ErrNoMetrics) {
		t.Fatalf("got %v, want ErrNoMetrics", err)
	}
}

func TestLatestMetricsScansNullableRates(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	// Nothing delivered: open and click rates are stored NULL.
	m := &domain.CampaignMetrics{
		ID:                 "m-1",
		ScheduleID:         "sched-1",
		ExternalCampaignID: 424242,
		Processed:          1177,
		Queued:             1177,
		CollectedAt:        time.Date(2025, 10, 2, 9, 45, 0, 0, time.UTC),
	}
	mock.ExpectQuery("FROM campaign_metrics").
		WithArgs("oct-offer", 1).
		WillReturnRows(metricsRow(m))

	got, err := store.LatestMetrics(context.Background(), "oct-offer", 1)
	if err != nil {
		t.Fatalf("LatestMetrics() error: %v", err)
	}
	if got.OpenRate != nil || got.ClickRate != nil {
		t.Errorf("rates should be nil: open=%v click=%v", got.OpenRate, got.ClickRate)
	}
	if got.SendStartAt != nil || got.SendEndAt != nil {
		t.Errorf("send window should be nil: start=%v end=%v", got.SendStartAt, got.SendEndAt)
	}
	if got.Processed != 1177 {
		t.Errorf("Processed = %d, want 1177", got.Processed)
	}
}
