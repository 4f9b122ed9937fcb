package domain

import (
	"testing"
	"time"
)

func TestDeriveRates(t *testing.T) {
	m := &CampaignMetrics{
		Processed:   1000,
		Delivered:   950,
		Bounced:     40,
		HardBounces: 10,
		SoftBounces: 30,
		Opened:      190,
		Clicked:     19,
	}
	m.DeriveRates()

	if m.DeliveryRate != 95.0 {
		t.Errorf("DeliveryRate = %v, want 95", m.DeliveryRate)
	}
	if m.BounceRate != 4.0 {
		t.Errorf("BounceRate = %v, want 4", m.BounceRate)
	}
	if m.HardBounceRate != 1.0 {
		t.Errorf("HardBounceRate = %v, want 1", m.HardBounceRate)
	}
	if m.SoftBounceRate != 3.0 {
		t.Errorf("SoftBounceRate = %v, want 3", m.SoftBounceRate)
	}
	if m.OpenRate == nil || *m.OpenRate != 20.0 {
		t.Errorf("OpenRate = %v, want 20", m.OpenRate)
	}
	if m.ClickRate == nil || *m.ClickRate != 2.0 {
		t.Errorf("ClickRate = %v, want 2", m.ClickRate)
	}
}

func TestDeriveRatesNothingDelivered(t *testing.T) {
	m := &CampaignMetrics{Processed: 100, Delivered: 0, Opened: 0, Clicked: 0}
	m.DeriveRates()

	// Open and click rates are undefined without deliveries, never zero.
	if m.OpenRate != nil {
		t.Errorf("OpenRate = %v, want nil", *m.OpenRate)
	}
	if m.ClickRate != nil {
		t.Errorf("ClickRate = %v, want nil", *m.ClickRate)
	}
	if m.DeliveryRate != 0 {
		t.Errorf("DeliveryRate = %v, want 0", m.DeliveryRate)
	}
}

func TestDeriveRatesClearsStaleRates(t *testing.T) {
	stale := 12.5
	m := &CampaignMetrics{Processed: 10, Delivered: 0, OpenRate: &stale, ClickRate: &stale}
	m.DeriveRates()
	if m.OpenRate != nil || m.ClickRate != nil {
		t.Error("stale open/click rates survived a zero-delivery derive")
	}
}

func TestDeriveRatesZeroProcessed(t *testing.T) {
	m := &CampaignMetrics{}
	m.DeriveRates()
	if m.DeliveryRate != 0 || m.BounceRate != 0 {
		t.Errorf("zero processed: DeliveryRate=%v BounceRate=%v, want 0", m.DeliveryRate, m.BounceRate)
	}
}

func TestMetricsValidate(t *testing.T) {
	valid := &CampaignMetrics{Processed: 100, Delivered: 90, Bounced: 5, Blocked: 3, Queued: 2}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid metrics: %v", err)
	}

	negative := &CampaignMetrics{Processed: 100, Opened: -1}
	if err := negative.Validate(); err == nil {
		t.Error("negative counter should fail validation")
	}

	overflow := &CampaignMetrics{Processed: 100, Delivered: 90, Bounced: 20}
	if err := overflow.Validate(); err == nil {
		t.Error("delivered+bounced > processed should fail validation")
	}
}

func TestScheduleValidate(t *testing.T) {
	base := func() *CampaignSchedule {
		return &CampaignSchedule{
			CampaignName:  "oct-offer",
			RoundNumber:   1,
			ScheduledDate: time.Date(2025, 10, 2, 9, 15, 0, 0, time.UTC), // Thursday
		}
	}

	if err := base().Validate(); err != nil {
		t.Errorf("valid schedule: %v", err)
	}

	wrongDay := base()
	wrongDay.ScheduledDate = time.Date(2025, 10, 3, 9, 15, 0, 0, time.UTC) // Friday
	if err := wrongDay.Validate(); err == nil {
		t.Error("Friday launch should fail validation")
	}

	wrongTime := base()
	wrongTime.ScheduledDate = time.Date(2025, 10, 2, 9, 30, 0, 0, time.UTC)
	if err := wrongTime.Validate(); err == nil {
		t.Error("09:30 launch should fail validation")
	}

	badRound := base()
	badRound.RoundNumber = 4
	if err := badRound.Validate(); err == nil {
		t.Error("round 4 should fail validation")
	}
}
