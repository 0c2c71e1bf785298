package services

import (
	"testing"
	"time"

	"github.com/redwaygroup/ar-dispatch/internal/domain"
)

func ts(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestIsDue_Weekly(t *testing.T) {
	// 2024-06-10 is a Monday (day 0).
	monday := time.Date(2024, time.June, 10, 9, 30, 0, 0, time.UTC)

	r := domain.Recipient{ScheduleType: domain.ScheduleWeekly, ScheduleDay: 0}
	if !IsDue(r, monday) {
		t.Fatal("never-sent weekly recipient due on its weekday")
	}

	r.ScheduleDay = 2 // Wednesday
	if IsDue(r, monday) {
		t.Fatal("wrong weekday must not be due")
	}

	r.ScheduleDay = 0
	r.LastSentAt = ts(2024, time.June, 3) // previous Monday
	if !IsDue(r, monday) {
		t.Fatal("7-day gap satisfies the weekly minimum")
	}

	r.LastSentAt = ts(2024, time.June, 10) // already sent today
	if IsDue(r, monday) {
		t.Fatal("same-day resend must be suppressed")
	}
}

func TestIsDue_Biweekly(t *testing.T) {
	monday := time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)
	r := domain.Recipient{ScheduleType: domain.ScheduleBiweekly, ScheduleDay: 0}

	r.LastSentAt = ts(2024, time.June, 3) // 7 days: too soon
	if IsDue(r, monday) {
		t.Fatal("7-day gap is below the biweekly minimum")
	}
	r.LastSentAt = ts(2024, time.May, 27) // 14 days
	if !IsDue(r, monday) {
		t.Fatal("14-day gap satisfies the biweekly minimum")
	}
}

func TestIsDue_Monthly(t *testing.T) {
	first := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	r := domain.Recipient{ScheduleType: domain.ScheduleMonthly, ScheduleDay: 1}

	if !IsDue(r, first) {
		t.Fatal("never-sent monthly recipient due on its day")
	}
	if IsDue(r, first.AddDate(0, 0, 1)) {
		t.Fatal("wrong day of month must not be due")
	}

	r.LastSentAt = ts(2024, time.June, 1)
	if IsDue(r, first) {
		t.Fatal("already sent this month")
	}
	r.LastSentAt = ts(2024, time.May, 1)
	if !IsDue(r, first) {
		t.Fatal("last send in a prior month qualifies")
	}
	// Same month a year earlier still qualifies.
	r.LastSentAt = ts(2023, time.June, 1)
	if !IsDue(r, first) {
		t.Fatal("last send a year ago qualifies")
	}
}

func TestIsDue_ManualNever(t *testing.T) {
	now := time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)
	r := domain.Recipient{ScheduleType: domain.ScheduleManual, ScheduleDay: 0}
	if IsDue(r, now) {
		t.Fatal("manual recipients are never due")
	}
}
