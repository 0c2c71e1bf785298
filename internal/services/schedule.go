// Package services – schedule checks
//
// This file decides when a recipient is due for a statement. The rules are
// deliberately calendar-based rather than interval-based: a weekly recipient
// sends on its configured weekday, and the minimum-gap check keeps a retried
// sweep on the same day from double-sending.
package services

import (
	"time"

	"github.com/redwaygroup/ar-dispatch/internal/aging"
	"github.com/redwaygroup/ar-dispatch/internal/domain"
)

// IsDue reports whether r should receive a statement on the given day.
//
//   - weekly: today is the configured weekday and at least 7 days have
//     passed since the last send (or it never sent).
//   - biweekly: same weekday rule with a 14-day minimum gap.
//   - monthly: today is the configured day of month and the last send was in
//     a different month or year.
//   - manual: never due; these recipients only send via send-now.
func IsDue(r domain.Recipient, now time.Time) bool {
	today := aging.Day(now)

	switch r.ScheduleType {
	case domain.ScheduleWeekly:
		return weekdayMatches(today, r.ScheduleDay) && gapAtLeast(r.LastSentAt, today, 7)
	case domain.ScheduleBiweekly:
		return weekdayMatches(today, r.ScheduleDay) && gapAtLeast(r.LastSentAt, today, 14)
	case domain.ScheduleMonthly:
		if today.Day() != r.ScheduleDay {
			return false
		}
		if r.LastSentAt == nil {
			return true
		}
		last := aging.Day(*r.LastSentAt)
		return last.Month() != today.Month() || last.Year() != today.Year()
	default:
		return false
	}
}

// weekdayMatches compares against Monday-anchored weekday numbering
// (0=Monday .. 6=Sunday), the convention recipients are configured with.
func weekdayMatches(today time.Time, day int) bool {
	return (int(today.Weekday())+6)%7 == day
}

func gapAtLeast(lastSent *time.Time, today time.Time, days int) bool {
	if lastSent == nil {
		return true
	}
	gap := int(today.Sub(aging.Day(*lastSent)).Hours() / 24)
	return gap >= days
}
