// Package aging computes invoice due dates and aging status from ship dates
// and payment terms. All functions are pure date arithmetic: callers supply
// the reference date, so the same inputs always produce the same outputs.
//
// Dates are normalized to midnight UTC before comparison so that wall-clock
// time never shifts an invoice across a day boundary.
package aging

import (
	"sort"
	"time"

	"github.com/redwaygroup/ar-dispatch/internal/terms"
)

// Status classifies an unpaid invoice relative to its due date.
type Status string

const (
	// StatusOverdue means the due date has passed.
	StatusOverdue Status = "Overdue"
	// StatusDueThisWeek means the due date falls within the next seven days,
	// today inclusive.
	StatusDueThisWeek Status = "Due This Week"
	// StatusUnpaid means the due date is more than seven days out.
	StatusUnpaid Status = "Unpaid"
)

const (
	// dueSoonWindowDays is the width of the "Due This Week" bucket.
	dueSoonWindowDays = 7
	// billToBillTailDays is the grace period applied to the newest invoice
	// in a bill-to-bill chain, which has no successor to anchor its due date.
	billToBillTailDays = 15
)

// Day truncates t to midnight UTC, discarding wall-clock time and zone.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DueDate returns the due date for an invoice shipped on shipDate under the
// given terms code.
//
//   - week_to_week invoices are due the Friday of the ship week
//     (Monday-anchored weeks).
//   - month_to_month invoices are due the first day of the following month.
//   - fixed-day codes add their offset to the ship date.
//   - bill_to_bill invoices have chained due dates; DueDate treats a lone
//     bill_to_bill invoice as the tail of a chain and applies the tail grace
//     period. Use ChainDueDates for multi-invoice chains.
//
// Unknown codes fall back to the default terms offset.
func DueDate(shipDate time.Time, code terms.Code) time.Time {
	ship := Day(shipDate)

	switch code {
	case terms.WeekToWeek:
		// Monday of the ship week, then forward to Friday.
		offset := (int(ship.Weekday()) + 6) % 7 // Monday=0 .. Sunday=6
		monday := ship.AddDate(0, 0, -offset)
		return monday.AddDate(0, 0, 4)
	case terms.MonthToMonth:
		return time.Date(ship.Year(), ship.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	case terms.BillToBill:
		return ship.AddDate(0, 0, billToBillTailDays)
	}

	if days, ok := terms.FixedDays(code); ok {
		return ship.AddDate(0, 0, days)
	}
	days, _ := terms.FixedDays(terms.Default)
	return ship.AddDate(0, 0, days)
}

// ChainLink identifies one invoice in a bill-to-bill chain.
type ChainLink struct {
	OrderID  string
	ShipDate time.Time
}

// ChainDueDates computes due dates for a recipient's bill-to-bill invoices.
// Invoices are ordered by ship date, ties broken by order id, and each
// invoice falls due on the ship date of its successor. The newest invoice
// has no successor and falls due after the tail grace period.
//
// The result maps order id to due date. Links with duplicate order ids keep
// the last computed value.
func ChainDueDates(links []ChainLink) map[string]time.Time {
	if len(links) == 0 {
		return map[string]time.Time{}
	}

	ordered := make([]ChainLink, len(links))
	copy(ordered, links)
	sort.SliceStable(ordered, func(i, j int) bool {
		di, dj := Day(ordered[i].ShipDate), Day(ordered[j].ShipDate)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return ordered[i].OrderID < ordered[j].OrderID
	})

	due := make(map[string]time.Time, len(ordered))
	for i, link := range ordered {
		if i+1 < len(ordered) {
			due[link.OrderID] = Day(ordered[i+1].ShipDate)
		} else {
			due[link.OrderID] = Day(link.ShipDate).AddDate(0, 0, billToBillTailDays)
		}
	}
	return due
}

// Classify buckets an unpaid invoice by its due date relative to today.
func Classify(dueDate, today time.Time) Status {
	due, now := Day(dueDate), Day(today)
	if now.After(due) {
		return StatusOverdue
	}
	if days := int(due.Sub(now).Hours() / 24); days <= dueSoonWindowDays {
		return StatusDueThisWeek
	}
	return StatusUnpaid
}

// DaysOverdue returns how many whole days past due the invoice is, or 0 when
// the due date has not passed.
func DaysOverdue(dueDate, today time.Time) int {
	due, now := Day(dueDate), Day(today)
	if !now.After(due) {
		return 0
	}
	return int(now.Sub(due).Hours() / 24)
}
