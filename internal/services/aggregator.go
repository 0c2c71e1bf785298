// Package services – invoice aggregation
//
// This file turns parsed invoice rows into per-recipient ledgers: it resolves
// source customer names through aliases and group membership, computes due
// dates and aging status per line, and derives the bookkeeping signals that
// go on statements (skipped invoices, short payments, overdue totals).
// Everything here is pure computation over inputs loaded elsewhere, so the
// same code backs both aging reports and statement dispatch.
package services

import (
	"sort"
	"time"

	"github.com/redwaygroup/ar-dispatch/internal/aging"
	"github.com/redwaygroup/ar-dispatch/internal/domain"
	"github.com/redwaygroup/ar-dispatch/internal/invoice"
	"github.com/redwaygroup/ar-dispatch/internal/terms"
	"github.com/redwaygroup/ar-dispatch/internal/utils"
)

// ResolveIndex maps normalized source names onto dispatch targets. A name
// resolves through three layers: alias -> recipient, then recipient -> group
// when the recipient belongs to one. The dispatch target for a grouped
// single is always the group; the single's own name becomes the location
// label inside the combined statement.
type ResolveIndex struct {
	entries map[string]resolveEntry
}

type resolveEntry struct {
	// target receives the statement: the recipient itself, or its group.
	target *domain.Recipient
	// memberName labels the location for grouped rows.
	memberName string
}

// NewResolveIndex builds an index from the recipient directory. recipients
// must include group containers; aliases may be nil.
func NewResolveIndex(recipients []domain.Recipient, aliases []domain.RecipientAlias) *ResolveIndex {
	byID := make(map[string]*domain.Recipient, len(recipients))
	for i := range recipients {
		byID[recipients[i].ID] = &recipients[i]
	}

	idx := &ResolveIndex{entries: make(map[string]resolveEntry)}
	add := func(key string, r *domain.Recipient) {
		if key == "" {
			return
		}
		entry := resolveEntry{target: r, memberName: r.Name}
		if !r.IsGroup && r.GroupID != nil {
			if g, ok := byID[*r.GroupID]; ok && g.IsGroup {
				entry.target = g
			}
		}
		if _, exists := idx.entries[key]; !exists {
			idx.entries[key] = entry
		}
	}

	for i := range recipients {
		add(utils.NameKey(recipients[i].Name), &recipients[i])
	}
	for _, a := range aliases {
		if r, ok := byID[a.RecipientID]; ok {
			add(a.NormalizedAlias, r)
		}
	}
	return idx
}

// Resolve maps a source customer name to its dispatch target. The second
// return is the location label for the row, and ok is false for names the
// directory does not know.
func (x *ResolveIndex) Resolve(name string) (target *domain.Recipient, location string, ok bool) {
	e, found := x.entries[utils.NameKey(name)]
	if !found {
		return nil, "", false
	}
	return e.target, e.memberName, true
}

// InvoiceLine is one open invoice on a ledger, due date and status attached.
type InvoiceLine struct {
	OrderID     string       `json:"order_id"`
	Location    string       `json:"location"`
	ShipDate    time.Time    `json:"ship_date"`
	DueDate     time.Time    `json:"due_date"`
	Status      aging.Status `json:"status"`
	Outstanding float64      `json:"outstanding"`
	PaidAmount  float64      `json:"paid_amount"`
	ShortPaid   bool         `json:"short_paid,omitempty"`
}

// FlaggedInvoice identifies an invoice called out on the statement: either
// skipped (an unpaid invoice older than a later, fully paid one at the same
// location) or short-paid.
type FlaggedInvoice struct {
	OrderID  string    `json:"order_id"`
	Location string    `json:"location"`
	ShipDate time.Time `json:"ship_date"`
	Amount   float64   `json:"amount,omitempty"`
}

// Ledger aggregates one dispatch target's open invoices.
type Ledger struct {
	Target *domain.Recipient
	Terms  terms.Code

	// Lines holds the open invoices, oldest ship date first.
	Lines []InvoiceLine

	Outstanding   float64
	OverdueAmount float64
	OverdueCount  int
	// DaysOverdue counts from the oldest overdue due date; 0 when nothing
	// is overdue.
	DaysOverdue int

	Skipped   []FlaggedInvoice
	ShortPaid []FlaggedInvoice
	// ShortPaidAmount sums the outstanding balance on short-paid invoices.
	ShortPaidAmount float64

	// RowsMatched counts every source row that resolved to this target,
	// fully paid ones included. A target with matched rows but no open
	// lines has nothing to bill.
	RowsMatched int
}

// BuildResult is the outcome of aggregating a source file.
type BuildResult struct {
	// Ledgers is sorted by overdue amount descending, worst debtors first.
	// Only targets with at least one open invoice appear.
	Ledgers []Ledger
	// Matched maps target ID to matched-row counts for every resolved
	// target, including those with nothing outstanding.
	Matched map[string]int
	// Unresolved lists source names that matched no recipient or alias, in
	// first-seen order without duplicates. Their rows are excluded.
	Unresolved []string
}

// LedgerFor returns the ledger for a target ID, or nil.
func (r *BuildResult) LedgerFor(targetID string) *Ledger {
	for i := range r.Ledgers {
		if r.Ledgers[i].Target.ID == targetID {
			return &r.Ledgers[i]
		}
	}
	return nil
}

// BuildLedgers aggregates rows into per-target ledgers as of today.
//
// Due dates follow the target's terms. bill_to_bill targets get chained due
// dates: each open invoice falls due when the next one ships, ties broken by
// order id, and the newest gets the tail grace period. Skipped detection
// runs per location: an unpaid invoice that shipped before the latest fully
// paid invoice at the same location was passed over by the customer.
func BuildLedgers(rows []invoice.Row, idx *ResolveIndex, today time.Time) BuildResult {
	type targetBook struct {
		target *domain.Recipient
		// all rows by location, fully paid included, for flag detection
		byLocation map[string][]invoice.Row
		open       []invoice.Row
		matched    int
		order      int
	}

	books := make(map[string]*targetBook)
	bookOrder := 0
	var unresolved []string
	seenUnresolved := make(map[string]bool)

	for _, row := range rows {
		target, memberName, ok := idx.Resolve(row.CustomerName)
		if !ok {
			if key := utils.NameKey(row.CustomerName); !seenUnresolved[key] {
				seenUnresolved[key] = true
				unresolved = append(unresolved, row.CustomerName)
			}
			continue
		}

		location := row.Location
		if target.IsGroup {
			// Grouped rows are labeled by the member they came from.
			location = memberName
		}
		if location == "" {
			location = row.CustomerName
		}

		b := books[target.ID]
		if b == nil {
			b = &targetBook{target: target, byLocation: make(map[string][]invoice.Row), order: bookOrder}
			bookOrder++
			books[target.ID] = b
		}
		b.matched++

		r := row
		r.Location = location
		if r.ShipDate.IsZero() {
			r.ShipDate = aging.Day(today)
		}
		b.byLocation[location] = append(b.byLocation[location], r)
		if r.Outstanding() > 0 {
			b.open = append(b.open, r)
		}
	}

	result := BuildResult{
		Matched:    make(map[string]int, len(books)),
		Unresolved: unresolved,
	}

	ordered := make([]*targetBook, 0, len(books))
	for _, b := range books {
		result.Matched[b.target.ID] = b.matched
		ordered = append(ordered, b)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].order < ordered[j].order })

	for _, b := range ordered {
		if len(b.open) == 0 {
			continue
		}
		result.Ledgers = append(result.Ledgers, buildLedger(b.target, b.open, b.byLocation, today))
	}

	sort.SliceStable(result.Ledgers, func(i, j int) bool {
		return result.Ledgers[i].OverdueAmount > result.Ledgers[j].OverdueAmount
	})
	return result
}

func buildLedger(target *domain.Recipient, open []invoice.Row, byLocation map[string][]invoice.Row, today time.Time) Ledger {
	code := terms.NormalizeOrDefault(target.Terms)
	led := Ledger{Target: target, Terms: code}

	// Due dates per open line.
	due := make([]time.Time, len(open))
	if code == terms.BillToBill {
		links := make([]aging.ChainLink, len(open))
		for i, r := range open {
			links[i] = aging.ChainLink{OrderID: r.OrderID, ShipDate: r.ShipDate}
		}
		chain := aging.ChainDueDates(links)
		for i, r := range open {
			due[i] = chain[r.OrderID]
		}
	} else {
		for i, r := range open {
			due[i] = aging.DueDate(r.ShipDate, code)
		}
	}

	var oldestOverdue time.Time
	for i, r := range open {
		status := aging.Classify(due[i], today)
		line := InvoiceLine{
			OrderID:     r.OrderID,
			Location:    r.Location,
			ShipDate:    r.ShipDate,
			DueDate:     due[i],
			Status:      status,
			Outstanding: r.Outstanding(),
			PaidAmount:  r.PaidAmount(),
			ShortPaid:   r.ShortPaid(),
		}
		led.Lines = append(led.Lines, line)
		led.Outstanding += line.Outstanding
		if status == aging.StatusOverdue {
			led.OverdueCount++
			led.OverdueAmount += line.Outstanding
			if oldestOverdue.IsZero() || due[i].Before(oldestOverdue) {
				oldestOverdue = due[i]
			}
		}
	}
	if !oldestOverdue.IsZero() {
		led.DaysOverdue = aging.DaysOverdue(oldestOverdue, today)
	}

	sort.SliceStable(led.Lines, func(i, j int) bool {
		if !led.Lines[i].ShipDate.Equal(led.Lines[j].ShipDate) {
			return led.Lines[i].ShipDate.Before(led.Lines[j].ShipDate)
		}
		return led.Lines[i].OrderID < led.Lines[j].OrderID
	})

	// Flag detection over the full row set, fully paid included.
	locations := make([]string, 0, len(byLocation))
	for loc := range byLocation {
		locations = append(locations, loc)
	}
	sort.Strings(locations)

	for _, loc := range locations {
		invoices := byLocation[loc]

		for _, inv := range invoices {
			if inv.ShortPaid() {
				led.ShortPaid = append(led.ShortPaid, FlaggedInvoice{
					OrderID:  inv.OrderID,
					Location: loc,
					ShipDate: inv.ShipDate,
					Amount:   inv.Outstanding(),
				})
				led.ShortPaidAmount += inv.Outstanding()
			}
		}

		var maxPaid time.Time
		for _, inv := range invoices {
			if inv.FullyPaid() && inv.ShipDate.After(maxPaid) {
				maxPaid = inv.ShipDate
			}
		}
		if maxPaid.IsZero() {
			continue
		}
		for _, inv := range invoices {
			if inv.Unpaid() && inv.ShipDate.Before(maxPaid) {
				led.Skipped = append(led.Skipped, FlaggedInvoice{
					OrderID:  inv.OrderID,
					Location: loc,
					ShipDate: inv.ShipDate,
				})
			}
		}
	}
	return led
}
