package services

import (
	"testing"
	"time"

	"github.com/redwaygroup/ar-dispatch/internal/aging"
	"github.com/redwaygroup/ar-dispatch/internal/domain"
	"github.com/redwaygroup/ar-dispatch/internal/invoice"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testIndex() *ResolveIndex {
	groupID := "g1"
	recipients := []domain.Recipient{
		{ID: "g1", Name: "North Group", IsGroup: true, Terms: "net_15"},
		{ID: "r1", Name: "Acme Foods", Terms: "net_30", GroupID: &groupID},
		{ID: "r2", Name: "Blue River Cafe", Terms: "net_30"},
		{ID: "r3", Name: "Harbor Deli", Terms: "bill_to_bill"},
	}
	aliases := []domain.RecipientAlias{
		{RecipientID: "r2", Alias: "Blue River Cafe LLC", NormalizedAlias: "blue river cafe llc"},
	}
	return NewResolveIndex(recipients, aliases)
}

func TestResolveIndex(t *testing.T) {
	idx := testIndex()

	// Canonical name, case-insensitive.
	target, loc, ok := idx.Resolve("BLUE RIVER CAFE")
	if !ok || target.ID != "r2" || loc != "Blue River Cafe" {
		t.Fatalf("canonical: target=%+v loc=%q ok=%v", target, loc, ok)
	}

	// Alias resolves to its owner.
	target, _, ok = idx.Resolve("Blue River Cafe LLC")
	if !ok || target.ID != "r2" {
		t.Fatalf("alias: target=%+v ok=%v", target, ok)
	}

	// Grouped single resolves to its group; the member name survives as the
	// location label.
	target, loc, ok = idx.Resolve("Acme Foods")
	if !ok || target.ID != "g1" || loc != "Acme Foods" {
		t.Fatalf("grouped: target=%+v loc=%q ok=%v", target, loc, ok)
	}

	if _, _, ok := idx.Resolve("Mystery Diner"); ok {
		t.Fatal("unknown name must not resolve")
	}
}

func TestBuildLedgers_StatusesAndTotals(t *testing.T) {
	idx := testIndex()
	today := day(2024, time.February, 15)

	rows := []invoice.Row{
		// net_30, shipped 2024-01-01 -> due 2024-01-31, 15 days overdue.
		{CustomerName: "Blue River Cafe", OrderID: "1", ShipDate: day(2024, time.January, 1), Total: 500},
		// net_30, shipped 2024-02-10 -> due 2024-03-11, not yet due.
		{CustomerName: "Blue River Cafe", OrderID: "2", ShipDate: day(2024, time.February, 10), Total: 300},
	}

	res := BuildLedgers(rows, idx, today)
	if len(res.Ledgers) != 1 {
		t.Fatalf("len(Ledgers) = %d, want 1", len(res.Ledgers))
	}
	led := res.Ledgers[0]
	if led.Target.ID != "r2" {
		t.Fatalf("target = %q", led.Target.ID)
	}
	if led.Outstanding != 800 {
		t.Fatalf("Outstanding = %v, want 800", led.Outstanding)
	}
	if led.OverdueCount != 1 || led.OverdueAmount != 500 {
		t.Fatalf("overdue: count=%d amount=%v", led.OverdueCount, led.OverdueAmount)
	}
	if led.DaysOverdue != 15 {
		t.Fatalf("DaysOverdue = %d, want 15", led.DaysOverdue)
	}
	if led.Lines[0].Status != aging.StatusOverdue {
		t.Fatalf("line 0 status = %q", led.Lines[0].Status)
	}
	if !led.Lines[0].DueDate.Equal(day(2024, time.January, 31)) {
		t.Fatalf("line 0 due = %v", led.Lines[0].DueDate)
	}
	if led.Lines[1].Status != aging.StatusUnpaid {
		t.Fatalf("line 1 status = %q", led.Lines[1].Status)
	}
}

func TestBuildLedgers_GroupRollupAndLocations(t *testing.T) {
	idx := testIndex()
	today := day(2024, time.June, 1)

	rows := []invoice.Row{
		{CustomerName: "Acme Foods", OrderID: "10", ShipDate: day(2024, time.May, 1), Total: 100},
		{CustomerName: "ACME foods", OrderID: "11", ShipDate: day(2024, time.May, 2), Total: 200},
	}
	res := BuildLedgers(rows, idx, today)
	if len(res.Ledgers) != 1 {
		t.Fatalf("len(Ledgers) = %d, want 1", len(res.Ledgers))
	}
	led := res.Ledgers[0]
	if led.Target.ID != "g1" {
		t.Fatalf("grouped rows must roll up to the group, got %q", led.Target.ID)
	}
	for _, line := range led.Lines {
		if line.Location != "Acme Foods" {
			t.Fatalf("location = %q, want member name", line.Location)
		}
	}
	// Group terms apply: net_15 from ship date.
	if !led.Lines[0].DueDate.Equal(day(2024, time.May, 16)) {
		t.Fatalf("group terms not applied: due = %v", led.Lines[0].DueDate)
	}
}

func TestBuildLedgers_BillToBillChain(t *testing.T) {
	idx := testIndex()
	today := day(2024, time.April, 1)

	rows := []invoice.Row{
		{CustomerName: "Harbor Deli", OrderID: "B", ShipDate: day(2024, time.March, 10), Total: 60},
		{CustomerName: "Harbor Deli", OrderID: "A", ShipDate: day(2024, time.March, 1), Total: 40},
	}
	res := BuildLedgers(rows, idx, today)
	led := res.LedgerFor("r3")
	if led == nil {
		t.Fatal("no ledger for bill_to_bill target")
	}
	// A falls due when B ships; B is the tail, due ship+15d.
	if !led.Lines[0].DueDate.Equal(day(2024, time.March, 10)) {
		t.Fatalf("A due = %v, want 2024-03-10", led.Lines[0].DueDate)
	}
	if !led.Lines[1].DueDate.Equal(day(2024, time.March, 25)) {
		t.Fatalf("B due = %v, want 2024-03-25", led.Lines[1].DueDate)
	}
	if led.OverdueCount != 2 {
		t.Fatalf("OverdueCount = %d, want 2", led.OverdueCount)
	}
}

func TestBuildLedgers_SkippedAndShortPaid(t *testing.T) {
	idx := testIndex()
	today := day(2024, time.June, 1)

	rows := []invoice.Row{
		// Unpaid, shipped before the fully paid one at the same location:
		// the customer passed it over.
		{CustomerName: "Blue River Cafe", OrderID: "20", ShipDate: day(2024, time.May, 1), Total: 100, Location: "Main St"},
		// Fully paid, newer ship date.
		{CustomerName: "Blue River Cafe", OrderID: "21", ShipDate: day(2024, time.May, 10), Total: 50, Paid: 50, Location: "Main St"},
		// Short paid.
		{CustomerName: "Blue River Cafe", OrderID: "22", ShipDate: day(2024, time.May, 12), Total: 80, Paid: 30, Location: "Main St"},
		// Different location: no fully paid invoice there, so nothing skipped.
		{CustomerName: "Blue River Cafe", OrderID: "23", ShipDate: day(2024, time.May, 2), Total: 70, Location: "Pier 9"},
	}
	res := BuildLedgers(rows, idx, today)
	led := res.LedgerFor("r2")
	if led == nil {
		t.Fatal("no ledger")
	}

	if len(led.Skipped) != 1 || led.Skipped[0].OrderID != "20" {
		t.Fatalf("Skipped = %+v, want order 20 only", led.Skipped)
	}
	if len(led.ShortPaid) != 1 || led.ShortPaid[0].OrderID != "22" {
		t.Fatalf("ShortPaid = %+v, want order 22", led.ShortPaid)
	}
	if led.ShortPaidAmount != 50 {
		t.Fatalf("ShortPaidAmount = %v, want 50", led.ShortPaidAmount)
	}
	// Fully paid line is not an open line.
	if len(led.Lines) != 3 {
		t.Fatalf("len(Lines) = %d, want 3 open", len(led.Lines))
	}
}

func TestBuildLedgers_UnresolvedAndFullyPaidTargets(t *testing.T) {
	idx := testIndex()
	today := day(2024, time.June, 1)

	rows := []invoice.Row{
		{CustomerName: "Mystery Diner", OrderID: "30", ShipDate: day(2024, time.May, 1), Total: 10},
		{CustomerName: "mystery diner", OrderID: "31", ShipDate: day(2024, time.May, 2), Total: 10},
		{CustomerName: "Another Stranger", OrderID: "32", ShipDate: day(2024, time.May, 3), Total: 10},
		// Matched but fully paid: target is counted, no ledger appears.
		{CustomerName: "Blue River Cafe", OrderID: "33", ShipDate: day(2024, time.May, 4), Total: 10, Paid: 10},
	}
	res := BuildLedgers(rows, idx, today)

	if len(res.Unresolved) != 2 {
		t.Fatalf("Unresolved = %v, want deduped two names", res.Unresolved)
	}
	if res.Unresolved[0] != "Mystery Diner" || res.Unresolved[1] != "Another Stranger" {
		t.Fatalf("Unresolved order = %v", res.Unresolved)
	}
	if len(res.Ledgers) != 0 {
		t.Fatalf("fully paid target produced a ledger: %+v", res.Ledgers)
	}
	if res.Matched["r2"] != 1 {
		t.Fatalf("Matched[r2] = %d, want 1", res.Matched["r2"])
	}
}

func TestBuildLedgers_SortedByOverdueDesc(t *testing.T) {
	idx := testIndex()
	today := day(2024, time.June, 1)

	rows := []invoice.Row{
		{CustomerName: "Blue River Cafe", OrderID: "40", ShipDate: day(2024, time.January, 1), Total: 100},
		{CustomerName: "Harbor Deli", OrderID: "41", ShipDate: day(2024, time.January, 1), Total: 900},
	}
	res := BuildLedgers(rows, idx, today)
	if len(res.Ledgers) != 2 {
		t.Fatalf("len = %d", len(res.Ledgers))
	}
	if res.Ledgers[0].Target.ID != "r3" {
		t.Fatalf("worst debtor first: got %q", res.Ledgers[0].Target.ID)
	}
}

func TestBuildLedgers_ZeroShipDateUsesToday(t *testing.T) {
	idx := testIndex()
	today := day(2024, time.June, 1)

	rows := []invoice.Row{
		{CustomerName: "Blue River Cafe", OrderID: "50", Total: 100},
	}
	res := BuildLedgers(rows, idx, today)
	led := res.LedgerFor("r2")
	if led == nil {
		t.Fatal("no ledger")
	}
	if !led.Lines[0].ShipDate.Equal(today) {
		t.Fatalf("zero ship date should fall back to today, got %v", led.Lines[0].ShipDate)
	}
}
