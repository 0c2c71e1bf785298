package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redwaygroup/ar-dispatch/internal/domain"
)

func TestReportRuns(t *testing.T) {
	db := newTestDB(t, &domain.AgingReportRun{}, &domain.AgingReportItem{})
	ctx := context.Background()

	if _, err := LatestReportRun(ctx, db); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty table: %v, want ErrNotFound", err)
	}

	run, err := CreateReportRun(ctx, db, &domain.AgingReportRun{
		AsOf:                time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		SourcePath:          "/data/invoices.csv",
		TotalOutstanding:    1500,
		TotalOverdue:        900,
		CustomerCount:       2,
		UnresolvedNamesJSON: `["Mystery Diner"]`,
	}, []domain.AgingReportItem{
		{CustomerName: "Acme Foods", Outstanding: 1000, OverdueAmount: 300},
		{CustomerName: "Blue River Cafe", Outstanding: 500, OverdueAmount: 600},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	latest, err := LatestReportRun(ctx, db)
	if err != nil || latest.ID != run.ID {
		t.Fatalf("latest: %+v err=%v", latest, err)
	}

	items, err := ListReportItems(ctx, db, run.ID)
	if err != nil || len(items) != 2 {
		t.Fatalf("items: n=%d err=%v", len(items), err)
	}
	// Worst debtor first.
	if items[0].CustomerName != "Blue River Cafe" {
		t.Fatalf("items not ordered by overdue desc: %q first", items[0].CustomerName)
	}

	got, err := GetReportRun(ctx, db, run.ID)
	if err != nil || got.UnresolvedNamesJSON != `["Mystery Diner"]` {
		t.Fatalf("get: %+v err=%v", got, err)
	}
}

func TestInvoiceFiles(t *testing.T) {
	db := newTestDB(t, &domain.InvoiceFile{})
	ctx := context.Background()

	if _, err := LatestInvoiceFile(ctx, db); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty registry: %v, want ErrNotFound", err)
	}

	f1, err := CreateInvoiceFile(ctx, db, "/data/uploads/a.csv", "a.csv", 10)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Later registration becomes latest.
	db.Model(&domain.InvoiceFile{}).Where("id = ?", f1.ID).
		Update("created_at", time.Now().UTC().Add(-time.Hour))
	f2, err := CreateInvoiceFile(ctx, db, "/data/uploads/b.csv", "b.csv", 20)
	if err != nil {
		t.Fatalf("create 2: %v", err)
	}

	latest, err := LatestInvoiceFile(ctx, db)
	if err != nil || latest.ID != f2.ID {
		t.Fatalf("latest: %+v err=%v", latest, err)
	}

	all, err := ListInvoiceFiles(ctx, db, 10)
	if err != nil || len(all) != 2 {
		t.Fatalf("list: n=%d err=%v", len(all), err)
	}
	if got, err := GetInvoiceFile(ctx, db, f1.ID); err != nil || got.RowCount != 10 {
		t.Fatalf("get: %+v err=%v", got, err)
	}
}
