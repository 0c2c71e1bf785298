// Package invoice reads open-invoice source files (CSV exports from the
// order system) into typed rows. Header matching is tolerant of case and
// spacing, amounts accept currency symbols and thousands separators, and
// ship dates accept the handful of layouts the exports are known to use.
package invoice

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Row is one invoice line from the source file.
type Row struct {
	CustomerName string
	OrderID      string
	Location     string
	ShipDate     time.Time
	Total        float64
	Paid         float64
}

// Outstanding is the unpaid balance on the row.
func (r Row) Outstanding() float64 { return r.Total - r.Paid }

// PaidAmount clamps the paid figure into [0, Total] so negative or
// over-credited values from the source cannot distort classification.
func (r Row) PaidAmount() float64 {
	out := r.Outstanding()
	if out < 0 {
		out = 0
	}
	paid := r.Total - out
	if paid < 0 {
		return 0
	}
	return paid
}

// Amounts within a cent are treated as equal.
const epsilon = 0.01

// FullyPaid reports whether the row has no meaningful balance left.
func (r Row) FullyPaid() bool { return r.Outstanding() <= epsilon }

// ShortPaid reports whether the row was partially paid but still carries a
// balance.
func (r Row) ShortPaid() bool { return r.PaidAmount() > epsilon && r.Outstanding() > epsilon }

// Unpaid reports whether no meaningful payment was applied to the row.
func (r Row) Unpaid() bool { return r.PaidAmount() <= epsilon && r.Outstanding() > epsilon }

// Stats counts what happened to the source rows during a parse.
type Stats struct {
	// Read is the number of data rows in the file.
	Read int
	// Dropped is the number of rows discarded for a missing customer name,
	// a malformed record, or a non-positive order total.
	Dropped int
}

// Required source columns. Paid Amount and Location are optional.
const (
	colCustomer = "customer name"
	colOrderID  = "order id"
	colTotal    = "order total"
	colShipDate = "shipping date"
	colPaid     = "paid amount"
	colLocation = "location"
)

var requiredColumns = []string{colCustomer, colOrderID, colTotal, colShipDate}

// shipDateLayouts are tried in order when parsing the ship-date column.
var shipDateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// ParseFile reads the invoice CSV at path. See Parse.
func ParseFile(path string) ([]Row, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads invoice rows from r. The first record is the header; required
// columns are matched case-insensitively. Rows with no customer name or a
// non-positive order total are dropped and counted in Stats. A row whose
// ship date cannot be parsed keeps the zero time; the aggregator substitutes
// the reference date.
func Parse(r io.Reader) ([]Row, Stats, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, Stats{}, err
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[normalizeHeader(h)] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, Stats{}, fmt.Errorf("invoice file missing required column %q", col)
		}
	}

	var (
		rows  []Row
		stats Stats
	)
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, Stats{}, err
		}
		stats.Read++

		row := Row{
			CustomerName: field(rec, idx, colCustomer),
			OrderID:      normalizeOrderID(field(rec, idx, colOrderID)),
			Location:     field(rec, idx, colLocation),
			Total:        parseAmount(field(rec, idx, colTotal)),
			Paid:         parseAmount(field(rec, idx, colPaid)),
		}
		if d, ok := parseShipDate(field(rec, idx, colShipDate)); ok {
			row.ShipDate = d
		}

		if row.CustomerName == "" || row.Total <= 0 {
			stats.Dropped++
			continue
		}
		rows = append(rows, row)
	}
	return rows, stats, nil
}

// CountRows returns the number of usable data rows in the file at path.
// Used when registering an uploaded file.
func CountRows(path string) (int, error) {
	rows, _, err := ParseFile(path)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func normalizeHeader(h string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(h))), " ")
}

func field(rec []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// normalizeOrderID strips a spreadsheet float rendering ("10452.0") down to
// the integer form when the value is numeric.
func normalizeOrderID(v string) string {
	if v == "" {
		return ""
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return strconv.FormatInt(int64(f), 10)
	}
	return v
}

// parseAmount accepts "1234.50", "$1,234.50", "(200)" for negatives, and
// blank for zero.
func parseAmount(v string) float64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	neg := false
	if strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")") {
		neg = true
		v = v[1 : len(v)-1]
	}
	v = strings.NewReplacer("$", "", ",", "", " ", "").Replace(v)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	if neg {
		return -f
	}
	return f
}

func parseShipDate(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range shipDateLayouts {
		if d, err := time.Parse(layout, v); err == nil {
			return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// String implements fmt.Stringer for log output.
func (s Stats) String() string {
	return fmt.Sprintf("read=%d dropped=%d", s.Read, s.Dropped)
}
