// Package terms defines the closed set of payment-terms codes used by the
// statement dispatch engine and the normalization rules that map free-form
// terms values (spreadsheet cells, form inputs, legacy numeric day counts)
// onto that set.
//
// Fixed-day codes carry a day offset (net_30 → 30 days after ship date).
// The remaining codes (week_to_week, month_to_month, bill_to_bill) have
// schedule-driven due dates computed in the aging package.
package terms

import (
	"strconv"
	"strings"
)

// Code identifies a payment-terms policy.
type Code string

const (
	Net7         Code = "net_7"
	Net15        Code = "net_15"
	Net20        Code = "net_20"
	Net30        Code = "net_30"
	Net45        Code = "net_45"
	COD          Code = "cod"
	BillToBill   Code = "bill_to_bill"
	MonthToMonth Code = "month_to_month"
	WeekToWeek   Code = "week_to_week"
)

// Default is the terms code applied when a recipient has no usable value.
const Default = Net30

// fixedDays maps fixed-offset codes to their day count. bill_to_bill is
// intentionally absent: its due dates are chained, not offset.
var fixedDays = map[Code]int{
	Net7:  7,
	Net15: 15,
	Net20: 20,
	Net30: 30,
	Net45: 45,
	COD:   1,
}

// labels maps codes to their human-readable display form.
var labels = map[Code]string{
	Net7:         "Net 7",
	Net15:        "Net 15",
	Net20:        "Net 20",
	Net30:        "Net 30",
	Net45:        "Net 45",
	COD:          "COD",
	BillToBill:   "Bill to Bill",
	MonthToMonth: "Month to Month",
	WeekToWeek:   "Week to Week",
}

// All returns every known terms code in display order.
func All() []Code {
	return []Code{Net7, Net15, Net20, Net30, Net45, COD, BillToBill, MonthToMonth, WeekToWeek}
}

// IsValid reports whether c is one of the known terms codes.
func IsValid(c Code) bool {
	_, ok := labels[c]
	return ok
}

// FixedDays returns the day offset for a fixed-day code, or 0 and false for
// schedule-driven codes (week_to_week, month_to_month, bill_to_bill).
func FixedDays(c Code) (int, bool) {
	d, ok := fixedDays[c]
	return d, ok
}

// Label returns the display label for c, falling back to the raw code string
// for unknown values.
func Label(c Code) string {
	if l, ok := labels[c]; ok {
		return l
	}
	return string(c)
}

// Normalize maps a free-form terms value onto a Code. It accepts exact codes
// ("net_30"), display labels in any case ("Net 30", "bill to bill"),
// separator variants ("net-30", "net30"), and bare day counts ("30").
// It returns false when the value cannot be interpreted.
func Normalize(value string) (Code, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return "", false
	}

	if IsValid(Code(v)) {
		return Code(v), true
	}

	// Bare day count ("30", "30.0" from spreadsheet exports).
	if days, err := strconv.ParseFloat(v, 64); err == nil {
		return FromDays(int(days))
	}

	// Collapse separators so "net-30", "bill_to_bill" and "Bill to Bill"
	// all compare equal.
	collapsed := strings.NewReplacer("_", " ", "-", " ", ".", "").Replace(v)
	collapsed = strings.Join(strings.Fields(collapsed), " ")

	switch collapsed {
	case "cod":
		return COD, true
	case "bill to bill", "billtobill":
		return BillToBill, true
	case "month to month", "monthtomonth":
		return MonthToMonth, true
	case "week to week", "weektoweek":
		return WeekToWeek, true
	}

	for code, label := range labels {
		if collapsed == strings.ToLower(label) {
			return code, true
		}
	}

	// "net30" / "net 30" with an arbitrary digit run.
	if strings.HasPrefix(collapsed, "net") {
		digits := strings.TrimSpace(strings.TrimPrefix(collapsed, "net"))
		if days, err := strconv.Atoi(digits); err == nil {
			return FromDays(days)
		}
	}

	return "", false
}

// FromDays maps a numeric day count onto the matching net_N code.
// Only day counts with a defined code are accepted.
func FromDays(days int) (Code, bool) {
	c := Code("net_" + strconv.Itoa(days))
	if _, ok := fixedDays[c]; ok {
		return c, true
	}
	return "", false
}

// NormalizeOrDefault behaves like Normalize but falls back to Default for
// unusable values. Used when reading legacy recipient rows.
func NormalizeOrDefault(value string) Code {
	if c, ok := Normalize(value); ok {
		return c
	}
	return Default
}
