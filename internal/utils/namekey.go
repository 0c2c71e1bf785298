package utils

import (
	"strings"

	"golang.org/x/text/cases"
)

var foldCaser = cases.Fold()

// NameKey normalizes a customer or group name for matching: Unicode case
// folding plus whitespace collapsing. Two names that differ only in case or
// spacing share a key.
func NameKey(name string) string {
	folded := foldCaser.String(strings.TrimSpace(name))
	return strings.Join(strings.Fields(folded), " ")
}
