package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		name string
		s    string
		def  int
		want int
	}{
		{"empty falls back", "", 50, 50},
		{"plain int", "25", 50, 25},
		{"negative passes through", "-1", 50, -1},
		{"leading zeros", "007", 50, 7},
		{"garbage falls back", "ten", 50, 50},
		{"whitespace is not trimmed", " 25", 50, 50},
		{"overflow falls back", "99999999999999999999", 50, 50},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := AtoiDefault(tc.s, tc.def); got != tc.want {
				t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
			}
		})
	}
}
