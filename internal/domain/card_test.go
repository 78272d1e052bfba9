package domain

import "testing"

func TestIsValidCardNumber(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{name: "issued format accepted", raw: "1000-0001-0001", want: true},
		{name: "all zeros accepted", raw: "0000-0000-0000", want: true},
		{name: "missing group rejected", raw: "1000-0001", want: false},
		{name: "extra group rejected", raw: "1000-0001-0001-0001", want: false},
		{name: "letters rejected", raw: "abcd-0001-0001", want: false},
		{name: "missing separators rejected", raw: "100000010001", want: false},
		{name: "short group rejected", raw: "100-0001-0001", want: false},
		{name: "surrounding whitespace rejected", raw: " 1000-0001-0001 ", want: false},
		{name: "empty rejected", raw: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidCardNumber(tt.raw); got != tt.want {
				t.Fatalf("IsValidCardNumber(%q) = %t, want %t", tt.raw, got, tt.want)
			}
		})
	}
}
