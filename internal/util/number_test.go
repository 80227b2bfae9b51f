package util

import "testing"

func TestParseNumber(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  float64
	}{
		{name: "plain", input: "8500", want: 8500},
		{name: "thousand comma", input: "10,250", want: 10250},
		{name: "thousand comma decimal", input: "1,234.5", want: 1234.5},
		{name: "decimal comma", input: "1,5", want: 1.5},
		{name: "decimal dot", input: "32.123", want: 32.123},
		{name: "currency", input: "$1,200", want: 1200},
		{name: "accounting negative", input: "(45.5)", want: -45.5},
		{name: "formula prefix", input: `="12"`, want: 12},
		{name: "exponent", input: "4.2e3", want: 4200},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseNumber(tc.input)
			if !ok {
				t.Fatalf("%q not parsed", tc.input)
			}
			if got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestParseNumberRejects(t *testing.T) {
	for _, in := range []string{"", "n/a", "TBD", "12 ft", "--"} {
		if v, ok := ParseNumber(in); ok {
			t.Fatalf("%q parsed as %v", in, v)
		}
	}
}

func TestParseCoordinate(t *testing.T) {
	cases := []struct {
		input string
		want  float64
	}{
		{input: "-101.25", want: -101.25},
		{input: "101.25W", want: -101.25},
		{input: "W 101.25", want: -101.25},
		{input: "32.5 N", want: 32.5},
		{input: "32.5S", want: -32.5},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			got, ok := ParseCoordinate(tc.input)
			if !ok {
				t.Fatalf("%q not parsed", tc.input)
			}
			if got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{input: "2024-03-15", want: "2024-03-15"},
		{input: "3/15/2024", want: "2024-03-15"},
		{input: "03-15-2024", want: "2024-03-15"},
		{input: "Mar 15, 2024", want: "2024-03-15"},
		{input: "3/15/24", want: "2024-03-15"},
		{input: "20240315", want: "2024-03-15"},
		{input: "45366", want: "2024-03-15"},
		{input: "3/15/2024 2:30 PM", want: "2024-03-15"},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			got, ok := ParseDate(tc.input)
			if !ok {
				t.Fatalf("%q not parsed", tc.input)
			}
			if got.Format("2006-01-02") != tc.want {
				t.Fatalf("got %s want %s", got.Format("2006-01-02"), tc.want)
			}
		})
	}

	if _, ok := ParseDate("next week"); ok {
		t.Fatalf("free text parsed as a date")
	}
}
