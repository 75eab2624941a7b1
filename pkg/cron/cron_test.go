package cron

import (
	"testing"
	"time"
)

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name       string
		expression string
	}{
		{"too few fields", "* * * *"},
		{"too many fields", "* * * * * *"},
		{"minute out of range", "60 * * * *"},
		{"day of month zero", "* * 0 * *"},
		{"month out of range", "* * * 13 *"},
		{"weekday out of range", "* * * * 7"},
		{"zero step", "*/0 * * * *"},
		{"negative step", "*/-5 * * * *"},
		{"inverted range", "5-1 * * * *"},
		{"garbage value", "x * * * *"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(tc.expression); err == nil {
				t.Fatalf("Parse(%q) succeeded, want error", tc.expression)
			}
		})
	}
}

func TestParseValid(t *testing.T) {
	expressions := []string{
		"* * * * *",
		"0 8 * * 1-5",
		"*/15 * * * *",
		"30 6 1 * *",
		"0,30 8-18/2 * * *",
		"0 0 13 * 5",
	}
	for _, expression := range expressions {
		if _, err := Parse(expression); err != nil {
			t.Fatalf("Parse(%q): %v", expression, err)
		}
	}
}

func TestNext(t *testing.T) {
	// 2026-08-31 是周一
	cases := []struct {
		name       string
		expression string
		from       time.Time
		want       time.Time
	}{
		{
			name:       "every 15 minutes",
			expression: "*/15 * * * *",
			from:       time.Date(2026, 8, 31, 10, 7, 0, 0, time.UTC),
			want:       time.Date(2026, 8, 31, 10, 15, 0, 0, time.UTC),
		},
		{
			name:       "weekday morning from saturday",
			expression: "0 8 * * 1-5",
			from:       time.Date(2026, 9, 5, 10, 0, 0, 0, time.UTC),
			want:       time.Date(2026, 9, 7, 8, 0, 0, 0, time.UTC),
		},
		{
			name:       "first of month",
			expression: "30 6 1 * *",
			from:       time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC),
			want:       time.Date(2026, 10, 1, 6, 30, 0, 0, time.UTC),
		},
		{
			// 日和周同时受限时取 OR：周五先于 13 号到来
			name:       "dom dow or rule",
			expression: "0 0 13 * 5",
			from:       time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
			want:       time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC),
		},
		{
			name:       "strictly after exact match",
			expression: "0 12 * * *",
			from:       time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
			want:       time.Date(2026, 9, 2, 12, 0, 0, 0, time.UTC),
		},
		{
			name:       "seconds are truncated",
			expression: "* * * * *",
			from:       time.Date(2026, 9, 1, 12, 0, 42, 0, time.UTC),
			want:       time.Date(2026, 9, 1, 12, 1, 0, 0, time.UTC),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			schedule, err := Parse(tc.expression)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tc.expression, err)
			}
			got, err := schedule.Next(tc.from)
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("Next(%s) = %s, want %s", tc.from, got, tc.want)
			}
		})
	}
}

func TestNextImpossibleSchedule(t *testing.T) {
	schedule, err := Parse("0 0 31 2 *")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := schedule.Next(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Fatal("Next on Feb 31 schedule succeeded, want error")
	}
}
