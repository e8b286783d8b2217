package scheduler

import (
	"testing"
	"time"
)

func TestParseAndMatchWildcard(t *testing.T) {
	expr, err := Parse("30 0 1 * *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !expr.Matches(time.Date(2024, 4, 1, 0, 30, 0, 0, time.UTC)) {
		t.Fatalf("expected match on April 1 00:30")
	}
	if expr.Matches(time.Date(2024, 4, 2, 0, 30, 0, 0, time.UTC)) {
		t.Fatalf("expected no match on April 2")
	}
	if expr.Matches(time.Date(2024, 4, 1, 0, 31, 0, 0, time.UTC)) {
		t.Fatalf("expected no match at 00:31")
	}
}

func TestParseDailyAt9AM(t *testing.T) {
	expr, err := Parse("0 9 * * *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !expr.Matches(time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected match at 09:00 on any day")
	}
	if expr.Matches(time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected no match at 10:00")
	}
}

func TestParseStepAndRange(t *testing.T) {
	expr, err := Parse("*/15 8-17 * * 1-5")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	// Monday 2024-06-17 10:15, within business hours and weekday range.
	if !expr.Matches(time.Date(2024, 6, 17, 10, 15, 0, 0, time.UTC)) {
		t.Fatalf("expected match")
	}
	// Saturday, same time.
	if expr.Matches(time.Date(2024, 6, 22, 10, 15, 0, 0, time.UTC)) {
		t.Fatalf("expected no match on Saturday")
	}
	// Off-step minute.
	if expr.Matches(time.Date(2024, 6, 17, 10, 20, 0, 0, time.UTC)) {
		t.Fatalf("expected no match at :20, step is 15")
	}
}

func TestParseRejectsWrongFieldCount(t *testing.T) {
	if _, err := Parse("0 9 * *"); err == nil {
		t.Fatalf("expected error for 4-field expression")
	}
}
