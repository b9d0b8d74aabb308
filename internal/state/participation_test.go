package state

import (
	"testing"
	"time"
)

func TestEligibilityWindow_SpansSevenDaysInclusive(t *testing.T) {
	d := time.Date(2026, 8, 7, 12, 0, 0, 0, time.UTC)
	start, end := eligibilityWindow(d)
	if end != "2026-08-07" {
		t.Errorf("expected end 2026-08-07, got %s", end)
	}
	if start != "2026-08-01" {
		t.Errorf("expected start 2026-08-01 (7 days inclusive), got %s", start)
	}
}

func TestEligibilityWindow_NormalizesToUTCDate(t *testing.T) {
	loc := time.FixedZone("test", -5*60*60) // UTC-5
	d := time.Date(2026, 8, 7, 1, 0, 0, 0, loc)
	_, end := eligibilityWindow(d)
	// 1am in UTC-5 is 6am UTC the same day.
	if end != "2026-08-07" {
		t.Errorf("expected UTC-normalized end 2026-08-07, got %s", end)
	}
}

func TestSecondsToDuration(t *testing.T) {
	if got := secondsToDuration(90); got != 90*time.Second {
		t.Errorf("expected 90s, got %s", got)
	}
}
