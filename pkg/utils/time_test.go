package utils

import (
	"testing"
	"time"
)

func TestAddHours(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if got, want := AddHours(base, 12), base.Add(12*time.Hour); !got.Equal(want) {
		t.Fatalf("AddHours: want=%s got=%s", want, got)
	}
	if got := AddHours(base, 0); !got.Equal(base) {
		t.Fatalf("AddHours zero: want=%s got=%s", base, got)
	}
}

func TestFormatMoscow(t *testing.T) {
	ts := time.Date(2026, 3, 1, 21, 30, 0, 0, time.UTC)
	if got, want := FormatMoscow(ts), "02.03.2026 00:30"; got != want {
		t.Fatalf("FormatMoscow: want=%q got=%q", want, got)
	}
}

func TestTimePtrCopies(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := TimePtr(ts)
	ts = ts.Add(time.Hour)
	if p.Equal(ts) {
		t.Fatal("TimePtr must not alias the caller's variable")
	}
}
