package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseDateLayouts(t *testing.T) {
	want := time.Date(2020, 4, 22, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"2020-04-22", "22-Apr-20", "Apr 22, 2020", "04/22/2020", "2020-04-22T15:04:05Z"} {
		got, err := ParseDate(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if !got.Equal(want) {
			t.Fatalf("parse %q: got %v want %v", s, got, want)
		}
	}
}

func TestParseDateTwoDigitYear(t *testing.T) {
	got, err := ParseDate("20-May-87")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Year() != 1987 || got.Month() != time.May || got.Day() != 20 {
		t.Fatalf("unexpected date %v", got)
	}
}

func TestParseDateUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, err := ParseDate(strconv.FormatInt(ts, 10))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !got.Equal(time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date %v", got)
	}
}

func TestParseDateRejectsGarbage(t *testing.T) {
	if _, err := ParseDate("not a date"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := ParseDate(""); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestParseDateDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	if got := ParseDateDefault("", def); !got.Equal(def) {
		t.Fatalf("expected default")
	}
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	b := time.Date(2020, 3, 11, 18, 0, 0, 0, time.UTC)
	if d := DaysBetween(a, b); d != 10 {
		t.Fatalf("expected 10 days, got %d", d)
	}
	if d := DaysBetween(b, a); d != -10 {
		t.Fatalf("expected -10 days, got %d", d)
	}
}
