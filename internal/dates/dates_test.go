package dates

import (
	"testing"
	"time"
)

func TestIsValidDate(t *testing.T) {
	valid := []string{"2024-01-08", "2024-12-31", "2000-06-15"}
	for _, d := range valid {
		if !IsValidDate(d) {
			t.Fatalf("expected %q to be valid", d)
		}
	}

	invalid := []string{"2024/01/08", "08-01-2024", "2024-13-01", "2024-02-30", "not-a-date", ""}
	for _, d := range invalid {
		if IsValidDate(d) {
			t.Fatalf("expected %q to be invalid", d)
		}
	}
}

func TestParseDateTime(t *testing.T) {
	cases := []string{
		"2024-01-08 09:30:00",
		"2024-01-08T09:30:00",
		"2024-01-08",
	}
	for _, s := range cases {
		if _, err := ParseDateTime(s); err != nil {
			t.Fatalf("ParseDateTime(%q): %v", s, err)
		}
	}
	if _, err := ParseDateTime(""); err == nil {
		t.Fatal("expected error for empty datetime")
	}
}

func TestMondayOf(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2024-01-08", "2024-01-08"}, // already Monday
		{"2024-01-10", "2024-01-08"}, // Wednesday
		{"2024-01-14", "2024-01-08"}, // Sunday rolls back to previous Monday
		{"2024-01-15", "2024-01-15"},
	}
	for _, tc := range cases {
		in, err := ParseDate(tc.in)
		if err != nil {
			t.Fatal(err)
		}
		got := MondayOf(in).Format(DateLayout)
		if got != tc.want {
			t.Errorf("MondayOf(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestOverlaps(t *testing.T) {
	d := func(s string) time.Time {
		v, err := ParseDate(s)
		if err != nil {
			t.Fatal(err)
		}
		return v
	}

	// Task 2024-01-08..2024-01-19 against assignment windows.
	if !Overlaps(d("2024-01-08"), d("2024-01-19"), d("2024-01-15"), d("2024-01-22")) {
		t.Error("expected overlap with window starting inside the task")
	}
	if Overlaps(d("2024-01-08"), d("2024-01-19"), d("2024-01-20"), d("2024-01-22")) {
		t.Error("expected no overlap with window after the task")
	}
	// Inclusive bounds: touching endpoints overlap.
	if !Overlaps(d("2024-01-08"), d("2024-01-19"), d("2024-01-19"), d("2024-01-22")) {
		t.Error("expected overlap when window starts on the task end date")
	}
}
