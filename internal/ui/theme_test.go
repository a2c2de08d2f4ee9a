package ui

import "testing"

func TestProgressBar(t *testing.T) {
	cases := []struct {
		value, total int64
		width        int
		want         string
	}{
		{0, 100, 10, "[----------]"},
		{50, 100, 10, "[#####-----]"},
		{150, 100, 4, "[####]"},
		{-5, 0, 3, "[---]"},
	}
	for _, tc := range cases {
		if got := ProgressBar(tc.value, tc.total, tc.width); got != tc.want {
			t.Fatalf("ProgressBar(%d,%d,%d)=%q, want %q", tc.value, tc.total, tc.width, got, tc.want)
		}
	}
}

func TestSourceIcon(t *testing.T) {
	if SourceIcon("journal-bonus") != IconJournal {
		t.Fatalf("journal-bonus icon=%q", SourceIcon("journal-bonus"))
	}
	if SourceIcon("engagement") != IconXP {
		t.Fatalf("engagement icon=%q", SourceIcon("engagement"))
	}
}
