package main

import (
	"testing"
	"time"
)

func TestRenderTableFillsEmptyCells(t *testing.T) {
	out := renderTable(
		[]string{"Alias", "Detail"},
		[][]string{{"livingroom", ""}, {"bedroom"}},
	)
	requireContains(t, out, "Alias")
	requireContains(t, out, "livingroom")
	requireContains(t, out, "-")
}

func TestCellTimestamp(t *testing.T) {
	if got := cellTimestamp(nil); got != "never" {
		t.Fatalf("nil timestamp: got %q, want %q", got, "never")
	}
	var zero time.Time
	if got := cellTimestamp(&zero); got != "never" {
		t.Fatalf("zero timestamp: got %q, want %q", got, "never")
	}
	seen := time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)
	if got := cellTimestamp(&seen); got == "never" {
		t.Fatalf("real timestamp rendered as %q", got)
	}
}
