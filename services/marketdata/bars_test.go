package marketdata

import (
	"math"
	"testing"
	"time"
)

func d(day int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day)
}

func TestBarValid(t *testing.T) {
	good := Bar{Date: d(0), Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 1000}
	if !good.Valid() {
		t.Fatalf("expected valid bar, got invalid: %#v", good)
	}

	cases := []Bar{
		{Open: 100, High: 98, Low: 99, Close: 100, Volume: 1},        // high < low
		{Open: 0, High: 101, Low: 99, Close: 100, Volume: 1},         // zero open
		{Open: 100, High: 101, Low: 99, Close: -1, Volume: 1},        // negative close
		{Open: math.NaN(), High: 101, Low: 99, Close: 100},           // NaN price
		{Open: 100, High: 101, Low: 99, Close: 100, Volume: -5},      // negative volume
		{Open: 100, High: math.Inf(1), Low: 99, Close: 100, Volume: 1}, // infinite high
	}
	for i, b := range cases {
		if b.Valid() {
			t.Fatalf("case %d: expected invalid, got valid: %#v", i, b)
		}
	}
}

func TestSortDedupKeepsLast(t *testing.T) {
	bars := []Bar{
		{Date: d(2), Close: 102, Open: 102, High: 102, Low: 102},
		{Date: d(0), Close: 100, Open: 100, High: 100, Low: 100},
		{Date: d(2), Close: 103, Open: 103, High: 103, Low: 103},
		{Date: d(1), Close: 101, Open: 101, High: 101, Low: 101},
	}
	out := SortDedup(bars)
	if len(out) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(out))
	}
	if !out[0].Date.Equal(d(0)) || !out[1].Date.Equal(d(1)) || !out[2].Date.Equal(d(2)) {
		t.Fatalf("bad order: %v %v %v", out[0].Date, out[1].Date, out[2].Date)
	}
	if out[2].Close != 103 {
		t.Fatalf("duplicate date should keep the last occurrence, got close %v", out[2].Close)
	}
	if err := ValidateSeries(out); err != nil {
		t.Fatalf("deduped series should validate: %v", err)
	}
}

func TestValidateSeriesRejectsDisorder(t *testing.T) {
	bars := []Bar{{Date: d(1)}, {Date: d(0)}}
	if err := ValidateSeries(bars); err == nil {
		t.Fatal("expected error for out-of-order dates")
	}
	dup := []Bar{{Date: d(1)}, {Date: d(1)}}
	if err := ValidateSeries(dup); err == nil {
		t.Fatal("expected error for duplicate dates")
	}
}

func TestClip(t *testing.T) {
	var bars []Bar
	for i := 0; i < 10; i++ {
		bars = append(bars, Bar{Date: d(i)})
	}

	got := Clip(bars, d(3), d(6))
	if len(got) != 4 || !got[0].Date.Equal(d(3)) || !got[3].Date.Equal(d(6)) {
		t.Fatalf("closed clip wrong: %d bars", len(got))
	}

	if got := Clip(bars, time.Time{}, d(2)); len(got) != 3 {
		t.Fatalf("open from-bound wrong: %d bars", len(got))
	}
	if got := Clip(bars, d(8), time.Time{}); len(got) != 2 {
		t.Fatalf("open to-bound wrong: %d bars", len(got))
	}
	if got := Clip(bars, d(20), d(30)); got != nil {
		t.Fatalf("out-of-range clip should be nil, got %d bars", len(got))
	}
}
