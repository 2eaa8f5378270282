package trend

import (
	"testing"
	"time"

	"github.com/rewired-gh/strikewatch/internal/models"
)

const minute = int64(60 * 1000)

func TestUpdatePinsFirstEntry(t *testing.T) {
	got := Update(nil, 42, 1000, DefaultPolicy())
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if !got[0].Pinned || got[0].Risk != 42 || got[0].Timestamp != 1000 {
		t.Errorf("unexpected entry %+v", got[0])
	}
}

func TestUpdatePinThrottle(t *testing.T) {
	p := DefaultPolicy()
	base := int64(1_700_000_000_000)
	series := Update(nil, 10, base, p)

	tests := []struct {
		name    string
		offset  int64
		wantPin bool
	}{
		{"10 minutes later", 10 * minute, false},
		{"49 minutes later", 49 * minute, false},
		{"exactly 50 minutes later", 50 * minute, true},
		{"an hour later", 60 * minute, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Update(series, 20, base+tt.offset, p)
			if got[len(got)-1].Pinned != tt.wantPin {
				t.Errorf("pinned = %v, want %v", got[len(got)-1].Pinned, tt.wantPin)
			}
		})
	}
}

func TestUpdateUsesLastPinnedNotLastEntry(t *testing.T) {
	p := DefaultPolicy()
	series := []models.TrendEntry{
		{Timestamp: 0, Risk: 1, Pinned: true},
		{Timestamp: 40 * minute, Risk: 1},
	}
	got := Update(series, 5, 55*minute, p)
	if !got[2].Pinned {
		t.Error("entry 55 minutes after the last pin should be pinned")
	}
}

func TestUpdateDoesNotMutateInput(t *testing.T) {
	series := make([]models.TrendEntry, 1, 5)
	series[0] = models.TrendEntry{Timestamp: 1, Risk: 1, Pinned: true}
	_ = Update(series, 2, 2, DefaultPolicy())
	if len(series) != 1 || series[:2][1] != (models.TrendEntry{}) {
		t.Errorf("input slice was modified: %+v", series[:2])
	}
}

func TestPinnedEntriesNeverCloserThanInterval(t *testing.T) {
	p := DefaultPolicy()
	var series []models.TrendEntry
	now := int64(0)
	for i := 0; i < 2000; i++ {
		now += int64(7+i%13) * minute
		series = Update(series, i%100, now, p)
	}

	var last int64 = -1
	for _, e := range series {
		if !e.Pinned {
			continue
		}
		if last >= 0 && e.Timestamp-last < p.PinInterval.Milliseconds() {
			t.Fatalf("pinned entries %d and %d are closer than %v", last, e.Timestamp, p.PinInterval)
		}
		last = e.Timestamp
	}
}

func TestRetention(t *testing.T) {
	p := DefaultPolicy()
	var series []models.TrendEntry
	now := int64(0)
	// 10-minute cadence for five days.
	for i := 0; i < 5*24*6; i++ {
		now += 10 * minute
		series = Update(series, i%100, now, p)
		if len(series) > p.MaxEntries+p.KeepRecent+int(p.Retention/p.PinInterval)+1 {
			t.Fatalf("series grew unbounded: %d", len(series))
		}
	}

	cutoff := now - p.Retention.Milliseconds()
	for i := 1; i < len(series); i++ {
		if series[i].Timestamp <= series[i-1].Timestamp {
			t.Fatalf("series out of order at %d", i)
		}
	}

	// The newest KeepRecent entries are the last KeepRecent runs.
	for i := 0; i < p.KeepRecent; i++ {
		want := now - int64(i)*10*minute
		if got := series[len(series)-1-i].Timestamp; got != want {
			t.Fatalf("recent entry %d has timestamp %d, want %d", i, got, want)
		}
	}

	// Every retained non-recent entry is a pinned entry inside the window.
	for _, e := range series[:len(series)-p.KeepRecent] {
		if !e.Pinned || e.Timestamp <= cutoff {
			t.Fatalf("unexpected retained entry %+v (cutoff %d)", e, cutoff)
		}
	}
}

func TestRetentionKeepsEveryPinnedEntryInWindow(t *testing.T) {
	p := DefaultPolicy()
	now := int64(100 * 60 * minute)
	var series []models.TrendEntry
	// 80 entries: pinned every hour across 100 hours, oldest first.
	for i := 0; i < 80; i++ {
		ts := now - int64(80-i)*60*minute
		series = append(series, models.TrendEntry{Timestamp: ts, Risk: i, Pinned: true})
	}

	got := Update(series, 99, now, p)

	cutoff := now - p.Retention.Milliseconds()
	wantPinned := 0
	for _, e := range series {
		if e.Timestamp > cutoff {
			wantPinned++
		}
	}
	pinned := 0
	for _, e := range got {
		if e.Pinned && e.Timestamp > cutoff {
			pinned++
		}
	}
	// The new entry is pinned too (an hour after the previous pin).
	if pinned != wantPinned+1 {
		t.Errorf("retained %d pinned entries, want %d", pinned, wantPinned+1)
	}
	if got[len(got)-1].Risk != 99 {
		t.Errorf("newest entry missing: %+v", got[len(got)-1])
	}
}

func TestShouldPinWithoutPinnedEntries(t *testing.T) {
	p := Policy{PinInterval: time.Hour}
	series := []models.TrendEntry{{Timestamp: 1}, {Timestamp: 2}}
	if !p.ShouldPin(series, 3) {
		t.Error("expected pin when no entry has been pinned yet")
	}
}
