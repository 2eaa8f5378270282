package models

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestSnapshotValidate(t *testing.T) {
	tests := []struct {
		name     string
		snapshot Snapshot
		wantErr  bool
	}{
		{
			name:     "valid snapshot",
			snapshot: Snapshot{Risk: 40, Detail: "40 flights in region", RawData: map[string]interface{}{}},
			wantErr:  false,
		},
		{
			name:     "risk above range",
			snapshot: Snapshot{Risk: 101, Detail: "x", RawData: map[string]interface{}{}},
			wantErr:  true,
		},
		{
			name:     "negative risk",
			snapshot: Snapshot{Risk: -1, Detail: "x", RawData: map[string]interface{}{}},
			wantErr:  true,
		},
		{
			name:     "empty detail",
			snapshot: Snapshot{Risk: 10, RawData: map[string]interface{}{}},
			wantErr:  true,
		},
		{
			name:     "nil raw data",
			snapshot: Snapshot{Risk: 10, Detail: "x"},
			wantErr:  true,
		},
		{
			name:     "history out of range",
			snapshot: Snapshot{Risk: 10, Detail: "x", RawData: map[string]interface{}{}, History: []int{5, 120}},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.snapshot.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Snapshot.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSnapshotBaselineHistory(t *testing.T) {
	tests := []struct {
		name string
		raw  interface{}
		want []float64
	}{
		{"float slice", []float64{1, 2, 3}, []float64{1, 2, 3}},
		{"int slice", []int{4, 5}, []float64{4, 5}},
		{"decoded json", []interface{}{float64(7), "junk", float64(9)}, []float64{7, 9}},
		{"wrong type", "nope", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Snapshot{RawData: map[string]interface{}{BaselineHistoryKey: tt.raw}}
			got := s.BaselineHistory()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("BaselineHistory() = %v, want %v", got, tt.want)
			}
		})
	}

	var nilSnap *Snapshot
	if got := nilSnap.BaselineHistory(); got != nil {
		t.Errorf("nil snapshot BaselineHistory() = %v, want nil", got)
	}
}

func TestStateJSONShape(t *testing.T) {
	ts := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	state := &State{
		Signals: map[string]*Snapshot{
			KeyNews: {Risk: 10, Detail: "quiet", RawData: map[string]interface{}{"total": 3}, History: []int{10}},
			KeyAviation: {Risk: 80, Detail: "12 flights in region", RawData: map[string]interface{}{
				BaselineHistoryKey: []float64{40, 12},
			}, History: []int{70, 80}},
		},
		Total: TotalRisk{
			Risk:          57,
			History:       []TrendEntry{{Timestamp: ts.UnixMilli(), Risk: 57, Pinned: true}},
			ElevatedCount: 2,
		},
		LastUpdated: ts,
	}

	data, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	for _, key := range []string{KeyNews, KeyAviation, "total_risk", "last_updated"} {
		if _, ok := top[key]; !ok {
			t.Errorf("missing top-level key %q in %s", key, data)
		}
	}
	if string(top["last_updated"]) != `"2026-10-15T12:00:00Z"` {
		t.Errorf("last_updated = %s", top["last_updated"])
	}

	var back State
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if back.Total.Risk != 57 || back.Total.ElevatedCount != 2 || len(back.Total.History) != 1 {
		t.Errorf("total risk not restored: %+v", back.Total)
	}
	if !back.LastUpdated.Equal(ts) {
		t.Errorf("LastUpdated = %v, want %v", back.LastUpdated, ts)
	}
	if got := back.BaselineHistory(KeyAviation); !reflect.DeepEqual(got, []float64{40, 12}) {
		t.Errorf("aviation baseline = %v", got)
	}
	if got := back.DisplayHistory(KeyAviation); !reflect.DeepEqual(got, []int{70, 80}) {
		t.Errorf("aviation history = %v", got)
	}
}

func TestStateUnmarshalPythonTimestamp(t *testing.T) {
	doc := `{"total_risk":{"risk":12,"history":[],"elevated_count":0},"last_updated":"2026-01-02T03:04:05.123456"}`
	var s State
	if err := json.Unmarshal([]byte(doc), &s); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if s.LastUpdated.Year() != 2026 || s.LastUpdated.Second() != 5 {
		t.Errorf("unexpected LastUpdated %v", s.LastUpdated)
	}
}

func TestStateUnmarshalRejectsBadSignal(t *testing.T) {
	var s State
	if err := json.Unmarshal([]byte(`{"news":"not an object"}`), &s); err == nil {
		t.Error("expected error for malformed signal")
	}
}

func TestStateValidate(t *testing.T) {
	s := NewState()
	s.Signals[KeyWeather] = &Snapshot{Risk: 5, Detail: "poor", RawData: map[string]interface{}{}}
	if err := s.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}

	s.Total.Risk = 150
	if err := s.Validate(); err == nil {
		t.Error("expected error for total risk out of range")
	}

	var empty *State
	if !empty.IsEmpty() || !NewState().IsEmpty() {
		t.Error("expected empty states to report IsEmpty")
	}
}

func TestDisplayHistoryDropsOutOfRange(t *testing.T) {
	state := NewState()
	state.Signals[KeyNews] = &Snapshot{Risk: 10, Detail: "x", RawData: map[string]interface{}{}, History: []int{150, 20, -4, 100, 0}}

	if got := state.DisplayHistory(KeyNews); !reflect.DeepEqual(got, []int{20, 100, 0}) {
		t.Errorf("DisplayHistory() = %v", got)
	}
	if got := state.DisplayHistory(KeyWeather); got != nil {
		t.Errorf("missing key should give nil, got %v", got)
	}
}
