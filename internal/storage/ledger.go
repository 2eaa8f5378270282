package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/strikewatch/internal/models"
)

// LedgerLine is one successful run, appended to a day-partitioned JSONL file.
type LedgerLine struct {
	RunID         string         `json:"run_id"`
	At            time.Time      `json:"at"`
	TotalRisk     int            `json:"total_risk"`
	ElevatedCount int            `json:"elevated_count"`
	Signals       map[string]int `json:"signals"`
}

// Ledger appends run summaries under <Dir>/<YYYY-MM-DD>/ledger.jsonl.
type Ledger struct {
	Dir string
}

// NewLedgerLine summarizes a saved state.
func NewLedgerLine(runID string, state *models.State) LedgerLine {
	signals := make(map[string]int, len(state.Signals))
	for key, snap := range state.Signals {
		signals[key] = snap.Risk
	}
	return LedgerLine{
		RunID:         runID,
		At:            state.LastUpdated.UTC(),
		TotalRisk:     state.Total.Risk,
		ElevatedCount: state.Total.ElevatedCount,
		Signals:       signals,
	}
}

// Record appends the summary of state for runID.
func (l *Ledger) Record(runID string, state *models.State) error {
	if l == nil || l.Dir == "" {
		return errors.New("ledger directory is not configured")
	}
	return l.Append(NewLedgerLine(runID, state))
}

// Append writes one line.
func (l *Ledger) Append(line LedgerLine) error {
	day := line.At.UTC().Format("2006-01-02")
	dir := filepath.Join(l.Dir, day)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	path := filepath.Join(dir, "ledger.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.Marshal(line)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	_, err = f.Write(b)
	return err
}
