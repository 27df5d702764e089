package agent

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// RowStatus tracks what happened to a recommendation after it was made.
type RowStatus string

const (
	StatusPending  RowStatus = "pending"
	StatusExecuted RowStatus = "executed"
	StatusFailed   RowStatus = "failed"
)

// RecommendationRow is one analyzed token's recommendation. Action is kept
// verbatim as the model produced it; ClassifyAction interprets it where a
// decision is actually needed.
type RecommendationRow struct {
	Token      string    `json:"token"`
	Action     string    `json:"action"`
	Confidence int       `json:"confidence"`
	Reasoning  string    `json:"reasoning"`
	Status     RowStatus `json:"status"`
}

// Ledger is the ordered table of recommendations for a run. It is not
// self-locking; the owning agent serializes access.
type Ledger struct {
	rows []RecommendationRow
}

func NewLedger() *Ledger {
	return &Ledger{}
}

func (l *Ledger) Append(row RecommendationRow) {
	l.rows = append(l.rows, row)
}

func (l *Ledger) Len() int {
	return len(l.rows)
}

// UpdateStatus mutates the status of the row at index.
func (l *Ledger) UpdateStatus(index int, status RowStatus) error {
	if index < 0 || index >= len(l.rows) {
		return fmt.Errorf("ledger index %d out of range (%d rows)", index, len(l.rows))
	}
	l.rows[index].Status = status
	return nil
}

// Snapshot returns a copy of all rows in order.
func (l *Ledger) Snapshot() []RecommendationRow {
	out := make([]RecommendationRow, len(l.rows))
	copy(out, l.rows)
	return out
}

// SummaryTable renders the token/action/confidence/status view logged once
// per cycle.
func (l *Ledger) SummaryTable() string {
	var b strings.Builder
	b.WriteString("token action confidence status\n")
	for _, row := range l.rows {
		fmt.Fprintf(&b, "%s %s %d %s\n", row.Token, row.Action, row.Confidence, row.Status)
	}
	return strings.TrimRight(b.String(), "\n")
}

var ledgerColumns = []string{"token", "action", "confidence", "reasoning", "status"}

// SaveCSV overwrites path with the full ledger snapshot.
func (l *Ledger) SaveCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create ledger file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(ledgerColumns); err != nil {
		return err
	}
	for _, row := range l.rows {
		record := []string{
			row.Token,
			row.Action,
			strconv.Itoa(row.Confidence),
			row.Reasoning,
			string(row.Status),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	if err := w.Error(); err != nil {
		return err
	}
	return nil
}

// LoadLedgerCSV reconstructs a ledger from a prior run's snapshot. A missing
// file yields an empty ledger so a fresh run starts clean.
func LoadLedgerCSV(path string) (*Ledger, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewLedger(), nil
		}
		return nil, fmt.Errorf("failed to open ledger file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse ledger file: %w", err)
	}

	ledger := NewLedger()
	for i, record := range records {
		if i == 0 {
			// header
			continue
		}
		if len(record) != len(ledgerColumns) {
			return nil, fmt.Errorf("ledger row %d has %d columns, want %d", i, len(record), len(ledgerColumns))
		}
		confidence, err := strconv.Atoi(record[2])
		if err != nil {
			return nil, fmt.Errorf("ledger row %d has bad confidence %q: %w", i, record[2], err)
		}
		ledger.Append(RecommendationRow{
			Token:      record[0],
			Action:     record[1],
			Confidence: confidence,
			Reasoning:  record[3],
			Status:     RowStatus(record[4]),
		})
	}
	return ledger, nil
}
