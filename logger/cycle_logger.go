package logger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// CycleRecord is one archived trading cycle.
type CycleRecord struct {
	RunID          string    `json:"run_id"`
	CycleNumber    int       `json:"cycle_number"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	LedgerJSON     string    `json:"ledger_json"`     // full ledger snapshot at cycle end
	AllocationJSON string    `json:"allocation_json"` // allocation produced this cycle, "{}" when none
	Success        bool      `json:"success"`
	ErrorMessage   string    `json:"error_message"`
}

// CycleLogger archives finished cycles to a per-run SQLite database under the
// runs directory. The CSV/JSON files remain the live contract; the archive
// keeps per-cycle history those files overwrite.
type CycleLogger struct {
	db          *sql.DB
	mu          sync.Mutex
	runID       string
	cycleNumber int
}

// NewCycleLogger opens (or creates) runs/<runID>_cycles.db and restores the
// cycle counter so numbering continues across restarts.
func NewCycleLogger(runsDir, runID string) (*CycleLogger, error) {
	if err := os.MkdirAll(runsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating runs directory: %w", err)
	}

	dbPath := filepath.Join(runsDir, runID+"_cycles.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("opening cycle database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cycle database connection failed: %w", err)
	}

	l := &CycleLogger{db: db, runID: runID}
	if err := l.initDB(); err != nil {
		db.Close()
		return nil, err
	}
	if err := l.restoreCycleNumber(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *CycleLogger) initDB() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cycles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		cycle_number INTEGER NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		ledger_json TEXT,
		allocation_json TEXT,
		success BOOLEAN NOT NULL DEFAULT 1,
		error_message TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_cycles_number ON cycles(cycle_number);
	`
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("creating cycle schema: %w", err)
	}
	return nil
}

func (l *CycleLogger) restoreCycleNumber() error {
	var max sql.NullInt64
	if err := l.db.QueryRow(`SELECT MAX(cycle_number) FROM cycles WHERE run_id = ?`, l.runID).Scan(&max); err != nil {
		return fmt.Errorf("restoring cycle number: %w", err)
	}
	if max.Valid {
		l.cycleNumber = int(max.Int64)
	}
	return nil
}

// LogCycle stores one finished cycle and advances the cycle counter.
func (l *CycleLogger) LogCycle(startedAt, finishedAt time.Time, ledgerJSON, allocationJSON string, success bool, errMessage string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cycleNumber++
	_, err := l.db.Exec(`
		INSERT INTO cycles (run_id, cycle_number, started_at, finished_at, ledger_json, allocation_json, success, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.runID, l.cycleNumber, startedAt, finishedAt, ledgerJSON, allocationJSON, success, errMessage)
	if err != nil {
		l.cycleNumber--
		return fmt.Errorf("inserting cycle record: %w", err)
	}
	return nil
}

// CycleCount returns the number of archived cycles.
func (l *CycleLogger) CycleCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cycleNumber
}

// GetAllRecords returns all archived cycles in order.
func (l *CycleLogger) GetAllRecords() ([]CycleRecord, error) {
	rows, err := l.db.Query(`
		SELECT run_id, cycle_number, started_at, finished_at, ledger_json, allocation_json, success, error_message
		FROM cycles ORDER BY cycle_number ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying cycle records: %w", err)
	}
	defer rows.Close()

	var records []CycleRecord
	for rows.Next() {
		var r CycleRecord
		if err := rows.Scan(&r.RunID, &r.CycleNumber, &r.StartedAt, &r.FinishedAt,
			&r.LedgerJSON, &r.AllocationJSON, &r.Success, &r.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scanning cycle record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetLatestRecord returns the most recent archived cycle, or nil when the
// archive is empty.
func (l *CycleLogger) GetLatestRecord() (*CycleRecord, error) {
	var r CycleRecord
	err := l.db.QueryRow(`
		SELECT run_id, cycle_number, started_at, finished_at, ledger_json, allocation_json, success, error_message
		FROM cycles ORDER BY cycle_number DESC LIMIT 1`).
		Scan(&r.RunID, &r.CycleNumber, &r.StartedAt, &r.FinishedAt,
			&r.LedgerJSON, &r.AllocationJSON, &r.Success, &r.ErrorMessage)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest cycle: %w", err)
	}
	return &r, nil
}

func (l *CycleLogger) Close() error {
	return l.db.Close()
}
