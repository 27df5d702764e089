package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Coffee-fun/auto-trading/config"
	"github.com/Coffee-fun/auto-trading/market"
	"github.com/Coffee-fun/auto-trading/trader"
)

// Completer is the model surface the agent calls for analysis, allocation and
// feedback structuring.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// DataSource supplies OHLCV history and wallet holdings.
type DataSource interface {
	CollectAll(ctx context.Context, tokens []string, logf func(string)) map[string]*market.Data
	WalletHoldings(ctx context.Context, wallet string) ([]string, error)
}

// CycleArchive records one finished cycle to durable storage. May be nil.
type CycleArchive interface {
	LogCycle(startedAt, finishedAt time.Time, ledgerJSON, allocationJSON string, success bool, errMessage string) error
}

// Status is the agent lifecycle state. There is no stopped state: once the
// loop observes a stop request it simply never transitions again, leaving the
// final observable status at sleeping.
type Status string

const (
	StatusInitialized Status = "initialized"
	StatusTrading     Status = "trading"
	StatusSleeping    Status = "sleeping"
)

// LogEntry is one line of the run's audit trail, persisted as JSON after
// every append so the log file is always current.
type LogEntry struct {
	Role    string  `json:"role"`
	Time    float64 `json:"time"`
	Message string  `json:"message"`
}

// interOrderDelay spaces out consecutive entry orders to respect exchange
// rate limits.
const interOrderDelay = 2 * time.Second

// TradingAgent owns one run: its ledger, its log and the background cycle
// loop. The ledger and logs are mutated both by the cycle goroutine and by
// feedback calls, so all mutation goes through mu.
type TradingAgent struct {
	runID   string
	cfg     *config.Config
	llm     Completer
	data    DataSource
	trader  trader.Trader
	archive CycleArchive

	mu      sync.Mutex // guards status, logs, ledger, signals
	status  Status
	logs    []LogEntry
	ledger  *Ledger
	signals map[string]json.RawMessage // per-token strategy signals merged into analysis

	fileMu sync.Mutex // serializes log file writes

	stop     chan struct{}
	stopOnce sync.Once
	started  bool
}

// New builds an agent for runID, restoring any previously persisted ledger
// and logs so a run survives process restarts.
func New(runID string, cfg *config.Config, llm Completer, data DataSource, tr trader.Trader, archive CycleArchive) (*TradingAgent, error) {
	if runID == "" {
		return nil, fmt.Errorf("run id must not be empty")
	}

	ledger, err := LoadLedgerCSV(filepath.Join(cfg.RunsDir, runID+"_recommendations_latest.csv"))
	if err != nil {
		return nil, fmt.Errorf("loading recommendation ledger: %w", err)
	}

	a := &TradingAgent{
		runID:   runID,
		cfg:     cfg,
		llm:     llm,
		data:    data,
		trader:  tr,
		archive: archive,
		status:  StatusInitialized,
		ledger:  ledger,
		stop:    make(chan struct{}),
	}
	if err := a.loadLogs(); err != nil {
		return nil, fmt.Errorf("loading run logs: %w", err)
	}
	return a, nil
}

func (a *TradingAgent) RunID() string { return a.runID }

func (a *TradingAgent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *TradingAgent) setStatus(s Status) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
}

// SetStrategySignals supplies per-token signal payloads that get embedded in
// the next cycle's analysis prompts. Passing nil clears them.
func (a *TradingAgent) SetStrategySignals(signals map[string]json.RawMessage) {
	a.mu.Lock()
	a.signals = signals
	a.mu.Unlock()
}

func (a *TradingAgent) signalsFor(token string) json.RawMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.signals[token]
}

// Run starts the cycle loop in the background. Subsequent calls are no-ops;
// one agent runs at most one loop.
func (a *TradingAgent) Run() {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return
	}
	a.started = true
	a.mu.Unlock()

	go a.runLoop()
}

// Stop requests a cooperative shutdown. An in-flight cycle runs to
// completion; the sleep between cycles is interrupted.
func (a *TradingAgent) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
}

func (a *TradingAgent) runLoop() {
	for {
		select {
		case <-a.stop:
			return
		default:
		}

		a.runCycle(context.Background())

		sleep := a.cfg.SleepBetweenRuns()
		a.log(fmt.Sprintf("⏳ AI Agent run complete. Next run at %s",
			time.Now().Add(sleep).Format("2006-01-02 15:04:05")))

		select {
		case <-a.stop:
			return
		case <-time.After(sleep):
		}
	}
}

// runCycle drives one iteration. Any panic in the body is caught here so a
// bad cycle never kills the loop; the finally-style tail always persists the
// ledger and flips the status to sleeping.
func (a *TradingAgent) runCycle(ctx context.Context) {
	a.setStatus(StatusTrading)
	a.log(fmt.Sprintf("⏰ AI Agent Run Starting at %s", time.Now().Format("2006-01-02 15:04:05")))

	startedAt := time.Now()
	var (
		allocations map[string]float64
		cycleErr    error
	)

	func() {
		defer func() {
			if r := recover(); r != nil {
				cycleErr = fmt.Errorf("panic: %v", r)
			}
		}()
		allocations = a.runCycleBody(ctx)
	}()

	if cycleErr != nil {
		a.log(fmt.Sprintf("❌ Error in trading cycle: %v", cycleErr))
		a.log("🔧 Coffee AI suggests checking the logs and trying again!")
	}

	a.persistLedger()
	a.setStatus(StatusSleeping)
	a.archiveCycle(startedAt, allocations, cycleErr)
}

func (a *TradingAgent) runCycleBody(ctx context.Context) map[string]float64 {
	tokens := a.resolveTokens(ctx)
	if len(tokens) == 0 {
		a.log("⚠️ No tokens to analyze this cycle.")
		return nil
	}

	a.log("📊 Collecting market data...")
	collected := a.data.CollectAll(ctx, tokens, a.log)

	for _, token := range tokens {
		data, ok := collected[token]
		if !ok {
			continue
		}
		if sig := a.signalsFor(token); len(sig) > 0 {
			a.log(fmt.Sprintf("📊 Including strategy signals in analysis for %s", shortToken(token)))
			data.StrategySignals = sig
		}
		if response := a.analyzeToken(ctx, token, data); response != "" {
			a.log(response)
			a.log(strings.Repeat("-", 40))
		}
	}

	a.log("📊 Coffee AI's Trading Recommendations:")
	a.log(a.ledgerSummary())

	a.handleExits(ctx)

	allocations := a.allocatePortfolio(ctx, tokens)
	if len(allocations) > 0 {
		a.executeAllocations(ctx, allocations)
	} else {
		a.log("⚠️ No allocations to execute!")
	}

	a.cleanupTempData()
	return allocations
}

// resolveTokens re-resolves the token universe every cycle. Wallet holdings
// win when a wallet is configured; otherwise the configured default list is
// used. Excluded tokens never make it into the universe.
func (a *TradingAgent) resolveTokens(ctx context.Context) []string {
	var tokens []string
	if a.cfg.WalletAddress != "" {
		held, err := a.data.WalletHoldings(ctx, a.cfg.WalletAddress)
		if err != nil {
			a.log(fmt.Sprintf("⚠️ Could not resolve wallet holdings: %v", err))
		} else {
			tokens = held
		}
	}
	if len(tokens) == 0 {
		tokens = a.cfg.DefaultTokens
	}

	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if a.cfg.IsExcluded(token) {
			continue
		}
		out = append(out, token)
	}
	return out
}

// handleExits walks pending ledger rows against live positions. A SELL row
// with an open position triggers the exit collaborator; any other action with
// an open position counts as satisfied and is marked executed.
func (a *TradingAgent) handleExits(ctx context.Context) {
	for i, row := range a.LedgerSnapshot() {
		if row.Status != StatusPending || a.cfg.IsExcluded(row.Token) {
			continue
		}

		value, err := a.trader.GetPositionValueUSD(ctx, row.Token)
		if err != nil {
			a.log(fmt.Sprintf("❌ Error checking position for %s: %v", shortToken(row.Token), err))
			continue
		}
		if value <= 0 {
			continue
		}

		if ClassifyAction(row.Action) == KindSell {
			a.log(fmt.Sprintf("📉 Exiting position in %s (current value $%.2f)", shortToken(row.Token), value))
			if err := a.trader.ExitPosition(ctx, row.Token); err != nil {
				a.log(fmt.Sprintf("❌ Error exiting position in %s: %v", shortToken(row.Token), err))
				a.updateRowStatus(i, StatusFailed)
			} else {
				a.updateRowStatus(i, StatusExecuted)
			}
			continue
		}

		a.updateRowStatus(i, StatusExecuted)
	}
}

// executeAllocations brings positions up to their allocated targets. The
// entry collaborator receives the absolute target amount; tokens already at
// or above target are skipped.
func (a *TradingAgent) executeAllocations(ctx context.Context, allocations map[string]float64) {
	a.log("🚀 Executing allocations...")
	for _, token := range sortedKeys(allocations) {
		if token == a.cfg.CashTokenAddress || a.cfg.IsExcluded(token) {
			continue
		}
		target := allocations[token]

		switch current, err := a.trader.GetPositionValueUSD(ctx, token); {
		case err != nil:
			a.log(fmt.Sprintf("❌ Error checking position for %s: %v", shortToken(token), err))
		case current >= target:
			a.log(fmt.Sprintf("✅ %s already at target ($%.2f >= $%.2f)", shortToken(token), current, target))
		default:
			a.log(fmt.Sprintf("💸 Entering position in %s: target $%.2f (current $%.2f)", shortToken(token), target, current))
			if err := a.trader.EnterPosition(ctx, token, target); err != nil {
				a.log(fmt.Sprintf("❌ Error entering position in %s: %v", shortToken(token), err))
			}
		}

		// Pace orders even when a token errors or is already sized.
		select {
		case <-ctx.Done():
			return
		case <-time.After(interOrderDelay):
		}
	}
}

// cleanupTempData removes the per-token candle caches written during data
// collection. Failures are logged and otherwise ignored.
func (a *TradingAgent) cleanupTempData() {
	matches, err := filepath.Glob(filepath.Join(a.cfg.TempDataDir, "*_latest.csv"))
	if err != nil {
		return
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			a.log(fmt.Sprintf("⚠️ Could not remove temp file %s: %v", path, err))
		}
	}
}

func (a *TradingAgent) appendRow(row RecommendationRow) {
	a.mu.Lock()
	a.ledger.Append(row)
	a.mu.Unlock()
}

func (a *TradingAgent) updateRowStatus(index int, status RowStatus) {
	a.mu.Lock()
	err := a.ledger.UpdateStatus(index, status)
	a.mu.Unlock()
	if err != nil {
		a.log(fmt.Sprintf("⚠️ Could not update recommendation status: %v", err))
	}
}

func (a *TradingAgent) LedgerSnapshot() []RecommendationRow {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ledger.Snapshot()
}

func (a *TradingAgent) ledgerSummary() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ledger.SummaryTable()
}

func (a *TradingAgent) LogsSnapshot() []LogEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]LogEntry, len(a.logs))
	copy(out, a.logs)
	return out
}

func (a *TradingAgent) log(message string) { a.logAs("system", message) }

// logAs appends a log entry, echoes it to stdout and rewrites the run's log
// file. The file write happens under its own mutex so concurrent appends from
// the cycle goroutine and a feedback call cannot interleave partial writes.
func (a *TradingAgent) logAs(role, message string) {
	entry := LogEntry{
		Role:    role,
		Time:    float64(time.Now().UnixNano()) / 1e9,
		Message: message,
	}

	a.mu.Lock()
	a.logs = append(a.logs, entry)
	snapshot := make([]LogEntry, len(a.logs))
	copy(snapshot, a.logs)
	a.mu.Unlock()

	log.Printf("[%s] %s", a.runID, message)

	if err := a.persistLogs(snapshot); err != nil {
		log.Printf("[%s] ⚠️ Failed to persist logs: %v", a.runID, err)
	}
}

func (a *TradingAgent) logsPath() string {
	return filepath.Join(a.cfg.RunsDir, a.runID+"_logs.json")
}

func (a *TradingAgent) ledgerPath() string {
	return filepath.Join(a.cfg.RunsDir, a.runID+"_recommendations_latest.csv")
}

func (a *TradingAgent) loadLogs() error {
	raw, err := os.ReadFile(a.logsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var logs []LogEntry
	if err := json.Unmarshal(raw, &logs); err != nil {
		return fmt.Errorf("parsing log file: %w", err)
	}
	a.logs = logs
	return nil
}

func (a *TradingAgent) persistLogs(snapshot []LogEntry) error {
	a.fileMu.Lock()
	defer a.fileMu.Unlock()

	if err := os.MkdirAll(a.cfg.RunsDir, 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(a.logsPath(), raw, 0o644)
}

// persistLedger overwrites the run's recommendation CSV with the current
// in-memory ledger.
func (a *TradingAgent) persistLedger() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(a.cfg.RunsDir, 0o755); err != nil {
		log.Printf("[%s] ⚠️ Failed to create runs dir: %v", a.runID, err)
		return
	}
	if err := a.ledger.SaveCSV(a.ledgerPath()); err != nil {
		log.Printf("[%s] ⚠️ Failed to persist recommendations: %v", a.runID, err)
	}
}

func (a *TradingAgent) archiveCycle(startedAt time.Time, allocations map[string]float64, cycleErr error) {
	if a.archive == nil {
		return
	}

	ledgerJSON, err := json.Marshal(a.LedgerSnapshot())
	if err != nil {
		ledgerJSON = []byte("[]")
	}
	allocationJSON := []byte("{}")
	if len(allocations) > 0 {
		if raw, err := json.Marshal(allocations); err == nil {
			allocationJSON = raw
		}
	}

	errMessage := ""
	if cycleErr != nil {
		errMessage = cycleErr.Error()
	}
	if err := a.archive.LogCycle(startedAt, time.Now(), string(ledgerJSON), string(allocationJSON), cycleErr == nil, errMessage); err != nil {
		log.Printf("[%s] ⚠️ Failed to archive cycle: %v", a.runID, err)
	}
}
