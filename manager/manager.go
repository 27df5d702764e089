package manager

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Coffee-fun/auto-trading/agent"
)

// AgentFactory builds a fully wired agent for a run id.
type AgentFactory func(runID string) (*agent.TradingAgent, error)

// AgentManager keeps exactly one active agent at a time. Starting a run for a
// different id stops the previous agent before the new one takes over, so two
// cycle loops never trade concurrently.
type AgentManager struct {
	mu      sync.RWMutex
	runsDir string
	factory AgentFactory
	active  *agent.TradingAgent
}

func New(runsDir string, factory AgentFactory) *AgentManager {
	return &AgentManager{runsDir: runsDir, factory: factory}
}

// Active returns the currently active agent, or nil when none is running.
func (m *AgentManager) Active() *agent.TradingAgent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Replace makes runID the active run. The previous agent (if any, and if it
// is a different run) receives a stop request; its in-flight cycle finishes
// on its own.
func (m *AgentManager) Replace(runID string) (*agent.TradingAgent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil && m.active.RunID() == runID {
		return m.active, nil
	}

	next, err := m.factory(runID)
	if err != nil {
		return nil, fmt.Errorf("building agent for run %s: %w", runID, err)
	}

	if m.active != nil {
		m.active.Stop()
	}
	m.active = next
	return next, nil
}

// GenerateRunID picks a fresh numeric run id and seeds its empty log file so
// the run shows up in listings immediately.
func (m *AgentManager) GenerateRunID() (string, error) {
	if err := os.MkdirAll(m.runsDir, 0o755); err != nil {
		return "", fmt.Errorf("creating runs directory: %w", err)
	}

	for attempt := 0; attempt < 100; attempt++ {
		candidate := fmt.Sprintf("%d", 1_000_000_000+rand.Int63n(9_000_000_000))
		matches, err := filepath.Glob(filepath.Join(m.runsDir, candidate+"_*"))
		if err != nil {
			return "", err
		}
		if len(matches) > 0 {
			continue
		}
		logsPath := filepath.Join(m.runsDir, candidate+"_logs.json")
		if err := os.WriteFile(logsPath, []byte("[]"), 0o644); err != nil {
			return "", fmt.Errorf("seeding run logs: %w", err)
		}
		return candidate, nil
	}
	return "", fmt.Errorf("could not find an unused run id")
}

// ListRunIDs returns every run id with files under the runs directory.
func (m *AgentManager) ListRunIDs() ([]string, error) {
	entries, err := os.ReadDir(m.runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("listing runs directory: %w", err)
	}

	seen := make(map[string]bool)
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		idx := strings.Index(name, "_")
		if idx <= 0 {
			continue
		}
		id := name[:idx]
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// RunLogs reads the persisted log sequence for a run.
func (m *AgentManager) RunLogs(runID string) ([]agent.LogEntry, error) {
	raw, err := os.ReadFile(filepath.Join(m.runsDir, runID+"_logs.json"))
	if err != nil {
		return nil, fmt.Errorf("reading run logs: %w", err)
	}
	var logs []agent.LogEntry
	if err := json.Unmarshal(raw, &logs); err != nil {
		return nil, fmt.Errorf("parsing run logs: %w", err)
	}
	return logs, nil
}
