package memory

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/itsneelabh/taskforge/core"
)

// Store persists Executions to an append-only, month-partitioned
// JSON-line ledger and keeps a mutex-guarded, in-memory rollup
// snapshotted to disk.
type Store struct {
	mu      sync.RWMutex
	root    string
	logger  core.Logger
	global  Rollup
	rollups map[string]Rollup
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(l core.Logger) Option {
	return func(s *Store) {
		if cal, ok := l.(core.ComponentAwareLogger); ok {
			s.logger = cal.WithComponent("memory")
			return
		}
		s.logger = l
	}
}

// NewStore builds a Store rooted at root, loading any rollup snapshot
// already on disk.
func NewStore(root string, opts ...Option) (*Store, error) {
	s := &Store{
		root:    root,
		logger:  core.NoOpLogger{},
		rollups: make(map[string]Rollup),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.loadRollups(); err != nil {
		return nil, err
	}
	return s, nil
}

type rollupSnapshot struct {
	Global  Rollup            `json:"global"`
	Rollups map[string]Rollup `json:"rollups"`
}

func (s *Store) snapshotPath() string {
	return filepath.Join(s.root, "rollups.json")
}

func (s *Store) loadRollups() error {
	data, err := os.ReadFile(s.snapshotPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("memory: read rollup snapshot: %w", err)
	}
	var snap rollupSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("memory: corrupt rollup snapshot, starting fresh", map[string]interface{}{"error": err.Error()})
		return nil
	}
	s.global = snap.Global
	if snap.Rollups != nil {
		s.rollups = snap.Rollups
	}
	return nil
}

func (s *Store) persistRollups() error {
	snap := rollupSnapshot{Global: s.global, Rollups: s.rollups}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("memory: marshal rollup snapshot: %w", err)
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("memory: create root: %w", err)
	}
	return os.WriteFile(s.snapshotPath(), data, 0o644)
}

// Record persists exec to the month-partitioned ledger and updates
// both the global and per-(domain, category) rollups.
func (s *Store) Record(exec Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.appendLedger(exec); err != nil {
		return err
	}

	s.global.add(exec.Success)
	key := domainCategoryKey(exec.Domain, exec.Category)
	r := s.rollups[key]
	r.add(exec.Success)
	s.rollups[key] = r

	if err := s.persistRollups(); err != nil {
		return err
	}

	s.logger.Debug("recorded execution", map[string]interface{}{
		"task_id": exec.TaskID, "domain": exec.Domain, "category": exec.Category, "success": exec.Success,
	})
	return nil
}

func (s *Store) ledgerPath(month string) string {
	return filepath.Join(s.root, "executions", month+".log")
}

func (s *Store) appendLedger(exec Execution) error {
	dir := filepath.Join(s.root, "executions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("memory: create executions directory: %w", err)
	}

	month := exec.CompletedAt.UTC().Format("2006-01")
	f, err := os.OpenFile(s.ledgerPath(month), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("memory: open ledger for append: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("memory: marshal execution: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("memory: write execution: %w", err)
	}
	return nil
}

// ListRecent returns up to limit Executions from the current month's
// ledger, newest first. A corrupt line is skipped rather than aborting
// the read, matching the audit package's same tolerance.
func (s *Store) ListRecent(limit int) ([]Execution, error) {
	month := time.Now().UTC().Format("2006-01")
	path := s.ledgerPath(month)

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: open ledger: %w", err)
	}
	defer f.Close()

	var execs []Execution
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var exec Execution
		if err := json.Unmarshal(scanner.Bytes(), &exec); err != nil {
			continue
		}
		execs = append(execs, exec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(execs) > limit {
		execs = execs[len(execs)-limit:]
	}
	for i, j := 0, len(execs)-1; i < j; i, j = i+1, j-1 {
		execs[i], execs[j] = execs[j], execs[i]
	}
	return execs, nil
}

// Dashboard returns a snapshot of the current rollups.
func (s *Store) Dashboard() Dashboard {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDomainCategory := make(map[string]Rollup, len(s.rollups))
	for k, v := range s.rollups {
		byDomainCategory[k] = v
	}
	return Dashboard{Global: s.global, ByDomainCategory: byDomainCategory}
}
