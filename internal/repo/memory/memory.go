package memory

import (
	"context"
	"sync"

	"github.com/webmon/webmon/internal/domain"
	"github.com/webmon/webmon/internal/repo"
)

// Store is an in-memory HistoryStore used by tests and by foreground
// watch runs that do not need persistence.
type Store struct {
	mu      sync.RWMutex
	entries map[domain.JobID][]domain.CheckResult
}

func New() *Store {
	return &Store{entries: make(map[domain.JobID][]domain.CheckResult)}
}

func (m *Store) Append(ctx context.Context, jobID domain.JobID, r domain.CheckResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[jobID] = append(m.entries[jobID], r)
	return nil
}

func (m *Store) ReadLast(ctx context.Context, jobID domain.JobID, n int) ([]domain.CheckResult, error) {
	if n < 1 {
		n = 1
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.entries[jobID]
	if len(all) > n {
		all = all[len(all)-n:]
	}
	out := make([]domain.CheckResult, len(all))
	copy(out, all)
	return out, nil
}

func (m *Store) Scan(ctx context.Context, jobID domain.JobID, fn func(domain.CheckResult) bool) error {
	m.mu.RLock()
	snapshot := make([]domain.CheckResult, len(m.entries[jobID]))
	copy(snapshot, m.entries[jobID])
	m.mu.RUnlock()

	for _, r := range snapshot {
		if !fn(r) {
			return nil
		}
	}
	return nil
}

func (m *Store) Delete(ctx context.Context, jobID domain.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, jobID)
	return nil
}

var _ repo.HistoryStore = (*Store)(nil)
