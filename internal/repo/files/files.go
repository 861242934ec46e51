package files

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/webmon/webmon/internal/config"
	"github.com/webmon/webmon/internal/domain"
	"github.com/webmon/webmon/internal/repo"
)

// Store keeps one JSONL history file per job under the data directory.
// Each job's file has a single writer (that job's scheduler process),
// so appends need no locking; readers tolerate a file growing under
// them because parsing is per-line and lenient.
type Store struct {
	cfg config.Config
}

func New(cfg config.Config) *Store {
	return &Store{cfg: cfg}
}

// Append serializes r as one line and writes it with an
// open-append-close cycle. No in-memory buffering: a crash loses at
// most the in-flight entry.
func (s *Store) Append(ctx context.Context, jobID domain.JobID, r domain.CheckResult) error {
	if err := s.cfg.EnsureDataDir(); err != nil {
		return err
	}
	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("history append: %w", err)
	}

	f, err := os.OpenFile(s.cfg.HistoryPath(string(jobID)), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("history append: %w", err)
	}
	_, werr := f.Write(append(line, '\n'))
	serr := f.Sync()
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("history append: %w", werr)
	}
	if serr != nil {
		return fmt.Errorf("history append: %w", serr)
	}
	return cerr
}

func (s *Store) ReadLast(ctx context.Context, jobID domain.JobID, n int) ([]domain.CheckResult, error) {
	if n < 1 {
		n = 1
	}
	var all []domain.CheckResult
	if err := s.Scan(ctx, jobID, func(r domain.CheckResult) bool {
		all = append(all, r)
		return true
	}); err != nil {
		return nil, err
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

func (s *Store) Scan(ctx context.Context, jobID domain.JobID, fn func(domain.CheckResult) bool) error {
	f, err := os.Open(s.cfg.HistoryPath(string(jobID)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil // no history yet
		}
		return fmt.Errorf("history scan: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var r domain.CheckResult
		if err := json.Unmarshal(line, &r); err != nil {
			// partial or corrupt line, skip it
			continue
		}
		if !fn(r) {
			return nil
		}
	}
	return sc.Err()
}

func (s *Store) Delete(ctx context.Context, jobID domain.JobID) error {
	err := os.Remove(s.cfg.HistoryPath(string(jobID)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("history delete: %w", err)
	}
	return nil
}

var _ repo.HistoryStore = (*Store)(nil)
