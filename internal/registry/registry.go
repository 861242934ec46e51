package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/webmon/webmon/internal/config"
	"github.com/webmon/webmon/internal/domain"
)

var (
	// ErrJobNotFound means no marker matched the given job id or pid.
	ErrJobNotFound = errors.New("job not found")
	// ErrCorruptMarker means a marker file exists but cannot be parsed.
	// Callers listing jobs skip such entries instead of failing.
	ErrCorruptMarker = errors.New("corrupt marker file")
	// ErrAlreadyExists means a marker for the id is already on disk.
	ErrAlreadyExists = errors.New("marker already exists")
)

// marker is the on-disk shape of a job's PID file.
type marker struct {
	JobID           string    `json:"job_id"`
	PID             int       `json:"pid"`
	URL             string    `json:"url"`
	IntervalSeconds float64   `json:"interval_seconds"`
	MaxChecks       int       `json:"max_checks,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Registry tracks background jobs through per-job marker files in the
// data directory. Liveness is derived on every read, never stored.
type Registry struct {
	cfg    config.Config
	logger *zap.Logger

	// ProcessAlive reports whether pid refers to a process that can be
	// the job created at createdAt. Overridable in tests.
	ProcessAlive func(pid int, createdAt time.Time) bool
}

func New(cfg config.Config, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{cfg: cfg, logger: logger, ProcessAlive: processAlive}
}

// AllocateJobID builds an identifier from a sanitized URL plus a random
// suffix. Uniqueness is ultimately enforced by WriteMarker's exclusive
// create.
func (g *Registry) AllocateJobID(url string) domain.JobID {
	return domain.JobID(sanitizeURL(url) + "_" + uuid.NewString()[:8])
}

// WriteMarker persists the job's marker file. The file is created
// exclusively so two racing starts can never share an id.
func (g *Registry) WriteMarker(job domain.Job) error {
	if err := g.cfg.EnsureDataDir(); err != nil {
		return err
	}
	m := marker{
		JobID:           string(job.ID),
		PID:             job.PID,
		URL:             job.URL,
		IntervalSeconds: job.Interval.Seconds(),
		MaxChecks:       job.MaxChecks,
		CreatedAt:       job.CreatedAt,
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("write marker: %w", err)
	}

	f, err := os.OpenFile(g.cfg.MarkerPath(string(job.ID)), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, job.ID)
		}
		return fmt.Errorf("write marker: %w", err)
	}
	_, werr := f.Write(append(b, '\n'))
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("write marker: %w", werr)
	}
	return cerr
}

// ReadMarker parses one marker file into a Job with derived liveness.
func (g *Registry) ReadMarker(path string) (domain.Job, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return domain.Job{}, err
	}
	var m marker
	if err := json.Unmarshal(b, &m); err != nil {
		return domain.Job{}, fmt.Errorf("%w: %s: %v", ErrCorruptMarker, filepath.Base(path), err)
	}
	if m.JobID == "" || m.PID <= 0 || m.URL == "" {
		return domain.Job{}, fmt.Errorf("%w: %s: missing fields", ErrCorruptMarker, filepath.Base(path))
	}
	job := domain.Job{
		ID:          domain.JobID(m.JobID),
		PID:         m.PID,
		URL:         m.URL,
		Interval:    time.Duration(m.IntervalSeconds * float64(time.Second)),
		MaxChecks:   m.MaxChecks,
		CreatedAt:   m.CreatedAt,
		MarkerFile:  path,
		HistoryFile: g.cfg.HistoryPath(m.JobID),
	}
	job.Alive = g.ProcessAlive(job.PID, job.CreatedAt)
	return job, nil
}

// List enumerates every marker in the data directory. Corrupt markers
// and markers vanishing mid-scan (a concurrent stop) are skipped.
func (g *Registry) List(ctx context.Context) ([]domain.Job, error) {
	paths, err := filepath.Glob(g.cfg.MarkerGlob())
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	jobs := make([]domain.Job, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		job, err := g.ReadMarker(p)
		if err != nil {
			if !os.IsNotExist(err) {
				g.logger.Warn("marker_skipped", zap.String("path", p), zap.Error(err))
			}
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Resolve accepts either a job id or a numeric OS process id and
// returns the matching job.
func (g *Registry) Resolve(ctx context.Context, identifier string) (domain.Job, error) {
	jobs, err := g.List(ctx)
	if err != nil {
		return domain.Job{}, err
	}
	if pid, err := strconv.Atoi(identifier); err == nil {
		for _, j := range jobs {
			if j.PID == pid {
				return j, nil
			}
		}
	}
	for _, j := range jobs {
		if string(j.ID) == identifier {
			return j, nil
		}
	}
	return domain.Job{}, fmt.Errorf("%w: %q", ErrJobNotFound, identifier)
}

// Remove deletes a job's marker file. Removing an absent marker is a no-op.
func (g *Registry) Remove(id domain.JobID) error {
	err := os.Remove(g.cfg.MarkerPath(string(id)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove marker: %w", err)
	}
	return nil
}

func sanitizeURL(url string) string {
	s := strings.NewReplacer("://", "_", "/", "_", ".", "_", ":", "_").Replace(url)
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}
