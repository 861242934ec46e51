package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/webmon/webmon/internal/config"
	"github.com/webmon/webmon/internal/domain"
	"github.com/webmon/webmon/internal/probe"
	"github.com/webmon/webmon/internal/registry"
)

var (
	// ErrSpawn means the detached scheduler process could not be
	// started. No marker file is left behind in that case.
	ErrSpawn = errors.New("process spawn failure")
	// ErrSignal means a live process could not be signalled or refused
	// to die. The marker file is kept, since the process may still run.
	ErrSignal = errors.New("could not stop process")
)

// StopOutcome reports what a stop actually did. Stopping an
// already-stopped job is a success with AlreadyStopped set.
type StopOutcome struct {
	Job            domain.Job
	AlreadyStopped bool
}

// Supervisor spawns scheduler loops as detached processes, records
// their pids in marker files and signals them to stop later. The
// process-control functions are fields so tests can run without
// spawning anything.
type Supervisor struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *registry.Registry

	// Spawn, Terminate and Kill are overridable so tests can run
	// without touching the process table.
	Spawn     func(job domain.Job, cfg config.Config, logFile *os.File) (int, error)
	Terminate func(pid int) error
	Kill      func(pid int) error
}

func New(cfg config.Config, logger *zap.Logger, reg *registry.Registry) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		cfg:       cfg,
		logger:    logger,
		registry:  reg,
		Spawn:     spawnDetached,
		Terminate: signalTERM,
		Kill:      signalKILL,
	}
}

// Start validates the URL, spawns the detached scheduler process with
// its stdout/stderr redirected to the job's operational log, writes the
// marker file and returns without waiting for the loop. A failed spawn
// leaves no marker behind.
func (s *Supervisor) Start(ctx context.Context, rawURL string, interval time.Duration, maxChecks int) (domain.Job, error) {
	url, err := probe.Normalize(rawURL)
	if err != nil {
		return domain.Job{}, err
	}
	if interval <= 0 {
		interval = s.cfg.Interval
	}
	if err := s.cfg.EnsureDataDir(); err != nil {
		return domain.Job{}, err
	}

	job := domain.Job{
		ID:        s.registry.AllocateJobID(url),
		URL:       url,
		Interval:  interval,
		MaxChecks: maxChecks,
		CreatedAt: time.Now().UTC(),
	}
	job.HistoryFile = s.cfg.HistoryPath(string(job.ID))
	job.MarkerFile = s.cfg.MarkerPath(string(job.ID))

	logFile, err := os.OpenFile(s.cfg.JobLogPath(string(job.ID)), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return domain.Job{}, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	defer logFile.Close()

	pid, err := s.Spawn(job, s.cfg, logFile)
	if err != nil {
		return domain.Job{}, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	job.PID = pid
	job.Alive = true

	if err := s.registry.WriteMarker(job); err != nil {
		// the loop is already running without a marker; take it down
		_ = s.Terminate(pid)
		return domain.Job{}, err
	}

	s.logger.Info("job_started",
		zap.String("job_id", string(job.ID)),
		zap.Int("pid", pid),
		zap.String("url", url),
		zap.Duration("interval", interval),
		zap.Int("max_checks", maxChecks),
	)
	return job, nil
}

// Stop resolves the job, signals its process when alive (SIGTERM, then
// SIGKILL if it lingers) and removes the marker only once the process
// is gone. Repeating stop is a no-op success, not an error.
func (s *Supervisor) Stop(ctx context.Context, identifier string) (StopOutcome, error) {
	job, err := s.registry.Resolve(ctx, identifier)
	if err != nil {
		if errors.Is(err, registry.ErrJobNotFound) && s.artifactsExist(identifier) {
			// marker already removed by an earlier stop
			return StopOutcome{
				Job:            domain.Job{ID: domain.JobID(identifier)},
				AlreadyStopped: true,
			}, nil
		}
		return StopOutcome{}, err
	}

	out := StopOutcome{Job: job}
	if job.Alive {
		if err := s.Terminate(job.PID); err != nil {
			return out, multierr.Append(fmt.Errorf("%w: pid %d", ErrSignal, job.PID), err)
		}
		if !s.waitGone(ctx, job, 2*time.Second) {
			if err := s.Kill(job.PID); err != nil {
				return out, multierr.Append(fmt.Errorf("%w: pid %d", ErrSignal, job.PID), err)
			}
			if !s.waitGone(ctx, job, time.Second) {
				return out, fmt.Errorf("%w: pid %d survived SIGKILL", ErrSignal, job.PID)
			}
		}
		s.logger.Info("job_stopped", zap.String("job_id", string(job.ID)), zap.Int("pid", job.PID))
	} else {
		out.AlreadyStopped = true
	}

	if err := s.registry.Remove(job.ID); err != nil {
		return out, err
	}
	out.Job.Alive = false
	return out, nil
}

// Lookup resolves a job id or pid including jobs whose marker is
// already gone but whose history or operational log still exists, so
// details/logs keep working after stop.
func (s *Supervisor) Lookup(ctx context.Context, identifier string) (domain.Job, error) {
	job, err := s.registry.Resolve(ctx, identifier)
	if err == nil {
		return job, nil
	}
	if errors.Is(err, registry.ErrJobNotFound) && s.artifactsExist(identifier) {
		return domain.Job{
			ID:          domain.JobID(identifier),
			HistoryFile: s.cfg.HistoryPath(identifier),
			Interval:    s.cfg.Interval,
		}, nil
	}
	return domain.Job{}, err
}

// Logs returns the last n lines of the job's operational log.
func (s *Supervisor) Logs(ctx context.Context, identifier string, n int) ([]string, error) {
	job, err := s.Lookup(ctx, identifier)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.cfg.JobLogPath(string(job.ID)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read logs: %w", err)
	}
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Cleanup deletes history and operational logs of every job that is
// not alive. Markers of dead jobs are removed too. Live jobs are left
// untouched.
func (s *Supervisor) Cleanup(ctx context.Context) ([]domain.JobID, error) {
	jobs, err := s.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	live := make(map[domain.JobID]bool)
	var removed []domain.JobID
	var errs error
	for _, j := range jobs {
		if j.Alive {
			live[j.ID] = true
			continue
		}
		errs = multierr.Append(errs, s.registry.Remove(j.ID))
		removed = append(removed, j.ID)
	}

	// histories may outlive their markers
	matches, err := os.ReadDir(s.cfg.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return removed, errs
		}
		return removed, multierr.Append(errs, err)
	}
	seen := make(map[domain.JobID]bool)
	for _, id := range removed {
		seen[id] = true
	}
	for _, e := range matches {
		name := e.Name()
		if !strings.HasSuffix(name, ".history") {
			continue
		}
		id := domain.JobID(strings.TrimSuffix(name, ".history"))
		if live[id] {
			continue
		}
		if !seen[id] {
			removed = append(removed, id)
			seen[id] = true
		}
	}
	for _, id := range removed {
		errs = multierr.Combine(errs,
			removeIfExists(s.cfg.HistoryPath(string(id))),
			removeIfExists(s.cfg.JobLogPath(string(id))),
		)
	}
	if len(removed) > 0 {
		s.logger.Info("cleanup_done", zap.Int("jobs", len(removed)))
	}
	return removed, errs
}

func (s *Supervisor) waitGone(ctx context.Context, job domain.Job, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if !s.registry.ProcessAlive(job.PID, job.CreatedAt) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
	return !s.registry.ProcessAlive(job.PID, job.CreatedAt)
}

func (s *Supervisor) artifactsExist(identifier string) bool {
	if _, err := os.Stat(s.cfg.HistoryPath(identifier)); err == nil {
		return true
	}
	if _, err := os.Stat(s.cfg.JobLogPath(identifier)); err == nil {
		return true
	}
	return false
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// WatchArgs builds the argv (after the program name) that re-runs this
// binary as the job's scheduler loop.
func WatchArgs(job domain.Job, cfg config.Config) []string {
	args := []string{
		"watch",
		"-interval", job.Interval.String(),
		"-timeout", cfg.Timeout.String(),
		"-job-id", string(job.ID),
		"-success-codes", codesList(cfg.SuccessCodes),
	}
	if job.MaxChecks > 0 {
		args = append(args, "-max-checks", strconv.Itoa(job.MaxChecks))
	}
	if cfg.WebhookURL != "" {
		args = append(args, "-webhook-url", cfg.WebhookURL)
	}
	args = append(args, job.URL)
	return args
}

func codesList(codes map[int]bool) string {
	keys := make([]int, 0, len(codes))
	for c := range codes {
		keys = append(keys, c)
	}
	sort.Ints(keys)
	parts := make([]string, len(keys))
	for i, c := range keys {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ",")
}
