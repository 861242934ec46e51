package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/webmon/webmon/internal/config"
	"github.com/webmon/webmon/internal/domain"
	"github.com/webmon/webmon/internal/probe"
	"github.com/webmon/webmon/internal/registry"
)

// fakeProcs stands in for the OS process table.
type fakeProcs struct {
	mu     sync.Mutex
	nextID int
	alive  map[int]bool
	termed []int
	killed []int
}

func newFakeProcs() *fakeProcs {
	return &fakeProcs{nextID: 1000, alive: map[int]bool{}}
}

func (f *fakeProcs) spawn(job domain.Job, cfg config.Config, logFile *os.File) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.alive[f.nextID] = true
	fmt.Fprintf(logFile, "loop started for %s\n", job.URL)
	return f.nextID, nil
}

func (f *fakeProcs) terminate(pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.termed = append(f.termed, pid)
	delete(f.alive, pid)
	return nil
}

func (f *fakeProcs) kill(pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, pid)
	delete(f.alive, pid)
	return nil
}

func (f *fakeProcs) isAlive(pid int, _ time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[pid]
}

func testSupervisor(t *testing.T) (*Supervisor, *fakeProcs, config.Config) {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Interval = time.Second

	reg := registry.New(cfg, zap.NewNop())
	procs := newFakeProcs()
	reg.ProcessAlive = procs.isAlive

	s := New(cfg, zap.NewNop(), reg)
	s.Spawn = procs.spawn
	s.Terminate = procs.terminate
	s.Kill = procs.kill
	return s, procs, cfg
}

func TestStart_InvalidURLAbortsBeforeSpawn(t *testing.T) {
	s, procs, cfg := testSupervisor(t)

	_, err := s.Start(context.Background(), "not-a-url", time.Second, 0)
	if !errors.Is(err, probe.ErrInvalidURL) {
		t.Fatalf("want ErrInvalidURL, got %v", err)
	}
	if len(procs.alive) != 0 {
		t.Fatalf("nothing should have been spawned")
	}
	if entries, _ := os.ReadDir(cfg.DataDir); len(entries) != 0 {
		t.Fatalf("no files should be left behind, got %v", entries)
	}
}

func TestStart_SpawnFailureLeavesNoMarker(t *testing.T) {
	s, _, cfg := testSupervisor(t)
	s.Spawn = func(domain.Job, config.Config, *os.File) (int, error) {
		return 0, errors.New("fork: resource exhausted")
	}

	_, err := s.Start(context.Background(), "https://example.com", time.Second, 0)
	if !errors.Is(err, ErrSpawn) {
		t.Fatalf("want ErrSpawn, got %v", err)
	}
	markers, _ := os.ReadDir(cfg.DataDir)
	for _, e := range markers {
		if strings.HasPrefix(e.Name(), "job-") {
			t.Fatalf("phantom marker left behind: %s", e.Name())
		}
	}
}

func TestStartStop_FullLifecycle(t *testing.T) {
	s, procs, _ := testSupervisor(t)
	ctx := context.Background()

	job, err := s.Start(ctx, "https://Example.com", 30*time.Second, 5)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if job.URL != "https://example.com" {
		t.Fatalf("url should be normalized, got %q", job.URL)
	}
	if job.PID == 0 || !job.Alive {
		t.Fatalf("job should be running: %+v", job)
	}

	// resolvable both ways
	if _, err := s.registry.Resolve(ctx, string(job.ID)); err != nil {
		t.Fatalf("resolve by id: %v", err)
	}
	if _, err := s.registry.Resolve(ctx, strconv.Itoa(job.PID)); err != nil {
		t.Fatalf("resolve by pid: %v", err)
	}

	out, err := s.Stop(ctx, string(job.ID))
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if out.AlreadyStopped {
		t.Fatalf("first stop should do real work")
	}
	if len(procs.termed) != 1 || procs.termed[0] != job.PID {
		t.Fatalf("SIGTERM not sent: %+v", procs.termed)
	}
	if len(procs.killed) != 0 {
		t.Fatalf("SIGKILL should not be needed for a cooperative process")
	}
	if _, err := s.registry.Resolve(ctx, string(job.ID)); !errors.Is(err, registry.ErrJobNotFound) {
		t.Fatalf("marker should be gone after stop, got %v", err)
	}
}

func TestStop_Idempotent(t *testing.T) {
	s, _, _ := testSupervisor(t)
	ctx := context.Background()

	job, err := s.Start(ctx, "https://example.com", time.Second, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Stop(ctx, string(job.ID)); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	// operational log still exists, marker does not
	out, err := s.Stop(ctx, string(job.ID))
	if err != nil {
		t.Fatalf("second stop must not error: %v", err)
	}
	if !out.AlreadyStopped {
		t.Fatalf("second stop should report already stopped")
	}
}

func TestStop_UnknownIdentifier(t *testing.T) {
	s, _, _ := testSupervisor(t)
	_, err := s.Stop(context.Background(), "never_existed")
	if !errors.Is(err, registry.ErrJobNotFound) {
		t.Fatalf("want ErrJobNotFound, got %v", err)
	}
}

func TestStop_SignalFailureKeepsMarker(t *testing.T) {
	s, _, _ := testSupervisor(t)
	ctx := context.Background()

	job, err := s.Start(ctx, "https://example.com", time.Second, 0)
	if err != nil {
		t.Fatal(err)
	}
	s.Terminate = func(pid int) error { return errors.New("operation not permitted") }

	if _, err := s.Stop(ctx, string(job.ID)); !errors.Is(err, ErrSignal) {
		t.Fatalf("want ErrSignal, got %v", err)
	}
	// the process may still be running, so the marker must survive
	if _, err := s.registry.Resolve(ctx, string(job.ID)); err != nil {
		t.Fatalf("marker should be kept after signal failure: %v", err)
	}
}

func TestStop_EscalatesToKill(t *testing.T) {
	s, procs, _ := testSupervisor(t)
	ctx := context.Background()

	job, err := s.Start(ctx, "https://example.com", time.Second, 0)
	if err != nil {
		t.Fatal(err)
	}
	// process ignores SIGTERM
	s.Terminate = func(pid int) error { return nil }

	out, err := s.Stop(ctx, string(job.ID))
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if out.AlreadyStopped {
		t.Fatal("should not report already stopped")
	}
	if len(procs.killed) != 1 || procs.killed[0] != job.PID {
		t.Fatalf("expected SIGKILL escalation, got %+v", procs.killed)
	}
}

func TestLogs_TailsOperationalLog(t *testing.T) {
	s, _, cfg := testSupervisor(t)
	ctx := context.Background()

	job, err := s.Start(ctx, "https://example.com", time.Second, 0)
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(cfg.JobLogPath(string(job.ID)), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		fmt.Fprintf(f, "line %d\n", i)
	}
	f.Close()

	lines, err := s.Logs(ctx, string(job.ID), 3)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if len(lines) != 3 || lines[2] != "line 9" {
		t.Fatalf("want last 3 lines ending with line 9, got %+v", lines)
	}

	// still readable after stop via the artifact fallback
	if _, err := s.Stop(ctx, string(job.ID)); err != nil {
		t.Fatal(err)
	}
	lines, err = s.Logs(ctx, string(job.ID), 50)
	if err != nil {
		t.Fatalf("logs after stop: %v", err)
	}
	if len(lines) == 0 {
		t.Fatal("operational log should survive stop")
	}
}

func TestCleanup_RemovesDeadJobArtifactsOnly(t *testing.T) {
	s, procs, cfg := testSupervisor(t)
	ctx := context.Background()

	liveJob, err := s.Start(ctx, "https://alive.example.com", time.Second, 0)
	if err != nil {
		t.Fatal(err)
	}
	deadJob, err := s.Start(ctx, "https://dead.example.com", time.Second, 0)
	if err != nil {
		t.Fatal(err)
	}
	// give both jobs a history file
	for _, j := range []domain.Job{liveJob, deadJob} {
		if err := os.WriteFile(cfg.HistoryPath(string(j.ID)), []byte("{}\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// simulate the dead job's process crashing
	procs.mu.Lock()
	delete(procs.alive, deadJob.PID)
	procs.mu.Unlock()

	removed, err := s.Cleanup(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if len(removed) != 1 || removed[0] != deadJob.ID {
		t.Fatalf("want only the dead job removed, got %+v", removed)
	}
	if _, err := os.Stat(cfg.HistoryPath(string(deadJob.ID))); !os.IsNotExist(err) {
		t.Fatalf("dead job history should be deleted")
	}
	if _, err := os.Stat(cfg.HistoryPath(string(liveJob.ID))); err != nil {
		t.Fatalf("live job history must be kept: %v", err)
	}
	if _, err := s.registry.Resolve(ctx, string(liveJob.ID)); err != nil {
		t.Fatalf("live job marker must be kept: %v", err)
	}
}

func TestWatchArgs_CarriesJobConfig(t *testing.T) {
	cfg := config.Default()
	cfg.WebhookURL = "https://hooks.example.com/alert"
	job := domain.Job{
		ID:        "example_com_deadbeef",
		URL:       "https://example.com",
		Interval:  30 * time.Second,
		MaxChecks: 7,
	}
	args := WatchArgs(job, cfg)
	joined := strings.Join(args, " ")
	for _, want := range []string{
		"watch",
		"-job-id example_com_deadbeef",
		"-interval 30s",
		"-max-checks 7",
		"-success-codes 200,201,202,204",
		"-webhook-url https://hooks.example.com/alert",
		"https://example.com",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args missing %q: %v", want, args)
		}
	}
	if args[len(args)-1] != job.URL {
		t.Fatalf("url must be the last argument: %v", args)
	}
}
