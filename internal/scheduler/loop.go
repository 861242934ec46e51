package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/webmon/webmon/internal/domain"
	"github.com/webmon/webmon/internal/notify"
	"github.com/webmon/webmon/internal/probe"
	"github.com/webmon/webmon/internal/repo"
)

// State of the loop. It only ever moves forward:
// Running -> Stopping -> Terminated.
type State int32

const (
	Running State = iota
	Stopping
	Terminated
)

// Loop is the single-threaded check cycle that runs inside a job's
// process (detached for background jobs, the CLI process for foreground
// watch). It blocks on network I/O and sleep between checks; the only
// exits are the max-check bound and context cancellation.
type Loop struct {
	Logger    *zap.Logger
	Checker   probe.Checker
	History   repo.HistoryStore
	Notifier  notify.Notifier // optional, fired on failed checks
	JobID     domain.JobID
	URL       string
	Interval  time.Duration
	MaxChecks int // 0 = unbounded

	// OnResult, when set, observes every result after it is recorded
	// (the foreground watch uses it to print).
	OnResult func(domain.CheckResult)

	state State
}

// Run performs a check immediately, then one per interval. A cancelled
// context transitions to Stopping: the in-flight check is still
// appended before the loop exits, so no result is ever dropped. Check
// failures are recorded, never returned; the only error Run reports is
// a history append failure.
func (l *Loop) Run(ctx context.Context) error {
	if l.Logger == nil {
		l.Logger = zap.NewNop()
	}
	l.state = Running
	l.Logger.Info("loop_started",
		zap.String("job_id", string(l.JobID)),
		zap.String("url", l.URL),
		zap.Duration("interval", l.Interval),
		zap.Int("max_checks", l.MaxChecks),
	)

	count := 0
	for {
		res := l.Checker.Check(ctx, l.URL)

		// the append must complete even when ctx was cancelled mid-check
		if err := l.History.Append(context.WithoutCancel(ctx), l.JobID, res); err != nil {
			l.state = Terminated
			l.Logger.Error("history_append_failed", zap.Error(err))
			return err
		}
		count++
		l.Logger.Info("check_done",
			zap.Int("n", count),
			zap.Int("status", res.StatusCode),
			zap.Bool("success", res.Success),
			zap.Float64("latency_ms", res.LatencyMS),
			zap.String("error", res.Error),
		)
		if l.OnResult != nil {
			l.OnResult(res)
		}
		if !res.Success && l.Notifier != nil {
			if err := l.Notifier.Send(context.WithoutCancel(ctx), res); err != nil {
				l.Logger.Warn("notify_failed", zap.Error(err))
			}
		}

		if l.MaxChecks > 0 && count >= l.MaxChecks {
			l.Logger.Info("loop_max_checks_reached", zap.Int("count", count))
			break
		}

		select {
		case <-ctx.Done():
			l.state = Stopping
			l.Logger.Info("loop_stop_requested")
		case <-time.After(l.Interval):
		}
		if l.state == Stopping {
			break
		}
	}

	l.state = Terminated
	l.Logger.Info("loop_terminated", zap.Int("total_checks", count))
	return nil
}

// CurrentState is read by tests; the loop itself is single-threaded.
func (l *Loop) CurrentState() State {
	return l.state
}
