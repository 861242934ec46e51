package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/webmon/webmon/internal/config"
	"github.com/webmon/webmon/internal/domain"
	"github.com/webmon/webmon/internal/logging"
	"github.com/webmon/webmon/internal/notify"
	"github.com/webmon/webmon/internal/probe"
	"github.com/webmon/webmon/internal/registry"
	"github.com/webmon/webmon/internal/repo/files"
	"github.com/webmon/webmon/internal/scheduler"
	"github.com/webmon/webmon/internal/stats"
	"github.com/webmon/webmon/internal/supervisor"
)

const usageText = `usage: webmon <command> [flags] [args]

commands:
  check    [-timeout d] [-retries n] <url>     run a single availability check
  watch    [-interval d] [-max-checks n] [-background] <url>
                                               check a site repeatedly
  start    [-interval d] [-max-checks n] <url> start a background job
  status                                       list jobs with their dashboards
  details  <job-id|pid>                        dashboard for one job
  logs     [-n lines] <job-id|pid>             tail a job's operational log
  stop     <job-id|pid>                        stop a background job
  cleanup                                      remove artifacts of dead jobs
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}
	cfg := config.FromEnv()

	var err error
	switch os.Args[1] {
	case "check":
		err = runCheck(cfg, os.Args[2:])
	case "watch":
		err = runWatch(cfg, os.Args[2:])
	case "start":
		err = runStart(cfg, os.Args[2:])
	case "status":
		err = runStatus(cfg)
	case "details":
		err = runDetails(cfg, os.Args[2:])
	case "logs":
		err = runLogs(cfg, os.Args[2:])
	case "stop":
		err = runStop(cfg, os.Args[2:])
	case "cleanup":
		err = runCleanup(cfg)
	default:
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "webmon:", err)
		os.Exit(1)
	}
}

func newSupervisor(cfg config.Config) (*supervisor.Supervisor, *registry.Registry, *zap.Logger, error) {
	logger, err := logging.NewLogger(cfg.DataDir)
	if err != nil {
		return nil, nil, nil, err
	}
	reg := registry.New(cfg, logger)
	return supervisor.New(cfg, logger, reg), reg, logger, nil
}

func runCheck(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	timeout := fs.Duration("timeout", cfg.Timeout, "request timeout")
	retries := fs.Int("retries", cfg.RetryAttempts, "retry attempts on failure")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("check needs exactly one URL")
	}
	url, err := probe.Normalize(fs.Arg(0))
	if err != nil {
		return err
	}

	var chk probe.Checker = probe.NewHTTPChecker(*timeout, cfg.UserAgent, cfg.SuccessCodes)
	if *retries > 0 {
		chk = &probe.RetryChecker{Inner: chk, Attempts: *retries, Backoff: cfg.RetryBackoff}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res := chk.Check(ctx, url)
	if !res.Success && res.StatusCode == 0 {
		dns := probe.CheckDNS(ctx, probe.HostOf(url))
		if dns.Class != "RESOLVES" {
			res.Error = res.Error + " dns=" + dns.Class
		}
	}
	printJSON(res)
	if !res.Success {
		os.Exit(1)
	}
	return nil
}

func runWatch(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	interval := fs.Duration("interval", cfg.Interval, "time between checks")
	timeout := fs.Duration("timeout", cfg.Timeout, "request timeout")
	maxChecks := fs.Int("max-checks", 0, "stop after this many checks (0 = forever)")
	codes := fs.String("success-codes", "", "comma-separated status codes counted as success")
	webhookURL := fs.String("webhook-url", cfg.WebhookURL, "POST failed checks to this URL")
	background := fs.Bool("background", false, "run as a detached background job")
	jobID := fs.String("job-id", "", "") // set internally when re-executed as a child
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("watch needs exactly one URL")
	}

	cfg.Timeout = *timeout
	cfg.WebhookURL = *webhookURL
	if *codes != "" {
		cfg.SuccessCodes = config.ParseSuccessCodes(*codes)
	}

	if *background {
		sup, _, logger, err := newSupervisor(cfg)
		if err != nil {
			return err
		}
		defer logger.Sync()
		job, err := sup.Start(context.Background(), fs.Arg(0), *interval, *maxChecks)
		if err != nil {
			return err
		}
		printJSON(job)
		return nil
	}

	url, err := probe.Normalize(fs.Arg(0))
	if err != nil {
		return err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return err
	}

	id := domain.JobID(*jobID)
	foreground := *jobID == ""
	if foreground {
		id = registry.New(cfg, zap.NewNop()).AllocateJobID(url)
	}
	jobLogger, err := logging.NewJobLogger(cfg.DataDir, string(id))
	if err != nil {
		return err
	}
	defer jobLogger.Sync()

	loop := &scheduler.Loop{
		Logger:    jobLogger,
		Checker:   probe.NewHTTPChecker(cfg.Timeout, cfg.UserAgent, cfg.SuccessCodes),
		History:   files.New(cfg),
		JobID:     id,
		URL:       url,
		Interval:  *interval,
		MaxChecks: *maxChecks,
	}
	if wh := notify.NewWebhook(cfg.WebhookURL, cfg.WebhookPayload); wh != nil {
		loop.Notifier = wh
	}
	if foreground {
		loop.OnResult = printResultLine
		fmt.Printf("watching %s every %s (job %s), Ctrl-C to stop\n", url, *interval, id)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return loop.Run(ctx)
}

func runStart(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	interval := fs.Duration("interval", cfg.Interval, "time between checks")
	maxChecks := fs.Int("max-checks", 0, "stop after this many checks (0 = forever)")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("start needs exactly one URL")
	}
	sup, _, logger, err := newSupervisor(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	job, err := sup.Start(context.Background(), fs.Arg(0), *interval, *maxChecks)
	if err != nil {
		return err
	}
	fmt.Printf("started job %s (pid %d) for %s\n", job.ID, job.PID, job.URL)
	return nil
}

func runStatus(cfg config.Config) error {
	_, reg, logger, err := newSupervisor(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()
	jobs, err := reg.List(ctx)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("no jobs")
		return nil
	}
	store := files.New(cfg)
	boards := make([]domain.Dashboard, 0, len(jobs))
	for _, j := range jobs {
		d, err := stats.Compute(ctx, j, store)
		if err != nil {
			return err
		}
		boards = append(boards, d)
	}
	printJSON(boards)
	return nil
}

func runDetails(cfg config.Config, args []string) error {
	if len(args) != 1 {
		return errors.New("details needs a job id or pid")
	}
	sup, _, logger, err := newSupervisor(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()
	job, err := sup.Lookup(ctx, args[0])
	if err != nil {
		return err
	}
	dash, err := stats.Compute(ctx, job, files.New(cfg))
	if err != nil {
		return err
	}
	printJSON(dash)
	return nil
}

func runLogs(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	n := fs.Int("n", 20, "number of lines")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("logs needs a job id or pid")
	}
	sup, _, logger, err := newSupervisor(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	lines, err := sup.Logs(context.Background(), fs.Arg(0), *n)
	if err != nil {
		return err
	}
	for _, l := range lines {
		fmt.Println(l)
	}
	return nil
}

func runStop(cfg config.Config, args []string) error {
	if len(args) != 1 {
		return errors.New("stop needs a job id or pid")
	}
	sup, _, logger, err := newSupervisor(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	out, err := sup.Stop(context.Background(), args[0])
	if err != nil {
		return err
	}
	if out.AlreadyStopped {
		fmt.Printf("job %s was already stopped\n", out.Job.ID)
	} else {
		fmt.Printf("stopped job %s\n", out.Job.ID)
	}
	return nil
}

func runCleanup(cfg config.Config) error {
	sup, _, logger, err := newSupervisor(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	removed, err := sup.Cleanup(context.Background())
	if err != nil {
		return err
	}
	if len(removed) == 0 {
		fmt.Println("nothing to clean up")
		return nil
	}
	for _, id := range removed {
		fmt.Printf("removed %s\n", id)
	}
	return nil
}

func printResultLine(r domain.CheckResult) {
	state := "UP"
	detail := fmt.Sprintf("%d, %.0f ms", r.StatusCode, r.LatencyMS)
	if !r.Success {
		state = "DOWN"
		if r.Error != "" {
			detail = r.Error
		}
	}
	fmt.Printf("[%s] %-4s %s (%s)\n", r.CheckedAt.Format(time.TimeOnly), state, r.URL, detail)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
