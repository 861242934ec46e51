package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"github.com/webmon/webmon/internal/config"
	"github.com/webmon/webmon/internal/domain"
)

// spawnDetached re-executes this binary as `watch` in a new session so
// the loop outlives the caller. The child's stdout/stderr go to the
// job's operational log.
func spawnDetached(job domain.Job, cfg config.Config, logFile *os.File) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, err
	}
	cmd := exec.Command(exe, WatchArgs(job, cfg)...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = append(os.Environ(), "WEBMON_DATA_DIR="+cfg.DataDir)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	// reap the child if this process happens to outlive it
	go func() { _ = cmd.Wait() }()
	return cmd.Process.Pid, nil
}

func signalTERM(pid int) error {
	return signalProcess(pid, syscall.SIGTERM)
}

func signalKILL(pid int) error {
	return signalProcess(pid, syscall.SIGKILL)
}

func signalProcess(pid int, sig syscall.Signal) error {
	err := syscall.Kill(pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil // already gone
	}
	return err
}
