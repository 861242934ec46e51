package registry

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// pidReuseSlack bounds how much later than the marker's created-at a
// process may have started and still count as the job's process. A pid
// recycled to an unrelated process after the job died starts later.
const pidReuseSlack = time.Minute

// processAlive probes pid with signal 0, then cross-checks the process
// start time from /proc against the marker's creation timestamp to
// guard against pid reuse. Mismatch is treated as not alive.
func processAlive(pid int, createdAt time.Time) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	if err := p.Signal(syscall.Signal(0)); err != nil {
		// EPERM still means the process exists
		if !errors.Is(err, syscall.EPERM) {
			return false
		}
	}
	if createdAt.IsZero() {
		return true
	}
	started, ok := processStartTime(pid)
	if !ok {
		return true // cannot cross-check, trust the signal probe
	}
	return started.Before(createdAt.Add(pidReuseSlack))
}

// processStartTime reads field 22 of /proc/<pid>/stat (start time in
// clock ticks since boot) and converts it to wall time.
func processStartTime(pid int) (time.Time, bool) {
	b, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return time.Time{}, false
	}
	// the comm field is parenthesized and may contain spaces
	i := bytes.LastIndexByte(b, ')')
	if i < 0 || i+2 >= len(b) {
		return time.Time{}, false
	}
	fields := strings.Fields(string(b[i+2:]))
	if len(fields) < 20 {
		return time.Time{}, false
	}
	ticks, err := strconv.ParseUint(fields[19], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	boot, ok := bootTime()
	if !ok {
		return time.Time{}, false
	}
	const userHZ = 100
	return boot.Add(time.Duration(ticks) * time.Second / userHZ), true
}

func bootTime() (time.Time, bool) {
	b, err := os.ReadFile("/proc/stat")
	if err != nil {
		return time.Time{}, false
	}
	for _, line := range strings.Split(string(b), "\n") {
		if strings.HasPrefix(line, "btime ") {
			secs, err := strconv.ParseInt(strings.TrimSpace(line[6:]), 10, 64)
			if err != nil {
				return time.Time{}, false
			}
			return time.Unix(secs, 0), true
		}
	}
	return time.Time{}, false
}
