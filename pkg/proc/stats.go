// Package proc reads process statistics from /proc.
package proc

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// clockTicks is USER_HZ, 100 on every Linux target we run on.
const clockTicks = 100

// Stats describes a running process.
type Stats struct {
	PID       int       `json:"pid"`
	State     string    `json:"state"` // R, S, D, Z, T, ...
	Threads   int       `json:"threads"`
	MemoryRSS int64     `json:"memory_rss"` // bytes
	MemoryMB  int64     `json:"memory_mb"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// Uptime is zero when the start time could not be determined.
func (s *Stats) Uptime(now time.Time) time.Duration {
	if s == nil || s.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(s.StartedAt).Truncate(time.Second)
}

func ReadStats(pid int) (*Stats, error) {
	if pid <= 0 {
		return nil, errors.New("invalid PID")
	}
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return nil, errors.Wrap(err, "read stat file")
	}
	st, err := parseStat(pid, string(data))
	if err != nil {
		return nil, err
	}
	return st, nil
}

// parseStat parses the contents of /proc/[pid]/stat. The comm field can
// contain spaces and parentheses, so fields are counted from the last ')'.
func parseStat(pid int, content string) (*Stats, error) {
	closeParen := strings.LastIndex(content, ")")
	if closeParen < 0 {
		return nil, errors.New("malformed stat file: no closing paren")
	}
	fields := strings.Fields(content[closeParen+1:])
	// 0: state, 17: num_threads, 19: starttime, 21: rss (pages)
	if len(fields) < 22 {
		return nil, errors.Errorf("malformed stat file: expected 22+ fields, got %d", len(fields))
	}

	threads, err := strconv.Atoi(fields[17])
	if err != nil {
		return nil, errors.Wrap(err, "parse num_threads")
	}
	startTicks, err := strconv.ParseUint(fields[19], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "parse starttime")
	}
	rssPages, err := strconv.ParseInt(fields[21], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "parse rss")
	}

	rss := rssPages * int64(os.Getpagesize())
	st := &Stats{
		PID:       pid,
		State:     fields[0],
		Threads:   threads,
		MemoryRSS: rss,
		MemoryMB:  rss / (1024 * 1024),
	}
	if boot, err := BootTime(); err == nil {
		st.StartedAt = boot.Add(time.Duration(startTicks/clockTicks) * time.Second)
	}
	return st, nil
}

// BootTime returns the system boot time from /proc/stat.
func BootTime() (time.Time, error) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return time.Time{}, errors.Wrap(err, "open /proc/stat")
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "btime ") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		btime, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return time.Time{}, errors.Wrap(err, "parse btime")
		}
		return time.Unix(btime, 0), nil
	}
	return time.Time{}, errors.New("btime not found in /proc/stat")
}
