// Package proc reads per-process statistics from /proc for status reporting.
package proc

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Stats is a point-in-time view of one service process.
type Stats struct {
	PID        int     `json:"pid"`
	CPUPercent float64 `json:"cpu_percent"`
	MemoryMB   int64   `json:"memory_mb"`
	State      string  `json:"state"` // R, S, D, Z, T
	Threads    int     `json:"threads"`
}

type procStat struct {
	utime   uint64
	stime   uint64
	state   byte
	threads int
	rss     int64 // pages
}

type cpuSample struct {
	utime uint64
	stime uint64
	at    time.Time
}

// CPUTracker derives CPU percentages from successive samples per PID. It is
// safe for concurrent use.
type CPUTracker struct {
	mu      sync.Mutex
	samples map[int]cpuSample
}

func NewCPUTracker() *CPUTracker {
	return &CPUTracker{samples: map[int]cpuSample{}}
}

// Drop forgets samples for PIDs not in active.
func (t *CPUTracker) Drop(active []int) {
	keep := map[int]bool{}
	for _, pid := range active {
		keep[pid] = true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for pid := range t.samples {
		if !keep[pid] {
			delete(t.samples, pid)
		}
	}
}

// ReadStats reads statistics for one PID. A non-nil tracker enables CPU
// percentage calculation between calls.
func ReadStats(pid int, tracker *CPUTracker) (*Stats, error) {
	if pid <= 0 {
		return nil, errors.New("invalid PID")
	}
	ps, err := readProcStat(pid)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		PID:      pid,
		MemoryMB: ps.rss * int64(os.Getpagesize()) / (1024 * 1024),
		State:    string(ps.state),
		Threads:  ps.threads,
	}

	if tracker != nil {
		now := time.Now()
		total := ps.utime + ps.stime
		tracker.mu.Lock()
		if prev, ok := tracker.samples[pid]; ok {
			elapsed := now.Sub(prev.at).Seconds()
			if elapsed > 0 {
				// Jiffies at the standard 100 Hz.
				cpuSeconds := float64(total-prev.utime-prev.stime) / 100.0
				stats.CPUPercent = cpuSeconds / elapsed * 100.0
			}
		}
		tracker.samples[pid] = cpuSample{utime: ps.utime, stime: ps.stime, at: now}
		tracker.mu.Unlock()
	}

	return stats, nil
}

// ReadAllStats reads statistics for several PIDs in parallel, skipping dead
// ones.
func ReadAllStats(pids []int, tracker *CPUTracker) map[int]*Stats {
	var mu sync.Mutex
	out := map[int]*Stats{}

	g := errgroup.Group{}
	g.SetLimit(8)
	for _, pid := range pids {
		pid := pid
		g.Go(func() error {
			s, err := ReadStats(pid, tracker)
			if err != nil {
				return nil
			}
			mu.Lock()
			out[pid] = s
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func readProcStat(pid int) (*procStat, error) {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return nil, errors.Wrap(err, "read stat file")
	}

	// The comm field may contain spaces and parens; everything we want
	// comes after the last ')'.
	content := string(data)
	closeParen := strings.LastIndex(content, ")")
	if closeParen < 0 {
		return nil, errors.New("malformed stat file")
	}
	fields := strings.Fields(strings.TrimSpace(content[closeParen+1:]))
	if len(fields) < 22 {
		return nil, errors.Errorf("malformed stat file: %d fields", len(fields))
	}

	// 0-based after comm: 0 state, 11 utime, 12 stime, 17 num_threads, 21 rss.
	ps := &procStat{state: fields[0][0]}

	if ps.utime, err = strconv.ParseUint(fields[11], 10, 64); err != nil {
		return nil, errors.Wrap(err, "parse utime")
	}
	if ps.stime, err = strconv.ParseUint(fields[12], 10, 64); err != nil {
		return nil, errors.Wrap(err, "parse stime")
	}
	if ps.threads, err = strconv.Atoi(fields[17]); err != nil {
		return nil, errors.Wrap(err, "parse num_threads")
	}
	if ps.rss, err = strconv.ParseInt(fields[21], 10, 64); err != nil {
		return nil, errors.Wrap(err, "parse rss")
	}

	return ps, nil
}
