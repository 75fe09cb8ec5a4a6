package proc

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReadStats_Self(t *testing.T) {
	stats, err := ReadStats(os.Getpid(), nil)
	require.NoError(t, err)
	require.Equal(t, os.Getpid(), stats.PID)
	require.Greater(t, stats.Threads, 0)
	require.GreaterOrEqual(t, stats.MemoryMB, int64(0))
	require.NotEmpty(t, stats.State)
	require.Zero(t, stats.CPUPercent)
}

func TestReadStats_Invalid(t *testing.T) {
	_, err := ReadStats(0, nil)
	require.Error(t, err)

	_, err = ReadStats(1<<22+54321, nil)
	require.Error(t, err)
}

func TestCPUTracker_SecondSampleYieldsPercentage(t *testing.T) {
	tracker := NewCPUTracker()
	pid := os.Getpid()

	_, err := ReadStats(pid, tracker)
	require.NoError(t, err)

	// Burn a little CPU between samples.
	deadline := time.Now().Add(50 * time.Millisecond)
	x := 0
	for time.Now().Before(deadline) {
		x++
	}
	_ = x

	stats, err := ReadStats(pid, tracker)
	require.NoError(t, err)
	require.GreaterOrEqual(t, stats.CPUPercent, 0.0)
}

func TestCPUTracker_Drop(t *testing.T) {
	tracker := NewCPUTracker()
	pid := os.Getpid()

	_, err := ReadStats(pid, tracker)
	require.NoError(t, err)
	require.Contains(t, tracker.samples, pid)

	tracker.Drop(nil)
	require.NotContains(t, tracker.samples, pid)
}

func TestReadAllStats_SkipsDeadPids(t *testing.T) {
	tracker := NewCPUTracker()
	out := ReadAllStats([]int{os.Getpid(), 1 << 22}, tracker)
	require.Len(t, out, 1)
	require.Contains(t, out, os.Getpid())
}
