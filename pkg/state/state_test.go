package state

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	root := t.TempDir()

	st := &State{
		Project:   "music",
		Root:      root,
		Network:   "default (ipv6)",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Services: []ServiceRecord{
			{Name: "relay", PublicName: "relay-main", State: "healthy", PID: 1234, Restarts: 2, HasHealth: true},
			{Name: "bot", State: "crashed", Reason: "exited with code 1", ExitInfo: filepath.Join(root, "bot.exit.json")},
		},
	}
	require.NoError(t, Save(root, st))

	loaded, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, st.Project, loaded.Project)
	require.Equal(t, st.Network, loaded.Network)
	require.Len(t, loaded.Services, 2)

	relay := loaded.Find("relay")
	require.NotNil(t, relay)
	require.Equal(t, "relay-main", relay.PublicName)
	require.Equal(t, 1234, relay.PID)
	require.True(t, relay.HasHealth)

	require.Nil(t, loaded.Find("ghost"))
}

func TestLoad_NoState(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
}

func TestRemove_Idempotent(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, Remove(root))

	require.NoError(t, Save(root, &State{Project: "x", Root: root}))
	require.NoError(t, Remove(root))
	_, err := os.Stat(StatePath(root))
	require.True(t, os.IsNotExist(err))
}

func TestProcessAlive(t *testing.T) {
	require.True(t, ProcessAlive(os.Getpid()))
	require.False(t, ProcessAlive(0))
	require.False(t, ProcessAlive(-1))
	require.False(t, ProcessAlive(1<<22+12345))
}

func TestProcessAlive_IgnoresZombies(t *testing.T) {
	// A child that exits but is not reaped stays a zombie until Wait.
	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid

	deadline := time.Now().Add(3 * time.Second)
	for ProcessAlive(pid) && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	require.False(t, ProcessAlive(pid))
	require.NoError(t, cmd.Wait())
}

func TestSanitizeEnv(t *testing.T) {
	out := SanitizeEnv(map[string]string{
		"SERVER_PORT":       "2333",
		"LAVALINK_PASSWORD": "youshallnotpass",
		"DISCORD_TOKEN":     "abc123",
		"api_key":           "xyz",
		"AUTH_HEADER":       "Bearer x",
		"PLAIN":             "visible",
	})
	require.Equal(t, "2333", out["SERVER_PORT"])
	require.Equal(t, "visible", out["PLAIN"])
	require.Equal(t, "[REDACTED]", out["LAVALINK_PASSWORD"])
	require.Equal(t, "[REDACTED]", out["DISCORD_TOKEN"])
	require.Equal(t, "[REDACTED]", out["api_key"])
	require.Equal(t, "[REDACTED]", out["AUTH_HEADER"])

	require.Nil(t, SanitizeEnv(nil))
}

func TestExitInfoRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "relay.exit.json")
	code := 137

	require.NoError(t, WriteExitInfo(path, ExitInfo{
		Service:    "relay",
		PID:        4321,
		ExitCode:   &code,
		Signal:     "killed",
		StderrTail: []string{"boom"},
	}))

	info, err := ReadExitInfo(path)
	require.NoError(t, err)
	require.Equal(t, "relay", info.Service)
	require.Equal(t, 4321, info.PID)
	require.NotNil(t, info.ExitCode)
	require.Equal(t, 137, *info.ExitCode)
	require.Equal(t, "killed", info.Signal)
	require.Equal(t, []string{"boom"}, info.StderrTail)
}

func TestTailLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")

	var lines []string
	for i := 0; i < 50; i++ {
		lines = append(lines, strings.Repeat("x", 10))
	}
	lines = append(lines, "last line")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))

	tail, err := TailLines(path, 3, 1<<20)
	require.NoError(t, err)
	require.Len(t, tail, 3)
	require.Equal(t, "last line", tail[2])

	// A tight byte budget drops the leading partial line.
	tail, err = TailLines(path, 100, 64)
	require.NoError(t, err)
	require.NotEmpty(t, tail)
	require.Equal(t, "last line", tail[len(tail)-1])
	for _, line := range tail[:len(tail)-1] {
		require.Equal(t, strings.Repeat("x", 10), line)
	}

	_, err = TailLines(filepath.Join(dir, "missing.log"), 3, 1024)
	require.Error(t, err)
}
