// Package state persists the launcher's run state under .stackctl/ so that
// status, watch and down can inspect a run from another process.
package state

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

const (
	StateDirName  = ".stackctl"
	StateFilename = "state.json"
	LogsDirName   = "logs"
)

// State is the persisted snapshot of one launcher run.
type State struct {
	Project   string          `json:"project"`
	Root      string          `json:"root"`
	Network   string          `json:"network,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Services  []ServiceRecord `json:"services"`
}

// ServiceRecord is the persisted view of one service instance.
type ServiceRecord struct {
	Name       string            `json:"name"`
	PublicName string            `json:"public_name,omitempty"` // container_name override, if any
	State      string            `json:"state"`
	Reason     string            `json:"reason,omitempty"`
	PID        int               `json:"pid,omitempty"`
	Command    []string          `json:"command,omitempty"`
	Cwd        string            `json:"cwd,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	Restarts   int               `json:"restarts,omitempty"`
	StdoutLog  string            `json:"stdout_log,omitempty"`
	StderrLog  string            `json:"stderr_log,omitempty"`
	ExitInfo   string            `json:"exit_info,omitempty"`
	StartedAt  time.Time         `json:"started_at,omitempty"`
	HasHealth  bool              `json:"has_health,omitempty"`
}

// Find returns the record for name, or nil.
func (s *State) Find(name string) *ServiceRecord {
	for i := range s.Services {
		if s.Services[i].Name == name {
			return &s.Services[i]
		}
	}
	return nil
}

func StatePath(root string) string {
	return filepath.Join(root, StateDirName, StateFilename)
}

func LogsDir(root string) string {
	return filepath.Join(root, StateDirName, LogsDirName)
}

func Load(root string) (*State, error) {
	b, err := os.ReadFile(StatePath(root))
	if err != nil {
		return nil, errors.Wrap(err, "read state")
	}
	var s State
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, errors.Wrap(err, "parse state json")
	}
	return &s, nil
}

func Save(root string, s *State) error {
	if s == nil {
		return errors.New("nil state")
	}
	if err := os.MkdirAll(filepath.Dir(StatePath(root)), 0o755); err != nil {
		return errors.Wrap(err, "mkdir state dir")
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal state")
	}
	if err := os.WriteFile(StatePath(root), b, 0o644); err != nil {
		return errors.Wrap(err, "write state")
	}
	return nil
}

func Remove(root string) error {
	if err := os.Remove(StatePath(root)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "remove state")
	}
	return nil
}

// ProcessAlive reports whether pid refers to a live (non-zombie) process.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if isZombie(pid) {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	if stderrors.Is(err, syscall.EPERM) {
		return true
	}
	return false
}

func isZombie(pid int) bool {
	b, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	// Format: pid (comm) state ...; the state char follows the closing ')'.
	i := bytes.LastIndexByte(b, ')')
	if i < 0 {
		return false
	}
	fields := bytes.Fields(bytes.TrimSpace(b[i+1:]))
	if len(fields) < 1 || len(fields[0]) < 1 {
		return false
	}
	return fields[0][0] == 'Z'
}
