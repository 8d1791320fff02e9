package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"leviatan/internal/paths"
)

// PIDFile guards single-daemon-per-project via the workspace PID file.
type PIDFile struct {
	path string
}

// NewPIDFile returns the PID file manager for a project root.
func NewPIDFile(projectRoot string) *PIDFile {
	return &PIDFile{path: paths.PIDPath(projectRoot)}
}

// Acquire writes the current process ID, failing if a live daemon
// already owns the file. Stale files from crashed daemons are replaced.
func (p *PIDFile) Acquire() error {
	running, pid, err := p.IsRunning()
	if err != nil {
		return err
	}
	if running {
		return fmt.Errorf("daemon is already running (PID: %d)", pid)
	}

	if err := p.removeStale(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}

	content := fmt.Sprintf("%d\n", os.Getpid())
	if err := os.WriteFile(p.path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// Release removes the PID file. A missing file is not an error.
func (p *PIDFile) Release() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// IsRunning reports whether the recorded process is alive. A missing or
// unparseable file means no daemon is running.
func (p *PIDFile) IsRunning() (bool, int, error) {
	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, 0, nil
	}

	if processExists(pid) {
		return true, pid, nil
	}
	return false, pid, nil
}

// GetPID returns the recorded PID, or 0 when no file exists.
func (p *PIDFile) GetPID() (int, error) {
	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func (p *PIDFile) removeStale() error {
	running, _, err := p.IsRunning()
	if err != nil {
		return err
	}
	if !running {
		if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// processExists probes a PID with signal 0, which checks liveness
// without delivering anything.
func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
