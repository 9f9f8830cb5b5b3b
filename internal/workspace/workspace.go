package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
	"git.home.luguber.info/inful/pagerefresh/internal/logfields"
)

// Manager owns one run's workspace directory.
type Manager struct {
	baseDir string
	runID   string
	dir     string
	retain  bool
}

// NewManager creates a manager rooted at baseDir (os.TempDir when empty) for the given run.
func NewManager(baseDir, runID string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{baseDir: baseDir, runID: runID}
}

// Retain keeps the directory on Cleanup, for inspecting a run afterwards.
func (m *Manager) Retain(keep bool) *Manager {
	m.retain = keep
	return m
}

// Create makes the run directory.
func (m *Manager) Create() error {
	short := m.runID
	if len(short) > 8 {
		short = short[:8]
	}
	name := "pagerefresh-" + time.Now().Format("20060102-150405")
	if short != "" {
		name += "-" + short
	}
	dir := filepath.Join(m.baseDir, name)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.FileSystemError("failed to create workspace directory").
			WithCause(err).
			WithContext("path", dir).
			Build()
	}
	m.dir = dir
	slog.Debug("Created workspace", logfields.Path(dir), logfields.RunID(m.runID))
	return nil
}

// Path returns the run directory, empty before Create.
func (m *Manager) Path() string {
	return m.dir
}

// Subdir returns the path of a named entry inside the workspace without creating it.
func (m *Manager) Subdir(name string) (string, error) {
	if m.dir == "" {
		return "", fmt.Errorf("workspace not created")
	}
	return filepath.Join(m.dir, name), nil
}

// Cleanup removes the run directory unless retained.
func (m *Manager) Cleanup() error {
	if m.dir == "" {
		return nil
	}
	if m.retain {
		slog.Info("Retaining workspace", logfields.Path(m.dir), logfields.RunID(m.runID))
		return nil
	}
	if err := os.RemoveAll(m.dir); err != nil {
		return errors.FileSystemError("failed to cleanup workspace").
			WithCause(err).
			WithContext("path", m.dir).
			Build()
	}
	slog.Debug("Cleaned up workspace", logfields.Path(m.dir))
	m.dir = ""
	return nil
}
