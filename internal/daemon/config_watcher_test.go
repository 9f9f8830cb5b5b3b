package daemon

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagerefresh/internal/config"
)

type recordingReloader struct {
	mu      sync.Mutex
	applied []*config.Config
}

func (r *recordingReloader) ReloadConfig(cfg *config.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, cfg)
	return nil
}

func (r *recordingReloader) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.applied)
}

func writeConfig(t *testing.T, path, schedule string) {
	t.Helper()
	content := baseConfig + "triggers:\n  schedules: [\"" + schedule + "\"]\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestConfigWatcher_PerformReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagerefresh.yaml")
	writeConfig(t, path, "*/5 * * * *")

	target := &recordingReloader{}
	cw, err := NewConfigWatcher(path, target)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cw.Stop() })

	writeConfig(t, path, "0 * * * *")
	require.NoError(t, cw.performReload())
	require.Equal(t, 1, target.count())
	assert.Equal(t, []string{"0 * * * *"}, target.applied[0].Triggers.Schedules)
}

func TestConfigWatcher_UnchangedBytesSkipReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagerefresh.yaml")
	writeConfig(t, path, "*/5 * * * *")

	target := &recordingReloader{}
	cw, err := NewConfigWatcher(path, target)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cw.Stop() })

	require.NoError(t, cw.performReload())
	assert.Zero(t, target.count())

	writeConfig(t, path, "0 * * * *")
	require.NoError(t, cw.performReload())
	require.NoError(t, cw.performReload())
	assert.Equal(t, 1, target.count())
}

func TestConfigWatcher_InvalidFileKeepsConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagerefresh.yaml")
	writeConfig(t, path, "*/5 * * * *")

	target := &recordingReloader{}
	cw, err := NewConfigWatcher(path, target)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cw.Stop() })

	require.NoError(t, os.WriteFile(path, []byte("repository: {}\n"), 0o600))
	require.Error(t, cw.performReload())
	assert.Zero(t, target.count())

	// A broken file is retried once fixed.
	writeConfig(t, path, "0 * * * *")
	require.NoError(t, cw.performReload())
	assert.Equal(t, 1, target.count())
}

func TestConfigWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pagerefresh.yaml")
	writeConfig(t, path, "*/5 * * * *")

	target := &recordingReloader{}
	cw, err := NewConfigWatcher(path, target)
	require.NoError(t, err)
	cw.debounceTime = 20 * time.Millisecond
	require.NoError(t, cw.Start(t.Context()))
	t.Cleanup(func() { _ = cw.Stop() })

	// Unrelated files in the same directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o600))
	writeConfig(t, path, "0 6 * * *")

	require.Eventually(t, func() bool { return target.count() >= 1 }, 3*time.Second, 20*time.Millisecond)
	target.mu.Lock()
	last := target.applied[len(target.applied)-1]
	target.mu.Unlock()
	assert.Equal(t, []string{"0 6 * * *"}, last.Triggers.Schedules)
}

func TestConfigWatcher_StopTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagerefresh.yaml")
	writeConfig(t, path, "*/5 * * * *")
	cw, err := NewConfigWatcher(path, &recordingReloader{})
	require.NoError(t, err)
	require.NoError(t, cw.Stop())
	require.NoError(t, cw.Stop())
}
