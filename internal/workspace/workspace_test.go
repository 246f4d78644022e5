package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/tabdiff/internal/errs"
)

func TestCreateInitializesLayout(t *testing.T) {
	root := t.TempDir()
	ws, err := Create(root, false)
	require.NoError(t, err)

	info, err := os.Stat(ws.Path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	info, err = os.Stat(ws.Diffs)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	cfg, err := ws.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", cfg.FormatVersion)
	assert.Equal(t, 10000, cfg.DefaultBatchSize)
}

func TestCreateBootstrapsGitignore(t *testing.T) {
	root := t.TempDir()
	_, err := Create(root, false)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	require.NoError(t, err)
	assert.Contains(t, string(data), ".tabdiff/*.tabdiff")
}

func TestGitignoreAppendIsIdempotent(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("node_modules/\n"), 0o644))

	_, err := Create(root, false)
	require.NoError(t, err)
	_, err = Create(root, false)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "node_modules/")
	assert.Equal(t, 1, strings.Count(content, ".tabdiff/*.tabdiff"))
}

func TestFindWalksUp(t *testing.T) {
	root := t.TempDir()
	_, err := Create(root, false)
	require.NoError(t, err)

	nested := filepath.Join(root, "sub", "dir")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	ws, err := Find(nested)
	require.NoError(t, err)
	resolvedRoot, _ := filepath.EvalSymlinks(root)
	resolvedFound, _ := filepath.EvalSymlinks(ws.Root)
	assert.Equal(t, resolvedRoot, resolvedFound)
}

func TestFindFailsOutsideWorkspace(t *testing.T) {
	_, err := Find(t.TempDir())
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.WorkspaceMissing))
}

func TestSnapshotPathsAndListing(t *testing.T) {
	root := t.TempDir()
	ws, err := Create(root, false)
	require.NoError(t, err)

	archivePath, summaryPath := ws.SnapshotPaths("v1")
	assert.Equal(t, "v1.tabdiff", filepath.Base(archivePath))
	assert.Equal(t, "v1.json", filepath.Base(summaryPath))

	require.NoError(t, os.WriteFile(summaryPath, []byte("{}"), 0o644))
	_, other := ws.SnapshotPaths("alpha")
	require.NoError(t, os.WriteFile(other, []byte("{}"), 0o644))

	names, err := ws.ListSnapshots()
	require.NoError(t, err)
	// config.json is not a snapshot; names come back sorted.
	assert.Equal(t, []string{"alpha", "v1"}, names)

	assert.True(t, ws.SnapshotExists("v1"))
	assert.False(t, ws.SnapshotExists("ghost"))
}

func TestConfigNotOverwrittenWithoutForce(t *testing.T) {
	root := t.TempDir()
	ws, err := Create(root, false)
	require.NoError(t, err)

	configPath := filepath.Join(ws.Path, ConfigFile)
	require.NoError(t, os.WriteFile(configPath, []byte(`{"format_version":"custom","created_at":"2025-01-01T00:00:00Z","default_batch_size":5}`), 0o644))

	_, err = Create(root, false)
	require.NoError(t, err)
	cfg, err := ws.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.FormatVersion)

	_, err = Create(root, true)
	require.NoError(t, err)
	cfg, err = ws.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", cfg.FormatVersion)
}
