// Package workspace manages the .tabdiff directory: its layout, the
// workspace config file, and the gitignore bootstrap that keeps heavy
// archives out of version control while summaries stay in.
package workspace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kilupskalvis/tabdiff/internal/errs"
	"github.com/kilupskalvis/tabdiff/internal/model"
)

const (
	// Dir is the workspace directory name.
	Dir = ".tabdiff"
	// ConfigFile holds the workspace configuration.
	ConfigFile = "config.json"
	// DiffsDir holds persisted diff reports.
	DiffsDir = "diffs"
	// ArchiveExt is the archive file extension.
	ArchiveExt = ".tabdiff"
	// SummaryExt is the summary file extension.
	SummaryExt = ".json"
)

// Config is the workspace configuration stored in config.json.
type Config struct {
	FormatVersion    string    `json:"format_version"`
	CreatedAt        time.Time `json:"created_at"`
	DefaultBatchSize int       `json:"default_batch_size"`
}

// Workspace is a resolved .tabdiff directory.
type Workspace struct {
	// Root is the project directory containing .tabdiff/.
	Root string
	// Path is the .tabdiff directory itself.
	Path string
	// Diffs is the diffs/ subdirectory.
	Diffs string
}

func fromRoot(root string) *Workspace {
	dir := filepath.Join(root, Dir)
	return &Workspace{Root: root, Path: dir, Diffs: filepath.Join(dir, DiffsDir)}
}

// Find locates an existing workspace by walking up from startDir
// (the working directory when empty).
func Find(startDir string) (*Workspace, error) {
	dir := startDir
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return nil, errs.Wrap(errs.IOError, err, "determine working directory")
		}
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, errs.Wrap(errs.IOError, err, "resolve %s", dir)
	}

	for {
		candidate := filepath.Join(dir, Dir)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return fromRoot(dir), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, errs.New(errs.WorkspaceMissing,
				"no %s workspace found (run 'tabdiff init' first)", Dir)
		}
		dir = parent
	}
}

// Create initializes a workspace at root. With force, an existing
// config is overwritten; otherwise an existing workspace is reused.
func Create(root string, force bool) (*Workspace, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, errs.Wrap(errs.IOError, err, "resolve %s", root)
	}
	ws := fromRoot(root)

	if err := os.MkdirAll(ws.Diffs, 0o755); err != nil {
		return nil, errs.Wrap(errs.IOError, err, "create %s", ws.Diffs).With("path", ws.Diffs)
	}
	if err := ws.writeConfig(force); err != nil {
		return nil, err
	}
	if err := ws.ensureGitignore(); err != nil {
		return nil, err
	}
	return ws, nil
}

func (w *Workspace) writeConfig(force bool) error {
	path := filepath.Join(w.Path, ConfigFile)
	if !force {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
	}
	cfg := Config{
		FormatVersion:    model.FormatVersion,
		CreatedAt:        time.Now().UTC(),
		DefaultBatchSize: 10000,
	}
	data, err := json.MarshalIndent(&cfg, "", "  ")
	if err != nil {
		return errs.Wrap(errs.IOError, err, "encode workspace config")
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return errs.Wrap(errs.IOError, err, "write %s", path).With("path", path)
	}
	return nil
}

// LoadConfig reads config.json.
func (w *Workspace) LoadConfig() (*Config, error) {
	path := filepath.Join(w.Path, ConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.WorkspaceCorrupt, "workspace config missing: %s", path).With("path", path)
		}
		return nil, errs.Wrap(errs.IOError, err, "read %s", path).With("path", path)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errs.Wrap(errs.WorkspaceCorrupt, err, "parse %s", path).With("path", path)
	}
	return &cfg, nil
}

const gitignoreEntry = ".tabdiff/*.tabdiff"

// ensureGitignore appends the archive pattern to the project's
// .gitignore, creating the file when absent.
func (w *Workspace) ensureGitignore() error {
	path := filepath.Join(w.Root, ".gitignore")
	block := "# Ignore compressed snapshot archives\n" + gitignoreEntry + "\n"

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte(block), 0o644); err != nil {
			return errs.Wrap(errs.IOError, err, "write %s", path).With("path", path)
		}
		return nil
	}
	if err != nil {
		return errs.Wrap(errs.IOError, err, "read %s", path).With("path", path)
	}
	content := string(data)
	if strings.Contains(content, gitignoreEntry) {
		return nil
	}
	if !strings.HasSuffix(content, "\n") && content != "" {
		content += "\n"
	}
	content += "\n" + block
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return errs.Wrap(errs.IOError, err, "update %s", path).With("path", path)
	}
	return nil
}

// SnapshotPaths returns the archive and summary paths for name.
func (w *Workspace) SnapshotPaths(name string) (archivePath, summaryPath string) {
	return filepath.Join(w.Path, name+ArchiveExt), filepath.Join(w.Path, name+SummaryExt)
}

// DiffPath returns the persisted report path for a diff a→b.
func (w *Workspace) DiffPath(a, b string) string {
	return filepath.Join(w.Diffs, a+"-"+b+".json")
}

// SnapshotExists reports whether a summary exists for name.
func (w *Workspace) SnapshotExists(name string) bool {
	_, summaryPath := w.SnapshotPaths(name)
	_, err := os.Stat(summaryPath)
	return err == nil
}

// ListSnapshots returns all snapshot names, sorted.
func (w *Workspace) ListSnapshots() ([]string, error) {
	entries, err := os.ReadDir(w.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.WorkspaceMissing, "workspace directory missing: %s", w.Path).With("path", w.Path)
		}
		return nil, errs.Wrap(errs.IOError, err, "read %s", w.Path).With("path", w.Path)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, SummaryExt) {
			continue
		}
		stem := strings.TrimSuffix(name, SummaryExt)
		if stem == strings.TrimSuffix(ConfigFile, SummaryExt) {
			continue
		}
		names = append(names, stem)
	}
	sort.Strings(names)
	return names, nil
}
