// Package config loads user settings for tabdiff. Settings live in an
// optional .tabdiff.toml next to the workspace root and tune defaults
// the CLI flags can still override; the workspace's own config.json is
// managed by the workspace package.
package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/kilupskalvis/tabdiff/internal/errs"
)

// SettingsFile is the optional per-project settings file name.
const SettingsFile = ".tabdiff.toml"

// Settings are the tunable defaults.
type Settings struct {
	BatchSize        int  `toml:"batch_size"`
	KeepFull         int  `toml:"keep_full"`
	CompressionLevel int  `toml:"compression_level"`
	Progress         bool `toml:"progress"`
}

// Default returns the built-in settings.
func Default() *Settings {
	return &Settings{
		BatchSize:        10000,
		KeepFull:         1,
		CompressionLevel: 3,
		Progress:         true,
	}
}

// Load reads .tabdiff.toml from root, falling back to defaults when
// the file is absent. Numeric fields that are absent, zero, or negative
// keep their defaults; progress keeps its default only when absent.
func Load(root string) (*Settings, error) {
	s := Default()

	path := filepath.Join(root, SettingsFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.IOError, err, "read %s", path).With("path", path)
	}

	loaded := *s
	if err := toml.Unmarshal(data, &loaded); err != nil {
		return nil, errs.Wrap(errs.WorkspaceCorrupt, err, "parse %s", path).With("path", path)
	}
	if loaded.BatchSize > 0 {
		s.BatchSize = loaded.BatchSize
	}
	if loaded.KeepFull > 0 {
		s.KeepFull = loaded.KeepFull
	}
	if loaded.CompressionLevel > 0 {
		s.CompressionLevel = loaded.CompressionLevel
	}
	s.Progress = loaded.Progress
	return s, nil
}
