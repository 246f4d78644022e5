// Package store provides access to the snapshots of a workspace:
// enumeration, name resolution (including the "latest" alias and
// direct file paths), cheap summary loads, and on-demand archive
// loads.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/kilupskalvis/tabdiff/internal/archive"
	"github.com/kilupskalvis/tabdiff/internal/errs"
	"github.com/kilupskalvis/tabdiff/internal/model"
	"github.com/kilupskalvis/tabdiff/internal/workspace"
)

// Latest is the alias resolving to the newest snapshot.
const Latest = "latest"

// Store reads and writes snapshots in a workspace.
type Store struct {
	ws *workspace.Workspace
}

// New creates a store over ws.
func New(ws *workspace.Workspace) *Store {
	return &Store{ws: ws}
}

// Workspace returns the underlying workspace.
func (s *Store) Workspace() *workspace.Workspace { return s.ws }

// List loads every summary in the workspace, sorted by name.
func (s *Store) List() ([]*model.Summary, error) {
	names, err := s.ws.ListSnapshots()
	if err != nil {
		return nil, err
	}
	summaries := make([]*model.Summary, 0, len(names))
	for _, name := range names {
		sum, err := s.LoadSummary(name)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

// LoadSummary reads the summary for name. Resolution is case-sensitive.
func (s *Store) LoadSummary(name string) (*model.Summary, error) {
	_, summaryPath := s.ws.SnapshotPaths(name)
	return s.loadSummaryFile(name, summaryPath)
}

func (s *Store) loadSummaryFile(name, path string) (*model.Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.NameNotFound, "snapshot not found: %s", name).With("snapshot", name)
		}
		return nil, errs.Wrap(errs.IOError, err, "read summary %s", path).With("path", path)
	}
	var sum model.Summary
	if err := json.Unmarshal(data, &sum); err != nil {
		return nil, errs.Wrap(errs.WorkspaceCorrupt, err, "parse summary %s", path).With("path", path)
	}
	return &sum, nil
}

// LoadArchive reads the archive for name.
func (s *Store) LoadArchive(name string) (*archive.Archive, error) {
	archivePath, _ := s.ws.SnapshotPaths(name)
	if _, err := os.Stat(archivePath); os.IsNotExist(err) {
		return nil, errs.New(errs.ArchiveCorrupt,
			"archive for snapshot %q is missing (summaries are version-controlled, archives are not)", name).
			With("snapshot", name)
	}
	return archive.Read(archivePath)
}

// SummariesForSource returns the summaries whose canonical source path
// equals sourcePath.
func (s *Store) SummariesForSource(sourcePath string) ([]*model.Summary, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var out []*model.Summary
	for _, sum := range all {
		if sum.SourcePath == sourcePath {
			out = append(out, sum)
		}
	}
	return out, nil
}

// LatestForSource returns the snapshot with the greatest sequence
// number for sourcePath, ties broken by creation time. Returns nil
// when the source has no snapshots.
func (s *Store) LatestForSource(sourcePath string) (*model.Summary, error) {
	summaries, err := s.SummariesForSource(sourcePath)
	if err != nil {
		return nil, err
	}
	return newest(summaries), nil
}

func newest(summaries []*model.Summary) *model.Summary {
	var best *model.Summary
	for _, sum := range summaries {
		if best == nil ||
			sum.SequenceNumber > best.SequenceNumber ||
			(sum.SequenceNumber == best.SequenceNumber && sum.Created.After(best.Created)) {
			best = sum
		}
	}
	return best
}

// Resolve maps a snapshot reference to a summary. A reference is a
// name, the "latest" alias, or a direct path to a summary or archive
// file. sourcePath scopes "latest" to one source; when empty, "latest"
// spans all chains.
func (s *Store) Resolve(ref, sourcePath string) (*model.Summary, error) {
	if ref == Latest {
		var sum *model.Summary
		var err error
		if sourcePath != "" {
			sum, err = s.LatestForSource(sourcePath)
		} else {
			var all []*model.Summary
			all, err = s.List()
			if err == nil {
				sum = newest(all)
			}
		}
		if err != nil {
			return nil, err
		}
		if sum == nil {
			return nil, errs.New(errs.NameNotFound, "no snapshots found").With("snapshot", Latest)
		}
		return sum, nil
	}

	if looksLikePath(ref) {
		return s.resolvePath(ref)
	}
	return s.LoadSummary(ref)
}

func looksLikePath(ref string) bool {
	if strings.ContainsRune(ref, os.PathSeparator) || strings.ContainsRune(ref, '/') {
		return true
	}
	ext := filepath.Ext(ref)
	return ext == workspace.SummaryExt || ext == workspace.ArchiveExt
}

func (s *Store) resolvePath(ref string) (*model.Summary, error) {
	stem := strings.TrimSuffix(strings.TrimSuffix(ref, workspace.ArchiveExt), workspace.SummaryExt)
	name := filepath.Base(stem)
	summaryPath := stem + workspace.SummaryExt
	if _, err := os.Stat(summaryPath); err != nil {
		return nil, errs.New(errs.NameNotFound, "snapshot not found at %s", ref).With("path", ref)
	}
	return s.loadSummaryFile(name, summaryPath)
}

// WriteSummary stores a summary, staged and atomically renamed.
func (s *Store) WriteSummary(sum *model.Summary) error {
	_, summaryPath := s.ws.SnapshotPaths(sum.Name)
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return errs.Wrap(errs.IOError, err, "encode summary for %q", sum.Name)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(summaryPath), ".summary-tmp-*")
	if err != nil {
		return errs.Wrap(errs.IOError, err, "stage summary for %q", sum.Name)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errs.Wrap(errs.IOError, err, "write summary for %q", sum.Name)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errs.Wrap(errs.IOError, err, "close summary for %q", sum.Name)
	}
	if err := os.Rename(tmpName, summaryPath); err != nil {
		os.Remove(tmpName)
		return errs.Wrap(errs.IOError, err, "publish summary for %q", sum.Name).With("path", summaryPath)
	}
	return nil
}

// ArchivePath returns the archive location for name.
func (s *Store) ArchivePath(name string) string {
	archivePath, _ := s.ws.SnapshotPaths(name)
	return archivePath
}
