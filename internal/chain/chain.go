// Package chain manages per-source delta chains: parent selection for
// new snapshots, reconstruction of full tables by delta replay, and
// the space-reclaiming cleanup that strips full rows while preserving
// reconstructability.
package chain

import (
	"context"
	"log/slog"
	"sort"

	"github.com/kilupskalvis/tabdiff/internal/archive"
	"github.com/kilupskalvis/tabdiff/internal/errs"
	"github.com/kilupskalvis/tabdiff/internal/hash"
	"github.com/kilupskalvis/tabdiff/internal/model"
	"github.com/kilupskalvis/tabdiff/internal/rollback"
	"github.com/kilupskalvis/tabdiff/internal/store"
)

// Manager walks and maintains snapshot chains.
type Manager struct {
	store            *store.Store
	compressionLevel int
}

// NewManager creates a chain manager over st.
func NewManager(st *store.Store, compressionLevel int) *Manager {
	return &Manager{store: st, compressionLevel: compressionLevel}
}

// ParentFor returns the snapshot a new snapshot of sourcePath should
// link to: the one with the greatest sequence number for that source.
// Returns nil when the source has no snapshots yet.
func (m *Manager) ParentFor(sourcePath string) (*model.Summary, error) {
	return m.store.LatestForSource(sourcePath)
}

// Chains groups all summaries by canonical source path, each chain
// ordered by sequence number.
func (m *Manager) Chains() (map[string][]*model.Summary, error) {
	all, err := m.store.List()
	if err != nil {
		return nil, err
	}
	chains := make(map[string][]*model.Summary)
	for _, sum := range all {
		chains[sum.SourcePath] = append(chains[sum.SourcePath], sum)
	}
	for _, chain := range chains {
		sort.Slice(chain, func(i, j int) bool {
			if chain[i].SequenceNumber != chain[j].SequenceNumber {
				return chain[i].SequenceNumber < chain[j].SequenceNumber
			}
			return chain[i].Created.Before(chain[j].Created)
		})
	}
	return chains, nil
}

// ancestry returns the summaries from name up to its chain root,
// starting with name itself. Cycles fail with ChainBroken.
func (m *Manager) ancestry(name string) ([]*model.Summary, error) {
	var path []*model.Summary
	visited := make(map[string]bool)
	for current := name; current != ""; {
		if visited[current] {
			return nil, errs.New(errs.ChainBroken, "snapshot chain contains a cycle at %q", current).With("snapshot", current)
		}
		visited[current] = true
		sum, err := m.store.LoadSummary(current)
		if err != nil {
			return nil, errs.Wrap(errs.ChainBroken, err, "walk chain at %q", current).With("snapshot", current)
		}
		path = append(path, sum)
		current = sum.ParentSnapshot
	}
	return path, nil
}

// children maps each snapshot name to the summaries that name it as
// parent.
func (m *Manager) children() (map[string][]*model.Summary, error) {
	all, err := m.store.List()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]*model.Summary)
	for _, sum := range all {
		if sum.ParentSnapshot != "" {
			out[sum.ParentSnapshot] = append(out[sum.ParentSnapshot], sum)
		}
	}
	return out, nil
}

// Reconstruct rebuilds the full table of a snapshot. The nearest
// ancestor with full rows (including the snapshot itself) is preferred,
// replaying each intervening forward delta. When every ancestor has
// been stripped, the nearest descendant with full rows is used instead
// and the deltas replay in reverse. Missing deltas or unreadable
// archives fail with ChainBroken.
func (m *Manager) Reconstruct(ctx context.Context, name string) (*model.Table, error) {
	ancestors, err := m.ancestry(name)
	if err != nil {
		return nil, err
	}

	for i, sum := range ancestors {
		if !sum.HasFullData {
			continue
		}
		return m.replayDown(ctx, ancestors[:i+1])
	}

	table, err := m.replayUpFrom(ctx, name)
	if err != nil {
		return nil, err
	}
	if table == nil {
		return nil, errs.New(errs.ChainBroken,
			"no snapshot with full data remains on the chain of %q", name).With("snapshot", name)
	}
	return table, nil
}

// replayDown applies forward deltas from the full-data ancestor (last
// element) down to the target (first element).
func (m *Manager) replayDown(ctx context.Context, path []*model.Summary) (*model.Table, error) {
	anchor := path[len(path)-1]
	arch, err := m.store.LoadArchive(anchor.Name)
	if err != nil {
		return nil, errs.Wrap(errs.ChainBroken, err, "load full data of %q", anchor.Name).With("snapshot", anchor.Name)
	}
	if arch.Rows == nil {
		return nil, errs.New(errs.ChainBroken,
			"archive of %q lost its full rows", anchor.Name).With("snapshot", anchor.Name)
	}
	table := &model.Table{Schema: arch.Schema.Clone(), Rows: arch.Rows}

	for i := len(path) - 2; i >= 0; i-- {
		step := path[i]
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(errs.Cancelled, err, "reconstruction cancelled")
		}
		stepArch, err := m.store.LoadArchive(step.Name)
		if err != nil {
			return nil, errs.Wrap(errs.ChainBroken, err, "load delta of %q", step.Name).With("snapshot", step.Name)
		}
		if stepArch.Delta == nil {
			return nil, errs.New(errs.ChainBroken,
				"snapshot %q has no delta to replay", step.Name).With("snapshot", step.Name)
		}
		if err := rollback.ApplyOps(table, stepArch.Delta.ForwardOps); err != nil {
			return nil, errs.Wrap(errs.ChainBroken, err, "replay delta into %q", step.Name).With("snapshot", step.Name)
		}
		if err := verifyAgainst(table, step); err != nil {
			return nil, err
		}
	}
	return table, nil
}

// replayUpFrom finds the nearest descendant of name with full rows and
// replays rollback deltas back up to name. Returns nil when no such
// descendant exists.
func (m *Manager) replayUpFrom(ctx context.Context, name string) (*model.Table, error) {
	childrenOf, err := m.children()
	if err != nil {
		return nil, err
	}

	// Breadth-first so the nearest full-data descendant wins.
	type node struct {
		sum  *model.Summary
		path []*model.Summary // descent from name (exclusive) to this node
	}
	queue := []node{}
	for _, child := range childrenOf[name] {
		queue = append(queue, node{sum: child, path: []*model.Summary{child}})
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.sum.HasFullData {
			return m.replayUp(ctx, cur.path)
		}
		for _, child := range childrenOf[cur.sum.Name] {
			path := append(append([]*model.Summary{}, cur.path...), child)
			queue = append(queue, node{sum: child, path: path})
		}
	}
	return nil, nil
}

// replayUp starts from the full-data descendant (last element of the
// descent path) and applies each snapshot's rollback delta to step back
// toward the ancestor the path descends from.
func (m *Manager) replayUp(ctx context.Context, descent []*model.Summary) (*model.Table, error) {
	anchor := descent[len(descent)-1]
	arch, err := m.store.LoadArchive(anchor.Name)
	if err != nil {
		return nil, errs.Wrap(errs.ChainBroken, err, "load full data of %q", anchor.Name).With("snapshot", anchor.Name)
	}
	if arch.Rows == nil {
		return nil, errs.New(errs.ChainBroken,
			"archive of %q lost its full rows", anchor.Name).With("snapshot", anchor.Name)
	}
	table := &model.Table{Schema: arch.Schema.Clone(), Rows: arch.Rows}

	for i := len(descent) - 1; i >= 0; i-- {
		step := descent[i]
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(errs.Cancelled, err, "reconstruction cancelled")
		}
		stepArch, err := m.store.LoadArchive(step.Name)
		if err != nil {
			return nil, errs.Wrap(errs.ChainBroken, err, "load delta of %q", step.Name).With("snapshot", step.Name)
		}
		if stepArch.Delta == nil {
			return nil, errs.New(errs.ChainBroken,
				"snapshot %q has no delta to replay", step.Name).With("snapshot", step.Name)
		}
		if err := rollback.ApplyOps(table, stepArch.Delta.RollbackOps); err != nil {
			return nil, errs.Wrap(errs.ChainBroken, err, "replay delta of %q in reverse", step.Name).With("snapshot", step.Name)
		}
		parentName := step.ParentSnapshot
		parent, err := m.store.LoadSummary(parentName)
		if err != nil {
			return nil, errs.Wrap(errs.ChainBroken, err, "load parent %q", parentName).With("snapshot", parentName)
		}
		if err := verifyAgainst(table, parent); err != nil {
			return nil, err
		}
	}
	return table, nil
}

// verifyAgainst asserts the replay post-condition: recomputed counts
// and fingerprints must equal the target summary's.
func verifyAgainst(table *model.Table, sum *model.Summary) error {
	result := hash.Table(table)
	if result.RowCount != sum.RowCount {
		return errs.New(errs.ChainBroken,
			"replay toward %q produced %d rows, summary records %d",
			sum.Name, result.RowCount, sum.RowCount).With("snapshot", sum.Name)
	}
	if result.SchemaHash != sum.SchemaHash {
		return errs.New(errs.ChainBroken,
			"replay toward %q produced a different schema", sum.Name).With("snapshot", sum.Name)
	}
	for _, name := range result.ColumnHashes.Names() {
		got, _ := result.ColumnHashes.Get(name)
		want, ok := sum.Columns.Get(name)
		if !ok || got != want {
			return errs.New(errs.ChainBroken,
				"replay toward %q produced different data in column %q", sum.Name, name).With("snapshot", sum.Name)
		}
	}
	return nil
}

// CleanupEntry is one snapshot affected by cleanup.
type CleanupEntry struct {
	Name       string `json:"name"`
	Source     string `json:"source"`
	BytesFreed int64  `json:"bytes_freed"`
}

// CleanupReport summarizes a cleanup run.
type CleanupReport struct {
	DryRun     bool           `json:"dry_run"`
	Stripped   []CleanupEntry `json:"stripped"`
	TotalFreed int64          `json:"total_bytes_freed"`
}

// Cleanup strips full rows from snapshots that are not among the
// keepFull most recently created full-data snapshots of their chain,
// provided every snapshot stays reconstructable. Deltas are always
// preserved. The operation is idempotent; with dryRun no archive is
// touched.
func (m *Manager) Cleanup(ctx context.Context, keepFull int, dryRun bool) (*CleanupReport, error) {
	if keepFull < 1 {
		keepFull = 1
	}
	chains, err := m.Chains()
	if err != nil {
		return nil, err
	}

	report := &CleanupReport{DryRun: dryRun}
	sources := make([]string, 0, len(chains))
	for src := range chains {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	for _, src := range sources {
		chain := chains[src]

		full := make([]*model.Summary, 0, len(chain))
		for _, sum := range chain {
			if sum.HasFullData {
				full = append(full, sum)
			}
		}
		if len(full) <= keepFull {
			continue
		}
		sort.Slice(full, func(i, j int) bool { return full[i].Created.After(full[j].Created) })
		keep := make(map[string]bool, keepFull)
		for _, sum := range full[:keepFull] {
			keep[sum.Name] = true
		}

		candidates := make(map[string]bool)
		for _, sum := range full[keepFull:] {
			candidates[sum.Name] = true
		}

		// Retain any candidate whose removal would leave some snapshot
		// without a replay path to remaining full data.
		for !cleanupSafe(chain, candidates) {
			// Give back the oldest candidate first; chains are normally
			// linear, so this loop rarely runs more than once.
			oldest := ""
			for _, sum := range chain {
				if candidates[sum.Name] {
					oldest = sum.Name
					break
				}
			}
			if oldest == "" {
				break
			}
			delete(candidates, oldest)
		}

		for _, sum := range chain {
			if !candidates[sum.Name] {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, errs.Wrap(errs.Cancelled, err, "cleanup cancelled")
			}
			freed, err := m.strip(sum, dryRun)
			if err != nil {
				return nil, err
			}
			report.Stripped = append(report.Stripped, CleanupEntry{
				Name: sum.Name, Source: sum.SourcePath, BytesFreed: freed,
			})
			report.TotalFreed += freed
		}
	}
	return report, nil
}

// cleanupSafe checks that every chain member can still be rebuilt when
// the candidate set loses its full rows: either an ancestor path to
// retained full data exists with a delta on every step (hash-only
// snapshots carry no delta), or a descendant path of delta-carrying
// snapshots leads down to retained full data.
func cleanupSafe(chain []*model.Summary, candidates map[string]bool) bool {
	byName := make(map[string]*model.Summary, len(chain))
	for _, sum := range chain {
		byName[sum.Name] = sum
	}
	childrenOf := make(map[string][]*model.Summary)
	for _, sum := range chain {
		if sum.ParentSnapshot != "" {
			childrenOf[sum.ParentSnapshot] = append(childrenOf[sum.ParentSnapshot], sum)
		}
	}
	hasFull := func(sum *model.Summary) bool {
		return sum.HasFullData && !candidates[sum.Name]
	}

	for _, sum := range chain {
		if hasFull(sum) {
			continue
		}
		ok := false
		// Ancestor direction: forward replay needs a delta on every
		// snapshot between the full ancestor and this one, inclusive.
		for cur := sum; cur.ParentSnapshot != ""; {
			if !cur.DeltaPresent() {
				break
			}
			parent, exists := byName[cur.ParentSnapshot]
			if !exists {
				break
			}
			if hasFull(parent) {
				ok = true
				break
			}
			cur = parent
		}
		if ok {
			continue
		}
		// Descendant direction: children carry the deltas.
		queue := append([]*model.Summary{}, childrenOf[sum.Name]...)
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if !cur.DeltaPresent() {
				continue
			}
			if hasFull(cur) {
				ok = true
				break
			}
			queue = append(queue, childrenOf[cur.Name]...)
		}
		if !ok {
			return false
		}
	}
	return true
}

// strip rewrites a snapshot's archive without its full rows and
// updates the summary. The delta member is preserved.
func (m *Manager) strip(sum *model.Summary, dryRun bool) (int64, error) {
	arch, err := m.store.LoadArchive(sum.Name)
	if err != nil {
		return 0, err
	}
	var freed int64
	if arch.Rows != nil {
		if data, err := archive.EncodeRows(arch.Schema, arch.Rows); err == nil {
			freed = int64(len(data))
		}
	}
	if dryRun {
		return freed, nil
	}

	arch.Rows = nil
	arch.Metadata.HasFullData = false
	if err := archive.Write(m.store.ArchivePath(sum.Name), arch, m.compressionLevel); err != nil {
		return 0, err
	}

	sum.HasFullData = false
	if err := m.store.WriteSummary(sum); err != nil {
		return 0, err
	}
	slog.Debug("stripped full rows", "snapshot", sum.Name, "bytes", freed)
	return freed, nil
}
