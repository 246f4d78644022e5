package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kilupskalvis/tabdiff/internal/errs"
	"github.com/kilupskalvis/tabdiff/internal/model"
	"github.com/kilupskalvis/tabdiff/internal/source"
)

// baselineTable materializes a snapshot's full rows, reconstructing
// through the chain when the archive was stripped. A chain without any
// full data left surfaces as BaselineMissingFullData, since cell-level
// comparison is impossible without rows.
func (c *cmdContext) baselineTable(ctx context.Context, sum *model.Summary) (*model.Table, error) {
	table, err := c.Chain.Reconstruct(ctx, sum.Name)
	if err != nil {
		if errs.IsKind(err, errs.ChainBroken) {
			return nil, errs.Wrap(errs.BaselineMissingFullData, err,
				"snapshot %q is hash-only and cannot be reconstructed", sum.Name).With("snapshot", sum.Name)
		}
		return nil, err
	}
	return table, nil
}

// currentTable scans the file as it stands now.
func (c *cmdContext) currentTable(ctx context.Context, input string, batchSize int) (*model.Table, source.Source, error) {
	src, err := source.Open(input, batchSize)
	if err != nil {
		return nil, nil, err
	}
	table, err := source.ReadAll(ctx, src)
	if err != nil {
		return nil, nil, err
	}
	return table, src, nil
}

// resolveByDate finds the newest snapshot of sourcePath created at or
// before the given date. Accepted formats: 2006-01-02,
// "2006-01-02 15:04:05", and RFC 3339.
func (c *cmdContext) resolveByDate(dateStr, sourcePath string) (*model.Summary, error) {
	target, err := parseDate(dateStr)
	if err != nil {
		return nil, err
	}
	summaries, err := c.Store.SummariesForSource(sourcePath)
	if err != nil {
		return nil, err
	}
	var best *model.Summary
	for _, sum := range summaries {
		if sum.Created.After(target) {
			continue
		}
		if best == nil || sum.Created.After(best.Created) {
			best = sum
		}
	}
	if best == nil {
		return nil, errs.New(errs.NameNotFound,
			"no snapshots of %s exist before %s", sourcePath, target.Format(time.RFC3339)).With("path", sourcePath)
	}
	return best, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errs.New(errs.NameNotFound,
		"invalid date %q (use YYYY-MM-DD, 'YYYY-MM-DD HH:MM:SS', or RFC 3339)", s)
}

// confirm asks a yes/no question on the terminal.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
