package cli

import (
	"fmt"
	"sort"

	"github.com/fatih/color"

	"github.com/kilupskalvis/tabdiff/internal/model"
)

// printChangeSet renders a change report for humans: schema changes
// first, then row changes, green for additions, red for removals,
// yellow for modifications.
func printChangeSet(cs *model.ChangeSet, quiet bool) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	magenta := color.New(color.FgMagenta)

	if cs.Empty() {
		fmt.Println("No changes")
		return
	}

	sc := &cs.SchemaChanges
	if sc.HasChanges() {
		fmt.Println("Schema changes:")
		for _, add := range sc.Added {
			green.Printf("  + column %s (%s) at position %d\n", add.Name, add.Type, add.Position)
		}
		for _, rem := range sc.Removed {
			red.Printf("  - column %s (%s) from position %d\n", rem.Name, rem.Type, rem.Position)
		}
		for _, ren := range sc.Renamed {
			yellow.Printf("  ~ column %s renamed to %s\n", ren.From, ren.To)
		}
		for _, tc := range sc.TypeChanges {
			magenta.Printf("  ~ column %s type %s -> %s\n", tc.Name, tc.Before, tc.After)
		}
		if sc.ColumnOrder != nil {
			yellow.Printf("  ~ column order changed\n")
		}
		fmt.Println()
	}

	rc := &cs.RowChanges
	if rc.HasChanges() {
		fmt.Println("Row changes:")
		if quiet {
			printRowCounts(rc, green, red, yellow)
		} else {
			for _, mod := range rc.Modified {
				yellow.Printf("  ~ row %d\n", mod.RowIndex)
				for _, col := range sortedChangeColumns(mod.Changes) {
					change := mod.Changes[col]
					fmt.Printf("      %s: %s -> %s\n", col, renderValue(change.Before), renderValue(change.After))
				}
			}
			for _, add := range rc.Added {
				green.Printf("  + row %d\n", add.RowIndex)
			}
			for _, rem := range rc.Removed {
				red.Printf("  - row %d\n", rem.RowIndex)
			}
		}
		fmt.Println()
	}

	total := rc.TotalChanges()
	fmt.Printf("%d row change(s), %d rollback operation(s)\n", total, len(cs.RollbackOps))
}

func printRowCounts(rc *model.RowChanges, green, red, yellow *color.Color) {
	if len(rc.Added) > 0 {
		green.Printf("  %d addition(s)\n", len(rc.Added))
	}
	if len(rc.Modified) > 0 {
		yellow.Printf("  %d modification(s)\n", len(rc.Modified))
	}
	if len(rc.Removed) > 0 {
		red.Printf("  %d removal(s)\n", len(rc.Removed))
	}
}

func sortedChangeColumns(changes map[string]model.CellChange) []string {
	cols := make([]string, 0, len(changes))
	for col := range changes {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

func renderValue(v model.Value) string {
	if v.Null {
		return "NULL"
	}
	return fmt.Sprintf("%q", v.Str)
}

// printSummary renders one snapshot summary.
func printSummary(sum *model.Summary, detailed bool) {
	fmt.Printf("Snapshot: %s\n", sum.Name)
	fmt.Printf("├─ Created:  %s\n", sum.Created.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("├─ Source:   %s\n", sum.Source)
	fmt.Printf("├─ Rows:     %d\n", sum.RowCount)
	fmt.Printf("├─ Columns:  %d\n", sum.ColumnCount)
	fmt.Printf("├─ Full data: %v\n", sum.HasFullData)
	if sum.ParentSnapshot != "" {
		fmt.Printf("├─ Parent:   %s (sequence %d)\n", sum.ParentSnapshot, sum.SequenceNumber)
	} else {
		fmt.Printf("├─ Chain root (sequence %d)\n", sum.SequenceNumber)
	}
	fmt.Printf("└─ Schema:   %s\n", shortHash(sum.SchemaHash))

	if detailed {
		fmt.Println("\nColumns:")
		for _, name := range sum.Columns.Names() {
			h, _ := sum.Columns.Get(name)
			fmt.Printf("  %-20s %s\n", name, shortHash(h))
		}
		if sum.DeltaFromParent != nil {
			fmt.Printf("\nDelta from %s (%d bytes encoded)\n",
				sum.DeltaFromParent.ParentName, sum.DeltaFromParent.CompressedSize)
		}
	}
}

// shortHash returns the first 12 characters of a hex hash.
func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
