package model

// ChangeSet is the full result of change detection between a baseline
// snapshot and a current table: schema diff, row diff, and the ordered
// rollback operations that transform current back into baseline.
type ChangeSet struct {
	SchemaChanges SchemaChanges `json:"schema_changes"`
	RowChanges    RowChanges    `json:"row_changes"`
	RollbackOps   []RollbackOp  `json:"rollback_operations"`
}

// Empty reports whether nothing changed.
func (c *ChangeSet) Empty() bool {
	return !c.SchemaChanges.HasChanges() && !c.RowChanges.HasChanges()
}

// SchemaChanges describes column-level differences.
type SchemaChanges struct {
	ColumnOrder *ColumnOrderChange `json:"column_order,omitempty"`
	Added       []ColumnAddition   `json:"columns_added"`
	Removed     []ColumnRemoval    `json:"columns_removed"`
	Renamed     []ColumnRename     `json:"columns_renamed"`
	TypeChanges []TypeChange       `json:"type_changes"`
}

// HasChanges reports whether any schema change was detected.
func (s *SchemaChanges) HasChanges() bool {
	return s.ColumnOrder != nil ||
		len(s.Added) > 0 ||
		len(s.Removed) > 0 ||
		len(s.Renamed) > 0 ||
		len(s.TypeChanges) > 0
}

// ColumnOrderChange records a reordering of the shared columns.
type ColumnOrderChange struct {
	Before []string `json:"before"`
	After  []string `json:"after"`
}

// ColumnAddition is a column present only in the current schema.
type ColumnAddition struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Position int    `json:"position"`
	Nullable bool   `json:"nullable"`
}

// ColumnRemoval is a column present only in the baseline schema.
type ColumnRemoval struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Position int    `json:"position"`
	Nullable bool   `json:"nullable"`
}

// ColumnRename pairs a removed baseline column with an added current
// column whose data fingerprints match.
type ColumnRename struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// TypeChange records a declared-type difference on a shared column.
type TypeChange struct {
	Name   string `json:"name"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// RowChanges describes row-level differences.
type RowChanges struct {
	Modified []RowModification `json:"modified"`
	Added    []RowAddition     `json:"added"`
	Removed  []RowRemoval      `json:"removed"`
}

// HasChanges reports whether any row change was detected.
func (r *RowChanges) HasChanges() bool {
	return len(r.Modified) > 0 || len(r.Added) > 0 || len(r.Removed) > 0
}

// TotalChanges returns the number of changed rows.
func (r *RowChanges) TotalChanges() int {
	return len(r.Modified) + len(r.Added) + len(r.Removed)
}

// CellChange is one differing cell in a modified row pair.
type CellChange struct {
	Before Value `json:"before"`
	After  Value `json:"after"`
}

// RowModification pairs a baseline row with a current row and lists the
// differing cells. RowIndex is the baseline index; CurrentIndex the
// current one (they differ when rows shifted).
type RowModification struct {
	RowIndex     uint64                `json:"row_index"`
	CurrentIndex uint64                `json:"current_index"`
	Changes      map[string]CellChange `json:"changes"`
}

// RowAddition is a row present only in the current table.
type RowAddition struct {
	RowIndex uint64           `json:"row_index"`
	Data     map[string]Value `json:"data"`
}

// RowRemoval is a row present only in the baseline table.
type RowRemoval struct {
	RowIndex uint64           `json:"row_index"`
	Data     map[string]Value `json:"data"`
}

// Delta is the forward-delta record stored in an archive: the change
// set that transforms the parent's table into this snapshot's table.
// ForwardOps replay parent→child; RollbackOps replay child→parent, so
// reconstruction can walk a chain in either direction without
// recomputing hashes.
type Delta struct {
	ParentName    string        `json:"parent_name"`
	SchemaChanges SchemaChanges `json:"schema_changes"`
	RowChanges    RowChanges    `json:"row_changes"`
	ForwardOps    []RollbackOp  `json:"forward_operations"`
	RollbackOps   []RollbackOp  `json:"rollback_operations"`
}
