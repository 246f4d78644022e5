package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// FormatVersion is written into every summary and workspace config.
const FormatVersion = "1.0.0"

// SourceKind distinguishes on-disk table files from SQL query sources.
type SourceKind string

const (
	SourceFile SourceKind = "file"
	SourceSQL  SourceKind = "sql"
)

// SamplingInfo records how much of the table was fingerprinted. The
// engine always hashes every row; the block exists for format stability.
type SamplingInfo struct {
	Strategy   string `json:"strategy"`
	RowsHashed uint64 `json:"rows_hashed"`
}

// DeltaInfo describes the forward delta stored in a snapshot's archive.
type DeltaInfo struct {
	ParentName     string `json:"parent_name"`
	CompressedSize int64  `json:"compressed_size"`
}

// Summary is the lightweight, version-controllable descriptor of a
// snapshot. Its JSON field set is stable; tools parse it directly.
type Summary struct {
	FormatVersion        string        `json:"format_version"`
	Name                 string        `json:"name"`
	Created              time.Time     `json:"created"`
	Source               string        `json:"source"`
	SourcePath           string        `json:"source_path"`
	SourceHash           string        `json:"source_hash"`
	RowCount             uint64        `json:"row_count"`
	ColumnCount          int           `json:"column_count"`
	SchemaHash           string        `json:"schema_hash"`
	Columns              *ColumnHashes `json:"columns"`
	Sampling             SamplingInfo  `json:"sampling"`
	HasFullData          bool          `json:"has_full_data"`
	ParentSnapshot       string        `json:"parent_snapshot,omitempty"`
	SequenceNumber       int           `json:"sequence_number"`
	CanReconstructParent bool          `json:"can_reconstruct_parent"`
	DeltaFromParent      *DeltaInfo    `json:"delta_from_parent,omitempty"`
}

// DeltaPresent reports whether the snapshot carries a forward delta.
func (s *Summary) DeltaPresent() bool { return s.DeltaFromParent != nil }

// ArchiveMetadata is the metadata.json member of an archive: the summary
// plus archive-only fields.
type ArchiveMetadata struct {
	Summary
	ArchiveSchemaVersion int `json:"archive_schema_version"`
}

// ArchiveSchemaVersion is bumped when the archive member layout changes.
const ArchiveSchemaVersion = 1

// ColumnHashes is an order-preserving map of column name to hex hash.
// JSON object key order follows insertion order on both marshal and
// unmarshal, matching schema column order in summaries.
type ColumnHashes struct {
	names  []string
	hashes map[string]string
}

// NewColumnHashes returns an empty ordered hash map.
func NewColumnHashes() *ColumnHashes {
	return &ColumnHashes{hashes: make(map[string]string)}
}

// Set records a column hash, appending the name on first sight.
func (c *ColumnHashes) Set(name, hexHash string) {
	if c.hashes == nil {
		c.hashes = make(map[string]string)
	}
	if _, seen := c.hashes[name]; !seen {
		c.names = append(c.names, name)
	}
	c.hashes[name] = hexHash
}

// Get returns the hash for name.
func (c *ColumnHashes) Get(name string) (string, bool) {
	if c == nil || c.hashes == nil {
		return "", false
	}
	h, ok := c.hashes[name]
	return h, ok
}

// Names returns column names in insertion order.
func (c *ColumnHashes) Names() []string {
	if c == nil {
		return nil
	}
	return c.names
}

// Len returns the number of columns.
func (c *ColumnHashes) Len() int {
	if c == nil {
		return 0
	}
	return len(c.names)
}

// MarshalJSON writes the object with keys in insertion order.
func (c *ColumnHashes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range c.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(c.hashes[name])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the object preserving key order.
func (c *ColumnHashes) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("columns: expected object, got %v", tok)
	}
	c.names = nil
	c.hashes = make(map[string]string)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("columns: non-string key %v", keyTok)
		}
		var val string
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("columns: value for %q: %w", key, err)
		}
		c.Set(key, val)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
