// Package archive reads and writes .tabdiff archive files: a tar
// stream under zstd compression holding metadata.json, schema.json,
// and optionally data.parquet (full rows) and delta.parquet (forward
// delta from the parent snapshot).
package archive

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/kilupskalvis/tabdiff/internal/errs"
	"github.com/kilupskalvis/tabdiff/internal/model"
)

// Member names inside the container.
const (
	MemberMetadata = "metadata.json"
	MemberSchema   = "schema.json"
	MemberData     = "data.parquet"
	MemberDelta    = "delta.parquet"
)

// DefaultCompressionLevel maps to zstd's default speed/ratio tradeoff.
const DefaultCompressionLevel = 3

// Archive is the decoded content of a .tabdiff file.
type Archive struct {
	Metadata     model.ArchiveMetadata
	Schema       model.Schema
	ColumnHashes *model.ColumnHashes
	// Rows is nil unless the archive carries full data.
	Rows []model.Row
	// Delta is nil for chain roots.
	Delta *model.Delta
	// DeltaSize is the encoded size of the delta member, if present.
	DeltaSize int64
}

// schemaMember is the schema.json layout.
type schemaMember struct {
	Columns      model.Schema        `json:"columns"`
	ColumnHashes *model.ColumnHashes `json:"column_hashes"`
}

func encoderLevel(level int) zstd.EncoderLevel {
	if level <= 0 {
		level = DefaultCompressionLevel
	}
	return zstd.EncoderLevelFromZstd(level)
}

// Write encodes and stores the archive at path. The content is staged
// to a temporary file in the same directory and renamed into place so
// a failed write never leaves a partial archive behind.
func Write(path string, a *Archive, compressionLevel int) (err error) {
	members := make([]member, 0, 4)

	// Data members are encoded first so the metadata can record the
	// delta's encoded size.
	if a.Rows != nil {
		data, err := EncodeRows(a.Schema, a.Rows)
		if err != nil {
			return err
		}
		members = append(members, member{MemberData, data})
	}
	if a.Delta != nil {
		data, err := encodeDelta(a.Delta)
		if err != nil {
			return err
		}
		a.DeltaSize = int64(len(data))
		if a.Metadata.DeltaFromParent != nil {
			a.Metadata.DeltaFromParent.CompressedSize = a.DeltaSize
		}
		members = append(members, member{MemberDelta, data})
	}

	meta, err := json.MarshalIndent(&a.Metadata, "", "  ")
	if err != nil {
		return errs.Wrap(errs.IOError, err, "encode metadata for %s", path)
	}
	schemaJSON, err := json.MarshalIndent(&schemaMember{Columns: a.Schema, ColumnHashes: a.ColumnHashes}, "", "  ")
	if err != nil {
		return errs.Wrap(errs.IOError, err, "encode schema for %s", path)
	}
	members = append([]member{{MemberMetadata, meta}, {MemberSchema, schemaJSON}}, members...)

	return writeMembers(path, members, compressionLevel)
}

type member struct {
	name string
	data []byte
}

func writeMembers(path string, members []member, compressionLevel int) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tabdiff-tmp-*")
	if err != nil {
		return errs.Wrap(errs.IOError, err, "stage archive for %s", path).With("path", path)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	enc, err := zstd.NewWriter(tmp, zstd.WithEncoderLevel(encoderLevel(compressionLevel)))
	if err != nil {
		return errs.Wrap(errs.IOError, err, "create compressor for %s", path)
	}
	tw := tar.NewWriter(enc)
	for _, m := range members {
		hdr := &tar.Header{
			Name: m.name,
			Mode: 0o644,
			Size: int64(len(m.data)),
		}
		if err = tw.WriteHeader(hdr); err != nil {
			return errs.Wrap(errs.IOError, err, "write %s into %s", m.name, path)
		}
		if _, err = tw.Write(m.data); err != nil {
			return errs.Wrap(errs.IOError, err, "write %s into %s", m.name, path)
		}
	}
	if err = tw.Close(); err != nil {
		return errs.Wrap(errs.IOError, err, "finish archive %s", path)
	}
	if err = enc.Close(); err != nil {
		return errs.Wrap(errs.IOError, err, "finish compression for %s", path)
	}
	if err = tmp.Close(); err != nil {
		return errs.Wrap(errs.IOError, err, "close staged archive for %s", path)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return errs.Wrap(errs.IOError, err, "publish archive %s", path).With("path", path)
	}
	return nil
}

// Read decodes the archive at path.
func Read(path string) (*Archive, error) {
	members, err := readMembers(path)
	if err != nil {
		return nil, err
	}

	a := &Archive{}

	meta, ok := members[MemberMetadata]
	if !ok {
		return nil, errs.New(errs.ArchiveCorrupt, "%s: missing %s", path, MemberMetadata).With("path", path)
	}
	if err := json.Unmarshal(meta, &a.Metadata); err != nil {
		return nil, errs.Wrap(errs.ArchiveCorrupt, err, "%s: parse %s", path, MemberMetadata).With("path", path)
	}

	schemaJSON, ok := members[MemberSchema]
	if !ok {
		return nil, errs.New(errs.ArchiveCorrupt, "%s: missing %s", path, MemberSchema).With("path", path)
	}
	var sm schemaMember
	if err := json.Unmarshal(schemaJSON, &sm); err != nil {
		return nil, errs.Wrap(errs.ArchiveCorrupt, err, "%s: parse %s", path, MemberSchema).With("path", path)
	}
	a.Schema = sm.Columns
	a.ColumnHashes = sm.ColumnHashes

	if data, ok := members[MemberData]; ok {
		rows, err := DecodeRows(a.Schema, data)
		if err != nil {
			return nil, errs.Wrap(errs.ArchiveCorrupt, err, "%s: decode %s", path, MemberData).With("path", path)
		}
		a.Rows = rows
	} else if a.Metadata.HasFullData {
		return nil, errs.New(errs.ArchiveCorrupt, "%s: metadata promises full data but %s is absent", path, MemberData).With("path", path)
	}

	if data, ok := members[MemberDelta]; ok {
		delta, err := decodeDelta(data)
		if err != nil {
			return nil, errs.Wrap(errs.ArchiveCorrupt, err, "%s: decode %s", path, MemberDelta).With("path", path)
		}
		a.Delta = delta
		a.DeltaSize = int64(len(data))
	}

	return a, nil
}

func readMembers(path string) (map[string][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.ArchiveCorrupt, "archive not found: %s", path).With("path", path)
		}
		return nil, errs.Wrap(errs.IOError, err, "open archive %s", path).With("path", path)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, errs.Wrap(errs.ArchiveCorrupt, err, "%s: not a zstd stream", path).With("path", path)
	}
	defer dec.Close()

	members := make(map[string][]byte)
	tr := tar.NewReader(dec)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.Wrap(errs.ArchiveCorrupt, err, "%s: read tar stream", path).With("path", path)
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, tr); err != nil {
			return nil, errs.Wrap(errs.ArchiveCorrupt, err, "%s: read member %s", path, hdr.Name).With("path", path)
		}
		members[hdr.Name] = buf.Bytes()
	}
	return members, nil
}
