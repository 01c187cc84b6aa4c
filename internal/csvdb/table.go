package csvdb

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Table handles storage for a single table in CSV format.
//
// A Table holds no rows itself; reads go through [Load] and a [Cache], writes
// rewrite the whole file with [Table.Write].
type Table[T any] struct {
	path   string
	schema Schema
}

// NewTable creates a Table for rows of type T stored at path.
//
// Columns are derived from T. migrations describe how older files map to the
// current columns; they must start at version 0 and be contiguous. The file is
// not touched; call [Table.EnsureInitialized] before first use.
func NewTable[T any](path string, migrations ...Migration) (*Table[T], error) {
	columns, err := columnsFromType[T]()
	if err != nil {
		return nil, err
	}
	t := &Table[T]{
		path:   path,
		schema: Schema{Columns: columns, Migrations: migrations},
	}
	if err := t.schema.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schema for %s: %w", path, err)
	}
	return t, nil
}

// Path returns the table file path.
func (t *Table[T]) Path() string {
	return t.path
}

// EnsureInitialized creates the table file with the current header if it is
// missing or empty, and rewrites it in the current shape if it uses a legacy
// one. It reports whether the file was written. Calling it again on an
// initialized table writes nothing.
//
// Every row must decode into T; the first one that does not is reported as a
// [SchemaError] and the file is left untouched.
func (t *Table[T]) EnsureInitialized() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create directory for %s: %w", t.path, err)
	}
	header, records, err := t.readRaw()
	if err != nil {
		return false, err
	}
	if header == nil {
		return true, t.writeRaw(nil)
	}
	migrated, changed, err := t.schema.Migrate(t.path, header, records)
	if err != nil {
		return false, err
	}
	if _, err := t.decodeAll(migrated); err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}
	return true, t.writeRaw(migrated)
}

// Read parses the table file. A missing or empty file is an empty table.
// Legacy shapes are migrated in memory only.
func (t *Table[T]) Read() ([]T, error) {
	header, records, err := t.readRaw()
	if err != nil {
		return nil, err
	}
	if header == nil {
		return []T{}, nil
	}
	records, _, err = t.schema.Migrate(t.path, header, records)
	if err != nil {
		return nil, err
	}
	return t.decodeAll(records)
}

func (t *Table[T]) decodeAll(records [][]string) ([]T, error) {
	rows := make([]T, 0, len(records))
	for i, rec := range records {
		row, err := t.decode(rec)
		if err != nil {
			return nil, &SchemaError{Path: t.path, Row: i + 1, Err: err}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Write replaces the table content with rows.
//
// The new content is written to a temporary file next to the table, synced
// and renamed into place.
func (t *Table[T]) Write(rows []T) error {
	records := make([][]string, 0, len(rows))
	for i := range rows {
		rec, err := t.encode(&rows[i])
		if err != nil {
			return fmt.Errorf("failed to encode row %d for %s: %w", i+1, t.path, err)
		}
		records = append(records, rec)
	}
	return t.writeRaw(records)
}

// Fingerprint returns the current file fingerprint.
func (t *Table[T]) Fingerprint() (Fingerprint, error) {
	return fingerprintOf(t.path)
}

// readRaw returns the header and data records. header is nil when the file
// does not exist or is empty.
func (t *Table[T]) readRaw() ([]string, [][]string, error) {
	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to open table file %s: %w", t.path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header of %s: %w", t.path, err)
	}
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read table file %s: %w", t.path, err)
	}
	return header, records, nil
}

func (t *Table[T]) writeRaw(records [][]string) error {
	dir := filepath.Dir(t.path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(t.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", t.path, err)
	}
	tmp := f.Name()
	abort := func(err error) error {
		return errors.Join(err, f.Close(), os.Remove(tmp))
	}

	w := csv.NewWriter(f)
	if err := w.Write(t.schema.Header()); err != nil {
		return abort(fmt.Errorf("failed to write header: %w", err))
	}
	if err := w.WriteAll(records); err != nil {
		return abort(fmt.Errorf("failed to write rows: %w", err))
	}
	if err := f.Chmod(0o644); err != nil {
		return abort(fmt.Errorf("failed to chmod temp file: %w", err))
	}
	if err := f.Sync(); err != nil {
		return abort(fmt.Errorf("failed to sync temp file: %w", err))
	}
	if err := f.Close(); err != nil {
		return errors.Join(fmt.Errorf("failed to close temp file: %w", err), os.Remove(tmp))
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return errors.Join(fmt.Errorf("failed to rename %s into place: %w", t.path, err), os.Remove(tmp))
	}
	return nil
}

// encode maps a row onto header order through its JSON form.
func (t *Table[T]) encode(row *T) ([]string, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	cells := make([]string, len(t.schema.Columns))
	for i, c := range t.schema.Columns {
		switch v := m[c.Name].(type) {
		case nil:
		case string:
			cells[i] = v
		default:
			return nil, fmt.Errorf("column %q: expected string, got %T", c.Name, v)
		}
	}
	return cells, nil
}

func (t *Table[T]) decode(rec []string) (T, error) {
	var row T
	m := make(map[string]string, len(t.schema.Columns))
	for i, c := range t.schema.Columns {
		if i < len(rec) && rec[i] != "" {
			m[c.Name] = rec[i]
		}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return row, err
	}
	err = json.Unmarshal(data, &row)
	return row, err
}
