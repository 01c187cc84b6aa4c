// Handles table schema versions and forward migration of legacy CSV shapes.

package csvdb

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// ErrSchema is matched by every *SchemaError via errors.Is.
var ErrSchema = errors.New("schema error")

// SchemaError reports a table file whose header matches neither the current
// schema nor any registered migration, or a row whose cells cannot be decoded
// into the record type.
type SchemaError struct {
	Path    string
	Missing []string // required columns absent after migration
	Unknown []string // columns no migration accounts for
	Row     int      // 1-based data row that failed to decode; 0 for header errors
	Err     error    // decoding failure of Row
}

func (e *SchemaError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("%s: row %d: %v", e.Path, e.Row, e.Err)
	}
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing columns "+strings.Join(e.Missing, ","))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown columns "+strings.Join(e.Unknown, ","))
	}
	if len(parts) == 0 {
		parts = append(parts, "unrecognized header")
	}
	return fmt.Sprintf("%s: %s", e.Path, strings.Join(parts, "; "))
}

// Is implements errors.Is support for ErrSchema.
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// Migration rewrites rows of schema version From into version From+1.
//
// Renames maps legacy column names to their replacement. A migration applies
// to a header when it contains at least one of the legacy names. Transform,
// if set, runs on every row after renaming, keyed by the new column names.
type Migration struct {
	From      int
	Renames   map[string]string
	Transform func(row map[string]string) error
}

func (m *Migration) appliesTo(header []string) bool {
	for _, h := range header {
		if _, ok := m.Renames[h]; ok {
			return true
		}
	}
	return false
}

// Schema is the current column layout of a table plus its migration history.
type Schema struct {
	Columns    []Column
	Migrations []Migration
}

// Version is the current schema version, the number of registered migrations.
func (s *Schema) Version() int {
	return len(s.Migrations)
}

// Header returns the current column names in on-disk order.
func (s *Schema) Header() []string {
	return columnNames(s.Columns)
}

// Validate checks that migrations form a contiguous version chain.
func (s *Schema) Validate() error {
	if len(s.Columns) == 0 {
		return errors.New("schema has no columns")
	}
	for i, m := range s.Migrations {
		if m.From != i {
			return fmt.Errorf("migration %d: from version %d, want %d", i, m.From, i)
		}
		if len(m.Renames) == 0 && m.Transform == nil {
			return fmt.Errorf("migration %d: no renames and no transform", i)
		}
	}
	return nil
}

// Migrate converts header and rows of any known shape into the current
// shape. It does not modify its inputs. The returned bool reports whether the
// input differed from the current layout. path is only used for errors.
func (s *Schema) Migrate(path string, header []string, rows [][]string) ([][]string, bool, error) {
	current := s.Header()
	if slices.Equal(header, current) {
		return rows, false, nil
	}

	// Work on keyed rows so renames and reordering are independent of
	// column positions.
	keyed := make([]map[string]string, len(rows))
	for i, row := range rows {
		m := make(map[string]string, len(header))
		for j, name := range header {
			if j < len(row) {
				m[name] = row[j]
			}
		}
		keyed[i] = m
	}
	names := slices.Clone(header)

	for i := range s.Migrations {
		m := &s.Migrations[i]
		if !m.appliesTo(names) {
			continue
		}
		for j, name := range names {
			if to, ok := m.Renames[name]; ok {
				names[j] = to
			}
		}
		for _, row := range keyed {
			for from, to := range m.Renames {
				if v, ok := row[from]; ok {
					delete(row, from)
					row[to] = v
				}
			}
			if m.Transform != nil {
				if err := m.Transform(row); err != nil {
					return nil, false, fmt.Errorf("%s: migration from version %d: %w", path, m.From, err)
				}
			}
		}
	}

	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[n] = true
	}
	want := make(map[string]bool, len(current))
	serr := &SchemaError{Path: path}
	for _, c := range s.Columns {
		want[c.Name] = true
		if c.Required && !present[c.Name] {
			serr.Missing = append(serr.Missing, c.Name)
		}
	}
	for _, n := range names {
		if !want[n] {
			serr.Unknown = append(serr.Unknown, n)
		}
	}
	if len(serr.Missing) > 0 || len(serr.Unknown) > 0 {
		sort.Strings(serr.Missing)
		sort.Strings(serr.Unknown)
		return nil, false, serr
	}

	out := make([][]string, len(keyed))
	for i, row := range keyed {
		cells := make([]string, len(current))
		for j, name := range current {
			cells[j] = row[name]
		}
		out[i] = cells
	}
	return out, true, nil
}
