// Derives table columns from Go record types using JSON Schema reflection.

package csvdb

import (
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

// Column describes one CSV column.
type Column struct {
	Name        string
	Required    bool
	Description string
}

// columnsFromType extracts column definitions using JSON Schema reflection.
//
// It uses github.com/invopop/jsonschema to extract field descriptions from
// `jsonschema:"description=..."` tags and required fields from the schema
// (fields without omitempty are required). Column order follows struct field
// order. Every column must reflect to a JSON string since CSV cells are text.
func columnsFromType[T any]() ([]Column, error) {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("type must be a struct or pointer to struct, got %s", t.Kind())
	}

	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	schema := r.ReflectFromType(t)

	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	var columns []Column
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		prop := pair.Value
		if prop.Type != "string" {
			return nil, fmt.Errorf("column %q of %s: must be a string, got %q", pair.Key, t, prop.Type)
		}
		columns = append(columns, Column{
			Name:        pair.Key,
			Required:    required[pair.Key],
			Description: prop.Description,
		})
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("type %s has no exported columns", t)
	}
	return columns, nil
}

func columnNames(columns []Column) []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names
}
