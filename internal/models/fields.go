package models

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// FieldType is the closed set of types an organizer may declare for an additional field.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldBool   FieldType = "bool"
	FieldArray  FieldType = "array"
)

func (t FieldType) Valid() bool {
	switch t {
	case FieldString, FieldNumber, FieldBool, FieldArray:
		return true
	}
	return false
}

// FieldSchema maps additional-field names to their declared type.
type FieldSchema map[string]FieldType

// SchemaMode selects whether every declared field must be present.
type SchemaMode int

const (
	// SchemaComplete requires every schema key; used for self-serve attach.
	SchemaComplete SchemaMode = iota
	// SchemaPartial accepts any subset; used for privileged writes and later edits.
	SchemaPartial
)

// ValidKey reports whether name can be used as a schema key. Keys become
// document paths, so dots and a leading dollar are rejected.
func ValidKey(name string) bool {
	return name != "" && !strings.Contains(name, ".") && !strings.HasPrefix(name, "$")
}

// Check validates the schema definition itself.
func (s FieldSchema) Check() error {
	for _, key := range s.sortedKeys() {
		if !ValidKey(key) {
			return &InvalidInputError{Field: "additional_fields_schema." + key, Reason: "field names must be non-empty and may not contain '.' or start with '$'"}
		}
		if !s[key].Valid() {
			return &InvalidInputError{Field: "additional_fields_schema." + key, Reason: fmt.Sprintf("unsupported type %q", s[key])}
		}
	}
	return nil
}

func (s FieldSchema) sortedKeys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValidateAgainstSchema checks candidate against schema. Keys are visited in
// sorted order so the reported field is deterministic.
func ValidateAgainstSchema(schema FieldSchema, candidate map[string]interface{}, mode SchemaMode) error {
	keys := make([]string, 0, len(candidate))
	for k := range candidate {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		expected, ok := schema[key]
		if !ok {
			return &UnknownFieldError{Field: key}
		}
		got := typeOf(candidate[key])
		if got != string(expected) {
			return &SchemaTypeMismatch{Field: key, Expected: expected, Got: got}
		}
	}

	if mode == SchemaComplete {
		for _, key := range schema.sortedKeys() {
			if _, ok := candidate[key]; !ok {
				return &MissingFieldError{Field: key}
			}
		}
	}
	return nil
}

// typeOf names the schema type of v, or a descriptive name when v fits none.
// Values arrive both from JSON (float64, []interface{}) and from BSON (int32,
// int64, primitive.A), so the check goes by kind rather than concrete type.
func typeOf(v interface{}) string {
	if v == nil {
		return "null"
	}
	if _, ok := v.(json.Number); ok {
		return string(FieldNumber)
	}

	switch reflect.TypeOf(v).Kind() {
	case reflect.String:
		return string(FieldString)
	case reflect.Bool:
		return string(FieldBool)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return string(FieldNumber)
	case reflect.Slice, reflect.Array:
		return string(FieldArray)
	case reflect.Map, reflect.Struct:
		return "object"
	}
	return reflect.TypeOf(v).String()
}
