package internal

import (
	"fmt"
	"sort"

	"github.com/stashbase/stashbase"
)

// ValidationMode selects insert or update semantics for document validation.
type ValidationMode string

const (
	// ModeInsert enforces required fields and rejects undeclared keys.
	ModeInsert ValidationMode = "insert"
	// ModeUpdate makes every field optional (partial update) while still
	// rejecting undeclared keys.
	ModeUpdate ValidationMode = "update"
)

// ValidateFieldDefinitions checks a field list for structural problems:
// empty list, duplicate names, reserved names, malformed identifiers, types
// outside the closed set, and enum on non-string fields. The first problem
// found is returned as a human-readable error, or nil.
func ValidateFieldDefinitions(fields []stashbase.FieldDefinition) error {
	if len(fields) == 0 {
		return fmt.Errorf("field list must not be empty")
	}

	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return fmt.Errorf("field name must not be empty")
		}
		if f.Name == "id" {
			return fmt.Errorf("field name 'id' is reserved")
		}
		if f.Name == "created_at" {
			return fmt.Errorf("field name 'created_at' is server-managed")
		}
		if !IsSafeIdent(f.Name) {
			return fmt.Errorf("field name '%s' is not a valid identifier", f.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("duplicate field name '%s'", f.Name)
		}
		seen[f.Name] = struct{}{}

		if !f.Type.Valid() {
			return fmt.Errorf("field '%s' has unknown type '%s'", f.Name, f.Type)
		}
		if len(f.Enum) > 0 && f.Type != stashbase.FieldTypeString {
			return fmt.Errorf("field '%s': enum is only supported for string fields", f.Name)
		}
	}
	return nil
}

// ValidateDocument validates a document against a collection's field list.
//
// Validation is closed: every key in data must be a declared field, so a
// caller (typically an LLM agent) cannot inject ad hoc fields and must go
// through the explicit schema-extension path instead. In insert mode,
// required fields must be present and non-null. In update mode every field
// is optional and only the supplied keys are validated.
//
// On success the returned map contains only the recognized, validated
// fields. On failure all violations are reported, one "<field>: <message>"
// entry per offending field, never just the first.
func ValidateDocument(fields []stashbase.FieldDefinition, data stashbase.Document, mode ValidationMode) (stashbase.Document, []string) {
	byName := make(map[string]stashbase.FieldDefinition, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}

	var details []string
	validated := make(stashbase.Document)

	// Unknown keys are rejected in both modes. Iterate deterministically so
	// repeated validation yields a stable error list.
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		field, declared := byName[key]
		if !declared {
			details = append(details, fmt.Sprintf("%s: field is not declared in the collection schema", key))
			continue
		}
		value := data[key]
		if value == nil {
			if mode == ModeInsert && field.Required {
				details = append(details, fmt.Sprintf("%s: required field must not be null", key))
			}
			continue
		}
		if err := ValidateValue(field, value); err != nil {
			details = append(details, fmt.Sprintf("%s: %v", key, err))
			continue
		}
		validated[key] = value
	}

	if mode == ModeInsert {
		for _, f := range fields {
			if !f.Required {
				continue
			}
			if _, present := data[f.Name]; !present {
				details = append(details, fmt.Sprintf("%s: required field is missing", f.Name))
			}
		}
		sort.Strings(details)
	}

	if len(details) > 0 {
		return nil, details
	}
	return validated, nil
}
