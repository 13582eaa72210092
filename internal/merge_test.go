package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stashbase/stashbase"
)

func TestMergePatch_PatchWins(t *testing.T) {
	base := stashbase.Document{"a": 1, "b": 2}
	patch := stashbase.Document{"b": 20, "c": 30}

	merged := MergePatch(base, patch)
	assert.Equal(t, stashbase.Document{"a": 1, "b": 20, "c": 30}, merged)
}

func TestMergePatch_ShallowObjectReplacement(t *testing.T) {
	base := stashbase.Document{
		"macros": map[string]any{"protein": 30, "fat": 10},
	}
	patch := stashbase.Document{
		"macros": map[string]any{"protein": 40},
	}

	merged := MergePatch(base, patch)
	// object fields are replaced wholesale, never deep-merged
	assert.Equal(t, map[string]any{"protein": 40}, merged["macros"])
}

func TestMergePatch_InputsUntouched(t *testing.T) {
	base := stashbase.Document{"a": 1}
	patch := stashbase.Document{"a": 2}

	merged := MergePatch(base, patch)
	merged["b"] = 3

	assert.Equal(t, stashbase.Document{"a": 1}, base)
	assert.Equal(t, stashbase.Document{"a": 2}, patch)
}

func TestMergePatch_EmptyPatchKeepsBase(t *testing.T) {
	base := stashbase.Document{"a": 1, "b": "x"}
	merged := MergePatch(base, stashbase.Document{})
	assert.Equal(t, base, merged)
}
