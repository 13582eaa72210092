package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSafeIdent(t *testing.T) {
	safe := []string{"name", "_hidden", "field_1", "CamelCase", "a"}
	unsafe := []string{"", "1field", "field-name", "field name", "field;drop", "a.b", "field'"}

	for _, s := range safe {
		assert.True(t, IsSafeIdent(s), "expected %q to be safe", s)
	}
	for _, s := range unsafe {
		assert.False(t, IsSafeIdent(s), "expected %q to be unsafe", s)
	}
}

func TestIsSafeFieldPath(t *testing.T) {
	safe := []string{"name", "macros.protein", "a.b.c", "_x.y", "f1.g2"}
	unsafe := []string{"", ".leading", "trailing.", "a..b", "a.b-c", "a b", "1a.b", "a;b"}

	for _, s := range safe {
		assert.True(t, IsSafeFieldPath(s), "expected %q to be safe", s)
	}
	for _, s := range unsafe {
		assert.False(t, IsSafeFieldPath(s), "expected %q to be unsafe", s)
	}
}

func TestIsValidCollectionName(t *testing.T) {
	valid := []string{"meals", "daily_expenses", "a", "t2"}
	invalid := []string{"", "_meta", "Meals", "2meals", "meals-2", "meals.archive", "meals table"}

	for _, s := range valid {
		assert.True(t, IsValidCollectionName(s), "expected %q to be valid", s)
	}
	for _, s := range invalid {
		assert.False(t, IsValidCollectionName(s), "expected %q to be invalid", s)
	}
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"meals"`, QuoteIdent("meals"))
	assert.Equal(t, `"_collections_meta"`, QuoteIdent("_collections_meta"))
	assert.Equal(t, `"we""ird"`, QuoteIdent(`we"ird`))
}
