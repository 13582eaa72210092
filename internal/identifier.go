package internal

import (
	"regexp"
	"strings"
)

// One safe-identifier grammar with two named variants. Filter and sort
// field names, collection field names, and dotted JSON paths all go through
// these checks; a single definition keeps the call sites from drifting
// apart and silently reopening an injection path.
var (
	// identPattern is the plain variant: a bare column or field name.
	identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

	// fieldPathPattern is the dotted-path variant: dot-separated plain
	// identifiers addressing a nested document field.
	fieldPathPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z0-9_]+)*$`)

	// collectionNamePattern is the public naming rule for collections:
	// lowercase snake_case, never starting with the reserved '_' prefix.
	collectionNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// IsSafeIdent reports whether name matches the plain identifier variant.
func IsSafeIdent(name string) bool {
	return identPattern.MatchString(name)
}

// IsSafeFieldPath reports whether name matches the dotted-path variant.
func IsSafeFieldPath(name string) bool {
	return fieldPathPattern.MatchString(name)
}

// IsValidCollectionName reports whether name is an acceptable user
// collection name. Names starting with '_' are reserved for system tables
// and already excluded by the pattern.
func IsValidCollectionName(name string) bool {
	return collectionNamePattern.MatchString(name)
}

// QuoteIdent escapes an identifier for interpolation into PostgreSQL's
// quoted-identifier syntax, doubling any embedded quote character.
// Collection names flow from user and agent input, so they are never
// interpolated unescaped.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
