package internal

import (
	"github.com/stashbase/stashbase"
)

// MergePatch applies patch over base and returns a new document. The merge
// is shallow: object-typed values in patch replace the base value
// wholesale, they are not merged recursively. That matches the partial
// update contract — callers supply complete values for whichever fields
// they touch.
func MergePatch(base, patch stashbase.Document) stashbase.Document {
	merged := make(stashbase.Document, len(base)+len(patch))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return merged
}
