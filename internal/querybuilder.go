package internal

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/stashbase/stashbase"
)

// Bounds for the effective query limit.
const (
	DefaultQueryLimit = 20
	MaxQueryLimit     = 100
)

// QueryLimits carries the configured limit bounds for query building.
type QueryLimits struct {
	Default int
	Max     int
}

// DefaultQueryLimits is used when no configuration overrides the bounds.
var DefaultQueryLimits = QueryLimits{Default: DefaultQueryLimit, Max: MaxQueryLimit}

// Effective floors the requested limit and clamps it to [1, Max]; an
// absent limit yields Default. An explicit 0 is a supplied value and
// clamps to 1 like any other out-of-range request.
func (l QueryLimits) Effective(requested *float64) int {
	if l.Default == 0 {
		l.Default = DefaultQueryLimit
	}
	if l.Max == 0 {
		l.Max = MaxQueryLimit
	}
	if requested == nil {
		return l.Default
	}
	limit := int(math.Floor(*requested))
	if limit < 1 {
		return 1
	}
	if limit > l.Max {
		return l.Max
	}
	return limit
}

// trusted system columns may be sorted on directly: they are
// server-controlled column names, not arbitrary JSON-path field names, so
// they bypass the field-path pattern check.
var systemColumns = map[string]struct{}{
	"id":         {},
	"created_at": {},
}

// BuildCollectionQuery compiles a filter/sort/limit request into one
// parameterized read against the named collection's table.
//
// The collection identifier is escaped for PostgreSQL's quoted-identifier
// syntax. Every filter field name must match the dotted-path identifier
// grammar or the call fails before any query text is constructed; filter
// values are always bound as parameters, never interpolated. Filters are
// exact-match equality, ANDed together.
func BuildCollectionQuery(req *stashbase.QueryRequest, limits QueryLimits) (string, []any, error) {
	if req == nil || req.Collection == "" {
		return "", nil, stashbase.NewInputError(stashbase.ErrCodeInvalidCollectionName, "collection is required")
	}

	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT id, data, created_at FROM ")
	sb.WriteString(QuoteIdent(req.Collection))

	if len(req.Filters) > 0 {
		keys := make([]string, 0, len(req.Filters))
		for k := range req.Filters {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		predicates := make([]string, 0, len(keys))
		for _, key := range keys {
			// id and created_at live in real columns, not in the blob
			if _, trusted := systemColumns[key]; trusted {
				args = append(args, filterOperand(req.Filters[key]))
				predicates = append(predicates, fmt.Sprintf("%s = $%d", QuoteIdent(key), len(args)))
				continue
			}
			if !IsSafeFieldPath(key) {
				return "", nil, stashbase.NewUnsafeFieldError(key)
			}
			args = append(args, filterOperand(req.Filters[key]))
			predicates = append(predicates, fmt.Sprintf("%s = $%d", dataFieldExpr(key), len(args)))
		}

		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(predicates, " AND "))
	}

	orderExpr, err := sortExpr(req.SortBy)
	if err != nil {
		return "", nil, err
	}
	direction, err := sortDirection(req.SortOrder)
	if err != nil {
		return "", nil, err
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(orderExpr)
	sb.WriteString(" ")
	sb.WriteString(direction)

	sb.WriteString(" LIMIT ")
	sb.WriteString(strconv.Itoa(limits.Effective(req.Limit)))

	return sb.String(), args, nil
}

// dataFieldExpr renders the text extraction expression for a document
// field. Callers must have pattern-checked the field name first.
func dataFieldExpr(field string) string {
	if strings.Contains(field, ".") {
		segments := strings.Split(field, ".")
		return fmt.Sprintf("data #>> '{%s}'", strings.Join(segments, ","))
	}
	return fmt.Sprintf("data ->> '%s'", field)
}

// sortFieldExpr renders the jsonb-typed extraction expression for a
// document field. Sorting must keep the jsonb value: jsonb comparison
// orders numbers numerically and strings as strings, while the text form
// would put 100 before 50.
func sortFieldExpr(field string) string {
	if strings.Contains(field, ".") {
		segments := strings.Split(field, ".")
		return fmt.Sprintf("data #> '{%s}'", strings.Join(segments, ","))
	}
	return fmt.Sprintf("data -> '%s'", field)
}

func sortExpr(sortBy string) (string, error) {
	if sortBy == "" {
		sortBy = "created_at"
	}
	if _, trusted := systemColumns[sortBy]; trusted {
		return QuoteIdent(sortBy), nil
	}
	if !IsSafeFieldPath(sortBy) {
		return "", stashbase.NewUnsafeFieldError(sortBy)
	}
	return sortFieldExpr(sortBy), nil
}

func sortDirection(order stashbase.SortOrder) (string, error) {
	switch order {
	case stashbase.SortAsc:
		return "ASC", nil
	case stashbase.SortDesc, "":
		return "DESC", nil
	default:
		return "", stashbase.NewInputError(stashbase.ErrCodeQueryFailed,
			fmt.Sprintf("invalid sort_order '%s': must be 'asc' or 'desc'", order))
	}
}

// filterOperand renders a filter value to the text form the jsonb ->> and
// #>> operators yield, so bound comparisons stay exact-match regardless of
// the scalar's JSON type.
func filterOperand(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
