package transform

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Granularities accepted by groupAggregate.
const (
	GranularityDay   = "day"
	GranularityWeek  = "week"
	GranularityMonth = "month"
	GranularityYear  = "year"
)

// groupAggregate buckets rows by the groupBy field, optionally truncating
// date-valued keys to a period, and computes one aggregate per requested
// method. Each output row carries a human-readable label, the raw bucket
// key as _group, and the aggregates under their aliases. Buckets are
// emitted sorted by key so repeated runs produce identical output.
func groupAggregate(rows []Row, step Step) ([]Row, error) {
	if step.GroupBy == "" {
		return nil, fmt.Errorf("groupAggregate: groupBy is required")
	}
	for _, agg := range step.Aggregations {
		switch agg.Method {
		case "sum", "count", "avg", "min", "max":
		default:
			return nil, fmt.Errorf("groupAggregate: unknown method %q", agg.Method)
		}
	}

	buckets := make(map[string][]Row)
	labels := make(map[string]string)
	for _, row := range rows {
		key, label := bucketKey(row[step.GroupBy], step.Granularity)
		buckets[key] = append(buckets[key], row)
		labels[key] = label
	}

	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]Row, 0, len(keys))
	for _, key := range keys {
		row := Row{
			"label":  labels[key],
			"_group": key,
		}
		for _, agg := range step.Aggregations {
			row[agg.As] = aggregate(buckets[key], agg)
		}
		out = append(out, row)
	}
	return out, nil
}

// bucketKey renders a group value to its bucket key and display label.
// With a granularity, date-valued keys are truncated to the period start;
// values that do not parse as dates fall back to their raw string form.
func bucketKey(value any, granularity string) (string, string) {
	raw := stringify(value)
	if granularity == "" {
		return raw, raw
	}
	parsed, ok := parseDate(raw)
	if !ok {
		return raw, raw
	}
	switch granularity {
	case GranularityDay:
		key := parsed.Format("2006-01-02")
		return key, key
	case GranularityWeek:
		// weeks start on Monday
		start := parsed.AddDate(0, 0, -((int(parsed.Weekday()) + 6) % 7))
		key := start.Format("2006-01-02")
		return key, "week of " + key
	case GranularityMonth:
		key := parsed.Format("2006-01")
		return key, parsed.Format("Jan 2006")
	case GranularityYear:
		key := parsed.Format("2006")
		return key, key
	default:
		return raw, raw
	}
}

func aggregate(rows []Row, agg Aggregation) float64 {
	values := make([]float64, 0, len(rows))
	present := 0
	for _, row := range rows {
		v, ok := row[agg.Field]
		if !ok {
			continue
		}
		present++
		if n, ok := toNumber(v); ok {
			values = append(values, n)
		}
	}

	switch agg.Method {
	case "count":
		return float64(present)
	case "sum":
		return sum(values)
	case "avg":
		if len(values) == 0 {
			return 0
		}
		return sum(values) / float64(len(values))
	case "min":
		if len(values) == 0 {
			return 0
		}
		m := values[0]
		for _, v := range values[1:] {
			if v < m {
				m = v
			}
		}
		return m
	case "max":
		if len(values) == 0 {
			return 0
		}
		m := values[0]
		for _, v := range values[1:] {
			if v > m {
				m = v
			}
		}
		return m
	}
	return 0
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

// filterRows keeps rows where row[key] <operator> value holds.
func filterRows(rows []Row, step Step) ([]Row, error) {
	if !validOperator(step.Operator) {
		return nil, fmt.Errorf("filter: unknown operator %q", step.Operator)
	}
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		if compareWithOperator(row[step.Key], step.Value, step.Operator) {
			out = append(out, row)
		}
	}
	return out, nil
}

// sortRows stable-sorts rows by a field, numeric when both sides parse as
// numbers, lexicographic otherwise.
func sortRows(rows []Row, step Step) []Row {
	out := make([]Row, len(rows))
	copy(out, rows)
	descending := step.Order == "desc"
	sort.SliceStable(out, func(i, j int) bool {
		if descending {
			return compareLess(out[j][step.Key], out[i][step.Key])
		}
		return compareLess(out[i][step.Key], out[j][step.Key])
	})
	return out
}

// computeRows derives a new field per row: comparison operators yield a
// boolean, arithmetic operators yield a number.
func computeRows(rows []Row, step Step) ([]Row, error) {
	arithmetic := false
	switch step.Operator {
	case "add", "sub", "mul", "div":
		arithmetic = true
	default:
		if !validOperator(step.Operator) {
			return nil, fmt.Errorf("compute: unknown operator %q", step.Operator)
		}
	}

	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		derived := make(Row, len(row)+1)
		for k, v := range row {
			derived[k] = v
		}
		if arithmetic {
			left, _ := toNumber(row[step.Field])
			right, _ := toNumber(step.Value)
			derived[step.As] = arithmeticResult(left, right, step.Operator)
		} else {
			derived[step.As] = compareWithOperator(row[step.Field], step.Value, step.Operator)
		}
		out = append(out, derived)
	}
	return out, nil
}

func arithmeticResult(left, right float64, operator string) float64 {
	switch operator {
	case "add":
		return left + right
	case "sub":
		return left - right
	case "mul":
		return left * right
	case "div":
		if right == 0 {
			return 0
		}
		return left / right
	}
	return 0
}

func validOperator(operator string) bool {
	switch operator {
	case "gt", "lt", "gte", "lte", "eq", "neq":
		return true
	}
	return false
}

// compareWithOperator applies one coercion policy everywhere: when both
// sides parse as numbers the comparison is numeric, otherwise both sides
// compare as strings.
func compareWithOperator(left, right any, operator string) bool {
	ln, lok := toNumber(left)
	rn, rok := toNumber(right)
	if lok && rok {
		switch operator {
		case "gt":
			return ln > rn
		case "lt":
			return ln < rn
		case "gte":
			return ln >= rn
		case "lte":
			return ln <= rn
		case "eq":
			return ln == rn
		case "neq":
			return ln != rn
		}
		return false
	}

	ls, rs := stringify(left), stringify(right)
	switch operator {
	case "gt":
		return ls > rs
	case "lt":
		return ls < rs
	case "gte":
		return ls >= rs
	case "lte":
		return ls <= rs
	case "eq":
		return ls == rs
	case "neq":
		return ls != rs
	}
	return false
}

// compareLess orders two values with the same coercion policy as
// compareWithOperator.
func compareLess(left, right any) bool {
	ln, lok := toNumber(left)
	rn, rok := toNumber(right)
	if lok && rok {
		return ln < rn
	}
	return stringify(left) < stringify(right)
}

// toNumber coerces a value to float64: native numbers directly, strings
// when they parse.
func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		if v == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDate(value string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}
