// Package transform derives named datasets from raw collection query
// results through a declarative pipeline of groupAggregate, filter, sort,
// and compute steps. The pipeline is a pure function over in-memory rows:
// no storage access, no shared state, safe to re-run against any snapshot.
package transform

import (
	"fmt"
	"sort"
)

// Row is one flat record inside a dataset.
type Row = map[string]any

// Step types.
const (
	StepGroupAggregate = "groupAggregate"
	StepFilter         = "filter"
	StepSort           = "sort"
	StepCompute        = "compute"
)

// Aggregation names one per-bucket value computed by a groupAggregate step.
type Aggregation struct {
	Field  string `json:"field" yaml:"field"`
	Method string `json:"method" yaml:"method"`
	As     string `json:"as" yaml:"as"`
}

// Step is one pipeline operation. The Type field selects which of the
// remaining fields apply; the zero value of unused fields is ignored.
type Step struct {
	Type string `json:"type" yaml:"type"`

	// groupAggregate
	GroupBy      string        `json:"groupBy,omitempty" yaml:"group_by,omitempty"`
	Granularity  string        `json:"granularity,omitempty" yaml:"granularity,omitempty"`
	Aggregations []Aggregation `json:"aggregations,omitempty" yaml:"aggregations,omitempty"`

	// filter and compute share Operator and Value.
	Key      string `json:"key,omitempty" yaml:"key,omitempty"`
	Operator string `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value    any    `json:"value,omitempty" yaml:"value,omitempty"`

	// sort
	Order string `json:"order,omitempty" yaml:"order,omitempty"`

	// compute
	Field string `json:"field,omitempty" yaml:"field,omitempty"`
	As    string `json:"as,omitempty" yaml:"as,omitempty"`
}

// Transform derives the dataset named Output from the dataset named Source
// by applying Steps in order. Source may name a raw dataset or another
// transform's output; together the transforms form a DAG.
type Transform struct {
	Source string `json:"source" yaml:"source"`
	Output string `json:"output" yaml:"output"`
	Steps  []Step `json:"steps" yaml:"steps"`
}

// Apply evaluates every transform in dependency order and returns the raw
// datasets merged with the derived ones. Transforms are ordered by a
// topological sort over their source→output edges, so list order never
// matters; a cyclic dependency is a configuration error.
func Apply(datasets map[string][]Row, transforms []Transform) (map[string][]Row, error) {
	ordered, err := sortByDependency(transforms)
	if err != nil {
		return nil, err
	}

	result := make(map[string][]Row, len(datasets)+len(transforms))
	for name, rows := range datasets {
		result[name] = rows
	}

	for _, t := range ordered {
		rows := result[t.Source]
		for _, step := range t.Steps {
			rows, err = applyStep(rows, step)
			if err != nil {
				return nil, fmt.Errorf("transform %q: %w", t.Output, err)
			}
		}
		result[t.Output] = rows
	}
	return result, nil
}

// sortByDependency orders transforms so that a transform consuming another
// transform's output always runs after it (Kahn's algorithm). A leftover
// node after the sort means a cycle.
func sortByDependency(transforms []Transform) ([]Transform, error) {
	producers := make(map[string]int, len(transforms))
	for i, t := range transforms {
		if _, dup := producers[t.Output]; dup {
			return nil, fmt.Errorf("duplicate transform output %q", t.Output)
		}
		producers[t.Output] = i
	}

	indegree := make([]int, len(transforms))
	dependents := make(map[int][]int)
	for i, t := range transforms {
		if p, ok := producers[t.Source]; ok && p != i {
			indegree[i]++
			dependents[p] = append(dependents[p], i)
		}
		// a transform whose source is its own output can never resolve
		if p, ok := producers[t.Source]; ok && p == i {
			return nil, fmt.Errorf("transform %q: cyclic dependency", t.Output)
		}
	}

	queue := make([]int, 0, len(transforms))
	for i := range transforms {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	ordered := make([]Transform, 0, len(transforms))
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		ordered = append(ordered, transforms[i])
		for _, dep := range dependents[i] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(ordered) != len(transforms) {
		remaining := make([]string, 0)
		for i := range transforms {
			if indegree[i] > 0 {
				remaining = append(remaining, transforms[i].Output)
			}
		}
		sort.Strings(remaining)
		return nil, fmt.Errorf("cyclic transform dependency involving %v", remaining)
	}
	return ordered, nil
}

func applyStep(rows []Row, step Step) ([]Row, error) {
	switch step.Type {
	case StepGroupAggregate:
		return groupAggregate(rows, step)
	case StepFilter:
		return filterRows(rows, step)
	case StepSort:
		return sortRows(rows, step), nil
	case StepCompute:
		return computeRows(rows, step)
	default:
		return nil, fmt.Errorf("unknown step type %q", step.Type)
	}
}
