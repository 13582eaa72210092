package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spendingRows() []Row {
	return []Row{
		{"amount": float64(100), "date": "2026-01-01", "category": "food"},
		{"amount": float64(50), "date": "2026-01-01", "category": "transit"},
		{"amount": float64(10), "date": "2026-01-02", "category": "food"},
	}
}

func TestApply_MergesRawAndDerived(t *testing.T) {
	datasets := map[string][]Row{"expenses": spendingRows()}
	transforms := []Transform{
		{
			Source: "expenses",
			Output: "daily_totals",
			Steps: []Step{{
				Type:        StepGroupAggregate,
				GroupBy:     "date",
				Granularity: GranularityDay,
				Aggregations: []Aggregation{
					{Field: "amount", Method: "sum", As: "total"},
				},
			}},
		},
	}

	result, err := Apply(datasets, transforms)
	require.NoError(t, err)
	assert.Len(t, result, 2)
	assert.Len(t, result["expenses"], 3)

	derived := result["daily_totals"]
	require.Len(t, derived, 2)
	assert.Equal(t, "2026-01-01", derived[0]["label"])
	assert.Equal(t, float64(150), derived[0]["total"])
	assert.Equal(t, "2026-01-02", derived[1]["label"])
	assert.Equal(t, float64(10), derived[1]["total"])
}

func TestApply_OrderIndependent(t *testing.T) {
	datasets := map[string][]Row{"expenses": spendingRows()}
	// the consumer is declared before its producer
	transforms := []Transform{
		{
			Source: "big_expenses",
			Output: "sorted_big",
			Steps:  []Step{{Type: StepSort, Key: "amount", Order: "desc"}},
		},
		{
			Source: "expenses",
			Output: "big_expenses",
			Steps:  []Step{{Type: StepFilter, Key: "amount", Operator: "gt", Value: float64(20)}},
		},
	}

	result, err := Apply(datasets, transforms)
	require.NoError(t, err)

	sorted := result["sorted_big"]
	require.Len(t, sorted, 2)
	assert.Equal(t, float64(100), sorted[0]["amount"])
	assert.Equal(t, float64(50), sorted[1]["amount"])
}

func TestApply_Deterministic(t *testing.T) {
	transforms := []Transform{
		{
			Source: "expenses",
			Output: "by_category",
			Steps: []Step{{
				Type:    StepGroupAggregate,
				GroupBy: "category",
				Aggregations: []Aggregation{
					{Field: "amount", Method: "sum", As: "total"},
					{Field: "amount", Method: "count", As: "entries"},
				},
			}},
		},
	}

	first, err := Apply(map[string][]Row{"expenses": spendingRows()}, transforms)
	require.NoError(t, err)
	second, err := Apply(map[string][]Row{"expenses": spendingRows()}, transforms)
	require.NoError(t, err)
	assert.Equal(t, first["by_category"], second["by_category"])

	buckets := first["by_category"]
	require.Len(t, buckets, 2)
	assert.Equal(t, "food", buckets[0]["_group"])
	assert.Equal(t, float64(110), buckets[0]["total"])
	assert.Equal(t, float64(2), buckets[0]["entries"])
	assert.Equal(t, "transit", buckets[1]["_group"])
}

func TestApply_CycleDetected(t *testing.T) {
	transforms := []Transform{
		{Source: "b", Output: "a", Steps: []Step{{Type: StepSort, Key: "x"}}},
		{Source: "a", Output: "b", Steps: []Step{{Type: StepSort, Key: "x"}}},
	}

	_, err := Apply(map[string][]Row{}, transforms)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cyclic")
	assert.Contains(t, err.Error(), "a")
	assert.Contains(t, err.Error(), "b")
}

func TestApply_DuplicateOutputRejected(t *testing.T) {
	transforms := []Transform{
		{Source: "expenses", Output: "out", Steps: []Step{{Type: StepSort, Key: "x"}}},
		{Source: "expenses", Output: "out", Steps: []Step{{Type: StepSort, Key: "y"}}},
	}

	_, err := Apply(map[string][]Row{"expenses": spendingRows()}, transforms)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate transform output "out"`)
}

func TestApply_SelfCycleDetected(t *testing.T) {
	transforms := []Transform{
		{Source: "a", Output: "a", Steps: []Step{{Type: StepSort, Key: "x"}}},
	}

	_, err := Apply(map[string][]Row{}, transforms)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cyclic")
}

func TestApply_UnknownStepType(t *testing.T) {
	transforms := []Transform{
		{Source: "expenses", Output: "out", Steps: []Step{{Type: "explode"}}},
	}

	_, err := Apply(map[string][]Row{"expenses": spendingRows()}, transforms)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `transform "out"`)
	assert.Contains(t, err.Error(), "explode")
}

func TestApply_MissingSourceYieldsEmptyOutput(t *testing.T) {
	transforms := []Transform{
		{Source: "nothing", Output: "out", Steps: []Step{{Type: StepSort, Key: "x"}}},
	}

	result, err := Apply(map[string][]Row{}, transforms)
	require.NoError(t, err)
	assert.Empty(t, result["out"])
}

func TestApply_ChainedSteps(t *testing.T) {
	transforms := []Transform{
		{
			Source: "expenses",
			Output: "flagged",
			Steps: []Step{
				{Type: StepFilter, Key: "category", Operator: "eq", Value: "food"},
				{Type: StepCompute, Field: "amount", Operator: "mul", Value: float64(2), As: "doubled"},
				{Type: StepSort, Key: "doubled", Order: "asc"},
			},
		},
	}

	result, err := Apply(map[string][]Row{"expenses": spendingRows()}, transforms)
	require.NoError(t, err)

	flagged := result["flagged"]
	require.Len(t, flagged, 2)
	assert.Equal(t, float64(20), flagged[0]["doubled"])
	assert.Equal(t, float64(200), flagged[1]["doubled"])
}
