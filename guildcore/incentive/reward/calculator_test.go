package reward

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Default guild reward policy used across the calculator tests: one table
// keyed on member power, one on member level.
var (
	powerTable = Table{
		{From: 0, To: 10000, Coefficient: 0.5},
		{From: 10001, To: 50000, Coefficient: 0.8},
		{From: 50001, To: 100000, Coefficient: 1.2},
	}
	levelTable = Table{
		{From: 1, To: 30, Coefficient: 0.6},
		{From: 31, To: 80, Coefficient: 1.2},
		{From: 81, To: 100, Coefficient: 1.3},
	}
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		name  string
		base  float64
		power float64
		level float64
		want  float64
	}{
		{name: "low power low level", base: 100, power: 5000, level: 15, want: 210},
		{name: "mid power mid level", base: 100, power: 45000, level: 70, want: 300},
		{name: "high power high level", base: 100, power: 85000, level: 95, want: 350},
		{name: "both metrics out of range", base: 100, power: 150000, level: 200, want: 100},
		{name: "zero base yields zero", base: 0, power: 50000, level: 70, want: 0},
		{name: "fractional base rounds to cents", base: 33.333, power: 5000, level: 15, want: 70},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(tt.base, tt.power, tt.level, powerTable, levelTable)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCalculateRoundsHalfAwayFromZero(t *testing.T) {
	// 50 + 50*0.5 + 50*0.6 = 105 exactly; nudge the base so the raw total
	// lands just above a half cent and must round up.
	got := Calculate(100.004, 5000, 15, powerTable, levelTable)
	assert.InDelta(t, 210.01, got, 1e-9)

	got = Calculate(100.001, 5000, 15, powerTable, levelTable)
	assert.InDelta(t, 210.00, got, 1e-9)
}

func TestCoefficientFirstMatchAndBoundaries(t *testing.T) {
	assert.Equal(t, 0.5, powerTable.Coefficient(10000), "value at band upper bound uses that band")
	assert.Equal(t, 0.8, powerTable.Coefficient(10001), "value one unit above moves to the next band")
	assert.Equal(t, 0.5, powerTable.Coefficient(0), "lower bound inclusive")
	assert.Equal(t, 1.2, powerTable.Coefficient(100000))
}

func TestCoefficientOutOfRangeIsZero(t *testing.T) {
	assert.Equal(t, 0.0, powerTable.Coefficient(-1), "below the first band")
	assert.Equal(t, 0.0, powerTable.Coefficient(100001), "above the last band")
	assert.Equal(t, 0.0, levelTable.Coefficient(0), "below the first level band")
	assert.Equal(t, 0.0, Table{}.Coefficient(42), "empty table matches nothing")
}

func TestCoefficientGapBetweenBands(t *testing.T) {
	gapped := Table{
		{From: 0, To: 10, Coefficient: 0.5},
		{From: 20, To: 30, Coefficient: 0.8},
	}
	assert.Equal(t, 0.0, gapped.Coefficient(15))
}

func TestTableValidate(t *testing.T) {
	require.NoError(t, powerTable.Validate())
	require.NoError(t, levelTable.Validate())
	require.NoError(t, Table{}.Validate())

	overlapping := Table{
		{From: 0, To: 100, Coefficient: 0.5},
		{From: 100, To: 200, Coefficient: 0.8},
	}
	require.Error(t, overlapping.Validate(), "shared boundary value counts as overlap")

	inverted := Table{{From: 10, To: 5, Coefficient: 0.5}}
	require.Error(t, inverted.Validate())
}
