package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_IsFormula(t *testing.T) {
	tests := []struct {
		val  string
		want bool
	}{
		{"=SUM(A1:B3)", true},
		{"=AVERAGE(a1:b3)", true},
		{"=not-even-valid", true}, // any "=" prefix is formula intent
		{"SUM(A1:B3)", false},
		{"10", false},
		{"hello", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.val, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFormula(tt.val))
		})
	}
}

func Test_Evaluate(t *testing.T) {
	cells := map[string]string{
		"A1": "5",
		"A2": "abc", // coerces to 0
		"B1": "2.5",
		"B2": "10",
	}

	tests := []struct {
		name    string
		formula string
		want    float64
		ok      bool
	}{
		{"sum", "=SUM(A1:B2)", 17.5, true},
		{"sum single column", "=SUM(A1:A2)", 5, true},
		{"average counts blanks and text as zero", "=AVERAGE(A1:B2)", 4.375, true},
		{"min coerces text to zero", "=MIN(A1:B2)", 0, true},
		{"max", "=MAX(A1:B2)", 10, true},
		{"lowercase fn and addrs", "=sum(a1:b2)", 17.5, true},
		{"swapped corners", "=SUM(B2:A1)", 17.5, true},
		{"range of blanks", "=SUM(D10:E12)", 0, true},
		{"unknown function", "=MEDIAN(A1:B2)", 0, false},
		{"single cell is not a range", "=SUM(A1)", 0, false},
		{"missing rows", "=SUM(A:B)", 0, false},
		{"unclosed paren", "=SUM(A1:B2", 0, false},
		{"not a formula", "hello", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Evaluate(tt.formula, cells)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

// Formulas do not chain: a referenced cell holding a formula contributes
// zero, not its evaluated value.
func Test_Evaluate_referencedFormulaIsZero(t *testing.T) {
	cells := map[string]string{
		"A1": "1",
		"A2": "=SUM(A1:A1)",
	}

	got, ok := Evaluate("=SUM(A1:A2)", cells)
	assert.True(t, ok)
	assert.InDelta(t, 1.0, got, 1e-9)

	got, ok = Evaluate("=MAX(A1:A2)", cells)
	assert.True(t, ok)
	assert.InDelta(t, 1.0, got, 1e-9)
}

// AVERAGE divides by the full cell count of the range, so SUM == AVERAGE * n.
func Test_Evaluate_averageConsistentWithSum(t *testing.T) {
	cells := map[string]string{"A1": "1", "A2": "2", "B1": "3"} // B2 blank

	sum, ok := Evaluate("=SUM(A1:B2)", cells)
	assert.True(t, ok)
	avg, ok := Evaluate("=AVERAGE(A1:B2)", cells)
	assert.True(t, ok)
	assert.InDelta(t, sum, avg*4, 1e-9)
}

func Test_DisplayValue(t *testing.T) {
	cells := map[string]string{
		"A1": "10",
		"A2": "20",
		"A3": "=SUM(A1:A2)",
		"B1": "hello",
		"B2": "=NOPE(A1:A2)",
	}

	tests := []struct {
		addr string
		want string
	}{
		{"A1", "10"},
		{"a1", "10"}, // addresses are case-insensitive
		{"A3", "30"},
		{"a3", "30"},
		{"B1", "hello"},
		{"B2", "=NOPE(A1:A2)"}, // invalid formulas display raw
		{"C1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayValue(cells, tt.addr))
		})
	}
}

func Test_CellAddr(t *testing.T) {
	tests := []struct {
		col  int
		row  int
		want string
	}{
		{0, 1, "A1"},
		{1, 1, "B1"},
		{25, 3, "Z3"},
		{26, 10, "AA10"},
		{27, 2, "AB2"},
		{701, 1, "ZZ1"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, CellAddr(tt.col, tt.row))
		})
	}
}

func Test_formatNumber(t *testing.T) {
	assert.Equal(t, "30", formatNumber(30))
	assert.Equal(t, "4.375", formatNumber(4.375))
	assert.Equal(t, "0", formatNumber(0))
	assert.Equal(t, "-2.5", formatNumber(-2.5))
}
