package document

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	formulaRegex = regexp.MustCompile(`^=([A-Za-z]+)\(([A-Za-z]+)([0-9]+):([A-Za-z]+)([0-9]+)\)$`)
	addrRegex    = regexp.MustCompile(`^([A-Za-z]+)([0-9]+)$`)
)

// IsFormula reports whether a raw cell value is a formula.
func IsFormula(val string) bool {
	return strings.HasPrefix(val, "=")
}

// Evaluate resolves a "=FN(A1:B3)" formula to a number by reading sibling
// cells. FN is one of SUM, AVERAGE, MIN or MAX (case-insensitive) over a
// single rectangular range; the corners may come in any order. Anything that
// does not match this shape yields ok=false and is rendered as literal text
// upstream.
//
// Non-numeric and absent cells count as 0 everywhere, including MIN/MAX, and
// AVERAGE divides by the full rectangle's cell count. Formulas do not chain:
// a referenced cell that itself holds a formula reads as its raw "=..."
// string, which coerces to 0.
func Evaluate(formula string, cells map[string]string) (float64, bool) {
	m := formulaRegex.FindStringSubmatch(formula)
	if m == nil {
		return 0, false
	}
	fn := strings.ToUpper(m[1])
	switch fn {
	case "SUM", "AVERAGE", "MIN", "MAX":
	default:
		return 0, false
	}

	col1, row1 := colIndex(m[2]), mustAtoi(m[3])
	col2, row2 := colIndex(m[4]), mustAtoi(m[5])
	if row1 < 1 || row2 < 1 { // rows are 1-based
		return 0, false
	}
	if col2 < col1 {
		col1, col2 = col2, col1
	}
	if row2 < row1 {
		row1, row2 = row2, row1
	}

	var sum, min, max float64
	count := 0
	for col := col1; col <= col2; col++ {
		for row := row1; row <= row2; row++ {
			v := cellNumber(cells[CellAddr(col, row)])
			sum += v
			if count == 0 || v < min {
				min = v
			}
			if count == 0 || v > max {
				max = v
			}
			count++
		}
	}

	switch fn {
	case "SUM":
		return sum, true
	case "AVERAGE":
		return sum / float64(count), true
	case "MIN":
		return min, true
	default: // MAX
		return max, true
	}
}

// DisplayValue returns what a cell renders as: a supported formula evaluates
// to its numeric result, everything else (literals and unsupported formula
// shapes) displays as its raw text.
func DisplayValue(cells map[string]string, addr string) string {
	raw := cells[NormalizeAddr(addr)]
	if IsFormula(raw) {
		if v, ok := Evaluate(raw, cells); ok {
			return formatNumber(v)
		}
	}
	return raw
}

// cellNumber coerces a raw cell value for aggregation; non-numeric values
// (including formula text) count as 0.
func cellNumber(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return v
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// colIndex converts a letters-only column name to its 0-based index:
// A=0 .. Z=25, AA=26, with no upper limit.
func colIndex(name string) int {
	n := 0
	for _, ch := range strings.ToUpper(name) {
		n = n*26 + int(ch-'A') + 1
	}
	return n - 1
}

// CellAddr builds the normalized address for a 0-based column and 1-based row.
func CellAddr(col, row int) string {
	var name []byte
	for n := col + 1; n > 0; n /= 26 {
		n--
		name = append([]byte{byte('A' + n%26)}, name...)
	}
	return string(name) + strconv.Itoa(row)
}

// parseAddr splits a normalized address into a 0-based column and 1-based row.
func parseAddr(addr string) (col, row int, ok bool) {
	m := addrRegex.FindStringSubmatch(addr)
	if m == nil {
		return 0, 0, false
	}
	row = mustAtoi(m[2])
	if row < 1 {
		return 0, 0, false
	}
	return colIndex(m[1]), row, true
}

func mustAtoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
