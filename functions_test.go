package forge

import (
	"math"
	"testing"
)

func numArray(nums ...float64) *TypedArray {
	values := make([]Value, len(nums))
	for i, n := range nums {
		values[i] = n
	}
	return &TypedArray{Type: TypeNumber, Values: values}
}

func textArray(texts ...string) *TypedArray {
	values := make([]Value, len(texts))
	for i, s := range texts {
		values[i] = s
	}
	return &TypedArray{Type: TypeText, Values: values}
}

func wantNumber(t *testing.T, got Value, want float64) {
	t.Helper()
	n, ok := got.(float64)
	if !ok {
		t.Fatalf("got %v (%T), want %v", got, got, want)
	}
	if math.Abs(n-want) > 1e-6 {
		t.Errorf("got %v, want %v", n, want)
	}
}

func wantCellError(t *testing.T, got Value, code ErrorCode) {
	t.Helper()
	cellErr, ok := got.(*CellError)
	if !ok {
		t.Fatalf("got %v (%T), want error %s", got, got, ErrorMapper[code])
	}
	if cellErr.Code != code {
		t.Errorf("got %s, want %s", ErrorMapper[cellErr.Code], ErrorMapper[code])
	}
}

func TestAggregationFunctions(t *testing.T) {
	tests := []struct {
		name string
		args []Value
		want float64
	}{
		{"SUM", []Value{numArray(1, 2, 3)}, 6},
		{"SUM", []Value{1.0, 2.0, 3.0}, 6},
		{"SUM", []Value{numArray(1, 2), 10.0}, 13},
		{"AVERAGE", []Value{numArray(2, 4)}, 3},
		{"MIN", []Value{numArray(3, 1, 2)}, 1},
		{"MAX", []Value{numArray(3, 1, 2)}, 3},
		{"COUNT", []Value{&TypedArray{Type: TypeText, Values: []Value{"a", 1.0, nil}}}, 2},
		{"COUNTA", []Value{&TypedArray{Type: TypeText, Values: []Value{"a", "", 1.0}}}, 2},
		{"PRODUCT", []Value{numArray(2, 3, 4)}, 24},
		{"MEDIAN", []Value{numArray(1, 3, 2)}, 2},
		{"MEDIAN", []Value{numArray(1, 2, 3, 4)}, 2.5},
		{"VAR", []Value{numArray(1, 2, 3, 4)}, 5.0 / 3},
		{"STDEV", []Value{numArray(1, 2, 3, 4)}, math.Sqrt(5.0 / 3)},
		{"PERCENTILE", []Value{numArray(1, 2, 3, 4), 0.5}, 2.5},
		{"PERCENTILE", []Value{numArray(1, 2, 3, 4), 1.0}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantNumber(t, callFunction(tt.name, tt.args), tt.want)
		})
	}
}

func TestAggregationEmptyAndErrors(t *testing.T) {
	wantCellError(t, callFunction("AVERAGE", []Value{textArray("a")}), ErrorCodeDiv0)
	wantCellError(t, callFunction("MIN", []Value{textArray("a")}), ErrorCodeNum)
	wantCellError(t, callFunction("VAR", []Value{numArray(1)}), ErrorCodeDiv0)

	// an error cell in the range propagates out
	poisoned := &TypedArray{Type: TypeNumber, Values: []Value{1.0, NewCellError(ErrorCodeDiv0, "")}}
	wantCellError(t, callFunction("SUM", []Value{poisoned}), ErrorCodeDiv0)
}

func TestUnknownFunctionAndArity(t *testing.T) {
	wantCellError(t, callFunction("NOSUCH", nil), ErrorCodeName)
	wantCellError(t, callFunction("SUM", nil), ErrorCodeNA)
	wantCellError(t, callFunction("PI", []Value{1.0}), ErrorCodeNA)
}

func TestCriteriaParsing(t *testing.T) {
	tests := []struct {
		criteria string
		value    Value
		want     bool
	}{
		{">=10", 10.0, true},
		{">=10", 9.0, false},
		{"<5", 4.0, true},
		{"<>10", 11.0, true},
		{"<>10", 10.0, false},
		{"!=10", 11.0, true},
		{"North", "north", true},
		{"North", "South", false},
		{"N*h", "North", true},
		{"?orth", "North", true},
		{"?orth", "Forth", true},
		{"?orth", "orth", false},
		{">2025-01-01", "2025-06-01", true},
	}
	for _, tt := range tests {
		t.Run(tt.criteria, func(t *testing.T) {
			crit, err := parseCriteria(tt.criteria)
			if err != nil {
				t.Fatalf("parseCriteria(%q): %v", tt.criteria, err)
			}
			if got := crit.matches(tt.value); got != tt.want {
				t.Errorf("%q matches %v: got %v, want %v", tt.criteria, tt.value, got, tt.want)
			}
		})
	}
}

func TestCriteriaMalformed(t *testing.T) {
	for _, bad := range []string{">", ">=", ">>5", "<><5"} {
		if err := validateCriteriaText(bad); err == nil {
			t.Errorf("expected %q to be rejected", bad)
		} else if err.Kind != KindSyntax {
			t.Errorf("%q: got kind %v, want syntax", bad, err.Kind)
		}
		if _, err := parseCriteria(bad); err == nil {
			t.Errorf("expected a runtime error for criteria %q", bad)
		}
	}
}

func TestConditionalFunctions(t *testing.T) {
	region := textArray("North", "South", "North")
	amount := numArray(100, 50, 120)

	wantNumber(t, callFunction("SUMIF", []Value{region, "North", amount}), 220)
	wantNumber(t, callFunction("SUMIF", []Value{amount, ">=100"}), 220)
	wantNumber(t, callFunction("COUNTIF", []Value{region, "N*"}), 2)
	wantNumber(t, callFunction("AVERAGEIF", []Value{region, "North", amount}), 110)
	wantCellError(t, callFunction("AVERAGEIF", []Value{region, "East", amount}), ErrorCodeDiv0)

	wantNumber(t, callFunction("SUMIFS", []Value{amount, region, "North", amount, ">100"}), 120)
	wantNumber(t, callFunction("COUNTIFS", []Value{region, "North", amount, ">=100"}), 2)
	wantNumber(t, callFunction("AVERAGEIFS", []Value{amount, region, "North"}), 110)
	wantNumber(t, callFunction("MAXIFS", []Value{amount, region, "North"}), 120)
	wantNumber(t, callFunction("MINIFS", []Value{amount, region, "North"}), 100)
	// no matching rows
	wantNumber(t, callFunction("MAXIFS", []Value{amount, region, "East"}), 0)
}

func TestLookupFunctions(t *testing.T) {
	names := textArray("a", "b", "c")
	vals := numArray(10, 20, 30)

	wantNumber(t, callFunction("MATCH", []Value{"b", names}), 2)
	wantNumber(t, callFunction("MATCH", []Value{25.0, vals, 1.0}), 2)
	wantCellError(t, callFunction("MATCH", []Value{"z", names}), ErrorCodeNA)

	wantNumber(t, callFunction("INDEX", []Value{vals, 2.0}), 20)
	wantCellError(t, callFunction("INDEX", []Value{vals, 4.0}), ErrorCodeRef)

	wantNumber(t, callFunction("VLOOKUP", []Value{"c", names, vals}), 30)
	wantCellError(t, callFunction("VLOOKUP", []Value{"z", names, vals}), ErrorCodeNA)
	// approximate lookup takes the last value not greater than the key
	wantNumber(t, callFunction("VLOOKUP", []Value{25.0, vals, vals, true}), 20)

	wantNumber(t, callFunction("XLOOKUP", []Value{"b", names, vals}), 20)
	if got := callFunction("XLOOKUP", []Value{"z", names, vals, "missing"}); got != "missing" {
		t.Errorf("XLOOKUP fallback: got %v", got)
	}

	if got := callFunction("CHOOSE", []Value{2.0, "a", "b", "c"}); got != "b" {
		t.Errorf("CHOOSE: got %v", got)
	}

	shifted := callFunction("OFFSET", []Value{vals, 1.0})
	arr, ok := shifted.(*TypedArray)
	if !ok || arr.Len() != 3 {
		t.Fatalf("OFFSET: got %v", shifted)
	}
	if arr.Values[0] != nil || arr.Values[1] != 10.0 || arr.Values[2] != 20.0 {
		t.Errorf("OFFSET: got %v", arr.Values)
	}
}

func TestMathFunctions(t *testing.T) {
	tests := []struct {
		name string
		args []Value
		want float64
	}{
		{"ABS", []Value{-3.5}, 3.5},
		{"SQRT", []Value{9.0}, 3},
		{"EXP", []Value{0.0}, 1},
		{"LN", []Value{math.E}, 1},
		{"LOG", []Value{100.0}, 2},
		{"LOG", []Value{8.0, 2.0}, 3},
		{"LOG10", []Value{1000.0}, 3},
		{"INT", []Value{-1.5}, -2},
		{"SIGN", []Value{-7.0}, -1},
		{"ROUND", []Value{2.5}, 3},
		{"ROUND", []Value{-2.5}, -3},
		{"ROUND", []Value{1.234, 2.0}, 1.23},
		{"ROUNDUP", []Value{1.21, 1.0}, 1.3},
		{"ROUNDUP", []Value{-1.21, 1.0}, -1.3},
		{"ROUNDDOWN", []Value{1.29, 1.0}, 1.2},
		{"FLOOR", []Value{7.0, 3.0}, 6},
		{"CEILING", []Value{7.0, 3.0}, 9},
		{"POWER", []Value{2.0, 10.0}, 1024},
		{"MOD", []Value{-3.0, 2.0}, 1},
		{"MOD", []Value{3.0, -2.0}, -1},
		{"PI", nil, math.Pi},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantNumber(t, callFunction(tt.name, tt.args), tt.want)
		})
	}

	wantCellError(t, callFunction("SQRT", []Value{-1.0}), ErrorCodeNum)
	wantCellError(t, callFunction("LN", []Value{0.0}), ErrorCodeNum)
	wantCellError(t, callFunction("MOD", []Value{1.0, 0.0}), ErrorCodeDiv0)
	wantCellError(t, callFunction("FLOOR", []Value{1.0, 0.0}), ErrorCodeDiv0)
}

func TestTextFunctions(t *testing.T) {
	tests := []struct {
		name string
		args []Value
		want string
	}{
		{"CONCATENATE", []Value{"a", 1.0, "b"}, "a1b"},
		{"LEFT", []Value{"hello", 2.0}, "he"},
		{"LEFT", []Value{"hello"}, "h"},
		{"RIGHT", []Value{"hello", 3.0}, "llo"},
		{"MID", []Value{"hello", 2.0, 3.0}, "ell"},
		{"UPPER", []Value{"abc"}, "ABC"},
		{"LOWER", []Value{"ABC"}, "abc"},
		{"TRIM", []Value{"  x  "}, "x"},
		{"SUBSTITUTE", []Value{"a-b-c", "-", "+"}, "a+b+c"},
		{"SUBSTITUTE", []Value{"a-b-c", "-", "+", 2.0}, "a-b+c"},
		{"TEXT", []Value{3.14159, "0.00"}, "3.14"},
		{"TEXT", []Value{1234.5, "#,##0.00"}, "1,234.50"},
		{"TEXT", []Value{0.125, "0.0%"}, "12.5%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := callFunction(tt.name, tt.args)
			if got != tt.want {
				t.Errorf("got %v, want %q", got, tt.want)
			}
		})
	}

	wantNumber(t, callFunction("LEN", []Value{"héllo"}), 5)
	wantNumber(t, callFunction("FIND", []Value{"lo", "hello"}), 4)
	wantCellError(t, callFunction("FIND", []Value{"z", "hello"}), ErrorCodeValue)
	wantNumber(t, callFunction("VALUE", []Value{" 42.5 "}), 42.5)
	wantCellError(t, callFunction("VALUE", []Value{"abc"}), ErrorCodeValue)

	joined := callFunction("TEXTJOIN", []Value{",", true, textArray("a", "", "b")})
	if joined != "a,b" {
		t.Errorf("TEXTJOIN: got %v", joined)
	}
}

func TestDateFunctions(t *testing.T) {
	jan15 := callFunction("DATE", []Value{2025.0, 1.0, 15.0})
	wantNumber(t, jan15, 45672)

	// out-of-range month rolls over
	wantNumber(t, callFunction("DATE", []Value{2025.0, 13.0, 1.0}), 46023)

	wantNumber(t, callFunction("YEAR", []Value{jan15}), 2025)
	wantNumber(t, callFunction("MONTH", []Value{jan15}), 1)
	wantNumber(t, callFunction("DAY", []Value{jan15}), 15)

	// Jan 31 + 1 month clamps to Feb 28
	jan31 := callFunction("DATE", []Value{2025.0, 1.0, 31.0})
	feb28 := callFunction("DATE", []Value{2025.0, 2.0, 28.0})
	wantNumber(t, callFunction("EDATE", []Value{jan31, 1.0}), feb28.(float64))

	jan31val := callFunction("EOMONTH", []Value{jan15, 0.0})
	wantNumber(t, jan31val, jan31.(float64))

	wantNumber(t, callFunction("DAYS", []Value{feb28, jan31}), 28)

	start := callFunction("DATE", []Value{2024.0, 1.0, 15.0})
	end := callFunction("DATE", []Value{2025.0, 3.0, 14.0})
	wantNumber(t, callFunction("DATEDIF", []Value{start, end, "Y"}), 1)
	wantNumber(t, callFunction("DATEDIF", []Value{start, end, "M"}), 13)
	wantCellError(t, callFunction("DATEDIF", []Value{end, start, "D"}), ErrorCodeNum)
	wantCellError(t, callFunction("DATEDIF", []Value{start, end, "W"}), ErrorCodeValue)
}

func TestLogicalFunctions(t *testing.T) {
	if got := callFunction("IF", []Value{true, 1.0, 2.0}); got != 1.0 {
		t.Errorf("IF true: got %v", got)
	}
	if got := callFunction("IF", []Value{false, 1.0, 2.0}); got != 2.0 {
		t.Errorf("IF false: got %v", got)
	}
	if got := callFunction("IF", []Value{false, 1.0}); got != false {
		t.Errorf("IF without else: got %v", got)
	}

	if got := callFunction("AND", []Value{1.0, true, "x"}); got != true {
		t.Errorf("AND: got %v", got)
	}
	if got := callFunction("AND", []Value{1.0, 0.0}); got != false {
		t.Errorf("AND with zero: got %v", got)
	}
	if got := callFunction("OR", []Value{0.0, false, "x"}); got != true {
		t.Errorf("OR: got %v", got)
	}
	if got := callFunction("NOT", []Value{0.0}); got != true {
		t.Errorf("NOT: got %v", got)
	}
	if got := callFunction("XOR", []Value{true, true, false}); got != false {
		t.Errorf("XOR: got %v", got)
	}

	div0 := NewCellError(ErrorCodeDiv0, "")
	if got := callFunction("IFERROR", []Value{div0, 0.0}); got != 0.0 {
		t.Errorf("IFERROR: got %v", got)
	}
	if got := callFunction("IFERROR", []Value{5.0, 0.0}); got != 5.0 {
		t.Errorf("IFERROR passthrough: got %v", got)
	}
	if got := callFunction("ISERROR", []Value{div0}); got != true {
		t.Errorf("ISERROR: got %v", got)
	}
	if got := callFunction("ISNUMBER", []Value{1.0}); got != true {
		t.Errorf("ISNUMBER: got %v", got)
	}
	if got := callFunction("ISTEXT", []Value{"x"}); got != true {
		t.Errorf("ISTEXT: got %v", got)
	}
	if got := callFunction("ISBLANK", []Value{nil}); got != true {
		t.Errorf("ISBLANK: got %v", got)
	}

	// errors propagate through the logical family except IFERROR
	wantCellError(t, callFunction("AND", []Value{true, div0}), ErrorCodeDiv0)
}
