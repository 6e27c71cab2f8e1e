package forge

import "fmt"

func init() {
	register("MATCH", &fnSpec{fn: fnMatch, aggregate: true, minArgs: 2, maxArgs: 3})
	register("INDEX", &fnSpec{fn: fnIndex, aggregate: true, minArgs: 2, maxArgs: 2})
	register("VLOOKUP", &fnSpec{fn: fnLookup, aggregate: true, minArgs: 3, maxArgs: 4})
	register("HLOOKUP", &fnSpec{fn: fnLookup, aggregate: true, minArgs: 3, maxArgs: 4})
	register("XLOOKUP", &fnSpec{fn: fnXLookup, aggregate: true, minArgs: 3, maxArgs: 4})
	register("OFFSET", &fnSpec{fn: fnOffset, minArgs: 2, maxArgs: 2})
	register("CHOOSE", &fnSpec{fn: fnChoose, minArgs: 2, maxArgs: -1})
}

// MATCH(value, array, [match_type]) returns the 1-based position.
// match_type 0 (the default) is exact match; 1 finds the largest value
// not greater than the lookup in an ascending array; -1 the smallest
// value not less than it in a descending array. exact by default, which
// differs from the workbook convention of defaulting to 1.
func fnMatch(args []Value) Value {
	lookup := singleValue(args[0])
	vals := collectValues(args[1])
	matchType := 0
	if len(args) > 2 {
		mt, err := argInt(args[2])
		if err != nil {
			return err
		}
		matchType = mt
	}

	switch matchType {
	case 0:
		for i, v := range vals {
			if valuesEqual(v, lookup) {
				return float64(i + 1)
			}
		}
	case 1:
		best := -1
		for i, v := range vals {
			if cmp, ok := compareValues(v, lookup); ok && cmp <= 0 {
				best = i
			}
		}
		if best >= 0 {
			return float64(best + 1)
		}
	case -1:
		best := -1
		for i, v := range vals {
			if cmp, ok := compareValues(v, lookup); ok && cmp >= 0 {
				best = i
			}
		}
		if best >= 0 {
			return float64(best + 1)
		}
	default:
		return NewCellError(ErrorCodeValue, "match type must be -1, 0, or 1")
	}
	return NewCellError(ErrorCodeNA, fmt.Sprintf("value %q not found", toText(lookup)))
}

// INDEX(array, position) returns the element at a 1-based position
func fnIndex(args []Value) Value {
	vals := collectValues(args[0])
	pos, err := argInt(args[1])
	if err != nil {
		return err
	}
	if pos < 1 || pos > len(vals) {
		return NewCellError(ErrorCodeRef, fmt.Sprintf("index %d out of range 1..%d", pos, len(vals)))
	}
	return vals[pos-1]
}

// VLOOKUP/HLOOKUP(value, lookup_range, return_range, [approximate]).
// columns are the only axis in this model, so both take an explicit
// return range instead of a column offset into a rectangle. exact match
// unless the fourth argument is TRUE.
func fnLookup(args []Value) Value {
	lookup := singleValue(args[0])
	lookupVals := collectValues(args[1])
	returnVals := collectValues(args[2])
	approximate := false
	if len(args) > 3 {
		approximate = isTruthy(singleValue(args[3]))
	}

	if approximate {
		best := -1
		for i, v := range lookupVals {
			if cmp, ok := compareValues(v, lookup); ok && cmp <= 0 {
				best = i
			}
		}
		if best >= 0 && best < len(returnVals) {
			return returnVals[best]
		}
		return NewCellError(ErrorCodeNA, fmt.Sprintf("value %q not found", toText(lookup)))
	}

	for i, v := range lookupVals {
		if valuesEqual(v, lookup) {
			if i < len(returnVals) {
				return returnVals[i]
			}
			return NewCellError(ErrorCodeRef, "return range is shorter than the lookup range")
		}
	}
	return NewCellError(ErrorCodeNA, fmt.Sprintf("value %q not found", toText(lookup)))
}

// XLOOKUP(value, lookup_range, return_range, [if_not_found])
func fnXLookup(args []Value) Value {
	lookup := singleValue(args[0])
	lookupVals := collectValues(args[1])
	returnVals := collectValues(args[2])

	for i, v := range lookupVals {
		if valuesEqual(v, lookup) {
			if i < len(returnVals) {
				return returnVals[i]
			}
			return NewCellError(ErrorCodeRef, "return range is shorter than the lookup range")
		}
	}
	if len(args) > 3 {
		return singleValue(args[3])
	}
	return NewCellError(ErrorCodeNA, fmt.Sprintf("value %q not found", toText(lookup)))
}

// OFFSET(array, rows) shifts an array down by rows positions (negative
// shifts up); vacated cells are empty. useful for prior-period terms in
// row-wise formulas over whole columns.
func fnOffset(args []Value) Value {
	vals := collectValues(args[0])
	shift, err := argInt(args[1])
	if err != nil {
		return err
	}
	out := make([]Value, len(vals))
	for i := range vals {
		src := i - shift
		if src >= 0 && src < len(vals) {
			out[i] = vals[src]
		}
	}
	arrType := TypeNumber
	if arr, ok := args[0].(*TypedArray); ok {
		arrType = arr.Type
	}
	return &TypedArray{Type: arrType, Values: out}
}

// CHOOSE(index, v1, v2, ...) returns the 1-based selected argument
func fnChoose(args []Value) Value {
	pos, err := argInt(args[0])
	if err != nil {
		return err
	}
	if pos < 1 || pos >= len(args) {
		return NewCellError(ErrorCodeValue, fmt.Sprintf("choose index %d out of range 1..%d", pos, len(args)-1))
	}
	return args[pos]
}
