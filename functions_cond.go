package forge

import "math"

func init() {
	register("SUMIF", &fnSpec{fn: fnSumIf, aggregate: true, minArgs: 2, maxArgs: 3})
	register("SUMIFS", &fnSpec{fn: fnSumIfs, aggregate: true, minArgs: 3, maxArgs: -1})
	register("COUNTIF", &fnSpec{fn: fnCountIf, aggregate: true, minArgs: 2, maxArgs: 2})
	register("COUNTIFS", &fnSpec{fn: fnCountIfs, aggregate: true, minArgs: 2, maxArgs: -1})
	register("AVERAGEIF", &fnSpec{fn: fnAverageIf, aggregate: true, minArgs: 2, maxArgs: 3})
	register("AVERAGEIFS", &fnSpec{fn: fnAverageIfs, aggregate: true, minArgs: 3, maxArgs: -1})
	register("MAXIFS", &fnSpec{fn: fnMaxIfs, aggregate: true, minArgs: 3, maxArgs: -1})
	register("MINIFS", &fnSpec{fn: fnMinIfs, aggregate: true, minArgs: 3, maxArgs: -1})
}

// criteriaArgPositions returns the argument indexes holding criteria
// strings for a conditional-aggregation call, used by validation to
// check literal criteria up front. unknown names return nil.
func criteriaArgPositions(name string, argc int) []int {
	var positions []int
	switch name {
	case "SUMIF", "COUNTIF", "AVERAGEIF":
		if argc > 1 {
			positions = append(positions, 1)
		}
	case "SUMIFS", "AVERAGEIFS", "MAXIFS", "MINIFS":
		for i := 2; i < argc; i += 2 {
			positions = append(positions, i)
		}
	case "COUNTIFS":
		for i := 1; i < argc; i += 2 {
			positions = append(positions, i)
		}
	}
	return positions
}

// SUMIF(range, criteria, [sum_range])
func fnSumIf(args []Value) Value {
	rangeVals := collectValues(args[0])
	crit, err := parseCriteria(singleValue(args[1]))
	if err != nil {
		return err
	}
	sumVals := rangeVals
	if len(args) > 2 {
		sumVals = collectValues(args[2])
	}

	total := 0.0
	for i, v := range rangeVals {
		if !crit.matches(v) {
			continue
		}
		if i < len(sumVals) {
			if n, ok := sumVals[i].(float64); ok {
				total += n
			}
		}
	}
	return total
}

// SUMIFS(sum_range, criteria_range1, criteria1, ...)
func fnSumIfs(args []Value) Value {
	sumVals := collectValues(args[0])
	matches, err := matchRows(len(sumVals), args[1:])
	if err != nil {
		return err
	}
	total := 0.0
	for i, ok := range matches {
		if !ok {
			continue
		}
		if n, isNum := sumVals[i].(float64); isNum {
			total += n
		}
	}
	return total
}

// COUNTIF(range, criteria)
func fnCountIf(args []Value) Value {
	crit, err := parseCriteria(singleValue(args[1]))
	if err != nil {
		return err
	}
	count := 0.0
	for _, v := range collectValues(args[0]) {
		if crit.matches(v) {
			count++
		}
	}
	return count
}

// COUNTIFS(criteria_range1, criteria1, ...)
func fnCountIfs(args []Value) Value {
	if len(args)%2 != 0 {
		return NewCellError(ErrorCodeNA, "COUNTIFS requires criteria_range, criteria pairs")
	}
	rows := len(collectValues(args[0]))
	matches, err := matchRows(rows, args)
	if err != nil {
		return err
	}
	count := 0.0
	for _, ok := range matches {
		if ok {
			count++
		}
	}
	return count
}

// AVERAGEIF(range, criteria, [average_range])
func fnAverageIf(args []Value) Value {
	rangeVals := collectValues(args[0])
	crit, err := parseCriteria(singleValue(args[1]))
	if err != nil {
		return err
	}
	avgVals := rangeVals
	if len(args) > 2 {
		avgVals = collectValues(args[2])
	}

	total, count := 0.0, 0
	for i, v := range rangeVals {
		if !crit.matches(v) {
			continue
		}
		if i < len(avgVals) {
			if n, ok := avgVals[i].(float64); ok {
				total += n
				count++
			}
		}
	}
	if count == 0 {
		return NewCellError(ErrorCodeDiv0, "no values match the criteria")
	}
	return total / float64(count)
}

// AVERAGEIFS(average_range, criteria_range1, criteria1, ...)
func fnAverageIfs(args []Value) Value {
	avgVals := collectValues(args[0])
	matches, err := matchRows(len(avgVals), args[1:])
	if err != nil {
		return err
	}
	total, count := 0.0, 0
	for i, ok := range matches {
		if !ok {
			continue
		}
		if n, isNum := avgVals[i].(float64); isNum {
			total += n
			count++
		}
	}
	if count == 0 {
		return NewCellError(ErrorCodeDiv0, "no values match the criteria")
	}
	return total / float64(count)
}

// MAXIFS(max_range, criteria_range1, criteria1, ...)
func fnMaxIfs(args []Value) Value {
	return extremeIfs(args, true)
}

// MINIFS(min_range, criteria_range1, criteria1, ...)
func fnMinIfs(args []Value) Value {
	return extremeIfs(args, false)
}

func extremeIfs(args []Value, wantMax bool) Value {
	vals := collectValues(args[0])
	matches, err := matchRows(len(vals), args[1:])
	if err != nil {
		return err
	}
	best := math.NaN()
	for i, ok := range matches {
		if !ok {
			continue
		}
		n, isNum := vals[i].(float64)
		if !isNum {
			continue
		}
		if math.IsNaN(best) || (wantMax && n > best) || (!wantMax && n < best) {
			best = n
		}
	}
	if math.IsNaN(best) {
		return 0.0 // matches the workbook convention for no matching rows
	}
	return best
}

// matchRows combines criteria_range, criteria pairs with logical AND,
// row-aligned across the ranges
func matchRows(rows int, pairs []Value) ([]bool, *CellError) {
	if len(pairs) < 2 || len(pairs)%2 != 0 {
		return nil, NewCellError(ErrorCodeNA, "requires criteria_range, criteria pairs")
	}
	matches := make([]bool, rows)
	for i := range matches {
		matches[i] = true
	}
	for p := 0; p < len(pairs); p += 2 {
		critRange := collectValues(pairs[p])
		crit, err := parseCriteria(singleValue(pairs[p+1]))
		if err != nil {
			return nil, err
		}
		for i := range matches {
			if i >= len(critRange) || !crit.matches(critRange[i]) {
				matches[i] = false
			}
		}
	}
	return matches, nil
}

// singleValue unwraps a one-element array argument
func singleValue(v Value) Value {
	if arr, ok := v.(*TypedArray); ok && arr.Len() == 1 {
		return arr.Values[0]
	}
	return v
}
