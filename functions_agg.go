package forge

import (
	"math"
	"sort"
)

func init() {
	register("SUM", &fnSpec{fn: fnSum, aggregate: true, minArgs: 1, maxArgs: -1})
	register("AVERAGE", &fnSpec{fn: fnAverage, aggregate: true, minArgs: 1, maxArgs: -1})
	register("MIN", &fnSpec{fn: fnMin, aggregate: true, minArgs: 1, maxArgs: -1})
	register("MAX", &fnSpec{fn: fnMax, aggregate: true, minArgs: 1, maxArgs: -1})
	register("COUNT", &fnSpec{fn: fnCount, aggregate: true, minArgs: 1, maxArgs: -1})
	register("COUNTA", &fnSpec{fn: fnCountA, aggregate: true, minArgs: 1, maxArgs: -1})
	register("PRODUCT", &fnSpec{fn: fnProduct, aggregate: true, minArgs: 1, maxArgs: -1})
	register("MEDIAN", &fnSpec{fn: fnMedian, aggregate: true, minArgs: 1, maxArgs: -1})
	register("STDEV", &fnSpec{fn: fnStdev, aggregate: true, minArgs: 1, maxArgs: -1})
	register("VAR", &fnSpec{fn: fnVar, aggregate: true, minArgs: 1, maxArgs: -1})
	register("PERCENTILE", &fnSpec{fn: fnPercentile, aggregate: true, minArgs: 2, maxArgs: 2})
}

func fnSum(args []Value) Value {
	nums, err := collectNumbers(args)
	if err != nil {
		return err
	}
	sum := 0.0
	for _, n := range nums {
		sum += n
	}
	return sum
}

func fnAverage(args []Value) Value {
	nums, err := collectNumbers(args)
	if err != nil {
		return err
	}
	if len(nums) == 0 {
		return NewCellError(ErrorCodeDiv0, "AVERAGE of no numeric values")
	}
	sum := 0.0
	for _, n := range nums {
		sum += n
	}
	return sum / float64(len(nums))
}

func fnMin(args []Value) Value {
	nums, err := collectNumbers(args)
	if err != nil {
		return err
	}
	if len(nums) == 0 {
		return NewCellError(ErrorCodeNum, "MIN of no numeric values")
	}
	min := nums[0]
	for _, n := range nums[1:] {
		if n < min {
			min = n
		}
	}
	return min
}

func fnMax(args []Value) Value {
	nums, err := collectNumbers(args)
	if err != nil {
		return err
	}
	if len(nums) == 0 {
		return NewCellError(ErrorCodeNum, "MAX of no numeric values")
	}
	max := nums[0]
	for _, n := range nums[1:] {
		if n > max {
			max = n
		}
	}
	return max
}

// COUNT counts populated cells of any type, not just numeric ones
func fnCount(args []Value) Value {
	count := 0.0
	for _, arg := range args {
		for _, v := range collectValues(arg) {
			if v != nil {
				count++
			}
		}
	}
	return count
}

// COUNTA counts cells holding a non-empty value
func fnCountA(args []Value) Value {
	count := 0.0
	for _, arg := range args {
		for _, v := range collectValues(arg) {
			if v == nil {
				continue
			}
			if s, ok := v.(string); ok && s == "" {
				continue
			}
			count++
		}
	}
	return count
}

func fnProduct(args []Value) Value {
	nums, err := collectNumbers(args)
	if err != nil {
		return err
	}
	if len(nums) == 0 {
		return 0.0
	}
	product := 1.0
	for _, n := range nums {
		product *= n
	}
	return product
}

func fnMedian(args []Value) Value {
	nums, err := collectNumbers(args)
	if err != nil {
		return err
	}
	if len(nums) == 0 {
		return NewCellError(ErrorCodeNum, "MEDIAN of no numeric values")
	}
	sorted := append([]float64{}, nums...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// fnStdev is the sample standard deviation
func fnStdev(args []Value) Value {
	v := fnVar(args)
	variance, ok := v.(float64)
	if !ok {
		return v
	}
	return math.Sqrt(variance)
}

// fnVar is the sample variance (n-1 denominator)
func fnVar(args []Value) Value {
	nums, err := collectNumbers(args)
	if err != nil {
		return err
	}
	if len(nums) < 2 {
		return NewCellError(ErrorCodeDiv0, "VAR requires at least two numeric values")
	}
	mean := 0.0
	for _, n := range nums {
		mean += n
	}
	mean /= float64(len(nums))
	ss := 0.0
	for _, n := range nums {
		d := n - mean
		ss += d * d
	}
	return ss / float64(len(nums)-1)
}

// fnPercentile uses linear interpolation between closest ranks
func fnPercentile(args []Value) Value {
	nums, err := collectNumbers(args[:1])
	if err != nil {
		return err
	}
	p, err := argNumber(args[1])
	if err != nil {
		return err
	}
	if len(nums) == 0 {
		return NewCellError(ErrorCodeNum, "PERCENTILE of no numeric values")
	}
	if p < 0 || p > 1 {
		return NewCellError(ErrorCodeNum, "percentile must be between 0 and 1")
	}
	sorted := append([]float64{}, nums...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
