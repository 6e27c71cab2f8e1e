package forge

import "math"

func init() {
	register("ABS", &fnSpec{fn: math1(math.Abs), minArgs: 1, maxArgs: 1})
	register("SQRT", &fnSpec{fn: fnSqrt, minArgs: 1, maxArgs: 1})
	register("EXP", &fnSpec{fn: math1(math.Exp), minArgs: 1, maxArgs: 1})
	register("LN", &fnSpec{fn: fnLn, minArgs: 1, maxArgs: 1})
	register("LOG", &fnSpec{fn: fnLog, minArgs: 1, maxArgs: 2})
	register("LOG10", &fnSpec{fn: fnLog10, minArgs: 1, maxArgs: 1})
	register("INT", &fnSpec{fn: math1(math.Floor), minArgs: 1, maxArgs: 1})
	register("SIGN", &fnSpec{fn: fnSign, minArgs: 1, maxArgs: 1})
	register("ROUND", &fnSpec{fn: fnRound, minArgs: 1, maxArgs: 2})
	register("ROUNDUP", &fnSpec{fn: fnRoundUp, minArgs: 1, maxArgs: 2})
	register("ROUNDDOWN", &fnSpec{fn: fnRoundDown, minArgs: 1, maxArgs: 2})
	register("FLOOR", &fnSpec{fn: fnFloor, minArgs: 2, maxArgs: 2})
	register("CEILING", &fnSpec{fn: fnCeiling, minArgs: 2, maxArgs: 2})
	register("POWER", &fnSpec{fn: fnPowerFn, minArgs: 2, maxArgs: 2})
	register("MOD", &fnSpec{fn: fnMod, minArgs: 2, maxArgs: 2})
	register("PI", &fnSpec{fn: fnPi, minArgs: 0, maxArgs: 0})
}

// math1 adapts a single-argument math function
func math1(f func(float64) float64) Fn {
	return func(args []Value) Value {
		num, err := argNumber(args[0])
		if err != nil {
			return err
		}
		return f(num)
	}
}

func fnSqrt(args []Value) Value {
	num, err := argNumber(args[0])
	if err != nil {
		return err
	}
	if num < 0 {
		return NewCellError(ErrorCodeNum, "SQRT of a negative number")
	}
	return math.Sqrt(num)
}

func fnLn(args []Value) Value {
	num, err := argNumber(args[0])
	if err != nil {
		return err
	}
	if num <= 0 {
		return NewCellError(ErrorCodeNum, "LN requires a positive number")
	}
	return math.Log(num)
}

// LOG(number, [base]) defaults to base 10
func fnLog(args []Value) Value {
	num, err := argNumber(args[0])
	if err != nil {
		return err
	}
	base := 10.0
	if len(args) > 1 {
		base, err = argNumber(args[1])
		if err != nil {
			return err
		}
	}
	if num <= 0 || base <= 0 || base == 1 {
		return NewCellError(ErrorCodeNum, "LOG argument out of domain")
	}
	return math.Log(num) / math.Log(base)
}

func fnLog10(args []Value) Value {
	num, err := argNumber(args[0])
	if err != nil {
		return err
	}
	if num <= 0 {
		return NewCellError(ErrorCodeNum, "LOG10 requires a positive number")
	}
	return math.Log10(num)
}

func fnSign(args []Value) Value {
	num, err := argNumber(args[0])
	if err != nil {
		return err
	}
	switch {
	case num > 0:
		return 1.0
	case num < 0:
		return -1.0
	default:
		return 0.0
	}
}

// roundDigits applies a rounding mode at a decimal digit count
func roundDigits(args []Value, mode func(float64) float64) Value {
	num, err := argNumber(args[0])
	if err != nil {
		return err
	}
	digits := 0
	if len(args) > 1 {
		digits, err = argInt(args[1])
		if err != nil {
			return err
		}
	}
	scale := math.Pow(10, float64(digits))
	return mode(num*scale) / scale
}

// ROUND is half away from zero, which math.Round implements
func fnRound(args []Value) Value {
	return roundDigits(args, math.Round)
}

// ROUNDUP rounds away from zero
func fnRoundUp(args []Value) Value {
	return roundDigits(args, func(x float64) float64 {
		if x < 0 {
			return math.Floor(x)
		}
		return math.Ceil(x)
	})
}

// ROUNDDOWN rounds toward zero
func fnRoundDown(args []Value) Value {
	return roundDigits(args, math.Trunc)
}

// FLOOR(number, significance) rounds down to a multiple of significance
func fnFloor(args []Value) Value {
	num, err := argNumber(args[0])
	if err != nil {
		return err
	}
	sig, err := argNumber(args[1])
	if err != nil {
		return err
	}
	if sig == 0 {
		return NewCellError(ErrorCodeDiv0, "significance cannot be zero")
	}
	return math.Floor(num/sig) * sig
}

// CEILING(number, significance) rounds up to a multiple of significance
func fnCeiling(args []Value) Value {
	num, err := argNumber(args[0])
	if err != nil {
		return err
	}
	sig, err := argNumber(args[1])
	if err != nil {
		return err
	}
	if sig == 0 {
		return NewCellError(ErrorCodeDiv0, "significance cannot be zero")
	}
	return math.Ceil(num/sig) * sig
}

func fnPowerFn(args []Value) Value {
	base, err := argNumber(args[0])
	if err != nil {
		return err
	}
	exp, err := argNumber(args[1])
	if err != nil {
		return err
	}
	result := math.Pow(base, exp)
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return NewCellError(ErrorCodeNum, "POWER result out of range")
	}
	return result
}

// MOD follows the workbook convention: the result has the divisor's sign
func fnMod(args []Value) Value {
	num, err := argNumber(args[0])
	if err != nil {
		return err
	}
	div, err := argNumber(args[1])
	if err != nil {
		return err
	}
	if div == 0 {
		return NewCellError(ErrorCodeDiv0, "")
	}
	return num - div*math.Floor(num/div)
}

func fnPi(args []Value) Value {
	return math.Pi
}
