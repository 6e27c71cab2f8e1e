package forge

import "math"

// root-finder constants shared by IRR, XIRR, and RATE
const (
	newtonDefaultGuess = 0.1
	newtonMaxIter      = 100
	newtonTolerance    = 1e-7
	newtonMinSlope     = 1e-10
)

func init() {
	register("NPV", &fnSpec{fn: fnNPV, aggregate: true, minArgs: 2, maxArgs: -1})
	register("IRR", &fnSpec{fn: fnIRR, aggregate: true, minArgs: 1, maxArgs: 2})
	register("XNPV", &fnSpec{fn: fnXNPV, aggregate: true, minArgs: 3, maxArgs: 3})
	register("XIRR", &fnSpec{fn: fnXIRR, aggregate: true, minArgs: 2, maxArgs: 3})
	register("MIRR", &fnSpec{fn: fnMIRR, aggregate: true, minArgs: 3, maxArgs: 3})
	register("PMT", &fnSpec{fn: fnPMT, aggregate: true, minArgs: 3, maxArgs: 5})
	register("FV", &fnSpec{fn: fnFV, aggregate: true, minArgs: 3, maxArgs: 5})
	register("PV", &fnSpec{fn: fnPV, aggregate: true, minArgs: 3, maxArgs: 5})
	register("RATE", &fnSpec{fn: fnRATE, aggregate: true, minArgs: 3, maxArgs: 6})
	register("NPER", &fnSpec{fn: fnNPER, aggregate: true, minArgs: 3, maxArgs: 5})
	register("SLN", &fnSpec{fn: fnSLN, aggregate: true, minArgs: 3, maxArgs: 3})
	register("DB", &fnSpec{fn: fnDB, aggregate: true, minArgs: 4, maxArgs: 5})
	register("DDB", &fnSpec{fn: fnDDB, aggregate: true, minArgs: 4, maxArgs: 5})
}

// newton iterates x -> x - f(x)/f'(x) until |f| is within tolerance.
// returns a #NUM! error when the slope vanishes or the iteration limit
// is reached instead of silently returning the last iterate.
func newton(f, fprime func(float64) float64, guess float64) Value {
	rate := guess
	for i := 0; i < newtonMaxIter; i++ {
		y := f(rate)
		if math.Abs(y) < newtonTolerance {
			return rate
		}
		slope := fprime(rate)
		if math.Abs(slope) < newtonMinSlope {
			return NewCellError(ErrorCodeNum, "root finder stalled: derivative too small")
		}
		rate -= y / slope
	}
	return NewCellError(ErrorCodeNum, "root finder did not converge")
}

// NPV(rate, values...) discounts from period 1
func fnNPV(args []Value) Value {
	rate, err := argNumber(args[0])
	if err != nil {
		return err
	}
	nums, err := collectNumbers(args[1:])
	if err != nil {
		return err
	}
	npv := 0.0
	for i, v := range nums {
		npv += v / math.Pow(1+rate, float64(i+1))
	}
	return npv
}

// IRR(values, [guess]) treats the first cashflow as period 0
func fnIRR(args []Value) Value {
	nums, err := collectNumbers(args[:1])
	if err != nil {
		return err
	}
	if len(nums) < 2 {
		return NewCellError(ErrorCodeNum, "IRR requires at least two cashflows")
	}
	guess := newtonDefaultGuess
	if len(args) > 1 {
		g, err := argNumber(args[1])
		if err != nil {
			return err
		}
		guess = g
	}

	f := func(r float64) float64 {
		total := 0.0
		for i, v := range nums {
			total += v / math.Pow(1+r, float64(i))
		}
		return total
	}
	fprime := func(r float64) float64 {
		total := 0.0
		for i, v := range nums {
			if i == 0 {
				continue
			}
			total -= float64(i) * v / math.Pow(1+r, float64(i+1))
		}
		return total
	}
	return newton(f, fprime, guess)
}

// XNPV(rate, values, dates) uses actual day counts over a 365-day year
func fnXNPV(args []Value) Value {
	rate, err := argNumber(args[0])
	if err != nil {
		return err
	}
	nums, dates, err := cashflowSchedule(args[1], args[2])
	if err != nil {
		return err
	}
	return xnpvAt(rate, nums, dates)
}

func xnpvAt(rate float64, nums, dates []float64) float64 {
	total := 0.0
	for i, v := range nums {
		years := (dates[i] - dates[0]) / 365.0
		total += v / math.Pow(1+rate, years)
	}
	return total
}

// XIRR(values, dates, [guess])
func fnXIRR(args []Value) Value {
	nums, dates, err := cashflowSchedule(args[0], args[1])
	if err != nil {
		return err
	}
	if len(nums) < 2 {
		return NewCellError(ErrorCodeNum, "XIRR requires at least two cashflows")
	}
	guess := newtonDefaultGuess
	if len(args) > 2 {
		g, err := argNumber(args[2])
		if err != nil {
			return err
		}
		guess = g
	}

	f := func(r float64) float64 {
		return xnpvAt(r, nums, dates)
	}
	fprime := func(r float64) float64 {
		total := 0.0
		for i, v := range nums {
			years := (dates[i] - dates[0]) / 365.0
			if years == 0 {
				continue
			}
			total -= years * v / math.Pow(1+r, years+1)
		}
		return total
	}
	return newton(f, fprime, guess)
}

// cashflowSchedule pairs a cashflow range with a date range of the same
// length, dates as day serials
func cashflowSchedule(valuesArg, datesArg Value) ([]float64, []float64, *CellError) {
	nums, err := collectNumbers([]Value{valuesArg})
	if err != nil {
		return nil, nil, err
	}
	var dates []float64
	for _, v := range collectValues(datesArg) {
		if cellErr := checkForError(v); cellErr != nil {
			return nil, nil, cellErr
		}
		serial, ok := toNumber(v)
		if !ok {
			return nil, nil, NewCellError(ErrorCodeValue, "dates must be date values")
		}
		dates = append(dates, serial)
	}
	if len(nums) != len(dates) {
		return nil, nil, NewCellError(ErrorCodeNum, "values and dates must have the same length")
	}
	return nums, dates, nil
}

// MIRR(values, finance_rate, reinvest_rate)
func fnMIRR(args []Value) Value {
	nums, err := collectNumbers(args[:1])
	if err != nil {
		return err
	}
	financeRate, err := argNumber(args[1])
	if err != nil {
		return err
	}
	reinvestRate, err := argNumber(args[2])
	if err != nil {
		return err
	}

	n := len(nums)
	if n < 2 {
		return NewCellError(ErrorCodeNum, "MIRR requires at least two cashflows")
	}
	npvNeg, npvPos := 0.0, 0.0
	for i, v := range nums {
		if v < 0 {
			npvNeg += v / math.Pow(1+financeRate, float64(i))
		} else {
			npvPos += v * math.Pow(1+reinvestRate, float64(n-1-i))
		}
	}
	if npvNeg == 0 || npvPos == 0 {
		return NewCellError(ErrorCodeDiv0, "MIRR requires both negative and positive cashflows")
	}
	return math.Pow(-npvPos/npvNeg, 1/float64(n-1)) - 1
}

// annuityArgs reads the shared [fv] and [type] tail arguments
func annuityArgs(args []Value, fvIdx int) (fv, due float64, err *CellError) {
	if len(args) > fvIdx {
		fv, err = argNumber(args[fvIdx])
		if err != nil {
			return
		}
	}
	if len(args) > fvIdx+1 {
		due, err = argNumber(args[fvIdx+1])
		if err != nil {
			return
		}
		if due != 0 {
			due = 1
		}
	}
	return
}

// PMT(rate, nper, pv, [fv], [type])
func fnPMT(args []Value) Value {
	rate, err := argNumber(args[0])
	if err != nil {
		return err
	}
	nper, err := argNumber(args[1])
	if err != nil {
		return err
	}
	pv, err := argNumber(args[2])
	if err != nil {
		return err
	}
	fv, due, err := annuityArgs(args, 3)
	if err != nil {
		return err
	}
	if nper == 0 {
		return NewCellError(ErrorCodeDiv0, "number of periods cannot be zero")
	}
	if rate == 0 {
		return -(pv + fv) / nper
	}
	growth := math.Pow(1+rate, nper)
	return -(pv*growth + fv) * rate / ((growth - 1) * (1 + rate*due))
}

// FV(rate, nper, pmt, [pv], [type])
func fnFV(args []Value) Value {
	rate, err := argNumber(args[0])
	if err != nil {
		return err
	}
	nper, err := argNumber(args[1])
	if err != nil {
		return err
	}
	pmt, err := argNumber(args[2])
	if err != nil {
		return err
	}
	pv, due, err := annuityArgs(args, 3)
	if err != nil {
		return err
	}
	if rate == 0 {
		return -(pv + pmt*nper)
	}
	growth := math.Pow(1+rate, nper)
	return -(pv*growth + pmt*(1+rate*due)*(growth-1)/rate)
}

// PV(rate, nper, pmt, [fv], [type])
func fnPV(args []Value) Value {
	rate, err := argNumber(args[0])
	if err != nil {
		return err
	}
	nper, err := argNumber(args[1])
	if err != nil {
		return err
	}
	pmt, err := argNumber(args[2])
	if err != nil {
		return err
	}
	fv, due, err := annuityArgs(args, 3)
	if err != nil {
		return err
	}
	if rate == 0 {
		return -(fv + pmt*nper)
	}
	growth := math.Pow(1+rate, nper)
	return -(fv + pmt*(1+rate*due)*(growth-1)/rate) / growth
}

// RATE(nper, pmt, pv, [fv], [type], [guess]) finds the periodic rate by
// Newton iteration over the annuity balance equation
func fnRATE(args []Value) Value {
	nper, err := argNumber(args[0])
	if err != nil {
		return err
	}
	pmt, err := argNumber(args[1])
	if err != nil {
		return err
	}
	pv, err := argNumber(args[2])
	if err != nil {
		return err
	}
	fv, due, err := annuityArgs(args, 3)
	if err != nil {
		return err
	}
	guess := newtonDefaultGuess
	if len(args) > 5 {
		g, err := argNumber(args[5])
		if err != nil {
			return err
		}
		guess = g
	}

	f := func(r float64) float64 {
		if r == 0 {
			return pv + pmt*nper + fv
		}
		growth := math.Pow(1+r, nper)
		return pv*growth + pmt*(1+r*due)*(growth-1)/r + fv
	}
	// numeric derivative, the closed form is unwieldy
	fprime := func(r float64) float64 {
		const h = 1e-6
		return (f(r+h) - f(r-h)) / (2 * h)
	}
	return newton(f, fprime, guess)
}

// NPER(rate, pmt, pv, [fv], [type])
func fnNPER(args []Value) Value {
	rate, err := argNumber(args[0])
	if err != nil {
		return err
	}
	pmt, err := argNumber(args[1])
	if err != nil {
		return err
	}
	pv, err := argNumber(args[2])
	if err != nil {
		return err
	}
	fv, due, err := annuityArgs(args, 3)
	if err != nil {
		return err
	}
	if rate == 0 {
		if pmt == 0 {
			return NewCellError(ErrorCodeDiv0, "payment cannot be zero when rate is zero")
		}
		return -(pv + fv) / pmt
	}
	adj := pmt * (1 + rate*due) / rate
	num := adj - fv
	den := pv + adj
	if den == 0 || num/den <= 0 {
		return NewCellError(ErrorCodeNum, "no period count satisfies these terms")
	}
	return math.Log(num/den) / math.Log(1+rate)
}

// SLN(cost, salvage, life) straight-line depreciation
func fnSLN(args []Value) Value {
	cost, err := argNumber(args[0])
	if err != nil {
		return err
	}
	salvage, err := argNumber(args[1])
	if err != nil {
		return err
	}
	life, err := argNumber(args[2])
	if err != nil {
		return err
	}
	if life == 0 {
		return NewCellError(ErrorCodeDiv0, "life cannot be zero")
	}
	return (cost - salvage) / life
}

// DB(cost, salvage, life, period, [month]) fixed-declining-balance
// depreciation with the rate rounded to three decimals
func fnDB(args []Value) Value {
	cost, err := argNumber(args[0])
	if err != nil {
		return err
	}
	salvage, err := argNumber(args[1])
	if err != nil {
		return err
	}
	life, err := argNumber(args[2])
	if err != nil {
		return err
	}
	period, err := argNumber(args[3])
	if err != nil {
		return err
	}
	month := 12.0
	if len(args) > 4 {
		month, err = argNumber(args[4])
		if err != nil {
			return err
		}
	}
	if cost <= 0 || life <= 0 || period <= 0 {
		return NewCellError(ErrorCodeNum, "cost, life, and period must be positive")
	}

	rate := math.Round((1-math.Pow(salvage/cost, 1/life))*1000) / 1000
	total := 0.0
	dep := 0.0
	for p := 1.0; p <= period; p++ {
		switch {
		case p == 1:
			dep = cost * rate * month / 12
		case p == life+1:
			dep = (cost - total) * rate * (12 - month) / 12
		default:
			dep = (cost - total) * rate
		}
		total += dep
	}
	return dep
}

// DDB(cost, salvage, life, period, [factor]) double-declining-balance
// depreciation, never dropping the book value below salvage
func fnDDB(args []Value) Value {
	cost, err := argNumber(args[0])
	if err != nil {
		return err
	}
	salvage, err := argNumber(args[1])
	if err != nil {
		return err
	}
	life, err := argNumber(args[2])
	if err != nil {
		return err
	}
	period, err := argNumber(args[3])
	if err != nil {
		return err
	}
	factor := 2.0
	if len(args) > 4 {
		factor, err = argNumber(args[4])
		if err != nil {
			return err
		}
	}
	if life <= 0 || period <= 0 {
		return NewCellError(ErrorCodeNum, "life and period must be positive")
	}

	book := cost
	dep := 0.0
	for p := 1.0; p <= period; p++ {
		dep = book * factor / life
		if book-dep < salvage {
			dep = book - salvage
		}
		if dep < 0 {
			dep = 0
		}
		book -= dep
	}
	return dep
}
