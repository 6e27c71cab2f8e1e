package forge

import (
	"fmt"
	"time"
)

func init() {
	register("DATE", &fnSpec{fn: fnDate, minArgs: 3, maxArgs: 3})
	register("YEAR", &fnSpec{fn: fnYear, minArgs: 1, maxArgs: 1})
	register("MONTH", &fnSpec{fn: fnMonth, minArgs: 1, maxArgs: 1})
	register("DAY", &fnSpec{fn: fnDay, minArgs: 1, maxArgs: 1})
	register("EDATE", &fnSpec{fn: fnEDate, minArgs: 2, maxArgs: 2})
	register("EOMONTH", &fnSpec{fn: fnEOMonth, minArgs: 2, maxArgs: 2})
	register("DAYS", &fnSpec{fn: fnDays, minArgs: 2, maxArgs: 2})
	register("DATEDIF", &fnSpec{fn: fnDateDif, minArgs: 3, maxArgs: 3})
}

// argDate coerces an argument to a day serial
func argDate(arg Value) (time.Time, *CellError) {
	serial, err := argNumber(arg)
	if err != nil {
		return time.Time{}, err
	}
	return serialToDate(serial), nil
}

// DATE(year, month, day) returns the day serial. out-of-range month and
// day roll over like the workbook function.
func fnDate(args []Value) Value {
	year, err := argInt(args[0])
	if err != nil {
		return err
	}
	month, err := argInt(args[1])
	if err != nil {
		return err
	}
	day, err := argInt(args[2])
	if err != nil {
		return err
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return dateToSerial(t)
}

func fnYear(args []Value) Value {
	t, err := argDate(args[0])
	if err != nil {
		return err
	}
	return float64(t.Year())
}

func fnMonth(args []Value) Value {
	t, err := argDate(args[0])
	if err != nil {
		return err
	}
	return float64(t.Month())
}

func fnDay(args []Value) Value {
	t, err := argDate(args[0])
	if err != nil {
		return err
	}
	return float64(t.Day())
}

// EDATE(start, months) shifts a date by whole months, clamping to the
// target month's last day
func fnEDate(args []Value) Value {
	t, err := argDate(args[0])
	if err != nil {
		return err
	}
	months, err := argInt(args[1])
	if err != nil {
		return err
	}
	return dateToSerial(addMonthsClamped(t, months))
}

// EOMONTH(start, months) returns the last day of the shifted month
func fnEOMonth(args []Value) Value {
	t, err := argDate(args[0])
	if err != nil {
		return err
	}
	months, err := argInt(args[1])
	if err != nil {
		return err
	}
	shifted := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, months+1, -1)
	return dateToSerial(shifted)
}

// DAYS(end, start) is the signed day count
func fnDays(args []Value) Value {
	end, err := argNumber(args[0])
	if err != nil {
		return err
	}
	start, err := argNumber(args[1])
	if err != nil {
		return err
	}
	return end - start
}

// DATEDIF(start, end, unit) with units Y, M, and D
func fnDateDif(args []Value) Value {
	start, err := argDate(args[0])
	if err != nil {
		return err
	}
	end, err := argDate(args[1])
	if err != nil {
		return err
	}
	unit, err := argText(args[2])
	if err != nil {
		return err
	}
	if end.Before(start) {
		return NewCellError(ErrorCodeNum, "end date is before start date")
	}

	switch toUpperASCII(unit) {
	case "D":
		return dateToSerial(end) - dateToSerial(start)
	case "M":
		months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
		if end.Day() < start.Day() {
			months--
		}
		return float64(months)
	case "Y":
		years := end.Year() - start.Year()
		if end.Month() < start.Month() || (end.Month() == start.Month() && end.Day() < start.Day()) {
			years--
		}
		return float64(years)
	default:
		return NewCellError(ErrorCodeValue, fmt.Sprintf("unsupported unit %q", unit))
	}
}

// addMonthsClamped shifts by months without the AddDate rollover, so
// Jan 31 + 1 month is Feb 28/29
func addMonthsClamped(t time.Time, months int) time.Time {
	firstOfTarget := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, months, 0)
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, 0, 0, 0, 0, time.UTC)
}
