package forge

import (
	"fmt"
	"strconv"
	"strings"
)

func init() {
	register("CONCATENATE", &fnSpec{fn: fnConcatenate, minArgs: 1, maxArgs: -1})
	register("LEFT", &fnSpec{fn: fnLeft, minArgs: 1, maxArgs: 2})
	register("RIGHT", &fnSpec{fn: fnRight, minArgs: 1, maxArgs: 2})
	register("MID", &fnSpec{fn: fnMid, minArgs: 3, maxArgs: 3})
	register("LEN", &fnSpec{fn: fnLen, minArgs: 1, maxArgs: 1})
	register("UPPER", &fnSpec{fn: fnUpper, minArgs: 1, maxArgs: 1})
	register("LOWER", &fnSpec{fn: fnLower, minArgs: 1, maxArgs: 1})
	register("TRIM", &fnSpec{fn: fnTrim, minArgs: 1, maxArgs: 1})
	register("SUBSTITUTE", &fnSpec{fn: fnSubstitute, minArgs: 3, maxArgs: 4})
	register("FIND", &fnSpec{fn: fnFind, minArgs: 2, maxArgs: 3})
	register("TEXTJOIN", &fnSpec{fn: fnTextJoin, aggregate: true, minArgs: 3, maxArgs: -1})
	register("VALUE", &fnSpec{fn: fnValue, minArgs: 1, maxArgs: 1})
	register("TEXT", &fnSpec{fn: fnText, minArgs: 2, maxArgs: 2})
}

func fnConcatenate(args []Value) Value {
	var b strings.Builder
	for _, arg := range args {
		s, err := argText(arg)
		if err != nil {
			return err
		}
		b.WriteString(s)
	}
	return b.String()
}

// text functions index by code point, not by byte

func fnLeft(args []Value) Value {
	s, err := argText(args[0])
	if err != nil {
		return err
	}
	n := 1
	if len(args) > 1 {
		n, err = argInt(args[1])
		if err != nil {
			return err
		}
	}
	if n < 0 {
		return NewCellError(ErrorCodeValue, "count cannot be negative")
	}
	runes := []rune(s)
	if n > len(runes) {
		n = len(runes)
	}
	return string(runes[:n])
}

func fnRight(args []Value) Value {
	s, err := argText(args[0])
	if err != nil {
		return err
	}
	n := 1
	if len(args) > 1 {
		n, err = argInt(args[1])
		if err != nil {
			return err
		}
	}
	if n < 0 {
		return NewCellError(ErrorCodeValue, "count cannot be negative")
	}
	runes := []rune(s)
	if n > len(runes) {
		n = len(runes)
	}
	return string(runes[len(runes)-n:])
}

// MID(text, start, count) with a 1-based start
func fnMid(args []Value) Value {
	s, err := argText(args[0])
	if err != nil {
		return err
	}
	start, err := argInt(args[1])
	if err != nil {
		return err
	}
	count, err := argInt(args[2])
	if err != nil {
		return err
	}
	if start < 1 || count < 0 {
		return NewCellError(ErrorCodeValue, "start must be positive and count non-negative")
	}
	runes := []rune(s)
	from := start - 1
	if from >= len(runes) {
		return ""
	}
	to := from + count
	if to > len(runes) {
		to = len(runes)
	}
	return string(runes[from:to])
}

func fnLen(args []Value) Value {
	s, err := argText(args[0])
	if err != nil {
		return err
	}
	return float64(len([]rune(s)))
}

func fnUpper(args []Value) Value {
	s, err := argText(args[0])
	if err != nil {
		return err
	}
	return strings.ToUpper(s)
}

func fnLower(args []Value) Value {
	s, err := argText(args[0])
	if err != nil {
		return err
	}
	return strings.ToLower(s)
}

func fnTrim(args []Value) Value {
	s, err := argText(args[0])
	if err != nil {
		return err
	}
	return strings.TrimSpace(s)
}

// SUBSTITUTE(text, old, new, [instance]) replaces every occurrence, or
// only the 1-based instance when given
func fnSubstitute(args []Value) Value {
	s, err := argText(args[0])
	if err != nil {
		return err
	}
	old, err := argText(args[1])
	if err != nil {
		return err
	}
	repl, err := argText(args[2])
	if err != nil {
		return err
	}
	if old == "" {
		return s
	}
	if len(args) < 4 {
		return strings.ReplaceAll(s, old, repl)
	}
	instance, err := argInt(args[3])
	if err != nil {
		return err
	}
	if instance < 1 {
		return NewCellError(ErrorCodeValue, "instance must be positive")
	}
	pos := 0
	for n := 0; ; n++ {
		idx := strings.Index(s[pos:], old)
		if idx < 0 {
			return s
		}
		if n == instance-1 {
			at := pos + idx
			return s[:at] + repl + s[at+len(old):]
		}
		pos += idx + len(old)
	}
}

// FIND(needle, haystack, [start]) returns the 1-based code point
// position, case sensitive
func fnFind(args []Value) Value {
	needle, err := argText(args[0])
	if err != nil {
		return err
	}
	haystack, err := argText(args[1])
	if err != nil {
		return err
	}
	start := 1
	if len(args) > 2 {
		start, err = argInt(args[2])
		if err != nil {
			return err
		}
	}
	runes := []rune(haystack)
	if start < 1 || start > len(runes)+1 {
		return NewCellError(ErrorCodeValue, "start out of range")
	}
	idx := strings.Index(string(runes[start-1:]), needle)
	if idx < 0 {
		return NewCellError(ErrorCodeValue, fmt.Sprintf("%q not found", needle))
	}
	return float64(len([]rune(string(runes[start-1:])[:idx])) + start)
}

// TEXTJOIN(delimiter, ignore_empty, values...)
func fnTextJoin(args []Value) Value {
	delim, err := argText(args[0])
	if err != nil {
		return err
	}
	ignoreEmpty := isTruthy(singleValue(args[1]))

	var parts []string
	for _, arg := range args[2:] {
		for _, v := range collectValues(arg) {
			if cellErr := checkForError(v); cellErr != nil {
				return cellErr
			}
			s := toText(v)
			if ignoreEmpty && s == "" {
				continue
			}
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, delim)
}

func fnValue(args []Value) Value {
	s, err := argText(args[0])
	if err != nil {
		return err
	}
	num, ok := toNumber(strings.TrimSpace(s))
	if !ok {
		return NewCellError(ErrorCodeValue, fmt.Sprintf("cannot convert %q to a number", s))
	}
	return num
}

// TEXT(number, format) supports the common fixed-decimal, thousands,
// and percent patterns
func fnText(args []Value) Value {
	num, err := argNumber(args[0])
	if err != nil {
		return err
	}
	format, err := argText(args[1])
	if err != nil {
		return err
	}

	switch {
	case strings.HasSuffix(format, "%"):
		decimals := countZeros(strings.TrimSuffix(format, "%"))
		return strconv.FormatFloat(num*100, 'f', decimals, 64) + "%"
	case strings.HasPrefix(format, "#,##0"):
		decimals := countZeros(strings.TrimPrefix(format, "#,##0"))
		return groupThousands(strconv.FormatFloat(num, 'f', decimals, 64))
	case strings.HasPrefix(format, "0"):
		decimals := countZeros(strings.TrimPrefix(format, "0"))
		return strconv.FormatFloat(num, 'f', decimals, 64)
	default:
		return NewCellError(ErrorCodeValue, fmt.Sprintf("unsupported format %q", format))
	}
}

// countZeros counts the fractional digits in a ".00" style suffix
func countZeros(s string) int {
	if !strings.HasPrefix(s, ".") {
		return 0
	}
	return strings.Count(s[1:], "0")
}

// groupThousands inserts comma separators into the integer part
func groupThousands(s string) string {
	intPart, fracPart, hasFrac := strings.Cut(s, ".")
	neg := strings.HasPrefix(intPart, "-")
	if neg {
		intPart = intPart[1:]
	}
	var groups []string
	for len(intPart) > 3 {
		groups = append([]string{intPart[len(intPart)-3:]}, groups...)
		intPart = intPart[:len(intPart)-3]
	}
	groups = append([]string{intPart}, groups[0:]...)
	out := strings.Join(groups, ",")
	if neg {
		out = "-" + out
	}
	if hasFrac {
		out += "." + fracPart
	}
	return out
}
