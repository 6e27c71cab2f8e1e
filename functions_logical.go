package forge

func init() {
	register("IF", &fnSpec{fn: fnIf, minArgs: 2, maxArgs: 3})
	register("AND", &fnSpec{fn: fnAnd, minArgs: 1, maxArgs: -1})
	register("OR", &fnSpec{fn: fnOr, minArgs: 1, maxArgs: -1})
	register("NOT", &fnSpec{fn: fnNot, minArgs: 1, maxArgs: 1})
	register("XOR", &fnSpec{fn: fnXor, minArgs: 1, maxArgs: -1})
	register("IFERROR", &fnSpec{fn: fnIfError, minArgs: 2, maxArgs: 2})
	register("ISERROR", &fnSpec{fn: fnIsError, minArgs: 1, maxArgs: 1})
	register("ISNUMBER", &fnSpec{fn: fnIsNumber, minArgs: 1, maxArgs: 1})
	register("ISTEXT", &fnSpec{fn: fnIsText, minArgs: 1, maxArgs: 1})
	register("ISBLANK", &fnSpec{fn: fnIsBlank, minArgs: 1, maxArgs: 1})
}

func fnIf(args []Value) Value {
	cond := singleValue(args[0])
	if err := checkForError(cond); err != nil {
		return err
	}
	if isTruthy(cond) {
		return singleValue(args[1])
	}
	if len(args) > 2 {
		return singleValue(args[2])
	}
	return false
}

func fnAnd(args []Value) Value {
	for _, arg := range args {
		for _, v := range collectValues(arg) {
			if err := checkForError(v); err != nil {
				return err
			}
			if !isTruthy(v) {
				return false
			}
		}
	}
	return true
}

func fnOr(args []Value) Value {
	for _, arg := range args {
		for _, v := range collectValues(arg) {
			if err := checkForError(v); err != nil {
				return err
			}
			if isTruthy(v) {
				return true
			}
		}
	}
	return false
}

func fnNot(args []Value) Value {
	v := singleValue(args[0])
	if err := checkForError(v); err != nil {
		return err
	}
	return !isTruthy(v)
}

func fnXor(args []Value) Value {
	odd := false
	for _, arg := range args {
		for _, v := range collectValues(arg) {
			if err := checkForError(v); err != nil {
				return err
			}
			if isTruthy(v) {
				odd = !odd
			}
		}
	}
	return odd
}

// IFERROR(value, fallback) swallows an error value, the one deliberate
// break in error propagation
func fnIfError(args []Value) Value {
	v := singleValue(args[0])
	if checkForError(v) != nil {
		return singleValue(args[1])
	}
	return v
}

func fnIsError(args []Value) Value {
	return checkForError(singleValue(args[0])) != nil
}

func fnIsNumber(args []Value) Value {
	_, ok := singleValue(args[0]).(float64)
	return ok
}

func fnIsText(args []Value) Value {
	_, ok := singleValue(args[0]).(string)
	return ok
}

func fnIsBlank(args []Value) Value {
	return singleValue(args[0]) == nil
}
