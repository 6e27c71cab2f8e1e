package forge

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Fn is a built-in function implementation. arguments arrive as scalar
// values or *TypedArray; the result is a scalar value, a *TypedArray,
// or a *CellError.
type Fn func(args []Value) Value

// fnSpec describes one registered function
type fnSpec struct {
	fn        Fn
	aggregate bool // collapses array arguments into a scalar result
	minArgs   int
	maxArgs   int // -1 for variadic
}

// functions is the single process-wide registry. it is populated by the
// category init functions below and never mutated afterwards, so it is
// safe to share across concurrent evaluations without locking.
var functions = make(map[string]*fnSpec)

func register(name string, spec *fnSpec) {
	if _, exists := functions[name]; exists {
		panic("duplicate function registration: " + name)
	}
	functions[name] = spec
}

// callFunction dispatches a call by upper-case name
func callFunction(name string, args []Value) Value {
	spec, ok := functions[name]
	if !ok {
		return NewCellError(ErrorCodeName, fmt.Sprintf("unknown function: %s", name))
	}
	if len(args) < spec.minArgs {
		return NewCellError(ErrorCodeNA, fmt.Sprintf("%s requires at least %d arguments", name, spec.minArgs))
	}
	if spec.maxArgs >= 0 && len(args) > spec.maxArgs {
		return NewCellError(ErrorCodeNA, fmt.Sprintf("%s accepts at most %d arguments", name, spec.maxArgs))
	}
	return spec.fn(args)
}

// isAggregateFunction reports whether a function collapses arrays to a
// scalar, used by shape inference
func isAggregateFunction(name string) bool {
	spec, ok := functions[name]
	return ok && spec.aggregate
}

// argument helpers shared by the category files

// collectValues flattens an argument into its element values
func collectValues(arg Value) []Value {
	if arr, ok := arg.(*TypedArray); ok {
		return arr.Values
	}
	return []Value{arg}
}

// collectNumbers flattens arguments into numeric values, skipping
// non-numeric cells, and propagates the first error cell found
func collectNumbers(args []Value) ([]float64, *CellError) {
	var nums []float64
	for _, arg := range args {
		for _, v := range collectValues(arg) {
			if err := checkForError(v); err != nil {
				return nil, err
			}
			if num, ok := v.(float64); ok && !math.IsNaN(num) {
				nums = append(nums, num)
			}
		}
	}
	return nums, nil
}

// argNumber coerces a scalar argument to a number
func argNumber(arg Value) (float64, *CellError) {
	if err := checkForError(arg); err != nil {
		return 0, err
	}
	if arr, ok := arg.(*TypedArray); ok {
		if arr.Len() == 1 {
			return argNumber(arr.Values[0])
		}
		return 0, NewCellError(ErrorCodeValue, "expected a single value, got an array")
	}
	num, ok := toNumber(arg)
	if !ok {
		return 0, NewCellError(ErrorCodeValue, fmt.Sprintf("expected a number, got %q", toText(arg)))
	}
	return num, nil
}

// argText coerces a scalar argument to text
func argText(arg Value) (string, *CellError) {
	if err := checkForError(arg); err != nil {
		return "", err
	}
	if arr, ok := arg.(*TypedArray); ok {
		if arr.Len() == 1 {
			return argText(arr.Values[0])
		}
		return "", NewCellError(ErrorCodeValue, "expected a single value, got an array")
	}
	return toText(arg), nil
}

// argInt coerces a scalar argument to an integer, truncating
func argInt(arg Value) (int, *CellError) {
	num, err := argNumber(arg)
	if err != nil {
		return 0, err
	}
	return int(num), nil
}

// criteria is a compiled criteria string for the conditional
// aggregation family: an optional relational prefix, a numeric or text
// comparand, and * / ? wildcards for text equality
type criteria struct {
	op      string // one of >= <= <> > < = (defaults to =)
	num     float64
	isNum   bool
	text    string
	pattern *regexp.Regexp // non-nil when text holds wildcards
}

// relational prefixes, longest first so >= wins over >
var criteriaOps = []string{">=", "<=", "<>", "!=", ">", "<", "="}

// parseCriteria compiles a criteria value. non-string criteria compare
// for plain equality.
func parseCriteria(v Value) (*criteria, *CellError) {
	if err := checkForError(v); err != nil {
		return nil, err
	}

	s, isText := v.(string)
	if !isText {
		if num, ok := toNumber(v); ok {
			return &criteria{op: "=", num: num, isNum: true}, nil
		}
		return &criteria{op: "=", text: toText(v)}, nil
	}

	op := "="
	rest := s
	for _, candidate := range criteriaOps {
		if strings.HasPrefix(s, candidate) {
			op = candidate
			rest = s[len(candidate):]
			break
		}
	}
	if op == "!=" {
		op = "<>"
	}
	rest = strings.TrimSpace(rest)

	if err := checkCriteriaRemainder(op, rest, s); err != nil {
		return nil, NewCellError(ErrorCodeValue, err.Message)
	}

	c := &criteria{op: op, text: rest}
	if num, ok := toNumber(rest); ok && rest != "" {
		c.num = num
		c.isNum = true
	}
	if op == "=" && strings.ContainsAny(rest, "*?") {
		c.pattern = wildcardPattern(rest)
	}
	return c, nil
}

// checkCriteriaRemainder rejects malformed criteria such as ">>5" or a
// bare operator with nothing to compare against
func checkCriteriaRemainder(op, rest, full string) *ModelError {
	if op == "=" {
		return nil
	}
	if rest == "" {
		return NewModelError(KindSyntax, fmt.Sprintf("criteria %q has no comparand", full))
	}
	if strings.ContainsAny(rest[:1], "<>=!") {
		return NewModelError(KindSyntax, fmt.Sprintf("criteria %q has a malformed relational prefix", full))
	}
	return nil
}

// validateCriteriaText is the structural counterpart of parseCriteria,
// applied to literal criteria arguments during validation
func validateCriteriaText(s string) *ModelError {
	op := "="
	rest := s
	for _, candidate := range criteriaOps {
		if strings.HasPrefix(s, candidate) {
			op = candidate
			rest = strings.TrimSpace(s[len(candidate):])
			break
		}
	}
	if op == "!=" {
		op = "<>"
	}
	return checkCriteriaRemainder(op, rest, s)
}

// wildcardPattern translates * and ? into an anchored case-insensitive
// regular expression
func wildcardPattern(s string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?i)^")
	for _, ch := range s {
		switch ch {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

// matches applies the compiled criteria to a cell value
func (c *criteria) matches(v Value) bool {
	if checkForError(v) != nil {
		return false
	}

	if c.pattern != nil {
		return c.pattern.MatchString(toText(v))
	}

	if c.op == "=" {
		if c.isNum {
			if num, ok := toNumber(v); ok {
				return math.Abs(num-c.num) < epsilon
			}
			return false
		}
		return strings.EqualFold(toText(v), c.text)
	}

	// relational comparison
	if c.isNum {
		num, ok := toNumber(v)
		if !ok {
			return false
		}
		switch c.op {
		case ">":
			return num > c.num+epsilon
		case "<":
			return num < c.num-epsilon
		case ">=":
			return num > c.num-epsilon
		case "<=":
			return num < c.num+epsilon
		case "<>":
			return math.Abs(num-c.num) >= epsilon
		}
		return false
	}

	// text relational comparison
	cmp := strings.Compare(strings.ToLower(toText(v)), strings.ToLower(c.text))
	switch c.op {
	case ">":
		return cmp > 0
	case "<":
		return cmp < 0
	case ">=":
		return cmp >= 0
	case "<=":
		return cmp <= 0
	case "<>":
		return cmp != 0
	}
	return false
}

// formatValue renders a value for audit output and the Scalars sheet
func formatValue(v Value) string {
	switch val := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return toText(v)
	}
}
