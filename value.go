package forge

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Value represents basic model value types.
// types:
//   - float64: numeric values and date serials
//   - string: text values
//   - bool: boolean values (TRUE/FALSE)
//   - nil: empty cells
//   - *CellError: error values (#DIV/0!, #VALUE!, etc.)
type Value any

// ValueType represents numeric constants for column element types
type ValueType uint8

const (
	TypeEmpty   ValueType = 0
	TypeNumber  ValueType = 1
	TypeText    ValueType = 2
	TypeDate    ValueType = 3
	TypeBoolean ValueType = 4
	TypeError   ValueType = 5
)

func (t ValueType) String() string {
	switch t {
	case TypeNumber:
		return "Number"
	case TypeText:
		return "Text"
	case TypeDate:
		return "Date"
	case TypeBoolean:
		return "Boolean"
	case TypeError:
		return "Error"
	default:
		return "Empty"
	}
}

// ErrorCode represents standard spreadsheet error codes following
// Excel conventions
type ErrorCode uint8

const (
	ErrorCodeDiv0  ErrorCode = 1 // #DIV/0! - division by zero
	ErrorCodeValue ErrorCode = 2 // #VALUE! - wrong type of argument or operand
	ErrorCodeRef   ErrorCode = 3 // #REF! - invalid reference
	ErrorCodeName  ErrorCode = 4 // #NAME? - unrecognized function name
	ErrorCodeNum   ErrorCode = 5 // #NUM! - number out of domain or no convergence
	ErrorCodeNA    ErrorCode = 6 // #N/A - value not available to the function
)

// ErrorMapper maps error code numbers to their string representations
var ErrorMapper = map[ErrorCode]string{
	ErrorCodeDiv0:  "#DIV/0!",
	ErrorCodeValue: "#VALUE!",
	ErrorCodeRef:   "#REF!",
	ErrorCodeName:  "#NAME?",
	ErrorCodeNum:   "#NUM!",
	ErrorCodeNA:    "#N/A",
}

// CellError preserves the error code for display in cells. it travels as a
// value: a formula reading an error cell evaluates to that same error.
type CellError struct {
	Code    ErrorCode
	Message string
}

func (e *CellError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return ErrorMapper[e.Code]
}

func NewCellError(code ErrorCode, message string) *CellError {
	if message == "" {
		message = ErrorMapper[code]
	}
	return &CellError{
		Code:    code,
		Message: message,
	}
}

// checkForError returns the error if value is a *CellError, nil otherwise
func checkForError(value Value) *CellError {
	if err, ok := value.(*CellError); ok {
		return err
	}
	return nil
}

// TypedArray is a homogeneous ordered sequence of values. Type fixes the
// element type; individual computed cells may still hold a *CellError.
type TypedArray struct {
	Type   ValueType
	Values []Value
}

func (a *TypedArray) Len() int {
	return len(a.Values)
}

// NewTypedArray builds an array from raw values, inferring the type from
// the first element and rejecting mixed types.
func NewTypedArray(values []Value) (*TypedArray, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("array cannot be empty")
	}
	elemType := typeOf(values[0])
	if elemType == TypeEmpty {
		return nil, fmt.Errorf("array cannot start with null")
	}
	for i, v := range values {
		t := typeOf(v)
		if t == TypeError {
			continue
		}
		if t == TypeEmpty {
			return nil, fmt.Errorf("row %d: null values not allowed, use 0 or remove the row", i)
		}
		if t != elemType {
			return nil, fmt.Errorf("row %d: expected %s, found %s", i, elemType, t)
		}
	}
	return &TypedArray{Type: elemType, Values: values}, nil
}

// typeOf classifies a single value
func typeOf(v Value) ValueType {
	switch v.(type) {
	case float64:
		return TypeNumber
	case string:
		return TypeText
	case bool:
		return TypeBoolean
	case *CellError:
		return TypeError
	default:
		return TypeEmpty
	}
}

const epsilon = 1e-10

// excelEpoch is day serial 0 on the workbook date scale
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// dateToSerial converts a calendar day to its workbook day serial
func dateToSerial(t time.Time) float64 {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return math.Round(day.Sub(excelEpoch).Hours() / 24)
}

// serialToDate converts a workbook day serial back to a calendar day
func serialToDate(serial float64) time.Time {
	return excelEpoch.AddDate(0, 0, int(math.Round(serial)))
}

// parseDateText recognizes YYYY-MM-DD and YYYY-MM literals and returns
// the day serial
func parseDateText(s string) (float64, bool) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return dateToSerial(t), true
	}
	if t, err := time.Parse("2006-01", s); err == nil {
		return dateToSerial(t), true
	}
	return 0, false
}

// formatDateSerial renders a day serial in the canonical YYYY-MM-DD form
func formatDateSerial(serial float64) string {
	return serialToDate(serial).Format("2006-01-02")
}

// toNumber attempts to convert a value to float64. date-looking text
// coerces to its day serial, booleans to 1/0.
func toNumber(value Value) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		if serial, ok := parseDateText(v); ok {
			return serial, true
		}
		if num, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return num, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// toText converts a value to its text form
func toText(value Value) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case *CellError:
		return v.Error()
	default:
		return ""
	}
}

// isTruthy converts a value to a boolean for logical contexts
func isTruthy(value Value) bool {
	switch v := value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	default:
		return false
	}
}

// valuesEqual compares two values the way criteria and = do: numbers
// within epsilon, text case-insensitively
func valuesEqual(a, b Value) bool {
	an, aok := a.(float64)
	bn, bok := b.(float64)
	if aok && bok {
		return math.Abs(an-bn) < epsilon
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.EqualFold(as, bs)
	}
	ab, aok := a.(bool)
	bb, bok := b.(bool)
	if aok && bok {
		return ab == bb
	}
	// cross-type numeric comparison via coercion
	x, xok := toNumber(a)
	y, yok := toNumber(b)
	if xok && yok {
		return math.Abs(x-y) < epsilon
	}
	return false
}

// compareValues orders two values. returns -1, 0, or 1 and false when
// the operands are incomparable.
func compareValues(a, b Value) (int, bool) {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		if _, ok := parseDateText(as); !ok {
			c := strings.Compare(strings.ToLower(as), strings.ToLower(bs))
			return c, true
		}
	}
	x, xok := toNumber(a)
	y, yok := toNumber(b)
	if xok && yok {
		switch {
		case math.Abs(x-y) < epsilon:
			return 0, true
		case x < y:
			return -1, true
		default:
			return 1, true
		}
	}
	return 0, false
}
