package cellstorage

// Value is the calculated content of a cell.
// types:
//   - float64: numeric values
//   - string: text values
//   - bool: boolean values (TRUE/FALSE)
//   - nil: empty cells
//   - *CellError: error values (#DIV/0!, #VALUE!, etc.)
type Value any

// ErrorCode represents standard spreadsheet error codes following
// Excel conventions
type ErrorCode uint8

const (
	ErrorCodeNull  ErrorCode = 1 // #NULL! - no cells in common between ranges
	ErrorCodeDiv0  ErrorCode = 2 // #DIV/0! - division by zero
	ErrorCodeValue ErrorCode = 3 // #VALUE! - wrong type of argument or operand
	ErrorCodeRef   ErrorCode = 4 // #REF! - invalid cell reference
	ErrorCodeName  ErrorCode = 5 // #NAME? - unrecognized function name
	ErrorCodeNum   ErrorCode = 6 // #NUM! - number too large or small to be represented
	ErrorCodeNA    ErrorCode = 7 // #N/A - value not available
	ErrorCodeOther ErrorCode = 8 // #ERROR! - all other errors
)

// ErrorMapper maps error code numbers to their string representations
var ErrorMapper = map[ErrorCode]string{
	ErrorCodeNull:  "#NULL!",
	ErrorCodeDiv0:  "#DIV/0!",
	ErrorCodeValue: "#VALUE!",
	ErrorCodeRef:   "#REF!",
	ErrorCodeName:  "#NAME?",
	ErrorCodeNum:   "#NUM!",
	ErrorCodeNA:    "#N/A",
	ErrorCodeOther: "#ERROR!",
}

// ParseErrorCode returns the code of an error literal such as "#DIV/0!"
func ParseErrorCode(s string) (ErrorCode, bool) {
	for code, text := range ErrorMapper {
		if text == s {
			return code, true
		}
	}
	return 0, false
}

// CellError is an error value held by a cell
type CellError struct {
	ErrorCode ErrorCode
	Message   string
}

func (e *CellError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return ErrorMapper[e.ErrorCode]
}

func NewCellError(code ErrorCode, message string) *CellError {
	if message == "" {
		message = ErrorMapper[code]
	}
	return &CellError{
		ErrorCode: code,
		Message:   message,
	}
}

// ValueType classifies a Value for callers that switch on it
type ValueType uint8

const (
	ValueTypeEmpty   ValueType = 0
	ValueTypeNumber  ValueType = 1
	ValueTypeString  ValueType = 2
	ValueTypeBoolean ValueType = 3
	ValueTypeError   ValueType = 4
)

// TypeOf returns the type of v. unknown dynamic types count as empty.
func TypeOf(v Value) ValueType {
	switch v.(type) {
	case float64:
		return ValueTypeNumber
	case string:
		return ValueTypeString
	case bool:
		return ValueTypeBoolean
	case *CellError:
		return ValueTypeError
	default:
		return ValueTypeEmpty
	}
}

// NormalizeValue converts integer numbers to float64 and unknown types to
// nil, so that every stored value is one of the documented types
func NormalizeValue(v Value) Value {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case float64, string, bool, *CellError:
		return v
	default:
		return nil
	}
}

// IsEmptyValue reports whether v is the empty value
func IsEmptyValue(v Value) bool {
	return TypeOf(v) == ValueTypeEmpty
}

// Formula is the opaque expression text of a formula cell, including the
// leading "=". the empty string means no formula.
type Formula string

func (f Formula) IsEmpty() bool { return f == "" }
