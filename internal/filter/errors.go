package filter

import (
	"errors"
	"fmt"
)

// Structural errors: the filter document does not have a shape this package
// can build a tree from.
var (
	ErrInvalidStructure = errors.New("invalid filter structure")
	ErrUnknownOperator  = errors.New("unknown filter operator")
)

// Validation errors: the tree is well formed but violates a rule.
var (
	ErrMultipleIdentity = errors.New("more than one filter on _id")
	ErrIdentityUnderOr  = errors.New("_id filter not allowed inside $or")
	ErrIdentityOperator = errors.New("operator not supported on _id")
	ErrInvalidOperand   = errors.New("invalid operand for operator")
	ErrInTooLarge       = errors.New("$in/$nin operand exceeds maximum size")
	ErrAllEmpty         = errors.New("$all operand must be a non-empty array")
	ErrSizeInvalid      = errors.New("$size operand must be a non-negative integer")
	ErrExistsInvalid    = errors.New("$exists operand must be true")
	ErrTooComplex       = errors.New("filter expands to too many conjunctions")
	ErrInvalidSort      = errors.New("invalid sort clause")
	ErrSkipWithoutSort  = errors.New("skip requires a sort clause")
)

// Class separates errors raised while building the tree from errors raised
// while validating it. Neither class is retried.
type Class int

const (
	ClassStructural Class = iota
	ClassValidation
)

func (c Class) String() string {
	if c == ClassStructural {
		return "structural"
	}
	return "validation"
}

// Code is a stable, user-facing error code.
type Code string

const (
	CodeInvalidStructure  Code = "FILTER_INVALID_STRUCTURE"
	CodeUnknownOperator   Code = "FILTER_UNKNOWN_OPERATOR"
	CodeMultipleIdentity  Code = "FILTER_MULTIPLE_ID_FILTER"
	CodeIdentityUnderOr   Code = "FILTER_ID_NOT_ALLOWED_IN_OR"
	CodeIdentityOperator  Code = "FILTER_ID_OPERATOR_UNSUPPORTED"
	CodeInvalidOperand    Code = "FILTER_INVALID_OPERAND"
	CodeInTooLarge        Code = "FILTER_IN_TOO_LARGE"
	CodeAllEmpty          Code = "FILTER_ALL_EMPTY"
	CodeSizeInvalid       Code = "FILTER_SIZE_INVALID"
	CodeExistsInvalid     Code = "FILTER_EXISTS_INVALID"
	CodeTooComplex        Code = "FILTER_TOO_COMPLEX"
	CodeInvalidSort       Code = "SORT_INVALID"
	CodeSkipWithoutSort   Code = "SKIP_WITHOUT_SORT"
	codeUnclassifiedError Code = "FILTER_ERROR"
)

var sentinelCodes = map[error]Code{
	ErrInvalidStructure: CodeInvalidStructure,
	ErrUnknownOperator:  CodeUnknownOperator,
	ErrMultipleIdentity: CodeMultipleIdentity,
	ErrIdentityUnderOr:  CodeIdentityUnderOr,
	ErrIdentityOperator: CodeIdentityOperator,
	ErrInvalidOperand:   CodeInvalidOperand,
	ErrInTooLarge:       CodeInTooLarge,
	ErrAllEmpty:         CodeAllEmpty,
	ErrSizeInvalid:      CodeSizeInvalid,
	ErrExistsInvalid:    CodeExistsInvalid,
	ErrTooComplex:       CodeTooComplex,
	ErrInvalidSort:      CodeInvalidSort,
	ErrSkipWithoutSort:  CodeSkipWithoutSort,
}

// Error describes a rejected filter. Path and Operator identify the
// offending comparison when there is one.
type Error struct {
	Class    Class
	Code     Code
	Path     string
	Operator string
	Message  string
	Err      error // sentinel, for errors.Is
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Operator != "":
		return fmt.Sprintf("%s: path %q, operator %s: %s", e.Code, e.Path, e.Operator, e.Message)
	case e.Path != "":
		return fmt.Sprintf("%s: path %q: %s", e.Code, e.Path, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(class Class, err error, path, op, msgFmt string, args ...any) *Error {
	code, ok := sentinelCodes[err]
	if !ok {
		code = codeUnclassifiedError
	}
	return &Error{
		Class:    class,
		Code:     code,
		Path:     path,
		Operator: op,
		Message:  fmt.Sprintf(msgFmt, args...),
		Err:      err,
	}
}

func structuralError(err error, path, msgFmt string, args ...any) *Error {
	return newError(ClassStructural, err, path, "", msgFmt, args...)
}

func validationError(err error, path string, op Operator, msgFmt string, args ...any) *Error {
	return newError(ClassValidation, err, path, op.String(), msgFmt, args...)
}

// ruleError is a validation error that is not tied to one operator.
func ruleError(err error, path, msgFmt string, args ...any) *Error {
	return newError(ClassValidation, err, path, "", msgFmt, args...)
}

// RequestError reports a request option that conflicts with the filter or
// sort, such as skip without sort.
func RequestError(err error, msgFmt string, args ...any) *Error {
	return ruleError(err, "", msgFmt, args...)
}
