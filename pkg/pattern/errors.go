package pattern

import "errors"

var (
	// ErrInvalidDirective indicates a directive body that does not compile as a regular expression.
	ErrInvalidDirective = errors.New("invalid directive")

	// ErrGroupOutOfRange indicates a directive selecting a capture group its regex does not define.
	ErrGroupOutOfRange = errors.New("capture group out of range")

	// ErrTooManyExpansions indicates a declaration that keeps producing new directives.
	ErrTooManyExpansions = errors.New("too many directive expansions")
)
