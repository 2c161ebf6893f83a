package malariago

import "fmt"

const (
	// IntKeyNotFoundError is the message for "Integer key not found" errors
	IntKeyNotFoundError = "key %d not found"

	// StringKeyNotFoundError is the message printed when a named registry
	// entry does not exist
	StringKeyNotFoundError = "no %s with this name: %s"

	InvalidFloatParameterError  = "invalid %s %f, %s"
	InvalidIntParameterError    = "invalid %s %d, %s"
	InvalidStringParameterError = "invalid %s %s, %s"

	FileParsingError = "parse error in line %d: %s"
)

const (
	UnequalFloatParameterError  = "expected %s %f, instead got %f"
	UnequalIntParameterError    = "expected %s %d, instead got %d"
	UnequalStringParameterError = "expected %s %s, instead got %s"
	UnexpectedErrorWhileError   = "encountered error while %s: %s"
	ExpectedErrorWhileError     = "expected an error while %s, instead got none"
)

// UnimplementedError marks a scenario request for a feature that exists
// in the model family but has no implementation here. Scenarios hitting
// it are rejected at load.
type UnimplementedError struct {
	Feature string
}

func (e *UnimplementedError) Error() string {
	return fmt.Sprintf("unimplemented: %s", e.Feature)
}

// Unimplemented creates an UnimplementedError for the named feature.
func Unimplemented(feature string) error {
	return &UnimplementedError{Feature: feature}
}

// InvariantError reports a broken internal invariant. These are bugs:
// callers are expected to abort.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string { return "invariant violation: " + e.Msg }

func invariantf(format string, args ...interface{}) error {
	return &InvariantError{Msg: fmt.Sprintf(format, args...)}
}
