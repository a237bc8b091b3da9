package retention

import "fmt"

// MissingValueError is returned when a flag that takes a value is the last token.
type MissingValueError struct {
	Flag string
}

func (e *MissingValueError) Error() string {
	return fmt.Sprintf("missing value for flag %s", e.Flag)
}

// InvalidValueError is returned when a value cannot be coerced to its field's type.
type InvalidValueError struct {
	Field string
	Value string
	Err   error
}

func (e *InvalidValueError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid value %q: %v", e.Value, e.Err)
	}
	return fmt.Sprintf("invalid value %q for %s: %v", e.Value, e.Field, e.Err)
}

func (e *InvalidValueError) Unwrap() error {
	return e.Err
}

// DocumentParseError is returned when a policy file is not valid TOML.
type DocumentParseError struct {
	Path   string
	Line   int
	Column int
	Err    error
}

func (e *DocumentParseError) Error() string {
	src := e.Path
	if src == "" {
		src = "document"
	}
	if e.Line > 0 {
		return fmt.Sprintf("parsing %s at line %d, column %d: %v", src, e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("parsing %s: %v", src, e.Err)
}

func (e *DocumentParseError) Unwrap() error {
	return e.Err
}
