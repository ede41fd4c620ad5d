package contract

import "fmt"

// ParseError reports a document that is not syntactically valid JSON or YAML.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse contract: %v", e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// RefError reports a $ref that cannot be resolved inside the document.
// External (file or network) references always produce a RefError.
type RefError struct {
	Ref     string
	Pointer string // where the $ref was found
	Reason  string
}

func (e *RefError) Error() string {
	return fmt.Sprintf("contract ref %q at %s: %s", e.Ref, e.Pointer, e.Reason)
}

// SchemaError reports a structurally invalid document.
type SchemaError struct {
	Pointer string
	Reason  string
}

func (e *SchemaError) Error() string {
	if e.Pointer == "" {
		return "contract schema: " + e.Reason
	}
	return fmt.Sprintf("contract schema at %s: %s", e.Pointer, e.Reason)
}

func schemaErr(ptr, format string, args ...any) *SchemaError {
	return &SchemaError{Pointer: ptr, Reason: fmt.Sprintf(format, args...)}
}
