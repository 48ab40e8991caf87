// Package diag defines the error taxonomy of the generation pipeline.
//
// Fatal errors (SpecValidationError, NameAllocationError) stop generation
// before anything is emitted. ConfigurationError is reported as a warning
// and never halts the pipeline.
//
// Callers branch on category with errors.Is against the sentinels, or pull
// the details out with errors.As:
//
//	plan, err := pipeline.Build(spec, opts)
//	var nameErr *diag.NameAllocationError
//	if errors.As(err, &nameErr) {
//	    fmt.Println(nameErr.Operations)
//	}
package diag

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrSpecValidation indicates the document cannot be translated as written.
	ErrSpecValidation = errors.New("spec validation error")

	// ErrNameAllocation indicates no unique tool name could be produced.
	ErrNameAllocation = errors.New("name allocation error")

	// ErrConfiguration indicates a configuration entry that was ignored.
	ErrConfiguration = errors.New("configuration error")
)

// SpecValidationError reports an inconsistency in the OpenAPI document's
// security or structure that makes generation impossible.
type SpecValidationError struct {
	// Scheme is the offending security scheme, if any
	Scheme string
	// Operation is the offending operation id, if any
	Operation string
	// Reason describes the problem
	Reason string
}

func (e *SpecValidationError) Error() string {
	var b strings.Builder
	b.WriteString("spec validation error")
	if e.Operation != "" {
		fmt.Fprintf(&b, " in operation %q", e.Operation)
	}
	if e.Scheme != "" {
		fmt.Fprintf(&b, " for scheme %q", e.Scheme)
	}
	if e.Reason != "" {
		b.WriteString(": " + e.Reason)
	}
	return b.String()
}

// Is reports whether target matches this error type.
func (e *SpecValidationError) Is(target error) bool {
	return target == ErrSpecValidation
}

// NameAllocationError reports that the allocator could not find a unique,
// length-bounded name.
type NameAllocationError struct {
	// Name is the candidate that could not be placed
	Name string
	// Operations lists the operation ids competing for the name
	Operations []string
	// Reason describes why allocation gave up
	Reason string
}

func (e *NameAllocationError) Error() string {
	msg := fmt.Sprintf("name allocation error for %q", e.Name)
	if len(e.Operations) > 0 {
		msg += " (operations: " + strings.Join(e.Operations, ", ") + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is reports whether target matches this error type.
func (e *NameAllocationError) Is(target error) bool {
	return target == ErrNameAllocation
}

// ConfigurationError reports a configuration entry that had no effect, such
// as an override for an operation the document does not declare.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Key == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error for %q: %s", e.Key, e.Reason)
}

// Is reports whether target matches this error type.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// Warnings collects non-fatal diagnostics in the order they were found.
type Warnings []error

// Add appends err when it is non-nil.
func (w *Warnings) Add(err error) {
	if err != nil {
		*w = append(*w, err)
	}
}

// Strings renders every warning as text.
func (w Warnings) Strings() []string {
	out := make([]string, 0, len(w))
	for _, err := range w {
		out = append(out, err.Error())
	}
	return out
}
