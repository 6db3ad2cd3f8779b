// Package apperr holds the error taxonomy shared by the settlement engine and
// its transport: field validation, dangling references, failing dependencies
// and detected inconsistencies.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ValidationError carries per-field messages. It is recoverable locally.
type ValidationError struct {
	Fields map[string]string
}

// NewValidation builds a ValidationError with a single field message.
func NewValidation(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ReferenceError reports ids in a selection that no longer exist.
type ReferenceError struct {
	Kind    string
	Missing []string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, strings.Join(e.Missing, ", "))
}

// DependencyError wraps a failure of the store or the notification relay.
// The operation that produced it can be retried.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// Dependency wraps err as a DependencyError unless it already is a taxonomy
// error, in which case it is returned as is.
func Dependency(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		ve *ValidationError
		re *ReferenceError
		de *DependencyError
		ie *Inconsistency
	)
	if errors.As(err, &ve) || errors.As(err, &re) || errors.As(err, &de) || errors.As(err, &ie) {
		return err
	}
	return &DependencyError{Op: op, Err: err}
}

// Inconsistency reports a multi-record write that failed halfway and could not
// be rolled back. Leftover names the records that still need repair.
type Inconsistency struct {
	Op       string
	Leftover []string
	Err      error
}

func (e *Inconsistency) Error() string {
	return fmt.Sprintf("%s left inconsistent records [%s]: %v", e.Op, strings.Join(e.Leftover, ", "), e.Err)
}

func (e *Inconsistency) Unwrap() error { return e.Err }

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsReference reports whether err is or wraps a ReferenceError.
func IsReference(err error) bool {
	var re *ReferenceError
	return errors.As(err, &re)
}

// IsDependency reports whether err is or wraps a DependencyError.
func IsDependency(err error) bool {
	var de *DependencyError
	return errors.As(err, &de)
}

// IsInconsistency reports whether err is or wraps an Inconsistency.
func IsInconsistency(err error) bool {
	var ie *Inconsistency
	return errors.As(err, &ie)
}
