package planner

import (
	"fmt"

	"github.com/MrThearMan/undine-sub001/internal/schema"
)

// UnknownFieldError reports a filter, order, or selection naming a field
// the entity does not declare.
type UnknownFieldError struct {
	Entity string
	Field  string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("entity %q has no field %q", e.Entity, e.Field)
}

// TypeMismatchError reports a filter value incompatible with the declared
// field type, or an operator applied to a type that does not support it.
type TypeMismatchError struct {
	Entity   string
	Field    string
	Expected schema.FieldType
	Detail   string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("field %s.%s (%s): %s", e.Entity, e.Field, e.Expected, e.Detail)
}

// PaginationConflictError reports mutually exclusive page arguments.
type PaginationConflictError struct {
	Reason string
}

func (e *PaginationConflictError) Error() string {
	return "conflicting pagination arguments: " + e.Reason
}

// InvalidCursorError reports a cursor that failed decoding or did not
// match the query it was presented to. Arg names the offending argument.
type InvalidCursorError struct {
	Arg string
	Err error
}

func (e *InvalidCursorError) Error() string {
	return fmt.Sprintf("invalid %s cursor: %v", e.Arg, e.Err)
}

func (e *InvalidCursorError) Unwrap() error { return e.Err }

// PageSizeExceededError reports a requested page size above the
// configured ceiling. The request is rejected outright, never clamped.
type PageSizeExceededError struct {
	Requested int
	Max       int
}

func (e *PageSizeExceededError) Error() string {
	return fmt.Sprintf("requested page size %d exceeds maximum %d", e.Requested, e.Max)
}

// CyclicSelectionError reports a requested tree that repeats the same
// entity with identical arguments down one chain.
type CyclicSelectionError struct {
	Path string
}

func (e *CyclicSelectionError) Error() string {
	return fmt.Sprintf("cyclic selection at %q", e.Path)
}

// DepthExceededError reports a requested tree nested deeper than the
// configured maximum.
type DepthExceededError struct {
	Depth int
	Max   int
}

func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("requested tree depth %d exceeds maximum %d", e.Depth, e.Max)
}

// PlanError annotates a planning failure with the requested-tree path it
// occurred at.
type PlanError struct {
	Path string
	Err  error
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *PlanError) Unwrap() error { return e.Err }

// planErr wraps err with the node path unless it is already annotated.
func planErr(path string, err error) error {
	if _, ok := err.(*PlanError); ok {
		return err
	}
	return &PlanError{Path: path, Err: err}
}
