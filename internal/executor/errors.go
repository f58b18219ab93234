package executor

import "fmt"

// FetchExecutionError wraps a backend failure with the requested-tree
// path of the fetch node whose statement failed. Any fetch failure aborts
// the whole plan; partial results are never returned.
type FetchExecutionError struct {
	Path string
	Err  error
}

func (e *FetchExecutionError) Error() string {
	return fmt.Sprintf("fetch at %s failed: %v", e.Path, e.Err)
}

func (e *FetchExecutionError) Unwrap() error { return e.Err }
