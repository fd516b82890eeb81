package core

import "fmt"

// ErrRouteNotFound is returned when no handler is bound to a path.
var ErrRouteNotFound = errorString("route not found")

type errorString string

func (e errorString) Error() string { return string(e) }

// EvalError wraps a failure raised while a handler was running.
type EvalError struct {
	Path string
	Err  error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("handler %q: %v", e.Path, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

// ContractError reports a handler result that is not shaped like a Response.
// Field is empty when the result itself was not a table/object.
type ContractError struct {
	Field    string
	Observed string
}

func (e *ContractError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("handler result: expected table, got %s", e.Observed)
	}
	want := "string"
	if e.Field == "code" {
		want = "integer"
	}
	return fmt.Sprintf("handler result: field %q expected %s, got %s", e.Field, want, e.Observed)
}

// LoadError means the route source could not be evaluated or did not
// expose a route table.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
