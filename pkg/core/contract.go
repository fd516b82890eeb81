package core

import (
	"fmt"
	"math"
)

// Typed lets engine-specific values (Lua functions, userdata, ...) report
// their own type name for contract errors.
type Typed interface {
	TypeName() string
}

// DecodeResponse is the single validation step applied to whatever a handler
// returned. Anything not shaped like {code: integer, body: string} fails
// closed with a *ContractError.
func DecodeResponse(v any) (Response, error) {
	fields, ok := v.(map[string]any)
	if !ok {
		return Response{}, &ContractError{Observed: TypeName(v)}
	}

	code, ok := integral(fields["code"])
	if !ok || !validStatus(code) {
		return Response{}, &ContractError{Field: "code", Observed: describe(fields["code"])}
	}
	body, ok := fields["body"].(string)
	if !ok {
		return Response{}, &ContractError{Field: "body", Observed: TypeName(fields["body"])}
	}
	return Response{Code: code, Body: body}, nil
}

// CheckResponse applies the status range rule to an already typed Response,
// as returned by native handlers.
func CheckResponse(r Response) error {
	if !validStatus(r.Code) {
		return &ContractError{Field: "code", Observed: describe(r.Code)}
	}
	return nil
}

// net/http rejects anything outside three digits, and sends 1xx as an
// informational header followed by an implicit 200.
func validStatus(code int) bool { return code >= 200 && code <= 999 }

func integral(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

// describe adds the offending value for numbers so out-of-range status codes
// are visible in logs.
func describe(v any) string {
	switch v.(type) {
	case int, int64, float64:
		return fmt.Sprintf("number (%v)", v)
	}
	return TypeName(v)
}

// TypeName names v using script-level vocabulary.
func TypeName(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case Typed:
		return x.TypeName()
	case bool:
		return "boolean"
	case int, int64, float64:
		return "number"
	case string:
		return "string"
	case map[string]any:
		return "table"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
