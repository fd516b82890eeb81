package manifest

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Route binds a path to a native (non-script) handler. Script routes with the
// same path take precedence.
type Route struct {
	Path string `toml:"path"`
	// Method restricts the route to one HTTP method; empty accepts any.
	Method  string   `toml:"method"`
	Handler HSpec    `toml:"handler"`
	Tags    []string `toml:"tags"`
}

type HSpec struct {
	Type HandlerType `toml:"type"`
	// Name of a core.Register'd handler, for inproc.
	Name string `toml:"name"`
	// Module is the .wasm file, for wasm.
	Module string `toml:"module"`
}

// normalize path/method
func (r *Route) normalize() error {
	if r.Path == "" {
		return errors.New("path is required")
	}
	if !strings.HasPrefix(r.Path, "/") {
		r.Path = "/" + r.Path
	}
	if r.Path != "/" {
		r.Path = path.Clean(r.Path)
	}
	r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
	r.Handler.Type = HandlerType(strings.ToLower(strings.TrimSpace(string(r.Handler.Type))))
	return nil
}

// validate fields that are independent of global state.
func (r *Route) validate() error {
	switch r.Handler.Type {
	case HandlerInproc:
		if strings.TrimSpace(r.Handler.Name) == "" {
			return errors.New("handler.name required for inproc")
		}
	case HandlerWasm:
		if strings.TrimSpace(r.Handler.Module) == "" {
			return errors.New("handler.module required for wasm")
		}
	default:
		return fmt.Errorf("unknown handler type %q", r.Handler.Type)
	}
	return nil
}
