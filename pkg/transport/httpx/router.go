// Package httpx hides the concrete HTTP router behind a small interface.
package httpx

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Router is the routing surface the server wiring depends on.
// NewChi implements it.
type Router interface {
	Handle(method, path string, h http.Handler)
	Get(path string, h http.Handler)
	// Mount serves everything under prefix, which must end in "/".
	Mount(prefix string, h http.Handler)
	// Fallback receives every request no other route matched, for any method.
	Fallback(h http.Handler)
	Mux() http.Handler
	Use(mw ...func(http.Handler) http.Handler)
}

// chiRouter is our default Router backed by github.com/go-chi/chi.
type chiRouter struct{ r *chi.Mux }

// NewChi returns a Chi-backed Router.
func NewChi() Router { return &chiRouter{r: chi.NewRouter()} }

func (c *chiRouter) Handle(method, path string, h http.Handler) { c.r.Method(method, path, h) }
func (c *chiRouter) Get(path string, h http.Handler)            { c.r.Method(http.MethodGet, path, h) }
func (c *chiRouter) Mux() http.Handler                          { return c.r }
func (c *chiRouter) Use(mw ...func(http.Handler) http.Handler)  { c.r.Use(mw...) }

func (c *chiRouter) Mount(prefix string, h http.Handler) {
	c.r.Handle(strings.TrimSuffix(prefix, "/")+"/*", h)
}

// Fallback uses NotFound and MethodNotAllowed so unmatched paths keep exact
// matching semantics downstream.
func (c *chiRouter) Fallback(h http.Handler) {
	c.r.NotFound(h.ServeHTTP)
	c.r.MethodNotAllowed(h.ServeHTTP)
}
