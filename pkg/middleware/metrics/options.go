package metrics

import (
	"net/http"
	"strings"
	"sync"
)

// Unmatched is the uri label used for 404s so scanners can't blow up label
// cardinality.
const Unmatched = "(unmatched)"

var (
	skipMu    sync.RWMutex
	skipPaths = map[string]struct{}{"/metrics": {}}

	normMu         sync.RWMutex
	pathNormalizer = defaultNormalizer
)

func defaultNormalizer(r *http.Request, status int) string {
	if status == http.StatusNotFound {
		return Unmatched
	}
	return r.URL.Path
}

// AddMetricsSkipPaths lets callers extend the skip list (default keeps only "/metrics").
func AddMetricsSkipPaths(paths ...string) {
	skipMu.Lock()
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p != "" {
			skipPaths[p] = struct{}{}
		}
	}
	skipMu.Unlock()
}

// SetPathNormalizer replaces how the uri label is derived. nil restores the
// default (path as-is, 404s collapsed to Unmatched).
func SetPathNormalizer(fn func(r *http.Request, status int) string) {
	if fn == nil {
		fn = defaultNormalizer
	}
	normMu.Lock()
	pathNormalizer = fn
	normMu.Unlock()
}

func isSkipPath(r *http.Request) bool {
	p := r.URL.Path
	skipMu.RLock()
	_, ok := skipPaths[p]
	skipMu.RUnlock()
	return ok
}

func normalizePath(r *http.Request, status int) string {
	normMu.RLock()
	fn := pathNormalizer
	normMu.RUnlock()
	return fn(r, status)
}
