package logger

import (
	"net/http"
	"strings"
)

const maxLoggedBody = 1 << 16 // 64 KiB

// bodyAllowlist holds the paths whose request bodies may be logged. It is
// fixed at construction.
type bodyAllowlist map[string]struct{}

func newBodyAllowlist(paths []string) bodyAllowlist {
	out := make(bodyAllowlist, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p != "" {
			out[p] = struct{}{}
		}
	}
	return out
}

// wants reports whether r is a candidate before its body is read.
func (a bodyAllowlist) wants(r *http.Request) bool {
	if len(a) == 0 {
		return false
	}
	if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
		return false
	}
	if r.ContentLength > maxLoggedBody {
		return false
	}
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "application/json") && !strings.HasPrefix(ct, "text/") {
		return false
	}
	_, ok := a[r.URL.Path]
	return ok
}
