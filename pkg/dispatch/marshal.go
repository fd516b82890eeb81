package dispatch

import (
	"errors"
	"io"
	"net/http"

	"github.com/joeydtaylor/steeze-script/pkg/core"
)

// ErrBodyTooLarge is returned by MarshalRequest when the payload exceeds the
// configured limit.
var ErrBodyTooLarge = errors.New("request body too large")

// MarshalRequest converts r into a core.Request. Repeated header names keep
// the last value; Host is included. maxBody <= 0 disables the size limit.
// Header and body bytes are passed through untouched.
func MarshalRequest(r *http.Request, maxBody int64) (core.Request, error) {
	headers := make(map[string]string, len(r.Header)+1)
	for k, vs := range r.Header {
		if len(vs) > 0 {
			headers[k] = vs[len(vs)-1]
		}
	}
	if r.Host != "" {
		headers["Host"] = r.Host
	}

	body, err := readBody(r.Body, maxBody)
	if err != nil {
		return core.Request{}, err
	}

	uri := r.RequestURI
	if uri == "" {
		uri = r.URL.RequestURI()
	}

	return core.Request{
		Method:  r.Method,
		URL:     uri,
		Path:    r.URL.Path,
		Query:   r.URL.RawQuery,
		Headers: headers,
		Body:    body,
	}, nil
}

func readBody(rc io.ReadCloser, limit int64) (string, error) {
	if rc == nil || rc == http.NoBody {
		return "", nil
	}
	defer rc.Close()

	var src io.Reader = rc
	if limit > 0 {
		src = io.LimitReader(rc, limit+1)
	}
	b, err := io.ReadAll(src)
	if err != nil {
		return "", err
	}
	if limit > 0 && int64(len(b)) > limit {
		return "", ErrBodyTooLarge
	}
	return string(b), nil
}
