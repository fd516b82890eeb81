package core

// Request is the neutral view of one HTTP request handed to a Handler.
// URL is the raw request URI (escaped path plus unparsed query); Path is the
// decoded path used for route lookup.
type Request struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Path    string            `json:"path"`
	Query   string            `json:"query"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// Response is what a handler produces.
type Response struct {
	Code int    `json:"code"`
	Body string `json:"body"`
}
