package model

// Request is one outbound call to an external integration. Endpoint is
// relative to the integration's base URL.
type Request struct {
	Method   string
	Endpoint string
	Headers  map[string]string
	Body     []byte
}

// Response is the raw transport result of a request.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// RetryAfterHeader returns the Retry-After header value, if any.
func (r *Response) RetryAfterHeader() string {
	if r == nil {
		return ""
	}
	return r.Headers["Retry-After"]
}
