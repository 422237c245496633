package http

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
)

// Request is a fully built HTTP request. Its header is a snapshot taken when
// the request was built; later changes to the client's default headers do
// not affect it.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
}

// ContentType returns the request's Content-Type header.
func (r *Request) ContentType() string {
	return r.Header.Get("Content-Type")
}

// SetHeader sets a request-specific header, replacing any value captured
// from the client defaults.
func (r *Request) SetHeader(key, value string) *Request {
	r.Header.Set(key, value)
	return r
}

// Clone returns a deep copy of r.
func (r *Request) Clone() *Request {
	u := *r.URL
	if r.URL.User != nil {
		user := *r.URL.User
		u.User = &user
	}

	var body []byte
	if r.Body != nil {
		body = bytes.Clone(r.Body)
	}

	return &Request{
		Method: r.Method,
		URL:    &u,
		Header: r.Header.Clone(),
		Body:   body,
	}
}

// toHTTP converts r into a net/http request bound to ctx.
func (r *Request) toHTTP(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, r.Method, r.URL.String(), body)
	if err != nil {
		return nil, err
	}
	httpReq.Header = r.Header.Clone()
	return httpReq, nil
}
