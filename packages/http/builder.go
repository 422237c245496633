package http

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/abdul-hamid-achik/hitclient/packages/multipart"
)

type paramEncoding int

const (
	encodeQuery paramEncoding = iota
	encodeBody
)

// methodEncodings decides where parameters go for each method. Methods not
// listed send their parameters in the body.
var methodEncodings = map[string]paramEncoding{
	http.MethodGet:    encodeQuery,
	http.MethodHead:   encodeQuery,
	http.MethodPost:   encodeBody,
	http.MethodPut:    encodeBody,
	http.MethodDelete: encodeBody,
	http.MethodPatch:  encodeBody,
}

// multipartMethods are the methods that may carry a multipart body.
var multipartMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
	http.MethodPatch:  true,
}

func encodingFor(method string) paramEncoding {
	if enc, ok := methodEncodings[method]; ok {
		return enc
	}
	return encodeBody
}

// NewRequest builds a request for path relative to the base URL. GET and HEAD
// carry params in the query string; every other method sends them as a
// form-encoded body.
func (c *Client) NewRequest(method, path string, params Params) (*Request, error) {
	return c.NewRequestWithHeaders(method, path, params, nil)
}

// NewRequestWithHeaders is NewRequest with request-specific headers that
// override the client defaults.
func (c *Client) NewRequestWithHeaders(method, path string, params Params, header http.Header) (*Request, error) {
	req, err := c.newRequest(method, path, header)
	if err != nil {
		return nil, err
	}

	enc := c.StringEncoding()
	encoded, err := params.encode(enc)
	if err != nil {
		return nil, invalidArgument("encoding params: %v", err)
	}

	switch encodingFor(req.Method) {
	case encodeQuery:
		if encoded != "" {
			if req.URL.RawQuery != "" {
				req.URL.RawQuery += "&" + encoded
			} else {
				req.URL.RawQuery = encoded
			}
		}
	case encodeBody:
		if req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset="+enc.Name())
		}
		if encoded != "" {
			req.Body = []byte(encoded)
		}
	}

	return req, nil
}

// NewMultipartRequest builds a multipart/form-data request. Params are added
// first as form fields in sorted key order, then build appends the caller's
// parts. An error from build is returned as is.
func (c *Client) NewMultipartRequest(method, path string, params Params, build func(*multipart.FormData) error) (*Request, error) {
	if !multipartMethods[strings.ToUpper(method)] {
		return nil, invalidArgument("multipart requests must use POST, PUT, DELETE or PATCH, not %q", method)
	}

	req, err := c.newRequest(method, path, nil)
	if err != nil {
		return nil, err
	}

	enc := c.StringEncoding()
	form := multipart.New(enc)
	for _, k := range params.Keys() {
		value, err := enc.Encode(params[k])
		if err != nil {
			return nil, invalidArgument("encoding param %q: %v", k, err)
		}
		if err := form.AppendFormField(k, value); err != nil {
			return nil, err
		}
	}

	if build != nil {
		if err := build(form); err != nil {
			return nil, err
		}
	}

	body, contentType, err := form.Finalize()
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Body = body

	return req, nil
}

// newRequest resolves path and captures the header snapshot.
func (c *Client) newRequest(method, path string, header http.Header) (*Request, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return nil, invalidArgument("method is required")
	}

	u, err := c.resolve(path)
	if err != nil {
		return nil, err
	}

	h := c.DefaultHeaders()
	for k, values := range header {
		h.Del(k)
		for _, v := range values {
			h.Add(k, v)
		}
	}

	return &Request{
		Method: method,
		URL:    u,
		Header: h,
	}, nil
}

// resolve turns path into an absolute URL. Absolute paths are used as given;
// anything else is resolved against the base URL.
func (c *Client) resolve(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, invalidArgument("invalid path %q: %v", path, err)
	}
	if ref.IsAbs() {
		if ref.Host == "" {
			return nil, invalidArgument("URL must have a host: %s", path)
		}
		return ref, nil
	}
	return c.baseURL.ResolveReference(ref), nil
}
