// Package http provides the hitclient HTTP client.
//
// A Client keeps the settings shared by every request:
//   - a base URL that relative paths resolve against
//   - default headers, including authorization
//   - the string encoding used for form bodies and multipart text
//
// Requests are built synchronously; build errors are returned to the caller.
// Each request then runs as an Operation on the client's queue, and its outcome
// is delivered to exactly one of the success or failure continuations.
// Cancelled operations invoke neither.
//
// The network side is a Transport: a plain net/http client by default, or
// adapters for go-retryablehttp and resty.
package http
