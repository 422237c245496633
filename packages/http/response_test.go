package http

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResponse_IsSuccess(t *testing.T) {
	tests := []struct {
		statusCode int
		expected   bool
	}{
		{200, true},
		{201, true},
		{204, true},
		{299, true},
		{300, false},
		{400, false},
		{404, false},
		{500, false},
	}

	for _, tt := range tests {
		resp := &Response{StatusCode: tt.statusCode}
		assert.Equal(t, tt.expected, resp.IsSuccess(), "StatusCode: %d", tt.statusCode)
	}
}

func TestResponse_StatusClasses(t *testing.T) {
	assert.True(t, (&Response{StatusCode: 302}).IsRedirect())
	assert.True(t, (&Response{StatusCode: 404}).IsClientError())
	assert.True(t, (&Response{StatusCode: 503}).IsServerError())
	assert.False(t, (&Response{StatusCode: 200}).IsServerError())
}

func TestResponse_IsJSON(t *testing.T) {
	tests := []struct {
		contentType string
		expected    bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"application/problem+json", true},
		{"text/html", false},
		{"text/plain", false},
		{"", false},
	}

	for _, tt := range tests {
		resp := &Response{Header: http.Header{"Content-Type": {tt.contentType}}}
		assert.Equal(t, tt.expected, resp.IsJSON(), "Content-Type: %s", tt.contentType)
	}
}

func TestResponse_Accessors(t *testing.T) {
	resp := &Response{
		Header:   http.Header{"Content-Type": {"text/plain"}},
		Body:     []byte("hello"),
		Duration: 1500 * time.Millisecond,
	}

	assert.Equal(t, "text/plain", resp.ContentType())
	assert.Equal(t, "hello", resp.BodyString())
	assert.Equal(t, int64(1500), resp.DurationMs())
}
