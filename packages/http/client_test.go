package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/hitclient/packages/core/config"
	"github.com/abdul-hamid-achik/hitclient/packages/decode"
	"github.com/abdul-hamid-achik/hitclient/packages/multipart"
	"github.com/abdul-hamid-achik/hitclient/packages/queue"
)

// outcome records which continuation ran and with what.
type outcome struct {
	mu       sync.Mutex
	success  int
	failure  int
	value    any
	response *Response
	err      error
}

func (o *outcome) onSuccess(_ *Operation, value any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.success++
	o.value = value
}

func (o *outcome) onFailure(_ *Operation, resp *Response, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failure++
	o.response = resp
	o.err = err
}

func (o *outcome) counts() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.success, o.failure
}

func waitOp(t *testing.T, op *Operation) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, op.Wait(ctx))
}

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	for _, baseURL := range []string{"", "   ", "api.example.com/v1", "/relative", "http://[::1"} {
		t.Run(baseURL, func(t *testing.T) {
			c, err := NewClient(baseURL)
			assert.Nil(t, c)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestNewClient_DefaultHeaders(t *testing.T) {
	t.Setenv("LANG", "de_DE.UTF-8")
	c := newTestClient(t, "https://api.example.com/v1")

	assert.Equal(t, "https://api.example.com/v1/", c.BaseURL().String())
	assert.Equal(t, "application/json", c.DefaultHeader("Accept"))
	assert.Equal(t, "gzip", c.DefaultHeader("Accept-Encoding"))
	assert.Equal(t, "de-de, en-us;q=0.8", c.DefaultHeader("Accept-Language"))
	assert.True(t, strings.HasPrefix(c.DefaultHeader("User-Agent"), "hitclient/"+Version+" ("))
	assert.Equal(t, "utf-8", c.StringEncoding().Name())
}

func TestAcceptLanguage(t *testing.T) {
	tests := []struct {
		locale string
		want   string
	}{
		{"en_US.UTF-8", "en-us"},
		{"fr_CA.UTF-8@euro", "fr-ca, en-us;q=0.8"},
		{"ja", "ja, en-us;q=0.8"},
		{"C", "en-us;q=0.8"},
		{"POSIX", "en-us;q=0.8"},
		{"", "en-us;q=0.8"},
		{"not a locale!", "en-us;q=0.8"},
	}

	for _, tt := range tests {
		t.Run(tt.locale, func(t *testing.T) {
			assert.Equal(t, tt.want, acceptLanguage(tt.locale))
		})
	}
}

func TestClient_HeaderMutation(t *testing.T) {
	c := newTestClient(t, "https://api.example.com/",
		WithDefaultHeader("X-Api-Key", "abc"),
		WithDefaultHeaders(map[string]string{"User-Agent": "custom-agent"}),
	)

	assert.Equal(t, "abc", c.DefaultHeader("x-api-key"))
	assert.Equal(t, "custom-agent", c.DefaultHeader("User-Agent"))

	c.SetDefaultHeader("X-Api-Key", "")
	assert.Empty(t, c.DefaultHeader("X-Api-Key"))
	_, present := c.DefaultHeaders()["X-Api-Key"]
	assert.False(t, present)

	c.SetDefaultHeader("X-Other", "1")
	c.RemoveDefaultHeader("x-other")
	assert.Empty(t, c.DefaultHeader("X-Other"))

	headers := c.DefaultHeaders()
	headers.Set("Accept", "mutated")
	assert.Equal(t, "application/json", c.DefaultHeader("Accept"))
}

func TestClient_Auth(t *testing.T) {
	c := newTestClient(t, "https://api.example.com/")

	c.SetBasicAuth("alice", "secret")
	assert.Equal(t, "Basic YWxpY2U6c2VjcmV0", c.DefaultHeader("Authorization"))

	c.SetTokenAuth("t0k3n")
	assert.Equal(t, "Bearer t0k3n", c.DefaultHeader("Authorization"))

	c.ClearAuth()
	assert.Empty(t, c.DefaultHeader("Authorization"))
}

func TestClient_ApplyHeaders(t *testing.T) {
	c := newTestClient(t, "https://api.example.com/", WithDefaultHeader("X-Old", "1"))

	c.ApplyHeaders(&config.Config{Headers: map[string]string{"X-New": "2", "X-Old": ""}})

	assert.Equal(t, "2", c.DefaultHeader("X-New"))
	assert.Empty(t, c.DefaultHeader("X-Old"))
}

func TestClient_GetSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/v1/users", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "Basic YWxpY2U6c2VjcmV0", r.Header.Get("Authorization"))
		jsonHandler(http.StatusOK, `{"users": [{"id": 1}]}`)(w, r)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL+"/v1/")
	c.SetBasicAuth("alice", "secret")

	var got outcome
	op, err := c.Get("users", Params{"page": "2"}, got.onSuccess, got.onFailure)
	require.NoError(t, err)
	waitOp(t, op)

	success, failure := got.counts()
	assert.Equal(t, 1, success)
	assert.Equal(t, 0, failure)
	assert.Equal(t, map[string]any{"users": []any{map[string]any{"id": float64(1)}}}, got.value)

	assert.Equal(t, queue.StateSucceeded, op.State())
	require.NotNil(t, op.Response())
	assert.Equal(t, 200, op.Response().StatusCode)
	assert.NoError(t, op.Err())
	assert.Equal(t, "GET", op.Request().Method)
}

func TestClient_PostForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded; charset=utf-8", r.Header.Get("Content-Type"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "Ada Lovelace", r.PostForm.Get("name"))
		assert.Equal(t, "a&b=c", r.PostForm.Get("note"))
		jsonHandler(http.StatusCreated, `{"id": 123}`)(w, r)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	var got outcome
	op, err := c.Post("users", Params{"name": "Ada Lovelace", "note": "a&b=c"}, got.onSuccess, got.onFailure)
	require.NoError(t, err)
	waitOp(t, op)

	success, _ := got.counts()
	assert.Equal(t, 1, success)
	assert.Equal(t, map[string]any{"id": float64(123)}, got.value)
}

func TestClient_Verbs(t *testing.T) {
	var methods sync.Map
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods.Store(r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	verbs := map[string]func(string, Params, SuccessFunc, FailureFunc) (*Operation, error){
		"GET":    c.Get,
		"HEAD":   c.Head,
		"POST":   c.Post,
		"PUT":    c.Put,
		"PATCH":  c.Patch,
		"DELETE": c.Delete,
	}

	for method, call := range verbs {
		t.Run(method, func(t *testing.T) {
			var got outcome
			op, err := call("things/1", nil, got.onSuccess, got.onFailure)
			require.NoError(t, err)
			waitOp(t, op)

			success, failure := got.counts()
			assert.Equal(t, 1, success, "empty body decodes to nil")
			assert.Equal(t, 0, failure)
			assert.Nil(t, got.value)

			path, ok := methods.Load(method)
			require.True(t, ok)
			assert.Equal(t, "/things/1", path)
		})
	}
}

func TestClient_StatusError(t *testing.T) {
	server := httptest.NewServer(jsonHandler(http.StatusNotFound, `{"error": "not found"}`))
	defer server.Close()

	c := newTestClient(t, server.URL)

	var got outcome
	op, err := c.Get("missing", nil, got.onSuccess, got.onFailure)
	require.NoError(t, err)
	waitOp(t, op)

	success, failure := got.counts()
	assert.Equal(t, 0, success)
	assert.Equal(t, 1, failure)

	var statusErr *StatusError
	require.ErrorAs(t, got.err, &statusErr)
	assert.Equal(t, 404, statusErr.StatusCode)
	require.NotNil(t, got.response)
	assert.Equal(t, `{"error": "not found"}`, got.response.BodyString())
	assert.True(t, got.response.IsClientError())
	assert.Equal(t, queue.StateFailed, op.State())
	assert.Equal(t, got.err, op.Err())
}

func TestClient_AcceptableStatusCodes(t *testing.T) {
	server := httptest.NewServer(jsonHandler(http.StatusNotFound, `{"ok": false}`))
	defer server.Close()

	c := newTestClient(t, server.URL, WithAcceptableStatusCodes(200, 404))

	var got outcome
	op, err := c.Get("missing", nil, got.onSuccess, got.onFailure)
	require.NoError(t, err)
	waitOp(t, op)

	success, _ := got.counts()
	assert.Equal(t, 1, success)
	assert.Equal(t, map[string]any{"ok": false}, got.value)
}

func TestClient_DecodeError(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantErr     error
	}{
		{"html content type", "text/html", "<p>hi</p>", decode.ErrUnacceptableContentType},
		{"missing content type", "", `{"a": 1}`, decode.ErrUnacceptableContentType},
		{"malformed json", "application/json", `{"a": `, decode.ErrInvalidJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				// Stop net/http from sniffing a content type.
				w.Header()["Content-Type"] = nil
				if tt.contentType != "" {
					w.Header().Set("Content-Type", tt.contentType)
				}
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := newTestClient(t, server.URL)

			var got outcome
			op, err := c.Get("thing", nil, got.onSuccess, got.onFailure)
			require.NoError(t, err)
			waitOp(t, op)

			success, failure := got.counts()
			assert.Equal(t, 0, success)
			assert.Equal(t, 1, failure)

			var decodeErr *DecodeError
			require.ErrorAs(t, got.err, &decodeErr)
			assert.ErrorIs(t, got.err, tt.wantErr)
			require.NotNil(t, got.response)
			assert.Equal(t, tt.body, got.response.BodyString())
		})
	}
}

func TestClient_TransportError(t *testing.T) {
	server := httptest.NewServer(jsonHandler(http.StatusOK, `{}`))
	baseURL := server.URL
	server.Close()

	c := newTestClient(t, baseURL)

	var got outcome
	op, err := c.Get("anything", nil, got.onSuccess, got.onFailure)
	require.NoError(t, err)
	waitOp(t, op)

	_, failure := got.counts()
	assert.Equal(t, 1, failure)
	assert.Nil(t, got.response)

	var transportErr *TransportError
	require.ErrorAs(t, got.err, &transportErr)
	assert.Equal(t, "GET", transportErr.Method)
	assert.Equal(t, baseURL+"/anything", transportErr.URL)
	assert.Nil(t, op.Response())
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, WithTimeout(50*time.Millisecond))

	var got outcome
	op, err := c.Get("slow", nil, got.onSuccess, got.onFailure)
	require.NoError(t, err)
	waitOp(t, op)

	var transportErr *TransportError
	require.ErrorAs(t, got.err, &transportErr)
}

func TestClient_GzipResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gzip", r.Header.Get("Accept-Encoding"))

		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		_, _ = zw.Write([]byte(`{"compressed": true}`))
		assert.NoError(t, zw.Close())

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(buf.Bytes())
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	var got outcome
	op, err := c.Get("data", nil, got.onSuccess, got.onFailure)
	require.NoError(t, err)
	waitOp(t, op)

	success, _ := got.counts()
	require.Equal(t, 1, success)
	assert.Equal(t, map[string]any{"compressed": true}, got.value)
	assert.Empty(t, op.Response().Header.Get("Content-Encoding"))
	assert.Equal(t, `{"compressed": true}`, op.Response().BodyString())
}

func TestClient_CustomDecoder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("plain text"))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, WithDecoder(decode.Text{}))

	var got outcome
	op, err := c.Get("readme", nil, got.onSuccess, got.onFailure)
	require.NoError(t, err)
	waitOp(t, op)

	assert.Equal(t, "plain text", got.value)
}

func TestClient_EnqueueMultipart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "Report", r.FormValue("title"))

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		assert.NoError(t, err)
		assert.Equal(t, "hello", string(data))
		assert.Equal(t, "notes.txt", header.Filename)

		jsonHandler(http.StatusCreated, `{"stored": true}`)(w, r)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	req, err := c.NewMultipartRequest("POST", "upload", Params{"title": "Report"}, func(f *multipart.FormData) error {
		return f.AppendPart(map[string]string{
			"Content-Disposition": `form-data; name="file"; filename="notes.txt"`,
			"Content-Type":        "text/plain",
		}, []byte("hello"))
	})
	require.NoError(t, err)

	var got outcome
	op, err := c.Enqueue(req, got.onSuccess, got.onFailure)
	require.NoError(t, err)
	waitOp(t, op)

	success, failure := got.counts()
	assert.Equal(t, 1, success)
	assert.Equal(t, 0, failure)
}

func TestClient_EnqueueNil(t *testing.T) {
	c := newTestClient(t, "https://api.example.com/")

	op, err := c.Enqueue(nil, nil, nil)
	assert.Nil(t, op)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestClient_BuildErrorEnqueuesNothing(t *testing.T) {
	c := newTestClient(t, "https://api.example.com/")

	op, err := c.Get("%zz", nil, nil, nil)
	assert.Nil(t, op)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, 0, c.Queue().Len())
}

// blockingServer holds every request to /slow until release is closed.
func blockingServer(t *testing.T) (*httptest.Server, chan struct{}, *atomic.Int32) {
	t.Helper()
	release := make(chan struct{})
	var arrived atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived.Add(1)
		if r.URL.Path == "/slow" {
			select {
			case <-release:
			case <-r.Context().Done():
				return
			}
		}
		jsonHandler(http.StatusOK, `{"path": "`+r.URL.Path+`"}`)(w, r)
	}))
	t.Cleanup(server.Close)
	return server, release, &arrived
}

func TestClient_CancelOperations(t *testing.T) {
	server, release, _ := blockingServer(t)
	c := newTestClient(t, server.URL, WithMaxConcurrent(1))

	var slow, users, postUsers outcome
	slowOp, err := c.Get("slow", nil, slow.onSuccess, slow.onFailure)
	require.NoError(t, err)
	usersOp, err := c.Get("users", nil, users.onSuccess, users.onFailure)
	require.NoError(t, err)
	postOp, err := c.Post("users", nil, postUsers.onSuccess, postUsers.onFailure)
	require.NoError(t, err)

	assert.Equal(t, 1, c.CancelOperations("GET", "users"))
	assert.Equal(t, 0, c.CancelOperations("GET", "users"), "already cancelled")
	assert.Equal(t, 0, c.CancelOperations("DELETE", "users"))

	close(release)
	waitOp(t, slowOp)
	waitOp(t, usersOp)
	waitOp(t, postOp)

	assert.Equal(t, queue.StateCancelled, usersOp.State())
	s, f := users.counts()
	assert.Zero(t, s+f, "cancelled operation runs no continuation")

	s, _ = slow.counts()
	assert.Equal(t, 1, s)
	s, _ = postUsers.counts()
	assert.Equal(t, 1, s)
}

func TestClient_CancelRunning(t *testing.T) {
	server, release, arrived := blockingServer(t)
	defer close(release)
	c := newTestClient(t, server.URL)

	var got outcome
	op, err := c.Get("slow", nil, got.onSuccess, got.onFailure)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return arrived.Load() == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.True(t, op.Cancel())
	assert.False(t, op.Cancel())
	waitOp(t, op)

	// give a late result the chance to surface
	time.Sleep(50 * time.Millisecond)
	s, f := got.counts()
	assert.Zero(t, s+f)
	assert.Equal(t, queue.StateCancelled, op.State())
	assert.Nil(t, op.Response())
}

func TestClient_ExactlyOnceContinuation(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		if n%3 == 0 {
			jsonHandler(http.StatusInternalServerError, `{"n": 0}`)(w, r)
			return
		}
		jsonHandler(http.StatusOK, `{"n": 1}`)(w, r)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, WithMaxConcurrent(8))

	const total = 60
	results := make([]outcome, total)
	ops := make([]*Operation, total)
	for i := 0; i < total; i++ {
		op, err := c.Get("items", Params{"i": string(rune('a' + i%26))}, results[i].onSuccess, results[i].onFailure)
		require.NoError(t, err)
		ops[i] = op
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Queue().Wait(ctx))

	var succeeded, failed int
	for i, op := range ops {
		s, f := results[i].counts()
		assert.Equal(t, 1, s+f, "operation %d", i)
		succeeded += s
		failed += f
		if s == 1 {
			assert.Equal(t, queue.StateSucceeded, op.State())
		} else {
			assert.Equal(t, queue.StateFailed, op.State())
		}
	}
	assert.Equal(t, total, succeeded+failed)
	assert.Equal(t, total/3, failed)
}

func TestClient_Close(t *testing.T) {
	server, _, _ := blockingServer(t)
	c, err := NewClient(server.URL)
	require.NoError(t, err)

	var got outcome
	op, err := c.Get("slow", nil, got.onSuccess, got.onFailure)
	require.NoError(t, err)

	c.Close()
	waitOp(t, op)
	assert.Equal(t, queue.StateCancelled, op.State())

	_, err = c.Get("users", nil, nil, nil)
	assert.ErrorIs(t, err, queue.ErrClosed)
}

func TestClient_SharedQueueSurvivesClose(t *testing.T) {
	q := queue.New()
	defer q.Close()

	c, err := NewClient("https://api.example.com/", WithQueue(q))
	require.NoError(t, err)
	assert.Same(t, q, c.Queue())

	c.Close()
	op := queue.NewOperation("GET", "x", func(ctx context.Context) (bool, func()) { return true, nil })
	assert.NoError(t, q.Add(op))
}

func TestNewClientFromConfig(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc", r.Header.Get("X-Api-Key"))
		jsonHandler(http.StatusOK, `{"ok": true}`)(w, r)
	}))
	defer server.Close()

	for _, transport := range []string{config.TransportStandard, config.TransportRetryable, config.TransportResty} {
		t.Run(transport, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.BaseURL = server.URL + "/api"
			cfg.Headers = map[string]string{"X-Api-Key": "abc"}
			cfg.Transport = transport
			cfg.MaxConcurrent = 2
			cfg.LogLevel = "error"

			c, err := NewClientFromConfig(cfg)
			require.NoError(t, err)
			defer c.Close()

			assert.Equal(t, server.URL+"/api/", c.BaseURL().String())
			assert.Equal(t, 2, c.Queue().MaxConcurrent())

			var got outcome
			op, err := c.Get("ping", nil, got.onSuccess, got.onFailure)
			require.NoError(t, err)
			waitOp(t, op)

			success, failure := got.counts()
			assert.Equal(t, 1, success)
			assert.Equal(t, 0, failure, "%v", got.err)
		})
	}
}

func TestNewClientFromConfig_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *config.Config)
	}{
		{"missing base url", func(cfg *config.Config) {}},
		{"unknown transport", func(cfg *config.Config) {
			cfg.BaseURL = "https://api.example.com/"
			cfg.Transport = "smoke-signals"
		}},
		{"unknown encoding", func(cfg *config.Config) {
			cfg.BaseURL = "https://api.example.com/"
			cfg.StringEncoding = "klingon"
		}},
		{"bad log level", func(cfg *config.Config) {
			cfg.BaseURL = "https://api.example.com/"
			cfg.LogLevel = "loud"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.mutate(cfg)

			c, err := NewClientFromConfig(cfg)
			assert.Nil(t, c)
			assert.True(t, errors.Is(err, ErrInvalidArgument), "got %v", err)
		})
	}
}

func TestClient_CancelAfterResponseLeavesNoResponse(t *testing.T) {
	server := httptest.NewServer(jsonHandler(http.StatusOK, `{"ok": true}`))
	defer server.Close()

	decoding := make(chan struct{})
	release := make(chan struct{})
	decoder := decode.DecoderFunc(func(body []byte, contentType string) (any, error) {
		close(decoding)
		<-release
		return decode.JSON{}.Decode(body, contentType)
	})

	c := newTestClient(t, server.URL, WithDecoder(decoder))

	var got outcome
	op, err := c.Get("thing", nil, got.onSuccess, got.onFailure)
	require.NoError(t, err)

	// The response is in hand; cancel before the operation can finish.
	select {
	case <-decoding:
	case <-time.After(5 * time.Second):
		t.Fatal("decoder was not called")
	}
	require.True(t, op.Cancel())
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Queue().Wait(ctx))

	s, f := got.counts()
	assert.Zero(t, s+f)
	assert.Equal(t, queue.StateCancelled, op.State())
	assert.Nil(t, op.Response())
	assert.NoError(t, op.Err())
}

func TestNewClientFromConfig_MaxConcurrentOptionWins(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "https://api.example.com/"
	cfg.MaxConcurrent = 2
	cfg.LogLevel = "error"

	c, err := NewClientFromConfig(cfg, WithMaxConcurrent(5))
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, 5, c.Queue().MaxConcurrent())

	unbounded, err := NewClientFromConfig(cfg, WithMaxConcurrent(0))
	require.NoError(t, err)
	defer unbounded.Close()
	assert.Equal(t, 0, unbounded.Queue().MaxConcurrent())

	fromConfig, err := NewClientFromConfig(cfg)
	require.NoError(t, err)
	defer fromConfig.Close()
	assert.Equal(t, 2, fromConfig.Queue().MaxConcurrent())
}
