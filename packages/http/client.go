package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/abdul-hamid-achik/hitclient/packages/charset"
	"github.com/abdul-hamid-achik/hitclient/packages/core/config"
	"github.com/abdul-hamid-achik/hitclient/packages/decode"
	"github.com/abdul-hamid-achik/hitclient/packages/logging"
	"github.com/abdul-hamid-achik/hitclient/packages/queue"
)

// Version is reported in the default User-Agent.
const Version = "0.1.0"

const fallbackAcceptLanguage = "en-us;q=0.8"

// Client holds the configuration shared by every request it builds and the
// queue its operations run on.
type Client struct {
	baseURL *url.URL

	mu       sync.RWMutex
	headers  http.Header
	encoding charset.Encoding

	transport     Transport
	transportOpts TransportOptions
	queue            *queue.Queue
	ownsQueue        bool
	maxConcurrent    int
	maxConcurrentSet bool
	decoder       decode.Decoder
	logger        *zap.Logger

	minStatus int
	maxStatus int
}

type ClientOption func(*Client)

// WithTransport replaces the default net/http transport.
func WithTransport(t Transport) ClientOption {
	return func(c *Client) {
		c.transport = t
	}
}

// WithTimeout sets the timeout of the default transport. It has no effect
// together with WithTransport.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.transportOpts.Timeout = d
	}
}

// WithTransportOptions configures the default transport. It has no effect
// together with WithTransport.
func WithTransportOptions(opts TransportOptions) ClientOption {
	return func(c *Client) {
		c.transportOpts = opts
	}
}

// WithQueue runs operations on q instead of a queue owned by the client.
// Close does not close a queue supplied this way.
func WithQueue(q *queue.Queue) ClientOption {
	return func(c *Client) {
		c.queue = q
	}
}

// WithMaxConcurrent bounds the client's own queue. 0 means unbounded.
func WithMaxConcurrent(n int) ClientOption {
	return func(c *Client) {
		c.maxConcurrent = n
		c.maxConcurrentSet = true
	}
}

// WithDecoder sets the response decoder. The default is decode.JSON.
func WithDecoder(d decode.Decoder) ClientOption {
	return func(c *Client) {
		c.decoder = d
	}
}

func WithStringEncoding(enc charset.Encoding) ClientOption {
	return func(c *Client) {
		c.encoding = enc
	}
}

func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithDefaultHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.setHeaderLocked(key, value)
	}
}

// WithDefaultHeaders sets multiple default headers for all requests
func WithDefaultHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.setHeaderLocked(k, v)
		}
	}
}

// WithAcceptableStatusCodes sets the inclusive status range treated as
// success. The default is 200-299.
func WithAcceptableStatusCodes(minCode, maxCode int) ClientOption {
	return func(c *Client) {
		c.minStatus = minCode
		c.maxStatus = maxCode
	}
}

// NewClient creates a client for baseURL, which must be absolute. A path
// without a trailing slash gets one, so relative paths resolve below it.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, invalidArgument("base URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, invalidArgument("invalid base URL: %v", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, invalidArgument("base URL must be absolute: %s", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
		if u.RawPath != "" {
			u.RawPath += "/"
		}
	}

	c := &Client{
		baseURL:       u,
		headers:       make(http.Header),
		encoding:      charset.UTF8,
		transportOpts: DefaultTransportOptions(),
		decoder:       decode.JSON{},
		logger:        logging.Nop(),
		minStatus:     200,
		maxStatus:     299,
	}

	c.headers.Set("Accept", "application/json")
	c.headers.Set("Accept-Encoding", "gzip")
	c.headers.Set("Accept-Language", acceptLanguage(os.Getenv("LANG")))
	c.headers.Set("User-Agent", userAgent())

	for _, opt := range opts {
		opt(c)
	}

	if c.transport == nil {
		t, err := NewTransport(c.transportOpts)
		if err != nil {
			return nil, err
		}
		c.transport = t
	}

	if c.queue == nil {
		c.queue = queue.New(
			queue.WithMaxConcurrent(c.maxConcurrent),
			queue.WithLogger(c.logger),
		)
		c.ownsQueue = true
	}

	return c, nil
}

// NewClientFromConfig creates a client from cfg. Options given here win over
// the config.
func NewClientFromConfig(cfg *config.Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	enc, err := charset.Lookup(cfg.StringEncoding)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	transport, err := TransportFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.GetLogDevelopment())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	q := queue.New(
		queue.WithMaxConcurrent(cfg.MaxConcurrent),
		queue.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		queue.WithLogger(logger),
	)

	base := []ClientOption{
		WithStringEncoding(enc),
		WithTransport(transport),
		WithQueue(q),
		WithLogger(logger),
		WithDefaultHeaders(cfg.Headers),
	}

	c, err := NewClient(cfg.BaseURL, append(base, opts...)...)
	if err != nil {
		q.Close()
		return nil, err
	}
	c.ownsQueue = c.queue == q
	if !c.ownsQueue {
		q.Close()
	} else if c.maxConcurrentSet {
		q.SetMaxConcurrent(c.maxConcurrent)
	}
	return c, nil
}

func userAgent() string {
	return fmt.Sprintf("hitclient/%s (%s; %s)", Version, runtime.GOOS, runtime.GOARCH)
}

// acceptLanguage turns a POSIX locale such as "de_DE.UTF-8" into a language
// tag, preferring it over the en-us fallback.
func acceptLanguage(locale string) string {
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	locale = strings.ReplaceAll(locale, "_", "-")
	if locale == "" || locale == "C" || locale == "POSIX" {
		return fallbackAcceptLanguage
	}

	tag, err := language.Parse(locale)
	if err != nil || tag == language.Und {
		return fallbackAcceptLanguage
	}

	name := strings.ToLower(tag.String())
	if name == "en-us" {
		return name
	}
	return name + ", " + fallbackAcceptLanguage
}

// BaseURL returns a copy of the base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

func (c *Client) StringEncoding() charset.Encoding {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.encoding
}

// SetStringEncoding changes the encoding used for requests built afterwards.
func (c *Client) SetStringEncoding(enc charset.Encoding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.encoding = enc
}

// Queue returns the queue operations run on.
func (c *Client) Queue() *queue.Queue {
	return c.queue
}

// SetDefaultHeader sets a header sent with every request built afterwards.
// An empty value removes the header.
func (c *Client) SetDefaultHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setHeaderLocked(key, value)
}

func (c *Client) setHeaderLocked(key, value string) {
	if value == "" {
		c.headers.Del(key)
		return
	}
	c.headers.Set(key, value)
}

func (c *Client) RemoveDefaultHeader(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers.Del(key)
}

// DefaultHeader returns the default value of a header, or "" if unset.
func (c *Client) DefaultHeader(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.headers.Get(key)
}

// DefaultHeaders returns a copy of the default headers.
func (c *Client) DefaultHeaders() http.Header {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.headers.Clone()
}

// SetBasicAuth sets "Authorization: Basic base64(username:password)".
func (c *Client) SetBasicAuth(username, password string) {
	creds := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	c.SetDefaultHeader("Authorization", "Basic "+creds)
}

// SetTokenAuth sets "Authorization: Bearer <token>".
func (c *Client) SetTokenAuth(token string) {
	c.SetDefaultHeader("Authorization", "Bearer "+token)
}

func (c *Client) ClearAuth() {
	c.RemoveDefaultHeader("Authorization")
}

// ApplyHeaders copies the headers of cfg into the default headers. It is
// meant for configs reloaded by config.Watch.
func (c *Client) ApplyHeaders(cfg *config.Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range cfg.Headers {
		c.setHeaderLocked(k, v)
	}
}

func (c *Client) Get(path string, params Params, onSuccess SuccessFunc, onFailure FailureFunc) (*Operation, error) {
	return c.enqueueMethod(http.MethodGet, path, params, onSuccess, onFailure)
}

func (c *Client) Head(path string, params Params, onSuccess SuccessFunc, onFailure FailureFunc) (*Operation, error) {
	return c.enqueueMethod(http.MethodHead, path, params, onSuccess, onFailure)
}

func (c *Client) Post(path string, params Params, onSuccess SuccessFunc, onFailure FailureFunc) (*Operation, error) {
	return c.enqueueMethod(http.MethodPost, path, params, onSuccess, onFailure)
}

func (c *Client) Put(path string, params Params, onSuccess SuccessFunc, onFailure FailureFunc) (*Operation, error) {
	return c.enqueueMethod(http.MethodPut, path, params, onSuccess, onFailure)
}

func (c *Client) Patch(path string, params Params, onSuccess SuccessFunc, onFailure FailureFunc) (*Operation, error) {
	return c.enqueueMethod(http.MethodPatch, path, params, onSuccess, onFailure)
}

func (c *Client) Delete(path string, params Params, onSuccess SuccessFunc, onFailure FailureFunc) (*Operation, error) {
	return c.enqueueMethod(http.MethodDelete, path, params, onSuccess, onFailure)
}

func (c *Client) enqueueMethod(method, path string, params Params, onSuccess SuccessFunc, onFailure FailureFunc) (*Operation, error) {
	req, err := c.NewRequest(method, path, params)
	if err != nil {
		return nil, err
	}
	return c.Enqueue(req, onSuccess, onFailure)
}

// Enqueue submits an already built request. It returns immediately; the
// outcome is delivered to onSuccess or onFailure.
func (c *Client) Enqueue(req *Request, onSuccess SuccessFunc, onFailure FailureFunc) (*Operation, error) {
	if req == nil || req.URL == nil {
		return nil, invalidArgument("request is required")
	}

	op := &Operation{request: req}
	op.op = queue.NewOperation(req.Method, req.URL.String(), func(ctx context.Context) (bool, func()) {
		return c.execute(ctx, op, onSuccess, onFailure)
	})

	if err := c.queue.Add(op.op); err != nil {
		return nil, err
	}
	return op, nil
}

// CancelOperations cancels every queued or running operation whose method
// and URL match. path is resolved the way NewRequest resolves it, so a
// query string must be included to match a GET with params.
func (c *Client) CancelOperations(method, path string) int {
	u, err := c.resolve(path)
	if err != nil {
		return 0
	}
	return c.queue.CancelOperations(strings.ToUpper(method), u.String())
}

// Close cancels all operations of a client-owned queue and releases idle
// connections.
func (c *Client) Close() {
	if c.ownsQueue {
		c.queue.Close()
	}
	if hc, ok := c.transport.(*http.Client); ok {
		hc.CloseIdleConnections()
	}
}

func (c *Client) execute(ctx context.Context, op *Operation, onSuccess SuccessFunc, onFailure FailureFunc) (bool, func()) {
	resp, value, err := c.perform(ctx, op.request)

	// The outcome is recorded only by the dispatch closures, which the queue
	// drops if the operation was cancelled first.
	if err != nil {
		if ctx.Err() == nil {
			c.logFailure(op.request, err)
		}
		return false, func() {
			op.record(resp, err)
			if onFailure != nil {
				onFailure(op, resp, err)
			}
		}
	}

	return true, func() {
		op.record(resp, nil)
		if onSuccess != nil {
			onSuccess(op, value)
		}
	}
}

func (c *Client) perform(ctx context.Context, req *Request) (*Response, any, error) {
	httpReq, err := req.toHTTP(ctx)
	if err != nil {
		return nil, nil, &TransportError{Method: req.Method, URL: req.URL.String(), Err: err}
	}

	start := time.Now()
	httpResp, err := c.transport.Do(httpReq)
	if err != nil {
		return nil, nil, &TransportError{Method: req.Method, URL: req.URL.String(), Err: err}
	}
	defer httpResp.Body.Close()

	body, err := readBody(httpResp)
	if err != nil {
		return nil, nil, &TransportError{Method: req.Method, URL: req.URL.String(), Err: err}
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Header:     httpResp.Header,
		Body:       body,
		Duration:   time.Since(start),
	}

	if resp.StatusCode < c.minStatus || resp.StatusCode > c.maxStatus {
		return resp, nil, &StatusError{StatusCode: resp.StatusCode, Response: resp}
	}

	value, err := c.decoder.Decode(resp.Body, resp.ContentType())
	if err != nil {
		return resp, nil, &DecodeError{Err: err, Response: resp}
	}
	return resp, value, nil
}

// readBody reads the whole body, decompressing gzip content the transport
// left compressed.
func readBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if len(raw) == 0 || resp.Uncompressed || !strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		return raw, nil
	}

	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decompressing response body: %w", err)
	}
	defer zr.Close()

	body, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompressing response body: %w", err)
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	return body, nil
}

func (c *Client) logFailure(req *Request, err error) {
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.Error(err),
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		c.logger.Debug("request returned unacceptable status", append(fields, zap.Int("status", statusErr.StatusCode))...)
		return
	}
	c.logger.Warn("request failed", fields...)
}
