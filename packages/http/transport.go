package http

import (
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/abdul-hamid-achik/hitclient/packages/core/config"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRedirects is the maximum number of redirects to follow
	DefaultMaxRedirects = 10
	// DefaultMaxIdleConns is the maximum number of idle connections in the pool
	DefaultMaxIdleConns = 100
	// DefaultMaxIdleConnsPerHost is the maximum number of idle connections per host
	DefaultMaxIdleConnsPerHost = 10
	// DefaultIdleConnTimeout is how long idle connections stay in the pool
	DefaultIdleConnTimeout = 90 * time.Second
)

// Transport sends a single request and returns its response. A non-nil
// error means no usable response was received. Implementations must honor
// the request context.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}

// TransportOptions configures the net/http based transports.
type TransportOptions struct {
	Timeout         time.Duration
	FollowRedirects bool
	MaxRedirects    int
	ValidateSSL     bool
	Proxy           string
}

// DefaultTransportOptions follows redirects, validates certificates and
// times out after DefaultTimeout.
func DefaultTransportOptions() TransportOptions {
	return TransportOptions{
		Timeout:         DefaultTimeout,
		FollowRedirects: true,
		MaxRedirects:    DefaultMaxRedirects,
		ValidateSSL:     true,
	}
}

// NewTransport returns a pooled net/http client configured by opts.
func NewTransport(opts TransportOptions) (*http.Client, error) {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        DefaultMaxIdleConns,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
	}

	// Configure TLS verification
	if !opts.ValidateSSL {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	if opts.Proxy != "" {
		proxyURL, err := neturl.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid proxy URL: %v", ErrInvalidArgument, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &http.Client{
		Transport:     transport,
		Timeout:       opts.Timeout,
		CheckRedirect: redirectPolicy(opts),
	}, nil
}

// redirectPolicy stops at the last response instead of failing once
// redirects are disabled or exhausted.
func redirectPolicy(opts TransportOptions) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if !opts.FollowRedirects {
			return http.ErrUseLastResponse
		}
		if len(via) >= opts.MaxRedirects {
			return http.ErrUseLastResponse
		}
		return nil
	}
}

// NewRetryableTransport wraps base with exponential-backoff retries on
// connection errors, 429 and 5xx responses. After the last attempt the final
// response is passed through so status handling stays with the client.
func NewRetryableTransport(base *http.Client, retries int, minWait, maxWait time.Duration) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = base
	retryClient.RetryMax = retries
	retryClient.RetryWaitMin = minWait
	retryClient.RetryWaitMax = maxWait
	retryClient.Logger = nil // Disable logging
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	client := retryClient.StandardClient()
	client.Timeout = base.Timeout
	return client
}

// RestyTransport sends requests through a resty client, so resty's own
// middleware, retry and proxy settings apply.
type RestyTransport struct {
	client *resty.Client
}

// NewRestyTransport adapts client. A nil client gets resty's defaults.
func NewRestyTransport(client *resty.Client) *RestyTransport {
	if client == nil {
		client = resty.New()
	}
	return &RestyTransport{client: client}
}

func (t *RestyTransport) Do(req *http.Request) (*http.Response, error) {
	r := t.client.R().
		SetContext(req.Context()).
		SetDoNotParseResponse(true)
	r.Header = req.Header.Clone()

	if req.Body != nil && req.Body != http.NoBody {
		body, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		r.SetBody(body)
	}

	resp, err := r.Execute(req.Method, req.URL.String())
	if err != nil {
		if resp != nil && resp.RawResponse != nil && resp.RawResponse.Body != nil {
			resp.RawResponse.Body.Close()
		}
		return nil, err
	}
	return resp.RawResponse, nil
}

// TransportFromConfig builds the transport named by cfg.Transport.
func TransportFromConfig(cfg *config.Config) (Transport, error) {
	opts := TransportOptions{
		Timeout:         cfg.TimeoutDuration(),
		FollowRedirects: cfg.GetFollowRedirects(),
		MaxRedirects:    cfg.MaxRedirects,
		ValidateSSL:     cfg.GetValidateSSL(),
		Proxy:           cfg.Proxy,
	}
	if opts.MaxRedirects == 0 {
		opts.MaxRedirects = DefaultMaxRedirects
	}

	switch cfg.Transport {
	case "", config.TransportStandard:
		return NewTransport(opts)

	case config.TransportRetryable:
		base, err := NewTransport(opts)
		if err != nil {
			return nil, err
		}
		return NewRetryableTransport(base, cfg.Retries, cfg.RetryDelayDuration(), cfg.MaxRetryDelayDuration()), nil

	case config.TransportResty:
		client := resty.New().
			SetTimeout(opts.Timeout).
			SetRetryCount(cfg.Retries).
			SetRetryWaitTime(cfg.RetryDelayDuration()).
			SetRetryMaxWaitTime(cfg.MaxRetryDelayDuration())

		if !opts.ValidateSSL {
			client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
		}
		if opts.Proxy != "" {
			client.SetProxy(opts.Proxy)
		}
		client.SetRedirectPolicy(resty.RedirectPolicyFunc(redirectPolicy(opts)))
		return NewRestyTransport(client), nil

	default:
		return nil, fmt.Errorf("%w: unknown transport %q", ErrInvalidArgument, cfg.Transport)
	}
}
