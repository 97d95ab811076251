package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fivetwenty-io/capi-facade/internal/constants"
	"github.com/fivetwenty-io/capi-facade/pkg/capi"
	"github.com/hashicorp/go-retryablehttp"
)

// TokenManager supplies bearer tokens. RefreshToken must obtain a new token
// even if the cached one has not expired.
type TokenManager interface {
	GetToken(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) error
}

// rejectedTokenRefresher is implemented by token managers that can decide,
// atomically with their own grants, whether a rejected token still needs
// replacing.
type rejectedTokenRefresher interface {
	RefreshRejected(ctx context.Context, rejected string) error
}

// Request describes one API call relative to the client's base URL.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    interface{}
	Headers map[string]string
}

// Response is a fully read API response.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header

	// token is the access token the request was sent with.
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithInterceptors runs chain around every call.
func WithInterceptors(chain *capi.InterceptorChain) Option {
	return func(c *Client) {
		c.interceptors = chain
	}
}

// WithHTTPClient sets the underlying transport client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithRetryConfig bounds transport retries for connection errors, 429 and 5xx.
func WithRetryConfig(retryMax int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.retryMax = retryMax
		c.retryWaitMin = waitMin
		c.retryWaitMax = waitMax
	}
}

// WithLogger sets the logger.
func WithLogger(logger capi.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDebug enables request and response logging.
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

// Client sends authorized requests to the control plane. A 401 is answered
// with one forced token refresh and one retry.
type Client struct {
	baseURL      string
	tokenManager TokenManager
	httpClient   *http.Client
	retryClient  *retryablehttp.Client
	interceptors *capi.InterceptorChain
	logger       capi.Logger
	debug        bool
	userAgent    string
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
}

// NewClient creates a client for baseURL. tokenManager may be nil for
// unauthenticated endpoints.
func NewClient(baseURL string, tokenManager TokenManager, opts ...Option) *Client {
	client := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		tokenManager: tokenManager,
		httpClient:   &http.Client{Timeout: constants.DefaultHTTPTimeout},
		retryMax:     constants.DefaultRetryMax,
		retryWaitMin: constants.DefaultRetryWaitMin,
		retryWaitMax: constants.DefaultRetryWaitMax,
	}

	for _, opt := range opts {
		opt(client)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = client.httpClient
	retryClient.Logger = nil
	retryClient.RetryMax = client.retryMax
	retryClient.RetryWaitMin = client.retryWaitMin
	retryClient.RetryWaitMax = client.retryWaitMax
	retryClient.CheckRetry = retryablehttp.DefaultRetryPolicy
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.RequestLogHook = client.logRetry

	client.retryClient = retryClient

	return client
}

// BaseURL returns the API base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends req. For error statuses both the response and a normalized error
// are returned.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	call, err := c.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, call, req.Query)
	if err == nil && resp.StatusCode == http.StatusUnauthorized && c.tokenManager != nil {
		resp, err = c.retryUnauthorized(ctx, call, req.Query, resp)
	}

	if err == nil {
		err = capi.NormalizeResponse(resp.StatusCode, resp.Body)
	}

	if c.interceptors != nil {
		intercepted := &capi.Response{Error: err}
		if resp != nil {
			intercepted.StatusCode = resp.StatusCode
			intercepted.Headers = resp.Headers
			intercepted.Body = resp.Body
		}

		interceptErr := c.interceptors.ExecuteResponseInterceptors(ctx, call, intercepted)
		if err == nil && interceptErr != nil {
			err = interceptErr
		}
	}

	return resp, err
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post performs a POST request.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put performs a PUT request.
func (c *Client) Put(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body})
}

// Patch performs a PATCH request.
func (c *Client) Patch(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPatch, Path: path, Body: body})
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path})
}

// prepare encodes the body and runs request interceptors once per logical call.
func (c *Client) prepare(ctx context.Context, req *Request) (*capi.Request, error) {
	call := &capi.Request{
		Method:  req.Method,
		Path:    req.Path,
		Headers: make(http.Header),
	}

	for key, value := range req.Headers {
		call.Headers.Set(key, value)
	}

	if req.Body != nil {
		body, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}

		call.Body = body
	}

	if c.interceptors != nil {
		err := c.interceptors.ExecuteRequestInterceptors(ctx, call)
		if err != nil {
			return nil, err
		}
	}

	return call, nil
}

func (c *Client) retryUnauthorized(ctx context.Context, call *capi.Request, query url.Values, rejected *Response) (*Response, error) {
	c.logDebug("Access token rejected, refreshing", map[string]interface{}{
		"method": call.Method,
		"path":   call.Path,
	})

	err := c.refreshRejected(ctx, rejected.token)
	if err != nil {
		if errors.Is(err, capi.ErrAuthentication) {
			return rejected, err
		}

		return rejected, capi.NewOperationError(capi.ErrAuthentication, http.StatusUnauthorized, "refreshing rejected access token", err)
	}

	return c.send(ctx, call, query)
}

// refreshRejected replaces rejected unless a concurrent caller already has.
// Requests that fail on the same stale token then share one grant.
func (c *Client) refreshRejected(ctx context.Context, rejected string) error {
	if refresher, ok := c.tokenManager.(rejectedTokenRefresher); ok {
		return refresher.RefreshRejected(ctx, rejected)
	}

	current, err := c.tokenManager.GetToken(ctx)
	if err == nil && current != rejected {
		return nil
	}

	return c.tokenManager.RefreshToken(ctx)
}

func (c *Client) send(ctx context.Context, call *capi.Request, query url.Values) (*Response, error) {
	target := c.baseURL + call.Path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var rawBody interface{}
	if call.Body != nil {
		rawBody = call.Body
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, call.Method, target, rawBody)
	if err != nil {
		return nil, capi.NewOperationError(capi.ErrConfiguration, 0, "building request", err)
	}

	for key, values := range call.Headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	req.Header.Set("Accept", "application/json")

	if call.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var token string

	if c.tokenManager != nil {
		token, err = c.tokenManager.GetToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("getting access token: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logDebug("HTTP Request", map[string]interface{}{
		"method": call.Method,
		"url":    target,
	})

	start := time.Now()

	httpResp, err := c.retryClient.Do(req)
	if err != nil {
		return nil, capi.NormalizeTransportError(fmt.Errorf("%s %s: %w", call.Method, call.Path, err))
	}

	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, capi.NormalizeTransportError(fmt.Errorf("reading response body: %w", err))
	}

	c.logDebug("HTTP Response", map[string]interface{}{
		"method":   call.Method,
		"url":      target,
		"status":   httpResp.StatusCode,
		"duration": time.Since(start).String(),
	})

	return &Response{
		StatusCode: httpResp.StatusCode,
		Body:       body,
		Headers:    httpResp.Header,
		token:      token,
	}, nil
}

// logRetry reports transport retries; the first attempt is not logged.
func (c *Client) logRetry(_ retryablehttp.Logger, req *http.Request, attempt int) {
	if attempt == 0 || c.logger == nil {
		return
	}

	c.logger.Warn("Retrying HTTP request", map[string]interface{}{
		"method":  req.Method,
		"path":    req.URL.Path,
		"attempt": attempt,
	})
}

func (c *Client) logDebug(msg string, fields map[string]interface{}) {
	if c.debug && c.logger != nil {
		c.logger.Debug(msg, fields)
	}
}
