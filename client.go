package conformance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// client is the single HTTP session shared by all checks in a run. It owns
// base-URL joining and the fixed headers; checks receive it explicitly and
// hold no other shared state.
type client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	owner   string
	limiter *rate.Limiter
	logger  *slog.Logger
}

func newClient(opts Options) (*client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	var transport http.RoundTripper
	if opts.TransportFactory != nil {
		transport = opts.TransportFactory()
	}
	owner := opts.OwnerAgent
	if owner == "" {
		owner = DefaultOwnerAgent
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &client{
		http:    &http.Client{Transport: transport, Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		owner:   owner,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// close releases the underlying HTTP session. Run defers it so release
// happens on every exit path.
func (c *client) close() {
	c.http.CloseIdleConnections()
}

// request describes one HTTP call. The body is JSON-marshaled when non-nil.
type request struct {
	method  string
	path    string
	query   url.Values
	body    any
	headers map[string]string
}

// response is a fully read HTTP response.
type response struct {
	status int
	body   []byte
}

// json parses the response body for field-level inspection.
func (r *response) json() gjson.Result {
	return gjson.ParseBytes(r.body)
}

func (c *client) get(ctx context.Context, path string, query url.Values) (*response, error) {
	return c.do(ctx, request{method: http.MethodGet, path: path, query: query})
}

func (c *client) post(ctx context.Context, path string, query url.Values, body any) (*response, error) {
	return c.do(ctx, request{method: http.MethodPost, path: path, query: query, body: body})
}

// do issues a single request. Every request carries the bearer token and the
// JSON content type; there are no retries, so transport errors surface
// directly to the caller.
func (c *client) do(ctx context.Context, req request) (*response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var bodyReader io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s %s body: %w", req.method, req.path, err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", req.method, req.path, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range req.headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s response: %w", req.method, req.path, err)
	}

	c.logger.Debug("request finished", "method", req.method, "path", req.path, "status", resp.StatusCode)
	return &response{status: resp.StatusCode, body: raw}, nil
}
