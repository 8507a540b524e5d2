package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

var ErrNoManifest = errors.New("no debug manifests found")

// ParseError is returned when an endpoint responds with something other than the expected JSON document.
type ParseError struct {
	URL  string
	Body []byte
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse response from %s: %s\n\nDATA:\n  %q", e.URL, e.Err, e.Body)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Client reads the inspector's HTTP discovery endpoints.
type Client struct {
	Logger *zap.SugaredLogger

	host                     string
	retryMax                 int
	probeTimeout             time.Duration
	customizeRetryableClient func(*retryablehttp.Client)

	httpClient  *http.Client
	probeClient *http.Client
}

type ClientOption func(c *Client)

func WithHost(host string) ClientOption {
	return func(c *Client) {
		c.host = host
	}
}

func WithRetryMax(n int) ClientOption {
	return func(c *Client) {
		c.retryMax = n
	}
}

// WithProbeTimeout bounds each liveness probe, so that an unrelated listener that never answers does not stall activation.
func WithProbeTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.probeTimeout = d
	}
}

func WithCustomizeRetryableClient(f func(r *retryablehttp.Client)) ClientOption {
	return func(c *Client) {
		c.customizeRetryableClient = f
	}
}

type logAdapter struct {
	*zap.SugaredLogger
}

func (a *logAdapter) Printf(msg string, args ...interface{}) { a.Debugf(msg, args...) }

func NewClient(log *zap.SugaredLogger, opts ...ClientOption) *Client {
	c := &Client{
		Logger:       log.Named("manifest_client"),
		host:         "127.0.0.1",
		retryMax:     3,
		probeTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = c.retryMax
	retryClient.Backoff = func(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
		return 50 * time.Millisecond
	}
	retryClient.Logger = &logAdapter{SugaredLogger: c.Logger}
	if c.customizeRetryableClient != nil {
		c.customizeRetryableClient(retryClient)
	}
	c.httpClient = retryClient.StandardClient()

	probeClient := retryablehttp.NewClient()
	probeClient.RetryMax = 0
	probeClient.HTTPClient = &http.Client{Timeout: c.probeTimeout}
	probeClient.Logger = &logAdapter{SugaredLogger: c.Logger.Named("probe")}
	c.probeClient = probeClient.StandardClient()

	return c
}

func (c *Client) url(port uint16, path string) string {
	return fmt.Sprintf("http://%s:%d%s", c.host, port, path)
}

func (c *Client) get(ctx context.Context, httpClient *http.Client, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", u, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body of %s: %w", u, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("non-200 HTTP status code %d received from %s: %s", resp.StatusCode, u, string(body))
	}
	return body, nil
}

// FetchDomains returns the protocol domains and commands the target exposes.
func (c *Client) FetchDomains(ctx context.Context, port uint16) ([]Domain, error) {
	u := c.url(port, "/json/protocol")
	c.Logger.Infof("inspection enabled on port %d, requesting available domains from %s ...", port, u)

	body, err := c.get(ctx, c.httpClient, u)
	if err != nil {
		return nil, err
	}
	var doc protocolDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &ParseError{URL: u, Body: body, Err: err}
	}
	if doc.Domains == nil {
		return nil, &ParseError{URL: u, Body: body, Err: errors.New("document has no domains")}
	}
	return doc.Domains, nil
}

// FetchTargets returns every debuggable target listed by the inspector.
func (c *Client) FetchTargets(ctx context.Context, port uint16) ([]Target, error) {
	return c.fetchTargets(ctx, c.httpClient, port)
}

func (c *Client) fetchTargets(ctx context.Context, httpClient *http.Client, port uint16) ([]Target, error) {
	u := c.url(port, "/json")
	body, err := c.get(ctx, httpClient, u)
	if err != nil {
		return nil, err
	}
	var targets []Target
	if err := json.Unmarshal(body, &targets); err != nil {
		return nil, &ParseError{URL: u, Body: body, Err: err}
	}
	return targets, nil
}

// FetchDebugURL returns the WebSocket debugger URL of the first listed target.
func (c *Client) FetchDebugURL(ctx context.Context, port uint16) (string, error) {
	c.Logger.Infof("inspection enabled on port %d, requesting webSocketDebuggerUrl from %s ...", port, c.url(port, "/json"))
	return c.debugURL(ctx, c.httpClient, port)
}

func (c *Client) debugURL(ctx context.Context, httpClient *http.Client, port uint16) (string, error) {
	targets, err := c.fetchTargets(ctx, httpClient, port)
	if err != nil {
		return "", err
	}
	if len(targets) == 0 {
		return "", ErrNoManifest
	}
	target := targets[0]
	if target.WebSocketDebuggerURL == "" {
		// the inspector omits the URL while another client is attached
		return "", &ParseError{URL: c.url(port, "/json"), Err: fmt.Errorf("target %q has no webSocketDebuggerUrl", target.ID)}
	}
	c.Logger.Debugw("selected debug target", "ID", target.ID, "Type", target.Type, "Title", target.Title, "Targets", len(targets))
	return target.WebSocketDebuggerURL, nil
}

// Probe reports whether the port serves the inspector's manifest. Any failure is a negative answer.
func (c *Client) Probe(ctx context.Context, port uint16) bool {
	_, err := c.debugURL(ctx, c.probeClient, port)
	if err != nil {
		c.Logger.Debugf("port %d is not an inspector: %s", port, err)
		return false
	}
	c.Logger.Debugf("port %d serves the inspector manifest", port)
	return true
}
