package webos

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrRejected marks a device-reported refusal (install rejected, launch
// failed, pairing denied). Rejections are deterministic and never retried.
var ErrRejected = errors.New("device rejected request")

// Client wraps the HTTP developer endpoint of one device.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithToken attaches the pairing token to every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithHTTPClient injects a custom HTTP client (primarily for tests).
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

// WithTimeout bounds every non-streaming request.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.http.Timeout = timeout
		}
	}
}

// New constructs a client for the device at host:port.
func New(host string, port int, opts ...Option) (*Client, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, errors.New("device host required")
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("device port %d out of range", port)
	}
	base, err := url.Parse(fmt.Sprintf("http://%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("device endpoint: %w", err)
	}
	client := &Client{
		base: base,
		http: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Endpoint returns the base URL the client dials.
func (c *Client) Endpoint() string {
	return c.base.Host
}

// Probe checks that the device exposes a pairing-capable endpoint.
func (c *Client) Probe(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/pair/probe", nil, nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return transportError("probe", fmt.Errorf("device returned status %d", resp.StatusCode))
	}
	return nil
}

// RequestPairing starts a pairing handshake; the device shows a confirmation
// dialog and returns a request identifier to poll.
func (c *Client) RequestPairing(ctx context.Context, req PairingRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal pairing request: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/pair/request", bytes.NewReader(body), map[string]string{"Content-Type": "application/json"})
	if err != nil {
		return "", err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return "", transportError("pairing request", fmt.Errorf("device returned status %d", resp.StatusCode))
	}
	var payload pairingRequestResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", transportError("pairing request", fmt.Errorf("decode response: %w", err))
	}
	if strings.TrimSpace(payload.RequestID) == "" {
		return "", transportError("pairing request", errors.New("device returned empty request id"))
	}
	return payload.RequestID, nil
}

// PairingStatus polls the progress of a pairing handshake.
func (c *Client) PairingStatus(ctx context.Context, requestID string) (PairingStatus, error) {
	path := "/pair/status?request=" + url.QueryEscape(requestID)
	resp, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return PairingStatus{}, err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return PairingStatus{}, transportError("pairing status", fmt.Errorf("device returned status %d", resp.StatusCode))
	}
	var status PairingStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return PairingStatus{}, transportError("pairing status", fmt.Errorf("decode response: %w", err))
	}
	return status, nil
}

// Install streams the artifact file to the device and waits for its verdict.
// A device-side rejection carries ErrRejected; connectivity failures are
// transient.
func (c *Client) Install(ctx context.Context, req InstallRequest) error {
	file, err := os.Open(req.Path)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer file.Close()

	headers := map[string]string{
		"Content-Type":       "application/octet-stream",
		"X-Package-Id":       req.PackageID,
		"X-Package-Version":  req.Version,
		"X-Package-Checksum": req.Checksum,
	}
	resp, err := c.do(ctx, http.MethodPost, "/apps/install", file, headers)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return transportError("install", fmt.Errorf("device returned status %d", resp.StatusCode))
	}
	var payload installResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return transportError("install", fmt.Errorf("decode response: %w", err))
	}
	if payload.Status != "installed" {
		reason := payload.Reason
		if reason == "" {
			reason = "no reason given"
		}
		return fmt.Errorf("%w: install: %s", ErrRejected, reason)
	}
	return nil
}

// Launch asks the device to start the installed application.
func (c *Client) Launch(ctx context.Context, appID string) error {
	body, err := json.Marshal(launchRequest{ID: appID})
	if err != nil {
		return fmt.Errorf("marshal launch request: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/apps/launch", bytes.NewReader(body), map[string]string{"Content-Type": "application/json"})
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return transportError("launch", fmt.Errorf("device returned status %d", resp.StatusCode))
	}
	var payload launchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return transportError("launch", fmt.Errorf("decode response: %w", err))
	}
	if payload.Status != "launched" {
		reason := payload.Reason
		if reason == "" {
			reason = "no reason given"
		}
		return fmt.Errorf("%w: launch: %s", ErrRejected, reason)
	}
	return nil
}

// Health reports whether the application is observed running on the device.
func (c *Client) Health(ctx context.Context, appID string) (bool, error) {
	path := "/apps/health?id=" + url.QueryEscape(appID)
	resp, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return false, err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return false, transportError("health", fmt.Errorf("device returned status %d", resp.StatusCode))
	}
	var payload healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return false, transportError("health", fmt.Errorf("decode response: %w", err))
	}
	return payload.Running, nil
}

// Tail opens the device's log stream from the query cursor. The returned
// reader delivers events until the connection drops or ctx is cancelled.
func (c *Client) Tail(ctx context.Context, q LogQuery) (*LogReader, error) {
	values := url.Values{}
	if q.Cursor > 0 {
		values.Set("cursor", strconv.FormatUint(q.Cursor, 10))
	}
	if strings.TrimSpace(q.App) != "" {
		values.Set("app", q.App)
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: "/logs"})
	endpoint.RawQuery = values.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build log request: %w", err)
	}
	c.decorate(req)
	req.Header.Set("Accept", "application/x-ndjson")

	// Follow mode blocks indefinitely; bypass the client-wide timeout.
	streaming := &http.Client{Transport: c.http.Transport}
	resp, err := streaming.Do(req)
	if err != nil {
		return nil, transportError("log tail", err)
	}
	if resp.StatusCode != http.StatusOK {
		drain(resp)
		return nil, transportError("log tail", fmt.Errorf("device returned status %d", resp.StatusCode))
	}
	return newLogReader(resp.Body), nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, headers map[string]string) (*http.Response, error) {
	endpoint := c.base.String() + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	c.decorate(req)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(method+" "+path, err)
	}
	return resp, nil
}

func (c *Client) decorate(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

// LogReader decodes the NDJSON log stream.
type LogReader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func newLogReader(body io.ReadCloser) *LogReader {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &LogReader{body: body, scanner: scanner}
}

// Next returns the next log event. io.EOF signals a cleanly closed stream;
// any other error is a dropped connection.
func (r *LogReader) Next() (LogEvent, error) {
	for r.scanner.Scan() {
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}
		var event LogEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			// Malformed lines are skipped rather than killing the stream.
			continue
		}
		return event, nil
	}
	if err := r.scanner.Err(); err != nil {
		return LogEvent{}, transportError("log read", err)
	}
	return LogEvent{}, io.EOF
}

// Close releases the underlying connection.
func (r *LogReader) Close() error {
	return r.body.Close()
}
