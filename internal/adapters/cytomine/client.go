package cytomine

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cellsia/S-Show-Region-Stats/internal/core/ports"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/metrics"
)

// Client is a signed REST client for a Cytomine server.
type Client struct {
	base       *url.URL
	publicKey  string
	privateKey string
	http       *http.Client
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock replaces the clock used for the Date header.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a client for host. A host without scheme is reached over
// https.
func NewClient(host, publicKey, privateKey string, timeout time.Duration, opts ...Option) (*Client, error) {
	if host == "" {
		return nil, errors.New("cytomine host is required")
	}
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	base, err := url.Parse(strings.TrimRight(host, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse host: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		base:       base,
		publicKey:  publicKey,
		privateKey: privateKey,
		http:       &http.Client{Timeout: timeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Is maps 404 responses to ports.ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == ports.ErrNotFound && e.Code == http.StatusNotFound
}

// collection is the envelope of list endpoints.
type collection[T any] struct {
	Collection []T `json:"collection"`
}

// Sign computes the Authorization header value for a request.
func Sign(publicKey, privateKey, method, contentMD5, contentType, date, path string) string {
	msg := method + "\n" + contentMD5 + "\n" + contentType + "\n" + date + "\n" + path
	mac := hmac.New(sha1.New, []byte(privateKey))
	mac.Write([]byte(msg))
	return "CYTOMINE " + publicKey + ":" + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, md5sum string) (*http.Request, error) {
	u := *c.base
	u.Path = c.base.Path + "/api/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}

	date := c.now().UTC().Format(http.TimeFormat)
	req.Header.Set("Date", date)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if md5sum != "" {
		req.Header.Set("Content-MD5", md5sum)
	}
	req.Header.Set("Authorization", Sign(c.publicKey, c.privateKey, method, md5sum, contentType, date, u.Path))
	return req, nil
}

// do sends the request and returns the response body reader. The caller
// closes it.
func (c *Client) do(req *http.Request, op string) (io.ReadCloser, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.PlatformRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PlatformRequests.WithLabelValues(op, "error").Inc()
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	metrics.PlatformRequests.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Debug("cytomine request failed", "op", op, "path", req.URL.Path, "status", resp.StatusCode)
		return nil, &StatusError{Method: req.Method, Path: req.URL.Path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	return resp.Body, nil
}

// getJSON decodes the response of a GET into out.
func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil, "", "")
	if err != nil {
		return err
	}
	body, err := c.do(req, op)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// sendJSON encodes in as the request body and decodes the response into out
// when out is not nil.
func (c *Client) sendJSON(ctx context.Context, op, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
	}

	sum := md5.Sum(payload)
	req, err := c.newRequest(ctx, method, path, nil, bytes.NewReader(payload), "application/json", hex.EncodeToString(sum[:]))
	if err != nil {
		return err
	}
	body, err := c.do(req, op)
	if err != nil {
		return err
	}
	defer body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, body)
		return nil
	}
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// ids renders an id list as the comma separated form list filters expect.
func ids(v []int64) string {
	parts := make([]string, len(v))
	for i, id := range v {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
