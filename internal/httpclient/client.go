package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	"octoprint-cli/internal/apperr"
	"octoprint-cli/internal/logger"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4096
)

// Client issues requests against one base URL with fixed headers.
// Every call is bounded by the configured timeout.
type Client struct {
	service string
	baseURL string
	header  http.Header
	http    *http.Client
	timeout time.Duration
	secrets []string
	log     *logger.Logger
}

type Option func(*Client)

func WithHeader(key, value string) Option {
	return func(c *Client) { c.header.Set(key, value) }
}

// WithSecret removes s from every URL and error message the client produces.
func WithSecret(s string) Option {
	return func(c *Client) {
		if s != "" {
			c.secrets = append(c.secrets, s)
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func New(service, baseURL string, opts ...Option) *Client {
	c := &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		header:  http.Header{},
		http:    &http.Client{},
		timeout: defaultTimeout,
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Timeout() time.Duration { return c.timeout }

// WithTimeout returns a copy of c using d for every call.
func (c *Client) WithTimeout(d time.Duration) *Client {
	cp := *c
	if d > 0 {
		cp.timeout = d
	}
	return &cp
}

func (c *Client) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	_, err := c.do(ctx, http.MethodGet, path, nil, "", out)
	return err
}

func (c *Client) PostJSON(ctx context.Context, path string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, path, bytes.NewReader(b), "application/json", out)
	return err
}

// GetBytes fetches a raw payload, such as a webcam image.
func (c *Client) GetBytes(ctx context.Context, path string) ([]byte, string, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil, "", nil)
	if err != nil {
		return nil, "", err
	}
	return resp.body, resp.contentType, nil
}

type FilePart struct {
	Field    string
	Filename string
	Reader   io.Reader
}

// PostMultipart streams fields and one file as multipart/form-data.
func (c *Client) PostMultipart(ctx context.Context, path string, fields map[string]string, file FilePart, out any) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeMultipart(mw, fields, file))
	}()
	_, err := c.do(ctx, http.MethodPost, path, pr, mw.FormDataContentType(), out)
	_ = pr.Close()
	return err
}

func writeMultipart(mw *multipart.Writer, fields map[string]string, file FilePart) error {
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile(file.Field, file.Filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file.Reader); err != nil {
		return err
	}
	return mw.Close()
}

type response struct {
	status      int
	contentType string
	body        []byte
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) (*response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	target := c.URL(path)
	shown := c.redact(target)

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%s %s %s: %s", c.service, method, shown, c.redact(err.Error()))
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debugw("http request failed", "service", c.service, "method", method, "url", shown, "err", c.redact(err.Error()))
		return nil, &apperr.NetworkError{
			Service: c.service,
			Op:      method,
			URL:     shown,
			Timeout: isTimeout(err),
			Err:     c.redactErr(err),
		}
	}
	defer resp.Body.Close()
	c.log.Debugw("http request", "service", c.service, "method", method, "url", shown, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &apperr.APIError{
			Service:    c.service,
			Method:     method,
			URL:        shown,
			StatusCode: resp.StatusCode,
			Body:       c.redact(string(b)),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperr.NetworkError{Service: c.service, Op: method, URL: shown, Timeout: isTimeout(err), Err: c.redactErr(err)}
	}
	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("%s %s %s: decode response: %w", c.service, method, shown, err)
		}
	}
	return &response{status: resp.StatusCode, contentType: resp.Header.Get("Content-Type"), body: data}, nil
}

func (c *Client) redact(s string) string {
	for _, secret := range c.secrets {
		s = strings.ReplaceAll(s, secret, "<redacted>")
	}
	return s
}

func (c *Client) redactErr(err error) error {
	if len(c.secrets) == 0 {
		return err
	}
	msg := c.redact(err.Error())
	if msg == err.Error() {
		return err
	}
	return errors.New(msg)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
