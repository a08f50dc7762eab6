package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"octoprint-cli/internal/apperr"
	"octoprint-cli/internal/httpclient"
	"octoprint-cli/internal/logger"
)

const (
	maxMessageRunes = 4096
	maxCaptionRunes = 1024
)

// Client sends to one chat through the Bot API. Sends are paced so a watch
// loop cannot exceed Telegram's per-chat limit.
type Client struct {
	http    *httpclient.Client
	chatID  string
	limiter *rate.Limiter
	log     *logger.Logger
}

type Options struct {
	Timeout    time.Duration
	Logger     *logger.Logger
	HTTPClient *http.Client
	// Limiter defaults to one send per second.
	Limiter *rate.Limiter
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

type envelope[T any] struct {
	OK          bool   `json:"ok"`
	Result      T      `json:"result"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

func New(apiURL, token, chatID string, opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	hopts := []httpclient.Option{
		httpclient.WithSecret(token),
		httpclient.WithTimeout(opts.Timeout),
		httpclient.WithLogger(log),
	}
	if opts.HTTPClient != nil {
		hopts = append(hopts, httpclient.WithHTTPClient(opts.HTTPClient))
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(time.Second), 1)
	}
	base := strings.TrimRight(apiURL, "/") + "/bot" + token
	return &Client{
		http:    httpclient.New("telegram", base, hopts...),
		chatID:  chatID,
		limiter: limiter,
		log:     log,
	}
}

func (c *Client) GetMe(ctx context.Context) (User, error) {
	var resp envelope[User]
	if err := c.http.GetJSON(ctx, "/getMe", &resp); err != nil {
		return User{}, err
	}
	if err := c.check(http.MethodGet, "/getMe", resp.OK, resp.ErrorCode, resp.Description); err != nil {
		return User{}, err
	}
	return resp.Result, nil
}

// SendMessage posts text with Markdown parsing.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	body := map[string]any{
		"chat_id":    c.chatID,
		"text":       truncate(text, maxMessageRunes),
		"parse_mode": "Markdown",
	}
	var resp envelope[map[string]any]
	if err := c.http.PostJSON(ctx, "/sendMessage", body, &resp); err != nil {
		return err
	}
	c.log.Debugw("telegram message sent", "chars", len(text))
	return c.check(http.MethodPost, "/sendMessage", resp.OK, resp.ErrorCode, resp.Description)
}

// SendPhoto uploads an image from r as multipart field "photo".
func (c *Client) SendPhoto(ctx context.Context, r io.Reader, filename, caption string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	fields := map[string]string{"chat_id": c.chatID}
	if caption != "" {
		fields["caption"] = truncate(caption, maxCaptionRunes)
		fields["parse_mode"] = "Markdown"
	}
	var resp envelope[map[string]any]
	err := c.http.PostMultipart(ctx, "/sendPhoto", fields, httpclient.FilePart{
		Field:    "photo",
		Filename: filename,
		Reader:   r,
	}, &resp)
	if err != nil {
		return err
	}
	c.log.Debugw("telegram photo sent", "file", filename)
	return c.check(http.MethodPost, "/sendPhoto", resp.OK, resp.ErrorCode, resp.Description)
}

// check turns {"ok": false} on a 2xx response into an APIError.
func (c *Client) check(method, path string, ok bool, code int, desc string) error {
	if ok {
		return nil
	}
	if code == 0 {
		code = http.StatusOK
	}
	return &apperr.APIError{
		Service:    "telegram",
		Method:     method,
		URL:        path,
		StatusCode: code,
		Body:       fmt.Sprintf("ok=false: %s", desc),
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
