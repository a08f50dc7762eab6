package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/time/rate"

	"octoprint-cli/internal/apperr"
)

const token = "123456:secret-token"

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL, token, "42", Options{Limiter: rate.NewLimiter(rate.Inf, 1)})
}

func TestSendMessage(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bot"+token+"/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		io.WriteString(w, `{"ok":true,"result":{"message_id":1}}`)
	})
	if err := c.SendMessage(context.Background(), "*hi*"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if got["chat_id"] != "42" || got["text"] != "*hi*" || got["parse_mode"] != "Markdown" {
		t.Fatalf("body = %v", got)
	}
}

func TestSendPhoto(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse: %v", err)
		}
		if r.FormValue("chat_id") != "42" || r.FormValue("caption") != "snap" {
			t.Errorf("fields = %v", r.MultipartForm.Value)
		}
		f, hdr, err := r.FormFile("photo")
		if err != nil {
			t.Errorf("photo: %v", err)
		} else {
			b, _ := io.ReadAll(f)
			if string(b) != "jpegdata" || hdr.Filename != "snap.jpg" {
				t.Errorf("photo = %q %q", b, hdr.Filename)
			}
		}
		io.WriteString(w, `{"ok":true,"result":{}}`)
	})
	if err := c.SendPhoto(context.Background(), strings.NewReader("jpegdata"), "snap.jpg", "snap"); err != nil {
		t.Fatalf("SendPhoto: %v", err)
	}
}

func TestErrorsHideToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
	})
	err := c.SendMessage(context.Background(), "x")
	var apiErr *apperr.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("err = %v, want APIError 400", err)
	}
	if strings.Contains(err.Error(), "secret-token") {
		t.Fatalf("token leaked: %v", err)
	}
}

func TestOKFalseIsAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"ok":false,"error_code":403,"description":"Forbidden"}`)
	})
	_, err := c.GetMe(context.Background())
	if apperr.StatusCode(err) != http.StatusForbidden {
		t.Fatalf("err = %v, want 403", err)
	}
}

func TestGetMe(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"ok":true,"result":{"id":7,"is_bot":true,"first_name":"Octo","username":"octo_bot"}}`)
	})
	u, err := c.GetMe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if u.Username != "octo_bot" || !u.IsBot {
		t.Fatalf("user = %+v", u)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Fatalf("got %q", got)
	}
	if got := truncate("héllo wörld", 5); got != "héll…" {
		t.Fatalf("got %q", got)
	}
}
