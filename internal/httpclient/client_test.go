package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"octoprint-cli/internal/apperr"
)

func TestGetJSONSendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Api-Key"); got != "secret" {
			t.Errorf("X-Api-Key: got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"api":"0.1","server":"1.9.3"}`)
	}))
	defer srv.Close()

	c := New("octoprint", srv.URL+"/", WithHeader("X-Api-Key", "secret"))
	var out struct {
		Server string `json:"server"`
	}
	if err := c.GetJSON(context.Background(), "/api/version", &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Server != "1.9.3" {
		t.Errorf("server: got %q", out.Server)
	}
}

func TestNon2xxIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, "Printer is not operational")
	}))
	defer srv.Close()

	c := New("octoprint", srv.URL)
	err := c.PostJSON(context.Background(), "/api/job", map[string]string{"command": "start"}, nil)
	var apiErr *apperr.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusConflict || !strings.Contains(apiErr.Body, "not operational") {
		t.Errorf("unexpected error: %+v", apiErr)
	}
}

func TestTimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New("octoprint", srv.URL, WithTimeout(50*time.Millisecond))
	err := c.GetJSON(context.Background(), "/api/job", nil)
	var netErr *apperr.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("want NetworkError, got %v", err)
	}
	if !netErr.Timeout {
		t.Errorf("expected timeout flag: %v", netErr)
	}
}

func TestUnreachableIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	err := New("octoprint", addr).GetJSON(context.Background(), "/api/job", nil)
	var netErr *apperr.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("want NetworkError, got %v", err)
	}
}

func TestSecretsAreRedacted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"ok":false,"description":"Unauthorized"}`)
	}))
	defer srv.Close()

	c := New("telegram", srv.URL, WithSecret("123:TOKEN"))
	err := c.PostJSON(context.Background(), "/bot123:TOKEN/sendMessage", map[string]string{}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "123:TOKEN") {
		t.Errorf("token leaked: %s", err)
	}
}

func TestPostMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		if got := r.FormValue("chat_id"); got != "7" {
			t.Errorf("chat_id: got %q", got)
		}
		f, hdr, err := r.FormFile("photo")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		if hdr.Filename != "snap.jpg" || string(b) != "JPEGDATA" {
			t.Errorf("file part: %s %q", hdr.Filename, b)
		}
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	err := New("telegram", srv.URL).PostMultipart(context.Background(), "/sendPhoto",
		map[string]string{"chat_id": "7"},
		FilePart{Field: "photo", Filename: "snap.jpg", Reader: strings.NewReader("JPEGDATA")}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.OK {
		t.Error("expected ok response")
	}
}

func TestGetBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte{0xff, 0xd8, 0xff, 0xd9})
	}))
	defer srv.Close()

	b, ct, err := New("webcam", "").GetBytes(context.Background(), srv.URL+"/webcam/?action=snapshot")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b) != 4 || ct != "image/jpeg" {
		t.Errorf("got %d bytes, content type %q", len(b), ct)
	}
}
