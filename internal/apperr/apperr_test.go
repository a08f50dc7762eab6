package apperr

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
)

func TestKind(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"config", &ConfigError{Missing: []string{"api_key"}}, "ConfigError"},
		{"network", &NetworkError{Service: "octoprint", Err: errors.New("refused")}, "NetworkError"},
		{"api wrapped", fmt.Errorf("start print: %w", &APIError{StatusCode: 409}), "ApiError"},
		{"file", &FileError{Path: "x.gcode", Err: os.ErrNotExist}, "FileError"},
		{"plain", errors.New("boom"), ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Kind(tc.err); got != tc.want {
				t.Errorf("Kind: want %q, got %q", tc.want, got)
			}
		})
	}
}

func TestStatusCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", &APIError{Service: "octoprint", Method: "POST", URL: "/api/job", StatusCode: 409, Body: "Printer is busy"})
	if got := StatusCode(err); got != 409 {
		t.Fatalf("want 409, got %d", got)
	}
	if !strings.Contains(err.Error(), "HTTP 409") || !strings.Contains(err.Error(), "Printer is busy") {
		t.Errorf("unexpected message: %s", err)
	}
	if got := StatusCode(errors.New("x")); got != 0 {
		t.Errorf("want 0 for non-API error, got %d", got)
	}
}

func TestConfigErrorNamesMissingKeys(t *testing.T) {
	err := &ConfigError{Missing: []string{"telegram_bot_token", "telegram_chat_id"}}
	msg := err.Error()
	for _, key := range err.Missing {
		if !strings.Contains(msg, key) {
			t.Errorf("message %q does not name %s", msg, key)
		}
	}
}

func TestFileErrorNotFound(t *testing.T) {
	err := &FileError{Path: "/nope.gcode", Err: os.ErrNotExist}
	if !err.NotFound() {
		t.Fatal("expected NotFound")
	}
	if !strings.Contains(err.Error(), "file not found") {
		t.Errorf("unexpected message: %s", err)
	}
}
