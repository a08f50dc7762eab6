package apperr

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ConfigError reports a missing or unusable configuration file, or absent keys.
type ConfigError struct {
	Path    string
	Missing []string
	Err     error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("config")
	if e.Path != "" {
		fmt.Fprintf(&b, " %s", e.Path)
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": missing %s", strings.Join(e.Missing, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NetworkError covers unreachable hosts, refused connections and timeouts.
type NetworkError struct {
	Service string
	Op      string
	URL     string
	Timeout bool
	Err     error
}

func (e *NetworkError) Error() string {
	kind := "unreachable"
	if e.Timeout {
		kind = "timed out"
	}
	return fmt.Sprintf("%s %s %s %s: %v", e.Service, e.Op, e.URL, kind, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// APIError is a non-2xx response from OctoPrint, Telegram or the webcam.
type APIError struct {
	Service    string
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s %s %s: HTTP %d", e.Service, e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s %s: HTTP %d: %s", e.Service, e.Method, e.URL, e.StatusCode, body)
}

// FileError wraps a local file that is missing or unreadable.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	if e.NotFound() {
		return fmt.Sprintf("file not found: %s", e.Path)
	}
	return fmt.Sprintf("file %s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

func (e *FileError) NotFound() bool { return errors.Is(e.Err, os.ErrNotExist) }

// PartialDataError describes a single value that could not be derived.
// It is never returned from a command; callers record it and carry on.
type PartialDataError struct {
	Field string
	Value string
	Err   error
}

func (e *PartialDataError) Error() string {
	return fmt.Sprintf("%s: cannot parse %q: %v", e.Field, e.Value, e.Err)
}

func (e *PartialDataError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status of an APIError anywhere in the chain, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Kind names the taxonomy bucket of err for operator-facing messages.
func Kind(err error) string {
	var (
		cfgErr  *ConfigError
		netErr  *NetworkError
		apiErr  *APIError
		fileErr *FileError
	)
	switch {
	case errors.As(err, &cfgErr):
		return "ConfigError"
	case errors.As(err, &netErr):
		return "NetworkError"
	case errors.As(err, &apiErr):
		return "ApiError"
	case errors.As(err, &fileErr):
		return "FileError"
	default:
		return ""
	}
}
