package printer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"octoprint-cli/internal/apperr"
)

const (
	pushPath = "/sockjs/websocket"

	// OctoPrint sends state at most every throttle*500ms. A read waits for
	// pushMissedUpdates of those periods plus the client timeout.
	pushUpdatePeriod  = 500 * time.Millisecond
	pushMissedUpdates = 3
)

// PushStream reads OctoPrint's raw SockJS websocket and turns "current" and
// "history" messages into snapshots.
type PushStream struct {
	conn    *websocket.Conn
	now     func() time.Time
	heaters []Heater

	timeout     time.Duration
	readTimeout time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

type pushState struct {
	State    StateInfo                    `json:"state"`
	Job      JobInfo                      `json:"job"`
	Progress ProgressInfo                 `json:"progress"`
	Temps    []map[string]json.RawMessage `json:"temps"`
}

// OpenPush authenticates with a passive login and subscribes to the push
// stream. The stream is closed when ctx is done or Close is called.
func (c *Client) OpenPush(ctx context.Context) (*PushStream, error) {
	session, err := c.login(ctx)
	if err != nil {
		return nil, fmt.Errorf("push login: %w", err)
	}

	target := PushURL(c.baseURL)
	dialer := websocket.Dialer{HandshakeTimeout: c.http.Timeout()}
	conn, resp, err := dialer.DialContext(ctx, target, http.Header{apiKeyHeader: []string{c.apiKey}})
	if err != nil {
		if resp != nil {
			return nil, &apperr.APIError{Service: "octoprint", Method: http.MethodGet, URL: target, StatusCode: resp.StatusCode}
		}
		return nil, &apperr.NetworkError{Service: "octoprint", Op: "websocket", URL: target, Err: err}
	}
	auth := map[string]string{"auth": session.Name + ":" + session.Session}
	if err := conn.WriteJSON(auth); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("push auth: %w", err)
	}

	s := &PushStream{conn: conn, now: c.now, timeout: c.http.Timeout(), done: make(chan struct{})}
	s.readTimeout = readTimeoutFor(s.timeout, 1)
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

func PushURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + pushPath
}

// SetThrottle asks OctoPrint to send state updates every n*500ms.
func (s *PushStream) SetThrottle(n int) error {
	if n < 1 {
		n = 1
	}
	s.readTimeout = readTimeoutFor(s.timeout, n)
	return s.conn.WriteJSON(map[string]int{"throttle": n})
}

func readTimeoutFor(timeout time.Duration, throttle int) time.Duration {
	return timeout + pushMissedUpdates*time.Duration(throttle)*pushUpdatePeriod
}

// Next blocks until the next state message arrives. A silent socket fails
// with a timed out NetworkError once the read deadline passes.
func (s *PushStream) Next() (Snapshot, error) {
	for {
		if s.readTimeout > 0 {
			if err := s.conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
				return Snapshot{}, &apperr.NetworkError{Service: "octoprint", Op: "websocket", URL: pushPath, Err: err}
			}
		}
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			var ne net.Error
			timedOut := errors.As(err, &ne) && ne.Timeout()
			return Snapshot{}, &apperr.NetworkError{Service: "octoprint", Op: "websocket", URL: pushPath, Timeout: timedOut, Err: err}
		}
		snap, ok, err := s.decode(data)
		if err != nil {
			return Snapshot{}, err
		}
		if ok {
			return snap, nil
		}
	}
}

func (s *PushStream) decode(data []byte) (Snapshot, bool, error) {
	var msg map[string]json.RawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Snapshot{}, false, fmt.Errorf("push message: %w", err)
	}
	raw, ok := msg["current"]
	if !ok {
		raw, ok = msg["history"]
	}
	if !ok {
		return Snapshot{}, false, nil
	}
	var st pushState
	if err := json.Unmarshal(raw, &st); err != nil {
		return Snapshot{}, false, fmt.Errorf("push state: %w", err)
	}
	if n := len(st.Temps); n > 0 {
		s.heaters = ParseHeaters(st.Temps[n-1])
	}
	job := &JobResponse{Job: st.Job, Progress: st.Progress, State: st.State.Text}
	snap := BuildSnapshot(st.State, nil, job, nil, s.now())
	snap.Heaters = append([]Heater(nil), s.heaters...)
	return snap, true, nil
}

func (s *PushStream) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}
