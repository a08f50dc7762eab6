package printer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"octoprint-cli/internal/apperr"
)

const apiKey = "test-api-key"

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

const printerJSON = `{
  "state": {"text": "Printing", "flags": {"operational": true, "printing": true, "ready": false, "closedOrError": false}},
  "temperature": {
    "tool0": {"actual": 205.0, "target": 200.0, "offset": 0},
    "bed": {"actual": 60.1, "target": 60.0, "offset": 0},
    "history": [{"time": 1, "tool0": {"actual": 20, "target": 0}}]
  }
}`

const jobJSON = `{
  "job": {
    "file": {"name": "benchy.gcode", "path": "prints/benchy.gcode", "origin": "local", "size": 1024},
    "estimatedPrintTime": 3600,
    "filament": {"tool0": {"length": 1500.5, "volume": 3.6}}
  },
  "progress": {"completion": 42.0, "printTime": 1500, "printTimeLeft": 2100, "printTimeLeftOrigin": "estimate"},
  "state": "Printing"
}`

const connectionJSON = `{"current": {"state": "Printing", "port": "/dev/ttyUSB0", "baudrate": 115200, "printerProfile": "_default"}}`

type fakeOctoPrint struct {
	t        *testing.T
	printer  int
	requests atomic.Int32
	bodies   map[string][]map[string]any
}

func newFake(t *testing.T) (*fakeOctoPrint, *Client) {
	t.Helper()
	f := &fakeOctoPrint{t: t, printer: http.StatusOK, bodies: map[string][]map[string]any{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, apiKey, Options{Timeout: 2 * time.Second})
	c.now = func() time.Time { return fixedNow }
	return f, c
}

func (f *fakeOctoPrint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)
	if r.Header.Get("X-Api-Key") != apiKey {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if r.Method == http.MethodPost && r.Header.Get("Content-Type") == "application/json" {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.bodies[r.URL.Path] = append(f.bodies[r.URL.Path], body)
	}
	switch {
	case r.URL.Path == "/api/printer":
		if f.printer != http.StatusOK {
			w.WriteHeader(f.printer)
			io.WriteString(w, "Printer is not operational")
			return
		}
		io.WriteString(w, printerJSON)
	case r.URL.Path == "/api/job" && r.Method == http.MethodGet:
		io.WriteString(w, jobJSON)
	case r.URL.Path == "/api/job":
		if cmd := f.bodies["/api/job"]; len(cmd) > 0 && cmd[len(cmd)-1]["command"] == "start" {
			w.WriteHeader(http.StatusConflict)
			io.WriteString(w, "Printer is busy")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case r.URL.Path == "/api/connection":
		io.WriteString(w, connectionJSON)
	case r.URL.Path == "/api/files":
		if r.URL.Query().Get("recursive") != "true" {
			f.t.Errorf("files listed without recursive=true")
		}
		io.WriteString(w, `{"files": [
		  {"name": "b.gcode", "path": "b.gcode", "type": "machinecode", "origin": "local", "size": 10},
		  {"name": "prints", "path": "prints", "type": "folder", "origin": "local", "children": [
		    {"name": "a.gcode", "path": "prints/a.gcode", "type": "machinecode", "origin": "local", "size": 20}
		  ]}
		]}`)
	case r.URL.Path == "/api/files/local" && r.Method == http.MethodPost:
		file, hdr, err := r.FormFile("file")
		if err != nil {
			f.t.Errorf("upload: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b, _ := io.ReadAll(file)
		if string(b) != "G28\n" {
			f.t.Errorf("upload body = %q", b)
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"done": true, "files": {"local": {"name": "`+hdr.Filename+`", "path": "`+hdr.Filename+`", "origin": "local"}}}`)
	case r.URL.Path == "/api/files/local/prints/my%20part.gcode" || r.URL.Path == "/api/files/local/prints/my part.gcode":
		w.WriteHeader(http.StatusNoContent)
	case r.URL.Path == "/api/printer/tool" || r.URL.Path == "/api/printer/bed":
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestSnapshot(t *testing.T) {
	_, c := newFake(t)
	snap, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.State != StatePrinting || snap.StateText != "Printing" {
		t.Fatalf("state = %s %q", snap.State, snap.StateText)
	}
	if len(snap.Heaters) != 2 || snap.Heaters[0].Name != "bed" || snap.Heaters[1].Name != "tool0" {
		t.Fatalf("heaters = %+v", snap.Heaters)
	}
	if p, ok := snap.Progress(); !ok || p != 0.42 {
		t.Fatalf("progress = %v %v", p, ok)
	}
	if snap.Job.Path != "prints/benchy.gcode" || *snap.Job.PrintTimeLeft != 2100 {
		t.Fatalf("job = %+v", snap.Job)
	}
	if len(snap.Job.Filament) != 1 || *snap.Job.Filament[0].LengthMM != 1500.5 {
		t.Fatalf("filament = %+v", snap.Job.Filament)
	}
	if snap.Connection == nil || snap.Connection.Port != "/dev/ttyUSB0" || *snap.Connection.Baudrate != 115200 {
		t.Fatalf("connection = %+v", snap.Connection)
	}
	if !snap.TakenAt.Equal(fixedNow) {
		t.Fatalf("taken at = %v", snap.TakenAt)
	}
}

func TestSnapshotOffline(t *testing.T) {
	f, c := newFake(t)
	f.printer = http.StatusConflict
	snap, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.State != StateOffline || !snap.Flags.ClosedOrError || len(snap.Heaters) != 0 {
		t.Fatalf("snap = %+v", snap)
	}
}

func TestRawStatusOffline(t *testing.T) {
	f, c := newFake(t)
	f.printer = http.StatusConflict
	raw, err := c.RawStatus(context.Background())
	if err != nil {
		t.Fatalf("RawStatus: %v", err)
	}
	if string(raw.Printer) != "null" || len(raw.Job) == 0 || len(raw.Connection) == 0 {
		t.Fatalf("raw = %s / %s / %s", raw.Printer, raw.Job, raw.Connection)
	}
}

func TestWrongKeyIsAPIError(t *testing.T) {
	_, c := newFake(t)
	c2 := NewClient(c.baseURL, "wrong", Options{})
	_, err := c2.Version(context.Background())
	if apperr.StatusCode(err) != http.StatusForbidden {
		t.Fatalf("err = %v, want 403", err)
	}
}

func TestStartPrintConflictNoRetry(t *testing.T) {
	f, c := newFake(t)
	err := c.StartPrint(context.Background(), "prints/my part.gcode")
	var apiErr *apperr.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
		t.Fatalf("err = %v, want APIError 409", err)
	}
	if n := len(f.bodies["/api/job"]); n != 1 {
		t.Fatalf("start requests = %d, want exactly 1", n)
	}
	if got := f.requests.Load(); got != 2 {
		t.Fatalf("requests = %d, want select + start", got)
	}
}

func TestControlPayloads(t *testing.T) {
	f, c := newFake(t)
	for _, cmd := range []JobCommand{JobPause, JobResume, JobCancel} {
		if err := c.Control(context.Background(), cmd); err != nil {
			t.Fatalf("%s: %v", cmd, err)
		}
	}
	got := f.bodies["/api/job"]
	if len(got) != 3 {
		t.Fatalf("bodies = %v", got)
	}
	if got[0]["command"] != "pause" || got[0]["action"] != "pause" {
		t.Fatalf("pause = %v", got[0])
	}
	if got[1]["command"] != "pause" || got[1]["action"] != "resume" {
		t.Fatalf("resume = %v", got[1])
	}
	if got[2]["command"] != "cancel" {
		t.Fatalf("cancel = %v", got[2])
	}
}

func TestSetTarget(t *testing.T) {
	f, c := newFake(t)
	if err := c.SetTarget(context.Background(), "tool0", 210); err != nil {
		t.Fatal(err)
	}
	if err := c.SetTarget(context.Background(), "bed", 60); err != nil {
		t.Fatal(err)
	}
	tool := f.bodies["/api/printer/tool"][0]
	targets, _ := tool["targets"].(map[string]any)
	if tool["command"] != "target" || targets["tool0"] != 210.0 {
		t.Fatalf("tool body = %v", tool)
	}
	if bed := f.bodies["/api/printer/bed"][0]; bed["target"] != 60.0 {
		t.Fatalf("bed body = %v", bed)
	}
	before := f.requests.Load()
	if err := c.SetTarget(context.Background(), "extruder", 200); err == nil {
		t.Fatal("expected invalid heater error")
	}
	if f.requests.Load() != before {
		t.Fatal("invalid heater must not reach the server")
	}
}

func TestFiles(t *testing.T) {
	_, c := newFake(t)
	files, err := c.Files(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || files[0].Path != "b.gcode" || files[1].Path != "prints/a.gcode" {
		t.Fatalf("files = %+v", files)
	}
}

func TestUpload(t *testing.T) {
	_, c := newFake(t)
	path := filepath.Join(t.TempDir(), "cube.gcode")
	if err := os.WriteFile(path, []byte("G28\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := c.Upload(context.Background(), path, "")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if got != "cube.gcode" {
		t.Fatalf("path = %q", got)
	}

	_, err = c.Upload(context.Background(), path+".missing", "")
	var fileErr *apperr.FileError
	if !errors.As(err, &fileErr) || !fileErr.NotFound() {
		t.Fatalf("err = %v, want FileError", err)
	}
}

func TestParseState(t *testing.T) {
	cases := []struct {
		text  string
		flags Flags
		want  State
	}{
		{"Printing", Flags{Printing: true}, StatePrinting},
		{"Paused", Flags{Paused: true, Printing: true}, StatePaused},
		{"Error: thermal runaway", Flags{Error: true}, StateError},
		{"Operational", Flags{Operational: true, Ready: true}, StateOperational},
		{"Offline", Flags{}, StateOffline},
		{"Offline after error", Flags{}, StateError},
		{"Detecting serial connection", Flags{}, StateConnecting},
		{"Sending file to SD", Flags{}, StatePrinting},
		{"", Flags{}, StateUnknown},
		{"something new", Flags{}, StateUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			if got := ParseState(tc.text, tc.flags); got != tc.want {
				t.Fatalf("ParseState(%q) = %s, want %s", tc.text, got, tc.want)
			}
		})
	}
}

func TestParseJobCommand(t *testing.T) {
	if c, ok := ParseJobCommand(" Pause "); !ok || c != JobPause {
		t.Fatalf("got %v %v", c, ok)
	}
	if _, ok := ParseJobCommand("stop"); ok {
		t.Fatal("stop must be rejected")
	}
}

func TestHeaterDisplayName(t *testing.T) {
	cases := map[string]string{"tool0": "Hotend 0", "tool1": "Hotend 1", "bed": "Bed", "chamber": "Chamber"}
	for in, want := range cases {
		if got := (Heater{Name: in}).DisplayName(); got != want {
			t.Errorf("%s: got %q, want %q", in, got, want)
		}
	}
}

func TestPushDecode(t *testing.T) {
	s := &PushStream{now: func() time.Time { return fixedNow }}
	msg := `{"current": {"state": {"text": "Printing", "flags": {"printing": true}},
	  "job": {"file": {"name": "a.gcode"}}, "progress": {"completion": 10},
	  "temps": [{"time": 1, "tool0": {"actual": 190, "target": 200}}]}}`
	snap, ok, err := s.decode([]byte(msg))
	if err != nil || !ok {
		t.Fatalf("decode: %v %v", ok, err)
	}
	if snap.State != StatePrinting || len(snap.Heaters) != 1 || *snap.Heaters[0].Actual != 190 {
		t.Fatalf("snap = %+v", snap)
	}

	// Later messages without temps keep the last readings.
	snap, ok, err = s.decode([]byte(`{"current": {"state": {"text": "Printing", "flags": {"printing": true}}, "temps": []}}`))
	if err != nil || !ok || len(snap.Heaters) != 1 {
		t.Fatalf("heaters not carried over: %+v %v", snap.Heaters, err)
	}

	if _, ok, err := s.decode([]byte(`{"connected": {"version": "1.9.0"}}`)); ok || err != nil {
		t.Fatalf("connected message: ok=%v err=%v", ok, err)
	}
}

func TestPushReadTimesOutOnSilentPeer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"name": "_api", "session": "abc"}`)
	})
	mux.HandleFunc(pushPath, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Read the auth and throttle messages, then never answer.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL, apiKey, Options{Timeout: 200 * time.Millisecond})
	stream, err := c.OpenPush(context.Background())
	if err != nil {
		t.Fatalf("OpenPush: %v", err)
	}
	defer stream.Close()
	if err := stream.SetThrottle(1); err != nil {
		t.Fatalf("SetThrottle: %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := stream.Next()
		errc <- err
	}()
	select {
	case err := <-errc:
		var ne *apperr.NetworkError
		if !errors.As(err, &ne) || !ne.Timeout {
			t.Fatalf("err = %v, want timed out NetworkError", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Next still blocked on a silent socket")
	}
}

func TestPushURL(t *testing.T) {
	cases := map[string]string{
		"http://octopi.local/":  "ws://octopi.local/sockjs/websocket",
		"https://printer.lan":   "wss://printer.lan/sockjs/websocket",
		"http://host:5000/octo": "ws://host:5000/octo/sockjs/websocket",
	}
	for in, want := range cases {
		if got := PushURL(in); got != want {
			t.Errorf("PushURL(%q) = %q, want %q", in, got, want)
		}
	}
}
