package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"octoprint-cli/internal/printer"
	"octoprint-cli/internal/status"
)

func f(v float64) *float64 { return &v }

func TestWriteFile(t *testing.T) {
	e := NewExporter()
	at := time.Unix(1700000000, 0)
	progress := 0.25
	left := 3600
	e.Observe(&printer.Snapshot{
		State:   printer.StatePrinting,
		Heaters: []printer.Heater{{Name: "tool0", Actual: f(201), Target: f(200)}},
		Job:     &printer.Job{File: "a.gcode", Progress: &progress, PrintTimeLeft: &left},
	}, at)
	e.ObserveReport(status.Report{Errors: []string{"x"}, Warnings: []string{}})

	path := filepath.Join(t.TempDir(), "octoprint.prom")
	if err := e.WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(b)
	for _, want := range []string{
		"octoprint_up 1",
		`octoprint_printer_state{state="PRINTING"} 1`,
		`octoprint_printer_state{state="PAUSED"} 0`,
		"octoprint_job_active 1",
		`octoprint_heater_temperature_celsius{heater="tool0",kind="actual"} 201`,
		"octoprint_job_progress_ratio 0.25",
		"octoprint_job_time_left_seconds 3600",
		`octoprint_anomaly_findings{severity="critical"} 1`,
		"octoprint_last_check_timestamp_seconds 1.7e+09",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}
}

func TestObserveUnreachable(t *testing.T) {
	e := NewExporter()
	e.Observe(nil, time.Unix(1, 0))
	path := filepath.Join(t.TempDir(), "down.prom")
	if err := e.WriteFile(path); err != nil {
		t.Fatal(err)
	}
	b, _ := os.ReadFile(path)
	if !strings.Contains(string(b), "octoprint_up 0") {
		t.Fatalf("got:\n%s", b)
	}
}

func TestJobActiveFollowsState(t *testing.T) {
	cases := map[printer.State]string{
		printer.StatePaused:      "octoprint_job_active 1",
		printer.StateOperational: "octoprint_job_active 0",
		printer.StateError:       "octoprint_job_active 0",
	}
	for state, want := range cases {
		e := NewExporter()
		e.Observe(&printer.Snapshot{State: state}, time.Unix(1, 0))
		path := filepath.Join(t.TempDir(), "job.prom")
		if err := e.WriteFile(path); err != nil {
			t.Fatal(err)
		}
		b, _ := os.ReadFile(path)
		if !strings.Contains(string(b), want) {
			t.Errorf("%s: missing %q in:\n%s", state, want, b)
		}
	}
}
