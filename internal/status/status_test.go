package status

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"octoprint-cli/internal/output"
	"octoprint-cli/internal/printer"
)

func f(v float64) *float64 { return &v }
func i(v int) *int         { return &v }

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func printingSnapshot(heaters ...printer.Heater) printer.Snapshot {
	return printer.Snapshot{
		State:     printer.StatePrinting,
		StateText: "Printing",
		Flags:     printer.Flags{Printing: true, Operational: true},
		Heaters:   heaters,
		TakenAt:   now,
	}
}

func TestFormatPrintingAtTarget(t *testing.T) {
	snap := printingSnapshot(
		printer.Heater{Name: "bed", Actual: f(60), Target: f(60)},
		printer.Heater{Name: "tool0", Actual: f(205), Target: f(200)},
	)
	snap.Job = &printer.Job{File: "benchy.gcode", Progress: f(0.42)}

	p := Format(snap, now)
	if got := p.Heaters[1].Class; got != HeaterAtTarget {
		t.Fatalf("tool0 class = %s, want at-target", got)
	}

	var buf bytes.Buffer
	if err := p.WriteText(&buf, output.NewPalette(false)); err != nil {
		t.Fatal(err)
	}
	text := buf.String()
	for _, want := range []string{"Printing", "42%", "205.0", "60.0", "at-target", "benchy.gcode"} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}

	report := Classify(Input{Current: snap, Now: now})
	if report.Status != "ok" || len(report.Findings) != 0 {
		t.Fatalf("findings = %+v, want none", report.Findings)
	}
}

func TestFormatOmitsProgressWithoutJob(t *testing.T) {
	snap := printer.Snapshot{State: printer.StateOperational, StateText: "Operational"}
	p := Format(snap, now)
	if p.Job != nil {
		t.Fatalf("job = %+v, want nil", p.Job)
	}
	var buf bytes.Buffer
	if err := p.WriteText(&buf, output.Palette{}); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "%") {
		t.Fatalf("unexpected progress in:\n%s", buf.String())
	}

	snap.Job = &printer.Job{File: "cube.gcode"}
	if p := Format(snap, now); p.Job.Progress != nil {
		t.Fatalf("progress = %+v, want nil without completion", p.Job.Progress)
	}
}

func TestFormatTimesAndFilament(t *testing.T) {
	snap := printingSnapshot()
	snap.Job = &printer.Job{
		File:          "a.gcode",
		Progress:      f(0.5),
		PrintTime:     i(600),
		PrintTimeLeft: i(3600),
		Filament:      []printer.Filament{{Tool: "tool0", LengthMM: f(1000)}},
	}
	p := Format(snap, now)
	if p.Job.ETA == nil || !p.Job.ETA.Equal(now.Add(time.Hour)) {
		t.Fatalf("eta = %v", p.Job.ETA)
	}
	if len(p.Job.Filament) != 1 || p.Job.Filament[0].LengthM != 1 {
		t.Fatalf("filament = %+v", p.Job.Filament)
	}
	if v := p.Job.Filament[0].VolumeCM3; v < 2.40 || v > 2.41 {
		t.Fatalf("volume = %v, want ~2.405", v)
	}
	if p.Job.Progress.Bar != strings.Repeat("█", 15)+strings.Repeat("░", 15) {
		t.Fatalf("bar = %q", p.Job.Progress.Bar)
	}

	snap.Job.PrintTime = nil
	if p := Format(snap, now); p.Job.ETA != nil {
		t.Fatalf("eta without print time = %v", p.Job.ETA)
	}
	snap.Job.PrintTime = i(600)
	snap.Job.PrintTimeLeft = i(0)
	if p := Format(snap, now); p.Job.ETA != nil {
		t.Fatalf("eta with zero left = %v", p.Job.ETA)
	}
}

func TestClassifyHeater(t *testing.T) {
	cases := []struct {
		actual, target *float64
		want           HeaterClass
	}{
		{f(25), f(0), HeaterIdle},
		{f(25), nil, HeaterIdle},
		{nil, f(200), HeaterIdle},
		{f(196), f(200), HeaterAtTarget},
		{f(150), f(200), HeaterHeating},
		{f(220), f(200), HeaterCooling},
	}
	for _, tc := range cases {
		if got := ClassifyHeater(printer.Heater{Name: "tool0", Actual: tc.actual, Target: tc.target}); got != tc.want {
			t.Errorf("ClassifyHeater(%v/%v) = %s, want %s", tc.actual, tc.target, got, tc.want)
		}
	}
}

func TestPercent(t *testing.T) {
	cases := map[float64]string{0: "0%", 0.42: "42%", 0.123: "12.3%", 1: "100%", 0.9999: "100%"}
	for in, want := range cases {
		if got := Percent(in); got != want {
			t.Errorf("Percent(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestMarkdown(t *testing.T) {
	snap := printingSnapshot(printer.Heater{Name: "tool0", Actual: f(200), Target: f(200)})
	snap.Job = &printer.Job{File: "my_part.gcode", Progress: f(0.1)}
	md := Format(snap, now).Markdown()
	for _, want := range []string{"*Printer:* Printing", "*Hotend 0:* 200.0°C", `my\_part.gcode`, "10%"} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestReportMarkdown(t *testing.T) {
	r := Report{Status: "warning", Findings: []Finding{{Severity: Warning, Check: "stall", Message: "progress stuck on part_a.gcode"}}}
	md := r.Markdown()
	if !strings.Contains(md, "*Check:* warning") || !strings.Contains(md, `- warning: progress stuck on part\_a.gcode`) {
		t.Fatalf("markdown:\n%s", md)
	}
}

func TestClassifyDeviation(t *testing.T) {
	cases := []struct {
		name   string
		actual float64
		target float64
		want   Severity
	}{
		{"critical", 240, 200, Critical},
		{"warning", 210, 200, Warning},
		{"boundary warning", 215, 200, Warning},
		{"boundary none", 205, 200, ""},
		{"below target", 180, 200, Critical},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := printingSnapshot(printer.Heater{Name: "tool0", Actual: f(tc.actual), Target: f(tc.target)})
			r := Classify(Input{Current: snap, Now: now})
			if tc.want == "" {
				if len(r.Findings) != 0 {
					t.Fatalf("findings = %+v, want none", r.Findings)
				}
				return
			}
			if len(r.Findings) != 1 {
				t.Fatalf("findings = %+v, want one", r.Findings)
			}
			got := r.Findings[0]
			if got.Severity != tc.want || got.Check != "deviation:tool0" {
				t.Fatalf("finding = %+v", got)
			}
		})
	}
}

func TestClassifyCriticalReportsError(t *testing.T) {
	snap := printingSnapshot(printer.Heater{Name: "tool0", Actual: f(240), Target: f(200)})
	r := Classify(Input{Current: snap, Now: now})
	if !r.HasCritical() || r.Status != "error" {
		t.Fatalf("report = %+v", r)
	}
	if !strings.Contains(r.Errors[0], "40.0") {
		t.Fatalf("message = %q", r.Errors[0])
	}
}

func TestClassifyZeroTargetOnlyOverheat(t *testing.T) {
	for _, actual := range []float64{20, 150, 279, 281, 300} {
		snap := printingSnapshot(printer.Heater{Name: "tool0", Actual: f(actual), Target: f(0)})
		r := Classify(Input{Current: snap, Now: now})
		for _, fnd := range r.Findings {
			if strings.HasPrefix(fnd.Check, "deviation:") {
				t.Fatalf("actual %v: unexpected deviation %+v", actual, fnd)
			}
		}
		wantOverheat := actual > OverheatLimit
		if got := len(r.Findings) == 1 && r.Findings[0].Check == "overheat:tool0"; got != wantOverheat {
			t.Fatalf("actual %v: findings = %+v", actual, r.Findings)
		}
	}
}

func TestClassifyIdleIgnoresDeviation(t *testing.T) {
	snap := printer.Snapshot{
		State:   printer.StateOperational,
		Flags:   printer.Flags{Operational: true},
		Heaters: []printer.Heater{{Name: "bed", Actual: f(25), Target: f(60)}},
	}
	if r := Classify(Input{Current: snap, Now: now}); len(r.Findings) != 0 {
		t.Fatalf("findings = %+v", r.Findings)
	}
}

func TestClassifyConnectionShortCircuits(t *testing.T) {
	snap := printingSnapshot(printer.Heater{Name: "tool0", Actual: f(300), Target: f(200)})
	r := Classify(Input{Current: snap, Err: errors.New("dial tcp: refused"), Now: now})
	if len(r.Findings) != 1 || r.Findings[0].Check != "connection" || r.Findings[0].Severity != Critical {
		t.Fatalf("findings = %+v", r.Findings)
	}
	if !strings.Contains(r.Findings[0].Message, "connection lost") {
		t.Fatalf("message = %q", r.Findings[0].Message)
	}
}

func TestClassifyOrder(t *testing.T) {
	snap := printingSnapshot(
		printer.Heater{Name: "bed", Actual: f(70), Target: f(60)},
		printer.Heater{Name: "tool0", Actual: f(300), Target: f(200)},
	)
	snap.Flags.Error = true
	snap.State = printer.StateError
	snap.Flags.Printing = true
	r := Classify(Input{Current: snap, Now: now})

	var checks []string
	for _, fnd := range r.Findings {
		checks = append(checks, fnd.Check)
	}
	want := []string{"error-state", "deviation:bed", "deviation:tool0", "overheat:tool0"}
	if strings.Join(checks, ",") != strings.Join(want, ",") {
		t.Fatalf("checks = %v, want %v", checks, want)
	}
}

func TestClassifyLinkClosed(t *testing.T) {
	snap := printer.OfflineSnapshot(nil, nil, now)
	r := Classify(Input{Current: snap, Now: now})
	if len(r.Findings) != 1 || r.Findings[0].Check != "link-closed" {
		t.Fatalf("findings = %+v", r.Findings)
	}
}

func TestClassifyStall(t *testing.T) {
	job := func(progress float64) *printer.Job {
		return &printer.Job{File: "a.gcode", Path: "a.gcode", Origin: "local", Progress: f(progress), PrintTime: i(1200)}
	}
	cases := []struct {
		name    string
		prev    float64
		cur     float64
		elapsed time.Duration
		stall   bool
	}{
		{"unchanged past window", 0.3, 0.3, 6 * time.Minute, true},
		{"unchanged at window", 0.3, 0.3, 5 * time.Minute, false},
		{"unchanged short", 0.3, 0.3, time.Minute, false},
		{"advanced", 0.3, 0.31, 10 * time.Minute, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prev := printingSnapshot()
			prev.Job = job(tc.prev)
			cur := printingSnapshot()
			cur.Job = job(tc.cur)
			r := Classify(Input{Current: cur, Previous: &prev, Elapsed: tc.elapsed, Now: now})
			got := len(r.Findings) == 1 && r.Findings[0].Check == "stall" && r.Findings[0].Severity == Warning
			if got != tc.stall {
				t.Fatalf("findings = %+v, want stall=%v", r.Findings, tc.stall)
			}
		})
	}
}

func TestClassifyStallFromTakenAt(t *testing.T) {
	prev := printingSnapshot()
	prev.Job = &printer.Job{File: "a.gcode", Progress: f(0.5)}
	prev.TakenAt = now.Add(-10 * time.Minute)
	cur := printingSnapshot()
	cur.Job = &printer.Job{File: "a.gcode", Progress: f(0.5)}

	r := Classify(Input{Current: cur, Previous: &prev, Now: now})
	if len(r.Findings) != 1 || r.Findings[0].Check != "stall" {
		t.Fatalf("findings = %+v", r.Findings)
	}

	cur.Job.File = "b.gcode"
	if r := Classify(Input{Current: cur, Previous: &prev, Now: now}); len(r.Findings) != 0 {
		t.Fatalf("different job stalled: %+v", r.Findings)
	}
}

func TestClassifyStallSingleRead(t *testing.T) {
	cur := printingSnapshot()
	cur.Job = &printer.Job{File: "a.gcode", Progress: f(0), PrintTime: i(301)}
	r := Classify(Input{Current: cur, Now: now})
	if len(r.Findings) != 1 || r.Findings[0].Check != "stall" {
		t.Fatalf("findings = %+v", r.Findings)
	}
	cur.Job.PrintTime = i(300)
	if r := Classify(Input{Current: cur, Now: now}); len(r.Findings) != 0 {
		t.Fatalf("findings = %+v", r.Findings)
	}
}
