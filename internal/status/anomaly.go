package status

import (
	"fmt"
	"math"
	"time"

	"octoprint-cli/internal/printer"
)

const (
	DeviationWarning  = 5.0
	DeviationCritical = 15.0
	OverheatLimit     = 280.0
	StallWindow       = 5 * time.Minute
)

type Severity string

const (
	Warning  Severity = "warning"
	Critical Severity = "critical"
)

type Finding struct {
	Severity Severity `json:"severity"`
	Check    string   `json:"check"`
	Message  string   `json:"message"`
}

// Report is the outcome of one classification. Findings keep check order.
type Report struct {
	Status    string    `json:"status"`
	Errors    []string  `json:"errors"`
	Warnings  []string  `json:"warnings"`
	Findings  []Finding `json:"findings"`
	Timestamp time.Time `json:"timestamp"`
}

func (r Report) HasCritical() bool { return len(r.Errors) > 0 }

// Input is everything Classify looks at. Err is the failure of the status
// read itself, in which case Current is ignored. Previous and Elapsed are
// optional and only feed the stall check; a zero Elapsed is derived from
// the snapshots' TakenAt.
type Input struct {
	Current  printer.Snapshot
	Err      error
	Previous *printer.Snapshot
	Elapsed  time.Duration
	Now      time.Time
}

type check func(Input) []Finding

var checks = []check{
	checkErrorState,
	checkLinkClosed,
	checkDeviation,
	checkOverheat,
	checkStall,
}

func Classify(in Input) Report {
	var findings []Finding
	if in.Err != nil {
		findings = []Finding{{Severity: Critical, Check: "connection", Message: "connection lost: " + in.Err.Error()}}
	} else {
		for _, c := range checks {
			findings = append(findings, c(in)...)
		}
	}
	return newReport(findings, in.Now)
}

func newReport(findings []Finding, now time.Time) Report {
	r := Report{
		Status:    "ok",
		Errors:    []string{},
		Warnings:  []string{},
		Findings:  findings,
		Timestamp: now,
	}
	if r.Findings == nil {
		r.Findings = []Finding{}
	}
	for _, f := range findings {
		if f.Severity == Critical {
			r.Errors = append(r.Errors, f.Message)
		} else {
			r.Warnings = append(r.Warnings, f.Message)
		}
	}
	switch {
	case len(r.Errors) > 0:
		r.Status = "error"
	case len(r.Warnings) > 0:
		r.Status = "warning"
	}
	return r
}

func printing(s printer.Snapshot) bool {
	return s.Flags.Printing || s.State == printer.StatePrinting
}

func checkErrorState(in Input) []Finding {
	s := in.Current
	if !s.Flags.Error && s.State != printer.StateError {
		return nil
	}
	msg := "Printer is in error state"
	if s.StateText != "" {
		msg += ": " + s.StateText
	}
	return []Finding{{Severity: Critical, Check: "error-state", Message: msg}}
}

func checkLinkClosed(in Input) []Finding {
	s := in.Current
	if s.Flags.Error || s.State == printer.StateError {
		return nil
	}
	if !s.Flags.ClosedOrError && s.State != printer.StateOffline {
		return nil
	}
	return []Finding{{Severity: Critical, Check: "link-closed", Message: "Printer connection closed or error"}}
}

func checkDeviation(in Input) []Finding {
	if !printing(in.Current) {
		return nil
	}
	var out []Finding
	for _, h := range in.Current.Heaters {
		if !h.Active() || h.Actual == nil {
			continue
		}
		diff := math.Abs(*h.Actual - *h.Target)
		switch {
		case diff > DeviationCritical:
			out = append(out, Finding{
				Severity: Critical,
				Check:    "deviation:" + h.Name,
				Message:  fmt.Sprintf("%s temperature off by %.1f°C (actual: %.1f°C, target: %.1f°C)", h.Name, diff, *h.Actual, *h.Target),
			})
		case diff > DeviationWarning:
			out = append(out, Finding{
				Severity: Warning,
				Check:    "deviation:" + h.Name,
				Message:  fmt.Sprintf("%s temperature %.1f°C from target", h.Name, diff),
			})
		}
	}
	return out
}

func checkOverheat(in Input) []Finding {
	var out []Finding
	for _, h := range in.Current.Heaters {
		if h.Actual == nil || *h.Actual <= OverheatLimit {
			continue
		}
		out = append(out, Finding{
			Severity: Critical,
			Check:    "overheat:" + h.Name,
			Message:  fmt.Sprintf("%s overheating: %.1f°C", h.Name, *h.Actual),
		})
	}
	return out
}

func checkStall(in Input) []Finding {
	cur := in.Current
	if !printing(cur) || cur.Job == nil {
		return nil
	}
	progress, ok := cur.Progress()
	if !ok {
		return nil
	}

	if prev := in.Previous; prev != nil {
		if prev.Job == nil || !sameJob(*prev.Job, *cur.Job) {
			return nil
		}
		before, ok := prev.Progress()
		if !ok || before != progress {
			return nil
		}
		elapsed := in.Elapsed
		if elapsed <= 0 && !prev.TakenAt.IsZero() && !cur.TakenAt.IsZero() {
			elapsed = cur.TakenAt.Sub(prev.TakenAt)
		}
		if elapsed <= StallWindow {
			return nil
		}
		return []Finding{stallFinding(fmt.Sprintf("Print may be stalled (progress stuck at %s for %s)", Percent(progress), elapsed.Round(time.Second)))}
	}

	// Single read: a job that has printed for over five minutes without
	// any completion is suspicious.
	if progress == 0 && cur.Job.PrintTime != nil && time.Duration(*cur.Job.PrintTime)*time.Second > StallWindow {
		return []Finding{stallFinding("Print may be stalled (no progress after 5 minutes)")}
	}
	return nil
}

func stallFinding(msg string) Finding {
	return Finding{Severity: Warning, Check: "stall", Message: msg}
}

func sameJob(a, b printer.Job) bool {
	if a.Path != "" && b.Path != "" {
		return a.Path == b.Path && a.Origin == b.Origin
	}
	return a.File == b.File
}
