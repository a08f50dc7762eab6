package status

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"octoprint-cli/internal/output"
	"octoprint-cli/internal/printer"
)

const (
	// AtTargetTolerance matches the classifier's warning threshold so a
	// heater shown at target never carries a deviation finding.
	AtTargetTolerance = DeviationWarning
	barWidth          = 30
	// FilamentDiameterMM is assumed for every volume estimate.
	FilamentDiameterMM = 1.75
)

type HeaterClass string

const (
	HeaterIdle     HeaterClass = "idle"
	HeaterAtTarget HeaterClass = "at-target"
	HeaterHeating  HeaterClass = "heating"
	HeaterCooling  HeaterClass = "cooling"
)

func ClassifyHeater(h printer.Heater) HeaterClass {
	if !h.Active() || h.Actual == nil {
		return HeaterIdle
	}
	d := *h.Actual - *h.Target
	switch {
	case math.Abs(d) <= AtTargetTolerance:
		return HeaterAtTarget
	case d < 0:
		return HeaterHeating
	default:
		return HeaterCooling
	}
}

type HeaterLine struct {
	Name   string      `json:"name"`
	Label  string      `json:"label"`
	Actual *float64    `json:"actual"`
	Target *float64    `json:"target"`
	Class  HeaterClass `json:"class"`
}

type Progress struct {
	Fraction float64 `json:"fraction"`
	Percent  string  `json:"percent"`
	Bar      string  `json:"bar"`
}

type FilamentLine struct {
	Tool      string  `json:"tool"`
	LengthM   float64 `json:"length_m"`
	VolumeCM3 float64 `json:"volume_cm3"`
}

type JobLines struct {
	File      string         `json:"file"`
	Progress  *Progress      `json:"progress,omitempty"`
	Elapsed   *time.Duration `json:"elapsed,omitempty"`
	Remaining *time.Duration `json:"remaining,omitempty"`
	ETA       *time.Time     `json:"eta,omitempty"`
	Filament  []FilamentLine `json:"filament,omitempty"`
}

// Pretty is a snapshot reduced to what a person reads: classified heaters,
// a progress bar and derived times. It holds no color codes.
type Pretty struct {
	State      printer.State       `json:"state"`
	StateText  string              `json:"state_text"`
	Heaters    []HeaterLine        `json:"heaters"`
	Job        *JobLines           `json:"job,omitempty"`
	Connection *printer.Connection `json:"connection,omitempty"`
}

func Format(snap printer.Snapshot, now time.Time) Pretty {
	p := Pretty{
		State:      snap.State,
		StateText:  snap.StateText,
		Connection: snap.Connection,
	}
	if p.StateText == "" {
		p.StateText = string(snap.State)
	}
	for _, h := range snap.Heaters {
		p.Heaters = append(p.Heaters, HeaterLine{
			Name:   h.Name,
			Label:  h.DisplayName(),
			Actual: h.Actual,
			Target: h.Target,
			Class:  ClassifyHeater(h),
		})
	}
	if snap.Job != nil {
		p.Job = formatJob(*snap.Job, now)
	}
	return p
}

func formatJob(job printer.Job, now time.Time) *JobLines {
	lines := &JobLines{File: job.File}
	if job.Progress != nil {
		lines.Progress = newProgress(*job.Progress)
	}
	if job.PrintTime != nil {
		d := time.Duration(*job.PrintTime) * time.Second
		lines.Elapsed = &d
	}
	if job.PrintTimeLeft != nil {
		d := time.Duration(*job.PrintTimeLeft) * time.Second
		lines.Remaining = &d
		if job.PrintTime != nil && *job.PrintTimeLeft > 0 {
			eta := now.Add(d)
			lines.ETA = &eta
		}
	}
	for _, f := range job.Filament {
		if f.LengthMM == nil {
			continue
		}
		lines.Filament = append(lines.Filament, FilamentLine{
			Tool:      f.Tool,
			LengthM:   *f.LengthMM / 1000,
			VolumeCM3: FilamentVolumeCM3(*f.LengthMM),
		})
	}
	return lines
}

// FilamentVolumeCM3 estimates extruded volume from length in millimeters.
func FilamentVolumeCM3(lengthMM float64) float64 {
	r := FilamentDiameterMM / 2
	return math.Pi * r * r * lengthMM / 1000
}

func newProgress(fraction float64) *Progress {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	filled := int(math.Round(fraction * barWidth))
	return &Progress{
		Fraction: fraction,
		Percent:  Percent(fraction),
		Bar:      strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled),
	}
}

// Percent renders a 0..1 fraction with one decimal, dropping a trailing ".0".
func Percent(fraction float64) string {
	v := math.Round(fraction*1000) / 10
	s := strconv.FormatFloat(v, 'f', 1, 64)
	return strings.TrimSuffix(s, ".0") + "%"
}

func temp(v *float64) string {
	if v == nil {
		return "?"
	}
	return strconv.FormatFloat(*v, 'f', 1, 64) + "°C"
}

// WriteText renders p for a terminal.
func (p Pretty) WriteText(w io.Writer, pal output.Palette) error {
	var b strings.Builder
	rule := strings.Repeat("=", 60)
	fmt.Fprintln(&b, pal.Bold(rule))
	fmt.Fprintf(&b, "%s %s\n", pal.Accent("State:"), stateColor(pal, p.State)(p.StateText))
	if c := p.Connection; c != nil {
		parts := []string{}
		if c.Port != "" {
			parts = append(parts, c.Port)
		}
		if c.Baudrate != nil {
			parts = append(parts, strconv.Itoa(*c.Baudrate)+" baud")
		}
		if c.Profile != "" {
			parts = append(parts, "profile "+c.Profile)
		}
		if len(parts) > 0 {
			fmt.Fprintf(&b, "%s %s\n", pal.Accent("Connection:"), strings.Join(parts, ", "))
		}
	}

	fmt.Fprintln(&b, pal.Accent("Temperatures:"))
	if len(p.Heaters) == 0 {
		fmt.Fprintln(&b, "  none reported")
	}
	for _, h := range p.Heaters {
		fmt.Fprintf(&b, "  %-9s %s / %s  %s\n", h.Label+":", temp(h.Actual), temp(h.Target), classColor(pal, h.Class)(string(h.Class)))
	}

	if p.Job == nil {
		fmt.Fprintf(&b, "%s None\n", pal.Accent("Current Job:"))
	} else {
		j := p.Job
		fmt.Fprintln(&b, pal.Accent("Current Job:"))
		fmt.Fprintf(&b, "  File: %s\n", pal.Bold(j.File))
		if j.Progress != nil {
			fmt.Fprintf(&b, "  Progress: [%s] %s\n", j.Progress.Bar, j.Progress.Percent)
		}
		if j.Elapsed != nil {
			fmt.Fprintf(&b, "  Elapsed: %s\n", output.Duration(*j.Elapsed))
		}
		if j.Remaining != nil {
			fmt.Fprintf(&b, "  Remaining: %s\n", output.Duration(*j.Remaining))
		}
		if j.ETA != nil {
			fmt.Fprintf(&b, "  ETA: %s\n", j.ETA.Format("15:04:05"))
		}
		for _, f := range j.Filament {
			fmt.Fprintf(&b, "  Filament (%s): %.2fm / %.2fcm³\n", f.Tool, f.LengthM, f.VolumeCM3)
		}
	}
	fmt.Fprintln(&b, pal.Bold(rule))
	_, err := io.WriteString(w, b.String())
	return err
}

// Markdown renders p for a Telegram message with parse_mode Markdown.
func (p Pretty) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Printer:* %s\n", EscapeMarkdown(p.StateText))
	for _, h := range p.Heaters {
		fmt.Fprintf(&b, "*%s:* %s / %s (%s)\n", h.Label, temp(h.Actual), temp(h.Target), h.Class)
	}
	if j := p.Job; j != nil {
		fmt.Fprintf(&b, "*File:* %s\n", EscapeMarkdown(j.File))
		if j.Progress != nil {
			fmt.Fprintf(&b, "*Progress:* %s\n", j.Progress.Percent)
		}
		if j.Remaining != nil {
			fmt.Fprintf(&b, "*Remaining:* %s\n", output.Duration(*j.Remaining))
		}
		if j.ETA != nil {
			fmt.Fprintf(&b, "*ETA:* %s\n", j.ETA.Format("15:04"))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func stateColor(pal output.Palette, s printer.State) func(string) string {
	switch s {
	case printer.StatePrinting, printer.StateOperational, printer.StateFinishing:
		return pal.Good
	case printer.StateError, printer.StateOffline:
		return pal.Bad
	case printer.StatePaused, printer.StatePausing, printer.StateCancelling, printer.StateResuming:
		return pal.Warn
	default:
		return pal.Bold
	}
}

func classColor(pal output.Palette, c HeaterClass) func(string) string {
	switch c {
	case HeaterAtTarget:
		return pal.Good
	case HeaterHeating, HeaterCooling:
		return pal.Warn
	default:
		return pal.Dim
	}
}

// Markdown renders a report for a Telegram alert.
func (r Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Check:* %s\n", r.Status)
	for _, f := range r.Findings {
		fmt.Fprintf(&b, "- %s: %s\n", f.Severity, EscapeMarkdown(f.Message))
	}
	return strings.TrimRight(b.String(), "\n")
}
