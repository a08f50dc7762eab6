package printer

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

type Heater struct {
	Name   string   `json:"name"`
	Actual *float64 `json:"actual"`
	Target *float64 `json:"target"`
}

// Active reports whether a positive target is set.
func (h Heater) Active() bool {
	return h.Target != nil && *h.Target > 0
}

// DisplayName turns tool0 into "Hotend 0" and bed into "Bed".
func (h Heater) DisplayName() string {
	switch {
	case strings.HasPrefix(h.Name, "tool"):
		return "Hotend " + strings.TrimPrefix(h.Name, "tool")
	case h.Name == "":
		return ""
	default:
		return strings.ToUpper(h.Name[:1]) + h.Name[1:]
	}
}

type Filament struct {
	Tool      string   `json:"tool"`
	LengthMM  *float64 `json:"length_mm"`
	VolumeCM3 *float64 `json:"volume_cm3"`
}

type Job struct {
	File                string     `json:"file"`
	Path                string     `json:"path,omitempty"`
	Origin              string     `json:"origin,omitempty"`
	Size                *int64     `json:"size,omitempty"`
	Progress            *float64   `json:"progress"`
	PrintTime           *int       `json:"print_time"`
	PrintTimeLeft       *int       `json:"print_time_left"`
	PrintTimeLeftOrigin string     `json:"print_time_left_origin,omitempty"`
	EstimatedPrintTime  *float64   `json:"estimated_print_time,omitempty"`
	Filament            []Filament `json:"filament,omitempty"`
}

type Connection struct {
	Port     string `json:"port,omitempty"`
	Baudrate *int   `json:"baudrate,omitempty"`
	Profile  string `json:"profile,omitempty"`
}

// Snapshot is one point-in-time read of the printer. Job is nil when no file
// is selected; Progress is a 0..1 fraction.
type Snapshot struct {
	State      State       `json:"state"`
	StateText  string      `json:"state_text"`
	Flags      Flags       `json:"flags"`
	Heaters    []Heater    `json:"heaters"`
	Job        *Job        `json:"job,omitempty"`
	Connection *Connection `json:"connection,omitempty"`
	TakenAt    time.Time   `json:"taken_at"`
}

// Progress returns the job progress fraction, if any.
func (s Snapshot) Progress() (float64, bool) {
	if s.Job == nil || s.Job.Progress == nil {
		return 0, false
	}
	return *s.Job.Progress, true
}

func BuildSnapshot(state StateInfo, temps map[string]json.RawMessage, job *JobResponse, conn *ConnectionResponse, now time.Time) Snapshot {
	snap := Snapshot{
		State:     ParseState(state.Text, state.Flags),
		StateText: state.Text,
		Flags:     state.Flags,
		Heaters:   ParseHeaters(temps),
		TakenAt:   now,
	}
	if snap.StateText == "" && job != nil {
		snap.StateText = job.State
		snap.State = parseStateText(job.State)
	}
	if job != nil {
		snap.Job = buildJob(*job)
	}
	if conn != nil {
		c := conn.Current
		if c.Port != "" || c.Baudrate != nil || c.PrinterProfile != "" {
			snap.Connection = &Connection{Port: c.Port, Baudrate: c.Baudrate, Profile: c.PrinterProfile}
		}
	}
	return snap
}

// ParseHeaters keeps entries that look like heater readings and skips the
// rest (history arrays, timestamps).
func ParseHeaters(temps map[string]json.RawMessage) []Heater {
	heaters := make([]Heater, 0, len(temps))
	for name, raw := range temps {
		if name == "history" || name == "time" {
			continue
		}
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(raw, &probe); err != nil {
			continue
		}
		if _, ok := probe["actual"]; !ok {
			continue
		}
		var r TempReading
		if err := json.Unmarshal(raw, &r); err != nil {
			continue
		}
		heaters = append(heaters, Heater{Name: name, Actual: r.Actual, Target: r.Target})
	}
	sort.Slice(heaters, func(i, j int) bool { return heaters[i].Name < heaters[j].Name })
	return heaters
}

func buildJob(resp JobResponse) *Job {
	name := resp.Job.File.Name
	if name == "" {
		return nil
	}
	job := &Job{
		File:                name,
		Path:                resp.Job.File.Path,
		Origin:              resp.Job.File.Origin,
		Size:                resp.Job.File.Size,
		PrintTime:           resp.Progress.PrintTime,
		PrintTimeLeft:       resp.Progress.PrintTimeLeft,
		PrintTimeLeftOrigin: resp.Progress.PrintTimeLeftOrigin,
		EstimatedPrintTime:  resp.Job.EstimatedPrintTime,
	}
	if c := resp.Progress.Completion; c != nil {
		f := *c / 100
		job.Progress = &f
	}
	tools := make([]string, 0, len(resp.Job.Filament))
	for tool := range resp.Job.Filament {
		tools = append(tools, tool)
	}
	sort.Strings(tools)
	for _, tool := range tools {
		usage := resp.Job.Filament[tool]
		if usage.Length == nil && usage.Volume == nil {
			continue
		}
		job.Filament = append(job.Filament, Filament{Tool: tool, LengthMM: usage.Length, VolumeCM3: usage.Volume})
	}
	return job
}

// OfflineSnapshot describes a printer whose serial link is down; OctoPrint
// answers /api/printer with 409 in that case.
func OfflineSnapshot(job *JobResponse, conn *ConnectionResponse, now time.Time) Snapshot {
	text := "Offline"
	if job != nil && job.State != "" {
		text = job.State
	}
	snap := BuildSnapshot(StateInfo{Text: text, Flags: Flags{ClosedOrError: true}}, nil, job, conn, now)
	if snap.State != StateError {
		snap.State = StateOffline
	}
	return snap
}
