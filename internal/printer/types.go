package printer

import "strings"

type State string

const (
	StateOperational State = "OPERATIONAL"
	StatePrinting    State = "PRINTING"
	StatePausing     State = "PAUSING"
	StatePaused      State = "PAUSED"
	StateResuming    State = "RESUMING"
	StateCancelling  State = "CANCELLING"
	StateFinishing   State = "FINISHING"
	StateError       State = "ERROR"
	StateOffline     State = "OFFLINE"
	StateConnecting  State = "CONNECTING"
	StateUnknown     State = "UNKNOWN"
)

// Flags mirrors state.flags in /api/printer and the push stream.
type Flags struct {
	Operational   bool `json:"operational"`
	Printing      bool `json:"printing"`
	Pausing       bool `json:"pausing"`
	Paused        bool `json:"paused"`
	Resuming      bool `json:"resuming"`
	Cancelling    bool `json:"cancelling"`
	Finishing     bool `json:"finishing"`
	Error         bool `json:"error"`
	Ready         bool `json:"ready"`
	ClosedOrError bool `json:"closedOrError"`
	SDReady       bool `json:"sdReady"`
}

// ParseState derives the state from flags first and falls back to the
// free-form text OctoPrint shows in its UI.
func ParseState(text string, flags Flags) State {
	switch {
	case flags.Error:
		return StateError
	case flags.Cancelling:
		return StateCancelling
	case flags.Pausing:
		return StatePausing
	case flags.Paused:
		return StatePaused
	case flags.Resuming:
		return StateResuming
	case flags.Finishing:
		return StateFinishing
	case flags.Printing:
		return StatePrinting
	case flags.Operational || flags.Ready:
		return StateOperational
	}
	return parseStateText(text)
}

func parseStateText(text string) State {
	t := strings.ToLower(strings.TrimSpace(text))
	switch {
	case t == "":
		return StateUnknown
	case strings.HasPrefix(t, "offline after error"), strings.HasPrefix(t, "error"):
		return StateError
	case strings.HasPrefix(t, "offline"), strings.HasPrefix(t, "closed"):
		return StateOffline
	case strings.HasPrefix(t, "opening"), strings.HasPrefix(t, "detecting"), strings.HasPrefix(t, "connecting"):
		return StateConnecting
	case strings.HasPrefix(t, "cancelling"):
		return StateCancelling
	case strings.HasPrefix(t, "pausing"):
		return StatePausing
	case strings.HasPrefix(t, "paused"):
		return StatePaused
	case strings.HasPrefix(t, "resuming"):
		return StateResuming
	case strings.HasPrefix(t, "finishing"):
		return StateFinishing
	case strings.HasPrefix(t, "printing"), strings.HasPrefix(t, "sending"), strings.HasPrefix(t, "starting"):
		return StatePrinting
	case strings.HasPrefix(t, "operational"):
		return StateOperational
	default:
		return StateUnknown
	}
}

// Active reports whether a job is running or suspended mid-print.
func (s State) Active() bool {
	switch s {
	case StatePrinting, StatePausing, StatePaused, StateResuming, StateCancelling, StateFinishing:
		return true
	default:
		return false
	}
}

type JobCommand string

const (
	JobPause  JobCommand = "pause"
	JobResume JobCommand = "resume"
	JobCancel JobCommand = "cancel"
)

func ParseJobCommand(s string) (JobCommand, bool) {
	switch JobCommand(strings.ToLower(strings.TrimSpace(s))) {
	case JobPause:
		return JobPause, true
	case JobResume:
		return JobResume, true
	case JobCancel:
		return JobCancel, true
	default:
		return "", false
	}
}
