package printer

import "encoding/json"

// Wire types for the OctoPrint REST API. Nullable numbers are pointers.

type TempReading struct {
	Actual *float64 `json:"actual"`
	Target *float64 `json:"target"`
	Offset *float64 `json:"offset,omitempty"`
}

type StateInfo struct {
	Text  string `json:"text"`
	Flags Flags  `json:"flags"`
}

type PrinterResponse struct {
	// Heater readings keyed by name plus a "history" array, hence raw.
	Temperature map[string]json.RawMessage `json:"temperature"`
	State       StateInfo                  `json:"state"`
	SD          *struct {
		Ready bool `json:"ready"`
	} `json:"sd,omitempty"`
}

type FileRef struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Origin string `json:"origin"`
	Size   *int64 `json:"size"`
	Date   *int64 `json:"date"`
}

type FilamentUsage struct {
	Length *float64 `json:"length"`
	Volume *float64 `json:"volume"`
}

type JobInfo struct {
	File               FileRef                  `json:"file"`
	EstimatedPrintTime *float64                 `json:"estimatedPrintTime"`
	LastPrintTime      *float64                 `json:"lastPrintTime"`
	Filament           map[string]FilamentUsage `json:"filament"`
}

type ProgressInfo struct {
	Completion          *float64 `json:"completion"`
	Filepos             *int64   `json:"filepos"`
	PrintTime           *int     `json:"printTime"`
	PrintTimeLeft       *int     `json:"printTimeLeft"`
	PrintTimeLeftOrigin string   `json:"printTimeLeftOrigin"`
}

type JobResponse struct {
	Job      JobInfo      `json:"job"`
	Progress ProgressInfo `json:"progress"`
	State    string       `json:"state"`
	Error    string       `json:"error,omitempty"`
}

type ConnectionCurrent struct {
	State          string `json:"state"`
	Port           string `json:"port"`
	Baudrate       *int   `json:"baudrate"`
	PrinterProfile string `json:"printerProfile"`
}

type ConnectionResponse struct {
	Current ConnectionCurrent `json:"current"`
}

type FileEntry struct {
	Name     string      `json:"name"`
	Display  string      `json:"display,omitempty"`
	Path     string      `json:"path"`
	Type     string      `json:"type"`
	Origin   string      `json:"origin"`
	Size     *int64      `json:"size,omitempty"`
	Date     *int64      `json:"date,omitempty"`
	Children []FileEntry `json:"children,omitempty"`
}

type FilesResponse struct {
	Files []FileEntry `json:"files"`
	Free  *int64      `json:"free,omitempty"`
	Total *int64      `json:"total,omitempty"`
}

type UploadResponse struct {
	Done  bool `json:"done"`
	Files map[string]struct {
		Name   string `json:"name"`
		Path   string `json:"path"`
		Origin string `json:"origin"`
	} `json:"files"`
}

type VersionResponse struct {
	API    string `json:"api"`
	Server string `json:"server"`
	Text   string `json:"text"`
}

type LoginResponse struct {
	Name    string `json:"name"`
	Session string `json:"session"`
}

// RawStatus is what the "status" command prints verbatim.
type RawStatus struct {
	Printer    json.RawMessage `json:"printer"`
	Job        json.RawMessage `json:"job"`
	Connection json.RawMessage `json:"connection"`
}
