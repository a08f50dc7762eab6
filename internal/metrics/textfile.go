// Package metrics writes printer gauges in node_exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"octoprint-cli/internal/printer"
	"octoprint-cli/internal/status"
)

var knownStates = []printer.State{
	printer.StateOperational, printer.StatePrinting, printer.StatePausing, printer.StatePaused,
	printer.StateResuming, printer.StateCancelling, printer.StateFinishing, printer.StateError,
	printer.StateOffline, printer.StateConnecting, printer.StateUnknown,
}

// Exporter holds one registry per process so repeated writes in a watch
// loop replace values instead of accumulating series.
type Exporter struct {
	registry *prometheus.Registry

	up          prometheus.Gauge
	state       *prometheus.GaugeVec
	jobActive   prometheus.Gauge
	temperature *prometheus.GaugeVec
	progress    prometheus.Gauge
	printTime   prometheus.Gauge
	timeLeft    prometheus.Gauge
	findings    *prometheus.GaugeVec
	lastCheck   prometheus.Gauge
}

func NewExporter() *Exporter {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Exporter{
		registry: reg,
		up: f.NewGauge(prometheus.GaugeOpts{
			Name: "octoprint_up",
			Help: "Whether the last status read succeeded",
		}),
		state: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "octoprint_printer_state",
			Help: "1 for the printer's current state, 0 otherwise",
		}, []string{"state"}),
		jobActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "octoprint_job_active",
			Help: "1 while a job is running or suspended mid-print",
		}),
		temperature: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "octoprint_heater_temperature_celsius",
			Help: "Heater temperature by heater and kind (actual or target)",
		}, []string{"heater", "kind"}),
		progress: f.NewGauge(prometheus.GaugeOpts{
			Name: "octoprint_job_progress_ratio",
			Help: "Job completion between 0 and 1",
		}),
		printTime: f.NewGauge(prometheus.GaugeOpts{
			Name: "octoprint_job_print_time_seconds",
			Help: "Seconds the current job has been printing",
		}),
		timeLeft: f.NewGauge(prometheus.GaugeOpts{
			Name: "octoprint_job_time_left_seconds",
			Help: "Estimated seconds left for the current job",
		}),
		findings: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "octoprint_anomaly_findings",
			Help: "Findings of the last anomaly check by severity",
		}, []string{"severity"}),
		lastCheck: f.NewGauge(prometheus.GaugeOpts{
			Name: "octoprint_last_check_timestamp_seconds",
			Help: "Unix time of the last status read",
		}),
	}
}

// Observe records a snapshot, or only up=0 when snap is nil.
func (e *Exporter) Observe(snap *printer.Snapshot, at time.Time) {
	e.lastCheck.Set(float64(at.Unix()))
	if snap == nil {
		e.up.Set(0)
		return
	}
	e.up.Set(1)
	for _, s := range knownStates {
		v := 0.0
		if s == snap.State {
			v = 1
		}
		e.state.WithLabelValues(string(s)).Set(v)
	}
	active := 0.0
	if snap.State.Active() {
		active = 1
	}
	e.jobActive.Set(active)

	e.temperature.Reset()
	for _, h := range snap.Heaters {
		if h.Actual != nil {
			e.temperature.WithLabelValues(h.Name, "actual").Set(*h.Actual)
		}
		if h.Target != nil {
			e.temperature.WithLabelValues(h.Name, "target").Set(*h.Target)
		}
	}

	progress, printTime, timeLeft := 0.0, 0.0, 0.0
	if p, ok := snap.Progress(); ok {
		progress = p
	}
	if j := snap.Job; j != nil {
		if j.PrintTime != nil {
			printTime = float64(*j.PrintTime)
		}
		if j.PrintTimeLeft != nil {
			timeLeft = float64(*j.PrintTimeLeft)
		}
	}
	e.progress.Set(progress)
	e.printTime.Set(printTime)
	e.timeLeft.Set(timeLeft)
}

func (e *Exporter) ObserveReport(r status.Report) {
	e.findings.WithLabelValues(string(status.Critical)).Set(float64(len(r.Errors)))
	e.findings.WithLabelValues(string(status.Warning)).Set(float64(len(r.Warnings)))
}

// WriteFile replaces path atomically with the current values.
func (e *Exporter) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, e.registry)
}
