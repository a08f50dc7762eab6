package main

import (
	"strconv"
	"time"

	"octoprint-cli/internal/config"
	"octoprint-cli/internal/metrics"
	"octoprint-cli/internal/output"
	"octoprint-cli/internal/printer"
	"octoprint-cli/internal/status"
)

const unknown = "unknown"

func cmdStatus(a *app, args []string) int {
	if len(args) != 0 {
		return a.usageErr("status", nil)
	}
	client, _, err := a.octoprint()
	if err != nil {
		return a.errExit(err)
	}
	if a.format() == output.Plain {
		snap, err := client.Snapshot(a.ctx)
		if err != nil {
			return a.errExit(err)
		}
		return a.exitOnErr(output.WritePlainKV(a.stdout, snapshotKV(snap)))
	}
	raw, err := client.RawStatus(a.ctx)
	if err != nil {
		return a.errExit(err)
	}
	return a.exitOnErr(output.WriteJSON(a.stdout, raw))
}

func cmdStatusPretty(a *app, args []string) int {
	if len(args) != 0 {
		return a.usageErr("status-pretty", nil)
	}
	client, cfg, err := a.octoprint()
	if err != nil {
		return a.errExit(err)
	}
	snap, err := client.Snapshot(a.ctx)
	if err != nil {
		a.recordMetrics(cfg, metrics.NewExporter(), nil, nil)
		return a.errExit(err)
	}
	a.recordMetrics(cfg, metrics.NewExporter(), &snap, nil)

	pretty := status.Format(snap, a.now())
	switch a.format() {
	case output.JSON:
		return a.exitOnErr(output.WriteJSON(a.stdout, pretty))
	case output.Plain:
		return a.exitOnErr(output.WritePlainKV(a.stdout, snapshotKV(snap)))
	default:
		return a.exitOnErr(pretty.WriteText(a.stdout, a.palette()))
	}
}

// recordMetrics writes the textfile when a metrics path is configured.
// A nil snapshot records the printer as down.
func (a *app) recordMetrics(cfg config.Config, e *metrics.Exporter, snap *printer.Snapshot, rep *status.Report) {
	path := a.metricsPath(cfg)
	if path == "" {
		return
	}
	e.Observe(snap, a.now())
	if rep != nil {
		e.ObserveReport(*rep)
	}
	if err := e.WriteFile(path); err != nil {
		a.warn("metrics", err)
	}
}

func snapshotKV(snap printer.Snapshot) map[string]string {
	kv := map[string]string{
		"state":      string(snap.State),
		"state_text": snap.StateText,
		"taken_at":   snap.TakenAt.Format(time.RFC3339),
	}
	for _, h := range snap.Heaters {
		kv[h.Name+"_actual"] = optFloat(h.Actual)
		kv[h.Name+"_target"] = optFloat(h.Target)
	}
	kv["file"] = ""
	kv["progress"] = unknown
	kv["print_time"] = unknown
	kv["print_time_left"] = unknown
	if j := snap.Job; j != nil {
		kv["file"] = j.File
		if p, ok := snap.Progress(); ok {
			kv["progress"] = status.Percent(p)
		}
		kv["print_time"] = optInt(j.PrintTime)
		kv["print_time_left"] = optInt(j.PrintTimeLeft)
	}
	return kv
}

func optFloat(v *float64) string {
	if v == nil {
		return unknown
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}

func optInt(v *int) string {
	if v == nil {
		return unknown
	}
	return strconv.Itoa(*v)
}
