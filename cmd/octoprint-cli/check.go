package main

import (
	"fmt"
	"strings"

	"octoprint-cli/internal/config"
	"octoprint-cli/internal/metrics"
	"octoprint-cli/internal/notify"
	"octoprint-cli/internal/output"
	"octoprint-cli/internal/printer"
	"octoprint-cli/internal/status"
)

// cmdCheckErrors reads the printer once and classifies it. A failed read is
// itself a critical finding, so the report is printed either way and the
// exit code is 1 whenever anything critical was found.
func cmdCheckErrors(a *app, args []string) int {
	if len(args) != 0 {
		return a.usageErr("check-errors", nil)
	}
	client, cfg, err := a.octoprint()
	if err != nil {
		return a.errExit(err)
	}
	snap, readErr := client.Snapshot(a.ctx)
	rep := status.Classify(status.Input{Current: snap, Err: readErr, Now: a.now()})

	var observed *printer.Snapshot
	if readErr == nil {
		observed = &snap
	}
	a.recordMetrics(cfg, metrics.NewExporter(), observed, &rep)
	a.publishOnce(cfg, func(p *notify.Publisher) error { return p.PublishReport(rep) })

	if err := a.writeReport(rep); err != nil {
		return a.errExit(err)
	}
	if rep.HasCritical() {
		return 1
	}
	return 0
}

func (a *app) writeReport(rep status.Report) error {
	switch a.format() {
	case output.JSON:
		return output.WriteJSON(a.stdout, rep)
	case output.Plain:
		for _, f := range rep.Findings {
			if _, err := fmt.Fprintf(a.stdout, "%s\t%s\t%s\n", f.Severity, f.Check, f.Message); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(a.stdout, "status\t%s\n", rep.Status)
		return err
	}
	pal := a.palette()
	label := strings.ToUpper(rep.Status)
	switch rep.Status {
	case "error":
		label = pal.Bad(label)
	case "warning":
		label = pal.Warn(label)
	default:
		label = pal.Good(label)
	}
	fmt.Fprintf(a.stdout, "Check: %s (%d errors, %d warnings)\n", label, len(rep.Errors), len(rep.Warnings))
	for _, f := range rep.Findings {
		sev := pal.Warn(string(f.Severity))
		if f.Severity == status.Critical {
			sev = pal.Bad(string(f.Severity))
		}
		fmt.Fprintf(a.stdout, "  [%s] %s: %s\n", sev, pal.Dim(f.Check), f.Message)
	}
	return nil
}

// publishOnce connects to the configured broker for a single publish.
func (a *app) publishOnce(cfg config.Config, fn func(*notify.Publisher) error) {
	if !cfg.MQTTEnabled() {
		return
	}
	pub, err := notify.NewPublisher(cfg.MQTT, cfg.OctoPrintURL, cfg.Timeout(), a.logger())
	if err != nil {
		a.warn("mqtt", err)
		return
	}
	defer pub.Close()
	if err := fn(pub); err != nil {
		a.warn("mqtt", err)
	}
}
