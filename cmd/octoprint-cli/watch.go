package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"octoprint-cli/internal/config"
	"octoprint-cli/internal/metrics"
	"octoprint-cli/internal/notify"
	"octoprint-cli/internal/output"
	"octoprint-cli/internal/printer"
	"octoprint-cli/internal/status"
	"octoprint-cli/internal/telegram"
)

type watchOptions struct {
	interval time.Duration
	push     bool
	notify   bool
	count    int
}

func parseWatchFlags(args []string) (watchOptions, error) {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	interval := fs.Int("interval", 30, "seconds between checks")
	push := fs.Bool("push", false, "use the OctoPrint push socket instead of polling")
	notifyTG := fs.Bool("notify", false, "send Telegram alerts when the check result changes")
	count := fs.Int("count", 0, "stop after n checks (0 runs until interrupted)")
	if err := fs.Parse(args); err != nil {
		return watchOptions{}, err
	}
	if fs.NArg() > 0 {
		return watchOptions{}, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	if *interval < 1 {
		return watchOptions{}, fmt.Errorf("--interval must be at least 1 second")
	}
	if *count < 0 {
		return watchOptions{}, fmt.Errorf("--count must not be negative")
	}
	return watchOptions{
		interval: time.Duration(*interval) * time.Second,
		push:     *push,
		notify:   *notifyTG,
		count:    *count,
	}, nil
}

// watcher classifies a stream of snapshots. anchor is the first snapshot
// since progress last moved, so a stall is measured from there rather than
// from the previous poll.
type watcher struct {
	a          *app
	cfg        config.Config
	tg         *telegram.Client
	pub        *notify.Publisher
	exporter   *metrics.Exporter
	anchor     *printer.Snapshot
	lastStatus string
}

type watchEvent struct {
	Status *status.Pretty `json:"status,omitempty"`
	Report status.Report  `json:"report"`

	snap *printer.Snapshot
}

func cmdWatch(a *app, args []string) int {
	opts, err := parseWatchFlags(args)
	if err != nil {
		return a.usageErr("watch", err)
	}
	client, cfg, err := a.octoprint()
	if err != nil {
		return a.errExit(err)
	}
	w := &watcher{a: a, cfg: cfg, exporter: metrics.NewExporter(), lastStatus: "ok"}
	if opts.notify {
		if w.tg, err = a.telegram(cfg); err != nil {
			return a.errExit(err)
		}
	}
	if cfg.MQTTEnabled() {
		if w.pub, err = notify.NewPublisher(cfg.MQTT, cfg.OctoPrintURL, cfg.Timeout(), a.logger()); err != nil {
			return a.errExit(err)
		}
		defer w.pub.Close()
	}
	a.logger().Infow("watch started", "interval", opts.interval, "push", opts.push)

	if opts.push {
		return w.runPush(client, opts)
	}
	return w.runPoll(client, opts)
}

func (w *watcher) runPoll(client *printer.Client, opts watchOptions) int {
	ctx := w.a.ctx
	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()
	for n := 0; opts.count == 0 || n < opts.count; n++ {
		if n > 0 {
			select {
			case <-ctx.Done():
				return 0
			case <-ticker.C:
			}
		}
		snap, err := client.Snapshot(ctx)
		if ctx.Err() != nil {
			return 0
		}
		if err := w.check(snap, err); err != nil {
			return w.a.errExit(err)
		}
	}
	return 0
}

// runPush reads state from the push socket and classifies at most once per
// interval. A dropped socket ends the watch with an error.
func (w *watcher) runPush(client *printer.Client, opts watchOptions) int {
	ctx := w.a.ctx
	stream, err := client.OpenPush(ctx)
	if err != nil {
		return w.a.errExit(err)
	}
	defer stream.Close()
	if err := stream.SetThrottle(int(opts.interval / (500 * time.Millisecond))); err != nil {
		return w.a.errExit(err)
	}
	var last time.Time
	for n := 0; opts.count == 0 || n < opts.count; {
		snap, err := stream.Next()
		if err != nil {
			if ctx.Err() != nil {
				return 0
			}
			return w.a.errExit(err)
		}
		if !last.IsZero() && snap.TakenAt.Sub(last) < opts.interval {
			continue
		}
		last = snap.TakenAt
		if err := w.check(snap, nil); err != nil {
			return w.a.errExit(err)
		}
		n++
	}
	return 0
}

// check classifies one read, prints it and fans it out. Only a failure to
// write to stdout is returned; notification errors are warnings.
func (w *watcher) check(snap printer.Snapshot, readErr error) error {
	in := status.Input{Current: snap, Err: readErr, Now: w.a.now()}
	var observed *printer.Snapshot
	if readErr == nil {
		in.Previous = w.advance(snap)
		observed = &snap
	}
	rep := status.Classify(in)

	ev := watchEvent{Report: rep, snap: observed}
	if observed != nil {
		pretty := status.Format(snap, in.Now)
		ev.Status = &pretty
		if w.pub != nil {
			if err := w.pub.PublishStatus(pretty, in.Now); err != nil {
				w.a.warn("mqtt", err)
			}
		}
	}
	if w.pub != nil {
		if err := w.pub.PublishReport(rep); err != nil {
			w.a.warn("mqtt", err)
		}
	}
	w.a.recordMetrics(w.cfg, w.exporter, observed, &rep)
	w.alert(rep)
	return w.print(ev)
}

// advance returns the anchor to compare snap against, or nil when progress
// moved and snap becomes the new anchor.
func (w *watcher) advance(snap printer.Snapshot) *printer.Snapshot {
	if w.anchor != nil && sameProgress(*w.anchor, snap) {
		return w.anchor
	}
	s := snap
	w.anchor = &s
	return nil
}

func sameProgress(a, b printer.Snapshot) bool {
	if a.Job == nil || b.Job == nil || a.Job.File != b.Job.File {
		return false
	}
	pa, okA := a.Progress()
	pb, okB := b.Progress()
	return okA && okB && pa == pb
}

// alert sends a Telegram message whenever the overall status changes,
// including the recovery back to ok.
func (w *watcher) alert(rep status.Report) {
	if rep.Status == w.lastStatus {
		return
	}
	w.lastStatus = rep.Status
	if w.tg == nil {
		return
	}
	if err := w.tg.SendMessage(w.a.ctx, rep.Markdown()); err != nil {
		w.a.warn("telegram", err)
	}
}

func (w *watcher) print(ev watchEvent) error {
	a := w.a
	switch a.format() {
	case output.JSON:
		return output.WriteJSON(a.stdout, ev)
	case output.Plain:
		kv := map[string]string{
			"timestamp": ev.Report.Timestamp.Format(time.RFC3339),
			"check":     ev.Report.Status,
			"errors":    fmt.Sprint(len(ev.Report.Errors)),
			"warnings":  fmt.Sprint(len(ev.Report.Warnings)),
		}
		if ev.snap != nil {
			for k, v := range snapshotKV(*ev.snap) {
				kv[k] = v
			}
		}
		if err := output.WritePlainKV(a.stdout, kv); err != nil {
			return err
		}
		_, err := fmt.Fprintln(a.stdout)
		return err
	}
	fmt.Fprintln(a.stdout, a.palette().Dim(ev.Report.Timestamp.Format("2006-01-02 15:04:05")))
	if ev.Status != nil {
		if err := ev.Status.WriteText(a.stdout, a.palette()); err != nil {
			return err
		}
	}
	return a.writeReport(ev.Report)
}
