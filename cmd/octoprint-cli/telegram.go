package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"octoprint-cli/internal/apperr"
	"octoprint-cli/internal/output"
	"octoprint-cli/internal/status"
)

func cmdTelegramStatus(a *app, args []string) int {
	if len(args) != 0 {
		return a.usageErr("telegram-status", nil)
	}
	cfg, err := a.config()
	if err != nil {
		return a.errExit(err)
	}
	tg, err := a.telegram(cfg)
	if err != nil {
		return a.errExit(err)
	}
	client, _, err := a.octoprint()
	if err != nil {
		return a.errExit(err)
	}
	snap, err := client.Snapshot(a.ctx)
	if err != nil {
		return a.errExit(err)
	}
	text := status.Format(snap, a.now()).Markdown()
	if a.gf.DryRun {
		fmt.Fprintln(a.stdout, text)
		return 0
	}
	if err := tg.SendMessage(a.ctx, text); err != nil {
		return a.errExit(err)
	}
	return a.sent("status")
}

// cmdTelegramSnapshot stages the frame in a temp file, which is removed
// whether or not the send succeeds.
func cmdTelegramSnapshot(a *app, args []string) int {
	if len(args) != 0 {
		return a.usageErr("telegram-snapshot", nil)
	}
	cfg, err := a.config()
	if err != nil {
		return a.errExit(err)
	}
	tg, err := a.telegram(cfg)
	if err != nil {
		return a.errExit(err)
	}
	cam, err := a.webcam(cfg)
	if err != nil {
		return a.errExit(err)
	}
	img, ext, err := cam.Snapshot(a.ctx)
	if err != nil {
		return a.errExit(err)
	}
	now := a.now()

	tmp, err := os.CreateTemp("", "octoprint_snapshot_*"+ext)
	if err != nil {
		return a.errExit(&apperr.FileError{Path: os.TempDir(), Err: err})
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()
	if _, err := tmp.Write(img); err != nil {
		return a.errExit(&apperr.FileError{Path: tmp.Name(), Err: err})
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return a.errExit(&apperr.FileError{Path: tmp.Name(), Err: err})
	}
	if a.gf.DryRun {
		a.say("Would send %s (%s)", tmp.Name(), output.Size(int64(len(img))))
		return 0
	}
	a.archiveSnapshot(cfg, img, filepath.Base(tmp.Name()), now)
	caption := a.snapshotCaption(now)
	if err := tg.SendPhoto(a.ctx, tmp, filepath.Base(tmp.Name()), caption); err != nil {
		return a.errExit(err)
	}
	return a.sent("snapshot")
}

// snapshotCaption names the running job when OctoPrint answers. The photo is
// still sent when it does not.
func (a *app) snapshotCaption(now time.Time) string {
	caption := "Snapshot " + now.Format("2006-01-02 15:04:05")
	client, _, err := a.octoprint()
	if err != nil {
		return caption
	}
	snap, err := client.Snapshot(a.ctx)
	if err != nil {
		a.logger().Warnw("snapshot caption without job", "err", err)
		return caption
	}
	if snap.Job == nil || snap.Job.File == "" {
		return caption
	}
	caption += "\n" + status.EscapeMarkdown(snap.Job.File)
	if p, ok := snap.Progress(); ok {
		caption += " " + status.Percent(p)
	}
	return caption
}

func cmdTelegramMsg(a *app, args []string) int {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return a.usageErr("telegram-msg", nil)
	}
	cfg, err := a.config()
	if err != nil {
		return a.errExit(err)
	}
	tg, err := a.telegram(cfg)
	if err != nil {
		return a.errExit(err)
	}
	if a.gf.DryRun {
		a.say("Would send: %s", text)
		return 0
	}
	if err := tg.SendMessage(a.ctx, text); err != nil {
		return a.errExit(err)
	}
	return a.sent("message")
}

func (a *app) sent(what string) int {
	if a.format() == output.JSON {
		return a.exitOnErr(output.WriteJSON(a.stdout, map[string]any{"sent": what}))
	}
	a.say("Sent %s to Telegram", what)
	return 0
}
