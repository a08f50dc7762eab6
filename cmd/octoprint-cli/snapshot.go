package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"octoprint-cli/internal/apperr"
	"octoprint-cli/internal/archive"
	"octoprint-cli/internal/config"
	"octoprint-cli/internal/output"
)

type snapshotResult struct {
	Path     string `json:"path"`
	Bytes    int    `json:"bytes"`
	Archived string `json:"archived,omitempty"`
}

func defaultSnapshotPath(at time.Time, ext string) string {
	return filepath.Join(os.TempDir(), "octoprint_snapshot_"+at.Format("20060102_150405")+ext)
}

func cmdSnapshot(a *app, args []string) int {
	if len(args) > 1 {
		return a.usageErr("snapshot", nil)
	}
	cfg, err := a.config()
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
	path := defaultSnapshotPath(now, ext)
	if len(args) == 1 {
		path = args[0]
	}
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return a.errExit(&apperr.FileError{Path: path, Err: err})
	}

	res := snapshotResult{Path: path, Bytes: len(img)}
	res.Archived = a.archiveSnapshot(cfg, img, filepath.Base(path), now)

	switch a.format() {
	case output.JSON:
		return a.exitOnErr(output.WriteJSON(a.stdout, res))
	case output.Plain:
		fmt.Fprintln(a.stdout, path)
		return 0
	}
	a.say("Saved snapshot to %s (%s)", path, output.Size(int64(len(img))))
	if res.Archived != "" {
		a.say("Archived to ftp://%s%s", cfg.FTPArchive.Addr, res.Archived)
	}
	return 0
}

// archiveSnapshot copies img to the FTP archive when one is configured and
// returns the remote path, or "" when nothing was stored.
func (a *app) archiveSnapshot(cfg config.Config, img []byte, name string, at time.Time) string {
	if !cfg.FTPArchiveEnabled() {
		return ""
	}
	arch := archive.New(cfg.FTPArchive, cfg.Timeout(), a.logger())
	remote, err := arch.Store(a.ctx, bytes.NewReader(img), name, at)
	if err != nil {
		a.warn("ftp archive", err)
		return ""
	}
	return remote
}
