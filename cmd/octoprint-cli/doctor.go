package main

import (
	"fmt"
	"os"
	"strings"

	"octoprint-cli/internal/archive"
	"octoprint-cli/internal/config"
	"octoprint-cli/internal/notify"
	"octoprint-cli/internal/output"
)

type probe struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

const (
	probeOK      = "ok"
	probeFailed  = "failed"
	probeSkipped = "skipped"
)

// cmdDoctor checks each configured service once. Optional services that are
// not configured are skipped, not failed.
func cmdDoctor(a *app, args []string) int {
	if len(args) != 0 {
		return a.usageErr("doctor", nil)
	}
	client, cfg, err := a.octoprint()
	if err != nil {
		return a.errExit(err)
	}
	ctx := a.ctx

	probes := []probe{{Name: "config", Status: probeOK, Detail: configSources(cfg)}}
	add := func(name string, detail string, err error) {
		if err != nil {
			probes = append(probes, probe{Name: name, Status: probeFailed, Detail: err.Error()})
			return
		}
		probes = append(probes, probe{Name: name, Status: probeOK, Detail: detail})
	}
	skip := func(name, why string) {
		probes = append(probes, probe{Name: name, Status: probeSkipped, Detail: why})
	}

	v, err := client.Version(ctx)
	add("octoprint", fmt.Sprintf("%s, API %s", v.Text, v.API), err)

	if conn, err := client.Connection(ctx); err != nil {
		add("printer", "", err)
	} else {
		add("printer", conn.Current.State, nil)
	}

	if cam, err := a.webcam(cfg); err != nil {
		skip("webcam", "webcam_url not set")
	} else {
		img, _, err := cam.Snapshot(ctx)
		add("webcam", output.Size(int64(len(img))), err)
	}

	if tg, err := a.telegram(cfg); err != nil {
		skip("telegram", err.Error())
	} else {
		me, err := tg.GetMe(ctx)
		add("telegram", "@"+me.Username, err)
	}

	if cfg.MQTTEnabled() {
		pub, err := notify.NewPublisher(cfg.MQTT, cfg.OctoPrintURL, cfg.Timeout(), a.logger())
		if err == nil {
			pub.Close()
		}
		add("mqtt", cfg.MQTT.Broker, err)
	} else {
		skip("mqtt", "mqtt.broker not set")
	}

	if cfg.FTPArchiveEnabled() {
		arch := archive.New(cfg.FTPArchive, cfg.Timeout(), a.logger())
		names, err := arch.List(ctx)
		add("ftp", fmt.Sprintf("%s, %d entries", arch.Addr(), len(names)), err)
	} else {
		skip("ftp", "ftp_archive.addr not set")
	}

	failed := 0
	for _, p := range probes {
		if p.Status == probeFailed {
			failed++
		}
	}

	switch a.format() {
	case output.JSON:
		if err := output.WriteJSON(a.stdout, probes); err != nil {
			return a.errExit(err)
		}
	default:
		pal := a.palette()
		for _, p := range probes {
			st := p.Status
			switch st {
			case probeOK:
				st = pal.Good(st)
			case probeFailed:
				st = pal.Bad(st)
			default:
				st = pal.Dim(st)
			}
			if p.Detail != "" {
				fmt.Fprintf(a.stdout, "%s: %s (%s)\n", p.Name, st, p.Detail)
			} else {
				fmt.Fprintf(a.stdout, "%s: %s\n", p.Name, st)
			}
		}
	}
	if failed > 0 {
		return 1
	}
	return 0
}

func configSources(cfg config.Config) string {
	if len(cfg.Sources) == 0 {
		return "environment only"
	}
	return strings.Join(cfg.Sources, ", ")
}

func cmdConfig(a *app, args []string) int {
	if len(args) != 1 {
		return a.usageErr("config", nil)
	}
	switch args[0] {
	case "path":
		userPath, err := config.UserConfigPath()
		if err != nil {
			return a.errExit(err)
		}
		if a.gf.ConfigPath != "" {
			userPath = a.gf.ConfigPath
		}
		cwd, _ := os.Getwd()
		paths := map[string]string{"user": userPath, "project": config.ProjectConfigPath(cwd)}
		if a.format() == output.JSON {
			return a.exitOnErr(output.WriteJSON(a.stdout, paths))
		}
		return a.exitOnErr(output.WritePlainKV(a.stdout, paths))
	case "show":
		cfg, err := a.config()
		if err != nil {
			return a.errExit(err)
		}
		red := cfg.Redacted()
		if a.format() == output.Plain {
			return a.exitOnErr(output.WritePlainKV(a.stdout, map[string]string{
				"octoprint_url":      red.OctoPrintURL,
				"api_key":            red.APIKey,
				"webcam_url":         red.WebcamURL,
				"telegram_bot_token": red.TelegramBotToken,
				"telegram_chat_id":   red.TelegramChatID,
				"timeout_seconds":    fmt.Sprint(red.TimeoutSeconds),
				"mqtt.broker":        red.MQTT.Broker,
				"ftp_archive.addr":   red.FTPArchive.Addr,
				"sources":            configSources(red),
			}))
		}
		return a.exitOnErr(output.WriteJSON(a.stdout, red))
	default:
		return a.usageErr("config", fmt.Errorf("unknown subcommand %q", args[0]))
	}
}
