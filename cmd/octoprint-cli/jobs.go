package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"octoprint-cli/internal/output"
	"octoprint-cli/internal/printer"
	"octoprint-cli/internal/status"
	"octoprint-cli/internal/ui"
)

func cmdListFiles(a *app, args []string) int {
	if len(args) != 0 {
		return a.usageErr("list-files", nil)
	}
	client, _, err := a.octoprint()
	if err != nil {
		return a.errExit(err)
	}
	files, err := client.Files(a.ctx)
	if err != nil {
		return a.errExit(err)
	}

	switch a.format() {
	case output.JSON:
		if files == nil {
			files = []printer.File{}
		}
		return a.exitOnErr(output.WriteJSON(a.stdout, files))
	case output.Plain:
		for _, f := range files {
			fmt.Fprintf(a.stdout, "%s\t%s\t%s\n", f.Path, plainSize(f.Size), plainDate(f.Date))
		}
		return 0
	}

	if len(files) == 0 {
		a.say("No files.")
		return 0
	}
	width := 4
	for _, f := range files {
		if n := len(f.Path); n > width {
			width = n
		}
	}
	pal := a.palette()
	fmt.Fprintf(a.stdout, "%s  %10s  %s\n", pal.Bold(pad("NAME", width)), pal.Bold("SIZE"), pal.Bold("UPLOADED"))
	now := a.now()
	for _, f := range files {
		size := "-"
		if f.Size != nil {
			size = output.Size(*f.Size)
		}
		age := "-"
		if f.Date != nil {
			age = output.Age(time.Unix(*f.Date, 0), now)
		}
		fmt.Fprintf(a.stdout, "%s  %10s  %s\n", pad(f.Path, width), size, pal.Dim(age))
	}
	return 0
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func plainSize(v *int64) string {
	if v == nil {
		return unknown
	}
	return strconv.FormatInt(*v, 10)
}

func plainDate(v *int64) string {
	if v == nil {
		return unknown
	}
	return time.Unix(*v, 0).UTC().Format(time.RFC3339)
}

func cmdUpload(a *app, args []string) int {
	if len(args) < 1 || len(args) > 2 {
		return a.usageErr("upload", nil)
	}
	local := args[0]
	name := filepath.Base(local)
	if len(args) == 2 {
		name = args[1]
	}
	if a.gf.DryRun {
		a.say("Would upload %s as %s", local, name)
		return 0
	}
	client, _, err := a.octoprint()
	if err != nil {
		return a.errExit(err)
	}
	remote, err := client.Upload(a.ctx, local, name)
	if err != nil {
		return a.errExit(err)
	}
	if a.format() == output.JSON {
		return a.exitOnErr(output.WriteJSON(a.stdout, map[string]string{"local": local, "path": remote}))
	}
	if a.format() == output.Plain {
		fmt.Fprintln(a.stdout, remote)
		return 0
	}
	a.say("Uploaded %s as %s", local, remote)
	return 0
}

// cmdPrint selects and starts a stored file. A 409 from OctoPrint (printer
// busy or not operational) is reported as is; nothing is retried.
func cmdPrint(a *app, args []string) int {
	if len(args) != 1 {
		return a.usageErr("print", nil)
	}
	file := args[0]
	if a.gf.DryRun {
		a.say("Would start print of %s", file)
		return 0
	}
	client, _, err := a.octoprint()
	if err != nil {
		return a.errExit(err)
	}
	if err := client.StartPrint(a.ctx, file); err != nil {
		return a.errExit(err)
	}
	if a.format() == output.JSON {
		return a.exitOnErr(output.WriteJSON(a.stdout, map[string]string{"started": file}))
	}
	a.say("Started print of %s", file)
	return 0
}

func cmdControl(a *app, args []string) int {
	if len(args) != 1 {
		return a.usageErr("control", nil)
	}
	cmd, ok := printer.ParseJobCommand(args[0])
	if !ok {
		return a.usageErr("control", fmt.Errorf("unknown action %q", args[0]))
	}
	if cmd == printer.JobCancel {
		if err := ui.RequireConfirmation(a.confirmOptions(string(cmd))); err != nil {
			return a.errExit(err)
		}
	}
	if a.gf.DryRun {
		a.say("Would %s the current job", cmd)
		return 0
	}
	client, _, err := a.octoprint()
	if err != nil {
		return a.errExit(err)
	}
	if err := client.Control(a.ctx, cmd); err != nil {
		return a.errExit(err)
	}
	if a.format() == output.JSON {
		return a.exitOnErr(output.WriteJSON(a.stdout, map[string]string{"action": string(cmd)}))
	}
	a.say("Job %s sent", cmd)
	return 0
}

func (a *app) confirmOptions(action string) ui.ConfirmOptions {
	f, _ := a.stdin.(*os.File)
	return ui.ConfirmOptions{
		Action:  action,
		Force:   a.gf.Force,
		Confirm: a.gf.Confirm,
		NoInput: a.gf.NoInput,
		UseTTY:  ui.IsTerminal(f),
		Out:     a.stderr,
		In:      a.stdin,
	}
}

func cmdTemp(a *app, args []string) int {
	if len(args) != 2 {
		return a.usageErr("temp", nil)
	}
	heater := args[0]
	if err := printer.ValidateHeater(heater); err != nil {
		return a.usageErr("temp", err)
	}
	target, err := strconv.ParseFloat(args[1], 64)
	if err != nil || math.IsNaN(target) {
		return a.usageErr("temp", fmt.Errorf("temperature %q is not a number", args[1]))
	}
	if target < 0 || target > status.OverheatLimit {
		return a.usageErr("temp", fmt.Errorf("temperature must be between 0 and %g °C", status.OverheatLimit))
	}
	if a.gf.DryRun {
		a.say("Would set %s target to %g °C", heater, target)
		return 0
	}
	client, _, err := a.octoprint()
	if err != nil {
		return a.errExit(err)
	}
	if err := client.SetTarget(a.ctx, heater, target); err != nil {
		return a.errExit(err)
	}
	if a.format() == output.JSON {
		return a.exitOnErr(output.WriteJSON(a.stdout, map[string]any{"heater": heater, "target": target}))
	}
	a.say("Set %s target to %g °C", heater, target)
	return 0
}
