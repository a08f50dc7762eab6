package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"octoprint-cli/internal/apperr"
	"octoprint-cli/internal/config"
	"octoprint-cli/internal/logger"
	"octoprint-cli/internal/output"
	"octoprint-cli/internal/printer"
	"octoprint-cli/internal/telegram"
	"octoprint-cli/internal/ui"
)

var version = "dev"

type GlobalFlags struct {
	Help           bool
	Version        bool
	Quiet          bool
	Verbose        bool
	JSON           bool
	Plain          bool
	NoColor        bool
	NoInput        bool
	Force          bool
	Confirm        string
	DryRun         bool
	TimeoutSeconds int
	ConfigPath     string
	MetricsFile    string
}

// app carries everything a command needs for one invocation.
type app struct {
	gf     GlobalFlags
	ctx    context.Context
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time

	cfg *config.Config
	log *logger.Logger
}

type command struct {
	name    string
	args    string
	summary string
	run     func(*app, []string) int
}

var (
	commands     []command
	commandIndex map[string]command
)

func init() {
	commands = []command{
		{"status", "", "Print raw printer, job and connection state as JSON", cmdStatus},
		{"status-pretty", "", "Show a formatted status summary", cmdStatusPretty},
		{"list-files", "", "List files stored on OctoPrint", cmdListFiles},
		{"upload", "<path> [name]", "Upload a gcode file", cmdUpload},
		{"print", "<filename>", "Select a stored file and start printing", cmdPrint},
		{"control", "<pause|resume|cancel>", "Pause, resume or cancel the current job", cmdControl},
		{"temp", "<tool0|bed|chamber> <value>", "Set a heater target in °C", cmdTemp},
		{"snapshot", "[path]", "Save a webcam frame", cmdSnapshot},
		{"analyze", "<path>", "Extract metadata from a local gcode file", cmdAnalyze},
		{"check-errors", "", "Classify the current state for anomalies", cmdCheckErrors},
		{"telegram-status", "", "Send the status summary to Telegram", cmdTelegramStatus},
		{"telegram-snapshot", "", "Send a webcam frame to Telegram", cmdTelegramSnapshot},
		{"telegram-msg", "<text>", "Send a text message to Telegram", cmdTelegramMsg},
		{"watch", "[--interval <s>] [--push] [--notify] [--count <n>]", "Watch status and report anomalies", cmdWatch},
		{"doctor", "", "Check connectivity to every configured service", cmdDoctor},
		{"config", "show|path", "Show the loaded configuration or its paths", cmdConfig},
		{"version", "", "Print the version", cmdVersion},
		{"help", "[command]", "Show help", cmdHelp},
	}
	commandIndex = make(map[string]command, len(commands))
	for _, c := range commands {
		commandIndex[c.name] = c
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	gf, rest, err := parseGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 2
	}
	a := &app{gf: gf, ctx: ctx, stdin: stdin, stdout: stdout, stderr: stderr, now: time.Now}
	if gf.Version {
		fmt.Fprintln(stdout, version)
		return 0
	}
	if gf.Help || len(rest) == 0 {
		if gf.Help {
			printUsage(stdout)
			return 0
		}
		printUsage(stderr)
		return 2
	}

	cmd, ok := commandIndex[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", rest[0])
		printUsage(stderr)
		return 2
	}
	return cmd.run(a, rest[1:])
}

func parseGlobalFlags(args []string) (GlobalFlags, []string, error) {
	fs := flag.NewFlagSet("octoprint-cli", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var gf GlobalFlags
	fs.BoolVar(&gf.Help, "help", false, "show help")
	fs.BoolVar(&gf.Help, "h", false, "show help")
	fs.BoolVar(&gf.Version, "version", false, "show version")
	fs.BoolVar(&gf.Quiet, "quiet", false, "less output")
	fs.BoolVar(&gf.Quiet, "q", false, "less output")
	fs.BoolVar(&gf.Verbose, "verbose", false, "more output")
	fs.BoolVar(&gf.Verbose, "v", false, "more output")
	fs.BoolVar(&gf.JSON, "json", false, "json output")
	fs.BoolVar(&gf.Plain, "plain", false, "plain output")
	fs.BoolVar(&gf.NoColor, "no-color", false, "disable color")
	fs.BoolVar(&gf.NoInput, "no-input", false, "disable prompts")
	fs.BoolVar(&gf.Force, "force", false, "skip confirmation")
	fs.BoolVar(&gf.Force, "f", false, "skip confirmation")
	fs.StringVar(&gf.Confirm, "confirm", "", "confirmation token")
	fs.BoolVar(&gf.DryRun, "dry-run", false, "preview only")
	fs.BoolVar(&gf.DryRun, "n", false, "preview only")
	fs.IntVar(&gf.TimeoutSeconds, "timeout", 0, "network timeout in seconds")
	fs.StringVar(&gf.ConfigPath, "config", "", "config file path")
	fs.StringVar(&gf.MetricsFile, "metrics-file", "", "prometheus textfile to write")

	if err := fs.Parse(args); err != nil {
		return gf, nil, err
	}
	if gf.JSON && gf.Plain {
		return gf, nil, errors.New("--json and --plain are mutually exclusive")
	}
	if gf.Quiet && gf.Verbose {
		return gf, nil, errors.New("--quiet and --verbose are mutually exclusive")
	}
	if gf.TimeoutSeconds < 0 {
		return gf, nil, errors.New("--timeout must be positive")
	}
	return gf, fs.Args(), nil
}

// config loads the configuration once per invocation.
func (a *app) config() (config.Config, error) {
	if a.cfg != nil {
		return *a.cfg, nil
	}
	cwd, _ := os.Getwd()
	cfg, err := config.Load(config.LoadOptions{ExplicitPath: a.gf.ConfigPath, ProjectDir: cwd})
	if err != nil {
		return config.Config{}, err
	}
	if a.gf.TimeoutSeconds > 0 {
		cfg.TimeoutSeconds = a.gf.TimeoutSeconds
	}
	a.cfg = &cfg
	return cfg, nil
}

// logger picks the level from flags first, then log_level from a config
// that has already been loaded.
func (a *app) logger() *logger.Logger {
	if a.log != nil {
		return a.log
	}
	level := logger.WarnLevel
	switch {
	case a.gf.Verbose:
		level = logger.DebugLevel
	case a.gf.Quiet:
		level = logger.ErrorLevel
	case a.cfg != nil && a.cfg.LogLevel != "":
		level = a.cfg.LogLevel
	}
	a.log = logger.Get(level)
	return a.log
}

func (a *app) octoprint() (*printer.Client, config.Config, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, cfg, err
	}
	client := printer.NewClient(cfg.OctoPrintURL, cfg.APIKey, printer.Options{
		Timeout:       cfg.Timeout(),
		UploadTimeout: cfg.UploadTimeout(),
		Logger:        a.logger(),
	})
	return client, cfg, nil
}

// telegram returns a ConfigError naming the missing keys before anything
// touches the network.
func (a *app) telegram(cfg config.Config) (*telegram.Client, error) {
	ts, err := cfg.Telegram()
	if err != nil {
		return nil, err
	}
	return telegram.New(ts.APIURL, ts.BotToken, ts.ChatID, telegram.Options{
		Timeout: cfg.Timeout(),
		Logger:  a.logger(),
	}), nil
}

func (a *app) webcam(cfg config.Config) (*printer.WebcamClient, error) {
	url, err := cfg.Webcam()
	if err != nil {
		return nil, err
	}
	return printer.NewWebcamClient(url, cfg.Timeout(), a.logger(), nil), nil
}

func (a *app) format() output.Format {
	return output.Select(a.gf.JSON, a.gf.Plain)
}

func (a *app) palette() output.Palette {
	f, _ := a.stdout.(*os.File)
	return output.NewPalette(ui.ColorEnabled(f, a.gf.NoColor, a.gf.Plain))
}

func (a *app) metricsPath(cfg config.Config) string {
	if a.gf.MetricsFile != "" {
		return a.gf.MetricsFile
	}
	return cfg.MetricsFile
}

// say prints a human status line unless --quiet is set.
func (a *app) say(format string, args ...any) {
	if a.gf.Quiet {
		return
	}
	fmt.Fprintf(a.stdout, format+"\n", args...)
}

// warn reports a side-channel failure (metrics, MQTT, archive) that does not
// change the command's outcome.
func (a *app) warn(what string, err error) {
	fmt.Fprintf(a.stderr, "Warning: %s: %v\n", what, err)
}

func (a *app) errExit(err error) int {
	kind := apperr.Kind(err)
	if a.gf.JSON {
		_ = output.WriteJSON(a.stderr, map[string]string{"error": err.Error(), "kind": kind})
		return 1
	}
	if kind != "" {
		fmt.Fprintf(a.stderr, "Error: %s: %v\n", kind, err)
		return 1
	}
	fmt.Fprintln(a.stderr, "Error:", err)
	return 1
}

func (a *app) exitOnErr(err error) int {
	if err != nil {
		return a.errExit(err)
	}
	return 0
}

// usageErr reports a bad invocation of cmd and returns exit code 2.
func (a *app) usageErr(cmd string, err error) int {
	if err != nil {
		fmt.Fprintln(a.stderr, "Error:", err)
	}
	printCommandUsage(a.stderr, cmd)
	return 2
}

func cmdHelp(a *app, args []string) int {
	if len(args) == 0 {
		printUsage(a.stdout)
		return 0
	}
	if _, ok := commandIndex[args[0]]; !ok {
		fmt.Fprintf(a.stderr, "Unknown command: %s\n", args[0])
		return 2
	}
	printCommandUsage(a.stdout, args[0])
	return 0
}

func cmdVersion(a *app, _ []string) int {
	fmt.Fprintln(a.stdout, version)
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "octoprint-cli - monitor and control OctoPrint printers")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  octoprint-cli [global flags] <command> [args]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	for _, c := range commands {
		name := c.name
		if c.args != "" {
			name += " " + c.args
		}
		if len(name) > 36 {
			fmt.Fprintf(w, "  %s\n  %-36s  %s\n", name, "", c.summary)
			continue
		}
		fmt.Fprintf(w, "  %-36s  %s\n", name, c.summary)
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "GLOBAL FLAGS:")
	fmt.Fprintln(w, "  -h, --help             Show help")
	fmt.Fprintln(w, "      --version          Print version")
	fmt.Fprintln(w, "  -q, --quiet            Less output")
	fmt.Fprintln(w, "  -v, --verbose          Debug logging on stderr")
	fmt.Fprintln(w, "      --json             JSON output")
	fmt.Fprintln(w, "      --plain            Stable key=value output")
	fmt.Fprintln(w, "      --no-color         Disable color")
	fmt.Fprintln(w, "      --no-input         Never prompt")
	fmt.Fprintln(w, "  -f, --force            Skip confirmation")
	fmt.Fprintln(w, "      --confirm <word>   Confirm a destructive action non-interactively")
	fmt.Fprintln(w, "  -n, --dry-run          Show what would change")
	fmt.Fprintln(w, "      --timeout <s>      Network timeout in seconds")
	fmt.Fprintln(w, "      --config <path>    Config file path")
	fmt.Fprintln(w, "      --metrics-file <p> Write Prometheus textfile metrics")
}

func printCommandUsage(w io.Writer, cmd string) {
	c, ok := commandIndex[cmd]
	if !ok {
		printUsage(w)
		return
	}
	line := "USAGE: octoprint-cli " + c.name
	if c.args != "" {
		line += " " + c.args
	}
	fmt.Fprintln(w, line)
	fmt.Fprintln(w, "  "+c.summary)
}
