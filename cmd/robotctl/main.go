package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"robot-console/config"
	"robot-console/converter"
	"robot-console/logging"
	"robot-console/services"
	"robot-console/transport"
)

const usageText = `robotctl drives the robot API from the command line.

Usage:
  robotctl [global flags] list [--language <lang>] [--active <bool>] [--search <text>] [--page <n>] [--per-page <n>]
  robotctl [global flags] get <robot_id>
  robotctl [global flags] apply -f <manifest.yaml> [--dry-run]
  robotctl [global flags] delete <robot_id>
  robotctl [global flags] download <robot_id> <file_id> [--out <path>]
  robotctl [global flags] watch

Global Flags:
  --api URL        Robot API base URL (default $API_BASE_URL)
  --token TOKEN    Bearer token (default $API_TOKEN)
  --json           Output json
  --timeout        Request timeout (e.g. 30s, 2m)
  --log-level      debug, info, warn or error (default warn)
`

var errHelp = errors.New("help requested")

type globalOptions struct {
	apiBaseURL string
	token      string
	jsonOutput bool
	timeout    time.Duration
	logLevel   string
}

// app carries what every command needs.
type app struct {
	cfg    *config.Config
	opts   globalOptions
	robots *services.RobotService
	logger *slog.Logger
	out    io.Writer
}

func main() {
	cfg := config.LoadConfig()
	opts, args, err := parseGlobal(cfg, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		printUsage()
		os.Exit(2)
	}
	if len(args) == 0 || isHelpToken(args[0]) {
		printUsage()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := newApp(cfg, opts)
	if err := a.dispatch(ctx, args); err != nil {
		if errors.Is(err, errHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseGlobal(cfg *config.Config, args []string) (globalOptions, []string, error) {
	opts := globalOptions{}
	fs := flag.NewFlagSet("robotctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.apiBaseURL, "api", cfg.APIBaseURL, "robot API base URL")
	fs.StringVar(&opts.token, "token", cfg.APIToken, "bearer token")
	fs.BoolVar(&opts.jsonOutput, "json", false, "output json")
	fs.DurationVar(&opts.timeout, "timeout", cfg.Timeout, "request timeout (e.g. 30s, 2m)")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "log level")
	if err := fs.Parse(args); err != nil {
		return opts, nil, err
	}
	return opts, fs.Args(), nil
}

func newApp(cfg *config.Config, opts globalOptions) *app {
	logger := logging.NewCLILogger(opts.logLevel)

	api := transport.NewHTTPTransport(opts.apiBaseURL, opts.timeout, logger)
	api.SetBearerToken(opts.token)
	api.SetHeader("User-Agent", "robotctl")

	// The CLI has no cache, event bus or audit store.
	robots := services.NewRobotService(api, converter.NewNormalizer(opts.apiBaseURL), nil, nil, nil, nil, logger)
	return &app{cfg: cfg, opts: opts, robots: robots, logger: logger, out: os.Stdout}
}

func (a *app) dispatch(ctx context.Context, args []string) error {
	switch args[0] {
	case "list":
		return a.runList(ctx, args[1:])
	case "get":
		return a.runGet(ctx, args[1:])
	case "apply":
		return a.runApply(ctx, args[1:])
	case "delete":
		return a.runDelete(ctx, args[1:])
	case "download":
		return a.runDownload(ctx, args[1:])
	case "watch":
		return a.runWatch(ctx, args[1:])
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printUsage() {
	_, _ = fmt.Fprint(os.Stdout, usageText)
}

func isHelpToken(arg string) bool {
	switch arg {
	case "help", "-h", "--help":
		return true
	}
	return false
}
