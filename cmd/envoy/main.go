// Envoy is a conversational agent that answers visitor questions on
// behalf of one person, grounded in their summary and resume.
//
// It serves a chat page, a JSON chat API and a websocket chat. Every
// reply is drafted, checked by a second model call, and revised when
// rejected. Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]); without one, defaults
// and the process environment are used.
//
// Usage:
//
//	envoy serve              Start the HTTP server
//	envoy init [dir]         Initialize a working directory with defaults
//	envoy ask <question>     Answer a single question (for testing)
//	envoy prompt             Print the system prompt built from the persona
//	envoy version            Print version and build information
//	envoy -o json version    Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nugget/envoy/internal/api"
	"github.com/nugget/envoy/internal/buildinfo"
	"github.com/nugget/envoy/internal/config"
	"github.com/nugget/envoy/internal/connwatch"
	"github.com/nugget/envoy/internal/llm"
	"github.com/nugget/envoy/internal/web"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the envoy command. Structured logs
// go to stdout; fatal error messages are returned to main, which
// prints them to stderr. Arguments are parsed by hand so run can be
// called concurrently from tests without flag package globals.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: envoy ask <question>")
		}
		return runAsk(ctx, stdout, stderr, configPath, outputFmt, cmdArgs)
	case "prompt":
		return runPrompt(ctx, stdout, stderr, configPath)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.BuildInfo()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Envoy - conversational agent for your professional profile")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: envoy [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the HTTP server")
	fmt.Fprintln(w, "  init [dir]   Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  ask          Answer a single question (for testing)")
	fmt.Fprintln(w, "  prompt       Print the system prompt built from the persona files")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/envoy/config.yaml, /etc/envoy/config.yaml")
	fmt.Fprintln(w, "Without a config file, defaults and environment variables are used.")
	return nil
}

// runServe handles "envoy serve". It builds the responder and web
// page, starts the HTTP server and blocks until SIGINT or SIGTERM.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := config.NewLogger(stdout, slog.LevelInfo, "text")
	info := buildinfo.BuildInfo()
	logger.Info("starting Envoy", "version", info["version"], "commit", info["git_commit"], "built", info["build_time"])

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger = configuredLogger(stdout, cfg)

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"provider", cfg.Models.Provider,
		"model", cfg.Models.Default,
		"evaluator", cfg.Models.EvaluatorModel(),
		"evaluation", cfg.Evaluation.IsEnabled(),
		"smtp", cfg.Notify.Configured(),
	)
	if !cfg.Notify.Configured() {
		logger.Warn("smtp not configured, contact details will only be logged")
	}

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	ws := web.NewWebServer(web.Config{
		Persona:   app.persona.Name,
		Title:     cfg.Web.Title,
		Tagline:   cfg.Web.Tagline,
		PublicURL: cfg.Web.PublicURL,
		Examples:  cfg.Web.Examples,
		Logger:    logger,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, app.responder, ws, logger)
	var health *connwatch.Manager
	if cfg.Health.Enabled() {
		health = watchProviders(ctx, app.providers, cfg.Health.Interval, logger)
		server.SetHealth(health)
	}
	err = server.Start(ctx)
	stop()
	if health != nil {
		health.Wait()
	}
	if err != nil {
		return fmt.Errorf("api server: %w", err)
	}

	logger.Info("Envoy stopped")
	return nil
}

// watchProviders starts a background reachability check for each
// configured provider. Checks stop when ctx is cancelled.
func watchProviders(ctx context.Context, providers map[string]llm.Client, interval time.Duration, logger *slog.Logger) *connwatch.Manager {
	opts := connwatch.DefaultOptions()
	opts.Interval = interval
	m := connwatch.NewManager(opts, logger)
	for name, client := range providers {
		m.Watch(ctx, name, client.Ping)
	}
	return m
}

// askResult is the JSON form of an ask answer.
type askResult struct {
	Reply       string   `json:"reply"`
	State       string   `json:"state"`
	Generations int      `json:"generations"`
	Evaluations int      `json:"evaluations"`
	Feedback    []string `json:"feedback,omitempty"`
}

// runAsk handles "envoy ask <question>". It answers one question with
// no history and prints the reply. Logs go to stderr so stdout carries
// only the answer.
func runAsk(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath, outputFmt string, args []string) error {
	question := strings.Join(args, " ")

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := configuredLogger(stderr, cfg)
	logger.Debug("config loaded", "path", cfgPath)

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	out, err := app.responder.Respond(ctx, nil, question)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(askResult{
			Reply:       out.Reply,
			State:       string(out.State),
			Generations: out.Generations,
			Evaluations: out.Evaluations,
			Feedback:    out.Feedback,
		})
	}
	fmt.Fprintln(stdout, out.Reply)
	return nil
}

// runPrompt handles "envoy prompt": it loads the persona and prints the
// drafting system prompt, which shows exactly what the model is told.
// No provider credentials are needed.
func runPrompt(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := configuredLogger(stderr, cfg)

	fmt.Fprintln(stdout, systemPrompt(loadPersona(ctx, cfg, logger)))
	return nil
}

// loadConfig finds and loads the config file. With no explicit path and
// no file in the search paths, defaults plus the environment are used.
func loadConfig(explicit string) (*config.Config, string, error) {
	var cfg *config.Config

	cfgPath, err := config.FindConfig(explicit)
	switch {
	case err == nil:
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
		}
	case explicit != "":
		return nil, "", err
	default:
		cfg = config.Default()
		cfgPath = "(defaults)"
	}

	if err := cfg.Validate(); err != nil {
		return nil, cfgPath, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, cfgPath, nil
}

// configuredLogger builds a logger with the configured level and
// format. The level was checked by Validate.
func configuredLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return config.NewLogger(w, level, cfg.LogFormat)
}
