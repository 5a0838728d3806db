package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/contentmill/internal/config"
	"git.home.luguber.info/inful/contentmill/internal/metrics"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"contentmill.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Build struct {
		Pipelines     []string `short:"p" help:"Pipelines to run (default: all default pipelines)"`
		Serial        bool     `help:"Run pipelines strictly sequentially"`
		NoCache       bool     `help:"Disable the execution cache"`
		MetricsListen string   `help:"Serve Prometheus metrics on this address during the build"`
	} `cmd:"" help:"Run the content pipelines"`

	Pipelines struct{} `cmd:"" help:"List configured pipelines and their dependencies"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`
}

func main() {
	kctx := kong.Parse(&CLI)

	cfg, err := loadConfig(CLI.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if CLI.Verbose {
		cfg.Logging.Level = config.LogLevelDebug
	}
	logger := cfg.Logging.NewLogger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch kctx.Command() {
	case "build":
		registry := prom.NewRegistry()
		if addr := CLI.Build.MetricsListen; addr != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.HTTPHandler(registry))
				if err := http.ListenAndServe(addr, mux); err != nil {
					logger.Error("Metrics server failed", "address", addr, "error", err)
				}
			}()
		}
		if err := runBuild(ctx, cfg, logger, registry); err != nil {
			logger.Error("Build failed", "error", err)
			os.Exit(1)
		}
	case "pipelines":
		if err := runListPipelines(cfg, logger); err != nil {
			logger.Error("Listing pipelines failed", "error", err)
			os.Exit(1)
		}
	case "init":
		if err := runInit(CLI.Config, CLI.Init.Force); err != nil {
			logger.Error("Init failed", "error", err)
			os.Exit(1)
		}
	default:
		kctx.FatalIfErrorf(fmt.Errorf("unknown command %q", kctx.Command()))
	}
}

// loadConfig falls back to defaults when the config file does not exist and
// the user did not name one explicitly.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(path)
}
