// Command forensics generates, validates, analyzes, exports and serves
// token forensics datasets.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/blockstat/forensics/internal/config"
)

const usage = `usage: forensics <command> [flags]

commands:
  generate   write a synthetic dataset as JSON
  validate   check a dataset JSON file against the schema
  analyze    analyze a token and print the summary
  export     analyze a token and write a CSV or JSON report
  serve      run the HTTP API

run "forensics <command> -h" for command flags.
`

type command func(ctx context.Context, args []string) error

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "WARN: .env: %v\n", err)
	}

	commands := map[string]command{
		"generate": runGenerate,
		"validate": runValidate,
		"analyze":  runAnalyze,
		"export":   runExport,
		"serve":    runServe,
	}
	name := os.Args[1]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", name, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd(ctx, os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Error().Err(err).Str("command", name).Msg("command failed")
		os.Exit(1)
	}
}

// loadConfig reads path and sets up logging. A missing file at the default
// path falls back to the built-in defaults.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	switch {
	case err == nil:
	case !explicit && errors.Is(err, fs.ErrNotExist):
		cfg = config.Default()
	default:
		return nil, err
	}
	setupLogging(cfg.General)
	log.Debug().
		Str("instance_id", cfg.General.InstanceID).
		Str("environment", cfg.General.Environment).
		Bool("backend", cfg.Backend.Enabled).
		Str("cache", cfg.Cache.Driver).
		Msg("configuration loaded")
	return cfg, nil
}

func setupLogging(general config.GeneralConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	level, err := zerolog.ParseLevel(general.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Logs go to stderr so generate and export can stream to stdout.
	if general.LogFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Str("service", "forensics").
			Str("instance", general.InstanceID).Logger()
	} else {
		log.Logger = zerolog.New(os.Stderr).
			With().Timestamp().Str("service", "forensics").
			Str("instance", general.InstanceID).Logger()
	}
}
