package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/blockstat/forensics/internal/analysis"
	"github.com/blockstat/forensics/internal/backend"
	"github.com/blockstat/forensics/internal/bus"
	"github.com/blockstat/forensics/internal/config"
	"github.com/blockstat/forensics/internal/export"
	"github.com/blockstat/forensics/internal/generator"
	"github.com/blockstat/forensics/internal/graph"
	"github.com/blockstat/forensics/internal/observability"
	"github.com/blockstat/forensics/internal/risk"
	"github.com/blockstat/forensics/internal/server"
	"github.com/blockstat/forensics/internal/store"
)

const defaultConfigPath = "config/forensics.yaml"

// commonFlags registers -config and returns a loader for the parsed value.
func commonFlags(fset *flag.FlagSet) func() (*config.Config, error) {
	path := fset.String("config", defaultConfigPath, "path to configuration file")
	return func() (*config.Config, error) {
		explicit := false
		fset.Visit(func(f *flag.Flag) {
			if f.Name == "config" {
				explicit = true
			}
		})
		return loadConfig(*path, explicit)
	}
}

// openOutput returns stdout for "" or "-".
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// ---------------------------------------------------------------------------
// generate
// ---------------------------------------------------------------------------

func runGenerate(_ context.Context, args []string) error {
	fset := flag.NewFlagSet("generate", flag.ContinueOnError)
	load := commonFlags(fset)
	token := fset.String("token", "0x0000000000000000000000000000000000000000", "token address used in labels")
	seed := fset.Int64("seed", 0, "random seed (0 uses the configured seed)")
	population := fset.Int("population", 0, "override generator population")
	out := fset.String("out", "-", "output file")
	if err := fset.Parse(args); err != nil {
		return err
	}
	cfg, err := load()
	if err != nil {
		return err
	}

	genCfg := cfg.Generator
	if *population > 0 {
		genCfg.Population = *population
	}
	s := cfg.General.Seed
	if *seed != 0 {
		s = *seed
	}
	g, err := generator.New(genCfg, rand.New(rand.NewSource(s)))
	if err != nil {
		return err
	}
	d, err := g.Generate(*token)
	if err != nil {
		return err
	}

	w, err := openOutput(*out)
	if err != nil {
		return err
	}
	defer w.Close()
	if err := export.WriteJSON(w, d); err != nil {
		return err
	}
	log.Info().Int64("seed", s).Int("nodes", len(d.Nodes)).Int("links", len(d.Links)).
		Float64("risk_score", d.RiskScore).Msg("generate: dataset written")
	return nil
}

// ---------------------------------------------------------------------------
// validate
// ---------------------------------------------------------------------------

func runValidate(_ context.Context, args []string) error {
	fset := flag.NewFlagSet("validate", flag.ContinueOnError)
	load := commonFlags(fset)
	if err := fset.Parse(args); err != nil {
		return err
	}
	if _, err := load(); err != nil {
		return err
	}
	if fset.NArg() != 1 {
		return fmt.Errorf("validate: expected one dataset file, got %d", fset.NArg())
	}

	f, err := os.Open(fset.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	d, err := graph.Decode(f)
	if err != nil {
		return err
	}
	_, warnings := risk.Compute(d.Nodes, d.Links)
	for _, w := range warnings {
		log.Warn().Str("metric", w.Metric).Str("reason", w.Reason).Msg("validate: degenerate input")
	}
	return json.NewEncoder(os.Stdout).Encode(map[string]any{
		"valid":     true,
		"nodes":     len(d.Nodes),
		"links":     len(d.Links),
		"riskScore": d.RiskScore,
		"verdict":   risk.ClassifyDataset(d.RiskScore).String(),
		"cards":     risk.Cards(d.Metrics, warnings...),
	})
}

// ---------------------------------------------------------------------------
// analyze / export
// ---------------------------------------------------------------------------

// app holds the collaborators shared by analyze, export and serve.
type app struct {
	cfg     *config.Config
	store   store.Store
	backend *backend.Client
	hub     *bus.Hub
	metrics *observability.Metrics
	service *analysis.Service
}

func newRuntime(ctx context.Context, cfg *config.Config) (*app, error) {
	st, err := store.Open(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	rt := &app{
		cfg:     cfg,
		store:   st,
		hub:     bus.NewHub(bus.DefaultBuffer),
		metrics: observability.Default(),
	}
	opts := analysis.Options{
		Store:           st,
		Hub:             rt.hub,
		Metrics:         rt.metrics,
		Generator:       cfg.Generator,
		Seed:            cfg.General.Seed,
		DaysBack:        cfg.Backend.DaysBack,
		SampleSize:      cfg.Backend.SampleSize,
		PollInterval:    cfg.Backend.PollInterval,
		MaxPollAttempts: cfg.Backend.MaxPollAttempts,
		Producer:        cfg.General.InstanceID,

		SyntheticRetryAfter: cfg.Backend.SyntheticRetryAfter,
	}
	if cfg.Backend.Enabled {
		rt.backend = backend.New(cfg.Backend.BaseURL, cfg.Backend.Timeout)
		opts.Backend = rt.backend
	}
	rt.service, err = analysis.New(opts)
	if err != nil {
		st.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *app) Close() {
	if err := rt.store.Close(); err != nil {
		log.Warn().Err(err).Msg("store: close")
	}
}

func runAnalyze(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("analyze", flag.ContinueOnError)
	load := commonFlags(fset)
	token := fset.String("token", "", "token contract address")
	refresh := fset.Bool("refresh", false, "ignore the cached analysis")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if err := analysis.ValidateAddress(*token); err != nil {
		return err
	}
	cfg, err := load()
	if err != nil {
		return err
	}
	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if *refresh {
		if err := rt.service.Invalidate(ctx, *token); err != nil {
			return err
		}
	}
	res, err := rt.service.Analyze(ctx, *token)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"analysisId": res.ID,
		"token":      res.Token,
		"origin":     res.Origin,
		"source":     res.Source,
		"riskScore":  res.Dataset.RiskScore,
		"verdict":    res.Verdict().String(),
		"cards":      res.Cards(),
		"redFlags":   len(res.Dataset.RedFlags),
		"warnings":   res.Warnings,
	})
}

func runExport(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("export", flag.ContinueOnError)
	load := commonFlags(fset)
	token := fset.String("token", "", "token contract address")
	formatName := fset.String("format", "csv", "csv or json")
	out := fset.String("out", "", "output file (default forensics_<token>.<format>, - for stdout)")
	if err := fset.Parse(args); err != nil {
		return err
	}
	format, err := export.ParseFormat(*formatName)
	if err != nil {
		return err
	}
	cfg, err := load()
	if err != nil {
		return err
	}
	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.service.Analyze(ctx, *token)
	if err != nil {
		return err
	}

	path := *out
	if path == "" {
		path = format.Filename(res.Token)
	}
	w, err := openOutput(path)
	if err != nil {
		return err
	}
	if err := export.Write(w, res.Dataset, format); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	log.Info().Str("token", res.Token).Str("format", string(format)).Str("path", path).Msg("export: report written")
	return nil
}

// ---------------------------------------------------------------------------
// serve
// ---------------------------------------------------------------------------

func runServe(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("serve", flag.ContinueOnError)
	load := commonFlags(fset)
	addr := fset.String("addr", "", "listen address (overrides server.addr)")
	if err := fset.Parse(args); err != nil {
		return err
	}
	cfg, err := load()
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	monitor := observability.NewHealthMonitor(cfg.Metrics.HealthCheckInterval)
	monitor.Register("store", observability.StoreCheck(rt.store))
	if rt.backend != nil {
		monitor.Register("backend", observability.BackendCheck(rt.backend))
	}

	srv := server.New(cfg.Server, cfg.Metrics, server.Deps{
		Analysis: rt.service,
		Hub:      rt.hub,
		Health:   monitor,
		Metrics:  rt.metrics,
		Mixer:    cfg.Mixer,
	})

	log.Info().
		Str("addr", cfg.Server.Addr).
		Bool("backend", cfg.Backend.Enabled).
		Str("cache", cfg.Cache.Driver).
		Msg("Token forensics - starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return monitor.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })
	err = g.Wait()
	log.Info().Msg("Token forensics - shutdown complete")
	return err
}
