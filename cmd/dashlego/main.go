package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"

	"github.com/jask/dashlego/core/cache"
	"github.com/jask/dashlego/core/state"
	"github.com/jask/dashlego/internal/config"
	"github.com/jask/dashlego/internal/dashfile"
	"github.com/jask/dashlego/internal/logging"
	"github.com/jask/dashlego/internal/metrics"
	"github.com/jask/dashlego/internal/tui"
)

type options struct {
	configPath  string
	dashboard   string
	cacheKind   string
	logLevel    string
	metricsAddr string
	exportGraph bool
	exportPath  string
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := pflag.NewFlagSet("dashlego", pflag.ContinueOnError)
	fs.StringVarP(&o.configPath, "config", "c", os.Getenv("DASHLEGO_CONFIG"), "config file (TOML)")
	fs.StringVarP(&o.dashboard, "dashboard", "d", "", "dashboard definition (.toml or .json); the built-in sales board when empty")
	fs.StringVar(&o.cacheKind, "cache", "", "cache backend override: memory, disk or redis")
	fs.StringVar(&o.logLevel, "log-level", "", "log level override")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	fs.BoolVar(&o.exportGraph, "export-graph", false, "print the state graph as YAML and exit")
	fs.StringVar(&o.exportPath, "export-path", "dashlego-graph.yaml", "file the export key writes the state graph to")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return o, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("flags: %v", err)
	}
	if err := run(context.Background(), opts); err != nil {
		log.Fatalf("dashlego: %v", err)
	}
}

func run(ctx context.Context, opts options) (err error) {
	cfg, err := config.LoadFile(opts.configPath)
	if err != nil {
		return err
	}
	if opts.cacheKind != "" {
		cfg.Cache.Backend = opts.cacheKind
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	logger, syncLog, err := logging.New(cfg.Log.Level, cfg.Log.Dir)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, syncLog()) }()
	cache.SetLogger(logger)
	defer func() { err = multierr.Append(err, cache.ResetRegistry()) }()

	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	if opts.metricsAddr != "" {
		go serveMetrics(opts.metricsAddr, reg, logger)
	}

	def, err := loadDefinition(opts.dashboard)
	if err != nil {
		return err
	}
	if def.Title == "dashboard" && cfg.UI.Title != "" {
		def.Title = cfg.UI.Title
	}

	desc, err := cfg.Descriptor()
	if err != nil {
		return err
	}
	src, cleanup, err := newSource(ctx, def.Source, desc, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, cleanup()) }()

	page, err := dashfile.Build(def, src, logger)
	if err != nil {
		return err
	}
	router := state.NewRouter(state.WithLogger(logger))
	bindings, err := page.Register(router)
	if err != nil {
		return err
	}
	logger.Info("dashboard ready", "title", page.Title, "blocks", len(page.Blocks), "bindings", len(bindings), "cache", desc.Key())

	if opts.exportGraph {
		return router.ExportYAML(os.Stdout)
	}

	app := tui.New(ctx, page, router, bindings, tui.Options{
		Refresh:    cfg.UI.Refresh,
		ExportPath: opts.exportPath,
		Log:        logger,
	})
	_, err = tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func loadDefinition(path string) (dashfile.Definition, error) {
	if path == "" {
		return dashfile.Default()
	}
	return dashfile.Load(path)
}

func serveMetrics(addr string, reg *prometheus.Registry, log logr.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error(err, "metrics server stopped")
	}
}
