// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pagevault/pagevault/internal/api"
	"github.com/pagevault/pagevault/internal/cache"
	"github.com/pagevault/pagevault/internal/config"
	"github.com/pagevault/pagevault/internal/crawler"
	"github.com/pagevault/pagevault/internal/daemon"
	"github.com/pagevault/pagevault/internal/fetch"
	"github.com/pagevault/pagevault/internal/filestore"
	"github.com/pagevault/pagevault/internal/health"
	pvlog "github.com/pagevault/pagevault/internal/log"
	"github.com/pagevault/pagevault/internal/mediatype"
	"github.com/pagevault/pagevault/internal/profile"
	"github.com/pagevault/pagevault/internal/state"
	"github.com/pagevault/pagevault/internal/store"
	"github.com/pagevault/pagevault/internal/store/sqlite"
)

var (
	version   = "v0.3.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "archive":
			os.Exit(runArchive(os.Args[2:]))
		case "resume":
			os.Exit(runResume(os.Args[2:]))
		case "verify":
			os.Exit(runVerify(os.Args[2:]))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg, cfgPath := mustLoadConfig(*configPath)
	logger := pvlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str(pvlog.FieldEvent, "startup.failed").Msg("initialization failed")
	}
	defer app.close()

	profiles, err := profile.LoadDir(cfg.ProfileDir)
	if err != nil {
		logger.Fatal().Err(err).
			Str(pvlog.FieldEvent, "profiles.load_failed").
			Str(pvlog.FieldPath, cfg.ProfileDir).
			Msg("loading profiles failed")
	}

	logger.Info().
		Str(pvlog.FieldEvent, "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.ListenAddr).
		Int("profiles", len(profiles)).
		Msg("starting pagevault")
	if cfg.APIToken == "" {
		logger.Warn().Msg("API token not configured; run triggering over HTTP is disabled. Set PV_API_TOKEN.")
	}

	server := api.New(api.Options{
		Version:        version,
		APIToken:       cfg.APIToken,
		RateLimit:      cfg.APIRateLimit,
		MetricsEnabled: cfg.MetricsEnabled,
		DB:             app.db,
		Health:         app.health,
		Archive:        app.archive,
		Resume:         app.resume,
		Gate:           &app.gate,
	})

	// Hot reload: log level and fetch settings follow the config file.
	holder := config.NewHolder(cfg, config.NewLoader(cfgPath, version), cfgPath)
	if err := holder.StartWatcher(ctx); err != nil {
		logger.Warn().Err(err).Str(pvlog.FieldEvent, "config.watcher_failed").Msg("config watcher not started")
	}
	reloads := make(chan config.Snapshot, 1)
	holder.RegisterListener(reloads)

	sched := daemon.New(cfg.ArchiveInterval, profiles, app.archive, server.RecordStatus)
	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := sched.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := httpSrv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case snap := <-reloads:
				pvlog.Configure(pvlog.Config{
					Level:   snap.LogLevel,
					Service: snap.LogService,
					Version: version,
				})
				app.updateConfig(snap.AppConfig)
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Str(pvlog.FieldEvent, "server.failed").Msg("pagevault exited with error")
	}
	logger.Info().Str(pvlog.FieldEvent, "shutdown").Msg("pagevault stopped")
}

// runArchive is the one-shot mode: archive a single profile and exit.
func runArchive(args []string) int {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (YAML)")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: pagevault archive [-config file] <profile.json>")
		return 2
	}

	cfg, _ := mustLoadConfig(*configPath)
	logger := pvlog.WithComponent("archive")

	prof, err := profile.LoadFile(fs.Arg(0))
	if err != nil {
		logger.Error().Err(err).Str(pvlog.FieldPath, fs.Arg(0)).Msg("loading profile failed")
		return 1
	}

	app, err := newApp(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("initialization failed")
		return 1
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	status, err := app.archive(ctx, prof)
	if err != nil {
		logger.Error().Err(err).Str(pvlog.FieldRunID, status.RunID).Msg("archive failed")
		return 1
	}
	fmt.Printf("run %s: %d pages, %d assets, %d failures in %s\n",
		status.RunID, status.Pages, status.Assets, status.Failures, status.Duration.Round(time.Millisecond))
	return 0
}

// runResume continues an interrupted run from its last snapshot.
func runResume(args []string) int {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (YAML)")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: pagevault resume [-config file] <run-id>")
		return 2
	}

	cfg, _ := mustLoadConfig(*configPath)
	logger := pvlog.WithComponent("resume")

	app, err := newApp(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("initialization failed")
		return 1
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	status, err := app.resume(ctx, fs.Arg(0))
	if err != nil {
		logger.Error().Err(err).Str(pvlog.FieldRunID, fs.Arg(0)).Msg("resume failed")
		return 1
	}
	fmt.Printf("run %s: %d pages, %d assets, %d failures in %s\n",
		status.RunID, status.Pages, status.Assets, status.Failures, status.Duration.Round(time.Millisecond))
	return 0
}

// runVerify checks archive database integrity.
func runVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (YAML)")
	full := fs.Bool("full", false, "run a full integrity check instead of the quick one")
	_ = fs.Parse(args)

	cfg, _ := mustLoadConfig(*configPath)
	logger := pvlog.WithComponent("verify")

	mode := "quick"
	if *full {
		mode = "full"
	}
	issues, err := sqlite.VerifyIntegrity(cfg.DBPath, mode)
	if err != nil {
		logger.Error().Err(err).Str(pvlog.FieldPath, cfg.DBPath).Msg("integrity check failed to run")
		return 1
	}
	if len(issues) > 0 {
		for _, issue := range issues {
			fmt.Fprintln(os.Stderr, issue)
		}
		logger.Error().Int("issues", len(issues)).Str(pvlog.FieldPath, cfg.DBPath).Msg("integrity check found problems")
		return 1
	}
	fmt.Printf("%s: ok (%s check)\n", cfg.DBPath, mode)
	return 0
}

func mustLoadConfig(path string) (config.AppConfig, string) {
	// Safe defaults until the real config is loaded.
	pvlog.Configure(pvlog.Config{Level: "info", Service: "pagevault", Version: version})
	logger := pvlog.WithComponent("config")

	if path == "" {
		autoPath := filepath.Join(config.ParseString("PV_DATA", config.DefaultDataDir), "config.yaml")
		if _, err := os.Stat(autoPath); err == nil {
			path = autoPath
		}
	}

	cfg, err := config.NewLoader(path, version).Load()
	if err != nil {
		logger.Fatal().Err(err).
			Str(pvlog.FieldEvent, "config.load_failed").
			Str(pvlog.FieldPath, path).
			Msg("failed to load configuration")
	}
	pvlog.Configure(pvlog.Config{Level: cfg.LogLevel, Service: cfg.LogService, Version: version})

	source := "env+defaults"
	if path != "" {
		source = "file"
	}
	logger.Info().
		Str(pvlog.FieldEvent, "config.loaded").
		Str("source", source).
		Str(pvlog.FieldPath, path).
		Msg("configuration loaded")
	return cfg, path
}

// app bundles the long-lived collaborators behind the archive function.
type app struct {
	mu     sync.RWMutex
	cfg    config.AppConfig
	gate   crawler.Gate
	db     *store.Store
	states state.Store
	meta   cache.Cache
	types  *mediatype.Registry
	health *health.Manager
}

// updateConfig swaps the settings applied to subsequent runs. Running
// archives keep the config they started with.
func (a *app) updateConfig(cfg config.AppConfig) {
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
}

func (a *app) currentConfig() config.AppConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

func newApp(cfg config.AppConfig) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	states, err := state.New(cfg.StateBackend, cfg.StateDir)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	cacheLogger := pvlog.WithComponent("cache")
	meta, err := cache.New(cfg.CacheBackend, cfg.RedisAddr, cfg.RedisDB, cacheLogger)
	if err != nil {
		// Redis being down must not keep the archiver from starting.
		cacheLogger.Warn().Err(err).Msg("cache backend unavailable, falling back to memory")
		meta = cache.NewMemory(cfg.CacheTTL)
	}
	types, err := mediatype.Load()
	if err != nil {
		_ = db.Close()
		_ = states.Close()
		return nil, err
	}

	sites, err := filestore.New(filepath.Join(cfg.DataDir, "sites"))
	if err != nil {
		_ = db.Close()
		_ = states.Close()
		return nil, err
	}

	hm := health.NewManager(cfg.Version)
	hm.Register(health.NewDatabaseChecker(db))
	hm.Register(health.NewFilestoreChecker(sites))

	return &app{
		cfg:    cfg,
		db:     db,
		states: states,
		meta:   meta,
		types:  types,
		health: hm,
	}, nil
}

func (a *app) close() {
	_ = a.states.Close()
	_ = a.db.Close()
}

// archive runs one archive for prof with a fetcher and filestore built from
// the app config and the profile's overrides. Runs from every trigger surface
// go through the same gate; a second concurrent run gets ErrRunActive.
func (a *app) archive(ctx context.Context, prof profile.Profile) (crawler.Status, error) {
	if !a.gate.TryAcquire() {
		return crawler.Status{}, crawler.ErrRunActive
	}
	defer a.gate.Release()

	prof = prof.Normalized()
	c, err := a.newCrawler(prof)
	if err != nil {
		return crawler.Status{}, err
	}
	return c.Run(ctx, prof)
}

// resume continues an interrupted run, rebuilding the collaborators from the
// profile stored with the run record.
func (a *app) resume(ctx context.Context, runID string) (crawler.Status, error) {
	if !a.gate.TryAcquire() {
		return crawler.Status{}, crawler.ErrRunActive
	}
	defer a.gate.Release()

	run, err := a.db.GetRun(ctx, runID)
	if err != nil {
		return crawler.Status{}, err
	}
	prof, err := profile.Parse([]byte(run.Profile))
	if err != nil {
		return crawler.Status{}, fmt.Errorf("run %s has no usable profile: %w", runID, err)
	}
	c, err := a.newCrawler(prof.Normalized())
	if err != nil {
		return crawler.Status{}, err
	}
	return c.Resume(ctx, runID)
}

// newCrawler builds a crawler for one run of prof.
func (a *app) newCrawler(prof profile.Profile) (*crawler.Crawler, error) {
	cfg := a.currentConfig()

	fetchCfg := fetch.Config{
		Timeout:          cfg.FetchTimeout,
		Retries:          cfg.FetchRetries,
		Backoff:          cfg.FetchBackoff,
		MaxBackoff:       cfg.FetchMaxBackoff,
		RateLimit:        cfg.FetchRateLimit,
		RateBurst:        cfg.FetchRateBurst,
		UserAgent:        cfg.UserAgent,
		ProxyURL:         cfg.ProxyURL,
		InsecureFallback: cfg.InsecureFallback,
		Headers:          prof.RequestHeaders,
	}
	if prof.RateLimit > 0 {
		fetchCfg.RateLimit = prof.RateLimit
	}
	fetcher, err := fetch.New(fetchCfg, a.types, a.meta)
	if err != nil {
		return nil, err
	}

	var files *filestore.Store
	if prof.OfflineCopy {
		files, err = filestore.New(filepath.Join(cfg.DataDir, "sites", prof.Name))
		if err != nil {
			return nil, err
		}
	}

	return crawler.New(crawler.Deps{
		Fetcher: fetcher,
		DB:      a.db,
		Files:   files,
		States:  a.states,
	}, crawler.Config{
		MaxPages:         cfg.MaxPages,
		AssetConcurrency: cfg.AssetConcurrency,
		SnapshotEvery:    cfg.SnapshotEvery,
	}), nil
}
