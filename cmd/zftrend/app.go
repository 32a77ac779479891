package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"zftrend/internal/config"
	"zftrend/internal/export"
	"zftrend/internal/pipeline"
	"zftrend/internal/provider"
	"zftrend/internal/ratelimit"
	"zftrend/internal/screen"
	"zftrend/internal/store"
	"zftrend/internal/task"
)

// app wires configuration into the running components.
type app struct {
	cfg    *config.Config
	log    zerolog.Logger
	store  *store.Store
	runner *task.Runner
}

func newApp(log zerolog.Logger) (*app, error) {
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// One budget shared by both upstreams: every outbound attempt,
	// retries included, draws from the same hourly allowance.
	budget := ratelimit.New(cfg.Provider.CallsPerHour, time.Hour)
	if cfg.Provider.PaceRequests {
		budget.EnablePacing()
	}
	opts := provider.Options{
		Timeout:       cfg.Timeout(),
		MaxRetries:    cfg.Provider.MaxRetries,
		RetryBase:     cfg.RetryBase(),
		WaitForBudget: cfg.Provider.WaitForBudget,
	}
	finmind := provider.NewFinMind(cfg.Provider.FinMindURL, cfg.Provider.FinMindToken, budget, opts, log)
	twse := provider.NewTWSE(cfg.Provider.TWSEURL, budget, opts, log)
	hybrid := provider.NewHybrid(finmind, twse, log)

	st, err := store.Open(cfg.Database.SQLitePath, log)
	if err != nil {
		return nil, err
	}

	var exporter export.Exporter = export.Noop{}
	if cfg.Export.WorkbookPath != "" {
		exporter = export.NewWorkbook(cfg.Export.WorkbookPath, log)
	}

	pipe := pipeline.New(hybrid, st, cfg.Workers, log)
	engine := screen.NewEngine(cfg.Screen.NewHighThreshold)
	runner := task.NewRunner(hybrid, st, pipe, engine, exporter, cfg.Workers, log)

	return &app{cfg: cfg, log: log, store: st, runner: runner}, nil
}

func (a *app) Close() {
	a.store.Close()
}
