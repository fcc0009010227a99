// Package daemon assembles the pipeline services into a single background
// process: the task registry, scheduler, HTTP API, and periodic maintenance.
// A file lock enforces one instance per data directory.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"

	"subgen/internal/api"
	"subgen/internal/config"
	"subgen/internal/logging"
	"subgen/internal/media"
	"subgen/internal/pipeline"
	"subgen/internal/progress"
	"subgen/internal/registry"
	"subgen/internal/scheduler"
	"subgen/internal/services/sensevoice"
	"subgen/internal/services/translate"
	"subgen/internal/stage"
	"subgen/internal/stages"
)

// Daemon owns the long-running services and enforces single-instance
// execution through a lock file in the data directory.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *registry.Store
	registry  *registry.Registry
	bus       *progress.Bus
	scheduler *scheduler.Scheduler
	server    *api.Server
	cron      *cron.Cron

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// New wires the full service graph from configuration. Tasks that were
// processing when the previous instance exited come back paused; nothing
// starts running until the scheduler admits it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store, err := registry.OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	reg, err := registry.New(ctx, store, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	recognizer := sensevoice.New(cfg.ASR, logger)
	env := &stages.Env{
		Config:     cfg,
		Registry:   reg,
		Bus:        progress.NewBus(),
		Tool:       media.NewFFmpeg(cfg.Media),
		Detector:   media.NewDetector(cfg.VAD),
		Recognizer: recognizer,
		Translator: translate.New(cfg.Translation, logger),
		NetLimiter: stage.NewLimiter(cfg.Pipeline.NetworkSlots),
		Retry:      stage.DefaultRetryPolicy(),
		Logger:     logger,
	}

	sched := scheduler.New(env, pipeline.NewRunner(env))
	server := api.NewServer(cfg, reg, sched, env.Bus, recognizer, logger)

	lockPath := filepath.Join(cfg.Paths.DataDir, "subgen.lock")
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     store,
		registry:  reg,
		bus:       env.Bus,
		scheduler: sched,
		server:    server,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	d.cron = d.newMaintenanceCron()
	return d, nil
}

// Start acquires the instance lock and brings up the API server and
// maintenance schedule.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another instance holds %s", d.lockPath)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.server.Start(runCtx); err != nil {
		cancel()
		d.cancel = nil
		_ = d.lock.Unlock()
		return err
	}
	d.cron.Start()

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.server.Addr()))
	return nil
}

// Stop pauses running tasks, shuts the API down, and releases the lock.
// Paused tasks keep their persisted artifacts and resume on the next start.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	cronCtx := d.cron.Stop()
	<-cronCtx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := d.scheduler.Stop(stopCtx); err != nil {
		d.logger.Warn("scheduler stop", logging.Error(err))
	}

	d.server.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and closes the task store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Running reports whether Start has succeeded without a matching Stop.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Addr returns the API listen address once started.
func (d *Daemon) Addr() string {
	return d.server.Addr()
}

// Registry exposes the task registry.
func (d *Daemon) Registry() *registry.Registry {
	return d.registry
}

// Scheduler exposes the task scheduler.
func (d *Daemon) Scheduler() *scheduler.Scheduler {
	return d.scheduler
}

// Bus exposes the progress event bus.
func (d *Daemon) Bus() *progress.Bus {
	return d.bus
}
