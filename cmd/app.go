package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kubev2v/inventory-collector/internal/collector"
	"github.com/kubev2v/inventory-collector/internal/collector/ansible"
	"github.com/kubev2v/inventory-collector/internal/collector/local"
	"github.com/kubev2v/inventory-collector/internal/config"
	"github.com/kubev2v/inventory-collector/internal/models"
	"github.com/kubev2v/inventory-collector/internal/services"
	"github.com/kubev2v/inventory-collector/internal/store"
	"github.com/kubev2v/inventory-collector/internal/store/migrations"
	"github.com/kubev2v/inventory-collector/pkg/scheduler"
	"github.com/kubev2v/inventory-collector/pkg/sealer"
)

// app holds the wired services shared by every command.
type app struct {
	store        *store.Store
	sealer       *sealer.Sealer
	orchestrator *services.Orchestrator
	collections  *services.CollectionService
	scheduler    *scheduler.Scheduler
}

// newApp opens the store and wires the collection engine. The scheduler is
// only started when withScheduler is set.
func newApp(ctx context.Context, cfg *config.Configuration, withScheduler bool) (*app, error) {
	dbPath := filepath.Join(cfg.Storage.DataFolder, "collector.duckdb")
	if cfg.Storage.DataFolder == "" {
		dbPath = ":memory:"
		zap.S().Warn("data-folder not set, using in-memory database (data will not persist)")
	}
	db, err := store.NewDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := migrations.Run(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	zap.S().Debugw("database initialized", "path", dbPath)

	s, err := loadSealer(cfg.Storage)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &app{store: store.NewStore(db), sealer: s}
	a.wire(cfg)
	if withScheduler {
		a.scheduler = scheduler.NewScheduler(cfg.Collection.NumWorkers)
	}
	a.collections = services.NewCollectionService(a.store, a.orchestrator, a.scheduler)
	return a, nil
}

func (a *app) wire(cfg *config.Configuration) {
	remote := ansible.New(ansible.ExecRunner{}, ansible.Options{
		Binary:          cfg.Collection.AnsibleBinary,
		Timeout:         cfg.Collection.AnsibleTimeout,
		WorkDir:         cfg.Collection.WorkDir,
		SSHPrecheck:     cfg.Collection.SSHPrecheck,
		PrecheckTimeout: cfg.Collection.PrecheckTimeout,
	})
	registry := collector.NewRegistry().
		Register(remote, models.UnitKindLinux, models.UnitKindWindows).
		Register(local.New(), models.UnitKindLocal)

	ocfg := services.DefaultOrchestratorConfig()
	ocfg.DefaultLimit = cfg.Collection.DefaultLimit
	ocfg.UnitTimeout = cfg.Collection.UnitTimeout
	ocfg.SyncSoftTimeout = cfg.Collection.SyncSoftTimeout
	ocfg.SyncHardTimeout = cfg.Collection.SyncHardTimeout

	a.orchestrator = services.NewOrchestrator(
		a.store,
		registry,
		services.NewCredentialService(a.store.Credentials(), a.sealer),
		services.NewVSphereOpener(a.sealer, cfg.Collection.VSphereTimeout),
		ocfg,
	)
}

func (a *app) Close() {
	if a.scheduler != nil {
		a.scheduler.Close()
	}
	if err := a.store.Close(); err != nil {
		zap.S().Warnw("failed to close store", "error", err)
	}
}

// loadSealer reads the age identity from the key file. Without a key file or
// data folder a throwaway identity is generated.
func loadSealer(cfg config.Storage) (*sealer.Sealer, error) {
	path := cfg.KeyFile
	if path == "" && cfg.DataFolder != "" {
		path = filepath.Join(cfg.DataFolder, "identity.key")
	}
	if path == "" {
		zap.S().Warn("no key file configured, generating an ephemeral identity")
		return sealer.Generate()
	}
	s, err := sealer.LoadOrCreate(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity %s: %w", path, err)
	}
	return s, nil
}
