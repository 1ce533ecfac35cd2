package di

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"oficiogen/backend/internal/adgate"
	"oficiogen/backend/internal/chat"
	"oficiogen/backend/internal/generation"
	"oficiogen/backend/internal/store"
	"oficiogen/backend/internal/usage"
	"oficiogen/backend/internal/ws"
	"oficiogen/backend/pkg/config"
	"oficiogen/backend/pkg/health"
	"oficiogen/backend/pkg/jwt"
	"oficiogen/backend/pkg/logger"
	"oficiogen/backend/pkg/observability"
	"oficiogen/backend/pkg/secrets"
)

// Container holds all the dependencies for the application
type Container struct {
	Config     *config.Config
	Logger     *logger.Logger
	JWTService *jwt.Service
	Store      *store.Store
	Secrets    secrets.Manager
	Generator  *generation.Provider
	Registry   *chat.Registry
	Hub        *ws.Hub
	Health     *health.Checker
	Prometheus *observability.Prometheus
	Metrics    *observability.Metrics
}

// Options overrides parts of the wiring, mainly for tests
type Options struct {
	Backend   store.Backend
	Secrets   secrets.Manager
	Generator generation.Generator
	Scheduler adgate.Scheduler
}

// New creates a new dependency injection container
func New(cfg *config.Config, log *logger.Logger, opts Options) (*Container, error) {
	prom, err := observability.SetupPrometheusMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to set up metrics: %w", err)
	}

	metrics, err := observability.NewMetrics(prom.Provider.Meter("oficiogen"))
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	backend := opts.Backend
	if backend == nil {
		if backend, err = store.Open(cfg); err != nil {
			return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
		}
	}

	st := store.New(backend,
		store.WithTimeout(cfg.Store.Timeout),
		store.WithLogger(log),
		store.WithFailureHook(metrics.PersistenceFailure),
	)

	sm := opts.Secrets
	if sm == nil {
		vm, err := secrets.NewVaultManager(secrets.VaultConfigFrom(cfg), log)
		if err != nil {
			return nil, fmt.Errorf("failed to create secrets manager: %w", err)
		}
		sm = vm
	}

	provider := generation.NewProvider(generation.ProviderConfig{
		BaseURL:       cfg.Generation.BaseURL,
		Model:         cfg.Generation.Model,
		Timeout:       cfg.Generation.Timeout,
		CredentialKey: cfg.Generation.CredentialKey,
	}, sm, log)

	var gen generation.Generator = provider
	if opts.Generator != nil {
		gen = opts.Generator
	}

	sched := opts.Scheduler
	if sched == nil {
		sched = adgate.TickerScheduler{}
	}

	hub := ws.NewHub(log)

	registry := chat.NewRegistry(chat.Deps{
		Store:     st,
		Generator: gen,
		Gate: adgate.Config{
			Steps:        cfg.AdGate.Steps,
			StepSeconds:  cfg.AdGate.StepSeconds,
			TickInterval: time.Second,
		},
		Scheduler: sched,
		Policy:    usage.PolicyFor(cfg.Quota.FreeWeeklyLimit),
		Metrics:   metrics,
		Log:       log,
		Observer:  hub.Publish,
	}, cfg.Workspace.IdleTTL)

	checker := health.NewChecker(log, 30*time.Second)
	checker.RegisterStoreCheck(cfg.Store.Backend, st.Ping)
	checker.RegisterCheck("generation", false, func(ctx context.Context) (health.Status, string, error) {
		if err := provider.Ready(ctx); err != nil {
			return health.StatusDegraded, "generation credential not configured", err
		}
		return health.StatusUp, "generation credential available", nil
	})
	checker.RegisterCheck("workspaces", false, func(context.Context) (health.Status, string, error) {
		return health.StatusUp, strconv.Itoa(registry.Len()) + " live, " +
			strconv.Itoa(hub.ActiveConnections()) + " streams", nil
	})

	return &Container{
		Config:     cfg,
		Logger:     log,
		JWTService: jwt.NewService(cfg.JWT.Secret, cfg.JWT.Expiry),
		Store:      st,
		Secrets:    sm,
		Generator:  provider,
		Registry:   registry,
		Hub:        hub,
		Health:     checker,
		Prometheus: prom,
		Metrics:    metrics,
	}, nil
}

// Close releases workspaces, the store and the meter provider
func (c *Container) Close(ctx context.Context) error {
	c.Registry.Close(ctx)
	return errors.Join(
		c.Store.Close(),
		c.Prometheus.Shutdown(ctx),
	)
}
