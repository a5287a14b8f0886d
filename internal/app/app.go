package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/newthinker/aporte/internal/allocator"
	"github.com/newthinker/aporte/internal/backtest"
	"github.com/newthinker/aporte/internal/config"
	"github.com/newthinker/aporte/internal/core"
	"github.com/newthinker/aporte/internal/ledger"
	"github.com/newthinker/aporte/internal/metrics"
	"github.com/newthinker/aporte/internal/orchestrator"
	"github.com/newthinker/aporte/internal/profile"
	"github.com/newthinker/aporte/internal/provider"
	"github.com/newthinker/aporte/internal/provider/bcb"
	"github.com/newthinker/aporte/internal/provider/fred"
	"github.com/newthinker/aporte/internal/provider/yahoo"
	"github.com/newthinker/aporte/internal/regime"
	"github.com/newthinker/aporte/internal/rl"
	"github.com/newthinker/aporte/internal/storage/archive"
)

// Option overrides a collaborator Build would otherwise create from config
type Option func(*options)

type options struct {
	store      archive.Storage
	indicators []provider.IndicatorProvider
	prices     provider.PriceProvider
	custom     bool
	metrics    *metrics.Registry
}

// WithStorage uses store for checkpoints and the archive ledger
func WithStorage(store archive.Storage) Option {
	return func(o *options) { o.store = store }
}

// WithProviders replaces the configured data providers
func WithProviders(indicators []provider.IndicatorProvider, prices provider.PriceProvider) Option {
	return func(o *options) {
		o.indicators = indicators
		o.prices = prices
		o.custom = true
	}
}

// WithMetrics records into reg instead of a new registry
func WithMetrics(reg *metrics.Registry) Option {
	return func(o *options) { o.metrics = reg }
}

// App wires every component from one config
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	universe     *core.Universe
	profiles     *profile.Registry
	classifier   *regime.Classifier
	allocator    *allocator.Allocator
	store        archive.Storage
	ledger       ledger.Ledger
	market       *provider.Gatherer
	policies     map[string]*rl.PolicyHandle
	orchestrator *orchestrator.Orchestrator
	metrics      *metrics.Registry
}

// Build validates cfg and constructs the application
func Build(cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: logger, metrics: o.metrics}
	if a.metrics == nil {
		a.metrics = metrics.NewRegistry()
	}

	var err error
	if a.universe, err = core.NewUniverse(cfg.Universe); err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, err)
	}
	if a.profiles, err = cfg.ProfileRegistry(); err != nil {
		return nil, err
	}
	if a.classifier, err = regime.New(cfg.Regime, logger.Named("regime")); err != nil {
		return nil, err
	}
	if a.allocator, err = allocator.New(cfg.Allocator, a.universe, a.profiles, logger.Named("allocator")); err != nil {
		return nil, err
	}

	a.store = o.store
	if a.store == nil {
		if a.store, err = newStorage(cfg.Storage); err != nil {
			return nil, err
		}
	}
	switch cfg.Ledger.Type {
	case "memory":
		a.ledger = ledger.NewMemoryLedger(cfg.Ledger.MaxSize)
	default:
		a.ledger = ledger.NewArchiveLedger(a.store)
	}

	indicators, prices := o.indicators, o.prices
	if !o.custom {
		indicators, prices = newProviders(cfg.Providers)
	}
	if a.market, err = provider.NewGatherer(cfg.Providers.Config, indicators, prices, a.metrics, logger.Named("provider")); err != nil {
		return nil, err
	}

	a.policies = make(map[string]*rl.PolicyHandle)
	advisors := make(map[string]allocator.PolicyAdvisor)
	for _, name := range a.profiles.Names() {
		h := rl.NewPolicyHandle(logger.Named("policy"))
		a.policies[name] = h
		advisors[name] = h
	}

	a.orchestrator, err = orchestrator.New(cfg.Orchestrator, orchestrator.Deps{
		Market:     a.market,
		Classifier: a.classifier,
		Allocator:  a.allocator,
		Profiles:   a.profiles,
		Ledger:     a.ledger,
		Encoder:    a.encoder(),
		Advisors:   advisors,
		Risk:       cfg.Risk,
		Metrics:    a.metrics,
		Logger:     logger.Named("orchestrator"),
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func newStorage(cfg config.StorageConfig) (archive.Storage, error) {
	switch cfg.Type {
	case "s3":
		return archive.NewS3(cfg.S3)
	default:
		return archive.NewLocalFS(cfg.Path)
	}
}

// newProviders builds the enabled clients. BCB is listed before FRED so
// it wins for indicators both could serve.
func newProviders(cfg config.ProvidersConfig) ([]provider.IndicatorProvider, provider.PriceProvider) {
	var indicators []provider.IndicatorProvider
	if cfg.BCB.Enabled {
		indicators = append(indicators, bcb.New(cfg.BCB.Endpoint))
	}
	if cfg.FRED.Enabled {
		indicators = append(indicators, fred.New(cfg.FRED.Endpoint, cfg.FRED.APIKey))
	}
	var prices provider.PriceProvider
	if cfg.Yahoo.Enabled {
		prices = yahoo.New(cfg.Yahoo.Endpoint)
	}
	return indicators, prices
}

// envConfig is the backtest environment config with the shared risk
// settings and the decision benchmark as fallback.
func (a *App) envConfig() backtest.Config {
	cfg := a.cfg.Backtest.Config
	cfg.Risk = a.cfg.Risk
	if cfg.Benchmark == "" {
		cfg.Benchmark = a.cfg.Orchestrator.Benchmark
	}
	return cfg
}

// tickers lists the universe and the benchmark, the columns of every price
// table the environment is trained on.
func (a *App) tickers() []string {
	tickers := a.universe.Tickers()
	bench := a.envConfig().Benchmark
	if _, ok := a.universe.Lookup(bench); !ok {
		tickers = append(tickers, bench)
	}
	return tickers
}

// encoder matches the state layout of the training environment
func (a *App) encoder() *backtest.StateEncoder {
	cfg := a.envConfig()
	return backtest.NewStateEncoder(a.tickers(), cfg.Window, cfg.Indicators)
}

// Metrics returns the registry every component records into
func (a *App) Metrics() *metrics.Registry {
	return a.metrics
}

// Ledger returns the decision ledger
func (a *App) Ledger() ledger.Ledger {
	return a.ledger
}

// Profiles returns the profile registry
func (a *App) Profiles() *profile.Registry {
	return a.profiles
}

// Decide records the allocation decision of one contribution
func (a *App) Decide(ctx context.Context, req orchestrator.DecideRequest) (*core.AllocationDecision, error) {
	return a.orchestrator.Decide(ctx, req)
}

// LoadPolicies loads the stored policy of every profile. A profile without
// a usable checkpoint keeps its current policy and decides rule-based.
func (a *App) LoadPolicies(ctx context.Context) int {
	loaded := 0
	for _, name := range a.profiles.Names() {
		path := a.cfg.RL.Checkpoint(name)
		err := a.policies[name].Load(ctx, a.store, path)
		switch {
		case err == nil:
			loaded++
		case errors.Is(err, core.ErrPolicyUnavailable):
			a.logger.Info("no stored policy", zap.String("profile", name), zap.String("path", path))
		default:
			a.logger.Warn("policy not loaded", zap.String("profile", name), zap.String("path", path), zap.Error(err))
		}
	}
	return loaded
}

// ServeMetrics exposes the registry until ctx is done when metrics are
// enabled, and returns immediately otherwise.
func (a *App) ServeMetrics(ctx context.Context) error {
	if !a.cfg.Metrics.Enabled {
		return nil
	}
	if err := metrics.Serve(ctx, a.cfg.Metrics.Listen, a.metrics, a.logger.Named("metrics")); err != nil {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
