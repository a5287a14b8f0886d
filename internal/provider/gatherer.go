package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/newthinker/aporte/internal/core"
	"github.com/newthinker/aporte/internal/metrics"
)

// Config controls how the gatherer calls providers
type Config struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	Backoff         time.Duration `mapstructure:"backoff"`
	Concurrency     int           `mapstructure:"concurrency"`
	RateLimit       float64       `mapstructure:"rate_limit"` // requests per second per provider
	Burst           int           `mapstructure:"burst"`
	HistoryDays     int           `mapstructure:"history_days"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

// DefaultConfig returns the default gatherer settings
func DefaultConfig() Config {
	return Config{
		Timeout:         10 * time.Second,
		MaxAttempts:     3,
		Backoff:         500 * time.Millisecond,
		Concurrency:     4,
		RateLimit:       5,
		Burst:           5,
		HistoryDays:     730,
		BreakerFailures: 3,
		BreakerTimeout:  60 * time.Second,
	}
}

// Validate checks the settings
func (c Config) Validate() error {
	switch {
	case c.Timeout <= 0:
		return core.Errorf(core.ErrConfigInvalid, "providers: timeout must be positive")
	case c.MaxAttempts < 1:
		return core.Errorf(core.ErrConfigInvalid, "providers: max attempts must be at least 1")
	case c.Backoff < 0:
		return core.Errorf(core.ErrConfigInvalid, "providers: backoff cannot be negative")
	case c.Concurrency < 1:
		return core.Errorf(core.ErrConfigInvalid, "providers: concurrency must be at least 1")
	case c.RateLimit <= 0 || c.Burst < 1:
		return core.Errorf(core.ErrConfigInvalid, "providers: rate limit and burst must be positive")
	case c.HistoryDays < 1:
		return core.Errorf(core.ErrConfigInvalid, "providers: history days must be positive")
	case c.BreakerFailures < 1:
		return core.Errorf(core.ErrConfigInvalid, "providers: breaker failures must be at least 1")
	}
	return nil
}

// guard throttles and trips calls to one provider
type guard struct {
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// Gatherer assembles indicator snapshots and price histories from several
// providers concurrently.
type Gatherer struct {
	cfg        Config
	indicators map[string]IndicatorProvider // by indicator name
	prices     PriceProvider
	guards     map[string]*guard
	metrics    *metrics.Registry
	logger     *zap.Logger
}

// NewGatherer routes each indicator to the first provider that serves it.
// prices may be nil when only snapshots are needed.
func NewGatherer(cfg Config, indicators []IndicatorProvider, prices PriceProvider, reg *metrics.Registry, logger *zap.Logger) (*Gatherer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gatherer{
		cfg:        cfg,
		indicators: make(map[string]IndicatorProvider),
		prices:     prices,
		guards:     make(map[string]*guard),
		metrics:    reg,
		logger:     logger,
	}
	for _, p := range indicators {
		g.addGuard(p.Name())
		for _, name := range p.Indicators() {
			if _, taken := g.indicators[name]; !taken {
				g.indicators[name] = p
			}
		}
	}
	if prices != nil {
		g.addGuard(prices.Name())
	}
	return g, nil
}

func (g *Gatherer) addGuard(name string) {
	if _, ok := g.guards[name]; ok {
		return
	}
	failures := g.cfg.BreakerFailures
	g.guards[name] = &guard{
		limiter: rate.NewLimiter(rate.Limit(g.cfg.RateLimit), g.cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: g.cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				g.logger.Warn("provider breaker state changed",
					zap.String("provider", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
	}
}

// Indicators returns the routable indicator names, sorted
func (g *Gatherer) Indicators() []string {
	out := make([]string, 0, len(g.indicators))
	for name := range g.indicators {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Snapshot fetches every routable indicator up to date. Indicators that
// cannot be fetched are recorded as missing instead of failing the call.
func (g *Gatherer) Snapshot(ctx context.Context, date time.Time) (core.IndicatorSnapshot, error) {
	series, missing, err := g.Series(ctx, date.AddDate(0, 0, -g.cfg.HistoryDays), date)
	if err != nil {
		return core.IndicatorSnapshot{}, err
	}
	snap := BuildSnapshot(date, series, g.cfg.HistoryDays, missing)
	for _, name := range snap.Missing() {
		if _, fetched := series[name]; fetched {
			g.logger.Warn("indicator missing",
				zap.String("indicator", name),
				zap.String("reason", "no observations up to "+date.Format(time.DateOnly)),
			)
		}
	}
	return snap, nil
}

// Series fetches the observations of every routable indicator in
// [start, end]. Indicators whose fetch fails are returned in missing.
func (g *Gatherer) Series(ctx context.Context, start, end time.Time) (map[string][]core.Observation, []string, error) {
	out := make(map[string][]core.Observation)
	var missing []string
	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Concurrency)
	for _, name := range g.Indicators() {
		name, p := name, g.indicators[name]
		eg.Go(func() error {
			var obs []core.Observation
			err := g.call(egCtx, p.Name(), func(ctx context.Context) error {
				var err error
				obs, err = p.FetchSeries(ctx, name, start, end)
				return err
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				missing = append(missing, name)
				g.logger.Warn("indicator missing",
					zap.String("indicator", name),
					zap.String("provider", p.Name()),
					zap.Error(err),
				)
				return nil
			}
			out[name] = obs
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	sort.Strings(missing)
	return out, missing, nil
}

// BuildSnapshot assembles the snapshot as of date from full indicator
// series, keeping observations within window days before date. Indicators
// without observations in the window are added to missing.
func BuildSnapshot(date time.Time, series map[string][]core.Observation, window int, missing []string) core.IndicatorSnapshot {
	from := date.AddDate(0, 0, -window)
	values := make(map[string]float64, len(series))
	history := make(map[string][]float64, len(series))
	missing = append([]string(nil), missing...)

	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		var h []float64
		for _, o := range series[name] {
			if o.Time.Before(from) || o.Time.After(date) {
				continue
			}
			h = append(h, o.Value)
		}
		if len(h) == 0 {
			missing = append(missing, name)
			continue
		}
		values[name] = h[len(h)-1]
		history[name] = h
	}
	return core.NewIndicatorSnapshot(date, values, history, missing...)
}

// PriceHistory fetches daily closes of tickers in [start, end]. Tickers
// that fail are logged and omitted; the call fails only when every ticker
// fails.
func (g *Gatherer) PriceHistory(ctx context.Context, tickers []string, start, end time.Time) (map[string][]core.PricePoint, error) {
	if g.prices == nil {
		return nil, core.Errorf(core.ErrConfigMissing, "no price provider configured")
	}
	out := make(map[string][]core.PricePoint, len(tickers))
	var errs []error
	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Concurrency)
	for _, ticker := range tickers {
		ticker := ticker
		eg.Go(func() error {
			var points []core.PricePoint
			err := g.call(egCtx, g.prices.Name(), func(ctx context.Context) error {
				var err error
				points, err = g.prices.FetchHistory(ctx, ticker, start, end)
				return err
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				errs = append(errs, fmt.Errorf("%s: %w", ticker, err))
				g.logger.Warn("price history missing", zap.String("ticker", ticker), zap.Error(err))
				return nil
			}
			out[ticker] = points
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if len(out) == 0 && len(tickers) > 0 {
		return nil, core.WrapError(core.ErrProviderFailed, errors.Join(errs...))
	}
	return out, nil
}

// call runs fn under the provider's rate limit and breaker, retrying with
// exponential backoff. An open breaker stops retrying.
func (g *Gatherer) call(ctx context.Context, source string, fn func(ctx context.Context) error) error {
	gd := g.guards[source]
	var err error
	for attempt := 0; attempt < g.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := g.cfg.Backoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if werr := gd.limiter.Wait(ctx); werr != nil {
			return werr
		}

		started := time.Now()
		_, err = gd.breaker.Execute(func() (interface{}, error) {
			callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
			defer cancel()
			return nil, fn(callCtx)
		})
		g.metrics.RecordProviderFetch(source, err, time.Since(started).Seconds())
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || ctx.Err() != nil {
			break
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.WrapError(core.ErrProviderTimeout, fmt.Errorf("%s: %w", source, err))
	}
	return core.WrapError(core.ErrProviderFailed, fmt.Errorf("%s: %w", source, err))
}
