package app

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/aporte/internal/allocator"
	"github.com/newthinker/aporte/internal/config"
	"github.com/newthinker/aporte/internal/core"
	"github.com/newthinker/aporte/internal/ledger"
	"github.com/newthinker/aporte/internal/orchestrator"
	"github.com/newthinker/aporte/internal/profile"
	"github.com/newthinker/aporte/internal/provider"
	"github.com/newthinker/aporte/internal/rl"
	"github.com/newthinker/aporte/internal/storage/archive"
)

type fakeIndicators struct{}

func (fakeIndicators) Name() string { return "macro" }

func (fakeIndicators) Indicators() []string {
	return []string{core.IndicatorPolicyRate, core.IndicatorInflation, core.IndicatorVolatilityIndex}
}

func (fakeIndicators) FetchSeries(_ context.Context, indicator string, start, end time.Time) ([]core.Observation, error) {
	var out []core.Observation
	i := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 7) {
		v := 10 + math.Sin(float64(i)/5)
		if indicator == core.IndicatorVolatilityIndex {
			v = 20 + 5*math.Cos(float64(i)/4)
		}
		out = append(out, core.Observation{Time: d, Value: v})
		i++
	}
	return out, nil
}

type fakePrices struct {
	skip map[string]bool
}

func (fakePrices) Name() string { return "prices" }

func (f fakePrices) FetchHistory(_ context.Context, ticker string, start, end time.Time) ([]core.PricePoint, error) {
	if f.skip[ticker] {
		return nil, nil
	}
	phase := float64(len(ticker))
	var out []core.PricePoint
	i := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		px := 50 * (1 + 0.0005*float64(i) + 0.03*math.Sin(float64(i)/9+phase))
		out = append(out, core.PricePoint{Time: d, Close: px})
		i++
	}
	return out, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Storage.Path = t.TempDir()
	cfg.Providers.RateLimit = 1000
	cfg.Providers.Burst = 100
	cfg.Providers.Backoff = time.Millisecond
	cfg.Backtest.Start = "2024-01-02"
	cfg.Backtest.End = "2024-03-29"
	cfg.Backtest.Window = 5
	cfg.RL.Episodes = 2
	cfg.RL.Hidden = 4
	cfg.RL.BatchSize = 4
	cfg.RL.BufferSize = 64
	cfg.RL.EpsilonDecaySteps = 20
	cfg.RL.TargetSyncSteps = 5
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, prices fakePrices) *App {
	t.Helper()
	store, err := archive.NewLocalFS(cfg.Storage.Path)
	require.NoError(t, err)
	a, err := Build(cfg, nil,
		WithStorage(store),
		WithProviders([]provider.IndicatorProvider{fakeIndicators{}}, prices),
	)
	require.NoError(t, err)
	return a
}

func TestBuild_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Universe = nil

	_, err := Build(cfg, nil)
	assert.True(t, errors.Is(err, core.ErrConfigMissing))
}

func TestBuild_DefaultProviders(t *testing.T) {
	cfg := testConfig(t)
	a, err := Build(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		core.IndicatorFXRate, core.IndicatorGDPGrowth, core.IndicatorInflation, core.IndicatorPolicyRate,
	}, a.market.Indicators())
	assert.ElementsMatch(t, []string{profile.Aggressive, profile.Conservative, profile.Intermediate}, a.profiles.Names())
}

func TestApp_DecideRecordsToArchiveLedger(t *testing.T) {
	a := newTestApp(t, testConfig(t), fakePrices{})
	ctx := context.Background()

	d, err := a.Decide(ctx, orchestrator.DecideRequest{
		Profile: profile.Intermediate,
		Amount:  decimal.NewFromInt(2500),
		Date:    time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d.Mega.Sum(), core.WeightTolerance)

	listed, err := a.Ledger().List(ctx, ledger.ListFilter{Profile: profile.Intermediate})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, d.ID, listed[0].ID)
	assert.True(t, listed[0].ContributionAmount.Equal(decimal.NewFromInt(2500)))
}

func TestApp_Dataset(t *testing.T) {
	a := newTestApp(t, testConfig(t), fakePrices{skip: map[string]bool{"NASD11.SA": true}})
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 29, 0, 0, 0, 0, time.UTC)

	data, err := a.Dataset(context.Background(), start, end)
	require.NoError(t, err)
	require.NoError(t, data.Prices.Validate())
	assert.Equal(t, []string{"NASD11.SA"}, data.Missing)
	assert.Contains(t, data.Prices.Series, "^BVSP")
	assert.True(t, data.Prices.Dates[0].Before(start))

	snap, ok := data.Feed.At(end)
	require.True(t, ok)
	_, ok = snap.Value(core.IndicatorPolicyRate)
	assert.True(t, ok)
}

func TestApp_BacktestPolicies(t *testing.T) {
	a := newTestApp(t, testConfig(t), fakePrices{})
	ctx := context.Background()

	for _, policy := range []string{PolicyRuleBased, PolicyBaseWeights, PolicyHold} {
		t.Run(policy, func(t *testing.T) {
			result, err := a.Backtest(ctx, SimulationRequest{Profile: profile.Aggressive, Policy: policy})
			require.NoError(t, err)
			assert.Greater(t, len(result.Returns), 1)
			assert.Greater(t, result.FinalValue, 0.0)
		})
	}

	_, err := a.Backtest(ctx, SimulationRequest{Profile: profile.Aggressive, Policy: "oracle"})
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))

	_, err = a.Backtest(ctx, SimulationRequest{Profile: profile.Aggressive, Policy: PolicyRL})
	assert.True(t, errors.Is(err, core.ErrPolicyUnavailable))
}

func TestApp_TrainSavesAndInstallsPolicy(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg, fakePrices{})
	ctx := context.Background()

	report, err := a.Train(ctx, SimulationRequest{Profile: profile.Aggressive})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Episodes)
	assert.True(t, a.policies[profile.Aggressive].Loaded())

	result, err := a.Backtest(ctx, SimulationRequest{Profile: profile.Aggressive, Policy: PolicyRL})
	require.NoError(t, err)
	assert.Equal(t, "rl_greedy", result.Policy)

	// a fresh app finds the checkpoint in storage
	b := newTestApp(t, cfg, fakePrices{})
	assert.Equal(t, 1, b.LoadPolicies(ctx))

	d, err := b.Decide(ctx, orchestrator.DecideRequest{
		Profile:  profile.Aggressive,
		Amount:   decimal.NewFromInt(1000),
		Date:     time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Strategy: allocator.StrategyRLAssisted,
	})
	require.NoError(t, err)
	if d.Strategy == string(allocator.StrategyRLAssisted) {
		assert.Contains(t, d.Action, "aggressive/")
	} else {
		assert.True(t, d.Degraded, "rule-based fallback must be reported")
	}
}

func TestApp_TrainResumesFromCheckpoint(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg, fakePrices{})
	ctx := context.Background()
	path := cfg.RL.Checkpoint(profile.Intermediate)

	// nothing stored yet, so resuming starts fresh
	_, err := a.Train(ctx, SimulationRequest{Profile: profile.Intermediate, Resume: true})
	require.NoError(t, err)
	first, err := rl.Load(ctx, a.store, path)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Episodes())

	fixedIncome := make(map[float64]bool)
	for _, tpl := range first.Templates() {
		fixedIncome[tpl.Mega[core.ClassFixedIncome]] = true
	}
	assert.Greater(t, len(fixedIncome), 1, "templates should vary the asset class mix")

	report, err := a.Train(ctx, SimulationRequest{Profile: profile.Intermediate, Resume: true})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Episodes)
	resumed, err := rl.Load(ctx, a.store, path)
	require.NoError(t, err)
	assert.Equal(t, 4, resumed.Episodes())
	assert.Greater(t, resumed.Steps(), first.Steps())

	// without resume the checkpoint is replaced by a fresh run
	_, err = a.Train(ctx, SimulationRequest{Profile: profile.Intermediate})
	require.NoError(t, err)
	fresh, err := rl.Load(ctx, a.store, path)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Episodes())
}

func TestApp_TrainNeedsEveryTicker(t *testing.T) {
	a := newTestApp(t, testConfig(t), fakePrices{skip: map[string]bool{"KNRI11.SA": true}})

	_, err := a.Train(context.Background(), SimulationRequest{Profile: profile.Conservative})
	assert.True(t, errors.Is(err, core.ErrInsufficientData))
}

func TestAlignPrices_KeepsSharedDays(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	histories := map[string][]core.PricePoint{
		"A": {{Time: day(2), Close: 10}, {Time: day(3), Close: 11}, {Time: day(4), Close: 12}},
		"B": {{Time: day(3), Close: 20}, {Time: day(4), Close: 21}, {Time: day(5), Close: 22}},
	}

	table, missing := alignPrices(histories, []string{"A", "B", "C"})
	assert.Equal(t, []string{"C"}, missing)
	assert.Equal(t, []time.Time{day(3), day(4)}, table.Dates)
	assert.Equal(t, []float64{11, 12}, table.Series["A"])
	assert.Equal(t, []float64{20, 21}, table.Series["B"])
}
