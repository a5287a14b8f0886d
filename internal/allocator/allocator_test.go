package allocator

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/aporte/internal/core"
	"github.com/newthinker/aporte/internal/profile"
	"github.com/newthinker/aporte/internal/risk"
)

func testUniverse(t *testing.T) *core.Universe {
	t.Helper()
	u, err := core.NewUniverse([]core.Security{
		{Ticker: "IMAB11.SA", Class: core.ClassFixedIncome},
		{Ticker: "KNRI11.SA", Class: core.ClassRealEstateFunds},
		{Ticker: "MXRF11.SA", Class: core.ClassRealEstateFunds},
		{Ticker: "PETR4.SA", Class: core.ClassDomesticStocks, Sector: "energy"},
		{Ticker: "PRIO3.SA", Class: core.ClassDomesticStocks, Sector: "energy"},
		{Ticker: "WEGE3.SA", Class: core.ClassDomesticStocks, Sector: "technology"},
		{Ticker: "SLCE3.SA", Class: core.ClassDomesticStocks, Sector: "agriculture"},
		{Ticker: "IVVB11.SA", Class: core.ClassForeignStocks, Sector: "technology"},
		{Ticker: "NVDC34.SA", Class: core.ClassForeignStocks, Sector: "ia"},
	})
	require.NoError(t, err)
	return u
}

func newAllocator(t *testing.T, mutate func(*Config)) *Allocator {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := New(cfg, testUniverse(t), profile.Default(), nil)
	require.NoError(t, err)
	return a
}

func getProfile(t *testing.T, name string) core.RiskProfile {
	t.Helper()
	p, err := profile.Default().Get(name)
	require.NoError(t, err)
	return p
}

func classification(r core.Regime, strength float64) core.RegimeClassification {
	return core.RegimeClassification{Regime: r, Strength: strength, Confidence: 0.8}
}

type fixedEstimator struct {
	result risk.CheckResult
	err    error
}

func (f fixedEstimator) Check(core.RiskProfile, core.MegaWeights) (risk.CheckResult, error) {
	return f.result, f.err
}

// equityVaR projects a VaR of perEquity for every unit of equity share
type equityVaR struct {
	perEquity float64
}

func (e equityVaR) Check(p core.RiskProfile, mix core.MegaWeights) (risk.CheckResult, error) {
	v := e.perEquity * mix.Equity()
	res := risk.CheckResult{Passed: v <= p.MaxDailyVaR, VaR: v}
	if res.Passed {
		res.Reason = fmt.Sprintf("VaR %.2f%% within %s limits", v*100, p.Name)
	} else {
		res.Reason = fmt.Sprintf("VaR %.2f%% exceeds %s limit %.2f%%", v*100, p.Name, p.MaxDailyVaR*100)
	}
	return res, nil
}

type fakeAdvisor struct {
	advice Advice
	err    error
}

func (f fakeAdvisor) Advise([]float64) (Advice, error) {
	return f.advice, f.err
}

func TestAllocate_BearConservative(t *testing.T) {
	a := newAllocator(t, nil)
	p := getProfile(t, profile.Conservative)

	got, err := a.Allocate(p, classification(core.RegimeBear, 0.7), Inputs{}, RuleBased())
	require.NoError(t, err)

	assert.Greater(t, got.Mega[core.ClassFixedIncome], p.BaseWeights[core.ClassFixedIncome])
	assert.Less(t, got.Mega.Equity(), p.BaseWeights.Equity())
	assert.GreaterOrEqual(t, got.Mega[core.ClassFixedIncome], p.FixedIncomeFloor)
	assert.InDelta(t, 0.705, got.Mega[core.ClassFixedIncome], 1e-9)
	assert.InDelta(t, 0.0475, got.Mega[core.ClassDomesticStocks], 1e-9)
	assert.InDelta(t, 1.0, got.Mega.Sum(), core.WeightTolerance)
	assert.False(t, got.Degraded())
	assert.Equal(t, StrategyRuleBased, got.Strategy)
}

func TestAllocate_BullRespectsFloor(t *testing.T) {
	a := newAllocator(t, nil)
	p := getProfile(t, profile.Intermediate)

	got, err := a.Allocate(p, classification(core.RegimeBull, 1), Inputs{}, RuleBased())
	require.NoError(t, err)

	assert.InDelta(t, 0.25, got.Mega[core.ClassFixedIncome], 1e-9)
	assert.InDelta(t, 0.30+0.10*0.30/0.45, got.Mega[core.ClassDomesticStocks], 1e-9)
	assert.InDelta(t, 0.15+0.10*0.15/0.45, got.Mega[core.ClassForeignStocks], 1e-9)
	assert.Contains(t, got.Tilts[0], "bull tilt")
}

func TestAllocate_SidewaysKeepsBase(t *testing.T) {
	a := newAllocator(t, nil)
	p := getProfile(t, profile.Aggressive)

	got, err := a.Allocate(p, classification(core.RegimeSideways, 0.05), Inputs{}, RuleBased())
	require.NoError(t, err)
	for _, c := range core.AssetClasses {
		assert.InDelta(t, p.BaseWeights[c], got.Mega[c], 1e-12, string(c))
	}
}

func TestAllocate_TransitionBlendsTowardConservative(t *testing.T) {
	a := newAllocator(t, nil)
	p := getProfile(t, profile.Aggressive)

	got, err := a.Allocate(p, classification(core.RegimeTransition, 0.5), Inputs{}, RuleBased())
	require.NoError(t, err)
	assert.InDelta(t, 0.375, got.Mega[core.ClassFixedIncome], 1e-9)
	assert.InDelta(t, 0.25, got.Mega[core.ClassDomesticStocks], 1e-9)
}

func TestAllocate_MegaInvariants(t *testing.T) {
	a := newAllocator(t, nil)
	for _, p := range profile.Builtins() {
		for _, r := range core.Regimes {
			for _, s := range []float64{0, 0.3, 0.7, 1} {
				name := fmt.Sprintf("%s/%s/%.1f", p.Name, r, s)
				got, err := a.Allocate(p, classification(r, s), Inputs{}, RuleBased())
				require.NoError(t, err, name)
				assert.InDelta(t, 1.0, got.Mega.Sum(), core.WeightTolerance, name)
				for _, c := range core.AssetClasses {
					assert.GreaterOrEqual(t, got.Mega[c], 0.0, name)
				}
				assert.GreaterOrEqual(t, got.Mega[core.ClassFixedIncome], p.FixedIncomeFloor-core.WeightTolerance, name)
			}
		}
	}
}

func TestAllocate_ProfileViolationFallsBackToBase(t *testing.T) {
	a := newAllocator(t, nil)
	p := getProfile(t, profile.Intermediate)

	breach := risk.CheckResult{Reason: "historical drawdown 50.00% exceeds intermediate limit 25.00%", Drawdown: 0.5}
	got, err := a.Allocate(p, classification(core.RegimeBull, 0.9),
		Inputs{Risk: fixedEstimator{result: breach}}, RuleBased())
	require.NoError(t, err)

	require.True(t, got.Degraded())
	require.NotNil(t, got.Check)
	assert.False(t, got.Check.Passed)
	assert.True(t, errors.Is(got.Degradations[0], core.ErrProfileViolation))
	assert.Contains(t, got.Degradations[0].Error(), "exceeds intermediate limit")
	for _, c := range core.AssetClasses {
		assert.InDelta(t, p.BaseWeights[c], got.Mega[c], 1e-12)
	}

	ok, err := a.Allocate(p, classification(core.RegimeBull, 0.9),
		Inputs{Risk: fixedEstimator{result: risk.CheckResult{Passed: true, Drawdown: 0.1}}}, RuleBased())
	require.NoError(t, err)
	assert.False(t, ok.Degraded())
	require.NotNil(t, ok.Check)
	assert.True(t, ok.Check.Passed)
}

func TestAllocate_VaRBreachFallsBackToBase(t *testing.T) {
	a := newAllocator(t, nil)
	p := getProfile(t, profile.Intermediate)

	got, err := a.Allocate(p, classification(core.RegimeBull, 0.9), Inputs{Risk: equityVaR{perEquity: 0.07}}, RuleBased())
	require.NoError(t, err)

	require.Len(t, got.Degradations, 1)
	assert.True(t, errors.Is(got.Degradations[0], core.ErrProfileViolation))
	assert.Contains(t, got.Degradations[0].Error(), "VaR 3.85% exceeds intermediate limit 3.50%")
	for _, c := range core.AssetClasses {
		assert.InDelta(t, p.BaseWeights[c], got.Mega[c], 1e-12, string(c))
	}
	require.NotNil(t, got.Check)
	assert.True(t, got.Check.Passed)
	assert.InDelta(t, 0.0315, got.Check.VaR, 1e-9)
}

func TestAllocate_EstimatorErrorIsViolation(t *testing.T) {
	a := newAllocator(t, nil)
	got, err := a.Allocate(getProfile(t, profile.Aggressive), classification(core.RegimeBull, 0.9),
		Inputs{Risk: fixedEstimator{err: errors.New("no proxies")}}, RuleBased())
	require.NoError(t, err)
	require.Len(t, got.Degradations, 1)
	assert.True(t, errors.Is(got.Degradations[0], core.ErrProfileViolation))
}

func TestAllocate_SectorCap(t *testing.T) {
	a := newAllocator(t, nil)
	scores := map[string]float64{"energy": 10, "technology": 0, "ia": 0, "agriculture": 0}

	got, err := a.Allocate(getProfile(t, profile.Intermediate), classification(core.RegimeSideways, 0),
		Inputs{SectorScores: scores}, RuleBased())
	require.NoError(t, err)

	assert.InDelta(t, 0.35, got.Meso["energy"], 1e-9)
	var sum float64
	for _, w := range got.Meso {
		assert.LessOrEqual(t, w, 0.35+1e-9)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestAllocate_UnstableCapFallsBack(t *testing.T) {
	a := newAllocator(t, func(c *Config) { c.SectorCap = 0.20 })

	got, err := a.Allocate(getProfile(t, profile.Intermediate), classification(core.RegimeSideways, 0),
		Inputs{SectorScores: map[string]float64{"energy": 1}}, RuleBased())
	require.NoError(t, err)

	require.True(t, got.Degraded())
	assert.True(t, errors.Is(got.Degradations[0], core.ErrAllocationUnstable))
	assert.Contains(t, got.Degradations[0].Error(), "sector energy above cap 0.20")
	assert.InDelta(t, 1.0, got.Meso["energy"], 1e-9)
}

func TestAllocate_BearSectorTilts(t *testing.T) {
	a := newAllocator(t, nil)
	got, err := a.Allocate(getProfile(t, profile.Intermediate), classification(core.RegimeBear, 1), Inputs{}, RuleBased())
	require.NoError(t, err)

	assert.Greater(t, got.Meso["energy"], got.Meso["technology"])
	assert.Greater(t, got.Meso["agriculture"], got.Meso["ia"])
}

func TestAllocate_Micro(t *testing.T) {
	scores := map[string]float64{"PETR4.SA": 0.2, "PRIO3.SA": 0.1}

	a := newAllocator(t, nil)
	got, err := a.Allocate(getProfile(t, profile.Aggressive), classification(core.RegimeSideways, 0),
		Inputs{SecurityScores: scores}, RuleBased())
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3, got.Micro["energy"]["PETR4.SA"], 1e-9)
	assert.InDelta(t, 1.0/3, got.Micro["energy"]["PRIO3.SA"], 1e-9)
	assert.Equal(t, map[string]float64{"IMAB11.SA": 1}, got.Micro["fixed_income"])

	top1 := newAllocator(t, func(c *Config) { c.TopN = 1 })
	got, err = top1.Allocate(getProfile(t, profile.Aggressive), classification(core.RegimeSideways, 0),
		Inputs{SecurityScores: scores}, RuleBased())
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"PETR4.SA": 1}, got.Micro["energy"])

	floor := newAllocator(t, func(c *Config) { c.MinPositionWeight = 0.4 })
	got, err = floor.Allocate(getProfile(t, profile.Aggressive), classification(core.RegimeSideways, 0),
		Inputs{SecurityScores: scores}, RuleBased())
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"PETR4.SA": 1}, got.Micro["energy"])
}

func TestAllocate_MesoProportionalToScore(t *testing.T) {
	a := newAllocator(t, func(c *Config) { c.SectorCap = 1 })
	scores := map[string]float64{"energy": 0.5, "technology": 0.1, "ia": 0.1, "agriculture": 0.1}

	got, err := a.Allocate(getProfile(t, profile.Intermediate), classification(core.RegimeSideways, 0),
		Inputs{SectorScores: scores}, RuleBased())
	require.NoError(t, err)
	assert.InDelta(t, 0.625, got.Meso["energy"], 1e-9)
	assert.InDelta(t, 0.125, got.Meso["technology"], 1e-9)

	// negative scores are shifted by the minimum
	scores = map[string]float64{"energy": -0.2, "technology": 0.2, "ia": 0, "agriculture": 0}
	got, err = a.Allocate(getProfile(t, profile.Intermediate), classification(core.RegimeSideways, 0),
		Inputs{SectorScores: scores}, RuleBased())
	require.NoError(t, err)
	assert.InDelta(t, 0.0, got.Meso["energy"], 1e-9)
	assert.InDelta(t, 0.5, got.Meso["technology"], 1e-9)
	assert.InDelta(t, 0.25, got.Meso["ia"], 1e-9)
}

func TestAllocate_MicroFloorDropsWeakScore(t *testing.T) {
	a := newAllocator(t, nil)
	scores := map[string]float64{"PETR4.SA": 0.50, "PRIO3.SA": 0.01}

	got, err := a.Allocate(getProfile(t, profile.Aggressive), classification(core.RegimeSideways, 0),
		Inputs{SecurityScores: scores}, RuleBased())
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"PETR4.SA": 1}, got.Micro["energy"])

	// above the floor both stay, proportional to score
	scores["PRIO3.SA"] = 0.05
	got, err = a.Allocate(getProfile(t, profile.Aggressive), classification(core.RegimeSideways, 0),
		Inputs{SecurityScores: scores}, RuleBased())
	require.NoError(t, err)
	assert.InDelta(t, 0.5/0.55, got.Micro["energy"]["PETR4.SA"], 1e-9)
	assert.InDelta(t, 0.05/0.55, got.Micro["energy"]["PRIO3.SA"], 1e-9)
}

func TestAllocation_Positions(t *testing.T) {
	a := newAllocator(t, nil)
	p := getProfile(t, profile.Intermediate)
	got, err := a.Allocate(p, classification(core.RegimeBull, 0.6),
		Inputs{SectorScores: map[string]float64{"technology": 0.3}}, RuleBased())
	require.NoError(t, err)

	pos := got.Positions()
	perClass := make(map[core.AssetClass]float64)
	var total float64
	for ticker, w := range pos {
		sec, ok := a.Universe().Lookup(ticker)
		require.True(t, ok, ticker)
		perClass[sec.Class] += w
		total += w
		if sec.Class.IsEquity() {
			assert.LessOrEqual(t, w, p.MaxSinglePosition+1e-9, ticker)
		}
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	for _, c := range core.AssetClasses {
		assert.InDelta(t, got.Mega[c], perClass[c], 1e-9, string(c))
	}
}

func TestAllocation_PositionsCapStocks(t *testing.T) {
	alloc := &Allocation{
		Mega: core.MegaWeights{core.ClassFixedIncome: 0.4, core.ClassDomesticStocks: 0.6},
		Meso: map[string]float64{"energy": 0.5, "technology": 0.5},
		Micro: map[string]map[string]float64{
			"fixed_income": {"IMAB11.SA": 1},
			"energy":       {"PETR4.SA": 0.9, "PRIO3.SA": 0.1},
			"technology":   {"WEGE3.SA": 1},
		},
		universe:    testUniverse(t),
		maxPosition: 0.25,
	}

	pos := alloc.Positions()
	assert.InDelta(t, 0.4, pos["IMAB11.SA"], 1e-9)
	assert.InDelta(t, 0.25, pos["PETR4.SA"], 1e-9)
	assert.InDelta(t, 0.25, pos["WEGE3.SA"], 1e-9)
	assert.InDelta(t, 0.10, pos["PRIO3.SA"], 1e-9)
	assert.NotContains(t, pos, "domestic_stocks")

	// stocks that cannot absorb the excess leave it with the class
	alloc.maxPosition = 0.1
	pos = alloc.Positions()
	for _, ticker := range []string{"PETR4.SA", "PRIO3.SA", "WEGE3.SA"} {
		assert.InDelta(t, 0.1, pos[ticker], 1e-9, ticker)
	}
	assert.InDelta(t, 0.3, pos["domestic_stocks"], 1e-9)
	assert.InDelta(t, 0.4, pos["IMAB11.SA"], 1e-9)
}

func TestAllocate_RLAssisted(t *testing.T) {
	a := newAllocator(t, nil)
	advisor := fakeAdvisor{advice: Advice{
		Action: "growth",
		Mega: core.MegaWeights{
			core.ClassFixedIncome:     0.2,
			core.ClassRealEstateFunds: 0.2,
			core.ClassDomesticStocks:  0.4,
			core.ClassForeignStocks:   0.2,
		},
		Meso: map[string]float64{"energy": 1},
	}}

	got, err := a.Allocate(getProfile(t, profile.Conservative), classification(core.RegimeBull, 0.5),
		Inputs{}, RLAssisted(advisor, []float64{1, 2}))
	require.NoError(t, err)

	assert.Equal(t, StrategyRLAssisted, got.Strategy)
	assert.Equal(t, "growth", got.Action)
	assert.InDelta(t, 0.5, got.Mega[core.ClassFixedIncome], 1e-9)
	assert.InDelta(t, 0.2, got.Mega[core.ClassDomesticStocks], 1e-9)
	assert.InDelta(t, 0.35, got.Meso["energy"], 1e-9)
}

func TestAllocate_RLAdvisorFailureFallsBack(t *testing.T) {
	a := newAllocator(t, nil)
	advisor := fakeAdvisor{err: core.ErrPolicyUnavailable}

	got, err := a.Allocate(getProfile(t, profile.Conservative), classification(core.RegimeBear, 0.7),
		Inputs{}, RLAssisted(advisor, nil))
	require.NoError(t, err)

	assert.Equal(t, StrategyRuleBased, got.Strategy)
	assert.Contains(t, got.Tilts[0], "policy unavailable")
	assert.InDelta(t, 0.705, got.Mega[core.ClassFixedIncome], 1e-9)
	assert.False(t, got.Degraded())
}

func TestAllocate_InvalidProfile(t *testing.T) {
	a := newAllocator(t, nil)
	_, err := a.Allocate(core.RiskProfile{Name: "x"}, classification(core.RegimeBull, 1), Inputs{}, RuleBased())
	assert.True(t, errors.Is(err, core.ErrInvalidProfile))
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.SectorTilts["boom"] = map[string]float64{"energy": 0.1}
	assert.True(t, errors.Is(cfg.Validate(), core.ErrConfigInvalid))
}
