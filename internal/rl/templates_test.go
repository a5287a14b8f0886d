package rl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/aporte/internal/core"
	"github.com/newthinker/aporte/internal/profile"
)

func testUniverse(t *testing.T) *core.Universe {
	t.Helper()
	u, err := core.NewUniverse([]core.Security{
		{Ticker: "IMAB11", Class: core.ClassFixedIncome},
		{Ticker: "KNRI11", Class: core.ClassRealEstateFunds},
		{Ticker: "PETR4", Class: core.ClassDomesticStocks, Sector: "energy"},
		{Ticker: "WEGE3", Class: core.ClassDomesticStocks, Sector: "technology"},
		{Ticker: "IVVB11", Class: core.ClassForeignStocks, Sector: "technology"},
	})
	require.NoError(t, err)
	return u
}

func TestDefaultTemplates(t *testing.T) {
	profiles := profile.Builtins()
	templates := DefaultTemplates(profiles, []string{"technology", "energy"}, TemplateOptions{})

	require.Len(t, templates, len(profiles)*3)
	first := templates[0]
	assert.Equal(t, profiles[0].Name+"/base_balanced", first.Name)
	assert.InDelta(t, 0.5, first.Meso["energy"], 1e-12)

	tilt := templates[1]
	assert.Equal(t, profiles[0].Name+"/base_tilt_energy", tilt.Name)
	assert.InDelta(t, 2.0/3, tilt.Meso["energy"], 1e-12)
	assert.InDelta(t, 1.0/3, tilt.Meso["technology"], 1e-12)

	for _, tpl := range templates {
		assert.InDelta(t, 1.0, tpl.Mega.Sum(), 1e-9, tpl.Name)
	}
}

func TestDefaultTemplates_MegaVariants(t *testing.T) {
	reg := profile.Default()
	p, err := reg.Get(profile.Intermediate)
	require.NoError(t, err)
	conservative, err := reg.MostConservative()
	require.NoError(t, err)

	templates := DefaultTemplates([]core.RiskProfile{p}, []string{"energy", "technology", "ia"},
		TemplateOptions{Tilt: 0.15, Conservative: conservative.BaseWeights})
	require.Len(t, templates, 4*4)

	byName := make(map[string]Template, len(templates))
	fixedIncome := make(map[float64]bool)
	for _, tpl := range templates {
		byName[tpl.Name] = tpl
		fixedIncome[tpl.Mega[core.ClassFixedIncome]] = true
		assert.InDelta(t, 1.0, tpl.Mega.Sum(), 1e-9, tpl.Name)
		assert.GreaterOrEqual(t, tpl.Mega[core.ClassFixedIncome], p.FixedIncomeFloor-1e-9, tpl.Name)
	}
	assert.Len(t, fixedIncome, 4)

	// growth stops at the fixed income floor
	growth := byName["intermediate/growth_balanced"].Mega
	assert.InDelta(t, 0.25, growth[core.ClassFixedIncome], 1e-9)
	assert.InDelta(t, 0.30+0.10*0.30/0.45, growth[core.ClassDomesticStocks], 1e-9)

	defensive := byName["intermediate/defensive_tilt_ia"].Mega
	assert.InDelta(t, 0.50, defensive[core.ClassFixedIncome], 1e-9)
	assert.InDelta(t, 0.20, defensive[core.ClassDomesticStocks], 1e-9)
	assert.InDelta(t, 0.10, defensive[core.ClassForeignStocks], 1e-9)

	cautious := byName["intermediate/cautious_balanced"].Mega
	assert.InDelta(t, 0.475, cautious[core.ClassFixedIncome], 1e-9)
	assert.InDelta(t, 0.20, cautious[core.ClassRealEstateFunds], 1e-9)
}

func TestDefaultTemplates_ConservativeSkipsSelfBlend(t *testing.T) {
	conservative := profile.Builtins()[0]
	templates := DefaultTemplates([]core.RiskProfile{conservative}, []string{"energy"},
		TemplateOptions{Tilt: 0.15, Conservative: conservative.BaseWeights})

	names := make([]string, len(templates))
	for i, tpl := range templates {
		names[i] = tpl.Name
	}
	assert.Equal(t, []string{"conservative/base_balanced", "conservative/growth_balanced", "conservative/defensive_balanced"}, names)
	assert.InDelta(t, 0.50, templates[1].Mega[core.ClassFixedIncome], 1e-9)
}

func TestDefaultTemplates_SingleSector(t *testing.T) {
	templates := DefaultTemplates(profile.Builtins()[:1], []string{"energy"}, TemplateOptions{})
	require.Len(t, templates, 1)
	assert.Equal(t, 1.0, templates[0].Meso["energy"])
}

func TestActionMapper_Map(t *testing.T) {
	mapper := NewActionMapper(testUniverse(t), []string{"IMAB11", "KNRI11", "PETR4", "WEGE3", "IVVB11"})
	tpl := Template{
		Name: "test",
		Mega: core.MegaWeights{
			core.ClassFixedIncome:     0.4,
			core.ClassRealEstateFunds: 0.1,
			core.ClassDomesticStocks:  0.3,
			core.ClassForeignStocks:   0.2,
		},
		Meso: map[string]float64{"energy": 0.25, "technology": 0.75},
	}

	w := mapper.Map(tpl)

	assert.InDelta(t, 0.4, w["IMAB11"], 1e-12)
	assert.InDelta(t, 0.1, w["KNRI11"], 1e-12)
	assert.InDelta(t, 0.075, w["PETR4"], 1e-12)
	assert.InDelta(t, 0.225, w["WEGE3"], 1e-12)
	// foreign stocks only hold technology
	assert.InDelta(t, 0.2, w["IVVB11"], 1e-12)

	var sum float64
	for _, v := range w {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
}

func TestActionMapper_UnpricedClassStaysInCash(t *testing.T) {
	mapper := NewActionMapper(testUniverse(t), []string{"IMAB11", "PETR4"})
	tpl := Template{
		Mega: core.MegaWeights{core.ClassFixedIncome: 0.5, core.ClassRealEstateFunds: 0.5},
	}

	w := mapper.Map(tpl)
	assert.Equal(t, map[string]float64{"IMAB11": 0.5}, w)
}
