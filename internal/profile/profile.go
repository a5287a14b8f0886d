package profile

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/newthinker/aporte/internal/core"
)

// Built-in profile names
const (
	Conservative = "conservative"
	Intermediate = "intermediate"
	Aggressive   = "aggressive"
)

// Builtins returns the default profiles, most conservative first.
func Builtins() []core.RiskProfile {
	return []core.RiskProfile{
		{
			Name:      Conservative,
			RiskLevel: 1,
			BaseWeights: core.MegaWeights{
				core.ClassFixedIncome:     0.60,
				core.ClassRealEstateFunds: 0.20,
				core.ClassDomesticStocks:  0.10,
				core.ClassForeignStocks:   0.10,
			},
			FixedIncomeFloor:   0.50,
			MaxDrawdown:        0.15,
			MaxDailyVaR:        0.02,
			RiskAversion:       0.8,
			MaxSinglePosition:  0.10,
			RebalanceThreshold: 0.05,
			RewardMetric:       core.RewardSortino,
		},
		{
			Name:      Intermediate,
			RiskLevel: 2,
			BaseWeights: core.MegaWeights{
				core.ClassFixedIncome:     0.35,
				core.ClassRealEstateFunds: 0.20,
				core.ClassDomesticStocks:  0.30,
				core.ClassForeignStocks:   0.15,
			},
			FixedIncomeFloor:   0.25,
			MaxDrawdown:        0.25,
			MaxDailyVaR:        0.035,
			RiskAversion:       0.5,
			MaxSinglePosition:  0.15,
			RebalanceThreshold: 0.07,
			RewardMetric:       core.RewardSharpe,
		},
		{
			Name:      Aggressive,
			RiskLevel: 3,
			BaseWeights: core.MegaWeights{
				core.ClassFixedIncome:     0.15,
				core.ClassRealEstateFunds: 0.15,
				core.ClassDomesticStocks:  0.40,
				core.ClassForeignStocks:   0.30,
			},
			FixedIncomeFloor:   0.08,
			MaxDrawdown:        0.40,
			MaxDailyVaR:        0.05,
			RiskAversion:       0.2,
			MaxSinglePosition:  0.20,
			RebalanceThreshold: 0.10,
			RewardMetric:       core.RewardCalmar,
		},
	}
}

// Registry holds the named risk profiles available to the engine
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]core.RiskProfile
}

// NewRegistry creates a registry holding the given profiles.
func NewRegistry(profiles ...core.RiskProfile) (*Registry, error) {
	r := &Registry{profiles: make(map[string]core.RiskProfile)}
	for _, p := range profiles {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Default returns a registry with the built-in profiles
func Default() *Registry {
	r, err := NewRegistry(Builtins()...)
	if err != nil {
		panic(fmt.Sprintf("built-in profiles invalid: %v", err))
	}
	return r
}

// Register validates and adds or replaces a profile.
func (r *Registry) Register(p core.RiskProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.Name = strings.ToLower(p.Name)
	p.BaseWeights = p.BaseWeights.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.Name] = p
	return nil
}

// Get returns a profile by case-insensitive name
func (r *Registry) Get(name string) (core.RiskProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[strings.ToLower(name)]
	if !ok {
		return core.RiskProfile{}, core.Errorf(core.ErrProfileNotFound, "%q", name)
	}
	p.BaseWeights = p.BaseWeights.Clone()
	return p, nil
}

// Names returns registered profile names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MostConservative returns the profile with the lowest risk level.
// Ties resolve to the larger fixed income base weight, then name.
func (r *Registry) MostConservative() (core.RiskProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best core.RiskProfile
	found := false
	for _, p := range r.profiles {
		if !found || less(p, best) {
			best = p
			found = true
		}
	}
	if !found {
		return core.RiskProfile{}, core.Errorf(core.ErrProfileNotFound, "registry is empty")
	}
	best.BaseWeights = best.BaseWeights.Clone()
	return best, nil
}

func less(a, b core.RiskProfile) bool {
	if a.RiskLevel != b.RiskLevel {
		return a.RiskLevel < b.RiskLevel
	}
	fa, fb := a.BaseWeights[core.ClassFixedIncome], b.BaseWeights[core.ClassFixedIncome]
	if fa != fb {
		return fa > fb
	}
	return a.Name < b.Name
}
