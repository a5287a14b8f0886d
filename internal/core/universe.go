package core

import (
	"fmt"
	"sort"
)

// Security is one investable ticker of the universe
type Security struct {
	Ticker string     `mapstructure:"ticker" json:"ticker"`
	Class  AssetClass `mapstructure:"class" json:"class"`
	Sector string     `mapstructure:"sector" json:"sector,omitempty"`
}

// Bucket returns the micro-layer bucket of a security: its sector for
// equities, its class name otherwise.
func (s Security) Bucket() string {
	if s.Class.IsEquity() {
		return s.Sector
	}
	return string(s.Class)
}

// Universe is the validated set of investable securities
type Universe struct {
	securities []Security
	byTicker   map[string]Security
}

// NewUniverse validates securities and builds a universe sorted by ticker.
func NewUniverse(securities []Security) (*Universe, error) {
	u := &Universe{byTicker: make(map[string]Security, len(securities))}
	known := make(map[AssetClass]bool, len(AssetClasses))
	for _, c := range AssetClasses {
		known[c] = true
	}
	for _, s := range securities {
		switch {
		case s.Ticker == "":
			return nil, fmt.Errorf("universe: security with empty ticker")
		case !known[s.Class]:
			return nil, fmt.Errorf("universe: %s has unknown class %q", s.Ticker, s.Class)
		case s.Class.IsEquity() && s.Sector == "":
			return nil, fmt.Errorf("universe: equity %s needs a sector", s.Ticker)
		case s.Class.IsEquity() && known[AssetClass(s.Sector)]:
			return nil, fmt.Errorf("universe: sector %q of %s collides with a class name", s.Sector, s.Ticker)
		}
		if _, dup := u.byTicker[s.Ticker]; dup {
			return nil, fmt.Errorf("universe: duplicate ticker %s", s.Ticker)
		}
		if !s.Class.IsEquity() {
			s.Sector = ""
		}
		u.byTicker[s.Ticker] = s
		u.securities = append(u.securities, s)
	}
	sort.Slice(u.securities, func(i, j int) bool { return u.securities[i].Ticker < u.securities[j].Ticker })
	return u, nil
}

// Securities returns all securities sorted by ticker
func (u *Universe) Securities() []Security {
	return append([]Security(nil), u.securities...)
}

// Tickers returns all tickers, sorted
func (u *Universe) Tickers() []string {
	out := make([]string, len(u.securities))
	for i, s := range u.securities {
		out[i] = s.Ticker
	}
	return out
}

// Lookup finds a security by ticker
func (u *Universe) Lookup(ticker string) (Security, bool) {
	s, ok := u.byTicker[ticker]
	return s, ok
}

// Sectors returns the equity sectors present, sorted
func (u *Universe) Sectors() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range u.securities {
		if s.Class.IsEquity() && !seen[s.Sector] {
			seen[s.Sector] = true
			out = append(out, s.Sector)
		}
	}
	sort.Strings(out)
	return out
}

// InBucket returns the securities of a micro-layer bucket, sorted by ticker
func (u *Universe) InBucket(bucket string) []Security {
	var out []Security
	for _, s := range u.securities {
		if s.Bucket() == bucket {
			out = append(out, s)
		}
	}
	return out
}

// Buckets returns the non-equity class buckets followed by equity sectors
func (u *Universe) Buckets() []string {
	var out []string
	for _, c := range AssetClasses {
		if !c.IsEquity() && len(u.InBucket(string(c))) > 0 {
			out = append(out, string(c))
		}
	}
	return append(out, u.Sectors()...)
}
