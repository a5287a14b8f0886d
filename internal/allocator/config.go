package allocator

import (
	"github.com/newthinker/aporte/internal/core"
)

// Config holds tilt sizes, concentration caps and position limits
type Config struct {
	MaxTilt           float64                       `mapstructure:"max_tilt"`
	SectorCap         float64                       `mapstructure:"sector_cap"`
	MaxIterations     int                           `mapstructure:"max_iterations"`
	TopN              int                           `mapstructure:"top_n"`
	MinPositionWeight float64                       `mapstructure:"min_position_weight"`
	SectorTilts       map[string]map[string]float64 `mapstructure:"sector_tilts"`
}

// DefaultConfig returns the default allocator parameters. Sector tilts
// favor growth sectors in bull markets and defensive ones otherwise.
func DefaultConfig() Config {
	return Config{
		MaxTilt:           0.15,
		SectorCap:         0.35,
		MaxIterations:     50,
		TopN:              3,
		MinPositionWeight: 0.05,
		SectorTilts: map[string]map[string]float64{
			string(core.RegimeBull): {
				"technology":  0.30,
				"ia":          0.40,
				"energy":      -0.10,
				"real_estate": -0.10,
			},
			string(core.RegimeBear): {
				"energy":      0.20,
				"real_estate": 0.20,
				"agriculture": 0.10,
				"technology":  -0.20,
				"ia":          -0.30,
			},
			string(core.RegimeTransition): {
				"energy":      0.10,
				"real_estate": 0.10,
				"technology":  -0.10,
				"ia":          -0.15,
			},
		},
	}
}

// Validate checks parameter ranges
func (c Config) Validate() error {
	switch {
	case c.MaxTilt < 0 || c.MaxTilt > 1:
		return core.Errorf(core.ErrConfigInvalid, "allocator: max tilt %.3f outside [0, 1]", c.MaxTilt)
	case c.SectorCap <= 0 || c.SectorCap > 1:
		return core.Errorf(core.ErrConfigInvalid, "allocator: sector cap %.3f outside (0, 1]", c.SectorCap)
	case c.MaxIterations <= 0:
		return core.Errorf(core.ErrConfigInvalid, "allocator: max iterations must be positive")
	case c.TopN <= 0:
		return core.Errorf(core.ErrConfigInvalid, "allocator: top_n must be positive")
	case c.MinPositionWeight < 0 || c.MinPositionWeight >= 1:
		return core.Errorf(core.ErrConfigInvalid, "allocator: min position weight %.3f outside [0, 1)", c.MinPositionWeight)
	}
	for regime, tilts := range c.SectorTilts {
		if core.Regime(regime).Index() < 0 {
			return core.Errorf(core.ErrConfigInvalid, "allocator: sector tilts for unknown regime %q", regime)
		}
		for sector, t := range tilts {
			if t < -1 {
				return core.Errorf(core.ErrConfigInvalid, "allocator: %s tilt for %s below -1", regime, sector)
			}
		}
	}
	return nil
}
