package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/newthinker/aporte/internal/allocator"
	"github.com/newthinker/aporte/internal/backtest"
	"github.com/newthinker/aporte/internal/core"
	"github.com/newthinker/aporte/internal/orchestrator"
	"github.com/newthinker/aporte/internal/profile"
	"github.com/newthinker/aporte/internal/provider"
	"github.com/newthinker/aporte/internal/regime"
	"github.com/newthinker/aporte/internal/risk"
	"github.com/newthinker/aporte/internal/rl"
	"github.com/newthinker/aporte/internal/storage/archive"
)

type Config struct {
	Log          LogConfig           `mapstructure:"log"`
	Regime       regime.Config       `mapstructure:"regime"`
	Allocator    allocator.Config    `mapstructure:"allocator"`
	Risk         risk.Config         `mapstructure:"risk"`
	Backtest     BacktestConfig      `mapstructure:"backtest"`
	RL           RLConfig            `mapstructure:"rl"`
	Universe     []core.Security     `mapstructure:"universe"`
	Providers    ProvidersConfig     `mapstructure:"providers"`
	Storage      StorageConfig       `mapstructure:"storage"`
	Metrics      MetricsConfig       `mapstructure:"metrics"`
	Orchestrator orchestrator.Config `mapstructure:"orchestrator"`
	Ledger       LedgerConfig        `mapstructure:"ledger"`
	Profiles     []ProfileConfig     `mapstructure:"profiles"`
}

type LogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// BacktestConfig holds the simulation parameters and the default episode
// range. Dates use the YYYY-MM-DD layout.
type BacktestConfig struct {
	backtest.Config `mapstructure:",squash"`
	InitialCapital  float64 `mapstructure:"initial_capital"`
	Start           string  `mapstructure:"start"`
	End             string  `mapstructure:"end"`
}

// Range parses the configured episode range
func (c BacktestConfig) Range() (start, end time.Time, err error) {
	if start, err = time.Parse(time.DateOnly, c.Start); err != nil {
		return start, end, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("backtest start: %w", err))
	}
	if end, err = time.Parse(time.DateOnly, c.End); err != nil {
		return start, end, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("backtest end: %w", err))
	}
	if !end.After(start) {
		return start, end, core.Errorf(core.ErrInvalidRange, "backtest end %s is not after start %s", c.End, c.Start)
	}
	return start, end, nil
}

// RLConfig holds the learner hyperparameters and where trained policies live
type RLConfig struct {
	rl.Config      `mapstructure:",squash"`
	Episodes       int    `mapstructure:"episodes"`
	CheckpointPath string `mapstructure:"checkpoint_path"` // %s is replaced by the profile name
}

// Checkpoint returns the storage key of a profile's policy
func (c RLConfig) Checkpoint(profileName string) string {
	return strings.ReplaceAll(c.CheckpointPath, "%s", profileName)
}

type ProvidersConfig struct {
	provider.Config `mapstructure:",squash"`
	Yahoo           EndpointConfig `mapstructure:"yahoo"`
	BCB             EndpointConfig `mapstructure:"bcb"`
	FRED            EndpointConfig `mapstructure:"fred"`
}

type EndpointConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
}

type StorageConfig struct {
	Type string           `mapstructure:"type"` // "localfs" or "s3"
	Path string           `mapstructure:"path"` // For localfs
	S3   archive.S3Config `mapstructure:"s3"`   // For S3
}

type LedgerConfig struct {
	Type    string `mapstructure:"type"` // "memory" or "archive"
	MaxSize int    `mapstructure:"max_size"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// ProfileConfig overrides or adds a risk profile
type ProfileConfig struct {
	Name               string             `mapstructure:"name"`
	RiskLevel          int                `mapstructure:"risk_level"`
	BaseWeights        map[string]float64 `mapstructure:"base_weights"`
	FixedIncomeFloor   float64            `mapstructure:"fixed_income_floor"`
	MaxDrawdown        float64            `mapstructure:"max_drawdown"`
	MaxDailyVaR        float64            `mapstructure:"max_daily_var"`
	RiskAversion       float64            `mapstructure:"risk_aversion"`
	MaxSinglePosition  float64            `mapstructure:"max_single_position"`
	RebalanceThreshold float64            `mapstructure:"rebalance_threshold"`
	RewardMetric       string             `mapstructure:"reward_metric"`
}

// ToRiskProfile converts the config entry
func (p ProfileConfig) ToRiskProfile() core.RiskProfile {
	weights := make(core.MegaWeights, len(p.BaseWeights))
	for class, w := range p.BaseWeights {
		weights[core.AssetClass(class)] = w
	}
	return core.RiskProfile{
		Name:               p.Name,
		RiskLevel:          p.RiskLevel,
		BaseWeights:        weights,
		FixedIncomeFloor:   p.FixedIncomeFloor,
		MaxDrawdown:        p.MaxDrawdown,
		MaxDailyVaR:        p.MaxDailyVaR,
		RiskAversion:       p.RiskAversion,
		MaxSinglePosition:  p.MaxSinglePosition,
		RebalanceThreshold: p.RebalanceThreshold,
		RewardMetric:       core.RewardMetric(strings.ToLower(p.RewardMetric)),
	}
}

// Load reads configuration from file over Defaults
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	// Lists in the file replace the defaults instead of merging into them
	if v.IsSet("universe") {
		cfg.Universe = nil
	}
	if v.IsSet("profiles") {
		cfg.Profiles = nil
	}
	if v.IsSet("backtest.indicators") {
		cfg.Backtest.Indicators = nil
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a complete working config
func Defaults() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Regime:    regime.DefaultConfig(),
		Allocator: allocator.DefaultConfig(),
		Risk:      risk.DefaultConfig(),
		Backtest: BacktestConfig{
			Config:         backtest.DefaultConfig(),
			InitialCapital: 100000,
			Start:          "2019-01-02",
			End:            "2023-12-29",
		},
		RL: RLConfig{
			Config:         rl.DefaultConfig(),
			Episodes:       50,
			CheckpointPath: "policies/%s.json",
		},
		Universe: DefaultUniverse(),
		Providers: ProvidersConfig{
			Config: provider.DefaultConfig(),
			Yahoo:  EndpointConfig{Enabled: true},
			BCB:    EndpointConfig{Enabled: true},
			FRED:   EndpointConfig{Enabled: false},
		},
		Storage: StorageConfig{
			Type: "localfs",
			Path: "data",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  ":9090",
		},
		Orchestrator: orchestrator.DefaultConfig(),
		Ledger: LedgerConfig{
			Type:    "archive",
			MaxSize: 1000,
		},
	}
}

// DefaultUniverse is a small B3 universe covering every asset class
func DefaultUniverse() []core.Security {
	return []core.Security{
		{Ticker: "IMAB11.SA", Class: core.ClassFixedIncome},
		{Ticker: "B5P211.SA", Class: core.ClassFixedIncome},
		{Ticker: "KNRI11.SA", Class: core.ClassRealEstateFunds},
		{Ticker: "HGLG11.SA", Class: core.ClassRealEstateFunds},
		{Ticker: "MXRF11.SA", Class: core.ClassRealEstateFunds},
		{Ticker: "PETR4.SA", Class: core.ClassDomesticStocks, Sector: "energy"},
		{Ticker: "PRIO3.SA", Class: core.ClassDomesticStocks, Sector: "energy"},
		{Ticker: "ITUB4.SA", Class: core.ClassDomesticStocks, Sector: "financials"},
		{Ticker: "BBAS3.SA", Class: core.ClassDomesticStocks, Sector: "financials"},
		{Ticker: "WEGE3.SA", Class: core.ClassDomesticStocks, Sector: "industrials"},
		{Ticker: "SLCE3.SA", Class: core.ClassDomesticStocks, Sector: "agriculture"},
		{Ticker: "IVVB11.SA", Class: core.ClassForeignStocks, Sector: "broad_market"},
		{Ticker: "NASD11.SA", Class: core.ClassForeignStocks, Sector: "technology"},
	}
}

// ProfileRegistry returns the built-in profiles with the configured ones
// added or replacing them by name.
func (c *Config) ProfileRegistry() (*profile.Registry, error) {
	reg, err := profile.NewRegistry(profile.Builtins()...)
	if err != nil {
		return nil, err
	}
	for _, p := range c.Profiles {
		if err := reg.Register(p.ToRiskProfile()); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validators := []func() error{
		c.Regime.Validate,
		c.Allocator.Validate,
		c.Backtest.Config.Validate,
		c.RL.Config.Validate,
		c.Providers.Config.Validate,
		c.Orchestrator.Validate,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}

	if c.Risk.Confidence <= 0 || c.Risk.Confidence >= 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("risk confidence must be between 0 and 1, got %f", c.Risk.Confidence))
	}
	if c.Risk.PeriodsPerYear <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("risk periods_per_year must be positive, got %f", c.Risk.PeriodsPerYear))
	}
	if c.Risk.StressShock < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("risk stress_shock cannot be negative, got %f", c.Risk.StressShock))
	}
	if c.Backtest.InitialCapital <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("backtest initial_capital must be positive, got %f", c.Backtest.InitialCapital))
	}
	if c.RL.Episodes < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("rl episodes must be positive, got %d", c.RL.Episodes))
	}
	if c.RL.CheckpointPath == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("rl checkpoint_path is required"))
	}

	if len(c.Universe) == 0 {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("universe is empty"))
	}
	if _, err := core.NewUniverse(c.Universe); err != nil {
		return core.WrapError(core.ErrConfigInvalid, err)
	}
	if _, err := c.ProfileRegistry(); err != nil {
		return core.WrapError(core.ErrConfigInvalid, err)
	}

	switch c.Storage.Type {
	case "localfs":
		if c.Storage.Path == "" {
			return core.WrapError(core.ErrConfigMissing, fmt.Errorf("storage path required for localfs"))
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing, fmt.Errorf("storage s3 bucket required for s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("storage type must be localfs or s3, got %q", c.Storage.Type))
	}

	switch c.Ledger.Type {
	case "memory", "archive":
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("ledger type must be memory or archive, got %q", c.Ledger.Type))
	}
	if c.Ledger.MaxSize < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("ledger max_size must be positive, got %d", c.Ledger.MaxSize))
	}

	if !c.Providers.Yahoo.Enabled {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("a price provider is required; enable providers.yahoo"))
	}
	if !c.Providers.BCB.Enabled && !c.Providers.FRED.Enabled {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("at least one indicator provider must be enabled"))
	}
	if c.Providers.FRED.Enabled && c.Providers.FRED.APIKey == "" {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("fred api_key required when fred is enabled"))
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown log level %q", c.Log.Level))
	}

	return nil
}
