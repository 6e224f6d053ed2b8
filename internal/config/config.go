package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"revenue-action-center/internal/logging"
)

// EnvPrefix namespaces environment overrides, e.g. ACTIONCENTER_ANALYSIS_WINDOW_DAYS.
const EnvPrefix = "ACTIONCENTER"

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Dataset    DatasetConfig    `mapstructure:"dataset"`
	Analysis   AnalysisConfig   `mapstructure:"analysis"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Clean      CleanConfig      `mapstructure:"clean"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatasetConfig describes the performance feed and how to read it.
type DatasetConfig struct {
	// Input is a CSV/XLSX path, "-" for CSV on stdin, or empty to use database.query.
	Input       string              `mapstructure:"input"`
	Sheet       string              `mapstructure:"sheet"`
	Dimensions  []string            `mapstructure:"dimensions"`
	DateLayouts []string            `mapstructure:"date_layouts"`
	MaxRows     int                 `mapstructure:"max_rows"`
	MaxBytes    int64               `mapstructure:"max_bytes"`
	Synonyms    map[string][]string `mapstructure:"synonyms"`
}

// AnalysisConfig parameterises the engine.
type AnalysisConfig struct {
	WindowDays  int     `mapstructure:"window_days"`
	SpikeK      float64 `mapstructure:"spike_k"`
	SpikeMetric string  `mapstructure:"spike_metric"`
	TrendMetric string  `mapstructure:"trend_metric"`
	TopK        int     `mapstructure:"top_k"`
}

// ThresholdsConfig holds rule thresholds in percentage points and dollars.
type ThresholdsConfig struct {
	IVT                    float64 `mapstructure:"ivt"`
	IVTCritical            float64 `mapstructure:"ivt_critical"`
	Margin                 float64 `mapstructure:"margin"`
	MarginCritical         float64 `mapstructure:"margin_critical"`
	CostPerBillionRequests float64 `mapstructure:"cost_per_billion_requests"`
	DiscrepancyPct         float64 `mapstructure:"discrepancy_pct"`
	RPMFloor               float64 `mapstructure:"rpm_floor"`
	MinRequests            float64 `mapstructure:"min_requests"`
	DropMinRevenue         float64 `mapstructure:"drop_min_revenue"`
	DropPct                float64 `mapstructure:"drop_pct"`
}

// CleanConfig drives the clean command.
type CleanConfig struct {
	MinRPM     float64 `mapstructure:"min_rpm"`
	MinRevenue float64 `mapstructure:"min_revenue"`
	SortBy     string  `mapstructure:"sort_by"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for SQL feeds.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Query           string        `mapstructure:"query"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

// SchedulerConfig governs the watch cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// AlertingConfig defines digest routing.
type AlertingConfig struct {
	Enabled        bool           `mapstructure:"enabled"`
	OnlyActionable bool           `mapstructure:"only_actionable"`
	MaxLines       int            `mapstructure:"max_lines"`
	Telegram       TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "actioncenter")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("dataset.dimensions", []string{"package"})
	v.SetDefault("dataset.max_rows", 1_000_000)
	v.SetDefault("dataset.max_bytes", 256<<20)

	v.SetDefault("analysis.window_days", 3)
	v.SetDefault("analysis.spike_k", 2.0)
	v.SetDefault("analysis.spike_metric", "ivt_rate")
	v.SetDefault("analysis.trend_metric", "gross_revenue")
	v.SetDefault("analysis.top_k", 10)

	v.SetDefault("thresholds.ivt", 10.0)
	v.SetDefault("thresholds.ivt_critical", 10.0)
	v.SetDefault("thresholds.margin", 20.0)
	v.SetDefault("thresholds.margin_critical", 20.0)
	v.SetDefault("thresholds.cost_per_billion_requests", 200.0)
	v.SetDefault("thresholds.discrepancy_pct", 30.0)
	v.SetDefault("thresholds.rpm_floor", 0.05)
	v.SetDefault("thresholds.min_requests", 10_000_000.0)
	v.SetDefault("thresholds.drop_min_revenue", 50.0)
	v.SetDefault("thresholds.drop_pct", 20.0)

	v.SetDefault("clean.min_rpm", 0.0)
	v.SetDefault("clean.min_revenue", 0.0)
	v.SetDefault("clean.sort_by", "campaign_id")

	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.query_timeout", "60s")

	v.SetDefault("scheduler.interval", "1h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x52414331))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.only_actionable", true)
	v.SetDefault("alerting.max_lines", 10)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if len(c.Dataset.Dimensions) == 0 {
		return fmt.Errorf("dataset.dimensions must list at least one field")
	}
	if c.Dataset.MaxRows <= 0 {
		return fmt.Errorf("dataset.max_rows must be greater than zero")
	}
	if c.Dataset.MaxBytes <= 0 {
		return fmt.Errorf("dataset.max_bytes must be greater than zero")
	}
	if c.Analysis.WindowDays <= 0 {
		return fmt.Errorf("analysis.window_days must be greater than zero")
	}
	if c.Analysis.TopK <= 0 {
		return fmt.Errorf("analysis.top_k must be greater than zero")
	}
	if c.Analysis.SpikeK < 0 {
		return fmt.Errorf("analysis.spike_k cannot be negative")
	}
	for name, v := range map[string]float64{
		"thresholds.ivt":                       c.Thresholds.IVT,
		"thresholds.ivt_critical":              c.Thresholds.IVTCritical,
		"thresholds.margin":                    c.Thresholds.Margin,
		"thresholds.margin_critical":           c.Thresholds.MarginCritical,
		"thresholds.cost_per_billion_requests": c.Thresholds.CostPerBillionRequests,
		"thresholds.discrepancy_pct":           c.Thresholds.DiscrepancyPct,
		"thresholds.rpm_floor":                 c.Thresholds.RPMFloor,
		"thresholds.min_requests":              c.Thresholds.MinRequests,
		"thresholds.drop_min_revenue":          c.Thresholds.DropMinRevenue,
		"thresholds.drop_pct":                  c.Thresholds.DropPct,
	} {
		if v < 0 {
			return fmt.Errorf("%s cannot be negative", name)
		}
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be set when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be set when telegram is enabled")
		}
	}
	return nil
}

// ResolveTopK returns either the CLI override or config default.
func (c *Config) ResolveTopK(override int) int {
	if override > 0 {
		return override
	}
	return c.Analysis.TopK
}
