// Package config loads service configuration from defaults, an optional
// YAML file, ATH_* environment variables and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix: ATH_STORAGE_POSTGRES_DSN
// overrides storage.postgres_dsn.
const EnvPrefix = "ATH"

// Config is the full service configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Alert     AlertConfig     `mapstructure:"alert"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
}

// LogConfig configures zap and file rotation.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"` // empty logs to stdout only
	MaxSize    int    `mapstructure:"max_size"`  // MB
	MaxAge     int    `mapstructure:"max_age"`   // days
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	AuthToken    string        `mapstructure:"auth_token"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// StorageConfig selects and configures the stores.
type StorageConfig struct {
	UseMemory     bool   `mapstructure:"use_memory"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickHouseDSN string `mapstructure:"clickhouse_dsn"` // empty keeps audit history in Postgres
	MaxConns      int32  `mapstructure:"max_conns"`
}

// RedisConfig configures the lease backend. An empty URL uses the
// in-process locker.
type RedisConfig struct {
	URL       string        `mapstructure:"url"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	LeaseTTL  time.Duration `mapstructure:"lease_ttl"`
}

// ProviderConfig configures the market data clients.
type ProviderConfig struct {
	GeckoTerminalURL     string        `mapstructure:"geckoterminal_url"`
	DexScreenerURL       string        `mapstructure:"dexscreener_url"`
	Timeout              time.Duration `mapstructure:"timeout"`
	RequestsPerMinute    float64       `mapstructure:"requests_per_minute"`
	Burst                int           `mapstructure:"burst"`
	MinInterval          time.Duration `mapstructure:"min_interval"`
	PairsRequestsPerMin  float64       `mapstructure:"pairs_requests_per_minute"`
	BreakerFailures      uint32        `mapstructure:"breaker_failures"`
	BreakerOpenTimeout   time.Duration `mapstructure:"breaker_open_timeout"`
	BreakerHalfOpenCalls uint32        `mapstructure:"breaker_half_open_calls"`
}

// ScanConfig configures incremental scans and scheduling tiers.
type ScanConfig struct {
	Limit             int           `mapstructure:"limit"`
	BatchSize         int           `mapstructure:"batch_size"`
	MaxConcurrency    int           `mapstructure:"max_concurrency"`
	HighTierMinUsd    float64       `mapstructure:"high_tier_min_usd"`
	LowTierMinUsd     float64       `mapstructure:"low_tier_min_usd"`
	HighTierWeight    int           `mapstructure:"high_tier_weight"`
	LowTierWeight     int           `mapstructure:"low_tier_weight"`
	IncrementalBuffer time.Duration `mapstructure:"incremental_buffer"`
	AlertRoiPercent   float64       `mapstructure:"alert_roi_percent"`
	AlertStepRatio    float64       `mapstructure:"alert_step_ratio"`
}

// AuditConfig configures full audits.
type AuditConfig struct {
	Limit                  int     `mapstructure:"limit"`
	Tolerance              float64 `mapstructure:"tolerance"`
	AlertThreshold         float64 `mapstructure:"alert_threshold"`
	LowLiquidityThreshold  float64 `mapstructure:"low_liquidity_alert_threshold"`
	LowLiquidityCeilingUsd float64 `mapstructure:"low_liquidity_ceiling_usd"`
}

// LifecycleConfig configures liquidity gating.
type LifecycleConfig struct {
	Limit                     int           `mapstructure:"limit"`
	LiquidityThresholdUsd     float64       `mapstructure:"liquidity_threshold_usd"`
	RevivalInterval           time.Duration `mapstructure:"revival_interval"`
	UnresolvableProbeInterval time.Duration `mapstructure:"unresolvable_probe_interval"`
}

// AlertConfig configures alert sinks and the dispatcher.
type AlertConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	LogAlerts  bool   `mapstructure:"log_alerts"`
	Stream     bool   `mapstructure:"stream"`
	QueueSize  int    `mapstructure:"queue_size"`
	Workers    int    `mapstructure:"workers"`
}

// ScheduleConfig enables self-scheduled ticks in serve. Zero disables.
type ScheduleConfig struct {
	ScanInterval      time.Duration `mapstructure:"scan_interval"`
	AuditInterval     time.Duration `mapstructure:"audit_interval"`
	LiquidityInterval time.Duration `mapstructure:"liquidity_interval"`
}

// NewViper returns a viper instance with defaults and environment binding.
// Callers may bind flags to it before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration into a Config. If file is empty, config.local.yaml
// and then config.yaml are looked up in ./configs and the working directory;
// a missing file is not an error.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")

		v.SetConfigName("config.local")
		if err := v.ReadInConfig(); err != nil {
			v.SetConfigName("config")
			if err := v.ReadInConfig(); err != nil {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return nil, fmt.Errorf("read config: %w", err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file_path", "")
	v.SetDefault("log.max_size", 200)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.compress", false)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.auth_token", "")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Minute)

	v.SetDefault("storage.use_memory", false)
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.clickhouse_dsn", "")
	v.SetDefault("storage.max_conns", 10)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "")
	v.SetDefault("redis.lease_ttl", 5*time.Minute)

	v.SetDefault("provider.geckoterminal_url", "https://api.geckoterminal.com/api/v2")
	v.SetDefault("provider.dexscreener_url", "https://api.dexscreener.com")
	v.SetDefault("provider.timeout", 15*time.Second)
	v.SetDefault("provider.requests_per_minute", 30.0)
	v.SetDefault("provider.burst", 1)
	v.SetDefault("provider.min_interval", 2*time.Second)
	v.SetDefault("provider.pairs_requests_per_minute", 300.0)
	v.SetDefault("provider.breaker_failures", 5)
	v.SetDefault("provider.breaker_open_timeout", 30*time.Second)
	v.SetDefault("provider.breaker_half_open_calls", 1)

	v.SetDefault("scan.limit", 100)
	v.SetDefault("scan.batch_size", 25)
	v.SetDefault("scan.max_concurrency", 4)
	v.SetDefault("scan.high_tier_min_usd", 20000.0)
	v.SetDefault("scan.low_tier_min_usd", 1000.0)
	v.SetDefault("scan.high_tier_weight", 1)
	v.SetDefault("scan.low_tier_weight", 1)
	v.SetDefault("scan.incremental_buffer", 24*time.Hour)
	v.SetDefault("scan.alert_roi_percent", 250.0)
	v.SetDefault("scan.alert_step_ratio", 1.20)

	v.SetDefault("audit.limit", 50)
	v.SetDefault("audit.tolerance", 0.10)
	v.SetDefault("audit.alert_threshold", 0.25)
	v.SetDefault("audit.low_liquidity_alert_threshold", 0.50)
	v.SetDefault("audit.low_liquidity_ceiling_usd", 25000.0)

	v.SetDefault("lifecycle.limit", 300)
	v.SetDefault("lifecycle.liquidity_threshold_usd", 1000.0)
	v.SetDefault("lifecycle.revival_interval", 24*time.Hour)
	v.SetDefault("lifecycle.unresolvable_probe_interval", 7*24*time.Hour)

	v.SetDefault("alert.webhook_url", "")
	v.SetDefault("alert.log_alerts", true)
	v.SetDefault("alert.stream", true)
	v.SetDefault("alert.queue_size", 256)
	v.SetDefault("alert.workers", 2)

	v.SetDefault("schedule.scan_interval", 0)
	v.SetDefault("schedule.audit_interval", 0)
	v.SetDefault("schedule.liquidity_interval", 0)
}

// Validate reports configuration errors that must abort startup.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Storage.UseMemory || c.Storage.PostgresDSN != "",
		"storage.postgres_dsn is required unless storage.use_memory is set")
	check(c.Provider.GeckoTerminalURL != "", "provider.geckoterminal_url is required")
	check(c.Provider.DexScreenerURL != "", "provider.dexscreener_url is required")
	check(c.Provider.RequestsPerMinute > 0, "provider.requests_per_minute must be positive, got %v", c.Provider.RequestsPerMinute)
	check(c.Provider.MinInterval >= 0, "provider.min_interval must not be negative")

	check(c.Scan.Limit > 0, "scan.limit must be positive, got %d", c.Scan.Limit)
	check(c.Scan.BatchSize > 0, "scan.batch_size must be positive, got %d", c.Scan.BatchSize)
	check(c.Scan.MaxConcurrency > 0, "scan.max_concurrency must be positive, got %d", c.Scan.MaxConcurrency)
	check(c.Scan.LowTierMinUsd > 0 && c.Scan.HighTierMinUsd > c.Scan.LowTierMinUsd,
		"scan tiers must satisfy 0 < low_tier_min_usd < high_tier_min_usd, got %v and %v",
		c.Scan.LowTierMinUsd, c.Scan.HighTierMinUsd)
	check(c.Scan.HighTierWeight >= 0 && c.Scan.LowTierWeight >= 0 && c.Scan.HighTierWeight+c.Scan.LowTierWeight > 0,
		"scan tier weights must be non-negative and not both zero")
	check(c.Scan.AlertStepRatio >= 1, "scan.alert_step_ratio must be at least 1, got %v", c.Scan.AlertStepRatio)

	check(c.Audit.Limit > 0, "audit.limit must be positive, got %d", c.Audit.Limit)
	check(fraction(c.Audit.Tolerance), "audit.tolerance must be in (0, 1], got %v", c.Audit.Tolerance)
	check(fraction(c.Audit.AlertThreshold), "audit.alert_threshold must be in (0, 1], got %v", c.Audit.AlertThreshold)
	check(fraction(c.Audit.LowLiquidityThreshold),
		"audit.low_liquidity_alert_threshold must be in (0, 1], got %v", c.Audit.LowLiquidityThreshold)

	check(c.Lifecycle.LiquidityThresholdUsd > 0, "lifecycle.liquidity_threshold_usd must be positive")
	check(c.Lifecycle.Limit > 0, "lifecycle.limit must be positive, got %d", c.Lifecycle.Limit)

	check(c.Alert.QueueSize > 0, "alert.queue_size must be positive, got %d", c.Alert.QueueSize)
	check(c.Alert.Workers > 0, "alert.workers must be positive, got %d", c.Alert.Workers)

	return errors.Join(errs...)
}

func fraction(v float64) bool {
	return v > 0 && v <= 1
}

// NewDefaultsOnly returns the built-in defaults, ignoring files and
// environment.
func NewDefaultsOnly() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("decode default config: %v", err))
	}
	return &cfg
}
