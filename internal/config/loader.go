package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/turtacn/ubi/pkg/constants"
	"github.com/turtacn/ubi/pkg/errors"
)

// LoadConfig loads the configuration from file and environment variables.
// An explicit path overrides the default search locations.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/ubi/")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, errors.CodeInternal, "failed to read config")
		}
	}

	v.SetEnvPrefix("UBI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SetDefaults registers a default for every key the service reads.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 15)
	v.SetDefault("server.enable_pprof", false)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "ubi")
	v.SetDefault("database.database", "ubi")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", 60)
	v.SetDefault("database.max_conn_idle_time", 10)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.score_ttl", 3600)
	v.SetDefault("redis.idempotency_ttl", 86400)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.adjustment_topic", "ubi.premium.adjusted")
	v.SetDefault("kafka.pricing_topic", "ubi.pricing.table_updated")
	v.SetDefault("kafka.batch_timeout_ms", 50)

	v.SetDefault("pricing.max_monthly_change", constants.DefaultMaxMonthlyChange)
	v.SetDefault("pricing.min_premium", constants.DefaultMinPremium)
	v.SetDefault("pricing.max_premium", constants.DefaultMaxPremium)
	v.SetDefault("pricing.cooldown_days", constants.DefaultCooldownDays)
	v.SetDefault("pricing.min_adjustment", constants.DefaultMinAdjustment)
	v.SetDefault("pricing.max_adjustment", constants.DefaultMaxAdjustment)
	v.SetDefault("pricing.warn_adjustment", constants.DefaultWarnAdjustment)
	for band, pct := range constants.DefaultAdjustments() {
		v.SetDefault("pricing.adjustments."+strings.ToLower(string(band)), pct)
	}
	v.SetDefault("pricing.table_file", "")
	v.SetDefault("pricing.bulk_workers", constants.DefaultBulkWorkers)
	v.SetDefault("pricing.cooldown_cache_ttl", 300)

	v.SetDefault("scoring.thresholds.a", constants.DefaultThresholdA)
	v.SetDefault("scoring.thresholds.b", constants.DefaultThresholdB)
	v.SetDefault("scoring.thresholds.c", constants.DefaultThresholdC)
	v.SetDefault("scoring.thresholds.d", constants.DefaultThresholdD)
	v.SetDefault("scoring.model_timeout", constants.DefaultModelTimeout)
	v.SetDefault("scoring.neutral_score", constants.DefaultNeutralScore)
	v.SetDefault("scoring.neutral_band", string(constants.DefaultNeutralBand))

	v.SetDefault("model.kind", "linear")
	v.SetDefault("model.weights_file", "")
	v.SetDefault("model.version", "linear-v1")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "ubi-pricing")
	v.SetDefault("tracing.sample_rate", 1.0)
}

// Band returns the band given to fallback assessments.
func (c *ScoringConfig) Band() constants.Band {
	if b := constants.Band(strings.ToUpper(c.NeutralBand)); b.Valid() {
		return b
	}
	return constants.DefaultNeutralBand
}

// Timeout returns the configured model timeout or the built-in default.
func (c *ScoringConfig) Timeout() time.Duration {
	if c.ModelTimeout <= 0 {
		return constants.DefaultModelTimeout
	}
	return c.ModelTimeout
}

//Personal.AI order the ending
