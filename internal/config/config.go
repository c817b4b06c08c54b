package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/ubi/pkg/constants"
	"github.com/turtacn/ubi/pkg/errors"
)

// Config holds the application's configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Pricing  PricingConfig  `mapstructure:"pricing"`
	Scoring  ScoringConfig  `mapstructure:"scoring"`
	Model    ModelConfig    `mapstructure:"model"`
	Log      LogConfig      `mapstructure:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
	EnablePprof  bool   `mapstructure:"enable_pprof"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxConns        int    `mapstructure:"max_conns"`
	MinConns        int    `mapstructure:"min_conns"`
	MaxConnLifetime int    `mapstructure:"max_conn_lifetime"`  // in minutes
	MaxConnIdleTime int    `mapstructure:"max_conn_idle_time"` // in minutes
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

type RedisConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Address        string `mapstructure:"address"`
	Password       string `mapstructure:"password"`
	DB             int    `mapstructure:"db"`
	PoolSize       int    `mapstructure:"pool_size"`
	ScoreTTL       int    `mapstructure:"score_ttl"`       // in seconds
	IdempotencyTTL int    `mapstructure:"idempotency_ttl"` // in seconds
}

type KafkaConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	Brokers          []string `mapstructure:"brokers"`
	AdjustmentTopic  string   `mapstructure:"adjustment_topic"`
	PricingTopic     string   `mapstructure:"pricing_topic"`
	BatchTimeoutMSec int      `mapstructure:"batch_timeout_ms"`
}

// PricingConfig carries guardrails and the startup band table.
type PricingConfig struct {
	MaxMonthlyChange float64            `mapstructure:"max_monthly_change"`
	MinPremium       float64            `mapstructure:"min_premium"`
	MaxPremium       float64            `mapstructure:"max_premium"`
	CooldownDays     int                `mapstructure:"cooldown_days"`
	MinAdjustment    float64            `mapstructure:"min_adjustment"`
	MaxAdjustment    float64            `mapstructure:"max_adjustment"`
	WarnAdjustment   float64            `mapstructure:"warn_adjustment"`
	Adjustments      map[string]float64 `mapstructure:"adjustments"`
	TableFile        string             `mapstructure:"table_file"`
	BulkWorkers      int                `mapstructure:"bulk_workers"`
	CooldownCacheTTL int                `mapstructure:"cooldown_cache_ttl"` // in seconds
}

// BandAdjustments converts the lower-case keyed map from the config file into band keys.
func (p PricingConfig) BandAdjustments() map[constants.Band]float64 {
	out := make(map[constants.Band]float64, len(p.Adjustments))
	for k, v := range p.Adjustments {
		out[constants.Band(strings.ToUpper(k))] = v
	}
	return out
}

type ThresholdConfig struct {
	A float64 `mapstructure:"a"`
	B float64 `mapstructure:"b"`
	C float64 `mapstructure:"c"`
	D float64 `mapstructure:"d"`
}

type ScoringConfig struct {
	Thresholds   ThresholdConfig `mapstructure:"thresholds"`
	ModelTimeout time.Duration   `mapstructure:"model_timeout"`
	NeutralScore float64         `mapstructure:"neutral_score"`
	NeutralBand  string          `mapstructure:"neutral_band"`
}

// ModelConfig selects the risk model backend.
type ModelConfig struct {
	Kind        string `mapstructure:"kind"` // linear | grpc
	WeightsFile string `mapstructure:"weights_file"`
	GRPCTarget  string `mapstructure:"grpc_target"`
	Version     string `mapstructure:"version"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SampleRate     float64 `mapstructure:"sample_rate"`
}

// Validate rejects configurations the pricing and scoring layers cannot honour.
func (c *Config) Validate() error {
	p := c.Pricing
	if p.MinPremium <= 0 || p.MinPremium >= p.MaxPremium {
		return errors.ErrInvalidInput("pricing.min_premium (%.2f) must be positive and below pricing.max_premium (%.2f)", p.MinPremium, p.MaxPremium)
	}
	if p.MaxMonthlyChange <= 0 || p.MaxMonthlyChange > constants.DeltaPctHardLimit {
		return errors.ErrInvalidInput("pricing.max_monthly_change must be in (0, %.2f], got %.2f", constants.DeltaPctHardLimit, p.MaxMonthlyChange)
	}
	if p.MinAdjustment > 0 || p.MaxAdjustment < 0 || p.MinAdjustment < -constants.DeltaPctHardLimit || p.MaxAdjustment > constants.DeltaPctHardLimit {
		return errors.ErrInvalidInput("pricing adjustment bounds [%.2f, %.2f] are invalid", p.MinAdjustment, p.MaxAdjustment)
	}
	if p.CooldownDays < 0 {
		return errors.ErrInvalidInput("pricing.cooldown_days must not be negative")
	}
	if p.BulkWorkers < 1 {
		return errors.ErrInvalidInput("pricing.bulk_workers must be at least 1")
	}

	t := c.Scoring.Thresholds
	if !(t.A > t.B && t.B > t.C && t.C > t.D && t.D > constants.MinScore && t.A <= constants.MaxScore) {
		return errors.ErrInvalidInput("scoring thresholds must be strictly decreasing within (0, 100]: %v", t)
	}
	if !constants.Band(strings.ToUpper(c.Scoring.NeutralBand)).Valid() {
		return errors.ErrInvalidInput("scoring.neutral_band %q is not a band", c.Scoring.NeutralBand)
	}

	switch c.Model.Kind {
	case "linear":
	case "grpc":
		if c.Model.GRPCTarget == "" {
			return errors.ErrInvalidInput("model.grpc_target is required when model.kind is grpc")
		}
	default:
		return errors.ErrInvalidInput("unknown model.kind %q", c.Model.Kind)
	}
	return nil
}

//Personal.AI order the ending
