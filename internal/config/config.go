package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application. Integration settings
// are explicit typed structs validated on load, never loose JSON blobs
// threaded through business logic.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Bedrock   BedrockConfig   `yaml:"bedrock"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Viral     ViralConfig     `yaml:"viral"`
	Shopify   ShopifyConfig   `yaml:"shopify"`
	GoogleAds GoogleAdsConfig `yaml:"google_ads"`
	Anomaly   AnomalyConfig   `yaml:"anomaly"`
	API       APIConfig       `yaml:"api"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection.
func (c ServerConfig) GetHost() string {
	// In a container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the cache / rate-limiter Redis settings.
type RedisConfig struct {
	URL             string `yaml:"url"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

// CacheTTL returns the opportunity list cache TTL as a duration.
func (c RedisConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// BedrockConfig holds AWS Bedrock settings for brief generation.
type BedrockConfig struct {
	ModelID        string `yaml:"model_id"`
	Region         string `yaml:"region"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxTokens      int    `yaml:"max_tokens"`
	Enabled        bool   `yaml:"enabled"`
}

// Timeout returns the per-generation timeout as a duration.
func (c BedrockConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// IngestConfig holds signal ingestion settings.
type IngestConfig struct {
	Enabled         bool         `yaml:"enabled"`
	IntervalMinutes int          `yaml:"interval_minutes"`
	TimeoutSeconds  int          `yaml:"timeout_seconds"`
	Feeds           []FeedConfig `yaml:"feeds"`
}

// FeedConfig maps one RSS feed to an industry.
type FeedConfig struct {
	URL        string `yaml:"url"`
	SourceType string `yaml:"source_type"`
	Industry   string `yaml:"industry"`
	Community  string `yaml:"community"`
}

// Interval returns the ingestion polling interval as a duration.
func (c IngestConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// Timeout returns the per-feed fetch timeout.
func (c IngestConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ViralConfig holds the opportunity pipeline tuning knobs.
type ViralConfig struct {
	MinKeywordOverlap     int                 `yaml:"min_keyword_overlap"`
	BuildRateLimit        int                 `yaml:"build_rate_limit"`
	BuildRateWindowSecs   int                 `yaml:"build_rate_window_seconds"`
	RelevancePointsPerHit int                 `yaml:"relevance_points_per_hit"`
	NoveltyPenaltyPerHit  int                 `yaml:"novelty_penalty_per_hit"`
	SeasonalityNearDays   int                 `yaml:"seasonality_near_days"`
	IndustryTerms         map[string][]string `yaml:"industry_terms"`
}

// BuildRateWindow returns the fixed rate-limit window for build requests.
func (c ViralConfig) BuildRateWindow() time.Duration {
	return time.Duration(c.BuildRateWindowSecs) * time.Second
}

// ShopifyConfig holds Shopify store monitoring settings.
type ShopifyConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Shops       []string `yaml:"shops"`
	AccessToken string   `yaml:"access_token"`
}

// GoogleAdsConfig holds Google Ads account monitoring settings.
type GoogleAdsConfig struct {
	Enabled     bool     `yaml:"enabled"`
	CustomerIDs []string `yaml:"customer_ids"`
	DevToken    string   `yaml:"dev_token"`
}

// AnomalyConfig holds anomaly detector thresholds. Drop thresholds are
// percentages expressed as negative numbers (-40 means a 40% drop).
type AnomalyConfig struct {
	MinBaseline        int     `yaml:"min_baseline"`
	RevenueCriticalPct float64 `yaml:"revenue_critical_pct"`
	RevenueHighPct     float64 `yaml:"revenue_high_pct"`
	OrdersCriticalPct  float64 `yaml:"orders_critical_pct"`
	OrdersHighPct      float64 `yaml:"orders_high_pct"`
	AOVMediumPct       float64 `yaml:"aov_medium_pct"`
	RefundRateHighAbs  float64 `yaml:"refund_rate_high_abs"`
}

// APIConfig holds HTTP surface behavior flags.
type APIConfig struct {
	// RoleCheckDisabled lifts the internal-role requirement on mutating
	// endpoints (local development only).
	RoleCheckDisabled bool     `yaml:"role_check_disabled"`
	AllowedOrigins    []string `yaml:"allowed_origins"`
}

// Load reads and parses the configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Redis.CacheTTLSeconds == 0 {
		cfg.Redis.CacheTTLSeconds = 120
	}
	if cfg.Bedrock.ModelID == "" {
		cfg.Bedrock.ModelID = "anthropic.claude-3-sonnet-20240229-v1:0"
	}
	if cfg.Bedrock.Region == "" {
		cfg.Bedrock.Region = "us-east-1"
	}
	if cfg.Bedrock.TimeoutSeconds == 0 {
		cfg.Bedrock.TimeoutSeconds = 60
	}
	if cfg.Bedrock.MaxTokens == 0 {
		cfg.Bedrock.MaxTokens = 2000
	}
	if cfg.Ingest.IntervalMinutes == 0 {
		cfg.Ingest.IntervalMinutes = 30
	}
	if cfg.Ingest.TimeoutSeconds == 0 {
		cfg.Ingest.TimeoutSeconds = 30
	}
	if cfg.Viral.MinKeywordOverlap == 0 {
		cfg.Viral.MinKeywordOverlap = 2
	}
	if cfg.Viral.BuildRateLimit == 0 {
		cfg.Viral.BuildRateLimit = 5
	}
	if cfg.Viral.BuildRateWindowSecs == 0 {
		cfg.Viral.BuildRateWindowSecs = 300
	}
	if cfg.Viral.RelevancePointsPerHit == 0 {
		cfg.Viral.RelevancePointsPerHit = 5
	}
	if cfg.Viral.NoveltyPenaltyPerHit == 0 {
		cfg.Viral.NoveltyPenaltyPerHit = 5
	}
	if cfg.Viral.SeasonalityNearDays == 0 {
		cfg.Viral.SeasonalityNearDays = 14
	}
	if cfg.Anomaly.MinBaseline == 0 {
		cfg.Anomaly.MinBaseline = 10
	}
	if cfg.Anomaly.RevenueCriticalPct == 0 {
		cfg.Anomaly.RevenueCriticalPct = -40
	}
	if cfg.Anomaly.RevenueHighPct == 0 {
		cfg.Anomaly.RevenueHighPct = -20
	}
	if cfg.Anomaly.OrdersCriticalPct == 0 {
		cfg.Anomaly.OrdersCriticalPct = -40
	}
	if cfg.Anomaly.OrdersHighPct == 0 {
		cfg.Anomaly.OrdersHighPct = -20
	}
	if cfg.Anomaly.AOVMediumPct == 0 {
		cfg.Anomaly.AOVMediumPct = -15
	}
	if cfg.Anomaly.RefundRateHighAbs == 0 {
		cfg.Anomaly.RefundRateHighAbs = 0.1
	}
	if len(cfg.API.AllowedOrigins) == 0 {
		cfg.API.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
	}
	if v := os.Getenv("BEDROCK_MODEL_ID"); v != "" {
		cfg.Bedrock.ModelID = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Bedrock.Region = v
	}
	if v := os.Getenv("SHOPIFY_ACCESS_TOKEN"); v != "" {
		cfg.Shopify.AccessToken = v
	}
	if v := os.Getenv("GOOGLE_ADS_DEV_TOKEN"); v != "" {
		cfg.GoogleAds.DevToken = v
	}
	if os.Getenv("ROLE_CHECK_DISABLED") == "true" {
		cfg.API.RoleCheckDisabled = true
	}

	return cfg, nil
}
