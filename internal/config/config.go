package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/yourorg/strategy-optimizer/internal/backtest"
	"github.com/yourorg/strategy-optimizer/internal/optimizer"
	"github.com/yourorg/strategy-optimizer/internal/strategy"
)

// Config holds all configuration for the service and the CLI
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Binance   BinanceConfig
	Market    MarketConfig
	Backtest  backtest.Costs
	Optimizer OptimizerConfig
	Storage   StorageConfig
	Auth      AuthConfig
	Logging   LoggingConfig
}

// ServerConfig holds server specific configuration
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds database specific configuration
type DatabaseConfig struct {
	Enabled         bool
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the postgres connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds the candle cache connection
type RedisConfig struct {
	Enabled   bool
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// KafkaConfig holds Kafka specific configuration
type KafkaConfig struct {
	Enabled bool
	Brokers string
	Topics  map[string]string
}

// BrokerList splits the comma separated broker string
func (k KafkaConfig) BrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// BinanceConfig holds the futures market data endpoint
type BinanceConfig struct {
	BaseURL    string
	KlineLimit int
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// MarketConfig selects the candle series
type MarketConfig struct {
	Symbol     string
	QuoteAsset string
	Interval   string
	// LookbackYears sets the first candle when StartDate is empty
	LookbackYears int
	StartDate     string
	// FollowToNow keeps paging until the present instead of stopping after one page
	FollowToNow bool
	// BacktestMode reuses cached candles even after they went stale
	BacktestMode bool
}

// Start resolves the first candle time. The lookback is anchored at the
// start of the UTC day so that the cache key stays stable within a day.
func (m MarketConfig) Start(now time.Time) (time.Time, error) {
	if m.StartDate == "" {
		return now.UTC().Truncate(24*time.Hour).AddDate(-m.LookbackYears, 0, 0), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, m.StartDate); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid market.startDate %q", m.StartDate)
}

// OptimizerConfig holds the sweep settings
type OptimizerConfig struct {
	Variant string
	Space   optimizer.SearchSpace
	// MirrorLower ignores space.lower and pairs every upper level with 100 - upper
	MirrorLower bool
	Workers     int
	// Seed fixes the sampling order; 0 seeds from the clock
	Seed        int64
	RequireFlat bool
}

// StorageConfig selects where optimization reports are written
type StorageConfig struct {
	Type  string
	Local LocalStorageConfig
	S3    S3StorageConfig
}

// LocalStorageConfig holds local filesystem storage configuration
type LocalStorageConfig struct {
	BasePath string
	BaseURL  string
}

// S3StorageConfig holds S3 storage configuration
type S3StorageConfig struct {
	Region         string
	Bucket         string
	Prefix         string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

// AuthConfig holds the API credentials
type AuthConfig struct {
	JWTSecret  string
	ServiceKey string
}

// LoggingConfig holds logging specific configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads the configuration from file and environment variables.
// An empty path loads defaults and environment only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override, e.g. MARKET_SYMBOL
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Optimizer.MirrorLower {
		cfg.Optimizer.Space.Lower = nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings no component can run with
func (c *Config) Validate() error {
	var errs []error

	if c.Market.Symbol == "" {
		errs = append(errs, errors.New("market.symbol is required"))
	}
	if c.Market.Interval == "" {
		errs = append(errs, errors.New("market.interval is required"))
	}
	if _, err := c.Market.Start(time.Now()); err != nil {
		errs = append(errs, err)
	}
	if c.Binance.KlineLimit < 1 {
		errs = append(errs, errors.New("binance.klineLimit must be >= 1"))
	}
	if err := c.Backtest.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := strategy.Lookup(c.Optimizer.Variant); err != nil {
		errs = append(errs, err)
	}
	if err := c.Optimizer.Space.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Storage.Type {
	case "local", "s3":
	default:
		errs = append(errs, fmt.Errorf("unknown storage.type %q", c.Storage.Type))
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		errs = append(errs, errors.New("storage.s3.bucket is required for s3 storage"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", "10s")
	v.SetDefault("server.writeTimeout", "10m")
	v.SetDefault("server.idleTimeout", "120s")

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.dbname", "strategy_optimizer")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", "30m")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.keyPrefix", "candles")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topics.optimizationEvents", "optimization-events")

	// Binance defaults
	v.SetDefault("binance.baseURL", "https://fapi.binance.com")
	v.SetDefault("binance.klineLimit", 1500)
	v.SetDefault("binance.timeout", "30s")
	v.SetDefault("binance.maxRetries", 3)
	v.SetDefault("binance.retryDelay", "1s")

	// Market defaults
	v.SetDefault("market.symbol", "BTCUSDT")
	v.SetDefault("market.quoteAsset", "USDT")
	v.SetDefault("market.interval", "1h")
	v.SetDefault("market.lookbackYears", 10)
	v.SetDefault("market.followToNow", true)
	v.SetDefault("market.backtestMode", false)

	// Backtest cost model defaults
	costs := backtest.DefaultCosts()
	v.SetDefault("backtest.initialFund", costs.InitialFund)
	v.SetDefault("backtest.feeRate", costs.FeeRate)
	v.SetDefault("backtest.fundingRate", costs.FundingRate)
	v.SetDefault("backtest.fundingInterval", costs.FundingInterval.String())
	v.SetDefault("backtest.orderAmountPercent", costs.OrderAmountPercent)
	v.SetDefault("backtest.orderReservePercent", costs.OrderReservePercent)
	v.SetDefault("backtest.liquidationMargin", costs.LiquidationMargin)

	// Optimizer defaults
	v.SetDefault("optimizer.variant", strategy.DefaultVariant)
	v.SetDefault("optimizer.space.period.min", 1)
	v.SetDefault("optimizer.space.period.max", 50)
	v.SetDefault("optimizer.space.period.step", 1)
	v.SetDefault("optimizer.space.upper.min", 50)
	v.SetDefault("optimizer.space.upper.max", 100)
	v.SetDefault("optimizer.space.upper.step", 1)
	v.SetDefault("optimizer.space.lower.min", 1)
	v.SetDefault("optimizer.space.lower.max", 50)
	v.SetDefault("optimizer.space.lower.step", 1)
	v.SetDefault("optimizer.space.leverage.min", 1)
	v.SetDefault("optimizer.space.leverage.max", 5)
	v.SetDefault("optimizer.space.leverage.step", 1)
	v.SetDefault("optimizer.space.samples", 50000)
	v.SetDefault("optimizer.mirrorLower", false)
	v.SetDefault("optimizer.workers", 4)
	v.SetDefault("optimizer.seed", 0)
	v.SetDefault("optimizer.requireFlat", false)

	// Storage defaults
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local.basePath", "./reports")
	v.SetDefault("storage.local.baseURL", "/reports")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.prefix", "optimizations")

	// Auth defaults
	v.SetDefault("auth.serviceKey", "optimizer-service-key")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
