package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} or $VAR_NAME patterns
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([a-zA-Z_][a-zA-Z0-9_]*)`)

// Config holds all application configuration
type Config struct {
	App          AppConfig          `yaml:"app"`
	RPC          RPCConfig          `yaml:"rpc"`
	Decoder      DecoderConfig      `yaml:"decoder"`
	Airstack     AirstackConfig     `yaml:"airstack"`
	Farcaster    FarcasterConfig    `yaml:"farcaster"`
	Alerts       AlertsConfig       `yaml:"alerts"`
	Subscription SubscriptionConfig `yaml:"subscription"`
	Redis        RedisConfig        `yaml:"redis"`
	Web          WebConfig          `yaml:"web"`
	Logger       LoggerConfig       `yaml:"logger"`
}

// AppConfig holds application-level configuration
type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
}

// RPCConfig holds chain RPC endpoints and the watched contract
type RPCConfig struct {
	WSURL           string   `yaml:"ws_url"`
	HTTPURL         string   `yaml:"http_url"`
	ChainID         int      `yaml:"chain_id"`
	ContractAddress string   `yaml:"contract_address"`
	Topics          []string `yaml:"topics"`
}

// DecoderConfig holds the transaction decoder service configuration
type DecoderConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// AirstackConfig holds the identity lookup configuration
type AirstackConfig struct {
	Endpoint        string        `yaml:"endpoint"`
	APIKey          string        `yaml:"api_key"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	CacheMaxEntries int           `yaml:"cache_max_entries"`
}

// FarcasterConfig holds the cast publishing configuration
type FarcasterConfig struct {
	HubURL           string        `yaml:"hub_url"`
	HubAPIKey        string        `yaml:"hub_api_key"`
	SignerPrivateKey string        `yaml:"signer_private_key"`
	AccountFID       string        `yaml:"account_fid"`
	FrameEndpoint    string        `yaml:"frame_endpoint"`
	RateLimit        int           `yaml:"rate_limit"`
	Timeout          time.Duration `yaml:"timeout"`
	RetryCount       int           `yaml:"retry_count"`
}

// AlertsConfig holds alert filtering and formatting thresholds
type AlertsConfig struct {
	// MinMoxieAmount is the reserve-currency floor below which trades are ignored
	MinMoxieAmount float64 `yaml:"min_moxie_amount"`
	// WhaleThreshold is the reserve-currency amount that triggers the whale banner
	WhaleThreshold float64 `yaml:"whale_threshold"`
	// Precision is the number of decimal places in formatted amounts
	Precision int `yaml:"precision"`
}

// SubscriptionConfig holds WebSocket subscription configuration
type SubscriptionConfig struct {
	WatchdogInterval  time.Duration `yaml:"watchdog_interval"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	MaxRetries        int           `yaml:"max_retries"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
}

// RedisConfig holds Redis connection configuration for tx dedup.
// Redis is optional; when Host is empty the bot runs without dedup.
type RedisConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	LockTTL      time.Duration `yaml:"lock_ttl"`
	ProcessedTTL time.Duration `yaml:"processed_ttl"`
}

// WebConfig holds the liveness HTTP server configuration
type WebConfig struct {
	Port int `yaml:"port"`
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json or text
	Output     string `yaml:"output"` // stdout, stderr, or file path
	TimeFormat string `yaml:"time_format"`
}

// Load loads configuration from file and environment variables
// Load order (later overrides earlier):
// 1. Default values
// 2. .env file (if exists) - loaded into process environment
// 3. YAML config file with ${VAR} expansion
// 4. Environment variable overrides (explicit mappings)
func Load(configPath string) (*Config, error) {
	cfg := defaultConfig()

	loadDotEnv(configPath)

	if configPath != "" {
		if err := loadFromFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads .env file from multiple possible locations.
// It does NOT override existing environment variables.
func loadDotEnv(configPath string) {
	envPaths := []string{
		".env",
		".env.local",
	}

	if configPath != "" {
		configDir := filepath.Dir(configPath)
		envPaths = append(envPaths,
			filepath.Join(configDir, ".env"),
			filepath.Join(configDir, "..", ".env"),
		)
	}

	for _, envPath := range envPaths {
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
		}
	}
}

// defaultConfig returns configuration with default values
func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "moxie-alerts-bot",
			Environment: "development",
		},
		RPC: RPCConfig{
			ChainID:         8453,
			ContractAddress: "0x373065e66b32a1c428aa14698dfa99ba7199b55e",
			Topics: []string{
				"0x96c1b5a0ee3c1932c831b8c6a559c93b48a3109915784a05ff44a07cc09c3931",
			},
		},
		Decoder: DecoderConfig{
			Timeout: 30 * time.Second,
		},
		Airstack: AirstackConfig{
			Endpoint:        "https://api.airstack.xyz/graphql",
			CacheTTL:        time.Hour,
			CacheMaxEntries: 50,
		},
		Farcaster: FarcasterConfig{
			HubURL:        "https://hub.farcaster.standardcrypto.vc:2281",
			FrameEndpoint: "https://frames.moxie.xyz/tx",
			RateLimit:     30,
			Timeout:       30 * time.Second,
		},
		Alerts: AlertsConfig{
			MinMoxieAmount: 1000,
			WhaleThreshold: 300000,
			Precision:      3,
		},
		Subscription: SubscriptionConfig{
			WatchdogInterval:  5 * time.Minute,
			ReconnectInterval: 5 * time.Second,
			MaxRetries:        10,
			WriteTimeout:      10 * time.Second,
			ReadTimeout:       6 * time.Minute,
		},
		Redis: RedisConfig{
			Port:         6379,
			PoolSize:     10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			LockTTL:      30 * time.Second,
			ProcessedTTL: 5 * time.Minute,
		},
		Web: WebConfig{
			Port: 3000,
		},
		Logger: LoggerConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			TimeFormat: time.RFC3339,
		},
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist, use defaults
		}
		return err
	}

	expanded := expandEnvVars(string(data))

	return yaml.Unmarshal([]byte(expanded), cfg)
}

// expandEnvVars replaces ${VAR} or $VAR with environment variable values
func expandEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return ""
	})
}

// loadFromEnv overrides configuration with environment variables
func loadFromEnv(cfg *Config) {
	// App
	if v := os.Getenv("APP_NAME"); v != "" {
		cfg.App.Name = v
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Environment = v
	}

	// RPC
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.RPC.WSURL = v
	}
	if v := os.Getenv("RPC_HTTP_URL"); v != "" {
		cfg.RPC.HTTPURL = v
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RPC.ChainID = n
		}
	}
	if v := os.Getenv("CONTRACT_ADDRESS"); v != "" {
		cfg.RPC.ContractAddress = v
	}
	if v := os.Getenv("TOPICS"); v != "" {
		topics := strings.Split(v, ",")
		cfg.RPC.Topics = cfg.RPC.Topics[:0]
		for _, topic := range topics {
			topic = strings.TrimSpace(topic)
			if topic != "" {
				cfg.RPC.Topics = append(cfg.RPC.Topics, topic)
			}
		}
	}

	// Decoder
	if v := os.Getenv("DECODER_ENDPOINT"); v != "" {
		cfg.Decoder.Endpoint = v
	}

	// Airstack
	if v := os.Getenv("AIRSTACK_ENDPOINT"); v != "" {
		cfg.Airstack.Endpoint = v
	}
	if v := os.Getenv("AIRSTACK_API_KEY"); v != "" {
		cfg.Airstack.APIKey = v
	}

	// Farcaster
	if v := os.Getenv("FARCASTER_HUB_URL"); v != "" {
		cfg.Farcaster.HubURL = v
	}
	if v := os.Getenv("HUB_API_KEY"); v != "" {
		cfg.Farcaster.HubAPIKey = v
	}
	if v := os.Getenv("SIGNER_PRIVATE_KEY"); v != "" {
		cfg.Farcaster.SignerPrivateKey = v
	}
	if v := os.Getenv("ACCOUNT_FID"); v != "" {
		cfg.Farcaster.AccountFID = v
	}
	if v := os.Getenv("FRAME_ENDPOINT"); v != "" {
		cfg.Farcaster.FrameEndpoint = v
	}

	// Alerts
	if v := os.Getenv("MIN_MOXIE_AMOUNT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Alerts.MinMoxieAmount = f
		}
	}
	if v := os.Getenv("WHALE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Alerts.WhaleThreshold = f
		}
	}

	// Subscription
	if v := os.Getenv("WATCHDOG_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Subscription.WatchdogInterval = d
		}
	}

	// Redis
	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.Port = n
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	// Web
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = n
		}
	}

	// Logger
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("LOG_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
}

// Validate validates the configuration.
// A bot without a signer key or account fid can never publish, so both are
// required up front.
func (c *Config) Validate() error {
	if c.RPC.WSURL == "" {
		return fmt.Errorf("rpc websocket URL is required")
	}
	if c.RPC.ContractAddress == "" {
		return fmt.Errorf("contract address is required")
	}
	if len(c.RPC.Topics) == 0 {
		return fmt.Errorf("at least one event topic is required")
	}
	if c.Farcaster.SignerPrivateKey == "" {
		return fmt.Errorf("farcaster signer private key is required")
	}
	if c.Farcaster.AccountFID == "" {
		return fmt.Errorf("farcaster account fid is required")
	}
	if c.Alerts.Precision < 0 {
		return fmt.Errorf("alerts precision must be non-negative")
	}
	return nil
}

// IsRedisEnabled returns true if Redis dedup is configured
func (c *Config) IsRedisEnabled() bool {
	return c.Redis.Host != ""
}
