package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log      LoggingConfig  `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Network  NetworkConfig  `yaml:"network"`
	Drafts   DraftsConfig   `yaml:"drafts"`
	Form     FormConfig     `yaml:"form"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Journal  JournalConfig  `yaml:"journal"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

type HTTPConfig struct {
	Address string `yaml:"address"`
}

type GatewayConfig struct {
	MainnetURL       string        `yaml:"mainnet_url"`
	TestnetURL       string        `yaml:"testnet_url"`
	StreamURL        string        `yaml:"stream_url"`
	Timeout          time.Duration `yaml:"timeout"`
	WhitelistRetries int           `yaml:"whitelist_retries"`
	APIKeyEnv        string        `yaml:"api_key_env"`
	ReconnectDelay   time.Duration `yaml:"reconnect_delay"`
	PingInterval     time.Duration `yaml:"ping_interval"`
}

// URLFor returns the gateway base URL serving the given network name.
func (g GatewayConfig) URLFor(network string) string {
	if network == "mainnet" {
		return g.MainnetURL
	}
	return g.TestnetURL
}

// APIKey resolves the gateway key from the configured environment variable.
func (g GatewayConfig) APIKey() string {
	if g.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(g.APIKeyEnv))
}

type NetworkConfig struct {
	ExplorerMainnet string `yaml:"explorer_mainnet"`
	ExplorerTestnet string `yaml:"explorer_testnet"`
}

func (n NetworkConfig) ExplorerFor(network string) string {
	if network == "mainnet" {
		return n.ExplorerMainnet
	}
	return n.ExplorerTestnet
}

type DraftsConfig struct {
	Persist    bool        `yaml:"persist"`
	Backend    string      `yaml:"backend"`
	SQLitePath string      `yaml:"sqlite_path"`
	Redis      RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// FormConfig overrides the initial values of the editing form.
type FormConfig struct {
	Name           string `yaml:"name"`
	InCoinType     string `yaml:"in_coin_type"`
	TotalInAmount  string `yaml:"total_in_amount"`
	CycleCount     string `yaml:"cycle_count"`
	CycleFrequency string `yaml:"cycle_frequency"`
}

type RefreshConfig struct {
	Schedule string `yaml:"schedule"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled != nil && *m.Enabled
}

type JournalConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Encoding == "" {
		cfg.Log.Encoding = "json"
	}
	if cfg.HTTP.Address == "" {
		cfg.HTTP.Address = "127.0.0.1:8080"
	}
	if cfg.Gateway.Timeout == 0 {
		cfg.Gateway.Timeout = 15 * time.Second
	}
	if cfg.Gateway.WhitelistRetries == 0 {
		cfg.Gateway.WhitelistRetries = 3
	}
	if cfg.Gateway.APIKeyEnv == "" {
		cfg.Gateway.APIKeyEnv = "DCA_GATEWAY_API_KEY"
	}
	if cfg.Gateway.ReconnectDelay == 0 {
		cfg.Gateway.ReconnectDelay = 3 * time.Second
	}
	if cfg.Gateway.PingInterval == 0 {
		cfg.Gateway.PingInterval = 30 * time.Second
	}
	if cfg.Network.ExplorerMainnet == "" {
		cfg.Network.ExplorerMainnet = "https://suiscan.xyz/mainnet"
	}
	if cfg.Network.ExplorerTestnet == "" {
		cfg.Network.ExplorerTestnet = "https://suiscan.xyz/testnet"
	}
	if cfg.Drafts.Backend == "" {
		cfg.Drafts.Backend = "sqlite"
	}
	if cfg.Drafts.SQLitePath == "" {
		cfg.Drafts.SQLitePath = "data/dca-console.db"
	}
	if cfg.Drafts.Redis.Addr == "" {
		cfg.Drafts.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.Metrics.Enabled == nil {
		enabled := true
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Journal.Schema == "" {
		cfg.Journal.Schema = "public"
	}
	if cfg.Journal.QueueSize <= 0 {
		cfg.Journal.QueueSize = 256
	}
	if cfg.Telegram.Token == "" {
		cfg.Telegram.Token = os.Getenv("DCA_TELEGRAM_TOKEN")
	}
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Gateway.MainnetURL) == "" && strings.TrimSpace(cfg.Gateway.TestnetURL) == "" {
		return errors.New("gateway.mainnet_url or gateway.testnet_url is required")
	}
	if cfg.Gateway.Timeout < 0 {
		return errors.New("gateway.timeout must be >= 0")
	}
	if cfg.Gateway.WhitelistRetries < 0 {
		return errors.New("gateway.whitelist_retries must be >= 0")
	}
	switch cfg.Drafts.Backend {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("drafts.backend %q is not supported", cfg.Drafts.Backend)
	}
	if cfg.Journal.Enabled && strings.TrimSpace(cfg.Journal.DSN) == "" {
		return errors.New("journal.dsn is required when journal is enabled")
	}
	if cfg.Telegram.Enabled && (cfg.Telegram.Token == "" || cfg.Telegram.ChatID == "") {
		return errors.New("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	return nil
}
