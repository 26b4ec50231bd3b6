package configs

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

var ErrInvalid = errors.New("invalid configuration")

const (
	DefaultFile       = "config.yaml"
	DefaultMinQtyUSDT = 10
)

// Config 启动时加载一次, 之后只读
type Config struct {
	// 基础配置, 对应 config.yaml 的 config 段
	Symbols    []string        `json:"symbols"`      // 交易对列表, 例如 BTC/USDT
	QtyUSDT    decimal.Decimal `json:"qty_usdt"`     // 每次买入花费的 USDT
	MinQtyUSDT decimal.Decimal `json:"min_qty_usdt"` // QtyUSDT 下限
	APIKey     string          `json:"-"`
	APISecret  string          `json:"-"`
	Login      string          `json:"-"`  // 信号源授权令牌
	WS         string          `json:"ws"` // 信号源地址

	// DryRun 为 true 时使用模拟盘, 由环境变量 DEBUG 控制
	DryRun bool `json:"dry_run"`

	Exchange ExchangeConfig `json:"exchange" mapstructure:"exchange"`
	Sell     SellConfig     `json:"sell" mapstructure:"sell"`
	Gates    GatesConfig    `json:"gates" mapstructure:"gates"`
	Ledger   LedgerConfig   `json:"ledger" mapstructure:"ledger"`
	Log      LogConfig      `json:"log" mapstructure:"log"`
	Metrics  MetricsConfig  `json:"metrics" mapstructure:"metrics"`
	Stream   StreamConfig   `json:"stream" mapstructure:"stream"`
}

type ExchangeConfig struct {
	Testnet   bool    `json:"testnet" mapstructure:"testnet"`
	RateLimit float64 `json:"rate_limit" mapstructure:"rate_limit"` // 每秒请求数, 0 表示不限
	Burst     int     `json:"burst" mapstructure:"burst"`
}

type SellConfig struct {
	Mode             string `json:"mode" mapstructure:"mode"` // ledger 或 balance
	CheckMinNotional bool   `json:"check_min_notional" mapstructure:"check_min_notional"`
}

type GatesConfig struct {
	StopFile  string `json:"stop_file" mapstructure:"stop_file"`     // 存在即停止新买入
	TopUpFile string `json:"top_up_file" mapstructure:"top_up_file"` // 存在即允许已持仓加仓
}

type LedgerConfig struct {
	Backend string `json:"backend" mapstructure:"backend"` // file, sqlite, postgres
	Path    string `json:"path" mapstructure:"path"`
	DSN     string `json:"-" mapstructure:"dsn"`
}

type LogConfig struct {
	Level string `json:"level" mapstructure:"level"`
	File  string `json:"file" mapstructure:"file"`
}

type MetricsConfig struct {
	Addr string `json:"addr" mapstructure:"addr"` // 为空则不启动
}

type StreamConfig struct {
	InsecureSkipVerify bool          `json:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`
	ReadTimeout        time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	DebugURL           string        `json:"debug_url" mapstructure:"debug_url"` // 模拟盘使用的本地中继
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("config.min-qty-usdt", DefaultMinQtyUSDT)
	v.SetDefault("exchange.rate_limit", 10)
	v.SetDefault("exchange.burst", 5)
	v.SetDefault("sell.mode", "ledger")
	v.SetDefault("sell.check_min_notional", false)
	v.SetDefault("gates.stop_file", "stop.txt")
	v.SetDefault("gates.top_up_file", "stop_dca.txt")
	v.SetDefault("ledger.backend", "file")
	v.SetDefault("ledger.path", "output/positions.json")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "output/logs.log")
	v.SetDefault("stream.insecure_skip_verify", true)
	v.SetDefault("stream.read_timeout", 30*time.Second)
}

// Load reads the yaml file at path (config.yaml when empty), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // .env 可选

	if path == "" {
		path = DefaultFile
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SIGNALEXEC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: unable to load configuration file %s: %v", ErrInvalid, path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: unable to decode configuration: %v", ErrInvalid, err)
	}

	cfg.Symbols = uniqueSymbols(v.GetStringSlice("config.symbols"))
	cfg.APIKey = v.GetString("config.apikey")
	cfg.APISecret = v.GetString("config.apisecret")
	cfg.Login = v.GetString("config.login")
	cfg.WS = v.GetString("config.ws")

	var err error
	if cfg.QtyUSDT, err = decimalKey(v, "config.qty-usdt"); err != nil {
		return nil, err
	}
	if cfg.MinQtyUSDT, err = decimalKey(v, "config.min-qty-usdt"); err != nil {
		return nil, err
	}
	if cfg.DryRun, err = envBool("DEBUG", true); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the executor cannot start without.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("%w: no symbols configured", ErrInvalid)
	}
	if c.QtyUSDT.LessThan(c.MinQtyUSDT) {
		return fmt.Errorf("%w: qty-usdt %s is below the minimum %s", ErrInvalid, c.QtyUSDT, c.MinQtyUSDT)
	}
	if c.APIKey == "" || c.APISecret == "" || c.Login == "" {
		return fmt.Errorf("%w: missing credentials", ErrInvalid)
	}
	if c.WS == "" {
		return fmt.Errorf("%w: missing ws server", ErrInvalid)
	}

	switch c.Sell.Mode {
	case "ledger", "balance":
	default:
		return fmt.Errorf("%w: unknown sell mode %q", ErrInvalid, c.Sell.Mode)
	}
	switch c.Ledger.Backend {
	case "file", "sqlite":
		if c.Ledger.Path == "" {
			return fmt.Errorf("%w: ledger path is empty", ErrInvalid)
		}
	case "postgres":
		if c.Ledger.DSN == "" {
			return fmt.Errorf("%w: ledger dsn is empty", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown ledger backend %q", ErrInvalid, c.Ledger.Backend)
	}
	if c.Exchange.RateLimit < 0 {
		return fmt.Errorf("%w: negative rate limit", ErrInvalid)
	}
	// burst 为 0 时限流器拒绝所有请求
	if c.Exchange.RateLimit > 0 && c.Exchange.Burst < 1 {
		return fmt.Errorf("%w: exchange burst must be at least 1 when rate_limit is set", ErrInvalid)
	}
	return nil
}

// StreamURL is the signal source to dial. In dry-run mode stream.debug_url,
// when set, replaces config.ws.
func (c *Config) StreamURL() string {
	if c.DryRun && c.Stream.DebugURL != "" {
		return c.Stream.DebugURL
	}
	return c.WS
}

func decimalKey(v *viper.Viper, key string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: %s is not set", ErrInvalid, key)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	return d, nil
}

// envBool accepts true/1/t and false/0/f, case-insensitive.
func envBool(name string, def bool) (bool, error) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return def, nil
	}
	switch strings.ToLower(raw) {
	case "true", "1", "t":
		return true, nil
	case "false", "0", "f":
		return false, nil
	}
	return false, fmt.Errorf("%w: invalid value %q for %s", ErrInvalid, raw, name)
}

func uniqueSymbols(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
