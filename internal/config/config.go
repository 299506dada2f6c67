package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"wallet-activity/internal/logging"
)

// ErrInvalid is the first error of the chain returned by Validate.
var ErrInvalid = errors.New("config: validation failed")

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Contracts ContractsConfig `mapstructure:"contracts"`
	Explorer  ExplorerConfig  `mapstructure:"explorer"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Refresh   RefreshConfig   `mapstructure:"refresh"`
	Pager     PagerConfig     `mapstructure:"pager"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment"`
}

// ContractsConfig lists the contracts whose calls are classified.
type ContractsConfig struct {
	Lottery          string `mapstructure:"lottery" validate:"required,eth_addr"`
	LendingPool      string `mapstructure:"lending_pool" validate:"required,eth_addr"`
	BaseAsset        string `mapstructure:"base_asset" validate:"required,eth_addr"`
	BaseAssetDecimal int32  `mapstructure:"base_asset_decimals" validate:"gte=0,lte=36"`
	BaseAssetSymbol  string `mapstructure:"base_asset_symbol"`
	TxURL            string `mapstructure:"tx_url"`
}

// ExplorerConfig governs the retrying fetch client.
type ExplorerConfig struct {
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	MaxRetries     uint          `mapstructure:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay" validate:"gt=0"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// CacheConfig sets the classified result cache.
type CacheConfig struct {
	TTL              time.Duration `mapstructure:"ttl" validate:"gt=0"`
	CoalesceInFlight bool          `mapstructure:"coalesce_in_flight"`
}

// RefreshConfig sets the burst of forced loads after a confirmed write.
type RefreshConfig struct {
	InitialDelay time.Duration `mapstructure:"initial_delay" validate:"gte=0"`
	Interval     time.Duration `mapstructure:"interval" validate:"gte=0"`
	Attempts     int           `mapstructure:"attempts" validate:"gte=0"`
}

// PagerConfig sets history pagination.
type PagerConfig struct {
	PageSize int `mapstructure:"page_size" validate:"gt=0"`
}

// ProxyConfig covers the explorer proxy endpoint.
type ProxyConfig struct {
	ListenAddr     string        `mapstructure:"listen_addr" validate:"required"`
	UpstreamURL    string        `mapstructure:"upstream_url" validate:"required,url"`
	APIKey         string        `mapstructure:"api_key"`
	ChainID        int64         `mapstructure:"chain_id" validate:"gt=0"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the activity archive.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs the watch cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval" validate:"gt=0"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// AlertingConfig defines new-activity notifications.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram notifier.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token" validate:"required_if=Enabled true"`
	ChatID   string `mapstructure:"chat_id" validate:"required_if=Enabled true"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxRecords int `mapstructure:"max_records" validate:"gt=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WALLETACTIVITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnv(v)

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
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "walletactivity")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("contracts.lottery", "0xbEDd4F2beBE9E3E636161E644759f3cbe3d51B95")
	v.SetDefault("contracts.lending_pool", "0xA238Dd80C259a72e81d7e4664a9801593F98d1c5")
	v.SetDefault("contracts.base_asset", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	v.SetDefault("contracts.base_asset_decimals", 6)
	v.SetDefault("contracts.base_asset_symbol", "USDC")
	v.SetDefault("contracts.tx_url", "https://basescan.org/tx")

	v.SetDefault("explorer.base_url", "http://localhost:8080/api/wallet-history")
	v.SetDefault("explorer.request_timeout", "15s")
	v.SetDefault("explorer.max_retries", 3)
	v.SetDefault("explorer.retry_delay", "1s")

	v.SetDefault("cache.ttl", "30s")
	v.SetDefault("cache.coalesce_in_flight", false)

	v.SetDefault("refresh.initial_delay", "4s")
	v.SetDefault("refresh.interval", "3s")
	v.SetDefault("refresh.attempts", 4)

	v.SetDefault("pager.page_size", 5)

	v.SetDefault("proxy.listen_addr", ":8080")
	v.SetDefault("proxy.upstream_url", "https://api.etherscan.io/v2/api")
	v.SetDefault("proxy.chain_id", 8453)
	v.SetDefault("proxy.request_timeout", "10s")
	v.SetDefault("proxy.allowed_origins", []string{"*"})

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("scheduler.interval", "1m")
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x77616c6c))

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_records", 10000)
}

// bindEnv registers secrets without defaults so AutomaticEnv can see them.
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("proxy.api_key", "WALLETACTIVITY_PROXY_API_KEY", "ETHERSCAN_API_KEY")
	_ = v.BindEnv("database.dsn", "WALLETACTIVITY_DATABASE_DSN")
	_ = v.BindEnv("alerting.telegram.bot_token", "WALLETACTIVITY_ALERTING_TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("alerting.telegram.chat_id", "WALLETACTIVITY_ALERTING_TELEGRAM_CHAT_ID")
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

// Validate checks struct tags and returns ErrInvalid joined with one error per field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	errs := []error{ErrInvalid}
	for _, fe := range fieldErrs {
		errs = append(errs, fmt.Errorf("%s: value %q fails %q", fe.Namespace(), fmt.Sprint(fe.Value()), fe.Tag()))
	}
	return errors.Join(errs...)
}

// ResolveMaxRecords returns either the CLI override or config default.
func (c *Config) ResolveMaxRecords(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxRecords
}
