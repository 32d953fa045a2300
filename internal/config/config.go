package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/dongkoony/aws-cost-slack-reporter/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Billing  BillingConfig  `mapstructure:"billing"`
	Holiday  HolidayConfig  `mapstructure:"holiday"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Slack    SlackConfig    `mapstructure:"slack"`
	Report   ReportConfig   `mapstructure:"report"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates optional PostgreSQL connectivity for run
// history and the durable exchange-rate cache.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ScheduleConfig governs the daily report slot.
type ScheduleConfig struct {
	Timezone     string        `mapstructure:"timezone"`
	Hour         int           `mapstructure:"hour"`
	Minute       int           `mapstructure:"minute"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
}

// BillingConfig covers AWS Cost Explorer access.
type BillingConfig struct {
	Profile        string        `mapstructure:"profile"`
	Region         string        `mapstructure:"region"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

// HolidayConfig captures the public-holiday registry connectivity.
type HolidayConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	ServiceKey     string        `mapstructure:"service_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

// ExchangeConfig parameterises the currency rate service and its fallbacks.
type ExchangeConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	BaseCurrency   string        `mapstructure:"base_currency"`
	QuoteCurrency  string        `mapstructure:"quote_currency"`
	StaticRate     float64       `mapstructure:"static_rate"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

// SlackConfig defines report delivery routing.
type SlackConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	Channel        string        `mapstructure:"channel"`
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

// ReportConfig tunes report composition and chart rendering.
type ReportConfig struct {
	TopServices int `mapstructure:"top_services"`
	ChartWidth  int `mapstructure:"chart_width"`
	ChartHeight int `mapstructure:"chart_height"`
}

// PipelineConfig bounds a single invocation.
type PipelineConfig struct {
	TotalBudget     time.Duration `mapstructure:"total_budget"`
	DeliveryReserve time.Duration `mapstructure:"delivery_reserve"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COSTREPORTER")
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
	v.SetDefault("app.name", "costreporter")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("schedule.timezone", "Asia/Seoul")
	v.SetDefault("schedule.hour", 18)
	v.SetDefault("schedule.minute", 0)
	v.SetDefault("schedule.startup_delay", "0s")

	v.SetDefault("billing.region", "us-east-1")
	v.SetDefault("billing.request_timeout", "15s")
	v.SetDefault("billing.max_retries", 3)

	v.SetDefault("holiday.base_url", "http://apis.data.go.kr/B090041/openapi/service/SpcdeInfoService")
	v.SetDefault("holiday.request_timeout", "10s")
	v.SetDefault("holiday.max_retries", 3)

	v.SetDefault("exchange.base_url", "https://api.currencyapi.com")
	v.SetDefault("exchange.base_currency", "USD")
	v.SetDefault("exchange.quote_currency", "KRW")
	v.SetDefault("exchange.static_rate", 1300.0)
	v.SetDefault("exchange.request_timeout", "10s")
	v.SetDefault("exchange.max_retries", 3)

	v.SetDefault("slack.api_base", "https://slack.com/api")
	v.SetDefault("slack.request_timeout", "10s")
	v.SetDefault("slack.max_retries", 3)

	v.SetDefault("report.top_services", 10)
	v.SetDefault("report.chart_width", 1280)
	v.SetDefault("report.chart_height", 720)

	v.SetDefault("pipeline.total_budget", "2m")
	v.SetDefault("pipeline.delivery_reserve", "30s")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
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
	if c.Schedule.Hour < 0 || c.Schedule.Hour > 23 {
		return fmt.Errorf("schedule.hour must be between 0 and 23")
	}
	if c.Schedule.Minute < 0 || c.Schedule.Minute > 59 {
		return fmt.Errorf("schedule.minute must be between 0 and 59")
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone is not a valid IANA zone: %w", err)
	}
	if c.Exchange.StaticRate <= 0 {
		return fmt.Errorf("exchange.static_rate must be greater than zero")
	}
	if c.Exchange.BaseCurrency == "" || c.Exchange.QuoteCurrency == "" {
		return fmt.Errorf("exchange.base_currency and exchange.quote_currency must be configured")
	}
	if c.Report.TopServices <= 0 {
		return fmt.Errorf("report.top_services must be greater than zero")
	}
	if c.Pipeline.TotalBudget > 0 && c.Pipeline.DeliveryReserve >= c.Pipeline.TotalBudget {
		return fmt.Errorf("pipeline.delivery_reserve must leave budget for acquisition stages")
	}
	return nil
}

// Location resolves the configured reporting timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
