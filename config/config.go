// Package config loads the process configuration once at startup.
//
// Sources, lowest precedence first: built-in defaults, the JSON config file,
// a .env file in the working directory, then XIANYU_* environment variables
// (XIANYU_API_KEY, XIANYU_STORE_DRIVER, ...).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/coreybb/xianyu-autodeliver/datastore"
	"github.com/coreybb/xianyu-autodeliver/models"
	"github.com/coreybb/xianyu-autodeliver/planresolver"
)

const (
	DefaultConfigFile = "xianyu_config.json"
	// ConfigPathEnv overrides the config file location when no path is passed.
	ConfigPathEnv = "XIANYU_CONFIG"
	envPrefix     = "XIANYU"
	dotEnvFile    = ".env"
)

// Config is immutable after Load returns.
type Config struct {
	APIKey              string
	APIBaseURL          string
	CheckInterval       time.Duration
	Headless            bool
	BrowserDataDir      string
	CallTimeout         time.Duration
	SendInterval        time.Duration
	MaxDeliveryAttempts int
	// HTTPAddr is the operator listener; empty disables it.
	HTTPAddr    string
	Store       StoreConfig
	Marketplace MarketplaceConfig
	Log         LogConfig
	PlanRules   []PlanRule
}

type StoreConfig struct {
	Driver string // sqlite, postgres, jsonfile
	DSN    string // file path, or a postgres connection string
}

type MarketplaceConfig struct {
	OrdersURL string
	HomeURL   string
	NoSandbox bool
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // comma separated: stdout, stderr, or file paths
}

// PlanRule maps a title substring to a plan length in months.
type PlanRule struct {
	Pattern string `mapstructure:"pattern"`
	Months  int    `mapstructure:"months"`
}

// Load reads the configuration. An empty path falls back to $XIANYU_CONFIG,
// then to xianyu_config.json. A missing config file is not an error; a
// missing api key is.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading %s: %w", dotEnvFile, err)
	}

	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path == "" {
		path = DefaultConfigFile
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		APIKey:              v.GetString("api_key"),
		APIBaseURL:          v.GetString("api_base_url"),
		CheckInterval:       time.Duration(v.GetInt("check_interval")) * time.Second,
		Headless:            v.GetBool("headless"),
		BrowserDataDir:      v.GetString("browser_data_dir"),
		CallTimeout:         v.GetDuration("call_timeout"),
		SendInterval:        v.GetDuration("send_interval"),
		MaxDeliveryAttempts: v.GetInt("max_delivery_attempts"),
		HTTPAddr:            v.GetString("http_addr"),
		Store: StoreConfig{
			Driver: v.GetString("store.driver"),
			DSN:    v.GetString("store.dsn"),
		},
		Marketplace: MarketplaceConfig{
			OrdersURL: v.GetString("marketplace.orders_url"),
			HomeURL:   v.GetString("marketplace.home_url"),
			NoSandbox: v.GetBool("marketplace.no_sandbox"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
	}
	if err := v.UnmarshalKey("plan_rules", &cfg.PlanRules); err != nil {
		return nil, fmt.Errorf("invalid plan_rules: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults covers keys whose zero value is a legitimate setting.
func setDefaults(v *viper.Viper) {
	v.SetDefault("headless", true)
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("max_delivery_attempts", 0)
}

func applyDefaults(cfg *Config) {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "http://localhost:5000"
	}
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 300 * time.Second
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.SendInterval == 0 {
		cfg.SendInterval = 10 * time.Second
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = datastore.DriverSQLite
	}
	if cfg.Store.DSN == "" && cfg.Store.Driver != datastore.DriverPostgres {
		cfg.Store.DSN = "processed_orders.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
}

func (c *Config) validate() error {
	var errs []error

	if c.APIKey == "" {
		errs = append(errs, errors.New("api_key is required (set it in the config file or XIANYU_API_KEY)"))
	}
	if u, err := url.Parse(c.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("api_base_url %q is not an absolute URL", c.APIBaseURL))
	}
	if c.CheckInterval < 0 {
		errs = append(errs, errors.New("check_interval must be positive"))
	}
	if c.CallTimeout < 0 || c.SendInterval < 0 {
		errs = append(errs, errors.New("call_timeout and send_interval must not be negative"))
	}
	if c.MaxDeliveryAttempts < 0 {
		errs = append(errs, errors.New("max_delivery_attempts must not be negative"))
	}

	switch c.Store.Driver {
	case datastore.DriverSQLite, datastore.DriverJSONFile:
	case datastore.DriverPostgres:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}

	for i, rule := range c.PlanRules {
		if strings.TrimSpace(rule.Pattern) == "" {
			errs = append(errs, fmt.Errorf("plan_rules[%d]: pattern is empty", i))
		}
		if _, ok := models.IsValidPlan(rule.Months); !ok {
			errs = append(errs, fmt.Errorf("plan_rules[%d]: %d months is not a known plan", i, rule.Months))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// ResolverRules converts the configured plan rules for planresolver.New.
func (c *Config) ResolverRules() []planresolver.Rule {
	rules := make([]planresolver.Rule, 0, len(c.PlanRules))
	for _, r := range c.PlanRules {
		rules = append(rules, planresolver.Rule{Pattern: r.Pattern, Plan: models.PlanDuration(r.Months)})
	}
	return rules
}
