package config

import (
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	CAD      CADConfig      `yaml:"cad" mapstructure:"cad"`
	Telegram TelegramConfig `yaml:"telegram" mapstructure:"telegram"`
	Filter   FilterConfig   `yaml:"filter" mapstructure:"filter"`
	Watch    WatchConfig    `yaml:"watch" mapstructure:"watch"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Notify   NotifyConfig   `yaml:"notify" mapstructure:"notify"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// CADConfig configures access to the CHP CAD traffic page.
type CADConfig struct {
	PageURL      string        `yaml:"page_url" mapstructure:"page_url"`
	Centers      []string      `yaml:"centers" mapstructure:"centers"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries   int           `yaml:"max_retries" mapstructure:"max_retries"`
	RateLimit    float64       `yaml:"rate_limit" mapstructure:"rate_limit"`
	FetchDetails bool          `yaml:"fetch_details" mapstructure:"fetch_details"`
}

// TelegramConfig holds Bot API credentials and the destination chat.
type TelegramConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	ChatID string `yaml:"chat_id" mapstructure:"chat_id"`
}

// FilterConfig selects which incident types are forwarded. An empty
// pattern forwards everything.
type FilterConfig struct {
	Types string `yaml:"types" mapstructure:"types"`
}

// WatchConfig configures the poll loop.
type WatchConfig struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
	Jitter   time.Duration `yaml:"jitter" mapstructure:"jitter"`
}

// StoreConfig configures the seen-incident store backend.
type StoreConfig struct {
	Driver      string        `yaml:"driver" mapstructure:"driver"`
	Path        string        `yaml:"path" mapstructure:"path"`
	DatabaseURL string        `yaml:"database_url" mapstructure:"database_url"`
	Retention   time.Duration `yaml:"retention" mapstructure:"retention"`
}

// NotifyConfig configures message rendering.
type NotifyConfig struct {
	MaxDetailChars int  `yaml:"max_detail_chars" mapstructure:"max_detail_chars"`
	DisablePreview bool `yaml:"disable_preview" mapstructure:"disable_preview"`
}

// ServerConfig configures the optional status HTTP server.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Listen  string `yaml:"listen" mapstructure:"listen"`
	Recent  int    `yaml:"recent" mapstructure:"recent"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// fileUsed records the config file consumed by the last Load.
var fileUsed string

// FileUsed returns the path of the config file the last Load read, or ""
// when configuration came from environment and defaults only.
func FileUsed() string {
	return fileUsed
}

// Load reads configuration from file and environment. An empty cfgFile
// searches the working directory, $HOME/.chp-watch and /etc/chp-watch.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.chp-watch")
		v.AddConfigPath("/etc/chp-watch")
	}

	// Environment
	v.SetEnvPrefix("CHP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("cad.page_url", "https://cad.chp.ca.gov/Traffic.aspx")
	v.SetDefault("cad.centers", []string{})
	v.SetDefault("cad.timeout", "30s")
	v.SetDefault("cad.max_retries", 4)
	v.SetDefault("cad.rate_limit", 0.5)
	v.SetDefault("cad.fetch_details", true)
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("filter.types", "")
	v.SetDefault("watch.interval", "90s")
	v.SetDefault("watch.jitter", "15s")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.path", "chp-watch.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.retention", "24h")
	v.SetDefault("notify.max_detail_chars", 700)
	v.SetDefault("notify.disable_preview", true)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.listen", ":8787")
	v.SetDefault("server.recent", 50)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional unless explicitly named)
	fileUsed = ""
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	} else {
		fileUsed = v.ConfigFileUsed()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks settings every command depends on. Telegram credentials
// are checked separately so read-only commands work without them.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return eris.Errorf("config: unsupported store driver %q", c.Store.Driver)
	}
	if c.Watch.Interval <= 0 {
		return eris.New("config: watch.interval must be positive")
	}
	if c.Watch.Jitter < 0 {
		return eris.New("config: watch.jitter must not be negative")
	}
	if c.CAD.RateLimit <= 0 {
		return eris.New("config: cad.rate_limit must be positive")
	}
	if c.Notify.MaxDetailChars < 0 {
		return eris.New("config: notify.max_detail_chars must not be negative")
	}
	if c.Filter.Types != "" {
		if _, err := regexp.Compile("(?i)" + c.Filter.Types); err != nil {
			return eris.Wrap(err, "config: compile filter.types")
		}
	}
	return nil
}

// RequireTelegram verifies dispatch credentials are present.
func (c *Config) RequireTelegram() error {
	if c.Telegram.Token == "" {
		return eris.New("config: telegram.token is required (set CHP_TELEGRAM_TOKEN)")
	}
	if c.Telegram.ChatID == "" {
		return eris.New("config: telegram.chat_id is required (set CHP_TELEGRAM_CHAT_ID)")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
