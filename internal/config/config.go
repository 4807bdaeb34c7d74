package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Forecast   ForecastConfig   `yaml:"forecast" mapstructure:"forecast"`
	Import     ImportConfig     `yaml:"import" mapstructure:"import"`
	Snapshot   SnapshotConfig   `yaml:"snapshot" mapstructure:"snapshot"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
}

// StoreConfig configures the database backend. Driver selects "sqlite" or
// "postgres"; Path applies to sqlite, DatabaseURL to postgres.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ForecastConfig holds defaults applied when a command or request does not
// set its own period or filters.
type ForecastConfig struct {
	DefaultPeriod  string `yaml:"default_period" mapstructure:"default_period"`
	ExcludeOverdue bool   `yaml:"exclude_overdue" mapstructure:"exclude_overdue"`
}

// ImportConfig configures the opportunity import command.
type ImportConfig struct {
	Source string    `yaml:"source" mapstructure:"source"`
	FTP    FTPConfig `yaml:"ftp" mapstructure:"ftp"`
}

// FTPConfig holds credentials for the FTP drop used by nightly CRM exports.
type FTPConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Path     string `yaml:"path" mapstructure:"path"`
}

// SnapshotConfig configures scheduled forecast snapshots. Schedule is a
// six-field cron expression (seconds first).
type SnapshotConfig struct {
	Schedule string `yaml:"schedule" mapstructure:"schedule"`
	Period   string `yaml:"period" mapstructure:"period"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// NotionConfig holds the Notion API token and target database ID.
type NotionConfig struct {
	Token      string `yaml:"token" mapstructure:"token"`
	ForecastDB string `yaml:"forecast_db" mapstructure:"forecast_db"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FORECAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "forecast.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("forecast.default_period", "this_quarter")
	v.SetDefault("forecast.exclude_overdue", false)
	v.SetDefault("import.source", "csv")
	v.SetDefault("snapshot.schedule", "0 0 18 * * *")
	v.SetDefault("snapshot.period", "this_quarter")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the fields required by the given command mode are
// present. Modes: store, serve, import, salesforce, publish, insight,
// snapshot.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "store":
		errs = append(errs, c.storeErrs()...)
	case "serve":
		errs = append(errs, c.storeErrs()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		} else if c.Server.Port > 65535 {
			errs = append(errs, "server.port must be <= 65535")
		}
	case "import":
		errs = append(errs, c.storeErrs()...)
		if c.Import.Source == "ftp" {
			if c.Import.FTP.Host == "" {
				errs = append(errs, "import.ftp.host is required")
			}
			if c.Import.FTP.Path == "" {
				errs = append(errs, "import.ftp.path is required")
			}
		}
	case "salesforce":
		errs = append(errs, c.storeErrs()...)
		if c.Salesforce.ClientID == "" {
			errs = append(errs, "salesforce.client_id is required")
		}
		if c.Salesforce.Username == "" {
			errs = append(errs, "salesforce.username is required")
		}
		if c.Salesforce.KeyPath == "" {
			errs = append(errs, "salesforce.key_path is required")
		}
	case "publish":
		errs = append(errs, c.storeErrs()...)
		if c.Notion.Token == "" {
			errs = append(errs, "notion.token is required")
		}
		if c.Notion.ForecastDB == "" {
			errs = append(errs, "notion.forecast_db is required")
		}
	case "insight":
		errs = append(errs, c.storeErrs()...)
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	case "snapshot":
		errs = append(errs, c.storeErrs()...)
		if c.Snapshot.Schedule == "" {
			errs = append(errs, "snapshot.schedule is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) storeErrs() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, "store.path is required")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	return errs
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
