// Package config loads the dashboard configuration from a JSON file via
// viper. The result is an explicit Config value constructed once at startup
// and passed to every component that needs it; nothing outside this package
// reads viper directly.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FeedConfig holds the websocket endpoints of the exercise backend.
type FeedConfig struct {
	SoldierURL     string        `json:"soldierUrl" mapstructure:"soldierUrl"`
	KillFeedURL    string        `json:"killFeedUrl" mapstructure:"killFeedUrl"`
	StatsURL       string        `json:"statsUrl" mapstructure:"statsUrl"`
	ReconnectDelay time.Duration `json:"reconnectDelay" mapstructure:"reconnectDelay"`
}

// ArchiveConfig holds the tile archive source. Path wins when both are set;
// URL is fetched with progress reporting at startup.
type ArchiveConfig struct {
	Path string `json:"path" mapstructure:"path"`
	URL  string `json:"url" mapstructure:"url"`
}

// DBConfig holds session store connection settings. Postgres is preferred;
// the store falls back to SQLite at SqlitePath when Postgres is unreachable.
type DBConfig struct {
	Host       string `json:"host" mapstructure:"host"`
	Port       string `json:"port" mapstructure:"port"`
	Username   string `json:"username" mapstructure:"username"`
	Password   string `json:"password" mapstructure:"password"`
	Database   string `json:"database" mapstructure:"database"`
	SqlitePath string `json:"sqlitePath" mapstructure:"sqlitePath"`
}

// InfluxConfig holds metrics export settings.
type InfluxConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	Protocol   string `json:"protocol" mapstructure:"protocol"`
	Host       string `json:"host" mapstructure:"host"`
	Port       string `json:"port" mapstructure:"port"`
	Token      string `json:"token" mapstructure:"token"`
	Org        string `json:"org" mapstructure:"org"`
	Bucket     string `json:"bucket" mapstructure:"bucket"`
	BackupPath string `json:"backupPath" mapstructure:"backupPath"`
}

// OTelConfig holds OpenTelemetry export settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// GraylogConfig holds GELF log shipping settings.
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// ViewportConfig is the assumed client viewport for fit-zoom computation.
type ViewportConfig struct {
	Width  int `json:"width" mapstructure:"width"`
	Height int `json:"height" mapstructure:"height"`
}

// Config is the full dashboard configuration.
type Config struct {
	Listen   string         `json:"listen" mapstructure:"listen"`
	LogLevel string         `json:"logLevel" mapstructure:"logLevel"`
	LogsDir  string         `json:"logsDir" mapstructure:"logsDir"`
	Archive  ArchiveConfig  `json:"archive" mapstructure:"archive"`
	Feeds    FeedConfig     `json:"feeds" mapstructure:"feeds"`
	Viewport ViewportConfig `json:"viewport" mapstructure:"viewport"`
	DB       DBConfig       `json:"db" mapstructure:"db"`
	Influx   InfluxConfig   `json:"influx" mapstructure:"influx"`
	OTel     OTelConfig     `json:"otel" mapstructure:"otel"`
	Graylog  GraylogConfig  `json:"graylog" mapstructure:"graylog"`
}

// Load reads tacmap.cfg.json from configDir, applies defaults, and returns
// the unmarshaled configuration.
func Load(configDir string) (Config, error) {
	viper.SetDefault("listen", ":8080")
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./tacmaplogs")

	viper.SetDefault("archive.path", "")
	viper.SetDefault("archive.url", "")

	viper.SetDefault("feeds.soldierUrl", "ws://localhost:8001/ws")
	viper.SetDefault("feeds.killFeedUrl", "ws://localhost:8002/ws")
	viper.SetDefault("feeds.statsUrl", "ws://localhost:8003/ws")
	viper.SetDefault("feeds.reconnectDelay", 5*time.Second)

	viper.SetDefault("viewport.width", 1024)
	viper.SetDefault("viewport.height", 768)

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "tacmap")
	viper.SetDefault("db.sqlitePath", "./tacmap.db")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "tacmap-metrics")
	viper.SetDefault("influx.bucket", "exercise_data")
	viper.SetDefault("influx.backupPath", "./influx_backup.gz")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "tacmap")
	viper.SetDefault("otel.batchTimeout", 5*time.Second)
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", false)

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetConfigName("tacmap.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
		// No file is fine, defaults apply.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return cfg, nil
}
