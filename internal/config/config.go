// Package config loads layered YAML + environment configuration shared
// by both the manager and worker binaries, following the same
// viper-based pattern the v3 prototype server used for its own config.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every recognized configuration option across both
// binaries. A single struct is used (rather than one per binary) so the
// same YAML file and env-var prefix can drive either process; each
// binary only reads the sections it needs.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	DB      DBConfig      `mapstructure:"db"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig is the manager's listener and timing configuration.
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Secret         string        `mapstructure:"secret"`
	ListenInterval time.Duration `mapstructure:"listen_interval"`
	ListenBurst    int           `mapstructure:"listen_burst"`
	ReportDuration time.Duration `mapstructure:"report_duration"`
	EmptyLiveTime  time.Duration `mapstructure:"empty_live_time"`
	VirtualNodes   int           `mapstructure:"virtual_nodes"`
}

// WorkerConfig is the worker's listener and broadcast configuration.
type WorkerConfig struct {
	AdvertiseAddr   string `mapstructure:"advertise_addr"`
	BindAddr        string `mapstructure:"bind_addr"`
	ManagerAddr     string `mapstructure:"manager_addr"`
	BroadcastBuffer int    `mapstructure:"broadcast_buffer"`
	ClientRPS       float64 `mapstructure:"client_rps"`
	ClientBurst     int    `mapstructure:"client_burst"`
}

// DBConfig configures the Postgres connection backing the manager's user
// and channel catalog.
type DBConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	DBName         string `mapstructure:"dbname"`
	MaxConnections int    `mapstructure:"max_connections"`
	Pepper         string `mapstructure:"pepper"`
}

// LoggingConfig controls the zerolog sink.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DSN returns a lib/pq-compatible connection string for this DBConfig.
func (d DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.DBName,
	)
}

// Load reads configuration for the given component ("manager" or
// "worker"), used as the config file's base name and the environment
// variable prefix (upper-cased). A missing config file is not an error —
// defaults plus environment overrides are enough to run.
func Load(component string) (Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 9090)
	v.SetDefault("server.secret", "change-me")
	v.SetDefault("server.listen_interval", time.Second)
	v.SetDefault("server.listen_burst", 1)
	v.SetDefault("server.report_duration", 3*time.Second)
	v.SetDefault("server.empty_live_time", 30*time.Second)
	v.SetDefault("server.virtual_nodes", 10)

	v.SetDefault("worker.advertise_addr", "localhost:9191")
	v.SetDefault("worker.bind_addr", ":9191")
	v.SetDefault("worker.manager_addr", "localhost:9090")
	v.SetDefault("worker.broadcast_buffer", 32)
	v.SetDefault("worker.client_rps", 20)
	v.SetDefault("worker.client_burst", 50)

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "chat")
	v.SetDefault("db.password", "")
	v.SetDefault("db.dbname", "chat")
	v.SetDefault("db.max_connections", 5)
	v.SetDefault("db.pepper", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetConfigName(component)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix(component)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional: a deployment may run entirely off
	// defaults plus environment overrides.
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, fmt.Errorf("config: read %s.yaml: %w", component, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if cfg.Server.VirtualNodes <= 0 {
		cfg.Server.VirtualNodes = 10
	}
	if cfg.Worker.BroadcastBuffer <= 0 {
		cfg.Worker.BroadcastBuffer = 32
	}

	return cfg, nil
}
