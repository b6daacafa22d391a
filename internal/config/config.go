package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"ScanCleanup/internal/cleanup/domain"
	"ScanCleanup/pkg/validator"
)

const envPrefix = "SCANCLEANUP"

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Console  ConsoleConfig  `mapstructure:"console"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup"`
	Probe    ProbeConfig    `mapstructure:"probe"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Server   ServerConfig   `mapstructure:"server"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

type ConsoleConfig struct {
	Host               string        `mapstructure:"host" validate:"required,console_host"`
	Port               int           `mapstructure:"port" validate:"min=1,max=65535"`
	Username           string        `mapstructure:"username" validate:"required"`
	Password           string        `mapstructure:"password" validate:"required"`
	APIPath            string        `mapstructure:"api_path"`
	CACertPath         string        `mapstructure:"ca_cert_path"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	// CommandRate limits resume/stop commands per second, 0 disables the limit.
	CommandRate float64 `mapstructure:"command_rate" validate:"gte=0"`
}

type CleanupConfig struct {
	QueueCeiling     int           `mapstructure:"queue_ceiling" validate:"gte=0"`
	Headroom         int           `mapstructure:"headroom" validate:"gte=0"`
	Interval         time.Duration `mapstructure:"interval" validate:"gt=0"`
	RetryBackoff     time.Duration `mapstructure:"retry_backoff" validate:"gt=0"`
	IdlePollInterval time.Duration `mapstructure:"idle_poll_interval" validate:"gt=0"`
}

type ProbeConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Attempts  int           `mapstructure:"attempts" validate:"gte=1"`
	Interval  time.Duration `mapstructure:"interval" validate:"gt=0"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Path      string        `mapstructure:"path"`
	DNSServer string        `mapstructure:"dns_server"`
}

type ScheduleConfig struct {
	Cron string `mapstructure:"cron" validate:"cron"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
	Output string `mapstructure:"output"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns" validate:"gte=0"`
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	ReportTTL    time.Duration `mapstructure:"report_ttl" validate:"gte=0"`
	SiteCacheTTL time.Duration `mapstructure:"site_cache_ttl" validate:"gte=0"`
}

type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// legacyKeys maps the flat keys of the old conf/nexpose.yaml onto nested keys.
// Values marked seconds are plain integers in the legacy file.
var legacyKeys = []struct {
	legacy  string
	key     string
	seconds bool
}{
	{"hostname", "console.host", false},
	{"port", "console.port", false},
	{"username", "console.username", false},
	{"passwordkey", "console.password", false},
	{"nexposeajaxtimeout", "console.request_timeout", true},
	{"cleanupqueue", "cleanup.queue_ceiling", false},
	{"cleanupwaittime", "cleanup.interval", true},
	{"cleanupwaittime", "cleanup.retry_backoff", true},
	{"servicetimeout", "probe.attempts", false},
}

// Load reads the configuration from path, or from configs/config.yaml when
// path is empty, then applies SCANCLEANUP_* environment overrides. Every
// failure wraps domain.ErrConfiguration.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			slog.Warn("config file not found, using defaults and environment")
		} else {
			return nil, fmt.Errorf("%w: error reading config file: %v", domain.ErrConfiguration, err)
		}
	}

	if err := applyLegacyKeys(v); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %v", domain.ErrConfiguration, err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("%w: config validation failed: %v", domain.ErrConfiguration, err)
	}

	slog.Debug("configuration loaded successfully", "file", v.ConfigFileUsed())
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "scancleanup")
	v.SetDefault("app.version", "dev")

	// console defaults
	v.SetDefault("console.host", "")
	v.SetDefault("console.port", 3780)
	v.SetDefault("console.username", "")
	v.SetDefault("console.password", "")
	v.SetDefault("console.api_path", "/api/1.1/xml")
	v.SetDefault("console.ca_cert_path", "")
	v.SetDefault("console.insecure_skip_verify", false)
	v.SetDefault("console.request_timeout", "60s")
	v.SetDefault("console.command_rate", 0)

	// cleanup defaults
	v.SetDefault("cleanup.queue_ceiling", 5)
	v.SetDefault("cleanup.headroom", 1)
	v.SetDefault("cleanup.interval", "5m")
	v.SetDefault("cleanup.retry_backoff", "30s")
	v.SetDefault("cleanup.idle_poll_interval", "15s")

	// probe defaults
	v.SetDefault("probe.enabled", false)
	v.SetDefault("probe.attempts", 20)
	v.SetDefault("probe.interval", "30s")
	v.SetDefault("probe.timeout", "10s")
	v.SetDefault("probe.path", "/login.html")
	v.SetDefault("probe.dns_server", "")

	v.SetDefault("schedule.cron", "")

	// logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")

	// database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "scancleanup")
	v.SetDefault("database.password", "scancleanup")
	v.SetDefault("database.dbname", "scancleanup")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 4)

	// redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "scancleanup")
	v.SetDefault("redis.report_ttl", "24h")
	v.SetDefault("redis.site_cache_ttl", "30m")

	// status server defaults
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 9180)
	v.SetDefault("server.shutdown_timeout", "30s")
}

// applyLegacyKeys copies legacy flat keys onto nested keys that were neither
// set in the file nor through the environment.
func applyLegacyKeys(v *viper.Viper) error {
	for _, lk := range legacyKeys {
		if !v.InConfig(lk.legacy) || v.InConfig(lk.key) {
			continue
		}
		if _, ok := os.LookupEnv(envName(lk.key)); ok {
			continue
		}

		value := v.Get(lk.legacy)
		if lk.seconds {
			secs, err := strconv.Atoi(fmt.Sprint(value))
			if err != nil {
				return fmt.Errorf("%w: legacy key %s must be a number of seconds", domain.ErrConfiguration, lk.legacy)
			}
			value = time.Duration(secs) * time.Second
		}
		v.Set(lk.key, value)
	}
	return nil
}

func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func validateConfig(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return err
	}

	if cfg.Server.Enabled && (cfg.Server.Port < 1 || cfg.Server.Port > 65535) {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}

	if cfg.Database.Enabled {
		if cfg.Database.Host == "" {
			return errors.New("database host is required")
		}
		if cfg.Database.DBName == "" {
			return errors.New("database name is required")
		}
	}

	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return errors.New("redis address is required")
	}

	if cfg.Console.InsecureSkipVerify {
		slog.Warn("console TLS verification is disabled")
	}

	switch {
	case cfg.Cleanup.QueueCeiling == 0:
		slog.Warn("cleanup queue ceiling is 0, paused scans will never be resumed and runs will not drain")
	case cfg.Cleanup.Headroom >= cfg.Cleanup.QueueCeiling:
		slog.Warn("cleanup headroom leaves no queue slots, no scan will be resumed",
			"queue_ceiling", cfg.Cleanup.QueueCeiling,
			"headroom", cfg.Cleanup.Headroom,
		)
	}

	return nil
}

// BaseURL returns the console root URL.
func (c *ConsoleConfig) BaseURL() string {
	return "https://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

func (r *RedisConfig) GetRedisOptions() *redis.Options {
	return &redis.Options{
		Addr:            r.Addr,
		Password:        r.Password,
		DB:              r.DB,
		DisableIdentity: true,
	}
}
