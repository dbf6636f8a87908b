package config

import (
	"errors"
	"fmt"
	"net/mail"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/common/model"
	"github.com/spf13/viper"

	"github.com/illenko/usagewatch/pkg/models"
)

const envPrefix = "USAGEWATCH"

type Config struct {
	Storage       StorageConfig       `mapstructure:"storage"`
	Thresholds    ThresholdsConfig    `mapstructure:"thresholds"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	SMTP          SMTPConfig          `mapstructure:"smtp"`
	Collection    CollectionConfig    `mapstructure:"collection"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Server        ServerConfig        `mapstructure:"server"`
	Log           LogConfig           `mapstructure:"log"`
}

type StorageConfig struct {
	Path      string        `mapstructure:"path"`
	Retention time.Duration `mapstructure:"retention"`
}

// ThresholdConfig holds the file defaults for one metric. Values stored in
// the settings table take precedence.
type ThresholdConfig struct {
	Capacity     float64 `mapstructure:"capacity"`
	WarningLevel float64 `mapstructure:"warning_level"`
}

type ThresholdsConfig struct {
	Disk     ThresholdConfig `mapstructure:"disk"`
	Users    ThresholdConfig `mapstructure:"users"`
	Users90d ThresholdConfig `mapstructure:"users_90d"`
}

func (t ThresholdsConfig) For(metric models.MetricType) models.ThresholdConfig {
	var c ThresholdConfig
	switch metric {
	case models.MetricDisk:
		c = t.Disk
	case models.MetricUsers:
		c = t.Users
	case models.MetricUsers90d:
		c = t.Users90d
	}
	return models.ThresholdConfig{Capacity: c.Capacity, WarningLevel: c.WarningLevel}
}

type NotificationsConfig struct {
	Recipients    []string `mapstructure:"recipients"`
	Timezone      string   `mapstructure:"timezone"`
	SubjectPrefix string   `mapstructure:"subject_prefix"`
	SiteName      string   `mapstructure:"site_name"`
}

// Location resolves the configured time zone. "Local" and an empty value use
// the host zone; an unknown zone falls back to UTC.
func (n NotificationsConfig) Location() *time.Location {
	if n.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(n.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// Enabled is false when no relay is configured; mail is then only logged.
func (s SMTPConfig) Enabled() bool {
	return s.Host != ""
}

type PrometheusConfig struct {
	URL           string        `mapstructure:"url"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	Timeout       time.Duration `mapstructure:"timeout"`
	UsersQuery    string        `mapstructure:"users_query"`
	Users90dQuery string        `mapstructure:"users_90d_query"`
}

type CollectionConfig struct {
	DiskPath      string           `mapstructure:"disk_path"`
	DiskInterval  time.Duration    `mapstructure:"disk_interval"`
	UsersInterval time.Duration    `mapstructure:"users_interval"`
	Prometheus    PrometheusConfig `mapstructure:"prometheus"`
}

type SchedulerConfig struct {
	CheckInterval   time.Duration `mapstructure:"check_interval"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	TaskTimeout     time.Duration `mapstructure:"task_timeout"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	Host           string        `mapstructure:"host"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads path (or ./config.yaml), a .env file next to the working
// directory and USAGEWATCH_* environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" || ConfigFileExists(path) {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationHook,
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// durationHook decodes Prometheus-style durations so retention can be
// written as "180d".
func durationHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	d, err := model.ParseDuration(data.(string))
	if err != nil {
		return nil, err
	}
	return time.Duration(d), nil
}

func setDefaults(v *viper.Viper) {
	d := defaultConfig()

	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.retention", "180d")
	v.SetDefault("thresholds.disk.capacity", d.Thresholds.Disk.Capacity)
	v.SetDefault("thresholds.disk.warning_level", d.Thresholds.Disk.WarningLevel)
	v.SetDefault("thresholds.users.capacity", d.Thresholds.Users.Capacity)
	v.SetDefault("thresholds.users.warning_level", d.Thresholds.Users.WarningLevel)
	v.SetDefault("thresholds.users_90d.capacity", d.Thresholds.Users90d.Capacity)
	v.SetDefault("thresholds.users_90d.warning_level", d.Thresholds.Users90d.WarningLevel)
	v.SetDefault("notifications.recipients", d.Notifications.Recipients)
	v.SetDefault("notifications.timezone", d.Notifications.Timezone)
	v.SetDefault("notifications.subject_prefix", d.Notifications.SubjectPrefix)
	v.SetDefault("notifications.site_name", d.Notifications.SiteName)
	v.SetDefault("smtp.host", d.SMTP.Host)
	v.SetDefault("smtp.port", d.SMTP.Port)
	v.SetDefault("smtp.username", d.SMTP.Username)
	v.SetDefault("smtp.password", d.SMTP.Password)
	v.SetDefault("smtp.from", d.SMTP.From)
	v.SetDefault("collection.disk_path", d.Collection.DiskPath)
	v.SetDefault("collection.disk_interval", "1h")
	v.SetDefault("collection.users_interval", "1h")
	v.SetDefault("collection.prometheus.url", d.Collection.Prometheus.URL)
	v.SetDefault("collection.prometheus.username", "")
	v.SetDefault("collection.prometheus.password", "")
	v.SetDefault("collection.prometheus.timeout", "30s")
	v.SetDefault("collection.prometheus.users_query", d.Collection.Prometheus.UsersQuery)
	v.SetDefault("collection.prometheus.users_90d_query", d.Collection.Prometheus.Users90dQuery)
	v.SetDefault("scheduler.check_interval", "15m")
	v.SetDefault("scheduler.cleanup_interval", "24h")
	v.SetDefault("scheduler.task_timeout", "5m")
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.rate_limit", d.Server.RateLimit)
	v.SetDefault("server.rate_burst", d.Server.RateBurst)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

func defaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Path:      "./data/usagewatch.db",
			Retention: 180 * 24 * time.Hour,
		},
		Thresholds: ThresholdsConfig{
			Disk:     ThresholdConfig{WarningLevel: 80},
			Users:    ThresholdConfig{WarningLevel: 80},
			Users90d: ThresholdConfig{WarningLevel: 80},
		},
		Notifications: NotificationsConfig{
			Recipients:    []string{},
			Timezone:      "Local",
			SubjectPrefix: "[usagewatch]",
			SiteName:      "LMS",
		},
		SMTP: SMTPConfig{
			Port: 587,
			From: "usagewatch@localhost",
		},
		Collection: CollectionConfig{
			DiskPath:      "/",
			DiskInterval:  time.Hour,
			UsersInterval: time.Hour,
			Prometheus: PrometheusConfig{
				URL:           "http://localhost:9090",
				Timeout:       30 * time.Second,
				UsersQuery:    "max(lms_active_users_1d)",
				Users90dQuery: "max(lms_active_users_90d)",
			},
		},
		Scheduler: SchedulerConfig{
			CheckInterval:   15 * time.Minute,
			CleanupInterval: 24 * time.Hour,
			TaskTimeout:     5 * time.Minute,
		},
		Server: ServerConfig{
			Port:           8080,
			Host:           "0.0.0.0",
			RequestTimeout: 30 * time.Second,
			RateLimit:      5,
			RateBurst:      10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

func (c *Config) Validate() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Storage.Retention <= 0 {
		return fmt.Errorf("storage.retention must be positive")
	}
	for _, t := range models.AllMetrics {
		th := c.Thresholds.For(t)
		if th.Capacity < 0 {
			return fmt.Errorf("thresholds.%s.capacity must not be negative", t)
		}
		if th.WarningLevel < 0 || th.WarningLevel > 100 {
			return fmt.Errorf("thresholds.%s.warning_level must be between 0 and 100", t)
		}
	}
	for _, r := range c.Notifications.Recipients {
		if _, err := mail.ParseAddress(r); err != nil {
			return fmt.Errorf("notifications.recipients: invalid address %q", r)
		}
	}
	if _, err := time.LoadLocation(c.Notifications.Timezone); err != nil {
		return fmt.Errorf("notifications.timezone: %w", err)
	}
	if c.SMTP.Enabled() && (c.SMTP.Port < 1 || c.SMTP.Port > 65535) {
		return fmt.Errorf("smtp.port must be between 1 and 65535")
	}
	if c.Collection.DiskInterval <= 0 || c.Collection.UsersInterval <= 0 {
		return fmt.Errorf("collection intervals must be positive")
	}
	if c.Scheduler.CheckInterval <= 0 || c.Scheduler.CleanupInterval <= 0 {
		return fmt.Errorf("scheduler intervals must be positive")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	return nil
}

func ConfigFileExists(path string) bool {
	if path == "" {
		path = "config.yaml"
	}
	_, err := os.Stat(path)
	return err == nil
}
