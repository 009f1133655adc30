// Package config loads and manages the application configuration.
// Backed by viper: YAML config file with environment variable overrides.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`   // HTTP server
	MySQL    MySQLConfig    `mapstructure:"mysql"`    // MySQL
	Redis    RedisConfig    `mapstructure:"redis"`    // Redis
	JWT      JWTConfig      `mapstructure:"jwt"`      // JWT auth
	Log      LogConfig      `mapstructure:"log"`      // logging
	Tracking TrackingConfig `mapstructure:"tracking"` // trip tracking engine
	Geocode  GeocodeConfig  `mapstructure:"geocode"`  // reverse geocoding
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int      `mapstructure:"port"` // listen port, default 8080
	Mode string   `mapstructure:"mode"` // gin mode: debug / release
	CORS []string `mapstructure:"cors"` // allowed CORS origins
}

// MySQLConfig holds the MySQL connection settings.
type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	Charset      string `mapstructure:"charset"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxLifetime  int    `mapstructure:"max_lifetime"` // seconds
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// JWTConfig holds JWT auth settings.
type JWTConfig struct {
	Secret        string        `mapstructure:"secret"`         // signing key, at least 32 chars
	AccessExpire  time.Duration `mapstructure:"access_expire"`  // access token lifetime
	RefreshExpire time.Duration `mapstructure:"refresh_expire"` // refresh token lifetime
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug/info/warn/error
	Format string `mapstructure:"format"` // json/text
}

// TrackingConfig holds the tunable constants of the trip tracking engine.
// Keeping them in configuration (instead of package-level constants) allows
// per-deployment tuning and deterministic tests.
type TrackingConfig struct {
	// InitialRadiusFloorKm is the smallest allowed starting bubble radius.
	InitialRadiusFloorKm float64 `mapstructure:"initial_radius_floor_km"`

	// InitialRadiusMarginKm is added to the straight-line distance when
	// computing the starting radius R0.
	InitialRadiusMarginKm float64 `mapstructure:"initial_radius_margin_km"`

	// MinRadiusKm is the absolute floor the bubble can never shrink below.
	MinRadiusKm float64 `mapstructure:"min_radius_km"`

	// ShrinkStepKm is how much the bubble shrinks per elapsed interval.
	ShrinkStepKm float64 `mapstructure:"shrink_step_km"`

	// ShrinkIntervalMin is the shrink interval in minutes.
	ShrinkIntervalMin float64 `mapstructure:"shrink_interval_min"`

	// SafetyMarginKm keeps the bubble at least this far beyond the agent's
	// current distance to the destination, so time decay alone can never
	// flag a still-distant agent as out of bounds.
	SafetyMarginKm float64 `mapstructure:"safety_margin_km"`

	// LateralAllowanceRatio defines the corridor half-width as a fraction
	// of the current bubble radius.
	LateralAllowanceRatio float64 `mapstructure:"lateral_allowance_ratio"`

	// HardDeviationKm is the fixed escalation boundary between soft and
	// hard deviation alerts.
	HardDeviationKm float64 `mapstructure:"hard_deviation_km"`

	// ResumeRateLimit and ResumeRateWindow bound how often a caller may
	// resume the same trip.
	ResumeRateLimit  int           `mapstructure:"resume_rate_limit"`
	ResumeRateWindow time.Duration `mapstructure:"resume_rate_window"`

	// BroadcastDailyLimit caps landlord broadcast alerts per student per day.
	BroadcastDailyLimit int `mapstructure:"broadcast_daily_limit"`
}

// GeocodeConfig holds reverse-geocoding settings.
type GeocodeConfig struct {
	Endpoint  string        `mapstructure:"endpoint"`   // Nominatim reverse endpoint
	UserAgent string        `mapstructure:"user_agent"` // required by the Nominatim usage policy
	Timeout   time.Duration `mapstructure:"timeout"`
}

// Load reads the configuration from the given directory.
// Environment variables override file values (e.g. MYSQL_HOST -> mysql.host).
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindEnvVariables(v)
	setDefaults(v)

	// A missing config file is fine; defaults and env vars still apply.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// bindEnvVariables binds environment variables to configuration keys.
func bindEnvVariables(v *viper.Viper) {
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.mode", "SERVER_MODE")

	v.BindEnv("mysql.host", "MYSQL_HOST")
	v.BindEnv("mysql.port", "MYSQL_PORT")
	v.BindEnv("mysql.username", "MYSQL_USERNAME")
	v.BindEnv("mysql.password", "MYSQL_PASSWORD")
	v.BindEnv("mysql.database", "MYSQL_DATABASE")

	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.username", "REDIS_USERNAME")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	v.BindEnv("jwt.secret", "JWT_SECRET")

	v.BindEnv("geocode.endpoint", "GEOCODE_ENDPOINT")
}

// setDefaults sets fallback values used when the config file omits a key.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors", []string{"*"})

	v.SetDefault("mysql.host", "localhost")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.charset", "utf8mb4")
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.max_open_conns", 100)
	v.SetDefault("mysql.max_lifetime", 3600)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 100)

	v.SetDefault("jwt.access_expire", "24h")
	v.SetDefault("jwt.refresh_expire", "168h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("tracking.initial_radius_floor_km", 2.0)
	v.SetDefault("tracking.initial_radius_margin_km", 2.0)
	v.SetDefault("tracking.min_radius_km", 0.3)
	v.SetDefault("tracking.shrink_step_km", 0.5)
	v.SetDefault("tracking.shrink_interval_min", 30.0)
	v.SetDefault("tracking.safety_margin_km", 0.2)
	v.SetDefault("tracking.lateral_allowance_ratio", 0.2)
	v.SetDefault("tracking.hard_deviation_km", 1.0)
	v.SetDefault("tracking.resume_rate_limit", 2)
	v.SetDefault("tracking.resume_rate_window", "30s")
	v.SetDefault("tracking.broadcast_daily_limit", 2)

	v.SetDefault("geocode.endpoint", "https://nominatim.openstreetmap.org/reverse")
	v.SetDefault("geocode.user_agent", "kleno-server")
	v.SetDefault("geocode.timeout", "10s")
}
