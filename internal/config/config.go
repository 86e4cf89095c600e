// Package config loads server settings from a YAML file, a .env file and
// VOIDECHO_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// VOIDECHO_DATABASE_DRIVER.
const EnvPrefix = "VOIDECHO"

// Config is the root of the server configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Game     GameConfig     `mapstructure:"game"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Replay   ReplayConfig   `mapstructure:"replay"`
}

// ServerConfig covers the listeners.
type ServerConfig struct {
	GRPC            GRPCConfig      `mapstructure:"grpc"`
	WebSocket       WebSocketConfig `mapstructure:"websocket"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

type GRPCConfig struct {
	Address              string `mapstructure:"address" validate:"required"`
	MaxConcurrentStreams int    `mapstructure:"max_concurrent_streams" validate:"gt=0"`
}

type WebSocketConfig struct {
	Address         string        `mapstructure:"address" validate:"required"`
	Path            string        `mapstructure:"path" validate:"required,startswith=/"`
	ReadBufferSize  int           `mapstructure:"read_buffer_size" validate:"gt=0"`
	WriteBufferSize int           `mapstructure:"write_buffer_size" validate:"gt=0"`
	MaxMessageSize  int64         `mapstructure:"max_message_size" validate:"gt=0"`
	PingInterval    time.Duration `mapstructure:"ping_interval" validate:"gt=0"`
	PongTimeout     time.Duration `mapstructure:"pong_timeout" validate:"gtfield=PingInterval"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	SendBuffer      int           `mapstructure:"send_buffer" validate:"gt=0"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig selects the persistence backend. Path is used by sqlite;
// the remaining connection fields by postgres.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"required,oneof=memory sqlite postgres"`
	Path            string        `mapstructure:"path" validate:"required_if=Driver sqlite"`
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MaxConns        int32         `mapstructure:"max_conns" validate:"gte=0"`
	MinConns        int32         `mapstructure:"min_conns" validate:"gte=0"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the postgres connection string. URL wins when set.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   d.Host + ":" + strconv.Itoa(d.Port),
		Path:   "/" + d.Name,
	}
	if d.User != "" {
		u.User = url.UserPassword(d.User, d.Password)
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{d.SSLMode}}.Encode()
	}
	return u.String()
}

// LoggingConfig controls the zap core built by the logging package.
type LoggingConfig struct {
	Level  string        `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string        `mapstructure:"format" validate:"oneof=json console"`
	Output string        `mapstructure:"output" validate:"oneof=stdout file both"`
	File   LogFileConfig `mapstructure:"file"`
}

type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size" validate:"gte=0"`
	MaxAge     int    `mapstructure:"max_age" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	Compress   bool   `mapstructure:"compress"`
}

// GameConfig holds the rules knobs exposed to operators.
type GameConfig struct {
	DefaultTimeLimit       time.Duration `mapstructure:"default_time_limit" validate:"gt=0"`
	MinTimeLimit           time.Duration `mapstructure:"min_time_limit" validate:"gt=0"`
	MaxTimeLimit           time.Duration `mapstructure:"max_time_limit" validate:"gtefield=MinTimeLimit"`
	InitialHandSize        int           `mapstructure:"initial_hand_size" validate:"gte=0,lte=10"`
	MaxConsecutiveTimeouts int           `mapstructure:"max_consecutive_timeouts" validate:"gt=0"`
	HookTimeout            time.Duration `mapstructure:"hook_timeout" validate:"gt=0"`
	SlowOperationThreshold time.Duration `mapstructure:"slow_operation_threshold" validate:"gt=0"`
	LowTimerThreshold      time.Duration `mapstructure:"low_timer_threshold" validate:"gte=0"`
}

type CacheConfig struct {
	Size int           `mapstructure:"size" validate:"gt=0"`
	TTL  time.Duration `mapstructure:"ttl" validate:"gt=0"`
}

type ReplayConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir" validate:"required_if=Enabled true"`
}

// Loader reads configuration and can watch the file for changes.
type Loader struct {
	v        *viper.Viper
	validate *validator.Validate
	envFile  string

	mu      sync.Mutex
	watched bool
}

// LoaderOption customises a Loader.
type LoaderOption func(*Loader)

// WithEnvFile sets the dotenv file read before the environment is
// consulted. An empty name disables dotenv loading.
func WithEnvFile(name string) LoaderOption {
	return func(l *Loader) {
		l.envFile = name
	}
}

// NewLoader prepares a loader for path. With an empty path the loader looks
// for config.yaml in ./config and the working directory.
func NewLoader(path string, opts ...LoaderOption) *Loader {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	l := &Loader{v: v, validate: validator.New(), envFile: ".env"}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load is shorthand for NewLoader(path).Load().
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Load reads the dotenv file, the config file and the environment and
// validates the result. A missing config file is not an error.
func (l *Loader) Load() (*Config, error) {
	if l.envFile != "" {
		if err := godotenv.Load(l.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", l.envFile, err)
		}
	}
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return l.decode()
}

// File returns the config file in use, or "" when running on defaults.
func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}

// Watch reloads the configuration whenever the file changes and hands the
// result to onChange. Invalid edits are reported through err and leave the
// caller's current configuration alone.
func (l *Loader) Watch(onChange func(cfg *Config, err error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watched || l.v.ConfigFileUsed() == "" {
		return
	}
	l.watched = true

	l.v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := l.decode()
		onChange(cfg, err)
	})
	l.v.WatchConfig()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(l.validate); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and the cross-section rules tags cannot
// express.
func (c *Config) Validate(v *validator.Validate) error {
	if v == nil {
		v = validator.New()
	}
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	g := c.Game
	if g.DefaultTimeLimit < g.MinTimeLimit || g.DefaultTimeLimit > g.MaxTimeLimit {
		return fmt.Errorf("invalid config: game.default_time_limit %s outside [%s, %s]",
			g.DefaultTimeLimit, g.MinTimeLimit, g.MaxTimeLimit)
	}
	if c.Database.Driver == "postgres" && c.Database.URL == "" && c.Database.Host == "" {
		return fmt.Errorf("invalid config: database.url or database.host is required for postgres")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc.address", ":50051")
	v.SetDefault("server.grpc.max_concurrent_streams", 1000)
	v.SetDefault("server.websocket.address", ":8080")
	v.SetDefault("server.websocket.path", "/ws")
	v.SetDefault("server.websocket.read_buffer_size", 1024)
	v.SetDefault("server.websocket.write_buffer_size", 1024)
	v.SetDefault("server.websocket.max_message_size", 8192)
	v.SetDefault("server.websocket.ping_interval", "30s")
	v.SetDefault("server.websocket.pong_timeout", "60s")
	v.SetDefault("server.websocket.write_timeout", "10s")
	v.SetDefault("server.websocket.send_buffer", 64)
	v.SetDefault("server.websocket.allowed_origins", []string{})
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/voidecho.db")
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "voidecho")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file.path", "./logs")
	v.SetDefault("logging.file.filename", "voidecho.log")
	v.SetDefault("logging.file.max_size", 100)
	v.SetDefault("logging.file.max_age", 30)
	v.SetDefault("logging.file.max_backups", 7)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("game.default_time_limit", "90s")
	v.SetDefault("game.min_time_limit", "30s")
	v.SetDefault("game.max_time_limit", "10m")
	v.SetDefault("game.initial_hand_size", 0)
	v.SetDefault("game.max_consecutive_timeouts", 3)
	v.SetDefault("game.hook_timeout", "2s")
	v.SetDefault("game.slow_operation_threshold", "50ms")
	v.SetDefault("game.low_timer_threshold", "10s")

	v.SetDefault("cache.size", 1024)
	v.SetDefault("cache.ttl", "30m")

	v.SetDefault("replay.enabled", false)
	v.SetDefault("replay.dir", "./data/replays")
}
