// Package config loads process configuration from the environment, an
// optional YAML file and an optional .env file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"stockledger/internal/domain/validation"
)

// EnvPrefix prefixes every environment variable, e.g. STOCKLEDGER_DB_HOST.
const EnvPrefix = "STOCKLEDGER"

// Config groups the application configuration.
type Config struct {
	App       AppConfig
	Log       LogConfig
	DB        DBConfig
	HTTP      HTTPConfig
	JWT       JWTConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Outbox    OutboxConfig
	Telemetry TelemetryConfig
	Cache     CacheConfig
	Rules     RulesConfig
}

// AppConfig holds general settings.
type AppConfig struct {
	Env  string // development, staging, production
	Name string
}

// IsDevelopment reports whether the process runs in development mode.
func (c AppConfig) IsDevelopment() bool { return c.Env == "development" }

// LogConfig configures pkg/logger.
type LogConfig struct {
	Level string
}

// DBConfig configures storage. Driver "memory" runs without PostgreSQL;
// otherwise URL wins over the discrete fields.
type DBConfig struct {
	Driver   string
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
	MinConns int32
	Migrate  bool
}

// InMemory reports whether the process should use the in-process store.
func (c DBConfig) InMemory() bool { return c.Driver == "memory" }

// ConnectionString returns URL when set, otherwise a DSN built from the fields.
func (c DBConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Addr returns host:port.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// JWTConfig configures bearer-token validation. Empty Secret disables auth.
type JWTConfig struct {
	Secret string
	Issuer string
}

// RedisConfig configures the shared Redis client. Empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig configures the outbox relay producer.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
	Acks     string
	Retries  int
}

// OutboxConfig configures the relay loop in cmd/worker.
type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int
	Retention    time.Duration
}

// TelemetryConfig configures the system-load provider.
type TelemetryConfig struct {
	Key    string
	MaxAge time.Duration
}

// CacheConfig configures the read-view cache.
type CacheConfig struct {
	TTL           time.Duration
	LocalCapacity int
}

// RulesConfig holds rule overrides applied on top of the built-in defaults.
type RulesConfig struct {
	Mode      validation.OverrideMode
	Overrides map[string]validation.RuleOverride
}

// Load reads configuration. dotenvPath may be empty; a missing file is not an error.
func Load(dotenvPath string) (*Config, error) {
	if dotenvPath == "" {
		dotenvPath = ".env"
	}
	if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", dotenvPath, err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	v.SetConfigName("stockledger")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if file := v.GetString("config.file"); file != "" {
		v.SetConfigFile(file)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.name", "stockledger")
	v.SetDefault("log.level", "info")

	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.name", "stockledger")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_conns", 25)
	v.SetDefault("db.min_conns", 2)
	v.SetDefault("db.migrate", true)

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.shutdown_timeout", "10s")

	v.SetDefault("jwt.issuer", "stockledger")

	v.SetDefault("kafka.topic", "inventory.movements")
	v.SetDefault("kafka.client_id", "stockledger-worker")
	v.SetDefault("kafka.acks", "all")
	v.SetDefault("kafka.retries", 3)

	v.SetDefault("outbox.poll_interval", "1s")
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.max_retries", 5)
	v.SetDefault("outbox.retention", "168h")

	v.SetDefault("telemetry.key", "stockledger:telemetry:load")
	v.SetDefault("telemetry.max_age", "30s")

	v.SetDefault("cache.ttl", "30s")
	v.SetDefault("cache.local_capacity", 10000)

	v.SetDefault("rules.mode", string(validation.OverrideMerge))
}

func fromViper(v *viper.Viper) (*Config, error) {
	overrides, err := ruleOverrides(v.GetStringMap("rules.overrides"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Env:  v.GetString("app.env"),
			Name: v.GetString("app.name"),
		},
		Log: LogConfig{Level: v.GetString("log.level")},
		DB: DBConfig{
			Driver:   v.GetString("db.driver"),
			URL:      v.GetString("db.url"),
			Host:     v.GetString("db.host"),
			Port:     v.GetInt("db.port"),
			User:     v.GetString("db.user"),
			Password: v.GetString("db.password"),
			Name:     v.GetString("db.name"),
			SSLMode:  v.GetString("db.sslmode"),
			MaxConns: v.GetInt32("db.max_conns"),
			MinConns: v.GetInt32("db.min_conns"),
			Migrate:  v.GetBool("db.migrate"),
		},
		HTTP: HTTPConfig{
			Host:            v.GetString("http.host"),
			Port:            v.GetInt("http.port"),
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			Issuer: v.GetString("jwt.issuer"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Kafka: KafkaConfig{
			Brokers:  splitList(v.Get("kafka.brokers")),
			Topic:    v.GetString("kafka.topic"),
			ClientID: v.GetString("kafka.client_id"),
			Acks:     v.GetString("kafka.acks"),
			Retries:  v.GetInt("kafka.retries"),
		},
		Outbox: OutboxConfig{
			PollInterval: v.GetDuration("outbox.poll_interval"),
			BatchSize:    v.GetInt("outbox.batch_size"),
			MaxRetries:   v.GetInt("outbox.max_retries"),
			Retention:    v.GetDuration("outbox.retention"),
		},
		Telemetry: TelemetryConfig{
			Key:    v.GetString("telemetry.key"),
			MaxAge: v.GetDuration("telemetry.max_age"),
		},
		Cache: CacheConfig{
			TTL:           v.GetDuration("cache.ttl"),
			LocalCapacity: v.GetInt("cache.local_capacity"),
		},
		Rules: RulesConfig{
			Mode:      validation.OverrideMode(v.GetString("rules.mode")),
			Overrides: overrides,
		},
	}
	return cfg, nil
}

// splitList accepts a YAML list or a comma-separated env value.
func splitList(raw any) []string {
	if s, ok := raw.(string); ok {
		raw = strings.Split(s, ",")
	}
	var out []string
	for _, item := range cast.ToStringSlice(raw) {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ruleOverrides converts the loosely typed rules.overrides tree.
// Only keys present in the source become non-nil override fields.
func ruleOverrides(raw map[string]any) (map[string]validation.RuleOverride, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	out := make(map[string]validation.RuleOverride, len(raw))
	for name, value := range raw {
		fields, err := cast.ToStringMapE(value)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", name, err)
		}

		var o validation.RuleOverride
		for key, field := range fields {
			switch strings.ToLower(key) {
			case "enabled":
				b, err := cast.ToBoolE(field)
				if err != nil {
					return nil, fmt.Errorf("rule %s enabled: %w", name, err)
				}
				o.Enabled = &b
			case "critical":
				b, err := cast.ToBoolE(field)
				if err != nil {
					return nil, fmt.Errorf("rule %s critical: %w", name, err)
				}
				o.Critical = &b
			case "expression":
				s := cast.ToString(field)
				o.Expression = &s
			case "params":
				params, err := cast.ToStringMapE(field)
				if err != nil {
					return nil, fmt.Errorf("rule %s params: %w", name, err)
				}
				o.Params = params
			default:
				return nil, fmt.Errorf("rule %s: unknown field %q", name, key)
			}
		}
		out[name] = o
	}
	return out, nil
}
