package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Поддерживаемые хранилища состояния прогрессии.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Config содержит конфигурацию Keepsake Server
type Config struct {
	// Настройки сервера
	Port        string `envconfig:"KEEPSAKE_SERVER_PORT" default:"8085"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`

	// Хранилище состояния
	StateBackend string        `envconfig:"STATE_BACKEND" default:"memory"`
	SaveTimeout  time.Duration `envconfig:"SAVE_TIMEOUT" default:"5s"`

	// Сессия без запросов дольше этого времени выгружается (0 - никогда)
	SessionIdleTimeout time.Duration `envconfig:"SESSION_IDLE_TIMEOUT" default:"30m"`

	// Настройки PostgreSQL
	DBHost        string        `envconfig:"DB_HOST" default:"localhost"`
	DBPort        string        `envconfig:"DB_PORT" default:"5432"`
	DBUser        string        `envconfig:"DB_USER" default:"postgres"`
	DBPassword    string        `envconfig:"DB_PASSWORD"`
	DBName        string        `envconfig:"DB_NAME" default:"keepsake"`
	DBSSLMode     string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns    int           `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBIdleTimeout time.Duration `envconfig:"DB_MAX_IDLE_MINUTES" default:"5m"`

	// Настройки Redis
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	RedisStateTTL time.Duration `envconfig:"REDIS_STATE_TTL" default:"0s"`

	// Настройки SQLite
	SQLitePath string `envconfig:"SQLITE_PATH" default:"keepsake.db"`

	// Настройки RabbitMQ (пустой URL отключает публикацию результатов)
	RabbitMQURL             string `envconfig:"RABBITMQ_URL"`
	ProgressionResultsQueue string `envconfig:"PROGRESSION_RESULTS_QUEUE" default:"progression_results"`

	// Контент и устройство
	CatalogDir     string `envconfig:"CATALOG_DIR"`
	DeviceTimezone string `envconfig:"DEVICE_TIMEZONE" default:"Local"`
	DebugEndpoints bool   `envconfig:"DEBUG_ENDPOINTS" default:"false"`

	location *time.Location
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL
func (c *Config) GetDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}

// Location возвращает часовой пояс устройства, по которому считаются
// локальные даты (дневной лимит, дневник, окна времени).
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

// LoadConfig загружает конфигурацию из переменных окружения
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации keepsake-server: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.StateBackend = strings.ToLower(strings.TrimSpace(c.StateBackend))
	switch c.StateBackend {
	case BackendPostgres, BackendRedis, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("STATE_BACKEND: неизвестное хранилище %q (postgres|redis|sqlite|memory)", c.StateBackend)
	}

	if c.SaveTimeout <= 0 {
		return fmt.Errorf("SAVE_TIMEOUT: должен быть положительным, получено %s", c.SaveTimeout)
	}
	if c.SessionIdleTimeout < 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT: не может быть отрицательным")
	}
	if c.RedisStateTTL < 0 {
		return fmt.Errorf("REDIS_STATE_TTL: не может быть отрицательным")
	}
	if c.StateBackend == BackendPostgres && c.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNECTIONS: должен быть положительным, получено %d", c.DBMaxConns)
	}
	if c.StateBackend == BackendSQLite && strings.TrimSpace(c.SQLitePath) == "" {
		return fmt.Errorf("SQLITE_PATH: обязателен для STATE_BACKEND=sqlite")
	}

	loc, err := time.LoadLocation(c.DeviceTimezone)
	if err != nil {
		return fmt.Errorf("DEVICE_TIMEZONE: %w", err)
	}
	c.location = loc
	return nil
}
