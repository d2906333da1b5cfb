// Пакет config — загрузка и валидация конфигурации каталога образов
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/laoyigrace/imagestore/internal/quota"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации каталога образов.
type Config struct {
	// --- Сервер (операционные endpoints: health, metrics) ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимум подключений в пуле
	DBMaxConns int
	// Время жизни подключения в пуле
	DBConnLifetime time.Duration
	// Таймаут установления подключения и ping-проверок
	DBConnectTimeout time.Duration

	// --- Квоты ---

	// Квоты tenant'а (счётные и байтовая)
	Quota quota.Config

	// --- Шифрование ---

	// Ключ шифрования адресов локаций (пусто — без шифрования)
	MetadataEncryptionKey string

	// --- Purge ---

	// Интервал запуска фоновой очистки soft-deleted строк
	PurgeInterval time.Duration
	// Минимальный возраст soft-deleted строки для окончательного удаления
	PurgeAge time.Duration
	// Максимум строк, удаляемых за один батч
	PurgeBatchSize int

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// IS_PORT — порт HTTP-сервера (по умолчанию 9191)
	cfg.Port, err = getEnvInt("IS_PORT", 9191)
	if err != nil {
		return nil, fmt.Errorf("IS_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("IS_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// IS_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("IS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("IS_LOG_LEVEL: %w", err)
	}

	// IS_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("IS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("IS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	// IS_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("IS_DB_HOST")
	if err != nil {
		return nil, err
	}

	// IS_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("IS_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("IS_DB_PORT: %w", err)
	}

	// IS_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("IS_DB_NAME")
	if err != nil {
		return nil, err
	}

	// IS_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("IS_DB_USER")
	if err != nil {
		return nil, err
	}

	// IS_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("IS_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// IS_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("IS_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("IS_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// IS_DB_MAX_CONNS — размер пула подключений (по умолчанию 10)
	cfg.DBMaxConns, err = getEnvInt("IS_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("IS_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 {
		return nil, fmt.Errorf("IS_DB_MAX_CONNS: значение %d должно быть не меньше 1", cfg.DBMaxConns)
	}

	// IS_DB_CONN_LIFETIME — время жизни подключения в пуле (по умолчанию 1h)
	cfg.DBConnLifetime, err = getEnvDuration("IS_DB_CONN_LIFETIME", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("IS_DB_CONN_LIFETIME: %w", err)
	}

	// IS_DB_CONNECT_TIMEOUT — таймаут подключения (по умолчанию 10s)
	cfg.DBConnectTimeout, err = getEnvDuration("IS_DB_CONNECT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IS_DB_CONNECT_TIMEOUT: %w", err)
	}

	// --- Квоты ---

	cfg.Quota = quota.Default()

	// IS_IMAGE_PROPERTY_QUOTA — максимум свойств на образ (по умолчанию 128, отрицательное — без ограничений)
	cfg.Quota.ImageProperties, err = getEnvInt("IS_IMAGE_PROPERTY_QUOTA", cfg.Quota.ImageProperties)
	if err != nil {
		return nil, fmt.Errorf("IS_IMAGE_PROPERTY_QUOTA: %w", err)
	}

	// IS_IMAGE_TAG_QUOTA — максимум тегов на образ (по умолчанию 128)
	cfg.Quota.ImageTags, err = getEnvInt("IS_IMAGE_TAG_QUOTA", cfg.Quota.ImageTags)
	if err != nil {
		return nil, fmt.Errorf("IS_IMAGE_TAG_QUOTA: %w", err)
	}

	// IS_IMAGE_MEMBER_QUOTA — максимум членов шаринга на образ (по умолчанию 128)
	cfg.Quota.ImageMembers, err = getEnvInt("IS_IMAGE_MEMBER_QUOTA", cfg.Quota.ImageMembers)
	if err != nil {
		return nil, fmt.Errorf("IS_IMAGE_MEMBER_QUOTA: %w", err)
	}

	// IS_IMAGE_LOCATION_QUOTA — максимум локаций на образ (по умолчанию 10)
	cfg.Quota.ImageLocations, err = getEnvInt("IS_IMAGE_LOCATION_QUOTA", cfg.Quota.ImageLocations)
	if err != nil {
		return nil, fmt.Errorf("IS_IMAGE_LOCATION_QUOTA: %w", err)
	}

	// IS_USER_STORAGE_QUOTA — суммарный объём данных tenant'а,
	// строка вида 10GB (по умолчанию "0" — без ограничений)
	cfg.Quota.UserStorage, err = quota.ParseByteSize(getEnvDefault("IS_USER_STORAGE_QUOTA", "0"))
	if err != nil {
		return nil, fmt.Errorf("IS_USER_STORAGE_QUOTA: %w", err)
	}

	// --- Шифрование ---

	// IS_METADATA_ENCRYPTION_KEY — ключ шифрования адресов локаций (опционально)
	cfg.MetadataEncryptionKey = getEnvDefault("IS_METADATA_ENCRYPTION_KEY", "")

	// --- Purge ---

	// IS_PURGE_INTERVAL — интервал фоновой очистки (по умолчанию 24h)
	cfg.PurgeInterval, err = getEnvDuration("IS_PURGE_INTERVAL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("IS_PURGE_INTERVAL: %w", err)
	}

	// IS_PURGE_AGE — возраст строк для окончательного удаления (по умолчанию 720h = 30 дней)
	cfg.PurgeAge, err = getEnvDuration("IS_PURGE_AGE", 720*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("IS_PURGE_AGE: %w", err)
	}

	// IS_PURGE_BATCH_SIZE — размер батча очистки (по умолчанию 1000)
	cfg.PurgeBatchSize, err = getEnvInt("IS_PURGE_BATCH_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("IS_PURGE_BATCH_SIZE: %w", err)
	}
	if cfg.PurgeBatchSize < 1 || cfg.PurgeBatchSize > 100000 {
		return nil, fmt.Errorf("IS_PURGE_BATCH_SIZE: значение %d вне допустимого диапазона 1-100000", cfg.PurgeBatchSize)
	}

	// --- Graceful shutdown ---

	// IS_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("IS_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IS_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// MigrateURL возвращает URL подключения в формате golang-migrate
// (драйвер pgx5). Пароль экранируется по правилам URL.
func (c *Config) MigrateURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
