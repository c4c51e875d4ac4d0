// Пакет config — загрузка и валидация конфигурации точки обслуживания
// из переменных окружения (префикс CP_).
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации.
type Config struct {
	// Порт локального HTTP-сервера
	Port int
	// Корневая директория данных
	DataDir string
	// Путь к файлу SQLite с состоянием устройства
	StateDB string
	// Директория выгрузок наборов
	ExportDir string

	// Базовый URL сервиса лицензий
	LicenseURL string
	// Путь к CA-сертификату сервиса лицензий (опционально)
	LicenseCACert string
	// Таймаут запросов к сервису лицензий
	LicenseTimeout time.Duration

	// Срок годности набора A в днях
	DatasetATTLDays int
	// Срок годности набора B в днях
	DatasetBTTLDays int
	// Проверять имя загружаемого файла по окну токенов
	RequireTokenFilename bool
	// Размер и TTL кэша хэш-токенов
	TokenCacheSize int
	TokenCacheTTL  time.Duration
	// Интервал фоновой проверки сроков
	ExpiryCheckInterval time.Duration

	// Явный идентификатор устройства (опционально)
	DeviceID string
	// Отображаемое имя устройства (опционально, по умолчанию имя хоста)
	DeviceName string

	// Имя вершины графа в topologymetrics
	ServiceID string
	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration

	// Архив выгрузок в S3 (пустой бакет — архив выключен)
	ArchiveBucket    string
	ArchiveRegion    string
	ArchiveEndpoint  string
	ArchivePathStyle bool
	ArchivePrefix    string
	ArchiveAccessKey string
	ArchiveSecretKey string //nolint:gosec // G101: поле структуры, не содержит секрет напрямую

	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
}

// ArchiveEnabled сообщает, что архив выгрузок настроен.
func (c *Config) ArchiveEnabled() bool {
	return c.ArchiveBucket != ""
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}

	// CP_PORT — порт HTTP-сервера (по умолчанию 8040)
	port, err := getEnvInt("CP_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("CP_PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("CP_PORT: значение %d вне допустимого диапазона 1-65535", port)
	}
	cfg.Port = port

	// CP_DATA_DIR — обязательный
	cfg.DataDir, err = getEnvRequired("CP_DATA_DIR")
	if err != nil {
		return nil, err
	}

	cfg.StateDB = getEnvDefault("CP_STATE_DB", filepath.Join(cfg.DataDir, "state", "carepoint.db"))
	cfg.ExportDir = getEnvDefault("CP_EXPORT_DIR", filepath.Join(cfg.DataDir, "exports"))

	// CP_LICENSE_URL — обязательный, http или https
	cfg.LicenseURL, err = getEnvRequired("CP_LICENSE_URL")
	if err != nil {
		return nil, err
	}
	if u, perr := url.Parse(cfg.LicenseURL); perr != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("CP_LICENSE_URL: некорректный URL %q", cfg.LicenseURL)
	}

	cfg.LicenseCACert = getEnvDefault("CP_LICENSE_CA_CERT", "")

	cfg.LicenseTimeout, err = getEnvDuration("CP_LICENSE_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CP_LICENSE_TIMEOUT: %w", err)
	}

	// CP_DATASET_A_TTL_DAYS, CP_DATASET_B_TTL_DAYS — сроки годности наборов
	cfg.DatasetATTLDays, err = getEnvPositiveInt("CP_DATASET_A_TTL_DAYS", 16)
	if err != nil {
		return nil, err
	}
	cfg.DatasetBTTLDays, err = getEnvPositiveInt("CP_DATASET_B_TTL_DAYS", 30)
	if err != nil {
		return nil, err
	}

	cfg.RequireTokenFilename, err = getEnvBool("CP_REQUIRE_TOKEN_FILENAME", true)
	if err != nil {
		return nil, fmt.Errorf("CP_REQUIRE_TOKEN_FILENAME: %w", err)
	}

	cfg.TokenCacheSize, err = getEnvPositiveInt("CP_TOKEN_CACHE_SIZE", 64)
	if err != nil {
		return nil, err
	}
	cfg.TokenCacheTTL, err = getEnvDuration("CP_TOKEN_CACHE_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("CP_TOKEN_CACHE_TTL: %w", err)
	}

	cfg.ExpiryCheckInterval, err = getEnvDuration("CP_EXPIRY_CHECK_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("CP_EXPIRY_CHECK_INTERVAL: %w", err)
	}
	if cfg.ExpiryCheckInterval <= 0 {
		return nil, fmt.Errorf("CP_EXPIRY_CHECK_INTERVAL: значение должно быть положительным")
	}

	cfg.DeviceID = getEnvDefault("CP_DEVICE_ID", "")
	cfg.DeviceName = getEnvDefault("CP_DEVICE_NAME", "")

	// topologymetrics
	cfg.ServiceID = getEnvDefault("CP_SERVICE_ID", "carepoint")
	cfg.DephealthGroup = getEnvDefault("CP_DEPHEALTH_GROUP", "carepoint")
	cfg.DephealthCheckInterval, err = getEnvDuration("CP_DEPHEALTH_CHECK_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CP_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// Архив выгрузок в S3
	cfg.ArchiveBucket = getEnvDefault("CP_ARCHIVE_S3_BUCKET", "")
	cfg.ArchiveRegion = getEnvDefault("CP_ARCHIVE_S3_REGION", "us-east-1")
	cfg.ArchiveEndpoint = getEnvDefault("CP_ARCHIVE_S3_ENDPOINT", "")
	cfg.ArchivePathStyle, err = getEnvBool("CP_ARCHIVE_S3_PATH_STYLE", false)
	if err != nil {
		return nil, fmt.Errorf("CP_ARCHIVE_S3_PATH_STYLE: %w", err)
	}
	cfg.ArchivePrefix = getEnvDefault("CP_ARCHIVE_S3_PREFIX", "exports")
	cfg.ArchiveAccessKey = getEnvDefault("CP_ARCHIVE_S3_ACCESS_KEY", "")
	cfg.ArchiveSecretKey = getEnvDefault("CP_ARCHIVE_S3_SECRET_KEY", "")
	if (cfg.ArchiveAccessKey == "") != (cfg.ArchiveSecretKey == "") {
		return nil, fmt.Errorf("CP_ARCHIVE_S3_ACCESS_KEY и CP_ARCHIVE_S3_SECRET_KEY задаются вместе")
	}

	// Таймауты HTTP-сервера
	cfg.HTTPReadTimeout, err = getEnvDuration("CP_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CP_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("CP_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CP_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("CP_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CP_HTTP_IDLE_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout, err = getEnvDuration("CP_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CP_SHUTDOWN_TIMEOUT: %w", err)
	}

	// CP_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("CP_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("CP_LOG_LEVEL: %w", err)
	}

	// CP_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("CP_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("CP_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	return cfg, nil
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

// getEnvPositiveInt возвращает положительное целое или значение по умолчанию.
// Ошибка содержит имя переменной.
func getEnvPositiveInt(key string, defaultVal int) (int, error) {
	n, err := getEnvInt(key, defaultVal)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s: значение должно быть положительным, получено %d", key, n)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 24h)", val)
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
