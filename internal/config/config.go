// Package config собирает настройки приложения.
//
// Порядок: значения по умолчанию -> .env (если есть) -> YAML-файл из CONFIG_FILE (если задан)
// -> переменные окружения. Каждый следующий источник перекрывает предыдущий.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config - настройки времени выполнения.
type Config struct {
	ListenPort   string        `yaml:"listenPort"`
	DBPath       string        `yaml:"dbPath"`
	CookieSecret string        `yaml:"cookieSecret"`
	CookieSecure bool          `yaml:"cookieSecure"`
	SessionTTL   time.Duration `yaml:"sessionTTL"`

	ModelWeightsPath string `yaml:"modelWeightsPath"`
	ModelLabelsPath  string `yaml:"modelLabelsPath"`

	OpenAIAPIKey         string        `yaml:"openaiApiKey"`
	OpenAIBaseURL        string        `yaml:"openaiBaseURL"`
	OpenAIModel          string        `yaml:"openaiModel"`
	AssistantTemperature float64       `yaml:"assistantTemperature"`
	AssistantTimeout     time.Duration `yaml:"assistantTimeout"`

	MaxUploadBytes    int64 `yaml:"maxUploadBytes"`
	MaxImagePixels    int64 `yaml:"maxImagePixels"`
	HistoryMaxPerUser int   `yaml:"historyMaxPerUser"`

	RedisAddr               string `yaml:"redisAddr"`
	RedisPassword           string `yaml:"redisPassword"`
	LoginRateLimitPerMinute int    `yaml:"loginRateLimitPerMinute"`

	LogLevel  string `yaml:"logLevel"`
	LogPretty bool   `yaml:"logPretty"`
}

// Default возвращает настройки по умолчанию.
func Default() Config {
	return Config{
		ListenPort:           "8080",
		DBPath:               "data/database.db",
		SessionTTL:           7 * 24 * time.Hour,
		ModelWeightsPath:     "models/skin_disease_model.json",
		ModelLabelsPath:      "models/class_to_idx.json",
		OpenAIBaseURL:        "https://api.openai.com/v1",
		OpenAIModel:          "gpt-4o-mini",
		AssistantTemperature: 0.2,
		AssistantTimeout:     60 * time.Second,
		MaxUploadBytes:       10 << 20,
		MaxImagePixels:       40_000_000,
		LogLevel:             "info",
	}
}

// Load собирает конфигурацию из всех источников.
func Load() (Config, error) {
	// .env необязателен: его отсутствие не ошибка.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Не удалось прочитать .env")
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	c.ListenPort = getEnv("LISTEN_PORT", c.ListenPort)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.CookieSecret = getEnv("COOKIE_SECRET", c.CookieSecret)
	c.ModelWeightsPath = getEnv("MODEL_WEIGHTS_PATH", c.ModelWeightsPath)
	c.ModelLabelsPath = getEnv("MODEL_LABELS_PATH", c.ModelLabelsPath)
	c.OpenAIAPIKey = strings.TrimSpace(getEnv("OPENAI_API_KEY", c.OpenAIAPIKey))
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.OpenAIModel = getEnv("OPENAI_MODEL", c.OpenAIModel)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", c.LogLevel))

	var errs []error
	errs = append(errs,
		parseEnv("COOKIE_SECURE", &c.CookieSecure, strconv.ParseBool),
		parseEnv("LOG_PRETTY", &c.LogPretty, strconv.ParseBool),
		parseEnv("SESSION_TTL", &c.SessionTTL, time.ParseDuration),
		parseEnv("ASSISTANT_TIMEOUT", &c.AssistantTimeout, time.ParseDuration),
		parseEnv("ASSISTANT_TEMPERATURE", &c.AssistantTemperature, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) }),
		parseEnv("MAX_UPLOAD_BYTES", &c.MaxUploadBytes, func(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }),
		parseEnv("MAX_IMAGE_PIXELS", &c.MaxImagePixels, func(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }),
		parseEnv("HISTORY_MAX_PER_USER", &c.HistoryMaxPerUser, strconv.Atoi),
		parseEnv("LOGIN_RATE_LIMIT_PER_MINUTE", &c.LoginRateLimitPerMinute, strconv.Atoi),
	)
	return errors.Join(errs...)
}

// Validate проверяет значения, без которых сервер работать не может.
func (c *Config) Validate() error {
	var errs []error
	if c.ListenPort == "" {
		errs = append(errs, errors.New("LISTEN_PORT не может быть пустым"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("DB_PATH не может быть пустым"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL должен быть положительным"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES должен быть положительным"))
	}
	if c.MaxImagePixels <= 0 {
		errs = append(errs, errors.New("MAX_IMAGE_PIXELS должен быть положительным"))
	}
	if c.AssistantTemperature < 0 || c.AssistantTemperature > 2 {
		errs = append(errs, fmt.Errorf("ASSISTANT_TEMPERATURE вне диапазона 0..2: %v", c.AssistantTemperature))
	}
	if c.LoginRateLimitPerMinute > 0 && c.RedisAddr == "" {
		errs = append(errs, errors.New("LOGIN_RATE_LIMIT_PER_MINUTE требует REDIS_ADDR"))
	}
	return errors.Join(errs...)
}

// getEnv получает значение переменной окружения по ключу или возвращает fallback.
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// parseEnv разбирает переменную окружения, если она задана, и записывает результат в dst.
func parseEnv[T any](key string, dst *T, parse func(string) (T, error)) error {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	v, err := parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("некорректное значение %s=%q: %w", key, raw, err)
	}
	*dst = v
	return nil
}
