package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"

	"github.com/MimeLyc/vn-script-translator/internal/translator"
	"github.com/MimeLyc/vn-script-translator/pkg/log"
)

// Config holds all application configuration
// Supports environment variables with sensible defaults
//
// Environment Variables:
// Translation:
// - TARGET_LANGUAGE: language the dialogue is translated to (default: es)
// - SOURCE_LANGUAGE: language of the original scripts (default: en)
// - MAX_OUTPUT_LENGTH, NUM_BEAMS, TEMPERATURE, REPETITION_PENALTY, LENGTH_PENALTY,
//   NO_REPEAT_NGRAM_SIZE: generation parameters (defaults: 512, 4, 1.0, 1.2, 1.0, 0)
// - CRON_EXPR: schedule of folder scans, empty disables them (default: empty)
//
// Backend:
// - TRANSLATOR_BACKEND: seq2seq or openai (default: seq2seq)
// - SEQ2SEQ_API_URL: model server URL (default: http://127.0.0.1:8000)
// - SEQ2SEQ_MODEL: model name forwarded to the server (default: Helsinki-NLP/opus-mt-en-es)
// - LLM_API_KEY, LLM_API_URL, LLM_MODEL: chat completions backend
// - BACKEND_TIMEOUT: per request timeout, 0 disables it (default: 0)
//
// Scripts:
// - SCRIPT_DIRS: comma separated game directories scanned by the scheduler
// - SCRIPT_EXTS: script extensions (default: .rpy)
// - SOURCE_ENCODINGS: strict decode order (default: utf-8,latin1,iso-8859-1)
// - BACKUP_EXT: keep the original next to each rewritten script (default: empty)
//
// System:
// - QUEUE_TICK_INTERVAL: queue scheduling tick (default: 100ms)
// - CACHE_BACKEND: none, memory or redis (default: none)
// - REDIS_URL, CACHE_TTL: redis cache settings
// - DB_PATH: sqlite database for queue and results (default: data/vnst.db)
// - HTTP_ADDR: control API address (default: :8080)
// - LOG_LEVEL: debug, info, warn, error (default: info)
// - SETTINGS_FILE: runtime settings file (default: data/settings.json)
type Config struct {
	Translate TranslateConfig `json:"translate"`
	Backend   BackendConfig   `json:"backend"`
	Scripts   ScriptConfig    `json:"scripts"`
	Queue     QueueConfig     `json:"queue"`
	Cache     CacheConfig     `json:"cache"`
	HTTP      HTTPConfig      `json:"http"`
	System    SystemConfig    `json:"system"`
}

type TranslateConfig struct {
	TargetLanguage string                       `json:"target_language"`
	SourceLanguage string                       `json:"source_language"`
	Params         translator.TranslationConfig `json:"params"`
	CronExpr       string                       `json:"cron_expr"`
}

const (
	BackendSeq2Seq = "seq2seq"
	BackendOpenAI  = "openai"
)

type BackendConfig struct {
	Kind          string        `json:"kind"`
	Seq2SeqAPIURL string        `json:"seq2seq_api_url"`
	Seq2SeqModel  string        `json:"seq2seq_model"`
	LLMAPIKey     string        `json:"-"`
	LLMAPIURL     string        `json:"llm_api_url"`
	LLMModel      string        `json:"llm_model"`
	Timeout       time.Duration `json:"timeout"`
}

type ScriptConfig struct {
	Dirs      []string `json:"dirs"`
	Exts      []string `json:"exts"`
	Encodings []string `json:"encodings"`
	BackupExt string   `json:"backup_ext"`
}

type QueueConfig struct {
	TickInterval time.Duration `json:"tick_interval"`
}

const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type CacheConfig struct {
	Backend  string        `json:"backend"`
	RedisURL string        `json:"-"`
	TTL      time.Duration `json:"ttl"`
}

type HTTPConfig struct {
	Addr string `json:"addr"`
}

type SystemConfig struct {
	DBPath       string `json:"db_path"`
	SettingsFile string `json:"settings_file"`
	LogLevel     string `json:"log_level"`
}

// String prints the configuration with the API key and the Redis password masked.
func (c Config) String() string {
	type plain Config
	redacted := plain(c)
	if redacted.Backend.LLMAPIKey != "" {
		redacted.Backend.LLMAPIKey = redactedValue
	}
	redacted.Cache.RedisURL = redactURL(redacted.Cache.RedisURL)
	return fmt.Sprintf("%+v", redacted)
}

const redactedValue = "xxxxx"

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return redactedValue
	}
	return u.Redacted()
}

// Option is a function type for configuring Config
type Option func(*Config)

// LoadDotEnv loads variables from .env style files without overriding the
// environment. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	defaults := translator.DefaultTranslationConfig()
	config := &Config{
		Translate: TranslateConfig{
			TargetLanguage: getEnvString("TARGET_LANGUAGE", "es"),
			SourceLanguage: getEnvString("SOURCE_LANGUAGE", "en"),
			Params: translator.TranslationConfig{
				MaxOutputLength:   getEnvInt("MAX_OUTPUT_LENGTH", defaults.MaxOutputLength),
				BeamCount:         getEnvInt("NUM_BEAMS", defaults.BeamCount),
				Temperature:       getEnvFloat("TEMPERATURE", defaults.Temperature),
				RepetitionPenalty: getEnvFloat("REPETITION_PENALTY", defaults.RepetitionPenalty),
				LengthPenalty:     getEnvFloat("LENGTH_PENALTY", defaults.LengthPenalty),
				NoRepeatNgramSize: getEnvInt("NO_REPEAT_NGRAM_SIZE", defaults.NoRepeatNgramSize),
			},
			CronExpr: getEnvString("CRON_EXPR", ""),
		},
		Backend: BackendConfig{
			Kind:          strings.ToLower(getEnvString("TRANSLATOR_BACKEND", BackendSeq2Seq)),
			Seq2SeqAPIURL: getEnvString("SEQ2SEQ_API_URL", "http://127.0.0.1:8000"),
			Seq2SeqModel:  getEnvString("SEQ2SEQ_MODEL", "Helsinki-NLP/opus-mt-en-es"),
			LLMAPIKey:     getEnvString("LLM_API_KEY", ""),
			LLMAPIURL:     getEnvString("LLM_API_URL", ""),
			LLMModel:      getEnvString("LLM_MODEL", "gpt-4o-mini"),
			Timeout:       getEnvDuration("BACKEND_TIMEOUT", 0),
		},
		Scripts: ScriptConfig{
			Dirs:      getEnvList("SCRIPT_DIRS", nil),
			Exts:      getEnvList("SCRIPT_EXTS", []string{".rpy"}),
			Encodings: getEnvList("SOURCE_ENCODINGS", []string{"utf-8", "latin1", "iso-8859-1"}),
			BackupExt: getEnvString("BACKUP_EXT", ""),
		},
		Queue: QueueConfig{
			TickInterval: getEnvDuration("QUEUE_TICK_INTERVAL", 100*time.Millisecond),
		},
		Cache: CacheConfig{
			Backend:  strings.ToLower(getEnvString("CACHE_BACKEND", CacheNone)),
			RedisURL: getEnvString("REDIS_URL", "redis://127.0.0.1:6379/0"),
			TTL:      getEnvDuration("CACHE_TTL", 24*time.Hour),
		},
		HTTP: HTTPConfig{
			Addr: getEnvString("HTTP_ADDR", ":8080"),
		},
		System: SystemConfig{
			DBPath:       getEnvString("DB_PATH", filepath.Join("data", "vnst.db")),
			SettingsFile: RuntimeSettingsFilePath(),
			LogLevel:     getEnvString("LOG_LEVEL", "info"),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	log.Debug("Config: %s", config)

	// Validate required configuration
	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if strings.TrimSpace(c.Translate.TargetLanguage) == "" {
		return fmt.Errorf("TARGET_LANGUAGE is required")
	}
	if _, err := language.Parse(c.Translate.TargetLanguage); err != nil {
		return fmt.Errorf("invalid TARGET_LANGUAGE %q: %w", c.Translate.TargetLanguage, err)
	}
	if err := c.Translate.Params.Validate(); err != nil {
		return fmt.Errorf("invalid translation parameters: %w", err)
	}

	switch c.Backend.Kind {
	case BackendSeq2Seq:
		if c.Backend.Seq2SeqAPIURL == "" {
			return fmt.Errorf("SEQ2SEQ_API_URL is required for the seq2seq backend")
		}
	case BackendOpenAI:
		if c.Backend.LLMAPIKey == "" {
			return fmt.Errorf("LLM_API_KEY is required for the openai backend")
		}
		if c.Backend.LLMModel == "" {
			return fmt.Errorf("LLM_MODEL is required for the openai backend")
		}
	default:
		return fmt.Errorf("unknown TRANSLATOR_BACKEND %q", c.Backend.Kind)
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must not be negative")
	}

	switch c.Cache.Backend {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis cache")
		}
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.Cache.Backend)
	}

	if len(c.Scripts.Exts) == 0 {
		return fmt.Errorf("SCRIPT_EXTS must not be empty")
	}
	if c.Queue.TickInterval <= 0 {
		return fmt.Errorf("QUEUE_TICK_INTERVAL must be positive")
	}
	if c.Translate.CronExpr != "" {
		if err := validateCron(c.Translate.CronExpr); err != nil {
			return err
		}
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Warn("Ignoring invalid %s=%q", key, value)
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
		log.Warn("Ignoring invalid %s=%q", key, value)
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("250ms", "2m") or plain seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Warn("Ignoring invalid %s=%q", key, value)
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var ret []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			ret = append(ret, item)
		}
	}
	return ret
}
