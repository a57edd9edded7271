package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/text/language"

	"github.com/MimeLyc/vn-script-translator/internal/translator"
	"github.com/MimeLyc/vn-script-translator/pkg/icron"
)

var DefaultRuntimeSettingsFile = filepath.Join("data", "settings.json")

// RuntimeSettings are the values that can change while the server runs. They
// take effect at the next queue start.
type RuntimeSettings struct {
	TargetLanguage string                       `json:"target_language"`
	CronExpr       string                       `json:"cron_expr"`
	Translation    translator.TranslationConfig `json:"translation"`
}

func RuntimeSettingsFilePath() string {
	return getEnvString("SETTINGS_FILE", DefaultRuntimeSettingsFile)
}

func (s RuntimeSettings) Validate() error {
	if strings.TrimSpace(s.TargetLanguage) == "" {
		return fmt.Errorf("target_language is required")
	}
	if _, err := language.Parse(s.TargetLanguage); err != nil {
		return fmt.Errorf("invalid target_language: %w", err)
	}
	if s.CronExpr != "" {
		if err := validateCron(s.CronExpr); err != nil {
			return err
		}
	}
	if err := s.Translation.Validate(); err != nil {
		return fmt.Errorf("invalid translation: %w", err)
	}
	return nil
}

func validateCron(expr string) error {
	if _, err := icron.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron_expr: %w", err)
	}
	return nil
}

func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		TargetLanguage: c.Translate.TargetLanguage,
		CronExpr:       c.Translate.CronExpr,
		Translation:    c.Translate.Params,
	}
}

// WithRuntimeSettings overrides the env configuration with a settings file.
// The translation parameters are taken only when they form a valid set.
func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		if _, err := language.Parse(settings.TargetLanguage); err == nil {
			c.Translate.TargetLanguage = settings.TargetLanguage
		}
		if strings.TrimSpace(settings.CronExpr) != "" {
			c.Translate.CronExpr = settings.CronExpr
		}
		if settings.Translation.Validate() == nil {
			c.Translate.Params = settings.Translation
		}
	}
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

type RuntimeSettingsStore struct {
	path string

	mu      sync.RWMutex
	current RuntimeSettings
}

func NewRuntimeSettingsStore(path string, initial RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{
		path:    path,
		current: initial,
	}, nil
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	if err := next.Validate(); err != nil {
		return RuntimeSettings{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		return RuntimeSettings{}, err
	}
	s.current = next
	return next, nil
}
