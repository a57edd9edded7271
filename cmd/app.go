package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/MimeLyc/vn-script-translator/internal/cache"
	"github.com/MimeLyc/vn-script-translator/internal/config"
	"github.com/MimeLyc/vn-script-translator/internal/jobs"
	"github.com/MimeLyc/vn-script-translator/internal/langguard"
	"github.com/MimeLyc/vn-script-translator/internal/script"
	"github.com/MimeLyc/vn-script-translator/internal/service"
	"github.com/MimeLyc/vn-script-translator/internal/translator"
	"github.com/MimeLyc/vn-script-translator/pkg/log"
)

// loadConfig reads .env, the runtime settings file and the environment, then
// applies command-line overrides.
func loadConfig(root *rootOptions, overrides ...config.Option) (*config.Config, error) {
	if err := config.LoadDotEnv(root.envFile); err != nil {
		return nil, err
	}

	level := log.ParseLevel(os.Getenv("LOG_LEVEL"))
	if root.debug {
		level = log.LevelDebug
	}
	if root.logFile != "" {
		fileLogger, err := log.NewFileLogger(root.logFile, level)
		if err != nil {
			return nil, err
		}
		log.SetLogger(fileLogger.Logger)
	} else {
		log.InitLogger(level)
	}

	var opts []config.Option
	settingsPath := config.RuntimeSettingsFilePath()
	settings, err := config.LoadRuntimeSettingsFile(settingsPath)
	switch {
	case err == nil:
		log.Info("Using runtime settings from %s", settingsPath)
		opts = append(opts, config.WithRuntimeSettings(settings))
	case errors.Is(err, os.ErrNotExist):
	default:
		log.Warn("Ignoring runtime settings file %s: %v", settingsPath, err)
	}
	opts = append(opts, overrides...)

	cfg, err := config.NewFromEnv(opts...)
	if err != nil {
		return nil, service.WrapError(err, service.ErrConfig, "invalid configuration")
	}
	return cfg, nil
}

// settingsSource returns the settings a new run is frozen with.
type settingsSource func() (config.RuntimeSettings, error)

// app holds the long-lived pieces shared by every run.
type app struct {
	cfg      *config.Config
	cache    cache.TranslationCache
	detector langguard.Detector
	settings settingsSource

	closers []func() error
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{
		cfg:      cfg,
		detector: langguard.NewWhatlangDetector(),
		settings: func() (config.RuntimeSettings, error) {
			return cfg.RuntimeSettings(), nil
		},
	}

	switch cfg.Cache.Backend {
	case config.CacheMemory:
		a.cache = cache.NewInMemoryCache(cfg.Cache.TTL)
	case config.CacheRedis:
		redisCache, err := cache.NewRedisCache(cache.RedisConfig{
			URL: cfg.Cache.RedisURL,
			TTL: cfg.Cache.TTL,
		})
		if err != nil {
			return nil, service.WrapError(err, service.ErrConfig, "failed to connect translation cache")
		}
		a.closers = append(a.closers, redisCache.Close)
		a.cache = redisCache
	default:
		a.cache = cache.Nop{}
	}
	log.Info("Translation cache: %s", cfg.Cache.Backend)
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn("Close failed: %v", err)
		}
	}
}

// newBackend builds the translation backend for one target language.
func (a *app) newBackend(target string) (translator.Backend, error) {
	var backend translator.Backend
	var model string
	switch a.cfg.Backend.Kind {
	case config.BackendOpenAI:
		b, err := translator.NewOpenAIBackend(translator.OpenAIConfig{
			APIKey:         a.cfg.Backend.LLMAPIKey,
			APIURL:         a.cfg.Backend.LLMAPIURL,
			Model:          a.cfg.Backend.LLMModel,
			SourceLanguage: a.cfg.Translate.SourceLanguage,
			TargetLanguage: target,
		})
		if err != nil {
			return nil, err
		}
		backend = b
		model = a.cfg.Backend.LLMModel
	case config.BackendSeq2Seq:
		b, err := translator.NewSeq2SeqBackend(translator.Seq2SeqConfig{
			APIURL:         a.cfg.Backend.Seq2SeqAPIURL,
			Model:          a.cfg.Backend.Seq2SeqModel,
			SourceLanguage: a.cfg.Translate.SourceLanguage,
			TargetLanguage: target,
			Timeout:        a.cfg.Backend.Timeout,
		})
		if err != nil {
			return nil, err
		}
		backend = b
		model = a.cfg.Backend.Seq2SeqModel
	default:
		return nil, fmt.Errorf("unknown backend %q", a.cfg.Backend.Kind)
	}

	if _, ok := a.cache.(cache.Nop); ok {
		return backend, nil
	}
	return translator.NewCachedBackend(backend, a.cache, target,
		translator.WithBackendID(fmt.Sprintf("%s/%s", a.cfg.Backend.Kind, model))), nil
}

// newExecutor freezes the current settings into an executor for one run.
func (a *app) newExecutor() (jobs.Executor, error) {
	settings, err := a.settings()
	if err != nil {
		return nil, service.WrapError(err, service.ErrConfig, "failed to read runtime settings")
	}
	if err := settings.Validate(); err != nil {
		return nil, service.WrapError(err, service.ErrConfig, "invalid runtime settings")
	}

	backend, err := a.newBackend(settings.TargetLanguage)
	if err != nil {
		return nil, service.WrapError(err, service.ErrConfig, "failed to create translation backend")
	}

	processor := service.NewFileProcessor(
		backend,
		a.detector,
		service.WithReader(script.NewReader(a.cfg.Scripts.Encodings...)),
		service.WithBackupExt(a.cfg.Scripts.BackupExt),
	)
	log.Info("New run: target=%s backend=%s params=%s",
		settings.TargetLanguage, a.cfg.Backend.Kind, settings.Translation.Fingerprint())
	return processor.Executor(settings.Translation, settings.TargetLanguage), nil
}
