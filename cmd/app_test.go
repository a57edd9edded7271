package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/vn-script-translator/internal/config"
	"github.com/MimeLyc/vn-script-translator/internal/jobs"
	"github.com/MimeLyc/vn-script-translator/internal/service"
	"github.com/MimeLyc/vn-script-translator/internal/translator"
)

type fixedDetector string

func (d fixedDetector) Detect(string) (string, error) {
	return string(d), nil
}

// newSeq2SeqServer answers every request with a fixed translation and counts
// the calls.
func newSeq2SeqServer(t *testing.T, translation string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"translation": translation})
	}))
	t.Cleanup(ts.Close)
	return ts, &calls
}

func testConfig(t *testing.T, backendURL string) *config.Config {
	t.Helper()
	t.Setenv("SEQ2SEQ_API_URL", backendURL)
	t.Setenv("SETTINGS_FILE", filepath.Join(t.TempDir(), "settings.json"))
	t.Setenv("CACHE_BACKEND", "memory")
	cfg, err := config.NewFromEnv()
	require.NoError(t, err)
	return cfg
}

func TestApp_NewExecutorTranslatesScript(t *testing.T) {
	ts, calls := newSeq2SeqServer(t, "Hola.")
	cfg := testConfig(t, ts.URL)

	a, err := newApp(cfg)
	require.NoError(t, err)
	defer a.Close()
	a.detector = fixedDetector("en")

	dir := t.TempDir()
	first := filepath.Join(dir, "a.rpy")
	second := filepath.Join(dir, "b.rpy")
	require.NoError(t, os.WriteFile(first, []byte("label start:\n    e \"Hello.\"\n"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("    e \"Hello.\"\n"), 0o644))

	exec, err := a.newExecutor()
	require.NoError(t, err)

	queue := jobs.NewQueue(jobs.WithTickInterval(5 * time.Millisecond))
	queue.Enqueue(first, second)
	summary := runQueue(context.Background(), queue, exec)
	assert.Equal(t, 2, summary.succeeded)
	assert.Zero(t, summary.failed)

	got, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "label start:\n    e \"Hola.\"\n", string(got))

	// the second file is served from the memory cache
	assert.Equal(t, int32(1), calls.Load())
}

func TestApp_NewExecutorUsesCurrentSettings(t *testing.T) {
	ts, _ := newSeq2SeqServer(t, "Bonjour.")
	cfg := testConfig(t, ts.URL)

	a, err := newApp(cfg)
	require.NoError(t, err)
	defer a.Close()

	a.settings = func() (config.RuntimeSettings, error) {
		return config.RuntimeSettings{TargetLanguage: "fr"}, nil
	}
	_, err = a.newExecutor()
	require.Error(t, err, "zero translation parameters are rejected")

	a.settings = func() (config.RuntimeSettings, error) {
		return config.RuntimeSettings{TargetLanguage: "fr", Translation: translator.DefaultTranslationConfig()}, nil
	}
	a.detector = fixedDetector("fr")
	exec, err := a.newExecutor()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "a.rpy")
	require.NoError(t, os.WriteFile(path, []byte("e \"Déjà vu.\"\n"), 0o644))
	result, err := exec(context.Background(), path, func(int) {})
	require.NoError(t, err)
	assert.Equal(t, 0, result.TranslatedLines, "already in the target language")
}

func TestLoadConfig_AppliesSettingsFileThenFlags(t *testing.T) {
	settingsPath := filepath.Join(t.TempDir(), "settings.json")
	settings := config.RuntimeSettings{
		TargetLanguage: "de",
		Translation:    translator.DefaultTranslationConfig(),
	}
	settings.Translation.BeamCount = 2
	require.NoError(t, config.WriteRuntimeSettingsFile(settingsPath, settings))
	t.Setenv("SETTINGS_FILE", settingsPath)

	cmd := &cobra.Command{Use: "translate"}
	opts := &translateOptions{}
	addTranslateFlags(cmd, opts)
	require.NoError(t, cmd.Flags().Parse([]string{"--temperature", "0.5"}))

	root := &rootOptions{envFile: filepath.Join(t.TempDir(), "missing.env")}
	cfg, err := loadConfig(root, flagOverrides(cmd, opts))
	require.NoError(t, err)
	assert.Equal(t, "de", cfg.Translate.TargetLanguage)
	assert.Equal(t, 2, cfg.Translate.Params.BeamCount)
	assert.Equal(t, 0.5, cfg.Translate.Params.Temperature)
	assert.Equal(t, 512, cfg.Translate.Params.MaxOutputLength, "unset flags keep their configured value")
}

func TestLoadConfig_InvalidFlagIsConfigError(t *testing.T) {
	t.Setenv("SETTINGS_FILE", filepath.Join(t.TempDir(), "settings.json"))

	cmd := &cobra.Command{Use: "translate"}
	opts := &translateOptions{}
	addTranslateFlags(cmd, opts)
	require.NoError(t, cmd.Flags().Parse([]string{"--max-length", "10"}))

	root := &rootOptions{envFile: filepath.Join(t.TempDir(), "missing.env")}
	_, err := loadConfig(root, flagOverrides(cmd, opts))
	require.Error(t, err)
	assert.True(t, service.IsErrorType(err, service.ErrConfig))
}

func TestCollectScripts(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "game")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	script := filepath.Join(nested, "script.rpy")
	require.NoError(t, os.WriteFile(script, []byte("e \"Hi.\"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "script.rpyc"), []byte{0}, 0o644))
	single := filepath.Join(dir, "single.txt")
	require.NoError(t, os.WriteFile(single, []byte("e \"Hi.\"\n"), 0o644))

	paths, err := collectScripts([]string{dir, single}, []string{".rpy"})
	require.NoError(t, err)
	assert.Equal(t, []string{script, single}, paths)

	_, err = collectScripts([]string{filepath.Join(dir, "missing")}, []string{".rpy"})
	require.Error(t, err)
}

func TestRunQueue_CancelStopsAfterCurrentFile(t *testing.T) {
	release := make(chan struct{})
	started := make(chan string, 3)
	exec := func(_ context.Context, path string, progress jobs.ProgressFunc) (*jobs.FileResult, error) {
		started <- path
		<-release
		progress(100)
		return &jobs.FileResult{}, nil
	}

	queue := jobs.NewQueue(jobs.WithTickInterval(5 * time.Millisecond))
	queue.Enqueue("a.rpy", "b.rpy", "c.rpy")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan runSummary, 1)
	go func() {
		done <- runQueue(ctx, queue, exec)
	}()

	require.Equal(t, "a.rpy", <-started)
	cancel()
	require.Eventually(t, func() bool {
		return queue.State() == jobs.StateStopped
	}, 2*time.Second, 5*time.Millisecond)
	close(release)

	summary := <-done
	assert.Equal(t, 1, summary.succeeded)
	assert.Equal(t, []string{"b.rpy", "c.rpy"}, queue.Snapshot().Pending)
}
