package translator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/MimeLyc/vn-script-translator/internal/cache"
	"github.com/MimeLyc/vn-script-translator/pkg/log"
)

// CachedBackend serves repeated segments from a cache. Failed and empty
// translations are never cached.
type CachedBackend struct {
	backend   Backend
	cache     cache.TranslationCache
	target    string
	backendID string
}

type CachedOption func(*CachedBackend)

// WithBackendID scopes cache entries to one backend, e.g. "openai/gpt-4o-mini",
// so switching backends or models does not serve the previous one's output.
func WithBackendID(id string) CachedOption {
	return func(b *CachedBackend) {
		b.backendID = id
	}
}

func NewCachedBackend(backend Backend, c cache.TranslationCache, targetLanguage string, opts ...CachedOption) *CachedBackend {
	b := &CachedBackend{
		backend: backend,
		cache:   c,
		target:  targetLanguage,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *CachedBackend) Translate(ctx context.Context, text string, cfg TranslationConfig) (string, error) {
	key := CacheKey(b.backendID, text, b.target, cfg)
	if hit, ok := b.cache.Get(key); ok {
		return hit, nil
	}

	translated, err := b.backend.Translate(ctx, text, cfg)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(translated) == "" {
		return translated, nil
	}
	if err := b.cache.Set(key, translated); err != nil {
		log.Warn("Failed to cache translation: %v", err)
	}
	return translated, nil
}

// CacheKey is sha256(trimmed text) + target language + parameter fingerprint,
// prefixed with the backend id when there is one.
func CacheKey(backendID, text, targetLanguage string, cfg TranslationConfig) string {
	hash := sha256.Sum256([]byte(strings.TrimSpace(text)))
	key := hex.EncodeToString(hash[:]) + ":" + targetLanguage + ":" + cfg.Fingerprint()
	if backendID == "" {
		return key
	}
	return backendID + ":" + key
}
