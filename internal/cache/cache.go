// Package cache stores finished segment translations.
package cache

// TranslationCache is the interface for translation caching.
type TranslationCache interface {
	// Get returns the cached translation and whether it was found.
	Get(key string) (string, bool)
	Set(key string, value string) error
}

// Nop caches nothing.
type Nop struct{}

func (Nop) Get(string) (string, bool) { return "", false }
func (Nop) Set(string, string) error  { return nil }

var _ TranslationCache = Nop{}
