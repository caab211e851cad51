package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"tagger-backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRegistry(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "languages.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

const testRegistry = `
languages:
  - code: en
    template: templates/tag_extractor_en.tmpl
    examples: examples/en_tags_few_shot.yaml
    model: gpt-4o-mini
    temperature: 0.3
  - code: de
    template: templates/tag_extractor_de.tmpl
    examples: examples/de_tags_few_shot.yaml
    provider: ollama
    base_url: http://localhost:11434
    model: llama3.1
    cache_dir: german
    cache_batch_size: 16
`

func TestResolveKnownLanguage(t *testing.T) {
	path := writeRegistry(t, testRegistry)

	resolver, err := config.NewResolver(path)
	require.NoError(t, err)

	cfg, err := resolver.Resolve("en")
	require.NoError(t, err)

	assert.Equal(t, "en", cfg.Code)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "templates/tag_extractor_en.tmpl"), cfg.TemplatePath)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "examples/en_tags_few_shot.yaml"), cfg.ExamplesPath)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, 0.3, cfg.Temperature)

	// Defaults applied at load time.
	assert.Equal(t, config.ProviderOpenAI, cfg.Provider)
	assert.Equal(t, config.DefaultCacheBatchSize, cfg.CacheBatchSize)
	assert.Equal(t, "en", cfg.CacheDir)
}

func TestResolveExplicitSettings(t *testing.T) {
	path := writeRegistry(t, testRegistry)

	resolver, err := config.NewResolver(path)
	require.NoError(t, err)

	cfg, err := resolver.Resolve("de")
	require.NoError(t, err)

	assert.Equal(t, config.ProviderOllama, cfg.Provider)
	assert.Equal(t, "http://localhost:11434", cfg.BaseURL)
	assert.Equal(t, "llama3.1", cfg.Model)
	assert.Equal(t, "german", cfg.CacheDir)
	assert.Equal(t, 16, cfg.CacheBatchSize)
}

func TestResolveIsCaseInsensitive(t *testing.T) {
	path := writeRegistry(t, testRegistry)

	resolver, err := config.NewResolver(path)
	require.NoError(t, err)

	for _, lang := range []string{"EN", "En", " en "} {
		cfg, err := resolver.Resolve(lang)
		require.NoError(t, err)
		assert.Equal(t, "en", cfg.Code)
	}
}

func TestResolveUnknownLanguage(t *testing.T) {
	path := writeRegistry(t, testRegistry)

	resolver, err := config.NewResolver(path)
	require.NoError(t, err)

	_, err = resolver.Resolve("xx")
	require.Error(t, err)

	var unsupported *config.UnsupportedLanguageError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "xx", unsupported.Language)
}

func TestListLanguages(t *testing.T) {
	path := writeRegistry(t, testRegistry)

	resolver, err := config.NewResolver(path)
	require.NoError(t, err)

	languages := resolver.Languages()
	require.Len(t, languages, 2)
	assert.Equal(t, "de", languages[0].Code)
	assert.Equal(t, "en", languages[1].Code)
}

func TestRegistryValidation(t *testing.T) {
	tests := []struct {
		name     string
		registry string
	}{
		{"empty registry", `languages: []`},
		{"missing code", `
languages:
  - template: a.tmpl
    examples: a.yaml
    model: gpt-4o-mini
`},
		{"missing template", `
languages:
  - code: en
    examples: a.yaml
    model: gpt-4o-mini
`},
		{"missing examples", `
languages:
  - code: en
    template: a.tmpl
    model: gpt-4o-mini
`},
		{"missing model", `
languages:
  - code: en
    template: a.tmpl
    examples: a.yaml
`},
		{"duplicate code", `
languages:
  - code: en
    template: a.tmpl
    examples: a.yaml
    model: gpt-4o-mini
  - code: EN
    template: b.tmpl
    examples: b.yaml
    model: gpt-4o-mini
`},
		{"unknown provider", `
languages:
  - code: en
    template: a.tmpl
    examples: a.yaml
    model: gpt-4o-mini
    provider: bedrock
`},
		{"compat without base_url", `
languages:
  - code: en
    template: a.tmpl
    examples: a.yaml
    model: gpt-4o-mini
    provider: compat
`},
		{"negative batch size", `
languages:
  - code: en
    template: a.tmpl
    examples: a.yaml
    model: gpt-4o-mini
    cache_batch_size: -1
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeRegistry(t, tt.registry)
			_, err := config.NewResolver(path)
			assert.Error(t, err)
		})
	}
}

func TestMissingRegistryFile(t *testing.T) {
	_, err := config.NewResolver(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
