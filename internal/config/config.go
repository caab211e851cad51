package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"
)

const (
	ProviderOpenAI = "openai"
	ProviderCompat = "compat"
	ProviderOllama = "ollama"
)

// DefaultCacheBatchSize is the number of pending cache entries buffered in
// memory before a segment is written out.
const DefaultCacheBatchSize = 64

// LanguageConfig holds everything needed to run a tag extraction for one
// language: where the prompt assets live, which model to call and how, and
// where cached responses are persisted. Instances are immutable after the
// registry is loaded.
type LanguageConfig struct {
	Code string `yaml:"code"`

	TemplatePath string `yaml:"template"`
	ExamplesPath string `yaml:"examples"`

	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	BaseURL     string  `yaml:"base_url"`

	CacheDir       string `yaml:"cache_dir"`
	CacheBatchSize int    `yaml:"cache_batch_size"`
}

type registryFile struct {
	Languages []LanguageConfig `yaml:"languages"`
}

type UnsupportedLanguageError struct {
	Language string
}

func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("unsupported language '%s'", e.Language)
}

// Resolver maps language codes to their configs. It is constructed once from
// a registry file and injected wherever a config lookup is needed; changing
// the registry requires a restart.
type Resolver struct {
	languages map[string]LanguageConfig
}

func NewResolver(registryPath string) (*Resolver, error) {
	data, err := os.ReadFile(registryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read language registry %s: %w", registryPath, err)
	}

	var registry registryFile
	if err := yaml.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("failed to parse language registry %s: %w", registryPath, err)
	}

	if len(registry.Languages) == 0 {
		return nil, fmt.Errorf("language registry %s contains no languages", registryPath)
	}

	baseDir := filepath.Dir(registryPath)

	languages := make(map[string]LanguageConfig, len(registry.Languages))
	for _, lang := range registry.Languages {
		lang.Code = strings.ToLower(strings.TrimSpace(lang.Code))
		if lang.Code == "" {
			return nil, fmt.Errorf("language registry %s contains an entry with no code", registryPath)
		}
		if _, ok := languages[lang.Code]; ok {
			return nil, fmt.Errorf("duplicate language '%s' in registry %s", lang.Code, registryPath)
		}

		if lang.TemplatePath == "" {
			return nil, fmt.Errorf("language '%s' has no template path", lang.Code)
		}
		if lang.ExamplesPath == "" {
			return nil, fmt.Errorf("language '%s' has no examples path", lang.Code)
		}
		if lang.Model == "" {
			return nil, fmt.Errorf("language '%s' has no model", lang.Code)
		}

		// Relative asset paths are resolved against the registry file so the
		// whole bundle can be moved around as one directory.
		lang.TemplatePath = resolvePath(baseDir, lang.TemplatePath)
		lang.ExamplesPath = resolvePath(baseDir, lang.ExamplesPath)

		if lang.Provider == "" {
			lang.Provider = ProviderOpenAI
		}
		switch lang.Provider {
		case ProviderOpenAI, ProviderCompat, ProviderOllama:
		default:
			return nil, fmt.Errorf("language '%s' has unknown provider '%s'", lang.Code, lang.Provider)
		}
		if lang.Provider != ProviderOpenAI && lang.BaseURL == "" {
			return nil, fmt.Errorf("language '%s' uses provider '%s' but has no base_url", lang.Code, lang.Provider)
		}

		if lang.CacheBatchSize < 0 {
			return nil, fmt.Errorf("language '%s' has negative cache_batch_size", lang.Code)
		}
		if lang.CacheBatchSize == 0 {
			lang.CacheBatchSize = DefaultCacheBatchSize
		}
		if lang.CacheDir == "" {
			lang.CacheDir = lang.Code
		}

		languages[lang.Code] = lang
	}

	return &Resolver{languages: languages}, nil
}

// Resolve returns the config for a language code. Lookup is case-insensitive;
// unknown codes fail with UnsupportedLanguageError before any asset or
// network access happens.
func (r *Resolver) Resolve(lang string) (LanguageConfig, error) {
	cfg, ok := r.languages[strings.ToLower(strings.TrimSpace(lang))]
	if !ok {
		return LanguageConfig{}, &UnsupportedLanguageError{Language: lang}
	}
	return cfg, nil
}

// Languages returns all registered configs sorted by code.
func (r *Resolver) Languages() []LanguageConfig {
	out := make([]LanguageConfig, 0, len(r.languages))
	for _, cfg := range r.languages {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func resolvePath(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
