package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"tagger-backend/internal/config"
	"tagger-backend/internal/llm"
	"tagger-backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const extractorTemplate = `Extract exactly {{ .MaxTags }} tags from the following text. Provide only the tags as a JSON array of strings.
{{- range .Examples }}
Text: {{ .Text }}
Tags: [{{ join .Tags ", " }}]
{{- end }}

Text: {{ .Text }}`

const extractorExamples = `
- text: "The match went to penalties after a goalless draw."
  tags: [sports, football]
`

const extractorRegistry = `
languages:
  - code: en
    template: templates/tags.tmpl
    examples: examples/en.yaml
    model: gpt-4o-mini
    temperature: 0.3
    cache_batch_size: 4
  - code: de
    template: templates/tags.tmpl
    examples: examples/en.yaml
    model: gpt-4o-mini
    temperature: 0.3
`

type fakeClient struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (f *fakeClient) Invoke(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type extractorEnv struct {
	resolver *config.Resolver
	provider storage.Provider
}

func newExtractorEnv(t *testing.T) *extractorEnv {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "templates"), os.ModePerm))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "examples"), os.ModePerm))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "templates", "tags.tmpl"), []byte(extractorTemplate), os.ModePerm))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "examples", "en.yaml"), []byte(extractorExamples), os.ModePerm))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "languages.yaml"), []byte(extractorRegistry), os.ModePerm))

	resolver, err := config.NewResolver(filepath.Join(dir, "languages.yaml"))
	require.NoError(t, err)

	provider, err := storage.NewLocalProvider(t.TempDir())
	require.NoError(t, err)

	return &extractorEnv{resolver: resolver, provider: provider}
}

func (env *extractorEnv) extractor(client llm.Client) *Extractor {
	factory := func(cfg config.LanguageConfig) (llm.Client, error) { return client, nil }
	return NewExtractor(env.resolver, env.provider, "cache", factory)
}

func TestExtract(t *testing.T) {
	env := newExtractorEnv(t)
	client := &fakeClient{reply: `["economy", "trade", "finance"]`}
	extractor := env.extractor(client)

	result, err := extractor.Extract(context.Background(), "en", "Central banks raised rates.", 5)
	require.NoError(t, err)

	assert.Equal(t, []string{"economy", "trade", "finance"}, result.Tags)
	assert.Equal(t, "en", result.Language)
	assert.Equal(t, "gpt-4o-mini", result.Model)
	assert.False(t, result.CacheHit)
	assert.Equal(t, 1, client.callCount())
}

func TestExtractSecondCallHitsCache(t *testing.T) {
	env := newExtractorEnv(t)
	client := &fakeClient{reply: `["economy", "trade"]`}
	extractor := env.extractor(client)
	ctx := context.Background()

	first, err := extractor.Extract(ctx, "en", "Central banks raised rates.", 5)
	require.NoError(t, err)
	require.False(t, first.CacheHit)

	second, err := extractor.Extract(ctx, "en", "Central banks raised rates.", 5)
	require.NoError(t, err)

	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Tags, second.Tags)
	assert.Equal(t, 1, client.callCount(), "the cached reply must not trigger a model call")
}

func TestExtractDistinctTextsAreDistinctCalls(t *testing.T) {
	env := newExtractorEnv(t)
	client := &fakeClient{reply: `["economy"]`}
	extractor := env.extractor(client)
	ctx := context.Background()

	_, err := extractor.Extract(ctx, "en", "first text", 5)
	require.NoError(t, err)
	_, err = extractor.Extract(ctx, "en", "second text", 5)
	require.NoError(t, err)

	assert.Equal(t, 2, client.callCount())
}

func TestExtractUnsupportedLanguage(t *testing.T) {
	env := newExtractorEnv(t)
	client := &fakeClient{reply: `["economy"]`}
	extractor := env.extractor(client)

	_, err := extractor.Extract(context.Background(), "xx", "some text", 5)
	require.Error(t, err)

	var langErr *config.UnsupportedLanguageError
	require.True(t, errors.As(err, &langErr))
	assert.Equal(t, "xx", langErr.Language)
	assert.Equal(t, 0, client.callCount(), "unsupported languages must fail before any model call")
}

func TestExtractEmptyText(t *testing.T) {
	env := newExtractorEnv(t)
	client := &fakeClient{reply: `["economy"]`}
	extractor := env.extractor(client)

	_, err := extractor.Extract(context.Background(), "en", "   \n\t", 5)
	require.Error(t, err)
	assert.Equal(t, 0, client.callCount())
}

func TestExtractNegativeMaxTags(t *testing.T) {
	env := newExtractorEnv(t)
	client := &fakeClient{reply: `["economy"]`}
	extractor := env.extractor(client)

	_, err := extractor.Extract(context.Background(), "en", "some text", -3)
	require.Error(t, err)
	assert.Equal(t, 0, client.callCount())
}

func TestExtractDefaultMaxTags(t *testing.T) {
	env := newExtractorEnv(t)
	client := &fakeClient{reply: `["t1","t2","t3","t4","t5","t6","t7","t8","t9","t10","t11","t12"]`}
	extractor := env.extractor(client)

	result, err := extractor.Extract(context.Background(), "en", "some text", 0)
	require.NoError(t, err)
	assert.Len(t, result.Tags, DefaultMaxTags)
}

func TestExtractSingleTag(t *testing.T) {
	env := newExtractorEnv(t)
	client := &fakeClient{reply: `["economy", "trade"]`}
	extractor := env.extractor(client)

	result, err := extractor.Extract(context.Background(), "en", "some text", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"economy"}, result.Tags)
}

func TestExtractFewerTagsThanRequested(t *testing.T) {
	env := newExtractorEnv(t)
	client := &fakeClient{reply: `["economy", "trade"]`}
	extractor := env.extractor(client)

	result, err := extractor.Extract(context.Background(), "en", "some text", 10)
	require.NoError(t, err)
	assert.Len(t, result.Tags, 2, "short replies are returned as is, never padded")
}

func TestExtractTagInvariants(t *testing.T) {
	env := newExtractorEnv(t)
	client := &fakeClient{reply: `["Economy", "economy", "", "trade", "ECONOMY", "finance", "markets"]`}
	extractor := env.extractor(client)

	result, err := extractor.Extract(context.Background(), "en", "some text", 3)
	require.NoError(t, err)

	assert.Equal(t, []string{"Economy", "trade", "finance"}, result.Tags)
	for _, tag := range result.Tags {
		assert.NotEmpty(t, tag)
	}
}

func TestExtractModelErrorPropagates(t *testing.T) {
	env := newExtractorEnv(t)
	client := &fakeClient{err: &llm.InvocationError{
		Provider:   config.ProviderOpenAI,
		Model:      "gpt-4o-mini",
		StatusCode: 502,
		Err:        fmt.Errorf("bad gateway"),
	}}
	extractor := env.extractor(client)
	ctx := context.Background()

	_, err := extractor.Extract(ctx, "en", "some text", 5)
	require.Error(t, err)

	var invErr *llm.InvocationError
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, 502, invErr.StatusCode)

	// A failed invocation must not be cached.
	_, err = extractor.Extract(ctx, "en", "some text", 5)
	require.Error(t, err)
	assert.Equal(t, 2, client.callCount())
}

type failingPutProvider struct {
	storage.Provider
}

func (p *failingPutProvider) PutObject(ctx context.Context, bucket, key string, data io.Reader) error {
	return fmt.Errorf("storage offline")
}

func TestExtractSurvivesPersistFailure(t *testing.T) {
	env := newExtractorEnv(t)
	env.provider = &failingPutProvider{Provider: env.provider}

	client := &fakeClient{reply: `["economy"]`}
	extractor := env.extractor(client)
	ctx := context.Background()

	// The en cache flushes every 4 entries; the 4th put fails to persist.
	for i := 0; i < 4; i++ {
		result, err := extractor.Extract(ctx, "en", fmt.Sprintf("text %d", i), 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"economy"}, result.Tags)
	}

	// All entries stay readable from the buffer.
	for i := 0; i < 4; i++ {
		result, err := extractor.Extract(ctx, "en", fmt.Sprintf("text %d", i), 5)
		require.NoError(t, err)
		assert.True(t, result.CacheHit)
	}
	assert.Equal(t, 4, client.callCount())
}

func TestExtractorCloseFlushes(t *testing.T) {
	env := newExtractorEnv(t)
	ctx := context.Background()

	client := &fakeClient{reply: `["economy", "trade"]`}
	extractor := env.extractor(client)

	_, err := extractor.Extract(ctx, "en", "first text", 5)
	require.NoError(t, err)
	_, err = extractor.Extract(ctx, "en", "second text", 5)
	require.NoError(t, err)

	require.NoError(t, extractor.Close(ctx))

	// A new extractor over the same storage serves both texts from cache.
	restarted := &fakeClient{reply: `["should not be called"]`}
	extractor = env.extractor(restarted)

	result, err := extractor.Extract(ctx, "en", "first text", 5)
	require.NoError(t, err)
	assert.True(t, result.CacheHit)
	assert.Equal(t, []string{"economy", "trade"}, result.Tags)

	result, err = extractor.Extract(ctx, "en", "second text", 5)
	require.NoError(t, err)
	assert.True(t, result.CacheHit)

	assert.Equal(t, 0, restarted.callCount())
}

func TestExtractPerLanguageCaches(t *testing.T) {
	env := newExtractorEnv(t)
	client := &fakeClient{reply: `["economy"]`}
	extractor := env.extractor(client)
	ctx := context.Background()

	_, err := extractor.Extract(ctx, "en", "shared text", 5)
	require.NoError(t, err)

	// Same text in another language is a different invocation.
	result, err := extractor.Extract(ctx, "de", "shared text", 5)
	require.NoError(t, err)
	assert.False(t, result.CacheHit)
	assert.Equal(t, 2, client.callCount())

	result, err = extractor.Extract(ctx, "en", "shared text", 5)
	require.NoError(t, err)
	assert.True(t, result.CacheHit)
	assert.Equal(t, 2, client.callCount())
}

func TestPurgeCache(t *testing.T) {
	env := newExtractorEnv(t)
	client := &fakeClient{reply: `["economy"]`}
	extractor := env.extractor(client)
	ctx := context.Background()

	_, err := extractor.Extract(ctx, "en", "first text", 5)
	require.NoError(t, err)
	_, err = extractor.Extract(ctx, "en", "second text", 5)
	require.NoError(t, err)

	removed, err := extractor.PurgeCache(ctx, "en")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	result, err := extractor.Extract(ctx, "en", "first text", 5)
	require.NoError(t, err)
	assert.False(t, result.CacheHit)
	assert.Equal(t, 3, client.callCount())
}

func TestPurgeCacheUnsupportedLanguage(t *testing.T) {
	env := newExtractorEnv(t)
	extractor := env.extractor(&fakeClient{reply: `["economy"]`})

	_, err := extractor.PurgeCache(context.Background(), "xx")
	require.Error(t, err)

	var langErr *config.UnsupportedLanguageError
	assert.True(t, errors.As(err, &langErr))
}
