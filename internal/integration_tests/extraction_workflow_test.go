package integrationtests

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	backend "tagger-backend/internal/api"
	"tagger-backend/internal/config"
	"tagger-backend/internal/core"
	"tagger-backend/internal/llm"
	"tagger-backend/internal/storage"
	"tagger-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const workflowTemplate = `Extract at most {{ .MaxTags }} topical tags.
{{- range .Examples }}
Text: {{ .Text }}
Tags: [{{ join .Tags ", " }}]
{{- end }}
Text: {{ .Text }}
Tags:`

const workflowExamples = `- text: "Central banks raised interest rates again this quarter."
  tags: ["economy", "interest rates"]
`

const workflowRegistry = `languages:
  - code: en
    template: tag_extractor_en.tmpl
    examples: en_tags_few_shot.yaml
    provider: openai
    model: gpt-4o-mini
    temperature: 0.2
`

type countingClient struct {
	mu    sync.Mutex
	reply string
	calls int
}

func (c *countingClient) Invoke(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.reply, nil
}

func (c *countingClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// TestExtractionWorkflow runs the whole service against real backends: the
// extraction records land in Postgres and the response cache lives in MinIO.
func TestExtractionWorkflow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db := createDB(t)

	endpoint := setupMinioContainer(t, ctx)
	provider, err := storage.NewS3Provider(&storage.S3ProviderConfig{
		S3EndpointURL:     endpoint,
		S3AccessKeyID:     minioUsername,
		S3SecretAccessKey: minioPassword,
		S3Region:          "us-east-1",
	})
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tag_extractor_en.tmpl"), []byte(workflowTemplate), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en_tags_few_shot.yaml"), []byte(workflowExamples), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "languages.yaml"), []byte(workflowRegistry), 0o644))

	resolver, err := config.NewResolver(filepath.Join(dir, "languages.yaml"))
	require.NoError(t, err)

	client := &countingClient{reply: `["economy", "trade"]`}
	extractor := core.NewExtractor(resolver, provider, "tag-cache", func(cfg config.LanguageConfig) (llm.Client, error) {
		return client, nil
	})

	service := backend.NewTaggingService(db, resolver, extractor)
	router := chi.NewRouter()
	service.AddRoutes(router)

	payload := api.ExtractTagsRequest{Text: "Tariffs reshaped global trade flows.", Language: "en", MaxTags: 5}

	var first api.ExtractTagsResponse
	require.NoError(t, httpRequest(router, http.MethodPost, "/tags/extract", payload, &first))
	assert.Equal(t, []string{"economy", "trade"}, first.Tags)
	assert.False(t, first.CacheHit)
	assert.Equal(t, 1, client.callCount())

	var second api.ExtractTagsResponse
	require.NoError(t, httpRequest(router, http.MethodPost, "/tags/extract", payload, &second))
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Tags, second.Tags)
	assert.Equal(t, 1, client.callCount())

	var list api.ListExtractionsResponse
	require.NoError(t, httpRequest(router, http.MethodGet, "/tags/extractions?language=en", nil, &list))
	assert.Equal(t, int64(2), list.Total)

	var stats api.TagStatsResponse
	require.NoError(t, httpRequest(router, http.MethodGet, "/tags/stats", nil, &stats))
	assert.Equal(t, []api.TagCount{
		{Tag: "economy", Count: 2},
		{Tag: "trade", Count: 2},
	}, stats.Tags)

	// Flush the buffered cache entry to MinIO, then prove a fresh extractor
	// picks it up without calling the model.
	require.NoError(t, extractor.Close(ctx))

	restarted := core.NewExtractor(resolver, provider, "tag-cache", func(cfg config.LanguageConfig) (llm.Client, error) {
		return client, nil
	})
	result, err := restarted.Extract(ctx, "en", payload.Text, payload.MaxTags)
	require.NoError(t, err)
	assert.True(t, result.CacheHit)
	assert.Equal(t, 1, client.callCount())

	var purge api.PurgeCacheResponse
	require.NoError(t, httpRequest(router, http.MethodDelete, "/tags/cache/en", nil, &purge))
	assert.Equal(t, "en", purge.Language)
	assert.Equal(t, 1, purge.EntriesRemoved)

	var third api.ExtractTagsResponse
	require.NoError(t, httpRequest(router, http.MethodPost, "/tags/extract", payload, &third))
	assert.False(t, third.CacheHit)
	assert.Equal(t, 2, client.callCount())
}
