package core

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"tagger-backend/internal/cache"
	"tagger-backend/internal/config"
	"tagger-backend/internal/core/prompt"
	"tagger-backend/internal/llm"
	"tagger-backend/internal/storage"
)

// DefaultMaxTags is used when a request does not say how many tags it wants.
const DefaultMaxTags = 10

// ClientFactory builds the model client for a language. Tests substitute
// fakes here; production callers pass llm.NewClient.
type ClientFactory func(cfg config.LanguageConfig) (llm.Client, error)

// TagResult is the outcome of one extraction.
type TagResult struct {
	Language string
	Model    string
	Tags     []string
	CacheHit bool
	Duration time.Duration
}

// Extractor runs the full tagging pipeline: resolve the language, render the
// prompt, consult the language's response cache, and only then call the
// model. Caches and clients are created on first use per language.
type Extractor struct {
	resolver *config.Resolver
	examples *prompt.ExampleStore
	renderer *prompt.Renderer
	provider storage.Provider
	bucket   string
	clients  ClientFactory

	mu          sync.Mutex
	caches      map[string]*cache.Cache
	liveClients map[string]llm.Client
}

func NewExtractor(resolver *config.Resolver, provider storage.Provider, bucket string, clients ClientFactory) *Extractor {
	return &Extractor{
		resolver:    resolver,
		examples:    prompt.NewExampleStore(),
		renderer:    prompt.NewRenderer(),
		provider:    provider,
		bucket:      bucket,
		clients:     clients,
		caches:      make(map[string]*cache.Cache),
		liveClients: make(map[string]llm.Client),
	}
}

// Extract produces at most maxTags topical tags for the text in the given
// language. A maxTags of zero means DefaultMaxTags. Any failure along the
// pipeline aborts the extraction; there are no partial results. The one
// exception is cache persistence, which is logged and never fails a request.
func (e *Extractor) Extract(ctx context.Context, language, text string, maxTags int) (TagResult, error) {
	start := time.Now()

	cfg, err := e.resolver.Resolve(language)
	if err != nil {
		return TagResult{}, err
	}

	if maxTags == 0 {
		maxTags = DefaultMaxTags
	}

	examples, err := e.examples.Load(cfg.ExamplesPath)
	if err != nil {
		return TagResult{}, err
	}

	rendered, err := e.renderer.Render(cfg.TemplatePath, prompt.Request{
		Text:     text,
		MaxTags:  maxTags,
		Examples: examples,
	})
	if err != nil {
		return TagResult{}, err
	}

	languageCache, err := e.cacheFor(ctx, cfg)
	if err != nil {
		return TagResult{}, err
	}

	// maxTags and the few-shot examples are part of the rendered prompt, so
	// the fingerprint covers them.
	fingerprint := cache.Fingerprint(cfg.Code, cfg.Model, cfg.Temperature, rendered)

	reply, cacheHit := languageCache.Get(fingerprint)
	if !cacheHit {
		client, err := e.clientFor(cfg)
		if err != nil {
			return TagResult{}, err
		}

		reply, err = client.Invoke(ctx, rendered)
		if err != nil {
			return TagResult{}, err
		}

		if err := languageCache.Put(ctx, fingerprint, cfg.Model, reply); err != nil {
			slog.Warn("failed to persist cache entry", "language", cfg.Code, "error", err)
		}
	}

	return TagResult{
		Language: cfg.Code,
		Model:    cfg.Model,
		Tags:     ParseTags(reply, maxTags),
		CacheHit: cacheHit,
		Duration: time.Since(start),
	}, nil
}

// PurgeCache drops the language's cached replies, in memory and persisted,
// returning the number of entries removed.
func (e *Extractor) PurgeCache(ctx context.Context, language string) (int, error) {
	cfg, err := e.resolver.Resolve(language)
	if err != nil {
		return 0, err
	}

	languageCache, err := e.cacheFor(ctx, cfg)
	if err != nil {
		return 0, err
	}

	return languageCache.Purge(ctx)
}

// Close flushes every open cache. The extractor stays usable afterwards; the
// name marks the call sites that run on shutdown.
func (e *Extractor) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	for language, languageCache := range e.caches {
		if err := languageCache.Flush(ctx); err != nil {
			slog.Error("failed to flush cache on close", "language", language, "error", err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (e *Extractor) cacheFor(ctx context.Context, cfg config.LanguageConfig) (*cache.Cache, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.caches[cfg.Code]; ok {
		return c, nil
	}

	c, err := cache.New(ctx, e.provider, e.bucket, cfg.CacheDir, cfg.Code, cfg.CacheBatchSize)
	if err != nil {
		return nil, err
	}

	e.caches[cfg.Code] = c
	return c, nil
}

func (e *Extractor) clientFor(cfg config.LanguageConfig) (llm.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if client, ok := e.liveClients[cfg.Code]; ok {
		return client, nil
	}

	client, err := e.clients(cfg)
	if err != nil {
		return nil, err
	}

	e.liveClients[cfg.Code] = client
	return client, nil
}
