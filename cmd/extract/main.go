package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"tagger-backend/cmd"
	"tagger-backend/internal/config"
	"tagger-backend/internal/core"
	"tagger-backend/internal/core/utils"
	"tagger-backend/internal/llm"

	"github.com/caarlos0/env/v11"
	"github.com/schollz/progressbar/v3"
)

type ExtractConfig struct {
	LanguagesConfig string `env:"LANGUAGES_CONFIG" envDefault:"./configs/languages.yaml"`
	CacheBucket     string `env:"CACHE_BUCKET" envDefault:"tag-cache"`
	Storage         cmd.StorageConfig
}

type taggedDocument struct {
	Text       string   `json:"text"`
	Language   string   `json:"language"`
	Model      string   `json:"model"`
	Tags       []string `json:"tags"`
	CacheHit   bool     `json:"cache_hit"`
	DurationMs int64    `json:"duration_ms"`
}

type indexedDoc struct {
	idx  int
	text string
}

type indexedResult struct {
	idx int
	doc taggedDocument
}

func main() {
	var (
		language    string
		input       string
		output      string
		maxTags     int
		concurrency int
	)
	flag.StringVar(&language, "language", "en", "language code of the input documents")
	flag.StringVar(&input, "input", "", "text file with one document per line")
	flag.StringVar(&output, "output", "", "file to write JSON lines to, defaults to stdout")
	flag.IntVar(&maxTags, "max-tags", core.DefaultMaxTags, "maximum number of tags per document")
	flag.IntVar(&concurrency, "concurrency", 4, "number of documents tagged in parallel")

	cmd.LoadEnvFile()

	var cfg ExtractConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	if input == "" {
		log.Fatalf("-input is required")
	}
	if maxTags < 0 {
		log.Fatalf("-max-tags must not be negative")
	}
	if concurrency < 1 {
		concurrency = 1
	}

	docs, err := readDocuments(input)
	if err != nil {
		log.Fatalf("error reading documents from '%s': %v", input, err)
	}
	if len(docs) == 0 {
		log.Fatalf("no documents found in '%s'", input)
	}

	resolver, err := config.NewResolver(cfg.LanguagesConfig)
	if err != nil {
		log.Fatalf("Failed to load language registry: %v", err)
	}

	provider, err := cmd.NewStorageProvider(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to create storage provider: %v", err)
	}

	extractor := core.NewExtractor(resolver, provider, cfg.CacheBucket, llm.NewClient)

	// Fail before any model call if the language is not registered.
	if _, err := resolver.Resolve(language); err != nil {
		log.Fatalf("cannot tag documents: %v", err)
	}

	out := os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			log.Fatalf("error creating output file '%s': %v", output, err)
		}
		defer f.Close()
		out = f
	}

	ctx := context.Background()

	worker := func(job indexedDoc) (indexedResult, error) {
		result, err := extractor.Extract(ctx, language, job.text, maxTags)
		if err != nil {
			return indexedResult{}, fmt.Errorf("error tagging document %d: %w", job.idx+1, err)
		}
		return indexedResult{
			idx: job.idx,
			doc: taggedDocument{
				Text:       job.text,
				Language:   result.Language,
				Model:      result.Model,
				Tags:       result.Tags,
				CacheHit:   result.CacheHit,
				DurationMs: result.Duration.Milliseconds(),
			},
		}, nil
	}

	queue := make(chan indexedDoc, len(docs))
	for i, doc := range docs {
		queue <- indexedDoc{idx: i, text: doc}
	}
	close(queue)
	completed := make(chan utils.CompletedTask[indexedResult], len(docs))

	bar := progressbar.NewOptions(len(docs),
		progressbar.OptionSetDescription("tagging"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
	)

	start := time.Now()
	utils.RunInPool(ctx, worker, queue, completed, concurrency)

	results := make([]*taggedDocument, len(docs))
	var errs []error
	for task := range completed {
		if task.Error != nil {
			errs = append(errs, task.Error)
		} else {
			results[task.Result.idx] = &task.Result.doc
		}
		_ = bar.Add(1)
	}

	// Results are written in input order regardless of completion order.
	encoder := json.NewEncoder(out)
	hits := 0
	for _, doc := range results {
		if doc == nil {
			continue
		}
		if doc.CacheHit {
			hits++
		}
		if err := encoder.Encode(doc); err != nil {
			log.Fatalf("error writing output: %v", err)
		}
	}

	if err := extractor.Close(ctx); err != nil {
		log.Printf("error flushing response caches: %v", err)
	}

	if len(errs) > 0 {
		log.Fatalf("failed to tag %d of %d documents: %v", len(errs), len(docs), errors.Join(errs[:min(3, len(errs))]...))
	}

	fmt.Fprintf(os.Stderr, "tagged %d documents in %s (%d cache hits)\n", len(docs), time.Since(start).Round(time.Millisecond), hits)
}

func readDocuments(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var docs []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			docs = append(docs, line)
		}
	}
	return docs, scanner.Err()
}
