package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"tagger-backend/internal/config"
	"tagger-backend/internal/storage"

	"github.com/google/uuid"
)

const segmentSuffix = ".jsonl"

// Entry is one persisted model reply. Segments are self-describing: every
// record carries the language and model it was produced under.
type Entry struct {
	Fingerprint  string    `json:"fingerprint"`
	Language     string    `json:"language"`
	Model        string    `json:"model"`
	Response     string    `json:"response"`
	CreationTime time.Time `json:"creation_time"`
}

// PersistError is returned when a cache segment cannot be written or removed.
// The in-memory state is unchanged, so callers can treat it as non-fatal.
type PersistError struct {
	Language string
	Err      error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("failed to persist cache segment for language '%s': %v", e.Language, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// Fingerprint identifies a model invocation. Two requests share a fingerprint
// exactly when they would produce the same call to the same model.
func Fingerprint(language, model string, temperature float64, prompt string) string {
	payload := strings.Join([]string{
		language,
		model,
		strconv.FormatFloat(temperature, 'g', -1, 64),
		prompt,
	}, "\x00")

	digest := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(digest[:])
}

// Cache holds the model replies for a single language. Reads are served from
// memory; writes are buffered and persisted in batches as JSONL segments under
// the language's prefix.
type Cache struct {
	mu        sync.Mutex
	provider  storage.Provider
	bucket    string
	prefix    string
	language  string
	batchSize int
	entries   map[string]string
	pending   []Entry
}

func New(ctx context.Context, provider storage.Provider, bucket, prefix, language string, batchSize int) (*Cache, error) {
	if batchSize <= 0 {
		batchSize = config.DefaultCacheBatchSize
	}

	if err := provider.CreateBucket(ctx, bucket); err != nil {
		return nil, fmt.Errorf("failed to prepare cache bucket %s: %w", bucket, err)
	}

	c := &Cache{
		provider:  provider,
		bucket:    bucket,
		prefix:    prefix,
		language:  language,
		batchSize: batchSize,
		entries:   make(map[string]string),
	}

	if err := c.load(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Cache) load(ctx context.Context) error {
	objects, err := c.provider.ListObjects(ctx, c.bucket, c.prefix)
	if err != nil {
		return fmt.Errorf("failed to list cache segments for language '%s': %w", c.language, err)
	}

	segments := 0
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Name, segmentSuffix) {
			continue
		}

		data, err := c.provider.GetObject(ctx, c.bucket, obj.Name)
		if err != nil {
			return fmt.Errorf("failed to read cache segment %s: %w", obj.Name, err)
		}
		segments++

		for i, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			var entry Entry
			if err := json.Unmarshal([]byte(line), &entry); err != nil {
				slog.Warn("skipping corrupt cache record", "language", c.language, "segment", obj.Name, "line", i+1, "error", err)
				continue
			}
			if entry.Fingerprint == "" {
				slog.Warn("skipping cache record without fingerprint", "language", c.language, "segment", obj.Name, "line", i+1)
				continue
			}

			if _, ok := c.entries[entry.Fingerprint]; !ok {
				c.entries[entry.Fingerprint] = entry.Response
			}
		}
	}

	if segments > 0 {
		slog.Info("loaded response cache", "language", c.language, "segments", segments, "entries", len(c.entries))
	}

	return nil
}

// Get returns the cached reply for the fingerprint, if any.
func (c *Cache) Get(fingerprint string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	response, ok := c.entries[fingerprint]
	return response, ok
}

// Put records a reply. The first write for a fingerprint wins; later writes
// for the same fingerprint are ignored. Reaching the batch size triggers a
// flush; a flush failure leaves the entry buffered and readable.
func (c *Cache) Put(ctx context.Context, fingerprint, model, response string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[fingerprint]; ok {
		return nil
	}

	c.entries[fingerprint] = response
	c.pending = append(c.pending, Entry{
		Fingerprint:  fingerprint,
		Language:     c.language,
		Model:        model,
		Response:     response,
		CreationTime: time.Now().UTC(),
	})

	if len(c.pending) >= c.batchSize {
		return c.flushLocked(ctx)
	}
	return nil
}

// Flush persists all buffered entries as a new segment.
func (c *Cache) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.flushLocked(ctx)
}

func (c *Cache) flushLocked(ctx context.Context) error {
	if len(c.pending) == 0 {
		return nil
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, entry := range c.pending {
		if err := encoder.Encode(entry); err != nil {
			return &PersistError{Language: c.language, Err: err}
		}
	}

	key := fmt.Sprintf("%s/segment-%s%s", c.prefix, uuid.New().String(), segmentSuffix)
	if err := c.provider.PutObject(ctx, c.bucket, key, &buf); err != nil {
		// Entries stay buffered so a later flush can retry them.
		return &PersistError{Language: c.language, Err: err}
	}

	slog.Info("flushed cache segment", "language", c.language, "segment", key, "entries", len(c.pending))
	c.pending = nil

	return nil
}

// Purge drops every persisted segment and all in-memory entries, returning
// the number of entries removed. On failure the cache is left untouched.
func (c *Cache) Purge(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.provider.DeleteObjects(ctx, c.bucket, c.prefix); err != nil {
		return 0, &PersistError{Language: c.language, Err: err}
	}

	removed := len(c.entries)
	c.entries = make(map[string]string)
	c.pending = nil

	return removed, nil
}

// Size reports the number of entries readable from memory, buffered ones
// included.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}
