package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"tagger-backend/internal/config"
	"tagger-backend/internal/core"
	"tagger-backend/internal/core/prompt"
	"tagger-backend/internal/database"
	"tagger-backend/internal/llm"
	"tagger-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

const defaultPageSize = 50

type TaggingService struct {
	db        *gorm.DB
	resolver  *config.Resolver
	extractor *core.Extractor
}

func NewTaggingService(db *gorm.DB, resolver *config.Resolver, extractor *core.Extractor) *TaggingService {
	return &TaggingService{db: db, resolver: resolver, extractor: extractor}
}

func (s *TaggingService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Route("/tags", func(r chi.Router) {
		r.Post("/extract", RestHandler(s.ExtractTags))
		r.Get("/languages", RestHandler(s.ListLanguages))
		r.Get("/stats", RestHandler(s.GetTagStats))
		r.Route("/extractions", func(r chi.Router) {
			r.Get("/", RestHandler(s.ListExtractions))
			r.Get("/{extraction_id}", RestHandler(s.GetExtraction))
			r.Delete("/{extraction_id}", RestHandler(s.DeleteExtraction))
		})
		r.Delete("/cache/{language}", RestHandler(s.PurgeCache))
	})
}

func (s *TaggingService) ExtractTags(r *http.Request) (any, error) {
	req, err := ParseRequest[api.ExtractTagsRequest](r)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(req.Text) == "" {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "missing required field: text")
	}
	if req.Language == "" {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "missing required field: language")
	}
	if req.MaxTags < 0 {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "max_tags must not be negative")
	}

	// The default is applied here rather than left to the extractor so the
	// stored record shows the limit that was actually in effect.
	maxTags := req.MaxTags
	if maxTags == 0 {
		maxTags = core.DefaultMaxTags
	}

	ctx := r.Context()

	result, err := s.extractor.Extract(ctx, req.Language, req.Text, maxTags)
	if err != nil {
		return nil, convertExtractionError(err)
	}

	extraction, err := database.SaveExtraction(ctx, s.db, result.Language, result.Model, req.Text, maxTags, result.Tags, result.CacheHit, result.Duration.Milliseconds())
	if err != nil {
		slog.Error("error saving extraction", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to save extraction record")
	}

	return api.ExtractTagsResponse{
		Id:         extraction.Id,
		Language:   result.Language,
		Model:      result.Model,
		Tags:       result.Tags,
		CacheHit:   result.CacheHit,
		DurationMs: result.Duration.Milliseconds(),
	}, nil
}

// convertExtractionError assigns an HTTP status to each failure mode of the
// extraction pipeline. The original error text is only exposed for failures
// the caller can act on.
func convertExtractionError(err error) error {
	var langErr *config.UnsupportedLanguageError
	if errors.As(err, &langErr) {
		return CodedError(http.StatusBadRequest, err)
	}

	var loadErr *prompt.ExampleLoadError
	if errors.As(err, &loadErr) {
		slog.Error("error loading few-shot examples", "error", err)
		return CodedErrorf(http.StatusInternalServerError, "failed to load prompt examples")
	}

	var renderErr *prompt.TemplateRenderError
	if errors.As(err, &renderErr) {
		slog.Error("error rendering prompt template", "error", err)
		return CodedErrorf(http.StatusInternalServerError, "failed to render prompt")
	}

	var invokeErr *llm.InvocationError
	if errors.As(err, &invokeErr) {
		slog.Error("error invoking model", "error", err)
		return CodedError(http.StatusBadGateway, err)
	}

	slog.Error("error extracting tags", "error", err)
	return CodedErrorf(http.StatusInternalServerError, "failed to extract tags")
}

func (s *TaggingService) ListExtractions(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ListExtractionsRequest](r)
	if err != nil {
		return nil, err
	}

	if params.Limit < 0 || params.Offset < 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "limit and offset must not be negative")
	}
	limit := params.Limit
	if limit == 0 {
		limit = defaultPageSize
	}

	ctx := r.Context()

	if params.Query == "" {
		extractions, total, err := database.ListExtractions(ctx, s.db, params.Language, limit, params.Offset)
		if err != nil {
			slog.Error("error listing extractions", "error", err)
			return nil, CodedErrorf(http.StatusInternalServerError, "failed to list extractions")
		}

		converted, err := convertExtractions(extractions)
		if err != nil {
			slog.Error("error converting extractions", "error", err)
			return nil, CodedErrorf(http.StatusInternalServerError, "failed to list extractions")
		}

		return api.ListExtractionsResponse{Extractions: converted, Total: total}, nil
	}

	filter, err := core.ParseQuery(params.Query)
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "invalid query '%s': %v", params.Query, err)
	}

	// Tag queries cannot be pushed down into SQL, so matching rows are
	// selected in memory and paginated afterwards.
	rows, _, err := database.ListExtractions(ctx, s.db, params.Language, 0, 0)
	if err != nil {
		slog.Error("error listing extractions", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to list extractions")
	}

	var matches []database.Extraction
	for _, row := range rows {
		record, err := convertTagRecord(row)
		if err != nil {
			slog.Error("error converting extraction", "error", err)
			return nil, CodedErrorf(http.StatusInternalServerError, "failed to list extractions")
		}
		if filter.Matches(record) {
			matches = append(matches, row)
		}
	}

	start := min(params.Offset, len(matches))
	end := min(start+limit, len(matches))

	converted, err := convertExtractions(matches[start:end])
	if err != nil {
		slog.Error("error converting extractions", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to list extractions")
	}

	return api.ListExtractionsResponse{Extractions: converted, Total: int64(len(matches))}, nil
}

func (s *TaggingService) GetExtraction(r *http.Request) (any, error) {
	extractionId, err := URLParamUUID(r, "extraction_id")
	if err != nil {
		return nil, err
	}

	extraction, err := database.GetExtraction(r.Context(), s.db, extractionId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "extraction not found")
		}
		slog.Error("error getting extraction", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving extraction record")
	}

	converted, err := convertExtraction(*extraction)
	if err != nil {
		slog.Error("error converting extraction", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving extraction record")
	}

	return converted, nil
}

func (s *TaggingService) DeleteExtraction(r *http.Request) (any, error) {
	extractionId, err := URLParamUUID(r, "extraction_id")
	if err != nil {
		return nil, err
	}

	if err := database.DeleteExtraction(r.Context(), s.db, extractionId); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "extraction not found")
		}
		slog.Error("error deleting extraction", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error deleting extraction record")
	}

	return nil, nil
}

func (s *TaggingService) ListLanguages(r *http.Request) (any, error) {
	return api.ListLanguagesResponse{Languages: convertLanguages(s.resolver.Languages())}, nil
}

func (s *TaggingService) GetTagStats(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.TagStatsRequest](r)
	if err != nil {
		return nil, err
	}

	if params.Limit < 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "limit must not be negative")
	}

	stats, err := database.GetTagStats(r.Context(), s.db, params.Language, params.Limit)
	if err != nil {
		slog.Error("error computing tag stats", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to compute tag stats")
	}

	return api.TagStatsResponse{Tags: convertTagStats(stats)}, nil
}

func (s *TaggingService) PurgeCache(r *http.Request) (any, error) {
	language := chi.URLParam(r, "language")
	if language == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "missing {language} url parameter")
	}

	cfg, err := s.resolver.Resolve(language)
	if err != nil {
		return nil, CodedError(http.StatusBadRequest, err)
	}

	removed, err := s.extractor.PurgeCache(r.Context(), cfg.Code)
	if err != nil {
		slog.Error("error purging cache", "language", cfg.Code, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to purge cache for language '%s'", cfg.Code)
	}

	slog.Info("purged response cache", "language", cfg.Code, "entries", removed)
	return api.PurgeCacheResponse{Language: cfg.Code, EntriesRemoved: removed}, nil
}
