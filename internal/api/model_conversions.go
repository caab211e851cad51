package api

import (
	"encoding/json"
	"fmt"

	"tagger-backend/internal/config"
	"tagger-backend/internal/core"
	"tagger-backend/internal/database"
	"tagger-backend/pkg/api"
)

func convertExtraction(e database.Extraction) (api.Extraction, error) {
	tags, err := decodeTags(e)
	if err != nil {
		return api.Extraction{}, err
	}
	return api.Extraction{
		Id:           e.Id,
		Language:     e.Language,
		Model:        e.Model,
		Text:         e.Text,
		MaxTags:      e.MaxTags,
		Tags:         tags,
		CacheHit:     e.CacheHit,
		DurationMs:   e.DurationMs,
		CreationTime: e.CreationTime,
	}, nil
}

func convertExtractions(es []database.Extraction) ([]api.Extraction, error) {
	extractions := make([]api.Extraction, 0, len(es))
	for _, e := range es {
		converted, err := convertExtraction(e)
		if err != nil {
			return nil, err
		}
		extractions = append(extractions, converted)
	}
	return extractions, nil
}

func convertTagRecord(e database.Extraction) (core.TagRecord, error) {
	tags, err := decodeTags(e)
	if err != nil {
		return core.TagRecord{}, err
	}
	return core.TagRecord{
		Language: e.Language,
		Model:    e.Model,
		Text:     e.Text,
		Tags:     tags,
	}, nil
}

func convertLanguage(cfg config.LanguageConfig) api.Language {
	return api.Language{
		Code:        cfg.Code,
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
	}
}

func convertLanguages(cfgs []config.LanguageConfig) []api.Language {
	languages := make([]api.Language, 0, len(cfgs))
	for _, cfg := range cfgs {
		languages = append(languages, convertLanguage(cfg))
	}
	return languages
}

func convertTagStats(stats []database.TagStat) []api.TagCount {
	counts := make([]api.TagCount, 0, len(stats))
	for _, stat := range stats {
		counts = append(counts, api.TagCount{Tag: stat.Tag, Count: stat.Count})
	}
	return counts
}

func decodeTags(e database.Extraction) ([]string, error) {
	var tags []string
	if err := json.Unmarshal(e.Tags, &tags); err != nil {
		return nil, fmt.Errorf("extraction %s has malformed tags column: %w", e.Id, err)
	}
	return tags, nil
}
