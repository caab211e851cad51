package api

import (
	"time"

	"github.com/google/uuid"
)

type ExtractTagsRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	MaxTags  int    `json:"max_tags"`
}

type ExtractTagsResponse struct {
	Id         uuid.UUID `json:"id"`
	Language   string    `json:"language"`
	Model      string    `json:"model"`
	Tags       []string  `json:"tags"`
	CacheHit   bool      `json:"cache_hit"`
	DurationMs int64     `json:"duration_ms"`
}

type Extraction struct {
	Id           uuid.UUID `json:"id"`
	Language     string    `json:"language"`
	Model        string    `json:"model"`
	Text         string    `json:"text"`
	MaxTags      int       `json:"max_tags"`
	Tags         []string  `json:"tags"`
	CacheHit     bool      `json:"cache_hit"`
	DurationMs   int64     `json:"duration_ms"`
	CreationTime time.Time `json:"creation_time"`
}

// ListExtractionsRequest is decoded from query params, not a JSON body.
type ListExtractionsRequest struct {
	Language string `schema:"language"`
	Query    string `schema:"query"`
	Limit    int    `schema:"limit"`
	Offset   int    `schema:"offset"`
}

type ListExtractionsResponse struct {
	Extractions []Extraction `json:"extractions"`
	Total       int64        `json:"total"`
}

type Language struct {
	Code        string  `json:"code"`
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
}

type ListLanguagesResponse struct {
	Languages []Language `json:"languages"`
}

type PurgeCacheResponse struct {
	Language       string `json:"language"`
	EntriesRemoved int    `json:"entries_removed"`
}

// TagStatsRequest is decoded from query params, not a JSON body.
type TagStatsRequest struct {
	Language string `schema:"language"`
	Limit    int    `schema:"limit"`
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int64  `json:"count"`
}

type TagStatsResponse struct {
	Tags []TagCount `json:"tags"`
}
