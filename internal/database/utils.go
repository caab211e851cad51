package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func SaveExtraction(ctx context.Context, db *gorm.DB, language, model, text string, maxTags int, tags []string, cacheHit bool, durationMs int64) (*Extraction, error) {
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("could not marshal tags: %w", err)
	}

	extraction := Extraction{
		Id:           uuid.New(),
		Language:     language,
		Model:        model,
		Text:         text,
		MaxTags:      maxTags,
		Tags:         datatypes.JSON(tagsJSON),
		CacheHit:     cacheHit,
		DurationMs:   durationMs,
		CreationTime: time.Now().UTC(),
	}

	err = db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.Create(&extraction).Error; err != nil {
			return fmt.Errorf("failed to save extraction: %w", err)
		}

		if len(tags) > 0 {
			rows := make([]ExtractionTag, len(tags))
			for i, tag := range tags {
				rows[i] = ExtractionTag{ExtractionId: extraction.Id, Tag: tag}
			}
			if err := txn.Create(&rows).Error; err != nil {
				return fmt.Errorf("failed to save extraction tags: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &extraction, nil
}

func GetExtraction(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Extraction, error) {
	var extraction Extraction
	if err := db.WithContext(ctx).First(&extraction, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &extraction, nil
}

// ListExtractions returns rows newest first, along with the total count
// before limit and offset are applied. A language of "" means all languages;
// a limit of 0 means no limit.
func ListExtractions(ctx context.Context, db *gorm.DB, language string, limit, offset int) ([]Extraction, int64, error) {
	query := db.WithContext(ctx).Model(&Extraction{})
	if language != "" {
		query = query.Where("language = ?", language)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("could not count extractions: %w", err)
	}

	query = query.Order("creation_time DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var extractions []Extraction
	if err := query.Find(&extractions).Error; err != nil {
		return nil, 0, fmt.Errorf("could not list extractions: %w", err)
	}

	return extractions, total, nil
}

func DeleteExtraction(ctx context.Context, db *gorm.DB, id uuid.UUID) error {
	return db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		// Tag rows are removed explicitly since sqlite connections do not
		// always have foreign key enforcement enabled.
		if err := txn.Where("extraction_id = ?", id).Delete(&ExtractionTag{}).Error; err != nil {
			return fmt.Errorf("could not delete extraction tags: %w", err)
		}

		result := txn.Delete(&Extraction{}, "id = ?", id)
		if result.Error != nil {
			return fmt.Errorf("could not delete extraction: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return nil
	})
}

type TagStat struct {
	Tag   string `json:"tag"`
	Count int64  `json:"count"`
}

// GetTagStats aggregates how often each tag was produced, most frequent
// first. A language of "" means all languages; a limit of 0 means no limit.
func GetTagStats(ctx context.Context, db *gorm.DB, language string, limit int) ([]TagStat, error) {
	query := db.WithContext(ctx).
		Model(&ExtractionTag{}).
		Select("extraction_tags.tag AS tag, COUNT(*) AS count").
		Joins("JOIN extractions ON extractions.id = extraction_tags.extraction_id").
		Group("extraction_tags.tag").
		Order("count DESC").
		Order("tag ASC")

	if language != "" {
		query = query.Where("extractions.language = ?", language)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var stats []TagStat
	if err := query.Scan(&stats).Error; err != nil {
		return nil, fmt.Errorf("could not compute tag stats: %w", err)
	}

	return stats, nil
}
