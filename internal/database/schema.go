package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Extraction is one stored tagging run. Tags holds the ordered tag list as
// returned to the caller; TagRows mirrors it one row per tag for aggregation.
type Extraction struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Language string `gorm:"size:20;not null;index"`
	Model    string `gorm:"size:64;not null"`

	Text    string `gorm:"not null"`
	MaxTags int    `gorm:"not null"`

	Tags datatypes.JSON `gorm:"type:jsonb;not null"` // ["tag1","tag2",…]

	CacheHit     bool  `gorm:"default:false"`
	DurationMs   int64 `gorm:"default:0"`
	CreationTime time.Time

	TagRows []ExtractionTag `gorm:"foreignKey:ExtractionId;constraint:OnDelete:CASCADE"`
}

type ExtractionTag struct {
	ExtractionId uuid.UUID `gorm:"type:uuid;primaryKey"`
	Tag          string    `gorm:"primaryKey"`
}
