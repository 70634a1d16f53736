package content

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	AssetKindImage = "image"
	AssetKindText  = "text"
)

type Asset struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	ProjectID    *uuid.UUID     `gorm:"type:uuid;index" json:"project_id,omitempty"`
	GenerationID *uuid.UUID     `gorm:"type:uuid;index" json:"generation_id,omitempty"`
	Kind         string         `gorm:"column:kind;not null" json:"kind"`
	MimeType     string         `gorm:"column:mime_type" json:"mime_type"`
	StorageKey   string         `gorm:"column:storage_key" json:"-"`
	ThumbnailKey string         `gorm:"column:thumbnail_key" json:"-"`
	URL          string         `gorm:"column:url" json:"url,omitempty"`
	ThumbnailURL string         `gorm:"column:thumbnail_url" json:"thumbnail_url,omitempty"`
	Title        string         `gorm:"column:title" json:"title"`
	Body         string         `gorm:"column:body;type:text" json:"body,omitempty"`
	SizeBytes    int64          `gorm:"column:size_bytes;not null;default:0" json:"size_bytes"`
	CreatedAt    time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Asset) TableName() string { return "asset" }

func (a *Asset) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
