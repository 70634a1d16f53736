package content

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	GenerationQueued    = "queued"
	GenerationRunning   = "running"
	GenerationSucceeded = "succeeded"
	GenerationFailed    = "failed"
)

type Generation struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	ProjectID  *uuid.UUID     `gorm:"type:uuid;index" json:"project_id,omitempty"`
	Tool       string         `gorm:"column:tool;not null;index" json:"tool"`
	Status     string         `gorm:"column:status;not null;index" json:"status"`
	Prompt     string         `gorm:"column:prompt;type:text" json:"prompt"`
	Input      datatypes.JSON `gorm:"column:input" json:"input,omitempty"`
	OutputText string         `gorm:"column:output_text;type:text" json:"output_text,omitempty"`
	AssetID    *uuid.UUID     `gorm:"type:uuid;column:asset_id" json:"asset_id,omitempty"`
	JobID      *uuid.UUID     `gorm:"type:uuid;column:job_id" json:"job_id,omitempty"`
	Error      string         `gorm:"column:error" json:"error,omitempty"`
	Publish    bool           `gorm:"column:publish;not null;default:false;index" json:"publish"`
	CreatedAt  time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`

	Asset *Asset `gorm:"-" json:"asset,omitempty"`
}

func (Generation) TableName() string { return "generation" }

func (g *Generation) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}
