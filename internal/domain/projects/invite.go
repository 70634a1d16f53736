package projects

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProjectInvite struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"project_id"`
	Email      string     `gorm:"column:email;not null;index" json:"email"`
	Role       Role       `gorm:"column:role;not null" json:"role"`
	TokenHash  string     `gorm:"column:token_hash;not null;uniqueIndex" json:"-"`
	InvitedBy  uuid.UUID  `gorm:"type:uuid;not null" json:"invited_by"`
	ExpiresAt  time.Time  `gorm:"column:expires_at;not null;index" json:"expires_at"`
	AcceptedAt *time.Time `gorm:"column:accepted_at" json:"accepted_at,omitempty"`
	AcceptedBy *uuid.UUID `gorm:"type:uuid;column:accepted_by" json:"accepted_by,omitempty"`
	RevokedAt  *time.Time `gorm:"column:revoked_at" json:"revoked_at,omitempty"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"not null" json:"updated_at"`
}

func (ProjectInvite) TableName() string { return "project_invite" }

func (i *ProjectInvite) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// Pending reports an invite that can still be claimed at now.
func (i *ProjectInvite) Pending(now time.Time) bool {
	return i != nil && i.AcceptedAt == nil && i.RevokedAt == nil && now.Before(i.ExpiresAt)
}
