package user

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Email           string         `gorm:"uniqueIndex;not null;column:email" json:"email"`
	Password        string         `gorm:"not null;column:password" json:"-"`
	FirstName       string         `gorm:"not null;column:first_name" json:"first_name"`
	LastName        string         `gorm:"not null;column:last_name" json:"last_name"`
	AvatarColor     string         `gorm:"column:avatar_color" json:"avatar_color"`
	AvatarBucketKey string         `gorm:"column:avatar_bucket_key" json:"avatar_bucket_key,omitempty"`
	AvatarURL       string         `gorm:"column:avatar_url" json:"avatar_url"`
	IsAdmin         bool           `gorm:"column:is_admin;not null;default:false" json:"is_admin"`
	CreatedAt       time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string { return "user" }

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
