package billing

import (
	"time"

	"gorm.io/datatypes"
)

// Unlimited marks a plan limit with no bound.
const Unlimited = -1

type Plan struct {
	Key                  string                      `gorm:"column:key;primaryKey" json:"key" yaml:"key"`
	Name                 string                      `gorm:"column:name;not null" json:"name" yaml:"name"`
	Description          string                      `gorm:"column:description" json:"description" yaml:"description"`
	MonthlyPriceCents    int64                       `gorm:"column:monthly_price_cents;not null;default:0" json:"monthly_price_cents" yaml:"monthly_price_cents"`
	DailyLimit           int                         `gorm:"column:daily_limit;not null" json:"daily_limit" yaml:"daily_limit"`
	MonthlyLimit         int                         `gorm:"column:monthly_limit;not null" json:"monthly_limit" yaml:"monthly_limit"`
	Tools                datatypes.JSONSlice[string] `gorm:"column:tools" json:"tools" yaml:"tools"`
	MaxProjects          int                         `gorm:"column:max_projects;not null" json:"max_projects" yaml:"max_projects"`
	MaxMembersPerProject int                         `gorm:"column:max_members_per_project;not null" json:"max_members_per_project" yaml:"max_members_per_project"`
	StripePriceID        string                      `gorm:"column:stripe_price_id;index" json:"-" yaml:"stripe_price_id"`
	IsDefault            bool                        `gorm:"column:is_default;not null;default:false" json:"is_default" yaml:"default"`
	SortOrder            int                         `gorm:"column:sort_order;not null;default:0" json:"sort_order" yaml:"sort_order"`
	CreatedAt            time.Time                   `json:"-" yaml:"-"`
	UpdatedAt            time.Time                   `json:"-" yaml:"-"`
}

func (Plan) TableName() string { return "plan" }

func (p *Plan) AllowsTool(tool string) bool {
	if p == nil {
		return false
	}
	for _, t := range p.Tools {
		if t == tool {
			return true
		}
	}
	return false
}

func (p *Plan) IsPaid() bool { return p != nil && p.MonthlyPriceCents > 0 }

// WithinLimit reports whether used stays below limit, treating negative limits
// as unbounded.
func WithinLimit(used, limit int) bool {
	return limit < 0 || used < limit
}
