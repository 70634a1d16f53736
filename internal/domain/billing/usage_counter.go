package billing

import (
	"time"

	"github.com/google/uuid"
)

const (
	DayKeyLayout   = "2006-01-02"
	MonthKeyLayout = "2006-01"
)

type UsageCounter struct {
	UserID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	DayKey       string    `gorm:"column:day_key;not null" json:"day_key"`
	DailyCount   int       `gorm:"column:daily_count;not null;default:0" json:"daily_count"`
	MonthKey     string    `gorm:"column:month_key;not null" json:"month_key"`
	MonthlyCount int       `gorm:"column:monthly_count;not null;default:0" json:"monthly_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (UsageCounter) TableName() string { return "usage_counter" }

func DayKey(t time.Time) string   { return t.UTC().Format(DayKeyLayout) }
func MonthKey(t time.Time) string { return t.UTC().Format(MonthKeyLayout) }

// NextDayStart and NextMonthStart are the UTC instants the windows reset.
func NextDayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
}

func NextMonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}
