package billing

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

type BillingEventRepo interface {
	// MarkProcessed records eventID and reports whether it was new.
	MarkProcessed(dbc dbctx.Context, eventID, eventType string) (bool, error)
}

type billingEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBillingEventRepo(db *gorm.DB, baseLog *logger.Logger) BillingEventRepo {
	return &billingEventRepo{db: db, log: baseLog.With("repo", "BillingEventRepo")}
}

func (r *billingEventRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *billingEventRepo) MarkProcessed(dbc dbctx.Context, eventID, eventType string) (bool, error) {
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&types.BillingEvent{EventID: eventID, Type: eventType, ProcessedAt: time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
