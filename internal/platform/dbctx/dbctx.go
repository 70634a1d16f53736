package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context threads a request context and an optional open transaction into
// repository calls. A nil Tx means "use the repo's own handle".
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}
