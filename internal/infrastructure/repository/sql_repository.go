package repository

import (
	"review-insights/internal/domain"
	"review-insights/pkg/database"
)

// SQLRepository is a thin adapter over pkg/database.DB to satisfy domain
// repositories. It keeps business logic decoupled from the SQL layer.
type SQLRepository struct {
	*database.DB
}

func NewSQLRepository(db *database.DB) *SQLRepository {
	return &SQLRepository{DB: db}
}

// Ensure interface compliance at compile time
var (
	_ domain.Repository         = (*SQLRepository)(nil)
	_ domain.ReviewRepository   = (*database.DB)(nil)
	_ domain.BusinessRepository = (*database.Tx)(nil)
)
