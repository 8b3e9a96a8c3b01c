package repository

import (
	"context"
	"fmt"

	"review-insights/internal/domain"
	"review-insights/pkg/database"
)

// SQLUnitOfWorkFactory starts SQL-backed UnitOfWork transactions.
type SQLUnitOfWorkFactory struct {
	db *database.DB
}

func NewSQLUnitOfWorkFactory(db *database.DB) *SQLUnitOfWorkFactory {
	return &SQLUnitOfWorkFactory{db: db}
}

// Ensure interface conformance
var (
	_ domain.UnitOfWorkFactory = (*SQLUnitOfWorkFactory)(nil)
	_ domain.UnitOfWork        = (*SQLUnitOfWork)(nil)
)

func (f *SQLUnitOfWorkFactory) Begin(ctx context.Context) (domain.UnitOfWork, error) {
	tx, err := f.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("uow: begin tx: %w", err)
	}
	return &SQLUnitOfWork{Tx: tx}, nil
}

// SQLUnitOfWork runs repository calls on a single transaction. Commit and
// Rollback are idempotent, so Rollback can always be deferred.
type SQLUnitOfWork struct {
	*database.Tx
}
