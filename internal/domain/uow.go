package domain

import "context"

// UnitOfWork runs a set of business repository operations in one database
// transaction. Handlers use it where a read decides a following write
// (find-or-create business, lowest free competitor rank).
//
// Typical usage:
//
//	uow, err := factory.Begin(ctx)
//	if err != nil { ... }
//	defer uow.Rollback()
//	ranks, err := uow.CompetitorRanksCtx(ctx, businessID)
//	...
//	if err := uow.InsertCompetitorCtx(ctx, c); err != nil { ... }
//	if err := uow.Commit(); err != nil { ... }
type UnitOfWork interface {
	Commit() error
	Rollback() error

	PlaceRepository
	BusinessRepository
}

// UnitOfWorkFactory starts new UnitOfWork instances. A returned UnitOfWork
// is already begun.
type UnitOfWorkFactory interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}
