package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/set-night/groupoffer/internal/domain"
)

// SQLSTATE codes the adapters react to.
const (
	codeUndefinedTable  = "42P01"
	codeUndefinedColumn = "42703"
	codeUniqueViolation = "23505"
)

// classify maps driver errors onto the domain taxonomy. A missing table or
// column means the relation this adapter targets does not exist in the
// connected schema, which callers treat as a reason to fall back.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUndefinedTable, codeUndefinedColumn:
			return fmt.Errorf("%s: %w: %w", op, domain.ErrSchemaMissing, err)
		case codeUniqueViolation:
			return fmt.Errorf("%s: %w: %w", op, domain.ErrConflict, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
