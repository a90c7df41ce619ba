package postgres

import (
	"errors"
	"fmt"
	"strings"

	"wallet-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes mapped onto store sentinels.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeUniqueViolation      = "23505"
)

// mapError translates driver errors into ports.ErrConflict or
// ports.ErrAlreadyExists, keeping the original in the chain.
func mapError(err error) error {
	if err == nil || errors.Is(err, ports.ErrConflict) || errors.Is(err, ports.ErrAlreadyExists) {
		return err
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return fmt.Errorf("%w: %w", ports.ErrConflict, err)
	case codeUniqueViolation:
		// A concurrent request committed the same idempotency key first.
		if strings.HasPrefix(pgErr.ConstraintName, "idempotency_keys") {
			return fmt.Errorf("%w: %w", ports.ErrConflict, err)
		}
		return fmt.Errorf("%w: %w", ports.ErrAlreadyExists, err)
	}
	return err
}
