package sqlite

import (
	"errors"
	"fmt"
	"strings"

	"wallet-ledger/internal/core/ports"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// mapError translates SQLite result codes into ports.ErrConflict or
// ports.ErrAlreadyExists, keeping the original in the chain.
func mapError(err error) error {
	if err == nil || errors.Is(err, ports.ErrConflict) || errors.Is(err, ports.ErrAlreadyExists) {
		return err
	}
	var sqlErr *sqlite.Error
	if !errors.As(err, &sqlErr) {
		return err
	}
	switch sqlErr.Code() {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_BUSY_SNAPSHOT:
		return fmt.Errorf("%w: %w", ports.ErrConflict, err)
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		if strings.Contains(sqlErr.Error(), "idempotency_keys.") {
			return fmt.Errorf("%w: %w", ports.ErrConflict, err)
		}
		return fmt.Errorf("%w: %w", ports.ErrAlreadyExists, err)
	}
	return err
}
