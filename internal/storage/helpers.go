package storage

import (
	"database/sql"
	"errors"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

// rollbackWithError is deferred after BeginTx; a rollback after Commit
// returns sql.ErrTxDone, which is not reported.
func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if rErr := rb.Rollback(); rErr != nil && *err == nil && !errors.Is(rErr, sql.ErrTxDone) {
		*err = rErr
	}
}
