package sync

import (
	"fmt"
	"strings"
)

// UnsupportedTransactionError reports that a transaction could not be
// set up for a participant before any mutation happened. Either the
// store opted out of every rollback mechanism, or its pre-mutation
// capture failed.
type UnsupportedTransactionError struct {
	Store  string
	Reason error
}

func (e *UnsupportedTransactionError) Error() string {
	if e.Reason != nil {
		return fmt.Sprintf("store %q cannot participate in a transaction: %v", e.Store, e.Reason)
	}
	return fmt.Sprintf("store %q cannot participate in a transaction: no transaction, snapshot, or full-scan capability", e.Store)
}

func (e *UnsupportedTransactionError) Unwrap() error { return e.Reason }

// RollbackError wraps the error raised inside a transaction scope after
// every participant has been restored. Restore failures are attached
// per store; rollback of remaining participants proceeds regardless.
type RollbackError struct {
	Cause           error
	RestoreFailures map[string]error
}

func (e *RollbackError) Error() string {
	if len(e.RestoreFailures) == 0 {
		return fmt.Sprintf("transaction rolled back: %v", e.Cause)
	}
	parts := make([]string, 0, len(e.RestoreFailures))
	for name, err := range e.RestoreFailures {
		parts = append(parts, fmt.Sprintf("%s: %v", name, err))
	}
	return fmt.Sprintf("transaction rolled back: %v (restore failures: %s)", e.Cause, strings.Join(parts, "; "))
}

func (e *RollbackError) Unwrap() error { return e.Cause }

// TranslationError reports a per-item representation translation
// failure during replication or synchronization. Callers collect these
// rather than aborting the batch.
type TranslationError struct {
	Store  string
	ItemID string
	Err    error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("translate item %q for store %q: %v", e.ItemID, e.Store, e.Err)
}

func (e *TranslationError) Unwrap() error { return e.Err }
