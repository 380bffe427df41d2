package data

import (
	"fmt"
	"time"
)

// ClaimSession records a checkout session id before any side effects run.
// It returns true when this call made the claim; false means an earlier
// delivery already claimed the session and the caller must do nothing.
func ClaimSession(sessionID, eventID string) (bool, error) {
	if sessionID == "" {
		return false, fmt.Errorf("missing session id")
	}

	result, err := ExecDB(`
        INSERT INTO processed_sessions (session_id, event_id, processed_at)
        VALUES (?, ?, ?)
        ON CONFLICT(session_id) DO NOTHING`,
		sessionID, eventID, formatTime(time.Now()))
	if err != nil {
		return false, fmt.Errorf("failed to claim session %s: %w", sessionID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	return affected == 1, nil
}

// ReleaseSession drops a claim so a later delivery can retry the session.
// Used when reconciliation fails before any ledger row was written.
func ReleaseSession(sessionID string) error {
	_, err := ExecDB(`DELETE FROM processed_sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to release session %s: %w", sessionID, err)
	}
	return nil
}

// IsSessionProcessed reports whether a session id carries a claim.
func IsSessionProcessed(sessionID string) (bool, error) {
	var count int
	row, err := QueryRowDB(`SELECT COUNT(*) FROM processed_sessions WHERE session_id = ?`,
		sessionID)
	if err != nil {
		return false, err
	}
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check session %s: %w", sessionID, err)
	}
	return count > 0, nil
}

// PruneProcessedSessions deletes claims older than the cutoff. Ledger rows
// are never pruned; only the dedup bookkeeping ages out.
func PruneProcessedSessions(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))

	result, err := ExecDB(`DELETE FROM processed_sessions WHERE processed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune processed sessions: %w", err)
	}
	return result.RowsAffected()
}
