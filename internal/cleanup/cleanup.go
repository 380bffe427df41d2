package cleanup

import (
	"time"

	"sypbackend/internal/data"
	"sypbackend/internal/logger"
)

const (
	cleanupHour   = 2 // 2 AM
	retentionDays = 90
)

// StartCleanupRoutine starts the daily claim-pruning job. Ledger rows are
// permanent; only the webhook dedup claims age out, and only long after
// the provider stops redelivering events.
func StartCleanupRoutine() {
	go func() {
		logger.LogInfo("Cleanup routine started - will run daily at %d:00 AM", cleanupHour)

		for {
			now := time.Now()
			next := time.Date(now.Year(), now.Month(), now.Day(), cleanupHour, 0, 0, 0, now.Location())
			if now.After(next) {
				next = next.Add(24 * time.Hour)
			}

			sleepDuration := next.Sub(now)
			logger.LogInfo("Next cleanup scheduled for %v (in %v)", next.Format("2006-01-02 15:04:05"), sleepDuration)

			time.Sleep(sleepDuration)

			runCleanup()
		}
	}()
}

func runCleanup() {
	logger.LogInfo("Starting daily prune of expired webhook claims")

	pruned, err := data.PruneProcessedSessions(retentionDays * 24 * time.Hour)
	if err != nil {
		logger.LogError("Failed to prune processed session claims: %v", err)
		return
	}

	if pruned == 0 {
		logger.LogInfo("Cleanup completed - no expired claims found")
	} else {
		logger.LogInfo("Cleanup completed - pruned %d claims older than %d days", pruned, retentionDays)
	}
}
