package snapshot

import (
	"context"
	"time"
)

// RunPeriodic saves a snapshot every interval until ctx is cancelled,
// then takes one final save so a clean shutdown loses nothing. Save
// failures are logged and the loop keeps going; the archive being
// unreachable for a tick must not take the engine down.
func (m *Manager) RunPeriodic(ctx context.Context, scopeID string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final save runs on a fresh context; the loop's is done.
			saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := m.Save(saveCtx, scopeID); err != nil {
				m.log.Error("final snapshot save failed", "scope", scopeID, "error", err)
			}
			cancel()
			return
		case <-ticker.C:
			if _, err := m.Save(ctx, scopeID); err != nil {
				m.log.Error("periodic snapshot save failed", "scope", scopeID, "error", err)
			}
		}
	}
}
