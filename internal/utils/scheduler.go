package utils

import (
	"context"
	"log"
	"time"
)

type ExpirationSweeper interface {
	SweepExpiredPlans(ctx context.Context)
}

// StartExpirationScheduler запускает ежедневную проверку истёкших планов в 03:00 UTC.
func StartExpirationScheduler(ctx context.Context, svc ExpirationSweeper) {
	go func() {
		for {
			now := time.Now().UTC()
			nextRun := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, time.UTC)
			if now.After(nextRun) {
				nextRun = nextRun.Add(24 * time.Hour)
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(nextRun.Sub(now)):
			}

			log.Println("[SCHEDULER] Sweeping expired provider plans at", time.Now().UTC())
			svc.SweepExpiredPlans(ctx)
		}
	}()
}
