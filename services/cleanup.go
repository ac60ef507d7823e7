// services/cleanup.go
package services

import (
	"context"
	"log"
	"time"

	"player-identity-system/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// StartExpirySweeper periodically deletes expired nonces and sessions.
// Both are also rejected at read time; the sweeper just keeps the tables
// from growing without bound.
func StartExpirySweeper(db *gorm.DB, clock clockwork.Clock) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(func() {
			now := clock.Now().UTC()

			if res := db.Where("expires_at <= ?", now).Delete(&models.Nonce{}); res.Error != nil {
				log.Printf("[Sweeper] nonce cleanup failed: %v", res.Error)
			} else if res.RowsAffected > 0 {
				log.Printf("🧹 Swept %d expired nonce(s)", res.RowsAffected)
			}

			if res := db.Where("expires_at <= ?", now).Delete(&models.Session{}); res.Error != nil {
				log.Printf("[Sweeper] session cleanup failed: %v", res.Error)
			} else if res.RowsAffected > 0 {
				log.Printf("🧹 Swept %d expired session(s)", res.RowsAffected)
			}
		}),
	)
}

// BestEffort runs fn in the background with a bounded context. The
// caller's response never waits on it; failure is logged and non-fatal.
func BestEffort(name string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Printf("⚠️ [BEST_EFFORT] %s failed: %v", name, err)
		}
	}()
}
