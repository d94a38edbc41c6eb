package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campusattend/internal/attendance"
	"campusattend/internal/config"
	"campusattend/internal/geocode"
	"campusattend/internal/ledger"
	"campusattend/internal/metrics"
	"campusattend/internal/queue"
	"campusattend/internal/store"
)

// Worker consumes enrichment messages (reverse geocoding of freshly marked
// attendance) and periodically reconciles the point ledger against the
// attendance table.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "campusattend:enrich")
	}

	grants := ledger.NewRepository(db.Client)
	repo := attendance.NewRepository(db.Client, grants)
	geocoder := geocode.New(cfg.GeocodeBaseURL, cfg.GeocodeTimeout, cfg.GeocodeSkip)

	go reconcileLoop(ctx, grants, cfg.ReconcileInterval)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != queue.TypeGeocode {
			continue
		}

		id := string(msg.Body)
		rec, err := repo.Get(ctx, id)
		if err != nil {
			log.Printf("fetch attendance %s failed: %v", id, err)
			continue
		}
		if rec == nil || rec.Address != nil {
			continue
		}

		// Reverse never errors: a failed lookup yields the sentinel
		// address, which we persist as degraded data.
		addr := geocoder.Reverse(ctx, rec.Position.Latitude, rec.Position.Longitude)
		if err := repo.UpdateAddress(ctx, id, addr); err != nil {
			log.Printf("update address for %s failed: %v", id, err)
			continue
		}
		log.Printf("attendance %s enriched: %s", id, addr.DisplayName)
	}

	log.Println("worker stopped")
}

// reconcileLoop repairs attendance rows that lack their point grant.
// Marking commits both in one transaction, so anything found here is
// operational damage; the compensating insert is idempotent.
func reconcileLoop(ctx context.Context, grants *ledger.Repository, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		missing, err := grants.FindMissingGrants(ctx, 100)
		if err != nil {
			log.Printf("reconcile scan failed: %v", err)
			continue
		}
		for _, m := range missing {
			inserted, err := grants.InsertCompensatingGrant(ctx, m)
			if err != nil {
				log.Printf("reconcile grant for attendance %s failed: %v", m.AttendanceID, err)
				continue
			}
			if inserted {
				metrics.ReconciledGrants.Inc()
				log.Printf("reconciled missing grant: student %s event %s (%d points)", m.StudentID, m.EventID, m.Points)
			}
		}
	}
}
