// Package retention runs the periodic cleanup tasks: pruning the
// durable store past its retention horizon and sweeping expired entries
// out of the disk cache.
package retention

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"marketdata/internal/cache"
	"marketdata/internal/store"
)

// Config controls when the sweeper runs and how far back it keeps data.
type Config struct {
	Spec          string // cron spec, with seconds field
	RetentionDays int    // durable-store horizon
	DiskCacheMax  time.Duration
}

// Sweeper manages the cron task.
type Sweeper struct {
	cfg   Config
	cron  *cron.Cron
	cache *cache.Cache
	store store.Store // may be nil
	ctx   context.Context
}

func New(ctx context.Context, cfg Config, c *cache.Cache, st store.Store) *Sweeper {
	if cfg.Spec == "" {
		cfg.Spec = "0 0 3 * * *" // daily at 03:00
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 365
	}
	if cfg.DiskCacheMax <= 0 {
		cfg.DiskCacheMax = 24 * time.Hour
	}
	return &Sweeper{
		cfg:   cfg,
		cron:  cron.New(cron.WithSeconds()),
		cache: c,
		store: st,
		ctx:   ctx,
	}
}

// Register adds the sweep task to the schedule.
func (s *Sweeper) Register() error {
	if _, err := s.cron.AddFunc(s.cfg.Spec, s.sweep); err != nil {
		return fmt.Errorf("register sweep task: %w", err)
	}
	return nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
	log.Println("[INFO] retention sweeper started")
}

func (s *Sweeper) Stop() {
	s.cron.Stop()
	log.Println("[INFO] retention sweeper stopped")
}

// RunNow executes one sweep immediately.
func (s *Sweeper) RunNow() { s.sweep() }

func (s *Sweeper) sweep() {
	log.Println("[INFO] running retention sweep")
	if s.store != nil {
		n, err := s.store.DeleteOlderThan(s.ctx, s.cfg.RetentionDays)
		if err != nil {
			log.Printf("[ERROR] store retention sweep: %v", err)
		} else if n > 0 {
			log.Printf("[INFO] pruned %d bars older than %d days", n, s.cfg.RetentionDays)
		}
	}
	n, err := s.cache.SweepDisk(s.cfg.DiskCacheMax)
	if err != nil {
		log.Printf("[ERROR] disk cache sweep: %v", err)
	} else if n > 0 {
		log.Printf("[INFO] swept %d expired disk cache entries", n)
	}
}
