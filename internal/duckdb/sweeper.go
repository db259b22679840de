package duckdb

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	defaultSweepInterval = time.Hour
	day                  = 24 * time.Hour
)

// QuarantinePurger deletes held messages dated before a cutoff.
type QuarantinePurger interface {
	PurgeQuarantineBefore(cutoff time.Time) (int64, error)
}

// QuarantineSweeper drops quarantined messages once they are older than
// the retention window, released or not.
type QuarantineSweeper struct {
	purger   QuarantinePurger
	keep     time.Duration
	interval time.Duration
	now      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// StartQuarantineSweeper purges once, then again every interval until Stop.
// It returns nil when retentionDays is not positive.
func StartQuarantineSweeper(p QuarantinePurger, retentionDays int, interval time.Duration) *QuarantineSweeper {
	if retentionDays <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	s := &QuarantineSweeper{
		purger:   p,
		keep:     time.Duration(retentionDays) * day,
		interval: interval,
		now:      time.Now,
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.sweep()

	s.wg.Add(1)
	go s.loop(ctx)
	return s
}

func (s *QuarantineSweeper) loop(ctx context.Context) {
	defer s.wg.Done()
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.sweep()
		}
	}
}

func (s *QuarantineSweeper) sweep() {
	n, err := s.PurgeNow()
	if err != nil {
		log.Printf("duckdb: quarantine sweep: %v", err)
		return
	}
	if n > 0 {
		log.Printf("duckdb: quarantine sweep removed %d messages older than %s", n, s.keep)
	}
}

// PurgeNow removes everything held longer than the retention window.
func (s *QuarantineSweeper) PurgeNow() (int64, error) {
	return s.purger.PurgeQuarantineBefore(s.now().Add(-s.keep))
}

// Stop ends the sweep loop. Safe to call more than once.
func (s *QuarantineSweeper) Stop() {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
}
