/*
scheduler.go - Payment hold expiry scheduler

PURPOSE:
  Bookings held for payment (status pending_payment) expire after a TTL.
  The sweeper periodically cancels holds whose expiry has passed so they
  disappear from listings and their audit trail records the expiry.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Sweeps immediately on start, then on every tick
  - Holds never block a slot, so a late sweep only delays bookkeeping;
    it cannot cause a double booking

CONFIGURATION:
  - CheckInterval: How often to sweep (HUB_SWEEP_INTERVAL, default 5m)
  - Enabled: Whether the sweeper is active (default: true)

USAGE:
  sweeper := NewHoldSweeper(bookingService, 5*time.Minute)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - booking/service.go: ExpireHolds
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"
)

// HoldExpirer cancels overdue payment holds. *booking.Service implements it.
type HoldExpirer interface {
	ExpireHolds(ctx context.Context) (int, error)
}

// HoldSweeper runs HoldExpirer on a ticker.
type HoldSweeper struct {
	Expirer       HoldExpirer
	CheckInterval time.Duration
	Enabled       bool

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastRun time.Time
}

func NewHoldSweeper(expirer HoldExpirer, interval time.Duration) *HoldSweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &HoldSweeper{
		Expirer:       expirer,
		CheckInterval: interval,
		Enabled:       true,
		stop:          make(chan struct{}),
	}
}

// Start begins sweeping. Calling Start twice has no effect.
func (s *HoldSweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		log.Println("[Sweeper] Disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)

	go s.run()

	log.Printf("[Sweeper] Started with check interval: %v", s.CheckInterval)
}

// Stop halts the sweeper and waits for an in-flight sweep to finish.
func (s *HoldSweeper) Stop() {
	s.mu.Lock()
	ticker := s.ticker
	s.ticker = nil
	s.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		log.Println("[Sweeper] Stopped")
	}
}

func (s *HoldSweeper) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.sweep()

	s.mu.Lock()
	ticker := s.ticker
	s.mu.Unlock()
	if ticker == nil {
		return
	}

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *HoldSweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.CheckInterval)
	defer cancel()

	n, err := s.Expirer.ExpireHolds(ctx)
	if err != nil {
		log.Printf("[Sweeper] Error expiring holds: %v", err)
	} else if n > 0 {
		log.Printf("[Sweeper] Expired %d holds", n)
	}

	s.mu.Lock()
	s.lastRun = time.Now()
	s.mu.Unlock()
}

// RunNow triggers an immediate sweep (for testing or manual trigger).
func (s *HoldSweeper) RunNow() {
	s.sweep()
}

// LastRun returns when the last sweep finished, or the zero time.
func (s *HoldSweeper) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}
