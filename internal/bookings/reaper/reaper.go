package reaper

import (
	"context"
	"sync"
	"time"

	"mentorbook/internal/bookings/service"
	"mentorbook/pkg/config"
)

// Reaper periodically sweeps overdue pending bookings. It is a liveness
// backstop: confirms and reads already settle lapsed holds on contact, so the
// sweep only bounds how long an untouched hold can linger.
type Reaper struct {
	svc    service.BookingService
	cfg    *config.Config
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func New(svc service.BookingService, cfg *config.Config) *Reaper {
	return &Reaper{
		svc:    svc,
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
}

// Start launches the sweep loop. It returns immediately.
func (r *Reaper) Start() {
	r.wg.Add(1)
	go r.run()

	r.cfg.Log.Info("Expiry reaper started",
		"interval", r.cfg.ReaperInterval,
		"batch_size", r.cfg.ReaperBatchSize,
	)
}

func (r *Reaper) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stopCh:
			return
		}
	}
}

func (r *Reaper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.ReaperInterval)
	defer cancel()

	expired, err := r.svc.ExpireOverdue(ctx, r.cfg.ReaperBatchSize)
	if err != nil {
		r.cfg.Log.Error("Reaper sweep failed", "error", err)
		return
	}

	if expired > 0 {
		r.cfg.Log.Info("Reaper sweep completed", "expired", expired)
	}
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (r *Reaper) Stop() {
	r.once.Do(func() {
		close(r.stopCh)
	})
	r.wg.Wait()
	r.cfg.Log.Info("Expiry reaper stopped")
}
