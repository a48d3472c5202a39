// Package worker runs background jobs next to the HTTP server.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Expirer cancels unpaid bookings past their hold time.
// *service.BookingService implements it.
type Expirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// ExpiryWorker periodically cancels bookings that were never paid so
// their seats return to the pool.
type ExpiryWorker struct {
	expirer  Expirer
	interval time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	totalExpired int64
	lastScan     time.Time
}

func NewExpiryWorker(expirer Expirer, interval time.Duration, log *zap.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpiryWorker{
		expirer:  expirer,
		interval: interval,
		log:      log.Named("expiry"),
	}
}

// Start launches the scan loop.  It returns an error if the worker is
// already running.
func (w *ExpiryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("expiry worker already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.wg.Add(1)
	go w.loop(ctx, w.stopCh)
	w.log.Info("expiry worker started", zap.Duration("interval", w.interval))
	return nil
}

// Stop ends the scan loop and waits for an in-flight scan to finish.
func (w *ExpiryWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()
	w.wg.Wait()
	w.log.Info("expiry worker stopped")
}

func (w *ExpiryWorker) loop(ctx context.Context, stop <-chan struct{}) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single scan and returns the number of bookings it
// cancelled.
func (w *ExpiryWorker) RunOnce(ctx context.Context) int {
	n, err := w.expirer.ExpireStale(ctx)
	w.mu.Lock()
	w.lastScan = time.Now()
	w.totalExpired += int64(n)
	w.mu.Unlock()
	if err != nil && !errors.Is(err, context.Canceled) {
		w.log.Error("expiry scan failed", zap.Error(err))
	}
	return n
}

// Stats returns the running total of expired bookings and the time of
// the last scan.
func (w *ExpiryWorker) Stats() (int64, time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totalExpired, w.lastScan
}
