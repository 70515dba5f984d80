package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/service"
)

// BreachScanner runs the SLA breach sweep on a fixed interval until its
// context is cancelled.
type BreachScanner struct {
	scanner  *service.ScannerService
	interval time.Duration
	logger   *zap.Logger
	done     chan struct{}
}

// NewBreachScanner constructs the worker.
func NewBreachScanner(scanner *service.ScannerService, interval time.Duration, logger *zap.Logger) *BreachScanner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &BreachScanner{
		scanner:  scanner,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. An immediate sweep runs on startup so a
// restarted service catches up on deadlines missed while down.
func (w *BreachScanner) Start(ctx context.Context) {
	go func() {
		defer close(w.done)

		w.sweep(ctx)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				w.logger.Info("breach scanner stopped")
				return
			case <-ticker.C:
				w.sweep(ctx)
			}
		}
	}()
}

// Wait blocks until the sweep loop has exited.
func (w *BreachScanner) Wait() {
	<-w.done
}

func (w *BreachScanner) sweep(ctx context.Context) {
	if _, err := w.scanner.CheckSLABreaches(ctx, nil); err != nil {
		w.logger.Error("scheduled SLA sweep failed", zap.Error(err))
	}
}

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
