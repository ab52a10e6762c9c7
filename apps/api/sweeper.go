package main

import (
	"context"
	"fmt"
	"time"

	"github.com/trezcool/masomo-live/core"
	"github.com/trezcool/masomo-live/services/metrics"
)

// expirer is implemented by subscription.Service.
type expirer interface {
	ExpireLapsed(ctx context.Context, t time.Time) (int, error)
}

// sweepExpired expires lapsed subscriptions every interval until ctx is done.
func sweepExpired(ctx context.Context, svc expirer, interval time.Duration, logger core.Logger) {
	if interval <= 0 {
		logger.Warn("subscription expiry sweep disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			sweepOnce(ctx, svc, t, logger)
		}
	}
}

func sweepOnce(ctx context.Context, svc expirer, t time.Time, logger core.Logger) int {
	n, err := svc.ExpireLapsed(ctx, t.UTC())
	if err != nil {
		logger.Error(fmt.Sprintf("expiring lapsed subscriptions: %v", err), err)
	}
	if n > 0 {
		metrics.SubscriptionsExpired.Add(float64(n))
		logger.Info(fmt.Sprintf("%d lapsed subscription(s) expired", n))
	}
	return n
}
