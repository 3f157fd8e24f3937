package service

import (
	"context"
	"sync/atomic"
	"time"

	"classguard/pkg/model"

	"golang.org/x/sync/errgroup"
)

type recipient struct {
	id      string
	payload map[string]any
}

// fanOut delivers one notification per recipient with at most
// concurrency in flight, all under a shared budget. Sends that start
// after the budget expires fail without reaching the notifier.
func fanOut(ctx context.Context, n Notifier, t model.NotificationType, recipients []recipient, concurrency int, budget time.Duration) (sent, failed int) {
	if len(recipients) == 0 {
		return 0, 0
	}
	if concurrency < 1 {
		concurrency = 1
	}

	budgetCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var sentCount, failedCount atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(concurrency)

	for _, r := range recipients {
		r := r
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					failedCount.Add(1)
				}
			}()
			if budgetCtx.Err() != nil {
				failedCount.Add(1)
				return nil
			}
			if n.Send(budgetCtx, r.id, t, r.payload) {
				sentCount.Add(1)
			} else {
				failedCount.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(sentCount.Load()), int(failedCount.Load())
}

func withEntry(base map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	out[key] = value
	return out
}
