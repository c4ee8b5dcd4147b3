package rates

import (
	"context"
	"time"
)

const samplerLockName = "rate_sampler"

// StartSampler appends a fresh market rate to the history every interval.
// With a locker only the lease holder samples.
func (r *Resolver) StartSampler(interval time.Duration) {
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			r.sample(interval)
			select {
			case <-ticker.C:
			case <-r.ctx.Done():
				r.logger.Info("Rate sampler stopped")
				return
			}
		}
	}()
}

func (r *Resolver) sample(interval time.Duration) {
	if r.locker != nil {
		ok, err := r.locker.AcquireLock(r.ctx, samplerLockName, r.config.InstanceID, interval)
		if err != nil {
			r.logger.Error("Failed to acquire rate sampler lock", "error", err)
			return
		}
		if !ok {
			r.logger.Debug("Rate sampler lock held by another instance")
			return
		}
	}

	for currency, assetID := range feedAssetIDs {
		rate, err := r.fetch(r.ctx, assetID)
		if err != nil {
			r.logger.Warn("Rate sample failed", "currency", currency, "error", err)
			continue
		}
		r.record(r.ctx, currency, rate)
		r.logger.Debug("Rate sampled", "currency", currency, "rate", rate)
	}
}

// Stop stops the sampler and waits for it to exit.
func (r *Resolver) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	if r.locker != nil {
		if err := r.locker.ReleaseLock(context.Background(), samplerLockName, r.config.InstanceID); err != nil {
			r.logger.Warn("Failed to release rate sampler lock", "error", err)
		}
	}
}
