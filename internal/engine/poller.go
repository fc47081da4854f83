package engine

import (
	"context"
	"time"
)

// Watch makes eventID the current event, prepares it and polls the backend
// every PollInterval until stop is called, ctx ends or the engine closes.
func (e *Engine) Watch(ctx context.Context, eventID string) (stop func(), err error) {
	if err := e.store.SetCurrent(eventID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()

		if err := e.EnsureCampaigns(ctx, eventID); err != nil {
			e.log.Error().Err(err).Str("event", eventID).Msg("Failed to ensure campaigns")
		}
		if err := e.AutoSync(ctx, eventID); err != nil {
			e.log.Error().Err(err).Str("event", eventID).Msg("Failed to auto sync")
		}
		e.RunPoller(ctx, eventID, e.cfg.PollInterval)
	}()
	return cancel, nil
}

// RunPoller polls on a fixed interval. Ticks that arrive while the
// previous poll is still running are skipped.
func (e *Engine) RunPoller(ctx context.Context, eventID string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.log.Info().Str("event", eventID).Dur("interval", interval).Msg("Poller started")
	for {
		select {
		case <-ctx.Done():
			e.log.Info().Str("event", eventID).Msg("Poller stopped")
			return
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				e.Poll(ctx, eventID)
			}()
		}
	}
}

// Poll runs one poll cycle: retry deferred writes, then drain the pending
// queue if it has anything, else refresh silently. It returns false when
// another poll for the event is still in flight.
func (e *Engine) Poll(ctx context.Context, eventID string) bool {
	if !e.polls.Begin(eventID) {
		e.log.Debug().Str("event", eventID).Msg("Poll already in flight")
		return false
	}
	defer e.polls.Release(eventID)

	e.flushDeferred(ctx, eventID)

	count, err := e.PendingCount(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("Failed to read pending update count")
		return true
	}
	if count > 0 {
		if _, err := e.DrainPendingUpdates(ctx); err != nil {
			e.log.Error().Err(err).Msg("Failed to drain pending updates")
		}
		return true
	}
	if _, err := e.Refresh(ctx, false, true); err != nil {
		e.log.Error().Err(err).Msg("Failed to refresh")
	}
	return true
}
