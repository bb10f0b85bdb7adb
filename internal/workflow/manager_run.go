package workflow

import (
	"context"
	"errors"
	"sync"

	"melt/internal/logging"
	"melt/internal/queue"
	"melt/internal/stage"
)

// Run processes the queue until no actionable items remain, then returns the
// final queue summary. It is the one-shot counterpart to Start/Stop.
func (m *Manager) Run(ctx context.Context) (queue.Stats, error) {
	if reset, err := m.store.ResetStuckProcessing(ctx); err != nil {
		return queue.Stats{}, err
	} else if reset > 0 {
		m.logger.Info("interrupted items rolled back", logging.Int64("count", reset))
	}

	var wg sync.WaitGroup
	wg.Add(m.workers)
	for i := 0; i < m.workers; i++ {
		go func(id int) {
			defer wg.Done()
			m.drainWorker(ctx, id)
		}(i)
	}
	wg.Wait()

	stats, err := m.store.Summary(ctx)
	if err != nil {
		return queue.Stats{}, err
	}
	if ctx.Err() != nil {
		return stats, ctx.Err()
	}
	return stats, nil
}

// drainWorker claims and processes items until the queue is drained: nothing
// claimable and nothing in flight on other workers.
func (m *Manager) drainWorker(ctx context.Context, id int) {
	logger := m.logger.With(logging.Int("worker", id))
	for {
		if ctx.Err() != nil {
			return
		}
		item, claimed, err := m.claimNext(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			logger.Error("failed to claim next queue item", logging.Error(err))
			if !sleepCtx(ctx, m.errorRetry) {
				return
			}
			continue
		}
		if item != nil {
			if err := m.executeStage(ctx, claimed, logger, item); err != nil && errors.Is(err, context.Canceled) {
				return
			}
			continue
		}

		inFlight, err := m.anyInFlight(ctx)
		if err != nil {
			m.setLastError(err)
			logger.Error("failed to inspect in-flight items", logging.Error(err))
			return
		}
		if !inFlight {
			return
		}
		// Another worker may hand work down the pipeline; poll again.
		if !sleepCtx(ctx, m.pollInterval) {
			return
		}
	}
}

func (m *Manager) anyInFlight(ctx context.Context) (bool, error) {
	counts, err := m.store.CountByStatus(ctx)
	if err != nil {
		return false, err
	}
	return counts[queue.StatusConverting]+counts[queue.StatusTagging]+counts[queue.StatusOrganizing] > 0, nil
}

// Health reports the readiness of every configured stage.
func (m *Manager) Health(ctx context.Context) []stage.Health {
	checks := make([]stage.Health, 0, len(m.stages))
	for _, stg := range m.stages {
		if stg.handler == nil {
			checks = append(checks, stage.Unhealthy(stg.name, "handler not configured"))
			continue
		}
		checks = append(checks, stg.handler.HealthCheck(ctx))
	}
	return checks
}
