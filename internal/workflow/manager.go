package workflow

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"melt/internal/config"
	"melt/internal/logging"
	"melt/internal/queue"
	"melt/internal/stage"
)

// StageSet bundles the concrete workflow handlers the manager orchestrates.
type StageSet struct {
	Converter stage.Handler
	Tagger    stage.Handler
	Organizer stage.Handler
}

type pipelineStage struct {
	name             string
	handler          stage.Handler
	startStatus      queue.Status
	processingStatus queue.Status
	doneStatus       queue.Status
}

// ProgressFunc observes queue items after each persisted state change.
type ProgressFunc func(*queue.Item)

// Manager coordinates queue processing across a pool of workers.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	stages       []pipelineStage
	workers      int
	pollInterval time.Duration
	errorRetry   time.Duration
	onProgress   ProgressFunc

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// NewManager constructs a workflow manager for the given stage handlers.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, stages StageSet) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	workers := cfg.Conversion.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	poll := time.Duration(cfg.Workflow.QueuePollInterval) * time.Second
	if poll <= 0 {
		poll = 2 * time.Second
	}
	retry := time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second
	if retry <= 0 {
		retry = 10 * time.Second
	}
	return &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logging.NewComponentLogger(logger, "workflow-manager"),
		workers:      workers,
		pollInterval: poll,
		errorRetry:   retry,
		// Later stages first so in-flight items drain before new ones start.
		stages: []pipelineStage{
			{
				name:             "organizing",
				handler:          stages.Organizer,
				startStatus:      queue.StatusTagged,
				processingStatus: queue.StatusOrganizing,
				doneStatus:       queue.StatusCompleted,
			},
			{
				name:             "tagging",
				handler:          stages.Tagger,
				startStatus:      queue.StatusConverted,
				processingStatus: queue.StatusTagging,
				doneStatus:       queue.StatusTagged,
			},
			{
				name:             "converting",
				handler:          stages.Converter,
				startStatus:      queue.StatusPending,
				processingStatus: queue.StatusConverting,
				doneStatus:       queue.StatusConverted,
			},
		},
	}
}

// SetProgressFunc registers an observer invoked after each persisted item
// change. Must be called before Start or Run.
func (m *Manager) SetProgressFunc(fn ProgressFunc) {
	m.onProgress = fn
}

// Workers reports the effective worker pool size.
func (m *Manager) Workers() int {
	return m.workers
}

// Start begins background processing. Interrupted items from a previous run
// are rolled back to the start of their stage first.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(m.workers)
	m.mu.Unlock()

	if reset, err := m.store.ResetStuckProcessing(runCtx); err != nil {
		m.logger.Warn("failed to reset interrupted items", logging.Error(err))
	} else if reset > 0 {
		m.logger.Info("interrupted items rolled back", logging.Int64("count", reset))
	}

	for i := 0; i < m.workers; i++ {
		go m.runWorker(runCtx, i)
	}
	return nil
}

// Stop terminates background processing and waits for workers to finish
// their current stage.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// LastError reports the most recent stage or queue failure.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) runWorker(ctx context.Context, id int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("worker", id))
	for {
		select {
		case <-ctx.Done():
			return
		default:
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
		if item == nil {
			if !sleepCtx(ctx, m.pollInterval) {
				return
			}
			continue
		}

		if err := m.executeStage(ctx, claimed, logger, item); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
		}
	}
}

// claimNext atomically claims the next actionable item, preferring the
// latest pipeline stage with work available.
func (m *Manager) claimNext(ctx context.Context) (*queue.Item, pipelineStage, error) {
	for _, stg := range m.stages {
		item, err := m.store.ClaimNextForStatuses(ctx, stg.processingStatus, stg.startStatus)
		if err != nil {
			return nil, pipelineStage{}, err
		}
		if item != nil {
			return item, stg, nil
		}
	}
	return nil, pipelineStage{}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
