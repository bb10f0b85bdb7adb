package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"melt/internal/logging"
	"melt/internal/queue"
	"melt/internal/services"
)

func (m *Manager) executeStage(ctx context.Context, stg pipelineStage, workerLogger *slog.Logger, item *queue.Item) error {
	requestID := uuid.NewString()
	stageCtx := services.WithRequestID(ctx, requestID)
	stageCtx = services.WithItemID(stageCtx, item.ID)
	stageCtx = services.WithStage(stageCtx, stg.name)
	logger := logging.WithContext(stageCtx, workerLogger)

	if stg.handler == nil {
		err := fmt.Errorf("stage %s missing handler", stg.name)
		m.handleStageFailure(stageCtx, stg.name, item, err)
		return err
	}

	stageStart := time.Now()
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("source_file", strings.TrimSpace(item.SourcePath)))
	m.notifyProgress(item)

	if err := stg.handler.Prepare(stageCtx, item); err != nil {
		m.handleStageFailure(stageCtx, stg.name, item, err)
		return err
	}
	if err := m.persist(stageCtx, item); err != nil {
		logger.Error("failed to persist stage preparation", logging.Error(err))
		m.setLastError(err)
		return err
	}

	if err := stg.handler.Execute(stageCtx, item); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("stage interrupted by shutdown")
			return err
		}
		m.handleStageFailure(stageCtx, stg.name, item, err)
		return err
	}

	if item.Status == stg.processingStatus || item.Status == "" {
		item.Status = stg.doneStatus
	}
	if item.Status == queue.StatusCompleted && item.NeedsReview {
		item.Status = queue.StatusReview
		if strings.TrimSpace(item.ErrorMessage) == "" {
			item.ErrorMessage = strings.TrimSpace(item.ReviewReason)
		}
	}
	if err := m.persist(stageCtx, item); err != nil {
		logger.Error("failed to persist stage result", logging.Error(err))
		m.setLastError(err)
		return err
	}

	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(item.Status)),
		logging.Duration("stage_duration", time.Since(stageStart)))
	return nil
}

func (m *Manager) handleStageFailure(ctx context.Context, stageName string, item *queue.Item, stageErr error) {
	logger := logging.WithContext(ctx, m.logger)
	message := strings.TrimSpace(stageErr.Error())
	if message == "" {
		message = fmt.Sprintf("%s failed without error detail", stageName)
	}
	item.SetFailed(message)

	logger.Error("stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String("error_message", message),
		logging.Error(stageErr))

	if err := m.persist(ctx, item); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("shutting down, could not persist stage failure")
		} else {
			logger.Error("failed to persist stage failure", logging.Error(err))
		}
	}
	m.setLastError(stageErr)
}

func (m *Manager) persist(ctx context.Context, item *queue.Item) error {
	if err := m.store.Update(ctx, item); err != nil {
		return fmt.Errorf("persist queue item: %w", err)
	}
	m.notifyProgress(item)
	return nil
}

func (m *Manager) notifyProgress(item *queue.Item) {
	if m.onProgress == nil {
		return
	}
	snapshot := *item
	m.onProgress(&snapshot)
}
