package task

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"niftiwork/internal/convert"
	"niftiwork/internal/instance"
	"niftiwork/internal/metrics"
)

// process runs the converter over a resolved batch and records the outcome.
// Whatever was produced before a fatal error is still registered with the
// instance.
func (m *Manager) process(ctx context.Context, taskEntity *Task, inst *instance.Instance, batch convert.Batch) error {
	metrics.RunStarted()
	defer metrics.RunFinished()
	defer m.release(taskEntity)

	m.mu.Lock()
	taskEntity.Status = StatusInProgress
	m.mu.Unlock()
	if err := m.persistTask(taskEntity); err != nil {
		log.Warn().Str("task_id", taskEntity.ID).Err(err).Msg("persist in_progress failed")
	}

	report, convErr := m.converter.Run(ctx, inst, batch)

	if batch.Len() > 0 {
		if err := m.resolver.Register(ctx, inst, batch); err != nil {
			log.Warn().Str("task_id", taskEntity.ID).Err(err).Msg("register produced data failed")
		}
	}

	now := time.Now()
	m.mu.Lock()
	taskEntity.Report = report
	taskEntity.FinishedAt = &now
	switch {
	case convErr != nil:
		taskEntity.Status = StatusFailed
		taskEntity.Error = convErr.Error()
	case report != nil && batch.Len() == 0:
		taskEntity.Status = StatusNoData
		taskEntity.Error = report.Error
	default:
		taskEntity.Status = StatusDone
	}
	status := taskEntity.Status
	m.mu.Unlock()

	metrics.RecordRun(string(status))
	if err := m.persistTask(taskEntity); err != nil {
		log.Warn().Str("task_id", taskEntity.ID).Err(err).Msg("persist final state failed")
	}

	evt := log.Info()
	if status == StatusFailed {
		evt = log.Error().Err(convErr)
	}
	evt.Str("task_id", taskEntity.ID).Str("instance", inst.ID).Str("status", string(status)).Msg("task finished")
	return convErr
}

func (m *Manager) release(taskEntity *Task) {
	m.mu.Lock()
	if m.active[taskEntity.InstanceID] == taskEntity.ID {
		delete(m.active, taskEntity.InstanceID)
	}
	m.mu.Unlock()
}
