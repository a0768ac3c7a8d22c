package task

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// runSimulation drives one task from pending to a terminal state over the
// configured duration and step count. It runs in its own goroutine and
// reports progress only through the store; the request that submitted the
// task has long since returned.
func (m *Manager) runSimulation(taskID string) {
	defer func() {
		if r := recover(); r != nil {
			m.failTask(taskID, fmt.Sprintf("processing failed: %v", r))
		}
	}()

	baseCtx := m.base()

	if _, err := m.store.Update(baseCtx, taskID, func(t *Task) {
		t.Status = StatusProcessing
	}); err != nil {
		log.Warn().Str("task_id", taskID).Err(err).Msg("start processing failed")
		return
	}
	log.Info().Str("task_id", taskID).Int("steps", m.steps).Dur("duration", m.duration).Msg("processing started")

	stepInterval := m.duration / time.Duration(m.steps)
	if stepInterval <= 0 {
		stepInterval = time.Millisecond
	}
	tick := time.NewTicker(stepInterval)
	defer tick.Stop()
	deadline := time.NewTimer(m.timeout)
	defer deadline.Stop()

	for i := 1; i <= m.steps; i++ {
		select {
		case <-baseCtx.Done():
			// Shutdown: leave the record as-is, the simulator just exits.
			log.Info().Str("task_id", taskID).Msg("simulation cancelled by shutdown")
			return
		case <-deadline.C:
			m.failTask(taskID, fmt.Sprintf("processing timed out after %s", m.timeout))
			return
		case <-tick.C:
		}

		if i == m.steps {
			m.completeTask(taskID)
			return
		}
		pct := stepProgress(i, m.steps)
		if _, err := m.store.Update(baseCtx, taskID, func(t *Task) {
			t.Progress = pct
		}); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				log.Error().Str("task_id", taskID).Msg("progress update after terminal state")
			} else {
				log.Warn().Str("task_id", taskID).Err(err).Msg("progress update failed")
			}
			return
		}
	}
}

// stepProgress maps step i of n onto a percentage. Intermediate steps are
// capped at 99 so that 100 is only ever observed together with the complete
// status.
func stepProgress(i, n int) int {
	pct := int(math.Round(float64(i) / float64(n) * 100))
	if pct > 99 {
		pct = 99
	}
	return pct
}

// completeTask produces the artifact and records completion as one atomic
// update, so readers never see status=complete without an artifact.
func (m *Manager) completeTask(taskID string) {
	snapshot, err := m.store.Get(context.Background(), taskID)
	if err != nil {
		log.Warn().Str("task_id", taskID).Err(err).Msg("load task before completion failed")
		return
	}
	artifactPath, err := m.producer()(snapshot)
	if err != nil {
		m.failTask(taskID, "produce artifact: "+err.Error())
		return
	}
	if _, err := m.store.Update(context.Background(), taskID, func(t *Task) {
		t.Status = StatusComplete
		t.Progress = 100
		t.ArtifactPath = artifactPath
	}); err != nil {
		log.Error().Str("task_id", taskID).Err(err).Msg("persist completion failed")
		return
	}
	log.Info().Str("task_id", taskID).Str("artifact", artifactPath).Msg("processing complete")
}

// failTask moves the task into the error terminal state. Progress stays
// frozen at its last value.
func (m *Manager) failTask(taskID, msg string) {
	if _, err := m.store.Update(context.Background(), taskID, func(t *Task) {
		t.Status = StatusError
		t.ErrorMessage = msg
	}); err != nil {
		log.Warn().Str("task_id", taskID).Err(err).Msg("persist error state failed")
		return
	}
	log.Warn().Str("task_id", taskID).Str("reason", msg).Msg("task failed")
}
