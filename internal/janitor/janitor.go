package janitor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/rkrumins/file-processing-service/internal/task"
)

// Janitor evicts terminal tasks older than maxAge on a cron schedule and
// removes their files from disk. The task core never deletes records on its
// own; retention is this component's policy, and it only ever touches tasks
// that already reached a terminal state.
type Janitor struct {
	store  task.Store
	cron   *cron.Cron
	maxAge time.Duration
}

func New(store task.Store, maxAge time.Duration) *Janitor {
	return &Janitor{store: store, cron: cron.New(), maxAge: maxAge}
}

// Start schedules the sweep. The schedule accepts standard cron specs and
// the @every form.
func (j *Janitor) Start(schedule string) error {
	if _, err := j.cron.AddFunc(schedule, func() {
		j.Sweep(context.Background())
	}); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	j.cron.Start()
	log.Info().Str("schedule", schedule).Dur("max_age", j.maxAge).Msg("retention janitor started")
	return nil
}

// Stop waits for a running sweep to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("retention janitor stopped")
}

// Sweep removes terminal tasks whose last update is older than maxAge.
// Returns the number of evicted tasks.
func (j *Janitor) Sweep(ctx context.Context) int {
	tasks, err := j.store.List(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("retention sweep: list tasks failed")
		return 0
	}

	cutoff := time.Now().Add(-j.maxAge)
	evicted := 0
	for _, t := range tasks {
		if !t.Terminal() || t.UpdatedAt.After(cutoff) {
			continue
		}
		if err := j.store.Delete(ctx, t.ID); err != nil {
			log.Warn().Str("task_id", t.ID).Err(err).Msg("retention sweep: delete failed")
			continue
		}
		removeFile(t.FileLocation)
		if t.ArtifactPath != "" && t.ArtifactPath != t.FileLocation {
			removeFile(t.ArtifactPath)
		}
		evicted++
		log.Info().Str("task_id", t.ID).Msg("task evicted by retention policy")
	}
	return evicted
}

func removeFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn().Str("path", path).Err(err).Msg("remove file failed")
	}
}
