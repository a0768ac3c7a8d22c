package task

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	fileutil "github.com/rkrumins/file-processing-service/internal/file"
)

// gormStore persists task records in sqlite. It satisfies the same Store
// contract as the in-memory implementation, so the Manager does not care
// which backend it runs on. Row-level atomicity comes from running every
// Update inside a transaction.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore opens (creating if needed) the sqlite database at path and
// migrates the tasks table. Tasks left non-terminal by a previous run are
// marked errored: their simulators died with the process.
func NewGormStore(path string) (Store, error) { //nolint:ireturn
	if err := fileutil.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.AutoMigrate(&Task{}); err != nil {
		return nil, fmt.Errorf("auto-migrate tasks: %w", err)
	}
	s := &gormStore{db: db}
	if err := s.recoverInterrupted(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *gormStore) recoverInterrupted() error {
	res := s.db.Model(&Task{}).
		Where("status IN ?", []Status{StatusPending, StatusProcessing}).
		Updates(map[string]any{
			"status":        StatusError,
			"error_message": "processing interrupted by restart",
		})
	if res.Error != nil {
		return fmt.Errorf("recover interrupted tasks: %w", res.Error)
	}
	return nil
}

func (s *gormStore) Create(ctx context.Context, t *Task) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Task
		err := tx.First(&existing, "id = ?", t.ID).Error
		if err == nil {
			return ErrDuplicateTask
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("check task id: %w", err)
		}
		if err := tx.Create(t).Error; err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		return nil
	})
}

func (s *gormStore) Get(ctx context.Context, id string) (Task, error) {
	var t Task
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Task{}, ErrTaskNotFound
		}
		return Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *gormStore) Update(ctx context.Context, id string, mutate func(*Task)) (Task, error) {
	var updated Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t Task
		if err := tx.First(&t, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTaskNotFound
			}
			return fmt.Errorf("load task: %w", err)
		}
		if t.Terminal() {
			return ErrInvalidTransition
		}
		mutate(&t)
		if err := tx.Save(&t).Error; err != nil {
			return fmt.Errorf("save task: %w", err)
		}
		updated = t
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	return updated, nil
}

func (s *gormStore) List(ctx context.Context) ([]Task, error) {
	var tasks []Task
	if err := s.db.WithContext(ctx).Order("created_at").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (s *gormStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&Task{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *gormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.Close() //nolint:wrapcheck
}
