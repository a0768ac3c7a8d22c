package task

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Task is one tracked unit of work for a single uploaded file.
// ID and OriginalFilename are immutable after creation; the remaining fields
// are mutated only by the simulator that owns the task.
type Task struct {
	ID               string    `json:"id" gorm:"primaryKey"`
	OriginalFilename string    `json:"original_filename" gorm:"not null"`
	FileLocation     string    `json:"-" gorm:"not null"`
	Status           Status    `json:"status" gorm:"not null;default:pending"`
	Progress         int       `json:"progress" gorm:"not null;default:0"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	ArtifactPath     string    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"-"`
}

func (t *Task) Terminal() bool { return t.Status.Terminal() }

// TableName names the table for the gorm-backed store.
func (Task) TableName() string { return "tasks" }

// Artifact is what the download handler needs to serve a completed result.
type Artifact struct {
	Path     string
	Filename string
}

// Options configures a Manager.
type Options struct {
	Store    Store
	Steps    int
	Duration time.Duration
	Timeout  time.Duration
}
