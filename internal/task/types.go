package task

import (
	"time"

	"niftiwork/internal/convert"
	"niftiwork/internal/engine"
)

type Status string

const (
	StatusCreated    Status = "created"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusNoData     Status = "no_data"
	StatusFailed     Status = "failed"
)

// Task is one conversion run over the resolved data of one instance.
type Task struct {
	ID         string          `json:"id"`
	InstanceID string          `json:"instance_id"`
	Status     Status          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Engine     engine.Engine   `json:"engine"`
	Policy     convert.Policy  `json:"policy"`
	Report     *convert.Report `json:"report,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Finished reports whether the task reached a terminal status.
func (t *Task) Finished() bool {
	return t.Status == StatusDone || t.Status == StatusNoData || t.Status == StatusFailed
}

type Options struct {
	DataDir            string
	MaxConcurrentTasks int
}

const defaultMaxConcurrent = 2
