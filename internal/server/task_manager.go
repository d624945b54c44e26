package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus defines the possible states of a task.
type TaskStatus string

const (
	TaskStatusStarted   TaskStatus = "started"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCanceled  TaskStatus = "canceled"
)

// Task represents an asynchronous rebuild.
type Task struct {
	ID              string     `json:"id"`
	Status          TaskStatus `json:"status"`
	ProgressMessage string     `json:"progress_message,omitempty"`
	Error           string     `json:"error,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      time.Time  `json:"finished_at"`
	seq             uint64
	mu              sync.RWMutex
}

// TaskManager tracks rebuild tasks. At most one rebuild runs at a time:
// starting a new one cancels the previous one, whose partial work is
// discarded.
type TaskManager struct {
	tasks  map[string]*Task
	cancel context.CancelFunc
	seq    uint64
	mu     sync.RWMutex
	wg     sync.WaitGroup
}

// NewTaskManager creates a new task manager.
func NewTaskManager() *TaskManager {
	return &TaskManager{
		tasks: make(map[string]*Task),
	}
}

// Start cancels the running rebuild, if any, and runs fn in a new goroutine
// under a fresh task. A timeout of 0 means no limit.
func (tm *TaskManager) Start(timeout time.Duration, fn func(ctx context.Context, t *Task) error) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, timeout)
		inner := cancel
		cancel = func() { cancelTimeout(); inner() }
	}

	task := &Task{
		ID:        uuid.New().String(),
		Status:    TaskStatusStarted,
		StartedAt: time.Now(),
	}

	tm.mu.Lock()
	if tm.cancel != nil {
		tm.cancel()
	}
	tm.cancel = cancel
	tm.seq++
	task.seq = tm.seq
	tm.tasks[task.ID] = task
	tm.mu.Unlock()

	tm.wg.Add(1)
	go func() {
		defer tm.wg.Done()
		defer cancel()
		task.SetStatus(TaskStatusRunning)
		err := fn(ctx, task)
		switch {
		case err == nil:
			task.finish(TaskStatusCompleted, "")
		case errors.Is(err, context.Canceled):
			task.finish(TaskStatusCanceled, "superseded by a newer rebuild")
		default:
			task.finish(TaskStatusFailed, err.Error())
		}
	}()
	return task
}

// Seq orders tasks by start time.
func (t *Task) Seq() uint64 { return t.seq }

// GetTask safely retrieves a task by its ID.
func (tm *TaskManager) GetTask(id string) (*Task, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	task, found := tm.tasks[id]
	return task, found
}

// CancelAll cancels the running rebuild and waits for every task goroutine.
func (tm *TaskManager) CancelAll() {
	tm.mu.Lock()
	if tm.cancel != nil {
		tm.cancel()
		tm.cancel = nil
	}
	tm.mu.Unlock()
	tm.wg.Wait()
}

// Wait blocks until every started task has finished.
func (tm *TaskManager) Wait() { tm.wg.Wait() }

// SetStatus updates the status of the task.
func (t *Task) SetStatus(status TaskStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = status
}

// SetProgress updates the progress message for the task.
func (t *Task) SetProgress(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ProgressMessage = message
}

func (t *Task) finish(status TaskStatus, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = status
	t.Error = errMsg
	t.FinishedAt = time.Now()
}

// TaskView is a consistent copy of a task for serialization.
type TaskView struct {
	ID              string     `json:"id"`
	Status          TaskStatus `json:"status"`
	ProgressMessage string     `json:"progress_message,omitempty"`
	Error           string     `json:"error,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// Snapshot returns the current state of the task.
func (t *Task) Snapshot() TaskView {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v := TaskView{
		ID:              t.ID,
		Status:          t.Status,
		ProgressMessage: t.ProgressMessage,
		Error:           t.Error,
		StartedAt:       t.StartedAt,
	}
	if !t.FinishedAt.IsZero() {
		fin := t.FinishedAt
		v.FinishedAt = &fin
	}
	return v
}
