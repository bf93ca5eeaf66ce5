package task

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"niftiwork/internal/convert"
	"niftiwork/internal/engine"
	"niftiwork/internal/instance"
	"niftiwork/internal/resolve"
)

// Converter is the part of the conversion controller the manager drives.
type Converter interface {
	Run(ctx context.Context, inst *instance.Instance, batch convert.Batch) (*convert.Report, error)
	Engine() engine.Engine
	Policy() convert.Policy
}

// Manager keeps tasks in memory, persists them, and runs conversions in the
// background with bounded concurrency. Tasks of one instance never overlap.
type Manager struct {
	mu        sync.RWMutex
	tasks     map[string]*Task
	active    map[string]string // instance id -> task id
	semaphore chan struct{}
	resolver  resolve.Resolver
	converter Converter
	workersWG sync.WaitGroup
	baseCtx   context.Context
	store     TaskStore
}

// NewManager creates a manager with provided configuration
func NewManager(opts Options, resolver resolve.Resolver, converter Converter) *Manager {
	if opts.MaxConcurrentTasks <= 0 {
		opts.MaxConcurrentTasks = defaultMaxConcurrent
	}
	return &Manager{
		tasks:     make(map[string]*Task),
		active:    make(map[string]string),
		semaphore: make(chan struct{}, opts.MaxConcurrentTasks),
		resolver:  resolver,
		converter: converter,
		baseCtx:   context.Background(),
		store:     NewFileStore(opts.DataDir),
	}
}

// IsBusy reports whether the system is currently at max concurrent processing
func (m *Manager) IsBusy() bool {
	return len(m.semaphore) >= cap(m.semaphore)
}

// Start resolves the instance and converts it in the background.
// Resolution errors (unknown instance, bad manifest) are returned directly.
// The returned task is a copy taken at creation; poll GetTask for progress.
func (m *Manager) Start(ctx context.Context, instanceID string) (*Task, error) {
	inst, batch, err := m.resolver.Resolve(ctx, instanceID)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	select {
	case m.semaphore <- struct{}{}:
	default:
		return nil, ErrBusy
	}
	newTask, err := m.createTask(inst.ID)
	if err != nil {
		<-m.semaphore
		return nil, err
	}

	created := m.snapshot(newTask)
	m.workersWG.Add(1)
	go func() {
		defer m.workersWG.Done()
		defer func() { <-m.semaphore }()
		_ = m.process(m.processingContext(), newTask, inst, batch)
	}()
	return created, nil
}

// RunSync converts an instance in the calling goroutine. The returned error
// is the fatal conversion error, if any; the task records it as well.
func (m *Manager) RunSync(ctx context.Context, instanceID string) (*Task, error) {
	inst, batch, err := m.resolver.Resolve(ctx, instanceID)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	m.semaphore <- struct{}{}
	defer func() { <-m.semaphore }()

	newTask, err := m.createTask(inst.ID)
	if err != nil {
		return nil, err
	}
	err = m.process(ctx, newTask, inst, batch)
	return m.snapshot(newTask), err
}

func (m *Manager) createTask(instanceID string) (*Task, error) {
	newTask := &Task{
		ID:         uuid.NewString(),
		InstanceID: instanceID,
		Status:     StatusCreated,
		CreatedAt:  time.Now(),
		Engine:     m.converter.Engine(),
		Policy:     m.converter.Policy(),
	}

	m.mu.Lock()
	if running, ok := m.active[instanceID]; ok {
		m.mu.Unlock()
		log.Warn().Str("instance", instanceID).Str("task_id", running).Msg("instance already converting")
		return nil, ErrInstanceBusy
	}
	m.active[instanceID] = newTask.ID
	m.tasks[newTask.ID] = newTask
	m.mu.Unlock()

	if err := m.persistTask(newTask); err != nil { // best-effort
		log.Warn().Str("task_id", newTask.ID).Err(err).Msg("persist task failed")
	}
	log.Info().Str("task_id", newTask.ID).Str("instance", instanceID).Msg("task created")
	return newTask, nil
}

// snapshot copies a task under the lock. Workers keep mutating the stored one.
func (m *Manager) snapshot(taskEntity *Task) *Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	copied := *taskEntity
	return &copied
}

// GetTask returns a snapshot of a task by ID
func (m *Manager) GetTask(taskID string) (*Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	foundTask, taskFound := m.tasks[taskID]
	if !taskFound {
		return nil, false
	}
	snapshot := *foundTask
	return &snapshot, true
}

// ListTasks returns snapshots of all tasks, newest first. An empty
// instanceID lists every instance.
func (m *Manager) ListTasks(instanceID string) []*Task {
	m.mu.RLock()
	out := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if instanceID != "" && t.InstanceID != instanceID {
			continue
		}
		snapshot := *t
		out = append(out, &snapshot)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// SetBaseContext sets the base context used by background conversions.
// Intended to be set at process startup and cancelled during shutdown.
func (m *Manager) SetBaseContext(ctx context.Context) {
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()
}

func (m *Manager) processingContext() context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.baseCtx == nil {
		return context.Background()
	}
	return m.baseCtx
}

// WaitAll blocks until all in-flight task workers finish or the context is done.
// Returns true if all workers finished, false if timed out.
func (m *Manager) WaitAll(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		m.workersWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// persistTask writes task state to disk atomically under data/tasks/<id>/status.json
func (m *Manager) persistTask(taskEntity *Task) error {
	if m.store == nil {
		return nil
	}
	m.mu.RLock()
	snapshot := *taskEntity
	m.mu.RUnlock()
	return m.store.SaveTask(context.Background(), &snapshot) //nolint:wrapcheck
}
