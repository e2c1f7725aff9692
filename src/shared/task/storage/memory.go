package taskstorage

import (
	"context"
	"fmt"
	"sync"

	"github.com/jasonlryan/demucs/src/shared/lib/errors/mark"
	"github.com/jasonlryan/demucs/src/shared/task/entity"
)

var _ taskentity.Store = &Memory{}

// Memory keeps tasks for the lifetime of the process.
type Memory struct {
	mutex sync.RWMutex
	tasks map[string]taskentity.Task
}

func NewMemory() *Memory {
	return &Memory{
		tasks: map[string]taskentity.Task{},
	}
}

func (m *Memory) Get(ctx context.Context, id string) (taskentity.Task, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	task, ok := m.tasks[id]
	if !ok {
		return taskentity.Task{}, mark.Message(taskentity.TaskNotFound, fmt.Sprintf("Task %s not found", id))
	}

	return task, nil
}

func (m *Memory) Put(ctx context.Context, task taskentity.Task, expectedRevision int64) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	current, ok := m.tasks[task.ID]
	switch {
	case !ok && expectedRevision != 0:
		return mark.Message(taskentity.TaskNotFound, fmt.Sprintf("Task %s not found", task.ID))
	case ok && current.Revision != expectedRevision:
		return mark.Message(taskentity.RevisionConflict, "Task was modified concurrently")
	}

	m.tasks[task.ID] = task
	return nil
}
