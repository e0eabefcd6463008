// Package taskmgr runs queued tasks grouped by key. Tasks sharing a key run
// one after another with the key's context; different keys run in parallel.
package taskmgr

import (
	"container/list"
	"context"
	"errors"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// HandlerFunc runs one task. keyCtx is the value registered with
// AddContext for the task's key, or nil.
type HandlerFunc func(ctx context.Context, keyCtx any, task any) error

type queue struct {
	running bool
	tasks   list.List
}

type TaskManager struct {
	mutex    sync.Mutex
	contexts map[string]any
	queues   map[string]*queue
	handler  HandlerFunc
	group    *errgroup.Group
	groupCtx context.Context
	errs     []error
}

func NewTaskManager(handler HandlerFunc) *TaskManager {
	return &TaskManager{
		contexts: make(map[string]any),
		queues:   make(map[string]*queue),
		handler:  handler,
	}
}

func (t *TaskManager) AddContext(key string, keyCtx any) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.contexts[key] = keyCtx
}

// AddTask queues task under key. Tasks added while Run is in progress are
// picked up by the same run.
func (t *TaskManager) AddTask(key string, task any) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	q, ok := t.queues[key]
	if !ok {
		q = &queue{}
		t.queues[key] = q
	}
	q.tasks.PushBack(task)
	if t.group != nil && !q.running {
		t.startLocked(key, q)
	}
}

func (t *TaskManager) startLocked(key string, q *queue) {
	q.running = true
	t.group.Go(func() error { return t.runTask(key, q) })
}

func (t *TaskManager) runTask(key string, q *queue) error {
	t.mutex.Lock()
	ctx := t.groupCtx
	keyCtx := t.contexts[key]
	for {
		if q.tasks.Len() == 0 || ctx.Err() != nil {
			q.running = false
			t.mutex.Unlock()
			return nil
		}
		task := q.tasks.Remove(q.tasks.Front())
		t.mutex.Unlock()
		if err := t.handler(ctx, keyCtx, task); err != nil {
			t.mutex.Lock()
			q.running = false
			// errors caused by an earlier failure cancelling the run are noise
			if !(errors.Is(err, context.Canceled) && ctx.Err() != nil && len(t.errs) > 0) {
				t.errs = append(t.errs, err)
			}
			t.mutex.Unlock()
			return err
		}
		t.mutex.Lock()
	}
}

// Run starts a worker for every key with queued tasks and waits until all
// queues are drained. The first failing task cancels the context seen by
// the others; Run returns the failures joined together. Tasks still queued
// after a failure are dropped.
func (t *TaskManager) Run(ctx context.Context) error {
	t.mutex.Lock()
	if t.group != nil {
		t.mutex.Unlock()
		return errors.New("task manager is already running")
	}
	t.errs = nil
	t.group, t.groupCtx = errgroup.WithContext(ctx)
	group := t.group
	keys := make([]string, 0, len(t.queues))
	for key := range t.queues {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if q := t.queues[key]; q.tasks.Len() > 0 && !q.running {
			t.startLocked(key, q)
		}
	}
	t.mutex.Unlock()

	err := group.Wait()
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.group, t.groupCtx = nil, nil
	for _, q := range t.queues {
		q.tasks.Init()
	}
	// gather errors
	if len(t.errs) > 0 {
		return errors.Join(t.errs...)
	}
	if err == nil {
		err = ctx.Err()
	}
	return err
}
