// timer/timer.go
package timer

import (
	"container/heap"
	"sync"
	"time"
)

// Task is a scheduled callback. Keys are domain-scoped strings such as
// "match:<roomID>" or "question:<roomID>:<questionID>" so the owner of a
// match can cancel exactly the timers it armed.
type Task struct {
	Key      string
	Execute  time.Time
	Callback func()
	index    int
}

type taskQueue []*Task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	return q[i].Execute.Before(q[j].Execute)
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x interface{}) {
	n := len(*q)
	task := x.(*Task)
	task.index = n
	*q = append(*q, task)
}

func (q *taskQueue) Pop() interface{} {
	old := *q
	n := len(old)
	task := old[n-1]
	task.index = -1
	*q = old[0 : n-1]
	return task
}

// Manager schedules cancellable one-shot callbacks off a single heap.
// Scheduling an existing key replaces the pending task.
type Manager struct {
	queue      taskQueue
	byKey      map[string]*Task
	mutex      sync.Mutex
	trigger    chan *Task
	resolution time.Duration
	stopChan   chan struct{}
	stopOnce   sync.Once
}

// NewManager starts the scheduling loop. Resolution bounds how late a
// callback can fire; 100ms matches the original tick.
func NewManager(resolution time.Duration) *Manager {
	if resolution <= 0 {
		resolution = 100 * time.Millisecond
	}
	manager := &Manager{
		queue:      make(taskQueue, 0),
		byKey:      make(map[string]*Task),
		trigger:    make(chan *Task, 1000),
		resolution: resolution,
		stopChan:   make(chan struct{}),
	}
	heap.Init(&manager.queue)
	go manager.process()
	return manager
}

// Schedule arms callback to run after delay, replacing any pending task
// under the same key.
func (m *Manager) Schedule(key string, delay time.Duration, callback func()) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if old, ok := m.byKey[key]; ok && old.index >= 0 {
		heap.Remove(&m.queue, old.index)
	}

	task := &Task{
		Key:      key,
		Execute:  time.Now().Add(delay),
		Callback: callback,
	}
	m.byKey[key] = task
	heap.Push(&m.queue, task)
}

// Cancel removes a pending task. Returns false when the key is unknown
// or the task already fired; a callback that raced past cancellation is
// expected to re-validate state before acting.
func (m *Manager) Cancel(key string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task, ok := m.byKey[key]
	if !ok {
		return false
	}
	delete(m.byKey, key)
	if task.index < 0 {
		return false
	}
	heap.Remove(&m.queue, task.index)
	return true
}

// Stop halts the scheduling loop. Pending tasks never fire.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
}

func (m *Manager) process() {
	ticker := time.NewTicker(m.resolution)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return

		case <-ticker.C:
			m.mutex.Lock()
			now := time.Now()

			for m.queue.Len() > 0 {
				task := m.queue[0]
				if task.Execute.After(now) {
					break
				}

				heap.Pop(&m.queue)
				if m.byKey[task.Key] == task {
					delete(m.byKey, task.Key)
				}
				m.trigger <- task
			}
			m.mutex.Unlock()

		case task := <-m.trigger:
			go task.Callback()
		}
	}
}
