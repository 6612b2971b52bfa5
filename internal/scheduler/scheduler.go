// Package scheduler runs background maintenance work, such as periodic
// index scans, without blocking request handling.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/tliron/commonlog"
)

// Task is one unit of background work. Execute receives the scheduler's
// context and should return promptly once it is cancelled.
type Task struct {
	Name    string
	Execute func(ctx context.Context) error
}

type Scheduler struct {
	taskQueue       chan Task
	lowPriorityLock sync.Mutex
	stopChan        chan struct{}
	wg              sync.WaitGroup
	ctx             context.Context
	cancel          context.CancelFunc
	log             commonlog.Logger
}

// NewScheduler creates a new Scheduler with the specified queue size.
func NewScheduler(queueSize int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		taskQueue: make(chan Task, queueSize),
		stopChan:  make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		log:       commonlog.GetLogger("mdls.scheduler"),
	}
}

// Run starts the scheduler loop.
func (s *Scheduler) Run() {
	go func() {
		for {
			select {
			case task, ok := <-s.taskQueue:
				if !ok {
					return
				}
				s.execute(task)
			case <-s.stopChan:
				// Drain the queue before exiting.
				for task := range s.taskQueue {
					s.execute(task)
				}
				return
			}
		}
	}()
}

func (s *Scheduler) execute(task Task) {
	defer s.wg.Done()
	s.log.Debugf("executing task %s", task.Name)
	if err := task.Execute(s.ctx); err != nil {
		s.log.Errorf("task %s failed: %s", task.Name, err.Error())
	}
}

// SchedulePeriodic queues a low-priority task on an interval. The task also
// runs once at startup.
func (s *Scheduler) SchedulePeriodic(interval time.Duration, task Task) {
	go func() {
		s.lowPriorityLock.Lock()
		defer s.lowPriorityLock.Unlock()
		if err := task.Execute(s.ctx); err != nil {
			s.log.Errorf("task %s failed: %s", task.Name, err.Error())
		}
	}()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				go func() {
					s.lowPriorityLock.Lock()
					defer s.lowPriorityLock.Unlock()

					s.wg.Add(1)
					select {
					case s.taskQueue <- task:
						s.log.Debugf("scheduled task %s", task.Name)
					default:
						s.wg.Done()
						s.log.Debugf("skipped task %s, queue is full", task.Name)
					}
				}()
			case <-s.stopChan:
				return
			}
		}
	}()
}

// Schedule queues a high-priority task to run as soon as possible.
func (s *Scheduler) Schedule(task Task) {
	s.wg.Add(1)
	s.taskQueue <- task
}

// Stop drains outstanding tasks, waits for them to complete, then cancels
// the scheduler context.
func (s *Scheduler) Stop() {
	s.log.Info("stopping scheduler")
	close(s.stopChan)
	close(s.taskQueue)
	s.wg.Wait()
	s.cancel()
	s.log.Info("scheduler stopped")
}
