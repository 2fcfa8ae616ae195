package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

// Job describes a kind of task the scheduler knows how to create. Jobs with a
// positive Interval are enqueued on every tick unless the previous one is
// still queued or running.
type Job struct {
	Type       TaskType
	Interval   time.Duration
	RunOnStart bool
	New        func() TaskInterface
}

type Scheduler struct {
	jobs        map[TaskType]Job
	order       []TaskType
	workerCount int
	taskTimeout time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface

	busyMu sync.Mutex
	busy   map[TaskType]int
}

func NewScheduler(workerCount int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	if workerCount <= 0 {
		workerCount = 1
	}

	return &Scheduler{
		jobs:        make(map[TaskType]Job),
		workerCount: workerCount,
		taskTimeout: 5 * time.Minute,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, 300),
		busy:        make(map[TaskType]int),
	}
}

// Register adds a job. Must be called before Start.
func (s *Scheduler) Register(job Job) {
	if _, exists := s.jobs[job.Type]; !exists {
		s.order = append(s.order, job.Type)
	}
	s.jobs[job.Type] = job
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	for _, taskType := range s.order {
		job := s.jobs[taskType]
		if job.RunOnStart {
			s.enqueuePeriodic(job)
		}
		if job.Interval <= 0 {
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()

			ticker := time.NewTicker(job.Interval)
			defer ticker.Stop()

			for {
				select {
				case <-s.ctx.Done():
					return
				case <-ticker.C:
					s.enqueuePeriodic(job)
				}
			}
		}()
	}
}

// Stop cancels every ticker, worker and pending retry and waits for them to exit
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	s.markBusy(task.GetType(), 1)

	select {
	case <-s.ctx.Done():
		s.markBusy(task.GetType(), -1)
		return s.ctx.Err()
	default:
	}

	select {
	case s.taskQueue <- task:
		return nil
	default:
		s.markBusy(task.GetType(), -1)
		return fmt.Errorf("task queue is full")
	}
}

// RunNow enqueues a fresh task of a registered job regardless of whether one is already in flight
func (s *Scheduler) RunNow(taskType TaskType) error {
	job, ok := s.jobs[taskType]
	if !ok {
		return fmt.Errorf("unknown task type %q", taskType)
	}
	return s.EnqueueTask(job.New())
}

// Busy reports how many tasks of a type are queued or running
func (s *Scheduler) Busy(taskType TaskType) int {
	s.busyMu.Lock()
	defer s.busyMu.Unlock()
	return s.busy[taskType]
}

func (s *Scheduler) enqueuePeriodic(job Job) {
	if s.Busy(job.Type) > 0 {
		slog.Debug("Previous task still in flight, skipping tick", "type", string(job.Type))
		return
	}

	if err := s.EnqueueTask(job.New()); err != nil {
		slog.Warn("Failed to enqueue periodic task", "type", string(job.Type), "error", err)
	}
}

func (s *Scheduler) markBusy(taskType TaskType, delta int) {
	s.busyMu.Lock()
	defer s.busyMu.Unlock()
	s.busy[taskType] += delta
	if s.busy[taskType] <= 0 {
		delete(s.busy, taskType)
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, s.taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		s.markBusy(task.GetType(), -1)
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() || s.ctx.Err() != nil {
		s.markBusy(task.GetType(), -1)
		if task.GetMaxRetries() > 0 {
			slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		}
		return
	}

	task.IncrementRetryCount()
	retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
	if retryDelay > 30*time.Second {
		retryDelay = 30 * time.Second
	}

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "subject", task.GetSubject(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
			s.markBusy(task.GetType(), -1)
			return
		case <-time.After(retryDelay):
		}

		// the task is still counted as busy from its first enqueue
		select {
		case s.taskQueue <- task:
		default:
			s.markBusy(task.GetType(), -1)
			slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", "task queue is full")
		}
	}()
}
