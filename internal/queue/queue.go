package queue

import (
	"context"
	"sync"

	"github.com/imyashkale/deviceserver/internal/logger"
	"github.com/imyashkale/deviceserver/internal/models"
)

// MessageTypeDeviceAssociation tags messages carrying a
// device-association task on the queue boundary.
const MessageTypeDeviceAssociation = "DeviceAssociationTask"

// Publisher is the queue boundary the orchestrator publishes tasks
// through after persisting them.
type Publisher interface {
	Publish(ctx context.Context, task *models.DeviceTaskSummary) error
}

// TaskQueue is an in-process, channel-based implementation of the task
// queue, used when no SQS queue is configured.
type TaskQueue struct {
	tasks chan *models.DeviceTaskSummary
	done  chan bool
	mu    sync.Mutex
}

// NewTaskQueue creates a new task queue with the specified buffer size
func NewTaskQueue(bufferSize int) *TaskQueue {
	return &TaskQueue{
		tasks: make(chan *models.DeviceTaskSummary, bufferSize),
		done:  make(chan bool),
	}
}

// Publish adds a task to the queue
func (tq *TaskQueue) Publish(ctx context.Context, task *models.DeviceTaskSummary) error {
	select {
	case tq.tasks <- task:
		logger.WithTask(task.TaskID, task.GroupName).Info("Task published to queue")
		return nil
	case <-tq.done:
		logger.WithTask(task.TaskID, task.GroupName).Warn("Failed to publish task: queue is closed")
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tasks returns the underlying channel for task consumption
func (tq *TaskQueue) Tasks() <-chan *models.DeviceTaskSummary {
	return tq.tasks
}

// Close closes the queue
func (tq *TaskQueue) Close() {
	tq.mu.Lock()
	defer tq.mu.Unlock()

	select {
	case <-tq.done:
		return // already closed
	default:
		close(tq.done)
		close(tq.tasks)
	}
}

// WorkerPool manages multiple workers draining the task queue
type WorkerPool struct {
	tasks   <-chan *models.DeviceTaskSummary
	workers int
	wg      sync.WaitGroup
	done    chan bool
}

// NewWorkerPool creates a new worker pool over a task queue
func NewWorkerPool(queue *TaskQueue, numWorkers int) *WorkerPool {
	return &WorkerPool{
		tasks:   queue.tasks,
		workers: numWorkers,
		done:    make(chan bool),
	}
}

// Start starts all workers. The handler is invoked once per delivered
// task; outcome observation happens through the store, so the handler
// returns nothing.
func (wp *WorkerPool) Start(handler func(*models.DeviceTaskSummary)) {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(handler)
	}
}

// worker processes tasks from the queue
func (wp *WorkerPool) worker(handler func(*models.DeviceTaskSummary)) {
	defer wp.wg.Done()

	for {
		select {
		case task, ok := <-wp.tasks:
			if !ok {
				logger.Debug("Worker exiting: tasks channel closed")
				return
			}
			if task != nil {
				logger.WithTask(task.TaskID, task.GroupName).Info("Worker processing association task")
				handler(task)
				logger.WithTask(task.TaskID, task.GroupName).Debug("Worker finished association task")
			}
		case <-wp.done:
			logger.Debug("Worker exiting: stop signal received")
			return
		}
	}
}

// Stop stops all workers
func (wp *WorkerPool) Stop() {
	close(wp.done)
	wp.wg.Wait()
}

// Wait waits for all workers to finish
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}
