package worker

import (
	"sync"

	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type TaskStop struct{}

type Task interface{}

type Worker struct {
	name      string
	sender    chan<- Task
	receiver  <-chan Task
	wg        *sync.WaitGroup
	processed atomic.Uint64
}

type TaskHandler interface {
	Handle(t Task)
}

type Starter interface {
	Start()
}

func (w *Worker) Start(handler TaskHandler) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if s, ok := handler.(Starter); ok {
			s.Start()
		}
		log.Debug("worker started", zap.String("name", w.name))
		for {
			task := <-w.receiver
			if _, ok := task.(TaskStop); ok {
				log.Debug("worker stopped", zap.String("name", w.name), zap.Uint64("processed", w.processed.Load()))
				return
			}
			handler.Handle(task)
			w.processed.Inc()
		}
	}()
}

func (w *Worker) Sender() chan<- Task {
	return w.sender
}

// Stop queues a stop task. Tasks queued before it are still handled.
func (w *Worker) Stop() {
	w.sender <- TaskStop{}
}

// Name returns the worker name.
func (w *Worker) Name() string {
	return w.name
}

// Processed returns the number of handled tasks.
func (w *Worker) Processed() uint64 {
	return w.processed.Load()
}

const defaultWorkerCapacity = 128

// NewWorker creates a worker whose queue holds capacity tasks; a non-positive
// capacity uses the default.
func NewWorker(name string, capacity int, wg *sync.WaitGroup) *Worker {
	if capacity <= 0 {
		capacity = defaultWorkerCapacity
	}
	ch := make(chan Task, capacity)
	return &Worker{
		sender:   (chan<- Task)(ch),
		receiver: (<-chan Task)(ch),
		name:     name,
		wg:       wg,
	}
}
