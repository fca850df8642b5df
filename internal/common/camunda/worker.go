package camunda

import (
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// WorkerOptions mirrors config.WorkerConfig in typed form.
type WorkerOptions struct {
	Enabled       bool
	MaxJobsActive int
	Timeout       time.Duration
	Name          string
}

// Worker is an open job subscription for one task type.
type Worker struct {
	taskType string
	jobs     worker.JobWorker
}

// StartWorker opens a job worker for taskType. It returns nil when the
// worker is disabled.
func (c *Client) StartWorker(taskType string, opts WorkerOptions, handler worker.JobHandler) *Worker {
	if !opts.Enabled {
		c.logger.Info("Worker disabled", map[string]interface{}{"taskType": taskType})
		return nil
	}

	builder := c.client.NewJobWorker().
		JobType(taskType).
		Handler(handler).
		MaxJobsActive(opts.MaxJobsActive).
		Timeout(opts.Timeout)
	if opts.Name != "" {
		builder = builder.Name(opts.Name)
	}
	if c.config.RequestTimeout > 0 {
		builder = builder.RequestTimeout(c.config.RequestTimeout)
	}

	c.logger.Info("Worker started", map[string]interface{}{
		"taskType":      taskType,
		"maxJobsActive": opts.MaxJobsActive,
		"timeout":       opts.Timeout.String(),
	})
	return &Worker{taskType: taskType, jobs: builder.Open()}
}

func (w *Worker) TaskType() string {
	return w.taskType
}

// Close stops polling and waits for in-flight handlers to return.
func (w *Worker) Close() {
	if w == nil {
		return
	}
	w.jobs.Close()
	w.jobs.AwaitClose()
}
