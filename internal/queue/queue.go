// Package queue implements the job queue and worker pool: a FIFO of
// job-ids backed by the job registry's durable meta/ snapshots, and
// JOB_WORKERS goroutines that pop ids and run the processing pipeline
// under a cross-process file lease.
package queue

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"sttstudio/pkg/logger"
)

// Processor runs the full job pipeline for one id. registerProcess, if
// called, lets the queue track the external subprocess currently owned by
// the job so it can be killed on shutdown.
type Processor interface {
	ProcessJob(ctx context.Context, jobID string, registerProcess func(*exec.Cmd)) error
}

type runningJob struct {
	cancel  context.CancelFunc
	process *exec.Cmd
	mu      sync.Mutex
}

// Queue is the FIFO of job-ids plus the fixed-size worker pool draining it.
type Queue struct {
	processor Processor
	workers   int
	locksDir  string

	ch     chan string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	jobsMu sync.Mutex
	jobs   map[string]*runningJob
}

// New creates a Queue with a buffered channel large enough to never block
// Enqueue under normal operation; the bootstrap rehydrate path enqueues at
// most one entry per known job-id.
func New(processor Processor, workers int, locksDir string) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		processor: processor,
		workers:   workers,
		locksDir:  locksDir,
		ch:        make(chan string, 4096),
		ctx:       ctx,
		cancel:    cancel,
		jobs:      make(map[string]*runningJob),
	}
}

// Start launches the worker pool.
func (q *Queue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
}

// Stop cancels every in-flight job, kills their subprocess trees, and
// waits for all workers to exit.
func (q *Queue) Stop() {
	q.cancel()

	q.jobsMu.Lock()
	for id, rj := range q.jobs {
		rj.mu.Lock()
		if rj.process != nil && rj.process.Process != nil {
			if err := killProcessTree(rj.process.Process); err != nil {
				logger.Debug("process tree kill failed", "job_id", id, "error", err)
			}
		}
		rj.mu.Unlock()
		rj.cancel()
	}
	q.jobsMu.Unlock()

	q.wg.Wait()
}

// Enqueue appends a job-id to the FIFO. It never blocks; if the queue is
// saturated the id is dropped and the worker-less id remains resumable on
// next bootstrap rehydrate (its meta record stays status=queued).
func (q *Queue) Enqueue(jobID string) {
	select {
	case q.ch <- jobID:
	default:
		logger.Error("queue saturated, dropping enqueue", "job_id", jobID)
	}
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	poll := time.NewTicker(time.Second)
	defer poll.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case jobID := <-q.ch:
			q.run(id, jobID)
		case <-poll.C:
			// wake periodically so shutdown is observed promptly even with
			// nothing in the channel.
		}
	}
}

func (q *Queue) run(workerID int, jobID string) {
	logger.WorkerOperation(workerID, jobID, "lease-attempt")

	release, ok := q.acquireLease(jobID)
	if !ok {
		logger.WorkerOperation(workerID, jobID, "lease-held-elsewhere")
		return
	}
	defer release()

	jobCtx, jobCancel := context.WithCancel(q.ctx)
	rj := &runningJob{cancel: jobCancel}

	q.jobsMu.Lock()
	q.jobs[jobID] = rj
	q.jobsMu.Unlock()

	registerProcess := func(cmd *exec.Cmd) {
		rj.mu.Lock()
		rj.process = cmd
		rj.mu.Unlock()
	}

	logger.WorkerOperation(workerID, jobID, "start")
	err := q.processor.ProcessJob(jobCtx, jobID, registerProcess)

	q.jobsMu.Lock()
	delete(q.jobs, jobID)
	q.jobsMu.Unlock()
	jobCancel()

	if err != nil {
		logger.WorkerOperation(workerID, jobID, "finished-error", "error", err)
	} else {
		logger.WorkerOperation(workerID, jobID, "finished-ok")
	}
}

// acquireLease creates locks/<id>.lock with O_CREATE|O_EXCL, writing the
// pid for diagnostics only. The returned func unlinks it; ok is false if
// another worker already holds it.
func (q *Queue) acquireLease(jobID string) (release func(), ok bool) {
	path := q.lockPath(jobID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, false
	}
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
	f.Close()
	return func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Debug("lease release failed", "job_id", jobID, "error", err)
		}
	}, true
}

func (q *Queue) lockPath(jobID string) string {
	return q.locksDir + string(os.PathSeparator) + jobID + ".lock"
}
