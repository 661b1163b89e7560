package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/pageview/internal/config"
	"github.com/dgallion1/pageview/internal/parser"
)

// Orchestrator manages the render job queue and its workers.
type Orchestrator struct {
	jobs     *JobStore
	queue    chan *Job
	renderer *Renderer
	cache    Cache
	log      *slog.Logger
	cfg      config.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. cache may be nil.
func NewOrchestrator(cfg config.Config, renderer *Renderer, cache Cache, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:     NewJobStore(cfg.JobTTL),
		queue:    make(chan *Job, cfg.MaxQueueSize),
		renderer: renderer,
		cache:    cache,
		log:      log,
		cfg:      cfg,
	}
}

func (o *Orchestrator) newWorker() *Worker {
	opts := parser.Options{PDFFallbackPdftotext: o.cfg.PDFFallbackPdftotext}
	return NewWorker(o.renderer, o.cache, o.log, opts, o.cfg.Stylesheet(), o.cfg.CacheTTL)
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := o.newWorker()
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store and cache cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.cleanup(workerCtx)
			}
		}
	}()
}

func (o *Orchestrator) cleanup(ctx context.Context) {
	o.jobs.Cleanup()
	if o.cache == nil {
		return
	}
	n, err := o.cache.Prune(ctx, o.cfg.CacheTTL)
	if err != nil {
		o.log.Warn("render cache prune failed", "error", err)
		return
	}
	if n > 0 {
		o.log.Info("render cache pruned", "entries", n)
	}
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("job queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// RenderNow processes job on the calling goroutine, bypassing the queue, and
// returns its descriptors.
func (o *Orchestrator) RenderNow(ctx context.Context, job *Job) ([]PageDescriptor, error) {
	if err := o.newWorker().Process(ctx, job); err != nil {
		return nil, err
	}
	pages, _ := job.Pages()
	return pages, nil
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}
