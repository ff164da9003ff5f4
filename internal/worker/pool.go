// Package worker implements the buffered worker pool that processes uploaded
// log files off the HTTP request path. Each job is one whole file: it is
// parsed, its matches reconstructed and committed, and transient storage
// failures retried, all on the worker goroutine.
package worker

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/rankforge/rankforge/internal/logic"
	"github.com/rankforge/rankforge/internal/parser"
	"github.com/rankforge/rankforge/internal/processor"
	"github.com/rankforge/rankforge/internal/storage"
)

// Prometheus metrics
var (
	filesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rankforge_logfiles_ingested_total",
		Help: "Total number of log files accepted into the queue",
	})

	filesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rankforge_logfiles_processed_total",
		Help: "Total number of log files fully processed",
	})

	filesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rankforge_logfiles_failed_total",
		Help: "Total number of log files that failed processing",
	})

	filesLoadShed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rankforge_logfiles_load_shed_total",
		Help: "Total number of log files dropped because the pool was stopping",
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rankforge_worker_queue_depth",
		Help: "Current depth of the worker queue",
	})

	processDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rankforge_logfile_process_duration_seconds",
		Help:    "Duration of full log file processing",
		Buckets: prometheus.DefBuckets,
	})
)

// transient-commit retry policy
const (
	maxCommitAttempts = 3
	retryBackoff      = 250 * time.Millisecond
)

// Job is one uploaded log file.
type Job struct {
	ID       uuid.UUID
	Source   string
	Data     []byte
	Received time.Time
}

// PoolConfig configures the worker pool.
type PoolConfig struct {
	WorkerCount int
	QueueSize   int
	Store       storage.Store
	Archive     processor.Archiver
	Leaderboard *logic.LeaderboardService
	Logger      *zap.Logger
}

// Pool manages the file-processing workers.
type Pool struct {
	config   PoolConfig
	jobQueue chan Job
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.SugaredLogger
	rater    *logic.RatingEngine
}

// NewPool creates a worker pool.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	p := &Pool{
		config:   cfg,
		jobQueue: make(chan Job, cfg.QueueSize),
		logger:   cfg.Logger.Sugar(),
		rater:    logic.NewRatingEngine(cfg.Logger),
	}
	// Enqueue selects on p.ctx, so it must be valid before Start runs.
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p
}

// Start launches the worker goroutines.
func (p *Pool) Start(ctx context.Context) {
	p.cancel()
	p.ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	go p.reportQueueDepth()

	p.logger.Infow("Worker pool started",
		"workers", p.config.WorkerCount,
		"queueSize", p.config.QueueSize,
	)
}

// Stop drains the queue and waits for in-flight files to finish.
func (p *Pool) Stop() {
	p.logger.Info("Stopping worker pool...")
	close(p.jobQueue)
	p.wg.Wait()
	p.cancel()
	p.logger.Info("Worker pool stopped")
}

// Enqueue adds a file to the queue, blocking while the queue is full.
// Returns false when the pool is shutting down.
func (p *Pool) Enqueue(job Job) (accepted bool) {
	// Protect against sending on closed channel during shutdown.
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warnw("Failed to enqueue log file (pool stopped)", "source", job.Source)
			accepted = false
		}
	}()

	select {
	case p.jobQueue <- job:
		filesIngested.Inc()
		return true
	case <-p.ctx.Done():
		p.logger.Warnw("Worker pool stopping, dropping log file", "source", job.Source)
		filesLoadShed.Inc()
		return false
	}
}

// QueueDepth returns the current queue size.
func (p *Pool) QueueDepth() int {
	return len(p.jobQueue)
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	p.logger.Infow("Worker started", "worker", id)

	for job := range p.jobQueue {
		start := time.Now()
		err := p.processFile(p.ctx, job)
		processDuration.Observe(time.Since(start).Seconds())

		if err != nil {
			filesFailed.Inc()
			p.logger.Errorw("Log file processing failed",
				"worker", id,
				"job_id", job.ID,
				"source", job.Source,
				"error", err,
			)
			continue
		}

		filesProcessed.Inc()
		p.logger.Infow("Log file processed",
			"worker", id,
			"job_id", job.ID,
			"source", job.Source,
			"duration", time.Since(start),
		)
	}
}

// processFile runs the full parse-reconstruct-commit pipeline for one file.
// The whole file is retried on a transient storage error; the duplicate
// check keeps already-committed matches from being ingested twice.
func (p *Pool) processFile(ctx context.Context, job Job) error {
	var lastErr error
	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		lines, err := parser.ReadLines(bytes.NewReader(job.Data), p.logger.Desugar())
		if err != nil {
			return err
		}

		scanner := parser.NewScanner(lines, p.config.Store, p.logger.Desugar())
		pipe := processor.NewPipeline(p.config.Store, p.rater, p.config.Archive, p.logger.Desugar())

		err = scanner.Run(ctx, func(ev parser.Event) error {
			return pipe.HandleEvent(ctx, ev)
		})
		if err == nil {
			if p.config.Leaderboard != nil {
				p.config.Leaderboard.Invalidate(ctx)
			}
			return nil
		}
		lastErr = err

		if !storage.IsTransient(err) || ctx.Err() != nil {
			return err
		}
		p.logger.Warnw("Transient storage error, retrying log file",
			"job_id", job.ID, "attempt", attempt, "error", err)
		select {
		case <-time.After(retryBackoff * time.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// reportQueueDepth periodically exports queue depth to Prometheus.
func (p *Pool) reportQueueDepth() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			queueDepth.Set(float64(len(p.jobQueue)))
		case <-p.ctx.Done():
			return
		}
	}
}
