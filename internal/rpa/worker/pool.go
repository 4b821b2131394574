// Package worker runs the claim, credential, browser and record loop for RPA
// jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"montero/internal/domain/artifacts"
	"montero/internal/domain/rpa"
	"montero/internal/domain/vault"
	"montero/internal/platform/config"
	"montero/internal/platform/logger"
	"montero/internal/platform/metrics"
	"montero/internal/requestctx"
	"montero/internal/rpa/bots"
	"montero/internal/rpa/browser"
)

const (
	defaultPollInterval    = 2 * time.Second
	defaultMaxRuntime      = 5 * time.Minute
	defaultBreakerFailures = 5
	defaultBreakerCooldown = time.Minute
)

type Config struct {
	WorkerID     string
	PoolSize     int
	PollInterval time.Duration
	MaxRuntime   time.Duration
	Platforms    []string
	// BreakerFailures consecutive transient failures open a platform breaker
	// for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

type CredentialSource interface {
	Get(ctx context.Context, platform string) (vault.Credential, error)
}

type Notifier interface {
	CredentialRejected(ctx context.Context, jobID, platform, detail string) error
	JobFailedPermanent(ctx context.Context, jobID, platform, detail string) error
}

type Deps struct {
	Store     rpa.StoreAPI
	Vault     CredentialSource
	Driver    browser.Driver
	Runner    *bots.Runner
	Artifacts artifacts.Writer
	Notifier  Notifier
	Metrics   *metrics.Collector
}

type Pool struct {
	cfg  Config
	deps Deps

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func New(cfg Config, deps Deps) *Pool {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxRuntime <= 0 {
		cfg.MaxRuntime = defaultMaxRuntime
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = defaultBreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = defaultBreakerCooldown
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = "worker"
	}
	if deps.Runner == nil {
		deps.Runner = bots.NewRunner(nil, nil)
	}
	return &Pool{cfg: cfg, deps: deps, breakers: map[string]*gobreaker.CircuitBreaker{}}
}

// Run starts PoolSize workers and blocks until ctx is cancelled and every
// worker has finalized its current job.
func (p *Pool) Run(ctx context.Context) error {
	log := logger.Named("worker")
	log.Info().Str("worker_id", p.cfg.WorkerID).Int("pool_size", p.cfg.PoolSize).Strs("platforms", p.cfg.Platforms).Msg("worker pool started")

	g, gctx := errgroup.WithContext(ctx)
	for i := range p.cfg.PoolSize {
		id := fmt.Sprintf("%s-%d", p.cfg.WorkerID, i+1)
		g.Go(func() error {
			p.loop(gctx, id)
			return nil
		})
	}
	err := g.Wait()
	log.Info().Str("worker_id", p.cfg.WorkerID).Msg("worker pool stopped")
	return err
}

func (p *Pool) loop(ctx context.Context, workerID string) {
	log := logger.Named("worker").With().Str("worker_id", workerID).Logger()
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		processed, err := p.RunOnce(ctx, workerID)
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("claim failed")
		}
		if processed {
			timer.Reset(0)
		} else {
			timer.Reset(p.cfg.PollInterval)
		}
	}
}

// RunOnce claims and processes at most one job. It reports whether a job was
// processed.
func (p *Pool) RunOnce(ctx context.Context, workerID string) (bool, error) {
	job, err := p.deps.Store.Claim(ctx, workerID, p.cfg.Platforms)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	p.deps.Metrics.JobClaimed(job.Platform)
	p.process(ctx, *job)
	return true, nil
}

func (p *Pool) process(ctx context.Context, job rpa.Job) {
	start := time.Now()
	jobCtx := requestctx.WithJobID(ctx, job.ID)
	logger.C(jobCtx).Info().Str("action", string(job.Action)).Str("platform", job.Platform).Int("attempt", job.Attempts+1).Msg("job started")

	out := p.execute(jobCtx, job)

	// Finalization must land even when shutdown cancelled ctx.
	finCtx, cancel := context.WithTimeout(context.WithoutCancel(jobCtx), config.FinalizeGrace)
	defer cancel()
	p.finalize(finCtx, job, out, time.Since(start))
}

func (p *Pool) execute(ctx context.Context, job rpa.Job) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.C(ctx).Error().Interface("panic", r).Msg("job panicked")
			out = RetryableErr{Failure: rpa.Failure{Kind: rpa.KindUnexpected, Message: fmt.Sprintf("panic: %v", r), Retryable: true}}
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, p.cfg.MaxRuntime)
	defer cancel()

	cred, err := p.deps.Vault.Get(runCtx, job.Platform)
	if err != nil {
		return p.failure(ctx, runCtx, credentialError(err))
	}

	sess, err := p.deps.Driver.Open(runCtx, job.Platform)
	if err != nil {
		return p.failure(ctx, runCtx, rpa.NewError(rpa.KindUnexpected, "open browser", err))
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.C(ctx).Warn().Err(err).Msg("browser close failed")
		}
	}()

	res, err := p.breaker(job.Platform).Execute(func() (interface{}, error) {
		output, err := p.deps.Runner.Run(runCtx, sess, job, cred)
		if err != nil {
			return nil, err
		}
		return output, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return RetryableErr{Failure: rpa.Failure{Kind: rpa.KindPortalTransient, Message: "portal circuit open for " + job.Platform, Retryable: true}}
	}
	if err != nil {
		return p.failure(ctx, runCtx, err)
	}
	output := res.(bots.Output)

	ref := ""
	if len(output.Document) > 0 {
		ref, err = p.deps.Artifacts.Put(runCtx, artifacts.Meta{Mime: output.Mime, Filename: output.Filename, JobID: job.ID}, output.Document)
		if err != nil {
			return p.failure(ctx, runCtx, rpa.NewError(rpa.KindUnexpected, "store artifact", err))
		}
	}
	return Ok{Result: rpa.Result{Message: output.Message, ArtifactRef: ref}}
}

// failure classifies err. Shutdown and max_runtime expiry take precedence over
// whatever the browser reported once the context is gone.
func (p *Pool) failure(ctx, runCtx context.Context, err error) Outcome {
	if ctx.Err() != nil {
		return RetryableErr{Failure: rpa.Failure{Kind: rpa.KindUnexpected, Message: "worker shutdown", Retryable: true, Interrupted: true}}
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return RetryableErr{Failure: rpa.Failure{
			Kind:      rpa.KindWorkerTimeout,
			Message:   fmt.Sprintf("job exceeded max runtime of %s", p.cfg.MaxRuntime),
			Retryable: true,
		}}
	}
	return outcomeFromFailure(rpa.FailureFrom(err))
}

func credentialError(err error) error {
	switch {
	case errors.Is(err, vault.ErrCredentialNotFound):
		return rpa.NewError(rpa.KindCredentialRejected, "no credential stored for platform", err)
	case errors.Is(err, vault.ErrUntaggedCredential), errors.Is(err, vault.ErrCorruptCredential):
		return rpa.NewError(rpa.KindCredentialRejected, "stored credential unreadable", err)
	}
	return rpa.NewError(rpa.KindUnexpected, "credential lookup", err)
}

func (p *Pool) finalize(ctx context.Context, job rpa.Job, out Outcome, elapsed time.Duration) {
	log := logger.C(ctx)

	switch o := out.(type) {
	case Ok:
		if err := p.deps.Store.Complete(ctx, job.ID, job.WorkerID, o.Result); err != nil {
			log.Error().Err(err).Msg("job completion not recorded")
			return
		}
		p.deps.Metrics.JobFinished(string(job.Action), job.Platform, string(rpa.StatusSucceeded), "", elapsed)
		log.Info().Str("artifact_ref", o.Result.ArtifactRef).Dur("elapsed", elapsed).Msg("job succeeded")
	case RetryableErr:
		p.recordFailure(ctx, job, o.Failure, elapsed)
	case PermanentErr:
		p.recordFailure(ctx, job, o.Failure, elapsed)
	}
}

func (p *Pool) recordFailure(ctx context.Context, job rpa.Job, f rpa.Failure, elapsed time.Duration) {
	log := logger.C(ctx)
	status, err := p.deps.Store.Fail(ctx, job.ID, job.WorkerID, f)
	if err != nil {
		log.Error().Err(err).Str("kind", string(f.Kind)).Msg("job failure not recorded")
		return
	}
	p.deps.Metrics.JobFinished(string(job.Action), job.Platform, string(status), string(f.Kind), elapsed)
	log.Warn().Str("status", string(status)).Str("kind", string(f.Kind)).Str("error", f.Message).Dur("elapsed", elapsed).Msg("job failed")

	if p.deps.Notifier == nil {
		return
	}
	var nerr error
	switch {
	case f.Kind == rpa.KindCredentialRejected:
		nerr = p.deps.Notifier.CredentialRejected(ctx, job.ID, job.Platform, f.Message)
	case status == rpa.StatusFailedPermanent:
		nerr = p.deps.Notifier.JobFailedPermanent(ctx, job.ID, job.Platform, f.Message)
	}
	if nerr != nil {
		log.Warn().Err(nerr).Msg("operator notice failed")
	}
}

// breaker returns the platform's circuit breaker. Only transient portal
// failures count against it.
func (p *Pool) breaker(platform string) *gobreaker.CircuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cb, ok := p.breakers[platform]; ok {
		return cb
	}
	threshold := p.cfg.BreakerFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        platform,
		MaxRequests: 1,
		Timeout:     p.cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			var re *rpa.Error
			return !errors.As(err, &re) || re.Kind != rpa.KindPortalTransient
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.deps.Metrics.BreakerState(name, int(to))
			logger.Named("worker").Warn().Str("platform", name).Str("from", from.String()).Str("to", to.String()).Msg("portal breaker state changed")
		},
	})
	p.breakers[platform] = cb
	return cb
}

// BreakerState reports the breaker state of platform for diagnostics.
func (p *Pool) BreakerState(platform string) gobreaker.State {
	return p.breaker(platform).State()
}
