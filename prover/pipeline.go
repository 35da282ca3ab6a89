package prover

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vocdoni/zkpassport/circuits"
	"github.com/vocdoni/zkpassport/log"
	"golang.org/x/sync/errgroup"
)

// Job is a proof to generate.
type Job struct {
	ID        string
	Variant   Variant
	Artifacts *circuits.CircuitArtifacts
	Inputs    []byte
}

// Result is the outcome of a Job. Valid is only meaningful when Err is nil.
type Result struct {
	ID       string
	Proof    *Proof
	Valid    bool
	Err      error
	Duration time.Duration
}

// Pipeline proves and verifies jobs with a bounded number of workers.
type Pipeline struct {
	backend  Backend
	verifier Verifier
	workers  int
	timeout  time.Duration
}

// NewPipeline returns a pipeline that proves with backend and verifies with
// verifier, or with the backend itself when verifier is nil. A workers
// value below one means a single worker and a zero timeout means
// DefaultTimeout.
func NewPipeline(backend Backend, verifier Verifier, workers int, timeout time.Duration) *Pipeline {
	if verifier == nil {
		verifier = backend
	}
	if workers < 1 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Pipeline{
		backend:  backend,
		verifier: verifier,
		workers:  workers,
		timeout:  timeout,
	}
}

// Run processes the jobs and returns their results in the same order. A
// failing job does not stop the others.
func (p *Pipeline) Run(ctx context.Context, jobs ...Job) []Result {
	results := make([]Result, len(jobs))
	g := errgroup.Group{}
	g.SetLimit(p.workers)
	for i, job := range jobs {
		if job.ID == "" {
			job.ID = uuid.NewString()
		}
		g.Go(func() error {
			results[i] = p.process(ctx, job)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Prove runs a single job.
func (p *Pipeline) Prove(ctx context.Context, job Job) Result {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	return p.process(ctx, job)
}

func (p *Pipeline) process(ctx context.Context, job Job) (res Result) {
	ctx, cancel := context.WithTimeout(WithJobID(ctx, job.ID), p.timeout)
	defer cancel()
	start := time.Now()
	res.ID = job.ID
	defer func() {
		res.Duration = time.Since(start)
	}()

	log.Debugw("proving", "job", job.ID, "variant", job.Variant.String())
	proof, err := p.backend.Prove(ctx, job.Artifacts, job.Inputs)
	if err != nil {
		res.Err = err
		log.Warnw("proof failed", "job", job.ID, "error", err.Error())
		return res
	}
	res.Proof = proof
	if got, want := len(proof.PubSignals), job.Variant.PublicSignals(); got != want {
		res.Err = fmt.Errorf("%w: %s circuit has %d, got %d", ErrPublicSignals, job.Variant, want, got)
		return res
	}

	vkey := job.Artifacts.VerifyingKey()
	if err := vkey.Load(); err != nil {
		res.Err = artifactsError(err)
		return res
	}
	res.Valid, res.Err = p.verifier.Verify(ctx, vkey.Content, proof)
	log.Infow("proof generated", "job", job.ID, "variant", job.Variant.String(),
		"valid", res.Valid, "took", time.Since(start).String())
	return res
}
