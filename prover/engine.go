// engine.go - Bounded asynchronous proving on top of the synchronous calls.
//
// Groth16 proving is CPU-heavy and internally parallel, so the engine caps
// the number of proofs in flight rather than the number of goroutines. Each
// async call returns a Task immediately; the proof and error become readable
// once the task signals completion.

package prover

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/zeropoolnetwork/zeropool-go/zeropool"
)

// Task is a pending proving job. It completes exactly once.
type Task struct {
	done  chan struct{}
	proof *Proof
	err   error
}

// Done returns a channel closed when the task completes.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task completes or ctx is cancelled.
func (t *Task) Wait(ctx context.Context) (*Proof, error) {
	select {
	case <-t.done:
		return t.proof, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Task) finish(proof *Proof, err error) {
	t.proof = proof
	t.err = err
	close(t.done)
}

// Engine runs proving jobs with a concurrency cap.
type Engine struct {
	params map[CircuitKind]*Params
	slots  *semaphore.Weighted
	log    zerolog.Logger
}

// NewEngine builds an engine over the given parameter sets, allowing at most
// workers proofs in flight. A non-positive workers means one.
func NewEngine(workers int, log zerolog.Logger, params ...*Params) *Engine {
	if workers <= 0 {
		workers = 1
	}
	byKind := make(map[CircuitKind]*Params, len(params))
	for _, p := range params {
		byKind[p.Kind] = p
	}
	return &Engine{
		params: byKind,
		slots:  semaphore.NewWeighted(int64(workers)),
		log:    log,
	}
}

// Params returns the loaded parameter set for a circuit kind, if any.
func (e *Engine) Params(kind CircuitKind) (*Params, bool) {
	p, ok := e.params[kind]
	return p, ok
}

// ProveTransferAsync schedules a transfer proof.
func (e *Engine) ProveTransferAsync(ctx context.Context, pub *TransferPub, sec *TransferSec) *Task {
	return e.run(ctx, KindTransfer, func(p *Params) (*Proof, error) {
		return ProveTransfer(p, pub, sec)
	})
}

// ProveTreeAsync schedules a tree-transition proof.
func (e *Engine) ProveTreeAsync(ctx context.Context, pub *TreePub, sec *TreeSec) *Task {
	return e.run(ctx, KindTreeUpdate, func(p *Params) (*Proof, error) {
		return ProveTree(p, pub, sec)
	})
}

// ProveDelegatedDepositAsync schedules a delegated-deposit proof.
func (e *Engine) ProveDelegatedDepositAsync(ctx context.Context, pub *DelegatedDepositPub, sec *DelegatedDepositSec) *Task {
	return e.run(ctx, KindDelegatedDeposit, func(p *Params) (*Proof, error) {
		return ProveDelegatedDeposit(p, pub, sec)
	})
}

func (e *Engine) run(ctx context.Context, kind CircuitKind, prove func(*Params) (*Proof, error)) *Task {
	task := &Task{done: make(chan struct{})}

	p, ok := e.params[kind]
	if !ok {
		task.finish(nil, &zeropool.WitnessError{Circuit: kind.String(), Err: errNoParams})
		return task
	}

	go func() {
		if err := e.slots.Acquire(ctx, 1); err != nil {
			task.finish(nil, err)
			return
		}
		defer e.slots.Release(1)

		start := time.Now()
		proof, err := prove(p)
		if err != nil {
			e.log.Error().Err(err).Str("circuit", kind.String()).Msg("proving failed")
		} else {
			e.log.Info().Str("circuit", kind.String()).Dur("took", time.Since(start)).Msg("proof generated")
		}
		task.finish(proof, err)
	}()
	return task
}
