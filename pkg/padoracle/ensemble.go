package padoracle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/mahdiidarabi/rsa-oracle/internal/workerpool"
)

// Query is one question of a batch: Content is sent to an oracle and Offset
// identifies the candidate it belongs to (for example s - base).
type Query struct {
	Offset  int
	Content []byte
}

// BatchResult is the reconciled outcome of ProbeBatch.
type BatchResult struct {
	// Found is true when at least one query was answered true.
	Found bool
	// Offset is the smallest offset answered true. Only meaningful when
	// Found is set.
	Offset int
	// Warnings holds the errors of queries that were counted as false.
	Warnings []error
}

// Ensemble spreads queries over a set of equivalent oracles. Every oracle is
// owned by one long-lived worker, so a remote oracle's connection is never
// shared between goroutines.
type Ensemble struct {
	oracles []Oracle
	pool    *workerpool.Pool

	mu   sync.Mutex
	warn func(error)
}

// NewEnsemble starts one worker per oracle.
func NewEnsemble(oracles ...Oracle) (*Ensemble, error) {
	if len(oracles) == 0 {
		return nil, errors.New("ensemble needs at least one oracle")
	}
	for i, o := range oracles {
		if o == nil {
			return nil, fmt.Errorf("oracle %d is nil", i)
		}
	}

	e := &Ensemble{oracles: append([]Oracle(nil), oracles...)}
	e.pool = workerpool.New(len(oracles), func(ctx context.Context, worker int, payload []byte) (bool, error) {
		return e.oracles[worker].Query(ctx, payload)
	})
	return e, nil
}

// Len returns the number of oracles.
func (e *Ensemble) Len() int {
	return len(e.oracles)
}

// Queries returns the number of queries sent to the oracles so far.
func (e *Ensemble) Queries() int64 {
	return e.pool.Handled()
}

// SetWarningHandler installs fn to receive the errors Query swallows.
func (e *Ensemble) SetWarningHandler(fn func(error)) {
	e.mu.Lock()
	e.warn = fn
	e.mu.Unlock()
}

func (e *Ensemble) warning(err error) {
	e.mu.Lock()
	fn := e.warn
	e.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// Close stops the workers and closes every oracle that implements
// io.Closer.
func (e *Ensemble) Close() error {
	e.pool.Close()

	var errs []error
	for _, o := range e.oracles {
		if c, ok := o.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// ProbeBatch sends the queries concurrently, query i going to oracle i mod
// Len(). It returns as soon as the smallest offset answered true is known,
// that is once every query with a smaller offset has come back false.
// Stragglers are still drained in the background by their workers.
//
// A query whose oracle is unavailable is resent to the next oracle that is
// still reachable. Any other failure counts as false and is reported in
// Warnings. The batch fails with ErrOracleUnavailable only when every
// oracle of the ensemble turned out to be unavailable.
func (e *Ensemble) ProbeBatch(ctx context.Context, queries []Query) (BatchResult, error) {
	if len(queries) == 0 {
		return BatchResult{}, nil
	}

	// order lists query indexes by ascending offset.
	order := make([]int, len(queries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return queries[order[a]].Offset < queries[order[b]].Offset
	})

	results := make(chan workerpool.Result, len(queries))
	for i, q := range queries {
		job := workerpool.Job{Index: i, Payload: q.Content, Results: results}
		if err := e.pool.Submit(ctx, i%e.Len(), job); err != nil {
			return BatchResult{}, fmt.Errorf("failed to submit query at offset %d: %w", q.Offset, err)
		}
	}

	var (
		out      BatchResult
		reported = make([]bool, len(queries))
		answers  = make([]bool, len(queries))
		down     = newFailover(e.Len())
		next     int // position in order of the first undecided query
	)

	for pending := len(queries); pending > 0; {
		var res workerpool.Result
		select {
		case <-ctx.Done():
			return BatchResult{}, ctx.Err()
		case res = <-results:
		}

		if res.Err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return BatchResult{}, ctxErr
			}
			out.Warnings = append(out.Warnings, fmt.Errorf("query at offset %d (oracle %d): %w",
				queries[res.Index].Offset, res.Worker, res.Err))

			if errors.Is(res.Err, ErrOracleUnavailable) {
				worker, ok := down.mark(res.Worker)
				if !ok {
					return out, fmt.Errorf("all %d oracles failed: %w", e.Len(), ErrOracleUnavailable)
				}
				job := workerpool.Job{Index: res.Index, Payload: queries[res.Index].Content, Results: results}
				if err := e.pool.Submit(ctx, worker, job); err != nil {
					return BatchResult{}, fmt.Errorf("failed to resubmit query at offset %d: %w", queries[res.Index].Offset, err)
				}
				continue
			}
		} else {
			answers[res.Index] = res.Answer
		}
		reported[res.Index] = true
		pending--

		for next < len(order) && reported[order[next]] {
			if answers[order[next]] {
				out.Found = true
				out.Offset = queries[order[next]].Offset
				return out, nil
			}
			next++
		}
	}
	return out, nil
}

// Query asks a single question, failing over to the next oracle while the
// current one is unavailable. Other errors are reported to the warning
// handler and answered false. Query makes an Ensemble usable as an Oracle.
func (e *Ensemble) Query(ctx context.Context, content []byte) (bool, error) {
	results := make(chan workerpool.Result, 1)

	var lastErr error
	for worker := 0; worker < e.Len(); worker++ {
		if err := e.pool.Submit(ctx, worker, workerpool.Job{Payload: content, Results: results}); err != nil {
			return false, err
		}

		var res workerpool.Result
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case res = <-results:
		}

		switch {
		case res.Err == nil:
			return res.Answer, nil
		case ctx.Err() != nil:
			return false, ctx.Err()
		case errors.Is(res.Err, ErrOracleUnavailable):
			lastErr = res.Err
			e.warning(fmt.Errorf("oracle %d: %w", worker, res.Err))
		default:
			e.warning(fmt.Errorf("oracle %d: %w", worker, res.Err))
			return false, nil
		}
	}
	return false, fmt.Errorf("all %d oracles failed: %w", e.Len(), lastErr)
}

// QueryAll sends every content and waits for all answers. Queries are
// failed over like in ProbeBatch; other failures are answered false and
// returned as warnings. The call fails with ErrOracleUnavailable only if
// every oracle turned out to be unavailable.
func (e *Ensemble) QueryAll(ctx context.Context, contents [][]byte) ([]bool, []error, error) {
	if len(contents) == 0 {
		return nil, nil, nil
	}

	results := make(chan workerpool.Result, len(contents))
	for i, c := range contents {
		if err := e.pool.Submit(ctx, i%e.Len(), workerpool.Job{Index: i, Payload: c, Results: results}); err != nil {
			return nil, nil, fmt.Errorf("failed to submit query %d: %w", i, err)
		}
	}

	answers := make([]bool, len(contents))
	var warnings []error
	down := newFailover(e.Len())
	for pending := len(contents); pending > 0; {
		var res workerpool.Result
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case res = <-results:
		}

		if res.Err == nil {
			answers[res.Index] = res.Answer
			pending--
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		warnings = append(warnings, fmt.Errorf("query %d (oracle %d): %w", res.Index, res.Worker, res.Err))

		if !errors.Is(res.Err, ErrOracleUnavailable) {
			pending--
			continue
		}
		worker, ok := down.mark(res.Worker)
		if !ok {
			return nil, warnings, fmt.Errorf("all %d oracles failed: %w", e.Len(), ErrOracleUnavailable)
		}
		job := workerpool.Job{Index: res.Index, Payload: contents[res.Index], Results: results}
		if err := e.pool.Submit(ctx, worker, job); err != nil {
			return nil, nil, fmt.Errorf("failed to resubmit query %d: %w", res.Index, err)
		}
	}
	return answers, warnings, nil
}

// failover tracks the oracles found unavailable during one batch.
type failover struct {
	down  []bool
	count int
}

func newFailover(size int) *failover {
	return &failover{down: make([]bool, size)}
}

// mark records worker as unavailable and returns the next worker after it
// that is still reachable. ok is false once every worker is down.
func (f *failover) mark(worker int) (next int, ok bool) {
	if !f.down[worker] {
		f.down[worker] = true
		f.count++
	}
	if f.count == len(f.down) {
		return 0, false
	}
	for d := 1; d <= len(f.down); d++ {
		next = (worker + d) % len(f.down)
		if !f.down[next] {
			return next, true
		}
	}
	return 0, false
}
