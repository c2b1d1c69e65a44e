package dag

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
	"golang.org/x/xerrors"
)

// State is the state of a task in a run.
type State string

const (
	StateNone           State = "none"
	StateRunning        State = "running"
	StateSuccess        State = "success"
	StateFailed         State = "failed"
	StateUpstreamFailed State = "upstream_failed"
)

// TaskResult is the outcome of one task in a run.
type TaskResult struct {
	ID       string
	State    State
	Attempts int
	Error    error
	Elapsed  time.Duration
}

// RunResult is the outcome of a run.
type RunResult struct {
	DAGID   string
	Started time.Time
	Elapsed time.Duration
	Tasks   map[string]*TaskResult
}

// Failed returns the IDs of tasks that failed, in no particular order.
func (r *RunResult) Failed() []string {
	ids := []string{}
	for id, t := range r.Tasks {
		if t.State == StateFailed {
			ids = append(ids, id)
		}
	}
	return ids
}

// State returns the state of the task id.
func (r *RunResult) State(id string) State {
	if t, ok := r.Tasks[id]; ok {
		return t.State
	}
	return StateNone
}

// Run executes every task once its upstream tasks have finished.
// A task whose upstream did not succeed is marked upstream_failed without
// running. Run returns an error when any task failed.
func (d *DAG) Run(ctx context.Context) (*RunResult, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	logger := log.Ctx(ctx).With().Str("dag", d.ID).Logger()
	ctx = logger.WithContext(ctx)

	result := &RunResult{
		DAGID:   d.ID,
		Started: time.Now(),
		Tasks:   make(map[string]*TaskResult, len(d.nodes)),
	}
	for _, n := range d.nodes {
		result.Tasks[n.ID] = &TaskResult{ID: n.ID, State: StateNone}
	}

	limit := int64(d.MaxActiveTasks)
	if limit <= 0 {
		limit = int64(len(d.nodes)) + 1
	}
	sem := semaphore.NewWeighted(limit)

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		remaining = make(map[*Node]int, len(d.nodes))
	)

	for _, n := range d.nodes {
		remaining[n] = len(n.upstream)
	}

	var schedule func(n *Node)

	finish := func(n *Node) {
		mu.Lock()
		ready := []*Node{}
		for _, m := range n.downstream {
			remaining[m]--
			if remaining[m] == 0 {
				ready = append(ready, m)
			}
		}
		mu.Unlock()

		for _, m := range ready {
			schedule(m)
		}
	}

	schedule = func(n *Node) {
		wg.Add(1)
		go func() {
			defer wg.Done()

			tr := result.Tasks[n.ID]

			mu.Lock()
			blocked := false
			for _, u := range n.upstream {
				if result.Tasks[u.ID].State != StateSuccess {
					blocked = true
				}
			}
			if blocked {
				tr.State = StateUpstreamFailed
			}
			mu.Unlock()

			if blocked {
				logger.Warn().Str("task", n.ID).Msg("upstream failed")
				finish(n)
				return
			}

			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				tr.State = StateFailed
				tr.Error = err
				mu.Unlock()
				finish(n)
				return
			}

			mu.Lock()
			tr.State = StateRunning
			mu.Unlock()

			start := time.Now()
			attempts, err := n.execute(ctx)
			sem.Release(1)

			mu.Lock()
			tr.Attempts = attempts
			tr.Elapsed = time.Since(start)
			if err != nil {
				tr.State = StateFailed
				tr.Error = err
			} else {
				tr.State = StateSuccess
			}
			mu.Unlock()

			finish(n)
		}()
	}

	logger.Info().Msg("dag run started")

	for _, n := range d.nodes {
		if len(n.upstream) == 0 {
			schedule(n)
		}
	}
	wg.Wait()

	result.Elapsed = time.Since(result.Started)

	if failed := result.Failed(); len(failed) > 0 {
		logger.Error().Strs("tasks", failed).Msg("dag run failed")
		return result, xerrors.Errorf("dag %s: %d task(s) failed: %v", d.ID, len(failed), failed)
	}

	logger.Info().Dur("elapsed", result.Elapsed).Msg("dag run succeeded")

	return result, nil
}

// execute runs the operator with retries and returns the number of attempts.
func (n *Node) execute(ctx context.Context) (int, error) {
	logger := log.Ctx(ctx).With().Str("task", n.ID).Logger()
	ctx = logger.WithContext(ctx)

	var err error
	attempt := 0

	for attempt <= n.Retries {
		attempt++

		logger.Info().Int("attempt", attempt).Msg("task started")

		err = n.call(ctx)
		if err == nil {
			logger.Info().Int("attempt", attempt).Msg("task succeeded")
			return attempt, nil
		}

		logger.Error().Err(err).Int("attempt", attempt).Msg("task failed")

		if attempt > n.Retries {
			break
		}

		t := time.NewTimer(n.RetryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return attempt, xerrors.Errorf("task %s canceled while waiting to retry: %w", n.ID, ctx.Err())
		case <-t.C:
		}
	}

	return attempt, xerrors.Errorf("task %s failed after %d attempt(s): %w", n.ID, attempt, err)
}

func (n *Node) call(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", n.ID, r)
		}
	}()

	return n.Operator.Execute(ctx)
}
