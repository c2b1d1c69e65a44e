// Package dag runs tasks ordered by a directed acyclic graph, with retries,
// bounded parallelism and a cron schedule.
package dag

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/xerrors"
)

// ErrCycle is returned by Validate when tasks depend on each other in a loop.
var ErrCycle = errors.New("dag has a cycle")

// Operator is the work of one task.
type Operator interface {
	Execute(ctx context.Context) error
}

// OperatorFunc adapts a function to Operator.
type OperatorFunc func(ctx context.Context) error

// Execute calls f.
func (f OperatorFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// DefaultArgs apply to every task added after they are set.
type DefaultArgs struct {
	Owner      string
	Retries    int
	RetryDelay time.Duration
}

// DAG is a set of tasks and their dependencies.
type DAG struct {
	ID          string
	Description string

	// Schedule is a five-field cron expression.
	Schedule    string
	DefaultArgs DefaultArgs

	// Catchup runs missed schedules. Only false is supported.
	Catchup bool

	// MaxActiveTasks bounds how many tasks run at once. Zero means no bound.
	MaxActiveTasks int

	nodes []*Node
}

// New builds an empty DAG.
func New(id string, args DefaultArgs) *DAG {
	return &DAG{ID: id, DefaultArgs: args}
}

// Node is a task in a DAG.
type Node struct {
	ID         string
	Operator   Operator
	Owner      string
	Retries    int
	RetryDelay time.Duration

	dag        *DAG
	upstream   []*Node
	downstream []*Node
}

// Add adds a task running op.
func (d *DAG) Add(id string, op Operator) *Node {
	n := &Node{
		ID:         id,
		Operator:   op,
		Owner:      d.DefaultArgs.Owner,
		Retries:    d.DefaultArgs.Retries,
		RetryDelay: d.DefaultArgs.RetryDelay,
		dag:        d,
	}
	d.nodes = append(d.nodes, n)
	return n
}

// Nodes returns the tasks in the order they were added.
func (d *DAG) Nodes() []*Node {
	return append([]*Node(nil), d.nodes...)
}

// Then makes nodes run after n and returns nodes for further chaining of a
// single node.
func (n *Node) Then(nodes ...*Node) []*Node {
	for _, m := range nodes {
		n.downstream = append(n.downstream, m)
		m.upstream = append(m.upstream, n)
	}
	return nodes
}

// Upstream returns the IDs of the tasks n waits for.
func (n *Node) Upstream() []string {
	ids := make([]string, len(n.upstream))
	for i, u := range n.upstream {
		ids[i] = u.ID
	}
	sort.Strings(ids)
	return ids
}

// Chain makes every node of a stage run after every node of the previous
// stage.
func Chain(stages ...[]*Node) {
	for i := 1; i < len(stages); i++ {
		for _, u := range stages[i-1] {
			u.Then(stages[i]...)
		}
	}
}

// Validate checks ids, operators and that the graph has no cycle.
func (d *DAG) Validate() error {
	if d.ID == "" {
		return xerrors.New("dag id is required")
	}

	seen := map[string]bool{}
	for _, n := range d.nodes {
		if n.ID == "" {
			return xerrors.Errorf("dag %s: task without id", d.ID)
		}
		if seen[n.ID] {
			return xerrors.Errorf("dag %s: duplicate task id %s", d.ID, n.ID)
		}
		seen[n.ID] = true

		if n.Operator == nil {
			return xerrors.Errorf("dag %s: task %s has no operator", d.ID, n.ID)
		}
		if n.Retries < 0 {
			return xerrors.Errorf("dag %s: task %s has negative retries", d.ID, n.ID)
		}

		for _, m := range append(n.upstream, n.downstream...) {
			if m.dag != d {
				return xerrors.Errorf("dag %s: task %s depends on unknown task %s", d.ID, n.ID, m.ID)
			}
		}
	}

	if _, err := d.order(); err != nil {
		return err
	}

	return nil
}

// order sorts the tasks topologically.
func (d *DAG) order() ([]*Node, error) {
	indegree := make(map[*Node]int, len(d.nodes))
	queue := []*Node{}

	for _, n := range d.nodes {
		indegree[n] = len(n.upstream)
		if len(n.upstream) == 0 {
			queue = append(queue, n)
		}
	}

	sorted := make([]*Node, 0, len(d.nodes))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		sorted = append(sorted, n)

		for _, m := range n.downstream {
			indegree[m]--
			if indegree[m] == 0 {
				queue = append(queue, m)
			}
		}
	}

	if len(sorted) != len(d.nodes) {
		return nil, xerrors.Errorf("dag %s: %w", d.ID, ErrCycle)
	}

	return sorted, nil
}
