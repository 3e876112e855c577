package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/moonbitlang/moon/src/plan"
)

// NodeRunner executes one lowered plan node, returning the raw captured
// output (stdout+stderr combined) and an error if the command failed.
// Scheduler is agnostic to how a node is actually lowered and invoked; Run
// (run.go) supplies the concrete runner backed by src/lower and
// src/process.
type NodeRunner func(ctx context.Context, node *plan.Node) (output []byte, err error)

// Scheduler runs every node in a plan.Graph respecting dependency order,
// bounded by a fixed parallelism (spec.md 4.5, "Parallelism"; 5, "Scheduling
// model"), grounded on the teacher's core.Pool (a fixed pool of workers
// consuming off a channel) generalized with dependency-ready tracking, since
// plan nodes - unlike the teacher's targets - are fully enumerated up front
// rather than discovered incrementally.
type Scheduler struct {
	Graph       *plan.Graph
	Parallelism int // 1 forces strict serial execution ("-j1"/"--serial")
	MaxFailures int // 0 means use the spec default of 10
	SortInput   bool
	Runner      NodeRunner

	// OnStart/OnDone are optional hooks for diagnostics/tracing; called from
	// worker goroutines, so implementations must be safe for concurrent use.
	OnStart func(worker int, node *plan.Node)
	OnDone  func(worker int, node *plan.Node, skipped bool, err error)

	mutex      sync.Mutex
	pending    map[plan.NodeKey]int // remaining unresolved deps
	dependents map[plan.NodeKey][]plan.NodeKey
	failedDeps map[plan.NodeKey]bool // node itself, or a transitive dep, failed
	queue      []plan.NodeKey
	cond       *sync.Cond
	closed     bool
}

// Run executes the scheduler's graph to completion (or until shutdown via
// ctx, or the failure bound is hit), and returns an error summarizing any
// node failures. Individual node errors are reported through OnDone; Run's
// returned error is just the failure count/taxonomy (spec.md 7, "Execution
// engine errors").
func (s *Scheduler) Run(ctx context.Context) error {
	nodes := s.Graph.Nodes()
	s.pending = make(map[plan.NodeKey]int, len(nodes))
	s.dependents = make(map[plan.NodeKey][]plan.NodeKey, len(nodes))
	s.failedDeps = map[plan.NodeKey]bool{}
	s.cond = sync.NewCond(&s.mutex)

	for _, n := range nodes {
		s.pending[n.Key] = len(n.Deps)
		for _, d := range n.Deps {
			s.dependents[d] = append(s.dependents[d], n.Key)
		}
	}

	var initial []plan.NodeKey
	for _, n := range nodes {
		if s.pending[n.Key] == 0 {
			initial = append(initial, n.Key)
		}
	}
	if s.SortInput {
		sort.Slice(initial, func(i, j int) bool { return initial[i].String() < initial[j].String() })
	}
	s.queue = initial

	workers := s.Parallelism
	if workers < 1 {
		workers = 1
	}
	maxFailures := s.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 10
	}

	var failures int32
	remaining := int64(len(nodes))

	g, ctx := errgroup.WithContext(ctx)
	go func() {
		<-ctx.Done()
		s.shutdown()
	}()
	for w := 0; w < workers; w++ {
		worker := w
		g.Go(func() error {
			for {
				key, ok := s.next()
				if !ok {
					return nil
				}
				node := s.Graph.Node(key)
				skip, err := s.runOne(ctx, worker, node)
				if err != nil && !skip {
					if atomic.AddInt32(&failures, 1) >= int32(maxFailures) {
						s.shutdown()
					}
				}
				if atomic.AddInt64(&remaining, -1) == 0 {
					s.shutdown()
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if n := atomic.LoadInt32(&failures); n > 0 {
		return fmt.Errorf("%d build node(s) failed", n)
	}
	return nil
}

// runOne runs a single node (or marks it as skipped if a dependency already
// failed), then wakes any dependents whose last outstanding dependency this
// was.
func (s *Scheduler) runOne(ctx context.Context, worker int, node *plan.Node) (abortedBySibling bool, err error) {
	s.mutex.Lock()
	aborted := false
	for _, d := range node.Deps {
		if s.failedDeps[d] {
			aborted = true
			break
		}
	}
	s.mutex.Unlock()

	if aborted {
		s.mutex.Lock()
		s.failedDeps[node.Key] = true
		s.mutex.Unlock()
		if s.OnDone != nil {
			s.OnDone(worker, node, true, nil)
		}
		s.satisfyDependents(node.Key)
		return true, nil
	}

	if s.OnStart != nil {
		s.OnStart(worker, node)
	}
	_, runErr := s.Runner(ctx, node)
	if s.OnDone != nil {
		s.OnDone(worker, node, false, runErr)
	}
	if runErr != nil {
		s.mutex.Lock()
		s.failedDeps[node.Key] = true
		s.mutex.Unlock()
	}
	s.satisfyDependents(node.Key)
	return false, runErr
}

// satisfyDependents decrements every dependent's pending count and enqueues
// any that reach zero.
func (s *Scheduler) satisfyDependents(key plan.NodeKey) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var ready []plan.NodeKey
	for _, dep := range s.dependents[key] {
		s.pending[dep]--
		if s.pending[dep] == 0 {
			ready = append(ready, dep)
		}
	}
	if s.SortInput {
		sort.Slice(ready, func(i, j int) bool { return ready[i].String() < ready[j].String() })
	}
	s.queue = append(s.queue, ready...)
	if len(ready) > 0 {
		s.cond.Broadcast()
	}
}

// next blocks until a node is ready to run or the queue is closed (either
// because every node has been dispatched, the failure bound was hit, or ctx
// was cancelled - all three route through shutdown).
func (s *Scheduler) next() (plan.NodeKey, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for len(s.queue) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed || len(s.queue) == 0 {
		return plan.NodeKey{}, false
	}
	key := s.queue[0]
	s.queue = s.queue[1:]
	return key, true
}

// shutdown stops dispatching new nodes; workers drain their current node
// (spec.md 5, "Cancellation": first signal lets in-flight nodes finish) and
// then exit once the queue reports closed.
func (s *Scheduler) shutdown() {
	s.mutex.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mutex.Unlock()
}
