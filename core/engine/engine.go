package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
	"github.com/dipeo/dipeo-core/core/dispatch"
	"github.com/dipeo/dipeo-core/core/event"
	"github.com/dipeo/dipeo-core/core/registry"
	"github.com/dipeo/dipeo-core/core/scheduler"
)

// Engine owns one execution's run loop (spec.md §4.8): init, then
// schedule -> dispatch -> mark-complete -> emit progress, until every node
// is terminal or the execution deadline/cancellation fires.
type Engine struct {
	cfg        config
	diagram    *compiler.ExecutableDiagram
	dispatcher *dispatch.Dispatcher
	bus        *event.Bus
	services   *registry.Registry
}

// New constructs an Engine for one compiled diagram.
func New(diagram *compiler.ExecutableDiagram, dispatcher *dispatch.Dispatcher, bus *event.Bus, services *registry.Registry, opts ...Option) *Engine {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{cfg: cfg, diagram: diagram, dispatcher: dispatcher, bus: bus, services: services}
}

// StepProgress is yielded after every batch of dispatches (spec.md §4.8,
// "yield step_complete with progress snapshot").
type StepProgress struct {
	Step          int
	ExecutedNodes []core.NodeID
	Completed     int
	Total         int
	Percent       float64
}

// Run executes state.DiagramID to completion, mutating state in place via
// its own private StateTracker, and leaves the final ExecutionStatus in
// state.Status. It returns nil when the run completes and an error when a
// required node fails, the execution times out, or the run is aborted.
// progress, if non-nil, receives a StepProgress after every dispatch round;
// it must not block the loop, so callers should buffer or drop internally.
func (e *Engine) Run(ctx context.Context, state *core.ExecutionState, progress func(StepProgress)) (err error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.executionTimeout)
	defer cancel()

	registry.Register(e.services, registry.Diagram, any(e.diagram))
	registry.Register(e.services, registry.ExecutionCtx, any(state))

	tracker := NewStateTracker(state.ID)
	for _, n := range e.diagram.Nodes {
		tracker.InitializeNode(n.ID)
	}
	tracker.Snapshot(state)

	allNodeIDs := make([]core.NodeID, len(e.diagram.Nodes))
	for i, n := range e.diagram.Nodes {
		allNodeIDs[i] = n.ID
	}

	state.Status = core.ExecRunning
	e.publish(ctx, state.ID, event.ExecutionStarted, "", event.ExecutionStartedPayload{
		DiagramID: state.DiagramID,
		Variables: state.Variables,
	})

	defer func() {
		tracker.Snapshot(state)
		now := time.Now()
		state.EndedAt = &now
		_ = e.bus.AwaitPendingEvents(context.Background())
	}()

	step := 0
	for {
		if ctx.Err() != nil {
			return e.abort(ctx, state)
		}

		tracker.Snapshot(state)
		ready := scheduler.ReadyNodes(e.diagram, state)
		if len(ready) == 0 {
			if scheduler.IsExecutionComplete(e.diagram, state) {
				break
			}
			select {
			case <-time.After(e.cfg.nodeReadyPoll):
			case <-ctx.Done():
			}
			continue
		}

		step++
		results := e.dispatchRound(ctx, state, tracker, ready)

		// A cancelled/expired context takes priority over treating any
		// individual node failure it caused as a fatal application error:
		// the run is aborting, not one node misbehaving.
		if ctx.Err() != nil {
			for _, r := range results {
				if r.err != nil {
					tracker.MarkFailed(r.node.ID, r.err)
				} else {
					scheduler.MarkNodeCompleted(e.diagram, state, r.node, r.env)
					tracker.MarkCompleted(r.node.ID, r.env)
				}
			}
			tracker.Snapshot(state)
			return e.abort(ctx, state)
		}

		fatal := false
		for _, r := range results {
			if r.err != nil {
				tracker.MarkFailed(r.node.ID, r.err)
				if r.fatal {
					fatal = true
				}
				continue
			}
			scheduler.MarkNodeCompleted(e.diagram, state, r.node, r.env)
			tracker.MarkCompleted(r.node.ID, r.env)
			if r.node.Type == core.NodeCondition {
				if branch, _ := r.env.Meta["branch"].(string); branch != "" {
					e.propagateBranchSkip(tracker, r.node.ID, branch)
				}
			}
		}
		tracker.Snapshot(state)

		if progress != nil {
			completed := 0
			for _, id := range allNodeIDs {
				if state.NodeStates[id].Status.Terminal() {
					completed++
				}
			}
			progress(StepProgress{
				Step:          step,
				ExecutedNodes: state.ExecutedNodes,
				Completed:     completed,
				Total:         len(allNodeIDs),
				Percent:       percent(completed, len(allNodeIDs)),
			})
		}

		if fatal {
			state.Status = core.ExecFailed
			e.publish(ctx, state.ID, event.ExecutionError, "", event.ExecutionErrorPayload{Kind: "node", Message: state.Error})
			return fmt.Errorf("execution failed: a required node errored")
		}
	}

	state.Status = core.ExecCompleted
	for _, id := range allNodeIDs {
		if state.NodeStates[id].Status == core.StatusMaxIterReached {
			state.Status = core.ExecMaxIterReached
			break
		}
	}
	e.publish(ctx, state.ID, event.ExecutionCompleted, "", event.ExecutionCompletedPayload{
		Status:   state.Status,
		LLMUsage: state.LLMUsage,
	})
	return nil
}

// abort publishes the terminal execution_error(kind=timeout|aborted) event
// for a cancelled or deadline-expired run and marks state accordingly. It
// uses a background context for the publish itself so a HIGH-priority
// subscriber (e.g. the state store) still observes the terminal event even
// though the run's own context is already done.
func (e *Engine) abort(ctx context.Context, state *core.ExecutionState) error {
	state.Status = core.ExecAborted
	cause := ctx.Err()
	state.Error = cause.Error()
	kind := "aborted"
	if cause == context.DeadlineExceeded {
		kind = "timeout"
	}
	e.publish(context.Background(), state.ID, event.ExecutionError, "", event.ExecutionErrorPayload{Kind: kind, Message: state.Error})
	if kind == "timeout" {
		return &core.TimeoutError{Scope: "execution"}
	}
	return &core.CancellationError{Reason: state.Error}
}

type dispatchResult struct {
	node  *compiler.ExecutableNode
	env   core.Envelope
	err   error
	fatal bool
}

func (e *Engine) dispatchRound(ctx context.Context, state *core.ExecutionState, tracker *StateTracker, ready []*compiler.ExecutableNode) []dispatchResult {
	results := make([]dispatchResult, len(ready))
	done := make(chan int, len(ready))

	for i, n := range ready {
		go func(i int, n *compiler.ExecutableNode) {
			defer func() { done <- i }()

			inputs := e.gatherInputs(state, n)
			execCount := state.ExecCounts[n.ID]
			if _, err := tracker.MarkStarted(n.ID); err != nil {
				results[i] = dispatchResult{node: n, err: err, fatal: false}
				return
			}

			env, err := e.dispatcher.Dispatch(ctx, state.ID, execCount, n, inputs, e.services, nil)
			results[i] = dispatchResult{node: n, env: env, err: err, fatal: err != nil && requiresNode(e.diagram, state, n.ID)}
		}(i, n)
	}

	for range ready {
		<-done
	}
	return results
}

// gatherInputs reads node_outputs for every satisfied incoming edge and
// maps them to target_handle names (spec.md §4.7, dispatcher step 1).
func (e *Engine) gatherInputs(state *core.ExecutionState, n *compiler.ExecutableNode) map[string]core.Envelope {
	inputs := make(map[string]core.Envelope)
	for _, edge := range e.diagram.EdgesByTarget[n.ID] {
		env, ok := state.NodeOutputs[edge.SourceNode]
		if !ok {
			continue
		}
		handle := edge.TargetHandle
		if handle == "" {
			handle = "default"
		}
		inputs[handle] = env
	}
	return inputs
}

// requiresNode reports whether a failure of n should fail the whole
// execution: true unless, for every one of n's outgoing edges, the
// downstream target's join can still be satisfied through some edge
// other than the one from n (spec.md §7, NodeExecutionError) — mirroring
// the same per-edge exclusion rules scheduler.joinSatisfied applies,
// rather than assuming any edge into a condition node is automatically
// optional.
func requiresNode(diagram *compiler.ExecutableDiagram, state *core.ExecutionState, n core.NodeID) bool {
	outgoing := diagram.EdgesBySource[n]
	if len(outgoing) == 0 {
		return true
	}
	for _, e := range outgoing {
		if !targetHasAlternateRoute(diagram, state, e.TargetNode, n) {
			return true
		}
	}
	return false
}

// targetHasAlternateRoute reports whether target has some incoming edge
// other than the one from excludeSource that is still live: not pruned
// by a non-matching condition branch and not fed by an already-skipped
// source. A join fed by both arms of a condition, where the other arm is
// already completed (or still pending), can proceed without
// excludeSource; a node with no such alternate cannot.
func targetHasAlternateRoute(diagram *compiler.ExecutableDiagram, state *core.ExecutionState, target, excludeSource core.NodeID) bool {
	for _, e := range diagram.EdgesByTarget[target] {
		if e.SourceNode == excludeSource {
			continue
		}
		srcState, ok := state.NodeStates[e.SourceNode]
		if ok && srcState.Status == core.StatusSkipped {
			continue
		}
		srcNode, nodeOK := diagram.NodeByID(e.SourceNode)
		if ok && nodeOK && srcNode.Type == core.NodeCondition && srcState.Output != nil {
			branch, _ := srcState.Output.Meta["branch"].(string)
			if branch != "" && e.Label != "" && branch != e.Label {
				continue
			}
		}
		return true
	}
	return false
}

// propagateBranchSkip marks every node reachable only through the
// non-taken branch of the condition node conditionID as StatusSkipped,
// so the run still reaches IsExecutionComplete instead of waiting
// forever on a join no live edge can ever satisfy (spec.md §8 scenario
// 2: the untaken branch never starts, and every node the diagram
// statically knows can no longer fire still ends up terminal).
func (e *Engine) propagateBranchSkip(tracker *StateTracker, conditionID core.NodeID, takenBranch string) {
	var queue []core.NodeID
	for _, edge := range e.diagram.EdgesBySource[conditionID] {
		if edge.Label != "" && edge.Label != takenBranch {
			queue = append(queue, edge.TargetNode)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if tracker.GetNodeState(id).Status.Terminal() {
			continue
		}
		if e.nodeHasLiveIncomingEdge(tracker, id) {
			continue
		}
		tracker.MarkSkipped(id)
		for _, edge := range e.diagram.EdgesBySource[id] {
			queue = append(queue, edge.TargetNode)
		}
	}
}

// nodeHasLiveIncomingEdge reports whether n still has at least one
// incoming edge whose source is not itself pruned or skipped — mirroring
// the same exclusion rules as scheduler.joinSatisfied, so a join fed by
// both a taken and a non-taken branch stays live on its surviving edge
// instead of being skipped along with the rest of the pruned branch.
func (e *Engine) nodeHasLiveIncomingEdge(tracker *StateTracker, n core.NodeID) bool {
	for _, edge := range e.diagram.EdgesByTarget[n] {
		srcState := tracker.GetNodeState(edge.SourceNode)
		if srcState.Status == core.StatusSkipped {
			continue
		}
		if srcState.Status == core.StatusCompleted && srcState.Output != nil {
			srcNode, ok := e.diagram.NodeByID(edge.SourceNode)
			if ok && srcNode.Type == core.NodeCondition {
				branch, _ := srcState.Output.Meta["branch"].(string)
				if branch != "" && edge.Label != "" && branch != edge.Label {
					continue
				}
			}
		}
		return true
	}
	return false
}

func percent(completed, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(completed) / float64(total) * 100
}

func (e *Engine) publish(ctx context.Context, execID string, t event.EventType, nodeID core.NodeID, payload any) {
	e.bus.Publish(ctx, event.Event{
		Type:      t,
		Scope:     event.Scope{ExecutionID: execID, NodeID: nodeID},
		Payload:   payload,
		Timestamp: time.Now(),
	})
}
