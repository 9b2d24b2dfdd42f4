package council

import (
	"context"
	"fmt"
	"time"

	"github.com/normanking/gravitas/internal/backend"
	"github.com/normanking/gravitas/internal/bus"
	"github.com/normanking/gravitas/internal/logging"
	"github.com/normanking/gravitas/internal/route"
)

// joinGrace extends the fan-in wait slightly past the invocation deadline
// so timed-out invocations can report their failure kind instead of being
// counted as silently missing.
const joinGrace = 250 * time.Millisecond

// Config is the immutable council configuration, established at startup.
type Config struct {
	// DefaultBackend is the single-path backend identity.
	DefaultBackend string

	// Members is the council roster for the fan-out path.
	Members []string

	// SingleDeadline bounds the one single-path invocation.
	SingleDeadline time.Duration

	// CouncilDeadline bounds each council invocation and the overall join.
	CouncilDeadline time.Duration

	// Quorum is the acceptance policy.
	Quorum QuorumPolicy

	// CancelOnQuorum cancels in-flight invocations once the verdict is
	// decidable as accepted. Advisory only.
	CancelOnQuorum bool
}

// Orchestrator executes the chosen path against the configured roster.
// It is safe for concurrent use: all mutable state is per-call.
type Orchestrator struct {
	roster map[string]backend.Connector
	cfg    Config
	events *bus.Bus
	log    *logging.Logger
}

// New creates a council orchestrator. The events bus is optional.
func New(roster map[string]backend.Connector, cfg Config, events *bus.Bus) *Orchestrator {
	return &Orchestrator{
		roster: roster,
		cfg:    cfg,
		events: events,
		log:    logging.Global().WithComponent("council"),
	}
}

// publish emits an event when a bus is attached.
func (o *Orchestrator) publish(e bus.Event) {
	if o.events != nil {
		o.events.Publish(e)
	}
}

// Single invokes the default backend once under the single-path deadline.
// A failure is not retried; it surfaces as a failed result carrying the
// failure reason.
func (o *Orchestrator) Single(ctx context.Context, requestID string, req *backend.InvokeRequest) *Result {
	resp := o.invokeOne(ctx, requestID, o.cfg.DefaultBackend, req, o.cfg.SingleDeadline)

	verdict := VerdictFailed
	if resp.Succeeded() {
		verdict = VerdictAccepted
	}

	result := &Result{
		Path:      route.PathSingle,
		Verdict:   verdict,
		Responses: []BackendResponse{resp},
		Required:  1,
	}
	finalize(result, []string{o.cfg.DefaultBackend})
	return result
}

// Convene fans the input out to every council member concurrently, joins
// the outcomes under the council deadline, and judges the quorum. It never
// returns an error: partial and total failure are verdicts, not errors.
func (o *Orchestrator) Convene(ctx context.Context, requestID string, req *backend.InvokeRequest) *Result {
	members := o.cfg.Members
	n := len(members)
	required := o.cfg.Quorum.Required(n)

	o.log.Debug("convening %d backends (quorum %d) for request %s", n, required, requestID)

	// Council-wide context: lets CancelOnQuorum release stragglers early.
	cctx, cancelAll := context.WithCancel(ctx)
	defer cancelAll()

	outcomes := make(chan BackendResponse, n)
	for _, name := range members {
		go func(name string) {
			outcomes <- o.invokeOne(cctx, requestID, name, req, o.cfg.CouncilDeadline)
		}(name)
	}

	// Bounded join: proceed with whatever completed once the deadline
	// (plus a short grace for timeout reporting) expires.
	timer := time.NewTimer(o.cfg.CouncilDeadline + joinGrace)
	defer timer.Stop()

	responses := make([]BackendResponse, 0, n)
	successes := 0
	quorumAnnounced := false

collect:
	for len(responses) < n {
		select {
		case resp := <-outcomes:
			responses = append(responses, resp)
			if resp.Succeeded() {
				successes++
				if successes >= required && !quorumAnnounced {
					quorumAnnounced = true
					ev := bus.NewEvent(bus.EventQuorumReached, requestID)
					ev.Verdict = string(VerdictAccepted)
					ev.Detail = fmt.Sprintf("%d of %d succeeded", successes, n)
					o.publish(ev)
					if o.cfg.CancelOnQuorum {
						cancelAll()
					}
				}
			}
		case <-timer.C:
			o.log.Warn("council join deadline expired with %d of %d outcomes for request %s",
				len(responses), n, requestID)
			break collect
		}
	}

	result := &Result{
		Path:      route.PathCouncil,
		Verdict:   o.cfg.Quorum.Judge(successes, n),
		Responses: responses,
		Required:  required,
	}
	finalize(result, members)

	o.log.Info("council verdict %s (%d/%d succeeded, quorum %d) for request %s",
		result.Verdict, successes, n, required, requestID)
	return result
}

// invokeOne runs a single bounded invocation and wraps the outcome.
func (o *Orchestrator) invokeOne(ctx context.Context, requestID, name string, req *backend.InvokeRequest, deadline time.Duration) BackendResponse {
	conn, ok := o.roster[name]
	if !ok {
		// Configuration validation prevents this; guard anyway so a bad
		// roster degrades instead of panicking.
		return BackendResponse{
			Backend:     name,
			FailureKind: backend.FailureRemote,
			Err:         fmt.Errorf("backend %s not in roster", name),
		}
	}

	ev := bus.NewEvent(bus.EventBackendStarted, requestID)
	ev.Backend = name
	o.publish(ev)

	ictx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()
	payload, err := conn.Invoke(ictx, req)
	latency := time.Since(start)

	resp := BackendResponse{
		Backend: name,
		Payload: payload,
		Err:     err,
		Latency: latency,
	}
	if err != nil {
		resp.FailureKind = backend.KindOf(err)
		resp.Payload = nil
	}

	done := bus.NewEvent(bus.EventBackendCompleted, requestID)
	done.Backend = name
	done.DurationMs = latency.Milliseconds()
	if err != nil {
		done.FailureKind = string(resp.FailureKind)
		done.Error = err.Error()
	}
	o.publish(done)

	return resp
}
