// Package orchestrator composes the resolution pipeline: classify the
// input's density, route it to a path, execute that path against the
// backend roster, and merge the responses into an intent tree. Each call
// is independent; the resolver holds no per-request state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/normanking/gravitas/internal/backend"
	"github.com/normanking/gravitas/internal/bus"
	"github.com/normanking/gravitas/internal/config"
	"github.com/normanking/gravitas/internal/council"
	"github.com/normanking/gravitas/internal/gate"
	"github.com/normanking/gravitas/internal/logging"
	"github.com/normanking/gravitas/internal/outcome"
	"github.com/normanking/gravitas/internal/route"
	"github.com/normanking/gravitas/internal/synth"
)

// ErrCouncilFailed is returned when zero backends produced a usable
// response, on either path.
var ErrCouncilFailed = errors.New("no backend produced a usable response")

// FailureError is the terminal error for a resolution with zero usable
// responses. It names the path taken and the per-backend failure kinds so
// callers don't need the event stream to see why resolution failed. It
// unwraps to ErrCouncilFailed.
type FailureError struct {
	// RequestID identifies the failed resolution.
	RequestID string

	// Path is the execution path that failed.
	Path route.Path

	// Responses holds the failed invocations, ordered by backend name.
	Responses []council.BackendResponse
}

// Error implements the error interface.
func (e *FailureError) Error() string {
	parts := make([]string, 0, len(e.Responses))
	for _, resp := range e.Responses {
		parts = append(parts, fmt.Sprintf("%s: %s", resp.Backend, resp.FailureKind))
	}
	return fmt.Sprintf("resolve %s: %s path produced no usable response (%s)",
		e.RequestID, e.Path, strings.Join(parts, ", "))
}

// Unwrap exposes the sentinel so errors.Is(err, ErrCouncilFailed) holds.
func (e *FailureError) Unwrap() error {
	return ErrCouncilFailed
}

// Resolution is the complete outcome of one resolve call.
type Resolution struct {
	// RequestID identifies this resolution in events and stored outcomes.
	RequestID string `json:"request_id"`

	// Score is the gate's density verdict.
	Score gate.DensityScore `json:"score"`

	// Path is the execution path taken.
	Path route.Path `json:"path"`

	// RouteReason explains the routing decision.
	RouteReason string `json:"route_reason"`

	// Verdict is the quorum outcome.
	Verdict council.Verdict `json:"verdict"`

	// Tree is the merged intent tree.
	Tree *synth.IntentTree `json:"tree"`

	// Duration is the end-to-end resolution time.
	Duration time.Duration `json:"duration"`
}

// Resolver runs the full pipeline. Safe for concurrent use.
type Resolver struct {
	classifier gate.Classifier
	thresholds route.Thresholds
	council    *council.Orchestrator
	synth      *synth.Synthesizer
	store      *outcome.Store
	events     *bus.Bus
	log        *logging.Logger
}

// New wires a resolver from configuration and a built roster. The outcome
// store and event bus are both optional.
func New(cfg *config.Config, roster map[string]backend.Connector, store *outcome.Store, events *bus.Bus) *Resolver {
	return &Resolver{
		classifier: gate.NewCompressionClassifier(cfg.Gate.EntropyFactor, cfg.Gate.CriticalEntropy),
		thresholds: route.Thresholds{Cutoff: cfg.Gate.Threshold},
		council: council.New(roster, council.Config{
			DefaultBackend:  cfg.Routing.DefaultBackend,
			Members:         cfg.Council.Members,
			SingleDeadline:  cfg.Routing.SingleDeadline,
			CouncilDeadline: cfg.Routing.CouncilDeadline,
			Quorum: council.QuorumPolicy{
				Mode:     cfg.Council.Quorum,
				Fraction: cfg.Council.AcceptFraction,
			},
			CancelOnQuorum: cfg.Council.CancelOnQuorum,
		}, events),
		synth:  synth.New(),
		store:  store,
		events: events,
		log:    logging.Global().WithComponent("resolver"),
	}
}

// Resolve runs one input through the full pipeline. A quorum miss with at
// least one success returns a degraded tree, not an error; only a total
// failure returns ErrCouncilFailed.
func (r *Resolver) Resolve(ctx context.Context, input gate.Input) (*Resolution, error) {
	requestID := uuid.NewString()
	start := time.Now()

	score := r.classifier.Classify(input)
	ev := bus.NewEvent(bus.EventClassified, requestID)
	ev.Score = score.Score
	ev.Detail = string(score.Band)
	r.publish(ev)

	decision := route.Route(score, r.thresholds)
	ev = bus.NewEvent(bus.EventRouted, requestID)
	ev.Path = decision.Path.String()
	ev.Detail = decision.Reason
	r.publish(ev)

	r.log.Debug("request %s scored %.3f (%s), routing %s",
		requestID, score.Score, score.Band, decision.Path)

	req := &backend.InvokeRequest{Text: input.Text, Units: score.Units}

	var result *council.Result
	if decision.Path == route.PathCouncil {
		result = r.council.Convene(ctx, requestID, req)
	} else {
		result = r.council.Single(ctx, requestID, req)
	}

	duration := time.Since(start)
	r.record(requestID, score, result, duration)

	tree, err := r.synth.Merge(result)
	if err != nil {
		failure := &FailureError{
			RequestID: requestID,
			Path:      decision.Path,
			Responses: result.Responses,
		}

		fail := bus.NewEvent(bus.EventResolveFailed, requestID)
		fail.Path = decision.Path.String()
		fail.Verdict = string(result.Verdict)
		fail.DurationMs = duration.Milliseconds()
		fail.Error = failure.Error()
		r.publish(fail)

		r.log.Warn("request %s failed on path %s: %v", requestID, decision.Path, err)
		return nil, failure
	}

	done := bus.NewEvent(bus.EventResolved, requestID)
	done.Path = decision.Path.String()
	done.Verdict = string(result.Verdict)
	done.DurationMs = duration.Milliseconds()
	r.publish(done)

	return &Resolution{
		RequestID:   requestID,
		Score:       score,
		Path:        decision.Path,
		RouteReason: decision.Reason,
		Verdict:     result.Verdict,
		Tree:        tree,
		Duration:    duration,
	}, nil
}

// publish emits an event when a bus is attached.
func (r *Resolver) publish(e bus.Event) {
	if r.events != nil {
		r.events.Publish(e)
	}
}

// record persists the outcome when a store is attached. Best effort: a
// storage failure is logged, never surfaced to the caller.
func (r *Resolver) record(requestID string, score gate.DensityScore, result *council.Result, duration time.Duration) {
	if r.store == nil {
		return
	}

	rec := &outcome.Record{
		RequestID:  requestID,
		Score:      score.Score,
		Entropy:    score.Entropy,
		Units:      len(score.Units),
		Band:       string(score.Band),
		Path:       result.Path.String(),
		Verdict:    string(result.Verdict),
		Degraded:   result.Verdict == council.VerdictDegraded,
		DurationMs: duration.Milliseconds(),
	}
	for _, resp := range result.Responses {
		rec.Backends = append(rec.Backends, outcome.BackendRecord{
			Backend:     resp.Backend,
			Succeeded:   resp.Succeeded(),
			FailureKind: string(resp.FailureKind),
			LatencyMs:   resp.Latency.Milliseconds(),
		})
	}

	// Detached context: a cancelled request should still leave a record.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.Save(ctx, rec); err != nil {
		r.log.Warn("failed to store outcome for request %s: %v", requestID, err)
	}
}
