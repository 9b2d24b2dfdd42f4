// Package council executes the chosen path: one invocation of the default
// backend for the single path, or a parallel fan-out across the full
// council roster joined under a bounded deadline and judged by a quorum
// policy. Individual backend failures are absorbed here and surface only
// as quorum arithmetic and diagnostics; a request-level failure exists
// only when zero backends succeed.
package council

import (
	"sort"
	"time"

	"github.com/normanking/gravitas/internal/backend"
	"github.com/normanking/gravitas/internal/route"
)

// Verdict is the quorum outcome for one orchestration call.
type Verdict string

const (
	// VerdictAccepted means the success count met the quorum requirement.
	VerdictAccepted Verdict = "accepted"

	// VerdictDegraded means at least one backend succeeded but quorum was
	// missed; the caller proceeds on the successful subset.
	VerdictDegraded Verdict = "degraded"

	// VerdictFailed means zero backends succeeded.
	VerdictFailed Verdict = "failed"
)

// BackendResponse is the outcome of one invocation. Created per invocation,
// immutable, owned by the council until handed to the synthesizer.
type BackendResponse struct {
	// Backend is the originating backend identity.
	Backend string `json:"backend"`

	// Payload is the structured response; nil when the invocation failed.
	Payload *backend.Payload `json:"payload,omitempty"`

	// FailureKind is set when the invocation failed.
	FailureKind backend.FailureKind `json:"failure_kind,omitempty"`

	// Err is the failure cause; nil on success.
	Err error `json:"-"`

	// Latency is the invocation round-trip time.
	Latency time.Duration `json:"latency"`
}

// Succeeded reports whether the invocation produced a payload.
func (r BackendResponse) Succeeded() bool {
	return r.Err == nil && r.Payload != nil
}

// Result is the set of backend responses for one input plus the quorum
// outcome. It lives only for the duration of one orchestration call.
type Result struct {
	// Path is the execution path that produced this result.
	Path route.Path `json:"path"`

	// Verdict is the quorum outcome.
	Verdict Verdict `json:"verdict"`

	// Responses holds every completed invocation, ordered by backend name
	// so the result is independent of arrival order.
	Responses []BackendResponse `json:"responses"`

	// Missing lists backends that failed, timed out, or never reported
	// before the deadline, sorted by name.
	Missing []string `json:"missing,omitempty"`

	// Required is the success count the quorum policy demanded.
	Required int `json:"required"`
}

// Successes returns the successful subset of responses, in name order.
func (r *Result) Successes() []BackendResponse {
	out := make([]BackendResponse, 0, len(r.Responses))
	for _, resp := range r.Responses {
		if resp.Succeeded() {
			out = append(out, resp)
		}
	}
	return out
}

// finalize sorts responses by backend name and fills the missing list from
// the configured member set.
func finalize(result *Result, members []string) {
	sort.Slice(result.Responses, func(i, j int) bool {
		return result.Responses[i].Backend < result.Responses[j].Backend
	})

	succeeded := make(map[string]bool, len(result.Responses))
	for _, resp := range result.Responses {
		if resp.Succeeded() {
			succeeded[resp.Backend] = true
		}
	}

	result.Missing = result.Missing[:0]
	for _, name := range members {
		if !succeeded[name] {
			result.Missing = append(result.Missing, name)
		}
	}
	sort.Strings(result.Missing)
}
