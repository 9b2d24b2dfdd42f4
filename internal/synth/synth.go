// Package synth merges backend intent payloads into a single intent tree.
// The merge is deterministic: for a given set of successful responses the
// output is byte-identical regardless of the order the responses arrived
// in. Each merged unit carries provenance, the sorted names of the
// backends that contributed it.
package synth

import (
	"errors"
	"sort"
	"strings"

	"github.com/normanking/gravitas/internal/council"
)

// mergeVersion stamps trees so stored outcomes can be compared across
// synthesizer revisions.
const mergeVersion = "merge/v1"

// ErrMergeImpossible is returned when no successful response exists to
// merge. The council verdict should already be failed in that case.
var ErrMergeImpossible = errors.New("no successful backend responses to merge")

// Unit is one merged intent unit with its provenance.
type Unit struct {
	// Value is the canonical unit text, lowercased and trimmed.
	Value string `json:"value"`

	// Sources lists the backends that contributed this unit, sorted.
	Sources []string `json:"sources"`
}

// IntentTree is the merged three-slot intent structure. A slot a backend
// omitted contributes nothing; a slot no backend filled is empty.
type IntentTree struct {
	// Explicit holds directly stated intents.
	Explicit []Unit `json:"explicit"`

	// Implicit holds intents inferable from phrasing and context.
	Implicit []Unit `json:"implicit"`

	// Deep holds underlying goals behind the request.
	Deep []Unit `json:"deep"`

	// Degraded is true when the tree was built from a below-quorum subset.
	Degraded bool `json:"degraded,omitempty"`

	// Missing lists backends absent from the merge, sorted.
	Missing []string `json:"missing,omitempty"`

	// Version identifies the merge algorithm revision.
	Version string `json:"version"`
}

// Synthesizer merges council results into intent trees. Stateless and
// safe for concurrent use.
type Synthesizer struct{}

// New creates a synthesizer.
func New() *Synthesizer {
	return &Synthesizer{}
}

// Version returns the merge algorithm identifier.
func (s *Synthesizer) Version() string {
	return mergeVersion
}

// Merge builds the intent tree from a council result. With one successful
// response the payload maps through directly; with several, each slot is
// the union of the contributed units ordered by agreement. Returns
// ErrMergeImpossible when nothing succeeded.
func (s *Synthesizer) Merge(result *council.Result) (*IntentTree, error) {
	successes := result.Successes()
	if len(successes) == 0 {
		return nil, ErrMergeImpossible
	}

	tree := &IntentTree{
		Degraded: result.Verdict == council.VerdictDegraded,
		Version:  mergeVersion,
	}
	if len(result.Missing) > 0 {
		tree.Missing = append([]string(nil), result.Missing...)
	}

	if len(successes) == 1 {
		resp := successes[0]
		tree.Explicit = directSlot(resp.Backend, resp.Payload.Explicit)
		tree.Implicit = directSlot(resp.Backend, resp.Payload.Implicit)
		tree.Deep = directSlot(resp.Backend, resp.Payload.Deep)
		return tree, nil
	}

	tree.Explicit = mergeSlot(successes, func(r council.BackendResponse) []string { return r.Payload.Explicit })
	tree.Implicit = mergeSlot(successes, func(r council.BackendResponse) []string { return r.Payload.Implicit })
	tree.Deep = mergeSlot(successes, func(r council.BackendResponse) []string { return r.Payload.Deep })
	return tree, nil
}

// canonical normalizes a unit value for the union. Empty after trimming
// means the value is dropped.
func canonical(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// directSlot maps a single backend's slot through in its original order,
// deduplicated, with that backend as the sole source.
func directSlot(name string, values []string) []Unit {
	out := make([]Unit, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		c := canonical(v)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, Unit{Value: c, Sources: []string{name}})
	}
	return out
}

// mergeSlot unions one slot across responses. Units are ordered by how
// many backends contributed them, ties broken lexically, so the output
// is independent of response order.
func mergeSlot(responses []council.BackendResponse, slot func(council.BackendResponse) []string) []Unit {
	contributors := make(map[string]map[string]bool)
	for _, resp := range responses {
		seen := make(map[string]bool)
		for _, v := range slot(resp) {
			c := canonical(v)
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			if contributors[c] == nil {
				contributors[c] = make(map[string]bool)
			}
			contributors[c][resp.Backend] = true
		}
	}

	out := make([]Unit, 0, len(contributors))
	for value, sources := range contributors {
		names := make([]string, 0, len(sources))
		for name := range sources {
			names = append(names, name)
		}
		sort.Strings(names)
		out = append(out, Unit{Value: value, Sources: names})
	}

	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Sources) != len(out[j].Sources) {
			return len(out[i].Sources) > len(out[j].Sources)
		}
		return out[i].Value < out[j].Value
	})
	return out
}
