// Package route applies the threshold policy that turns a density score
// into an execution path. Routing is a pure, total function: given the same
// score and the same thresholds it always produces the same decision, and
// no input can make it fail.
package route

import (
	"fmt"

	"github.com/normanking/gravitas/internal/gate"
)

// Path is the execution path chosen for an input.
type Path string

const (
	// PathSingle invokes only the default backend.
	PathSingle Path = "single"

	// PathCouncil fans the input out to every council member in parallel.
	PathCouncil Path = "council"
)

// String returns the path name for display.
func (p Path) String() string {
	return string(p)
}

// Thresholds is the immutable routing configuration.
type Thresholds struct {
	// Cutoff is T: scores at or above it take the council path. Equality
	// routes to council so the boundary favors the higher-fidelity path.
	Cutoff float64
}

// Decision explains which path was chosen and why.
type Decision struct {
	// Path is the chosen execution path.
	Path Path `json:"path"`

	// Score is the density score that produced the decision.
	Score gate.DensityScore `json:"score"`

	// Reason is a human-readable explanation of the routing decision.
	Reason string `json:"reason"`
}

// Route maps a density score onto an execution path. Degenerate input
// always routes single regardless of the cutoff.
func Route(score gate.DensityScore, thresholds Thresholds) Decision {
	if score.Degenerate {
		return Decision{
			Path:   PathSingle,
			Score:  score,
			Reason: fmt.Sprintf("degenerate input (%s), defaulting to single path", score.Reason),
		}
	}

	if score.Score >= thresholds.Cutoff {
		return Decision{
			Path:   PathCouncil,
			Score:  score,
			Reason: fmt.Sprintf("density %.2f >= cutoff %.2f", score.Score, thresholds.Cutoff),
		}
	}

	return Decision{
		Path:   PathSingle,
		Score:  score,
		Reason: fmt.Sprintf("density %.2f below cutoff %.2f", score.Score, thresholds.Cutoff),
	}
}
