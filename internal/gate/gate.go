// Package gate implements the density classifier ("gravity gate") that
// decides how much independent inference an input deserves. Classification
// is a pure function of the input: no I/O, no clock, no randomness, so the
// same input always produces the same score and the same unit set.
package gate

// Input is one unit of natural-language input submitted for resolution.
// It is immutable once submitted.
type Input struct {
	// Text is the opaque input text.
	Text string `json:"text"`

	// ContextRef optionally names prior context the caller wants associated
	// with this input. The gate never dereferences it.
	ContextRef string `json:"context_ref,omitempty"`
}

// Band buckets the raw entropy estimate for diagnostics. Thresholds are
// carried from the semantic kernel calibration (2.76 / 4.14 / 5.0).
type Band string

const (
	BandSparse    Band = "sparse"    // below the critical entropy
	BandDense     Band = "dense"     // at or above critical entropy
	BandCritical  Band = "critical"  // at or above 1.5x critical entropy
	BandSaturated Band = "saturated" // at or above the saturation entropy
)

// DensityScore is the classifier's verdict on one input.
type DensityScore struct {
	// Score is the routable density on [0,1). Pure function of the input
	// and the classifier version.
	Score float64 `json:"score"`

	// Entropy is the raw entropy estimate before squashing.
	Entropy float64 `json:"entropy"`

	// Units is the ordered set of minimal meaning units that justify the
	// score. Empty for degenerate input.
	Units []string `json:"units"`

	// Band is the diagnostic entropy band.
	Band Band `json:"band"`

	// Degenerate marks empty, whitespace-only, or encoding-unmeasurable
	// input. Degenerate input scores zero and routes to the single path;
	// it is never an error.
	Degenerate bool `json:"degenerate,omitempty"`

	// Reason is the degenerate reason code, empty otherwise.
	Reason string `json:"reason,omitempty"`

	// Version identifies the classifier that produced this score.
	Version string `json:"version"`
}

// Classifier maps raw input to a density score. Implementations must be
// deterministic and side-effect free; they never call an external service.
type Classifier interface {
	Classify(input Input) DensityScore
	Version() string
}
