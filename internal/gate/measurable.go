package gate

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Degenerate reason codes. These ride along on the DensityScore for
// diagnostics; they never surface as errors.
const (
	ReasonDegenerateInput    = "DEGENERATE_INPUT"
	ReasonUTF8DecodeFailure  = "UTF8_DECODE_FAILURE"
	ReasonRandomNoise        = "RANDOM_NOISE_SIGNATURE"
	ReasonEntropyOutOfBounds = "ENTROPY_OUT_OF_BOUNDS"
)

const (
	// noiseRunLength is the number of consecutive non-printable,
	// non-whitespace runes that marks a random-noise signature.
	noiseRunLength = 3

	// ratioLowerBound and ratioUpperBound bracket the plausible deflate
	// ratio for measurable text. Outside the bracket the entropy estimate
	// is undefined, so the input is routed as degenerate instead.
	ratioLowerBound = 0.05
	ratioUpperBound = 1.2
)

// measurable reports whether the text admits a defined entropy estimate.
// It returns a reason code when it does not. Empty and whitespace-only
// input is measurable here; Classify handles it as plain degenerate input.
func measurable(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return ReasonDegenerateInput, false
	}

	if !utf8.ValidString(text) {
		return ReasonUTF8DecodeFailure, false
	}

	run := 0
	for _, r := range text {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			run++
			if run >= noiseRunLength {
				return ReasonRandomNoise, false
			}
		} else {
			run = 0
		}
	}

	// Header overhead swamps the ratio below minCompressibleBytes, so the
	// bounds check only applies to longer inputs.
	if len(text) >= minCompressibleBytes {
		ratio := deflateRatio([]byte(text))
		if ratio < ratioLowerBound || ratio > ratioUpperBound {
			return ReasonEntropyOutOfBounds, false
		}
	}

	return "", true
}
