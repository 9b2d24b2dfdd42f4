package gate

import (
	"bytes"
	"compress/zlib"
	"math"
)

const (
	// compressionVersion identifies the default classifier implementation.
	// Bump when the scoring arithmetic or the unit extraction changes.
	compressionVersion = "compression/v1"

	// minCompressibleBytes is the input size below which the deflate ratio
	// is dominated by header overhead and the unit-count estimate is used
	// instead.
	minCompressibleBytes = 100

	// bandCriticalFactor scales the critical entropy into the critical band
	// threshold (2.76 -> 4.14 with the default calibration).
	bandCriticalFactor = 1.5

	// bandSaturatedEntropy is the absolute saturation threshold.
	bandSaturatedEntropy = 5.0

	// maxDeflateRatio caps the deflate ratio so the entropy estimate stays
	// finite on incompressible inputs.
	maxDeflateRatio = 0.999
)

// CompressionClassifier is the default Classifier. It estimates semantic
// density from two deterministic signals: the deflate redundancy of the
// input bytes and the count of extracted minimal meaning units. The raw
// entropy estimate is squashed onto [0,1) against the critical entropy so
// the router sees a threshold-comparable score.
type CompressionClassifier struct {
	// EntropyFactor scales deflate redundancy into nats of entropy.
	EntropyFactor float64

	// CriticalEntropy anchors the squash: an input at exactly this raw
	// entropy scores 1-1/e.
	CriticalEntropy float64
}

// NewCompressionClassifier returns a classifier with the given calibration.
// Zero values fall back to the kernel calibration (0.18, 2.76).
func NewCompressionClassifier(entropyFactor, criticalEntropy float64) *CompressionClassifier {
	if entropyFactor <= 0 {
		entropyFactor = 0.18
	}
	if criticalEntropy <= 0 {
		criticalEntropy = 2.76
	}
	return &CompressionClassifier{
		EntropyFactor:   entropyFactor,
		CriticalEntropy: criticalEntropy,
	}
}

// Version implements Classifier.
func (c *CompressionClassifier) Version() string {
	return compressionVersion
}

// Classify implements Classifier. Degenerate input (empty, whitespace-only,
// or encoding-unmeasurable) yields a zero score with an empty unit set
// rather than an error.
func (c *CompressionClassifier) Classify(input Input) DensityScore {
	if reason, ok := measurable(input.Text); !ok {
		return DensityScore{
			Units:      []string{},
			Band:       BandSparse,
			Degenerate: true,
			Reason:     reason,
			Version:    compressionVersion,
		}
	}

	units := ExtractUnits(input.Text)
	if len(units) == 0 {
		return DensityScore{
			Units:      []string{},
			Band:       BandSparse,
			Degenerate: true,
			Reason:     ReasonDegenerateInput,
			Version:    compressionVersion,
		}
	}

	entropy := c.entropyEstimate(input.Text, len(units))
	score := 1 - math.Exp(-entropy/c.CriticalEntropy)

	return DensityScore{
		Score:   score,
		Entropy: entropy,
		Units:   units,
		Band:    c.band(entropy),
		Version: compressionVersion,
	}
}

// entropyEstimate combines the deflate-based estimate with the unit-count
// estimate. Short inputs compress below the header overhead floor, so the
// deflate signal only participates for inputs of minCompressibleBytes or
// more; the larger of the two estimates wins.
func (c *CompressionClassifier) entropyEstimate(text string, unitCount int) float64 {
	unitEntropy := math.Log(1 + float64(unitCount))

	if len(text) < minCompressibleBytes {
		return unitEntropy
	}

	ratio := deflateRatio([]byte(text))
	if ratio < 0 {
		ratio = 0
	}
	if ratio > maxDeflateRatio {
		ratio = maxDeflateRatio
	}

	// The kernel's entropy proxy: incompressible input carries more
	// non-redundant meaning per byte, so entropy grows with the ratio.
	deflateEntropy := -math.Log(1-ratio) / c.EntropyFactor

	if deflateEntropy > unitEntropy {
		return deflateEntropy
	}
	return unitEntropy
}

// band buckets a raw entropy estimate.
func (c *CompressionClassifier) band(entropy float64) Band {
	switch {
	case entropy >= bandSaturatedEntropy:
		return BandSaturated
	case entropy >= c.CriticalEntropy*bandCriticalFactor:
		return BandCritical
	case entropy >= c.CriticalEntropy:
		return BandDense
	default:
		return BandSparse
	}
}

// deflateRatio returns compressed/original size for the input bytes.
func deflateRatio(data []byte) float64 {
	if len(data) == 0 {
		return 1
	}

	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return 1
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return 1
	}
	if err := w.Close(); err != nil {
		return 1
	}

	return float64(buf.Len()) / float64(len(data))
}
