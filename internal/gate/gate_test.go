package gate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyIsDeterministic(t *testing.T) {
	c := NewCompressionClassifier(0, 0)

	inputs := []string{
		"",
		"   ",
		"hello",
		"deploy the staging cluster and roll back if the health checks fail",
		strings.Repeat("the quick brown fox jumps over the lazy dog. ", 20),
	}

	for _, text := range inputs {
		first := c.Classify(Input{Text: text})
		second := c.Classify(Input{Text: text})
		assert.Equal(t, first, second, "input %q", text)
	}
}

func TestClassifyDegenerateInput(t *testing.T) {
	c := NewCompressionClassifier(0, 0)

	tests := []struct {
		name   string
		text   string
		reason string
	}{
		{"empty", "", ReasonDegenerateInput},
		{"whitespace only", " \t\n  ", ReasonDegenerateInput},
		{"punctuation only", "?!... --- !!!", ReasonDegenerateInput},
		{"invalid utf8", string([]byte{0xff, 0xfe, 0xfd, 'a', 'b'}), ReasonUTF8DecodeFailure},
		{"noise run", "abc\x01\x02\x03def", ReasonRandomNoise},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := c.Classify(Input{Text: tt.text})
			assert.True(t, score.Degenerate)
			assert.Equal(t, tt.reason, score.Reason)
			assert.Zero(t, score.Score)
			assert.Empty(t, score.Units)
		})
	}
}

func TestClassifyDensityGrowsWithMeaning(t *testing.T) {
	c := NewCompressionClassifier(0, 0)

	terse := c.Classify(Input{Text: "hello there"})
	request := c.Classify(Input{Text: "restart the api gateway"})
	dense := c.Classify(Input{Text: "migrate the billing database to the new region, " +
		"verify replication lag stays under two seconds, update the failover runbook, " +
		"notify the payments team, and schedule a chaos drill to confirm the standby " +
		"cluster promotes cleanly under sustained write load"})

	assert.Less(t, terse.Score, request.Score)
	assert.Less(t, request.Score, dense.Score)
	assert.GreaterOrEqual(t, dense.Score, 0.7, "dense operational input should clear the default cutoff")
	assert.Less(t, terse.Score, 0.7)
}

func TestClassifyHighlyRedundantInputStaysSparse(t *testing.T) {
	c := NewCompressionClassifier(0, 0)

	redundant := c.Classify(Input{Text: strings.Repeat("again and again ", 50)})
	assert.Equal(t, BandSparse, redundant.Band)
	assert.Less(t, redundant.Score, 0.7)
}

func TestExtractUnits(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", []string{}},
		{"stopwords only", "the and of to is", []string{}},
		{
			"dedupes preserving order",
			"Deploy the service, deploy the SERVICE again",
			[]string{"deploy", "service", "again"},
		},
		{
			"splits on punctuation and digits survive",
			"rollback v2; check logs!",
			[]string{"rollback", "v2", "check", "logs"},
		},
		{
			"single runes dropped",
			"a b c plan",
			[]string{"plan"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractUnits(tt.text))
		})
	}
}

func TestBands(t *testing.T) {
	c := NewCompressionClassifier(0.18, 2.76)

	assert.Equal(t, BandSparse, c.band(1.0))
	assert.Equal(t, BandDense, c.band(2.76))
	assert.Equal(t, BandDense, c.band(3.5))
	assert.Equal(t, BandCritical, c.band(4.14))
	assert.Equal(t, BandSaturated, c.band(5.0))
	assert.Equal(t, BandSaturated, c.band(9.9))
}

func TestClassifierVersionStamped(t *testing.T) {
	c := NewCompressionClassifier(0, 0)
	require.Equal(t, c.Version(), c.Classify(Input{Text: "stamp check"}).Version)
}

func TestNewCompressionClassifierDefaults(t *testing.T) {
	c := NewCompressionClassifier(0, -1)
	assert.Equal(t, 0.18, c.EntropyFactor)
	assert.Equal(t, 2.76, c.CriticalEntropy)
}
