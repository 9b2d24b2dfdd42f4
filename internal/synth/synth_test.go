package synth

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/gravitas/internal/backend"
	"github.com/normanking/gravitas/internal/council"
)

func success(name string, explicit, implicit, deep []string) council.BackendResponse {
	return council.BackendResponse{
		Backend: name,
		Payload: &backend.Payload{Explicit: explicit, Implicit: implicit, Deep: deep},
	}
}

func resultOf(verdict council.Verdict, responses ...council.BackendResponse) *council.Result {
	return &council.Result{Verdict: verdict, Responses: responses}
}

func TestMergeNoSuccessesFails(t *testing.T) {
	result := resultOf(council.VerdictFailed, council.BackendResponse{
		Backend:     "alpha",
		FailureKind: backend.FailureRemote,
		Err:         assert.AnError,
	})

	tree, err := New().Merge(result)
	assert.Nil(t, tree)
	assert.ErrorIs(t, err, ErrMergeImpossible)
}

func TestMergeSingleResponseMapsDirectly(t *testing.T) {
	result := resultOf(council.VerdictAccepted,
		success("alpha", []string{"Deploy Service", "deploy service", "check health"}, nil, nil))

	tree, err := New().Merge(result)
	require.NoError(t, err)

	require.Len(t, tree.Explicit, 2)
	assert.Equal(t, "deploy service", tree.Explicit[0].Value)
	assert.Equal(t, []string{"alpha"}, tree.Explicit[0].Sources)
	assert.Equal(t, "check health", tree.Explicit[1].Value)

	// Omitted slots come through empty, not nil-panicking.
	assert.Empty(t, tree.Implicit)
	assert.Empty(t, tree.Deep)
	assert.False(t, tree.Degraded)
}

func TestMergeAgreementOrdersFirst(t *testing.T) {
	result := resultOf(council.VerdictAccepted,
		success("alpha", []string{"deploy", "rollback"}, nil, nil),
		success("beta", []string{"deploy", "monitor"}, nil, nil),
		success("gamma", []string{"deploy"}, nil, nil),
	)

	tree, err := New().Merge(result)
	require.NoError(t, err)

	require.Len(t, tree.Explicit, 3)
	assert.Equal(t, "deploy", tree.Explicit[0].Value)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, tree.Explicit[0].Sources)

	// Ties at one contributor break lexically.
	assert.Equal(t, "monitor", tree.Explicit[1].Value)
	assert.Equal(t, "rollback", tree.Explicit[2].Value)
}

func TestMergeDeterministicUnderPermutation(t *testing.T) {
	responses := []council.BackendResponse{
		success("alpha", []string{"scale up", "add replicas"}, []string{"cost matters"}, []string{"reliability"}),
		success("beta", []string{"add replicas"}, []string{"cost matters", "urgency"}, nil),
		success("gamma", []string{"scale up", "add replicas"}, nil, []string{"reliability", "growth"}),
	}

	reference, err := New().Merge(resultOf(council.VerdictAccepted, responses...))
	require.NoError(t, err)
	refJSON, err := json.Marshal(reference)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]council.BackendResponse(nil), responses...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		tree, err := New().Merge(resultOf(council.VerdictAccepted, shuffled...))
		require.NoError(t, err)
		got, err := json.Marshal(tree)
		require.NoError(t, err)
		assert.Equal(t, string(refJSON), string(got))
	}
}

func TestMergeSkipsFailedResponses(t *testing.T) {
	result := resultOf(council.VerdictAccepted,
		success("alpha", []string{"restart"}, nil, nil),
		council.BackendResponse{Backend: "beta", FailureKind: backend.FailureTimeout, Err: assert.AnError},
		success("gamma", []string{"restart"}, nil, nil),
	)

	tree, err := New().Merge(result)
	require.NoError(t, err)

	require.Len(t, tree.Explicit, 1)
	assert.Equal(t, []string{"alpha", "gamma"}, tree.Explicit[0].Sources)
}

func TestMergeDegradedCarriesMissing(t *testing.T) {
	result := resultOf(council.VerdictDegraded,
		success("alpha", []string{"audit logs"}, nil, nil))
	result.Missing = []string{"beta", "gamma"}

	tree, err := New().Merge(result)
	require.NoError(t, err)

	assert.True(t, tree.Degraded)
	assert.Equal(t, []string{"beta", "gamma"}, tree.Missing)
}

func TestMergeNormalizesCaseAndWhitespace(t *testing.T) {
	result := resultOf(council.VerdictAccepted,
		success("alpha", []string{"  Restart Pod "}, nil, nil),
		success("beta", []string{"restart pod"}, nil, nil),
	)

	tree, err := New().Merge(result)
	require.NoError(t, err)

	require.Len(t, tree.Explicit, 1)
	assert.Equal(t, "restart pod", tree.Explicit[0].Value)
	assert.Equal(t, []string{"alpha", "beta"}, tree.Explicit[0].Sources)
}

func TestMergeVersionStamped(t *testing.T) {
	s := New()
	tree, err := s.Merge(resultOf(council.VerdictAccepted, success("alpha", []string{"x"}, nil, nil)))
	require.NoError(t, err)
	assert.Equal(t, s.Version(), tree.Version)
	assert.NotEmpty(t, tree.Version)
}
