package council

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/gravitas/internal/backend"
	"github.com/normanking/gravitas/internal/route"
)

// stubConnector is a scriptable backend for council tests.
type stubConnector struct {
	name    string
	payload *backend.Payload
	err     error
	delay   time.Duration
}

func (s *stubConnector) Invoke(ctx context.Context, req *backend.InvokeRequest) (*backend.Payload, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, &backend.InvokeError{Backend: s.name, Kind: backend.KindOf(ctx.Err()), Err: ctx.Err()}
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.payload, nil
}

func (s *stubConnector) Name() string    { return s.name }
func (s *stubConnector) Available() bool { return true }

func okPayload(units ...string) *backend.Payload {
	return &backend.Payload{Explicit: units, Implicit: []string{}, Deep: []string{}}
}

func testConfig(members ...string) Config {
	return Config{
		DefaultBackend:  members[0],
		Members:         members,
		SingleDeadline:  2 * time.Second,
		CouncilDeadline: 2 * time.Second,
		Quorum:          QuorumPolicy{Mode: QuorumMajority},
	}
}

func TestConveneAllSucceed(t *testing.T) {
	roster := map[string]backend.Connector{
		"alpha": &stubConnector{name: "alpha", payload: okPayload("deploy")},
		"beta":  &stubConnector{name: "beta", payload: okPayload("deploy")},
		"gamma": &stubConnector{name: "gamma", payload: okPayload("release")},
	}
	o := New(roster, testConfig("alpha", "beta", "gamma"), nil)

	result := o.Convene(context.Background(), "req-1", &backend.InvokeRequest{Text: "deploy it"})

	assert.Equal(t, VerdictAccepted, result.Verdict)
	assert.Equal(t, route.PathCouncil, result.Path)
	assert.Equal(t, 2, result.Required)
	assert.Empty(t, result.Missing)
	require.Len(t, result.Responses, 3)

	// Responses are name-ordered regardless of arrival order.
	assert.Equal(t, "alpha", result.Responses[0].Backend)
	assert.Equal(t, "beta", result.Responses[1].Backend)
	assert.Equal(t, "gamma", result.Responses[2].Backend)
}

func TestConveneOneFailureStillAccepted(t *testing.T) {
	roster := map[string]backend.Connector{
		"alpha": &stubConnector{name: "alpha", payload: okPayload("scale")},
		"beta": &stubConnector{name: "beta", err: &backend.InvokeError{
			Backend: "beta", Kind: backend.FailureTimeout, Err: context.DeadlineExceeded,
		}},
		"gamma": &stubConnector{name: "gamma", payload: okPayload("scale")},
	}
	o := New(roster, testConfig("alpha", "beta", "gamma"), nil)

	result := o.Convene(context.Background(), "req-2", &backend.InvokeRequest{Text: "scale up"})

	// 2 of 3 meets the majority quorum: accepted, not degraded.
	assert.Equal(t, VerdictAccepted, result.Verdict)
	assert.Equal(t, []string{"beta"}, result.Missing)
	assert.Len(t, result.Successes(), 2)

	for _, resp := range result.Responses {
		if resp.Backend == "beta" {
			assert.Equal(t, backend.FailureTimeout, resp.FailureKind)
			assert.Nil(t, resp.Payload)
		}
	}
}

func TestConveneSingleSuccessDegraded(t *testing.T) {
	remoteErr := &backend.InvokeError{Backend: "x", Kind: backend.FailureRemote, Err: assert.AnError}
	roster := map[string]backend.Connector{
		"alpha": &stubConnector{name: "alpha", payload: okPayload("query")},
		"beta":  &stubConnector{name: "beta", err: remoteErr},
		"gamma": &stubConnector{name: "gamma", err: remoteErr},
	}
	o := New(roster, testConfig("alpha", "beta", "gamma"), nil)

	result := o.Convene(context.Background(), "req-3", &backend.InvokeRequest{Text: "query"})

	assert.Equal(t, VerdictDegraded, result.Verdict)
	assert.Equal(t, []string{"beta", "gamma"}, result.Missing)
	require.Len(t, result.Successes(), 1)
	assert.Equal(t, "alpha", result.Successes()[0].Backend)
}

func TestConveneAllFail(t *testing.T) {
	remoteErr := &backend.InvokeError{Backend: "x", Kind: backend.FailureRemote, Err: assert.AnError}
	roster := map[string]backend.Connector{
		"alpha": &stubConnector{name: "alpha", err: remoteErr},
		"beta":  &stubConnector{name: "beta", err: remoteErr},
	}
	o := New(roster, testConfig("alpha", "beta"), nil)

	result := o.Convene(context.Background(), "req-4", &backend.InvokeRequest{Text: "anything"})

	assert.Equal(t, VerdictFailed, result.Verdict)
	assert.Empty(t, result.Successes())
	assert.Equal(t, []string{"alpha", "beta"}, result.Missing)
}

func TestConveneSlowBackendTimesOut(t *testing.T) {
	cfg := testConfig("fast", "slow", "steady")
	cfg.CouncilDeadline = 100 * time.Millisecond

	roster := map[string]backend.Connector{
		"fast":   &stubConnector{name: "fast", payload: okPayload("a")},
		"slow":   &stubConnector{name: "slow", payload: okPayload("b"), delay: 5 * time.Second},
		"steady": &stubConnector{name: "steady", payload: okPayload("a")},
	}
	o := New(roster, cfg, nil)

	start := time.Now()
	result := o.Convene(context.Background(), "req-5", &backend.InvokeRequest{Text: "bounded"})
	elapsed := time.Since(start)

	assert.Equal(t, VerdictAccepted, result.Verdict)
	assert.Contains(t, result.Missing, "slow")
	assert.Less(t, elapsed, 2*time.Second, "join must not wait for the slow backend")

	for _, resp := range result.Responses {
		if resp.Backend == "slow" {
			assert.Equal(t, backend.FailureTimeout, resp.FailureKind)
		}
	}
}

func TestConveneCancelOnQuorumMarksCancelled(t *testing.T) {
	cfg := testConfig("fast", "steady", "slow")
	cfg.CouncilDeadline = 5 * time.Second
	cfg.CancelOnQuorum = true

	roster := map[string]backend.Connector{
		"fast":   &stubConnector{name: "fast", payload: okPayload("a")},
		"steady": &stubConnector{name: "steady", payload: okPayload("a")},
		"slow":   &stubConnector{name: "slow", payload: okPayload("b"), delay: time.Minute},
	}
	o := New(roster, cfg, nil)

	start := time.Now()
	result := o.Convene(context.Background(), "req-9", &backend.InvokeRequest{Text: "x"})
	elapsed := time.Since(start)

	assert.Equal(t, VerdictAccepted, result.Verdict)
	assert.Less(t, elapsed, 2*time.Second, "quorum cancellation must not wait out the deadline")

	// The cancelled straggler reports as cancelled, not as a backend fault.
	for _, resp := range result.Responses {
		if resp.Backend == "slow" {
			assert.Equal(t, backend.FailureCancelled, resp.FailureKind)
		}
	}
	assert.Contains(t, result.Missing, "slow")
}

func TestConveneMemberMissingFromRoster(t *testing.T) {
	roster := map[string]backend.Connector{
		"alpha": &stubConnector{name: "alpha", payload: okPayload("a")},
	}
	o := New(roster, testConfig("alpha", "ghost"), nil)

	result := o.Convene(context.Background(), "req-6", &backend.InvokeRequest{Text: "x"})

	assert.Equal(t, VerdictDegraded, result.Verdict)
	assert.Equal(t, []string{"ghost"}, result.Missing)
}

func TestSingleSuccess(t *testing.T) {
	roster := map[string]backend.Connector{
		"alpha": &stubConnector{name: "alpha", payload: okPayload("status")},
	}
	o := New(roster, testConfig("alpha"), nil)

	result := o.Single(context.Background(), "req-7", &backend.InvokeRequest{Text: "status?"})

	assert.Equal(t, route.PathSingle, result.Path)
	assert.Equal(t, VerdictAccepted, result.Verdict)
	assert.Equal(t, 1, result.Required)
	require.Len(t, result.Responses, 1)
	assert.Empty(t, result.Missing)
}

func TestSingleFailureNotRetried(t *testing.T) {
	calls := 0
	conn := &countingConnector{name: "alpha", calls: &calls}
	o := New(map[string]backend.Connector{"alpha": conn}, testConfig("alpha"), nil)

	result := o.Single(context.Background(), "req-8", &backend.InvokeRequest{Text: "x"})

	assert.Equal(t, VerdictFailed, result.Verdict)
	assert.Equal(t, 1, calls)
	assert.Equal(t, backend.FailureRemote, result.Responses[0].FailureKind)
}

// countingConnector always fails and counts invocations.
type countingConnector struct {
	name  string
	calls *int
}

func (c *countingConnector) Invoke(ctx context.Context, req *backend.InvokeRequest) (*backend.Payload, error) {
	*c.calls++
	return nil, &backend.InvokeError{Backend: c.name, Kind: backend.FailureRemote, Err: assert.AnError}
}

func (c *countingConnector) Name() string    { return c.name }
func (c *countingConnector) Available() bool { return true }

func TestQuorumRequired(t *testing.T) {
	tests := []struct {
		name     string
		policy   QuorumPolicy
		n        int
		expected int
	}{
		{"majority of 2", QuorumPolicy{Mode: QuorumMajority}, 2, 2},
		{"majority of 3", QuorumPolicy{Mode: QuorumMajority}, 3, 2},
		{"majority of 4", QuorumPolicy{Mode: QuorumMajority}, 4, 3},
		{"majority of 5", QuorumPolicy{Mode: QuorumMajority}, 5, 3},
		{"fraction half of 4", QuorumPolicy{Mode: QuorumFraction, Fraction: 0.5}, 4, 2},
		{"fraction two thirds of 3", QuorumPolicy{Mode: QuorumFraction, Fraction: 0.66}, 3, 2},
		{"fraction full of 3", QuorumPolicy{Mode: QuorumFraction, Fraction: 1.0}, 3, 3},
		{"fraction tiny clamps to one", QuorumPolicy{Mode: QuorumFraction, Fraction: 0.01}, 3, 1},
		{"zero members", QuorumPolicy{Mode: QuorumMajority}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.policy.Required(tt.n))
		})
	}
}

func TestQuorumJudge(t *testing.T) {
	policy := QuorumPolicy{Mode: QuorumMajority}

	assert.Equal(t, VerdictAccepted, policy.Judge(3, 3))
	assert.Equal(t, VerdictAccepted, policy.Judge(2, 3))
	assert.Equal(t, VerdictDegraded, policy.Judge(1, 3))
	assert.Equal(t, VerdictFailed, policy.Judge(0, 3))
}
