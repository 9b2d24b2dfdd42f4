package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/gravitas/internal/config"
)

func TestNewByKind(t *testing.T) {
	defer ResetRegistry()

	tests := []struct {
		kind    string
		wantErr bool
	}{
		{"ollama", false},
		{"openai", false},
		{"anthropic", false},
		{"gemini", false},
		{"smoke-signals", true},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			conn, err := New(tt.kind, config.BackendConfig{Kind: tt.kind, Model: "m"})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, conn.Name())
			// Factory output is always metrics-wrapped.
			_, ok := conn.(*MetricsConnector)
			assert.True(t, ok)
		})
	}
}

func TestRosterBuildsAllBackends(t *testing.T) {
	defer ResetRegistry()

	cfg := config.Default()
	roster, err := Roster(cfg)
	require.NoError(t, err)

	assert.Len(t, roster, len(cfg.Backends))
	for name := range cfg.Backends {
		assert.Contains(t, roster, name)
	}
}

// failingConnector is a Connector stub for metrics tests.
type failingConnector struct {
	name string
	err  error
}

func (f *failingConnector) Invoke(ctx context.Context, req *InvokeRequest) (*Payload, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &Payload{Explicit: []string{"ok"}, Implicit: []string{}, Deep: []string{}}, nil
}

func (f *failingConnector) Name() string    { return f.name }
func (f *failingConnector) Available() bool { return true }

func TestMetricsConnectorCounts(t *testing.T) {
	mc := NewMetricsConnector(&failingConnector{name: "stub"})

	_, err := mc.Invoke(context.Background(), &InvokeRequest{Text: "x"})
	require.NoError(t, err)

	failing := NewMetricsConnector(&failingConnector{
		name: "bad",
		err:  &InvokeError{Backend: "bad", Kind: FailureMalformed, Err: errors.New("junk")},
	})
	_, err = failing.Invoke(context.Background(), &InvokeRequest{Text: "x"})
	require.Error(t, err)
	_, err = failing.Invoke(context.Background(), &InvokeRequest{Text: "x"})
	require.Error(t, err)

	good := mc.Snapshot()
	assert.Equal(t, int64(1), good.Calls)
	assert.Equal(t, int64(0), good.Errors)

	bad := failing.Snapshot()
	assert.Equal(t, int64(2), bad.Calls)
	assert.Equal(t, int64(2), bad.Errors)
	assert.Equal(t, float64(1), bad.ErrorRate)
	assert.Equal(t, int64(2), bad.Failures[FailureMalformed])
}

func TestRegistrySnapshot(t *testing.T) {
	ResetRegistry()
	defer ResetRegistry()

	Register(NewMetricsConnector(&failingConnector{name: "one"}))
	Register(NewMetricsConnector(&failingConnector{name: "two"}))

	all := AllMetrics()
	assert.Len(t, all, 2)
}
