// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the provider fan-out

package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianComplete/services/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider scripts one provider's behavior for fan-out tests.
type fakeProvider struct {
	name       string
	completion string
	err        error
	delay      time.Duration
	gotPrefix  string
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Generate(ctx context.Context, prefix, suffix string) (string, error) {
	p.gotPrefix = prefix
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if p.err != nil {
		return "", p.err
	}
	return p.completion, nil
}

// =============================================================================
// Dispatch Tests
// =============================================================================

func TestDispatch_CollectsAllProviders(t *testing.T) {
	a := &fakeProvider{name: "model-a", completion: "alpha"}
	b := &fakeProvider{name: "model-b", completion: "beta"}
	d, err := New([]providers.Provider{a, b}, 0)
	require.NoError(t, err)

	_, predictions, err := d.Dispatch(context.Background(), "x = ", "")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"model-a": "alpha", "model-b": "beta"}, predictions)
}

func TestDispatch_TrimsTrailingWhitespaceFromPrefix(t *testing.T) {
	p := &fakeProvider{name: "model-a", completion: "x"}
	d, err := New([]providers.Provider{p}, 0)
	require.NoError(t, err)

	_, _, err = d.Dispatch(context.Background(), "def main():\n    \t", "pass")
	require.NoError(t, err)

	assert.Equal(t, "def main():", p.gotPrefix)
}

func TestDispatch_RunsProvidersInParallel(t *testing.T) {
	providersList := []providers.Provider{
		&fakeProvider{name: "model-a", completion: "a", delay: 50 * time.Millisecond},
		&fakeProvider{name: "model-b", completion: "b", delay: 50 * time.Millisecond},
		&fakeProvider{name: "model-c", completion: "c", delay: 50 * time.Millisecond},
	}
	d, err := New(providersList, 0)
	require.NoError(t, err)

	elapsed, predictions, err := d.Dispatch(context.Background(), "prefix", "")
	require.NoError(t, err)

	assert.Len(t, predictions, 3)
	// Sequential execution would take 150ms+.
	assert.Less(t, elapsed, 120*time.Millisecond)
}

func TestDispatch_FailedProviderYieldsEmptyPrediction(t *testing.T) {
	good := &fakeProvider{name: "model-a", completion: "alpha"}
	bad := &fakeProvider{name: "model-b", err: errors.New("connection refused")}
	d, err := New([]providers.Provider{good, bad}, 0)
	require.NoError(t, err)

	_, predictions, err := d.Dispatch(context.Background(), "prefix", "")
	require.NoError(t, err)

	assert.Equal(t, "alpha", predictions["model-a"])
	assert.Equal(t, "", predictions["model-b"])
}

func TestDispatch_ResourceExhaustionAbortsBatch(t *testing.T) {
	oom := &fakeProvider{name: "model-a", err: providers.ErrResourceExhausted}
	slow := &fakeProvider{name: "model-b", completion: "b", delay: 5 * time.Second}
	d, err := New([]providers.Provider{oom, slow}, 0)
	require.NoError(t, err)

	start := time.Now()
	_, predictions, err := d.Dispatch(context.Background(), "prefix", "")

	assert.ErrorIs(t, err, providers.ErrResourceExhausted)
	assert.Nil(t, predictions)
	// The slow provider was cancelled rather than waited out.
	assert.Less(t, time.Since(start), time.Second)
}

func TestDispatch_PerProviderTimeout(t *testing.T) {
	fast := &fakeProvider{name: "model-a", completion: "a"}
	stalled := &fakeProvider{name: "model-b", completion: "b", delay: 5 * time.Second}
	d, err := New([]providers.Provider{fast, stalled}, 50*time.Millisecond)
	require.NoError(t, err)

	_, predictions, err := d.Dispatch(context.Background(), "prefix", "")
	require.NoError(t, err)

	assert.Equal(t, "a", predictions["model-a"])
	assert.Equal(t, "", predictions["model-b"])
}

func TestNew_RequiresProviders(t *testing.T) {
	_, err := New(nil, 0)
	assert.Error(t, err)
}
