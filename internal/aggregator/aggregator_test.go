package aggregator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skypath/nichebot/internal/models"
	"github.com/skypath/nichebot/internal/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a scriptable provider for aggregator tests.
type fakeProvider struct {
	name     string
	mentions []models.Mention
	err      error
	calls    atomic.Int32
	delay    time.Duration
}

func (f *fakeProvider) GetName() string { return f.name }
func (f *fakeProvider) IsEnabled() bool { return true }

func (f *fakeProvider) FetchMentions(ctx context.Context, query string, opts providers.FetchOptions) ([]models.Mention, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.mentions, f.err
}

func mentionsFor(provider string, n int) []models.Mention {
	out := make([]models.Mention, n)
	for i := range out {
		out[i] = models.Mention{
			PlatformID:   string(rune('a' + i)),
			ProviderName: provider,
			Content:      "content",
			PostedAt:     time.Now(),
		}
	}
	return out
}

func newTestAggregator(t *testing.T, required []string, fakes ...*fakeProvider) *Aggregator {
	t.Helper()
	reg := providers.NewRegistry()
	for _, f := range fakes {
		require.NoError(t, reg.Register(f))
	}
	return New(reg, required, 4)
}

func TestCollect_MergesAllProviders(t *testing.T) {
	a := newTestAggregator(t, []string{"alpha", "beta"},
		&fakeProvider{name: "alpha", mentions: mentionsFor("alpha", 3)},
		&fakeProvider{name: "beta", mentions: mentionsFor("beta", 2)},
	)

	mentions, err := a.Collect(context.Background(), "productivity", []string{"alpha", "beta"}, providers.FetchOptions{})
	require.NoError(t, err)
	assert.Len(t, mentions, 5)
}

func TestCollect_RequiredFailureContributesNothing(t *testing.T) {
	a := newTestAggregator(t, []string{"alpha", "beta"},
		&fakeProvider{name: "alpha", mentions: mentionsFor("alpha", 5)},
		&fakeProvider{name: "beta", err: errors.New("api down")},
	)

	mentions, err := a.Collect(context.Background(), "productivity", []string{"alpha", "beta"}, providers.FetchOptions{})
	require.NoError(t, err)
	assert.Len(t, mentions, 5)
	for _, m := range mentions {
		assert.Equal(t, "alpha", m.ProviderName)
	}
}

func TestCollect_OptionalFailureIsSilent(t *testing.T) {
	a := newTestAggregator(t, []string{"alpha"},
		&fakeProvider{name: "alpha", mentions: mentionsFor("alpha", 2)},
		&fakeProvider{name: "opt", err: errors.New("flaky")},
	)

	mentions, err := a.Collect(context.Background(), "q", []string{"alpha", "opt"}, providers.FetchOptions{})
	require.NoError(t, err)
	assert.Len(t, mentions, 2)
}

func TestCollect_OptionalBreakerDisablesAfterTwoFailures(t *testing.T) {
	opt := &fakeProvider{name: "opt", err: errors.New("broken")}
	a := newTestAggregator(t, []string{"alpha"},
		&fakeProvider{name: "alpha", mentions: mentionsFor("alpha", 1)},
		opt,
	)

	for i := 0; i < 3; i++ {
		_, err := a.Collect(context.Background(), "q", []string{"alpha", "opt"}, providers.FetchOptions{})
		require.NoError(t, err)
	}

	// Third collect must not have called the broken optional provider.
	assert.Equal(t, int32(2), opt.calls.Load())
	assert.True(t, a.Breaker().Disabled("opt"))
	assert.Contains(t, a.Breaker().DisabledProviders(), "opt")
}

func TestCollect_OptionalEmptyCountsAsStrike(t *testing.T) {
	opt := &fakeProvider{name: "opt"} // always empty
	a := newTestAggregator(t, []string{"alpha"},
		&fakeProvider{name: "alpha", mentions: mentionsFor("alpha", 1)},
		opt,
	)

	for i := 0; i < 4; i++ {
		_, err := a.Collect(context.Background(), "q", []string{"alpha", "opt"}, providers.FetchOptions{})
		require.NoError(t, err)
	}

	assert.Equal(t, int32(2), opt.calls.Load())
}

func TestCollect_SuccessResetsStrikes(t *testing.T) {
	b := NewBreaker(2)

	assert.False(t, b.RecordFailure("opt"))
	b.RecordSuccess("opt")
	assert.False(t, b.RecordFailure("opt"))
	assert.True(t, b.RecordFailure("opt"))
	assert.True(t, b.Disabled("opt"))

	// Further failures on a disabled provider do not re-trip.
	assert.False(t, b.RecordFailure("opt"))
}

func TestCollect_RequiredProviderNotBrokenByBreaker(t *testing.T) {
	req := &fakeProvider{name: "alpha", err: errors.New("down")}
	a := newTestAggregator(t, []string{"alpha"}, req)

	for i := 0; i < 3; i++ {
		_, err := a.Collect(context.Background(), "q", []string{"alpha"}, providers.FetchOptions{})
		require.NoError(t, err)
	}

	// Required providers are always retried.
	assert.Equal(t, int32(3), req.calls.Load())
}

func TestCollect_NoUsableProviders(t *testing.T) {
	a := newTestAggregator(t, nil)

	_, err := a.Collect(context.Background(), "q", []string{"ghost"}, providers.FetchOptions{})
	assert.Error(t, err)
}

func TestCollect_SlowOptionalProviderTimesOut(t *testing.T) {
	slow := &fakeProvider{name: "opt", mentions: mentionsFor("opt", 1), delay: optionalFetchTimeout + time.Second}
	a := newTestAggregator(t, []string{"alpha"},
		&fakeProvider{name: "alpha", mentions: mentionsFor("alpha", 1)},
		slow,
	)

	start := time.Now()
	mentions, err := a.Collect(context.Background(), "q", []string{"alpha", "opt"}, providers.FetchOptions{})
	require.NoError(t, err)
	assert.Len(t, mentions, 1)
	assert.Less(t, time.Since(start), optionalFetchTimeout+2*time.Second)
}
