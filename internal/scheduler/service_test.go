package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypath/nichebot/internal/config"
	"github.com/skypath/nichebot/internal/discovery"
	"github.com/skypath/nichebot/internal/models"
	"github.com/skypath/nichebot/internal/verification"
)

type fakeRunner struct {
	mu      sync.Mutex
	queries []string
	result  *discovery.RunResult
	err     error
	block   chan struct{} // when non-nil, Run waits until closed
	started chan struct{} // when non-nil, closed once Run is entered
}

func (r *fakeRunner) Run(ctx context.Context, query, mode string, providerNames []string) (*discovery.RunResult, error) {
	r.mu.Lock()
	r.queries = append(r.queries, query)
	started := r.started
	r.started = nil
	r.mu.Unlock()

	if started != nil {
		close(started)
	}
	if r.block != nil {
		<-r.block
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.result != nil {
		return r.result, nil
	}
	return &discovery.RunResult{Query: query, Mode: mode}, nil
}

func (r *fakeRunner) queryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queries)
}

type markCall struct {
	id       int64
	verified bool
}

type fakeStore struct {
	candidates    []models.Niche
	candidatesErr error
	top           []models.Niche

	mu     sync.Mutex
	marked []markCall
}

func (s *fakeStore) SaveMentions(ctx context.Context, mentions []models.Mention) ([]models.Mention, error) {
	return mentions, nil
}

func (s *fakeStore) UpdateMentionAnalysis(ctx context.Context, mention *models.Mention) error {
	return nil
}

func (s *fakeStore) UpsertNiche(ctx context.Context, niche *models.Niche) error { return nil }

func (s *fakeStore) CreateSearchRun(ctx context.Context, run *models.SearchRun) error { return nil }

func (s *fakeStore) CompleteSearchRun(ctx context.Context, id string, mentionCount, nicheCount int, duration time.Duration) error {
	return nil
}

func (s *fakeStore) FailSearchRun(ctx context.Context, id string, runErr error, duration time.Duration) error {
	return nil
}

func (s *fakeStore) GetSearchRun(ctx context.Context, id string) (*models.SearchRun, error) {
	return nil, nil
}

func (s *fakeStore) ListVerificationCandidates(ctx context.Context, owner string, threshold float64) ([]models.Niche, error) {
	return s.candidates, s.candidatesErr
}

func (s *fakeStore) MarkNicheVerified(ctx context.Context, id int64, verified bool, raw json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, markCall{id: id, verified: verified})
	return nil
}

func (s *fakeStore) TopNiches(ctx context.Context, owner string, limit int) ([]models.Niche, error) {
	return s.top, nil
}

type fakeVerifier struct {
	enabled bool
	result  *verification.Result
	err     error
	topics  []string
}

func (v *fakeVerifier) IsEnabled() bool { return v.enabled }

func (v *fakeVerifier) Verify(ctx context.Context, topic string, keywords []string) (*verification.Result, error) {
	v.topics = append(v.topics, topic)
	if v.err != nil {
		return nil, v.err
	}
	return v.result, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []*models.Alert
}

func (n *fakeNotifier) SendAlert(alert *models.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return nil
}

func (n *fakeNotifier) alertCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

func testConfig() *config.Config {
	return &config.Config{
		Owner:             "skypath",
		Topics:            []string{"productivity", "remote work", "developer tools", "personal finance"},
		TopicsPer:         2,
		Mode:              models.ModeHybrid,
		StableProviders:   []string{"reddit", "hackernews"},
		OptionalProviders: []string{"stackoverflow"},
		VerifyThreshold:   75,
		AlertThreshold:    80,
		ArchiveRetention:  30,
	}
}

func newTestService(cfg *config.Config, runner Runner, store *fakeStore, verifier Verifier, notifier Notifier) *Service {
	svc := NewService(cfg, runner, store, verifier, notifier, nil)
	svc.clock = func() time.Time {
		return time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	}
	return svc
}

func TestRunCycle_RunsEachTopicInWindow(t *testing.T) {
	runner := &fakeRunner{result: &discovery.RunResult{Collected: 5, Classified: 4, ByProvider: map[string]int{"reddit": 5}}}
	svc := newTestService(testConfig(), runner, &fakeStore{}, nil, nil)

	assert.True(t, svc.RunCycle(context.Background()))

	assert.Equal(t, []string{"productivity", "remote work"}, runner.queries)
	stats := svc.Stats().Snapshot()
	assert.Equal(t, 2, stats.TotalRuns)
	assert.Equal(t, 10, stats.TotalCollected)
	assert.Equal(t, 10, stats.ProviderCounts["reddit"])
}

func TestRunCycle_SkipsWhenPreviousStillRunning(t *testing.T) {
	runner := &fakeRunner{
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	started := runner.started
	svc := newTestService(testConfig(), runner, &fakeStore{}, nil, nil)

	done := make(chan bool)
	go func() { done <- svc.RunCycle(context.Background()) }()

	<-started
	assert.False(t, svc.RunCycle(context.Background()))

	close(runner.block)
	assert.True(t, <-done)

	stats := svc.Stats().Snapshot()
	assert.Equal(t, 1, stats.SkippedCycles)
	assert.Equal(t, 2, runner.queryCount())
}

func TestRunCycle_ContinuesPastFailedTopic(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("upstream down")}
	svc := newTestService(testConfig(), runner, &fakeStore{}, nil, nil)

	assert.True(t, svc.RunCycle(context.Background()))

	assert.Equal(t, 2, runner.queryCount())
	stats := svc.Stats().Snapshot()
	assert.Equal(t, 2, stats.ErrorCount)
	assert.Equal(t, 0, stats.TotalRuns)
}

func TestRunCycle_AlertsOnHighOpportunity(t *testing.T) {
	runner := &fakeRunner{result: &discovery.RunResult{
		Niches: []models.Niche{
			{Name: "invoice automation", OpportunityScore: 91},
			{Name: "meal planning", OpportunityScore: 40},
		},
	}}
	notifier := &fakeNotifier{}
	svc := newTestService(testConfig(), runner, &fakeStore{}, nil, notifier)

	svc.RunCycle(context.Background())

	// Two topics in the window, one qualifying niche each.
	require.Equal(t, 2, notifier.alertCount())
	assert.Equal(t, "opportunity", notifier.alerts[0].Type)
	assert.Equal(t, "invoice automation", notifier.alerts[0].Niche.Name)
}

func TestRunVerification_MarksAndAlerts(t *testing.T) {
	store := &fakeStore{candidates: []models.Niche{
		{ID: 1, Name: "time tracking", TrendScore: 88},
		{ID: 2, Name: "note taking", TrendScore: 80},
	}}
	verifier := &fakeVerifier{
		enabled: true,
		result:  &verification.Result{Verified: true, Raw: json.RawMessage(`{"verified":true}`)},
	}
	notifier := &fakeNotifier{}
	svc := newTestService(testConfig(), &fakeRunner{}, store, verifier, notifier)

	svc.RunVerification(context.Background())

	assert.Equal(t, []string{"time tracking", "note taking"}, verifier.topics)
	require.Len(t, store.marked, 2)
	assert.Equal(t, markCall{id: 1, verified: true}, store.marked[0])
	assert.Equal(t, 2, notifier.alertCount())
	assert.Equal(t, "verified", notifier.alerts[0].Type)
}

func TestRunVerification_RejectedCandidateNotAlerted(t *testing.T) {
	store := &fakeStore{candidates: []models.Niche{{ID: 7, Name: "nft art"}}}
	verifier := &fakeVerifier{enabled: true, result: &verification.Result{Verified: false}}
	notifier := &fakeNotifier{}
	svc := newTestService(testConfig(), &fakeRunner{}, store, verifier, notifier)

	svc.RunVerification(context.Background())

	require.Len(t, store.marked, 1)
	assert.Equal(t, markCall{id: 7, verified: false}, store.marked[0])
	assert.Equal(t, 0, notifier.alertCount())
}

func TestRunVerification_SkipsWhenDisabled(t *testing.T) {
	store := &fakeStore{candidates: []models.Niche{{ID: 1, Name: "anything"}}}
	verifier := &fakeVerifier{enabled: false}
	svc := newTestService(testConfig(), &fakeRunner{}, store, verifier, nil)

	svc.RunVerification(context.Background())

	assert.Empty(t, verifier.topics)
	assert.Empty(t, store.marked)
}

func TestRunVerification_OracleErrorCounted(t *testing.T) {
	store := &fakeStore{candidates: []models.Niche{{ID: 1, Name: "time tracking"}}}
	verifier := &fakeVerifier{enabled: true, err: fmt.Errorf("oracle unavailable")}
	svc := newTestService(testConfig(), &fakeRunner{}, store, verifier, nil)

	svc.RunVerification(context.Background())

	assert.Empty(t, store.marked)
	assert.Equal(t, 1, svc.Stats().Snapshot().ErrorCount)
}

func TestStats_JSONIncludesCounters(t *testing.T) {
	stats := NewStats()
	stats.RecordRun(&discovery.RunResult{
		Collected:  12,
		Classified: 10,
		ByProvider: map[string]int{"reddit": 8, "hackernews": 4},
		Niches:     []models.Niche{{Name: "a"}},
		Duration:   2 * time.Second,
	})
	stats.RecordSkip()

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stats.JSON()), &decoded))
	assert.Equal(t, float64(1), decoded["total_runs"])
	assert.Equal(t, float64(12), decoded["total_collected"])
	assert.Equal(t, float64(1), decoded["skipped_cycles"])
}
