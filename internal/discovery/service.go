package discovery

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/skypath/nichebot/internal/classifier"
	"github.com/skypath/nichebot/internal/models"
	"github.com/skypath/nichebot/internal/providers"
	"github.com/skypath/nichebot/internal/storage"
)

// Collector fans a query out across providers and merges the results.
type Collector interface {
	Collect(ctx context.Context, query string, providerNames []string, opts providers.FetchOptions) ([]models.Mention, error)
}

// Analyzer is the classifier surface the pipeline consumes.
type Analyzer interface {
	ClassifyMentions(ctx context.Context, mentions []models.Mention) []*models.Classification
	ScorePainPoint(ctx context.Context, m *models.Mention, actx classifier.AnalysisContext) models.PainPointAnalysis
	ScoreTrend(ctx context.Context, m *models.Mention, actx classifier.AnalysisContext) models.TrendAnalysis
}

// RunResult summarizes one completed discovery run.
type RunResult struct {
	RunID       string         `json:"run_id"`
	Query       string         `json:"query"`
	Mode        string         `json:"mode"`
	Collected   int            `json:"collected"`
	NewMentions int            `json:"new_mentions"`
	Classified  int            `json:"classified"`
	ByProvider  map[string]int `json:"by_provider"`
	Niches      []models.Niche `json:"niches"`
	Duration    time.Duration  `json:"duration"`
}

// Service orchestrates one discovery run end to end: collect, classify,
// group, score, persist. It owns the SearchRun lifecycle.
type Service struct {
	store      storage.Store
	collector  Collector
	analyzer   Analyzer
	archiver   storage.Archiver // nil when archiving is not configured
	owner      string
	fetchLimit int
	window     time.Duration
}

// NewService creates a discovery service. archiver may be nil.
func NewService(store storage.Store, collector Collector, analyzer Analyzer, archiver storage.Archiver, owner string, fetchLimit int) *Service {
	if fetchLimit <= 0 {
		fetchLimit = 50
	}
	return &Service{
		store:      store,
		collector:  collector,
		analyzer:   analyzer,
		archiver:   archiver,
		owner:      owner,
		fetchLimit: fetchLimit,
		window:     7 * 24 * time.Hour,
	}
}

// Run executes the pipeline for one query. The SearchRun reaches exactly
// one terminal state; on failure the error is recorded and returned, and
// writes already committed are retained.
func (s *Service) Run(ctx context.Context, query, mode string, providerNames []string) (*RunResult, error) {
	if !models.ValidMode(mode) {
		return nil, fmt.Errorf("invalid search mode %q", mode)
	}
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	start := time.Now()
	run := &models.SearchRun{
		ID:        uuid.NewString(),
		Query:     query,
		Mode:      mode,
		Providers: providerNames,
		Status:    models.RunStatusRunning,
		StartedAt: start,
	}
	if err := s.store.CreateSearchRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create search run: %w", err)
	}

	logrus.Infof("Search run %s started: query=%q mode=%s providers=%v", run.ID, query, mode, providerNames)

	result, err := s.execute(ctx, run)
	if err != nil {
		if failErr := s.store.FailSearchRun(ctx, run.ID, err, time.Since(start)); failErr != nil {
			logrus.Errorf("Failed to record failure of run %s: %v", run.ID, failErr)
		}
		logrus.Errorf("Search run %s failed after %v: %v", run.ID, time.Since(start), err)
		return nil, err
	}

	result.Duration = time.Since(start)
	if err := s.store.CompleteSearchRun(ctx, run.ID, result.NewMentions, len(result.Niches), result.Duration); err != nil {
		logrus.Errorf("Failed to record completion of run %s: %v", run.ID, err)
	}

	logrus.Infof("Search run %s completed in %v: %d collected, %d new, %d niches",
		run.ID, result.Duration, result.Collected, result.NewMentions, len(result.Niches))
	return result, nil
}

func (s *Service) execute(ctx context.Context, run *models.SearchRun) (*RunResult, error) {
	opts := providers.FetchOptions{Limit: s.fetchLimit, Window: s.window}

	collected, err := s.collector.Collect(ctx, run.Query, run.Providers, opts)
	if err != nil {
		return nil, fmt.Errorf("collection failed: %w", err)
	}

	byProvider := make(map[string]int)
	for i := range collected {
		byProvider[collected[i].ProviderName]++
	}

	if s.archiver != nil {
		// Best-effort snapshot; an archive failure never fails the run.
		if err := s.archiver.ArchiveRun(ctx, run.ID, collected); err != nil {
			logrus.Errorf("Failed to archive run %s: %v", run.ID, err)
		}
	}

	fresh, err := s.store.SaveMentions(ctx, collected)
	if err != nil {
		return nil, fmt.Errorf("failed to persist mentions: %w", err)
	}

	classifications := s.analyzer.ClassifyMentions(ctx, fresh)
	classified := 0
	for i := range fresh {
		if classifications[i] == nil {
			continue
		}
		fresh[i].Classification = classifications[i]
		classified++
		if err := s.store.UpdateMentionAnalysis(ctx, &fresh[i]); err != nil {
			logrus.Errorf("Failed to store analysis for %s: %v", fresh[i].Key(), err)
		}
	}

	buckets := groupByCategory(fresh, run.Mode)
	niches := make([]models.Niche, 0, len(buckets))
	now := time.Now()

	for _, b := range buckets {
		niche := scoreBucket(s.owner, b, now)
		s.deepen(ctx, b, &niche, run.Mode)

		if err := s.store.UpsertNiche(ctx, &niche); err != nil {
			return nil, fmt.Errorf("failed to upsert niche %q: %w", niche.Name, err)
		}
		niches = append(niches, niche)
	}

	sort.Slice(niches, func(i, j int) bool {
		return niches[i].OpportunityScore > niches[j].OpportunityScore
	})

	return &RunResult{
		RunID:       run.ID,
		Query:       run.Query,
		Mode:        run.Mode,
		Collected:   len(collected),
		NewMentions: len(fresh),
		Classified:  classified,
		ByProvider:  byProvider,
		Niches:      niches,
	}, nil
}

// deepen refines a bucket's sub-scores with the deep-analysis calls, using
// the bucket's highest-engagement contributor as the representative sample.
// Deep scores only ever raise a sub-score.
func (s *Service) deepen(ctx context.Context, b *bucket, niche *models.Niche, mode string) {
	top := b.topMention()
	if top == nil {
		return
	}

	actx := classifier.ContextFor(top)

	if b.painCount > 0 && (mode == models.ModePainPoint || mode == models.ModeHybrid) {
		analysis := s.analyzer.ScorePainPoint(ctx, top, actx)
		deep := meanOf(analysis.Severity, analysis.Frequency, analysis.Urgency, analysis.MarketSize)
		if deep > niche.PainScore {
			niche.PainScore = deep
		}
	}

	if b.trendCount > 0 && (mode == models.ModeTrend || mode == models.ModeHybrid) {
		analysis := s.analyzer.ScoreTrend(ctx, top, actx)
		// Saturation counts against the trend: a crowded space scores lower.
		deep := meanOf(analysis.Momentum, analysis.Longevity, 100-analysis.Saturation)
		if deep > niche.TrendScore {
			niche.TrendScore = deep
		}
	}

	niche.OpportunityScore = (niche.PainScore + niche.TrendScore) / 2
}

func (b *bucket) topMention() *models.Mention {
	var top *models.Mention
	for _, m := range b.mentions {
		if top == nil || m.EngagementScore > top.EngagementScore {
			top = m
		}
	}
	return top
}
