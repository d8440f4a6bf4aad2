package scheduler

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/skypath/nichebot/internal/config"
	"github.com/skypath/nichebot/internal/discovery"
	"github.com/skypath/nichebot/internal/models"
	"github.com/skypath/nichebot/internal/storage"
	"github.com/skypath/nichebot/internal/verification"
)

// Cron cadences. The main cycle and the verification pass are offset so
// they never contend for the same minute.
const (
	cycleSchedule        = "0 */10 * * * *"
	verificationSchedule = "0 15 * * * *"
	analyticsSchedule    = "0 45 * * * *"
	cleanupSchedule      = "0 30 3 * * *"
	healthSchedule       = "0 */5 * * * *"
)

// Runner executes one discovery run.
type Runner interface {
	Run(ctx context.Context, query, mode string, providerNames []string) (*discovery.RunResult, error)
}

// Verifier checks a high-scoring topic against independent data.
type Verifier interface {
	IsEnabled() bool
	Verify(ctx context.Context, topic string, keywords []string) (*verification.Result, error)
}

// Notifier delivers alerts for notable niches.
type Notifier interface {
	SendAlert(alert *models.Alert) error
}

// Service drives the scheduled discovery cycles. One cycle runs at a time;
// a trigger that lands while a cycle is in flight is skipped, not queued.
type Service struct {
	config   *config.Config
	runner   Runner
	store    storage.Store
	verifier Verifier
	notifier Notifier
	archiver storage.Archiver // nil when archiving is not configured
	cron     *cron.Cron
	stats    *Stats
	busy     atomic.Bool
	clock    func() time.Time
}

// NewService creates a scheduler. verifier, notifier and archiver may be nil.
func NewService(cfg *config.Config, runner Runner, store storage.Store, verifier Verifier, notifier Notifier, archiver storage.Archiver) *Service {
	return &Service{
		config:   cfg,
		runner:   runner,
		store:    store,
		verifier: verifier,
		notifier: notifier,
		archiver: archiver,
		cron:     cron.New(cron.WithSeconds()),
		stats:    NewStats(),
		clock:    time.Now,
	}
}

// Stats exposes the activity counters for the HTTP surface.
func (s *Service) Stats() *Stats {
	return s.stats
}

// Start registers the cron entries and begins scheduling.
func (s *Service) Start() error {
	entries := []struct {
		schedule string
		name     string
		fn       func()
	}{
		{cycleSchedule, "discovery cycle", func() { s.RunCycle(context.Background()) }},
		{verificationSchedule, "verification pass", func() { s.RunVerification(context.Background()) }},
		{analyticsSchedule, "analytics digest", func() { s.RunAnalytics(context.Background()) }},
		{cleanupSchedule, "archive cleanup", func() { s.RunCleanup(context.Background()) }},
		{healthSchedule, "health report", s.logHealth},
	}

	for _, entry := range entries {
		if _, err := s.cron.AddFunc(entry.schedule, entry.fn); err != nil {
			return err
		}
		logrus.Debugf("Registered %s at %q", entry.name, entry.schedule)
	}

	s.cron.Start()
	logrus.Infof("Scheduler started: %d topics rotating %d per cycle", len(s.config.Topics), s.config.TopicsPer)
	return nil
}

// Stop stops the scheduler. In-flight jobs finish on their own.
func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		logrus.Info("Scheduler stopped")
	}
}

// RunCycle executes one discovery cycle over the current topic window. It
// returns false when a previous cycle was still running and this one was
// skipped.
func (s *Service) RunCycle(ctx context.Context) bool {
	if !s.busy.CompareAndSwap(false, true) {
		logrus.Warn("Previous discovery cycle still running, skipping this one")
		s.stats.RecordSkip()
		return false
	}
	defer s.busy.Store(false)

	now := s.clock()
	topics := rotateTopics(s.config.Topics, s.config.TopicsPer, now.Hour())
	providerNames := rotateProviders(s.config.StableProviders, s.config.OptionalProviders, now.Minute())

	logrus.Infof("Discovery cycle starting: topics=%v providers=%v mode=%s", topics, providerNames, s.config.Mode)

	for _, topic := range topics {
		result, err := s.runner.Run(ctx, topic, s.config.Mode, providerNames)
		if err != nil {
			logrus.Errorf("Discovery run for %q failed: %v", topic, err)
			s.stats.RecordError()
			continue
		}

		s.stats.RecordRun(result)
		s.alertOnOpportunities(topic, result.Niches)
	}
	return true
}

// alertOnOpportunities sends one alert per niche crossing the threshold.
func (s *Service) alertOnOpportunities(query string, niches []models.Niche) {
	if s.notifier == nil {
		return
	}

	for _, niche := range niches {
		if niche.OpportunityScore < s.config.AlertThreshold {
			continue
		}
		alert := &models.Alert{
			Type:      "opportunity",
			Niche:     niche,
			Query:     query,
			Message:   "High-opportunity niche discovered: " + niche.Name,
			CreatedAt: s.clock(),
		}
		if err := s.notifier.SendAlert(alert); err != nil {
			logrus.Errorf("Failed to alert on niche %q: %v", niche.Name, err)
		}
	}
}

// RunVerification checks unverified high-trend niches against the oracle.
func (s *Service) RunVerification(ctx context.Context) {
	if s.verifier == nil || !s.verifier.IsEnabled() {
		return
	}

	candidates, err := s.store.ListVerificationCandidates(ctx, s.config.Owner, s.config.VerifyThreshold)
	if err != nil {
		logrus.Errorf("Failed to list verification candidates: %v", err)
		s.stats.RecordError()
		return
	}
	if len(candidates) == 0 {
		logrus.Debug("No verification candidates")
		return
	}

	logrus.Infof("Verifying %d candidate niches", len(candidates))
	for _, niche := range candidates {
		result, err := s.verifier.Verify(ctx, niche.Name, strings.Fields(niche.Name))
		if err != nil {
			logrus.Errorf("Verification of %q failed: %v", niche.Name, err)
			s.stats.RecordError()
			continue
		}

		if err := s.store.MarkNicheVerified(ctx, niche.ID, result.Verified, result.Raw); err != nil {
			logrus.Errorf("Failed to record verification of %q: %v", niche.Name, err)
			s.stats.RecordError()
			continue
		}

		if result.Verified && s.notifier != nil {
			niche.Verified = true
			alert := &models.Alert{
				Type:      "verified",
				Niche:     niche,
				Message:   "Niche verified by independent data: " + niche.Name,
				CreatedAt: s.clock(),
			}
			if err := s.notifier.SendAlert(alert); err != nil {
				logrus.Errorf("Failed to alert on verified niche %q: %v", niche.Name, err)
			}
		}
	}
}

// RunAnalytics logs the current leaderboard.
func (s *Service) RunAnalytics(ctx context.Context) {
	niches, err := s.store.TopNiches(ctx, s.config.Owner, 10)
	if err != nil {
		logrus.Errorf("Failed to load top niches: %v", err)
		return
	}

	for i, niche := range niches {
		logrus.Infof("Top niche #%d: %q opportunity=%.0f demand=%.0f growth=%.0f verified=%t",
			i+1, niche.Name, niche.OpportunityScore, niche.DemandScore, niche.GrowthScore, niche.Verified)
	}
}

// RunCleanup expires archived run snapshots past the retention window.
func (s *Service) RunCleanup(ctx context.Context) {
	if s.archiver == nil {
		return
	}

	retention := time.Duration(s.config.ArchiveRetention) * 24 * time.Hour
	deleted, err := s.archiver.CleanupOlderThan(ctx, retention)
	if err != nil {
		logrus.Errorf("Archive cleanup failed: %v", err)
		return
	}
	logrus.Infof("Archive cleanup removed %d snapshots past the %d-day retention", deleted, s.config.ArchiveRetention)
}

func (s *Service) logHealth() {
	logrus.Infof("Scheduler health: %s", s.stats.JSON())
}
