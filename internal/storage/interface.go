package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/skypath/nichebot/internal/models"
)

// Store is the persistence sink the pipeline writes through. Individual
// writes are atomic; the pipeline as a whole is not one transaction.
type Store interface {
	// SaveMentions inserts mentions idempotently on (platform_id,
	// provider_name) and returns only the ones that were actually new.
	SaveMentions(ctx context.Context, mentions []models.Mention) ([]models.Mention, error)

	// UpdateMentionAnalysis writes a mention's classification fields back.
	UpdateMentionAnalysis(ctx context.Context, mention *models.Mention) error

	// UpsertNiche inserts or merges a niche on (owner, normalized name).
	// Scores merge element-wise by maximum and never regress; counters sum.
	UpsertNiche(ctx context.Context, niche *models.Niche) error

	CreateSearchRun(ctx context.Context, run *models.SearchRun) error
	CompleteSearchRun(ctx context.Context, id string, mentionCount, nicheCount int, duration time.Duration) error
	FailSearchRun(ctx context.Context, id string, runErr error, duration time.Duration) error
	GetSearchRun(ctx context.Context, id string) (*models.SearchRun, error)

	// ListVerificationCandidates returns unverified niches whose trend
	// score exceeds threshold.
	ListVerificationCandidates(ctx context.Context, owner string, threshold float64) ([]models.Niche, error)
	MarkNicheVerified(ctx context.Context, id int64, verified bool, raw json.RawMessage) error

	// TopNiches returns the owner's niches by opportunity score.
	TopNiches(ctx context.Context, owner string, limit int) ([]models.Niche, error)
}
