package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/skypath/nichebot/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS mentions (
	id BIGSERIAL PRIMARY KEY,
	platform_id TEXT NOT NULL,
	provider_name TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	author TEXT NOT NULL DEFAULT '',
	source_url TEXT NOT NULL DEFAULT '',
	community TEXT NOT NULL DEFAULT '',
	views INT NOT NULL DEFAULT 0,
	upvotes INT NOT NULL DEFAULT 0,
	comments INT NOT NULL DEFAULT 0,
	engagement_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	posted_at TIMESTAMPTZ NOT NULL,
	has_pain_point BOOLEAN,
	has_trend_signal BOOLEAN,
	sentiment TEXT,
	keywords JSONB,
	category TEXT,
	confidence DOUBLE PRECISION,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (platform_id, provider_name)
);

CREATE TABLE IF NOT EXISTS niches (
	id BIGSERIAL PRIMARY KEY,
	owner TEXT NOT NULL,
	name TEXT NOT NULL,
	pain_point_count INT NOT NULL DEFAULT 0,
	trend_count INT NOT NULL DEFAULT 0,
	total_engagement DOUBLE PRECISION NOT NULL DEFAULT 0,
	pain_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	trend_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	opportunity_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	demand_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	growth_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	verified BOOLEAN NOT NULL DEFAULT false,
	verified_at TIMESTAMPTZ,
	verification_raw JSONB,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (owner, name)
);

CREATE TABLE IF NOT EXISTS search_runs (
	id UUID PRIMARY KEY,
	query TEXT NOT NULL,
	mode TEXT NOT NULL,
	providers TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	mention_count INT NOT NULL DEFAULT 0,
	niche_count INT NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	duration TEXT NOT NULL DEFAULT ''
);
`

// PostgresStore implements Store on top of Postgres.
type PostgresStore struct {
	conn *sql.DB
	db   *goqu.Database
}

// Ensure PostgresStore implements Store
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore opens the database and ensures the schema exists.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return &PostgresStore{
		conn: conn,
		db:   goqu.New("postgres", conn),
	}, nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.conn.Close()
}

func (s *PostgresStore) SaveMentions(ctx context.Context, mentions []models.Mention) ([]models.Mention, error) {
	var inserted []models.Mention

	for i := range mentions {
		m := &mentions[i]

		record := goqu.Record{
			"platform_id":      m.PlatformID,
			"provider_name":    m.ProviderName,
			"title":            m.Title,
			"content":          m.Content,
			"author":           m.Author,
			"source_url":       m.SourceURL,
			"community":        m.Community,
			"views":            m.Views,
			"upvotes":          m.Upvotes,
			"comments":         m.Comments,
			"engagement_score": m.EngagementScore,
			"posted_at":        m.PostedAt,
		}

		var id int64
		found, err := s.db.Insert("mentions").
			Rows(record).
			OnConflict(goqu.DoNothing()).
			Returning("id").
			Executor().
			ScanValContext(ctx, &id)
		if err != nil {
			return inserted, fmt.Errorf("failed to save mention %s: %w", m.Key(), err)
		}
		if !found {
			// Duplicate of an already ingested mention
			logrus.Debugf("Mention %s already stored, skipping", m.Key())
			continue
		}

		m.ID = id
		inserted = append(inserted, *m)
	}

	return inserted, nil
}

func (s *PostgresStore) UpdateMentionAnalysis(ctx context.Context, mention *models.Mention) error {
	if mention.Classification == nil {
		return fmt.Errorf("mention %s has no classification", mention.Key())
	}

	keywords, err := json.Marshal(mention.Classification.Keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}

	_, err = s.db.Update("mentions").
		Set(goqu.Record{
			"has_pain_point":   mention.Classification.HasPainPoint,
			"has_trend_signal": mention.Classification.HasTrendSignal,
			"sentiment":        mention.Classification.Sentiment,
			"keywords":         string(keywords),
			"category":         mention.Classification.Category,
			"confidence":       mention.Classification.Confidence,
		}).
		Where(goqu.Ex{
			"platform_id":   mention.PlatformID,
			"provider_name": mention.ProviderName,
		}).
		Executor().
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to update analysis for %s: %w", mention.Key(), err)
	}
	return nil
}

func (s *PostgresStore) UpsertNiche(ctx context.Context, niche *models.Niche) error {
	name := models.NormalizeNicheName(niche.Name)
	if name == "" {
		return fmt.Errorf("niche name is empty")
	}

	record := goqu.Record{
		"owner":             niche.Owner,
		"name":              name,
		"pain_point_count":  niche.PainPointCount,
		"trend_count":       niche.TrendCount,
		"total_engagement":  niche.TotalEngagement,
		"pain_score":        niche.PainScore,
		"trend_score":       niche.TrendScore,
		"opportunity_score": niche.OpportunityScore,
		"demand_score":      niche.DemandScore,
		"growth_score":      niche.GrowthScore,
		"updated_at":        time.Now(),
	}

	// Counters accumulate; scores merge by element-wise maximum so a weak
	// later run can never pull an established niche back down.
	_, err := s.db.Insert("niches").
		Rows(record).
		OnConflict(goqu.DoUpdate("owner, name", goqu.Record{
			"pain_point_count":  goqu.L("niches.pain_point_count + EXCLUDED.pain_point_count"),
			"trend_count":       goqu.L("niches.trend_count + EXCLUDED.trend_count"),
			"total_engagement":  goqu.L("niches.total_engagement + EXCLUDED.total_engagement"),
			"pain_score":        goqu.L("GREATEST(niches.pain_score, EXCLUDED.pain_score)"),
			"trend_score":       goqu.L("GREATEST(niches.trend_score, EXCLUDED.trend_score)"),
			"opportunity_score": goqu.L("GREATEST(niches.opportunity_score, EXCLUDED.opportunity_score)"),
			"demand_score":      goqu.L("GREATEST(niches.demand_score, EXCLUDED.demand_score)"),
			"growth_score":      goqu.L("GREATEST(niches.growth_score, EXCLUDED.growth_score)"),
			"updated_at":        goqu.L("EXCLUDED.updated_at"),
		})).
		Executor().
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert niche %q: %w", name, err)
	}
	return nil
}

func (s *PostgresStore) CreateSearchRun(ctx context.Context, run *models.SearchRun) error {
	_, err := s.db.Insert("search_runs").
		Rows(goqu.Record{
			"id":         run.ID,
			"query":      run.Query,
			"mode":       run.Mode,
			"providers":  strings.Join(run.Providers, ","),
			"status":     run.Status,
			"started_at": run.StartedAt,
		}).
		Executor().
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to create search run %s: %w", run.ID, err)
	}
	return nil
}

func (s *PostgresStore) CompleteSearchRun(ctx context.Context, id string, mentionCount, nicheCount int, duration time.Duration) error {
	return s.finishSearchRun(ctx, id, goqu.Record{
		"status":        models.RunStatusCompleted,
		"mention_count": mentionCount,
		"niche_count":   nicheCount,
		"completed_at":  time.Now(),
		"duration":      duration.String(),
	})
}

func (s *PostgresStore) FailSearchRun(ctx context.Context, id string, runErr error, duration time.Duration) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	return s.finishSearchRun(ctx, id, goqu.Record{
		"status":       models.RunStatusFailed,
		"error":        msg,
		"completed_at": time.Now(),
		"duration":     duration.String(),
	})
}

// finishSearchRun applies a terminal transition; a run already in a
// terminal state is left untouched.
func (s *PostgresStore) finishSearchRun(ctx context.Context, id string, record goqu.Record) error {
	res, err := s.db.Update("search_runs").
		Set(record).
		Where(goqu.Ex{"id": id, "status": models.RunStatusRunning}).
		Executor().
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to finish search run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("search run %s is not running", id)
	}
	return nil
}

type searchRunRow struct {
	ID           string       `db:"id"`
	Query        string       `db:"query"`
	Mode         string       `db:"mode"`
	Providers    string       `db:"providers"`
	Status       string       `db:"status"`
	MentionCount int          `db:"mention_count"`
	NicheCount   int          `db:"niche_count"`
	Error        string       `db:"error"`
	StartedAt    time.Time    `db:"started_at"`
	CompletedAt  sql.NullTime `db:"completed_at"`
	Duration     string       `db:"duration"`
}

func (s *PostgresStore) GetSearchRun(ctx context.Context, id string) (*models.SearchRun, error) {
	var row searchRunRow
	found, err := s.db.From("search_runs").
		Where(goqu.Ex{"id": id}).
		Executor().
		ScanStructContext(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("failed to load search run %s: %w", id, err)
	}
	if !found {
		return nil, fmt.Errorf("search run %s not found", id)
	}

	run := &models.SearchRun{
		ID:           row.ID,
		Query:        row.Query,
		Mode:         row.Mode,
		Status:       row.Status,
		MentionCount: row.MentionCount,
		NicheCount:   row.NicheCount,
		Error:        row.Error,
		StartedAt:    row.StartedAt,
		Duration:     row.Duration,
	}
	if row.Providers != "" {
		run.Providers = strings.Split(row.Providers, ",")
	}
	if row.CompletedAt.Valid {
		t := row.CompletedAt.Time
		run.CompletedAt = &t
	}
	return run, nil
}

type nicheRow struct {
	ID               int64          `db:"id"`
	Owner            string         `db:"owner"`
	Name             string         `db:"name"`
	PainPointCount   int            `db:"pain_point_count"`
	TrendCount       int            `db:"trend_count"`
	TotalEngagement  float64        `db:"total_engagement"`
	PainScore        float64        `db:"pain_score"`
	TrendScore       float64        `db:"trend_score"`
	OpportunityScore float64        `db:"opportunity_score"`
	DemandScore      float64        `db:"demand_score"`
	GrowthScore      float64        `db:"growth_score"`
	Verified         bool           `db:"verified"`
	VerifiedAt       sql.NullTime   `db:"verified_at"`
	VerificationRaw  sql.NullString `db:"verification_raw"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (r *nicheRow) toModel() models.Niche {
	n := models.Niche{
		ID:               r.ID,
		Owner:            r.Owner,
		Name:             r.Name,
		PainPointCount:   r.PainPointCount,
		TrendCount:       r.TrendCount,
		TotalEngagement:  r.TotalEngagement,
		PainScore:        r.PainScore,
		TrendScore:       r.TrendScore,
		OpportunityScore: r.OpportunityScore,
		DemandScore:      r.DemandScore,
		GrowthScore:      r.GrowthScore,
		Verified:         r.Verified,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.VerifiedAt.Valid {
		t := r.VerifiedAt.Time
		n.VerifiedAt = &t
	}
	if r.VerificationRaw.Valid {
		n.VerificationRaw = json.RawMessage(r.VerificationRaw.String)
	}
	return n
}

func (s *PostgresStore) ListVerificationCandidates(ctx context.Context, owner string, threshold float64) ([]models.Niche, error) {
	var rows []nicheRow
	err := s.db.From("niches").
		Where(goqu.Ex{"owner": owner, "verified": false}, goqu.C("trend_score").Gt(threshold)).
		Order(goqu.C("trend_score").Desc()).
		Executor().
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list verification candidates: %w", err)
	}

	niches := make([]models.Niche, 0, len(rows))
	for i := range rows {
		niches = append(niches, rows[i].toModel())
	}
	return niches, nil
}

func (s *PostgresStore) MarkNicheVerified(ctx context.Context, id int64, verified bool, raw json.RawMessage) error {
	record := goqu.Record{
		"verified":    verified,
		"verified_at": time.Now(),
	}
	if len(raw) > 0 {
		record["verification_raw"] = string(raw)
	}

	_, err := s.db.Update("niches").
		Set(record).
		Where(goqu.Ex{"id": id}).
		Executor().
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark niche %d verified: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) TopNiches(ctx context.Context, owner string, limit int) ([]models.Niche, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows []nicheRow
	err := s.db.From("niches").
		Where(goqu.Ex{"owner": owner}).
		Order(goqu.C("opportunity_score").Desc()).
		Limit(uint(limit)).
		Executor().
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list niches: %w", err)
	}

	niches := make([]models.Niche, 0, len(rows))
	for i := range rows {
		niches = append(niches, rows[i].toModel())
	}
	return niches, nil
}
