package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Sentiment labels returned by the classifier.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
	SentimentMixed    = "mixed"
)

// Mention represents one normalized piece of scraped platform content.
// Identity is the (PlatformID, ProviderName) pair; re-ingesting the same
// pair is a no-op at the persistence layer.
type Mention struct {
	ID              int64     `json:"id,omitempty"`
	PlatformID      string    `json:"platform_id"`
	ProviderName    string    `json:"provider_name"`
	Title           string    `json:"title"`
	Content         string    `json:"content"`
	Author          string    `json:"author"`
	SourceURL       string    `json:"source_url"`
	Community       string    `json:"community,omitempty"` // subreddit, tag, channel, ...
	Views           int       `json:"views,omitempty"`
	Upvotes         int       `json:"upvotes,omitempty"`
	Comments        int       `json:"comments,omitempty"`
	EngagementScore float64   `json:"engagement_score"`
	PostedAt        time.Time `json:"posted_at"`

	// Classification is attached after analysis; nil until classified and
	// nil when the classifier failed for this item.
	Classification *Classification `json:"classification,omitempty"`
}

// Key returns the identity key used for deduplication.
func (m *Mention) Key() string {
	return m.ProviderName + ":" + m.PlatformID
}

// Classification holds the signal tags the classifier derives from one mention.
type Classification struct {
	HasPainPoint   bool     `json:"has_pain_point"`
	HasTrendSignal bool     `json:"has_trend_signal"`
	Sentiment      string   `json:"sentiment"`
	Keywords       []string `json:"keywords"`
	Category       string   `json:"category"`
	Confidence     float64  `json:"confidence"`
}

// PainPointAnalysis is the deep pain-point scoring result, 0-100 per axis.
type PainPointAnalysis struct {
	Severity   int    `json:"severity"`
	Frequency  int    `json:"frequency"`
	Urgency    int    `json:"urgency"`
	MarketSize int    `json:"market_size"`
	Summary    string `json:"summary"`
}

// TrendAnalysis is the deep trend scoring result, 0-100 per axis.
type TrendAnalysis struct {
	Momentum   int    `json:"momentum"`
	Longevity  int    `json:"longevity"`
	Saturation int    `json:"saturation"`
	Summary    string `json:"summary"`
}

// Niche is an aggregate bucket of mentions sharing a derived topic label.
// Scores only move upward on re-ingestion (max-merge at the storage layer).
type Niche struct {
	ID               int64           `json:"id,omitempty"`
	Owner            string          `json:"owner"`
	Name             string          `json:"name"`
	PainPointCount   int             `json:"pain_point_count"`
	TrendCount       int             `json:"trend_count"`
	TotalEngagement  float64         `json:"total_engagement"`
	PainScore        float64         `json:"pain_score"`
	TrendScore       float64         `json:"trend_score"`
	OpportunityScore float64         `json:"opportunity_score"`
	DemandScore      float64         `json:"demand_score"`
	GrowthScore      float64         `json:"growth_score"`
	Verified         bool            `json:"verified"`
	VerifiedAt       *time.Time      `json:"verified_at,omitempty"`
	VerificationRaw  json.RawMessage `json:"verification_raw,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// NormalizeNicheName produces the canonical form used as the upsert key.
func NormalizeNicheName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(name))), " ")
}

// Search modes controlling which signal types a run extracts.
const (
	ModePainPoint = "painpoint"
	ModeTrend     = "trend"
	ModeHybrid    = "hybrid"
)

// ValidMode reports whether mode is one of the supported search modes.
func ValidMode(mode string) bool {
	switch mode {
	case ModePainPoint, ModeTrend, ModeHybrid:
		return true
	}
	return false
}

// SearchRun states. A run reaches exactly one terminal state exactly once.
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// SearchRun records one end-to-end execution of the discovery pipeline.
type SearchRun struct {
	ID           string     `json:"id"`
	Query        string     `json:"query"`
	Mode         string     `json:"mode"`
	Providers    []string   `json:"providers"`
	Status       string     `json:"status"`
	MentionCount int        `json:"mention_count"`
	NicheCount   int        `json:"niche_count"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Duration     string     `json:"duration,omitempty"`
}

// Alert represents a notification about a high-scoring niche.
type Alert struct {
	Type      string    `json:"type"` // "opportunity" or "verified"
	Niche     Niche     `json:"niche"`
	Query     string    `json:"query,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
