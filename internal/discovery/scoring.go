package discovery

import (
	"time"

	"github.com/skypath/nichebot/internal/models"
)

// Scoring weights. Each sub-score combines volume, mean engagement and the
// count of high-confidence classifications, clamped to [0,100].
const (
	highConfidenceCutoff = 0.7

	volumeWeight     = 8.0
	engagementCap    = 30.0
	engagementScale  = 10.0
	confidenceWeight = 6.0

	demandPerMention = 5.0

	growthWindow = 7 * 24 * time.Hour
)

// bucket accumulates the classified mentions contributing to one category.
type bucket struct {
	name       string
	mentions   []*models.Mention
	painCount  int
	trendCount int
}

// groupByCategory groups classified mentions into category buckets
// according to the search mode. Mentions without a classification or with
// an empty category never contribute.
func groupByCategory(mentions []models.Mention, mode string) map[string]*bucket {
	buckets := make(map[string]*bucket)

	for i := range mentions {
		m := &mentions[i]
		c := m.Classification
		if c == nil {
			continue
		}

		name := models.NormalizeNicheName(c.Category)
		if name == "" {
			continue
		}

		wantPain := mode == models.ModePainPoint || mode == models.ModeHybrid
		wantTrend := mode == models.ModeTrend || mode == models.ModeHybrid

		painHit := wantPain && c.HasPainPoint
		trendHit := wantTrend && c.HasTrendSignal
		if !painHit && !trendHit {
			continue
		}

		b, ok := buckets[name]
		if !ok {
			b = &bucket{name: name}
			buckets[name] = b
		}

		b.mentions = append(b.mentions, m)
		if painHit {
			b.painCount++
		}
		if trendHit {
			b.trendCount++
		}
	}

	return buckets
}

// scoreBucket derives the niche aggregate for one bucket.
func scoreBucket(owner string, b *bucket, now time.Time) models.Niche {
	volume := len(b.mentions)

	var totalEngagement float64
	highConfidence := 0
	recent := 0
	for _, m := range b.mentions {
		totalEngagement += m.EngagementScore
		if m.Classification.Confidence > highConfidenceCutoff {
			highConfidence++
		}
		if now.Sub(m.PostedAt) <= growthWindow {
			recent++
		}
	}

	meanEngagement := 0.0
	if volume > 0 {
		meanEngagement = totalEngagement / float64(volume)
	}

	painScore := subScore(b.painCount, meanEngagement, highConfidence)
	trendScore := subScore(b.trendCount, meanEngagement, highConfidence)

	growth := 0.0
	if volume > 0 {
		growth = float64(recent) / float64(volume) * 100
	}

	return models.Niche{
		Owner:            owner,
		Name:             b.name,
		PainPointCount:   b.painCount,
		TrendCount:       b.trendCount,
		TotalEngagement:  totalEngagement,
		PainScore:        painScore,
		TrendScore:       trendScore,
		OpportunityScore: (painScore + trendScore) / 2,
		DemandScore:      clamp(float64(volume) * demandPerMention),
		GrowthScore:      clamp(growth),
	}
}

func subScore(count int, meanEngagement float64, highConfidence int) float64 {
	if count == 0 {
		return 0
	}

	engagement := meanEngagement / engagementScale
	if engagement > engagementCap {
		engagement = engagementCap
	}

	return clamp(float64(count)*volumeWeight + engagement + float64(highConfidence)*confidenceWeight)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// meanOf averages integer score axes into one 0-100 value.
func meanOf(values ...int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return clamp(float64(sum) / float64(len(values)))
}
