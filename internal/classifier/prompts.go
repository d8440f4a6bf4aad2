package classifier

import (
	"fmt"

	"github.com/skypath/nichebot/internal/models"
)

const classifySystemPrompt = `You classify social platform content for a niche discovery pipeline.
Given one post, return ONLY a JSON object with exactly these fields:
- has_pain_point (boolean): the author describes a frustration, unmet need or recurring problem
- has_trend_signal (boolean): the post signals a growing topic, behavior shift or rising demand
- sentiment (string): one of "positive", "negative", "neutral", "mixed"
- keywords (array of strings): 3-6 short topic keywords, most significant first
- category (string): a short niche label such as "time tracking" or "meal planning"
- confidence (number): 0 to 1, how confident you are in this classification
Be strict: most posts contain neither a pain point nor a trend signal.`

const painPointSystemPrompt = `You score how strong a pain point described in a post is.
Return ONLY a JSON object with exactly these fields, each an integer from 0 to 100:
- severity: how painful the problem is for the author
- frequency: how often people are likely to hit this problem
- urgency: how badly a solution is wanted now
- market_size: how large the affected audience plausibly is
Plus:
- summary (string): 1-2 neutral sentences describing the problem, no names or brands
Score strictly; reserve values above 75 for clearly severe, widespread problems.`

const trendSystemPrompt = `You score how strong a trend signal in a post is.
Return ONLY a JSON object with exactly these fields, each an integer from 0 to 100:
- momentum: how fast interest in the topic appears to be growing
- longevity: how likely the topic is to persist beyond a fad
- saturation: how crowded the space already is (higher = more crowded)
Plus:
- summary (string): 1-2 neutral sentences describing the trend, no names or brands
Score strictly; most posts describe established topics, not rising trends.`

func buildClassifyPrompt(m *models.Mention) string {
	return fmt.Sprintf("Platform: %s\nCommunity: %s\nTitle: %s\n\n%s",
		m.ProviderName, m.Community, m.Title, m.Content)
}

func buildAnalysisPrompt(m *models.Mention, actx AnalysisContext) string {
	return fmt.Sprintf("Platform: %s\nEngagement score: %.0f (%d upvotes, %d comments, %d views)\nTitle: %s\n\n%s",
		actx.Provider, actx.Engagement, actx.Upvotes, actx.Comments, actx.Views, m.Title, m.Content)
}
