package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"github.com/skypath/nichebot/internal/models"
	"golang.org/x/time/rate"
)

// neutralScore is the documented degrade-to-neutral default used when a
// deep-analysis call fails outright. Downstream aggregation can always
// multiply and divide by it safely.
const neutralScore = 50

const requestTimeout = 30 * time.Second

// AnalysisContext carries the lightweight signal context a deep-analysis
// call sees alongside the raw content.
type AnalysisContext struct {
	Provider   string
	Engagement float64
	Upvotes    int
	Comments   int
	Views      int
}

// ContextFor builds the analysis context from a mention's own fields.
func ContextFor(m *models.Mention) AnalysisContext {
	return AnalysisContext{
		Provider:   m.ProviderName,
		Engagement: m.EngagementScore,
		Upvotes:    m.Upvotes,
		Comments:   m.Comments,
		Views:      m.Views,
	}
}

// Client batches mention content through an external text classifier.
// Batches are paced with a rate limiter so the oracle's rate limit is
// respected; items within one batch run concurrently.
type Client struct {
	apiKey    string
	baseURL   string
	model     ModelConfig
	batchSize int
	limiter   *rate.Limiter
	client    *resty.Client
}

// NewClient creates a classifier client for the given tier.
func NewClient(apiKey, baseURL, tier string, batchSize int, batchDelay time.Duration) *Client {
	if batchSize < 1 {
		batchSize = 20
	}
	if batchDelay <= 0 {
		batchDelay = time.Second
	}

	return &Client{
		apiKey:    apiKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		model:     TierConfig(tier),
		batchSize: batchSize,
		limiter:   rate.NewLimiter(rate.Every(batchDelay), 1),
		client:    resty.New().SetTimeout(requestTimeout),
	}
}

// ClassifyMentions classifies every mention and returns a slice aligned by
// index with the input. A nil entry means classification failed for that
// item; the failure is logged and never fails the batch.
func (c *Client) ClassifyMentions(ctx context.Context, mentions []models.Mention) []*models.Classification {
	results := make([]*models.Classification, len(mentions))

	for start := 0; start < len(mentions); start += c.batchSize {
		if err := c.limiter.Wait(ctx); err != nil {
			logrus.Errorf("Classification aborted at item %d: %v", start, err)
			return results
		}

		end := start + c.batchSize
		if end > len(mentions) {
			end = len(mentions)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				classification, err := c.classifyOne(ctx, &mentions[idx])
				if err != nil {
					logrus.Errorf("Failed to classify mention %s: %v", mentions[idx].Key(), err)
					return
				}
				results[idx] = classification
			}(i)
		}
		wg.Wait()

		logrus.Debugf("Classified batch %d-%d of %d mentions", start, end, len(mentions))
	}

	return results
}

func (c *Client) classifyOne(ctx context.Context, m *models.Mention) (*models.Classification, error) {
	text, err := c.complete(ctx, classifySystemPrompt, buildClassifyPrompt(m))
	if err != nil {
		return nil, err
	}

	var classification models.Classification
	if err := json.Unmarshal([]byte(extractJSON(text)), &classification); err != nil {
		return nil, fmt.Errorf("failed to parse classification: %w", err)
	}

	switch classification.Sentiment {
	case models.SentimentPositive, models.SentimentNegative, models.SentimentNeutral, models.SentimentMixed:
	default:
		classification.Sentiment = models.SentimentNeutral
	}
	if classification.Confidence < 0 {
		classification.Confidence = 0
	}
	if classification.Confidence > 1 {
		classification.Confidence = 1
	}

	return &classification, nil
}

// ScorePainPoint runs the deep pain-point analysis for one mention. Calls
// are paced by the same rate limiter as classification batches. On any
// failure it returns the neutral default scores instead of an error.
func (c *Client) ScorePainPoint(ctx context.Context, m *models.Mention, actx AnalysisContext) models.PainPointAnalysis {
	if err := c.limiter.Wait(ctx); err != nil {
		logrus.Errorf("Pain-point analysis aborted for %s, using neutral defaults: %v", m.Key(), err)
		return neutralPainPoint()
	}

	text, err := c.complete(ctx, painPointSystemPrompt, buildAnalysisPrompt(m, actx))
	if err != nil {
		logrus.Errorf("Pain-point analysis failed for %s, using neutral defaults: %v", m.Key(), err)
		return neutralPainPoint()
	}

	var analysis models.PainPointAnalysis
	if err := json.Unmarshal([]byte(extractJSON(text)), &analysis); err != nil {
		logrus.Errorf("Pain-point analysis unparseable for %s, using neutral defaults: %v", m.Key(), err)
		return neutralPainPoint()
	}

	analysis.Severity = clampScore(analysis.Severity)
	analysis.Frequency = clampScore(analysis.Frequency)
	analysis.Urgency = clampScore(analysis.Urgency)
	analysis.MarketSize = clampScore(analysis.MarketSize)
	return analysis
}

// ScoreTrend runs the deep trend analysis for one mention, paced and
// degrading to neutral defaults on failure like ScorePainPoint.
func (c *Client) ScoreTrend(ctx context.Context, m *models.Mention, actx AnalysisContext) models.TrendAnalysis {
	if err := c.limiter.Wait(ctx); err != nil {
		logrus.Errorf("Trend analysis aborted for %s, using neutral defaults: %v", m.Key(), err)
		return neutralTrend()
	}

	text, err := c.complete(ctx, trendSystemPrompt, buildAnalysisPrompt(m, actx))
	if err != nil {
		logrus.Errorf("Trend analysis failed for %s, using neutral defaults: %v", m.Key(), err)
		return neutralTrend()
	}

	var analysis models.TrendAnalysis
	if err := json.Unmarshal([]byte(extractJSON(text)), &analysis); err != nil {
		logrus.Errorf("Trend analysis unparseable for %s, using neutral defaults: %v", m.Key(), err)
		return neutralTrend()
	}

	analysis.Momentum = clampScore(analysis.Momentum)
	analysis.Longevity = clampScore(analysis.Longevity)
	analysis.Saturation = clampScore(analysis.Saturation)
	return analysis
}

func neutralPainPoint() models.PainPointAnalysis {
	return models.PainPointAnalysis{
		Severity:   neutralScore,
		Frequency:  neutralScore,
		Urgency:    neutralScore,
		MarketSize: neutralScore,
		Summary:    "analysis unavailable",
	}
}

func neutralTrend() models.TrendAnalysis {
	return models.TrendAnalysis{
		Momentum:   neutralScore,
		Longevity:  neutralScore,
		Saturation: neutralScore,
		Summary:    "analysis unavailable",
	}
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Wire types for the responses endpoint.
type responseContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responseOutput struct {
	Content []responseContent `json:"content"`
}

type responseEnvelope struct {
	Output []responseOutput `json:"output"`
}

// complete performs one structured-JSON completion call.
func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload := map[string]interface{}{
		"model": c.model.Model,
		"input": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature":       c.model.Temperature,
		"max_output_tokens": c.model.MaxOutputTokens,
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(c.baseURL + "/responses")

	if err != nil {
		return "", err
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return "", fmt.Errorf("classifier returned status %d", resp.StatusCode())
	}

	var envelope responseEnvelope
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return "", fmt.Errorf("failed to parse classifier envelope: %w", err)
	}

	for _, out := range envelope.Output {
		for _, content := range out.Content {
			if content.Type == "output_text" && content.Text != "" {
				return content.Text, nil
			}
		}
	}

	return "", fmt.Errorf("classifier returned no output text")
}

// extractJSON trims code fences and surrounding prose the model sometimes
// wraps around its JSON object.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
