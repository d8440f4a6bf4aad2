package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skypath/nichebot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelopeWith(text string) string {
	env := responseEnvelope{
		Output: []responseOutput{{
			Content: []responseContent{{Type: "output_text", Text: text}},
		}},
	}
	data, _ := json.Marshal(env)
	return string(data)
}

func classificationJSON(category string, confidence float64) string {
	return fmt.Sprintf(`{"has_pain_point":true,"has_trend_signal":false,"sentiment":"negative","keywords":["time tracking"],"category":%q,"confidence":%g}`, category, confidence)
}

func testMentions(n int) []models.Mention {
	out := make([]models.Mention, n)
	for i := range out {
		out[i] = models.Mention{
			PlatformID:   fmt.Sprintf("p%d", i),
			ProviderName: "reddit",
			Title:        "title",
			Content:      "I waste hours every week on manual timesheets",
		}
	}
	return out
}

func TestTierConfig(t *testing.T) {
	assert.Equal(t, "gpt-4o", TierConfig("premium").Model)
	assert.Equal(t, tierConfigs[defaultTier], TierConfig("unknown-tier"))
	assert.Equal(t, tierConfigs[defaultTier], TierConfig(""))
}

func TestClassifyMentions_AllSucceed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/responses", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, envelopeWith(classificationJSON("time tracking", 0.9)))
	}))
	defer server.Close()

	c := NewClient("test-key", server.URL, "standard", 20, time.Millisecond)
	results := c.ClassifyMentions(context.Background(), testMentions(3))

	require.Len(t, results, 3)
	for _, r := range results {
		require.NotNil(t, r)
		assert.True(t, r.HasPainPoint)
		assert.Equal(t, "time tracking", r.Category)
		assert.Equal(t, models.SentimentNegative, r.Sentiment)
	}
}

func TestClassifyMentions_OneItemFailureIsIsolated(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 2 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, envelopeWith(classificationJSON("meal planning", 0.8)))
	}))
	defer server.Close()

	// Batch size 1 makes call order deterministic.
	c := NewClient("test-key", server.URL, "standard", 1, time.Millisecond)
	results := c.ClassifyMentions(context.Background(), testMentions(3))

	require.Len(t, results, 3)
	classified := 0
	for _, r := range results {
		if r != nil {
			classified++
		}
	}
	assert.Equal(t, 2, classified)
	assert.Nil(t, results[1])
}

func TestClassifyMentions_BatchPacing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelopeWith(classificationJSON("x", 0.5)))
	}))
	defer server.Close()

	delay := 150 * time.Millisecond
	c := NewClient("test-key", server.URL, "standard", 2, delay)

	start := time.Now()
	c.ClassifyMentions(context.Background(), testMentions(4)) // two batches
	elapsed := time.Since(start)

	// The second batch must wait out the inter-batch delay.
	assert.GreaterOrEqual(t, elapsed, delay)
}

func TestDeepAnalysis_CallsArePaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelopeWith(`{"severity":60,"frequency":60,"urgency":60,"market_size":60,"summary":"s"}`))
	}))
	defer server.Close()

	delay := 150 * time.Millisecond
	c := NewClient("test-key", server.URL, "standard", 10, delay)
	m := testMentions(1)[0]

	start := time.Now()
	c.ScorePainPoint(context.Background(), &m, ContextFor(&m))
	c.ScoreTrend(context.Background(), &m, ContextFor(&m))
	elapsed := time.Since(start)

	// Back-to-back deep-analysis calls share the inter-batch delay.
	assert.GreaterOrEqual(t, elapsed, delay)
}

func TestClassifyMentions_SentimentNormalized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelopeWith(`{"has_pain_point":false,"has_trend_signal":true,"sentiment":"euphoric","keywords":[],"category":"c","confidence":1.7}`))
	}))
	defer server.Close()

	c := NewClient("test-key", server.URL, "standard", 10, time.Millisecond)
	results := c.ClassifyMentions(context.Background(), testMentions(1))

	require.NotNil(t, results[0])
	assert.Equal(t, models.SentimentNeutral, results[0].Sentiment)
	assert.Equal(t, 1.0, results[0].Confidence)
}

func TestScorePainPoint_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelopeWith(`{"severity":80,"frequency":70,"urgency":120,"market_size":-5,"summary":"manual timesheets waste time"}`))
	}))
	defer server.Close()

	c := NewClient("test-key", server.URL, "standard", 10, time.Millisecond)
	m := testMentions(1)[0]
	analysis := c.ScorePainPoint(context.Background(), &m, ContextFor(&m))

	assert.Equal(t, 80, analysis.Severity)
	assert.Equal(t, 70, analysis.Frequency)
	assert.Equal(t, 100, analysis.Urgency)   // clamped
	assert.Equal(t, 0, analysis.MarketSize)  // clamped
	assert.NotEmpty(t, analysis.Summary)
}

func TestScorePainPoint_FailureDegradesToNeutral(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "timeout", http.StatusGatewayTimeout)
	}))
	defer server.Close()

	c := NewClient("test-key", server.URL, "standard", 10, time.Millisecond)
	m := testMentions(1)[0]
	analysis := c.ScorePainPoint(context.Background(), &m, ContextFor(&m))

	assert.Equal(t, neutralScore, analysis.Severity)
	assert.Equal(t, neutralScore, analysis.Frequency)
	assert.Equal(t, neutralScore, analysis.Urgency)
	assert.Equal(t, neutralScore, analysis.MarketSize)
}

func TestScoreTrend_FailureDegradesToNeutral(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelopeWith("no json here"))
	}))
	defer server.Close()

	c := NewClient("test-key", server.URL, "standard", 10, time.Millisecond)
	m := testMentions(1)[0]
	analysis := c.ScoreTrend(context.Background(), &m, ContextFor(&m))

	assert.Equal(t, neutralScore, analysis.Momentum)
	assert.Equal(t, neutralScore, analysis.Longevity)
	assert.Equal(t, neutralScore, analysis.Saturation)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Plain JSON",
			input:    `{"a":1}`,
			expected: `{"a":1}`,
		},
		{
			name:     "Fenced JSON",
			input:    "```json\n{\"a\":1}\n```",
			expected: `{"a":1}`,
		},
		{
			name:     "Prose around JSON",
			input:    `Here is the result: {"a":1} hope it helps`,
			expected: `{"a":1}`,
		},
		{
			name:     "No JSON",
			input:    "nothing",
			expected: "nothing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractJSON(tt.input))
		})
	}
}
