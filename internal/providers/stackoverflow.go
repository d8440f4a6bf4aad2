package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/skypath/nichebot/internal/models"
)

// Engagement weights for Stack Overflow. Answers are the strongest signal
// of a real problem; views count for little individually.
const (
	soScoreWeight  = 3.0
	soAnswerWeight = 5.0
	soViewDivisor  = 100.0
)

// StackOverflowProvider implements the Stack Exchange search API adapter
type StackOverflowProvider struct {
	client *resty.Client
}

type stackOverflowResponse struct {
	Items []stackOverflowQuestion `json:"items"`
}

type stackOverflowQuestion struct {
	QuestionID int      `json:"question_id"`
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	Tags       []string `json:"tags"`
	Owner      struct {
		DisplayName string `json:"display_name"`
	} `json:"owner"`
	CreationDate int64  `json:"creation_date"`
	Score        int    `json:"score"`
	ViewCount    int    `json:"view_count"`
	AnswerCount  int    `json:"answer_count"`
	Link         string `json:"link"`
}

// NewStackOverflowProvider creates a new Stack Overflow adapter
func NewStackOverflowProvider() *StackOverflowProvider {
	return &StackOverflowProvider{
		client: resty.New().
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", "nichebot/1.0"),
	}
}

func (s *StackOverflowProvider) GetName() string {
	return "stackoverflow"
}

func (s *StackOverflowProvider) IsEnabled() bool {
	return true // basic searches need no authentication
}

func (s *StackOverflowProvider) FetchMentions(ctx context.Context, query string, opts FetchOptions) ([]models.Mention, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	searchURL := fmt.Sprintf("https://api.stackexchange.com/2.3/search/advanced?order=desc&sort=creation&q=%s&site=stackoverflow&pagesize=%d&filter=withbody",
		url.QueryEscape(query), limit)
	if opts.Window > 0 {
		searchURL += fmt.Sprintf("&fromdate=%d", time.Now().Add(-opts.Window).Unix())
	}

	resp, err := s.client.R().
		SetContext(ctx).
		Get(searchURL)

	if err != nil {
		return nil, err
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("stack overflow API returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var searchResp stackOverflowResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse stack overflow response: %w", err)
	}

	var mentions []models.Mention

	for _, q := range searchResp.Items {
		community := ""
		if len(q.Tags) > 0 {
			community = q.Tags[0]
		}

		mentions = append(mentions, models.Mention{
			PlatformID:   fmt.Sprintf("%d", q.QuestionID),
			ProviderName: "stackoverflow",
			Title:        q.Title,
			Content:      stripHTMLTags(q.Body),
			Author:       q.Owner.DisplayName,
			SourceURL:    q.Link,
			Community:    community,
			Views:        q.ViewCount,
			Upvotes:      q.Score,
			Comments:     q.AnswerCount,
			EngagementScore: float64(q.Score)*soScoreWeight +
				float64(q.AnswerCount)*soAnswerWeight +
				float64(q.ViewCount)/soViewDivisor,
			PostedAt: time.Unix(q.CreationDate, 0),
		})
	}

	return mentions, nil
}

func stripHTMLTags(content string) string {
	content = strings.ReplaceAll(content, "<p>", "\n")
	content = strings.ReplaceAll(content, "</p>", "\n")
	content = strings.ReplaceAll(content, "<br>", "\n")
	content = strings.ReplaceAll(content, "<br/>", "\n")
	content = strings.ReplaceAll(content, "<code>", "`")
	content = strings.ReplaceAll(content, "</code>", "`")

	// Remove remaining tags
	for strings.Contains(content, "<") && strings.Contains(content, ">") {
		start := strings.Index(content, "<")
		end := strings.Index(content, ">")
		if start < end {
			content = content[:start] + content[end+1:]
		} else {
			break
		}
	}

	return strings.TrimSpace(content)
}
