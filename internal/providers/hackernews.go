package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/skypath/nichebot/internal/models"
)

// Engagement weights for Hacker News. Comment count (descendants) is the
// stronger discussion signal there.
const (
	hnPointWeight   = 2.0
	hnCommentWeight = 4.0
)

// HackerNewsProvider searches Hacker News through the Algolia search API
type HackerNewsProvider struct {
	client *resty.Client
}

type hnSearchResponse struct {
	Hits []hnHit `json:"hits"`
}

type hnHit struct {
	ObjectID    string `json:"objectID"`
	Title       string `json:"title"`
	StoryText   string `json:"story_text"`
	CommentText string `json:"comment_text"`
	Author      string `json:"author"`
	URL         string `json:"url"`
	Points      int    `json:"points"`
	NumComments int    `json:"num_comments"`
	CreatedAtI  int64  `json:"created_at_i"`
}

// NewHackerNewsProvider creates a new Hacker News adapter
func NewHackerNewsProvider() *HackerNewsProvider {
	return &HackerNewsProvider{
		client: resty.New().
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", "nichebot/1.0"),
	}
}

func (h *HackerNewsProvider) GetName() string {
	return "hackernews"
}

func (h *HackerNewsProvider) IsEnabled() bool {
	return true // the Algolia HN API does not require authentication
}

func (h *HackerNewsProvider) FetchMentions(ctx context.Context, query string, opts FetchOptions) ([]models.Mention, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	searchURL := fmt.Sprintf("https://hn.algolia.com/api/v1/search_by_date?query=%s&tags=(story,comment)&hitsPerPage=%d",
		url.QueryEscape(query), limit)
	if opts.Window > 0 {
		since := time.Now().Add(-opts.Window).Unix()
		searchURL += fmt.Sprintf("&numericFilters=created_at_i>%d", since)
	}

	resp, err := h.client.R().
		SetContext(ctx).
		Get(searchURL)

	if err != nil {
		return nil, err
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("hacker news API returned status %d", resp.StatusCode())
	}

	var searchResp hnSearchResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse hacker news response: %w", err)
	}

	var mentions []models.Mention

	for _, hit := range searchResp.Hits {
		content := hit.StoryText
		if content == "" {
			content = hit.CommentText
		}

		sourceURL := hit.URL
		if sourceURL == "" {
			sourceURL = fmt.Sprintf("https://news.ycombinator.com/item?id=%s", hit.ObjectID)
		}

		mentions = append(mentions, models.Mention{
			PlatformID:      hit.ObjectID,
			ProviderName:    "hackernews",
			Title:           hit.Title,
			Content:         content,
			Author:          hit.Author,
			SourceURL:       sourceURL,
			Upvotes:         hit.Points,
			Comments:        hit.NumComments,
			EngagementScore: float64(hit.Points)*hnPointWeight + float64(hit.NumComments)*hnCommentWeight,
			PostedAt:        time.Unix(hit.CreatedAtI, 0),
		})
	}

	return mentions, nil
}
