package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"github.com/skypath/nichebot/internal/models"
)

// Engagement weights for YouTube. Comments on a video signal discussion far
// more strongly than raw view counts.
const (
	ytViewDivisor    = 1000.0
	ytLikeWeight     = 2.0
	ytCommentWeight  = 4.0
	ytStatsBatchSize = 50
)

// YouTubeProvider implements the YouTube Data API adapter
type YouTubeProvider struct {
	apiKey string
	client *resty.Client
}

type youTubeSearchResponse struct {
	Items []youTubeVideo `json:"items"`
}

type youTubeVideo struct {
	ID struct {
		VideoID string `json:"videoId"`
	} `json:"id"`
	Snippet struct {
		Title        string `json:"title"`
		Description  string `json:"description"`
		ChannelTitle string `json:"channelTitle"`
		PublishedAt  string `json:"publishedAt"`
	} `json:"snippet"`
}

type youTubeStatsResponse struct {
	Items []struct {
		ID         string `json:"id"`
		Statistics struct {
			ViewCount    string `json:"viewCount"`
			LikeCount    string `json:"likeCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// NewYouTubeProvider creates a new YouTube adapter
func NewYouTubeProvider(apiKey string) *YouTubeProvider {
	return &YouTubeProvider{
		apiKey: apiKey,
		client: resty.New().
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", "nichebot/1.0"),
	}
}

func (y *YouTubeProvider) GetName() string {
	return "youtube"
}

func (y *YouTubeProvider) IsEnabled() bool {
	return y.apiKey != ""
}

func (y *YouTubeProvider) FetchMentions(ctx context.Context, query string, opts FetchOptions) ([]models.Mention, error) {
	if !y.IsEnabled() {
		logrus.Debug("YouTube provider disabled - missing API key")
		return nil, nil
	}

	limit := opts.Limit
	if limit <= 0 || limit > 50 {
		limit = 25
	}

	searchURL := fmt.Sprintf("https://www.googleapis.com/youtube/v3/search?part=snippet&q=%s&type=video&maxResults=%d&key=%s",
		url.QueryEscape(query), limit, y.apiKey)
	if opts.Window > 0 {
		searchURL += "&publishedAfter=" + url.QueryEscape(time.Now().Add(-opts.Window).Format(time.RFC3339))
	}

	resp, err := y.client.R().
		SetContext(ctx).
		Get(searchURL)

	if err != nil {
		return nil, err
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("youtube API returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var searchResp youTubeSearchResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse youtube response: %w", err)
	}

	stats := y.fetchStatistics(ctx, searchResp.Items)

	var mentions []models.Mention

	for _, video := range searchResp.Items {
		publishedAt, err := time.Parse(time.RFC3339, video.Snippet.PublishedAt)
		if err != nil {
			logrus.Debugf("Failed to parse youtube timestamp: %v", err)
			continue
		}

		m := models.Mention{
			PlatformID:   video.ID.VideoID,
			ProviderName: "youtube",
			Title:        video.Snippet.Title,
			Content:      video.Snippet.Description,
			Author:       video.Snippet.ChannelTitle,
			SourceURL:    fmt.Sprintf("https://www.youtube.com/watch?v=%s", video.ID.VideoID),
			Community:    video.Snippet.ChannelTitle,
			PostedAt:     publishedAt,
		}

		if st, ok := stats[video.ID.VideoID]; ok {
			m.Views = st.views
			m.Upvotes = st.likes
			m.Comments = st.comments
			m.EngagementScore = float64(st.views)/ytViewDivisor +
				float64(st.likes)*ytLikeWeight +
				float64(st.comments)*ytCommentWeight
		}

		mentions = append(mentions, m)
	}

	return mentions, nil
}

type videoStats struct {
	views, likes, comments int
}

// fetchStatistics resolves view/like/comment counts for the found videos.
// Failures here degrade to zero engagement rather than failing the fetch.
func (y *YouTubeProvider) fetchStatistics(ctx context.Context, videos []youTubeVideo) map[string]videoStats {
	stats := make(map[string]videoStats)
	if len(videos) == 0 {
		return stats
	}

	ids := ""
	for i, v := range videos {
		if i >= ytStatsBatchSize {
			break
		}
		if i > 0 {
			ids += ","
		}
		ids += v.ID.VideoID
	}

	statsURL := fmt.Sprintf("https://www.googleapis.com/youtube/v3/videos?part=statistics&id=%s&key=%s", ids, y.apiKey)

	resp, err := y.client.R().
		SetContext(ctx).
		Get(statsURL)

	if err != nil || resp.StatusCode() != 200 {
		logrus.Debugf("Failed to fetch youtube statistics: %v", err)
		return stats
	}

	var statsResp youTubeStatsResponse
	if err := json.Unmarshal(resp.Body(), &statsResp); err != nil {
		logrus.Debugf("Failed to parse youtube statistics: %v", err)
		return stats
	}

	for _, item := range statsResp.Items {
		stats[item.ID] = videoStats{
			views:    atoiSafe(item.Statistics.ViewCount),
			likes:    atoiSafe(item.Statistics.LikeCount),
			comments: atoiSafe(item.Statistics.CommentCount),
		}
	}

	return stats
}

func atoiSafe(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}
