package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"github.com/skypath/nichebot/internal/models"
)

// Engagement weights for Reddit. Comments signal active discussion and
// weigh more than plain upvotes.
const (
	redditUpvoteWeight  = 2.0
	redditCommentWeight = 3.0
)

// RedditProvider implements the Reddit search API adapter. The OAuth token
// is shared across concurrent fetches and guarded by the mutex.
type RedditProvider struct {
	clientID     string
	clientSecret string
	client       *resty.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

type redditAuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type redditSearchResponse struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Permalink   string  `json:"permalink"`
	Created     float64 `json:"created_utc"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
}

// NewRedditProvider creates a new Reddit adapter
func NewRedditProvider(clientID, clientSecret string) *RedditProvider {
	return &RedditProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       resty.New().SetTimeout(30 * time.Second),
	}
}

func (r *RedditProvider) GetName() string {
	return "reddit"
}

func (r *RedditProvider) IsEnabled() bool {
	return r.clientID != "" && r.clientSecret != ""
}

func (r *RedditProvider) FetchMentions(ctx context.Context, query string, opts FetchOptions) ([]models.Mention, error) {
	if !r.IsEnabled() {
		logrus.Debug("Reddit provider disabled - missing credentials")
		return nil, nil
	}

	token, err := r.authenticate(ctx)
	if err != nil {
		return nil, fmt.Errorf("reddit authentication failed: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	searchURL := fmt.Sprintf("https://oauth.reddit.com/search.json?q=%s&sort=new&limit=%d",
		url.QueryEscape(query), limit)

	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token).
		SetHeader("User-Agent", "nichebot/1.0").
		Get(searchURL)

	if err != nil {
		return nil, err
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("reddit API returned status %d", resp.StatusCode())
	}

	var searchResp redditSearchResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse reddit response: %w", err)
	}

	var mentions []models.Mention
	cutoff := time.Now().Add(-opts.Window)

	for _, child := range searchResp.Data.Children {
		post := child.Data
		postedAt := time.Unix(int64(post.Created), 0)

		if opts.Window > 0 && postedAt.Before(cutoff) {
			continue
		}

		mentions = append(mentions, models.Mention{
			PlatformID:      post.ID,
			ProviderName:    "reddit",
			Title:           post.Title,
			Content:         post.Selftext,
			Author:          post.Author,
			SourceURL:       fmt.Sprintf("https://reddit.com%s", post.Permalink),
			Community:       post.Subreddit,
			Upvotes:         post.Score,
			Comments:        post.NumComments,
			EngagementScore: float64(post.Score)*redditUpvoteWeight + float64(post.NumComments)*redditCommentWeight,
			PostedAt:        postedAt,
		})
	}

	return mentions, nil
}

func (r *RedditProvider) authenticate(ctx context.Context) (string, error) {
	if token, ok := r.cachedToken(); ok {
		return token, nil
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", "nichebot/1.0").
		SetBasicAuth(r.clientID, r.clientSecret).
		SetFormData(map[string]string{
			"grant_type": "client_credentials",
		}).
		Post("https://www.reddit.com/api/v1/access_token")

	if err != nil {
		return "", err
	}

	var authResp redditAuthResponse
	if err := json.Unmarshal(resp.Body(), &authResp); err != nil {
		return "", err
	}

	if authResp.AccessToken == "" {
		return "", fmt.Errorf("reddit returned empty access token")
	}

	r.storeToken(authResp.AccessToken, authResp.ExpiresIn)
	return authResp.AccessToken, nil
}

func (r *RedditProvider) cachedToken() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.accessToken == "" || !time.Now().Before(r.tokenExpiry) {
		return "", false
	}
	return r.accessToken, true
}

// storeToken caches the token, expiring it a minute early so an in-flight
// search never carries a token about to lapse.
func (r *RedditProvider) storeToken(token string, expiresIn int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.accessToken = token
	r.tokenExpiry = time.Now().Add(time.Duration(expiresIn)*time.Second - time.Minute)
}
