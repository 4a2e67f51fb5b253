package social

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/STRATINT/echoloop/internal/apperrors"
	"github.com/STRATINT/echoloop/internal/models"
)

const (
	serviceName    = "twitter"
	defaultBaseURL = "https://api.twitter.com"

	// The v2 timeline endpoints reject max_results outside [5, 100].
	minResults = 5
	maxResults = 100
)

// TwitterClient handles Twitter API v2 interactions. Writes use OAuth 1.0a
// user context; reads use the app bearer token.
type TwitterClient struct {
	creds      Credentials
	userID     string
	baseURL    string
	signer     *oauthSigner
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.Mutex
	userIDs map[string]string
}

// Option configures a TwitterClient.
type Option func(*TwitterClient)

// WithBaseURL points the client at a different API host.
func WithBaseURL(u string) Option {
	return func(c *TwitterClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *TwitterClient) {
		c.httpClient = h
	}
}

// NewTwitterClient creates a new Twitter API client acting as userID.
func NewTwitterClient(creds Credentials, userID string, logger *slog.Logger, opts ...Option) *TwitterClient {
	c := &TwitterClient{
		creds:   creds,
		userID:  userID,
		baseURL: defaultBaseURL,
		signer:  newOAuthSigner(creds),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:  logger,
		userIDs: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tweetRequest struct {
	Text  string      `json:"text"`
	Reply *replyField `json:"reply,omitempty"`
}

type replyField struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type apiError struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Title   string `json:"title"`
}

func (e apiError) String() string {
	for _, s := range []string{e.Message, e.Detail, e.Title} {
		if s != "" {
			return s
		}
	}
	return "unknown error"
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
	Errors []apiError `json:"errors,omitempty"`
}

type apiTweet struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	AuthorID      string    `json:"author_id"`
	CreatedAt     time.Time `json:"created_at"`
	PublicMetrics *struct {
		LikeCount       int `json:"like_count"`
		RetweetCount    int `json:"retweet_count"`
		ReplyCount      int `json:"reply_count"`
		QuoteCount      int `json:"quote_count"`
		ImpressionCount int `json:"impression_count"`
	} `json:"public_metrics,omitempty"`
}

type apiUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

type timelineResponse struct {
	Data     []apiTweet `json:"data"`
	Includes struct {
		Users []apiUser `json:"users"`
	} `json:"includes"`
	Errors []apiError `json:"errors,omitempty"`
}

// PostTweet publishes a standalone post and returns its platform id.
func (c *TwitterClient) PostTweet(ctx context.Context, text string) (string, error) {
	id, err := c.createTweet(ctx, "post tweet", tweetRequest{Text: text})
	if err != nil {
		return "", err
	}
	c.logger.Info("tweet posted successfully", "tweet_id", id, "text_length", len([]rune(text)))
	return id, nil
}

// Reply publishes text as a reply to parentID.
func (c *TwitterClient) Reply(ctx context.Context, parentID, text string) (string, error) {
	id, err := c.createTweet(ctx, "reply", tweetRequest{
		Text:  text,
		Reply: &replyField{InReplyToTweetID: parentID},
	})
	if err != nil {
		return "", err
	}
	c.logger.Info("reply posted successfully", "tweet_id", id, "parent_id", parentID)
	return id, nil
}

func (c *TwitterClient) createTweet(ctx context.Context, op string, body tweetRequest) (string, error) {
	endpoint := c.baseURL + "/2/tweets"

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tweet request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.signer.header(http.MethodPost, endpoint, nil))

	var resp tweetResponse
	if err := c.do(req, op, http.StatusCreated, &resp); err != nil {
		return "", err
	}
	if resp.Data.ID == "" {
		msg := "response carried no tweet id"
		if len(resp.Errors) > 0 {
			msg = resp.Errors[0].String()
		}
		return "", apperrors.Transport(serviceName, op, http.StatusCreated, errors.New(msg))
	}
	return resp.Data.ID, nil
}

// FetchMentions returns the most recent mentions of the configured user.
func (c *TwitterClient) FetchMentions(ctx context.Context, count int) ([]models.Mention, error) {
	query := url.Values{}
	query.Set("max_results", fmt.Sprint(clampResults(count)))
	query.Set("tweet.fields", "created_at,author_id")
	query.Set("expansions", "author_id")
	query.Set("user.fields", "username")

	var resp timelineResponse
	if err := c.getBearer(ctx, "fetch mentions", "/2/users/"+url.PathEscape(c.userID)+"/mentions", query, &resp); err != nil {
		return nil, err
	}

	handles := make(map[string]string, len(resp.Includes.Users))
	for _, u := range resp.Includes.Users {
		handles[u.ID] = u.Username
	}

	mentions := make([]models.Mention, 0, len(resp.Data))
	for _, t := range resp.Data {
		mentions = append(mentions, models.Mention{
			ID:           t.ID,
			Text:         t.Text,
			AuthorID:     t.AuthorID,
			AuthorHandle: handles[t.AuthorID],
			CreatedAt:    t.CreatedAt,
		})
	}
	if count > 0 && len(mentions) > count {
		mentions = mentions[:count]
	}
	return mentions, nil
}

// FetchMetrics returns the current public engagement counts of a post.
// Quotes are counted as reshares.
func (c *TwitterClient) FetchMetrics(ctx context.Context, tweetID string) (models.EngagementCounts, error) {
	query := url.Values{}
	query.Set("tweet.fields", "public_metrics")

	var resp struct {
		Data   apiTweet   `json:"data"`
		Errors []apiError `json:"errors,omitempty"`
	}
	if err := c.getBearer(ctx, "fetch metrics", "/2/tweets/"+url.PathEscape(tweetID), query, &resp); err != nil {
		return models.EngagementCounts{}, err
	}

	pm := resp.Data.PublicMetrics
	if pm == nil {
		msg := "response carried no public metrics"
		if len(resp.Errors) > 0 {
			msg = resp.Errors[0].String()
		}
		return models.EngagementCounts{}, apperrors.Transport(serviceName, "fetch metrics", http.StatusOK, errors.New(msg))
	}

	return models.EngagementCounts{
		Likes:       pm.LikeCount,
		Reshares:    pm.RetweetCount + pm.QuoteCount,
		Replies:     pm.ReplyCount,
		Impressions: pm.ImpressionCount,
	}, nil
}

// FetchUserTweets returns recent posts of a peer account, newest first.
func (c *TwitterClient) FetchUserTweets(ctx context.Context, handle string, count int) ([]models.PeerPost, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")

	userID, err := c.lookupUserID(ctx, handle)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("max_results", fmt.Sprint(clampResults(count)))
	query.Set("tweet.fields", "created_at")
	query.Set("exclude", "retweets,replies")

	var resp timelineResponse
	if err := c.getBearer(ctx, "fetch user tweets", "/2/users/"+url.PathEscape(userID)+"/tweets", query, &resp); err != nil {
		return nil, err
	}

	posts := make([]models.PeerPost, 0, len(resp.Data))
	for _, t := range resp.Data {
		posts = append(posts, models.PeerPost{
			ID:        t.ID,
			Handle:    handle,
			Text:      t.Text,
			CreatedAt: t.CreatedAt,
		})
	}
	if count > 0 && len(posts) > count {
		posts = posts[:count]
	}
	return posts, nil
}

func (c *TwitterClient) lookupUserID(ctx context.Context, handle string) (string, error) {
	c.mu.Lock()
	id, ok := c.userIDs[strings.ToLower(handle)]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	var resp struct {
		Data   apiUser    `json:"data"`
		Errors []apiError `json:"errors,omitempty"`
	}
	if err := c.getBearer(ctx, "lookup user", "/2/users/by/username/"+url.PathEscape(handle), nil, &resp); err != nil {
		return "", err
	}
	if resp.Data.ID == "" {
		return "", apperrors.Transport(serviceName, "lookup user", http.StatusOK, fmt.Errorf("user %q not found", handle))
	}

	c.mu.Lock()
	c.userIDs[strings.ToLower(handle)] = resp.Data.ID
	c.mu.Unlock()
	return resp.Data.ID, nil
}

// ValidateCredentials checks that the user-context tokens are accepted.
func (c *TwitterClient) ValidateCredentials(ctx context.Context) error {
	endpoint := c.baseURL + "/2/users/me"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", c.signer.header(http.MethodGet, endpoint, nil))

	var resp struct {
		Data apiUser `json:"data"`
	}
	if err := c.do(req, "validate credentials", http.StatusOK, &resp); err != nil {
		return err
	}

	c.logger.Info("twitter credentials validated successfully", "username", resp.Data.Username)
	return nil
}

func (c *TwitterClient) getBearer(ctx context.Context, op, path string, query url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.creds.BearerToken)

	return c.do(req, op, http.StatusOK, out)
}

// do executes req and decodes the JSON body into out. Network failures and
// unexpected statuses become TransportErrors.
func (c *TwitterClient) do(req *http.Request, op string, want int, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Transport(serviceName, op, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.Transport(serviceName, op, resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != want {
		var parsed struct {
			Errors []apiError `json:"errors"`
			apiError
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &parsed) == nil {
			if len(parsed.Errors) > 0 {
				msg = parsed.Errors[0].String()
			} else if s := parsed.apiError.String(); s != "unknown error" {
				msg = s
			}
		}
		return apperrors.Transport(serviceName, op, resp.StatusCode, errors.New(msg))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.Transport(serviceName, op, resp.StatusCode, fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}

func clampResults(n int) int {
	return min(max(n, minResults), maxResults)
}
