// Package helix is the client for the external directory and live-streams
// API. All requests go through a shared rate limiter; name lookups are
// cached to keep request volume down.
package helix

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/user/chatvault/internal/domain"
)

const (
	defaultBaseURL = "https://api.twitch.tv/helix"

	userIDCacheTTL = 24 * time.Hour
)

// Cache is the lookup cache consumed by the client. A cache miss is
// reported as ("", nil).
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Client implements domain.StreamLister and domain.UserDirectory against
// the Helix HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	token      string
	cache      Cache
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New creates a Client. cache may be nil to disable lookup caching.
func New(clientID, token string, cache Cache, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    defaultBaseURL,
		clientID:   clientID,
		token:      token,
		cache:      cache,
		// Helix allows 800 requests per minute per token.
		limiter: rate.NewLimiter(rate.Limit(800.0/60.0), 10),
		logger:  logger.With("component", "helix"),
	}
}

type streamsResponse struct {
	Data []struct {
		ID          string    `json:"id"`
		UserID      string    `json:"user_id"`
		UserLogin   string    `json:"user_login"`
		ViewerCount int       `json:"viewer_count"`
		StartedAt   time.Time `json:"started_at"`
	} `json:"data"`
	Pagination struct {
		Cursor string `json:"cursor"`
	} `json:"pagination"`
}

type usersResponse struct {
	Data []struct {
		ID    string `json:"id"`
		Login string `json:"login"`
	} `json:"data"`
}

// ListLive returns one page of currently live streams.
func (c *Client) ListLive(ctx context.Context, cursor string, pageSize int) ([]domain.LiveStream, string, error) {
	query := url.Values{}
	query.Set("first", strconv.Itoa(pageSize))
	if cursor != "" {
		query.Set("after", cursor)
	}

	var resp streamsResponse
	if err := c.get(ctx, "/streams", query, &resp); err != nil {
		return nil, "", err
	}

	streams := make([]domain.LiveStream, len(resp.Data))
	for i, s := range resp.Data {
		streams[i] = domain.LiveStream{
			ID:          s.ID,
			ChannelID:   s.UserID,
			ChannelName: s.UserLogin,
			ViewerCount: s.ViewerCount,
			StartedAt:   s.StartedAt.Unix(),
		}
	}
	return streams, resp.Pagination.Cursor, nil
}

// UserIDByName resolves a login name to a user id, "" when unknown.
func (c *Client) UserIDByName(ctx context.Context, login string) (string, error) {
	cacheKey := "chatvault:user_id:" + login
	if c.cache != nil {
		if id, err := c.cache.Get(ctx, cacheKey); err != nil {
			c.logger.Warn("user id cache read failed", "error", err, "login", login)
		} else if id != "" {
			return id, nil
		}
	}

	query := url.Values{}
	query.Set("login", login)

	var resp usersResponse
	if err := c.get(ctx, "/users", query, &resp); err != nil {
		return "", err
	}
	if len(resp.Data) == 0 {
		return "", nil
	}

	id := resp.Data[0].ID
	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey, id, userIDCacheTTL); err != nil {
			c.logger.Warn("user id cache write failed", "error", err, "login", login)
		}
	}
	return id, nil
}

// UsersByID maps user ids to login names; unknown ids are omitted.
func (c *Client) UsersByID(ctx context.Context, ids []string) (map[string]string, error) {
	users := make(map[string]string, len(ids))

	// The users endpoint accepts at most 100 ids per request.
	for start := 0; start < len(ids); start += 100 {
		end := min(start+100, len(ids))

		query := url.Values{}
		for _, id := range ids[start:end] {
			query.Add("id", id)
		}

		var resp usersResponse
		if err := c.get(ctx, "/users", query, &resp); err != nil {
			return nil, err
		}
		for _, u := range resp.Data {
			users[u.ID] = u.Login
		}
	}

	return users, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Client-Id", c.clientID)
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("helix request %s failed with status %d", path, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
