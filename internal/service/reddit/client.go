package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://oauth.reddit.com"
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = "https://www.reddit.com/api/v1/access_token"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// RefreshToken exchanges a refresh token for a fresh access token. The
// token endpoint wants app-level client credentials via HTTP Basic,
// not the account's bearer token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.config.ClientID, c.config.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.parseError(resp)
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "token response missing access_token"}
	}
	return &token, nil
}

// Me returns the identity of the token's owner.
func (c *Client) Me(ctx context.Context, accessToken string) (*UserInfo, error) {
	var raw struct {
		Name         string  `json:"name"`
		LinkKarma    int64   `json:"link_karma"`
		CommentKarma int64   `json:"comment_karma"`
		CreatedUTC   float64 `json:"created_utc"`
	}
	if err := c.getJSON(ctx, accessToken, "/api/v1/me", &raw); err != nil {
		return nil, err
	}
	return &UserInfo{
		Name:         raw.Name,
		LinkKarma:    raw.LinkKarma,
		CommentKarma: raw.CommentKarma,
		CreatedUTC:   raw.CreatedUTC,
	}, nil
}

// AboutUser fetches public info for a username.
func (c *Client) AboutUser(ctx context.Context, accessToken, username string) (*UserInfo, error) {
	var raw thingEnvelope
	path := fmt.Sprintf("/user/%s/about.json", url.PathEscape(username))
	if err := c.getJSON(ctx, accessToken, path, &raw); err != nil {
		return nil, err
	}
	return &UserInfo{
		Name:         stringField(raw.Data, "name"),
		LinkKarma:    intField(raw.Data, "link_karma"),
		CommentKarma: intField(raw.Data, "comment_karma"),
		CreatedUTC:   floatField(raw.Data, "created_utc"),
	}, nil
}

// AboutSubreddit fetches a community's metadata.
func (c *Client) AboutSubreddit(ctx context.Context, accessToken, name string) (*SubredditInfo, error) {
	var raw thingEnvelope
	path := fmt.Sprintf("/r/%s/about.json", url.PathEscape(name))
	if err := c.getJSON(ctx, accessToken, path, &raw); err != nil {
		return nil, err
	}
	return &SubredditInfo{
		Name:        stringField(raw.Data, "display_name"),
		Title:       stringField(raw.Data, "title"),
		Description: stringField(raw.Data, "public_description"),
		Subscribers: intField(raw.Data, "subscribers"),
		Over18:      boolField(raw.Data, "over18"),
	}, nil
}

// SubredditRules fetches the posting rules for a community.
func (c *Client) SubredditRules(ctx context.Context, accessToken, name string) ([]SubredditRule, error) {
	var raw struct {
		Rules []struct {
			ShortName   string `json:"short_name"`
			Description string `json:"description"`
			Kind        string `json:"kind"`
		} `json:"rules"`
	}
	path := fmt.Sprintf("/r/%s/about/rules.json", url.PathEscape(name))
	if err := c.getJSON(ctx, accessToken, path, &raw); err != nil {
		return nil, err
	}
	rules := make([]SubredditRule, 0, len(raw.Rules))
	for _, r := range raw.Rules {
		rules = append(rules, SubredditRule{ShortName: r.ShortName, Description: r.Description, Kind: r.Kind})
	}
	return rules, nil
}

// UserPosts lists a user's most recent submissions, newest first.
func (c *Client) UserPosts(ctx context.Context, accessToken, username string, limit int) ([]ListedPost, error) {
	var raw struct {
		Data struct {
			Children []struct {
				Data map[string]any `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	path := fmt.Sprintf("/user/%s/submitted.json?limit=%d", url.PathEscape(username), limit)
	if err := c.getJSON(ctx, accessToken, path, &raw); err != nil {
		return nil, err
	}
	posts := make([]ListedPost, 0, len(raw.Data.Children))
	for _, child := range raw.Data.Children {
		posts = append(posts, ListedPost{
			ID:         stringField(child.Data, "id"),
			Subreddit:  stringField(child.Data, "subreddit"),
			Title:      stringField(child.Data, "title"),
			Permalink:  stringField(child.Data, "permalink"),
			URL:        stringField(child.Data, "url"),
			CreatedUTC: floatField(child.Data, "created_utc"),
		})
	}
	return posts, nil
}

type thingEnvelope struct {
	Data map[string]any `json:"data"`
}

func (c *Client) getJSON(ctx context.Context, accessToken, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.parseError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseError extracts the most specific message the error body allows:
// a structured errors array, then message/error fields, then raw text.
func (c *Client) parseError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var parsed struct {
		JSON struct {
			Errors [][]any `json:"errors"`
		} `json:"json"`
		Errors  [][]any `json:"errors"`
		Message string  `json:"message"`
		Error   any     `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if msg := joinErrorRows(parsed.JSON.Errors); msg != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: msg}
		}
		if msg := joinErrorRows(parsed.Errors); msg != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: msg}
		}
		if parsed.Message != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: parsed.Message}
		}
		if parsed.Error != nil {
			return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprint(parsed.Error)}
		}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}

// joinErrorRows flattens Reddit's [["CODE","detail","field"],...] error
// rows into one readable message.
func joinErrorRows(rows [][]any) string {
	var parts []string
	for _, row := range rows {
		var fields []string
		for _, cell := range row {
			if s, ok := cell.(string); ok && s != "" {
				fields = append(fields, s)
			}
		}
		if len(fields) > 0 {
			parts = append(parts, strings.Join(fields, ": "))
		}
	}
	return strings.Join(parts, "; ")
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func intField(m map[string]any, key string) int64 {
	if v, ok := m[key].(float64); ok {
		return int64(v)
	}
	return 0
}

func floatField(m map[string]any, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}

func boolField(m map[string]any, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}
