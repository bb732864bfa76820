package reddit

import (
	"fmt"
	"time"
)

type Config struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
	BaseURL      string
	TokenURL     string
	Timeout      time.Duration
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

type SubmitRequest struct {
	Subreddit   string
	Title       string
	ContentType string // text | link | image
	Body        string // self-post body (text)
	URL         string // link target (link), hosted media (image)
	Caption     string // optional caption (image)
}

type SubmitResult struct {
	PostID    string
	Permalink string
}

type SubredditInfo struct {
	Name        string
	Title       string
	Description string
	Subscribers int64
	Over18      bool
}

type UserInfo struct {
	Name         string
	LinkKarma    int64
	CommentKarma int64
	CreatedUTC   float64
}

type SubredditRule struct {
	ShortName   string
	Description string
	Kind        string
}

type ListedPost struct {
	ID         string
	Subreddit  string
	Title      string
	Permalink  string
	URL        string
	CreatedUTC float64
}

// APIError is a non-success answer from the upstream. The message is
// as specific as the response body allowed.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("reddit API error (status %d): %s", e.StatusCode, e.Message)
}

// ValidationError marks post data rejected before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
