package reddit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Submit publishes one post. Free-text fields are sanitized and URL
// fields validated before anything goes on the wire; a validation
// failure never makes a network call.
func (c *Client) Submit(ctx context.Context, accessToken string, req SubmitRequest) (*SubmitResult, error) {
	form, err := buildSubmitForm(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/submit", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("submit request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.parseError(resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read submit response: %w", err)
	}

	// The upstream reports some submit failures inside a 200 body.
	if msg := submitErrorRows(body); msg != "" {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	result, ok := parseSubmitResponse(body)
	if !ok {
		c.logger.Warn("Submit response had no recognizable post id",
			zap.String("subreddit", req.Subreddit),
			zap.ByteString("body", body))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "submit response had no recognizable post id"}
	}

	c.logger.Info("Post submitted",
		zap.String("subreddit", req.Subreddit),
		zap.String("post_id", result.PostID))

	return result, nil
}

// buildSubmitForm shapes the form per content type: text becomes a
// self post, link a link post, image a link post whose URL is the
// hosted media plus an optional caption.
func buildSubmitForm(req SubmitRequest) (url.Values, error) {
	title := SanitizeText(req.Title)
	if title == "" {
		return nil, &ValidationError{Field: "title", Reason: "empty after sanitization"}
	}
	if strings.TrimSpace(req.Subreddit) == "" {
		return nil, &ValidationError{Field: "subreddit", Reason: "empty"}
	}

	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("sr", req.Subreddit)
	form.Set("title", title)
	form.Set("resubmit", "true")

	switch req.ContentType {
	case "text":
		form.Set("kind", "self")
		form.Set("text", SanitizeText(req.Body))
	case "link":
		if err := ValidateURL(req.URL); err != nil {
			return nil, err
		}
		form.Set("kind", "link")
		form.Set("url", req.URL)
	case "image":
		if strings.TrimSpace(req.URL) == "" {
			return nil, &ValidationError{Field: "media", Reason: "image post has no media reference"}
		}
		if err := ValidateURL(req.URL); err != nil {
			return nil, err
		}
		form.Set("kind", "link")
		form.Set("url", req.URL)
		if caption := SanitizeText(req.Caption); caption != "" {
			form.Set("text", caption)
		}
	default:
		return nil, &ValidationError{Field: "content_type", Reason: fmt.Sprintf("unknown type %q", req.ContentType)}
	}

	return form, nil
}
