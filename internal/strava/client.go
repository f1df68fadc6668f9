package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL  = "https://www.strava.com/api/v3"
	DefaultTokenURL = "https://www.strava.com/oauth/token"

	defaultMaxRetries  = 5
	defaultBaseBackoff = 5 * time.Second
)

// Client calls the Strava v3 API. All read calls share one retry
// policy: 429 sleeps max(Retry-After, backoff) with the backoff
// doubling per consecutive hit, 5xx and transport errors sleep the same
// doubling backoff, 401 is returned to the caller untouched, and any
// other 4xx is terminal. The budget is MaxRetries requests per call.
type Client struct {
	BaseURL  string
	TokenURL string

	ClientID     string
	ClientSecret string

	HTTPClient  *http.Client
	MaxRetries  int
	BaseBackoff time.Duration

	// sleep is swapped out in tests so backoff paths don't block.
	sleep func(context.Context, time.Duration) error
}

func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		BaseURL:      DefaultBaseURL,
		TokenURL:     DefaultTokenURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		MaxRetries:   defaultMaxRetries,
		BaseBackoff:  defaultBaseBackoff,
		sleep:        sleepCtx,
	}
}

// ListActivities fetches one page of the athlete's activity listing.
// Zero after/before values leave the corresponding window bound open.
func (c *Client) ListActivities(ctx context.Context, accessToken string, after, before time.Time, page, perPage int) ([]SummaryActivity, error) {
	q := url.Values{}
	if !after.IsZero() {
		q.Set("after", strconv.FormatInt(after.Unix(), 10))
	}
	if !before.IsZero() {
		q.Set("before", strconv.FormatInt(before.Unix(), 10))
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))

	var out []SummaryActivity
	if err := c.getJSON(ctx, "list_activities", accessToken, "/athlete/activities", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetActivity fetches the full detail of one activity, laps included.
func (c *Client) GetActivity(ctx context.Context, accessToken string, activityID int64) (*DetailedActivity, error) {
	q := url.Values{}
	q.Set("include_all_efforts", "true")

	var out DetailedActivity
	path := fmt.Sprintf("/activities/%d", activityID)
	if err := c.getJSON(ctx, "get_activity", accessToken, path, q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetHRZones fetches the zone distributions of one activity. Activities
// recorded without a heart-rate monitor have no zones; a 404 is treated
// as "no data" rather than an error.
func (c *Client) GetHRZones(ctx context.Context, accessToken string, activityID int64) ([]ZoneGroup, error) {
	var out []ZoneGroup
	path := fmt.Sprintf("/activities/%d/zones", activityID)
	err := c.getJSON(ctx, "get_hr_zones", accessToken, path, nil, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

// Exchange trades an authorization code for a token triple.
func (c *Client) Exchange(ctx context.Context, code string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	return c.token(ctx, form)
}

// Refresh obtains a fresh token triple from a refresh token. Refresh is
// never retried here: a rejection means the caller's run is over.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.token(ctx, form)
}

func (c *Client) token(ctx context.Context, form url.Values) (*TokenResponse, error) {
	form.Set("client_id", c.ClientID)
	form.Set("client_secret", c.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("strava: token request failed: %w", err)
	}
	defer resp.Body.Close()

	recordRequest("oauth_token", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tok TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("strava: decode token response: %w", err)
	}
	if tok.ExpiresAt == 0 && tok.ExpiresIn > 0 {
		tok.ExpiresAt = time.Now().Unix() + int64(tok.ExpiresIn)
	}
	return &tok, nil
}

// getJSON performs one read call under the shared retry policy.
func (c *Client) getJSON(ctx context.Context, endpoint, accessToken, path string, query url.Values, out any) error {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	backoff := c.BaseBackoff

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			recordRequest(endpoint, 0)
			log.Printf("strava: %s transport error (attempt %d/%d): %v", endpoint, attempt+1, c.MaxRetries, err)
			if attempt+1 >= c.MaxRetries {
				return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
			}
			if err := c.sleep(ctx, backoff); err != nil {
				return err
			}
			backoff *= 2
			continue
		}

		recordRequest(endpoint, resp.StatusCode)

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode <= 299:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("strava: decode %s response: %w", endpoint, err)
			}
			return nil

		case resp.StatusCode == http.StatusUnauthorized:
			drain(resp)
			return ErrUnauthorized

		case resp.StatusCode == http.StatusTooManyRequests:
			wait := backoff
			if ra := retryAfter(resp); ra > wait {
				wait = ra
			}
			drain(resp)
			if attempt+1 >= c.MaxRetries {
				return ErrRateLimitExceeded
			}
			log.Printf("strava: %s rate limited, sleeping %s (attempt %d/%d)", endpoint, wait, attempt+1, c.MaxRetries)
			recordRateLimitWait()
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}
			backoff *= 2
			continue

		case resp.StatusCode >= 500:
			status := resp.StatusCode
			drain(resp)
			if attempt+1 >= c.MaxRetries {
				return fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, status)
			}
			log.Printf("strava: %s upstream error %d, sleeping %s (attempt %d/%d)", endpoint, status, backoff, attempt+1, c.MaxRetries)
			if err := c.sleep(ctx, backoff); err != nil {
				return err
			}
			backoff *= 2
			continue

		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		}
	}
}

// retryAfter parses the provider's Retry-After header in seconds.
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
