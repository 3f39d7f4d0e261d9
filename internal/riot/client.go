package riot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// ErrNotFound is returned when the Riot API reports 404 for the
// requested account or resource.
var ErrNotFound = errors.New("riot: not found")

// APIError represents a non-2xx Riot API response
type APIError struct {
	StatusCode int
	// RetryAfter is the wait the API requested via the Retry-After
	// header on a 429 response, in seconds. Zero when absent.
	RetryAfter int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("riot: API error: status %d, body: %s", e.StatusCode, e.Body)
}

// IsRateLimited reports whether err is a 429 response.
func IsRateLimited(err error) (retryAfter int, ok bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return apiErr.RetryAfter, true
	}
	return 0, false
}

// Client is a Riot Games API client with request pacing
type Client struct {
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter

	regionalBaseURL string // account-v1 routing (e.g. https://asia.api.riotgames.com)
	platformBaseURL string // league-v4 routing (e.g. https://jp1.api.riotgames.com)
}

// NewClient creates a new Riot API client. accountRegion is a regional
// routing value ("asia", "americas", "europe"); platformRegion is a
// platform routing value ("jp1", "kr", ...).
func NewClient(apiKey, accountRegion, platformRegion string) *Client {
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		// Development keys allow 20 requests per second
		limiter:         rate.NewLimiter(rate.Limit(20), 1),
		regionalBaseURL: fmt.Sprintf("https://%s.api.riotgames.com", accountRegion),
		platformBaseURL: fmt.Sprintf("https://%s.api.riotgames.com", platformRegion),
	}
}

// get performs a paced GET request and decodes the JSON response
func (c *Client) get(ctx context.Context, url string, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Riot-Token", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return ErrNotFound
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
				apiErr.RetryAfter = secs
			}
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
