// Package graph implements core.GraphClient against the Microsoft
// Graph v1.0 REST API: site and drive resolution, delta-query
// traversal, and content download, with retry/backoff grounded on the
// teacher's retryablehttp-based backend client.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"spmirror/internal/core"
)

const (
	baseURL = "https://graph.microsoft.com/v1.0"

	retryBase    = 1 * time.Second
	retryCap     = 60 * time.Second
	retryJitter  = 0.2
	retryMaxTries = 5
)

// Config configures a Client.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Hostname     string
	SitePath     string
	Logger       core.Logger
}

// Client implements core.GraphClient.
type Client struct {
	http     *retryablehttp.Client
	auth     *tokenSourceAuth
	log      core.Logger
	hostname string
	sitePath string
}

// NewClient builds a Client configured with the spec's retry policy:
// exponential backoff from a 1s base capped at 60s, +-20% jitter, up
// to 5 attempts, honoring Retry-After on 429/503 responses.
func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = &core.NopLogger{}
	}

	rc := retryablehttp.NewClient()
	// RetryMax counts retries after the first attempt.
	rc.RetryMax = retryMaxTries - 1
	rc.RetryWaitMin = retryBase
	rc.RetryWaitMax = retryCap
	rc.Logger = nil
	rc.CheckRetry = graphRetryPolicy
	rc.Backoff = jitteredBackoff

	return &Client{
		http:     rc,
		auth:     newTokenSourceAuth(cfg.TenantID, cfg.ClientID, cfg.ClientSecret),
		log:      logger,
		hostname: cfg.Hostname,
		sitePath: cfg.SitePath,
	}
}

// graphRetryPolicy retries on connection failures, on 429, and on the
// 5xx class generally (Graph's throttling and transient upstream
// failures both show up there), and surfaces 410 Gone untouched so the
// delta iterator can detect an expired cursor and reset it.
func graphRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil //nolint:nilerr // retryablehttp classifies the error itself
	}
	if resp == nil {
		return true, nil
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return true, nil
	}
	return false, nil
}

// jitteredBackoff honors a server-sent Retry-After header when present,
// otherwise applies exponential backoff with +-20% jitter.
func jitteredBackoff(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
	if resp != nil {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
	}

	wait := min * (1 << attemptNum)
	if wait > max {
		wait = max
	}
	jitter := float64(wait) * retryJitter
	delta := (rand.Float64()*2 - 1) * jitter
	wait = time.Duration(float64(wait) + delta)
	if wait < min {
		wait = min
	}
	return wait
}

func (c *Client) do(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	tok, err := c.auth.token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, core.TransientNetworkError("do", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, core.TransientNetworkError("do", err)
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return core.NotFoundError("getJSON", fmt.Errorf("%s: 404", url))
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return core.RateLimitedError("getJSON", fmt.Errorf("%s: 429", url))
	}
	if resp.StatusCode >= 400 {
		return core.TransientNetworkError("getJSON", fmt.Errorf("%s: status %d", url, resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return core.TransientNetworkError("getJSON", fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

func (c *Client) ResolveSite(ctx context.Context, hostname, sitePath string) (core.Site, error) {
	url := fmt.Sprintf("%s/sites/%s:%s", baseURL, hostname, sitePath)
	var resp siteResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return core.Site{}, err
	}
	return core.Site{ID: resp.ID}, nil
}

func (c *Client) ListDrives(ctx context.Context, siteID, libraryName string) ([]core.DriveInfo, error) {
	url := fmt.Sprintf("%s/sites/%s/drives", baseURL, siteID)
	var resp driveListResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	out := make([]core.DriveInfo, 0, len(resp.Value))
	for _, d := range resp.Value {
		if libraryName != "" && d.Name != libraryName {
			continue
		}
		out = append(out, core.DriveInfo{ID: d.ID, Name: d.Name, WebURL: d.WebURL})
	}
	return out, nil
}

func (c *Client) Download(ctx context.Context, driveID, itemID string) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/drives/%s/items/%s/content", baseURL, driveID, itemID)
	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, core.NotFoundError("Download", fmt.Errorf("item %s not found", itemID))
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, core.TransientNetworkError("Download", fmt.Errorf("download %s: status %d", itemID, resp.StatusCode))
	}
	return resp.Body, nil
}

func (c *Client) TestConnection(ctx context.Context) error {
	if _, err := c.auth.token(ctx); err != nil {
		return err
	}
	_, err := c.ResolveSite(ctx, c.hostname, c.sitePath)
	return err
}

var _ core.GraphClient = (*Client)(nil)
