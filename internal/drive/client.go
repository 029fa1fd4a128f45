// Package drive implements a resilient client for the 115-style cloud
// storage web API: share inspection, path resolution, directory listing,
// and share receive (transfer) operations.
//
// The remote service aggressively throttles and challenges high request
// rates, so every call goes through per-endpoint interval limiters with
// jitter, results are cached with bounded LRU+TTL semantics, identical
// in-flight path resolutions are deduplicated, and only failures classified
// as risk control are retried with exponential backoff.
package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"cloudsub/internal/logging"
)

const (
	defaultBaseURL     = "https://webapi.115.com"
	defaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"
	defaultHTTPTimeout = 30 * time.Second

	defaultMaxShareDepth = 3
	defaultBatchSize     = 20

	pathIDCacheSize = 8000
	pathIDCacheTTL  = time.Hour
	resolvedPathTTL = 2 * time.Hour
	negativePathTTL = 2 * time.Minute

	listingCacheSize = 2000
	listingCacheTTL  = 15 * time.Second
)

// Config describes the drive client configuration.
type Config struct {
	Cookie            string
	BaseURL           string
	UserAgent         string
	HTTPClient        *http.Client
	MaxShareDepth     int
	TransferBatchSize int
	PruneSeasonDirs   bool
	Classifier        RiskClassifier
	Logger            *slog.Logger
}

// Client wraps the cloud storage web API.
type Client struct {
	cookie    string
	userAgent string
	baseURL   *url.URL
	http      *http.Client
	logger    *slog.Logger

	maxShareDepth int
	batchSize     int
	pruneSeasons  bool
	classify      RiskClassifier

	limits   *limiterSet
	pathIDs  *ttlCache[string]
	listings *ttlCache[[]Entry]
	flight   *flightGroup

	mkdirMu    sync.Mutex
	mkdirLocks map[string]*sync.Mutex

	// Receives are serialized; the remote rejects concurrent receive calls
	// on the same account far below its nominal rate limit.
	receiveMu sync.Mutex
}

// New creates a Client from the supplied configuration.
func New(cfg Config) (*Client, error) {
	cookie := strings.TrimSpace(cfg.Cookie)
	if cookie == "" {
		return nil, errors.New("drive: cookie is required")
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("drive: parse base url: %w", err)
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	maxDepth := cfg.MaxShareDepth
	if maxDepth <= 0 {
		maxDepth = defaultMaxShareDepth
	}
	batchSize := cfg.TransferBatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	classify := cfg.Classifier
	if classify == nil {
		classify = DefaultRiskClassifier
	}

	return &Client{
		cookie:        cookie,
		userAgent:     userAgent,
		baseURL:       baseURL,
		http:          httpClient,
		logger:        logging.NewComponentLogger(cfg.Logger, "drive"),
		maxShareDepth: maxDepth,
		batchSize:     batchSize,
		pruneSeasons:  cfg.PruneSeasonDirs,
		classify:      classify,
		limits:        newLimiterSet(),
		pathIDs:       newTTLCache[string](pathIDCacheSize, pathIDCacheTTL),
		listings:      newTTLCache[[]Entry](listingCacheSize, listingCacheTTL),
		flight:        newFlightGroup(),
		mkdirLocks:    make(map[string]*sync.Mutex),
	}, nil
}

// Stats returns per-endpoint call counts since the last reset.
func (c *Client) Stats() map[string]int64 {
	return c.limits.Stats()
}

// ResetStats clears the per-endpoint call counters.
func (c *Client) ResetStats() {
	c.limits.Reset()
}

// CheckLogin verifies the stored session is still accepted by the remote.
func (c *Client) CheckLogin(ctx context.Context) (bool, error) {
	var resp accountInfoResponse
	err := c.getJSON(ctx, endpointAccountInfo, "/my/info", nil, &resp)
	if err != nil {
		if errors.Is(err, ErrAuthExpired) {
			return false, nil
		}
		return false, err
	}
	if id, convErr := resp.Data.UserID.Int64(); convErr == nil && id > 0 {
		return true, nil
	}
	return false, nil
}

func (c *Client) getJSON(ctx context.Context, ep endpoint, path string, query url.Values, out statusReporter) error {
	return c.call(ctx, ep, func() (*http.Request, error) {
		endpointURL := c.baseURL.JoinPath(path)
		if query != nil {
			endpointURL.RawQuery = query.Encode()
		}
		return http.NewRequestWithContext(ctx, http.MethodGet, endpointURL.String(), nil)
	}, out)
}

func (c *Client) postForm(ctx context.Context, ep endpoint, path string, form url.Values, out statusReporter) error {
	return c.call(ctx, ep, func() (*http.Request, error) {
		endpointURL := c.baseURL.JoinPath(path)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL.String(), strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}, out)
}

// call paces the request through the endpoint's limiter, executes it, and
// retries with exponential backoff only when the failure is classified as
// risk control. Any other failure is returned immediately.
func (c *Client) call(ctx context.Context, ep endpoint, build func() (*http.Request, error), out statusReporter) error {
	var lastErr error
	backoff := InitialBackoff

	for attempt := 0; attempt <= MaxRiskRetries; attempt++ {
		if attempt > 0 {
			delay := backoff + time.Duration(rand.Int63n(int64(backoffJitter)))
			c.logger.Warn("risk control, backing off",
				logging.String(logging.FieldEndpoint, string(ep)),
				logging.Int("attempt", attempt),
				logging.Duration("delay", delay),
				logging.Error(lastErr),
			)
			if err := SleepWithContext(ctx, delay); err != nil {
				return err
			}
			backoff *= 2
			if backoff > MaxBackoff {
				backoff = MaxBackoff
			}
		}

		if err := c.limits.wait(ctx, ep); err != nil {
			return err
		}

		req, err := build()
		if err != nil {
			return fmt.Errorf("drive: build %s request: %w", ep, err)
		}
		c.applyHeaders(req)

		resp, err := c.http.Do(req)
		if err != nil {
			if c.classify(err.Error()) {
				lastErr = fmt.Errorf("%w: %s: %v", ErrRiskControl, ep, err)
				continue
			}
			return fmt.Errorf("drive: %s request failed: %w", ep, err)
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("drive: read %s response: %w", ep, readErr)
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %s returned %s", ErrAuthExpired, ep, resp.Status)
		}
		if resp.StatusCode >= 400 {
			message := resp.Status + " " + strings.TrimSpace(string(body))
			if c.classify(message) {
				lastErr = fmt.Errorf("%w: %s: %s", ErrRiskControl, ep, resp.Status)
				continue
			}
			return &APIError{Endpoint: string(ep), Message: message}
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("drive: decode %s response: %w", ep, err)
		}
		if out.succeeded() {
			return nil
		}

		message := out.failureMessage()
		if isAuthMessage(message) {
			return fmt.Errorf("%w: %s: %s", ErrAuthExpired, ep, message)
		}
		if c.classify(message) {
			lastErr = fmt.Errorf("%w: %s: %s", ErrRiskControl, ep, message)
			continue
		}
		return &APIError{Endpoint: string(ep), Message: message, Errno: out.errno()}
	}

	return lastErr
}

func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set("Cookie", c.cookie)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
}
