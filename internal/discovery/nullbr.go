package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"cloudsub/internal/config"
	"cloudsub/internal/logging"
)

// nullbr looks shares up by TMDB id, so its results are exact-identity and
// rank first in the default priority order.
type nullbr struct {
	baseURL string
	appID   string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

func newNullbr(cfg config.Nullbr, httpClient *http.Client, logger *slog.Logger) Backend {
	if !cfg.Enabled || strings.TrimSpace(cfg.BaseURL) == "" ||
		strings.TrimSpace(cfg.AppID) == "" || strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	return &nullbr{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		appID:   strings.TrimSpace(cfg.AppID),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		http:    httpClient,
		logger:  logging.NewComponentLogger(logger, "nullbr"),
	}
}

func (n *nullbr) Name() string { return "nullbr" }

type nullbrResponse struct {
	Items []nullbrItem `json:"115"`
}

type nullbrItem struct {
	Title      string   `json:"title"`
	ShareLink  string   `json:"share_link"`
	SeasonList []string `json:"season_list"`
}

func (n *nullbr) Search(ctx context.Context, req Request) ([]Resource, error) {
	if req.TMDBID <= 0 {
		return nil, nil
	}

	kind := "movie"
	if req.Type == Series {
		kind = "tv"
	}
	path := fmt.Sprintf("/%s/%d/115", kind, req.TMDBID)

	var payload nullbrResponse
	if err := n.getJSON(ctx, path, &payload); err != nil {
		return nil, err
	}

	seasonTag := fmt.Sprintf("S%d", req.Season)
	seasonTagPadded := fmt.Sprintf("S%02d", req.Season)

	var resources []Resource
	for _, item := range payload.Items {
		if strings.TrimSpace(item.ShareLink) == "" {
			continue
		}
		if req.Type == Series && req.Season > 0 && len(item.SeasonList) > 0 {
			if !containsFold(item.SeasonList, seasonTag) && !containsFold(item.SeasonList, seasonTagPadded) {
				continue
			}
		}
		resources = append(resources, Resource{
			Source:   n.Name(),
			ShareURL: item.ShareLink,
			Title:    item.Title,
		})
	}
	return resources, nil
}

// CheckConnection probes the API with a known movie id.
func (n *nullbr) CheckConnection(ctx context.Context) error {
	var payload nullbrResponse
	return n.getJSON(ctx, "/movie/278/115", &payload)
}

func (n *nullbr) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("nullbr: build request: %w", err)
	}
	req.Header.Set("X-APP-ID", n.appID)
	req.Header.Set("X-API-KEY", n.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("nullbr: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// No shares indexed for this id.
		return nil
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("nullbr: %s returned %s: %s", path, resp.Status, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("nullbr: decode response: %w", err)
	}
	return nil
}

func containsFold(values []string, want string) bool {
	for _, value := range values {
		if strings.EqualFold(strings.TrimSpace(value), want) {
			return true
		}
	}
	return false
}
