package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"cloudsub/internal/config"
	"cloudsub/internal/logging"
)

// hdhive queries a cookie-authenticated resource index. Only free 115
// entries are usable; each resource's share link is fetched individually.
type hdhive struct {
	baseURL string
	cookie  string
	http    *http.Client
	logger  *slog.Logger
}

func newHDHive(cfg config.HDHive, httpClient *http.Client, logger *slog.Logger) Backend {
	if !cfg.Enabled || strings.TrimSpace(cfg.BaseURL) == "" || strings.TrimSpace(cfg.Cookie) == "" {
		return nil
	}
	return &hdhive{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		cookie:  strings.TrimSpace(cfg.Cookie),
		http:    httpClient,
		logger:  logging.NewComponentLogger(logger, "hdhive"),
	}
}

func (h *hdhive) Name() string { return "hdhive" }

type hdhiveMediaResponse struct {
	Data struct {
		ID int64 `json:"id"`
	} `json:"data"`
}

type hdhiveResourcesResponse struct {
	Data []hdhiveResource `json:"data"`
}

type hdhiveResource struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	CloudType string `json:"cloud_type"`
	IsFree    bool   `json:"is_free"`
}

type hdhiveLinkResponse struct {
	Data struct {
		URL      string `json:"url"`
		Password string `json:"password"`
	} `json:"data"`
}

func (h *hdhive) Search(ctx context.Context, req Request) ([]Resource, error) {
	if req.TMDBID <= 0 {
		return nil, nil
	}

	kind := "movie"
	if req.Type == Series {
		kind = "tv"
	}
	query := url.Values{
		"tmdb_id": {strconv.FormatInt(req.TMDBID, 10)},
		"type":    {kind},
	}
	var media hdhiveMediaResponse
	if err := h.getJSON(ctx, "/api/v1/media?"+query.Encode(), &media); err != nil {
		return nil, err
	}
	if media.Data.ID == 0 {
		return nil, nil
	}

	var listing hdhiveResourcesResponse
	path := fmt.Sprintf("/api/v1/media/%d/resources", media.Data.ID)
	if req.Type == Series && req.Season > 0 {
		path += "?season=" + strconv.Itoa(req.Season)
	}
	if err := h.getJSON(ctx, path, &listing); err != nil {
		return nil, err
	}

	var resources []Resource
	for _, entry := range listing.Data {
		if !entry.IsFree || !strings.EqualFold(entry.CloudType, "115") {
			continue
		}
		var link hdhiveLinkResponse
		if err := h.getJSON(ctx, fmt.Sprintf("/api/v1/resource/%d/link", entry.ID), &link); err != nil {
			h.logger.Warn("fetch resource link failed",
				logging.Int64("resource_id", entry.ID),
				logging.Error(err),
			)
			continue
		}
		if strings.TrimSpace(link.Data.URL) == "" {
			continue
		}
		shareURL := link.Data.URL
		if link.Data.Password != "" && !strings.Contains(shareURL, "password=") {
			separator := "?"
			if strings.Contains(shareURL, "?") {
				separator = "&"
			}
			shareURL += separator + "password=" + link.Data.Password
		}
		resources = append(resources, Resource{
			Source:   h.Name(),
			ShareURL: shareURL,
			Title:    entry.Title,
		})
	}
	return resources, nil
}

func (h *hdhive) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("hdhive: build request: %w", err)
	}
	req.Header.Set("Cookie", h.cookie)
	req.Header.Set("Accept", "application/json")

	resp, err := h.http.Do(req)
	if err != nil {
		return fmt.Errorf("hdhive: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("hdhive: %s returned %s: %s", path, resp.Status, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("hdhive: decode response: %w", err)
	}
	return nil
}
