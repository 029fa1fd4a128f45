package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"

	"cloudsub/internal/config"
	"cloudsub/internal/logging"
	"cloudsub/internal/medianame"
)

// pansou queries a self-hosted full-text share aggregator. Results come
// from scraped public channels, so titles are noisy and matching against
// the requested title is best effort.
type pansou struct {
	baseURL  string
	username string
	password string
	channels []string
	http     *http.Client
	logger   *slog.Logger

	mu    sync.Mutex
	token string
}

func newPansou(cfg config.Pansou, httpClient *http.Client, logger *slog.Logger) Backend {
	if !cfg.Enabled || strings.TrimSpace(cfg.BaseURL) == "" {
		return nil
	}
	return &pansou{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: strings.TrimSpace(cfg.Username),
		password: cfg.Password,
		channels: cfg.Channels,
		http:     httpClient,
		logger:   logging.NewComponentLogger(logger, "pansou"),
	}
}

func (p *pansou) Name() string { return "pansou" }

type pansouSearchResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Results []pansouResult `json:"results"`
	} `json:"data"`
}

type pansouResult struct {
	Title    string       `json:"title"`
	Datetime string       `json:"datetime"`
	Links    []pansouLink `json:"links"`
}

type pansouLink struct {
	Type     string `json:"type"`
	URL      string `json:"url"`
	Password string `json:"password"`
}

var htmlTagRe = regexp.MustCompile(`<[^>]+>`)

func (p *pansou) Search(ctx context.Context, req Request) ([]Resource, error) {
	keyword := strings.TrimSpace(req.Title)
	if keyword == "" {
		return nil, nil
	}

	payload := map[string]any{
		"kw":          keyword,
		"res":         "results",
		"src":         "all",
		"cloud_types": []string{"115"},
	}
	if len(p.channels) > 0 {
		payload["channels"] = p.channels
	}

	var resp pansouSearchResponse
	if err := p.postJSON(ctx, "/api/search", payload, &resp, true); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("pansou: search failed: %s", resp.Message)
	}

	results := resp.Data.Results
	sort.SliceStable(results, func(i, j int) bool {
		// ISO timestamps compare correctly as strings; newest first.
		return results[i].Datetime > results[j].Datetime
	})

	wantTitle := medianame.Normalize(keyword)
	var resources []Resource
	for _, result := range results {
		title := strings.TrimSpace(htmlTagRe.ReplaceAllString(result.Title, ""))
		if !strings.Contains(medianame.Normalize(title), wantTitle) {
			continue
		}
		for _, link := range result.Links {
			if !strings.EqualFold(link.Type, "115") || strings.TrimSpace(link.URL) == "" {
				continue
			}
			shareURL := link.URL
			if link.Password != "" && !strings.Contains(shareURL, "password=") {
				separator := "?"
				if strings.Contains(shareURL, "?") {
					separator = "&"
				}
				shareURL += separator + "password=" + link.Password
			}
			resources = append(resources, Resource{
				Source:   p.Name(),
				ShareURL: shareURL,
				Title:    title,
			})
		}
	}
	return resources, nil
}

// postJSON sends a request with the cached bearer token, refreshing it once
// on a 401 when credentials are configured.
func (p *pansou) postJSON(ctx context.Context, path string, payload any, out any, allowRefresh bool) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("pansou: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("pansou: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := p.currentToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("pansou: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && allowRefresh && p.username != "" {
		if err := p.login(ctx); err != nil {
			return err
		}
		return p.postJSON(ctx, path, payload, out, false)
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("pansou: %s returned %s: %s", path, resp.Status, strings.TrimSpace(string(data)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("pansou: decode response: %w", err)
	}
	return nil
}

func (p *pansou) login(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"username": p.username,
		"password": p.password,
	})
	if err != nil {
		return fmt.Errorf("pansou: encode login: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("pansou: build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("pansou: login failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("pansou: login returned %s", resp.Status)
	}

	var payload struct {
		Token string `json:"token"`
		Data  struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("pansou: decode login response: %w", err)
	}
	token := payload.Token
	if token == "" {
		token = payload.Data.Token
	}
	if token == "" {
		return fmt.Errorf("pansou: login response missing token")
	}

	p.mu.Lock()
	p.token = token
	p.mu.Unlock()
	p.logger.Debug("refreshed pansou token")
	return nil
}

func (p *pansou) currentToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}
