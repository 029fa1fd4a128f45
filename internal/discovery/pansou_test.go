package discovery_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloudsub/internal/config"
	"cloudsub/internal/discovery"
)

func newPansouBackend(t *testing.T, handler http.Handler, username string) discovery.Backend {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	registry := discovery.NewRegistry(config.Search{
		Order: []string{"pansou"},
		Pansou: config.Pansou{
			Enabled:  true,
			BaseURL:  server.URL,
			Username: username,
			Password: "secret",
			Channels: []string{"chan115"},
		},
	}, nil)
	backends := registry.Backends()
	if len(backends) != 1 {
		t.Fatalf("expected one backend, got %d", len(backends))
	}
	return backends[0]
}

func pansouResults(results ...map[string]any) map[string]any {
	return map[string]any{
		"code": 0,
		"data": map[string]any{"results": results},
	}
}

func TestPansouSearchNormalizesResults(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/search", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["kw"] != "Dark City" {
			t.Errorf("kw = %v", body["kw"])
		}
		payload := pansouResults(
			map[string]any{
				"title":    "<b>Dark City</b> 2160p",
				"datetime": "2026-07-01T10:00:00Z",
				"links": []map[string]any{
					{"type": "115", "url": "https://115.com/s/swold", "password": "ab12"},
				},
			},
			map[string]any{
				"title":    "Dark City 1080p",
				"datetime": "2026-08-01T10:00:00Z",
				"links": []map[string]any{
					{"type": "115", "url": "https://115.com/s/swnew"},
					{"type": "aliyun", "url": "https://alipan.example/s/x"},
				},
			},
			map[string]any{
				"title":    "Unrelated Show",
				"datetime": "2026-08-10T10:00:00Z",
				"links": []map[string]any{
					{"type": "115", "url": "https://115.com/s/swother"},
				},
			},
		)
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Fatal(err)
		}
	})
	backend := newPansouBackend(t, mux, "")

	resources, err := backend.Search(context.Background(), discovery.Request{Title: "Dark City"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resources) != 2 {
		t.Fatalf("resources = %v, want 2", resources)
	}
	// Newest first, non-115 links and unrelated titles dropped.
	if resources[0].ShareURL != "https://115.com/s/swnew" {
		t.Fatalf("first = %q", resources[0].ShareURL)
	}
	if !strings.Contains(resources[1].ShareURL, "password=ab12") {
		t.Fatalf("second = %q, want password appended", resources[1].ShareURL)
	}
	if strings.Contains(resources[1].Title, "<b>") {
		t.Fatalf("title not stripped: %q", resources[1].Title)
	}
}

func TestPansouRefreshesTokenOn401(t *testing.T) {
	loggedIn := false
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		loggedIn = true
		if err := json.NewEncoder(w).Encode(map[string]any{"token": "fresh-token"}); err != nil {
			t.Fatal(err)
		}
	})
	mux.HandleFunc("/api/search", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		payload := pansouResults(map[string]any{
			"title":    "Dark City",
			"datetime": "2026-08-01T10:00:00Z",
			"links": []map[string]any{
				{"type": "115", "url": "https://115.com/s/sw1"},
			},
		})
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Fatal(err)
		}
	})
	backend := newPansouBackend(t, mux, "user")

	resources, err := backend.Search(context.Background(), discovery.Request{Title: "Dark City"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !loggedIn {
		t.Fatal("expected token refresh")
	}
	if len(resources) != 1 {
		t.Fatalf("resources = %v", resources)
	}
}
