package config

import (
	"fmt"
	"strings"
)

// Default returns the baseline configuration before any file overrides.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: "~/.local/share/cloudsub",
			LogDir:   "~/.local/share/cloudsub/logs",
		},
		Drive: Drive{
			BaseURL:           "https://webapi.115.com",
			RequestTimeout:    30,
			MaxShareDepth:     3,
			TransferBatchSize: 20,
			PruneSeasonDirs:   true,
		},
		Library: Library{
			MoviesDir: "/media/movies",
			TVDir:     "/media/tv",
		},
		Search: Search{
			Order: []string{"nullbr", "hdhive", "pansou"},
			Pansou: Pansou{
				Channels: []string{"tgsearchers115"},
			},
		},
		Sync: Sync{
			MaxTransferPerSync: 10,
			MinMovieSizeMB:     500,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			RunSummary:     true,
			Errors:         true,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return err
	}

	c.Drive.Cookie = strings.TrimSpace(c.Drive.Cookie)
	c.Drive.BaseURL = strings.TrimRight(strings.TrimSpace(c.Drive.BaseURL), "/")
	if c.Drive.RequestTimeout <= 0 {
		c.Drive.RequestTimeout = 30
	}
	if c.Drive.MaxShareDepth <= 0 {
		c.Drive.MaxShareDepth = 3
	}
	if c.Drive.TransferBatchSize <= 0 {
		c.Drive.TransferBatchSize = 20
	}

	c.Library.MoviesDir = normalizeRemotePath(c.Library.MoviesDir)
	c.Library.TVDir = normalizeRemotePath(c.Library.TVDir)

	order := make([]string, 0, len(c.Search.Order))
	for _, name := range c.Search.Order {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			order = append(order, name)
		}
	}
	c.Search.Order = order

	c.Search.Pansou.BaseURL = strings.TrimRight(strings.TrimSpace(c.Search.Pansou.BaseURL), "/")
	c.Search.Nullbr.BaseURL = strings.TrimRight(strings.TrimSpace(c.Search.Nullbr.BaseURL), "/")
	c.Search.HDHive.BaseURL = strings.TrimRight(strings.TrimSpace(c.Search.HDHive.BaseURL), "/")

	if c.Sync.MinMovieSizeMB <= 0 {
		c.Sync.MinMovieSizeMB = 500
	}

	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)

	return nil
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return fmt.Errorf("config: paths.state_dir is required")
	}
	if c.Sync.MaxTransferPerSync < 0 {
		return fmt.Errorf("config: sync.max_transfer_per_sync must be >= 0")
	}
	if !strings.HasPrefix(c.Library.MoviesDir, "/") {
		return fmt.Errorf("config: library.movies_dir must be an absolute remote path")
	}
	if !strings.HasPrefix(c.Library.TVDir, "/") {
		return fmt.Errorf("config: library.tv_dir must be an absolute remote path")
	}
	for _, name := range c.Search.Order {
		switch name {
		case "pansou", "nullbr", "hdhive":
		default:
			return fmt.Errorf("config: search.order contains unknown backend %q", name)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("config: logging.format must be console or json")
	}
	return nil
}

func normalizeRemotePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}
