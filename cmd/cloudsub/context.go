package main

import (
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"cloudsub/internal/config"
	"cloudsub/internal/discovery"
	"cloudsub/internal/drive"
	"cloudsub/internal/history"
	"cloudsub/internal/logging"
	"cloudsub/internal/notifications"
	"cloudsub/internal/subscription"
	"cloudsub/internal/syncer"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// newLogger builds the process logger. A configured console format degrades
// to JSON when stdout is not a terminal, so piped output stays parseable.
func (c *commandContext) newLogger(cfg *config.Config) (*slog.Logger, error) {
	format := cfg.Logging.Format
	if format == "console" && !stdoutIsTerminal() {
		format = "json"
	}
	return logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: format,
	})
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (c *commandContext) driveClient(cfg *config.Config, logger *slog.Logger) (*drive.Client, error) {
	timeout := time.Duration(cfg.Drive.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return drive.New(drive.Config{
		Cookie:            cfg.Drive.Cookie,
		BaseURL:           cfg.Drive.BaseURL,
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxShareDepth:     cfg.Drive.MaxShareDepth,
		TransferBatchSize: cfg.Drive.TransferBatchSize,
		PruneSeasonDirs:   cfg.Drive.PruneSeasonDirs,
		Logger:            logger,
	})
}

// engine bundles the collaborators a full sync run needs.
type engine struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   *drive.Client
	store    *subscription.Store
	ledger   *history.Ledger
	notifier notifications.Service
	syncer   *syncer.Syncer
}

func (e *engine) close() {
	if e.ledger != nil {
		_ = e.ledger.Close()
	}
	if e.store != nil {
		_ = e.store.Close()
	}
}

func (c *commandContext) buildEngine() (*engine, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.newLogger(cfg)
	if err != nil {
		return nil, err
	}
	client, err := c.driveClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	store, err := subscription.Open(cfg)
	if err != nil {
		return nil, err
	}
	ledger, err := history.Open(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	notifier := notifications.NewService(cfg)

	s, err := syncer.New(syncer.Options{
		Config:   cfg,
		Client:   client,
		Registry: discovery.NewRegistry(cfg.Search, logger),
		Store:    store,
		History:  ledger,
		Notifier: notifier,
		Logger:   logger,
	})
	if err != nil {
		_ = ledger.Close()
		_ = store.Close()
		return nil, err
	}

	return &engine{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		store:    store,
		ledger:   ledger,
		notifier: notifier,
		syncer:   s,
	}, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
