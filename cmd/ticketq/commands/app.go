package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ylchen07/ticketq/internal/atlassian"
	"github.com/ylchen07/ticketq/internal/cache"
	"github.com/ylchen07/ticketq/internal/config"
	"github.com/ylchen07/ticketq/internal/jira"
	"github.com/ylchen07/ticketq/internal/query"
	"github.com/ylchen07/ticketq/internal/refresh"
	"github.com/ylchen07/ticketq/internal/ticket"
	"github.com/ylchen07/ticketq/pkg/logging"
)

// app holds everything built from configuration.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      cache.Store
	locks      cache.LockStore
	source     refresh.Source
	urls       ticket.URLBuilder
	dispatcher *query.Dispatcher
	closers    []io.Closer
}

func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	a := &app{cfg: cfg}

	logOut := io.Writer(os.Stderr)
	if cfg.LogFile != "" {
		f, err := openLogFile(cfg.LogFile)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, f)
		logOut = f
	}
	a.logger = logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: logOut})

	site := ensureHTTPS(cfg.Jira.Site)
	a.urls = ticket.NewURLBuilder(site)

	a.dispatcher = query.NewDispatcher(a.urls)
	a.dispatcher.NewDefault = cfg.Query.NewDefault
	a.dispatcher.Ranker.MinLength = cfg.Query.MinLength
	a.dispatcher.Ranker.MaxResults = cfg.Query.MaxResults

	if err := a.openStores(ctx); err != nil {
		a.Close()
		return nil, err
	}

	fetcher, err := newFetcher(cfg.Jira.Client, site, cfg.Jira.ServiceCredentials, userAgent())
	if err != nil {
		a.Close()
		return nil, err
	}
	a.source = &ticket.Aggregator{
		Fetcher:    fetcher,
		Normalizer: ticket.Normalizer{URLs: a.urls, Now: time.Now},
		PageSize:   cfg.Jira.PageSize,
		Logger:     a.logger,
	}

	return a, nil
}

func (a *app) openStores(ctx context.Context) error {
	c := a.cfg.Cache
	switch c.Backend {
	case config.BackendFile:
		store, err := cache.NewFileStore(c.Dir)
		if err != nil {
			return err
		}
		locks, err := cache.NewFileLock(c.LockPath)
		if err != nil {
			return err
		}
		a.store, a.locks = store, locks
	case config.BackendSQLite:
		store, err := cache.NewSQLiteStore(c.SQLitePath)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, store)
		a.store, a.locks = store, store
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
		store := cache.NewRedisStore(client, c.Redis.Prefix)
		a.closers = append(a.closers, store)
		if err := store.Ping(ctx); err != nil {
			return err
		}
		a.store, a.locks = store, store
	case config.BackendMemory:
		store := cache.NewMemoryStore()
		a.store, a.locks = store, store
	default:
		return fmt.Errorf("commands: unknown cache backend %q", c.Backend)
	}

	a.logger.Debug("cache backend ready", slog.String("backend", c.Backend))
	return nil
}

func (a *app) coordinator(scheduler refresh.Scheduler) (*refresh.Coordinator, error) {
	return refresh.New(refresh.Options{
		Store:          a.store,
		Locks:          a.locks,
		Source:         a.source,
		Scheduler:      scheduler,
		Logger:         a.logger,
		Key:            a.cfg.Cache.Key,
		JQL:            a.cfg.Jira.SearchJQL(),
		Limit:          a.cfg.Jira.Limit,
		TTL:            a.cfg.Cache.TTL,
		LockStaleAfter: a.cfg.Cache.LockStaleAfter,
		RefreshOnHit:   refresh.HitPolicy(a.cfg.Cache.RefreshOnHit),
	})
}

// Close releases stores and the log file.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && a.logger != nil {
			a.logger.Warn("close failed", slog.Any("error", err))
		}
	}
	a.closers = nil
}

func newFetcher(client, site string, creds config.ServiceCredentials, agent string) (ticket.Fetcher, error) {
	switch client {
	case config.ClientSDK:
		sdk, err := jira.NewClient(site, creds, jira.WithUserAgent(agent))
		if err != nil {
			return nil, err
		}
		return jira.NewSDKSearcher(sdk), nil
	case config.ClientREST, "":
		httpClient, err := atlassian.NewHTTPClient(site, creds)
		if err != nil {
			return nil, err
		}
		httpClient.SetUserAgent(agent)
		return jira.NewService(httpClient), nil
	default:
		return nil, errors.New("commands: unknown jira client " + client)
	}
}

func userAgent() string {
	return "ticketq/" + version
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("commands: create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("commands: open log file: %w", err)
	}
	return f, nil
}

func ensureHTTPS(site string) string {
	trimmed := strings.TrimSpace(site)
	if trimmed == "" {
		return ""
	}

	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return strings.TrimRight(trimmed, "/")
	}

	return "https://" + strings.TrimRight(trimmed, "/")
}
