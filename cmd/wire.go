package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mvetter/stewardflow/internal/adapters/backend/httpapi"
	chainstore "github.com/mvetter/stewardflow/internal/adapters/kv/chain"
	progressrender "github.com/mvetter/stewardflow/internal/adapters/render/progress"
	tomlrepo "github.com/mvetter/stewardflow/internal/adapters/repo/toml"
	"github.com/mvetter/stewardflow/internal/adapters/stream/sse"
	"github.com/mvetter/stewardflow/internal/application"
	"github.com/mvetter/stewardflow/internal/cache"
	"github.com/mvetter/stewardflow/internal/domain"
	"github.com/mvetter/stewardflow/internal/ports"
)

const (
	configDir         = ".stewardflow"
	sessionCacheTTL   = 30 * time.Second
	approvalsCacheTTL = 5 * time.Minute
	phaseHookTimeout  = 10 * time.Second
	defaultBackendURL = "http://127.0.0.1:8787"
	defaultListenAddr = "127.0.0.1:8787"
)

type app struct {
	logger     *slog.Logger
	backend    ports.WorkflowBackend
	stream     ports.EventStream
	cache      *cache.Store
	sessions   *application.SessionService
	approvals  *application.ApprovalService
	progress   *application.ProgressService
	listenAddr string
}

func wireApp() (*app, error) {
	cfg := viper.New()
	cfg.SetEnvPrefix("SW")
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	cfg.SetDefault("backend.url", defaultBackendURL)
	cfg.SetDefault("devserver.listen", defaultListenAddr)
	cfg.SetDefault("cache.db_path", filepath.Join(homeDir, configDir, "cache.db"))
	cfg.SetDefault("cache.file_root", filepath.Join(homeDir, configDir, "cache"))
	cfg.SetDefault("approvals.minimum_required", domain.DefaultMinimumApprovals)
	cfg.SetDefault("user", "")
	cfg.SetDefault("log.level", "warn")

	logger := newLogger(cfg.GetString("log.level"))

	repo, err := tomlrepo.NewRepository(cfg)
	if err != nil {
		return nil, fmt.Errorf("wire session registry: %w", err)
	}

	durable, err := chainstore.NewSQLiteFirstWithFileFallback(
		cfg.GetString("cache.db_path"),
		cfg.GetString("cache.file_root"),
	)
	if err != nil {
		// The chain degrades to the file tier on its own.
		logger.Warn("sqlite cache tier unavailable", "error", err)
	}

	store := cache.NewStore(
		cache.WithDurable(durable),
		cache.WithLogger(logger),
	)
	store.Notify(func(key string) {
		logger.Debug("cache mutated", "key", key)
	})

	baseURL := cfg.GetString("backend.url")
	backend := httpapi.NewClient(baseURL)
	stream := sse.NewSubscriber(baseURL, sse.WithLogger(logger))

	clock := ports.SystemClock{}
	sessions := application.NewSessionService(backend, repo, clock)
	approvals := application.NewApprovalService(backend, clock,
		application.WithMinimumRequired(cfg.GetInt("approvals.minimum_required")),
		application.WithUserID(cfg.GetString("user")),
		application.WithApprovalLogger(logger),
	)

	a := &app{
		logger:     logger,
		backend:    backend,
		stream:     stream,
		cache:      store,
		sessions:   sessions,
		approvals:  approvals,
		listenAddr: cfg.GetString("devserver.listen"),
	}

	a.progress = application.NewProgressService(stream,
		application.WithProgressLogger(logger),
		application.WithPhaseChangeFunc(a.refreshCachedSession),
	)

	return a, nil
}

// refreshCachedSession invalidates the cached snapshot for the session the
// progress service is bound to and prefetches it for the new phase.
func (a *app) refreshCachedSession(previous, current domain.Phase) {
	id := a.progress.SessionID()
	if id == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), phaseHookTimeout)
	defer cancel()

	a.cache.Clear(ctx, sessionCacheKey(id))
	cache.Prefetch(ctx, a.cache, []cache.PrefetchEntry{
		{
			Key: sessionCacheKey(id),
			TTL: sessionCacheTTL,
			Producer: func(ctx context.Context) (any, error) {
				return a.backend.GetSession(ctx, id)
			},
		},
	})
	a.logger.Debug("refreshed cached session snapshot",
		"session_id", string(id), "from", string(previous), "to", string(current))
}

func sessionCacheKey(id domain.SessionID) string {
	return "session:" + string(id) + ":snapshot"
}

func approvalsCacheKey(id domain.SessionID) string {
	return "session:" + string(id) + ":approvals"
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// renderOptionsFor fills the render header from the local registry when the
// session is known to this machine.
func (a *app) renderOptionsFor(ctx context.Context, id domain.SessionID) progressrender.RenderOptions {
	opts := progressrender.RenderOptions{SessionID: id}
	if record, err := a.sessions.List(ctx); err == nil {
		for _, r := range record {
			if r.ID == id {
				opts.StudyName = r.StudyName
				break
			}
		}
	}
	return opts
}
