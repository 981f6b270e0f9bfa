package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soaringjerry/Wellbeing/internal/api"
	"github.com/soaringjerry/Wellbeing/internal/config"
	dbstore "github.com/soaringjerry/Wellbeing/internal/db"
	"github.com/soaringjerry/Wellbeing/internal/logger"
	"github.com/soaringjerry/Wellbeing/internal/middleware"
	"github.com/soaringjerry/Wellbeing/internal/monitoring"
	"github.com/soaringjerry/Wellbeing/internal/services"
	"github.com/soaringjerry/Wellbeing/internal/utils"
)

func newServeCommand(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *cfgPath)
		},
	}
}

// openStore returns the configured Store. The sqlite driver first imports a
// legacy snapshot when the database file does not exist yet.
func openStore(cfg config.StorageConfig, log *zap.Logger) (api.Store, error) {
	if cfg.Driver == "sqlite" {
		if err := MigrateIfNeeded(cfg.SnapshotPath, cfg.SQLitePath, cfg.MigrationsDir, log); err != nil {
			return nil, fmt.Errorf("legacy migration: %w", err)
		}
		return dbstore.NewStore(cfg.SQLitePath, cfg.MigrationsDir)
	}
	return api.NewMemoryStore(cfg.SnapshotPath)
}

// openDrafts returns nil when drafts live in the main store.
func openDrafts(cfg config.DraftsConfig) (services.DraftStore, error) {
	if cfg.Driver == "file" {
		return dbstore.NewFileDraftStore(cfg.Dir)
	}
	return nil, nil
}

type server struct {
	handler http.Handler
	router  *api.Router
	limiter *middleware.RateLimiter
}

func buildServer(cfg *config.Config, log *zap.Logger, metrics *monitoring.Metrics, store api.Store, drafts services.DraftStore) (*server, error) {
	formula, err := services.ParseOverallFormula(cfg.Scoring.OverallFormula)
	if err != nil {
		return nil, err
	}
	jwt := middleware.NewJWT(cfg.Auth.JWTSecret)
	obs := services.Observability{Log: log, Metrics: metrics}

	rt := api.NewRouter(api.Options{
		Store:          store,
		Drafts:         drafts,
		Formula:        formula,
		HistoryTimeout: cfg.History.Timeout,
		Signer:         jwt.Sign,
		TokenTTL:       cfg.Auth.TokenTTL,
		Recommendation: services.RecommendationOptions{
			URL:         cfg.Recommendation.URL,
			APIKey:      cfg.Recommendation.APIKey,
			Model:       cfg.Recommendation.Model,
			Timeout:     cfg.Recommendation.Timeout,
			Concurrency: cfg.Recommendation.Concurrency,
		},
		HTTPClient:    &http.Client{Timeout: cfg.Recommendation.Timeout},
		Observability: obs,
	})

	build := versionInfo(cfg.Server)
	mux := http.NewServeMux()
	rt.Register(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		locale := middleware.LocaleFromContext(r.Context())
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":         true,
			"name":       "Wellbeing API",
			"locale":     locale,
			"msg":        utils.T(locale, "health.ok"),
			"commit":     build["commit"],
			"build_time": build["build_time"],
		})
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(build)
	})
	mux.Handle("/metrics", metrics.Handler())

	// Frontend: static files when configured, else a dev proxy to the frontend server.
	if cfg.Server.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.Server.StaticDir)))
	} else if cfg.Server.DevFrontendURL != "" {
		u, err := url.Parse(cfg.Server.DevFrontendURL)
		if err != nil {
			return nil, fmt.Errorf("server.dev_frontend_url %q: %w", cfg.Server.DevFrontendURL, err)
		}
		rp := httputil.NewSingleHostReverseProxy(u)
		rp.ModifyResponse = func(res *http.Response) error {
			res.Header.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			res.Header.Set("Pragma", "no-cache")
			res.Header.Set("Expires", "0")
			return nil
		}
		mux.Handle("/", rp)
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window, cfg.Server.TrustedProxies...)

	var h http.Handler = metrics.Middleware(rt.RouteLabel, mux)
	h = limiter.Middleware(h)
	h = middleware.AccessLog(log)(h)
	h = jwt.WithAuth(h)
	h = middleware.LocaleMiddleware(h)
	h = middleware.NoStore(h)
	h = middleware.CORS(cfg.Server.CORSOrigins)(h)
	h = middleware.SecureHeaders(h)

	return &server{handler: h, router: rt, limiter: limiter}, nil
}

func versionInfo(cfg config.ServerConfig) map[string]string {
	c, b := commit, buildTime
	if cfg.Commit != "" {
		c = cfg.Commit
	}
	if cfg.BuildTime != "" {
		b = cfg.BuildTime
	}
	return map[string]string{"commit": c, "build_time": b}
}

// janitor drops idle lifecycles and rate limiter entries until ctx ends.
func (s *server) janitor(ctx context.Context, cfg config.SessionsConfig, log *zap.Logger) {
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = 2 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned := s.router.Assessments().Prune(idle)
			swept := s.limiter.Sweep(10 * time.Minute)
			if pruned > 0 || swept > 0 {
				log.Debug("janitor sweep", zap.Int("sessions", pruned), zap.Int("clients", swept))
			}
		}
	}
}

func runServe(ctx context.Context, cfgPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log, cfg.Server.Mode)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	store, err := openStore(cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			log.Warn("close store", zap.Error(cerr))
		}
	}()
	drafts, err := openDrafts(cfg.Drafts)
	if err != nil {
		return fmt.Errorf("open drafts: %w", err)
	}

	srv, err := buildServer(cfg, log, monitoring.New(), store, drafts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go srv.janitor(ctx, cfg.Sessions, log)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("wellbeing server listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("storage", cfg.Storage.Driver),
			zap.String("drafts", cfg.Drafts.Driver),
			zap.String("formula", cfg.Scoring.OverallFormula))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
