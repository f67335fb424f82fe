package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/samlbridge/samlbridge/pkg/config"
	"github.com/samlbridge/samlbridge/pkg/httputil"
	"github.com/samlbridge/samlbridge/pkg/identity"
	"github.com/samlbridge/samlbridge/pkg/idp"
	"github.com/samlbridge/samlbridge/pkg/login"
	"github.com/samlbridge/samlbridge/pkg/observability"
	"github.com/samlbridge/samlbridge/pkg/rolemap"
	"github.com/samlbridge/samlbridge/pkg/session"
)

func main() {
	startupLog := setupStartupLogger()
	startupLog.Info("Starting SAML Bridge")

	cfg, err := config.LoadConfig()
	if err != nil {
		startupLog.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(observability.ParseLogLevel(cfg.Observability.LogLevel), os.Stdout)

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	db, err := sql.Open("postgres", cfg.Storage.PostgresURL)
	if err != nil {
		startupLog.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		startupLog.Fatalf("Failed to ping database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	accountStore := identity.NewPostgresStore(db)
	if err := accountStore.EnsureSchema(ctx); err != nil {
		startupLog.Fatalf("Failed to ensure identity schema: %v", err)
	}

	sessionStore, sweeper, err := buildSessionStore(ctx, cfg, db)
	if err != nil {
		startupLog.Fatalf("Failed to set up session store: %v", err)
	}
	sessions := session.NewManager(sessionStore, cfg.Storage.SessionTTL)

	rules, issues := rolemap.Parse(cfg.Roles.Population)
	reportParseIssues(issues, metrics, logger)

	resolver := identity.NewResolver(accountStore, accountStore, identity.ResolverConfig{
		RegisterUsers:    cfg.Identity.RegisterUsers,
		AutoLinkExisting: cfg.Identity.AutoLinkExisting,
	}, logger)
	synchronizer := identity.NewSynchronizer(accountStore, identity.SyncConfig{
		SyncUsername:      cfg.Identity.SyncUsername,
		SyncEmail:         cfg.Identity.SyncEmail,
		UsernameAttribute: cfg.Identity.UsernameAttribute,
		EmailAttribute:    cfg.Identity.EmailAttribute,
	}, logger)

	coordinator := login.NewCoordinator(login.Config{
		UniqueIDAttribute:       cfg.Identity.UniqueIDAttribute,
		EvaluateRolesEveryLogin: cfg.Roles.EvalEveryTime,
		Rules:                   rules,
	}, resolver, synchronizer, accountStore, sessions, metrics, logger)

	if cfg.Roles.PopulationFile != "" {
		watcher, err := config.NewWatcher(cfg.Roles.PopulationFile, func(rules rolemap.RuleSet, issues []rolemap.ParseIssue) {
			reportParseIssues(issues, metrics, logger)
			coordinator.UpdateRules(rules)
		}, logger)
		if err != nil {
			startupLog.Fatalf("Failed to watch role population file: %v", err)
		}
		defer watcher.Close()
	}

	var provider login.IdPClient
	if cfg.SAML.Activated {
		provider, err = idp.NewSAMLProvider(idp.Config{
			IdPEntityID:  cfg.SAML.IdPEntityID,
			SSOURL:       cfg.SAML.SSOURL,
			SLOURL:       cfg.SAML.SLOURL,
			Certificate:  cfg.SAML.Certificate,
			PrivateKey:   cfg.SAML.PrivateKey,
			SPBaseURL:    cfg.SAML.SPBaseURL,
			ACSPath:      cfg.SAML.ACSPath,
			NameIDFormat: cfg.SAML.NameIDFormat,
			SignRequests: cfg.SAML.SignRequests,
		})
		if err != nil {
			startupLog.Fatalf("Failed to build SAML provider: %v", err)
		}
	}

	gate := login.NewGate(login.GateConfig{
		Activated:         cfg.SAML.Activated,
		AllowDefaultLogin: cfg.Allow.DefaultLogin,
		AllowedAccountIDs: login.ParseAllowedAccountIDs(cfg.Allow.DefaultLoginUsers),
		AllowedRoles:      cfg.Allow.RoleList(),
	}, accountStore, sessions, metrics, logger)

	handlers := login.NewHandlers(login.HandlerConfig{
		Activated:     cfg.SAML.Activated,
		SecureCookies: true,
	}, provider, coordinator, sessions, accountStore, logger)

	router := mux.NewRouter()
	router.Use(httputil.RecoveryMiddleware(logger))
	router.Use(httputil.LoggingMiddleware(logger))
	router.Use(httputil.MaxBytesMiddleware(1 << 20))
	router.Use(gate.Middleware)
	handlers.Register(router)

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", observability.Handler(registry))
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	scheduler := cron.New()
	if sweeper != nil {
		_, err = scheduler.AddFunc(cfg.Storage.SessionSweepSchedule, func() {
			n, err := sweeper.CleanupExpired(context.Background())
			if err != nil {
				logger.WithError(err).Error("session sweep failed")
				return
			}
			if n > 0 {
				logger.WithField("deleted", n).Info("swept expired sessions")
			}
		})
		if err != nil {
			startupLog.Fatalf("Failed to schedule session sweep: %v", err)
		}
	}
	scheduler.Start()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		startupLog.Infof("API server listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		startupLog.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		<-scheduler.Stop().Done()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return healthServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		startupLog.Fatalf("Server error: %v", err)
	}
	startupLog.Info("SAML Bridge stopped")
}

func setupStartupLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	if level, err := logrus.ParseLevel(os.Getenv("SAMLBRIDGE_LOG_LEVEL")); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

// buildSessionStore returns the configured session store and, for backends
// without native expiry, the store to sweep periodically.
func buildSessionStore(ctx context.Context, cfg *config.Config, db *sql.DB) (session.Store, session.Store, error) {
	switch cfg.Storage.SessionBackend {
	case "redis":
		store, err := session.NewRedisStore(cfg.Storage.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		store := session.NewPostgresStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
		return store, store, nil
	}
}

func reportParseIssues(issues []rolemap.ParseIssue, metrics *observability.Metrics, logger *observability.Logger) {
	if metrics != nil {
		metrics.RuleParseIssues.Set(float64(len(issues)))
	}
	for _, issue := range issues {
		logger.WithField("fragment", issue.Fragment).Warnf("role rule skipped: %s", issue.Reason)
	}
}
