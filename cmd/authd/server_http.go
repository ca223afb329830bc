package main

import (
	"context"
	"net/http"
	"time"

	"github.com/MishaNavrotsky/authd/internal/cache"
	config "github.com/MishaNavrotsky/authd/internal/config/authd"
	"github.com/MishaNavrotsky/authd/internal/obs"
	"github.com/MishaNavrotsky/authd/internal/password"
	pg "github.com/MishaNavrotsky/authd/internal/repository/postgres"
	"github.com/MishaNavrotsky/authd/internal/services/authd/auth"
	"github.com/MishaNavrotsky/authd/internal/token"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func buildHTTPServer(cfg *config.Config, logger *zap.Logger, db *pg.DB, sessionCache *cache.Tiered) (*http.Server, error) {
	codec, err := token.NewCodec(token.Config{
		Secret:     []byte(cfg.Auth.JWTSecret),
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
		Leeway:     cfg.Auth.Leeway,
	})
	if err != nil {
		return nil, err
	}

	userRepo := pg.NewUserRepo(db)
	hasher := password.NewHasher(password.DefaultParams())
	authUC := auth.NewUsecase(userRepo, sessionCache, codec, hasher)

	authCtl := auth.NewController(authUC, auth.Opts{
		Logger:       logger,
		CookiePath:   cfg.Auth.CookiePath,
		CookieSecure: cfg.Auth.CookieSecure,
		AccessTTL:    cfg.Auth.AccessTTL,
		RefreshTTL:   cfg.Auth.RefreshTTL,
	})

	mux := http.NewServeMux()
	authCtl.Register(mux)

	mux.Handle("/metrics", obs.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		hctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		if err := db.Pool.Ping(hctx); err != nil {
			http.Error(w, "unhealthy: db", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	handler := otelhttp.NewHandler(mux, "authd.http")

	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
	return httpSrv, nil
}

func serveHTTP(srv *http.Server, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
	return srv.ListenAndServe()
}
