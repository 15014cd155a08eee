// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jason-s-yu/marbles/internal/cache"
	"github.com/jason-s-yu/marbles/internal/config"
	"github.com/jason-s-yu/marbles/internal/database"
	"github.com/jason-s-yu/marbles/internal/game"
	"github.com/jason-s-yu/marbles/internal/handlers"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("loading config")
	}
	log := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := handlers.Options{
		Logger:       log,
		Rules:        houseRules(cfg),
		AllowOrigins: cfg.OriginAllowlist,
	}

	if cfg.RedisAddr != "" {
		h, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.WithError(err).Warn("historian disabled")
		} else {
			defer h.Close()
			opts.Historian = h
			opts.Snapshots = h
			log.WithField("addr", cfg.RedisAddr).Info("historian connected")
		}
	}

	if cfg.DatabaseURL != "" {
		db, err := database.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("opening database")
		}
		defer db.Close()
		if err := database.Migrate(ctx, db); err != nil {
			log.WithError(err).Fatal("migrating database")
		}
		opts.Recorder = db
		opts.Games = db
		log.Info("game records enabled")
	}

	lobby := handlers.NewLobby(opts)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Mount("/games", lobby.Routes())

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 15 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("shutdown")
		}
	}()

	log.WithField("port", cfg.Port).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("serving")
	}
}

func houseRules(cfg config.Config) game.HouseRules {
	rules := game.DefaultHouseRules()
	rules.HandSize = int(cfg.HandSize)
	rules.RequireHomeChoice = cfg.RequireHomeChoice
	rules.TurnTimerSec = int(cfg.TurnTimer / time.Second)
	return rules
}

// requestLogger logs each request except websocket sessions, which log their
// own lifecycle.
func requestLogger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") != "" {
				next.ServeHTTP(w, r)
				return
			}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"duration":   time.Since(start),
				"request_id": middleware.GetReqID(r.Context()),
			}).Debug("request")
		})
	}
}
