package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/posterintel/poster-research/internal/engine"
	"github.com/posterintel/poster-research/internal/model"
	"github.com/posterintel/poster-research/internal/monitoring"
	"github.com/posterintel/poster-research/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the research engine over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		collector := monitoring.NewCollector(env.Store)

		// Background alert checks for the lifetime of the server.
		checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
		go checker.Run(ctx)

		router := buildRouter(env.Engine, env.Store, collector,
			cfg.Server.MaxConcurrentSessions, cfg.Monitoring.LookbackWindowHours)

		return startServer(ctx, router, resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// resolvePort prefers the flag value over the configured port.
func resolvePort(flag, configured int) int {
	if flag != 0 {
		return flag
	}
	return configured
}

// buildRouter assembles the HTTP surface. maxSessions bounds how many
// research sessions may run at once; requests over the limit get 503 rather
// than queueing behind a slow provider.
func buildRouter(eng *engine.Engine, st store.Store, collector *monitoring.Collector, maxSessions, lookbackHours int) http.Handler {
	if maxSessions < 1 {
		maxSessions = 4
	}
	running := make(chan struct{}, maxSessions)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/search", func(w http.ResponseWriter, req *http.Request) {
			var sr model.SearchRequest
			if err := json.NewDecoder(req.Body).Decode(&sr); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if err := sr.Validate(); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}

			select {
			case running <- struct{}{}:
				defer func() { <-running }()
			default:
				writeError(w, http.StatusServiceUnavailable, "server is at session capacity")
				return
			}

			resp, err := eng.Run(req.Context(), sr)
			if err != nil {
				zap.L().Error("research session failed", zap.Error(err))
				writeJSON(w, http.StatusBadGateway, resp)
				return
			}
			writeJSON(w, http.StatusOK, resp)
		})

		r.Get("/sessions", func(w http.ResponseWriter, req *http.Request) {
			if st == nil {
				writeError(w, http.StatusServiceUnavailable, "store not available")
				return
			}
			filter := store.SessionFilter{
				Status: model.SessionStatus(req.URL.Query().Get("status")),
				Limit:  50,
			}
			if raw := req.URL.Query().Get("limit"); raw != "" {
				n, err := strconv.Atoi(raw)
				if err != nil || n < 1 {
					writeError(w, http.StatusBadRequest, "limit must be a positive integer")
					return
				}
				filter.Limit = n
			}
			sessions, err := st.ListSessions(req.Context(), filter)
			if err != nil {
				zap.L().Error("list sessions failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "list sessions failed")
				return
			}
			if sessions == nil {
				sessions = []model.Session{}
			}
			writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
		})

		r.Get("/sessions/{id}", func(w http.ResponseWriter, req *http.Request) {
			if st == nil {
				writeError(w, http.StatusServiceUnavailable, "store not available")
				return
			}
			sess, err := st.GetSession(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				zap.L().Error("get session failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "get session failed")
				return
			}
			if sess == nil {
				writeError(w, http.StatusNotFound, "session not found")
				return
			}
			writeJSON(w, http.StatusOK, sess)
		})

		r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
			if collector == nil {
				writeError(w, http.StatusServiceUnavailable, "metrics not available")
				return
			}
			hours := lookbackHours
			if raw := req.URL.Query().Get("hours"); raw != "" {
				n, err := strconv.Atoi(raw)
				if err != nil || n < 1 {
					writeError(w, http.StatusBadRequest, "hours must be a positive integer")
					return
				}
				hours = n
			}
			snap, err := collector.Collect(req.Context(), hours)
			if err != nil {
				zap.L().Error("metrics collection failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "metrics collection failed")
				return
			}
			writeJSON(w, http.StatusOK, snap)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("response encode failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// startServer runs the HTTP server until ctx is cancelled, then shuts it
// down gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return eris.Wrap(err, "server listen")
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return nil
}
