package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gridwatch/collector-cli/internal/config"
	"github.com/gridwatch/collector-cli/internal/model"
	"github.com/gridwatch/collector-cli/internal/pipeline"
	"github.com/gridwatch/collector-cli/internal/source"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(cfg, env),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newRouter builds the API routes. Split out from the command so tests can
// exercise the handlers directly.
func newRouter(cfg *config.Config, env *env) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/sources", func(w http.ResponseWriter, _ *http.Request) {
		reg := source.Build(cfg, source.BuildOptions{})
		writeJSON(w, http.StatusOK, map[string]any{"sources": reg.Names()})
	})

	r.Get("/api/data/{source}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "source")
		reg := source.Build(cfg, source.BuildOptions{})
		src, err := reg.Get(name)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown source"})
			return
		}
		rows, err := env.Sink.ReadAll(req.Context(), src.Collection())
		if err != nil {
			zap.L().Error("read collection failed", zap.String("source", name), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not read collection"})
			return
		}
		if rows == nil {
			rows = []model.Row{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"source": name,
			"count":  len(rows),
			"data":   rows,
		})
	})

	r.Get("/api/runs", func(w http.ResponseWriter, req *http.Request) {
		entries, err := env.Runs.List(req.Context(), req.URL.Query().Get("source"), 100)
		if err != nil {
			zap.L().Error("list runs failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not list runs"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": entries})
	})

	r.Post("/api/scrape/{source}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "source")
		reg := source.Build(cfg, source.BuildOptions{})
		src, err := reg.Get(name)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown source"})
			return
		}

		ctx, cancel := context.WithTimeout(req.Context(), cfg.Scrape.Timeout())
		defer cancel()

		report, err := env.Driver.Run(ctx, src)
		if err != nil {
			writeRunError(w, name, report, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	return r
}

// writeRunError maps a run failure to a distinct status code per failure
// kind, never a generic 500 when the kind is known.
func writeRunError(w http.ResponseWriter, name string, report *model.Report, err error) {
	body := map[string]any{
		"source": name,
		"error":  truncateMsg(err.Error(), 300),
	}
	if report != nil && report.Partial {
		body["partial"] = true
		body["new"] = report.New
	}

	switch pipeline.ClassifyFailure(err) {
	case model.FailureAlreadyRunning:
		body["error"] = "scrape already in progress"
		writeJSON(w, http.StatusConflict, body)
	case model.FailureRateLimited:
		if wait := pipeline.RetryAfterOf(err); wait > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())))
		}
		writeJSON(w, http.StatusTooManyRequests, body)
	case model.FailureTimeout:
		writeJSON(w, http.StatusGatewayTimeout, body)
	default:
		writeJSON(w, http.StatusBadGateway, body)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		zap.L().Debug("write response failed", zap.Error(err))
	}
}

func truncateMsg(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
