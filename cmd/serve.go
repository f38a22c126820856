package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forkline/expansion-cli/internal/cost"
	"github.com/forkline/expansion-cli/internal/model"
	"github.com/forkline/expansion-cli/internal/store"
)

var servePort int

// runStarter starts expansion runs. *expansion.Runner satisfies it.
type runStarter interface {
	Run(ctx context.Context, region model.Region) (*model.Run, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for expansion runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initRunner(ctx)
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
			Handler: newRouter(ctx, env.Store, env.Runner, env.Monitor),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(context.Background())
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newRouter builds the API router. baseCtx outlives individual requests
// and carries the runs started asynchronously.
func newRouter(baseCtx context.Context, st store.Store, starter runStarter, monitor *cost.Monitor) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/runs", func(w http.ResponseWriter, req *http.Request) {
		var region model.Region
		if err := json.NewDecoder(req.Body).Decode(&region); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if region.TenantID == "" || region.Name == "" {
			writeError(w, http.StatusBadRequest, "tenant_id and name are required")
			return
		}

		// Run asynchronously; the run record tracks progress.
		go func() {
			run, err := starter.Run(baseCtx, region)
			if err != nil {
				zap.L().Error("api run failed",
					zap.String("region", region.Name),
					zap.Error(err),
				)
				return
			}
			zap.L().Info("api run complete",
				zap.String("run_id", run.ID),
				zap.String("region", region.Name),
			)
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status": "accepted",
			"region": region.Name,
		})
	})

	r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
		limit := 50
		if v := req.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}
		runs, err := st.ListRuns(req.Context(), store.RunFilter{
			Status:   model.RunStatus(req.URL.Query().Get("status")),
			TenantID: req.URL.Query().Get("tenant"),
			Limit:    limit,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list runs failed")
			return
		}
		writeJSON(w, http.StatusOK, runs)
	})

	r.Get("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
		run, err := st.GetRun(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	r.Get("/runs/{id}/candidates", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		if _, err := st.GetRun(req.Context(), id); err != nil {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		candidates, err := st.ListCandidates(req.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list candidates failed")
			return
		}
		writeJSON(w, http.StatusOK, candidates)
	})

	r.Get("/costs", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"total_usd":  monitor.TotalUSD(),
			"operations": monitor.Snapshot(),
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
