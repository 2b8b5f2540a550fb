package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vendmatch/leadgen-cli/internal/model"
	"github.com/vendmatch/leadgen-cli/internal/store"
	"github.com/vendmatch/leadgen-cli/internal/worker"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long:  "Serves run management endpoints plus the cron promotion hook.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		launcher, local := initLauncher(ctx, env)
		sched := initScheduler(env.Store, launcher)

		api := &apiServer{
			store:      env.Store,
			sched:      sched,
			cronSecret: cfg.Server.CronSecret,
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("server listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}

		if local != nil {
			if err := local.Wait(); err != nil {
				return err
			}
		}
		return nil
	},
}

type apiServer struct {
	store      store.Store
	sched      *worker.Scheduler
	cronSecret string
}

func (a *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Cron-Secret"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/runs", func(r chi.Router) {
		r.Post("/", a.createRun)
		r.Get("/", a.listRuns)
		r.Get("/{runID}", a.getRun)
		r.Get("/{runID}/leads", a.listLeads)
		r.Post("/{runID}/stop", a.stopRun)
	})

	r.Post("/cron/process-runs", a.cronPromote)

	return r
}

func (a *apiServer) createRun(w http.ResponseWriter, r *http.Request) {
	var input model.RunInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateRunInput(&input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := a.store.CreateRun(r.Context(), input)
	if err != nil {
		zap.L().Error("create run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "create run failed")
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

func (a *apiServer) listRuns(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{
		Status: model.RunStatus(r.URL.Query().Get("status")),
	}
	runs, err := a.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *apiServer) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.store.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (a *apiServer) listLeads(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if _, err := a.store.GetRun(r.Context(), runID); err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	leads, err := a.store.ListLeads(r.Context(), runID)
	if err != nil {
		zap.L().Error("list leads failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list leads failed")
		return
	}
	writeJSON(w, http.StatusOK, leads)
}

func (a *apiServer) stopRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	stopped, err := a.store.ForceFail(r.Context(), runID, "Stopped by user")
	if err != nil {
		zap.L().Error("stop run failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "stop run failed")
		return
	}
	if !stopped {
		writeError(w, http.StatusConflict, "run is already finished")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// cronPromote runs one scheduler cycle. Guarded by a shared secret so
// only the cron service can trigger it.
func (a *apiServer) cronPromote(w http.ResponseWriter, r *http.Request) {
	if a.cronSecret == "" || r.Header.Get("X-Cron-Secret") != a.cronSecret {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	result, err := a.sched.Cycle(r.Context())
	if err != nil {
		zap.L().Error("cron promote failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "cycle failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
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
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
