package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trialscope/screener-cli/internal/model"
	"github.com/trialscope/screener-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP screening API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		api := &apiServer{env: env}

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		r.Post("/api/screen", api.handleScreen)
		r.Post("/api/mine", api.handleMine)
		r.Get("/api/projects", api.handleListProjects)
		r.Post("/api/projects", api.handleCreateProject)
		r.Get("/api/projects/{id}/results/{stage}", api.handleListResults)
		r.Post("/api/results/{stage}/{id}/override", api.handleOverride)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

type apiServer struct {
	env *appEnv
}

func (a *apiServer) handleScreen(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID int64  `json:"project_id"`
		Stage     string `json:"stage"`
		Title     string `json:"title"`
		Text      string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	stage, ok := model.ParseStage(req.Stage)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid stage")
		return
	}
	if req.Title == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "title and text are required")
		return
	}

	project, err := a.env.Store.GetProject(r.Context(), req.ProjectID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	decision, err := a.env.Screener.Classify(r.Context(), req.Text, project.Criteria, stage)
	if err != nil {
		zap.L().Error("api screen failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "classification failed")
		return
	}

	id, err := a.env.Store.SaveResult(r.Context(), req.ProjectID, stage, model.AuditRecord{
		Title:      req.Title,
		Text:       req.Text,
		Decision:   decision.Decision,
		Summary:    decision.Summary,
		Confidence: decision.Confidence,
		Reasoning:  decision.Reasoning,
		Source:     model.SourceSingle,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"record_id": id,
		"decision":  decision,
	})
}

func (a *apiServer) handleMine(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID int64  `json:"project_id"`
		Text      string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	project, err := a.env.Store.GetProject(r.Context(), req.ProjectID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	candidates, err := a.env.Miner.Mine(r.Context(), req.Text, project.Criteria)
	if err != nil {
		zap.L().Error("api mine failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "mining failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"candidates": candidates})
}

func (a *apiServer) handleListProjects(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		owner = "default"
	}

	projects, err := a.env.Store.ListProjects(r.Context(), owner)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (a *apiServer) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner    string         `json:"owner"`
		Name     string         `json:"name"`
		Criteria model.Criteria `json:"criteria"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Owner == "" {
		req.Owner = "default"
	}

	project, err := a.env.Store.CreateProject(r.Context(), req.Owner, req.Name, req.Criteria)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (a *apiServer) handleListResults(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}
	stage, ok := model.ParseStage(chi.URLParam(r, "stage"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid stage")
		return
	}

	records, err := a.env.Store.ListResults(r.Context(), projectID, stage)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": records,
		"counts":  model.CountRecords(records),
	})
}

func (a *apiServer) handleOverride(w http.ResponseWriter, r *http.Request) {
	recordID, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}
	stage, ok := model.ParseStage(chi.URLParam(r, "stage"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid stage")
		return
	}

	var req struct {
		Decision string `json:"decision"`
		Note     string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	decision := model.Decision(req.Decision)
	if !model.IsValidDecision(decision) {
		writeError(w, http.StatusBadRequest, "invalid decision")
		return
	}
	if req.Note == "" {
		writeError(w, http.StatusBadRequest, "note is required")
		return
	}

	if err := a.env.Store.OverrideDecision(r.Context(), stage, recordID, decision, req.Note); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "overridden"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrDuplicateTitle):
		writeError(w, http.StatusConflict, "title already screened at this stage")
	default:
		zap.L().Error("store error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
