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
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/keyword-discovery/internal/discovery"
	"github.com/sells-group/keyword-discovery/internal/resilience"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the discovery HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		env, err := initDiscovery(ctx, true, reg)
		if err != nil {
			return err
		}
		defer env.Close()

		s := &server{
			pipeline:   env.Pipeline,
			store:      env.Store,
			guard:      env.Guard,
			gatherer:   reg,
			runTimeout: time.Duration(cfg.Server.RunTimeoutSecs) * time.Second,
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           s.routes(cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// server serves discovery runs and saved results over HTTP.
type server struct {
	pipeline   *discovery.Pipeline
	store      discovery.Store
	guard      *resilience.Guard
	gatherer   prometheus.Gatherer
	runTimeout time.Duration
}

func (s *server) routes(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/discovery", s.runDiscovery)
		r.Get("/runs", s.listRuns)
		r.Get("/runs/{runID}", s.getRun)
		r.Get("/runs/{runID}/keywords", s.listKeywords)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.guard != nil && s.guard.Breakers() != nil {
		body["providers"] = s.guard.Breakers().Snapshot()
	}
	writeJSON(w, http.StatusOK, body)
}

// discoveryRequest is the POST /v1/discovery body: a discovery request plus
// optional persistence of the result.
type discoveryRequest struct {
	discovery.Request
	Save     bool     `json:"save"`
	Selected []string `json:"selected,omitempty"`
}

type discoveryResponse struct {
	*discovery.Result
	Saved *discovery.SaveResult `json:"saved,omitempty"`
}

func (s *server) runDiscovery(w http.ResponseWriter, r *http.Request) {
	var req discoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Save && s.store == nil {
		writeError(w, http.StatusBadRequest, "persistence is not configured")
		return
	}

	ctx := r.Context()
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	res, err := s.pipeline.Run(ctx, req.Request)
	if err != nil {
		status := runErrorStatus(err)
		if status == http.StatusInternalServerError {
			zap.L().Error("discovery run failed", zap.String("client_id", req.ClientID), zap.Error(err))
		}
		writeError(w, status, err.Error())
		return
	}

	resp := discoveryResponse{Result: res}
	if req.Save {
		saved, err := discovery.Save(ctx, s.store, req.Request, res, req.Selected)
		if err != nil {
			zap.L().Error("save run failed", zap.String("run_id", res.RunID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "run completed but could not be saved")
			return
		}
		resp.Saved = saved
	}
	writeJSON(w, http.StatusOK, resp)
}

// runErrorStatus maps a pipeline error to an HTTP status.
func runErrorStatus(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest
	case errors.Is(err, discovery.ErrNoSources):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "persistence is not configured")
		return
	}
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "client_id is required")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.store.ListRuns(r.Context(), clientID, limit)
	if err != nil {
		zap.L().Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *server) getRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *server) listKeywords(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	opts, err := listOptsFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	kws, err := s.store.ListKeywords(r.Context(), run.ID, opts)
	if err != nil {
		zap.L().Error("list keywords failed", zap.String("run_id", run.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list keywords")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": run.ID, "keywords": kws})
}

func (s *server) lookupRun(w http.ResponseWriter, r *http.Request) (*discovery.RunRecord, bool) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "persistence is not configured")
		return nil, false
	}
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if errors.Is(err, discovery.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return nil, false
	}
	if err != nil {
		zap.L().Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load run")
		return nil, false
	}
	return run, true
}

func listOptsFromQuery(r *http.Request) (discovery.ListOpts, error) {
	q := r.URL.Query()
	opts := discovery.ListOpts{Category: discovery.Category(q.Get("category"))}
	if opts.Category != "" && !validCategory(opts.Category) {
		return opts, eris.Errorf("unknown category %q", opts.Category)
	}
	if v := q.Get("min_score"); v != "" {
		minScore, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return opts, eris.Errorf("invalid min_score %q", v)
		}
		opts.MinScore = &minScore
	}
	var err error
	if opts.Limit, err = queryInt(r, "limit"); err != nil {
		return opts, err
	}
	if opts.Offset, err = queryInt(r, "offset"); err != nil {
		return opts, err
	}
	return opts, nil
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, eris.Errorf("invalid %s %q", key, v)
	}
	return n, nil
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
