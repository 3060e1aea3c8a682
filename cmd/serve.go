package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crashify360/totalloss/internal/intake"
	"github.com/crashify360/totalloss/internal/model"
	"github.com/crashify360/totalloss/internal/store"
	"github.com/crashify360/totalloss/internal/validate"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		cfg.Server.Port = port
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initEnv(ctx, cfg, true)
		if err != nil {
			return err
		}
		defer env.Close()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(env, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

type api struct {
	env *appEnv
}

// buildRouter wires the HTTP API routes.
func buildRouter(env *appEnv, origins []string) http.Handler {
	a := &api{env: env}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/evaluate", a.evaluate)
		r.Post("/evaluate/batch", a.evaluateBatch)
		r.Post("/extract", a.extract)
		r.Get("/decisions", a.listDecisions)
		r.Get("/decisions/{id}", a.getDecision)
		r.Get("/stats", a.stats)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
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

type evaluateRequest struct {
	validate.RawCase
	Save bool `json:"save"`
}

func (a *api) evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ev, err := evaluateRaw(r.Context(), a.env, req.RawCase, req.Save)
	if err != nil {
		var ve *validationError
		if errors.As(err, &ve) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":    ve.res.Summary(),
				"errors":   ve.res.Errors,
				"warnings": ve.res.Warnings,
			})
			return
		}
		a.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

type batchRequest struct {
	Cases []validate.RawCase `json:"cases"`
	Save  bool               `json:"save"`
}

func (a *api) evaluateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Cases) == 0 {
		writeError(w, http.StatusBadRequest, "cases is required")
		return
	}

	rows := make([]intake.Row, len(req.Cases))
	for i, c := range req.Cases {
		rows[i] = intake.Row{Line: i + 1, Case: c}
	}
	writeJSON(w, http.StatusOK, processBatch(r.Context(), a.env, rows, req.Save))
}

type extractRequest struct {
	Text        string `json:"text"`
	PolicyValue string `json:"policy_value"`
	DecisionID  string `json:"decision_id"`
	Sender      string `json:"sender"`
	Save        bool   `json:"save"`
	Sections    bool   `json:"sections"`
}

func (a *api) extract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if !decodeBody(w, r, &req) {
		return
	}
	text := validate.Sanitize(req.Text, maxReplyLen)
	if text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.Save && req.DecisionID == "" {
		writeError(w, http.StatusBadRequest, "save requires decision_id")
		return
	}

	policy, err := resolvePolicyValue(r.Context(), a.env, req.PolicyValue, req.DecisionID)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "decision not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Sections {
		writeJSON(w, http.StatusOK, a.env.Extractor.ExtractSections(text, policy))
		return
	}

	result := a.env.Extractor.Extract(text, policy)
	logExtraction(req.DecisionID, &result)
	if req.Save {
		resp := &model.SalvageResponse{DecisionID: req.DecisionID, Sender: req.Sender, Text: text, Result: result}
		if err := a.env.Store.SaveSalvageResponse(r.Context(), resp); err != nil {
			a.internalError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *api) listDecisions(w http.ResponseWriter, r *http.Request) {
	filter, ok := queryFilter(w, r)
	if !ok {
		return
	}
	recs, err := a.env.Store.ListDecisions(r.Context(), filter)
	if err != nil {
		a.internalError(w, err)
		return
	}
	if recs == nil {
		recs = []model.DecisionRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (a *api) getDecision(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := a.env.Store.GetDecision(r.Context(), id)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "decision not found")
			return
		}
		a.internalError(w, err)
		return
	}
	responses, err := a.env.Store.ListSalvageResponses(r.Context(), id)
	if err != nil {
		a.internalError(w, err)
		return
	}
	if responses == nil {
		responses = []model.SalvageResponse{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"record": rec, "salvage_responses": responses})
}

func (a *api) stats(w http.ResponseWriter, r *http.Request) {
	filter, ok := queryFilter(w, r)
	if !ok {
		return
	}
	s, err := a.env.Store.DecisionStats(r.Context(), filter)
	if err != nil {
		a.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func queryFilter(w http.ResponseWriter, r *http.Request) (store.DecisionFilter, bool) {
	q := r.URL.Query()
	filter, err := parseFilter(q.Get("loss_type"), q.Get("vin"), q.Get("total_loss"), q.Get("since"), q.Get("until"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return filter, false
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid "+name)
			return filter, false
		}
		*dst = n
	}
	return filter, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (a *api) internalError(w http.ResponseWriter, err error) {
	zap.L().Error("api request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": strings.TrimSpace(msg)})
}
