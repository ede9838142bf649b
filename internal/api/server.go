// Package api serves map generation and stored runs over HTTP.
// GET endpoints are public. Generating and deleting maps require the admin
// bearer token and are disabled when no admin key is configured.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/talgya/hexatlas/internal/atlas"
	"github.com/talgya/hexatlas/internal/environment"
	"github.com/talgya/hexatlas/internal/export"
	"github.com/talgya/hexatlas/internal/faults"
	"github.com/talgya/hexatlas/internal/hexgrid"
	"github.com/talgya/hexatlas/internal/persistence"
	"github.com/talgya/hexatlas/internal/terrain"
)

const (
	defaultMaxHexes  = 10000
	defaultListLimit = 20
	maxListLimit     = 200
)

// Server serves the run store and the generation pipeline over HTTP.
type Server struct {
	DB       *persistence.DB
	Options  atlas.Options
	Port     int
	AdminKey string // bearer token for write endpoints; empty disables them
	MaxHexes int    // largest width*height accepted by POST /maps

	// GenerateRate is how many maps one client may generate per hour.
	GenerateRate int

	started time.Time
}

// Handler builds the router with CORS and request logging applied.
func (s *Server) Handler() http.Handler {
	if s.started.IsZero() {
		s.started = time.Now()
	}
	rate := s.GenerateRate
	if rate <= 0 {
		rate = 30
	}
	generateLimiter := NewRateLimiter(rate, time.Hour)

	router := mux.NewRouter()
	router.Use(loggingMiddleware)

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/maps", s.handleListMaps).Methods(http.MethodGet)
	v1.HandleFunc("/maps", s.adminOnly(RateLimitMiddleware(generateLimiter, s.handleCreateMap))).Methods(http.MethodPost)
	v1.HandleFunc("/maps/{id}", s.handleGetMap).Methods(http.MethodGet)
	v1.HandleFunc("/maps/{id}", s.adminOnly(s.handleDeleteMap)).Methods(http.MethodDelete)
	v1.HandleFunc("/maps/{id}/hexes/{q:-?[0-9]+}/{r:-?[0-9]+}", s.handleHex).Methods(http.MethodGet)

	return corsMiddleware(router)
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	slog.Info("HTTP API shutting down")
	return srv.Shutdown(shutdownCtx)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// CORS_ORIGINS extends the localhost defaults with a comma-separated list.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("http request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}

// checkBearerToken reports whether the request carries the admin token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.AdminKey)) == 1
}

// adminOnly requires the bearer token. Without a configured admin key the
// wrapped endpoints are disabled.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			writeError(w, http.StatusForbidden, "admin endpoints disabled (no admin key configured)")
			return
		}
		if !s.checkBearerToken(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":           "hexatlas",
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"mode":           s.Options.Terrain.Mode,
		"smooth":         s.Options.Terrain.Smooth,
		"workers":        s.Options.Workers,
		"max_hexes":      s.maxHexes(),
		"admin_auth":     s.AdminKey != "",
	})
}

func (s *Server) maxHexes() int {
	if s.MaxHexes > 0 {
		return s.MaxHexes
	}
	return defaultMaxHexes
}

// generateRequest is the POST /maps body: a map request plus the synthetic
// attribute seed and optional classifier overrides.
type generateRequest struct {
	atlas.Request
	Seed   int64        `json:"seed"`
	Mode   terrain.Mode `json:"mode,omitempty"`
	Smooth *bool        `json:"smooth,omitempty"`
}

type generateResponse struct {
	persistence.RunInfo
	Regions []atlas.RegionSummary `json:"regions"`
	Warning string                `json:"warning,omitempty"`
}

func (s *Server) handleCreateMap(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Width > 0 && req.Height > 0 {
		cells, err := hexgrid.Cells(req.Width, req.Height)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if cells > s.maxHexes() {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("map of %dx%d hexes exceeds the limit of %d", req.Width, req.Height, s.maxHexes()))
			return
		}
	}

	opts := s.Options
	if req.Mode != "" {
		opts.Terrain.Mode = req.Mode
	}
	if req.Smooth != nil {
		opts.Terrain.Smooth = *req.Smooth
	}

	res, err := atlas.Run(r.Context(), req.Request, environment.NewNoiseProvider(req.Seed), opts)
	if err != nil {
		if faults.IsConfiguration(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("map generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "map generation failed")
		return
	}

	info, err := s.DB.SaveRun(res, string(opts.Terrain.Mode), fmt.Sprintf("noise:%d", req.Seed))
	if err != nil {
		slog.Error("save run failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not store run")
		return
	}

	out := generateResponse{RunInfo: info, Regions: res.Summaries()}
	if res.Partition != nil {
		if warn := res.Partition.Warning(); warn != nil {
			out.Warning = warn.Error()
		}
	}
	w.Header().Set("Location", "/api/v1/maps/"+info.ID)
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleListMaps(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}
	runs, err := s.DB.ListRuns(limit)
	if err != nil {
		slog.Error("list runs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not list runs")
		return
	}
	if runs == nil {
		runs = []persistence.RunInfo{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleGetMap returns a stored run as JSON, or MessagePack with ?format=msgpack.
func (s *Server) handleGetMap(w http.ResponseWriter, r *http.Request) {
	format := export.JSON
	if v := r.URL.Query().Get("format"); v != "" {
		f, err := export.ParseFormat(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		format = f
	}
	run, err := s.DB.LoadRun(mux.Vars(r)["id"])
	if err != nil {
		s.storeError(w, err)
		return
	}
	if format == export.Msgpack {
		w.Header().Set("Content-Type", format.ContentType())
		if err := export.WriteMsgpack(w, run); err != nil {
			slog.Error("encode run failed", "id", run.ID, "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleDeleteMap(w http.ResponseWriter, r *http.Request) {
	if err := s.DB.DeleteRun(mux.Vars(r)["id"]); err != nil {
		s.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHex(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	q, err1 := strconv.Atoi(vars["q"])
	rr, err2 := strconv.Atoi(vars["r"])
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "invalid coordinates")
		return
	}
	hex, err := s.DB.Hex(vars["id"], q, rr)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hex)
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, persistence.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	slog.Error("run store error", "error", err)
	writeError(w, http.StatusInternalServerError, "run store error")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
