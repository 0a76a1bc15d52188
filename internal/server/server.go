// Package server exposes published reports and snapshot listings over a
// read-only HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/leonardosantosdev/imdb-analytics/internal/logging"
	"github.com/leonardosantosdev/imdb-analytics/internal/metrics"
	"github.com/leonardosantosdev/imdb-analytics/internal/snapshot"
)

var reportName = regexp.MustCompile(`^[a-z0-9_]+$`)

// ReportInfo is the listing entry of one published report
type ReportInfo struct {
	Name         string `json:"name"`
	GeneratedAt  string `json:"generatedAt"`
	SnapshotDate string `json:"snapshotDate"`
	Rows         int    `json:"rows"`
	Note         string `json:"note,omitempty"`
}

// SnapshotInfo is the listing entry of one complete snapshot
type SnapshotInfo struct {
	Date string `json:"date"`
	Path string `json:"path"`
}

// Server serves the report API
type Server struct {
	reportsDir string
	stores     map[string]*snapshot.Store
	metrics    *metrics.Metrics
	logger     *logging.ComponentLogger
	router     *mux.Router
	started    time.Time
}

// New builds the router. stores maps a layer name ("bronze", "silver") to its store.
func New(reportsDir string, stores map[string]*snapshot.Store, m *metrics.Metrics, logger *logging.ComponentLogger) *Server {
	s := &Server{
		reportsDir: reportsDir,
		stores:     stores,
		metrics:    m,
		logger:     logger.With("serve"),
		router:     mux.NewRouter(),
		started:    time.Now(),
	}

	s.router.Use(s.logRequests)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/reports", s.handleListReports).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/reports/{name}", s.handleGetReport).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/snapshots/{layer}", s.handleListSnapshots).Methods(http.MethodGet)
	if m.IsEnabled() {
		s.router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	}
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Report server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info().Msg("Shutting down report server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := map[string]any{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	}
	for layer, store := range s.stores {
		if latest, err := store.Latest(); err == nil {
			status["latest_"+layer] = latest.DateString()
		}
	}
	respondJSON(w, status)
}

func (s *Server) handleListReports(w http.ResponseWriter, _ *http.Request) {
	entries, err := os.ReadDir(s.reportsDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	reports := []ReportInfo{}
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".json")
		if e.IsDir() || !ok || !reportName.MatchString(name) {
			continue
		}
		info, err := s.readInfo(name)
		if err != nil {
			s.logger.Warn().Err(err).Str("report", name).Msg("Skipping unreadable report")
			continue
		}
		reports = append(reports, info)
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].Name < reports[j].Name })

	respondJSON(w, map[string]any{
		"reports": reports,
		"count":   len(reports),
	})
}

func (s *Server) readInfo(name string) (ReportInfo, error) {
	data, err := os.ReadFile(filepath.Join(s.reportsDir, name+".json"))
	if err != nil {
		return ReportInfo{}, err
	}
	info := ReportInfo{Name: name}
	if err := json.Unmarshal(data, &info); err != nil {
		return ReportInfo{}, err
	}
	info.Name = name
	return info, nil
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if !reportName.MatchString(name) {
		respondError(w, "invalid report name", http.StatusBadRequest)
		return
	}

	data, err := os.ReadFile(filepath.Join(s.reportsDir, name+".json"))
	if errors.Is(err, os.ErrNotExist) {
		respondError(w, "report not found", http.StatusNotFound)
		return
	}
	if err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	layer := mux.Vars(r)["layer"]
	store, ok := s.stores[layer]
	if !ok {
		respondError(w, "unknown layer: "+layer, http.StatusNotFound)
		return
	}

	snaps, err := store.List()
	if err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]SnapshotInfo, len(snaps))
	for i, snap := range snaps {
		out[i] = SnapshotInfo{Date: snap.DateString(), Path: snap.Path}
	}

	respondJSON(w, map[string]any{
		"layer":     layer,
		"snapshots": out,
		"count":     len(out),
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	})
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]any{
		"error": message,
	})
}
