// Package controlplane serves the read-only admin API mounted under /admin.
package controlplane

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/polyglot-normalizer/internal/core/domain"
	"github.com/tjfontaine/polyglot-normalizer/internal/core/ports"
	"github.com/tjfontaine/polyglot-normalizer/internal/frontdoor"
)

// Default and maximum page sizes for the dispatch listing.
const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Config wires the admin server. Every field is optional.
type Config struct {
	// Stages returns the pipeline's registered stage names.
	Stages func() []string
	// Dropped returns how many dispatch records the sink queue discarded.
	Dropped func() int64
	// Records enables /api/dispatches.
	Records ports.RecordLister
}

type Server struct {
	router    *chi.Mux
	startTime time.Time
	cfg       Config
}

func NewServer(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		startTime: time.Now(),
		cfg:       cfg,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/api/stats", s.handleStats)
	if s.cfg.Records != nil {
		s.router.Get("/api/dispatches", s.handleDispatches)
	}
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		frontdoor.WriteError(w, domain.ErrNotFound("no admin route for "+r.URL.Path))
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type StatsResponse struct {
	Uptime         string      `json:"uptime"`
	GoVersion      string      `json:"go_version"`
	NumGoroutine   int         `json:"num_goroutine"`
	Memory         MemoryStats `json:"memory"`
	Stages         []string    `json:"stages"`
	DroppedRecords int64       `json:"dropped_records"`
}

type MemoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"total_alloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := StatsResponse{
		Uptime:       time.Since(s.startTime).String(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		Memory: MemoryStats{
			Alloc:      m.Alloc,
			TotalAlloc: m.TotalAlloc,
			Sys:        m.Sys,
			NumGC:      m.NumGC,
		},
		Stages: []string{},
	}
	if s.cfg.Stages != nil {
		stats.Stages = s.cfg.Stages()
	}
	if s.cfg.Dropped != nil {
		stats.DroppedRecords = s.cfg.Dropped()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func (s *Server) handleDispatches(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			frontdoor.WriteError(w, domain.ErrInvalidRequest("limit must be a positive integer"))
			return
		}
		limit = min(n, maxListLimit)
	}

	records, err := s.cfg.Records.Recent(r.Context(), limit)
	if err != nil {
		frontdoor.WriteError(w, err)
		return
	}
	if records == nil {
		records = []*domain.DispatchRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   records,
	})
}
