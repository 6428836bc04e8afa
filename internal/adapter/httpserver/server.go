package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/domain"
)

// QueueCounter is the subset of queuestats.Probe the HTTP surface needs.
type QueueCounter interface {
	GetQueueCount(ctx context.Context, queueName string) (int, error)
}

// Server aggregates the minimal HTTP surface's handler dependencies: health,
// readiness, and queue-statistics probes. The full REST seeding API stays
// out of scope; this surface is operator/UI-facing only.
type Server struct {
	DBCheck     func(ctx context.Context) error
	BrokerCheck func(ctx context.Context) error
	RedisCheck  func(ctx context.Context) error
	Queues      QueueCounter
}

// NewServer constructs a Server with its readiness checks and queue probe
// wired.
func NewServer(dbCheck, brokerCheck, redisCheck func(ctx context.Context) error, queues QueueCounter) *Server {
	return &Server{DBCheck: dbCheck, BrokerCheck: brokerCheck, RedisCheck: redisCheck, Queues: queues}
}

// HealthzHandler is a liveness probe: it never touches dependencies.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}
}

// ReadyzHandler probes the database, broker, and (when configured) Redis.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := make([]check, 0, 3)
		run := func(name string, fn func(context.Context) error) {
			if fn == nil {
				return
			}
			if err := fn(ctx); err != nil {
				checks = append(checks, check{Name: name, OK: false, Details: err.Error()})
				return
			}
			checks = append(checks, check{Name: name, OK: true})
		}
		run("db", s.DBCheck)
		run("broker", s.BrokerCheck)
		run("redis", s.RedisCheck)

		ok := true
		for _, c := range checks {
			if !c.OK {
				ok = false
				break
			}
		}
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{"checks": checks})
	}
}

// QueueCountHandler exposes GET /queues/{name}/count.
func (s *Server) QueueCountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if name == "" {
			writeError(w, r, domain.ErrInvalidArgument, nil)
			return
		}
		count, err := s.Queues.GetQueueCount(r.Context(), name)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"queue": name, "count": count})
	}
}
