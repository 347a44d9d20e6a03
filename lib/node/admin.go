package node

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/gorilla/mux"
	"github.com/project-dy/Essentials/lib/coord"
)

// Status is the body of GET /status
type Status struct {
	Role         string    `json:"role"`
	Coordination bool      `json:"coordination"`
	Database     string    `json:"database"`
	DatabaseMode string    `json:"database_mode"`
	Subordinates int       `json:"subordinates"`
	Reconnects   uint64    `json:"reconnects"`
	CachedBans   int       `json:"cached_bans"`
	Jobs         []string  `json:"jobs"`
	BlockIP      bool      `json:"block_ip"`
	StartedAt    time.Time `json:"started_at"`
}

// BroadcastResult is the body of POST /broadcast
type BroadcastResult struct {
	Sent int `json:"sent"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Status describes the running node
func (n *Node) Status() Status {
	s := Status{
		Role:         n.CurrentRole().String(),
		Coordination: n.cfg.Coordination,
		Subordinates: n.ConnectedSubordinateCount(),
		BlockIP:      n.blockIP,
		StartedAt:    n.startedAt,
		Jobs:         []string{},
	}
	if n.db != nil {
		s.Database = n.db.Location()
		s.DatabaseMode = n.db.Mode().String()
		s.CachedBans = n.db.CachedBans()
	}
	if n.sub != nil {
		s.Reconnects = n.sub.Reconnects()
	}
	if n.scheduler != nil {
		s.Jobs = n.scheduler.Running()
	}
	return s
}

// AdminAddr returns the address of the admin endpoint, empty when disabled
func (n *Node) AdminAddr() string {
	if n.adminLn == nil {
		return ""
	}
	return n.adminLn.Addr().String()
}

func (n *Node) initMetrics() {
	set := metrics.NewSet()
	boolGauge := func(b bool) float64 {
		if b {
			return 1
		}
		return 0
	}

	set.NewGauge("essentials_is_owner", func() float64 {
		return boolGauge(n.election.Role == coord.RoleOwner)
	})
	set.NewGauge("essentials_subordinates", func() float64 {
		return float64(n.ConnectedSubordinateCount())
	})
	set.NewGauge("essentials_cached_bans", func() float64 {
		return float64(n.db.CachedBans())
	})
	set.NewGauge("essentials_subordinate_reconnects", func() float64 {
		if n.sub == nil {
			return 0
		}
		return float64(n.sub.Reconnects())
	})
	set.NewGauge("essentials_scheduler_jobs", func() float64 {
		if n.scheduler == nil {
			return 0
		}
		return float64(len(n.scheduler.Running()))
	})
	set.NewGauge("essentials_config_reloads", func() float64 {
		return float64(n.reloads.Load())
	})
	n.broadcasts = set.NewCounter("essentials_broadcasts_total")
	n.metrics = set
}

func (n *Node) adminRouter() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/status", n.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/broadcast", n.handleBroadcast).Methods(http.MethodPost)
	r.HandleFunc("/metrics", n.handleMetrics).Methods(http.MethodGet)
	return r
}

// serveAdmin serves the admin endpoint until ctx is done
func (n *Node) serveAdmin(ctx context.Context) error {
	srv := &http.Server{
		Handler:           n.adminRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	Logger.Infof("admin endpoint listening on %s", n.adminLn.Addr())
	if err := srv.Serve(n.adminLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (n *Node) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, n.Status())
}

func (n *Node) handleBroadcast(w http.ResponseWriter, _ *http.Request) {
	sent, err := n.TriggerShutdownBroadcast()
	if errors.Is(err, ErrNotOwner) {
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, BroadcastResult{Sent: sent})
}

func (n *Node) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	n.metrics.WritePrometheus(w)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}
