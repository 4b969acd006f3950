// Package httpapi is the companion HTTP surface: registration, public world
// reads, the feedback endpoint, health, metrics, the WebSocket upgrade, and
// the static client. World reads come from the scheduler's published
// snapshot; world writes go through the scheduler task queue.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/opencity/server/internal/config"
	"github.com/opencity/server/internal/data"
	"github.com/opencity/server/internal/event"
	"github.com/opencity/server/internal/metrics"
	gamenet "github.com/opencity/server/internal/net"
	"github.com/opencity/server/internal/persist"
	"github.com/opencity/server/internal/sim"
)

type Server struct {
	cfg     *config.Config
	sched   *sim.Scheduler
	gameMap *data.GameMap
	events  *event.Log
	gateway *gamenet.Gateway
	met     *metrics.Set
	log     *zap.Logger

	residents *persist.ResidentRepo
	referrals *persist.ReferralRepo
	feedback  *persist.FeedbackRepo

	reg RegistrationDeps

	httpSrv *http.Server
}

func New(cfg *config.Config, sched *sim.Scheduler, gameMap *data.GameMap, events *event.Log,
	gateway *gamenet.Gateway, met *metrics.Set, residents *persist.ResidentRepo,
	referrals *persist.ReferralRepo, feedback *persist.FeedbackRepo, reg RegistrationDeps,
	log *zap.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		sched:     sched,
		gameMap:   gameMap,
		events:    events,
		gateway:   gateway,
		met:       met,
		residents: residents,
		referrals: referrals,
		feedback:  feedback,
		reg:       reg,
		log:       log,
	}
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/map", s.handleMap).Methods(http.MethodGet)
	api.HandleFunc("/residents", s.handleResidents).Methods(http.MethodGet)
	api.HandleFunc("/residents/{id}", s.handleResident).Methods(http.MethodGet)
	api.HandleFunc("/buildings/{id}", s.handleBuilding).Methods(http.MethodGet)
	api.HandleFunc("/leaderboard", s.handleLeaderboard).Methods(http.MethodGet)
	api.HandleFunc("/feed", s.handleFeed).Methods(http.MethodGet)
	api.HandleFunc("/feedback", s.handleFeedback).Methods(http.MethodPost)

	r.HandleFunc("/ws", s.gateway.HandleWS)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.met.Registry, promhttp.HandlerOpts{}))

	if dist := s.cfg.Server.ClientDist; dist != "" {
		if _, err := os.Stat(dist); err == nil {
			r.PathPrefix("/").Handler(spaHandler{dist: dist})
		}
	}
	return r
}

// ListenAndServe blocks until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	s.log.Info("http listening", zap.String("addr", s.httpSrv.Addr))
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	snap := s.sched.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"world_secs": snap.WorldSecs,
		"residents":  snap.Alive,
		"sessions":   s.gateway.SessionCount(),
	})
}

func (s *Server) handleMap(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.gameMap)
}

func (s *Server) handleResidents(w http.ResponseWriter, _ *http.Request) {
	snap := s.sched.Snapshot()
	out := make([]sim.ResidentSummary, 0, len(snap.Residents))
	for _, sum := range snap.Residents {
		out = append(out, sum)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"world_secs": snap.WorldSecs,
		"hour":       snap.Hour,
		"residents":  out,
	})
}

// handleResident resolves by resident id first, passport number second.
func (s *Server) handleResident(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap := s.sched.Snapshot()
	if sum, ok := snap.Residents[id]; ok {
		writeJSON(w, http.StatusOK, sum)
		return
	}
	for _, sum := range snap.Residents {
		if sum.PassportNo == id {
			writeJSON(w, http.StatusOK, sum)
			return
		}
	}
	writeError(w, http.StatusNotFound, "unknown resident")
}

func (s *Server) handleBuilding(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	b := s.gameMap.BuildingByID(id)
	if b == nil {
		writeError(w, http.StatusNotFound, "unknown building")
		return
	}
	snap := s.sched.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        b.ID,
		"name":      b.Name,
		"x":         b.X,
		"y":         b.Y,
		"w":         b.W,
		"h":         b.H,
		"occupants": snap.Occupancy[b.ID],
	})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	rows, err := s.residents.Leaderboard(ctx, 20)
	if err != nil {
		s.log.Error("leaderboard query", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "leaderboard unavailable")
		return
	}
	type entry struct {
		PassportNo string `json:"passport_no"`
		Name       string `json:"name"`
		Wallet     int    `json:"wallet"`
	}
	out := make([]entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, entry{PassportNo: row.PassportNo, Name: row.Name, Wallet: row.Wallet})
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": out})
}

func (s *Server) handleFeed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"events": s.events.Recent(50)})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Response string `json:"response"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" || req.Response == "" {
		writeError(w, http.StatusBadRequest, "token and response required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	accepted, err := s.feedback.Answer(ctx, req.Token, req.Response)
	if err != nil {
		s.log.Error("feedback answer", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "feedback unavailable")
		return
	}
	if !accepted {
		writeError(w, http.StatusNotFound, "unknown or already answered token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// spaHandler serves the built client, falling back to index.html for client
// side routes.
type spaHandler struct {
	dist string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(h.dist, filepath.Clean("/"+r.URL.Path))
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		http.ServeFile(w, r, path)
		return
	}
	http.ServeFile(w, r, filepath.Join(h.dist, "index.html"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
