package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencity/server/internal/auth"
	"github.com/opencity/server/internal/persist"
	"github.com/opencity/server/internal/world"
)

// RegistrationDeps is what the register endpoint needs beyond the server's
// own fields: the token keeper and the world, which it only touches from
// inside scheduler tasks.
type RegistrationDeps struct {
	Keeper *auth.Keeper
	World  *world.State
}

const maxNameLen = 32

type registerRequest struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Bio          string `json:"bio"`
	WebhookURL   string `json:"webhook_url"`
	ReferralCode string `json:"referral_code"`
}

// handleRegister creates a resident, queues it for the next train, and
// returns the passport plus connection token. Gated on the registration
// token when one is configured.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if want := s.cfg.Auth.RegistrationToken; want != "" {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if got != want {
			writeError(w, http.StatusUnauthorized, "registration token required")
			return
		}
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > maxNameLen {
		writeError(w, http.StatusBadRequest, "name required, at most 32 characters")
		return
	}
	typ := world.TypeAgent
	if req.Type == string(world.TypeHuman) {
		typ = world.TypeHuman
	}
	if req.WebhookURL != "" {
		u, err := url.Parse(req.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			writeError(w, http.StatusBadRequest, "webhook_url must be http or https")
			return
		}
	}

	id := uuid.NewString()
	var passport string
	var row *persist.ResidentRow
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Passport allocation and world insertion happen on the scheduler
	// goroutine; the persisted row is captured there too so nothing outside
	// the tick reads the live resident.
	err := s.sched.Do(ctx, func() {
		passport = s.reg.World.NextPassport()
		res := world.NewResident(id, passport, req.Name, typ)
		res.Bio = strings.TrimSpace(req.Bio)
		res.WebhookURL = req.WebhookURL
		res.Dirty = false
		s.reg.World.AddResident(res)
		s.reg.World.QueueForTrain(id)
		row = res.Row()
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "world unavailable")
		return
	}

	if err := s.residents.Create(ctx, row); err != nil {
		s.log.Error("persist new resident", zap.Error(err), zap.String("resident", id))
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	s.recordReferral(ctx, req.ReferralCode, id)

	token, err := s.reg.Keeper.Mint(auth.Claims{
		ResidentID: id,
		PassportNo: passport,
		Type:       string(typ),
	})
	if err != nil {
		s.log.Error("mint token", zap.Error(err), zap.String("resident", id))
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	s.log.Info("resident registered",
		zap.String("resident", id),
		zap.String("passport", passport),
		zap.String("type", string(typ)))
	writeJSON(w, http.StatusCreated, map[string]any{
		"resident_id": id,
		"passport_no": passport,
		"token":       token,
		"ws_url":      "/ws",
	})
}

// recordReferral links a new resident to its referrer. An unknown code is
// ignored rather than failing the registration.
func (s *Server) recordReferral(ctx context.Context, code, referredID string) {
	if code == "" {
		return
	}
	referrerID, err := s.referrals.ReferrerByCode(ctx, code)
	if errors.Is(err, persist.ErrNotFound) {
		return
	}
	if err != nil {
		s.log.Error("referral lookup", zap.Error(err), zap.String("code", code))
		return
	}
	if err := s.referrals.Record(ctx, code, referrerID, referredID); err != nil {
		s.log.Error("record referral", zap.Error(err), zap.String("code", code))
	}
}
