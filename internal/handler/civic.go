package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencity/server/internal/event"
	"github.com/opencity/server/internal/net"
	"github.com/opencity/server/internal/persist"
	"github.com/opencity/server/internal/sim"
	"github.com/opencity/server/internal/world"
)

func init() {
	register("write_petition", handleWritePetition)
	register("vote_petition", handleVotePetition)
	register("list_petitions", handleListPetitions)
	register("get_referral_link", handleGetReferralLink)
	register("claim_referrals", handleClaimReferrals)
	register("submit_feedback", handleSubmitFeedback)
}

// petitionLifetime is how long a petition stays open, in world-seconds.
const petitionLifetime = 7 * 86400

const maxPetitionTitle = 120
const maxPetitionBody = 2000

func repoCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Second)
}

func handleWritePetition(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	var p struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if err := params(msg, &p); err != nil {
		return fail(msg, ReasonBadParams)
	}
	p.Title = strings.TrimSpace(p.Title)
	p.Body = strings.TrimSpace(p.Body)
	if p.Title == "" || len(p.Title) > maxPetitionTitle || len(p.Body) > maxPetitionBody {
		return fail(msg, ReasonBadParams)
	}
	if r.Building != "council_hall" {
		return fail(msg, ReasonWrongBuilding)
	}

	worldSecs := d.World.Clock.WorldSecs
	row := &persist.PetitionRow{
		ID:        uuid.NewString(),
		AuthorID:  r.ID,
		Title:     p.Title,
		Body:      p.Body,
		CreatedWS: worldSecs,
		ExpiresWS: worldSecs + petitionLifetime,
	}
	ctx, cancel := repoCtx()
	defer cancel()
	if err := d.Petitions.Create(ctx, row); err != nil {
		d.Log.Error("create petition", zap.Error(err))
		return fail(msg, ReasonInternal)
	}
	d.Events.Append(event.Record{
		Type:       event.TypePetition,
		ResidentID: r.ID,
		Payload:    map[string]any{"petition": row.ID, "title": p.Title},
	})
	return ok(msg, map[string]any{"petition_id": row.ID, "expires_ws": row.ExpiresWS})
}

func handleVotePetition(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	var p struct {
		PetitionID string `json:"petition_id"`
		Up         *bool  `json:"up"`
	}
	if err := params(msg, &p); err != nil || p.PetitionID == "" || p.Up == nil {
		return fail(msg, ReasonBadParams)
	}
	if r.Building != "council_hall" {
		return fail(msg, ReasonWrongBuilding)
	}

	ctx, cancel := repoCtx()
	defer cancel()
	pet, err := d.Petitions.Get(ctx, p.PetitionID)
	if errors.Is(err, persist.ErrNotFound) {
		return fail(msg, ReasonNotFound)
	}
	if err != nil {
		d.Log.Error("load petition", zap.Error(err))
		return fail(msg, ReasonInternal)
	}
	if !pet.Open {
		return fail(msg, "petition_closed")
	}
	changed, err := d.Petitions.Vote(ctx, p.PetitionID, r.ID, *p.Up)
	if err != nil {
		d.Log.Error("vote petition", zap.Error(err))
		return fail(msg, ReasonInternal)
	}
	if !changed {
		return fail(msg, ReasonAlreadyVoted)
	}
	d.Events.Append(event.Record{
		Type:       event.TypeVote,
		ResidentID: r.ID,
		Payload:    map[string]any{"petition": p.PetitionID, "up": *p.Up},
	})
	return ok(msg, nil)
}

func handleListPetitions(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	if r.Building != "council_hall" {
		return fail(msg, ReasonWrongBuilding)
	}
	ctx, cancel := repoCtx()
	defer cancel()
	rows, err := d.Petitions.OpenPetitions(ctx)
	if err != nil {
		d.Log.Error("list petitions", zap.Error(err))
		return fail(msg, ReasonInternal)
	}
	type petitionEntry struct {
		ID        string `json:"id"`
		AuthorID  string `json:"author_id"`
		Title     string `json:"title"`
		Body      string `json:"body,omitempty"`
		ExpiresWS int64  `json:"expires_ws"`
		Up        int    `json:"up_votes"`
		Down      int    `json:"down_votes"`
	}
	list := make([]petitionEntry, 0, len(rows))
	for _, row := range rows {
		list = append(list, petitionEntry{
			ID: row.ID, AuthorID: row.AuthorID, Title: row.Title, Body: row.Body,
			ExpiresWS: row.ExpiresWS, Up: row.Up, Down: row.Down,
		})
	}
	return ok(msg, map[string]any{"petitions": list})
}

// handleGetReferralLink allocates (once) and returns the resident's
// referral code and share link.
func handleGetReferralLink(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	if r.ReferralCode == "" {
		code := uuid.NewString()[:8]
		ctx, cancel := repoCtx()
		defer cancel()
		if err := d.Residents.SetReferralCode(ctx, r.ID, code); err != nil {
			d.Log.Error("set referral code", zap.Error(err))
			return fail(msg, ReasonInternal)
		}
		r.ReferralCode = code
	}
	return ok(msg, map[string]any{
		"code": r.ReferralCode,
		"link": d.PublicURL + "/?ref=" + r.ReferralCode,
	})
}

// handleClaimReferrals pays out matured, unclaimed referrals.
func handleClaimReferrals(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	ctx, cancel := repoCtx()
	defer cancel()
	n, err := d.Referrals.ClaimMatured(ctx, r.ID)
	if err != nil {
		d.Log.Error("claim referrals", zap.Error(err))
		return fail(msg, ReasonInternal)
	}
	if n == 0 {
		return ok(msg, map[string]any{"claimed": 0, "wallet": r.Wallet})
	}
	bonus := n * sim.ReferralBonus
	r.Wallet += bonus
	r.Dirty = true
	d.Events.Append(event.Record{
		Type:       event.TypeReferral,
		ResidentID: r.ID,
		Payload:    map[string]any{"claimed": n, "bonus": bonus},
	})
	return ok(msg, map[string]any{"claimed": n, "bonus": bonus, "wallet": r.Wallet})
}

// handleSubmitFeedback exchanges a reflection token for a free-text answer.
func handleSubmitFeedback(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	var p struct {
		Token    string `json:"token"`
		Response string `json:"response"`
	}
	if err := params(msg, &p); err != nil || p.Token == "" || strings.TrimSpace(p.Response) == "" {
		return fail(msg, ReasonBadParams)
	}
	ctx, cancel := repoCtx()
	defer cancel()
	accepted, err := d.Feedback.Answer(ctx, p.Token, strings.TrimSpace(p.Response))
	if err != nil {
		d.Log.Error("submit feedback", zap.Error(err))
		return fail(msg, ReasonInternal)
	}
	if !accepted {
		return fail(msg, "invalid_token")
	}
	return ok(msg, nil)
}
