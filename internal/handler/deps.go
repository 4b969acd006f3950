// Package handler is the action arbiter: every client command is validated
// and applied here, on the scheduler goroutine. Handlers mutate world state
// directly (never persistence without the in-memory mutation), append
// events, and fire webhooks to affected parties.
package handler

import (
	"go.uber.org/zap"

	"github.com/opencity/server/internal/data"
	"github.com/opencity/server/internal/event"
	"github.com/opencity/server/internal/persist"
	"github.com/opencity/server/internal/sim"
	"github.com/opencity/server/internal/webhook"
	"github.com/opencity/server/internal/world"
)

// Deps carries everything a handler may touch. Built once at boot.
type Deps struct {
	World   *world.State
	Items   *data.ItemTable
	Jobs    *data.JobTable
	Events  *event.Log
	Hooks   *webhook.Dispatcher
	Economy *sim.Economy // shop stock lives there

	Residents *persist.ResidentRepo
	Petitions *persist.PetitionRepo
	Referrals *persist.ReferralRepo
	Feedback  *persist.FeedbackRepo

	// PublicURL prefixes referral links.
	PublicURL string

	Log *zap.Logger
}
