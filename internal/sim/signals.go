package sim

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencity/server/internal/persist"
	"github.com/opencity/server/internal/webhook"
	"github.com/opencity/server/internal/world"
)

// Pain tier names.
const (
	TierMild   = "mild"
	TierSevere = "severe"
	TierAgony  = "agony"
)

var painTexts = map[string]map[string]string{
	"hunger": {
		TierMild:   "Your stomach growls. You should eat something.",
		TierSevere: "You are very hungry. Find food soon.",
		TierAgony:  "You are starving. You will die without food.",
	},
	"thirst": {
		TierMild:   "Your mouth is dry. You should drink something.",
		TierSevere: "You are very thirsty. Find water soon.",
		TierAgony:  "You are dying of thirst.",
	},
	"social": {
		TierMild:   "You feel lonely. Talk to someone.",
		TierSevere: "The isolation is wearing you down.",
		TierAgony:  "You are desperately alone. Your health is failing.",
	},
	"health": {
		TierMild:   "You feel unwell.",
		TierSevere: "You are badly hurt. Take care of your needs.",
		TierAgony:  "You are close to death.",
	},
}

// painTier maps a need value to its severity tier, or "" when fine.
func painTier(source string, value float64) string {
	mild, severe, agony := PainMild, PainSevere, PainAgony
	if source == "health" {
		mild, severe, agony = HealthPainMild, HealthPainSevere, HealthPainAgony
	}
	switch {
	case value <= agony:
		return TierAgony
	case value <= severe:
		return TierSevere
	case value <= mild:
		return TierMild
	default:
		return ""
	}
}

// EmitPain queues pain messages for needs inside a severity tier, rate
// limited per source and tier.
func EmitPain(r *world.Resident, now time.Time) {
	sources := map[string]float64{
		"hunger": r.Needs.Hunger,
		"thirst": r.Needs.Thirst,
		"social": r.Needs.Social,
		"health": r.Needs.Health,
	}
	for source, value := range sources {
		tier := painTier(source, value)
		if tier == "" {
			continue
		}
		key := source + "/" + tier
		if now.Sub(r.PainCooldowns[key]) < PainCooldown {
			continue
		}
		r.PainCooldowns[key] = now
		r.PendingPain = append(r.PendingPain, world.PainMessage{
			Message:   painTexts[source][tier],
			Source:    source,
			Intensity: tier,
		})
	}
}

// Reflections fires the milestone and periodic reflection webhooks. Each
// carries a single-use feedback token exchanged at the HTTP surface.
type Reflections struct {
	world     *world.State
	feedback  *persist.FeedbackRepo
	referrals *persist.ReferralRepo
	hooks     *webhook.Dispatcher
	log       *zap.Logger
}

func NewReflections(w *world.State, feedback *persist.FeedbackRepo, referrals *persist.ReferralRepo,
	hooks *webhook.Dispatcher, log *zap.Logger) *Reflections {
	return &Reflections{world: w, feedback: feedback, referrals: referrals, hooks: hooks, log: log}
}

func (s *Reflections) Update(dt time.Duration) {
	now := time.Now()
	s.world.Alive(func(r *world.Resident) {
		if !r.ReflectedSurvival && now.Sub(r.JoinedAt) >= SurvivalMilestone {
			r.ReflectedSurvival = true
			s.matureReferral(r)
			if r.WebhookURL != "" {
				s.send(r, "survival_30m", "You have survived your first 30 minutes. How has it been?")
			}
		}
		if r.WebhookURL == "" {
			return
		}
		if !r.ReflectedFirstTalk && r.ConversationCount > 0 {
			r.ReflectedFirstTalk = true
			s.send(r, "first_conversation", "You had your first conversation. What did you make of it?")
		}
		if !r.ReflectedRecovery && r.WasBelowHealth20 && r.Needs.Health > 50 {
			r.ReflectedRecovery = true
			s.send(r, "recovery", "You pulled back from the brink. What changed?")
		}
		if r.LastPeriodicReflect.IsZero() {
			r.LastPeriodicReflect = now
		} else if now.Sub(r.LastPeriodicReflect) >= PeriodicReflect {
			r.LastPeriodicReflect = now
			s.send(r, "periodic", "Time for a check-in. How is life in the city?")
		}
	})
}

// matureReferral marks the referral that brought this resident as payable;
// surviving the first half hour is the maturity bar.
func (s *Reflections) matureReferral(r *world.Resident) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.referrals.Mature(ctx, r.ID); err != nil {
		s.log.Error("mature referral", zap.Error(err), zap.String("resident", r.ID))
	}
}

func (s *Reflections) send(r *world.Resident, kind, prompt string) {
	token := uuid.NewString()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.feedback.Issue(ctx, token, r.ID, kind); err != nil {
		s.log.Error("issue feedback token", zap.Error(err), zap.String("resident", r.ID))
		return
	}
	s.hooks.Enqueue(r.WebhookURL, webhook.Notification{
		Kind:       webhook.KindReflection,
		ResidentID: r.ID,
		WorldSecs:  s.world.Clock.WorldSecs,
		Data: map[string]any{
			"reflection": kind,
			"prompt":     prompt,
			"token":      token,
			"submit_via": "POST /api/feedback {token, response}",
		},
	}, true)
}
