package handler

import (
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/opencity/server/internal/event"
	"github.com/opencity/server/internal/net"
	"github.com/opencity/server/internal/sim"
	"github.com/opencity/server/internal/world"
)

func init() {
	register("speak", handleSpeak)
}

const maxSpeechLen = 280

var speechFolder = cases.Fold()

// normalizeSpeech case-folds and trims text for duplicate suppression.
func normalizeSpeech(text string) string {
	return speechFolder.String(strings.TrimSpace(text))
}

// handleSpeak queues an utterance: {text, volume?, to?}. Directed speech
// takes a turn lock on the target until they reply or the timeout passes.
func handleSpeak(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	var p struct {
		Text   string `json:"text"`
		Volume string `json:"volume"`
		To     string `json:"to"`
	}
	if err := params(msg, &p); err != nil {
		return fail(msg, ReasonBadParams)
	}
	p.Text = strings.TrimSpace(p.Text)
	if p.Text == "" || len(p.Text) > maxSpeechLen {
		return fail(msg, ReasonBadParams)
	}
	switch p.Volume {
	case "":
		p.Volume = world.VolumeNormal
	case world.VolumeWhisper, world.VolumeNormal, world.VolumeShout:
	default:
		return fail(msg, ReasonBadParams)
	}

	now := time.Now()
	if now.Sub(r.LastSpeech) < sim.SpeakCooldown {
		return fail(msg, ReasonTooSoon)
	}

	norm := normalizeSpeech(p.Text)
	gcRecentSpeech(r, now)
	if at, seen := r.RecentSpeech[norm]; seen && now.Sub(at) < sim.DuplicateWindow {
		return fail(msg, ReasonDuplicate)
	}

	cost := sim.SpeakEnergyCost
	if p.Volume == world.VolumeShout {
		cost = sim.ShoutEnergyCost
	}
	if r.Needs.Energy < cost {
		return fail(msg, ReasonExhausted)
	}

	var target *world.Resident
	if p.To != "" {
		target = d.World.Get(p.To)
		if target == nil || !target.Alive() {
			return fail(msg, ReasonNotFound)
		}
		if at, waiting := r.AwaitingReply[p.To]; waiting {
			remaining := sim.TurnTimeout - now.Sub(at)
			if remaining > 0 {
				return failData(msg, ReasonAwaitingReply, map[string]any{
					"target":         p.To,
					"remaining_secs": remaining.Seconds(),
				})
			}
			delete(r.AwaitingReply, p.To)
		}
	}

	r.Needs.Energy -= cost
	r.Needs.Clamp()
	r.LastSpeech = now
	r.RecentSpeech[norm] = now
	r.PendingSpeech = append(r.PendingSpeech, world.Speech{
		Text:    p.Text,
		Volume:  p.Volume,
		To:      p.To,
		AtWorld: d.World.Clock.WorldSecs,
	})

	if target != nil {
		// Replying clears the target's lock on us; our own lock on the
		// target starts now.
		delete(target.AwaitingReply, r.ID)
		r.AwaitingReply[p.To] = now
	}

	d.Events.Append(event.Record{
		Type:       event.TypeSpeech,
		ResidentID: r.ID,
		TargetID:   p.To,
		Payload:    map[string]any{"volume": p.Volume, "length": len(p.Text)},
	})
	return ok(msg, map[string]any{"volume": p.Volume})
}

func gcRecentSpeech(r *world.Resident, now time.Time) {
	for text, at := range r.RecentSpeech {
		if now.Sub(at) > sim.DuplicateWindow {
			delete(r.RecentSpeech, text)
		}
	}
}
