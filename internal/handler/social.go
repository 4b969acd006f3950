package handler

import (
	"math"
	"strconv"

	"github.com/opencity/server/internal/event"
	"github.com/opencity/server/internal/net"
	"github.com/opencity/server/internal/sim"
	"github.com/opencity/server/internal/webhook"
	"github.com/opencity/server/internal/world"
)

func init() {
	register("inspect", handleInspect)
	register("trade", handleTrade)
	register("give", handleGive)
}

// PublicCard is the inspectable summary of a resident.
type PublicCard struct {
	ID         string `json:"id"`
	PassportNo string `json:"passport_no"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	Bio        string `json:"bio,omitempty"`
	JobTitle   string `json:"job_title,omitempty"`
	Wanted     bool   `json:"wanted"`
}

func buildCard(d *Deps, t *world.Resident) PublicCard {
	card := PublicCard{
		ID:         t.ID,
		PassportNo: t.PassportNo,
		Name:       t.Name,
		Type:       string(t.Type),
		Status:     string(t.Status),
		Bio:        t.Bio,
		Wanted:     len(t.Offenses) > 0,
	}
	if t.Employment != nil {
		if job := d.Jobs.Get(t.Employment.JobID); job != nil {
			card.JobTitle = job.Title
		}
	}
	return card
}

// handleInspect returns a target's public card: {target: id or passport}.
func handleInspect(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	var p struct {
		Target string `json:"target"`
	}
	if err := params(msg, &p); err != nil || p.Target == "" {
		return fail(msg, ReasonBadParams)
	}
	t := d.World.Get(p.Target)
	if t == nil {
		t = d.World.GetByPassport(p.Target)
	}
	if t == nil || t.Status == world.StatusDeparted || t.Status == world.StatusProcessed {
		return fail(msg, ReasonNotFound)
	}
	card := buildCard(d, t)
	if sess != nil {
		sess.Send(net.InspectResult{Type: "inspect_result", RequestID: msg.RequestID, Resident: card})
	}
	return ok(msg, card)
}

// handleTrade transfers currency only: {to, offer_currency, request_currency}.
// Requested currency must be zero; a counter-offer is its own trade.
func handleTrade(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	var p struct {
		To        string `json:"to"`
		Offer     int    `json:"offer_currency"`
		Requested int    `json:"request_currency"`
	}
	if err := params(msg, &p); err != nil {
		return fail(msg, ReasonBadParams)
	}
	if p.Offer <= 0 || p.Requested != 0 {
		return fail(msg, ReasonBadParams)
	}
	t := d.World.Get(p.To)
	if t == nil || !t.Alive() {
		return fail(msg, ReasonNotFound)
	}
	if math.Hypot(t.X-r.X, t.Y-r.Y) > sim.GiveRange {
		return fail(msg, ReasonOutOfRange)
	}
	if r.Wallet < p.Offer {
		return fail(msg, ReasonNoFunds)
	}

	r.Wallet -= p.Offer
	t.Wallet += p.Offer
	r.Dirty, t.Dirty = true, true
	t.Notify(r.Name + " gave you " + strconv.Itoa(p.Offer) + " in currency.")
	d.Events.Append(event.Record{
		Type:       event.TypeTrade,
		ResidentID: r.ID,
		TargetID:   t.ID,
		Payload:    map[string]any{"amount": p.Offer},
	})
	return ok(msg, map[string]any{"wallet": r.Wallet})
}

// handleGive hands over an item stack (or part of it): {to, item_id, quantity}.
func handleGive(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	var p struct {
		To       string `json:"to"`
		ItemID   string `json:"item_id"`
		Quantity int    `json:"quantity"`
	}
	if err := params(msg, &p); err != nil {
		return fail(msg, ReasonBadParams)
	}
	if p.Quantity <= 0 {
		p.Quantity = 1
	}
	t := d.World.Get(p.To)
	if t == nil || !t.Alive() {
		return fail(msg, ReasonNotFound)
	}
	if math.Hypot(t.X-r.X, t.Y-r.Y) > sim.GiveRange {
		return fail(msg, ReasonOutOfRange)
	}
	stack := r.Item(p.ItemID)
	if stack == nil || stack.Quantity < p.Quantity {
		return fail(msg, ReasonNotFound)
	}

	if stack.Quantity == p.Quantity {
		r.RemoveItem(stack.ID)
	} else {
		stack.Quantity -= p.Quantity
	}
	addItem(t, stack.Type, p.Quantity, stack.Durability)
	r.Dirty = true

	t.Notify(r.Name + " gave you " + strconv.Itoa(p.Quantity) + "x " + stack.Type + ".")
	d.Hooks.Enqueue(t.WebhookURL, webhook.Notification{
		Kind:       webhook.KindItemReceived,
		ResidentID: t.ID,
		WorldSecs:  d.World.Clock.WorldSecs,
		Data:       map[string]any{"from": r.ID, "item": stack.Type, "quantity": p.Quantity},
	}, true)
	d.Events.Append(event.Record{
		Type:       event.TypeGive,
		ResidentID: r.ID,
		TargetID:   t.ID,
		Payload:    map[string]any{"item": stack.Type, "quantity": p.Quantity},
	})
	return ok(msg, nil)
}
