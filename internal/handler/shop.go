package handler

import (
	"math"

	"github.com/google/uuid"

	"github.com/opencity/server/internal/event"
	"github.com/opencity/server/internal/net"
	"github.com/opencity/server/internal/sim"
	"github.com/opencity/server/internal/world"
)

func init() {
	register("buy", handleBuy)
	register("eat", handleEat)
	register("drink", handleDrink)
	register("forage", handleForage)
	register("collect_ubi", handleCollectUBI)
}

// addItem stacks a non-durable item or appends a fresh durable stack.
func addItem(r *world.Resident, itemType string, qty, durability int) *world.ItemStack {
	if durability < 0 {
		if s := r.ItemByType(itemType); s != nil && s.Durability < 0 {
			s.Quantity += qty
			r.Dirty = true
			return s
		}
	}
	s := &world.ItemStack{
		ID:         uuid.NewString(),
		Type:       itemType,
		Quantity:   qty,
		Durability: durability,
	}
	r.Inv = append(r.Inv, s)
	r.Dirty = true
	return s
}

func handleBuy(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	var p struct {
		ItemType string `json:"item_type"`
		Quantity int    `json:"quantity"`
	}
	if err := params(msg, &p); err != nil {
		return fail(msg, ReasonBadParams)
	}
	if p.Quantity <= 0 {
		p.Quantity = 1
	}
	if r.Building != "shop" {
		return fail(msg, ReasonWrongBuilding)
	}
	item := d.Items.Get(p.ItemType)
	if item == nil || item.Price <= 0 {
		return fail(msg, ReasonNotFound)
	}
	stock := d.Economy.ShopStock[item.Type]
	if stock < p.Quantity {
		return fail(msg, ReasonNoStock)
	}
	total := item.Price * p.Quantity
	if r.Wallet < total {
		return fail(msg, ReasonNoFunds)
	}

	r.Wallet -= total
	d.Economy.ShopStock[item.Type] = stock - p.Quantity
	stack := addItem(r, item.Type, p.Quantity, item.Durability)

	d.Events.Append(event.Record{
		Type:       event.TypePurchase,
		ResidentID: r.ID,
		BuildingID: "shop",
		Payload:    map[string]any{"item": item.Type, "quantity": p.Quantity, "total": total},
	})
	return ok(msg, map[string]any{
		"wallet":  r.Wallet,
		"item_id": stack.ID,
		"item":    item.Type,
		"stock":   d.Economy.ShopStock[item.Type],
	})
}

func handleEat(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	return consume(d, r, msg, true)
}

func handleDrink(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	return consume(d, r, msg, false)
}

// consume applies an item's restore values and decrements the stack.
func consume(d *Deps, r *world.Resident, msg net.ClientMessage, eating bool) *net.ActionResult {
	var p struct {
		ItemID string `json:"item_id"`
	}
	if err := params(msg, &p); err != nil {
		return fail(msg, ReasonBadParams)
	}
	if r.Sleeping {
		return fail(msg, ReasonSleeping)
	}
	stack := r.Item(p.ItemID)
	if stack == nil {
		return fail(msg, ReasonNotFound)
	}
	item := d.Items.Get(stack.Type)
	if item == nil || item.SleepingBag {
		return fail(msg, ReasonNotAllowed)
	}
	if eating && !item.Edible() {
		return fail(msg, ReasonNotAllowed)
	}
	if !eating && !item.Drinkable() {
		return fail(msg, ReasonNotAllowed)
	}

	r.Needs.Hunger += float64(item.HungerRestore)
	r.Needs.Thirst += float64(item.ThirstRestore)
	r.Needs.Clamp()
	stack.Quantity--
	if stack.Quantity <= 0 {
		r.RemoveItem(stack.ID)
	}
	r.Dirty = true
	return ok(msg, map[string]any{
		"hunger": round1(r.Needs.Hunger),
		"thirst": round1(r.Needs.Thirst),
	})
}

// handleForage takes one use from the nearest live node in reach.
func handleForage(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	if reason := canMove(r); reason != "" {
		return fail(msg, reason)
	}
	if r.Building != "" {
		return fail(msg, ReasonWrongBuilding)
	}

	var nearest *world.ForageNode
	best := sim.ForageRange + 1
	for _, n := range d.World.Forage {
		dist := math.Hypot(n.X-r.X, n.Y-r.Y)
		if dist <= sim.ForageRange && dist < best {
			nearest = n
			best = dist
		}
	}
	if nearest == nil {
		return fail(msg, ReasonOutOfRange)
	}
	if !nearest.Take(d.World.Clock.WorldSecs) {
		return fail(msg, ReasonDepleted)
	}
	stack := addItem(r, nearest.YieldItem(), 1, -1)
	d.Events.Append(event.Record{
		Type:       event.TypeForage,
		ResidentID: r.ID,
		Payload:    map[string]any{"node": nearest.ID, "item": stack.Type, "uses_remaining": nearest.Uses},
	})
	return ok(msg, map[string]any{
		"item":           stack.Type,
		"item_id":        stack.ID,
		"uses_remaining": nearest.Uses,
	})
}

// handleCollectUBI pays the basic income inside the bank, once per 24
// game-hours.
func handleCollectUBI(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	if r.Building != "bank" {
		return fail(msg, ReasonWrongBuilding)
	}
	worldSecs := d.World.Clock.WorldSecs
	if r.LastUBIWS > 0 && worldSecs-r.LastUBIWS < sim.UBICooldownSecs {
		return failData(msg, ReasonTooSoon, map[string]any{
			"next_in_world_secs": sim.UBICooldownSecs - (worldSecs - r.LastUBIWS),
		})
	}
	r.Wallet += sim.UBIAmount
	r.LastUBIWS = worldSecs
	r.Dirty = true
	d.Events.Append(event.Record{
		Type:       event.TypeUBIPaid,
		ResidentID: r.ID,
		BuildingID: "bank",
		Payload:    map[string]any{"amount": sim.UBIAmount},
	})
	return ok(msg, map[string]any{"wallet": r.Wallet, "amount": sim.UBIAmount})
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
