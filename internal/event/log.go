// Package event is the append-only world event log. The scheduler goroutine
// owns it: records accumulate in memory during a tick and are flushed to the
// store in one batch at the persist phase. A bounded ring of recent records
// backs the public feed without touching the store on every read.
package event

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opencity/server/internal/persist"
)

// Event types on the public feed.
const (
	TypeArrival     = "arrival"
	TypeDeparture   = "departure"
	TypeDeath       = "death"
	TypeBodyProcess = "body_processed"
	TypeSpeech      = "speech"
	TypePurchase    = "purchase"
	TypeForage      = "forage"
	TypeHired       = "hired"
	TypeQuit        = "quit"
	TypeWagePaid    = "wage_paid"
	TypeUBIPaid     = "ubi_paid"
	TypeArrest      = "arrest"
	TypeBooking     = "booking"
	TypeRelease     = "release"
	TypePetition    = "petition"
	TypeVote        = "petition_vote"
	TypeTrade       = "trade"
	TypeGive        = "give"
	TypeRestock     = "shop_restock"
	TypeReferral    = "referral_claim"
)

// Record is one in-memory event. ID is assigned at append time, continuing
// the persisted sequence, so feed reads never see unnumbered records.
type Record struct {
	ID         int64          `json:"id"`
	TS         time.Time      `json:"ts"`
	Type       string         `json:"type"`
	ResidentID string         `json:"resident_id,omitempty"`
	TargetID   string         `json:"target_id,omitempty"`
	BuildingID string         `json:"building_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

const ringSize = 256

// Log accumulates records and keeps the recent ring. Append and Flush run on
// the scheduler goroutine; Recent is safe from HTTP handlers.
type Log struct {
	repo    *persist.EventRepo
	log     *zap.Logger
	pending []*persist.EventRow
	nextID  int64

	mu     sync.RWMutex
	recent []Record
}

func NewLog(repo *persist.EventRepo, log *zap.Logger) *Log {
	return &Log{repo: repo, log: log}
}

// SeedIDs continues the id sequence after the highest persisted id. Call once
// at startup, before the scheduler runs.
func (l *Log) SeedIDs(lastID int64) {
	l.nextID = lastID
}

// Append records an event and assigns its id. The store write happens at the
// next Flush.
func (l *Log) Append(rec Record) {
	l.nextID++
	rec.ID = l.nextID
	if rec.TS.IsZero() {
		rec.TS = time.Now().UTC()
	}
	payload := "{}"
	if len(rec.Payload) > 0 {
		if b, err := json.Marshal(rec.Payload); err == nil {
			payload = string(b)
		}
	}
	l.pending = append(l.pending, &persist.EventRow{
		ID:         rec.ID,
		TS:         rec.TS,
		Type:       rec.Type,
		ResidentID: rec.ResidentID,
		TargetID:   rec.TargetID,
		BuildingID: rec.BuildingID,
		Payload:    payload,
	})

	l.mu.Lock()
	l.recent = append(l.recent, rec)
	if len(l.recent) > ringSize {
		l.recent = l.recent[len(l.recent)-ringSize:]
	}
	l.mu.Unlock()
}

// Flush writes pending records to the store in insertion order.
func (l *Log) Flush(ctx context.Context) {
	if len(l.pending) == 0 {
		return
	}
	if err := l.repo.AppendBatch(ctx, l.pending); err != nil {
		l.log.Error("event flush failed", zap.Error(err), zap.Int("pending", len(l.pending)))
		return
	}
	l.pending = l.pending[:0]
}

// Recent returns up to limit recent records, newest first.
func (l *Log) Recent(limit int) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := len(l.recent)
	if limit > n {
		limit = n
	}
	out := make([]Record, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, l.recent[i])
	}
	return out
}
