package net

import (
	"encoding/json"

	"github.com/opencity/server/internal/perception"
)

// ClientMessage is the inbound envelope: an action tag, an optional
// request id for idempotence, and tag-specific params.
type ClientMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// Outbound message types.

type Welcome struct {
	Type      string              `json:"type"` // "welcome"
	Resident  perception.SelfView `json:"resident"`
	MapURL    string              `json:"map_url"`
	WorldSecs int64               `json:"world_secs"`
}

type PerceptionMsg struct {
	Type string `json:"type"` // "perception"
	perception.Packet
}

type ActionResult struct {
	Type      string `json:"type"` // "action_result"
	RequestID string `json:"request_id,omitempty"`
	Status    string `json:"status"` // "ok" | "error"
	Reason    string `json:"reason,omitempty"`
	Data      any    `json:"data,omitempty"`
}

type InspectResult struct {
	Type      string `json:"type"` // "inspect_result"
	RequestID string `json:"request_id,omitempty"`
	Resident  any    `json:"resident"`
}

type PainMsg struct {
	Type      string               `json:"type"` // "pain"
	Message   string               `json:"message"`
	Source    string               `json:"source"`
	Intensity string               `json:"intensity"`
	Needs     perception.NeedsView `json:"needs_snapshot"`
}

type SystemAnnouncement struct {
	Type    string `json:"type"` // "system_announcement"
	Title   string `json:"title"`
	Version string `json:"version"`
}

type EventMsg struct {
	Type    string `json:"type"` // "event"
	Payload any    `json:"payload"`
}

type ErrorMsg struct {
	Type    string `json:"type"` // "error"
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WebSocket close codes in the application range.
const (
	CloseInvalidToken  = 4001
	CloseDeceased      = 4002
	CloseUnknownTarget = 4003
	CloseSlowConsumer  = 4004
	CloseServerExit    = 4005
)
