package observer

import (
	"colonysim/internal/protocol"
	"colonysim/internal/sim/colony"
)

// Client -> Server. First message on the connection; may be re-sent to change
// the filter.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// Agents limits agent states and events to these IDs; empty means all.
	Agents []string `json:"agents,omitempty"`
	Events bool     `json:"events"`
}

// Server -> Client, once after a valid SUBSCRIBE.
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	SessionID       string            `json:"session_id"`
	Tick            uint64            `json:"tick"`
	TickRateHz      int               `json:"tick_rate_hz"`
	Width           int               `json:"width"`
	Height          int               `json:"height"`
	Catalogs        map[string]string `json:"catalog_digests,omitempty"`
}

// Server -> Client, every tick.
type TickMsg struct {
	Type            string              `json:"type"`
	ProtocolVersion string              `json:"protocol_version"`
	Tick            uint64              `json:"tick"`
	Time            float64             `json:"time"`
	Digest          string              `json:"digest"`
	Jobs            int                 `json:"jobs"`
	Agents          []colony.AgentState `json:"agents"`
	Events          []protocol.Event    `json:"events,omitempty"`
}
