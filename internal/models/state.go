package models

import "time"

// StateSnapshot reports the engine's view of connectivity at a moment
// in time.
type StateSnapshot struct {
	Online        bool      `json:"online"`
	Link          bool      `json:"link"`
	Reachable     bool      `json:"reachable"`
	PollingActive bool      `json:"polling_active"`
	IntervalMS    int64     `json:"interval_ms"`
	Endpoint      string    `json:"endpoint"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// StateEvent is one push message on the websocket stream. Event is
// "snapshot" for the initial message, then one of link-online,
// link-offline, polled-online, polled-offline.
type StateEvent struct {
	Event  string    `json:"event"`
	Online bool      `json:"online"`
	At     time.Time `json:"at"`
}
