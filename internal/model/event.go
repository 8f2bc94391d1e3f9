package model

import (
	"encoding/json"
	"strconv"
)

// Event carries one completed snapshot for a token out of its collector task.
// Index is the snapshot's position in the token's metrics log; Sample is the
// observation that produced it. Forming previews the unfinished candle of
// each target interval.
type Event struct {
	Token    string   `json:"token"`
	Index    int      `json:"index"`
	Sample   Sample   `json:"sample"`
	Snapshot Snapshot `json:"snapshot"`
	Forming  []Candle `json:"forming,omitempty"`
}

// StreamKey returns the Redis stream key: "metrics:{token}".
func (e *Event) StreamKey() string {
	return "metrics:" + e.Token
}

// LatestKey returns the Redis key holding the newest snapshot: "metrics:latest:{token}".
func (e *Event) LatestKey() string {
	return "metrics:latest:" + e.Token
}

// PubSubChannel returns the Redis PubSub channel: "pub:metrics:{token}".
func (e *Event) PubSubChannel() string {
	return "pub:metrics:" + e.Token
}

// ID returns "{token}:{index}", unique within one run.
func (e *Event) ID() string {
	return e.Token + ":" + strconv.Itoa(e.Index)
}

// JSON returns the JSON-encoded event.
func (e *Event) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}
