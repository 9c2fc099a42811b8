package api

import (
	"github.com/openmon/procmon/internal/metrics"
)

// HelloMessage is the initial payload sent on WebSocket connection.
type HelloMessage struct {
	Type       string          `json:"type"`
	IntervalMS int             `json:"interval_ms"`
	Features   map[string]bool `json:"features"`
}

// NewHelloMessage constructs a hello payload.
func NewHelloMessage(intervalMS int, features map[string]bool) HelloMessage {
	return HelloMessage{
		Type:       "hello",
		IntervalMS: intervalMS,
		Features:   features,
	}
}

// ProcsMessage wraps a process snapshot for transport.
type ProcsMessage struct {
	Type string `json:"type"`
	metrics.ProcessSnapshot
}

// NewProcsMessage constructs a procs payload.
func NewProcsMessage(snapshot metrics.ProcessSnapshot) ProcsMessage {
	return ProcsMessage{
		Type:            "procs",
		ProcessSnapshot: snapshot,
	}
}

// CPUMessage wraps an aggregate CPU snapshot for transport.
type CPUMessage struct {
	Type string `json:"type"`
	metrics.CPUSnapshot
}

// NewCPUMessage constructs a cpu payload.
func NewCPUMessage(snapshot metrics.CPUSnapshot) CPUMessage {
	return CPUMessage{
		Type:        "cpu",
		CPUSnapshot: snapshot,
	}
}

// ErrorMessage communicates an error condition to the client.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ClientMessage is a generic envelope used for decoding inbound client messages.
type ClientMessage struct {
	Type string `json:"type"`
}

// PongMessage is the response to a ping.
type PongMessage struct {
	Type string `json:"type"`
}
