// Package model defines the core context and memory data types.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Memory is a long-term memory entry retrievable for an account.
type Memory struct {
	ID         string    `json:"id"`
	NS         string    `json:"ns"`
	Key        string    `json:"key"`
	Content    string    `json:"content"`
	Kind       string    `json:"kind"`
	Tags       []string  `json:"tags,omitempty"`
	Version    int       `json:"version"`
	Supersedes string    `json:"supersedes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Priority   string    `json:"priority"`
	ChunkCount int       `json:"chunks,omitempty"`
}

// StoredMessage is a thread message as persisted by a thread store. Payload
// holds the JSON encoding of a Message.
type StoredMessage struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// Decode parses the payload into a Message.
func (m StoredMessage) Decode() (Message, error) {
	var msg Message
	if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
		return Message{}, fmt.Errorf("decode message %s: %w", m.ID, err)
	}
	return msg, nil
}

// ValidKinds are the allowed memory kinds.
var ValidKinds = map[string]bool{
	"semantic":   true,
	"episodic":   true,
	"procedural": true,
}

// ValidPriorities are the allowed memory priority levels.
var ValidPriorities = map[string]bool{
	"low":      true,
	"normal":   true,
	"high":     true,
	"critical": true,
}

// PriorityWeight maps a memory priority level onto the 0-1 chunk priority scale.
func PriorityWeight(p string) float64 {
	switch p {
	case "critical":
		return 1.0
	case "high":
		return 0.75
	case "low":
		return 0.25
	default:
		return 0.5
	}
}
