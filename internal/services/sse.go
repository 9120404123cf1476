package services

import (
	"sync"
	"time"
)

type ActivityType string

const (
	ActivityLogSubmitted      ActivityType = "log_submitted"
	ActivityLogApproved       ActivityType = "log_approved"
	ActivityLogRejected       ActivityType = "log_rejected"
	ActivityChallengeJoined   ActivityType = "challenge_joined"
	ActivityChallengeVote     ActivityType = "challenge_vote"
	ActivityChallengeArchived ActivityType = "challenge_archived"
)

// ActivityEvent is pushed to live dashboards over SSE.
type ActivityEvent struct {
	Type         ActivityType `json:"type"`
	UserID       uint         `json:"user_id,omitempty"`
	CommitmentID uint         `json:"commitment_id,omitempty"`
	LogID        uint         `json:"log_id,omitempty"`
	ChallengeID  uint         `json:"challenge_id,omitempty"`
	Streak       *int         `json:"streak,omitempty"`
	At           time.Time    `json:"at"`
}

// ActivityPublisher receives activity events. A nil *SSEHub is a valid no-op publisher.
type ActivityPublisher interface {
	Publish(event ActivityEvent)
}

// SSEHub fans activity events out to connected clients.
type SSEHub struct {
	clients map[string]chan ActivityEvent
	mu      sync.RWMutex
	buffer  int
}

func NewSSEHub() *SSEHub {
	return &SSEHub{
		clients: make(map[string]chan ActivityEvent),
		buffer:  100,
	}
}

// Subscribe registers a client. Re-subscribing an id replaces its channel.
func (h *SSEHub) Subscribe(clientID string) <-chan ActivityEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.clients[clientID]; ok {
		close(old)
	}
	ch := make(chan ActivityEvent, h.buffer)
	h.clients[clientID] = ch
	return ch
}

func (h *SSEHub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.clients[clientID]; ok {
		close(ch)
		delete(h.clients, clientID)
	}
}

// Publish never blocks: a client with a full buffer misses the event.
func (h *SSEHub) Publish(event ActivityEvent) {
	if h == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.clients {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *SSEHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
