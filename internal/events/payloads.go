package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

type ChainSavedPayload struct {
	ChainID string `json:"chain_id"`
	Status  string `json:"status"`
}

func (ChainSavedPayload) EventType() EventType { return EventChainSaved }

type ChainResumedPayload struct {
	ChainID        string `json:"chain_id"`
	FromTaskID     string `json:"from_task_id"`
	TotalRemaining int    `json:"total_remaining"`
	SkippedCount   int    `json:"skipped_count"`
}

func (ChainResumedPayload) EventType() EventType { return EventChainResumed }

type ChainDeletedPayload struct {
	ChainID string `json:"chain_id"`
}

func (ChainDeletedPayload) EventType() EventType { return EventChainDeleted }

type TaskDispatchedPayload struct {
	ChainID   string `json:"chain_id"`
	TaskID    string `json:"task_id"`
	AgentSlug string `json:"agent_slug"`
}

func (TaskDispatchedPayload) EventType() EventType { return EventTaskDispatched }

type TaskCompletedPayload struct {
	ChainID      string        `json:"chain_id"`
	TaskID       string        `json:"task_id"`
	TaskPacketID string        `json:"task_packet_id,omitempty"`
	Duration     time.Duration `json:"duration"`
}

func (TaskCompletedPayload) EventType() EventType { return EventTaskCompleted }

type TaskFailedPayload struct {
	ChainID string `json:"chain_id"`
	TaskID  string `json:"task_id"`
	Error   string `json:"error"`
}

func (TaskFailedPayload) EventType() EventType { return EventTaskFailed }

// NewTypedEvent builds an Event from a typed payload.
func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

// NewTypedEventWithChain builds an Event carrying chain context.
func NewTypedEventWithChain(source EventSource, payload EventPayload, chainID string) Event {
	return Event{
		ID:        generateEventID(),
		ChainID:   chainID,
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}
