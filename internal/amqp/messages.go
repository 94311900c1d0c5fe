package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/state"
)

// RecordChangeMessage carries the records touched by one local mutation.
// Upserts and replacements carry full records; deletes carry ids only.
type RecordChangeMessage struct {
	Namespace string         `json:"namespace"`
	Op        state.ChangeOp `json:"op"`
	Records   []core.Tx      `json:"records,omitempty"`
	IDs       []string       `json:"ids,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewRecordChangeMessage wraps a store change.
func NewRecordChangeMessage(c state.RecordChange) *RecordChangeMessage {
	return &RecordChangeMessage{
		Namespace: c.Namespace,
		Op:        c.Op,
		Records:   c.Records,
		IDs:       c.IDs,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RecordChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecordChangeMessageFromJSON decodes and checks a message body.
func RecordChangeMessageFromJSON(data []byte) (*RecordChangeMessage, error) {
	var msg RecordChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Op {
	case state.ChangeUpsert, state.ChangeReplace, state.ChangeDelete:
	default:
		return nil, fmt.Errorf("unknown op %q", msg.Op)
	}
	if msg.Namespace == "" {
		return nil, fmt.Errorf("missing namespace")
	}
	return &msg, nil
}
