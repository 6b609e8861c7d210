package a2a

import (
	"fmt"

	"github.com/louisbranch/agentpay/internal/platform/id"
)

// MessageBuilder assembles an outbound message envelope as a deterministic
// ordered list of parts.
type MessageBuilder struct {
	parts     []Part
	taskID    string
	contextID string
	role      Role
}

// NewMessageBuilder creates a builder for a user-role message.
func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{role: RoleUser}
}

// AddText appends a free text part.
func (b *MessageBuilder) AddText(text string) *MessageBuilder {
	b.parts = append(b.parts, TextPart(text))
	return b
}

// AddData appends a data part tagged with the canonical key.
func (b *MessageBuilder) AddData(key string, value any) *MessageBuilder {
	b.parts = append(b.parts, DataPart(key, value))
	return b
}

// SetTaskID routes the message to an existing task on the counterparty.
func (b *MessageBuilder) SetTaskID(taskID string) *MessageBuilder {
	b.taskID = taskID
	return b
}

// SetContextID threads the conversation context identifier.
func (b *MessageBuilder) SetContextID(contextID string) *MessageBuilder {
	b.contextID = contextID
	return b
}

// Build finalizes the message with a fresh message id.
func (b *MessageBuilder) Build() (Message, error) {
	messageID, err := id.NewID()
	if err != nil {
		return Message{}, fmt.Errorf("generate message id: %w", err)
	}
	return Message{
		MessageID: messageID,
		Role:      b.role,
		Parts:     b.parts,
		TaskID:    b.taskID,
		ContextID: b.contextID,
	}, nil
}
