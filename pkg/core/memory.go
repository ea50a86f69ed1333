package core

import (
	"time"

	"github.com/nexus-ai/nexus-go/pkg/llm"
)

// Message is a timestamped entry in the conversation memory.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationMemory is a bounded FIFO buffer of role-tagged messages.
//
// When an append pushes the length past MaxSize the oldest messages are
// dropped. Index 0 gets no special treatment: a caller that keeps a system
// message there must put it back after truncation.
//
// ConversationMemory is not safe for concurrent use.
type ConversationMemory struct {
	messages []Message
	maxSize  int
	now      func() time.Time
}

// NewConversationMemory creates an empty memory holding at most maxSize
// messages. maxSize values below 1 are treated as 1.
func NewConversationMemory(maxSize int) *ConversationMemory {
	if maxSize < 1 {
		maxSize = 1
	}
	return &ConversationMemory{
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Add appends a message stamped with the current time.
func (m *ConversationMemory) Add(role, content string) {
	m.AddMessage(Message{Role: role, Content: content, Timestamp: m.now()})
}

// AddMessage appends msg as-is, then truncates from the front.
func (m *ConversationMemory) AddMessage(msg Message) {
	m.messages = append(m.messages, msg)
	if over := len(m.messages) - m.maxSize; over > 0 {
		m.messages = append(m.messages[:0:0], m.messages[over:]...)
	}
}

// Context returns the messages without timestamps, oldest first.
func (m *ConversationMemory) Context() []llm.Message {
	out := make([]llm.Message, len(m.messages))
	for i, msg := range m.messages {
		out[i] = llm.Message{Role: msg.Role, Content: msg.Content}
	}
	return out
}

// Messages returns a copy of the stored messages including timestamps.
func (m *ConversationMemory) Messages() []Message {
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Clear empties the buffer.
func (m *ConversationMemory) Clear() {
	m.messages = nil
}

// Len returns the number of stored messages.
func (m *ConversationMemory) Len() int {
	return len(m.messages)
}

// MaxSize returns the capacity.
func (m *ConversationMemory) MaxSize() int {
	return m.maxSize
}

// restore replaces the buffer with msgs, as taken earlier from Messages.
func (m *ConversationMemory) restore(msgs []Message) {
	m.messages = msgs
}
