package runloop

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a message in the conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSummary   Role = "summary"
)

// Message is a single entry in the conversation history.
type Message struct {
	ID         string    `json:"id"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	TokenCount int       `json:"token_count"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewMessage creates a Message with a fresh id and a token count from counter.
func NewMessage(role Role, content string, counter *TokenCounter) Message {
	return Message{
		ID:         uuid.New().String(),
		Role:       role,
		Content:    content,
		TokenCount: counter.Count(content),
		Timestamp:  time.Now(),
	}
}

// ConversationState holds the ordered message history for one in-flight
// request. Ordering is append-only except for compaction, which replaces a
// prefix with a single summary message while preserving the suffix.
type ConversationState struct {
	Messages              []Message `json:"messages"`
	TotalTokens           int       `json:"total_tokens"`
	CompactionThreshold   int       `json:"compaction_threshold"`
	TargetAfterCompaction int       `json:"target_after_compaction"`
	RecentMessageCount    int       `json:"recent_message_count"`
}

// NewConversationState creates an empty state with the given compaction
// parameters.
func NewConversationState(threshold, target, recentCount int) *ConversationState {
	return &ConversationState{
		Messages:              make([]Message, 0),
		CompactionThreshold:   threshold,
		TargetAfterCompaction: target,
		RecentMessageCount:    recentCount,
	}
}

// Append adds a message to the end of the history and updates the running
// token total.
func (s *ConversationState) Append(m Message) {
	s.Messages = append(s.Messages, m)
	s.TotalTokens += m.TokenCount
}

// Len returns the number of messages in the history.
func (s *ConversationState) Len() int { return len(s.Messages) }

// Clone returns a deep copy of the state.
func (s *ConversationState) Clone() *ConversationState {
	msgs := make([]Message, len(s.Messages))
	copy(msgs, s.Messages)
	return &ConversationState{
		Messages:              msgs,
		TotalTokens:           s.TotalTokens,
		CompactionThreshold:   s.CompactionThreshold,
		TargetAfterCompaction: s.TargetAfterCompaction,
		RecentMessageCount:    s.RecentMessageCount,
	}
}

// Recount recomputes TotalTokens from the per-message counts.
func (s *ConversationState) Recount() {
	total := 0
	for _, m := range s.Messages {
		total += m.TokenCount
	}
	s.TotalTokens = total
}

// Transcript renders the history as plain text, one message per line, for
// collaborators that consume flat text (judging, extraction).
func (s *ConversationState) Transcript() string {
	var sb strings.Builder
	for i, m := range s.Messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Content)
	}
	return sb.String()
}
