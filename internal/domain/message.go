package domain

import (
	"sort"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ID        string
	SessionID string
	Role      Role
	Content   string
	MoodTag   string
	Timestamp time.Time
}

// ChatTurn is a {role, content} pair sent to the completion backend as
// conversation context. It deliberately omits ids and timestamps.
type ChatTurn struct {
	Role    Role
	Content string
}

// Turn converts the message to its completion-context form.
func (m *Message) Turn() ChatTurn {
	return ChatTurn{Role: m.Role, Content: m.Content}
}

// MergeMessages combines persisted and locally queued copies of a
// session's messages. Duplicates are collapsed by id (persisted copy
// wins) and the result is ordered by timestamp ascending, so a message
// is never shown twice and never reordered by a late sync.
func MergeMessages(persisted, local []Message) []Message {
	merged := make([]Message, 0, len(persisted)+len(local))
	seen := make(map[string]struct{}, len(persisted))
	for _, m := range persisted {
		merged = append(merged, m)
		seen[m.ID] = struct{}{}
	}
	for _, m := range local {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		merged = append(merged, m)
		seen[m.ID] = struct{}{}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	return merged
}

// ContextWindow returns the last n messages in timestamp order, oldest
// first, for use as completion context.
func ContextWindow(msgs []Message, n int) []ChatTurn {
	if n <= 0 || len(msgs) == 0 {
		return nil
	}
	start := len(msgs) - n
	if start < 0 {
		start = 0
	}
	turns := make([]ChatTurn, 0, len(msgs)-start)
	for _, m := range msgs[start:] {
		turns = append(turns, m.Turn())
	}
	return turns
}
