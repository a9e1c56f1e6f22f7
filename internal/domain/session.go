package domain

import (
	"time"
)

// DefaultSessionTitle is the placeholder used until the first user
// message rewrites it.
const DefaultSessionTitle = "New conversation"

type Session struct {
	ID                 string
	OwnerID            string
	Title              string
	LastMessagePreview string
	MessageCount       int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Touch applies the denormalized metadata for a newly appended message.
// UpdatedAt never moves backwards even if the message carries an older
// timestamp (e.g. a replayed offline message).
func (s *Session) Touch(m *Message) {
	s.MessageCount++
	s.LastMessagePreview = previewOf(m.Content)
	if m.Timestamp.After(s.UpdatedAt) {
		s.UpdatedAt = m.Timestamp
	}
}

// maxPreviewLen bounds LastMessagePreview and derived titles.
const maxPreviewLen = 80

func previewOf(text string) string {
	runes := []rune(text)
	if len(runes) <= maxPreviewLen {
		return text
	}
	return string(runes[:maxPreviewLen-1]) + "…"
}

// TitleFromMessage derives a session title from the first user message.
func TitleFromMessage(text string) string {
	return previewOf(text)
}
