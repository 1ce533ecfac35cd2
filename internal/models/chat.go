package models

import "unicode/utf8"

// DefaultSessionTitle is the title of a session without messages
const DefaultSessionTitle = "Novo Ofício"

// titleMaxRunes is the longest first message kept verbatim as a title
const titleMaxRunes = 30

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is a single chat turn. Timestamp is epoch milliseconds.
type Message struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// ChatSession is one conversation thread
type ChatSession struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt int64     `json:"createdAt"`
	UpdatedAt int64     `json:"updatedAt"`
}

// Clone returns a copy that shares no message storage with s
func (s ChatSession) Clone() ChatSession {
	c := s
	c.Messages = make([]Message, len(s.Messages))
	copy(c.Messages, s.Messages)
	return c
}

// LastMessage returns the newest message with the given role
func (s ChatSession) LastMessage(role Role) (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == role {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}

// DeriveTitle builds a session title from its first message
func DeriveTitle(content string) string {
	if utf8.RuneCountInString(content) <= titleMaxRunes {
		return content
	}
	return string([]rune(content)[:titleMaxRunes]) + "..."
}
