// Package session manages a profile's collection of chat sessions.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"oficiogen/backend/internal/models"
	"oficiogen/backend/internal/store"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for an unknown session id
var ErrSessionNotFound = errors.New("session not found")

// Options configures a Manager
type Options struct {
	Store *store.Store
	// Key is the store key holding the collection
	Key   string
	Now   func() time.Time
	NewID func() string
}

// Manager owns a newest-first session collection and the current pointer.
// The collection is never empty once the manager exists.
type Manager struct {
	mu        sync.Mutex
	store     *store.Store
	key       string
	now       func() time.Time
	newID     func() string
	sessions  []models.ChatSession
	currentID string
}

// NewID returns a time-ordered unique identifier
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NewManager loads the persisted collection once. An empty or unreadable
// collection is replaced by a single fresh session.
func NewManager(ctx context.Context, opts Options) *Manager {
	m := &Manager{
		store: opts.Store,
		key:   opts.Key,
		now:   opts.Now,
		newID: opts.NewID,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = NewID
	}

	loaded, _ := store.Load[[]models.ChatSession](ctx, m.store, m.key)
	for _, s := range loaded {
		if s.ID == "" {
			continue
		}
		if s.Messages == nil {
			s.Messages = []models.Message{}
		}
		if s.Title == "" {
			s.Title = models.DefaultSessionTitle
		}
		m.sessions = append(m.sessions, s)
	}

	if len(m.sessions) == 0 {
		m.createLocked(ctx)
	} else {
		m.currentID = m.sessions[0].ID
	}

	return m
}

// List returns a snapshot of the collection, newest first
func (m *Manager) List() []models.ChatSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.ChatSession, len(m.sessions))
	for i, s := range m.sessions {
		out[i] = s.Clone()
	}
	return out
}

// CurrentID returns the id of the current session
func (m *Manager) CurrentID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentID
}

// Current returns the current session
func (m *Manager) Current() models.ChatSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(m.currentID)
	return m.sessions[i].Clone()
}

// Get returns the session with id
func (m *Manager) Get(id string) (models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(id)
	if i < 0 {
		return models.ChatSession{}, ErrSessionNotFound
	}
	return m.sessions[i].Clone(), nil
}

// Select makes id the current session
func (m *Manager) Select(id string) (models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(id)
	if i < 0 {
		return models.ChatSession{}, ErrSessionNotFound
	}
	m.currentID = id
	return m.sessions[i].Clone(), nil
}

// Create prepends a fresh session and makes it current
func (m *Manager) Create(ctx context.Context) models.ChatSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.createLocked(ctx).Clone()
}

// Delete removes a session and flushes the collection. Deleting the current
// session moves the pointer to the head, creating a session if none is left.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(id)
	if i < 0 {
		return ErrSessionNotFound
	}

	m.sessions = append(m.sessions[:i:i], m.sessions[i+1:]...)

	if len(m.sessions) == 0 {
		m.createLocked(ctx)
		return nil
	}

	if m.currentID == id {
		m.currentID = m.sessions[0].ID
	}
	m.saveLocked(ctx)
	return nil
}

// AppendUserMessage appends a user message to sessionID. The first message
// of a session names it.
func (m *Manager) AppendUserMessage(ctx context.Context, sessionID, content string) (models.ChatSession, models.Message, error) {
	return m.append(ctx, sessionID, models.RoleUser, content)
}

// AppendAssistantMessage appends a reply to sessionID
func (m *Manager) AppendAssistantMessage(ctx context.Context, sessionID, content string) (models.ChatSession, models.Message, error) {
	return m.append(ctx, sessionID, models.RoleAssistant, content)
}

func (m *Manager) append(ctx context.Context, sessionID string, role models.Role, content string) (models.ChatSession, models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(sessionID)
	if i < 0 {
		return models.ChatSession{}, models.Message{}, ErrSessionNotFound
	}

	now := m.now().UnixMilli()
	msg := models.Message{
		ID:        m.newID(),
		Role:      role,
		Content:   content,
		Timestamp: now,
	}

	s := m.sessions[i].Clone()
	if role == models.RoleUser && len(s.Messages) == 0 {
		s.Title = models.DeriveTitle(content)
	}
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = now
	m.sessions[i] = s

	m.saveLocked(ctx)
	return s.Clone(), msg, nil
}

func (m *Manager) createLocked(ctx context.Context) models.ChatSession {
	now := m.now().UnixMilli()
	s := models.ChatSession{
		ID:        m.newID(),
		Title:     models.DefaultSessionTitle,
		Messages:  []models.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.sessions = append([]models.ChatSession{s}, m.sessions...)
	m.currentID = s.ID
	m.saveLocked(ctx)
	return s
}

func (m *Manager) indexLocked(id string) int {
	for i := range m.sessions {
		if m.sessions[i].ID == id {
			return i
		}
	}
	return -1
}

// saveLocked flushes the collection. The write outlives the caller's context
// so an applied mutation is never left unpersisted.
func (m *Manager) saveLocked(ctx context.Context) {
	m.store.Save(context.WithoutCancel(ctx), m.key, m.sessions)
}
