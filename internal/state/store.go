// Package state holds the authoritative in-memory view of the application:
// the session list, the selected session, the remote configuration and a
// diagnostic log. All mutation goes through Store methods; every mutation
// updates memory synchronously and mirrors the touched session into the
// document store through a write-behind queue, so the UI never waits on disk.
package state

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gemdesk.app/gemdesk/internal/domain"
	"gemdesk.app/gemdesk/internal/store"
)

const (
	writeQueueDepth = 256
	maxLogEntries   = 500
)

type Store struct {
	db  *store.Store
	log *zap.Logger

	mu         sync.Mutex
	sessions   []domain.Session
	currentID  string
	config     *domain.Configuration
	configured bool
	version    uint64

	logMu sync.Mutex
	logs  []domain.LogEntry

	subMu       sync.Mutex
	subscribers map[int]func()
	nextSubID   int

	writes  chan domain.Session
	pending sync.WaitGroup
	closed  chan struct{}
}

func New(db *store.Store, log *zap.Logger) *Store {
	s := &Store{
		db:          db,
		log:         log,
		subscribers: make(map[int]func()),
		writes:      make(chan domain.Session, writeQueueDepth),
		closed:      make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

// writeLoop drains the write-behind queue. Sessions are written in the order
// their mutations occurred; a failed write is surfaced through the log
// channel, never by rolling back memory.
func (s *Store) writeLoop() {
	for {
		select {
		case session := <-s.writes:
			if err := s.db.PutSession(context.Background(), &session); err != nil {
				s.log.Error("failed to persist session",
					zap.String("session_id", session.ID), zap.Error(err))
				s.AddLog(domain.LogError, "failed to save session", err.Error())
			}
			s.pending.Done()
		case <-s.closed:
			return
		}
	}
}

// enqueueWrite must be called with mu held: queue order then matches the
// order the mutations were applied in. The channel is buffered and the
// write loop never takes mu, so the hold stays short.
func (s *Store) enqueueWrite(session domain.Session) {
	s.pending.Add(1)
	s.writes <- session
}

// Flush blocks until every queued durable write has settled.
func (s *Store) Flush() {
	s.pending.Wait()
}

// Close flushes outstanding writes and stops the writer.
func (s *Store) Close() {
	s.pending.Wait()
	close(s.closed)
}

// LoadSessions reads all sessions from the document store, most recently
// touched first. A fresh (or freshly recovered) store gets exactly one
// bootstrap session. If the previously selected session no longer exists,
// the first remaining session is selected, or none.
func (s *Store) LoadSessions(ctx context.Context) error {
	sessions, err := s.db.GetSessionsByLastUpdated(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}

	if len(sessions) == 0 {
		bootstrap := domain.Session{
			ID:          uuid.NewString(),
			Title:       "Session 1",
			Messages:    []domain.Message{},
			LastUpdated: time.Now(),
		}
		// Add, not Put: a duplicate here means two bootstraps raced, which
		// is a bug worth failing loudly on.
		if err := s.db.AddSession(ctx, &bootstrap); err != nil {
			return fmt.Errorf("failed to bootstrap first session: %w", err)
		}
		sessions = []domain.Session{bootstrap}
	}

	s.mu.Lock()
	s.sessions = sessions
	if s.indexOf(s.currentID) < 0 {
		s.currentID = ""
		if len(sessions) > 0 {
			s.currentID = sessions[0].ID
		}
	}
	s.bump()
	s.mu.Unlock()
	s.notify()
	return nil
}

// SelectSession changes the current-session pointer. It touches no durable
// state. An empty id deselects.
func (s *Store) SelectSession(id string) error {
	s.mu.Lock()
	if id != "" && s.indexOf(id) < 0 {
		s.mu.Unlock()
		return fmt.Errorf("session %q: %w", id, domain.ErrNotFound)
	}
	s.currentID = id
	s.bump()
	s.mu.Unlock()
	s.notify()
	return nil
}

// CreateSession allocates an empty session, persists it, and selects it.
func (s *Store) CreateSession(ctx context.Context, titleHint string) (*domain.Session, error) {
	s.mu.Lock()
	title := strings.TrimSpace(titleHint)
	if title == "" {
		title = fmt.Sprintf("Session %d", len(s.sessions)+1)
	}
	s.mu.Unlock()

	session := domain.Session{
		ID:          uuid.NewString(),
		Title:       title,
		Messages:    []domain.Message{},
		LastUpdated: time.Now(),
	}
	if err := s.db.PutSession(ctx, &session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.mu.Lock()
	s.sessions = append(s.sessions, session)
	s.currentID = session.ID
	s.bump()
	s.mu.Unlock()
	s.notify()

	out := copySession(session)
	return &out, nil
}

// DeleteSession removes a session durably and from memory. A failed durable
// delete leaves the in-memory list untouched so the two views stay
// consistent. Deleting the selected session reselects the first remaining
// session, or none.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.indexOf(id) < 0 {
		s.mu.Unlock()
		return fmt.Errorf("session %q: %w", id, domain.ErrNotFound)
	}
	s.mu.Unlock()

	if err := s.db.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.mu.Lock()
	if i := s.indexOf(id); i >= 0 {
		s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
	}
	if s.currentID == id {
		s.currentID = ""
		if len(s.sessions) > 0 {
			s.currentID = s.sessions[0].ID
		}
	}
	s.bump()
	s.mu.Unlock()
	s.notify()
	return nil
}

// RenameSession updates a session title and schedules a durable write through
// the same queue as message appends, so a rename can never clobber an append
// that happened before it. Empty or whitespace-only titles are rejected
// without issuing a durable write.
func (s *Store) RenameSession(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.ErrEmptyTitle
	}

	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("session %q: %w", id, domain.ErrNotFound)
	}
	s.sessions[i].Title = title
	s.enqueueWrite(copySession(s.sessions[i]))
	s.bump()
	s.mu.Unlock()
	s.notify()
	return nil
}

// AppendMessage appends to the selected session's message sequence, updates
// the denormalized tail fields, and schedules a durable write of the full
// session. The in-memory append is optimistic and never reverted: a failed
// durable write is reported through the log channel only.
func (s *Store) AppendMessage(msg domain.Message) error {
	s.mu.Lock()
	i := s.indexOf(s.currentID)
	if i < 0 {
		s.mu.Unlock()
		return domain.ErrNoSession
	}
	session := &s.sessions[i]
	session.Messages = append(session.Messages, msg)
	session.LastMessage = msg.Content
	session.LastUpdated = time.Now()
	s.enqueueWrite(copySession(*session))
	s.bump()
	s.mu.Unlock()
	s.notify()
	return nil
}

// SetConfiguration persists the configuration record and only then marks the
// store configured. A failed save leaves the store unconfigured.
func (s *Store) SetConfiguration(ctx context.Context, cfg *domain.Configuration) error {
	if err := s.db.PutConfiguration(ctx, cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	s.mu.Lock()
	c := *cfg
	s.config = &c
	s.configured = true
	s.bump()
	s.mu.Unlock()
	s.notify()
	return nil
}

// RestoreConfiguration adopts an already-persisted configuration read at
// startup. No durable write is issued.
func (s *Store) RestoreConfiguration(cfg *domain.Configuration) {
	s.mu.Lock()
	c := *cfg
	s.config = &c
	s.configured = true
	s.bump()
	s.mu.Unlock()
	s.notify()
}

// Configuration returns a read-only snapshot of the current configuration.
func (s *Store) Configuration() (*domain.Configuration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.configured || s.config == nil {
		return nil, false
	}
	c := *s.config
	return &c, true
}

// RecordCommand stores a reusable prompt snippet, bumping its use count when
// the same content was stored before.
func (s *Store) RecordCommand(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.ErrEmptyMessage
	}

	commands, err := s.db.GetCommandsByUseCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to load commands: %w", err)
	}
	for _, cmd := range commands {
		if cmd.Content == content {
			cmd.UseCount++
			return s.db.PutCommand(ctx, &cmd)
		}
	}
	return s.db.PutCommand(ctx, &domain.Command{
		ID:        uuid.NewString(),
		Content:   content,
		Timestamp: time.Now(),
		UseCount:  1,
	})
}

// Commands returns stored prompt snippets, most used first.
func (s *Store) Commands(ctx context.Context) ([]domain.Command, error) {
	return s.db.GetCommandsByUseCount(ctx)
}

// AddLog appends a diagnostic entry to the bounded in-memory ring. The ring
// has its own lock: the write loop logs failed writes, and it must never
// contend with a mutation that is holding mu while it enqueues.
func (s *Store) AddLog(level domain.LogLevel, message, details string) {
	s.logMu.Lock()
	s.logs = append(s.logs, domain.LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
		Details:   details,
	})
	if len(s.logs) > maxLogEntries {
		s.logs = s.logs[len(s.logs)-maxLogEntries:]
	}
	s.logMu.Unlock()
}

func (s *Store) Logs() []domain.LogEntry {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	out := make([]domain.LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}

// Sessions returns a snapshot of the session list.
func (s *Store) Sessions() []domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Session, len(s.sessions))
	for i, session := range s.sessions {
		out[i] = copySession(session)
	}
	return out
}

// Current returns a snapshot of the selected session, or nil.
func (s *Store) Current() *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(s.currentID)
	if i < 0 {
		return nil
	}
	out := copySession(s.sessions[i])
	return &out
}

// Version is a monotonically increasing counter bumped on every mutation;
// UI layers may poll it instead of subscribing.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Subscribe registers a change callback and returns its unsubscribe func.
// Callbacks run after the mutation has been applied, outside the state lock.
func (s *Store) Subscribe(fn func()) func() {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// bump must be called with mu held.
func (s *Store) bump() {
	s.version++
}

// indexOf must be called with mu held.
func (s *Store) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			return i
		}
	}
	return -1
}

func copySession(session domain.Session) domain.Session {
	out := session
	out.Messages = make([]domain.Message, len(session.Messages))
	copy(out.Messages, session.Messages)
	return out
}
