package store

import (
	"context"
	"encoding/json"
	"fmt"

	"gemdesk.app/gemdesk/internal/domain"
)

// Typed accessors over the generic collection operations. These are the only
// surface the rest of the application uses.

const authStateKey = "userAuth"

func sessionIndex(s *domain.Session) map[string]int64 {
	return map[string]int64{"last_updated": s.LastUpdated.UnixMilli()}
}

// PutSession inserts or replaces the full session document, messages included.
func (s *Store) PutSession(ctx context.Context, session *domain.Session) error {
	return s.Put(ctx, "sessions", session.ID, session, sessionIndex(session))
}

// AddSession inserts a session, failing with ErrDuplicateKey if it exists.
// Only the first-session bootstrap uses this.
func (s *Store) AddSession(ctx context.Context, session *domain.Session) error {
	return s.Add(ctx, "sessions", session.ID, session, sessionIndex(session))
}

func (s *Store) GetSession(ctx context.Context, id string) (*domain.Session, bool, error) {
	var session domain.Session
	found, err := s.Get(ctx, "sessions", id, &session)
	if err != nil || !found {
		return nil, false, err
	}
	return &session, true, nil
}

// GetSessions returns every session in natural key order.
func (s *Store) GetSessions(ctx context.Context) ([]domain.Session, error) {
	docs, err := s.GetAll(ctx, "sessions")
	if err != nil {
		return nil, err
	}
	return decodeAll[domain.Session]("sessions", docs)
}

// GetSessionsByLastUpdated returns sessions most recently touched first.
func (s *Store) GetSessionsByLastUpdated(ctx context.Context) ([]domain.Session, error) {
	docs, err := s.GetAllByIndex(ctx, "sessions", "last_updated", true)
	if err != nil {
		return nil, err
	}
	return decodeAll[domain.Session]("sessions", docs)
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return s.Delete(ctx, "sessions", id)
}

func (s *Store) AddUser(ctx context.Context, user *domain.UserRecord) error {
	return s.Add(ctx, "users", user.Username, user, nil)
}

func (s *Store) GetUser(ctx context.Context, username string) (*domain.UserRecord, bool, error) {
	var user domain.UserRecord
	found, err := s.Get(ctx, "users", username, &user)
	if err != nil || !found {
		return nil, false, err
	}
	return &user, true, nil
}

func (s *Store) PutConfiguration(ctx context.Context, cfg *domain.Configuration) error {
	if cfg.ID == "" {
		cfg.ID = domain.ConfigurationKey
	}
	return s.Put(ctx, "config", cfg.ID, cfg, nil)
}

func (s *Store) GetConfiguration(ctx context.Context) (*domain.Configuration, bool, error) {
	var cfg domain.Configuration
	found, err := s.Get(ctx, "config", domain.ConfigurationKey, &cfg)
	if err != nil || !found {
		return nil, false, err
	}
	return &cfg, true, nil
}

func (s *Store) PutCommand(ctx context.Context, cmd *domain.Command) error {
	return s.Put(ctx, "commands", cmd.ID, cmd, map[string]int64{"use_count": int64(cmd.UseCount)})
}

// GetCommandsByUseCount returns stored commands, most used first.
func (s *Store) GetCommandsByUseCount(ctx context.Context) ([]domain.Command, error) {
	docs, err := s.GetAllByIndex(ctx, "commands", "use_count", true)
	if err != nil {
		return nil, err
	}
	return decodeAll[domain.Command]("commands", docs)
}

func (s *Store) PutAuthState(ctx context.Context, auth *domain.AuthState) error {
	return s.Put(ctx, "prefs", authStateKey, auth, nil)
}

func (s *Store) GetAuthState(ctx context.Context) (*domain.AuthState, bool, error) {
	var auth domain.AuthState
	found, err := s.Get(ctx, "prefs", authStateKey, &auth)
	if err != nil || !found {
		return nil, false, err
	}
	return &auth, true, nil
}

func (s *Store) DeleteAuthState(ctx context.Context) error {
	return s.Delete(ctx, "prefs", authStateKey)
}

func decodeAll[T any](coll string, docs []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var record T
		if err := json.Unmarshal(doc, &record); err != nil {
			return nil, fmt.Errorf("failed to decode %s record: %w", coll, err)
		}
		out = append(out, record)
	}
	return out, nil
}
