// Package memory is an in-process remote store for tests and offline runs.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/remote"
)

type magicLink struct {
	email     string
	expiresAt time.Time
	used      bool
}

// Store implements remote.Records and remote.Users.
type Store struct {
	mu       sync.Mutex
	users    map[string]remote.User
	links    map[string]*magicLink
	records  map[string]map[string]core.Tx
	settings map[string]remote.Settings
	goals    map[string]map[string]core.Goal
	subs     map[string][]chan remote.Change

	// Fail, when set, is returned by every records call.
	Fail error
}

func New() *Store {
	return &Store{
		users:    map[string]remote.User{},
		links:    map[string]*magicLink{},
		records:  map[string]map[string]core.Tx{},
		settings: map[string]remote.Settings{},
		goals:    map[string]map[string]core.Goal{},
		subs:     map[string][]chan remote.Change{},
	}
}

func (s *Store) UpsertRecords(_ context.Context, userID string, records []core.Tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	m := s.records[userID]
	if m == nil {
		m = map[string]core.Tx{}
		s.records[userID] = m
	}
	for _, tx := range records {
		op := remote.OpInsert
		if _, ok := m[tx.ID]; ok {
			op = remote.OpUpdate
		}
		m[tx.ID] = tx
		s.publish(userID, remote.Change{Op: op, Record: tx, ID: tx.ID})
	}
	return nil
}

func (s *Store) FetchRecords(_ context.Context, userID string) ([]core.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	out := make([]core.Tx, 0, len(s.records[userID]))
	for _, tx := range s.records[userID] {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key() != out[j].Key() {
			return out[i].Key() > out[j].Key()
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) DeleteRecords(_ context.Context, userID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	for _, id := range ids {
		if _, ok := s.records[userID][id]; ok {
			delete(s.records[userID], id)
			s.publish(userID, remote.Change{Op: remote.OpDelete, ID: id})
		}
	}
	return nil
}

func (s *Store) LoadSettings(_ context.Context, userID string) (remote.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return remote.Settings{}, s.Fail
	}
	st, ok := s.settings[userID]
	if !ok {
		return remote.Settings{}, remote.ErrNotFound
	}
	st.Tags = st.Tags.Clone()
	return st, nil
}

func (s *Store) SaveSettings(_ context.Context, userID string, st remote.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	st.Tags = st.Tags.Clone()
	s.settings[userID] = st
	return nil
}

func (s *Store) FetchGoals(_ context.Context, userID string) ([]core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	out := make([]core.Goal, 0, len(s.goals[userID]))
	for _, g := range s.goals[userID] {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpsertGoals(_ context.Context, userID string, goals []core.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	m := s.goals[userID]
	if m == nil {
		m = map[string]core.Goal{}
		s.goals[userID] = m
	}
	for _, g := range goals {
		m[g.ID] = g
	}
	return nil
}

func (s *Store) DeleteGoals(_ context.Context, userID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	for _, id := range ids {
		delete(s.goals[userID], id)
	}
	return nil
}

// Subscribe delivers changes made through this store until ctx is done.
func (s *Store) Subscribe(ctx context.Context, userID string, fn func(remote.Change)) error {
	ch := make(chan remote.Change, 64)
	s.mu.Lock()
	s.subs[userID] = append(s.subs[userID], ch)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subs[userID]
		for i, c := range subs {
			if c == ch {
				s.subs[userID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-ch:
			fn(c)
		}
	}
}

// publish must be called with mu held. Slow subscribers miss changes.
func (s *Store) publish(userID string, c remote.Change) {
	for _, ch := range s.subs[userID] {
		select {
		case ch <- c:
		default:
		}
	}
}

func (s *Store) CreateUser(_ context.Context, email, passwordHash string) (remote.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.Email == email {
			return remote.User{}, remote.ErrUserExists
		}
	}
	u := remote.User{ID: uuid.NewString(), Email: email, PasswordHash: passwordHash, CreatedAt: time.Now()}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (remote.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return remote.User{}, remote.ErrNotFound
}

func (s *Store) UserByID(_ context.Context, id string) (remote.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return remote.User{}, remote.ErrNotFound
	}
	return u, nil
}

func (s *Store) SaveMagicLink(_ context.Context, email, tokenHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[tokenHash] = &magicLink{email: strings.ToLower(strings.TrimSpace(email)), expiresAt: expiresAt}
	return nil
}

func (s *Store) ConsumeMagicLink(_ context.Context, tokenHash string, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[tokenHash]
	if !ok || l.used || !now.Before(l.expiresAt) {
		return "", remote.ErrLinkInvalid
	}
	l.used = true
	return l.email, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
