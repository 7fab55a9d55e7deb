// Package memory implementa domain.Session sobre mapas en memoria. Se usa
// con DATABASE_PATH=":memory:" y en los tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"akrasiaBot/internal/domain"
)

var (
	ErrSessionClosed = errors.New("memory: session closed")
	ErrDuplicateKey  = errors.New("memory: duplicate key")
)

type aliasKey struct {
	serverID string
	keyword  string
}

// Store guarda el estado confirmado. Las sesiones acumulan cambios y los
// aplican en bloque al hacer Commit.
type Store struct {
	mu          sync.RWMutex
	users       map[string]*domain.User
	servers     map[string]*domain.Server
	aliases     map[aliasKey]*domain.Alias
	audit       []*domain.AuditLogEntry
	auditByID   map[string]struct{}
	nextAliasID int64
}

func NewStore() *Store {
	return &Store{
		users:     make(map[string]*domain.User),
		servers:   make(map[string]*domain.Server),
		aliases:   make(map[aliasKey]*domain.Alias),
		auditByID: make(map[string]struct{}),
	}
}

func (s *Store) Open(ctx context.Context) (domain.Session, error) {
	if s == nil {
		return nil, fmt.Errorf("memory: nil store")
	}
	sess := &session{store: s}
	sess.reset()
	return sess, nil
}

var _ domain.SessionFactory = (*Store)(nil)

// AuditEntries devuelve una copia del log confirmado, en orden de inserción.
func (s *Store) AuditEntries() []domain.AuditLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditLogEntry, 0, len(s.audit))
	for _, e := range s.audit {
		out = append(out, *e)
	}
	return out
}

type session struct {
	store  *Store
	closed bool

	users         map[string]*domain.User
	servers       map[string]*domain.Server
	aliasAdds     map[aliasKey]*domain.Alias
	aliasDeletes  map[aliasKey]struct{}
	audit         []*domain.AuditLogEntry
	pendingAudits map[string]struct{}
}

func (s *session) reset() {
	s.users = make(map[string]*domain.User)
	s.servers = make(map[string]*domain.Server)
	s.aliasAdds = make(map[aliasKey]*domain.Alias)
	s.aliasDeletes = make(map[aliasKey]struct{})
	s.audit = nil
	s.pendingAudits = make(map[string]struct{})
}

func (s *session) check() error {
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

func (s *session) Commit() error {
	if err := s.check(); err != nil {
		return err
	}

	st := s.store
	st.mu.Lock()
	defer st.mu.Unlock()

	for key := range s.aliasAdds {
		if _, deleted := s.aliasDeletes[key]; deleted {
			continue
		}
		if _, exists := st.aliases[key]; exists {
			return fmt.Errorf("%w: alias %s/%s", ErrDuplicateKey, key.serverID, key.keyword)
		}
	}
	for _, e := range s.audit {
		if _, exists := st.auditByID[e.MessageID]; exists {
			return fmt.Errorf("%w: audit entry %s", ErrDuplicateKey, e.MessageID)
		}
	}

	for id, u := range s.users {
		st.users[id] = u.Clone()
	}
	for id, srv := range s.servers {
		cp := *srv
		st.servers[id] = &cp
	}
	for key := range s.aliasDeletes {
		delete(st.aliases, key)
	}
	for key, a := range s.aliasAdds {
		st.nextAliasID++
		cp := *a
		cp.ID = st.nextAliasID
		st.aliases[key] = &cp
	}
	for _, e := range s.audit {
		cp := *e
		st.audit = append(st.audit, &cp)
		st.auditByID[e.MessageID] = struct{}{}
	}

	s.reset()
	return nil
}

func (s *session) Rollback() error {
	if err := s.check(); err != nil {
		return err
	}
	s.reset()
	return nil
}

func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.reset()
	s.closed = true
	return nil
}

func (s *session) GetUser(_ context.Context, id string) (*domain.User, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if u, ok := s.users[id]; ok {
		return u.Clone(), nil
	}
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()
	return s.store.users[id].Clone(), nil
}

func (s *session) SaveUser(_ context.Context, user *domain.User) error {
	if err := s.check(); err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("memory: user nil")
	}
	s.users[user.ID] = user.Clone()
	return nil
}

func (s *session) GetServer(_ context.Context, id string) (*domain.Server, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	srv, ok := s.servers[id]
	if !ok {
		s.store.mu.RLock()
		srv = s.store.servers[id]
		s.store.mu.RUnlock()
	}
	if srv == nil {
		return nil, nil
	}
	cp := *srv
	return &cp, nil
}

func (s *session) SaveServer(_ context.Context, server *domain.Server) error {
	if err := s.check(); err != nil {
		return err
	}
	if server == nil {
		return fmt.Errorf("memory: server nil")
	}
	cp := *server
	s.servers[server.ID] = &cp
	return nil
}

func (s *session) FindAlias(_ context.Context, serverID, keyword string) (*domain.Alias, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	key := aliasKey{serverID: serverID, keyword: keyword}
	if a, ok := s.aliasAdds[key]; ok {
		cp := *a
		return &cp, nil
	}
	if _, deleted := s.aliasDeletes[key]; deleted {
		return nil, nil
	}
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()
	a := s.store.aliases[key]
	if a == nil {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (s *session) ListAliases(_ context.Context, serverID string) ([]*domain.Alias, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	var out []*domain.Alias
	s.store.mu.RLock()
	for key, a := range s.store.aliases {
		if key.serverID != serverID {
			continue
		}
		if _, deleted := s.aliasDeletes[key]; deleted {
			continue
		}
		if _, replaced := s.aliasAdds[key]; replaced {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	s.store.mu.RUnlock()

	for key, a := range s.aliasAdds {
		if key.serverID != serverID {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}

	slices.SortFunc(out, func(a, b *domain.Alias) int {
		// los pendientes (ID 0) van al final
		switch {
		case a.ID == 0 && b.ID != 0:
			return 1
		case b.ID == 0 && a.ID != 0:
			return -1
		case a.ID != b.ID:
			return int(a.ID - b.ID)
		}
		return strings.Compare(a.Keyword, b.Keyword)
	})
	return out, nil
}

func (s *session) CountAliases(ctx context.Context, serverID string) (int, error) {
	list, err := s.ListAliases(ctx, serverID)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

func (s *session) AddAlias(ctx context.Context, alias *domain.Alias) error {
	if err := s.check(); err != nil {
		return err
	}
	if alias == nil {
		return fmt.Errorf("memory: alias nil")
	}
	existing, err := s.FindAlias(ctx, alias.ServerID, alias.Keyword)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: alias %s/%s", ErrDuplicateKey, alias.ServerID, alias.Keyword)
	}
	cp := *alias
	cp.ID = 0
	s.aliasAdds[aliasKey{serverID: alias.ServerID, keyword: alias.Keyword}] = &cp
	return nil
}

func (s *session) DeleteAlias(_ context.Context, alias *domain.Alias) error {
	if err := s.check(); err != nil {
		return err
	}
	if alias == nil {
		return fmt.Errorf("memory: alias nil")
	}
	key := aliasKey{serverID: alias.ServerID, keyword: alias.Keyword}
	if _, pending := s.aliasAdds[key]; pending {
		delete(s.aliasAdds, key)
		return nil
	}
	s.aliasDeletes[key] = struct{}{}
	return nil
}

func (s *session) AddAuditEntry(_ context.Context, entry *domain.AuditLogEntry) error {
	if err := s.check(); err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("memory: audit entry nil")
	}
	if _, pending := s.pendingAudits[entry.MessageID]; pending {
		return fmt.Errorf("%w: audit entry %s", ErrDuplicateKey, entry.MessageID)
	}
	s.store.mu.RLock()
	_, committed := s.store.auditByID[entry.MessageID]
	s.store.mu.RUnlock()
	if committed {
		return fmt.Errorf("%w: audit entry %s", ErrDuplicateKey, entry.MessageID)
	}
	cp := *entry
	s.audit = append(s.audit, &cp)
	s.pendingAudits[entry.MessageID] = struct{}{}
	return nil
}

func (s *session) QueryAuditLog(_ context.Context, q domain.AuditQuery) ([]*domain.AuditLogEntry, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	search := strings.ToLower(strings.TrimSpace(q.Search))
	match := func(e *domain.AuditLogEntry) bool {
		if e.GuildID != q.GuildID {
			return false
		}
		return search == "" || strings.Contains(strings.ToLower(e.Content), search)
	}

	var out []*domain.AuditLogEntry
	s.store.mu.RLock()
	for _, e := range s.store.audit {
		if match(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	s.store.mu.RUnlock()
	for _, e := range s.audit {
		if match(e) {
			cp := *e
			out = append(out, &cp)
		}
	}

	slices.SortStableFunc(out, func(a, b *domain.AuditLogEntry) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}
