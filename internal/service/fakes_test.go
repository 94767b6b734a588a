package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/klumsiland/chat-server/internal/database"
	"github.com/klumsiland/chat-server/internal/model"
	"github.com/klumsiland/chat-server/internal/repository"
	"github.com/klumsiland/chat-server/internal/sse"
)

var errStoreDown = errors.New("store unavailable")

// memStore is an in-memory stand-in for the Postgres collections. All fake
// repositories share it so tests can look at state across collections.
type memStore struct {
	mu       sync.Mutex
	codes    map[string]model.AccessCode
	sessions map[string]model.ChatSession // by token hash
	admins   map[string]model.AdminSession
	messages []model.Message

	failFind          bool
	failSessionCreate bool
	adminTouches      int
	sessionTouches    int
}

func newMemStore() *memStore {
	return &memStore{
		codes:    make(map[string]model.AccessCode),
		sessions: make(map[string]model.ChatSession),
		admins:   make(map[string]model.AdminSession),
	}
}

func (s *memStore) addCode(code string, kind model.CodeKind, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code] = model.AccessCode{Code: code, Kind: kind, Active: active, CreatedAt: time.Now()}
}

func (s *memStore) code(code string) model.AccessCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[code]
}

func (s *memStore) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *memStore) sessionByHash(hash string) (model.ChatSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[hash]
	return sess, ok
}

func (s *memStore) snapshot() (map[string]model.AccessCode, map[string]model.ChatSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := make(map[string]model.AccessCode, len(s.codes))
	for k, v := range s.codes {
		codes[k] = v
	}
	sessions := make(map[string]model.ChatSession, len(s.sessions))
	for k, v := range s.sessions {
		sessions[k] = v
	}
	return codes, sessions
}

func (s *memStore) restore(codes map[string]model.AccessCode, sessions map[string]model.ChatSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = codes
	s.sessions = sessions
}

// fakeTransactor serializes transactions and rolls the store back when fn fails.
type fakeTransactor struct {
	mu    sync.Mutex
	store *memStore
}

func (t *fakeTransactor) WithTx(ctx context.Context, fn database.TxFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	codes, sessions := t.store.snapshot()
	if err := fn(nil); err != nil {
		t.store.restore(codes, sessions)
		return err
	}
	return nil
}

type fakeCodeRepo struct{ s *memStore }

func (r *fakeCodeRepo) WithTx(tx *sqlx.Tx) repository.AccessCodeRepository { return r }

func (r *fakeCodeRepo) FindByCode(ctx context.Context, code string) (*model.AccessCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failFind {
		return nil, errStoreDown
	}
	ac, ok := r.s.codes[code]
	if !ok {
		return nil, nil
	}
	return &ac, nil
}

func (r *fakeCodeRepo) FindAll(ctx context.Context, limit, offset int) ([]model.AccessCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.AccessCode, 0, len(r.s.codes))
	for _, c := range r.s.codes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return page(out, limit, offset), nil
}

func (r *fakeCodeRepo) Create(ctx context.Context, params model.CreateAccessCodeParams) (*model.AccessCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.codes[params.Code]; exists {
		return nil, nil
	}
	ac := model.AccessCode{Code: params.Code, Kind: params.Kind, Active: true, CreatedAt: time.Now()}
	r.s.codes[params.Code] = ac
	return &ac, nil
}

func (r *fakeCodeRepo) Upsert(ctx context.Context, params model.CreateAccessCodeParams) (*model.AccessCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ac, ok := r.s.codes[params.Code]
	if !ok {
		ac = model.AccessCode{Code: params.Code, CreatedAt: time.Now()}
	}
	ac.Kind = params.Kind
	ac.Active = true
	r.s.codes[params.Code] = ac
	return &ac, nil
}

func (r *fakeCodeRepo) MarkUsed(ctx context.Context, code string) (bool, error) {
	return r.mark(code, false)
}

func (r *fakeCodeRepo) Claim(ctx context.Context, code string) (bool, error) {
	return r.mark(code, true)
}

func (r *fakeCodeRepo) mark(code string, requireUnused bool) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ac, ok := r.s.codes[code]
	if !ok || !ac.Active || ac.Kind != model.CodeKindAccess || (requireUnused && ac.InUse) {
		return false, nil
	}
	now := time.Now()
	ac.InUse = true
	ac.LastUsed = &now
	r.s.codes[code] = ac
	return true, nil
}

func (r *fakeCodeRepo) Deactivate(ctx context.Context, code string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ac, ok := r.s.codes[code]
	if !ok {
		return false, nil
	}
	ac.Active = false
	r.s.codes[code] = ac
	return true, nil
}

func (r *fakeCodeRepo) Count(ctx context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.codes), nil
}

func (r *fakeCodeRepo) CountActive(ctx context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, c := range r.s.codes {
		if c.Active {
			n++
		}
	}
	return n, nil
}

type fakeSessionRepo struct{ s *memStore }

func (r *fakeSessionRepo) WithTx(tx *sqlx.Tx) repository.ChatSessionRepository { return r }

func (r *fakeSessionRepo) FindByID(ctx context.Context, id string) (*model.ChatSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sess := range r.s.sessions {
		if sess.ID == id {
			return &sess, nil
		}
	}
	return nil, nil
}

func (r *fakeSessionRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.ChatSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failFind {
		return nil, errStoreDown
	}
	sess, ok := r.s.sessions[tokenHash]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (r *fakeSessionRepo) FindAll(ctx context.Context, limit, offset int) ([]model.ChatSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.ChatSession, 0, len(r.s.sessions))
	for _, sess := range r.s.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return page(out, limit, offset), nil
}

func (r *fakeSessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.ChatSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failSessionCreate {
		return nil, errStoreDown
	}
	now := time.Now()
	sess := model.ChatSession{
		ID:           uuid.NewString(),
		TokenHash:    params.TokenHash,
		SourceCode:   params.SourceCode,
		Active:       true,
		StartedAt:    now,
		LastActivity: now,
	}
	r.s.sessions[params.TokenHash] = sess
	return &sess, nil
}

func (r *fakeSessionRepo) Touch(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.sessionTouches++
	for k, sess := range r.s.sessions {
		if sess.ID == id && sess.Active {
			sess.LastActivity = time.Now()
			r.s.sessions[k] = sess
		}
	}
	return nil
}

func (r *fakeSessionRepo) End(ctx context.Context, tokenHash string) (*model.ChatSession, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[tokenHash]
	if !ok {
		return nil, false, nil
	}
	justEnded := sess.EndedAt == nil
	sess.Active = false
	if justEnded {
		now := time.Now()
		sess.EndedAt = &now
	}
	r.s.sessions[tokenHash] = sess
	return &sess, justEnded, nil
}

func (r *fakeSessionRepo) Count(ctx context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.sessions), nil
}

func (r *fakeSessionRepo) CountActive(ctx context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, sess := range r.s.sessions {
		if sess.Active {
			n++
		}
	}
	return n, nil
}

type fakeAdminRepo struct{ s *memStore }

func (r *fakeAdminRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.AdminSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.admins[tokenHash]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (r *fakeAdminRepo) FindAll(ctx context.Context, limit, offset int) ([]model.AdminSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.AdminSession, 0, len(r.s.admins))
	for _, sess := range r.s.admins {
		out = append(out, sess)
	}
	return page(out, limit, offset), nil
}

func (r *fakeAdminRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.AdminSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now()
	sess := model.AdminSession{
		ID:           uuid.NewString(),
		TokenHash:    params.TokenHash,
		SourceCode:   params.SourceCode,
		Active:       true,
		StartedAt:    now,
		LastActivity: now,
	}
	r.s.admins[params.TokenHash] = sess
	return &sess, nil
}

func (r *fakeAdminRepo) Touch(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.adminTouches++
	for k, sess := range r.s.admins {
		if sess.ID == id {
			sess.LastActivity = time.Now()
			r.s.admins[k] = sess
		}
	}
	return nil
}

func (r *fakeAdminRepo) End(ctx context.Context, tokenHash string) (*model.AdminSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.admins[tokenHash]
	if !ok {
		return nil, nil
	}
	sess.Active = false
	if sess.EndedAt == nil {
		now := time.Now()
		sess.EndedAt = &now
	}
	r.s.admins[tokenHash] = sess
	return &sess, nil
}

func (r *fakeAdminRepo) Count(ctx context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.admins), nil
}

type fakeMessageRepo struct{ s *memStore }

func (r *fakeMessageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	msg := model.Message{
		ID:          params.ID,
		SessionID:   params.SessionID,
		Sender:      params.Sender,
		Content:     params.Content,
		IsVoice:     params.IsVoice,
		IsImage:     params.IsImage,
		IsRolePlay:  params.IsRolePlay,
		Character:   params.Character,
		AIGenerated: params.AIGenerated,
		CreatedAt:   time.Now(),
	}
	r.s.messages = append(r.s.messages, msg)
	return &msg, nil
}

func (r *fakeMessageRepo) bySession(sessionID string) []model.Message {
	var out []model.Message
	for _, m := range r.s.messages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out
}

func (r *fakeMessageRepo) FindBySessionID(ctx context.Context, sessionID string, limit, offset int) ([]model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return page(r.bySession(sessionID), limit, offset), nil
}

func (r *fakeMessageRepo) FindRecent(ctx context.Context, sessionID string, n int) ([]model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := r.bySession(sessionID)
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

func (r *fakeMessageRepo) CountBySessionID(ctx context.Context, sessionID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.bySession(sessionID)), nil
}

func (r *fakeMessageRepo) Count(ctx context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.messages), nil
}

type published struct {
	Topic string
	Event sse.Event
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, topic string, event sse.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, published{Topic: topic, Event: event})
	return nil
}

func (p *fakePublisher) topics(eventType string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		if e.Event.Type == eventType {
			out = append(out, e.Topic)
		}
	}
	return out
}

type fakePresenceRepo struct {
	mu      sync.Mutex
	entries map[string]model.Presence
	err     error
	// beforeMark runs ahead of the compare in MarkOffline, without the lock held.
	beforeMark func()
}

func newFakePresenceRepo() *fakePresenceRepo {
	return &fakePresenceRepo{entries: make(map[string]model.Presence)}
}

func (r *fakePresenceRepo) Set(ctx context.Context, p model.Presence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries[p.ParticipantID] = p
	return nil
}

func (r *fakePresenceRepo) Find(ctx context.Context, id string) (*model.Presence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.entries[id]
	if !ok {
		return nil, r.err
	}
	return &p, r.err
}

func (r *fakePresenceRepo) FindAll(ctx context.Context) ([]model.Presence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	out := make([]model.Presence, 0, len(r.entries))
	for _, p := range r.entries {
		out = append(out, p)
	}
	return out, nil
}

func (r *fakePresenceRepo) Remove(ctx context.Context, ids ...string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := r.entries[id]; ok {
			delete(r.entries, id)
			n++
		}
	}
	return n, nil
}

func (r *fakePresenceRepo) MarkOffline(ctx context.Context, p model.Presence) (bool, error) {
	if r.beforeMark != nil {
		r.beforeMark()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	current, ok := r.entries[p.ParticipantID]
	if !ok || !current.Online || !current.LastActive.Equal(p.LastActive) {
		return false, nil
	}
	p.Online = false
	r.entries[p.ParticipantID] = p
	return true, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
