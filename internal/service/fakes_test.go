package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/set-night/solace/internal/domain"
)

// staticAuth returns a fixed identity for every request.
type staticAuth struct {
	ident domain.Identity
	err   error
}

func (a staticAuth) Identify(context.Context) (domain.Identity, error) {
	return a.ident, a.err
}

var errStoreDown = errors.New("store unreachable")

// fakeStore is an in-memory PersistenceStore with failure injection and
// call counting.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	messages map[string][]domain.Message // by session id

	failAll     bool
	failAppends bool
	failErr     error
	appendCalls int
	createCalls int
	updateCalls int
	countCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[string]domain.Session),
		messages: make(map[string][]domain.Message),
		failErr:  errStoreDown,
	}
}

func (s *fakeStore) fail() error {
	if s.failAll {
		return s.failErr
	}
	return nil
}

func (s *fakeStore) CreateSession(_ context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if err := s.fail(); err != nil {
		return err
	}
	if _, ok := s.sessions[sess.ID]; !ok {
		s.sessions[sess.ID] = *sess
	}
	return nil
}

func (s *fakeStore) UpdateSession(_ context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	if err := s.fail(); err != nil {
		return err
	}
	if _, ok := s.sessions[sess.ID]; !ok {
		return domain.ErrSessionNotFound
	}
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *fakeStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return err
	}
	delete(s.sessions, sessionID)
	delete(s.messages, sessionID)
	return nil
}

func (s *fakeStore) GetSession(_ context.Context, sessionID string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return &sess, nil
}

func (s *fakeStore) ListSessions(_ context.Context, ownerID string) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	var out []domain.Session
	for _, sess := range s.sessions {
		if sess.OwnerID == ownerID {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *fakeStore) AppendMessage(_ context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendCalls++
	if err := s.fail(); err != nil {
		return err
	}
	if s.failAppends {
		return s.failErr
	}
	for _, existing := range s.messages[m.SessionID] {
		if existing.ID == m.ID {
			return nil
		}
	}
	s.messages[m.SessionID] = append(s.messages[m.SessionID], *m)
	return nil
}

func (s *fakeStore) ListMessages(_ context.Context, sessionID string) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	return append([]domain.Message{}, s.messages[sessionID]...), nil
}

func (s *fakeStore) CountUserMessagesSince(_ context.Context, ownerID string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countCalls++
	if err := s.fail(); err != nil {
		return 0, err
	}
	count := 0
	for sid, msgs := range s.messages {
		sess, ok := s.sessions[sid]
		if !ok || sess.OwnerID != ownerID {
			continue
		}
		for _, m := range msgs {
			if m.Role == domain.RoleUser && !m.Timestamp.Before(since) {
				count++
			}
		}
	}
	return count, nil
}

func (s *fakeStore) storedMessages(sessionID string) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message{}, s.messages[sessionID]...)
}

// fakeCompletion returns a scripted reply, error, or blocks until its
// context is cancelled.
type fakeCompletion struct {
	mu     sync.Mutex
	reply  string
	risk   float64
	err    error
	block  bool
	calls  int
	delay  time.Duration
	turns  []domain.ChatTurn
	latest string
}

func (c *fakeCompletion) Complete(ctx context.Context, turns []domain.ChatTurn, latest string, _ string) (*domain.Completion, error) {
	c.mu.Lock()
	c.calls++
	c.turns = turns
	c.latest = latest
	block, delay, err := c.block, c.delay, c.err
	reply, risk := c.reply, c.risk
	c.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &domain.Completion{ReplyText: reply, CrisisRisk: risk}, nil
}

func (c *fakeCompletion) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// fakeEntitlements reports a fixed entitlement.
type fakeEntitlements struct {
	ent domain.Entitlement
	err error
}

func (e fakeEntitlements) CurrentEntitlement(context.Context, string) (*domain.Entitlement, error) {
	if e.err != nil {
		return nil, e.err
	}
	ent := e.ent
	return &ent, nil
}

// fakeSink records or rejects escalations.
type fakeSink struct {
	mu       sync.Mutex
	err      error
	recorded []domain.Escalation
}

func (s *fakeSink) RecordEscalation(_ context.Context, e *domain.Escalation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.recorded = append(s.recorded, *e)
	return nil
}

// memQueueStore is an in-memory QueueStore for orchestrator tests.
type memQueueStore struct {
	mu  sync.Mutex
	ops map[string]domain.QueuedOperation
}

func newMemQueueStore() *memQueueStore {
	return &memQueueStore{ops: make(map[string]domain.QueuedOperation)}
}

func (q *memQueueStore) Insert(_ context.Context, op *domain.QueuedOperation) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.ops[op.ID]; ok {
		return nil
	}
	q.ops[op.ID] = *op
	return nil
}

func (q *memQueueStore) Due(_ context.Context, now time.Time) ([]domain.QueuedOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []domain.QueuedOperation
	for _, op := range q.ops {
		if !op.NextAttemptAt.After(now) {
			out = append(out, op)
		}
	}
	// enqueuedAt order, id as tiebreak
	for i := 1; i < len(out); i++ {
		for j := i; j > 0; j-- {
			a, b := out[j-1], out[j]
			if a.EnqueuedAt.After(b.EnqueuedAt) || (a.EnqueuedAt.Equal(b.EnqueuedAt) && a.ID > b.ID) {
				out[j-1], out[j] = b, a
			}
		}
	}
	return out, nil
}

func (q *memQueueStore) Delete(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.ops, id)
	return nil
}

func (q *memQueueStore) MarkFailed(_ context.Context, id string, attempts int, nextAttemptAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	op, ok := q.ops[id]
	if !ok {
		return nil
	}
	op.Attempts = attempts
	op.NextAttemptAt = nextAttemptAt
	q.ops[id] = op
	return nil
}

func (q *memQueueStore) Len(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops), nil
}
