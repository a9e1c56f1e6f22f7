package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/set-night/solace/internal/config"
	"github.com/set-night/solace/internal/domain"
)

// SendStatus is the user-visible outcome of a send.
type SendStatus string

const (
	SendDelivered SendStatus = "delivered"
	SendQueued    SendStatus = "queued"
	SendDenied    SendStatus = "denied"
)

// SendResult is what SendMessage reports back to the caller.
type SendResult struct {
	Status           SendStatus
	PromptKind       domain.PromptKind
	AssistantText    string
	Fallback         bool
	CrisisRisk       float64
	UserMessage      *domain.Message
	AssistantMessage *domain.Message
	RequiresReauth   bool
}

// Denial is emitted when a send is blocked by the access policy.
type Denial struct {
	OwnerID   string
	SessionID string
	Prompt    domain.PromptKind
	Reason    string
}

// OrchestratorDeps contains everything an Orchestrator needs. All
// collaborators are injected; there is no ambient global state.
type OrchestratorDeps struct {
	Auth         domain.AuthGateway
	Store        domain.PersistenceStore
	Completion   domain.CompletionService
	Entitlements domain.EntitlementService
	Queue        *OfflineQueue
	Escalations  domain.EscalationSink
	Limits       Limits
}

// Orchestrator owns the session/message lifecycle: tier gating,
// optimistic local appends, persist-or-enqueue durability, completion
// calls with fallback, and crisis escalation. One orchestrator serves
// all sessions; sends within a session are serialized, sends across
// sessions run concurrently.
type Orchestrator struct {
	auth         domain.AuthGateway
	store        domain.PersistenceStore
	completion   domain.CompletionService
	entitlements domain.EntitlementService
	queue        *OfflineQueue
	escalations  domain.EscalationSink
	limits       Limits

	now               func() time.Time
	newID             func() string
	completionTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*sessionState
	counts   map[string]*cachedCount

	cbMu         sync.Mutex
	onEscalation []func(domain.Escalation)
	onDenied     []func(Denial)
}

// sessionState is the in-process optimistic view of one session. Its
// mutex serializes sends so concurrent calls against the same session
// cannot interleave their append steps.
type sessionState struct {
	mu      sync.Mutex
	session domain.Session
	local   []domain.Message
}

// cachedCount is the locally tracked same-day user-message count, used
// when the authoritative history is unreachable. It is re-derived from
// history as soon as the queue drains.
type cachedCount struct {
	day   time.Time
	count int
}

func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	o := &Orchestrator{
		auth:              deps.Auth,
		store:             deps.Store,
		completion:        deps.Completion,
		entitlements:      deps.Entitlements,
		queue:             deps.Queue,
		escalations:       deps.Escalations,
		limits:            deps.Limits,
		now:               time.Now,
		newID:             func() string { return uuid.NewString() },
		completionTimeout: config.CompletionTimeout,
		sessions:          make(map[string]*sessionState),
		counts:            make(map[string]*cachedCount),
	}
	if o.queue != nil {
		// After a drain the persisted history is authoritative again;
		// drop cached counts so the next send re-derives them.
		o.queue.OnDrained(func(int) { o.resetCounts() })
	}
	return o
}

// OnEscalation registers a callback fired on crisis-risk detection.
func (o *Orchestrator) OnEscalation(fn func(domain.Escalation)) {
	o.cbMu.Lock()
	defer o.cbMu.Unlock()
	o.onEscalation = append(o.onEscalation, fn)
}

// OnDenied registers a callback fired when the access policy blocks a send.
func (o *Orchestrator) OnDenied(fn func(Denial)) {
	o.cbMu.Lock()
	defer o.cbMu.Unlock()
	o.onDenied = append(o.onDenied, fn)
}

// StartSession creates a conversation owned by the caller. The session
// is usable immediately; if the store is unreachable the create is
// queued and the second return value is true.
func (o *Orchestrator) StartSession(ctx context.Context, title string) (*domain.Session, bool, error) {
	ident, err := o.auth.Identify(ctx)
	if err != nil {
		return nil, false, err
	}

	now := o.now()
	if strings.TrimSpace(title) == "" {
		title = domain.DefaultSessionTitle
	}
	session := domain.Session{
		ID:        o.newID(),
		OwnerID:   ident.UserID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	o.mu.Lock()
	o.sessions[session.ID] = &sessionState{session: session}
	o.mu.Unlock()

	queued := false
	sctx, cancel := context.WithTimeout(ctx, config.StoreTimeout)
	err = o.store.CreateSession(sctx, &session)
	cancel()
	if err != nil {
		slog.Warn("create session not persisted, queueing", "session_id", session.ID, "error", err)
		o.enqueueSessionOp(context.WithoutCancel(ctx), domain.OpCreateSession, &session, now)
		queued = true
	}

	slog.Info("session started", "session_id", session.ID, "queued", queued)
	return &session, queued, nil
}

// SendMessage runs one send end to end. Only policy denials and
// malformed input surface as synchronous failures; store and completion
// failures are absorbed into the queue and fallback paths so the send
// always appears to succeed locally.
func (o *Orchestrator) SendMessage(ctx context.Context, sessionID, text, moodTag string) (*SendResult, error) {
	ident, err := o.auth.Identify(ctx)
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > config.MaxMessageLen {
		return nil, domain.ErrMessageTooLong
	}

	st, err := o.state(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if st.session.OwnerID != ident.UserID {
		return nil, domain.ErrNotSessionOwner
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := o.now()
	access := o.resolveAccess(ctx, ident, now)
	if d := Evaluate(access); !d.Allowed {
		slog.Info("send denied",
			"session_id", sessionID,
			"tier", access.Tier,
			"daily_count", access.DailyCount,
			"daily_limit", access.DailyLimit,
		)
		o.notifyDenied(Denial{
			OwnerID:   ident.UserID,
			SessionID: sessionID,
			Prompt:    d.Prompt,
			Reason:    d.Reason,
		})
		return &SendResult{Status: SendDenied, PromptKind: d.Prompt}, nil
	}

	// Last cancellation point. Once the user message is appended the
	// send runs to completion detached from the caller's context:
	// unwinding an already-shown message would be worse than finishing.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	userMsg := domain.Message{
		ID:        o.newID(),
		SessionID: sessionID,
		Role:      domain.RoleUser,
		Content:   text,
		MoodTag:   moodTag,
		Timestamp: now,
	}
	st.local = append(st.local, userMsg)
	if st.session.MessageCount == 0 && st.session.Title == domain.DefaultSessionTitle {
		st.session.Title = domain.TitleFromMessage(text)
	}
	st.session.Touch(&userMsg)
	o.bumpCount(ident.UserID, now)

	res := &SendResult{Status: SendDelivered, UserMessage: &userMsg}
	if err := o.persistMessage(ctx, &userMsg); err != nil {
		o.enqueueMessage(ctx, &userMsg, now)
		res.Status = SendQueued
		if errors.Is(err, domain.ErrAuthExpired) {
			res.RequiresReauth = true
		}
	}

	turns := o.contextTurns(ctx, st, userMsg.ID)

	cctx, cancel := context.WithTimeout(ctx, o.completionTimeout)
	completion, err := o.completion.Complete(cctx, turns, text, moodTag)
	cancel()

	replyAt := o.now()
	if !replyAt.After(now) {
		replyAt = now.Add(time.Millisecond)
	}
	asst := domain.Message{
		ID:        o.newID(),
		SessionID: sessionID,
		Role:      domain.RoleAssistant,
		Timestamp: replyAt,
	}
	if err != nil {
		slog.Warn("completion failed, serving fallback", "session_id", sessionID, "error", err)
		asst.Content = FallbackReply()
		res.Fallback = true
	} else {
		asst.Content = completion.ReplyText
		res.CrisisRisk = completion.CrisisRisk
	}
	res.AssistantText = asst.Content
	res.AssistantMessage = &asst

	st.local = append(st.local, asst)
	st.session.Touch(&asst)

	if err := o.persistMessage(ctx, &asst); err != nil {
		o.enqueueMessage(ctx, &asst, replyAt)
		res.Status = SendQueued
	}

	snapshot := st.session
	sctx, scancel := context.WithTimeout(ctx, config.StoreTimeout)
	err = o.store.UpdateSession(sctx, &snapshot)
	scancel()
	if err != nil {
		o.enqueueSessionOp(ctx, domain.OpUpdateSession, &snapshot, replyAt)
		res.Status = SendQueued
	}

	// Crisis detection never runs on the fallback path: the fallback is
	// the dead-letter reply, not an assessment of the user's message.
	if !res.Fallback && res.CrisisRisk >= config.CrisisThreshold {
		o.escalate(ctx, sessionID, res.CrisisRisk, replyAt)
	}

	return res, nil
}

// Sessions lists the caller's conversations, newest activity first,
// merging persisted sessions with any local-only ones still in the queue.
func (o *Orchestrator) Sessions(ctx context.Context) ([]domain.Session, error) {
	ident, err := o.auth.Identify(ctx)
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithTimeout(ctx, config.StoreTimeout)
	remote, err := o.store.ListSessions(sctx, ident.UserID)
	cancel()
	if err != nil {
		slog.Warn("list sessions from store failed, using local view", "error", err)
	}

	seen := make(map[string]struct{}, len(remote))
	for _, s := range remote {
		seen[s.ID] = struct{}{}
	}

	merged := remote
	o.mu.Lock()
	for id, st := range o.sessions {
		if _, ok := seen[id]; ok {
			continue
		}
		if st.session.OwnerID != ident.UserID {
			continue
		}
		merged = append(merged, st.session)
	}
	o.mu.Unlock()

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].UpdatedAt.After(merged[j].UpdatedAt)
	})
	return merged, nil
}

// Messages returns a session's history in timestamp order, merging the
// persisted messages with local optimistic ones and deduplicating by id.
func (o *Orchestrator) Messages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	ident, err := o.auth.Identify(ctx)
	if err != nil {
		return nil, err
	}
	st, err := o.state(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if st.session.OwnerID != ident.UserID {
		return nil, domain.ErrNotSessionOwner
	}

	sctx, cancel := context.WithTimeout(ctx, config.StoreTimeout)
	remote, err := o.store.ListMessages(sctx, sessionID)
	cancel()
	if err != nil {
		slog.Warn("list messages from store failed, using local view", "session_id", sessionID, "error", err)
	}

	st.mu.Lock()
	local := append([]domain.Message{}, st.local...)
	st.mu.Unlock()

	return domain.MergeMessages(remote, local), nil
}

// DeleteSession removes a conversation and its messages. The second
// return value reports whether the delete had to be queued.
func (o *Orchestrator) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	ident, err := o.auth.Identify(ctx)
	if err != nil {
		return false, err
	}
	st, err := o.state(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if st.session.OwnerID != ident.UserID {
		return false, domain.ErrNotSessionOwner
	}

	o.mu.Lock()
	delete(o.sessions, sessionID)
	o.mu.Unlock()

	now := o.now()
	queued := false
	sctx, cancel := context.WithTimeout(ctx, config.StoreTimeout)
	err = o.store.DeleteSession(sctx, sessionID)
	cancel()
	if err != nil {
		snapshot := st.session
		o.enqueueSessionOp(context.WithoutCancel(ctx), domain.OpDeleteSession, &snapshot, now)
		queued = true
	}

	slog.Info("session deleted", "session_id", sessionID, "queued", queued)
	return queued, nil
}

// state returns the in-process view of a session, loading it from the
// store on first touch after a restart.
func (o *Orchestrator) state(ctx context.Context, sessionID string) (*sessionState, error) {
	o.mu.Lock()
	st, ok := o.sessions[sessionID]
	o.mu.Unlock()
	if ok {
		return st, nil
	}

	sctx, cancel := context.WithTimeout(ctx, config.StoreTimeout)
	session, err := o.store.GetSession(sctx, sessionID)
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if existing, ok := o.sessions[sessionID]; ok {
		return existing, nil
	}
	st = &sessionState{session: *session}
	o.sessions[sessionID] = st
	return st, nil
}

// resolveAccess recomputes the caller's AccessState for this send. The
// daily count comes from the authoritative message history; while that
// is unreachable a locally cached count substitutes.
func (o *Orchestrator) resolveAccess(ctx context.Context, ident domain.Identity, now time.Time) domain.AccessState {
	ent := domain.Entitlement{Tier: domain.TierFree, DailyLimit: o.limits.Free}
	if ident.Guest {
		ent = domain.Entitlement{Tier: domain.TierGuest, DailyLimit: o.limits.Guest}
	} else {
		ectx, cancel := context.WithTimeout(ctx, config.StoreTimeout)
		got, err := o.entitlements.CurrentEntitlement(ectx, ident.UserID)
		cancel()
		if err != nil {
			slog.Warn("entitlement lookup failed, assuming free tier", "error", err)
		} else {
			ent = *got
		}
	}

	day := domain.StartOfDay(now)
	count := 0
	sctx, cancel := context.WithTimeout(ctx, config.StoreTimeout)
	n, err := o.store.CountUserMessagesSince(sctx, ident.UserID, day)
	cancel()
	if err != nil {
		count = o.cachedDayCount(ident.UserID, day)
		slog.Warn("daily count from history failed, using cached count",
			"cached_count", count, "error", err)
	} else {
		// Queued sends are invisible to the store until the queue
		// drains, so the cached count can legitimately run ahead of the
		// history. Taking the max keeps the quota binding during a
		// partial outage; the cache is dropped once the drain confirms.
		count = n
		if cached := o.cachedDayCount(ident.UserID, day); cached > count {
			count = cached
		}
		o.setCount(ident.UserID, day, count)
	}

	return domain.AccessState{
		Tier:        ent.Tier,
		DailyCount:  count,
		DailyLimit:  ent.DailyLimit,
		TrialEndsAt: ent.TrialEndsAt,
	}
}

// contextTurns builds the bounded completion context: the last N
// messages of the session excluding the message being sent, oldest
// first. The bound caps latency and cost; storage is unaffected.
func (o *Orchestrator) contextTurns(ctx context.Context, st *sessionState, excludeID string) []domain.ChatTurn {
	sctx, cancel := context.WithTimeout(ctx, config.StoreTimeout)
	remote, err := o.store.ListMessages(sctx, st.session.ID)
	cancel()
	if err != nil {
		remote = nil
	}

	merged := domain.MergeMessages(remote, st.local)
	history := merged[:0:0]
	for _, m := range merged {
		if m.ID == excludeID {
			continue
		}
		history = append(history, m)
	}
	return domain.ContextWindow(history, config.ContextWindowSize)
}

func (o *Orchestrator) persistMessage(ctx context.Context, m *domain.Message) error {
	sctx, cancel := context.WithTimeout(ctx, config.StoreTimeout)
	defer cancel()
	return o.store.AppendMessage(sctx, m)
}

func (o *Orchestrator) enqueueMessage(ctx context.Context, m *domain.Message, now time.Time) {
	op, err := domain.NewMessageOp(m, now)
	if err != nil {
		slog.Error("build message operation", "message_id", m.ID, "error", err)
		return
	}
	if err := o.queue.Enqueue(ctx, op); err != nil {
		slog.Error("enqueue message operation", "message_id", m.ID, "error", err)
	}
}

func (o *Orchestrator) enqueueSessionOp(ctx context.Context, kind domain.OpKind, s *domain.Session, now time.Time) {
	op, err := domain.NewSessionOp(kind, s, now)
	if err != nil {
		slog.Error("build session operation", "session_id", s.ID, "error", err)
		return
	}
	if err := o.queue.Enqueue(ctx, op); err != nil {
		slog.Error("enqueue session operation", "session_id", s.ID, "error", err)
	}
}

// escalate delivers the crisis signal: callbacks first, then the
// anonymized safety log. Neither may fail the send; sink errors are
// logged and swallowed.
func (o *Orchestrator) escalate(ctx context.Context, sessionID string, risk float64, at time.Time) {
	esc := domain.Escalation{
		ID:         o.newID(),
		SessionID:  sessionID,
		Severity:   risk,
		OccurredAt: at,
	}

	slog.Info("crisis escalation", "session_id", sessionID, "severity", risk)

	o.cbMu.Lock()
	callbacks := append([]func(domain.Escalation){}, o.onEscalation...)
	o.cbMu.Unlock()
	for _, fn := range callbacks {
		o.safeNotifyEscalation(fn, esc)
	}

	if o.escalations == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, config.StoreTimeout)
	defer cancel()
	if err := o.escalations.RecordEscalation(sctx, &esc); err != nil {
		slog.Error("record escalation", "session_id", sessionID, "error", err)
	}
}

func (o *Orchestrator) safeNotifyEscalation(fn func(domain.Escalation), esc domain.Escalation) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("escalation callback panicked", "panic", r)
		}
	}()
	fn(esc)
}

func (o *Orchestrator) notifyDenied(d Denial) {
	o.cbMu.Lock()
	callbacks := append([]func(Denial){}, o.onDenied...)
	o.cbMu.Unlock()
	for _, fn := range callbacks {
		fn(d)
	}
}

func (o *Orchestrator) cachedDayCount(ownerID string, day time.Time) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.counts[ownerID]
	if !ok || !c.day.Equal(day) {
		return 0
	}
	return c.count
}

func (o *Orchestrator) setCount(ownerID string, day time.Time, n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts[ownerID] = &cachedCount{day: day, count: n}
}

func (o *Orchestrator) bumpCount(ownerID string, now time.Time) {
	day := domain.StartOfDay(now)
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.counts[ownerID]
	if !ok || !c.day.Equal(day) {
		o.counts[ownerID] = &cachedCount{day: day, count: 1}
		return
	}
	c.count++
}

func (o *Orchestrator) resetCounts() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts = make(map[string]*cachedCount)
}
