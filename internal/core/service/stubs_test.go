package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/serendip/gatekeeper/internal/core/domain"
)

// ---------------------------------------------------------------------------
// In-memory stub repositories
// ---------------------------------------------------------------------------

type stubUserRepo struct {
	mu        sync.Mutex
	users     map[string]*domain.User
	nextID    int
	findErr   error // if set, every lookup returns this error
	updateErr error // if set, Update returns this error

	// afterFindByID runs once FindByID has read the user, before the caller
	// sees it. Tests use it to interleave concurrent writes.
	afterFindByID func(id string)
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[string]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	clone := *u
	clone.Groups = append([]string(nil), u.Groups...)
	clone.Tokens = append([]domain.Token(nil), u.Tokens...)
	return &clone
}

// add stores u directly, bypassing uniqueness checks.
func (r *stubUserRepo) add(u *domain.User) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == "" {
		r.nextID++
		u.ID = fmt.Sprintf("u%d", r.nextID)
	}
	r.users[u.ID] = cloneUser(u)
	return u
}

func (r *stubUserRepo) get(id string) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil
	}
	return cloneUser(u)
}

func (r *stubUserRepo) Insert(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == user.Username {
			return nil, domain.ErrUsernameTaken
		}
	}
	r.nextID++
	stored := cloneUser(user)
	stored.ID = fmt.Sprintf("u%d", r.nextID)
	r.users[stored.ID] = stored
	return cloneUser(stored), nil
}

func (r *stubUserRepo) findOne(match func(*domain.User) bool) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, u := range r.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	user, err := r.findOne(func(u *domain.User) bool { return u.ID == id })
	if err == nil && r.afterFindByID != nil {
		r.afterFindByID(id)
	}
	return user, err
}

func (r *stubUserRepo) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	return r.findOne(func(u *domain.User) bool { return u.Username == username })
}

func (r *stubUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.findOne(func(u *domain.User) bool { return u.Email != "" && u.Email == email })
}

func (r *stubUserRepo) FindByMobile(_ context.Context, mobile string) (*domain.User, error) {
	return r.findOne(func(u *domain.User) bool { return u.Mobile != "" && u.Mobile == mobile })
}

func (r *stubUserRepo) FindByAccessToken(_ context.Context, accessToken string) (*domain.User, error) {
	return r.findOne(func(u *domain.User) bool {
		_, ok := u.TokenByAccess(accessToken)
		return ok
	})
}

// Update mirrors the real store: every field except the token list and the
// groups.
func (r *stubUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	stored, ok := r.users[user.ID]
	if !ok {
		return domain.ErrUserNotFound
	}
	next := cloneUser(user)
	next.Tokens = stored.Tokens
	next.Groups = stored.Groups
	r.users[user.ID] = next
	return nil
}

func (r *stubUserRepo) AppendToken(_ context.Context, userID string, token domain.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Tokens = append(u.Tokens, token)
	return nil
}

func (r *stubUserRepo) AddGroup(_ context.Context, userID, group string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if !u.InGroup(group) {
		u.Groups = append(u.Groups, group)
	}
	return nil
}

func (r *stubUserRepo) RemoveGroup(_ context.Context, userID, group string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	kept := u.Groups[:0]
	for _, g := range u.Groups {
		if g != group {
			kept = append(kept, g)
		}
	}
	u.Groups = kept
	return nil
}

type stubRestrictionRepo struct {
	rules   []domain.RestrictionRule
	findErr error
}

func (r *stubRestrictionRepo) FindAll(_ context.Context) ([]domain.RestrictionRule, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	return append([]domain.RestrictionRule(nil), r.rules...), nil
}

func (r *stubRestrictionRepo) Upsert(_ context.Context, rule domain.RestrictionRule) error {
	for i, existing := range r.rules {
		if existing.Key() == rule.Key() {
			r.rules[i] = rule
			return nil
		}
	}
	r.rules = append(r.rules, rule)
	return nil
}

func (r *stubRestrictionRepo) Delete(_ context.Context, key domain.RuleKey) error {
	for i, existing := range r.rules {
		if existing.Key() == key {
			r.rules = append(r.rules[:i], r.rules[i+1:]...)
			return nil
		}
	}
	return domain.ErrRuleNotFound
}

type stubClientRepo struct {
	clients map[string]*domain.Client
}

func newStubClientRepo() *stubClientRepo {
	return &stubClientRepo{clients: make(map[string]*domain.Client)}
}

func (r *stubClientRepo) Insert(_ context.Context, c *domain.Client) (*domain.Client, error) {
	clone := *c
	clone.ID = fmt.Sprintf("c%d", len(r.clients)+1)
	r.clients[clone.ID] = &clone
	out := clone
	return &out, nil
}

func (r *stubClientRepo) FindByID(_ context.Context, id string) (*domain.Client, error) {
	c, ok := r.clients[id]
	if !ok {
		return nil, domain.ErrClientNotFound
	}
	clone := *c
	return &clone, nil
}

func (r *stubClientRepo) UpdateSecret(_ context.Context, id, hash, salt string) error {
	c, ok := r.clients[id]
	if !ok {
		return domain.ErrClientNotFound
	}
	c.SecretHash, c.SecretSalt = hash, salt
	return nil
}

// ---------------------------------------------------------------------------
// Transport stubs
// ---------------------------------------------------------------------------

// stubMinter mints sequential tokens prefixed with "tok-" and recognizes
// only that prefix.
type stubMinter struct {
	mu sync.Mutex
	n  int
}

func (m *stubMinter) Mint(userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	return fmt.Sprintf("tok-%s-%d", userID, m.n), nil
}

func (m *stubMinter) Recognize(token string) bool {
	return strings.HasPrefix(token, "tok-")
}

type stubNotifier struct {
	sent []domain.Notification
	err  error
}

func (n *stubNotifier) Send(_ context.Context, msg domain.Notification) (*domain.Delivery, error) {
	if n.err != nil {
		return nil, n.err
	}
	n.sent = append(n.sent, msg)
	return &domain.Delivery{Channel: msg.Channel, To: msg.To, Accepted: time.Now()}, nil
}

type stubQueue struct {
	queued []domain.Notification
}

func (q *stubQueue) Enqueue(n domain.Notification) { q.queued = append(q.queued, n) }

type stubThrottle struct {
	seen map[string]bool
}

func (t *stubThrottle) Allow(_ context.Context, key string, _ time.Duration) (bool, error) {
	if t.seen == nil {
		t.seen = make(map[string]bool)
	}
	if t.seen[key] {
		return false, nil
	}
	t.seen[key] = true
	return true, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var discardLogger = zerolog.Nop()

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testTokenConfig = TokenConfig{
	ExpireIn:      2 * time.Hour,
	ResetInterval: time.Minute,
	OTPExpireIn:   5 * time.Minute,
	HashCost:      bcrypt.MinCost,
}

func newTestTokenService(users *stubUserRepo, clock *fakeClock) *TokenService {
	return NewTokenService(users, &stubMinter{}, testTokenConfig, discardLogger).WithClock(clock.Now)
}
