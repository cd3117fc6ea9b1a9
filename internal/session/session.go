// Package session owns the current credential and profile. It persists both to durable
// storage, restores them once at start-up and derives the authorization flags every other
// component reads.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/and161185/eventdesk/internal/errs"
	"github.com/and161185/eventdesk/internal/httpclient"
	"github.com/and161185/eventdesk/internal/limiter"
	"github.com/and161185/eventdesk/internal/model"
	"github.com/and161185/eventdesk/internal/storage"
)

// State is an immutable snapshot of the session.
type State struct {
	Credential      string
	Profile         *model.Profile
	IsAuthenticated bool
	IsAdmin         bool
	Loading         bool
}

// ProfileFetcher revalidates the persisted credential. *api.Users implements it.
type ProfileFetcher interface {
	Me(ctx context.Context) (*model.Profile, error)
}

// Authenticator exchanges credentials for a token. *api.Auth implements it.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, error)
}

// Store is the single writer of session state.
type Store struct {
	store storage.Storage
	users ProfileFetcher
	auth  Authenticator
	lim   limiter.Limiter
	log   *zap.Logger
	now   func() time.Time

	// wmu serializes every storage write with the state change it belongs to. Lock order is
	// wmu then mu.
	wmu   sync.Mutex
	mu    sync.RWMutex
	state State
	gen   uint64 // bumped by Login/Logout so a late Restore cannot overwrite them

	restoreOnce sync.Once
	settled     chan struct{}

	subMu  sync.Mutex
	subs   map[int]func(State)
	nextID int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Store) { s.log = l } }

// WithLimiter throttles Authenticate.
func WithLimiter(l limiter.Limiter) Option { return func(s *Store) { s.lim = l } }

// New returns a store in the initial Loading state.
func New(store storage.Storage, users ProfileFetcher, auth Authenticator, opts ...Option) *Store {
	s := &Store{
		store:   store,
		users:   users,
		auth:    auth,
		log:     zap.NewNop(),
		now:     time.Now,
		state:   State{Loading: true},
		settled: make(chan struct{}),
		subs:    make(map[int]func(State)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Settled is closed once Restore has completed.
func (s *Store) Settled() <-chan struct{} { return s.settled }

// Subscribe registers fn for every state change and returns the unsubscribe func.
// fn runs on the goroutine that caused the change.
func (s *Store) Subscribe(fn func(State)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(st State) {
	s.subMu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

// Restore revalidates the persisted credential once. Later calls return the settled state.
// Failures never surface: the session is demoted to logged-out and persisted keys are removed.
func (s *Store) Restore(ctx context.Context) State {
	s.restoreOnce.Do(func() { s.restore(ctx) })
	return s.State()
}

func (s *Store) restore(ctx context.Context) {
	s.mu.RLock()
	gen := s.gen
	s.mu.RUnlock()

	// A Login or Logout before Restore already decided the session.
	decided := gen != 0
	var res revalidation
	if !decided {
		res = s.revalidate(ctx)
	}

	s.wmu.Lock()
	apply := !decided && s.gen == gen
	if apply {
		s.persist(ctx, res)
	}
	s.mu.Lock()
	if apply {
		s.state = newState(res.cred, res.profile)
	}
	s.state.Loading = false
	st := s.state.clone()
	s.mu.Unlock()
	s.wmu.Unlock()

	close(s.settled)
	s.notify(st)
}

// revalidation is the outcome of checking the persisted credential. Nothing is written until
// restore knows no Login or Logout happened meanwhile.
type revalidation struct {
	cred    string
	profile *model.Profile
	discard bool
}

func (s *Store) revalidate(ctx context.Context) revalidation {
	cred, err := storage.Credential(ctx, s.store)
	if err != nil {
		s.log.Info("session restore: read credential", zap.Error(err))
		return revalidation{discard: true}
	}
	if cred == "" {
		return revalidation{}
	}
	if expired(cred, s.now()) {
		s.log.Info("session restore: credential expired")
		return revalidation{discard: true}
	}
	p, err := s.users.Me(httpclient.WithCredential(ctx, cred))
	if err != nil {
		s.log.Info("session restore: revalidation failed", zap.Error(err))
		return revalidation{discard: true}
	}
	return revalidation{cred: cred, profile: p}
}

// persist writes a revalidation outcome. Caller holds wmu.
func (s *Store) persist(ctx context.Context, res revalidation) {
	switch {
	case res.profile != nil:
		if err := storage.Save(ctx, s.store, res.cred, res.profile); err != nil {
			s.log.Warn("session restore: refresh stored profile", zap.Error(err))
		}
	case res.discard:
		if err := storage.Clear(ctx, s.store); err != nil {
			s.log.Warn("session: clear stored keys", zap.Error(err))
		}
	}
}

// expired reports whether cred is a JWT whose exp already passed. Opaque tokens never expire
// locally; the backend decides.
func expired(cred string, now time.Time) bool {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(cred, &claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && !claims.ExpiresAt.After(now)
}

// Login records an already-completed authentication exchange. No network call is made.
// Memory is only updated once both keys are persisted.
func (s *Store) Login(ctx context.Context, p *model.Profile, credential string) error {
	if credential == "" || p == nil {
		return errs.Validation("login requires a credential and a profile")
	}
	s.wmu.Lock()
	if err := storage.Save(ctx, s.store, credential, p); err != nil {
		s.resync(ctx)
		s.wmu.Unlock()
		return err
	}
	s.mu.Lock()
	loading := s.state.Loading
	s.state = newState(credential, p)
	s.state.Loading = loading
	s.gen++
	st := s.state.clone()
	s.mu.Unlock()
	s.wmu.Unlock()

	s.log.Info("logged in", zap.Int64("user_id", p.ID), zap.Bool("admin", p.IsAdmin))
	s.notify(st)
	return nil
}

// resync puts storage back in line with memory after a partial write. Caller holds wmu.
func (s *Store) resync(ctx context.Context) {
	st := s.State()
	var err error
	if st.IsAuthenticated {
		err = storage.Save(ctx, s.store, st.Credential, st.Profile)
	} else {
		err = storage.Clear(ctx, s.store)
	}
	if err != nil {
		s.log.Warn("session: resync stored keys", zap.Error(err))
	}
}

// Authenticate runs the full exchange: token, fetch profile with it, Login.
// Nothing is persisted before Login, so a failure leaves storage and memory as they were.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*model.Profile, error) {
	return s.AuthenticateFrom(ctx, email, password, "")
}

// AuthenticateFrom is Authenticate with the caller's address used as the throttling key.
func (s *Store) AuthenticateFrom(ctx context.Context, email, password, source string) (*model.Profile, error) {
	ipHash := limiter.HashIP(source)
	if s.lim != nil {
		ok, retry, err := s.lim.Allow(ctx, email, ipHash)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: retry in %s", errs.ErrRateLimited, retry.Round(time.Second))
		}
	}

	p, tok, err := s.exchange(ctx, email, password)
	if err != nil {
		s.recordFailure(ctx, email, ipHash, err)
		return nil, err
	}
	if err := s.Login(ctx, p, tok); err != nil {
		return nil, err
	}
	if s.lim != nil {
		if err := s.lim.Success(ctx, email, ipHash); err != nil {
			s.log.Warn("login: reset throttling", zap.Error(err))
		}
	}
	return p, nil
}

// exchange pins the new token on the profile request; storage is untouched until Login.
func (s *Store) exchange(ctx context.Context, email, password string) (*model.Profile, string, error) {
	tok, err := s.auth.Login(ctx, email, password)
	if err != nil {
		return nil, "", err
	}
	p, err := s.users.Me(httpclient.WithCredential(ctx, tok))
	if err != nil {
		return nil, "", fmt.Errorf("fetch profile: %w", err)
	}
	return p, tok, nil
}

func (s *Store) recordFailure(ctx context.Context, email string, ipHash []byte, err error) {
	var he *httpclient.Error
	if s.lim == nil || !errors.As(err, &he) {
		return
	}
	blocked, d, ferr := s.lim.Failure(ctx, email, ipHash)
	if ferr != nil {
		s.log.Warn("login: record failure", zap.Error(ferr))
		return
	}
	if blocked {
		s.log.Info("login: temporarily blocked", zap.Duration("for", d))
	}
}

// Logout clears persisted keys and memory. Safe on an empty session.
func (s *Store) Logout(ctx context.Context) error {
	s.wmu.Lock()
	err := storage.Clear(ctx, s.store)
	s.mu.Lock()
	loading := s.state.Loading
	s.state = State{Loading: loading}
	s.gen++
	st := s.state.clone()
	s.mu.Unlock()
	s.wmu.Unlock()

	s.notify(st)
	if err != nil {
		return fmt.Errorf("clear stored session: %w", err)
	}
	return nil
}

func newState(cred string, p *model.Profile) State {
	if cred == "" || p == nil {
		return State{}
	}
	return State{Credential: cred, Profile: p, IsAuthenticated: true, IsAdmin: p.IsAdmin}
}

func (st State) clone() State {
	if st.Profile != nil {
		p := *st.Profile
		st.Profile = &p
	}
	return st
}
