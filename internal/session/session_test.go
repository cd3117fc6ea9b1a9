package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/and161185/eventdesk/internal/errs"
	"github.com/and161185/eventdesk/internal/httpclient"
	"github.com/and161185/eventdesk/internal/limiter"
	"github.com/and161185/eventdesk/internal/model"
	"github.com/and161185/eventdesk/internal/storage"
)

type fakeBackend struct {
	mu       sync.Mutex
	meCalls  int32
	profile  *model.Profile
	meErr    error
	token    string
	loginErr error
	// seenCred is the credential Me would have sent.
	store    storage.Storage
	seenCred string
}

var (
	_ ProfileFetcher = (*fakeBackend)(nil)
	_ Authenticator  = (*fakeBackend)(nil)
)

func (f *fakeBackend) Me(ctx context.Context) (*model.Profile, error) {
	atomic.AddInt32(&f.meCalls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if tok, ok := httpclient.PinnedCredential(ctx); ok {
		f.seenCred = tok
	} else if f.store != nil {
		f.seenCred, _ = storage.Credential(ctx, f.store)
	}
	if f.meErr != nil {
		return nil, f.meErr
	}
	p := *f.profile
	return &p, nil
}

func (f *fakeBackend) Login(_ context.Context, _, _ string) (string, error) {
	if f.loginErr != nil {
		return "", f.loginErr
	}
	return f.token, nil
}

func unauthorized() error {
	return &httpclient.Error{Method: "GET", Path: "/api/users/me", Status: 401}
}

func admin() *model.Profile {
	return &model.Profile{ID: 1, Email: "admin@x", FullName: "Admin", IsAdmin: true}
}

func newStore(t *testing.T, fb *fakeBackend, opts ...Option) (*Store, storage.Storage) {
	t.Helper()
	st := storage.NewMemory()
	fb.store = st
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	return New(st, fb, fb, opts...), st
}

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "1", ExpiresAt: jwt.NewNumericDate(exp)})
	s, err := tok.SignedString([]byte("k"))
	require.NoError(t, err)
	return s
}

func TestNew_StartsLoading(t *testing.T) {
	s, _ := newStore(t, &fakeBackend{})
	st := s.State()
	require.True(t, st.Loading)
	require.False(t, st.IsAuthenticated)
	select {
	case <-s.Settled():
		t.Fatal("must not be settled before Restore")
	default:
	}
}

func TestRestore_NoCredential(t *testing.T) {
	fb := &fakeBackend{}
	s, _ := newStore(t, fb)

	st := s.Restore(context.Background())
	require.False(t, st.Loading)
	require.False(t, st.IsAuthenticated)
	require.Nil(t, st.Profile)
	require.Zero(t, atomic.LoadInt32(&fb.meCalls))
	<-s.Settled()
}

func TestRestore_Accepted(t *testing.T) {
	fb := &fakeBackend{profile: admin()}
	s, st := newStore(t, fb)
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, storage.KeyCredential, "opaque"))
	require.NoError(t, st.Set(ctx, storage.KeyProfile, `{"id":1,"full_name":"Stale","is_admin":0}`))

	got := s.Restore(ctx)
	require.False(t, got.Loading)
	require.True(t, got.IsAuthenticated)
	require.True(t, got.IsAdmin)
	require.Equal(t, "opaque", got.Credential)
	require.Equal(t, "Admin", got.Profile.FullName)

	stored, err := storage.Profile(ctx, st)
	require.NoError(t, err)
	require.Equal(t, "Admin", stored.FullName)
	require.True(t, stored.IsAdmin)
}

func TestRestore_RejectedClearsKeys(t *testing.T) {
	fb := &fakeBackend{meErr: unauthorized()}
	s, st := newStore(t, fb)
	ctx := context.Background()
	require.NoError(t, storage.Save(ctx, st, "bad", admin()))

	got := s.Restore(ctx)
	require.False(t, got.Loading)
	require.False(t, got.IsAuthenticated)
	require.Nil(t, got.Profile)

	_, ok, _ := st.Get(ctx, storage.KeyCredential)
	require.False(t, ok)
	_, ok, _ = st.Get(ctx, storage.KeyProfile)
	require.False(t, ok)
}

func TestRestore_TransportFailureAlsoDemotes(t *testing.T) {
	fb := &fakeBackend{meErr: errs.ErrTransport}
	s, st := newStore(t, fb)
	ctx := context.Background()
	require.NoError(t, storage.Save(ctx, st, "tok", admin()))

	got := s.Restore(ctx)
	require.False(t, got.IsAuthenticated)
	cred, _ := storage.Credential(ctx, st)
	require.Empty(t, cred)
}

func TestRestore_ExpiredJWTSkipsNetwork(t *testing.T) {
	fb := &fakeBackend{profile: admin()}
	s, st := newStore(t, fb)
	ctx := context.Background()
	require.NoError(t, storage.Save(ctx, st, signed(t, time.Now().Add(-time.Hour)), admin()))

	got := s.Restore(ctx)
	require.False(t, got.IsAuthenticated)
	require.Zero(t, atomic.LoadInt32(&fb.meCalls))
	cred, _ := storage.Credential(ctx, st)
	require.Empty(t, cred)
}

func TestRestore_LiveJWTRevalidates(t *testing.T) {
	fb := &fakeBackend{profile: admin()}
	s, st := newStore(t, fb)
	ctx := context.Background()
	tok := signed(t, time.Now().Add(time.Hour))
	require.NoError(t, st.Set(ctx, storage.KeyCredential, tok))

	got := s.Restore(ctx)
	require.True(t, got.IsAuthenticated)
	require.Equal(t, int32(1), atomic.LoadInt32(&fb.meCalls))
}

func TestRestore_OnlyOnce(t *testing.T) {
	fb := &fakeBackend{profile: admin()}
	s, st := newStore(t, fb)
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, storage.KeyCredential, "tok"))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Restore(ctx)
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), atomic.LoadInt32(&fb.meCalls))
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	fb := &fakeBackend{profile: admin()}
	s, _ := newStore(t, fb)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []State
	unsub := s.Subscribe(func(st State) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})

	s.Restore(ctx)
	require.NoError(t, s.Login(ctx, admin(), "tok"))
	unsub()
	require.NoError(t, s.Logout(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	require.False(t, seen[0].Loading)
	require.True(t, seen[1].IsAdmin)
}

func TestLogin_PersistsAndUpdatesMemory(t *testing.T) {
	fb := &fakeBackend{}
	s, st := newStore(t, fb)
	ctx := context.Background()
	s.Restore(ctx)

	p := &model.Profile{ID: 2, Email: "u@x"}
	require.NoError(t, s.Login(ctx, p, "tok"))

	got := s.State()
	require.True(t, got.IsAuthenticated)
	require.False(t, got.IsAdmin)
	require.Equal(t, "tok", got.Credential)
	require.Zero(t, atomic.LoadInt32(&fb.meCalls))

	cred, _ := storage.Credential(ctx, st)
	require.Equal(t, "tok", cred)
	stored, _ := storage.Profile(ctx, st)
	require.Equal(t, int64(2), stored.ID)

	got.Profile.FullName = "mutated"
	require.Empty(t, s.State().Profile.FullName, "snapshots are copies")
}

func TestLogin_RejectsIncompleteSession(t *testing.T) {
	s, _ := newStore(t, &fakeBackend{})
	require.ErrorIs(t, s.Login(context.Background(), nil, "tok"), errs.ErrValidation)
	require.ErrorIs(t, s.Login(context.Background(), admin(), ""), errs.ErrValidation)
}

func TestLogin_BeforeRestoreKeepsLoadingAndWins(t *testing.T) {
	fb := &fakeBackend{meErr: unauthorized()}
	s, st := newStore(t, fb)
	ctx := context.Background()

	require.NoError(t, s.Login(ctx, admin(), "fresh"))
	require.True(t, s.State().Loading)

	got := s.Restore(ctx)
	require.False(t, got.Loading)
	require.True(t, got.IsAuthenticated, "a late restore must not undo an explicit login")
	require.Zero(t, atomic.LoadInt32(&fb.meCalls))
	cred, _ := storage.Credential(ctx, st)
	require.Equal(t, "fresh", cred)
}

// parkedBackend holds the first Me call until release is closed.
type parkedBackend struct {
	*fakeBackend
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (p *parkedBackend) Me(ctx context.Context) (*model.Profile, error) {
	first := false
	p.once.Do(func() { first = true })
	if first {
		close(p.entered)
		<-p.release
	}
	return p.fakeBackend.Me(ctx)
}

// restoring starts Restore over a persisted "old-user-token" and returns once its
// revalidation call is in flight.
func restoring(t *testing.T, fb *fakeBackend) (*Store, storage.Storage, *parkedBackend) {
	t.Helper()
	st := storage.NewMemory()
	fb.store = st
	ctx := context.Background()
	require.NoError(t, storage.Save(ctx, st, "old-user-token", admin()))

	pb := &parkedBackend{fakeBackend: fb, entered: make(chan struct{}), release: make(chan struct{})}
	s := New(st, pb, fb, WithLogger(zaptest.NewLogger(t)))
	go s.Restore(ctx)
	<-pb.entered
	return s, st, pb
}

func requireConsistent(t *testing.T, s *Store, st storage.Storage) {
	t.Helper()
	<-s.Settled()
	cred, err := storage.Credential(context.Background(), st)
	require.NoError(t, err)
	require.Equal(t, s.State().Credential, cred, "persisted credential must match the session")
	require.False(t, s.State().Loading)
}

func TestLogin_DuringRestoreWinsInStorage(t *testing.T) {
	for name, meErr := range map[string]error{"accepted": nil, "rejected": unauthorized()} {
		t.Run(name, func(t *testing.T) {
			s, st, pb := restoring(t, &fakeBackend{profile: admin(), meErr: meErr})
			newUser := &model.Profile{ID: 9, Email: "new@x", FullName: "New"}

			require.NoError(t, s.Login(context.Background(), newUser, "new-user-token"))
			close(pb.release)

			requireConsistent(t, s, st)
			require.Equal(t, "new-user-token", s.State().Credential)
			stored, _ := storage.Profile(context.Background(), st)
			require.Equal(t, int64(9), stored.ID)
		})
	}
}

func TestLogout_DuringRestoreWinsInStorage(t *testing.T) {
	s, st, pb := restoring(t, &fakeBackend{profile: admin()})

	require.NoError(t, s.Logout(context.Background()))
	close(pb.release)

	requireConsistent(t, s, st)
	require.False(t, s.State().IsAuthenticated)
	_, ok, _ := st.Get(context.Background(), storage.KeyProfile)
	require.False(t, ok)
}

func TestAuthenticate_DuringRestoreWinsInStorage(t *testing.T) {
	fb := &fakeBackend{profile: admin(), token: "new-user-token"}
	s, st, pb := restoring(t, fb)

	_, err := s.Authenticate(context.Background(), "admin@x", "pw")
	require.NoError(t, err)
	require.Equal(t, "new-user-token", fb.seenCred)
	close(pb.release)

	requireConsistent(t, s, st)
	require.Equal(t, "new-user-token", s.State().Credential)
}

func TestAuthenticate_FailureDuringRestoreKeepsRestoredSession(t *testing.T) {
	fb := &fakeBackend{profile: admin(), loginErr: &httpclient.Error{Status: 401}}
	s, st, pb := restoring(t, fb)

	_, err := s.Authenticate(context.Background(), "admin@x", "bad")
	require.Error(t, err)
	close(pb.release)

	requireConsistent(t, s, st)
	require.Equal(t, "old-user-token", s.State().Credential)
}

func TestLogout_Idempotent(t *testing.T) {
	s, st := newStore(t, &fakeBackend{})
	ctx := context.Background()
	s.Restore(ctx)
	require.NoError(t, s.Login(ctx, admin(), "tok"))

	require.NoError(t, s.Logout(ctx))
	require.NoError(t, s.Logout(ctx))
	got := s.State()
	require.False(t, got.IsAuthenticated)
	require.False(t, got.Loading)
	_, ok, _ := st.Get(ctx, storage.KeyCredential)
	require.False(t, ok)
}

func TestAuthenticate_Success(t *testing.T) {
	fb := &fakeBackend{token: "new", profile: admin()}
	s, st := newStore(t, fb)
	ctx := context.Background()
	s.Restore(ctx)

	p, err := s.Authenticate(ctx, "admin@x", "pw")
	require.NoError(t, err)
	require.True(t, p.IsAdmin)
	require.Equal(t, "new", fb.seenCred, "profile fetch must carry the new credential")

	got := s.State()
	require.True(t, got.IsAuthenticated)
	require.Equal(t, "new", got.Credential)
	cred, _ := storage.Credential(ctx, st)
	require.Equal(t, "new", cred)
}

func TestAuthenticate_ProfileFailureLeavesNoStaleCredential(t *testing.T) {
	fb := &fakeBackend{token: "new", meErr: unauthorized()}
	s, st := newStore(t, fb)
	ctx := context.Background()
	s.Restore(ctx)

	_, err := s.Authenticate(ctx, "a@x", "pw")
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	_, ok, _ := st.Get(ctx, storage.KeyCredential)
	require.False(t, ok)
	_, ok, _ = st.Get(ctx, storage.KeyProfile)
	require.False(t, ok)
	require.False(t, s.State().IsAuthenticated)
}

func TestAuthenticate_FailureRestoresPreviousSession(t *testing.T) {
	fb := &fakeBackend{profile: admin()}
	s, st := newStore(t, fb)
	ctx := context.Background()
	s.Restore(ctx)
	require.NoError(t, s.Login(ctx, admin(), "old"))

	fb.token = "new"
	fb.meErr = errs.ErrTransport
	_, err := s.Authenticate(ctx, "other@x", "pw")
	require.Error(t, err)

	cred, _ := storage.Credential(ctx, st)
	require.Equal(t, "old", cred)
	require.Equal(t, "old", s.State().Credential)
}

func TestAuthenticate_LoginRejected(t *testing.T) {
	fb := &fakeBackend{loginErr: &httpclient.Error{Status: 401}}
	s, st := newStore(t, fb)
	ctx := context.Background()

	_, err := s.Authenticate(ctx, "a@x", "bad")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	require.Zero(t, atomic.LoadInt32(&fb.meCalls))
	_, ok, _ := st.Get(ctx, storage.KeyCredential)
	require.False(t, ok)
}

func TestAuthenticate_RateLimited(t *testing.T) {
	fb := &fakeBackend{loginErr: &httpclient.Error{Status: 401}}
	lim := limiter.NewMemory(limiter.Config{MaxFails: 2, Window: time.Minute, BlockFor: time.Minute})
	s, _ := newStore(t, fb, WithLimiter(lim))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := s.AuthenticateFrom(ctx, "a@x", "bad", "10.0.0.1")
		require.ErrorIs(t, err, errs.ErrUnauthorized)
	}
	_, err := s.AuthenticateFrom(ctx, "a@x", "bad", "10.0.0.1")
	require.ErrorIs(t, err, errs.ErrRateLimited)

	fb.loginErr = nil
	fb.token = "t"
	fb.profile = admin()
	_, err = s.AuthenticateFrom(ctx, "a@x", "good", "10.0.0.2")
	require.NoError(t, err, "other client addresses are not blocked")
}

func TestAuthenticate_TransportFailureNotCounted(t *testing.T) {
	fb := &fakeBackend{loginErr: errors.New("dial tcp: refused")}
	lim := limiter.NewMemory(limiter.Config{MaxFails: 1, Window: time.Minute, BlockFor: time.Minute})
	s, _ := newStore(t, fb, WithLimiter(lim))

	for i := 0; i < 3; i++ {
		_, err := s.Authenticate(context.Background(), "a@x", "pw")
		require.NotErrorIs(t, err, errs.ErrRateLimited)
	}
}

func TestExpired(t *testing.T) {
	now := time.Now()
	require.True(t, expired(signed(t, now.Add(-time.Second)), now))
	require.False(t, expired(signed(t, now.Add(time.Minute)), now))
	require.False(t, expired("not-a-jwt", now))
}

type brokenLimiter struct{}

var _ limiter.Limiter = brokenLimiter{}

func (brokenLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	return true, 0, nil
}

func (brokenLimiter) Success(context.Context, string, []byte) error {
	return errors.New("limiter store down")
}

func (brokenLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	return false, 0, errors.New("limiter store down")
}

func TestAuthenticate_LimiterErrorsAreLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	fb := &fakeBackend{token: "t", profile: admin()}
	st := storage.NewMemory()
	s := New(st, fb, fb, WithLogger(zap.New(core)), WithLimiter(brokenLimiter{}))
	ctx := context.Background()

	_, err := s.Authenticate(ctx, "admin@x", "pw")
	require.NoError(t, err, "a limiter bookkeeping error does not fail a good login")
	require.Equal(t, 1, logs.FilterMessage("login: reset throttling").Len())

	fb.loginErr = &httpclient.Error{Status: 401}
	_, err = s.Authenticate(ctx, "admin@x", "bad")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	require.Equal(t, 1, logs.FilterMessage("login: record failure").Len())
}

// flakyStorage fails writes to one key.
type flakyStorage struct {
	storage.Storage
	mu      sync.Mutex
	failKey string
}

func (f *flakyStorage) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	fail := key == f.failKey
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.Storage.Set(ctx, key, value)
}

func TestLogin_PartialWriteRollsStorageBack(t *testing.T) {
	st := &flakyStorage{Storage: storage.NewMemory()}
	fb := &fakeBackend{store: st}
	s := New(st, fb, fb, WithLogger(zaptest.NewLogger(t)))
	ctx := context.Background()
	s.Restore(ctx)
	require.NoError(t, s.Login(ctx, admin(), "old"))

	st.mu.Lock()
	st.failKey = storage.KeyProfile
	st.mu.Unlock()
	require.Error(t, s.Login(ctx, &model.Profile{ID: 7}, "new"))

	require.Equal(t, "old", s.State().Credential)
	cred, err := storage.Credential(ctx, st)
	require.NoError(t, err)
	require.Equal(t, "old", cred)
}
