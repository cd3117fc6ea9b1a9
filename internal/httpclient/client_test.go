package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/eventdesk/internal/errs"
	"github.com/and161185/eventdesk/internal/storage"
)

type seen struct {
	mu      sync.Mutex
	auth    []string
	hasAuth []bool
	ids     []string
	ctype   []string
}

func (s *seen) record(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := r.Header["Authorization"]
	s.hasAuth = append(s.hasAuth, ok)
	s.auth = append(s.auth, r.Header.Get("Authorization"))
	s.ids = append(s.ids, r.Header.Get(RequestIDHeader))
	s.ctype = append(s.ctype, r.Header.Get("Content-Type"))
}

func newBackend(t *testing.T, h http.HandlerFunc) (*httptest.Server, *seen) {
	t.Helper()
	s := &seen{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, s
}

func TestClient_CredentialFollowsStorage(t *testing.T) {
	srv, s := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	store := storage.NewMemory()
	c := New(srv.URL+"/", store, WithLogger(zaptest.NewLogger(t)))
	ctx := context.Background()

	require.NoError(t, c.Get(ctx, "/api/users/me", nil, nil))

	require.NoError(t, store.Set(ctx, storage.KeyCredential, "abc"))
	require.NoError(t, c.Get(ctx, "/api/users/me", nil, nil))

	require.NoError(t, store.Remove(ctx, storage.KeyCredential))
	require.NoError(t, c.Get(ctx, "/api/users/me", nil, nil))

	require.Equal(t, []bool{false, true, false}, s.hasAuth)
	require.Equal(t, "Bearer abc", s.auth[1])
}

func TestClient_PinnedCredentialOverridesStorage(t *testing.T) {
	srv, s := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	store := storage.NewMemory()
	c := New(srv.URL, store)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, storage.KeyCredential, "stored"))

	require.NoError(t, c.Get(WithCredential(ctx, "pinned"), "/api/users/me", nil, nil))
	require.NoError(t, c.Get(ctx, "/api/users/me", nil, nil))

	require.Equal(t, []string{"Bearer pinned", "Bearer stored"}, s.auth)
	cred, _ := storage.Credential(ctx, store)
	require.Equal(t, "stored", cred, "pinning never writes storage")
}

func TestTransport_DropsStaleHeader(t *testing.T) {
	srv, s := newBackend(t, func(w http.ResponseWriter, r *http.Request) {})
	store := storage.NewMemory()
	hc := &http.Client{Transport: &authTransport{base: http.DefaultTransport, store: store}}

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer stale")
	resp, err := hc.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	require.Equal(t, []bool{false}, s.hasAuth)
	require.Equal(t, "Bearer stale", req.Header.Get("Authorization"), "caller request must not be mutated")
}

func TestClient_JSONAndRequestID(t *testing.T) {
	srv, s := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "include_past=true&page_size=100", r.URL.RawQuery)
		var in map[string]any
		if r.Method == http.MethodPost {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			require.Equal(t, "T", in["title"])
		}
		_, _ = w.Write([]byte(`{"id":42}`))
	})
	c := New(srv.URL, storage.NewMemory())

	var out struct {
		ID int `json:"id"`
	}
	q := url.Values{"page_size": {"100"}, "include_past": {"true"}}
	require.NoError(t, c.Get(context.Background(), "/api/events/", q, &out))
	require.Equal(t, 42, out.ID)

	require.Len(t, s.ids, 1)
	_, err := uuid.FromString(s.ids[0])
	require.NoError(t, err)
	require.Empty(t, s.ctype[0])
}

func TestClient_PostSetsContentType(t *testing.T) {
	srv, s := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1}`))
	})
	c := New(srv.URL, storage.NewMemory())

	var out map[string]any
	require.NoError(t, c.Post(context.Background(), "/api/events/", map[string]string{"title": "T"}, &out))
	require.Equal(t, "application/json", s.ctype[0])
}

func TestClient_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		body   string
		is     error
		text   string
	}{
		{404, `{"detail":"Event not found"}`, errs.ErrNotFound, "Event not found"},
		{401, `{"detail":"Could not validate credentials"}`, errs.ErrUnauthorized, "Could not validate credentials"},
		{403, `{"detail":"Not enough permissions"}`, errs.ErrUnauthorized, "Not enough permissions"},
		{422, `{"detail":[{"loc":["body","title"],"msg":"field required"},{"loc":["body","capacity"],"msg":"must be > 0"}]}`,
			errs.ErrBackend, "body.title: field required | body.capacity: must be > 0"},
		{500, `oops`, errs.ErrBackend, ""},
	}
	for _, tc := range cases {
		srv, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		})
		c := New(srv.URL, storage.NewMemory())
		err := c.Get(context.Background(), "/x", nil, nil)
		require.ErrorIs(t, err, tc.is, tc.body)

		var he *Error
		require.True(t, errors.As(err, &he))
		require.Equal(t, tc.status, he.Status)
		require.Equal(t, tc.text, he.DetailText())
	}
}

func TestClient_NotFoundIsNotBackend(t *testing.T) {
	e := &Error{Status: 404}
	require.False(t, errors.Is(e, errs.ErrBackend))
	require.False(t, errors.Is(e, errs.ErrUnauthorized))
}

func TestClient_DeleteReturnsRawAck(t *testing.T) {
	srv, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})
	c := New(srv.URL, storage.NewMemory())
	ack, err := c.Delete(context.Background(), "/api/events/3")
	require.NoError(t, err)
	require.Empty(t, ack)
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c := New(addr, storage.NewMemory(), WithLogger(zaptest.NewLogger(t)))
	err := c.Get(context.Background(), "/api/users/me", nil, nil)
	require.ErrorIs(t, err, errs.ErrTransport)
	require.Equal(t, ConnectivityMessage, Message(err, "fallback"))
}

func TestClient_TimeoutIsTransport(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c := New(srv.URL, storage.NewMemory(), WithTimeout(50*time.Millisecond))
	err := c.Get(context.Background(), "/slow", nil, nil)
	require.ErrorIs(t, err, errs.ErrTransport)
}

func TestMessage(t *testing.T) {
	require.Equal(t, "", Message(nil, "x"))
	require.Equal(t, "fallback", Message(errors.New("boom"), "fallback"))
	require.Equal(t, "fallback", Message(&Error{Status: 500}, "fallback"))
	require.Equal(t, "Not allowed", Message(&Error{Status: 403, Detail: json.RawMessage(`{"msg":"Not allowed"}`)}, "f"))
	require.Equal(t, `{"code":7}`, Message(&Error{Status: 400, Detail: json.RawMessage(`{"code":7}`)}, "f"))
	require.Equal(t, "bad input", Message(errs.Validation("bad input"), "f"))
}

func TestFieldErrorPathWithIndex(t *testing.T) {
	e := &Error{Status: 422, Detail: json.RawMessage(`[{"loc":["body","tags",0],"msg":"bad"}]`)}
	require.Equal(t, "body.tags.0: bad", e.DetailText())
	require.Len(t, e.Fields(), 1)
}
