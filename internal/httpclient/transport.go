package httpclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/and161185/eventdesk/internal/storage"
)

type credentialKey struct{}

// WithCredential pins tok for requests made with ctx instead of the persisted credential.
// The session uses it to check a credential before it is written to storage.
func WithCredential(ctx context.Context, tok string) context.Context {
	return context.WithValue(ctx, credentialKey{}, tok)
}

// PinnedCredential returns the credential pinned on ctx by WithCredential.
func PinnedCredential(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(credentialKey{}).(string)
	return tok, ok
}

// authTransport injects the persisted credential into every outbound request.
// The credential is read from storage on each call, never from the in-memory session.
type authTransport struct {
	base  http.RoundTripper
	store storage.Storage
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, ok := PinnedCredential(req.Context())
	if !ok {
		var err error
		if tok, err = storage.Credential(req.Context(), t.store); err != nil {
			return nil, fmt.Errorf("read credential: %w", err)
		}
	}
	r := req.Clone(req.Context())
	if tok != "" {
		r.Header.Set("Authorization", "Bearer "+tok)
	} else {
		r.Header.Del("Authorization")
	}
	return t.base.RoundTrip(r)
}
