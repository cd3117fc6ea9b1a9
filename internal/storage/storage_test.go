package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/eventdesk/internal/model"
)

var (
	_ Storage = (*Memory)(nil)
	_ Storage = (*File)(nil)
)

func backends(t *testing.T) map[string]Storage {
	return map[string]Storage{
		"memory": NewMemory(),
		"file":   NewFile(filepath.Join(t.TempDir(), "nested")),
	}
}

func TestStorage_GetSetRemove(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get(ctx, KeyCredential)
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, s.Set(ctx, KeyCredential, "tok"))
			v, ok, err := s.Get(ctx, KeyCredential)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "tok", v)

			require.NoError(t, s.Remove(ctx, KeyCredential))
			require.NoError(t, s.Remove(ctx, KeyCredential))
			_, ok, err = s.Get(ctx, KeyCredential)
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestSaveProfileClear(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	p := &model.Profile{ID: 3, Email: "a@b.c", IsAdmin: true}
	require.NoError(t, Save(ctx, s, "tok", p))

	cred, err := Credential(ctx, s)
	require.NoError(t, err)
	require.Equal(t, "tok", cred)

	got, err := Profile(ctx, s)
	require.NoError(t, err)
	require.Equal(t, int64(3), got.ID)
	require.True(t, got.IsAdmin)

	require.NoError(t, Clear(ctx, s))
	cred, err = Credential(ctx, s)
	require.NoError(t, err)
	require.Empty(t, cred)
	got, err = Profile(ctx, s)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestProfile_CorruptValue(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Set(ctx, KeyProfile, "{not json"))
	_, err := Profile(ctx, s)
	require.Error(t, err)
}

func TestFile_PermissionsAndSharing(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	a, b := NewFile(dir), NewFile(dir)

	require.NoError(t, a.Set(ctx, KeyCredential, "shared"))
	v, ok, err := b.Get(ctx, KeyCredential)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "shared", v)

	st, err := os.Stat(a.Path())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), st.Mode().Perm())
}

func TestFile_CorruptDocument(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("garbage"), 0o600))
	_, _, err := NewFile(dir).Get(ctx, KeyCredential)
	require.Error(t, err)
}
