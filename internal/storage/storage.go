// Package storage is the durable client-side key/value store that mirrors the session
// credential and profile across process restarts.
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/and161185/eventdesk/internal/model"
)

// Fixed keys shared by the session store and the HTTP adapter.
const (
	KeyCredential = "jwt_token"
	KeyProfile    = "user"
)

// Storage persists string values by key. Implementations must be safe for concurrent use.
type Storage interface {
	// Get returns the value and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

// Credential reads the persisted bearer token; "" when absent.
func Credential(ctx context.Context, s Storage) (string, error) {
	v, ok, err := s.Get(ctx, KeyCredential)
	if err != nil || !ok {
		return "", err
	}
	return v, nil
}

// Profile reads the persisted profile copy; nil when absent.
func Profile(ctx context.Context, s Storage) (*model.Profile, error) {
	v, ok, err := s.Get(ctx, KeyProfile)
	if err != nil || !ok || v == "" {
		return nil, err
	}
	var p model.Profile
	if err := json.Unmarshal([]byte(v), &p); err != nil {
		return nil, fmt.Errorf("decode stored profile: %w", err)
	}
	return &p, nil
}

// Save persists credential and profile together.
func Save(ctx context.Context, s Storage, credential string, p *model.Profile) error {
	if err := s.Set(ctx, KeyCredential, credential); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	if p == nil {
		return s.Remove(ctx, KeyProfile)
	}
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := s.Set(ctx, KeyProfile, string(b)); err != nil {
		return fmt.Errorf("store profile: %w", err)
	}
	return nil
}

// Clear removes both session keys. Both removals are attempted.
func Clear(ctx context.Context, s Storage) error {
	err1 := s.Remove(ctx, KeyCredential)
	err2 := s.Remove(ctx, KeyProfile)
	if err1 != nil {
		return err1
	}
	return err2
}
