// Package api holds typed helpers over the backend REST contract. Every helper is a thin
// call through the HTTP adapter: errors propagate unchanged and nothing is retried.
package api

import (
	"context"
	"net/url"
)

// Transport is the part of *httpclient.Client the helpers use.
type Transport interface {
	Get(ctx context.Context, path string, q url.Values, out any) error
	Post(ctx context.Context, path string, in, out any) error
	Put(ctx context.Context, path string, in, out any) error
	Delete(ctx context.Context, path string) ([]byte, error)
}

// Client groups the resource helpers.
type Client struct {
	Events        *Events
	Auth          *Auth
	Users         *Users
	Registrations *Registrations
}

// New wires all helpers onto t.
func New(t Transport) *Client {
	return &Client{
		Events:        &Events{t: t},
		Auth:          &Auth{t: t},
		Users:         &Users{t: t},
		Registrations: &Registrations{t: t},
	}
}
