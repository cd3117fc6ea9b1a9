package limiter

import (
	"context"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config tunes the in-memory limiter.
type Config struct {
	RPS      float64       // steady attempt rate per key
	Burst    int           // attempts allowed back to back
	MaxFails int           // failures within Window that trigger a block
	Window   time.Duration // failure counting window
	BlockFor time.Duration // lockout length
	IdleTTL  time.Duration // idle keys are dropped after this long
}

// DefaultConfig mirrors the login_rps/login_burst defaults.
func DefaultConfig() Config {
	return Config{RPS: 0.5, Burst: 3, MaxFails: 5, Window: 10 * time.Minute, BlockFor: 5 * time.Minute, IdleTTL: 30 * time.Minute}
}

type entry struct {
	bucket       *rate.Limiter
	fails        int
	firstFail    time.Time
	blockedUntil time.Time
	lastSeen     time.Time
}

// Memory is a process-local Limiter: a token bucket per key plus failure lockout.
type Memory struct {
	conf Config
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

var _ Limiter = (*Memory)(nil)

func NewMemory(conf Config) *Memory {
	return &Memory{conf: conf, now: time.Now, entries: make(map[string]*entry)}
}

func key(username string, ipHash []byte) string {
	return strings.ToLower(strings.TrimSpace(username)) + "|" + hex.EncodeToString(ipHash)
}

// get returns the entry for k, creating it, and drops idle entries on the way.
func (m *Memory) get(k string, now time.Time) *entry {
	if m.conf.IdleTTL > 0 {
		for kk, e := range m.entries {
			if kk != k && now.Sub(e.lastSeen) > m.conf.IdleTTL && !e.blockedUntil.After(now) {
				delete(m.entries, kk)
			}
		}
	}
	e, ok := m.entries[k]
	if !ok {
		e = &entry{bucket: rate.NewLimiter(rate.Limit(m.conf.RPS), m.conf.Burst)}
		m.entries[k] = e
	}
	e.lastSeen = now
	return e
}

func (m *Memory) Allow(_ context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.get(key(username, ipHash), now)
	if e.blockedUntil.After(now) {
		return false, e.blockedUntil.Sub(now), nil
	}
	if m.conf.RPS <= 0 {
		return true, 0, nil
	}
	r := e.bucket.ReserveN(now, 1)
	if !r.OK() {
		return false, 0, nil
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d, nil
	}
	return true, 0, nil
}

func (m *Memory) Success(_ context.Context, username string, ipHash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key(username, ipHash)]; ok {
		e.fails = 0
		e.blockedUntil = time.Time{}
	}
	return nil
}

func (m *Memory) Failure(_ context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.get(key(username, ipHash), now)
	if e.fails == 0 || now.Sub(e.firstFail) > m.conf.Window {
		e.fails = 0
		e.firstFail = now
	}
	e.fails++
	if m.conf.MaxFails > 0 && e.fails >= m.conf.MaxFails {
		e.blockedUntil = now.Add(m.conf.BlockFor)
		e.fails = 0
		return true, m.conf.BlockFor, nil
	}
	return false, 0, nil
}
