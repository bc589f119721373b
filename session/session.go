// Package session holds server-side login state: sessions addressed by an
// opaque cookie token, and a credential cache addressed by user id for callers
// that authenticate with a bearer token only.
package session

import (
	"context"
	"encoding/hex"
	"time"

	"go.uber.org/zap"

	"github.com/AndyMelnik/iot-query-probe-v2/internal/util"
)

// idBytes is the entropy of a session id before hex encoding.
const idBytes = 32

// Data is the caller-supplied part of a session.
type Data struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	IoTDBURL  string `json:"iot_db_url"`
	UserDBURL string `json:"user_db_url"`
}

// Session is the server-side state behind a session cookie.
type Session struct {
	Data
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Store abstracts session lifecycle so sessions can live in process memory
// or in Redis. None of the methods fail toward the caller: a missing, expired
// or unreadable session is reported as absent.
type Store interface {
	// Create stores a new session under id, replacing any existing entry.
	Create(ctx context.Context, id string, data Data) Session
	// Get returns the session and refreshes its last activity time. Expired
	// sessions are deleted and reported as absent.
	Get(ctx context.Context, id string) (Session, bool)
	// Destroy removes the session. It is idempotent.
	Destroy(ctx context.Context, id string)
}

// Timeouts bounds a session's lifetime.
type Timeouts struct {
	Idle     time.Duration
	Absolute time.Duration
}

// Expired reports whether s is past either bound at now.
func (t Timeouts) Expired(s Session, now time.Time) bool {
	if now.Sub(s.LastActivityAt) >= t.Idle {
		return true
	}
	return now.Sub(s.CreatedAt) >= t.Absolute
}

// remaining is how long s may live from now if it sees no further activity.
func (t Timeouts) remaining(s Session, now time.Time) time.Duration {
	idle := t.Idle - now.Sub(s.LastActivityAt)
	abs := t.Absolute - now.Sub(s.CreatedAt)
	if abs < idle {
		return abs
	}
	return idle
}

// NewID returns an unguessable session id.
func NewID() (string, error) {
	b, err := util.RandomBytes(idBytes)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Option configures a store.
type Option func(*options)

type options struct {
	now    func() time.Time
	logger *zap.Logger
	prefix string
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger used to report backend errors.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithKeyPrefix namespaces Redis keys. The default is "iqp:".
func WithKeyPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

func buildOptions(opts []Option) options {
	o := options{
		now:    time.Now,
		logger: zap.NewNop(),
		prefix: "iqp:",
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
