// Package session implements server-side sessions referenced by a signed
// cookie. The record stored under the session id holds only the account id.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"

	"github.com/angelmondragon/commercepilot-backend/pkg/config"
	redisclient "github.com/angelmondragon/commercepilot-backend/pkg/redis"
)

const idBytes = 32

var (
	// ErrInvalidTransition is returned when Login or Save run out of order.
	ErrInvalidTransition = errors.New("session: invalid state transition")
	// ErrNoSession is returned when an operation needs a session id that was never issued.
	ErrNoSession = errors.New("session: no session id")
)

// State is the authentication state of a session.
type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// Record is the persisted principal.
type Record struct {
	AccountID uuid.UUID `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the per-request view of a session.
type Session struct {
	id     string
	record *Record
	state  State
}

// ID returns the opaque session id, empty for a request without one.
func (s *Session) ID() string { return s.id }

// State reports where the session is in the login sequence.
func (s *Session) State() State { return s.state }

// AccountID returns the principal of an authenticated session.
func (s *Session) AccountID() (uuid.UUID, bool) {
	if s == nil || s.state != Authenticated || s.record == nil {
		return uuid.Nil, false
	}
	return s.record.AccountID, true
}

// Store is the key/value surface sessions persist to.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Manager issues, persists and destroys sessions.
type Manager struct {
	store Store
	codec *securecookie.SecureCookie
	cfg   config.SessionConfig
	now   func() time.Time
}

// NewManager builds a manager over the given store.
func NewManager(store Store, cfg config.SessionConfig) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if len(cfg.HashKey) < 32 {
		return nil, fmt.Errorf("session hash key must be at least 32 bytes")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "cp_session"
	}

	var blockKey []byte
	if cfg.BlockKey != "" {
		blockKey = []byte(cfg.BlockKey)
	}
	codec := securecookie.New([]byte(cfg.HashKey), blockKey)
	codec.MaxAge(int(cfg.TTL.Seconds()))

	return &Manager{store: store, codec: codec, cfg: cfg, now: time.Now}, nil
}

// Load resolves the session carried by the request cookie. A missing, forged
// or expired cookie yields an anonymous session and no error. Storage
// failures also yield an anonymous session, together with the error.
func (m *Manager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		return &Session{}, nil
	}
	var id string
	if err := m.codec.Decode(m.cfg.CookieName, cookie.Value, &id); err != nil || id == "" {
		return &Session{}, nil
	}

	raw, err := m.store.Get(ctx, redisclient.SessionKey(id))
	if err != nil {
		if errors.Is(err, redisclient.Nil) {
			return &Session{}, nil
		}
		return &Session{}, fmt.Errorf("load session: %w", err)
	}

	var record Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return &Session{}, fmt.Errorf("decode session record: %w", err)
	}
	if record.AccountID == uuid.Nil {
		return &Session{}, errors.New("session record has no account id")
	}
	revoked, err := m.revokedBefore(ctx, record.AccountID)
	if err != nil {
		return &Session{}, err
	}
	if record.CreatedAt.Before(revoked) {
		if err := m.store.Del(ctx, redisclient.SessionKey(id)); err != nil {
			return &Session{}, fmt.Errorf("drop revoked session: %w", err)
		}
		return &Session{}, nil
	}
	return &Session{id: id, record: &record, state: Authenticated}, nil
}

// RevokeAccount voids every session of the account issued before now.
// Sessions established afterwards, including one regenerated right after
// this call, stay valid. The marker outlives any session it can void.
func (m *Manager) RevokeAccount(ctx context.Context, accountID uuid.UUID) error {
	if accountID == uuid.Nil {
		return fmt.Errorf("session: account id is required")
	}
	at := m.now().UTC().Format(time.RFC3339Nano)
	if err := m.store.Set(ctx, redisclient.SessionsRevokedKey(accountID.String()), at, m.cfg.TTL); err != nil {
		return fmt.Errorf("revoke account sessions: %w", err)
	}
	return nil
}

// revokedBefore returns the account's revocation instant, zero when none.
func (m *Manager) revokedBefore(ctx context.Context, accountID uuid.UUID) (time.Time, error) {
	raw, err := m.store.Get(ctx, redisclient.SessionsRevokedKey(accountID.String()))
	if err != nil {
		if errors.Is(err, redisclient.Nil) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("load session revocation: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode session revocation: %w", err)
	}
	return at, nil
}

// Regenerate drops any existing record and gives the session a fresh id.
// It is the first step of every privilege change.
func (m *Manager) Regenerate(ctx context.Context, s *Session) error {
	if s.id != "" {
		if err := m.store.Del(ctx, redisclient.SessionKey(s.id)); err != nil {
			return fmt.Errorf("drop previous session: %w", err)
		}
	}
	id, err := newID()
	if err != nil {
		return err
	}
	s.id = id
	s.record = nil
	s.state = Authenticating
	return nil
}

// Login sets the principal on a regenerated session.
func (m *Manager) Login(s *Session, accountID uuid.UUID) error {
	if s.state != Authenticating || s.id == "" {
		return ErrInvalidTransition
	}
	if accountID == uuid.Nil {
		return fmt.Errorf("session: account id is required")
	}
	s.record = &Record{AccountID: accountID, CreatedAt: m.now().UTC()}
	return nil
}

// Save persists the record. The session becomes Authenticated only once the
// write succeeded.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	if s.state != Authenticating || s.record == nil {
		return ErrInvalidTransition
	}
	payload, err := json.Marshal(s.record)
	if err != nil {
		return fmt.Errorf("encode session record: %w", err)
	}
	if err := m.store.Set(ctx, redisclient.SessionKey(s.id), payload, m.cfg.TTL); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.state = Authenticated
	return nil
}

// Establish runs Regenerate, Login and Save in that order.
func (m *Manager) Establish(ctx context.Context, s *Session, accountID uuid.UUID) error {
	if err := m.Regenerate(ctx, s); err != nil {
		return err
	}
	if err := m.Login(s, accountID); err != nil {
		return err
	}
	return m.Save(ctx, s)
}

// WriteCookie sends the signed session id to the client.
func (m *Manager) WriteCookie(w http.ResponseWriter, s *Session) error {
	if s.id == "" {
		return ErrNoSession
	}
	value, err := m.codec.Encode(m.cfg.CookieName, s.id)
	if err != nil {
		return fmt.Errorf("encode session cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    value,
		Path:     "/",
		Domain:   m.cfg.Domain,
		MaxAge:   int(m.cfg.TTL.Seconds()),
		Expires:  m.now().Add(m.cfg.TTL),
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: m.cfg.SameSiteMode(),
	})
	return nil
}

// Revoke deletes the server-side record. Revoking an anonymous session is
// not an error.
func (m *Manager) Revoke(ctx context.Context, s *Session) error {
	if s == nil || s.id == "" {
		return nil
	}
	err := m.store.Del(ctx, redisclient.SessionKey(s.id))
	s.id = ""
	s.record = nil
	s.state = Anonymous
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// Destroy revokes the session and expires the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, s *Session) error {
	err := m.Revoke(ctx, s)
	m.ClearCookie(w)
	return err
}

// ClearCookie tells the client to drop the session cookie.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   m.cfg.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: m.cfg.SameSiteMode(),
	})
}

func newID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

type ctxKey struct{}

// WithContext stores the request session on ctx.
func WithContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the request session, or an anonymous one.
func FromContext(ctx context.Context) *Session {
	if s, ok := ctx.Value(ctxKey{}).(*Session); ok && s != nil {
		return s
	}
	return &Session{}
}
