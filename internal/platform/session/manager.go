package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// DefaultCookieName is the cookie that carries the signed session id.
const DefaultCookieName = "cds_session"

const contextKey = "session"

// Claims is the payload of the session cookie.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithCookieName overrides DefaultCookieName.
func WithCookieName(name string) Option {
	return func(m *Manager) { m.cookieName = name }
}

// WithSecureCookie marks the cookie Secure (HTTPS only).
func WithSecureCookie(secure bool) Option {
	return func(m *Manager) { m.secure = secure }
}

// WithLogger sets the logger used for store failures.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// Manager loads and saves sessions for HTTP requests.
type Manager struct {
	store      Store
	secret     []byte
	ttl        time.Duration
	cookieName string
	secure     bool
	logger     zerolog.Logger
	now        func() time.Time
}

// NewManager returns a Manager. An empty secret is replaced by a random one,
// which invalidates every cookie on restart.
func NewManager(store Store, secret []byte, ttl time.Duration, opts ...Option) (*Manager, error) {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	m := &Manager{
		store:      store,
		secret:     secret,
		ttl:        ttl,
		cookieName: DefaultCookieName,
		logger:     zerolog.Nop(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Store returns the underlying store.
func (m *Manager) Store() Store {
	return m.store
}

// Token signs a cookie value for the session id.
func (m *Manager) Token(id string) (string, error) {
	now := m.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		SessionID: id,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ParseToken verifies a cookie value and returns its claims.
func (m *Manager) ParseToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.SessionID == "" {
		return nil, errors.New("invalid session token")
	}
	return claims, nil
}

// Load returns the request's session. A missing, invalid, or expired cookie
// starts a fresh session. The cookie is (re)issued here, before the handler
// writes the response, when it is new or past half its lifetime.
func (m *Manager) Load(c echo.Context) *Session {
	ctx := c.Request().Context()

	var claims *Claims
	if cookie, err := c.Cookie(m.cookieName); err == nil && cookie.Value != "" {
		claims, err = m.ParseToken(cookie.Value)
		if err != nil {
			m.logger.Debug().Err(err).Msg("discarding session cookie")
		}
	}

	var s *Session
	if claims != nil {
		loaded, err := m.store.Load(ctx, claims.SessionID)
		switch {
		case err == nil:
			s = loaded
		case errors.Is(err, ErrNotFound):
			s = New(m.ttl)
			s.ID = claims.SessionID
		default:
			m.logger.Warn().Err(err).Str("session_id", claims.SessionID).Msg("session load failed")
			s = New(m.ttl)
			s.ID = claims.SessionID
		}
	} else {
		s = New(m.ttl)
	}

	if claims == nil || m.needsRefresh(claims) {
		if err := m.setCookie(c, s.ID); err != nil {
			m.logger.Warn().Err(err).Msg("session cookie not issued")
		}
		if !s.IsNew() {
			s.touch()
		}
	}
	return s
}

func (m *Manager) needsRefresh(claims *Claims) bool {
	if claims.ExpiresAt == nil {
		return true
	}
	return claims.ExpiresAt.Time.Sub(m.now()) < m.ttl/2
}

func (m *Manager) setCookie(c echo.Context, id string) error {
	token, err := m.Token(id)
	if err != nil {
		return err
	}
	c.SetCookie(&http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Save persists s if it changed, extending its expiry.
func (m *Manager) Save(c echo.Context, s *Session) error {
	if !s.Dirty() {
		return nil
	}
	s.ExpiresAt = m.now().Add(m.ttl)
	if err := m.store.Save(c.Request().Context(), s); err != nil {
		return err
	}
	s.markClean()
	return nil
}

// Skipper decides whether a request bypasses the session middleware.
type Skipper func(c echo.Context) bool

// SkipStatic skips static assets and health checks.
func SkipStatic(c echo.Context) bool {
	p := c.Request().URL.Path
	return strings.HasPrefix(p, "/static/") || strings.HasPrefix(p, "/health")
}

// Middleware loads the session before the handler and saves it afterwards
// when the handler changed it. Save failures are logged; the response has
// already been written by then.
func Middleware(m *Manager, skipper Skipper) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}
			s := m.Load(c)
			Set(c, s)

			err := next(c)

			if saveErr := m.Save(c, s); saveErr != nil {
				rid, _ := c.Get("request_id").(string)
				m.logger.Error().
					Err(saveErr).
					Str("request_id", rid).
					Str("session_id", s.ID).
					Msg("session save failed")
			}
			return err
		}
	}
}

// Set attaches s to the echo context.
func Set(c echo.Context, s *Session) {
	c.Set(contextKey, s)
}

// FromContext returns the request's session. Outside the middleware it
// attaches and returns a detached empty session.
func FromContext(c echo.Context) *Session {
	if s, ok := c.Get(contextKey).(*Session); ok && s != nil {
		return s
	}
	s := New(time.Hour)
	Set(c, s)
	return s
}

// Owner identifies the visitor for export ownership checks.
func Owner(c echo.Context) string {
	return FromContext(c).ID
}
