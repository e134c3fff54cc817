// Package webtest drives page handlers in tests the way a browser would:
// real templates, a real session middleware over a memory store, and a
// cookie jar carried from one request to the next.
package webtest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ecds/dashboard/internal/platform/render"
	"github.com/ecds/dashboard/internal/platform/session"
	"github.com/ecds/dashboard/ui"
)

// Browser is an echo server plus the cookies it has handed out.
type Browser struct {
	Echo    *echo.Echo
	Store   *session.MemoryStore
	Manager *session.Manager
	cookies map[string]*http.Cookie
}

// New returns a Browser whose routes are registered by register.
func New(t *testing.T, register func(g *echo.Group)) *Browser {
	t.Helper()
	r, err := render.New(ui.FS)
	if err != nil {
		t.Fatalf("parse templates: %v", err)
	}
	store := session.NewMemoryStore()
	m, err := session.NewManager(store, []byte("webtest-secret-webtest-secret-00"), time.Hour)
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}

	e := echo.New()
	e.Renderer = r
	e.Use(session.Middleware(m, session.SkipStatic))
	register(e.Group(""))

	return &Browser{Echo: e, Store: store, Manager: m, cookies: map[string]*http.Cookie{}}
}

// Get requests target.
func (b *Browser) Get(target string) *httptest.ResponseRecorder {
	return b.Do(httptest.NewRequest(http.MethodGet, target, nil))
}

// Post submits form to target as application/x-www-form-urlencoded.
func (b *Browser) Post(target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return b.Do(req)
}

// Do sends req with the stored cookies and keeps the cookies of the
// response.
func (b *Browser) Do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	b.Echo.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		b.cookies[c.Name] = c
	}
	return rec
}

// Session returns the stored session of this browser, or nil before one was
// saved.
func (b *Browser) Session(t *testing.T) *session.Session {
	t.Helper()
	c, ok := b.cookies[session.DefaultCookieName]
	if !ok {
		return nil
	}
	claims, err := b.Manager.ParseToken(c.Value)
	if err != nil {
		t.Fatalf("session cookie: %v", err)
	}
	s, err := b.Store.Load(context.Background(), claims.SessionID)
	if err != nil {
		return nil
	}
	return s
}

// Alerts counts the inline alerts in a rendered page.
func Alerts(body string) int {
	return strings.Count(body, `role="alert"`)
}

// ExpectRedirect fails the test unless rec is a 303 to location.
func ExpectRedirect(t *testing.T, rec *httptest.ResponseRecorder, location string) {
	t.Helper()
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(echo.HeaderLocation); got != location {
		t.Errorf("expected redirect to %s, got %s", location, got)
	}
}
