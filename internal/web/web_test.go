package web

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	log "github.com/sirupsen/logrus"

	"github.com/shadowsight/shadowsight/internal/auth"
	"github.com/shadowsight/shadowsight/internal/integrity"
	"github.com/shadowsight/shadowsight/internal/localstore"
	"github.com/shadowsight/shadowsight/internal/session"
)

const testSecret = "web-test-secret"

func setup(t *testing.T) (http.Handler, *session.Service) {
	t.Helper()
	st, err := localstore.New(filepath.Join(t.TempDir(), "web.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	quiet := log.New()
	quiet.SetOutput(io.Discard)
	svc, err := session.NewService(st, nil, session.WithLogger(quiet))
	if err != nil {
		t.Fatalf("create service: %v", err)
	}

	w, err := New(svc, auth.NewHS256([]byte(testSecret), "", ""))
	if err != nil {
		t.Fatalf("create web: %v", err)
	}
	return w.Router(), svc
}

func cookieFor(t *testing.T, sub string) *http.Cookie {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return &http.Cookie{Name: auth.SessionCookie, Value: tok}
}

func get(h http.Handler, path string, c *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if c != nil {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSignInRequired(t *testing.T) {
	h, _ := setup(t)
	rec := get(h, "/", nil)
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), "Sign in required") {
		t.Fatalf("unexpected response: %d %s", rec.Code, rec.Body.String())
	}
}

func TestHomeListsSessions(t *testing.T) {
	h, svc := setup(t)
	ctx := context.Background()
	for _, name := range []string{"Jane Doe", "John Smith"} {
		if _, err := svc.CreateSession(ctx, "alice", integrity.SessionInput{CandidateName: name, Position: "SRE", Platform: "Zoom"}); err != nil {
			t.Fatalf("create session: %v", err)
		}
	}

	rec := get(h, "/", cookieFor(t, "alice"))
	if rec.Code != http.StatusOK {
		t.Fatalf("home status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Jane Doe") || !strings.Contains(body, "John Smith") {
		t.Fatalf("sessions missing from page: %s", body)
	}

	rec = get(h, "/?q=jane", cookieFor(t, "alice"))
	if body := rec.Body.String(); !strings.Contains(body, "Jane Doe") || strings.Contains(body, "John Smith") {
		t.Fatalf("search not applied: %s", body)
	}

	rec = get(h, "/", cookieFor(t, "bob"))
	if strings.Contains(rec.Body.String(), "Jane Doe") {
		t.Fatal("other recruiter can see sessions")
	}
}

func TestSessionDetail(t *testing.T) {
	h, svc := setup(t)
	ctx := context.Background()
	s, err := svc.CreateSession(ctx, "alice", integrity.SessionInput{CandidateName: "Jane Doe", Position: "SRE", Platform: "Zoom"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	for _, typ := range []string{"overlay", "overlay", "tab_switch"} {
		if _, err := svc.AddEvent(ctx, "alice", s.ID, integrity.EventInput{Type: typ, Details: "flagged " + typ}); err != nil {
			t.Fatalf("add event: %v", err)
		}
	}

	rec := get(h, "/sessions/"+s.ID, cookieFor(t, "alice"))
	if rec.Code != http.StatusOK {
		t.Fatalf("detail status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Jane Doe", "62", integrity.BandQuestionable, "flagged tab_switch", "tab switch"} {
		if !strings.Contains(body, want) {
			t.Fatalf("detail page missing %q", want)
		}
	}

	if rec := get(h, "/sessions/"+s.ID, cookieFor(t, "bob")); rec.Code != http.StatusNotFound {
		t.Fatalf("other recruiter status = %d, want 404", rec.Code)
	}
}
