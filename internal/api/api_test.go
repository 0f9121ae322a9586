package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/golang-jwt/jwt/v4"
	log "github.com/sirupsen/logrus"

	"github.com/shadowsight/shadowsight/internal/auth"
	"github.com/shadowsight/shadowsight/internal/localstore"
	"github.com/shadowsight/shadowsight/internal/session"
)

const testSecret = "api-test-secret"

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Meta  *Meta           `json:"meta"`
	Error *ErrorMsg       `json:"error"`
}

type testServer struct {
	t       *testing.T
	handler http.Handler
	healthy error
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st, err := localstore.New(filepath.Join(t.TempDir(), "api.db"))
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

	ts := &testServer{t: t}
	a := New(svc, auth.NewHS256([]byte(testSecret), "", ""), func(context.Context) error { return ts.healthy })
	ts.handler = a.Router()
	return ts
}

func token(t *testing.T, sub string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"email": sub + "@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func (ts *testServer) do(method, path, user string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	ts.t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := sonic.Marshal(body)
		if err != nil {
			ts.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+token(ts.t, user))
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := sonic.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			ts.t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, env
}

func decodeData(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	if err := sonic.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
}

type sessionBody struct {
	ID         string `json:"id"`
	Candidate  string `json:"candidateName"`
	Status     string `json:"status"`
	TrustScore int    `json:"trustScore"`
	Flags      int    `json:"flags"`
	Severity   string `json:"severity"`
}

func (ts *testServer) createSession(user, candidate string) sessionBody {
	ts.t.Helper()
	rec, env := ts.do(http.MethodPost, "/sessions", user, map[string]string{
		"candidateName": candidate,
		"position":      "Backend Engineer",
		"platform":      "CoderPad",
	})
	if rec.Code != http.StatusCreated {
		ts.t.Fatalf("create session: status %d body %s", rec.Code, rec.Body.String())
	}
	var s sessionBody
	decodeData(ts.t, env, &s)
	return s
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.do(http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}

	ts.healthy = errors.New("db down")
	rec, env := ts.do(http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusServiceUnavailable || env.Error == nil || env.Error.Code != "unavailable" {
		t.Fatalf("unexpected unhealthy response: %d %+v", rec.Code, env.Error)
	}
}

func TestRequiresToken(t *testing.T) {
	ts := newTestServer(t)
	rec, env := ts.do(http.MethodGet, "/sessions", "", nil)
	if rec.Code != http.StatusUnauthorized || env.Error == nil || env.Error.Code != "unauthorized" {
		t.Fatalf("expected 401 unauthorized, got %d %+v", rec.Code, env.Error)
	}
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	s := ts.createSession("alice", "Anonymous Candidate #1")
	if s.Status != "active" || s.TrustScore != 100 || s.Severity != "low" {
		t.Fatalf("unexpected session: %+v", s)
	}

	for _, typ := range []string{"tab_switch", "paste", "paste"} {
		rec, _ := ts.do(http.MethodPost, "/sessions/"+s.ID+"/events", "alice", map[string]string{"type": typ, "details": "flagged " + typ, "severity": "medium"})
		if rec.Code != http.StatusCreated {
			t.Fatalf("add event: status %d body %s", rec.Code, rec.Body.String())
		}
	}

	rec, env := ts.do(http.MethodGet, "/sessions/"+s.ID, "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get session: %d", rec.Code)
	}
	var got sessionBody
	decodeData(t, env, &got)
	if got.TrustScore != 82 || got.Flags != 3 || got.Severity != "medium" {
		t.Fatalf("session not rescored: %+v", got)
	}

	rec, env = ts.do(http.MethodGet, "/sessions/"+s.ID+"/events", "alice", nil)
	if rec.Code != http.StatusOK || env.Meta == nil || env.Meta.Total != 3 {
		t.Fatalf("list events: %d %+v", rec.Code, env.Meta)
	}

	rec, env = ts.do(http.MethodGet, "/sessions/"+s.ID+"/analysis", "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("analysis: %d", rec.Code)
	}
	var analysis struct {
		Breakdown struct {
			Score int    `json:"score"`
			Band  string `json:"band"`
		} `json:"breakdown"`
	}
	decodeData(t, env, &analysis)
	if analysis.Breakdown.Score != 82 || analysis.Breakdown.Band != "Mostly Trustworthy" {
		t.Fatalf("unexpected breakdown: %+v", analysis.Breakdown)
	}

	rec, env = ts.do(http.MethodPatch, "/sessions/"+s.ID, "alice", map[string]string{"status": "completed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", rec.Code, rec.Body.String())
	}
	decodeData(t, env, &got)
	if got.Status != "completed" {
		t.Fatalf("status not updated: %+v", got)
	}

	rec, _ = ts.do(http.MethodDelete, "/sessions/"+s.ID, "alice", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	rec, env = ts.do(http.MethodGet, "/sessions/"+s.ID, "alice", nil)
	if rec.Code != http.StatusNotFound || env.Error.Code != "not_found" {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestOtherRecruiterGetsNotFound(t *testing.T) {
	ts := newTestServer(t)
	s := ts.createSession("alice", "Candidate")

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/sessions/" + s.ID},
		{http.MethodGet, "/sessions/" + s.ID + "/events"},
		{http.MethodGet, "/sessions/" + s.ID + "/analysis"},
		{http.MethodDelete, "/sessions/" + s.ID},
	} {
		rec, _ := ts.do(tc.method, tc.path, "mallory", nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s %s as other recruiter: status %d, want 404", tc.method, tc.path, rec.Code)
		}
	}

	rec, env := ts.do(http.MethodPost, "/sessions/"+s.ID+"/events", "mallory", map[string]string{"type": "copy", "details": "x"})
	if rec.Code != http.StatusNotFound || env.Error == nil || env.Error.Code != "not_found" || len(env.Error.Fields) != 0 {
		t.Fatalf("invalid event as other recruiter: status %d %+v, want 404", rec.Code, env.Error)
	}
}

func TestValidationErrors(t *testing.T) {
	ts := newTestServer(t)
	rec, env := ts.do(http.MethodPost, "/sessions", "alice", map[string]string{"candidateName": "A"})
	if rec.Code != http.StatusBadRequest || env.Error.Code != "invalid_input" || len(env.Error.Fields) != 3 {
		t.Fatalf("unexpected response: %d %+v", rec.Code, env.Error)
	}

	s := ts.createSession("alice", "Candidate")
	rec, env = ts.do(http.MethodPost, "/sessions/"+s.ID+"/events", "alice", map[string]string{"type": "copy", "details": "x"})
	if rec.Code != http.StatusBadRequest || env.Error.Code != "invalid_input" {
		t.Fatalf("unexpected response: %d %+v", rec.Code, env.Error)
	}

	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+token(t, "alice"))
	raw := httptest.NewRecorder()
	ts.handler.ServeHTTP(raw, req)
	if raw.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: status %d", raw.Code)
	}
}

func TestListSessionsSearchAndPagination(t *testing.T) {
	ts := newTestServer(t)
	ts.createSession("alice", "Jane Doe")
	ts.createSession("alice", "John Smith")
	ts.createSession("alice", "Janet Jackson")

	rec, env := ts.do(http.MethodGet, "/sessions?q=JAN&per_page=1&page=2", "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	if env.Meta == nil || env.Meta.Total != 2 || env.Meta.Page != 2 || env.Meta.PerPage != 1 {
		t.Fatalf("unexpected meta: %+v", env.Meta)
	}
	var page []sessionBody
	decodeData(t, env, &page)
	if len(page) != 1 || page[0].Candidate != "Jane Doe" {
		t.Fatalf("unexpected page: %+v", page)
	}

	_, env = ts.do(http.MethodGet, "/sessions?page=9", "alice", nil)
	decodeData(t, env, &page)
	if len(page) != 0 {
		t.Fatalf("expected empty page, got %d", len(page))
	}
}

func TestStats(t *testing.T) {
	ts := newTestServer(t)
	s := ts.createSession("alice", "Jane")
	ts.createSession("alice", "John")
	ts.do(http.MethodPost, "/sessions/"+s.ID+"/events", "alice", map[string]string{"type": "overlay", "details": "overlay seen"})

	rec, env := ts.do(http.MethodGet, "/stats", "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: %d", rec.Code)
	}
	var st session.Stats
	decodeData(t, env, &st)
	if st.TotalSessions != 2 || st.FlaggedSessions != 1 || st.FlaggedPercent != 50 || st.UniqueCandidates != 2 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestScoreEndpoint(t *testing.T) {
	ts := newTestServer(t)
	body := []map[string]string{{"type": "Overlay"}, {"type": "overlay"}, {"type": "screen_share"}}
	rec, env := ts.do(http.MethodPost, "/score", "alice", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("score: %d %s", rec.Code, rec.Body.String())
	}
	var b struct {
		Score    int `json:"score"`
		Unscored int `json:"unscored"`
	}
	decodeData(t, env, &b)
	if b.Score != 70 || b.Unscored != 1 {
		t.Fatalf("unexpected breakdown: %+v", b)
	}
}

func TestProfile(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.do(http.MethodGet, "/me", "alice", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before signup, got %d", rec.Code)
	}

	rec, env := ts.do(http.MethodPut, "/me", "alice", map[string]string{"orgName": "Acme Hiring"})
	if rec.Code != http.StatusOK {
		t.Fatalf("put me: %d %s", rec.Code, rec.Body.String())
	}
	var r struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	decodeData(t, env, &r)
	if r.ID != "alice" || r.Email != "alice@example.com" {
		t.Fatalf("unexpected profile: %+v", r)
	}
}

func TestPreflight(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/sessions", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("unexpected preflight: %d %v", rec.Code, rec.Header())
	}
}
