package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/autevo/filmtechos-backend/pkg/types"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key], _ = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
		delete(m.ttls, k)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "test:idem:" + scope + ":" + id
}

func postJSON(path, body, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env types.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, rec.Body.String())
	}
	return env.Error.Code
}

func TestPolicyLookup(t *testing.T) {
	cases := []struct {
		method   string
		path     string
		ok       bool
		required bool
		window   time.Duration
	}{
		{http.MethodPost, "/api/v1/team/invites", true, true, standardReplayWindow},
		{http.MethodPost, "/api/v1/team/invites/", true, true, standardReplayWindow},
		{http.MethodPost, "/api/admin/v1/promo-codes", true, true, standardReplayWindow},
		{http.MethodPost, "/api/v1/billing/checkout", true, false, billingReplayWindow},
		{http.MethodPost, "/api/v1/billing/founder/upgrade", true, false, billingReplayWindow},
		{http.MethodPost, "/api/v1/billing/sync", false, false, 0},
		{http.MethodGet, "/api/v1/team", false, false, 0},
	}
	for _, tc := range cases {
		policy, ok := policyFor(httptest.NewRequest(tc.method, tc.path, nil))
		if ok != tc.ok {
			t.Fatalf("%s %s: expected ok=%v", tc.method, tc.path, tc.ok)
		}
		if policy.required != tc.required || policy.window != tc.window {
			t.Fatalf("%s %s: unexpected policy %+v", tc.method, tc.path, policy)
		}
	}
}

func TestIdempotencyRequiresKeyOnMandatoryRoutes(t *testing.T) {
	called := false
	h := Idempotency(newMemoryStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postJSON("/api/v1/team/invites", `{"email":"a@b.test"}`, ""))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if called {
		t.Fatal("handler ran without an idempotency key")
	}
}

func TestIdempotencyReplaysCompletedResponse(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"u1"}}`))
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, postJSON("/api/v1/team/invites", `{"email":"a@b.test"}`, "invite-1"))
	if first.Code != http.StatusCreated || first.Header().Get(ReplayedHeader) != "" {
		t.Fatalf("unexpected first response %d %v", first.Code, first.Header())
	}

	second := httptest.NewRecorder()
	h.ServeHTTP(second, postJSON("/api/v1/team/invites", `{"email":"a@b.test"}`, "invite-1"))
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d", second.Code)
	}
	if second.Header().Get(ReplayedHeader) != "true" {
		t.Fatal("expected replay header")
	}
	if second.Header().Get("Content-Type") != "application/json" {
		t.Fatal("expected content type to be replayed")
	}
	if second.Body.String() != `{"data":{"id":"u1"}}` {
		t.Fatalf("unexpected replay body %s", second.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times", calls)
	}
	for _, ttl := range store.ttls {
		if ttl != standardReplayWindow {
			t.Fatalf("expected record kept for %v, got %v", standardReplayWindow, ttl)
		}
	}
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	h := Idempotency(newMemoryStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	h.ServeHTTP(httptest.NewRecorder(), postJSON("/api/admin/v1/tenants", `{"name":"A"}`, "k1"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postJSON("/api/admin/v1/tenants", `{"name":"B"}`, "k1"))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != string(pkgerrors.CodeConflict) {
		t.Fatalf("expected %s, got %s", pkgerrors.CodeConflict, code)
	}
}

func TestIdempotencyRefusesConcurrentDuplicate(t *testing.T) {
	store := newMemoryStore()
	var inner *httptest.ResponseRecorder
	var h http.Handler
	h = Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inner == nil {
			inner = httptest.NewRecorder()
			h.ServeHTTP(inner, postJSON("/api/v1/billing/checkout", `{"interval":"monthly"}`, "co-1"))
		}
		w.WriteHeader(http.StatusOK)
	}))

	outer := httptest.NewRecorder()
	h.ServeHTTP(outer, postJSON("/api/v1/billing/checkout", `{"interval":"monthly"}`, "co-1"))

	if outer.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", outer.Code)
	}
	if inner.Code != http.StatusConflict {
		t.Fatalf("expected in-flight duplicate to get 409, got %d", inner.Code)
	}
}

func TestIdempotencyForgetsServerErrors(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, postJSON("/api/admin/v1/promo-codes", `{"code":"X"}`, "p1"))
	if first.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", first.Code)
	}
	if len(store.data) != 0 {
		t.Fatal("expected claim to be released after a server error")
	}

	retry := httptest.NewRecorder()
	h.ServeHTTP(retry, postJSON("/api/admin/v1/promo-codes", `{"code":"X"}`, "p1"))
	if retry.Code != http.StatusCreated || calls != 2 {
		t.Fatalf("expected retry to run the handler, got %d after %d calls", retry.Code, calls)
	}
}

func TestIdempotencyPassesOptionalRoutesWithoutKey(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	for i := 0; i < 2; i++ {
		h.ServeHTTP(httptest.NewRecorder(), postJSON("/api/v1/billing/founder/upgrade", `{}`, ""))
	}
	if calls != 2 || len(store.data) != 0 {
		t.Fatalf("expected pass-through, calls=%d stored=%d", calls, len(store.data))
	}
}
