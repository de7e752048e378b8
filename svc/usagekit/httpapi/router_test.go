package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cachi0001/Biz-sub011/pkg/enforce"
	"github.com/Cachi0001/Biz-sub011/pkg/fetch"
	"github.com/Cachi0001/Biz-sub011/pkg/logger"
	"github.com/Cachi0001/Biz-sub011/pkg/plans"
	"github.com/Cachi0001/Biz-sub011/pkg/remote"
	"github.com/Cachi0001/Biz-sub011/pkg/store"
	"github.com/Cachi0001/Biz-sub011/pkg/syncer"
	"github.com/Cachi0001/Biz-sub011/pkg/usage"
	"github.com/Cachi0001/Biz-sub011/svc/usagekit/httpapi"
)

type fakeSyncer struct {
	status remote.Status
	err    error
}

func (f *fakeSyncer) Sync(_ context.Context, _ uuid.UUID, force bool) (remote.Status, error) {
	if !force {
		return remote.Status{}, errors.New("expected forced sync")
	}
	return f.status, f.err
}

type fakeSessions struct {
	mu      sync.Mutex
	active  uuid.UUID
	signOut int
}

func (f *fakeSessions) SignIn(_ context.Context, owner uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = owner
	return nil
}

func (f *fakeSessions) SignOut(_ context.Context, owner uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active != uuid.Nil && f.active != owner {
		return syncer.ErrNotActive
	}
	f.active = uuid.Nil
	f.signOut++
	return nil
}

type observation struct {
	method, route string
	status        int
}

type fakeObserver struct {
	mu   sync.Mutex
	seen []observation
}

func (f *fakeObserver) ObserveHTTP(method, route string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, observation{method, route, status})
}

func (f *fakeObserver) Seen() []observation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]observation(nil), f.seen...)
}

type env struct {
	handler http.Handler
	tracker *usage.Tracker
	syncer  *fakeSyncer
}

func newEnv(t *testing.T, opts ...httpapi.Option) *env {
	t.Helper()
	tracker := usage.NewTracker(store.NewMemory(), usage.WithLogger(logger.Nop()))
	tiers := func(context.Context, uuid.UUID) (plans.Tier, error) { return plans.TierFree, nil }
	coordinator := enforce.NewCoordinator(plans.Default(), tracker, tiers, enforce.WithLogger(logger.Nop()))
	sy := &fakeSyncer{status: remote.Status{Tier: plans.TierWeekly}}

	opts = append([]httpapi.Option{httpapi.WithLogger(logger.Nop())}, opts...)
	return &env{
		handler: httpapi.NewRouter(coordinator, tracker, sy, opts...),
		tracker: tracker,
		syncer:  sy,
	}
}

func (e *env) do(t *testing.T, method, path string, owner uuid.UUID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if owner != uuid.Nil {
		req.Header.Set(httpapi.OwnerHeader, owner.String())
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var body struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Data
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body httpapi.Envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.NotNil(t, body.Error)
	return body.Error.Code
}

func TestUsageRoutes(t *testing.T) {
	t.Parallel()

	t.Run("get creates an empty snapshot", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		rec := e.do(t, http.MethodGet, "/usage", uuid.New(), "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

		snap := decode[usage.Snapshot](t, rec)
		assert.Zero(t, snap.Invoices)
		assert.False(t, snap.PeriodStart.IsZero())
	})

	t.Run("increment defaults to one", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		owner := uuid.New()
		rec := e.do(t, http.MethodPost, "/usage/invoices/increment", owner, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int64(1), decode[usage.Snapshot](t, rec).Invoices)
	})

	t.Run("increment and decrement by amount", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		owner := uuid.New()

		rec := e.do(t, http.MethodPost, "/usage/teamMembers/increment", owner, `{"amount": 3}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int64(3), decode[usage.Snapshot](t, rec).TeamMembers)

		rec = e.do(t, http.MethodPost, "/usage/team_members/decrement", owner, `{"amount": 5}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Zero(t, decode[usage.Snapshot](t, rec).TeamMembers)
	})

	t.Run("invalid requests", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		owner := uuid.New()

		tests := []struct {
			name   string
			path   string
			owner  uuid.UUID
			body   string
			status int
			code   string
		}{
			{"zero amount", "/usage/invoices/increment", owner, `{"amount": 0}`, http.StatusUnprocessableEntity, "invalid_amount"},
			{"malformed body", "/usage/invoices/increment", owner, `{`, http.StatusBadRequest, "invalid_body"},
			{"unknown resource", "/usage/widgets/increment", owner, "", http.StatusNotFound, "unknown_resource"},
			{"no identity", "/usage/invoices/increment", uuid.Nil, "", http.StatusUnauthorized, "missing_identity"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := e.do(t, http.MethodPost, tt.path, tt.owner, tt.body)
				assert.Equal(t, tt.status, rec.Code)
				assert.Equal(t, tt.code, errorCode(t, rec))
			})
		}

		n, err := e.tracker.Count(context.Background(), owner, plans.ResourceInvoices)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("malformed owner header", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		req := httptest.NewRequest(http.MethodGet, "/usage", nil)
		req.Header.Set(httpapi.OwnerHeader, "not-a-uuid")
		rec := httptest.NewRecorder()
		e.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_identity", errorCode(t, rec))
	})

	t.Run("owner resolved from identity", func(t *testing.T) {
		t.Parallel()
		owner, member := uuid.New(), uuid.New()
		e := newEnv(t, httpapi.WithOwnerResolver(func(_ context.Context, id uuid.UUID) (uuid.UUID, error) {
			if id == member {
				return owner, nil
			}
			return uuid.Nil, nil
		}))
		_, err := e.tracker.Increment(context.Background(), owner, plans.ResourceProducts, 2)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/usage", nil)
		req.Header.Set(httpapi.IdentityHeader, member.String())
		rec := httptest.NewRecorder()
		e.handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int64(2), decode[usage.Snapshot](t, rec).Products)
	})

	t.Run("wrong method", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		rec := e.do(t, http.MethodDelete, "/usage", uuid.New(), "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.Equal(t, "method_not_allowed", errorCode(t, rec))
	})
}

func TestCheckRoutes(t *testing.T) {
	t.Parallel()

	t.Run("approaching then reached", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		owner := uuid.New()
		_, err := e.tracker.Increment(context.Background(), owner, plans.ResourceInvoices, 4)
		require.NoError(t, err)

		rec := e.do(t, http.MethodGet, "/check/create_invoice", owner, "")
		require.Equal(t, http.StatusOK, rec.Code)
		d := decode[enforce.Decision](t, rec)
		assert.True(t, d.Allowed)
		assert.Equal(t, enforce.ReasonApproachingLimit, d.Reason)
		assert.InDelta(t, 80.0, d.PercentUsed, 0.001)

		e.do(t, http.MethodPost, "/usage/invoices/increment", owner, "")

		rec = e.do(t, http.MethodGet, "/check/create_invoice", owner, "")
		require.Equal(t, http.StatusOK, rec.Code)
		d = decode[enforce.Decision](t, rec)
		assert.False(t, d.Allowed)
		assert.Equal(t, enforce.ReasonLimitReached, d.Reason)
		require.NotNil(t, d.Remediation)
		assert.NotEmpty(t, d.Remediation.Message)
	})

	t.Run("feature gate", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		rec := e.do(t, http.MethodGet, "/check/access_reports", uuid.New(), "")
		require.Equal(t, http.StatusOK, rec.Code)
		d := decode[enforce.Decision](t, rec)
		assert.False(t, d.Allowed)
		assert.Equal(t, enforce.ReasonFeatureNotInPlan, d.Reason)
	})

	t.Run("unknown action", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		rec := e.do(t, http.MethodGet, "/check/launch_rocket", uuid.New(), "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "unknown_action", errorCode(t, rec))
	})

	t.Run("all actions", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		rec := e.do(t, http.MethodGet, "/check", uuid.New(), "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[[]enforce.Decision](t, rec), len(enforce.DefaultRules()))
	})
}

func TestSyncRoute(t *testing.T) {
	t.Parallel()

	t.Run("returns status", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		rec := e.do(t, http.MethodPost, "/sync", uuid.New(), "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, plans.TierWeekly, decode[remote.Status](t, rec).Tier)
	})

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"rejected", &fetch.RejectedError{StatusCode: 403, Message: "subscription suspended"}, http.StatusBadGateway, "upstream_rejected"},
		{"network", fmt.Errorf("%w: dial tcp", fetch.ErrNetworkFailure), http.StatusServiceUnavailable, "upstream_unavailable"},
		{"exhausted", errors.Join(fetch.ErrRetriesExhausted, fetch.ErrNetworkFailure), http.StatusServiceUnavailable, "upstream_unavailable"},
		{"cancelled", errors.Join(fetch.ErrCancelled, context.Canceled), http.StatusRequestTimeout, "request_cancelled"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := newEnv(t)
			e.syncer.err = tt.err
			rec := e.do(t, http.MethodPost, "/sync", uuid.New(), "")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}

	t.Run("rejection message is forwarded", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		e.syncer.err = &fetch.RejectedError{StatusCode: 403, Message: "subscription suspended"}
		rec := e.do(t, http.MethodPost, "/sync", uuid.New(), "")

		var body httpapi.Envelope
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.NotNil(t, body.Error)
		assert.Equal(t, "subscription suspended", body.Error.Message)
	})
}

func TestSessionRoutes(t *testing.T) {
	t.Parallel()

	t.Run("not mounted without sessions", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		rec := e.do(t, http.MethodPost, "/session", uuid.New(), "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("sign in and out", func(t *testing.T) {
		t.Parallel()
		sessions := &fakeSessions{}
		e := newEnv(t, httpapi.WithSessions(sessions))
		owner := uuid.New()

		rec := e.do(t, http.MethodPost, "/session", owner, "")
		require.Equal(t, http.StatusNoContent, rec.Code)
		sessions.mu.Lock()
		assert.Equal(t, owner, sessions.active)
		sessions.mu.Unlock()

		rec = e.do(t, http.MethodDelete, "/session", owner, "")
		require.Equal(t, http.StatusNoContent, rec.Code)
		sessions.mu.Lock()
		assert.Equal(t, uuid.Nil, sessions.active)
		assert.Equal(t, 1, sessions.signOut)
		sessions.mu.Unlock()
	})

	t.Run("sign out requires the session owner", func(t *testing.T) {
		t.Parallel()
		sessions := &fakeSessions{}
		e := newEnv(t, httpapi.WithSessions(sessions))
		owner := uuid.New()

		rec := e.do(t, http.MethodPost, "/session", owner, "")
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = e.do(t, http.MethodDelete, "/session", uuid.Nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "missing_identity", errorCode(t, rec))

		rec = e.do(t, http.MethodDelete, "/session", uuid.New(), "")
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "session_mismatch", errorCode(t, rec))

		sessions.mu.Lock()
		assert.Equal(t, owner, sessions.active)
		assert.Zero(t, sessions.signOut)
		sessions.mu.Unlock()
	})
}

func TestRequestLogsCarryOwner(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	e := newEnv(t, httpapi.WithLogger(logger.New(logger.WithOutput(buf))))
	e.syncer.err = errors.New("boom")
	owner := uuid.New()

	rec := e.do(t, http.MethodPost, "/sync", owner, "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "request failed", entry["msg"])
	assert.Equal(t, owner.String(), entry["owner_id"])
}

func TestObserver(t *testing.T) {
	t.Parallel()

	obs := &fakeObserver{}
	e := newEnv(t, httpapi.WithObserver(obs))
	owner := uuid.New()

	e.do(t, http.MethodPost, "/usage/invoices/increment", owner, "")
	e.do(t, http.MethodPost, "/usage/expenses/increment", owner, "")
	e.do(t, http.MethodGet, "/check/create_invoice", uuid.Nil, "")

	seen := obs.Seen()
	require.Len(t, seen, 3)
	assert.Equal(t, observation{http.MethodPost, "/usage/{resource}/increment", http.StatusOK}, seen[0])
	assert.Equal(t, seen[0], seen[1])
	assert.Equal(t, observation{http.MethodGet, "/check/{action}", http.StatusUnauthorized}, seen[2])
}

func TestMetricsHandler(t *testing.T) {
	t.Parallel()

	e := newEnv(t, httpapi.WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("metrics"))
	})))
	rec := e.do(t, http.MethodGet, "/metrics", uuid.Nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "metrics", rec.Body.String())
}

func TestNewRouter_PanicsWithoutDependencies(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { httpapi.NewRouter(nil, nil, nil) })
}
