package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/Cachi0001/Biz-sub011/pkg/enforce"
	"github.com/Cachi0001/Biz-sub011/pkg/fetch"
	"github.com/Cachi0001/Biz-sub011/pkg/logger"
	"github.com/Cachi0001/Biz-sub011/pkg/plans"
	"github.com/Cachi0001/Biz-sub011/pkg/remote"
	"github.com/Cachi0001/Biz-sub011/pkg/syncer"
	"github.com/Cachi0001/Biz-sub011/pkg/usage"
)

const (
	// OwnerHeader carries the account whose plan applies.
	OwnerHeader = "X-Owner-ID"
	// IdentityHeader carries the signed-in user acting on the account.
	IdentityHeader = "X-Identity-ID"

	maxBodySize = 4 * 1024
)

// Enforcer decides whether actions are allowed.
type Enforcer interface {
	Check(ctx context.Context, action enforce.Action, subject enforce.Subject) enforce.Decision
	CheckAll(ctx context.Context, subject enforce.Subject) []enforce.Decision
	Handles(action enforce.Action) bool
}

// UsageService reads and adjusts usage counters.
type UsageService interface {
	GetUsage(ctx context.Context, owner uuid.UUID) (usage.Snapshot, error)
	Increment(ctx context.Context, owner uuid.UUID, r plans.Resource, amount int64) (usage.Snapshot, error)
	Decrement(ctx context.Context, owner uuid.UUID, r plans.Resource, amount int64) (usage.Snapshot, error)
}

// Synchronizer pulls the authoritative subscription status.
type Synchronizer interface {
	Sync(ctx context.Context, owner uuid.UUID, force bool) (remote.Status, error)
}

// Sessions starts and ends background synchronization for a signed-in owner.
// SignOut must refuse an owner that does not hold the session.
type Sessions interface {
	SignIn(ctx context.Context, owner uuid.UUID) error
	SignOut(ctx context.Context, owner uuid.UUID) error
}

// Observer receives one event per served request.
type Observer interface {
	ObserveHTTP(method, route string, status int, elapsed time.Duration)
}

// Option configures the router.
type Option func(*api)

// WithLogger sets the logger used for request failures.
func WithLogger(l *slog.Logger) Option {
	return func(a *api) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithObserver records request metrics.
func WithObserver(o Observer) Option {
	return func(a *api) {
		if o != nil {
			a.observer = o
		}
	}
}

// WithSessions mounts POST and DELETE /session.
func WithSessions(s Sessions) Option {
	return func(a *api) {
		a.sessions = s
	}
}

// WithOwnerResolver maps an identity to its owner when the owner header is absent.
func WithOwnerResolver(r enforce.OwnerResolver) Option {
	return func(a *api) {
		a.owners = r
	}
}

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *api) {
		a.metrics = h
	}
}

type api struct {
	enforcer Enforcer
	usage    UsageService
	syncer   Synchronizer
	sessions Sessions
	owners   enforce.OwnerResolver
	observer Observer
	metrics  http.Handler
	logger   *slog.Logger
}

// NewRouter builds the HTTP API. Identity comes from headers set by an
// upstream auth layer; this router does not authenticate.
// Panics if any required dependency is nil.
func NewRouter(e Enforcer, u UsageService, s Synchronizer, opts ...Option) http.Handler {
	if e == nil || u == nil || s == nil {
		panic("httpapi: enforcer, usage service and synchronizer are required")
	}

	a := &api{
		enforcer: e,
		usage:    u,
		syncer:   s,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(logger.Component("httpapi"))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if a.observer != nil {
		r.Use(observe(a.observer))
	}
	r.Use(tagOwner)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, ErrNotFound, "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, ErrMethodNotAllowed, "")
	})

	r.Get("/usage", a.getUsage)
	r.Post("/usage/{resource}/increment", a.adjust(true))
	r.Post("/usage/{resource}/decrement", a.adjust(false))
	r.Get("/check", a.checkAll)
	r.Get("/check/{action}", a.check)
	r.Post("/sync", a.sync)
	if a.sessions != nil {
		r.Post("/session", a.signIn)
		r.Delete("/session", a.signOut)
	}
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics)
	}
	return r
}

// LoggerExtractor adds the chi request id to log records.
func LoggerExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id := middleware.GetReqID(ctx); id != "" {
			return slog.String("request_id", id), true
		}
		return slog.Attr{}, false
	}
}

func (a *api) getUsage(w http.ResponseWriter, r *http.Request) {
	owner, err := a.owner(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	snap, err := a.usage.GetUsage(r.Context(), owner)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, snap)
}

type adjustRequest struct {
	Amount *int64 `json:"amount"`
}

func (a *api) adjust(increment bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := plans.ParseResource(chi.URLParam(r, "resource"))
		if err != nil {
			a.fail(w, r, ErrUnknownResource)
			return
		}
		owner, err := a.owner(r)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		amount, err := readAmount(r)
		if err != nil {
			a.fail(w, r, err)
			return
		}

		var snap usage.Snapshot
		if increment {
			snap, err = a.usage.Increment(r.Context(), owner, res, amount)
		} else {
			snap, err = a.usage.Decrement(r.Context(), owner, res, amount)
		}
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeData(w, snap)
	}
}

func (a *api) check(w http.ResponseWriter, r *http.Request) {
	action := enforce.Action(chi.URLParam(r, "action"))
	if !a.enforcer.Handles(action) {
		a.fail(w, r, ErrUnknownAction)
		return
	}
	subject, err := subjectFrom(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, a.enforcer.Check(r.Context(), action, subject))
}

func (a *api) checkAll(w http.ResponseWriter, r *http.Request) {
	subject, err := subjectFrom(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, a.enforcer.CheckAll(r.Context(), subject))
}

func (a *api) sync(w http.ResponseWriter, r *http.Request) {
	owner, err := a.owner(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status, err := a.syncer.Sync(r.Context(), owner, true)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, status)
}

func (a *api) signIn(w http.ResponseWriter, r *http.Request) {
	owner, err := a.owner(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.sessions.SignIn(r.Context(), owner); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) signOut(w http.ResponseWriter, r *http.Request) {
	owner, err := a.owner(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.sessions.SignOut(r.Context(), owner); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// owner returns the account the request acts on.
func (a *api) owner(r *http.Request) (uuid.UUID, error) {
	subject, err := subjectFrom(r)
	if err != nil {
		return uuid.Nil, err
	}
	if subject.Owner != uuid.Nil {
		return subject.Owner, nil
	}
	if a.owners != nil {
		owner, err := a.owners(r.Context(), subject.Identity)
		if err != nil {
			return uuid.Nil, errors.Join(ErrMissingSubject, err)
		}
		if owner != uuid.Nil {
			return owner, nil
		}
	}
	return subject.Identity, nil
}

func subjectFrom(r *http.Request) (enforce.Subject, error) {
	var (
		subject enforce.Subject
		err     error
	)
	if subject.Owner, err = headerID(r, OwnerHeader); err != nil {
		return enforce.Subject{}, err
	}
	if subject.Identity, err = headerID(r, IdentityHeader); err != nil {
		return enforce.Subject{}, err
	}
	if subject.Identity == uuid.Nil {
		subject.Identity = subject.Owner
	}
	if subject.Identity == uuid.Nil {
		return enforce.Subject{}, ErrMissingSubject
	}
	return subject, nil
}

func headerID(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.Header.Get(name))
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.Join(ErrInvalidSubject, err)
	}
	return id, nil
}

// readAmount decodes an optional {"amount": n} body. An empty body means 1.
func readAmount(r *http.Request) (int64, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return 0, errors.Join(ErrInvalidBody, err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return 1, nil
	}

	var req adjustRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return 0, errors.Join(ErrInvalidBody, err)
	}
	if req.Amount == nil {
		return 1, nil
	}
	if *req.Amount < 1 {
		return 0, ErrInvalidAmount
	}
	return *req.Amount, nil
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	apiErr, message := classify(err)
	if apiErr.Status >= http.StatusInternalServerError {
		a.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			logger.Error(err),
		)
	}
	writeError(w, apiErr, message)
}

// classify maps domain errors to API errors.
func classify(err error) (Error, string) {
	var rejected *fetch.RejectedError
	switch {
	case errors.As(err, &rejected):
		return ErrUpstreamRejected, rejected.Message
	case errors.Is(err, fetch.ErrCancelled):
		return ErrCancelled, ""
	case errors.Is(err, fetch.ErrNetworkFailure), errors.Is(err, remote.ErrCircuitOpen):
		return ErrUpstreamDown, ""
	case errors.Is(err, usage.ErrNegativeAmount):
		return ErrInvalidAmount, ""
	case errors.Is(err, usage.ErrUnknownResource), errors.Is(err, plans.ErrUnknownResource):
		return ErrUnknownResource, ""
	case errors.Is(err, usage.ErrInvalidOwner):
		return ErrMissingSubject, ""
	case errors.Is(err, syncer.ErrNotActive):
		return ErrSessionMismatch, ""
	}
	return asError(err), ""
}
