// Package usagekit assembles the usage tracker, plan policy, enforcement
// coordinator and subscription synchronizer from one Config.
package usagekit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Cachi0001/Biz-sub011/pkg/enforce"
	"github.com/Cachi0001/Biz-sub011/pkg/fetch"
	"github.com/Cachi0001/Biz-sub011/pkg/logger"
	"github.com/Cachi0001/Biz-sub011/pkg/metrics"
	"github.com/Cachi0001/Biz-sub011/pkg/plans"
	"github.com/Cachi0001/Biz-sub011/pkg/redis"
	"github.com/Cachi0001/Biz-sub011/pkg/remote"
	"github.com/Cachi0001/Biz-sub011/pkg/store"
	"github.com/Cachi0001/Biz-sub011/pkg/syncer"
	"github.com/Cachi0001/Biz-sub011/pkg/usage"
	"github.com/Cachi0001/Biz-sub011/svc/usagekit/httpapi"
)

var (
	ErrUnknownStore = errors.New("usagekit: unknown store backend")
	ErrClosed       = errors.New("usagekit: kit is closed")
)

var (
	_ usage.Notifier      = (*remote.Client)(nil)
	_ syncer.StatusSource = (*remote.Client)(nil)
	_ syncer.UsageStore   = (*usage.Tracker)(nil)
	_ enforce.UsageReader = (*usage.Tracker)(nil)
	_ httpapi.Sessions    = (*Kit)(nil)
)

// Option customizes New.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	registry   *prometheus.Registry
	redis      goredis.UniversalClient
	httpClient *http.Client
	policy     *plans.Policy
	owners     enforce.OwnerResolver
}

// WithLogger replaces the logger built from Config.AppEnv.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegistry registers metrics on reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithRedisClient uses an existing Redis client. The kit does not close it.
func WithRedisClient(c goredis.UniversalClient) Option {
	return func(o *options) { o.redis = c }
}

// WithHTTPClient sets the client used for the subscription service.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithPolicy overrides the plan table from Config.PlansFile.
func WithPolicy(p *plans.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithOwnerResolver maps team members to the account whose plan applies.
func WithOwnerResolver(r enforce.OwnerResolver) Option {
	return func(o *options) { o.owners = r }
}

// Kit holds the wired components. Fields are safe for concurrent use.
type Kit struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	Plans    *plans.Policy
	Store    store.Store
	Fetch    *fetch.Client
	Remote   *remote.Client
	Usage    *usage.Tracker
	Syncer   *syncer.Syncer
	Enforcer *enforce.Coordinator

	redis     goredis.UniversalClient
	ownsRedis bool
	owners    enforce.OwnerResolver

	// root outlives requests; sync loops started by SignIn run under it.
	root   context.Context
	cancel context.CancelFunc
}

// New builds a Kit. When Redis is configured but unreachable the kit starts
// on the in-memory store and logs a warning.
func New(ctx context.Context, cfg Config, opts ...Option) (*Kit, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	log := o.logger
	if log == nil {
		log = logger.New(
			logger.WithEnvironment(cfg.AppEnv, cfg.ServiceName),
			logger.WithContextExtractors(httpapi.LoggerExtractor()),
		)
	}

	policy, err := loadPolicy(cfg, o)
	if err != nil {
		return nil, err
	}

	reg := o.registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := metrics.New(reg, cfg.MetricsNamespace)

	st, rdb, owned, err := openStore(ctx, cfg, o, log)
	if err != nil {
		return nil, err
	}
	closeOnErr := func() {
		if owned {
			_ = rdb.Close()
		}
	}

	fc, err := fetch.New(
		fetch.WithCapacity(cfg.FetchCacheSize),
		fetch.WithLogger(log),
		fetch.WithRecorder(m),
		fetch.WithDefaults(
			fetch.WithMaxRetries(cfg.MaxRetries),
			fetch.WithBaseDelay(cfg.BaseDelay),
		),
	)
	if err != nil {
		closeOnErr()
		return nil, fmt.Errorf("usagekit: fetch client: %w", err)
	}

	rc, err := remote.NewFromConfig(cfg.Remote,
		remote.WithLogger(log),
		remote.WithHTTPClient(o.httpClient),
	)
	if err != nil {
		closeOnErr()
		return nil, err
	}

	tracker := usage.NewTracker(st,
		usage.WithNotifier(rc),
		usage.WithLogger(log),
		usage.WithNotifyTimeout(cfg.NotifyTimeout),
	)

	sy := syncer.New(rc, tracker, fc,
		syncer.WithInterval(cfg.SyncInterval),
		syncer.WithStatusTTL(cfg.StatusTTL),
		syncer.WithLogger(log),
		syncer.WithRecorder(m),
	)

	coordOpts := []enforce.Option{
		enforce.WithWarningPercent(cfg.WarningPercent),
		enforce.WithLogger(log),
		enforce.WithRecorder(m),
	}
	if o.owners != nil {
		coordOpts = append(coordOpts, enforce.WithOwnerResolver(o.owners))
	}
	coordinator := enforce.NewCoordinator(policy, tracker, sy.Tier, coordOpts...)

	root, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &Kit{
		Logger:    log,
		Metrics:   m,
		Registry:  reg,
		Plans:     policy,
		Store:     st,
		Fetch:     fc,
		Remote:    rc,
		Usage:     tracker,
		Syncer:    sy,
		Enforcer:  coordinator,
		redis:     rdb,
		ownsRedis: owned,
		owners:    o.owners,
		root:      root,
		cancel:    cancel,
	}, nil
}

// Handler returns the HTTP API with /metrics mounted.
func (k *Kit) Handler() http.Handler {
	return httpapi.NewRouter(k.Enforcer, k.Usage, k.Syncer,
		httpapi.WithLogger(k.Logger),
		httpapi.WithObserver(k.Metrics),
		httpapi.WithSessions(k),
		httpapi.WithOwnerResolver(k.owners),
		httpapi.WithMetricsHandler(promhttp.HandlerFor(k.Registry, promhttp.HandlerOpts{})),
	)
}

// SignIn makes owner the active account and starts its background sync.
// The loop is bound to the kit, not to ctx.
func (k *Kit) SignIn(ctx context.Context, owner uuid.UUID) error {
	if k.root.Err() != nil {
		return ErrClosed
	}
	if err := k.Syncer.Start(k.root, owner); err != nil {
		return err
	}
	k.Logger.InfoContext(ctx, "signed in", logger.OwnerID(owner))
	return nil
}

// SignOut ends owner's session: it stops the sync loop and drops the cached
// state. It fails with syncer.ErrNotActive if another owner is signed in.
func (k *Kit) SignOut(ctx context.Context, owner uuid.UUID) error {
	return k.Syncer.SignOut(ctx, owner)
}

// Check is a shortcut for Enforcer.Check.
func (k *Kit) Check(ctx context.Context, action enforce.Action, subject enforce.Subject) enforce.Decision {
	return k.Enforcer.Check(ctx, action, subject)
}

// Healthcheck pings Redis when the kit uses it.
func (k *Kit) Healthcheck(ctx context.Context) error {
	if k.redis == nil {
		return nil
	}
	return redis.Healthcheck(k.redis)(ctx)
}

// Close stops background work, waits for pending usage notifications and
// closes the Redis connection the kit opened.
func (k *Kit) Close() error {
	k.cancel()
	k.Syncer.Stop()
	k.Usage.Wait()
	if k.ownsRedis && k.redis != nil {
		return k.redis.Close()
	}
	return nil
}

func loadPolicy(cfg Config, o *options) (*plans.Policy, error) {
	switch {
	case o.policy != nil:
		return o.policy, nil
	case cfg.PlansFile != "":
		return plans.LoadFile(cfg.PlansFile)
	default:
		return plans.Default(), nil
	}
}

// openStore returns the snapshot store and the Redis client behind it, if any.
func openStore(ctx context.Context, cfg Config, o *options, log *slog.Logger) (store.Store, goredis.UniversalClient, bool, error) {
	switch cfg.Store {
	case StoreMemory:
		return store.NewMemory(), nil, false, nil
	case StoreRedis, "":
	default:
		return nil, nil, false, fmt.Errorf("%w: %q", ErrUnknownStore, cfg.Store)
	}

	client, owned := o.redis, false
	if client == nil {
		c, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			log.WarnContext(ctx, "redis unavailable, using in-memory usage store",
				logger.Error(errors.Join(store.ErrStorageUnavailable, err)),
			)
			return store.NewMemory(), nil, false, nil
		}
		client, owned = c, true
	}

	primary := redis.NewStoreFromConfig(client, cfg.Redis)
	return store.NewFailover(primary, store.WithLogger(log)), client, owned, nil
}
