package usage_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cachi0001/Biz-sub011/pkg/logger"
	"github.com/Cachi0001/Biz-sub011/pkg/plans"
	"github.com/Cachi0001/Biz-sub011/pkg/store"
	"github.com/Cachi0001/Biz-sub011/pkg/usage"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type notification struct {
	owner    uuid.UUID
	resource plans.Resource
	amount   int64
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notification
	err   error
}

func (n *recordingNotifier) RecordUsage(_ context.Context, owner uuid.UUID, r plans.Resource, amount int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notification{owner, r, amount})
	return n.err
}

func (n *recordingNotifier) Calls() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.calls...)
}

func newTracker(t *testing.T, opts ...usage.Option) (*usage.Tracker, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	opts = append([]usage.Option{usage.WithLogger(logger.Nop())}, opts...)
	return usage.NewTracker(mem, opts...), mem
}

func TestTracker_GetUsage(t *testing.T) {
	t.Parallel()

	t.Run("lazily creates an empty snapshot", func(t *testing.T) {
		t.Parallel()

		clk := &clock{now: time.Date(2025, 5, 17, 10, 0, 0, 0, time.UTC)}
		tracker, mem := newTracker(t, usage.WithClock(clk.Now))
		owner := uuid.New()

		snap, err := tracker.GetUsage(context.Background(), owner)
		require.NoError(t, err)
		assert.Zero(t, snap.Invoices)
		assert.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), snap.PeriodStart)

		_, err = mem.Get(context.Background(), usage.Key(owner))
		assert.NoError(t, err)
	})

	t.Run("rolls over on first read in a new month", func(t *testing.T) {
		t.Parallel()

		clk := &clock{now: time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC)}
		tracker, _ := newTracker(t, usage.WithClock(clk.Now))
		ctx := context.Background()
		owner := uuid.New()

		_, err := tracker.Increment(ctx, owner, plans.ResourceInvoices, 4)
		require.NoError(t, err)
		_, err = tracker.Increment(ctx, owner, plans.ResourceExpenses, 2)
		require.NoError(t, err)
		_, err = tracker.Increment(ctx, owner, plans.ResourceCustomers, 6)
		require.NoError(t, err)
		_, err = tracker.Increment(ctx, owner, plans.ResourceProducts, 3)
		require.NoError(t, err)

		clk.Set(time.Date(2025, 2, 1, 0, 0, 1, 0, time.UTC))
		snap, err := tracker.GetUsage(ctx, owner)
		require.NoError(t, err)

		assert.Zero(t, snap.Invoices)
		assert.Zero(t, snap.Expenses)
		assert.Equal(t, int64(6), snap.Customers)
		assert.Equal(t, int64(3), snap.Products)
		assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), snap.PeriodStart)
	})

	t.Run("unreadable snapshot is recreated", func(t *testing.T) {
		t.Parallel()

		tracker, mem := newTracker(t)
		owner := uuid.New()
		require.NoError(t, mem.Set(context.Background(), usage.Key(owner), []byte("{not json")))

		snap, err := tracker.GetUsage(context.Background(), owner)
		require.NoError(t, err)
		assert.Zero(t, snap.Invoices)
	})

	t.Run("nil owner", func(t *testing.T) {
		t.Parallel()

		tracker, _ := newTracker(t)
		_, err := tracker.GetUsage(context.Background(), uuid.Nil)
		assert.ErrorIs(t, err, usage.ErrInvalidOwner)
	})
}

func TestTracker_IncrementDecrement(t *testing.T) {
	t.Parallel()

	t.Run("round trip restores the count", func(t *testing.T) {
		t.Parallel()

		tracker, _ := newTracker(t)
		ctx := context.Background()
		owner := uuid.New()

		_, err := tracker.Increment(ctx, owner, plans.ResourceInvoices, 3)
		require.NoError(t, err)

		for _, r := range plans.Resources() {
			before, err := tracker.Count(ctx, owner, r)
			require.NoError(t, err)
			for _, n := range []int64{0, 1, 7} {
				_, err = tracker.Increment(ctx, owner, r, n)
				require.NoError(t, err)
				_, err = tracker.Decrement(ctx, owner, r, n)
				require.NoError(t, err)

				after, err := tracker.Count(ctx, owner, r)
				require.NoError(t, err)
				assert.Equal(t, before, after, "%s +/-%d", r, n)
			}
		}
	})

	t.Run("decrement floors at zero", func(t *testing.T) {
		t.Parallel()

		tracker, _ := newTracker(t)
		ctx := context.Background()
		owner := uuid.New()

		_, err := tracker.Increment(ctx, owner, plans.ResourceProducts, 2)
		require.NoError(t, err)

		snap, err := tracker.Decrement(ctx, owner, plans.ResourceProducts, 50)
		require.NoError(t, err)
		assert.Zero(t, snap.Products)
	})

	t.Run("negative amount rejected", func(t *testing.T) {
		t.Parallel()

		tracker, _ := newTracker(t)
		_, err := tracker.Increment(context.Background(), uuid.New(), plans.ResourceInvoices, -1)
		assert.ErrorIs(t, err, usage.ErrNegativeAmount)
		_, err = tracker.Decrement(context.Background(), uuid.New(), plans.ResourceInvoices, -1)
		assert.ErrorIs(t, err, usage.ErrNegativeAmount)
	})

	t.Run("unknown resource cannot be mutated", func(t *testing.T) {
		t.Parallel()

		tracker, _ := newTracker(t)
		_, err := tracker.Increment(context.Background(), uuid.New(), "widgets", 1)
		assert.ErrorIs(t, err, usage.ErrUnknownResource)
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		t.Parallel()

		tracker, _ := newTracker(t)
		ctx := context.Background()
		owner := uuid.New()

		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := tracker.Increment(ctx, owner, plans.ResourceInvoices, 1)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		n, err := tracker.Count(ctx, owner, plans.ResourceInvoices)
		require.NoError(t, err)
		assert.Equal(t, int64(50), n)
	})
}

func TestTracker_Notifier(t *testing.T) {
	t.Parallel()

	t.Run("reports deltas in the background", func(t *testing.T) {
		t.Parallel()

		notifier := &recordingNotifier{}
		tracker, _ := newTracker(t, usage.WithNotifier(notifier))
		ctx := context.Background()
		owner := uuid.New()

		_, err := tracker.Increment(ctx, owner, plans.ResourceInvoices, 2)
		require.NoError(t, err)
		_, err = tracker.Decrement(ctx, owner, plans.ResourceInvoices, 1)
		require.NoError(t, err)
		_, err = tracker.Increment(ctx, owner, plans.ResourceInvoices, 0)
		require.NoError(t, err)
		tracker.Wait()

		assert.ElementsMatch(t, []notification{
			{owner, plans.ResourceInvoices, 2},
			{owner, plans.ResourceInvoices, -1},
		}, notifier.Calls())
	})

	t.Run("clamped decrement reports only the applied change", func(t *testing.T) {
		t.Parallel()

		notifier := &recordingNotifier{}
		tracker, _ := newTracker(t, usage.WithNotifier(notifier))
		ctx := context.Background()
		owner := uuid.New()

		_, err := tracker.Increment(ctx, owner, plans.ResourceCustomers, 2)
		require.NoError(t, err)
		snap, err := tracker.Decrement(ctx, owner, plans.ResourceCustomers, 5)
		require.NoError(t, err)
		assert.Zero(t, snap.Customers)

		// Already at zero: nothing changes, nothing is reported.
		_, err = tracker.Decrement(ctx, owner, plans.ResourceCustomers, 1)
		require.NoError(t, err)
		tracker.Wait()

		calls := notifier.Calls()
		assert.ElementsMatch(t, []notification{
			{owner, plans.ResourceCustomers, 2},
			{owner, plans.ResourceCustomers, -2},
		}, calls)

		var net int64
		for _, c := range calls {
			net += c.amount
		}
		assert.Equal(t, snap.Customers, net)
	})

	t.Run("failure keeps the local change", func(t *testing.T) {
		t.Parallel()

		notifier := &recordingNotifier{err: errors.New("offline")}
		tracker, _ := newTracker(t, usage.WithNotifier(notifier))
		ctx := context.Background()
		owner := uuid.New()

		snap, err := tracker.Increment(ctx, owner, plans.ResourceExpenses, 1)
		require.NoError(t, err)
		tracker.Wait()

		assert.Equal(t, int64(1), snap.Expenses)
		n, err := tracker.Count(ctx, owner, plans.ResourceExpenses)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assert.Len(t, notifier.Calls(), 1)
	})

	t.Run("outlives the caller context", func(t *testing.T) {
		t.Parallel()

		var gotErr error
		done := make(chan struct{})
		tracker, _ := newTracker(t, usage.WithNotifier(usage.NotifierFunc(
			func(ctx context.Context, _ uuid.UUID, _ plans.Resource, _ int64) error {
				gotErr = ctx.Err()
				close(done)
				return nil
			},
		)))

		ctx, cancel := context.WithCancel(context.Background())
		_, err := tracker.Increment(ctx, uuid.New(), plans.ResourceInvoices, 1)
		require.NoError(t, err)
		cancel()

		<-done
		tracker.Wait()
		assert.NoError(t, gotErr)
	})
}

func TestTracker_SetCountAndReconcile(t *testing.T) {
	t.Parallel()

	tracker, _ := newTracker(t)
	ctx := context.Background()
	owner := uuid.New()

	_, err := tracker.Increment(ctx, owner, plans.ResourceInvoices, 7)
	require.NoError(t, err)

	snap, err := tracker.SetCount(ctx, owner, plans.ResourceCustomers, 11)
	require.NoError(t, err)
	assert.Equal(t, int64(11), snap.Customers)
	assert.Equal(t, int64(7), snap.Invoices)

	_, err = tracker.SetCount(ctx, owner, plans.ResourceCustomers, -1)
	assert.ErrorIs(t, err, usage.ErrNegativeAmount)
	_, err = tracker.SetCount(ctx, owner, "widgets", 1)
	assert.ErrorIs(t, err, usage.ErrUnknownResource)

	snap, err = tracker.Reconcile(ctx, owner, map[plans.Resource]int64{plans.ResourceInvoices: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(5), snap.Invoices)
	assert.Equal(t, int64(11), snap.Customers)
}

func TestTracker_PercentUsed(t *testing.T) {
	t.Parallel()

	tracker, _ := newTracker(t)
	ctx := context.Background()
	owner := uuid.New()
	free := plans.Default().LimitsFor(plans.TierFree)

	_, err := tracker.Increment(ctx, owner, plans.ResourceInvoices, 4)
	require.NoError(t, err)

	pct, err := tracker.PercentUsed(ctx, owner, plans.ResourceInvoices, free)
	require.NoError(t, err)
	assert.InDelta(t, 80.0, pct, 1e-9)

	pct, err = tracker.PercentUsed(ctx, owner, "widgets", free)
	require.NoError(t, err)
	assert.Zero(t, pct)
}

func TestTracker_Clear(t *testing.T) {
	t.Parallel()

	tracker, mem := newTracker(t)
	ctx := context.Background()
	owner := uuid.New()

	_, err := tracker.Increment(ctx, owner, plans.ResourceInvoices, 3)
	require.NoError(t, err)
	require.NoError(t, tracker.Clear(ctx, owner))

	_, err = mem.Get(ctx, usage.Key(owner))
	assert.ErrorIs(t, err, store.ErrNotFound)

	n, err := tracker.Count(ctx, owner, plans.ResourceInvoices)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTracker_FailoverStore(t *testing.T) {
	t.Parallel()

	failing := &unavailableStore{}
	tracker := usage.NewTracker(
		store.NewFailover(failing, store.WithLogger(logger.Nop())),
		usage.WithLogger(logger.Nop()),
	)
	ctx := context.Background()
	owner := uuid.New()

	snap, err := tracker.Increment(ctx, owner, plans.ResourceInvoices, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Invoices)

	n, err := tracker.Count(ctx, owner, plans.ResourceInvoices)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

type unavailableStore struct{}

func (unavailableStore) Get(context.Context, string) ([]byte, error) {
	return nil, store.ErrStorageUnavailable
}

func (unavailableStore) Set(context.Context, string, []byte) error {
	return store.ErrStorageUnavailable
}

func (unavailableStore) Update(context.Context, string, store.UpdateFunc) ([]byte, error) {
	return nil, store.ErrStorageUnavailable
}

func (unavailableStore) Delete(context.Context, ...string) error {
	return store.ErrStorageUnavailable
}

func (unavailableStore) DeletePrefix(context.Context, string) error {
	return store.ErrStorageUnavailable
}
