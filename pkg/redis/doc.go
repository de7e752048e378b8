// Package redis connects to Redis and provides the persisted Cache Store used
// for usage snapshots.
//
// Connect retries the initial ping according to Config. NewStore wraps a
// go-redis client as a store.Store; Update runs as an optimistic WATCH/MULTI
// transaction, retried on conflicts, so concurrent read-modify-write cycles on
// the same snapshot never lose increments. Connection and command failures are
// reported as store.ErrStorageUnavailable, which store.Failover uses to switch
// to in-memory operation.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	snapshots := store.NewFailover(redis.NewStore(client, redis.WithKeyPrefix("biz:")))
package redis
