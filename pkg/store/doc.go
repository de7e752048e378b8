// Package store defines the key/value Cache Store that owns every persisted
// usage snapshot and cached response.
//
// All snapshot mutations go through Store.Update, a single atomic
// read-modify-write per key, so concurrent writers (tracker increments and
// synchronizer overwrites) never lose updates. Implementations:
//
//   - NewMemory: process-local map, used in tests and as the fallback.
//   - redis.NewStore (pkg/redis): persisted, shared across processes.
//   - NewFailover: wraps a persisted store and switches to memory for the rest
//     of the session once the persisted store reports ErrStorageUnavailable.
package store
