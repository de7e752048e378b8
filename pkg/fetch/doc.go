// Package fetch wraps remote calls with caching, request de-duplication,
// cancellation and retry with exponential backoff.
//
// A Client keeps a bounded table of cache entries keyed by operation name.
// Call resolves a key in this order:
//
//  1. A fresh entry (younger than its TTL) is returned without running the
//     operation, unless caching is disabled for the call.
//  2. A stale entry is returned immediately when the caller opted into
//     stale-while-revalidate; a single background refresh is started.
//  3. Otherwise the operation runs. Concurrent calls for the same key share one
//     in-flight execution (golang.org/x/sync/singleflight).
//
// Failed attempts are retried only for ErrNetworkFailure (and net.Error), with
// delays from a BackoffStrategy (base * 2^attempt by default). Other errors,
// including ErrServerRejected and ErrCancelled, return immediately. When retries
// are exhausted the previous entry is left untouched and the last error is
// returned, or the stale value is served if the caller opted in with
// WithStaleOnError.
//
// Each caller waits under its own context. A caller that gives up receives
// ErrCancelled at once; the shared execution keeps running while at least one
// caller still waits and is cancelled when the last one leaves. Invalidate drops
// cached entries and supersedes in-flight executions for matching keys, so a
// superseded result is never written to the cache.
//
//	status, err := fetch.Call(ctx, client, "subscription_status:"+owner.String(),
//	    func(ctx context.Context) (remote.Status, error) { return api.Status(ctx, owner) },
//	    fetch.WithTTL(time.Minute),
//	)
package fetch
