// Package syncer pulls authoritative subscription state and reconciles it into
// local usage counters.
//
// Sync fetches the owner's status through a fetch.Client (cached for the status
// TTL unless forced) and overwrites every counter the service reports. Local
// counts are an optimistic cache; the remote value always wins. Each pulled
// status is reconciled at most once, and never after a newer one.
//
// Start pulls the status immediately and then on a fixed interval for the
// active identity, bypassing the cache on every tick. Starting with a different
// owner stops the previous loop first. SignOut ends the session of the active
// owner only: it stops the loop, drops the cached status and clears the owner's
// usage snapshot.
package syncer
