// Package httpapi exposes usage counters, limit checks and subscription sync
// over HTTP for the UI layer.
//
// Routes:
//
//	GET    /usage                          current snapshot of the owner
//	POST   /usage/{resource}/increment     body {"amount": n}, default 1
//	POST   /usage/{resource}/decrement
//	GET    /check                          every action's decision
//	GET    /check/{action}                 one decision, e.g. /check/create_invoice
//	POST   /sync                           force a subscription status pull
//	POST   /session, DELETE /session       start or end background sync
//
// The owner is read from X-Owner-ID and the acting user from X-Identity-ID.
// A denied action is still a 200 response; callers inspect "allowed".
// DELETE /session answers 409 when the caller does not own the active session.
package httpapi
