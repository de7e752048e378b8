// Package usage keeps per-owner resource counters for the current billing period.
//
// Counters live in a store.Store as one JSON snapshot per owner under
// "usage_tracking:<ownerID>". The Tracker holds no copy of its own: every read
// and write goes through the store, and every mutation is a single atomic
// read-modify-write (store.Store.Update).
//
// Invoices and expenses are period-bound and reset when a read observes that
// the calendar month (UTC) has changed since PeriodStart. Customers, products
// and team members are cumulative.
//
// Local increments are optimistic. After a successful mutation the Tracker
// notifies the remote service in the background; failures are logged and never
// roll back the local value. Reconcile merges an authoritative remote count into
// the snapshot, the remote value always winning.
package usage
