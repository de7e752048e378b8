// Package remote is the HTTP client for the subscription service.
//
// It consumes two endpoints:
//
//	GET  {base}/subscription-status -> {"tier", "usageByResource", "periodEnd", "features"}
//	POST {base}/usage-increment     <- {"resource", "amount"}
//
// The owner is sent in the X-Owner-ID header, and a bearer token is added when
// configured. Failures are classified for the fetch package: transport errors,
// 5xx, 408, 425 and 429 become fetch.ErrNetworkFailure (retryable), other 4xx
// become a *fetch.RejectedError carrying the server message, and a cancelled
// caller context becomes fetch.ErrCancelled.
//
// A CircuitBreaker stops calls to an endpoint that keeps failing and lets a
// probe through after a recovery timeout.
package remote
