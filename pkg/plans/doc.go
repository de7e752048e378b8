// Package plans maps subscription tiers to resource quotas and feature flags.
//
// A Policy is an immutable lookup table built once at startup, either from
// Default or from a YAML document. LimitsFor never fails: unknown tiers resolve
// to the free tier so that a misconfigured or unexpected tier is never granted
// more than the most restrictive plan.
//
// Limits use Unlimited (-1) for resources without a quota. Period-bound
// resources (invoices, expenses) reset at the start of each calendar month;
// the others are cumulative.
//
// Example YAML:
//
//	plans:
//	  - tier: free
//	    name: Free
//	    price: "0"
//	    limits: {invoices: 5, expenses: 20, customers: 50, products: 20, team_members: 1}
//	  - tier: monthly
//	    name: Silver Monthly
//	    price: "4500"
//	    interval: month
//	    limits: {invoices: 450, expenses: 500, customers: -1, products: -1, team_members: 5}
//	    features: [analytics, reports]
package plans
