// Package policy decides what an authenticated actor may do inside a project.
//
// The package is pure: it performs no I/O and holds no mutable state, so
// Evaluate may be called from any number of goroutines. Callers resolve the
// actor's Identity, the project's Membership and the actor's Grant, then ask
// one question per call:
//
//	d := policy.Evaluate(policy.Request{
//		Identity:   identity,
//		Membership: membership,
//		Grant:      grant, // nil when the store has no record
//		Capability: policy.CapEdit,
//	})
//	if !d.Allowed {
//		// d.Reason tells why
//	}
//
// Permission tokens arriving from outside (grant store rows, API payloads)
// must pass through Validate before they reach the evaluator.
package policy
