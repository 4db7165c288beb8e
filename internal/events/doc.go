// Package events carries letter lifecycle notifications from the scheduler
// to interested components (metrics, audit logging) without the scheduler
// knowing who listens.
//
// Events are emitted only after the transition they describe has been
// persisted.
package events
