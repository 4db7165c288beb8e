// Package delivery implements the pure scheduling rules for letters: the
// clock abstraction, calendar-aware interval arithmetic for recurring
// deliveries, and validation of delivery intent against the minimum lead
// time. Nothing in this package performs I/O or reads the wall clock
// directly; callers pass "now" in or inject a TimeProvider.
package delivery
