// Package domain contains the core business entities of the letter service:
// letters written to a future self, the delivery intent attached to them,
// and the schedule state that tracks delivery progress. It also defines the
// error taxonomy shared by validation and the scheduling state machine.
package domain
