// Package reconcile provides the generic diff machinery used by the sync
// pipeline: partition a source snapshot against mirror records by identity
// key, then express the resulting writes as a discrete list of actions.
//
// The package is pure data manipulation. It performs no I/O, so diff
// behavior is testable without any API fakes; issuing the writes is the
// caller's concern.
package reconcile
