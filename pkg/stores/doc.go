// Package stores provides the run ledger: a SQLite database recording every
// reconciliation and the package manager commands it executed.
//
// The ledger is write-mostly. Reconciliation never reads it back; it exists for
// the history command and for auditing what ran where.
package stores
