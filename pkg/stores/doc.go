// Package stores provides the run-history persistence layer. It includes a
// SQLite-based store with WAL mode for provisioning runs, per-phase
// outcomes, and run events, so `citizen-agent history` can show what past
// setups did to a tenant.
package stores
