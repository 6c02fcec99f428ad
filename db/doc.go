// Package db provides the SQLite storage layer for the jobcue client.
//
// This package is responsible for:
// - Establishing the database connection and applying embedded goose migrations (`db.go`).
// - Persisting the durable request queue as an ordered JSON array under a single
//   well-known key of the `kv` table (`queue_repo.go`).
// - Persisting the bearer token under its own key (`credential_repo.go`).
// - Recording dropped queue entries (`deadletter_repo.go`) and reporting counts (`stats_repo.go`).
package db
