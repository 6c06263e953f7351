// Package client contains the sync agent's side of the wire and its local
// database bootstrap.
//
// # Overview
//
// The package provides:
//  1. The Remote Endpoint contract consumed by the sync engine and the
//     backup service (see RemoteEndpoint): HealthCheck, BatchSync,
//     PullDelta, BackupUploadURL and LatestBackup.
//  2. A gRPC implementation (see GRPCClient) that injects the device access
//     token through an interceptor, bounds every call with a timeout and
//     maps gRPC status codes to sentinel errors.
//  3. Local persistence bootstrap (InitDatabase, RunMigrations,
//     NewRepositories) wiring SQLite and the embedded goose migrations.
//
// # Error Handling
//
// Transport conditions are exposed as sentinel errors that callers match
// with errors.Is: ErrUnavailable, ErrUnauthorized, ErrNotFound.
//
// Concurrency & Contexts
//
// GRPCClient is safe for concurrent use. Every operation accepts a
// context.Context and honors cancellation.
package client
