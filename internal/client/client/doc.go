// Package client contains the client-side building blocks of the
// catalogkeeper terminal client.
//
// # Overview
//
//  1. A transport-agnostic API contract (see the Client interface) for the
//     catalog service: account calls, product CRUD and Ping.
//  2. A concrete gRPC implementation (see GRPCClient) that injects the access
//     token through an interceptor, refreshes an expired token once and
//     retries, and maps gRPC status codes to sentinel errors.
//  3. OpenSessionDB, which opens the local SQLite session database and applies
//     its embedded goose migrations.
//
// # Error Handling
//
// Conditions are exposed as sentinel errors matched with errors.Is:
// ErrUnavailable, ErrUnauthorized, ErrNotFound, ErrAlreadyExists,
// ErrInvalidInput, ErrUndisplayable.
package client
