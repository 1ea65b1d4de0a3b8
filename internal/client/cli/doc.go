// Package cli provides the interactive catalogkeeper terminal client.
//
// It wires configuration, the local session database and the gRPC client,
// then runs a REPL over the catalog service:
//
//   - register / login / logout (the session survives restarts)
//   - list / show / add / edit / delete products
//   - ping
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
