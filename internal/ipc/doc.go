// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management, the request/response DTOs, and the
// conversion from queue actions to their wire representation.
//
// Reuse these types when adding new RPC endpoints to keep the protocol stable
// for existing command implementations.
package ipc
