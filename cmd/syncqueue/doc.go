// Package main hosts the syncqueue CLI.
//
// Commands talk to the daemon over its JSON-RPC socket. The hidden daemon
// command runs the daemon itself; start and stop manage it as a detached
// process. queue list falls back to reading the database directly when the
// daemon is not running.
package main
