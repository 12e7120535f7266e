// Package preflight provides readiness checks for the filesystem paths and
// remote server that syncqueue depends on.
//
// The daemon runs RunAll at startup and refuses to start when a directory
// check fails. The CLI "syncqueue status" command prints the same results.
// The server check is informational: an unreachable server is the normal
// offline case the queue exists for.
package preflight
