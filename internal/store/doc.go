// Package store persists offline records in SQLite, grouped by collection.
//
// The queue engine reads a collection exactly once at startup (ReadAll) to
// rehydrate work that survived a previous session. Everything else here
// (Put, Delete, Clear) is the write side used by the collaborators that own
// adding actions and retiring completed ones.
//
// Records keep the position of their first insert: ReadAll returns them in
// insertion order, and re-putting an existing record updates its body in
// place. Schema changes bump the version in schema.go; users clear the
// database to adopt the new schema.
package store
