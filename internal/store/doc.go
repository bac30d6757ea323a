// Package store provides access to the device inventory tables.
//
// The main components are:
//
//   - [DeviceStore]: the listing and status-update surface the reconciler needs
//   - [Store]: DeviceStore plus the category, mutation and user queries used by the API
//   - [SQLiteStore]: Store backed by a SQLite database file
//   - [MemoryStore]: in-memory Store used by tests and the single-binary demo
//
// The tables are assumed to exist already; [Open] only creates them when
// missing so a fresh database file is usable for local development.
//
// Implementations must be safe for concurrent use. No locking discipline is
// imposed on callers: the reconciler's read-then-write per device tolerates
// lost updates from other writers, which the next sweep corrects.
package store
