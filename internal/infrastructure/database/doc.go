// Package database manages the gateway's SQLite database connection and
// schema migrations.
//
// The schema (devices, channels, clusters, attributes, rules, conditions,
// actions, notification, users, rooms, cameras, homegate) lives in embedded
// SQL files under migrations/. Foreign keys are always enabled because
// device removal relies on ON DELETE CASCADE.
//
// The connection pool is limited to one connection: SQLite has a single
// writer, and the store layer serialises all read-modify-write sequences
// behind its own lock anyway.
package database
