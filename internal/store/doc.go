// Package store persists canonical posts in SQLite and exposes the lookup
// surface identity resolution and deduplication run against.
//
// The Store manages the database connection, schema initialization, and
// read-only queries. Mutations happen inside a Tx obtained from WithTx so
// that resolver lookups and merge writes for one record commit or roll
// back together; SQLite's write serialization keeps concurrent page
// workers from interleaving.
//
// Treat this package as the single source of truth for canonical-post
// semantics; schema changes bump schemaVersion in schema.go and users
// recreate the database.
package store
