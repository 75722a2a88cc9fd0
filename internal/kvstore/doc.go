// Package kvstore persists small opaque values and the fetch journal in
// SQLite.
//
// The key-value table holds the serialized device registration and the
// resolved activation key so a restart does not need a new login or a license
// round trip. The fetches table records the last outcome per asset so the
// status command can report what was acquired, skipped, cancelled, or failed.
//
// Schema changes bump the version in schema.go; users delete the state
// database to adopt the new schema.
package kvstore
