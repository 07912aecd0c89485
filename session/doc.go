// Package session houses session stores. Sessions are created once and then
// only updated through core.MergeSession patches, never replaced.
//
// Add additional backends (Redis, Postgres, etc.) in sub-packages without
// changing any calling code; only the wiring layer decides which Store to
// instantiate.
package session
