// Package sqlite persists emitted match lists to SQLite.
//
// The schema is managed by golang-migrate from migrations embedded in the
// binary; OpenMatchStore brings a database file up to the latest version.
package sqlite
