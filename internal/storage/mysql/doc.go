// Package mysql persists relay diagnostic records in MySQL. It owns the
// connection pool tuning, the embedded schema migrations under
// deploy/migrations, and the typed queries used by the diagnostics sink.
package mysql
