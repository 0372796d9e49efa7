// Package store is an optional Postgres/Timescale sink for derived book
// levels. The CSV logs remain the durable record; the store mirrors the same
// rows into a book_levels table for ad-hoc querying. Disabled unless a
// database host is configured.
package store
