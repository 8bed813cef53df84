// Package pgstore is the PostgreSQL entry store, selected with
// database.driver=postgres.
//
// It offers the same operations as the SQLite store in package database.
// extra_attributes is JSONB with source and backup_date as stored generated
// columns, and replacement of a (source, backup_date) entry set runs as one
// transaction that deletes the old rows and bulk-loads the new ones with COPY.
package pgstore
