// Package postgres provides the PostgreSQL implementation of the letter
// store defined in the internal/store package. It handles query execution,
// compare-and-swap schedule updates, and mapping between domain entities and
// database records.
package postgres
