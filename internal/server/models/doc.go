// Package models defines server-side records persisted in the database.
//
// Enumerated columns are typed; Parse* functions reject values outside the
// known set so that a corrupted row fails at the repository boundary instead
// of leaking into business logic.
package models
