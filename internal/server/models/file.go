package models

import "time"

// File describes an uploaded object. The bytes live in blob storage under
// StoragePath; PrimaryNodeID is the node chosen at upload time.
type File struct {
	ID            string
	StoredName    string
	OriginalName  string
	Size          int64
	MimeType      string
	Checksum      string
	OwnerID       string
	PrimaryNodeID string
	StoragePath   string
	IsDeleted     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
