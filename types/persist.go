package types

import "context"

// ChangeSetPersister persists permission change sets to an external storage.
// A location is a backend specific address: a file path, an s3 url, a document key.
type ChangeSetPersister interface {
	// Load all records saved at the location
	Load(ctx context.Context, location string) ([]PermissionRecord, error)

	// Save records to the location, replacing whatever was there
	Save(ctx context.Context, location string, records []PermissionRecord) error
}
