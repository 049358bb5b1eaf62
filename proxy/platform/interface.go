package platform

import "context"

// Adapter maps the normalized search and resolve operations onto one
// platform's upstream API.
type Adapter interface {
	// Name returns the source this adapter serves.
	Name() Source

	// Search returns the external ID of the best match for keyword.
	// A missing or malformed upstream field yields ErrNotFound.
	Search(ctx context.Context, keyword string) (string, error)

	// Resolve turns an external ID into a playable record.
	// A quota signal from the resolver yields ErrQuotaExhausted.
	Resolve(ctx context.Context, externalID string, bitrate Bitrate) (*SongRecord, error)
}

// Fallback is the secondary free API. One Lookup is a single upstream call
// that searches and resolves at once.
type Fallback interface {
	Lookup(ctx context.Context, keyword string, bitrate Bitrate) (*SongRecord, error)
	Resolve(ctx context.Context, externalID string, bitrate Bitrate) (*SongRecord, error)
}
