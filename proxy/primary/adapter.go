package primary

import (
	"context"

	"github.com/liuran001/SongProxy-Go/proxy/platform"
)

// SearchParser extracts the first external ID from a platform's raw search
// payload. It reports false for missing or malformed fields.
type SearchParser func(payload []byte) (string, bool)

// Adapter implements platform.Adapter on top of the primary API. The only
// per-platform piece is the search payload parser.
type Adapter struct {
	source platform.Source
	client *Client
	parse  SearchParser
}

// NewAdapter creates an Adapter for source.
func NewAdapter(source platform.Source, client *Client, parse SearchParser) *Adapter {
	return &Adapter{source: source, client: client, parse: parse}
}

// Name returns the source.
func (a *Adapter) Name() platform.Source {
	return a.source
}

// Search runs the descriptor pipeline and parses the first hit.
func (a *Adapter) Search(ctx context.Context, keyword string) (string, error) {
	payload, err := a.client.Search(ctx, a.source, keyword)
	if err != nil {
		return "", err
	}
	id, ok := a.parse(payload)
	if !ok || id == "" {
		return "", platform.NewNotFoundError(string(a.source), "search", keyword)
	}
	return id, nil
}

// Resolve calls the parse endpoint for id.
func (a *Adapter) Resolve(ctx context.Context, externalID string, bitrate platform.Bitrate) (*platform.SongRecord, error) {
	track, err := a.client.Parse(ctx, a.source, externalID, bitrate)
	if err != nil {
		return nil, err
	}
	return platform.NewSongRecord(a.source, externalID, track.Title, track.Artist, platform.Asset{
		StreamURL: track.URL,
		CoverURL:  track.Cover,
		Lyric:     track.Lyrics,
	}), nil
}
