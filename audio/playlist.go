package audio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/grafov/m3u8"
)

var (
	ErrPlaylistFailedToLoad  = errors.New("failed to load the playlist")
	ErrPlaylistFailedToParse = errors.New("failed to parse the playlist")
	ErrPlaylistNotMedia      = errors.New("playlist is not a media playlist")
)

// Segment is one media segment of a playlist, with its URI resolved to
// an absolute URL.
type Segment struct {
	URI      string
	Duration float64
}

// Playlist is the flattened view of a media playlist.
type Playlist struct {
	URL      string
	Segments []Segment
}

// TotalDuration sums the segment durations.
func (p *Playlist) TotalDuration() float64 {
	var total float64
	for _, segment := range p.Segments {
		total += segment.Duration
	}
	return total
}

// LoadPlaylist fetches and parses a media playlist.
func LoadPlaylist(ctx context.Context, client *http.Client, playlistURL string) (*Playlist, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playlistURL, nil)
	if err != nil {
		return nil, err
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlaylistFailedToLoad, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: %s", ErrPlaylistFailedToLoad, playlistURL, res.Status)
	}

	playlist, listType, err := m3u8.DecodeFrom(res.Body, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlaylistFailedToParse, err)
	}
	if listType != m3u8.MEDIA {
		return nil, fmt.Errorf("%w: %s", ErrPlaylistNotMedia, playlistURL)
	}
	media := playlist.(*m3u8.MediaPlaylist)

	base, err := url.Parse(playlistURL)
	if err != nil {
		return nil, err
	}

	segments := make([]Segment, 0, media.Count())
	for _, segment := range media.Segments {
		if segment == nil {
			break
		}
		uri, err := base.Parse(segment.URI)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrPlaylistFailedToParse, segment.URI, err)
		}
		segments = append(segments, Segment{
			URI:      uri.String(),
			Duration: segment.Duration,
		})
	}

	return &Playlist{
		URL:      playlistURL,
		Segments: segments,
	}, nil
}

// SelectSegments picks segments from the head (openings) or the tail
// (endings) of the playlist until they cover at least secondsToMatch,
// preserving playback order. It returns the selection and the duration
// it actually covers, which can overshoot by up to one segment.
func SelectSegments(segments []Segment, opening bool, secondsToMatch float64) ([]Segment, float64) {
	var covered float64
	selected := make([]Segment, 0, len(segments))

	if opening {
		for _, segment := range segments {
			selected = append(selected, segment)
			covered += segment.Duration
			if covered >= secondsToMatch {
				break
			}
		}
		return selected, covered
	}

	for i := len(segments) - 1; i >= 0; i-- {
		selected = append([]Segment{segments[i]}, selected...)
		covered += segments[i].Duration
		if covered >= secondsToMatch {
			break
		}
	}
	return selected, covered
}
