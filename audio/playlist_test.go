package audio

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXTINF:9.000,
seg0.ts
#EXTINF:8.000,
seg1.ts
#EXTINF:4.000,
https://cdn.example.com/seg2.ts
#EXT-X-ENDLIST
`

const masterPlaylist = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1280000
low.m3u8
`

func TestLoadPlaylist(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/videos/media.m3u8":
			w.Write([]byte(mediaPlaylist))
		case "/videos/master.m3u8":
			w.Write([]byte(masterPlaylist))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	t.Run("media playlist", func(t *testing.T) {
		playlist, err := LoadPlaylist(context.Background(), server.Client(), server.URL+"/videos/media.m3u8")
		if err != nil {
			t.Fatalf("LoadPlaylist: %v", err)
		}

		want := []Segment{
			{URI: server.URL + "/videos/seg0.ts", Duration: 9},
			{URI: server.URL + "/videos/seg1.ts", Duration: 8},
			{URI: "https://cdn.example.com/seg2.ts", Duration: 4},
		}
		if !reflect.DeepEqual(playlist.Segments, want) {
			t.Errorf("segments = %v, want %v", playlist.Segments, want)
		}
		if got := playlist.TotalDuration(); got != 21 {
			t.Errorf("TotalDuration = %v, want 21", got)
		}
	})

	t.Run("master playlist", func(t *testing.T) {
		_, err := LoadPlaylist(context.Background(), server.Client(), server.URL+"/videos/master.m3u8")
		if !errors.Is(err, ErrPlaylistNotMedia) {
			t.Errorf("LoadPlaylist(master): err = %v, want ErrPlaylistNotMedia", err)
		}
	})

	t.Run("missing playlist", func(t *testing.T) {
		_, err := LoadPlaylist(context.Background(), server.Client(), server.URL+"/videos/absent.m3u8")
		if !errors.Is(err, ErrPlaylistFailedToLoad) {
			t.Errorf("LoadPlaylist(absent): err = %v, want ErrPlaylistFailedToLoad", err)
		}
	})
}

func TestSelectSegments(t *testing.T) {
	segments := []Segment{
		{URI: "a", Duration: 10},
		{URI: "b", Duration: 10},
		{URI: "c", Duration: 10},
		{URI: "d", Duration: 10},
	}

	tests := []struct {
		name           string
		opening        bool
		secondsToMatch float64
		want           []Segment
		wantCovered    float64
	}{
		{
			name:           "opening takes the head",
			opening:        true,
			secondsToMatch: 15,
			want:           segments[:2],
			wantCovered:    20,
		},
		{
			name:           "ending takes the tail in order",
			opening:        false,
			secondsToMatch: 15,
			want:           segments[2:],
			wantCovered:    20,
		},
		{
			name:           "exact cover stops early",
			opening:        true,
			secondsToMatch: 10,
			want:           segments[:1],
			wantCovered:    10,
		},
		{
			name:           "oversized window takes everything",
			opening:        false,
			secondsToMatch: 100,
			want:           segments,
			wantCovered:    40,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, covered := SelectSegments(segments, tt.opening, tt.secondsToMatch)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("selection = %v, want %v", got, tt.want)
			}
			if covered != tt.wantCovered {
				t.Errorf("covered = %v, want %v", covered, tt.wantCovered)
			}
		})
	}
}
