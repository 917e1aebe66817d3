package scenes

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/bounan/matcher/audio"
	"github.com/bounan/matcher/config"
	"github.com/bounan/matcher/loanapi"
	"github.com/bounan/matcher/logutils"
	"github.com/bounan/matcher/types"
)

var (
	ErrVideoHasNoPlaylists = errors.New("video has no playlists")
)

// VideoSource resolves an episode to its playlists.
type VideoSource interface {
	GetVideo(ctx context.Context, key types.VideoKey) (*loanapi.VideoResponse, error)
}

// Finder locates openings and endings across a run of episodes: it
// screens out unusable episodes, downloads the head and tail match
// windows of the rest, recognises repeating intervals and refines them
// into scenes.
type Finder struct {
	videos     VideoSource
	downloader *audio.Downloader
	recognizer Recognizer
	client     *http.Client

	secondsToMatch float64
	afterThreshold float64
	minSceneLength float64
}

func NewFinder(
	cfg *config.Runtime,
	videos VideoSource,
	downloader *audio.Downloader,
	recognizer Recognizer,
	client *http.Client,
) *Finder {
	return &Finder{
		videos:     videos,
		downloader: downloader,
		recognizer: recognizer,
		client:     client,

		secondsToMatch: float64(cfg.SecondsToMatch),
		afterThreshold: float64(cfg.SceneAfterOpeningThreshold),
		minSceneLength: float64(cfg.MinSceneLengthSecs),
	}
}

// FindScenes returns one item per requested episode, in order.
// Episodes that could not be processed get empty scenes.
func (f *Finder) FindScenes(ctx context.Context, myAnimeListID int, dub string, episodes []int) ([]types.MatcherResultRequestItem, error) {
	l := logutils.LoggerFromContext(ctx)

	playlists := make([]*audio.Playlist, 0, len(episodes))
	durations := make([]float64, 0, len(episodes))
	usable := make([]int, 0, len(episodes))
	for i, episode := range episodes {
		key := types.VideoKey{MyAnimeListID: myAnimeListID, Dub: dub, Episode: episode}
		playlist, err := f.getPlaylist(ctx, key)
		if err != nil {
			return nil, err
		}
		if playlist == nil {
			continue
		}
		playlists = append(playlists, playlist)
		durations = append(durations, playlist.TotalDuration())
		usable = append(usable, i)
	}
	if len(usable) < len(episodes) {
		l.Warn("Skipping unusable episodes",
			zap.Int("requested", len(episodes)),
			zap.Int("usable", len(usable)),
		)
	}

	found := make([]types.Scenes, len(playlists))
	if len(playlists) >= 2 {
		openings, _, err := f.recognizeSide(ctx, playlists, true)
		if err != nil {
			return nil, err
		}
		endings, truncated, err := f.recognizeSide(ctx, playlists, false)
		if err != nil {
			return nil, err
		}

		fixedOpenings := fixOpenings(openings, durations, f.afterThreshold)
		fixedEndings := fixEndings(endings, durations, truncated)

		for i := range playlists {
			scenes := combine(fixedOpenings[i], fixedEndings[i], durations[i], f.afterThreshold, f.minSceneLength)
			found[i] = roundScenes(scenes)
		}
	}

	items := make([]types.MatcherResultRequestItem, len(episodes))
	for i, episode := range episodes {
		items[i] = types.MatcherResultRequestItem{
			VideoKey: types.VideoKey{MyAnimeListID: myAnimeListID, Dub: dub, Episode: episode},
			Scenes:   &types.Scenes{},
		}
	}
	for position, i := range usable {
		scenes := found[position]
		items[i].Scenes = &scenes
	}
	return items, nil
}

// getPlaylist loads the lowest-quality playlist of an episode and
// screens out episodes that cannot be matched: no segments, or shorter
// than two match windows.
func (f *Finder) getPlaylist(ctx context.Context, key types.VideoKey) (*audio.Playlist, error) {
	l := logutils.LoggerFromContext(ctx)

	video, err := f.videos.GetVideo(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(video.Playlists) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrVideoHasNoPlaylists, key)
	}

	lowest := math.MaxInt
	playlistURL := ""
	for quality, u := range video.Playlists {
		q, err := strconv.Atoi(quality)
		if err != nil {
			continue
		}
		if q < lowest {
			lowest = q
			playlistURL = u
		}
	}
	if playlistURL == "" {
		return nil, fmt.Errorf("%w: %s", ErrVideoHasNoPlaylists, key)
	}

	playlist, err := audio.LoadPlaylist(ctx, f.client, playlistURL)
	if err != nil {
		return nil, err
	}

	if len(playlist.Segments) == 0 {
		l.Warn("Skipping an episode with no segments",
			zap.Stringer("video", key),
		)
		return nil, nil
	}
	if total := playlist.TotalDuration(); total < 2*f.secondsToMatch {
		l.Warn("Skipping a too short episode",
			zap.Stringer("video", key),
			zap.Float64("duration", total),
		)
		return nil, nil
	}

	return playlist, nil
}

// recognizeSide downloads the head (openings) or tail (endings) match
// window of every playlist and recognises the repeating interval. It
// also reports the truncated window duration per episode, needed to
// shift endings back into video coordinates.
func (f *Finder) recognizeSide(ctx context.Context, playlists []*audio.Playlist, opening bool) ([]types.Interval, []float64, error) {
	side := "ed"
	if opening {
		side = "op"
	}

	clips := make([]Clip, len(playlists))
	truncated := make([]float64, len(playlists))
	defer func() {
		for _, clip := range clips {
			if clip.Path != "" {
				os.Remove(clip.Path)
			}
		}
	}()

	for i, playlist := range playlists {
		segments, covered := audio.SelectSegments(playlist.Segments, opening, f.secondsToMatch)
		wavPath, err := f.downloader.DownloadWav(ctx, fmt.Sprintf("%s-%d", side, i), segments)
		if err != nil {
			return nil, nil, err
		}

		truncated[i] = math.Min(covered, f.secondsToMatch)
		offset := 0.0
		if !opening {
			offset = math.Max(covered-f.secondsToMatch, 0)
		}
		clips[i] = Clip{
			Path:     wavPath,
			Offset:   offset,
			Duration: truncated[i],
		}
	}

	intervals, err := f.recognizer.Recognize(ctx, clips)
	if err != nil {
		return nil, nil, err
	}
	return intervals, truncated, nil
}
