package matcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bounan/matcher/config"
	"github.com/bounan/matcher/logutils"
	"github.com/bounan/matcher/types"
)

const (
	batchAttempts    = 2
	batchRetryDelay  = time.Second
	errorBackoff     = 3 * time.Second
	maxForceEpisodes = 27
)

var (
	ErrMixedGroups = errors.New("videos to match belong to different groups")
)

// AniMan hands out videos to match and accepts the results.
type AniMan interface {
	GetVideosToMatch(ctx context.Context) (*types.MatcherResponse, error)
	UpdateVideoScenes(ctx context.Context, request *types.MatcherResultRequest) error
	UploadEmptyScenes(ctx context.Context, keys []types.VideoKey) error
}

// EpisodeSource lists the episodes available for a title.
type EpisodeSource interface {
	GetEpisodes(ctx context.Context, myAnimeListID int, dub string) ([]int, error)
}

// SceneFinder matches a run of episodes against each other.
type SceneFinder interface {
	FindScenes(ctx context.Context, myAnimeListID int, dub string, episodes []int) ([]types.MatcherResultRequestItem, error)
}

// Notifier blocks until a new video is registered.
type Notifier interface {
	WaitForNotification(ctx context.Context) error
}

// Matcher runs the poll loop: take a group of registered videos,
// extend it with neighbouring episodes, find scenes batch by batch and
// upload the results. Videos that cannot be processed get empty scenes
// so AniMan stops handing them out.
type Matcher struct {
	animan   AniMan
	episodes EpisodeSource
	finder   SceneFinder
	notifier Notifier

	force            bool
	minEpisodeNumber int
	episodesToMatch  int
	batchSize        int

	heartbeat *rate.Limiter
}

func New(cfg *config.Runtime, force bool, animan AniMan, episodes EpisodeSource, finder SceneFinder, notifier Notifier) *Matcher {
	return &Matcher{
		animan:   animan,
		episodes: episodes,
		finder:   finder,
		notifier: notifier,

		force:            force,
		minEpisodeNumber: cfg.MinEpisodeNumber,
		episodesToMatch:  cfg.EpisodesToMatch,
		batchSize:        cfg.BatchSize,

		heartbeat: rate.NewLimiter(
			rate.Every(time.Minute/time.Duration(cfg.OperatingLogRatePerMinute)),
			1,
		),
	}
}

// Run polls until ctx is cancelled.
func (m *Matcher) Run(ctx context.Context) error {
	l := logutils.LoggerFromContext(ctx)
	l.Info("Starting the data processing")

	for {
		if err := ctx.Err(); err != nil {
			l.Info("Data processing stopped")
			return err
		}
		m.operating(l)

		runCtx := logutils.ContextWithLogger(ctx, l.With(
			zap.String("run_id", uuid.NewString()),
		))
		if err := m.runOnce(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			logutils.LoggerFromContext(runCtx).Error("An error occurred",
				zap.Error(err),
			)
			m.backoff(ctx)
		}
	}
}

func (m *Matcher) runOnce(ctx context.Context) error {
	l := logutils.LoggerFromContext(ctx)

	res, err := m.animan.GetVideosToMatch(ctx)
	if err != nil {
		return err
	}

	videos := res.VideosToMatch
	if len(videos) == 0 {
		l.Info("No videos to match, waiting for new videos")
		return m.notifier.WaitForNotification(ctx)
	}

	if err := m.processVideos(ctx, videos); err != nil {
		if uploadErr := m.animan.UploadEmptyScenes(ctx, videos); uploadErr != nil {
			err = errors.Join(err, uploadErr)
		}
		return err
	}
	return nil
}

func (m *Matcher) processVideos(ctx context.Context, videos []types.VideoKey) error {
	l := logutils.LoggerFromContext(ctx)
	l.Info("Received videos to match",
		zap.Int("count", len(videos)),
		zap.Stringers("videos", videos),
	)

	if err := ensureSameGroup(videos); err != nil {
		return err
	}
	myAnimeListID := videos[0].MyAnimeListID
	dub := videos[0].Dub

	available, err := m.episodes.GetEpisodes(ctx, myAnimeListID, dub)
	if err != nil {
		return err
	}

	episodes := m.episodesToProcess(ctx, available, videos)
	if len(episodes) < m.minEpisodeNumber {
		l.Info("Not enough videos to process, waiting for new videos")
		return m.animan.UploadEmptyScenes(ctx, videos)
	}

	if unavailable := missingFrom(episodes, videos); len(unavailable) > 0 && !m.force {
		l.Info("Some videos are unavailable",
			zap.Int("unavailable", len(unavailable)),
			zap.Int("requested", len(videos)),
			zap.Stringers("videos", unavailable),
		)
		return m.animan.UploadEmptyScenes(ctx, unavailable)
	}

	l.Info("Videos to process",
		zap.Int("count", len(episodes)),
		zap.Ints("episodes", episodes),
	)

	for _, batch := range splitBatches(episodes, m.batchSize) {
		l.Info("Processing batch",
			zap.Int("size", len(batch)),
			zap.Ints("episodes", batch),
		)
		if err := m.processBatch(ctx, myAnimeListID, dub, batch); err != nil {
			l.Error("Error occurred while processing batch",
				zap.Error(err),
			)
			if err := m.animan.UploadEmptyScenes(ctx, keysFor(myAnimeListID, dub, batch)); err != nil {
				return err
			}
			continue
		}
		l.Info("Batch processed")
	}
	return nil
}

// processBatch retries once before giving up on a batch.
func (m *Matcher) processBatch(ctx context.Context, myAnimeListID int, dub string, batch []int) error {
	var lastErr error
	for attempt := 0; attempt < batchAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(batchRetryDelay):
			}
		}
		lastErr = m.matchBatch(ctx, myAnimeListID, dub, batch)
		if lastErr == nil || errors.Is(lastErr, context.Canceled) {
			return lastErr
		}
	}
	return lastErr
}

func (m *Matcher) matchBatch(ctx context.Context, myAnimeListID int, dub string, batch []int) error {
	l := logutils.LoggerFromContext(ctx)

	items, err := m.finder.FindScenes(ctx, myAnimeListID, dub, batch)
	if err != nil {
		return err
	}

	if len(items) != len(batch) {
		l.Error("Number of scenes to upload does not match number of videos to process",
			zap.Int("scenes", len(items)),
			zap.Int("videos", len(batch)),
		)
		if err := m.animan.UploadEmptyScenes(ctx, keysFor(myAnimeListID, dub, batch)); err != nil {
			return err
		}
		l.Warn("Uploaded empty scenes")
		return nil
	}

	if err := m.animan.UpdateVideoScenes(ctx, &types.MatcherResultRequest{Items: items}); err != nil {
		return err
	}
	l.Info("Scenes uploaded",
		zap.Int("count", len(items)),
	)
	return nil
}

// episodesToProcess extends the requested episodes with up to
// episodesToMatch neighbours on each side, within the available list.
// Force mode processes the whole list, but only for short series.
func (m *Matcher) episodesToProcess(ctx context.Context, available []int, videos []types.VideoKey) []int {
	if m.force {
		if len(available) >= maxForceEpisodes {
			logutils.LoggerFromContext(ctx).Error("Force processing is enabled, but there are too many available videos",
				zap.Int("available", len(available)),
			)
			return nil
		}
		return available
	}

	index := make(map[int]int, len(available))
	for i, episode := range available {
		index[episode] = i
	}

	include := make(map[int]struct{})
	for _, video := range videos {
		i, exists := index[video.Episode]
		if !exists {
			continue
		}
		from := max(0, i-m.episodesToMatch)
		to := min(len(available), i+m.episodesToMatch+1)
		for j := from; j < to; j++ {
			include[j] = struct{}{}
		}
	}

	episodes := make([]int, 0, len(include))
	for i, episode := range available {
		if _, exists := include[i]; exists {
			episodes = append(episodes, episode)
		}
	}
	return episodes
}

// operating emits the rate-limited heartbeat line that feeds the
// liveness alarm.
func (m *Matcher) operating(l *zap.Logger) {
	if m.heartbeat.Allow() {
		l.Info("Operating")
	}
}

func (m *Matcher) backoff(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(errorBackoff):
	}
}

func ensureSameGroup(videos []types.VideoKey) error {
	myAnimeListID := videos[0].MyAnimeListID
	dub := videos[0].Dub
	for _, video := range videos {
		if video.MyAnimeListID != myAnimeListID || video.Dub != dub {
			return fmt.Errorf("%w: %s and %s", ErrMixedGroups, videos[0], video)
		}
	}
	return nil
}

// splitBatches chunks episodes into batches of size, folding a short
// trailing batch into its predecessor, so the last batch can grow up
// to 2*size-1.
func splitBatches(episodes []int, size int) [][]int {
	var batches [][]int
	for start := 0; start < len(episodes); start += size {
		end := min(start+size, len(episodes))
		batches = append(batches, episodes[start:end])
	}
	if len(batches) > 1 && len(batches[len(batches)-1]) < size {
		last := batches[len(batches)-1]
		batches[len(batches)-2] = append(
			append([]int(nil), batches[len(batches)-2]...),
			last...,
		)
		batches = batches[:len(batches)-1]
	}
	return batches
}

func missingFrom(episodes []int, videos []types.VideoKey) []types.VideoKey {
	included := make(map[int]struct{}, len(episodes))
	for _, episode := range episodes {
		included[episode] = struct{}{}
	}

	var missing []types.VideoKey
	for _, video := range videos {
		if _, exists := included[video.Episode]; !exists {
			missing = append(missing, video)
		}
	}
	return missing
}

func keysFor(myAnimeListID int, dub string, episodes []int) []types.VideoKey {
	keys := make([]types.VideoKey, 0, len(episodes))
	for _, episode := range episodes {
		keys = append(keys, types.VideoKey{
			MyAnimeListID: myAnimeListID,
			Dub:           dub,
			Episode:       episode,
		})
	}
	return keys
}
