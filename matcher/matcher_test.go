package matcher

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/bounan/matcher/config"
	"github.com/bounan/matcher/types"
)

type fakeAniMan struct {
	videos []types.VideoKey
	err    error

	updated []*types.MatcherResultRequest
	empties [][]types.VideoKey
}

func (f *fakeAniMan) GetVideosToMatch(context.Context) (*types.MatcherResponse, error) {
	return &types.MatcherResponse{VideosToMatch: f.videos}, f.err
}

func (f *fakeAniMan) UpdateVideoScenes(_ context.Context, request *types.MatcherResultRequest) error {
	f.updated = append(f.updated, request)
	return nil
}

func (f *fakeAniMan) UploadEmptyScenes(_ context.Context, keys []types.VideoKey) error {
	f.empties = append(f.empties, keys)
	return nil
}

type fakeEpisodes struct {
	episodes []int
	err      error
}

func (f *fakeEpisodes) GetEpisodes(context.Context, int, string) ([]int, error) {
	return f.episodes, f.err
}

type fakeFinder struct {
	batches [][]int
	short   bool
	err     error
}

func (f *fakeFinder) FindScenes(_ context.Context, myAnimeListID int, dub string, episodes []int) ([]types.MatcherResultRequestItem, error) {
	f.batches = append(f.batches, episodes)
	if f.err != nil {
		return nil, f.err
	}

	items := make([]types.MatcherResultRequestItem, 0, len(episodes))
	for _, episode := range episodes {
		items = append(items, types.MatcherResultRequestItem{
			VideoKey: types.VideoKey{MyAnimeListID: myAnimeListID, Dub: dub, Episode: episode},
			Scenes:   &types.Scenes{},
		})
	}
	if f.short {
		items = items[:len(items)-1]
	}
	return items, nil
}

type fakeNotifier struct {
	waits int
}

func (f *fakeNotifier) WaitForNotification(context.Context) error {
	f.waits++
	return nil
}

func testRuntime() *config.Runtime {
	return &config.Runtime{
		MinEpisodeNumber:          2,
		EpisodesToMatch:           1,
		BatchSize:                 10,
		OperatingLogRatePerMinute: 1,
	}
}

func newTestMatcher(force bool, animan *fakeAniMan, episodes *fakeEpisodes, finder *fakeFinder, notifier *fakeNotifier) *Matcher {
	return New(testRuntime(), force, animan, episodes, finder, notifier)
}

func TestRunOnceWaitsWhenIdle(t *testing.T) {
	animan := &fakeAniMan{}
	notifier := &fakeNotifier{}
	m := newTestMatcher(false, animan, &fakeEpisodes{}, &fakeFinder{}, notifier)

	if err := m.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	if notifier.waits != 1 {
		t.Errorf("waits = %d, want 1", notifier.waits)
	}
	if len(animan.updated) != 0 || len(animan.empties) != 0 {
		t.Errorf("unexpected uploads: %v %v", animan.updated, animan.empties)
	}
}

func TestRunOnceMatchesNeighbourhood(t *testing.T) {
	animan := &fakeAniMan{videos: []types.VideoKey{
		{MyAnimeListID: 42, Dub: "dub", Episode: 5},
	}}
	finder := &fakeFinder{}
	m := newTestMatcher(false, animan, &fakeEpisodes{episodes: []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}}, finder, &fakeNotifier{})

	if err := m.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	if want := [][]int{{4, 5, 6}}; !reflect.DeepEqual(finder.batches, want) {
		t.Errorf("matched batches = %v, want %v", finder.batches, want)
	}
	if len(animan.updated) != 1 || len(animan.updated[0].Items) != 3 {
		t.Fatalf("updated = %v, want one request with three items", animan.updated)
	}
	if len(animan.empties) != 0 {
		t.Errorf("empty scenes uploaded for %v, want none", animan.empties)
	}
}

func TestRunOnceUploadsEmptyScenesOnFailure(t *testing.T) {
	videos := []types.VideoKey{{MyAnimeListID: 42, Dub: "dub", Episode: 5}}
	animan := &fakeAniMan{videos: videos}
	episodesErr := errors.New("episodes unavailable")
	m := newTestMatcher(false, animan, &fakeEpisodes{err: episodesErr}, &fakeFinder{}, &fakeNotifier{})

	if err := m.runOnce(context.Background()); !errors.Is(err, episodesErr) {
		t.Fatalf("runOnce: err = %v, want %v", err, episodesErr)
	}
	if len(animan.empties) != 1 || !reflect.DeepEqual(animan.empties[0], videos) {
		t.Errorf("empty scenes = %v, want %v", animan.empties, videos)
	}
}

func TestRunOnceSkipsShortSeries(t *testing.T) {
	videos := []types.VideoKey{{MyAnimeListID: 42, Dub: "dub", Episode: 1}}
	animan := &fakeAniMan{videos: videos}
	finder := &fakeFinder{}
	m := newTestMatcher(false, animan, &fakeEpisodes{episodes: []int{1}}, finder, &fakeNotifier{})

	if err := m.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	if len(finder.batches) != 0 {
		t.Errorf("matched batches = %v, want none", finder.batches)
	}
	if len(animan.empties) != 1 || !reflect.DeepEqual(animan.empties[0], videos) {
		t.Errorf("empty scenes = %v, want %v", animan.empties, videos)
	}
}

func TestRunOnceReportsUnavailableVideos(t *testing.T) {
	animan := &fakeAniMan{videos: []types.VideoKey{
		{MyAnimeListID: 42, Dub: "dub", Episode: 5},
		{MyAnimeListID: 42, Dub: "dub", Episode: 99},
	}}
	finder := &fakeFinder{}
	m := newTestMatcher(false, animan, &fakeEpisodes{episodes: []int{1, 2, 3, 4, 5, 6, 7}}, finder, &fakeNotifier{})

	if err := m.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	if len(finder.batches) != 0 {
		t.Errorf("matched batches = %v, want none", finder.batches)
	}
	want := []types.VideoKey{{MyAnimeListID: 42, Dub: "dub", Episode: 99}}
	if len(animan.empties) != 1 || !reflect.DeepEqual(animan.empties[0], want) {
		t.Errorf("empty scenes = %v, want %v", animan.empties, want)
	}
}

func TestMatchBatchUploadsEmptyScenesOnCountMismatch(t *testing.T) {
	animan := &fakeAniMan{}
	m := newTestMatcher(false, animan, &fakeEpisodes{}, &fakeFinder{short: true}, &fakeNotifier{})

	if err := m.matchBatch(context.Background(), 42, "dub", []int{1, 2, 3}); err != nil {
		t.Fatalf("matchBatch: %v", err)
	}
	if len(animan.updated) != 0 {
		t.Errorf("updated = %v, want none", animan.updated)
	}
	want := []types.VideoKey{
		{MyAnimeListID: 42, Dub: "dub", Episode: 1},
		{MyAnimeListID: 42, Dub: "dub", Episode: 2},
		{MyAnimeListID: 42, Dub: "dub", Episode: 3},
	}
	if len(animan.empties) != 1 || !reflect.DeepEqual(animan.empties[0], want) {
		t.Errorf("empty scenes = %v, want %v", animan.empties, want)
	}
}

func TestProcessBatchRetriesOnce(t *testing.T) {
	finder := &fakeFinder{err: errors.New("transient")}
	m := newTestMatcher(false, &fakeAniMan{}, &fakeEpisodes{}, finder, &fakeNotifier{})

	if err := m.processBatch(context.Background(), 42, "dub", []int{1, 2}); err == nil {
		t.Fatal("processBatch: expected an error")
	}
	if len(finder.batches) != batchAttempts {
		t.Errorf("attempts = %d, want %d", len(finder.batches), batchAttempts)
	}
}

func TestEpisodesToProcess(t *testing.T) {
	tests := []struct {
		name      string
		force     bool
		available []int
		videos    []types.VideoKey
		want      []int
	}{
		{
			name:      "neighbourhood around the middle",
			available: []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
			videos:    []types.VideoKey{{Episode: 5}},
			want:      []int{4, 5, 6},
		},
		{
			name:      "neighbourhood at the edge",
			available: []int{1, 2, 3, 4, 5},
			videos:    []types.VideoKey{{Episode: 1}},
			want:      []int{1, 2},
		},
		{
			name:      "overlapping neighbourhoods merge",
			available: []int{1, 2, 3, 4, 5, 6},
			videos:    []types.VideoKey{{Episode: 2}, {Episode: 4}},
			want:      []int{1, 2, 3, 4, 5},
		},
		{
			name:      "unknown episode contributes nothing",
			available: []int{1, 2, 3},
			videos:    []types.VideoKey{{Episode: 99}},
			want:      []int{},
		},
		{
			name:      "force takes the whole series",
			force:     true,
			available: []int{1, 2, 3},
			videos:    []types.VideoKey{{Episode: 2}},
			want:      []int{1, 2, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMatcher(tt.force, &fakeAniMan{}, &fakeEpisodes{}, &fakeFinder{}, &fakeNotifier{})
			got := m.episodesToProcess(context.Background(), tt.available, tt.videos)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("episodes = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEpisodesToProcessForceRefusesLongSeries(t *testing.T) {
	available := make([]int, maxForceEpisodes)
	for i := range available {
		available[i] = i + 1
	}

	m := newTestMatcher(true, &fakeAniMan{}, &fakeEpisodes{}, &fakeFinder{}, &fakeNotifier{})
	if got := m.episodesToProcess(context.Background(), available, nil); got != nil {
		t.Errorf("episodes = %v, want nil", got)
	}
}

func TestEnsureSameGroup(t *testing.T) {
	same := []types.VideoKey{
		{MyAnimeListID: 42, Dub: "dub", Episode: 1},
		{MyAnimeListID: 42, Dub: "dub", Episode: 2},
	}
	if err := ensureSameGroup(same); err != nil {
		t.Errorf("ensureSameGroup(same group): %v", err)
	}

	mixed := []types.VideoKey{
		{MyAnimeListID: 42, Dub: "dub", Episode: 1},
		{MyAnimeListID: 43, Dub: "dub", Episode: 1},
	}
	if err := ensureSameGroup(mixed); !errors.Is(err, ErrMixedGroups) {
		t.Errorf("ensureSameGroup(mixed groups): err = %v, want ErrMixedGroups", err)
	}
}

func TestSplitBatches(t *testing.T) {
	tests := []struct {
		name     string
		episodes []int
		size     int
		want     [][]int
	}{
		{name: "empty", episodes: nil, size: 5, want: nil},
		{
			name:     "single short batch",
			episodes: []int{1, 2, 3},
			size:     5,
			want:     [][]int{{1, 2, 3}},
		},
		{
			name:     "even split",
			episodes: []int{1, 2, 3, 4, 5, 6},
			size:     3,
			want:     [][]int{{1, 2, 3}, {4, 5, 6}},
		},
		{
			name:     "short tail folds into the previous batch",
			episodes: []int{1, 2, 3, 4, 5, 6, 7},
			size:     3,
			want:     [][]int{{1, 2, 3}, {4, 5, 6, 7}},
		},
		{
			name:     "tail can grow to almost twice the size",
			episodes: []int{1, 2, 3, 4, 5, 6, 7, 8},
			size:     3,
			want:     [][]int{{1, 2, 3}, {4, 5, 6, 7, 8}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitBatches(tt.episodes, tt.size); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitBatches(%v, %d) = %v, want %v", tt.episodes, tt.size, got, tt.want)
			}
		})
	}
}

func TestMissingFrom(t *testing.T) {
	videos := []types.VideoKey{
		{MyAnimeListID: 42, Dub: "dub", Episode: 1},
		{MyAnimeListID: 42, Dub: "dub", Episode: 5},
	}

	got := missingFrom([]int{1, 2, 3}, videos)
	want := []types.VideoKey{{MyAnimeListID: 42, Dub: "dub", Episode: 5}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("missingFrom = %v, want %v", got, want)
	}

	if got := missingFrom([]int{1, 5}, videos); got != nil {
		t.Errorf("missingFrom = %v, want nil", got)
	}
}
