package types

import "fmt"

// VideoKey identifies a single episode of a title in a given dub.
// The JSON shape is shared with the AniMan and LoanAPI lambdas.
type VideoKey struct {
	MyAnimeListID int    `json:"myAnimeListId"`
	Dub           string `json:"dub"`
	Episode       int    `json:"episode"`
}

func (k VideoKey) String() string {
	return fmt.Sprintf("%d/%s/%d", k.MyAnimeListID, k.Dub, k.Episode)
}

// Interval is a half-open [Start, End) range in seconds from the
// beginning of the video.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (i Interval) Length() float64 {
	return i.End - i.Start
}

// Scenes holds the recognised scenes of one episode. A nil field means
// the scene was not found.
type Scenes struct {
	Opening          *Interval `json:"opening"`
	Ending           *Interval `json:"ending"`
	SceneAfterEnding *Interval `json:"sceneAfterEnding"`
}

// MatcherResponse is the payload returned by the GetSeriesToMatch
// lambda.
type MatcherResponse struct {
	VideosToMatch []VideoKey `json:"videosToMatch"`
}

// MatcherResultRequestItem carries the scenes found for one video.
// Scenes is nil when matching produced nothing for the video.
type MatcherResultRequestItem struct {
	VideoKey VideoKey `json:"videoKey"`
	Scenes   *Scenes  `json:"scenes"`
}

// MatcherResultRequest is the payload accepted by the
// UpdateVideoScenes lambda.
type MatcherResultRequest struct {
	Items []MatcherResultRequestItem `json:"items"`
}
