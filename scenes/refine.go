package scenes

import (
	"math"
	"sort"

	"github.com/bounan/matcher/types"
)

// validOrNil drops intervals that are absent, contain NaN, or are
// shorter than the minimal scene length.
func validOrNil(interval *types.Interval, minLength float64) *types.Interval {
	if interval == nil ||
		math.IsNaN(interval.Start) ||
		math.IsNaN(interval.End) ||
		interval.Length() < minLength {
		return nil
	}
	return interval
}

// fixOpenings snaps openings that almost touch the video start to the
// start, and prolongs openings detected at the very end of the match
// window to the median opening length.
func fixOpenings(openings []types.Interval, totalDurations []float64, threshold float64) []types.Interval {
	lengths := make([]float64, len(openings))
	for i, opening := range openings {
		lengths[i] = opening.Length()
	}
	medianLength := median(lengths)

	fixed := make([]types.Interval, len(openings))
	for i, opening := range openings {
		switch {
		case opening.Start < threshold:
			fixed[i] = types.Interval{Start: 0, End: opening.End}
		case math.Abs(totalDurations[i]-opening.End) < threshold:
			fixed[i] = types.Interval{Start: opening.Start, End: opening.Start + medianLength}
		default:
			fixed[i] = opening
		}
	}
	return fixed
}

// fixEndings shifts endings from match-window coordinates to video
// coordinates. Ending windows are truncated from the beginning of the
// video, so each interval moves by the truncated amount.
func fixEndings(endings []types.Interval, totalDurations, truncatedDurations []float64) []types.Interval {
	fixed := make([]types.Interval, len(endings))
	for i, ending := range endings {
		offset := totalDurations[i] - truncatedDurations[i]
		fixed[i] = types.Interval{
			Start: ending.Start + offset,
			End:   ending.End + offset,
		}
	}
	return fixed
}

// combine validates the opening and the ending and derives the scene
// after the ending: when the ending stops well before the end of the
// video, the remainder becomes its own scene, otherwise the ending is
// extended to cover it.
func combine(opening, ending types.Interval, totalDuration, afterThreshold, minLength float64) types.Scenes {
	newOpening := validOrNil(&opening, minLength)
	newEnding := validOrNil(&ending, minLength)

	var sceneAfterEnding *types.Interval
	if newEnding != nil {
		if totalDuration-newEnding.End > afterThreshold {
			sceneAfterEnding = &types.Interval{Start: newEnding.End, End: totalDuration}
		} else {
			newEnding = &types.Interval{Start: newEnding.Start, End: totalDuration}
		}
	}

	return types.Scenes{
		Opening:          newOpening,
		Ending:           newEnding,
		SceneAfterEnding: validOrNil(sceneAfterEnding, minLength),
	}
}

func roundScenes(scenes types.Scenes) types.Scenes {
	return types.Scenes{
		Opening:          roundInterval(scenes.Opening),
		Ending:           roundInterval(scenes.Ending),
		SceneAfterEnding: roundInterval(scenes.SceneAfterEnding),
	}
}

func roundInterval(interval *types.Interval) *types.Interval {
	if interval == nil {
		return nil
	}
	return &types.Interval{
		Start: math.Round(interval.Start*100) / 100,
		End:   math.Round(interval.End*100) / 100,
	}
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
