package scenes

import (
	"context"
	"errors"
	"math"

	"github.com/bounan/matcher/audio"
	"github.com/bounan/matcher/types"
)

// Envelope correlation tunables. The window size trades alignment
// precision against noise sensitivity; the thresholds were picked
// against the same sample set the Python matcher was tuned on.
const (
	envelopeWindowSecs = 0.25
	minLagCorrelation  = 0.6
	matchTolerance     = 0.8
	minOverlapSecs     = 10.0
)

var (
	ErrRecognizeTooFewClips = errors.New("need at least two clips to recognise scenes")
)

// Clip is one episode's match window: a wav file plus the window
// position within it.
type Clip struct {
	Path     string
	Offset   float64
	Duration float64
}

// Recognizer finds the interval of a clip that repeats across the
// neighbouring clips of the same series. Returned intervals are
// relative to the clip's window; a NaN interval means nothing matched.
type Recognizer interface {
	Recognize(ctx context.Context, clips []Clip) ([]types.Interval, error)
}

// EnvelopeRecognizer matches clips by cross-correlating their RMS
// loudness envelopes. Openings and endings reuse the same audio track
// across episodes, which survives the envelope reduction well enough
// to align without full fingerprinting.
type EnvelopeRecognizer struct{}

func (EnvelopeRecognizer) Recognize(ctx context.Context, clips []Clip) ([]types.Interval, error) {
	if len(clips) < 2 {
		return nil, ErrRecognizeTooFewClips
	}

	envelopes := make([][]float64, len(clips))
	for i, clip := range clips {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		samples, sampleRate, err := audio.ReadWav(clip.Path)
		if err != nil {
			return nil, err
		}
		envelopes[i] = normalize(envelope(window(samples, sampleRate, clip), sampleRate))
	}

	intervals := make([]types.Interval, len(clips))
	for i := range clips {
		neighbour := i + 1
		if neighbour == len(clips) {
			neighbour = i - 1
		}
		start, end, found := matchEnvelopes(envelopes[i], envelopes[neighbour])
		if !found {
			intervals[i] = types.Interval{Start: math.NaN(), End: math.NaN()}
			continue
		}
		intervals[i] = types.Interval{Start: start, End: end}
	}
	return intervals, nil
}

// window cuts the clip's match window out of the decoded samples.
func window(samples []float64, sampleRate int, clip Clip) []float64 {
	start := int(clip.Offset * float64(sampleRate))
	end := start + int(clip.Duration*float64(sampleRate))
	if start > len(samples) {
		start = len(samples)
	}
	if end > len(samples) || clip.Duration == 0 {
		end = len(samples)
	}
	return samples[start:end]
}

// envelope reduces samples to one RMS value per window.
func envelope(samples []float64, sampleRate int) []float64 {
	windowSize := int(envelopeWindowSecs * float64(sampleRate))
	if windowSize == 0 {
		windowSize = 1
	}

	env := make([]float64, 0, len(samples)/windowSize+1)
	for start := 0; start < len(samples); start += windowSize {
		end := start + windowSize
		if end > len(samples) {
			end = len(samples)
		}
		var sum float64
		for _, s := range samples[start:end] {
			sum += s * s
		}
		env = append(env, math.Sqrt(sum/float64(end-start)))
	}
	return env
}

// normalize converts an envelope to z-scores so correlation compares
// shape, not loudness.
func normalize(env []float64) []float64 {
	if len(env) == 0 {
		return env
	}
	var mean float64
	for _, v := range env {
		mean += v
	}
	mean /= float64(len(env))

	var variance float64
	for _, v := range env {
		variance += (v - mean) * (v - mean)
	}
	stddev := math.Sqrt(variance / float64(len(env)))
	if stddev == 0 {
		stddev = 1
	}

	normalized := make([]float64, len(env))
	for i, v := range env {
		normalized[i] = (v - mean) / stddev
	}
	return normalized
}

// matchEnvelopes aligns b against a and returns the longest run of a
// that stays close to b under the best alignment, in seconds relative
// to a's window.
func matchEnvelopes(a, b []float64) (start, end float64, found bool) {
	minOverlap := int(minOverlapSecs / envelopeWindowSecs)
	if len(a) < minOverlap || len(b) < minOverlap {
		return 0, 0, false
	}

	lag, correlation := bestLag(a, b, minOverlap)
	if correlation < minLagCorrelation {
		return 0, 0, false
	}

	runStart, runEnd := longestCloseRun(a, b, lag)
	if runStart == runEnd {
		return 0, 0, false
	}
	return float64(runStart) * envelopeWindowSecs, float64(runEnd) * envelopeWindowSecs, true
}

// bestLag finds the shift of b relative to a with the highest Pearson
// correlation over the overlapping region.
func bestLag(a, b []float64, minOverlap int) (int, float64) {
	bestCorrelation := math.Inf(-1)
	bestShift := 0

	for lag := -(len(b) - minOverlap); lag <= len(a)-minOverlap; lag++ {
		aFrom := max(0, lag)
		aTo := min(len(a), len(b)+lag)
		if aTo-aFrom < minOverlap {
			continue
		}
		c := correlate(a[aFrom:aTo], b[aFrom-lag:aTo-lag])
		if c > bestCorrelation {
			bestCorrelation = c
			bestShift = lag
		}
	}
	return bestShift, bestCorrelation
}

func correlate(a, b []float64) float64 {
	var sumA, sumB float64
	for i := range a {
		sumA += a[i]
		sumB += b[i]
	}
	meanA := sumA / float64(len(a))
	meanB := sumB / float64(len(b))

	var cov, varA, varB float64
	for i := range a {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}

// longestCloseRun returns the longest contiguous run of windows where
// the aligned envelopes stay within matchTolerance of each other, as
// [start, end) indexes into a.
func longestCloseRun(a, b []float64, lag int) (int, int) {
	aFrom := max(0, lag)
	aTo := min(len(a), len(b)+lag)

	bestStart, bestEnd := 0, 0
	runStart := -1
	for i := aFrom; i <= aTo; i++ {
		similar := i < aTo && math.Abs(a[i]-b[i-lag]) < matchTolerance
		if similar && runStart < 0 {
			runStart = i
		}
		if !similar && runStart >= 0 {
			if i-runStart > bestEnd-bestStart {
				bestStart, bestEnd = runStart, i
			}
			runStart = -1
		}
	}
	return bestStart, bestEnd
}
