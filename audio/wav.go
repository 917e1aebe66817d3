package audio

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// WavSampleRate is the rate every merged wav file is resampled to.
const WavSampleRate = 16000

var (
	ErrWavFailedToParse = errors.New("failed to parse the wav file")
	ErrWavUnsupported   = errors.New("unsupported wav format")
)

// ReadWav decodes a PCM wav file into normalised samples in [-1, 1].
// Only the 16-bit mono files produced by the downloader are supported.
func ReadWav(path string) ([]float64, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s: %w", ErrWavFailedToParse, path, err)
	}
	if decoder.NumChans != 1 || decoder.BitDepth != 16 {
		return nil, 0, fmt.Errorf("%w: %s: want 16-bit mono, got %d-bit %d-channel",
			ErrWavUnsupported, path, decoder.BitDepth, decoder.NumChans,
		)
	}

	samples := make([]float64, len(buf.Data))
	for i, sample := range buf.Data {
		samples[i] = float64(sample) / 32768
	}
	return samples, int(decoder.SampleRate), nil
}
