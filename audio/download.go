package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
)

const retryDelay = time.Second

var (
	ErrSegmentFailedToDownload = errors.New("failed to download a segment")
	ErrFfmpegFailed            = errors.New("ffmpeg failed to merge the segments")
)

// Downloader fetches playlist segments with a bounded worker pool and
// merges them into a single mono 16 kHz wav file via ffmpeg.
type Downloader struct {
	client *http.Client

	threads    int
	maxRetries int
	tempDir    string
}

func NewDownloader(client *http.Client, threads, maxRetries int, tempDir string) *Downloader {
	return &Downloader{
		client: client,

		threads:    threads,
		maxRetries: maxRetries,
		tempDir:    tempDir,
	}
}

// DownloadWav downloads the segments, concatenates them in playback
// order and converts the result to wav. The caller owns the returned
// file; everything else is cleaned up before returning.
func (d *Downloader) DownloadWav(ctx context.Context, name string, segments []Segment) (string, error) {
	workDir, err := os.MkdirTemp(d.tempDir, "matcher-"+name+"-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(workDir)

	parts := make([]string, len(segments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.threads)
	for i, segment := range segments {
		i, segment := i, segment
		parts[i] = filepath.Join(workDir, fmt.Sprintf("part-%05d.ts", i))
		g.Go(func() error {
			return d.downloadSegment(gctx, segment.URI, parts[i])
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	merged := filepath.Join(workDir, "merged.ts")
	if err := concatFiles(merged, parts); err != nil {
		return "", err
	}

	wavPath := filepath.Join(d.tempDir, fmt.Sprintf("matcher-%s.wav", name))
	if err := toWav(ctx, merged, wavPath); err != nil {
		os.Remove(wavPath)
		return "", err
	}

	return wavPath, nil
}

func (d *Downloader) downloadSegment(ctx context.Context, uri, path string) error {
	var lastErr error
	for attempt := 0; attempt < d.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
		}
		lastErr = d.fetch(ctx, uri, path)
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrSegmentFailedToDownload, uri, lastErr)
}

func (d *Downloader) fetch(ctx context.Context, uri, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return err
	}
	res, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return errors.New(res.Status)
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, res.Body); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func concatFiles(dst string, parts []string) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	for _, part := range parts {
		in, err := os.Open(part)
		if err != nil {
			return err
		}
		_, err = io.Copy(out, in)
		in.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func toWav(ctx context.Context, src, dst string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-i", src,
		"-vn",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", WavSampleRate),
		dst,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %w: %s", ErrFfmpegFailed, err, output)
	}
	return nil
}
