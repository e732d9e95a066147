package tiles

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// Progress is one fetch progress report. Percent is -1 when the server did
// not declare a content length; Message is always display-ready.
type Progress struct {
	Percent   int    `json:"percent"`
	BytesRead int64  `json:"bytesRead"`
	Total     int64  `json:"total"`
	Message   string `json:"message"`
}

// FetchResult is the typed outcome of an archive fetch: either a loaded
// archive or an error, never both.
type FetchResult struct {
	Archive *Archive
	Err     error
}

const fetchChunkSize = 64 * 1024

// FetchArchive downloads an MBTiles file and opens it. It returns
// immediately; progress events stream on the first channel and the single
// result arrives on the second. Loading success is decoupled from progress
// reporting: a consumer may ignore either channel (progress sends never
// block).
func FetchArchive(ctx context.Context, client *http.Client, url string, log *slog.Logger) (<-chan Progress, <-chan FetchResult) {
	progressCh := make(chan Progress, 16)
	resultCh := make(chan FetchResult, 1)

	go func() {
		defer close(progressCh)
		defer close(resultCh)

		buf, err := download(ctx, client, url, progressCh)
		if err != nil {
			resultCh <- FetchResult{Err: err}
			return
		}

		archive, err := OpenBytes(buf, log)
		if err != nil {
			resultCh <- FetchResult{Err: err}
			return
		}
		resultCh <- FetchResult{Archive: archive}
	}()

	return progressCh, resultCh
}

func download(ctx context.Context, client *http.Client, url string, progressCh chan<- Progress) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid archive URL: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("archive fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("archive fetch failed: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	total := resp.ContentLength
	var out bytes.Buffer
	if total > 0 {
		out.Grow(int(total))
	}

	chunk := make([]byte, fetchChunkSize)
	var read int64
	for {
		n, err := resp.Body.Read(chunk)
		if n > 0 {
			out.Write(chunk[:n])
			read += int64(n)
			report(progressCh, read, total)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("archive fetch interrupted: %w", err)
		}
	}
	return out.Bytes(), nil
}

// report sends a progress event without blocking; stale events are dropped
// in favor of newer ones.
func report(ch chan<- Progress, read, total int64) {
	var p Progress
	if total > 0 {
		pct := int(read * 100 / total)
		p = Progress{
			Percent:   pct,
			BytesRead: read,
			Total:     total,
			Message:   fmt.Sprintf("Loading map: %d%%", pct),
		}
	} else {
		p = Progress{
			Percent:   -1,
			BytesRead: read,
			Total:     -1,
			Message:   fmt.Sprintf("Loading map: %d MB processed", read/(1024*1024)),
		}
	}
	select {
	case ch <- p:
	default:
	}
}
