package downloader

import (
	"context"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/sirupsen/logrus"
)

const progressInterval = 500 * time.Millisecond

// YTDLPEngine retrieves media through the yt-dlp binary. The binary is
// installed on first use if missing.
type YTDLPEngine struct {
	log *logrus.Logger
}

func NewYTDLPEngine(ctx context.Context, log *logrus.Logger) (*YTDLPEngine, error) {
	if log == nil {
		log = logrus.New()
	}
	if _, err := ytdlp.Install(ctx, nil); err != nil {
		return nil, err
	}
	return &YTDLPEngine{log: log}, nil
}

func (e *YTDLPEngine) Fetch(ctx context.Context, spec FetchSpec, hook ProgressFunc) (*Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	dl := ytdlp.New().
		Format(spec.Format).
		Output(spec.OutputTemplate).
		NoPlaylist().
		ForceOverwrites().
		RestrictFilenames()

	if spec.ExtractAudio {
		dl = dl.ExtractAudio().AudioFormat(spec.AudioFormat)
		if spec.AudioQuality != "" {
			dl = dl.AudioQuality(spec.AudioQuality)
		}
	}

	var (
		mu       sync.Mutex
		hookErr  error
		lastFile string
		title    string
	)

	dl.ProgressFunc(progressInterval, func(up ytdlp.ProgressUpdate) {
		ev := translateUpdate(up)

		mu.Lock()
		if ev.Filename != "" {
			lastFile = ev.Filename
		}
		if ev.Title != "" {
			title = ev.Title
		}
		mu.Unlock()

		if err := hook(ev); err != nil {
			mu.Lock()
			if hookErr == nil {
				hookErr = err
			}
			mu.Unlock()
			cancel()
		}
	})

	res, err := dl.Run(runCtx, spec.URL)

	mu.Lock()
	defer mu.Unlock()
	if hookErr != nil {
		return nil, hookErr
	}
	if err != nil {
		return nil, err
	}

	result := &Result{OutputFile: lastFile, Title: title}
	if res != nil {
		if info, infoErr := res.GetExtractedInfo(); infoErr == nil && len(info) > 0 {
			if info[0].Filename != nil && *info[0].Filename != "" {
				result.OutputFile = *info[0].Filename
			}
			if info[0].Title != nil && *info[0].Title != "" {
				result.Title = *info[0].Title
			}
		}
	}
	return result, nil
}

func translateUpdate(up ytdlp.ProgressUpdate) ProgressEvent {
	ev := ProgressEvent{
		DownloadedBytes: int64(up.DownloadedBytes),
		TotalBytes:      int64(up.TotalBytes),
		ETA:             up.ETA(),
		Filename:        up.Filename,
	}
	if up.Status == ytdlp.ProgressStatusFinished {
		ev.Kind = EventFinished
	}
	if !up.Started.IsZero() {
		if elapsed := time.Since(up.Started).Seconds(); elapsed > 0 {
			ev.Speed = float64(up.DownloadedBytes) / elapsed
		}
	}
	if up.Info != nil && up.Info.Title != nil {
		ev.Title = *up.Info.Title
	}
	return ev
}

var _ Engine = (*YTDLPEngine)(nil)
