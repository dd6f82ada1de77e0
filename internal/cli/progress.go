package cli

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/Veraticus/spice-import/internal/importer"
	"github.com/Veraticus/spice-import/internal/modelstore"
)

// Subscriber is a latest-value stream such as importer.ProgressStream.
type Subscriber[T any] interface {
	Subscribe() (<-chan T, func())
}

// importStages is the number of bar steps from validation to the preview.
const importStages = 4

// ImportRenderer draws the stages of StartImport on a progress bar until it is stopped.
type ImportRenderer struct {
	writer      io.Writer
	bar         *progressbar.ProgressBar
	done        chan struct{}
	unsubscribe func()
}

// RenderImportProgress subscribes to src and renders every state it sees on w.
func RenderImportProgress(w io.Writer, src Subscriber[importer.Progress]) *ImportRenderer {
	r := &ImportRenderer{
		writer: w,
		done:   make(chan struct{}),
		bar: progressbar.NewOptions(importStages,
			progressbar.OptionSetWriter(w),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionSetDescription("[cyan][bold]Preparing import...[reset]"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				if _, err := fmt.Fprintln(w); err != nil {
					slog.Warn("Failed to write newline after progress bar", "error", err)
				}
			}),
		),
	}

	ch, unsubscribe := src.Subscribe()
	r.unsubscribe = unsubscribe
	go func() {
		defer close(r.done)
		for p := range ch {
			r.update(p)
		}
	}()
	return r
}

func (r *ImportRenderer) update(p importer.Progress) {
	step := importStep(p)
	if step <= 0 {
		return
	}
	r.bar.Describe(p.String())
	if err := r.bar.Set(min(step, importStages)); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
}

func importStep(p importer.Progress) int {
	switch p.(type) {
	case importer.Validating:
		return 1
	case importer.Deduplicating:
		return 2
	case importer.Categorizing:
		return 3
	case importer.AwaitingConfirmation, importer.Saving, importer.Completed:
		return importStages
	default:
		return 0
	}
}

// Stop ends the subscription and waits for the last state to be drawn.
func (r *ImportRenderer) Stop() {
	r.unsubscribe()
	<-r.done
	if !r.bar.IsFinished() {
		_ = r.bar.Finish()
	}
}

// DownloadRenderer draws the byte progress of one model download.
type DownloadRenderer struct {
	writer      io.Writer
	bar         *progressbar.ProgressBar
	done        chan struct{}
	unsubscribe func()
	modelID     string
}

// RenderDownloadProgress renders progress events of modelID from src on w.
func RenderDownloadProgress(w io.Writer, src Subscriber[modelstore.Progress], modelID string) *DownloadRenderer {
	r := &DownloadRenderer{writer: w, modelID: modelID, done: make(chan struct{})}
	ch, unsubscribe := src.Subscribe()
	r.unsubscribe = unsubscribe
	go func() {
		defer close(r.done)
		for p := range ch {
			if p.ModelID != modelID {
				continue
			}
			r.update(p)
		}
	}()
	return r
}

func (r *DownloadRenderer) update(p modelstore.Progress) {
	if r.bar == nil {
		total := p.Total
		if total <= 0 {
			total = -1
		}
		r.bar = progressbar.NewOptions64(total,
			progressbar.OptionSetWriter(r.writer),
			progressbar.OptionSetDescription("Downloading "+r.modelID),
			progressbar.OptionShowBytes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionOnCompletion(func() {
				_, _ = fmt.Fprintln(r.writer)
			}),
		)
	}
	if err := r.bar.Set64(p.Downloaded); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
	if p.Done && p.Err == nil {
		_ = r.bar.Finish()
	}
}

// Stop ends the subscription.
func (r *DownloadRenderer) Stop() {
	r.unsubscribe()
	<-r.done
}
