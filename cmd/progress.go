package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/JakeFAU/crawldir/internal/crawler"
)

// progressConfig determines if and how the spinner is displayed.
type progressConfig struct {
	// Enabled is false with --quiet or when the writer is not a terminal.
	Enabled bool
	Writer  io.Writer
}

func newProgressConfig(w io.Writer, quiet bool) progressConfig {
	enabled := false
	if f, ok := w.(*os.File); ok && !quiet {
		enabled = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return progressConfig{Enabled: enabled, Writer: w}
}

// progressRecorder advances a spinner once per finished node. A nil
// *progressRecorder is valid and does nothing.
type progressRecorder struct {
	mu     sync.Mutex
	bar    *progressbar.ProgressBar
	desc   string
	failed int
}

func newProgressRecorder(cfg progressConfig, description string) *progressRecorder {
	if !cfg.Enabled {
		return nil
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(cfg.Writer),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	return &progressRecorder{bar: bar, desc: description}
}

// Record implements crawler.Recorder.
func (p *progressRecorder) Record(_ context.Context, outcome crawler.Outcome) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if outcome.Status == crawler.StatusFailed {
		p.failed++
		p.bar.Describe(fmt.Sprintf("%s (%d failed)", p.desc, p.failed))
	}
	if err := p.bar.Add(1); err != nil {
		return fmt.Errorf("advance spinner: %w", err)
	}
	return nil
}

// Finish clears the spinner.
func (p *progressRecorder) Finish() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.bar.Finish()
}
