package main

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/schollz/progressbar/v3"
)

// SeedBar tracks deterministic bulk-load progress on stderr.
type SeedBar struct {
	bar *progressbar.ProgressBar
}

// NewSeedBar creates a progress bar sized for the fixture row count.
func NewSeedBar(total int64, description string) *SeedBar {
	bar := progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("rows"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
	)
	return &SeedBar{bar: bar}
}

// Add advances the bar by n rows.
func (b *SeedBar) Add(n int) {
	_ = b.bar.Add(n)
}

// Finish completes the bar even when the load aborted early.
func (b *SeedBar) Finish() {
	_ = b.bar.Finish()
}

// Spinner shows indeterminate progress on stderr.
type Spinner struct {
	inner *spinner.Spinner
}

// NewSpinner creates a stopped spinner with the given message.
func NewSpinner(message string) *Spinner {
	s := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = os.Stderr
	return &Spinner{inner: s}
}

// Start begins the animation.
func (s *Spinner) Start() { s.inner.Start() }

// Stop halts the animation and clears the line.
func (s *Spinner) Stop() { s.inner.Stop() }
