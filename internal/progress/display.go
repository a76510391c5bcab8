package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// Display renders a single-line progress bar for the import pass
type Display struct {
	tracker  *Tracker
	interval time.Duration
	out      io.Writer
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewDisplayTo creates a progress display writing to out
func NewDisplayTo(out io.Writer, tracker *Tracker, interval time.Duration) *Display {
	return &Display{
		tracker:  tracker,
		interval: interval,
		out:      out,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start starts the progress display
func (d *Display) Start() {
	go d.displayLoop()
}

// Stop stops the display and prints the final summary. Safe to call twice.
func (d *Display) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
		<-d.doneCh
	})
}

func (d *Display) displayLoop() {
	defer close(d.doneCh)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fmt.Fprint(d.out, "\r"+d.progressLine(d.tracker.GetStatus()))
		case <-d.stopCh:
			fmt.Fprint(d.out, "\r"+d.progressLine(d.tracker.GetStatus())+"\n")
			fmt.Fprintln(d.out, strings.Join(d.summaryLines(d.tracker.GetStatus()), "\n"))
			return
		}
	}
}

// progressLine renders "Importing [=====     ] 50.0% (5/10) 12s"
func (d *Display) progressLine(status Status) string {
	percent := 0.0
	if status.TotalFiles > 0 {
		percent = float64(status.ProcessedFiles) / float64(status.TotalFiles) * 100
	}
	return fmt.Sprintf("Importing %s (%d/%d) %s",
		generateProgressBar(percent, 40),
		status.ProcessedFiles, status.TotalFiles,
		FormatDuration(status.ETA))
}

func (d *Display) summaryLines(status Status) []string {
	elapsed := status.LastUpdateTime.Sub(status.StartTime)

	lines := []string{
		"",
		titleStyle.Render("Import complete"),
		fmt.Sprintf("  Processed: %d files, %s", status.ProcessedFiles, FormatBytes(status.ProcessedBytes)),
		okStyle.Render(fmt.Sprintf("  Uploaded:  %d", status.UploadedFiles)),
		fmt.Sprintf("  Existing:  %d", status.ExistingFiles),
	}
	failed := fmt.Sprintf("  Failed:    %d", status.FailedFiles)
	if status.FailedFiles > 0 {
		failed = failStyle.Render(failed)
	}
	lines = append(lines,
		failed,
		fmt.Sprintf("  Elapsed:   %s", FormatDuration(elapsed)),
		fmt.Sprintf("  Speed:     %s", FormatSpeed(status.AverageSpeed)),
	)
	return lines
}

func generateProgressBar(percent float64, width int) string {
	if percent > 100 {
		percent = 100
	}
	if percent < 0 {
		percent = 0
	}

	filled := int(percent * float64(width) / 100)
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", width-filled)

	return fmt.Sprintf("[%s] %5.1f%%", bar, percent)
}

// IsTerminalSupported checks if stdout is a terminal
func IsTerminalSupported() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fileInfo.Mode()&os.ModeCharDevice != 0
}
