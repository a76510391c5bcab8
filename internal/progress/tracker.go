package progress

import (
	"fmt"
	"sync"
	"time"
)

// Status represents the current import status
type Status struct {
	TotalFiles     int64
	ProcessedFiles int64
	UploadedFiles  int64
	ExistingFiles  int64
	FailedFiles    int64
	TotalBytes     int64
	ProcessedBytes int64
	StartTime      time.Time
	LastUpdateTime time.Time
	CurrentSpeed   float64 // bytes/second over the last few seconds
	AverageSpeed   float64 // bytes/second since start
	ETA            time.Duration
}

// Tracker tracks import progress
type Tracker struct {
	mu           sync.RWMutex
	status       Status
	speedSamples []speedSample
	maxSamples   int
	now          func() time.Time
}

type speedSample struct {
	timestamp time.Time
	bytes     int64
}

// NewTracker creates a new progress tracker
func NewTracker() *Tracker {
	return newTracker(time.Now)
}

func newTracker(now func() time.Time) *Tracker {
	start := now()
	return &Tracker{
		status: Status{
			StartTime:      start,
			LastUpdateTime: start,
		},
		speedSamples: make([]speedSample, 0, 60),
		maxSamples:   60,
		now:          now,
	}
}

// SetTotal sets the total number of files and bytes and restarts the clock
func (t *Tracker) SetTotal(files, bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.TotalFiles = files
	t.status.TotalBytes = bytes
	t.status.StartTime = t.now()
}

// AddUploaded records a successfully uploaded file
func (t *Tracker) AddUploaded(bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.UploadedFiles++
	t.status.ProcessedFiles++
	t.status.ProcessedBytes += bytes
	t.updateSpeed(bytes)
}

// AddExisting records a file that was already present remotely
func (t *Tracker) AddExisting(bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.ExistingFiles++
	t.status.ProcessedFiles++
	t.status.ProcessedBytes += bytes
	t.updateSpeed(bytes)
}

// AddFailed records a file that could not be imported
func (t *Tracker) AddFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.FailedFiles++
	t.status.ProcessedFiles++
}

// updateSpeed must be called with lock held
func (t *Tracker) updateSpeed(bytes int64) {
	now := t.now()

	t.speedSamples = append(t.speedSamples, speedSample{
		timestamp: now,
		bytes:     bytes,
	})
	if len(t.speedSamples) > t.maxSamples {
		t.speedSamples = t.speedSamples[1:]
	}

	t.calculateCurrentSpeed(now)
	t.calculateAverageSpeed(now)
	t.calculateETA()

	t.status.LastUpdateTime = now
}

// calculateCurrentSpeed uses samples from the last 5 seconds
func (t *Tracker) calculateCurrentSpeed(now time.Time) {
	if len(t.speedSamples) < 2 {
		t.status.CurrentSpeed = 0
		return
	}

	cutoff := now.Add(-5 * time.Second)
	var recentBytes int64
	var firstSample *speedSample

	for i := len(t.speedSamples) - 1; i >= 0; i-- {
		sample := &t.speedSamples[i]
		if sample.timestamp.Before(cutoff) {
			break
		}
		recentBytes += sample.bytes
		firstSample = sample
	}

	if firstSample != nil {
		if d := now.Sub(firstSample.timestamp); d > 0 {
			t.status.CurrentSpeed = float64(recentBytes) / d.Seconds()
		}
	}
}

func (t *Tracker) calculateAverageSpeed(now time.Time) {
	elapsed := now.Sub(t.status.StartTime)
	if elapsed > 0 {
		t.status.AverageSpeed = float64(t.status.ProcessedBytes) / elapsed.Seconds()
	}
}

// calculateETA estimates from the file rate, since byte totals skew towards large videos
func (t *Tracker) calculateETA() {
	elapsed := t.now().Sub(t.status.StartTime)
	if t.status.TotalFiles == 0 || t.status.ProcessedFiles == 0 || elapsed <= 0 {
		t.status.ETA = 0
		return
	}

	remaining := t.status.TotalFiles - t.status.ProcessedFiles
	if remaining <= 0 {
		t.status.ETA = 0
		return
	}

	perFile := elapsed / time.Duration(t.status.ProcessedFiles)
	t.status.ETA = perFile * time.Duration(remaining)
}

// GetStatus returns the current status (thread-safe)
func (t *Tracker) GetStatus() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.status
}

// GetProgressPercent returns the file progress percentage
func (t *Tracker) GetProgressPercent() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.status.TotalFiles == 0 {
		return 0
	}

	return float64(t.status.ProcessedFiles) / float64(t.status.TotalFiles) * 100
}

// FormatSpeed formats speed in human readable format
func FormatSpeed(bytesPerSecond float64) string {
	return FormatBytes(int64(bytesPerSecond)) + "/s"
}

// FormatBytes formats bytes in human readable format
func FormatBytes(bytes int64) string {
	switch {
	case bytes < 1024:
		return fmt.Sprintf("%d B", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	case bytes < 1024*1024*1024:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	default:
		return fmt.Sprintf("%.1f GB", float64(bytes)/(1024*1024*1024))
	}
}

// FormatDuration formats duration in human readable format
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "--"
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
