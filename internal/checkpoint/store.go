package checkpoint

import (
	"time"
)

// FileStatus represents the import status of one file
type FileStatus string

const (
	StatusCompleted FileStatus = "completed"
	StatusFailed    FileStatus = "failed"
)

// FileRecord represents a file record in the checkpoint store
type FileRecord struct {
	SiteID    int        `json:"site_id"`
	Path      string     `json:"path"`
	Size      int64      `json:"size"`
	Status    FileStatus `json:"status"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"last_error,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Store defines the interface for checkpoint persistence
type Store interface {
	GetFile(siteID int, path string) (*FileRecord, error)
	SaveFile(record *FileRecord) error
	ListFailedFiles(siteID int) ([]*FileRecord, error)
	CountByStatus(siteID int, status FileStatus) (int64, error)

	Close() error
}
