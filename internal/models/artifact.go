package models

import "time"

// Artifact is a converted file mirrored into the local converted directory.
type Artifact struct {
	ID           int64     `json:"id"`
	FileName     string    `json:"file_name"`
	StoredPath   string    `json:"-"`
	URL          string    `json:"url"`
	RemoteURL    string    `json:"remote_url"`
	SourceExt    string    `json:"source_ext"`
	TargetFormat string    `json:"target_format"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
	// ExpiresAt is zero when the artifact is kept indefinitely.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

func (a *Artifact) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && !now.Before(a.ExpiresAt)
}
