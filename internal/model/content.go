package model

import "time"

// ContentRef identifies materialized artifact content stored in a ContentStore.
type ContentRef struct {
	Backend    string    `json:"backend"` // "local"
	Path       string    `json:"path"`    // relative path under configured root
	RunID      int64     `json:"run_id"`
	ArtifactID string    `json:"artifact_id"`
	Size       int       `json:"size"`
	SHA256     string    `json:"sha256"`
	UpdatedAt  time.Time `json:"updated_at"`
}
