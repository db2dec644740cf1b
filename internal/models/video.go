package models

import "time"

// Video is the latest known statistics for one video
type Video struct {
	ID             string          `json:"id"`
	CreatorID      string          `json:"creator_id"`
	VideoCreatedAt time.Time       `json:"video_created_at"`
	ViewsCount     int64           `json:"views_count"`
	LikesCount     int64           `json:"likes_count"`
	CommentsCount  int64           `json:"comments_count"`
	ReportsCount   int64           `json:"reports_count"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Snapshots      []VideoSnapshot `json:"snapshots,omitempty"`
}

// VideoSnapshot is a point-in-time capture of a video's counters together
// with the change since the previous snapshot.
type VideoSnapshot struct {
	ID                 string    `json:"id"`
	VideoID            string    `json:"video_id"`
	ViewsCount         int64     `json:"views_count"`
	LikesCount         int64     `json:"likes_count"`
	CommentsCount      int64     `json:"comments_count"`
	ReportsCount       int64     `json:"reports_count"`
	DeltaViewsCount    int64     `json:"delta_views_count"`
	DeltaLikesCount    int64     `json:"delta_likes_count"`
	DeltaCommentsCount int64     `json:"delta_comments_count"`
	DeltaReportsCount  int64     `json:"delta_reports_count"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// VideoDataset is the import file layout: {"videos": [...]}
type VideoDataset struct {
	Videos []Video `json:"videos"`
}

// DatabaseStats summarizes what is loaded
type DatabaseStats struct {
	Videos    int64 `json:"videos"`
	Snapshots int64 `json:"snapshots"`
}

// ImportReport is the outcome of loading a dataset
type ImportReport struct {
	VideosLoaded    int      `json:"videos_loaded"`
	SnapshotsLoaded int      `json:"snapshots_loaded"`
	Skipped         []string `json:"skipped,omitempty"` // video IDs rejected with reason
}
