package database

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/VollpenTinger/tg-bot-video-analytics/internal/models"
)

var videoColumns = []string{
	"id", "creator_id", "video_created_at", "views_count", "likes_count",
	"comments_count", "reports_count", "created_at", "updated_at",
}

var snapshotColumns = []string{
	"id", "video_id", "views_count", "likes_count", "comments_count", "reports_count",
	"delta_views_count", "delta_likes_count", "delta_comments_count", "delta_reports_count",
	"created_at", "updated_at",
}

// DecodeDataset parses the {"videos": [...]} import layout
func DecodeDataset(r io.Reader) (*models.VideoDataset, error) {
	var ds models.VideoDataset
	if err := json.NewDecoder(r).Decode(&ds); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}
	return &ds, nil
}

// LoadDataset upserts every video and its snapshots in one transaction.
// A video that fails validation or insertion is skipped without affecting
// the others.
func (db *DB) LoadDataset(ctx context.Context, ds *models.VideoDataset) (*models.ImportReport, error) {
	report := &models.ImportReport{}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin import transaction: %w", err)
	}
	defer tx.Rollback()

	videoSQL := db.insertStatement(TableVideos, videoColumns)
	snapshotSQL := db.insertStatement(TableSnapshots, snapshotColumns)

	for i := range ds.Videos {
		video := &ds.Videos[i]

		if err := validateVideo(video); err != nil {
			report.Skipped = append(report.Skipped, fmt.Sprintf("%s: %v", video.ID, err))
			log.Printf("⚠️  Skipping video %s: %v", video.ID, err)
			continue
		}

		if _, err := tx.ExecContext(ctx, "SAVEPOINT video_import"); err != nil {
			return nil, fmt.Errorf("failed to create savepoint: %w", err)
		}

		err := func() error {
			if _, err := tx.ExecContext(ctx, videoSQL,
				video.ID, video.CreatorID, nullTime(video.VideoCreatedAt),
				video.ViewsCount, video.LikesCount, video.CommentsCount, video.ReportsCount,
				nullTime(video.CreatedAt), nullTime(video.UpdatedAt),
			); err != nil {
				return fmt.Errorf("insert video: %w", err)
			}

			for _, s := range video.Snapshots {
				if _, err := tx.ExecContext(ctx, snapshotSQL,
					s.ID, s.VideoID,
					s.ViewsCount, s.LikesCount, s.CommentsCount, s.ReportsCount,
					s.DeltaViewsCount, s.DeltaLikesCount, s.DeltaCommentsCount, s.DeltaReportsCount,
					nullTime(s.CreatedAt), nullTime(s.UpdatedAt),
				); err != nil {
					return fmt.Errorf("insert snapshot %s: %w", s.ID, err)
				}
			}
			return nil
		}()

		if err != nil {
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT video_import"); rbErr != nil {
				return nil, fmt.Errorf("failed to roll back video %s: %w", video.ID, rbErr)
			}
			report.Skipped = append(report.Skipped, fmt.Sprintf("%s: %v", video.ID, err))
			log.Printf("❌ Failed to load video %s: %v", video.ID, err)
			continue
		}

		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT video_import"); err != nil {
			return nil, fmt.Errorf("failed to release savepoint: %w", err)
		}
		report.VideosLoaded++
		report.SnapshotsLoaded += len(video.Snapshots)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit import: %w", err)
	}

	log.Printf("✅ Import finished: %d videos, %d snapshots, %d skipped",
		report.VideosLoaded, report.SnapshotsLoaded, len(report.Skipped))
	return report, nil
}

// validateVideo checks IDs and fills snapshot video_id from the parent
func validateVideo(v *models.Video) error {
	if _, err := uuid.Parse(v.ID); err != nil {
		return fmt.Errorf("invalid video id: %w", err)
	}
	for i := range v.Snapshots {
		s := &v.Snapshots[i]
		if _, err := uuid.Parse(s.ID); err != nil {
			return fmt.Errorf("invalid snapshot id %q: %w", s.ID, err)
		}
		if s.VideoID == "" {
			s.VideoID = v.ID
			continue
		}
		if !sameUUID(s.VideoID, v.ID) {
			return fmt.Errorf("snapshot %s belongs to video %s", s.ID, s.VideoID)
		}
	}
	return nil
}

func sameUUID(a, b string) bool {
	ua, errA := uuid.Parse(a)
	ub, errB := uuid.Parse(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(a, b)
	}
	return ua == ub
}

func (db *DB) insertStatement(table string, columns []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) %s",
		table, strings.Join(columns, ", "), placeholders, upsertClause(db.Dialect, columns))
	return db.Rebind(query)
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
