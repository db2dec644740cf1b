package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/VollpenTinger/tg-bot-video-analytics/internal/models"
)

// Table names
const (
	TableVideos    = "videos"
	TableSnapshots = "video_snapshots"
)

type columnTypes struct {
	id, text, ts, counter string
}

func typesFor(d Dialect) columnTypes {
	switch d {
	case DialectMySQL:
		return columnTypes{id: "VARCHAR(36)", text: "VARCHAR(255)", ts: "DATETIME(6)", counter: "BIGINT"}
	case DialectSQLite:
		return columnTypes{id: "TEXT", text: "TEXT", ts: "TIMESTAMP", counter: "INTEGER"}
	default:
		return columnTypes{id: "UUID", text: "VARCHAR(255)", ts: "TIMESTAMP WITH TIME ZONE", counter: "BIGINT"}
	}
}

var indexes = []struct{ name, table, column string }{
	{"idx_snapshots_video_id", TableSnapshots, "video_id"},
	{"idx_snapshots_created_at", TableSnapshots, "created_at"},
	{"idx_videos_creator", TableVideos, "creator_id"},
	{"idx_videos_created_at", TableVideos, "video_created_at"},
}

// schemaStatements returns the idempotent DDL for the dialect. MySQL has
// no CREATE INDEX IF NOT EXISTS, so its indexes are declared inline.
func schemaStatements(d Dialect) []string {
	t := typesFor(d)

	inline := func(table string) string {
		if d != DialectMySQL {
			return ""
		}
		var b strings.Builder
		for _, idx := range indexes {
			if idx.table == table {
				fmt.Fprintf(&b, ",\n\tINDEX %s (%s)", idx.name, idx.column)
			}
		}
		return b.String()
	}

	videos := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS videos (
	id %[1]s PRIMARY KEY,
	creator_id %[2]s,
	video_created_at %[3]s NULL,
	views_count %[4]s,
	likes_count %[4]s,
	comments_count %[4]s,
	reports_count %[4]s,
	created_at %[3]s NULL,
	updated_at %[3]s NULL%[5]s
)`, t.id, t.text, t.ts, t.counter, inline(TableVideos))

	snapshots := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS video_snapshots (
	id %[1]s PRIMARY KEY,
	video_id %[1]s REFERENCES videos(id) ON DELETE CASCADE,
	views_count %[2]s,
	likes_count %[2]s,
	comments_count %[2]s,
	reports_count %[2]s,
	delta_views_count %[2]s,
	delta_likes_count %[2]s,
	delta_comments_count %[2]s,
	delta_reports_count %[2]s,
	created_at %[3]s NULL,
	updated_at %[3]s NULL%[4]s
)`, t.id, t.counter, t.ts, inline(TableSnapshots))

	stmts := []string{videos, snapshots}
	if d != DialectMySQL {
		for _, idx := range indexes {
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", idx.name, idx.table, idx.column))
		}
	}
	return stmts
}

// upsertClause renders the conflict handling for an insert keyed on id
func upsertClause(d Dialect, columns []string) string {
	var sets []string
	for _, c := range columns {
		if c == "id" || c == "created_at" {
			continue
		}
		if d == DialectMySQL {
			sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", c, c))
		} else {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
	}

	if d == DialectMySQL {
		return "ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	return "ON CONFLICT (id) DO UPDATE SET " + strings.Join(sets, ", ")
}

// Stats counts loaded videos and snapshots
func (db *DB) Stats(ctx context.Context) (models.DatabaseStats, error) {
	var stats models.DatabaseStats

	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM videos").Scan(&stats.Videos); err != nil {
		return stats, fmt.Errorf("failed to count videos: %w", err)
	}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM video_snapshots").Scan(&stats.Snapshots); err != nil {
		return stats, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return stats, nil
}

// RecentVideos returns the newest videos by upload date
func (db *DB) RecentVideos(ctx context.Context, limit int) ([]models.Video, error) {
	rows, err := db.QueryContext(ctx, db.Rebind(`
		SELECT id, creator_id, views_count, likes_count, video_created_at
		FROM videos
		ORDER BY video_created_at DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent videos: %w", err)
	}
	defer rows.Close()

	var videos []models.Video
	for rows.Next() {
		var v models.Video
		var creator sql.NullString
		var createdAt sql.NullTime
		if err := rows.Scan(&v.ID, &creator, &v.ViewsCount, &v.LikesCount, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		v.CreatorID = creator.String
		if createdAt.Valid {
			v.VideoCreatedAt = createdAt.Time
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}
