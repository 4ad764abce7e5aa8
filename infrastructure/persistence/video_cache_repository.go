package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"linkhealth/domain/model"
	"linkhealth/infrastructure/logger"
)

// EnsureVideoCacheSchema creates the table for caching YouTube videos if not exists
func EnsureVideoCacheSchema(db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS youtube_video_cache (
        video_id TEXT PRIMARY KEY,
        data JSONB NOT NULL,
        expires_at TIMESTAMPTZ NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL
    )`
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("create youtube_video_cache table: %w", err)
	}

	// Helpful index to purge expired rows
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_youtube_video_cache_expires_at ON youtube_video_cache(expires_at)`); err != nil {
		logger.GetLogger().WithField("error", err).Warn("failed creating idx_youtube_video_cache_expires_at")
	}
	return nil
}

// VideoCacheRepository caches video metadata in PostgreSQL as JSONB rows with an expiry.
type VideoCacheRepository struct{ db *sql.DB }

func NewVideoCacheRepository(db *sql.DB) *VideoCacheRepository {
	return &VideoCacheRepository{db: db}
}

// GetVideo returns a cached video, or nil when absent or expired.
func (r *VideoCacheRepository) GetVideo(ctx context.Context, videoID string) (*model.YouTubeVideo, error) {
	row := r.db.QueryRowContext(ctx, `SELECT data, expires_at FROM youtube_video_cache WHERE video_id=$1`, videoID)
	var raw []byte
	var expiresAt time.Time
	if err := row.Scan(&raw, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if time.Now().After(expiresAt) {
		return nil, nil
	}
	var v model.YouTubeVideo
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// SetVideo stores or updates the cache row with TTL from now
func (r *VideoCacheRepository) SetVideo(ctx context.Context, video *model.YouTubeVideo, ttl time.Duration) error {
	raw, err := json.Marshal(video)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	q := `INSERT INTO youtube_video_cache(video_id, data, expires_at, updated_at)
          VALUES ($1,$2,$3,$4)
          ON CONFLICT (video_id) DO UPDATE SET data=EXCLUDED.data, expires_at=EXCLUDED.expires_at, updated_at=EXCLUDED.updated_at`
	_, err = r.db.ExecContext(ctx, q, video.ID, raw, now.Add(ttl), now)
	return err
}

// PurgeExpired deletes expired rows and returns how many were removed.
func (r *VideoCacheRepository) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM youtube_video_cache WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
