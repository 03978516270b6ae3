// Package store provides PostgreSQL persistence for scraped videos and
// their finished analyses. Storage is optional: the pipeline runs fine
// without a database and treats save failures as non-fatal.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cliplens/cliplens/internal/types"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// EnsureSchema creates the tables if they do not exist yet.
func (db *DB) EnsureSchema(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS videos (
			id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id     TEXT NOT NULL,
			platform_id TEXT NOT NULL,
			source_url  TEXT NOT NULL,
			metadata    JSONB NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, platform_id)
		);
		CREATE TABLE IF NOT EXISTS analyses (
			video_id   UUID PRIMARY KEY REFERENCES videos(id) ON DELETE CASCADE,
			analysis   JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// VideoRecord is one stored video with its analysis, if any.
type VideoRecord struct {
	ID        uuid.UUID            `json:"id"`
	UserID    string               `json:"user_id"`
	Metadata  *types.VideoMetadata `json:"metadata"`
	Analysis  json.RawMessage      `json:"analysis,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// SaveVideo upserts a scraped video for a user and returns the stored row's
// ID. Re-analyzing the same post refreshes the metadata instead of creating
// a duplicate.
func (db *DB) SaveVideo(ctx context.Context, userID string, meta *types.VideoMetadata) (uuid.UUID, error) {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	platformID := meta.VideoID
	if platformID == "" {
		// Pages scraped without an ID key on the source URL instead.
		platformID = meta.SourceURL
	}

	var id uuid.UUID
	err = db.pool.QueryRow(ctx,
		`INSERT INTO videos (user_id, platform_id, source_url, metadata)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, platform_id)
		 DO UPDATE SET source_url = $3, metadata = $4
		 RETURNING id`,
		SanitizeUserID(userID), platformID, meta.SourceURL, metaJSON,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to save video: %w", err)
	}
	return id, nil
}

// SaveAnalysis upserts the finished analysis JSON for a stored video.
func (db *DB) SaveAnalysis(ctx context.Context, videoID uuid.UUID, analysisJSON []byte) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO analyses (video_id, analysis)
		 VALUES ($1, $2)
		 ON CONFLICT (video_id) DO UPDATE SET analysis = $2, created_at = NOW()`,
		videoID, analysisJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

// GetVideo retrieves one stored video, scoped to its owner. Returns nil
// when the row does not exist or belongs to someone else.
func (db *DB) GetVideo(ctx context.Context, userID string, videoID uuid.UUID) (*VideoRecord, error) {
	var rec VideoRecord
	var metaJSON []byte
	err := db.pool.QueryRow(ctx,
		`SELECT v.id, v.user_id, v.metadata, a.analysis, v.created_at
		 FROM videos v
		 LEFT JOIN analyses a ON a.video_id = v.id
		 WHERE v.id = $1 AND v.user_id = $2`,
		videoID, SanitizeUserID(userID),
	).Scan(&rec.ID, &rec.UserID, &metaJSON, &rec.Analysis, &rec.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get video: %w", err)
	}

	if len(metaJSON) > 0 {
		var meta types.VideoMetadata
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			return nil, fmt.Errorf("failed to decode stored metadata: %w", err)
		}
		rec.Metadata = &meta
	}
	return &rec, nil
}

// ListVideos retrieves a user's stored videos, newest first.
func (db *DB) ListVideos(ctx context.Context, userID string, limit int) ([]VideoRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.pool.Query(ctx,
		`SELECT v.id, v.user_id, v.metadata, a.analysis, v.created_at
		 FROM videos v
		 LEFT JOIN analyses a ON a.video_id = v.id
		 WHERE v.user_id = $1
		 ORDER BY v.created_at DESC LIMIT $2`,
		SanitizeUserID(userID), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer rows.Close()

	var records []VideoRecord
	for rows.Next() {
		var rec VideoRecord
		var metaJSON []byte
		if err := rows.Scan(&rec.ID, &rec.UserID, &metaJSON, &rec.Analysis, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		if len(metaJSON) > 0 {
			var meta types.VideoMetadata
			if err := json.Unmarshal(metaJSON, &meta); err != nil {
				return nil, fmt.Errorf("failed to decode stored metadata: %w", err)
			}
			rec.Metadata = &meta
		}
		records = append(records, rec)
	}
	return records, nil
}

var userIDUnsafe = regexp.MustCompile(`[^a-z0-9_-]+`)

// SanitizeUserID folds an arbitrary user identifier into a safe storage key:
// lowercase, limited charset, bounded length. An empty result falls back to
// "anonymous".
func SanitizeUserID(userID string) string {
	id := strings.ToLower(strings.TrimSpace(userID))
	id = userIDUnsafe.ReplaceAllString(id, "-")
	id = strings.Trim(id, "-")
	if len(id) > 64 {
		id = id[:64]
	}
	if id == "" {
		return "anonymous"
	}
	return id
}

// UserScope binds a store to one user so it satisfies the pipeline's
// archiver contract.
type UserScope struct {
	db     *DB
	userID string
}

// ForUser scopes the store to a user.
func (db *DB) ForUser(userID string) *UserScope {
	return &UserScope{db: db, userID: userID}
}

// SaveVideo implements the pipeline archiver.
func (s *UserScope) SaveVideo(ctx context.Context, meta *types.VideoMetadata) (uuid.UUID, error) {
	return s.db.SaveVideo(ctx, s.userID, meta)
}

// SaveAnalysis implements the pipeline archiver.
func (s *UserScope) SaveAnalysis(ctx context.Context, videoID uuid.UUID, analysisJSON []byte) error {
	return s.db.SaveAnalysis(ctx, videoID, analysisJSON)
}
