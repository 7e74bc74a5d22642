package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"factmill/manager-go/internal/utils"
)

type Store struct {
	pool *pgxpool.Pool
}

// Video is one row of the run ledger. Meta carries a JSONB document whose
// "status" map drives the job pipeline: facts_ready, video_ready,
// youtube_uploaded, linkedin_posted.
type Video struct {
	ID        int64
	RunID     *string
	Title     string
	Category  string
	Status    *string
	Meta      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewStore(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const videoColumns = "id, run_id, title, category, status, meta, created_at, updated_at"

func scanVideo(row pgx.Row) (Video, error) {
	var v Video
	err := row.Scan(
		&v.ID,
		&v.RunID,
		&v.Title,
		&v.Category,
		&v.Status,
		&v.Meta,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	return v, err
}

func (s *Store) GetVideoByID(ctx context.Context, id int64) (Video, error) {
	utils.Debug("db get video", "id", id)
	row := s.pool.QueryRow(ctx, `
		SELECT `+videoColumns+`
		FROM videos
		WHERE id = $1
	`, id)
	return scanVideo(row)
}

func (s *Store) GetVideoByRunID(ctx context.Context, runID string) (Video, error) {
	utils.Debug("db get video by run", "run_id", runID)
	row := s.pool.QueryRow(ctx, `
		SELECT `+videoColumns+`
		FROM videos
		WHERE run_id = $1
	`, runID)
	v, err := scanVideo(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Video{}, nil
	}
	return v, err
}

func (s *Store) FindFirstVideo(ctx context.Context, where string, args ...any) (Video, error) {
	query := `
		SELECT ` + videoColumns + `
		FROM videos
		` + where + `
		ORDER BY id
		LIMIT 1
	`
	utils.Debug("db find first", "query", strings.TrimSpace(query), "args", args)
	v, err := scanVideo(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Video{}, nil
	}
	return v, err
}

func (s *Store) CountVideos(ctx context.Context, where string, args ...any) (int, error) {
	query := `SELECT COUNT(*) FROM videos ` + where
	utils.Debug("db count", "query", strings.TrimSpace(query), "args", args)
	row := s.pool.QueryRow(ctx, query, args...)
	var count int
	return count, row.Scan(&count)
}

func (s *Store) CreateVideo(ctx context.Context, v Video) (int64, error) {
	utils.Debug("db create video", "category", v.Category, "title_len", len(v.Title))
	row := s.pool.QueryRow(ctx, `
		INSERT INTO videos (run_id, title, category, status, meta, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id
	`, v.RunID, v.Title, v.Category, v.Status, v.Meta)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) UpdateVideoMetaStatus(ctx context.Context, id int64, status string, meta map[string]any) error {
	utils.Debug("db update meta+status", "id", id, "status", status)
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE videos
		SET status = $1,
			meta = $2,
			updated_at = NOW()
		WHERE id = $3
	`, status, metaJSON, id)
	return err
}

func (s *Store) UpdateVideoMeta(ctx context.Context, id int64, meta map[string]any) error {
	utils.Debug("db update meta", "id", id)
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE videos
		SET meta = $1,
			updated_at = NOW()
		WHERE id = $2
	`, metaJSON, id)
	return err
}

func (s *Store) UpdateVideoRunID(ctx context.Context, id int64, runID string) error {
	utils.Debug("db update run id", "id", id, "run_id", runID)
	_, err := s.pool.Exec(ctx, `
		UPDATE videos
		SET run_id = $1,
			updated_at = NOW()
		WHERE id = $2
	`, runID, id)
	return err
}

func (s *Store) UpdateVideoTitle(ctx context.Context, id int64, title string) error {
	utils.Debug("db update title", "id", id, "title_len", len(title))
	_, err := s.pool.Exec(ctx, `
		UPDATE videos
		SET title = $1,
			updated_at = NOW()
		WHERE id = $2
	`, title, id)
	return err
}

func (s *Store) QueryVideos(ctx context.Context, query string, args ...any) ([]Video, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var videos []Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

func StatusTrueCondition(flags []string) string {
	conds := make([]string, 0, len(flags))
	for _, flag := range flags {
		conds = append(conds, fmt.Sprintf("meta->'status'->>'%s' = 'true'", flag))
	}
	return strings.Join(conds, " AND ")
}

func StatusNotTrueCondition(flags []string) string {
	conds := make([]string, 0, len(flags))
	for _, flag := range flags {
		conds = append(conds, fmt.Sprintf("(meta->'status'->>'%s' IS NULL OR meta->'status'->>'%s' <> 'true')", flag, flag))
	}
	return strings.Join(conds, " AND ")
}

func MetaKeyMissingCondition(keys []string) string {
	conds := make([]string, 0, len(keys))
	for _, key := range keys {
		conds = append(conds, fmt.Sprintf("NOT (meta ? '%s')", key))
	}
	return strings.Join(conds, " AND ")
}
