//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"relaybot/internal/model"
	logx "relaybot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("storage: sqlite opened", logx.String("path", cfg.Path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) SavePost(ctx context.Context, p *model.Post) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO posts(id, owner_id, kind, body, media_ref, caption, title, created_at)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   kind=excluded.kind, body=excluded.body, media_ref=excluded.media_ref,
		   caption=excluded.caption, title=excluded.title`,
		p.ID, p.OwnerID, string(p.Kind), nullStr(p.Body), nullStr(p.MediaRef),
		nullStr(p.Caption), p.Title, fmtTime(p.CreatedAt),
	)
	return err
}

func (s *sqliteStore) PostsByOwner(ctx context.Context, ownerID int64) ([]model.Post, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, kind, body, media_ref, caption, title, created_at
		 FROM posts WHERE owner_id = ? ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPosts(rows)
}

func (s *sqliteStore) PostsByIDs(ctx context.Context, ids []string) ([]model.Post, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ph := strings.Repeat("?,", len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, kind, body, media_ref, caption, title, created_at
		 FROM posts WHERE id IN (`+ph[:len(ph)-1]+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	found, err := scanPosts(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Post, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	out := make([]model.Post, 0, len(found))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func scanPosts(rows *sql.Rows) ([]model.Post, error) {
	var out []model.Post
	for rows.Next() {
		var p model.Post
		var kind, createdAt string
		var body, mediaRef, caption sql.NullString
		if err := rows.Scan(&p.ID, &p.OwnerID, &kind, &body, &mediaRef, &caption, &p.Title, &createdAt); err != nil {
			return nil, err
		}
		p.Kind = model.Kind(kind)
		p.Body = body.String
		p.MediaRef = mediaRef.String
		p.Caption = caption.String
		p.CreatedAt = parseTime(createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeletePost(ctx context.Context, id string, ownerID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (s *sqliteStore) SaveSchedule(ctx context.Context, sc *model.Schedule) error {
	times, err := json.Marshal(sc.FiringTimes)
	if err != nil {
		return err
	}
	pool, err := json.Marshal(sc.PostPool)
	if err != nil {
		return err
	}
	var last any
	if sc.LastExecutedAt != nil {
		last = fmtTime(*sc.LastExecutedAt)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schedules(id, owner_id, firing_times, post_pool, posts_per_firing, is_active, created_at, last_executed_at)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   firing_times=excluded.firing_times, post_pool=excluded.post_pool,
		   posts_per_firing=excluded.posts_per_firing, is_active=excluded.is_active,
		   last_executed_at=excluded.last_executed_at`,
		sc.ID, sc.OwnerID, string(times), string(pool), sc.PostsPerFiring,
		boolInt(sc.IsActive), fmtTime(sc.CreatedAt), last,
	)
	return err
}

func (s *sqliteStore) SchedulesByOwner(ctx context.Context, ownerID int64) ([]model.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, scheduleCols+` WHERE owner_id = ? ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSchedules(rows)
}

func (s *sqliteStore) ActiveSchedules(ctx context.Context) ([]model.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, scheduleCols+` WHERE is_active = 1 ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSchedules(rows)
}

const scheduleCols = `SELECT id, owner_id, firing_times, post_pool, posts_per_firing, is_active, created_at, last_executed_at FROM schedules`

func scanSchedules(rows *sql.Rows) ([]model.Schedule, error) {
	var out []model.Schedule
	for rows.Next() {
		var sc model.Schedule
		var times, pool, createdAt string
		var active int
		var last sql.NullString
		if err := rows.Scan(&sc.ID, &sc.OwnerID, &times, &pool, &sc.PostsPerFiring, &active, &createdAt, &last); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(times), &sc.FiringTimes); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(pool), &sc.PostPool); err != nil {
			return nil, err
		}
		sc.IsActive = active != 0
		sc.CreatedAt = parseTime(createdAt)
		if last.Valid {
			t := parseTime(last.String)
			sc.LastExecutedAt = &t
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SetLastExecuted(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET last_executed_at = ? WHERE id = ?`, fmtTime(at), id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (s *sqliteStore) ToggleSchedule(ctx context.Context, id string, ownerID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET is_active = 1 - is_active WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return false, err
	}
	if err := affectedOrNotFound(res); err != nil {
		return false, err
	}
	var active int
	if err := s.db.QueryRowContext(ctx,
		`SELECT is_active FROM schedules WHERE id = ?`, id).Scan(&active); err != nil {
		return false, err
	}
	return active != 0, nil
}

func (s *sqliteStore) DeleteSchedule(ctx context.Context, id string, ownerID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (s *sqliteStore) PutState(ctx context.Context, st *model.ConvState) error {
	temp, err := json.Marshal(st.Temp)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_states(owner_id, flow, step, temp, last_activity_at)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(owner_id) DO UPDATE SET
		   flow=excluded.flow, step=excluded.step, temp=excluded.temp,
		   last_activity_at=excluded.last_activity_at`,
		st.OwnerID, string(st.Flow), st.Step, string(temp), fmtTime(st.LastActivityAt),
	)
	return err
}

func (s *sqliteStore) GetState(ctx context.Context, ownerID int64) (*model.ConvState, error) {
	var st model.ConvState
	var flow, temp, activity string
	err := s.db.QueryRowContext(ctx,
		`SELECT owner_id, flow, step, temp, last_activity_at FROM conversation_states WHERE owner_id = ?`,
		ownerID).Scan(&st.OwnerID, &flow, &st.Step, &temp, &activity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st.Flow = model.Flow(flow)
	if err := json.Unmarshal([]byte(temp), &st.Temp); err != nil {
		return nil, err
	}
	st.LastActivityAt = parseTime(activity)
	return &st, nil
}

func (s *sqliteStore) ClearState(ctx context.Context, ownerID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversation_states WHERE owner_id = ?`, ownerID)
	return err
}

func (s *sqliteStore) DeleteIdleStates(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversation_states WHERE last_activity_at < ?`, fmtTime(cutoff))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *sqliteStore) AddDestination(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO destinations(id, added_at) VALUES(?,?) ON CONFLICT(id) DO NOTHING`,
		id, fmtTime(time.Now()))
	return err
}

func (s *sqliteStore) RemoveDestination(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM destinations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (s *sqliteStore) Destinations(ctx context.Context) ([]model.Destination, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, added_at FROM destinations ORDER BY added_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Destination
	for rows.Next() {
		var d model.Destination
		var added string
		if err := rows.Scan(&d.ID, &added); err != nil {
			return nil, err
		}
		d.AddedAt = parseTime(added)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Footer(ctx context.Context) (string, error) {
	var text string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = 'footer'`).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

func (s *sqliteStore) SetFooter(ctx context.Context, text string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings(key, value, updated_at) VALUES('footer', ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		text, fmtTime(time.Now()))
	return err
}

func (s *sqliteStore) Close(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}
