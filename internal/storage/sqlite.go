package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "vakhtabot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open initializes the sqlite-backed store, creating the schema if needed.
func Open(cfg Config, log logx.Logger) (Store, error) {
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

	if log.IsZero() {
		log = logx.Nop()
	}
	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
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

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const timeFormat = time.RFC3339Nano

func fmtTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

// ---- Users ----

func (s *sqliteStore) UpsertUser(ctx context.Context, u User) error {
	now := fmtTime(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, username, first_name, last_name, is_subscribed, is_blocked, created_at, last_seen)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   username=excluded.username,
		   first_name=excluded.first_name,
		   last_name=excluded.last_name,
		   last_seen=excluded.last_seen`,
		u.ID, nullStr(u.Username), nullStr(u.FirstName), nullStr(u.LastName),
		boolInt(u.Subscribed), boolInt(u.Blocked), now, now,
	)
	return err
}

func (s *sqliteStore) GetUser(ctx context.Context, id int64) (User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, first_name, last_name, is_subscribed, is_blocked, created_at, last_seen
		 FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *sqliteStore) SetSubscribed(ctx context.Context, id int64, subscribed bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_subscribed = ?, last_seen = ? WHERE id = ?`,
		boolInt(subscribed), fmtTime(time.Now()), id)
	return err
}

func (s *sqliteStore) SetBlocked(ctx context.Context, id int64, blocked bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_blocked = ? WHERE id = ?`, boolInt(blocked), id)
	return err
}

func (s *sqliteStore) ListActiveUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, first_name, last_name, is_subscribed, is_blocked, created_at, last_seen
		 FROM users WHERE is_blocked = 0 ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CountUsers(ctx context.Context) (UserCounts, error) {
	var c UserCounts
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(is_subscribed), 0),
		        COALESCE(SUM(is_blocked), 0)
		 FROM users`).Scan(&c.Total, &c.Subscribed, &c.Blocked)
	if err != nil {
		return UserCounts{}, err
	}
	c.Active = c.Total - c.Blocked
	return c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(r rowScanner) (User, error) {
	var (
		u                     User
		username, first, last sql.NullString
		subscribed, blocked   int
		createdAt, lastSeen   string
	)
	if err := r.Scan(&u.ID, &username, &first, &last, &subscribed, &blocked, &createdAt, &lastSeen); err != nil {
		return User{}, err
	}
	u.Username = username.String
	u.FirstName = first.String
	u.LastName = last.String
	u.Subscribed = subscribed != 0
	u.Blocked = blocked != 0
	u.CreatedAt = parseTime(createdAt)
	u.LastSeen = parseTime(lastSeen)
	return u, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// ---- Postings ----

func (s *sqliteStore) InsertPosting(ctx context.Context, p Posting) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO postings(user_id, username, body, category, status, reject_reason, channel_message_id, created_at)
		 VALUES(?,?,?,?,?,?,?,?)`,
		p.UserID, nullStr(p.Username), p.Text, p.Category, string(p.Status),
		nullStr(p.RejectReason), nullInt(p.ChannelMessageID), fmtTime(p.CreatedAt),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func nullInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func (s *sqliteStore) ListPostings(ctx context.Context, f PostingFilter) ([]Posting, error) {
	q := `SELECT id, user_id, username, body, category, status, reject_reason, channel_message_id, created_at
	      FROM postings WHERE 1=1`
	args := []any{}
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, string(f.Status))
	}
	if f.Category != "" {
		q += " AND category = ?"
		args = append(args, f.Category)
	}
	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Posting
	for rows.Next() {
		var (
			p                 Posting
			username, reason  sql.NullString
			msgID             sql.NullInt64
			status, createdAt string
		)
		if err := rows.Scan(&p.ID, &p.UserID, &username, &p.Text, &p.Category, &status, &reason, &msgID, &createdAt); err != nil {
			return nil, err
		}
		p.Username = username.String
		p.Status = PostingStatus(status)
		p.RejectReason = reason.String
		p.ChannelMessageID = int(msgID.Int64)
		p.CreatedAt = parseTime(createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetPostingStats(ctx context.Context) (PostingStats, error) {
	var st PostingStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(status = 'published'), 0),
		        COALESCE(SUM(status = 'rejected'), 0),
		        COALESCE(SUM(category = 'resume'), 0),
		        COALESCE(SUM(category = 'vacancy'), 0)
		 FROM postings`).Scan(&st.Total, &st.Published, &st.Rejected, &st.Resumes, &st.Vacancies)
	if err != nil {
		return PostingStats{}, err
	}
	return st, nil
}

// ---- Audit log ----

func (s *sqliteStore) AppendLog(ctx context.Context, e LogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO logs(kind, user_id, message, details, created_at) VALUES(?,?,?,?,?)`,
		e.Kind, nullInt64(e.UserID), e.Message, nullStr(e.Details), fmtTime(e.At),
	)
	return err
}

func nullInt64(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func (s *sqliteStore) ListLogs(ctx context.Context, f LogFilter) ([]LogEntry, error) {
	q := `SELECT id, kind, user_id, message, details, created_at FROM logs WHERE 1=1`
	args := []any{}
	if f.Kind != "" {
		q += " AND kind = ?"
		args = append(args, f.Kind)
	}
	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var (
			e         LogEntry
			userID    sql.NullInt64
			details   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.Kind, &userID, &e.Message, &details, &createdAt); err != nil {
			return nil, err
		}
		e.UserID = userID.Int64
		e.Details = details.String
		e.At = parseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---- Broadcast runs ----

func (s *sqliteStore) CreateBroadcast(ctx context.Context, adminID int64, text string, total int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO broadcasts(admin_id, body, total, status, started_at) VALUES(?,?,?,?,?)`,
		adminID, text, total, string(RunInProgress), fmtTime(time.Now()),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) UpdateBroadcastCounts(ctx context.Context, id int64, sent, failed int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE broadcasts SET sent = ?, failed = ? WHERE id = ?`, sent, failed, id)
	return err
}

func (s *sqliteStore) CompleteBroadcast(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE broadcasts SET status = ?, completed_at = ? WHERE id = ?`,
		string(RunCompleted), fmtTime(time.Now()), id)
	return err
}

func (s *sqliteStore) ListBroadcasts(ctx context.Context, limit int) ([]BroadcastRun, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryBroadcasts(ctx,
		`SELECT id, admin_id, body, total, sent, failed, status, started_at, completed_at
		 FROM broadcasts ORDER BY started_at DESC LIMIT ?`, limit)
}

// ListStaleBroadcasts returns runs still marked in-progress; after a restart
// these are runs interrupted by a crash. They are reported, not repaired.
func (s *sqliteStore) ListStaleBroadcasts(ctx context.Context) ([]BroadcastRun, error) {
	return s.queryBroadcasts(ctx,
		`SELECT id, admin_id, body, total, sent, failed, status, started_at, completed_at
		 FROM broadcasts WHERE status = ? ORDER BY started_at DESC`, string(RunInProgress))
}

func (s *sqliteStore) queryBroadcasts(ctx context.Context, q string, args ...any) ([]BroadcastRun, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BroadcastRun
	for rows.Next() {
		var (
			r                 BroadcastRun
			status, startedAt string
			completedAt       sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.AdminID, &r.Text, &r.Total, &r.Sent, &r.Failed, &status, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		r.Status = RunStatus(status)
		r.StartedAt = parseTime(startedAt)
		if completedAt.Valid {
			r.CompletedAt = parseTime(completedAt.String)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
