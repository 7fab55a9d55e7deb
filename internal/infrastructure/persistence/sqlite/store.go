package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"akrasiaBot/internal/domain"
)

var ErrSessionClosed = errors.New("sqlite: session closed")

type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite: empty db path")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: creating dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	// una sola conexión: las sesiones concurrentes se serializan aquí
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	tables := []struct {
		name string
		ddl  string
	}{
		{"servers", `
CREATE TABLE IF NOT EXISTS servers (
	id TEXT PRIMARY KEY,
	name TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`},
		{"users", `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	name TEXT,
	home_server_id TEXT REFERENCES servers(id)
);
CREATE INDEX IF NOT EXISTS idx_users_name ON users(name);`},
		{"aliases", `
CREATE TABLE IF NOT EXISTS aliases (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	server_id TEXT NOT NULL REFERENCES servers(id),
	alias TEXT NOT NULL,
	true_function TEXT NOT NULL,
	UNIQUE (server_id, alias)
);`},
		{"auditlog", `
CREATE TABLE IF NOT EXISTS auditlog (
	message_id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	guild_id TEXT NOT NULL,
	message_content TEXT NOT NULL,
	timestamp TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_auditlog_user ON auditlog(user_id);
CREATE INDEX IF NOT EXISTS idx_auditlog_guild_ts ON auditlog(guild_id, timestamp DESC);`},
	}

	for _, t := range tables {
		if _, err := db.Exec(t.ddl); err != nil {
			return fmt.Errorf("sqlite: migrate %s: %w", t.name, err)
		}
	}

	// columnas añadidas después de la primera versión del esquema
	columns := []string{
		`ALTER TABLE users ADD COLUMN last_command_time TIMESTAMP;`,
		`ALTER TABLE users ADD COLUMN last_hook_time TIMESTAMP;`,
	}
	for _, stmt := range columns {
		if _, err := db.Exec(stmt); err != nil {
			if !strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
				return fmt.Errorf("sqlite: %s: %w", stmt, err)
			}
		}
	}

	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Open crea una sesión nueva. La transacción se abre en la primera
// operación y se vuelve a abrir tras cada Commit/Rollback.
func (s *Store) Open(ctx context.Context) (domain.Session, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlite: store not initialised")
	}
	return &session{db: s.db}, nil
}

var _ domain.SessionFactory = (*Store)(nil)

type session struct {
	db     *sql.DB
	tx     *sql.Tx
	closed bool
}

func (s *session) begin(ctx context.Context) (*sql.Tx, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.tx != nil {
		return s.tx, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin: %w", err)
	}
	s.tx = tx
	return tx, nil
}

func (s *session) Commit() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (s *session) Rollback() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("sqlite: rollback: %w", err)
	}
	return nil
}

func (s *session) Close() error {
	if s.closed {
		return nil
	}
	var err error
	if s.tx != nil {
		err = s.tx.Rollback()
		s.tx = nil
	}
	s.closed = true
	if err != nil {
		return fmt.Errorf("sqlite: close: %w", err)
	}
	return nil
}

func (s *session) GetUser(ctx context.Context, id string) (*domain.User, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}

	const query = `
SELECT id, name, home_server_id, last_command_time, last_hook_time
FROM users
WHERE id = ?
LIMIT 1;
`
	var name, homeServer sql.NullString
	var lastCommand, lastHook sql.NullTime
	user := &domain.User{}

	err = tx.QueryRowContext(ctx, query, id).Scan(&user.ID, &name, &homeServer, &lastCommand, &lastHook)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: get user: %w", err)
	}

	user.Name = name.String
	user.HomeServerID = homeServer.String
	user.LastCommandTime = timePtr(lastCommand)
	user.LastHookTime = timePtr(lastHook)
	return user, nil
}

func (s *session) SaveUser(ctx context.Context, user *domain.User) error {
	if user == nil {
		return fmt.Errorf("sqlite: user nil")
	}
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}

	const stmt = `
INSERT INTO users (id, name, home_server_id, last_command_time, last_hook_time)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name=excluded.name,
	home_server_id=excluded.home_server_id,
	last_command_time=excluded.last_command_time,
	last_hook_time=excluded.last_hook_time;
`
	_, err = tx.ExecContext(ctx, stmt,
		user.ID,
		user.Name,
		nullString(user.HomeServerID),
		nullTimePtr(user.LastCommandTime),
		nullTimePtr(user.LastHookTime),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save user: %w", err)
	}
	return nil
}

func (s *session) GetServer(ctx context.Context, id string) (*domain.Server, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}

	var name sql.NullString
	server := &domain.Server{}
	err = tx.QueryRowContext(ctx, `SELECT id, name FROM servers WHERE id = ? LIMIT 1;`, id).Scan(&server.ID, &name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: get server: %w", err)
	}
	server.Name = name.String
	return server, nil
}

func (s *session) SaveServer(ctx context.Context, server *domain.Server) error {
	if server == nil {
		return fmt.Errorf("sqlite: server nil")
	}
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}

	const stmt = `
INSERT INTO servers (id, name)
VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name;
`
	if _, err := tx.ExecContext(ctx, stmt, server.ID, server.Name); err != nil {
		return fmt.Errorf("sqlite: save server: %w", err)
	}
	return nil
}

func (s *session) FindAlias(ctx context.Context, serverID, keyword string) (*domain.Alias, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}

	const query = `
SELECT id, server_id, alias, true_function
FROM aliases
WHERE server_id = ? AND alias = ?
LIMIT 1;
`
	alias := &domain.Alias{}
	err = tx.QueryRowContext(ctx, query, serverID, keyword).Scan(&alias.ID, &alias.ServerID, &alias.Keyword, &alias.TrueFunction)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: find alias: %w", err)
	}
	return alias, nil
}

func (s *session) ListAliases(ctx context.Context, serverID string) ([]*domain.Alias, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}

	const query = `
SELECT id, server_id, alias, true_function
FROM aliases
WHERE server_id = ?
ORDER BY id;
`
	rows, err := tx.QueryContext(ctx, query, serverID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list aliases: %w", err)
	}
	defer rows.Close()

	var out []*domain.Alias
	for rows.Next() {
		alias := &domain.Alias{}
		if err := rows.Scan(&alias.ID, &alias.ServerID, &alias.Keyword, &alias.TrueFunction); err != nil {
			return nil, fmt.Errorf("sqlite: scan alias: %w", err)
		}
		out = append(out, alias)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list aliases rows: %w", err)
	}
	return out, nil
}

func (s *session) CountAliases(ctx context.Context, serverID string) (int, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM aliases WHERE server_id = ?;`, serverID).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count aliases: %w", err)
	}
	return n, nil
}

func (s *session) AddAlias(ctx context.Context, alias *domain.Alias) error {
	if alias == nil {
		return fmt.Errorf("sqlite: alias nil")
	}
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO aliases (server_id, alias, true_function) VALUES (?, ?, ?);`,
		alias.ServerID, alias.Keyword, alias.TrueFunction,
	)
	if err != nil {
		return fmt.Errorf("sqlite: add alias: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		alias.ID = id
	}
	return nil
}

func (s *session) DeleteAlias(ctx context.Context, alias *domain.Alias) error {
	if alias == nil {
		return fmt.Errorf("sqlite: alias nil")
	}
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}

	if alias.ID != 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM aliases WHERE id = ?;`, alias.ID)
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM aliases WHERE server_id = ? AND alias = ?;`, alias.ServerID, alias.Keyword)
	}
	if err != nil {
		return fmt.Errorf("sqlite: delete alias: %w", err)
	}
	return nil
}

func (s *session) AddAuditEntry(ctx context.Context, entry *domain.AuditLogEntry) error {
	if entry == nil {
		return fmt.Errorf("sqlite: audit entry nil")
	}
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}

	const stmt = `
INSERT INTO auditlog (message_id, user_id, guild_id, message_content, timestamp)
VALUES (?, ?, ?, ?, ?);
`
	_, err = tx.ExecContext(ctx, stmt, entry.MessageID, entry.UserID, entry.GuildID, entry.Content, entry.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("sqlite: add audit entry: %w", err)
	}
	return nil
}

func (s *session) QueryAuditLog(ctx context.Context, q domain.AuditQuery) ([]*domain.AuditLogEntry, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}

	query := `
SELECT message_id, user_id, guild_id, message_content, timestamp
FROM auditlog
WHERE guild_id = ?`
	args := []any{q.GuildID}
	if search := strings.ToLower(strings.TrimSpace(q.Search)); search != "" {
		query += ` AND instr(lower(message_content), ?) > 0`
		args = append(args, search)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?;`
	args = append(args, limit)

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query audit log: %w", err)
	}
	defer rows.Close()

	var out []*domain.AuditLogEntry
	for rows.Next() {
		entry := &domain.AuditLogEntry{}
		if err := rows.Scan(&entry.MessageID, &entry.UserID, &entry.GuildID, &entry.Content, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("sqlite: scan audit entry: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: audit log rows: %w", err)
	}
	return out, nil
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullTimePtr(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
