package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatrelay/internal/models"
)

// ErrStorageUnavailable marks any failure of the durable store. Callers
// distinguish it from input or backend errors with errors.Is.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Store is the durable, ordered, append-only log of turns grouped by session.
type Store interface {
	// ListSessions returns all sessions, newest first.
	ListSessions(ctx context.Context) ([]models.Session, error)
	// EnsureSession creates the session record if absent. Idempotent and
	// race-safe: concurrent calls for the same id leave exactly one record.
	EnsureSession(ctx context.Context, sessionID string) error
	// ListTurns returns a session's turns oldest first. An unknown session
	// yields an empty slice, not an error.
	ListTurns(ctx context.Context, sessionID string) ([]models.Turn, error)
	// AppendTurnPair writes the user turn and the bot turn as one atomic
	// unit. The user turn sorts strictly before the bot turn, and both
	// sort after every pre-existing turn in the session.
	AppendTurnPair(ctx context.Context, sessionID, userMessage, botMessage string) error
}

// SQLStore implements Store on top of database/sql (sqlite3 or mysql).
type SQLStore struct {
	db     *sql.DB
	driver string
	cache  *TurnCache
}

// NewSQLStore wraps the given database handle. cache may be nil to run
// without the redis layer.
func NewSQLStore(db *sql.DB, driver string, cache *TurnCache) *SQLStore {
	return &SQLStore{db: db, driver: strings.ToLower(driver), cache: cache}
}

func (s *SQLStore) ListSessions(ctx context.Context) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, created_at FROM sessions ORDER BY created_at DESC, session_id`,
	)
	if err != nil {
		return nil, unavailable("list sessions", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var se models.Session
		if err := rows.Scan(&se.ID, &se.CreatedAt); err != nil {
			return nil, unavailable("scan session", err)
		}
		sessions = append(sessions, se)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list sessions", err)
	}
	return sessions, nil
}

func (s *SQLStore) EnsureSession(ctx context.Context, sessionID string) error {
	// Conflict-tolerant insert so a racing duplicate is a no-op, not an error.
	stmt := `INSERT OR IGNORE INTO sessions (session_id, created_at) VALUES (?, ?)`
	if s.driver == "mysql" {
		stmt = `INSERT IGNORE INTO sessions (session_id, created_at) VALUES (?, ?)`
	}
	if _, err := s.db.ExecContext(ctx, stmt, sessionID, time.Now().UTC()); err != nil {
		return unavailable("ensure session", err)
	}
	return nil
}

const selectTurns = `SELECT session_id, sender, message, created_at FROM turns WHERE session_id = ? ORDER BY created_at ASC, id ASC`

// ListTurns reads through the cache but never repopulates it. A read-side
// store could race a concurrent append and pin a pre-append snapshot for
// the full TTL; only AppendTurnPair writes snapshots.
func (s *SQLStore) ListTurns(ctx context.Context, sessionID string) ([]models.Turn, error) {
	if turns, ok := s.cache.Load(ctx, sessionID); ok {
		return turns, nil
	}

	rows, err := s.db.QueryContext(ctx, selectTurns, sessionID)
	if err != nil {
		return nil, unavailable("list turns", err)
	}
	return scanTurns(rows)
}

func (s *SQLStore) AppendTurnPair(ctx context.Context, sessionID, userMessage, botMessage string) error {
	userAt := time.Now().UTC()
	botAt := userAt.Add(time.Microsecond)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin append", err)
	}
	defer tx.Rollback()

	const insert = `INSERT INTO turns (session_id, sender, message, created_at) VALUES (?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insert, sessionID, models.SenderUser, userMessage, userAt); err != nil {
		return unavailable("insert user turn", err)
	}
	if _, err := tx.ExecContext(ctx, insert, sessionID, models.SenderBot, botMessage, botAt); err != nil {
		return unavailable("insert bot turn", err)
	}

	// Read the history back inside the transaction so the snapshot written
	// through below is exactly the committed state, including this pair.
	rows, err := tx.QueryContext(ctx, selectTurns, sessionID)
	if err != nil {
		return unavailable("read back turns", err)
	}
	turns, err := scanTurns(rows)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit append", err)
	}

	s.cache.Save(ctx, sessionID, turns)
	return nil
}

func scanTurns(rows *sql.Rows) ([]models.Turn, error) {
	defer rows.Close()
	turns := make([]models.Turn, 0)
	for rows.Next() {
		var t models.Turn
		if err := rows.Scan(&t.SessionID, &t.Sender, &t.Message, &t.CreatedAt); err != nil {
			return nil, unavailable("scan turn", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list turns", err)
	}
	return turns, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
