package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/huddle-server/internal/store"
)

//go:embed schema.sql
var schema string

const dsnParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// New opens the database at dbPath and applies the schema.
// Use ":memory:" for an ephemeral database.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests that need a custom schema or seed data.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with single connection; it also keeps ":memory:" alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Migrate applies the embedded schema. It is idempotent.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

type rowScanner interface {
	Scan(dest ...any) error
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// ==== UserStore implementation ====

// CreateUser inserts a new user.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *store.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = s.now()

	query := `
		INSERT INTO users (id, email, name, avatar, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, user.ID, user.Email, user.Name, user.Avatar, user.PasswordHash, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert user: %w", store.ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

const userColumns = `id, email, name, avatar, password_hash, created_at`

func scanUser(row rowScanner) (*store.User, error) {
	var user store.User
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Avatar, &user.PasswordHash, &user.CreatedAt); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", email, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// GetUsersByIDs returns the users that exist among ids.
func (s *SQLiteStore) GetUsersByIDs(ctx context.Context, ids []string) (map[string]*store.User, error) {
	users := make(map[string]*store.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users[user.ID] = user
	}

	return users, rows.Err()
}

// ==== RoomStore implementation ====

const roomColumns = `r.id, r.kind, r.name, r.description, r.max_members, r.direct_key, r.created_at, r.updated_at`

func scanRoom(row rowScanner) (*store.Room, error) {
	var room store.Room
	var name, description, directKey sql.NullString
	if err := row.Scan(
		&room.ID,
		&room.Kind,
		&name,
		&description,
		&room.MaxMembers,
		&directKey,
		&room.CreatedAt,
		&room.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if name.Valid {
		room.Name = &name.String
	}
	if description.Valid {
		room.Description = &description.String
	}
	if directKey.Valid {
		room.DirectKey = &directKey.String
	}
	return &room, nil
}

// CreateRoom persists the room and its initial memberships atomically.
func (s *SQLiteStore) CreateRoom(ctx context.Context, room *store.Room, members []store.Membership) error {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	now := s.now()
	room.CreatedAt = now
	room.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rooms (id, kind, name, description, max_members, direct_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, room.ID, room.Kind, room.Name, room.Description, room.MaxMembers, room.DirectKey, room.CreatedAt, room.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert room: %w", store.ErrConflict)
		}
		return fmt.Errorf("insert room: %w", err)
	}

	if len(members) > room.MaxMembers {
		return fmt.Errorf("insert members: %w", store.ErrRoomFull)
	}

	memberQuery := `
		INSERT INTO room_members (room_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?)
	`
	for _, m := range members {
		if _, err := tx.ExecContext(ctx, memberQuery, room.ID, m.UserID, m.Role, now); err != nil {
			return fmt.Errorf("add member %s: %w", m.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetRoomByID retrieves a room by ID.
func (s *SQLiteStore) GetRoomByID(ctx context.Context, id string) (*store.Room, error) {
	room, err := scanRoom(s.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms r WHERE r.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	return room, nil
}

// GetRoomByDirectKey retrieves a private room by its direct_key.
func (s *SQLiteStore) GetRoomByDirectKey(ctx context.Context, directKey string) (*store.Room, error) {
	room, err := scanRoom(s.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms r WHERE r.direct_key = ?`, directKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %s: %w", directKey, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	return room, nil
}

// ListRoomsForUser lists rooms the user belongs to, most recently updated first.
func (s *SQLiteStore) ListRoomsForUser(ctx context.Context, userID string) ([]*store.Room, error) {
	query := `
		SELECT ` + roomColumns + `
		FROM rooms r
		INNER JOIN room_members rm ON r.id = rm.room_id
		WHERE rm.user_id = ?
		ORDER BY r.updated_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*store.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

// ListRoomIDsForUser lists the IDs of the user's rooms.
func (s *SQLiteStore) ListRoomIDsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT room_id FROM room_members WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query room ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan room id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// TouchRoom sets updated_at.
func (s *SQLiteStore) TouchRoom(ctx context.Context, roomID string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE rooms SET updated_at = ? WHERE id = ?`, at.UTC(), roomID); err != nil {
		return fmt.Errorf("touch room: %w", err)
	}
	return nil
}

// AddMember inserts a membership unless present, enforcing max_members.
func (s *SQLiteStore) AddMember(ctx context.Context, m store.Membership) (*store.Membership, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	var maxMembers int
	if err := tx.QueryRowContext(ctx, `SELECT max_members FROM rooms WHERE id = ?`, m.RoomID).Scan(&maxMembers); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("room %s: %w", m.RoomID, store.ErrNotFound)
		}
		return nil, false, fmt.Errorf("query room: %w", err)
	}

	existing, err := scanMembership(tx.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM room_members WHERE room_id = ? AND user_id = ?`, m.RoomID, m.UserID))
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, fmt.Errorf("query membership: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM room_members WHERE room_id = ?`, m.RoomID).Scan(&count); err != nil {
		return nil, false, fmt.Errorf("count members: %w", err)
	}
	if count >= maxMembers {
		return nil, false, store.ErrRoomFull
	}

	if m.Role == "" {
		m.Role = store.RoleMember
	}
	m.JoinedAt = s.now()
	m.LastReadAt = nil
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO room_members (room_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?)
	`, m.RoomID, m.UserID, m.Role, m.JoinedAt); err != nil {
		return nil, false, fmt.Errorf("insert room member: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit transaction: %w", err)
	}
	return &m, true, nil
}

// RemoveMember removes a user from a room.
func (s *SQLiteStore) RemoveMember(ctx context.Context, roomID, userID string, minRemaining int) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM room_members WHERE room_id = ? AND user_id = ?`, roomID, userID).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("query membership: %w", err)
	}

	if minRemaining > 0 {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM room_members WHERE room_id = ?`, roomID).Scan(&count); err != nil {
			return false, fmt.Errorf("count members: %w", err)
		}
		if count-1 < minRemaining {
			return false, store.ErrMemberFloor
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM room_members WHERE room_id = ? AND user_id = ?`, roomID, userID); err != nil {
		return false, fmt.Errorf("delete room member: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return true, nil
}

const memberColumns = `room_id, user_id, role, joined_at, last_read_at`

func scanMembership(row rowScanner) (*store.Membership, error) {
	var m store.Membership
	var lastRead sql.NullTime
	if err := row.Scan(&m.RoomID, &m.UserID, &m.Role, &m.JoinedAt, &lastRead); err != nil {
		return nil, err
	}
	if lastRead.Valid {
		t := lastRead.Time
		m.LastReadAt = &t
	}
	return &m, nil
}

// GetMembership retrieves a single membership.
func (s *SQLiteStore) GetMembership(ctx context.Context, roomID, userID string) (*store.Membership, error) {
	m, err := scanMembership(s.db.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM room_members WHERE room_id = ? AND user_id = ?`, roomID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("membership %s/%s: %w", roomID, userID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query membership: %w", err)
	}
	return m, nil
}

// IsMember checks if user is a member of the room.
func (s *SQLiteStore) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM room_members WHERE room_id = ? AND user_id = ?`, roomID, userID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query membership: %w", err)
	}
	return true, nil
}

// ListMembers lists all members of a room.
func (s *SQLiteStore) ListMembers(ctx context.Context, roomID string) ([]*store.Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memberColumns+` FROM room_members
		WHERE room_id = ?
		ORDER BY joined_at ASC, rowid ASC
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []*store.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

// CountMembers counts memberships of a room.
func (s *SQLiteStore) CountMembers(ctx context.Context, roomID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM room_members WHERE room_id = ?`, roomID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return count, nil
}

// MarkRead sets last_read_at on a membership.
func (s *SQLiteStore) MarkRead(ctx context.Context, roomID, userID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE room_members SET last_read_at = ? WHERE room_id = ? AND user_id = ?`, at.UTC(), roomID, userID)
	if err != nil {
		return fmt.Errorf("update last read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("membership %s/%s: %w", roomID, userID, store.ErrNotFound)
	}
	return nil
}

// ==== MessageStore implementation ====

const messageColumns = `id, room_id, sender_id, type, content, file_url, file_name, is_edited, created_at, updated_at`

func scanMessage(row rowScanner) (*store.Message, error) {
	var msg store.Message
	var senderID, fileURL, fileName sql.NullString
	if err := row.Scan(
		&msg.ID,
		&msg.RoomID,
		&senderID,
		&msg.Type,
		&msg.Content,
		&fileURL,
		&fileName,
		&msg.IsEdited,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if senderID.Valid {
		msg.SenderID = &senderID.String
	}
	if fileURL.Valid {
		msg.FileURL = &fileURL.String
	}
	if fileName.Valid {
		msg.FileName = &fileName.String
	}
	return &msg, nil
}

// SaveMessage persists a message to storage.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	msg.UpdatedAt = msg.CreatedAt

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, room_id, sender_id, type, content, file_url, file_name, is_edited, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.RoomID, msg.SenderID, msg.Type, msg.Content, msg.FileURL, msg.FileName, msg.IsEdited, msg.CreatedAt, msg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	msg, err := scanMessage(s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	return msg, nil
}

// UpdateMessageContent replaces content and marks the message edited.
func (s *SQLiteStore) UpdateMessageContent(ctx context.Context, id, content string, at time.Time) (*store.Message, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE messages SET content = ?, is_edited = 1, updated_at = ? WHERE id = ?`, content, at.UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("message %s: %w", id, store.ErrNotFound)
	}
	return s.GetMessage(ctx, id)
}

// DeleteMessage removes a message.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("message %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// ListMessages retrieves one page of a room's messages.
func (s *SQLiteStore) ListMessages(ctx context.Context, roomID string, page, limit int) ([]*store.Message, error) {
	if page < 1 {
		page = 1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE room_id = ?
		ORDER BY created_at DESC, seq DESC
		LIMIT ? OFFSET ?
	`, roomID, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	// Reverse to get chronological order
	for i := range len(messages) / 2 {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}

	return messages, rows.Err()
}

// CountMessages counts a room's messages, optionally only those after since.
func (s *SQLiteStore) CountMessages(ctx context.Context, roomID string, since *time.Time) (int, error) {
	var count int
	var err error
	if since != nil {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE room_id = ? AND created_at > ?`, roomID, since.UTC()).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE room_id = ?`, roomID).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
