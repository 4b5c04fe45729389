package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for lookups against the store.
var (
	ErrRoomNotFound = errors.New("chat: room not found")
	ErrUserNotFound = errors.New("chat: user not found")
)

// Store manages rooms, messages, and users in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a new chat store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateMessage inserts a new message row and returns the persisted message.
// The params are validated minimally: the kind must be one of the known
// message kinds. Attachment columns stay NULL for text messages.
func (s *Store) CreateMessage(ctx context.Context, params CreateMessageParams) (*Message, error) {
	if params.Kind != KindText && params.Kind != KindFile {
		return nil, fmt.Errorf("chat: invalid message kind %q", params.Kind)
	}

	msg := &Message{
		ID:         uuid.New().String(),
		RoomID:     params.RoomID,
		SenderID:   params.SenderID,
		Kind:       params.Kind,
		Content:    params.Content,
		Attachment: params.Attachment,
		CreatedAt:  time.Now().UTC(),
	}

	var (
		fileURL  sql.NullString
		fileName sql.NullString
		fileType sql.NullString
		fileSize sql.NullInt64
	)
	if a := params.Attachment; a != nil {
		fileURL = sql.NullString{String: a.URL, Valid: true}
		fileName = sql.NullString{String: a.Name, Valid: true}
		fileType = sql.NullString{String: a.ContentType, Valid: true}
		fileSize = sql.NullInt64{Int64: a.Size, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, room_id, sender_id, kind, content,
			file_url, file_name, file_type, file_size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		msg.ID, msg.RoomID, msg.SenderID, msg.Kind, msg.Content,
		fileURL, fileName, fileType, fileSize, msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("chat: insert message: %w", err)
	}
	return msg, nil
}

// GetRoom fetches a room by ID. Returns ErrRoomNotFound if no such room
// exists.
func (s *Store) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	var room Room
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, accountant_id, client_id, created_at
		FROM rooms WHERE id = $1`, roomID,
	).Scan(&room.ID, &room.Name, &room.AccountantID, &room.ClientID, &room.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chat: get room %s: %w", roomID, err)
	}
	return &room, nil
}

// GetUser fetches a user by ID. Returns ErrUserNotFound if no such user
// exists.
func (s *Store) GetUser(ctx context.Context, userID string) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, role FROM users WHERE id = $1 AND deleted_at IS NULL`,
		userID,
	).Scan(&user.ID, &user.Email, &user.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chat: get user %s: %w", userID, err)
	}
	return &user, nil
}

// RecentMessages returns the latest messages in a room, newest first.
// History pagination lives in the CRUD service; this exists for moderation
// and debugging tooling.
func (s *Store) RecentMessages(ctx context.Context, roomID string, limit int) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, sender_id, kind, content,
			file_url, file_name, file_type, file_size, created_at
		FROM messages WHERE room_id = $1
		ORDER BY created_at DESC LIMIT $2`, roomID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("chat: recent messages for %s: %w", roomID, err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var (
			msg      Message
			fileURL  sql.NullString
			fileName sql.NullString
			fileType sql.NullString
			fileSize sql.NullInt64
		)
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.Kind, &msg.Content,
			&fileURL, &fileName, &fileType, &fileSize, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("chat: scan message: %w", err)
		}
		if fileURL.Valid {
			msg.Attachment = &Attachment{
				URL:         fileURL.String,
				Name:        fileName.String,
				ContentType: fileType.String,
				Size:        fileSize.Int64,
			}
		}
		msgs = append(msgs, &msg)
	}
	return msgs, rows.Err()
}
