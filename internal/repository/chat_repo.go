package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"support_chat/internal/domain"

	"github.com/google/uuid"
)

// ChatRepository is the Postgres-backed Store. Each applied write records an
// outbox event in the same transaction; the outbox worker turns those into
// change notifications for every node.
type ChatRepository struct {
	db         *sql.DB
	outboxRepo OutboxRepository
}

func NewChatRepository(db *sql.DB, outboxRepo OutboxRepository) *ChatRepository {
	return &ChatRepository{
		db:         db,
		outboxRepo: outboxRepo,
	}
}

var _ Store = (*ChatRepository)(nil)

const roomColumns = `id, client_id, client_name, client_lang, status, waiting_for_agent, agent_accepted,
	COALESCE(agent_id, ''), agent_name, agent_lang, created_at, COALESCE(accepted_at, 0), COALESCE(closed_at, 0)`

func (r *ChatRepository) CreateRoom(ctx context.Context, room *domain.Room) (bool, error) {
	return r.inTx(ctx, func(tx *sql.Tx) (bool, error) {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO chats (id, client_id, client_name, client_lang, status, waiting_for_agent, agent_accepted, agent_name, agent_lang, created_at)
			VALUES ($1, $2, $3, $4, $5, FALSE, FALSE, '', '', $6)
			ON CONFLICT (id) DO NOTHING
		`, room.ID, room.ClientID, room.ClientName, room.ClientLang, room.Status, room.CreatedAt)
		if err != nil {
			return false, fmt.Errorf("failed to insert room: %w", err)
		}
		if !affected(res) {
			return false, nil
		}
		return true, r.saveEvent(ctx, tx, domain.EventTypeRoomCreated, domain.RoomEvent{RoomID: room.ID, ClientID: room.ClientID})
	})
}

func (r *ChatRepository) GetRoom(ctx context.Context, id string) (*domain.Room, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM chats WHERE id = $1`, id)
	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("room %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch room: %w", err)
	}
	return room, nil
}

func (r *ChatRepository) ListRooms(ctx context.Context) ([]domain.Room, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+roomColumns+` FROM chats ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rooms: %w", err)
	}
	defer rows.Close()

	var rooms []domain.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	return rooms, rows.Err()
}

func (r *ChatRepository) MarkWaiting(ctx context.Context, id string) (bool, error) {
	return r.conditionalUpdate(ctx, id, `
		UPDATE chats SET waiting_for_agent = TRUE
		WHERE id = $1 AND status = 'open' AND NOT waiting_for_agent AND agent_id IS NULL
	`, id)
}

func (r *ChatRepository) ClaimRoom(ctx context.Context, id string, claim domain.AgentClaim) (bool, error) {
	return r.conditionalUpdate(ctx, id, `
		UPDATE chats
		SET waiting_for_agent = FALSE, agent_accepted = TRUE,
		    agent_id = $2, agent_name = $3, agent_lang = $4, accepted_at = $5
		WHERE id = $1 AND status = 'open' AND agent_id IS NULL
	`, id, claim.AgentID, claim.AgentName, claim.AgentLang, claim.AcceptedAt)
}

func (r *ChatRepository) CloseRoom(ctx context.Context, id string, status domain.RoomStatus, closedAt int64) (bool, error) {
	return r.conditionalUpdate(ctx, id, `
		UPDATE chats SET status = $2, waiting_for_agent = FALSE, closed_at = $3
		WHERE id = $1 AND status = 'open'
	`, id, status, closedAt)
}

func (r *ChatRepository) AppendMessage(ctx context.Context, msg *domain.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var clientID string
	err = tx.QueryRowContext(ctx, `SELECT client_id FROM chats WHERE id = $1`, msg.RoomID).Scan(&clientID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("room %s: %w", msg.RoomID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to fetch room: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO chat_messages (id, room_id, sender_id, sender_name, sender_type, type, text,
			image_base64, audio_base64, translated_text, agent_lang, client_lang, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING seq
	`, msg.ID, msg.RoomID, msg.SenderID, msg.SenderName, msg.SenderType, msg.Type, msg.Text,
		msg.ImageBase64, msg.AudioBase64, msg.TranslatedText, msg.AgentLang, msg.ClientLang, msg.CreatedAt).Scan(&msg.Seq)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	preview := msg.TranslatedText
	if preview == "" {
		preview = msg.Text
	}
	event := domain.RoomEvent{
		RoomID:     msg.RoomID,
		ClientID:   clientID,
		MessageID:  msg.ID,
		SenderType: msg.SenderType,
		Preview:    preview,
	}
	if err := r.saveEvent(ctx, tx, domain.EventTypeMessageCreated, event); err != nil {
		return err
	}

	return tx.Commit()
}

// ListMessages returns messages in insertion order (seq), not createdAt order.
func (r *ChatRepository) ListMessages(ctx context.Context, roomID string) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, room_id, sender_id, sender_name, sender_type, type, text, image_base64,
		       audio_base64, translated_text, agent_lang, client_lang, created_at, seq
		FROM chat_messages
		WHERE room_id = $1
		ORDER BY seq ASC
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderName, &m.SenderType, &m.Type, &m.Text,
			&m.ImageBase64, &m.AudioBase64, &m.TranslatedText, &m.AgentLang, &m.ClientLang, &m.CreatedAt, &m.Seq); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *ChatRepository) conditionalUpdate(ctx context.Context, id, query string, args ...any) (bool, error) {
	return r.inTx(ctx, func(tx *sql.Tx) (bool, error) {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return false, fmt.Errorf("failed to update room: %w", err)
		}
		if !affected(res) {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM chats WHERE id = $1)`, id).Scan(&exists); err != nil {
				return false, fmt.Errorf("failed to check room: %w", err)
			}
			if !exists {
				return false, fmt.Errorf("room %s: %w", id, ErrNotFound)
			}
			return false, nil
		}
		return true, r.saveEvent(ctx, tx, domain.EventTypeRoomUpdated, domain.RoomEvent{RoomID: id})
	})
}

func (r *ChatRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) (bool, error)) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	applied, err := fn(tx)
	if err != nil || !applied {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return true, nil
}

func (r *ChatRepository) saveEvent(ctx context.Context, tx *sql.Tx, eventType string, payload domain.RoomEvent) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	event := &domain.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   b,
		CreatedAt: time.Now(),
	}
	if err := r.outboxRepo.Save(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*domain.Room, error) {
	var room domain.Room
	err := row.Scan(&room.ID, &room.ClientID, &room.ClientName, &room.ClientLang, &room.Status,
		&room.WaitingForAgent, &room.AgentAccepted, &room.AgentID, &room.AgentName, &room.AgentLang,
		&room.CreatedAt, &room.AcceptedAt, &room.ClosedAt)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func affected(res sql.Result) bool {
	n, err := res.RowsAffected()
	return err == nil && n > 0
}
