package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/linkup/backend/internal/db"
	"github.com/linkup/backend/internal/models"
)

const conversationSelect = `
        SELECT c.id, c.created_at,
            a.id, a.first_name, a.last_name, a.location, a.profile_url, a.profession,
            b.id, b.first_name, b.last_name, b.location, b.profile_url, b.profession
        FROM conversations c
        JOIN users a ON a.id = c.user_low
        JOIN users b ON b.id = c.user_high`

const messageSelect = `
        SELECT m.id, m.conversation_id, m.sender_id, m.content, m.message_type, m.thumbnail, m.created_at,
            ` + summaryColumns + `
        FROM messages m
        JOIN users u ON u.id = m.sender_id`

// PostgresConversationRepository persists two-party conversations and their messages. The pair is
// stored ordered so each unordered pair maps to exactly one conversation.
type PostgresConversationRepository struct {
	pool db.Pool
}

// NewPostgresConversationRepository constructs a conversation repository backed by PostgreSQL.
func NewPostgresConversationRepository(pool db.Pool) *PostgresConversationRepository {
	return &PostgresConversationRepository{pool: pool}
}

// FindOrCreate returns the conversation between a and b, creating it with id when missing. The
// boolean reports whether a new conversation was created.
func (r *PostgresConversationRepository) FindOrCreate(ctx context.Context, id, a, b string, at time.Time) (models.Conversation, bool, error) {
	if a == "" || b == "" || a == b {
		return models.Conversation{}, false, ErrInvalidParticipants
	}
	low, high := a, b
	if high < low {
		low, high = high, low
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Conversation{}, false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        INSERT INTO conversations (id, user_low, user_high, created_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_low, user_high) DO NOTHING
    `, id, low, high, at.UTC())
	if err != nil {
		if translate(err) == ErrNotFound {
			return models.Conversation{}, false, ErrNotFound
		}
		return models.Conversation{}, false, fmt.Errorf("insert conversation: %w", err)
	}

	conversations, err := queryConversations(ctx, conn, conversationSelect+`
        WHERE c.user_low = $1 AND c.user_high = $2
    `, low, high)
	if err != nil {
		return models.Conversation{}, false, err
	}
	if len(conversations) == 0 {
		return models.Conversation{}, false, ErrNotFound
	}
	return conversations[0], tag.RowsAffected() > 0, nil
}

// Find fetches a conversation by id.
func (r *PostgresConversationRepository) Find(ctx context.Context, id string) (models.Conversation, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	conversations, err := queryConversations(ctx, conn, conversationSelect+` WHERE c.id = $1`, id)
	if err != nil {
		return models.Conversation{}, err
	}
	if len(conversations) == 0 {
		return models.Conversation{}, ErrNotFound
	}
	return conversations[0], nil
}

// ListForUser returns the conversations userID takes part in, most recently active first.
func (r *PostgresConversationRepository) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	return queryConversations(ctx, conn, conversationSelect+`
        WHERE c.user_low = $1 OR c.user_high = $1
        ORDER BY COALESCE((SELECT max(m.created_at) FROM messages m WHERE m.conversation_id = c.id), c.created_at) DESC, c.id
    `, userID)
}

// IsParticipant reports whether userID takes part in the conversation.
func (r *PostgresConversationRepository) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var ok bool
	if err := conn.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1 AND (user_low = $2 OR user_high = $2))
    `, conversationID, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return ok, nil
}

// AddMessage stores an immutable message and returns it with its sender.
func (r *PostgresConversationRepository) AddMessage(ctx context.Context, message models.Message) (models.Message, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Message{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO messages (id, conversation_id, sender_id, content, message_type, thumbnail, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, message.ID, message.ConversationID, message.SenderID, message.Content, message.MessageType,
		message.Thumbnail, message.CreatedAt.UTC())
	if err != nil {
		if translate(err) == ErrNotFound {
			return models.Message{}, ErrNotFound
		}
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}

	messages, err := queryMessages(ctx, conn, messageSelect+` WHERE m.id = $1`, message.ID)
	if err != nil {
		return models.Message{}, err
	}
	if len(messages) == 0 {
		return models.Message{}, ErrNotFound
	}
	return messages[0], nil
}

// ListMessages returns a conversation's messages, oldest first.
func (r *PostgresConversationRepository) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	return queryMessages(ctx, conn, messageSelect+`
        WHERE m.conversation_id = $1
        ORDER BY m.created_at, m.id
    `, conversationID)
}

func queryConversations(ctx context.Context, q querier, query string, args ...any) ([]models.Conversation, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select conversations: %w", err)
	}
	defer rows.Close()

	conversations := []models.Conversation{}
	for rows.Next() {
		var (
			conversation models.Conversation
			a, b         models.UserSummary
		)
		if err := rows.Scan(&conversation.ID, &conversation.CreatedAt,
			&a.ID, &a.FirstName, &a.LastName, &a.Location, &a.ProfileURL, &a.Profession,
			&b.ID, &b.FirstName, &b.LastName, &b.Location, &b.ProfileURL, &b.Profession); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversation.CreatedAt = conversation.CreatedAt.UTC()
		conversation.Participants = []models.UserSummary{a, b}
		conversations = append(conversations, conversation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return conversations, nil
}

func queryMessages(ctx context.Context, q querier, query string, args ...any) ([]models.Message, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var (
			message models.Message
			sender  models.UserSummary
		)
		if err := rows.Scan(&message.ID, &message.ConversationID, &message.SenderID, &message.Content,
			&message.MessageType, &message.Thumbnail, &message.CreatedAt,
			&sender.ID, &sender.FirstName, &sender.LastName, &sender.Location, &sender.ProfileURL, &sender.Profession); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		message.Sender = &sender
		message.CreatedAt = message.CreatedAt.UTC()
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}
