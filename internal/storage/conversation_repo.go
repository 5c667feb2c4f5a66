package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// ConversationStore defines the interface for conversation audit persistence.
type ConversationStore interface {
	// InsertTurns appends the turns of one exchange to the audit log.
	InsertTurns(ctx context.Context, turns []*ConversationTurn) error
}

// ConversationRepo persists chatbot exchanges for later audit.
// It implements the ConversationStore interface.
type ConversationRepo struct {
	db *sql.DB
}

// NewConversationRepo creates a new ConversationRepo.
func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// InsertTurns appends the turns of one exchange in a single transaction.
// Embeddings are stored JSON-encoded; a nil embedding is stored as NULL.
func (r *ConversationRepo) InsertTurns(ctx context.Context, turns []*ConversationTurn) error {
	if len(turns) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, turn := range turns {
		var embedding any
		if turn.Embedding != nil {
			encoded, err := json.Marshal(turn.Embedding)
			if err != nil {
				return fmt.Errorf("failed to encode embedding: %w", err)
			}
			embedding = string(encoded)
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO conversation_messages
				(conversation_id, user_id, patient_id, role, content, embedding, has_context)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			turn.ConversationID, turn.UserID, turn.PatientID, turn.Role,
			turn.Content, embedding, turn.HasContext,
		)
		if err != nil {
			return fmt.Errorf("failed to insert conversation turn: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit conversation turns: %w", err)
	}
	return nil
}
