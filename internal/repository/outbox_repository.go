package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/printit/orderdesk/internal/database"
	"github.com/printit/orderdesk/internal/models"
	"github.com/printit/orderdesk/pkg/logger"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDatabase  = errors.New("database error")
	ErrNotFailed = errors.New("message is not in failed status")
)

const outboxColumns = `id, event_id, order_id, event_type, payload,
	created_at, processed_at, processing_attempts, last_error, status`

// OutboxRepository handles database operations for outbox messages
type OutboxRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewOutboxRepository creates a new OutboxRepository
func NewOutboxRepository(db *database.Database, logger logger.Logger) *OutboxRepository {
	return &OutboxRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new outbox message into the database
func (r *OutboxRepository) Create(ctx context.Context, message *models.OutboxMessage) error {
	query := `
		INSERT INTO outbox_messages (
			event_id, order_id, event_type, payload, created_at, status
		) VALUES (
			$1, $2, $3, $4, $5, $6
		) RETURNING id
	`

	var id int64

	err := r.db.DB.QueryRowContext(
		ctx,
		query,
		message.EventID,
		message.OrderID,
		message.EventType,
		message.Payload,
		message.CreatedAt,
		message.Status,
	).Scan(&id)

	if err != nil {
		r.logger.Error("Failed to create outbox message", "error", err, "orderID", message.OrderID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	message.ID = id
	return nil
}

// GetPendingMessages retrieves pending outbox messages, oldest first
func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error) {
	return r.ListByStatus(ctx, models.OutboxStatusPending, limit)
}

// ListByStatus retrieves outbox messages in the given status, oldest first
func (r *OutboxRepository) ListByStatus(ctx context.Context, status models.OutboxStatus, limit int) ([]*models.OutboxMessage, error) {
	query := `SELECT ` + outboxColumns + `
		FROM outbox_messages
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`

	messages := []*models.OutboxMessage{}

	if err := r.db.DB.SelectContext(ctx, &messages, query, status, limit); err != nil {
		r.logger.Error("Failed to list outbox messages", "error", err, "status", status)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return messages, nil
}

// MarkAsProcessing updates the status of an outbox message to processing
func (r *OutboxRepository) MarkAsProcessing(ctx context.Context, id int64) error {
	query := `
		UPDATE outbox_messages
		SET status = $1, processing_attempts = processing_attempts + 1
		WHERE id = $2
	`
	return r.exec(ctx, "mark as processing", id, query, models.OutboxStatusProcessing, id)
}

// MarkAsCompleted updates the status of an outbox message to completed
func (r *OutboxRepository) MarkAsCompleted(ctx context.Context, id int64) error {
	query := `
		UPDATE outbox_messages
		SET status = $1, processed_at = $2, last_error = NULL
		WHERE id = $3
	`
	return r.exec(ctx, "mark as completed", id, query, models.OutboxStatusCompleted, time.Now().UTC(), id)
}

// MarkAsFailed updates the status of an outbox message to failed
func (r *OutboxRepository) MarkAsFailed(ctx context.Context, id int64, errorMessage string) error {
	query := `
		UPDATE outbox_messages
		SET status = $1, last_error = $2
		WHERE id = $3
	`
	return r.exec(ctx, "mark as failed", id, query, models.OutboxStatusFailed, errorMessage, id)
}

// MarkForRetry puts a message back in the pending queue, keeping its attempt count
func (r *OutboxRepository) MarkForRetry(ctx context.Context, id int64, errorMessage string) error {
	query := `
		UPDATE outbox_messages
		SET status = $1, last_error = $2
		WHERE id = $3
	`
	return r.exec(ctx, "mark for retry", id, query, models.OutboxStatusPending, errorMessage, id)
}

// Requeue resets a failed message so the processor publishes it again
func (r *OutboxRepository) Requeue(ctx context.Context, id int64) error {
	query := `
		UPDATE outbox_messages
		SET status = $1, processing_attempts = 0
		WHERE id = $2 AND status = $3
	`

	res, err := r.db.DB.ExecContext(ctx, query, models.OutboxStatusPending, id, models.OutboxStatusFailed)
	if err != nil {
		r.logger.Error("Failed to requeue outbox message", "error", err, "messageID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err := r.GetMessage(ctx, id); err != nil {
			return err
		}
		return ErrNotFailed
	}

	return nil
}

// GetMessage retrieves an outbox message by ID
func (r *OutboxRepository) GetMessage(ctx context.Context, id int64) (*models.OutboxMessage, error) {
	query := `SELECT ` + outboxColumns + `
		FROM outbox_messages
		WHERE id = $1
	`

	var message models.OutboxMessage

	if err := r.db.DB.GetContext(ctx, &message, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get outbox message", "error", err, "messageID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &message, nil
}

func (r *OutboxRepository) exec(ctx context.Context, op string, id int64, query string, args ...interface{}) error {
	if _, err := r.db.DB.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("Failed to "+op, "error", err, "messageID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return nil
}
