package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mbakke/signoff/internal/models"
)

// Event repository errors.
var (
	ErrInvalidEvent = errors.New("invalid event")
)

// EventRepository handles the append-only audit log.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// EventQuery defines filters for querying the audit log.
type EventQuery struct {
	Type       *models.EventType
	EntityType *models.EntityType
	EntityID   *string
	Since      *time.Time
	Limit      int
}

// Append adds a new event to the audit log.
func (r *EventRepository) Append(ctx context.Context, event *models.Event) error {
	return r.append(ctx, r.db, event)
}

// AppendTx adds a new event using an existing transaction, so the audit
// entry commits or rolls back together with the mutation it records.
func (r *EventRepository) AppendTx(ctx context.Context, tx *sql.Tx, event *models.Event) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}
	return r.append(ctx, tx, event)
}

func (r *EventRepository) append(ctx context.Context, q querier, event *models.Event) error {
	if event.Type == "" || event.EntityType == "" || event.EntityID == "" {
		return ErrInvalidEvent
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	} else {
		event.Timestamp = event.Timestamp.UTC()
	}

	var payloadJSON *string
	if len(event.Payload) > 0 {
		s := string(event.Payload)
		payloadJSON = &s
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO events (
			id, timestamp, type, entity_type, entity_id, actor_id, payload_json
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID,
		event.Timestamp.UTC().Format(timeLayoutNano),
		string(event.Type),
		string(event.EntityType),
		event.EntityID,
		nullEmpty(event.ActorID),
		payloadJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// Query returns events matching the filters in chronological order.
func (r *EventRepository) Query(ctx context.Context, query EventQuery) ([]*models.Event, error) {
	var conditions []string
	var args []any

	if query.Type != nil {
		conditions = append(conditions, "type = ?")
		args = append(args, string(*query.Type))
	}
	if query.EntityType != nil {
		conditions = append(conditions, "entity_type = ?")
		args = append(args, string(*query.EntityType))
	}
	if query.EntityID != nil {
		conditions = append(conditions, "entity_id = ?")
		args = append(args, *query.EntityID)
	}
	if query.Since != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, query.Since.UTC().Format(timeLayoutNano))
	}

	sqlQuery := `
		SELECT id, timestamp, type, entity_type, entity_id, actor_id, payload_json
		FROM events
	`
	if len(conditions) > 0 {
		sqlQuery += " WHERE " + strings.Join(conditions, " AND ")
	}
	sqlQuery += " ORDER BY timestamp, id"

	limit := query.Limit
	if limit <= 0 {
		limit = 500
	}
	sqlQuery += " LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var event models.Event
		var timestamp string
		var actorID, payloadJSON sql.NullString

		if err := rows.Scan(
			&event.ID,
			&timestamp,
			&event.Type,
			&event.EntityType,
			&event.EntityID,
			&actorID,
			&payloadJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		parsed, err := time.Parse(time.RFC3339Nano, timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp: %w", err)
		}
		event.Timestamp = parsed
		event.ActorID = actorID.String
		if payloadJSON.Valid && payloadJSON.String != "" {
			event.Payload = []byte(payloadJSON.String)
		}

		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}
