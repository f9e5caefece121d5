package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"

	"github.com/matiasleandrokruk/llmhub/pkg/uuid"
)

// timeLayout is fixed-width so created_at sorts lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Service appends and queries audit events. There is no update or delete.
type Service struct {
	db  *sql.DB
	now func() time.Time
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, now: time.Now}
}

type eventRow struct {
	ID         string  `db:"id"`
	ActorID    string  `db:"actor_id"`
	ActorType  string  `db:"actor_type"`
	Action     string  `db:"action"`
	EntityType *string `db:"entity_type"`
	EntityID   *string `db:"entity_id"`
	Details    string  `db:"details"`
	Outcome    string  `db:"outcome"`
	IPAddress  *string `db:"ip_address"`
	UserAgent  *string `db:"user_agent"`
	CreatedAt  string  `db:"created_at"`
}

const selectEvent = `
	SELECT id, actor_id, actor_type, action, entity_type, entity_id,
	       details, outcome, ip_address, user_agent, created_at
	FROM audit_event`

// Log inserts event, filling ID, Details and CreatedAt when empty.
func (s *Service) Log(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = uuid.NewV7()
	}
	if event.Details == "" {
		event.Details = "{}"
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_event (id, actor_id, actor_type, action, entity_type, entity_id,
		                         details, outcome, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.ActorID, string(event.ActorType), event.Action, event.EntityType, event.EntityID,
		event.Details, string(event.Outcome), event.IPAddress, event.UserAgent,
		event.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

// LogWithDetails marshals details and logs a new event.
func (s *Service) LogWithDetails(
	ctx context.Context,
	actorID string,
	actorType ActorType,
	action string,
	entityType *string,
	entityID *string,
	details *EventDetails,
	outcome Outcome,
) error {
	event := &Event{
		ActorID:    actorID,
		ActorType:  actorType,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Outcome:    outcome,
	}
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("audit: marshal details: %w", err)
		}
		event.Details = string(raw)
	}
	return s.Log(ctx, event)
}

// GetByID returns one event or sql.ErrNoRows.
func (s *Service) GetByID(ctx context.Context, id string) (*Event, error) {
	var row eventRow
	if err := sqlscan.Get(ctx, s.db, &row, selectEvent+` WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return rowToEvent(row), nil
}

// ListByActor returns the actor's newest events first.
func (s *Service) ListByActor(ctx context.Context, actorID string, limit int) ([]*Event, error) {
	var rows []eventRow
	err := sqlscan.Select(ctx, s.db, &rows,
		selectEvent+` WHERE actor_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, actorID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: list by actor: %w", err)
	}
	return rowsToEvents(rows), nil
}

// ListByEntity returns events about one entity, newest first.
func (s *Service) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*Event, error) {
	var rows []eventRow
	err := sqlscan.Select(ctx, s.db, &rows,
		selectEvent+` WHERE entity_type = ? AND entity_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: list by entity: %w", err)
	}
	return rowsToEvents(rows), nil
}

func rowsToEvents(rows []eventRow) []*Event {
	out := make([]*Event, len(rows))
	for i, r := range rows {
		out[i] = rowToEvent(r)
	}
	return out
}

func rowToEvent(r eventRow) *Event {
	created, _ := time.Parse(timeLayout, r.CreatedAt)
	return &Event{
		ID:         r.ID,
		ActorID:    r.ActorID,
		ActorType:  ActorType(r.ActorType),
		Action:     r.Action,
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		Details:    r.Details,
		Outcome:    Outcome(r.Outcome),
		IPAddress:  r.IPAddress,
		UserAgent:  r.UserAgent,
		CreatedAt:  created,
	}
}
