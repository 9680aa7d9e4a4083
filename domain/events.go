package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	UserCreated  = "user-created"
	UserUpdated  = "user-updated"
	UserDeleted  = "user-deleted"
	UserLoggedIn = "user-logged-in"
	TaskCreated  = "task-created"
	TaskUpdated  = "task-updated"
	TaskDeleted  = "task-deleted"
)

// Event describes a committed change in the domain model.
type Event struct {
	ID         string          `json:"id"`
	EntityID   string          `json:"entityId"`
	EntityType string          `json:"entityType"`
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
	Time       int64           `json:"time"`
	UserID     string          `json:"userId"`
}

// EventPublisher forwards committed events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

func newEvent(typ, entityType, entityID, userID string, data any, now time.Time) Event {
	ev := Event{
		ID:         uuid.NewString(),
		EntityID:   entityID,
		EntityType: entityType,
		Type:       typ,
		Time:       now.UnixMilli(),
		UserID:     userID,
	}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			ev.Data = raw
		}
	}
	return ev
}

// publish sends ev after the mutation it describes has been committed, so a
// failure here is logged and never changes the operation's result.
func publish(ctx context.Context, p EventPublisher, ev Event) {
	if err := p.Publish(ctx, ev); err != nil {
		log.WithFields(log.Fields{"event": ev.Type, "entity": ev.EntityID, "user": ev.UserID}).Warnf("publish event: %v", err)
	}
}
