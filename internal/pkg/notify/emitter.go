package notify

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2/log"

	"github.com/MarkusWeidner/ImmoFox/app/models"
	"github.com/MarkusWeidner/ImmoFox/app/repository"
)

// Intent is one decided notification: who to tell, which template kind, and
// the metadata the template needs. Delivery channel and retry are the
// delivery collaborator's concern.
type Intent struct {
	RecipientID uint
	Kind        string
	ReferenceID uint
	Payload     map[string]interface{}
}

// Emitter records notification intents. Emission documents a transition that
// already happened, so it must never fail the transition: implementations log
// problems and move on.
type Emitter interface {
	Emit(ctx context.Context, intent Intent)
}

// outboxEmitter persists intents to the notifications table where the
// external delivery worker drains them.
type outboxEmitter struct {
	store repository.NotificationStore
}

// NewOutboxEmitter creates an emitter writing to the notification outbox.
func NewOutboxEmitter(store repository.NotificationStore) Emitter {
	return &outboxEmitter{store: store}
}

func (e *outboxEmitter) Emit(ctx context.Context, intent Intent) {
	_ = ctx
	payload, err := json.Marshal(intent.Payload)
	if err != nil {
		log.Errorf("[Notify] payload marshal failed for kind %s user %d: %v", intent.Kind, intent.RecipientID, err)
		payload = []byte("{}")
	}

	n := &models.Notification{
		UserID:      intent.RecipientID,
		Kind:        intent.Kind,
		Payload:     models.JSON(payload),
		ReferenceID: intent.ReferenceID,
	}
	if err := e.store.Create(n); err != nil {
		log.Errorf("[Notify] storing %s intent for user %d failed: %v", intent.Kind, intent.RecipientID, err)
	}
}

// Discard is an Emitter that drops everything, for wiring paths where
// notifications are not wanted.
type Discard struct{}

func (Discard) Emit(ctx context.Context, intent Intent) {}
