package notify

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarkusWeidner/ImmoFox/app/models"
	"github.com/MarkusWeidner/ImmoFox/app/repository"
)

func TestOutboxEmitterPersistsIntent(t *testing.T) {
	repos := repository.NewMemoryRepositories()
	emitter := NewOutboxEmitter(repos.Notification)

	emitter.Emit(context.Background(), Intent{
		RecipientID: 7,
		Kind:        models.NotificationKindListingDeactivated,
		ReferenceID: 99,
		Payload: map[string]interface{}{
			"listing_title": "Loft in Kreuzberg",
			"reason":        models.DeactivatedReasonPlanDowngrade,
		},
	})

	unsent, err := repos.Notification.FindUnsent(10)
	require.NoError(t, err)
	require.Len(t, unsent, 1)
	n := unsent[0]
	assert.Equal(t, uint(7), n.UserID)
	assert.Equal(t, models.NotificationKindListingDeactivated, n.Kind)
	assert.Equal(t, uint(99), n.ReferenceID)
	assert.Nil(t, n.SentAt)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(n.Payload), &payload))
	assert.Equal(t, "Loft in Kreuzberg", payload["listing_title"])
}

func TestRenderMailKinds(t *testing.T) {
	payload := models.JSON(`{"listing_title":"Loft in Kreuzberg","days_left":3}`)

	cases := []struct {
		kind        string
		wantSubject string
		wantInBody  string
	}{
		{models.NotificationKindPlanExpiring, "Your plan is about to expire", "in 3 days"},
		{models.NotificationKindPlanExpired, "Your plan has expired", "free tier"},
		{models.NotificationKindListingExpiring, "Your listing is about to expire", "Loft in Kreuzberg"},
		{models.NotificationKindListingDeactivated, "A listing was hidden", "Loft in Kreuzberg"},
		{models.NotificationKindListingReactivated, "A listing is back online", "Loft in Kreuzberg"},
		{models.NotificationKindFavoritePublished, "A listing you follow was published", "Loft in Kreuzberg"},
		{"something_else", "Notification", "news"},
	}
	for _, c := range cases {
		subject, body := renderMail(&models.Notification{Kind: c.kind, Payload: payload})
		assert.Equal(t, c.wantSubject, subject, c.kind)
		assert.True(t, strings.Contains(body, c.wantInBody), "%s body: %s", c.kind, body)
	}
}

func TestRenderMailWithoutPayload(t *testing.T) {
	subject, body := renderMail(&models.Notification{Kind: models.NotificationKindPlanExpiring})
	assert.Equal(t, "Your plan is about to expire", subject)
	assert.Contains(t, body, "soon")
}
