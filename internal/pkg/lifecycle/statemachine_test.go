package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MarkusWeidner/ImmoFox/app/models"
)

func TestCanFire(t *testing.T) {
	cases := []struct {
		status  string
		trigger string
		want    bool
	}{
		{models.ListingStatusDraft, triggerPublish, true},
		{models.ListingStatusDraft, triggerArchive, true},
		{models.ListingStatusDraft, triggerExpire, false},
		{models.ListingStatusPublished, triggerExpire, true},
		{models.ListingStatusPublished, triggerArchive, true},
		{models.ListingStatusPublished, triggerPublish, false},
		{models.ListingStatusExpired, triggerPublish, true},
		{models.ListingStatusExpired, triggerArchive, true},
		{models.ListingStatusExpired, triggerExpire, false},
		{models.ListingStatusArchived, triggerPublish, false},
		{models.ListingStatusArchived, triggerExpire, false},
		{models.ListingStatusArchived, triggerArchive, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, canFire(c.status, c.trigger), "%s + %s", c.status, c.trigger)
	}
}
