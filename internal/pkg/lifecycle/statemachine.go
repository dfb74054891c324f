package lifecycle

import (
	"github.com/qmuntal/stateless"

	"github.com/MarkusWeidner/ImmoFox/app/models"
)

// Status transition triggers.
const (
	triggerPublish = "publish"
	triggerExpire  = "expire"
	triggerArchive = "archive"
)

// newStatusMachine builds the listing status machine positioned at the given
// status. Renewal of an expired listing is a plain re-publish with a fresh
// window. ARCHIVED is terminal: no trigger leaves it, an archived listing is
// replaced by a fresh draft. The visibility flag is not part of the machine;
// it is orthogonal state the engine flips under plan limits.
func newStatusMachine(status string) *stateless.StateMachine {
	sm := stateless.NewStateMachine(status)
	sm.Configure(models.ListingStatusDraft).
		Permit(triggerPublish, models.ListingStatusPublished).
		Permit(triggerArchive, models.ListingStatusArchived)
	sm.Configure(models.ListingStatusPublished).
		Permit(triggerExpire, models.ListingStatusExpired).
		Permit(triggerArchive, models.ListingStatusArchived)
	sm.Configure(models.ListingStatusExpired).
		Permit(triggerPublish, models.ListingStatusPublished).
		Permit(triggerArchive, models.ListingStatusArchived)
	return sm
}

// canFire reports whether the trigger is legal from the given status.
func canFire(status, trigger string) bool {
	ok, err := newStatusMachine(status).CanFire(trigger)
	return err == nil && ok
}
