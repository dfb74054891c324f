package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/MarkusWeidner/ImmoFox/app/models"
	"github.com/MarkusWeidner/ImmoFox/app/repository"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/clock"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/guard"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/media"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/notify"
)

// Publication and featuring windows. Renewal is a future re-publish, there is
// no extension path.
const (
	PublicationWindow = 30 * 24 * time.Hour
	FeatureWindow     = 30 * 24 * time.Hour
)

// Engine owns every listing status change and every flip of the visibility
// flag. All guarded mutations for one owner run inside the owner lock, so the
// entitlement count a decision was based on is still true when the write lands.
type Engine struct {
	locker  repository.OwnerLocker
	media   media.Checker
	emitter notify.Emitter
	clock   clock.Clock
}

// NewEngine wires the lifecycle engine.
func NewEngine(locker repository.OwnerLocker, mediaChecker media.Checker, emitter notify.Emitter, clk clock.Clock) *Engine {
	return &Engine{locker: locker, media: mediaChecker, emitter: emitter, clock: clk}
}

// Publish moves a draft into the published state. Preconditions: the caller
// owns the listing, the plan guard allows another active listing, and at
// least one image is stored. On success the publication window opens and
// favoriters get a notification intent.
func (e *Engine) Publish(ctx context.Context, listingUUID string, ownerID uint) (*models.Listing, error) {
	var published *models.Listing
	var intents []notify.Intent

	err := e.locker.WithOwnerLock(ctx, ownerID, func(s repository.Stores) error {
		listing, err := e.ownedListing(s, listingUUID, ownerID)
		if err != nil {
			return err
		}
		if !canFire(listing.Status, triggerPublish) {
			return &InvalidTransitionError{From: listing.Status, Trigger: triggerPublish}
		}

		decision, err := guard.New(s.Plans, s.Listings, e.clock).Check(ctx, ownerID, guard.ActionActivateListing)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			return &LimitError{Action: guard.ActionActivateListing, Decision: decision}
		}

		hasMedia, err := e.media.HasMedia(ctx, listing)
		if err != nil {
			return fmt.Errorf("media check for listing %s failed: %w", listingUUID, err)
		}
		if !hasMedia {
			return ErrNoMedia
		}

		now := e.clock.Now()
		expires := now.Add(PublicationWindow)
		if err := s.Listings.SetPublished(listing.ID, now, expires); err != nil {
			return err
		}

		listing.Status = models.ListingStatusPublished
		listing.IsActive = true
		listing.PublishedAt = &now
		listing.ExpiresAt = &expires
		published = listing

		favoriters, err := s.Listings.FindFavoriteUserIDs(listing.ID)
		if err != nil {
			// Favoriter lookup must not fail the publish; they just miss out.
			log.Errorf("[Lifecycle] favoriter lookup for listing %d failed: %v", listing.ID, err)
			return nil
		}
		for _, userID := range favoriters {
			intents = append(intents, notify.Intent{
				RecipientID: userID,
				Kind:        models.NotificationKindFavoritePublished,
				ReferenceID: listing.ID,
				Payload: map[string]interface{}{
					"listing_uuid":  listing.UUID,
					"listing_title": listing.Title,
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Intents go out only after the transaction committed; they are
	// best-effort and never roll the publish back.
	for _, intent := range intents {
		e.emitter.Emit(ctx, intent)
	}
	return published, nil
}

// MarkFeatured puts a paid promotional boost on a published, visible listing.
func (e *Engine) MarkFeatured(ctx context.Context, listingUUID string, ownerID uint) (*models.Listing, error) {
	var featured *models.Listing

	err := e.locker.WithOwnerLock(ctx, ownerID, func(s repository.Stores) error {
		listing, err := e.ownedListing(s, listingUUID, ownerID)
		if err != nil {
			return err
		}
		if !listing.IsPublished() || !listing.IsActive {
			return ErrNotActive
		}

		decision, err := guard.New(s.Plans, s.Listings, e.clock).Check(ctx, ownerID, guard.ActionMarkFeatured)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			return &LimitError{Action: guard.ActionMarkFeatured, Decision: decision}
		}

		now := e.clock.Now()
		expires := now.Add(FeatureWindow)
		if err := s.Listings.SetFeatured(listing.ID, true, &now, &expires); err != nil {
			return err
		}
		listing.Featured = true
		listing.FeaturedAt = &now
		listing.FeaturedExpires = &expires
		featured = listing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return featured, nil
}

// Unfeature removes the boost. It is always allowed, whatever the current
// plan says: a downgrade must never trap the owner in a state they cannot
// leave.
func (e *Engine) Unfeature(ctx context.Context, listingUUID string, ownerID uint) error {
	return e.locker.WithOwnerLock(ctx, ownerID, func(s repository.Stores) error {
		listing, err := e.ownedListing(s, listingUUID, ownerID)
		if err != nil {
			return err
		}
		if !listing.Featured {
			return nil
		}
		return s.Listings.SetFeatured(listing.ID, false, nil, nil)
	})
}

// Archive is the owner-initiated, terminal exit. The listing also loses its
// visibility flag; it can never be reactivated, only replaced by a new draft.
func (e *Engine) Archive(ctx context.Context, listingUUID string, ownerID uint) error {
	return e.locker.WithOwnerLock(ctx, ownerID, func(s repository.Stores) error {
		listing, err := e.ownedListing(s, listingUUID, ownerID)
		if err != nil {
			return err
		}
		if !canFire(listing.Status, triggerArchive) {
			return &InvalidTransitionError{From: listing.Status, Trigger: triggerArchive}
		}
		if listing.IsActive {
			now := e.clock.Now()
			if err := s.Listings.SetActive(listing.ID, false, models.DeactivatedReasonManual, &now); err != nil {
				return err
			}
		}
		return s.Listings.SetStatus(listing.ID, models.ListingStatusArchived)
	})
}

// DeactivateForLimit hides a listing because the owner's entitlement shrank.
// Status stays untouched, so the listing can be restored without re-running
// publish preconditions. Runs on the caller's transaction-bound stores; the
// caller holds the owner lock.
func (e *Engine) DeactivateForLimit(s repository.Stores, listing *models.Listing, reason string) error {
	now := e.clock.Now()
	if err := s.Listings.SetActive(listing.ID, false, reason, &now); err != nil {
		return err
	}
	listing.IsActive = false
	listing.Featured = false
	listing.DeactivatedReason = reason
	listing.DeactivatedAt = &now
	return nil
}

// ReactivateForLimit restores a listing the engine hid. Only published
// listings qualify; a deactivated draft or expired listing is not part of
// this mechanism.
func (e *Engine) ReactivateForLimit(s repository.Stores, listing *models.Listing) error {
	if !listing.IsPublished() {
		return ErrNotActive
	}
	if err := s.Listings.SetActive(listing.ID, true, "", nil); err != nil {
		return err
	}
	listing.IsActive = true
	listing.DeactivatedReason = ""
	listing.DeactivatedAt = nil
	return nil
}

// EnforceActiveLimit brings the owner's visible listing count down to the
// limit. Oldest published listings are deactivated first, so the most recent
// ones stay visible. Returns the listings it hid, in deactivation order.
func (e *Engine) EnforceActiveLimit(s repository.Stores, ownerID uint, max int64, reason string) ([]models.Listing, error) {
	active, err := s.Listings.FindActiveOldestFirst(ownerID)
	if err != nil {
		return nil, err
	}
	excess := int64(len(active)) - max
	if excess <= 0 {
		return nil, nil
	}

	deactivated := make([]models.Listing, 0, excess)
	for i := int64(0); i < excess; i++ {
		listing := active[i]
		if err := e.DeactivateForLimit(s, &listing, reason); err != nil {
			return deactivated, err
		}
		deactivated = append(deactivated, listing)
	}
	return deactivated, nil
}

// ExpireDue closes publication windows that have passed. The scan runs on a
// plain store, but every write happens under the candidate's owner lock after
// a re-read: a publish that renewed the window between scan and lock wins,
// and the listing stays untouched. There is no per-listing timer, this runs
// from the daily sweep and on demand.
func (e *Engine) ExpireDue(ctx context.Context, listings repository.ListingStore, batchSize int) (int, error) {
	now := e.clock.Now()
	due, err := listings.FindPublishedExpiredBefore(now, batchSize)
	if err != nil {
		return 0, err
	}

	owners := make([]uint, 0, len(due))
	idsByOwner := make(map[uint][]uint)
	for _, listing := range due {
		if _, ok := idsByOwner[listing.UserID]; !ok {
			owners = append(owners, listing.UserID)
		}
		idsByOwner[listing.UserID] = append(idsByOwner[listing.UserID], listing.ID)
	}

	expired := 0
	for _, ownerID := range owners {
		err := e.locker.WithOwnerLock(ctx, ownerID, func(s repository.Stores) error {
			for _, id := range idsByOwner[ownerID] {
				listing, err := s.Listings.GetByID(id)
				if err != nil {
					if errors.Is(err, repository.ErrNotFound) {
						continue
					}
					return err
				}
				if !canFire(listing.Status, triggerExpire) {
					continue
				}
				// stale scan entry: the window was renewed meanwhile
				if listing.ExpiresAt == nil || !listing.ExpiresAt.Before(now) {
					continue
				}
				if err := s.Listings.SetStatus(id, models.ListingStatusExpired); err != nil {
					return err
				}
				if listing.IsActive {
					if err := s.Listings.SetActive(id, false, models.DeactivatedReasonTimeExpired, &now); err != nil {
						return err
					}
				}
				expired++
			}
			return nil
		})
		if err != nil {
			return expired, err
		}
	}
	return expired, nil
}

// ownedListing loads a listing and checks ownership, translating store
// errors into the engine's taxonomy.
func (e *Engine) ownedListing(s repository.Stores, listingUUID string, ownerID uint) (*models.Listing, error) {
	listing, err := s.Listings.GetByUUID(listingUUID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	if listing.UserID != ownerID {
		return nil, ErrNotOwner
	}
	return listing, nil
}
