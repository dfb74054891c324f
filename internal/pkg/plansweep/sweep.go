package plansweep

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/MarkusWeidner/ImmoFox/app/models"
	"github.com/MarkusWeidner/ImmoFox/app/repository"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/notify"
)

// Marker deduplicates warning emissions across repeated sweep invocations
// within one day. MarkOnce returns true only for the first caller of a key.
type Marker interface {
	MarkOnce(key string, ttl time.Duration) bool
}

// Sweeper runs the daily batch passes. Both sweeps are safe to invoke more
// than once per day: plan expiration is idempotent per owner, warnings are
// deduplicated through the marker.
type Sweeper struct {
	jobs     *Jobs
	plans    repository.PlanStore
	listings repository.ListingStore
	marker   Marker
	emitter  notify.Emitter
}

// NewSweeper wires the sweeps over the batch jobs.
func NewSweeper(jobs *Jobs, plans repository.PlanStore, listings repository.ListingStore, marker Marker, emitter notify.Emitter) *Sweeper {
	return &Sweeper{jobs: jobs, plans: plans, listings: listings, marker: marker, emitter: emitter}
}

// SweepStats summarizes one expiration sweep for logging and the admin API.
type SweepStats struct {
	PlansExpired    int `json:"plans_expired"`
	ListingsHidden  int `json:"listings_hidden"`
	ListingsExpired int `json:"listings_expired"`
	OwnersFailed    int `json:"owners_failed"`
}

const expireBatchSize = 500

// RunExpirationSweep finds plans whose end date passed, downgrades each owner
// and reconciles their visible listings, then closes listing publication
// windows that ran out. A failing owner is recorded and skipped; the next
// scheduled run retries them.
func (s *Sweeper) RunExpirationSweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	now := s.jobs.clock.Now()

	expired, err := s.plans.FindExpired(now)
	if err != nil {
		return stats, fmt.Errorf("finding expired plans failed: %w", err)
	}

	for _, plan := range expired {
		result, err := s.jobs.ExpireOwnerPlan(ctx, plan.UserID)
		if err != nil {
			// Per-owner isolation: log and continue, no same-run retry that
			// could double-apply a deactivation.
			stats.OwnersFailed++
			log.Errorf("[PlanSweep] expiring plan of user %d failed: %v", plan.UserID, err)
			continue
		}
		if result.NewTier != result.OldTier {
			stats.PlansExpired++
			stats.ListingsHidden += result.Deactivated
			log.Infof("[PlanSweep] user %d downgraded %s -> %s, %d listings hidden",
				plan.UserID, result.OldTier, result.NewTier, result.Deactivated)
		}
	}

	// Listing windows are scanned store-wide; the engine takes each owner's
	// lock before writing, so a publish racing the sweep cannot be overrun.
	count, err := s.jobs.engine.ExpireDue(ctx, s.listings, expireBatchSize)
	stats.ListingsExpired = count
	if err != nil {
		return stats, fmt.Errorf("expiring listings failed: %w", err)
	}

	if stats.PlansExpired > 0 || stats.ListingsExpired > 0 || stats.OwnersFailed > 0 {
		log.Infof("[PlanSweep] sweep done: %d plans expired, %d listings hidden, %d listings expired, %d owners failed",
			stats.PlansExpired, stats.ListingsHidden, stats.ListingsExpired, stats.OwnersFailed)
	}
	return stats, nil
}

// Warning offsets: plans at T-7/T-3/T-1 days, listings at T-3 days.
var planWarningDays = []int{7, 3, 1}

const listingWarningDays = 3

// WarnStats summarizes one warning sweep run.
type WarnStats struct {
	PlanWarnings    int `json:"plan_warnings"`
	ListingWarnings int `json:"listing_warnings"`
}

// RunExpiringWarningSweep emits plan_expiring and listing_expiring intents
// for end dates coming up. The day marker keeps a second invocation on the
// same day from emitting duplicates.
func (s *Sweeper) RunExpiringWarningSweep(ctx context.Context) (WarnStats, error) {
	var stats WarnStats
	now := s.jobs.clock.Now()
	day := now.Format("2006-01-02")

	for _, days := range planWarningDays {
		from := now.Add(time.Duration(days-1) * 24 * time.Hour)
		to := now.Add(time.Duration(days) * 24 * time.Hour)
		plans, err := s.plans.FindExpiringBetween(from, to)
		if err != nil {
			return stats, fmt.Errorf("finding expiring plans failed: %w", err)
		}
		for _, plan := range plans {
			key := fmt.Sprintf("plansweep:warn:plan:%d:%d:%s", plan.UserID, days, day)
			if !s.marker.MarkOnce(key, 48*time.Hour) {
				continue
			}
			s.emitter.Emit(ctx, notify.Intent{
				RecipientID: plan.UserID,
				Kind:        models.NotificationKindPlanExpiring,
				ReferenceID: plan.ID,
				Payload: map[string]interface{}{
					"plan_tier":     plan.PlanTier,
					"days_left":     days,
					"plan_end_date": plan.PlanEndDate,
				},
			})
			stats.PlanWarnings++
		}
	}

	from := now.Add((listingWarningDays - 1) * 24 * time.Hour)
	to := now.Add(listingWarningDays * 24 * time.Hour)
	listings, err := s.listings.FindPublishedExpiringBetween(from, to)
	if err != nil {
		return stats, fmt.Errorf("finding expiring listings failed: %w", err)
	}
	for _, listing := range listings {
		key := fmt.Sprintf("plansweep:warn:listing:%d:%s", listing.ID, day)
		if !s.marker.MarkOnce(key, 48*time.Hour) {
			continue
		}
		s.emitter.Emit(ctx, notify.Intent{
			RecipientID: listing.UserID,
			Kind:        models.NotificationKindListingExpiring,
			ReferenceID: listing.ID,
			Payload: map[string]interface{}{
				"listing_uuid":  listing.UUID,
				"listing_title": listing.Title,
				"expires_at":    listing.ExpiresAt,
			},
		})
		stats.ListingWarnings++
	}
	return stats, nil
}
