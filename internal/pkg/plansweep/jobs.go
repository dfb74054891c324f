package plansweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkusWeidner/ImmoFox/app/models"
	"github.com/MarkusWeidner/ImmoFox/app/repository"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/clock"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/entitlements"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/lifecycle"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/notify"
)

// ErrPlanDataIntegrity marks plan rows billing wrote inconsistently: a paid
// tier without an end date and without a non-expiring grant. Such owners are
// skipped, loudly, until billing repairs the row.
var ErrPlanDataIntegrity = errors.New("paid plan without end date")

// Jobs holds the plan expiration and reactivation batch operations. Each
// owner is processed in its own locked transaction, so an aborted batch loses
// at most the in-flight owner and the next run picks it up.
type Jobs struct {
	locker  repository.OwnerLocker
	plans   repository.PlanStore
	engine  *lifecycle.Engine
	emitter notify.Emitter
	clock   clock.Clock
}

// NewJobs wires the sweep jobs.
func NewJobs(locker repository.OwnerLocker, plans repository.PlanStore, engine *lifecycle.Engine, emitter notify.Emitter, clk clock.Clock) *Jobs {
	return &Jobs{locker: locker, plans: plans, engine: engine, emitter: emitter, clock: clk}
}

// ExpireResult reports what a plan expiration actually did.
type ExpireResult struct {
	OldTier     entitlements.Plan
	NewTier     entitlements.Plan
	Deactivated int
}

// ExpireOwnerPlan downgrades an owner whose paid plan ran out and brings the
// active listing count down to the free limit, oldest published first. It is
// idempotent: a plan that is free, non-expiring, or not yet past its end date
// yields a no-op result, never an error, so repeated cron invocations are
// harmless.
func (j *Jobs) ExpireOwnerPlan(ctx context.Context, ownerID uint) (ExpireResult, error) {
	var result ExpireResult
	var intents []notify.Intent

	err := j.locker.WithOwnerLock(ctx, ownerID, func(s repository.Stores) error {
		plan, err := s.Plans.GetByUser(ownerID)
		if err != nil {
			return err
		}

		tier := entitlements.NormalizePlan(plan.PlanTier)
		result.OldTier = tier
		result.NewTier = tier
		if tier == entitlements.PlanFree || plan.NonExpiring {
			return nil
		}
		if plan.PlanEndDate == nil {
			return fmt.Errorf("%w: user %d tier %s", ErrPlanDataIntegrity, ownerID, tier)
		}
		if plan.PlanEndDate.After(j.clock.Now()) {
			return nil
		}

		if err := s.Plans.SetTier(ownerID, string(entitlements.PlanFree), nil, false); err != nil {
			return err
		}
		result.NewTier = entitlements.PlanFree

		limits := entitlements.LimitsFor(entitlements.PlanFree)
		if !limits.MaxActiveListings.IsUnlimited() {
			deactivated, err := j.engine.EnforceActiveLimit(s, ownerID, int64(limits.MaxActiveListings), models.DeactivatedReasonPlanDowngrade)
			if err != nil {
				return err
			}
			result.Deactivated = len(deactivated)
			for _, listing := range deactivated {
				intents = append(intents, notify.Intent{
					RecipientID: ownerID,
					Kind:        models.NotificationKindListingDeactivated,
					ReferenceID: listing.ID,
					Payload: map[string]interface{}{
						"listing_uuid":  listing.UUID,
						"listing_title": listing.Title,
						"reason":        models.DeactivatedReasonPlanDowngrade,
					},
				})
			}
		}

		intents = append(intents, notify.Intent{
			RecipientID: ownerID,
			Kind:        models.NotificationKindPlanExpired,
			Payload: map[string]interface{}{
				"old_tier":            string(result.OldTier),
				"new_tier":            string(result.NewTier),
				"deactivated_count":   result.Deactivated,
				"max_active_listings": int64(entitlements.LimitsFor(entitlements.PlanFree).MaxActiveListings),
			},
		})
		return nil
	})
	if err != nil {
		return ExpireResult{}, err
	}

	for _, intent := range intents {
		j.emitter.Emit(ctx, intent)
	}
	return result, nil
}

// ReactivateOnUpgrade restores listings the engine hid on a downgrade, up to
// the new limit's headroom. Candidates come back newest-deactivated first, so
// the visible set matches what it would have been had the downgrade never
// fully applied. Calling it again is harmless: once headroom is gone, nothing
// changes.
func (j *Jobs) ReactivateOnUpgrade(ctx context.Context, ownerID uint, newMax entitlements.Limit) (int, error) {
	reactivated := 0
	var intents []notify.Intent

	err := j.locker.WithOwnerLock(ctx, ownerID, func(s repository.Stores) error {
		candidates, err := s.Listings.FindDowngradeDeactivated(ownerID)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return nil
		}

		headroom := int64(len(candidates))
		if !newMax.IsUnlimited() {
			current, err := s.Listings.CountActive(ownerID)
			if err != nil {
				return err
			}
			headroom = int64(newMax) - current
		}

		for i := range candidates {
			if int64(reactivated) >= headroom {
				break
			}
			listing := &candidates[i]
			if err := j.engine.ReactivateForLimit(s, listing); err != nil {
				if errors.Is(err, lifecycle.ErrNotActive) {
					continue
				}
				return err
			}
			reactivated++
			intents = append(intents, notify.Intent{
				RecipientID: ownerID,
				Kind:        models.NotificationKindListingReactivated,
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
		return 0, err
	}

	for _, intent := range intents {
		j.emitter.Emit(ctx, intent)
	}
	return reactivated, nil
}

// ChangeResult reports what a plan change did to listing visibility.
type ChangeResult struct {
	OldTier     entitlements.Plan
	NewTier     entitlements.Plan
	Deactivated []models.Listing
	Reactivated int
}

// ApplyPlanChange is the inline entry point for a confirmed plan-change
// event: billing hands over the new tier and end date, we persist it and
// reconcile listing visibility in the same direction the plan moved.
func (j *Jobs) ApplyPlanChange(ctx context.Context, ownerID uint, newTier entitlements.Plan, endDate *time.Time, nonExpiring bool) (ChangeResult, error) {
	var oldTier entitlements.Plan
	var enforceIntents []notify.Intent
	result := ChangeResult{NewTier: newTier}

	err := j.locker.WithOwnerLock(ctx, ownerID, func(s repository.Stores) error {
		plan, err := s.Plans.GetByUser(ownerID)
		if err != nil {
			return err
		}
		oldTier = entitlements.NormalizePlan(plan.PlanTier)
		if err := s.Plans.SetTier(ownerID, string(newTier), endDate, nonExpiring); err != nil {
			return err
		}

		// Downgrades shrink visibility immediately, inside the same lock.
		if entitlements.PlanRank(newTier) < entitlements.PlanRank(oldTier) {
			limits := entitlements.LimitsFor(newTier)
			if !limits.MaxActiveListings.IsUnlimited() {
				deactivated, err := j.engine.EnforceActiveLimit(s, ownerID, int64(limits.MaxActiveListings), models.DeactivatedReasonPlanDowngrade)
				if err != nil {
					return err
				}
				result.Deactivated = deactivated
				for _, listing := range deactivated {
					enforceIntents = append(enforceIntents, notify.Intent{
						RecipientID: ownerID,
						Kind:        models.NotificationKindListingDeactivated,
						ReferenceID: listing.ID,
						Payload: map[string]interface{}{
							"listing_uuid":  listing.UUID,
							"listing_title": listing.Title,
							"reason":        models.DeactivatedReasonPlanDowngrade,
						},
					})
				}
			}
		}
		return nil
	})
	if err != nil {
		return ChangeResult{}, err
	}
	result.OldTier = oldTier
	for _, intent := range enforceIntents {
		j.emitter.Emit(ctx, intent)
	}

	// Upgrades restore previously hidden listings in a follow-up locked pass.
	if entitlements.PlanRank(newTier) > entitlements.PlanRank(oldTier) {
		limits := entitlements.LimitsFor(newTier)
		reactivated, err := j.ReactivateOnUpgrade(ctx, ownerID, limits.MaxActiveListings)
		if err != nil {
			return result, err
		}
		result.Reactivated = reactivated
	}
	return result, nil
}
