package plansweep

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarkusWeidner/ImmoFox/app/models"
	"github.com/MarkusWeidner/ImmoFox/app/repository"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/clock"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/entitlements"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/lifecycle"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/notify"
)

var sweepNow = time.Date(2025, 6, 15, 3, 0, 0, 0, time.UTC)

type alwaysMedia struct{}

func (alwaysMedia) HasMedia(ctx context.Context, listing *models.Listing) (bool, error) {
	return true, nil
}

type captureEmitter struct {
	mu      sync.Mutex
	intents []notify.Intent
}

func (e *captureEmitter) Emit(ctx context.Context, intent notify.Intent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.intents = append(e.intents, intent)
}

func (e *captureEmitter) ofKind(kind string) []notify.Intent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []notify.Intent
	for _, i := range e.intents {
		if i.Kind == kind {
			out = append(out, i)
		}
	}
	return out
}

func (e *captureEmitter) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.intents = nil
}

type sweepFixture struct {
	jobs    *Jobs
	repos   *repository.Repositories
	clk     *clock.Fixed
	emitter *captureEmitter
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	repos := repository.NewMemoryRepositories()
	clk := &clock.Fixed{Time: sweepNow}
	emitter := &captureEmitter{}
	engine := lifecycle.NewEngine(repos.Locker, alwaysMedia{}, emitter, clk)
	return &sweepFixture{
		jobs:    NewJobs(repos.Locker, repos.Plan, engine, emitter, clk),
		repos:   repos,
		clk:     clk,
		emitter: emitter,
	}
}

func (f *sweepFixture) seedActive(t *testing.T, userID uint, title string, publishedAt time.Time) *models.Listing {
	t.Helper()
	l := &models.Listing{UserID: userID, Title: title}
	require.NoError(t, f.repos.Listing.Create(l))
	require.NoError(t, f.repos.Listing.SetPublished(l.ID, publishedAt, publishedAt.Add(lifecycle.PublicationWindow)))
	got, err := f.repos.Listing.GetByID(l.ID)
	require.NoError(t, err)
	return got
}

func TestExpireOwnerPlanDowngradesToFree(t *testing.T) {
	f := newSweepFixture(t)
	end := sweepNow.Add(-2 * time.Hour)
	require.NoError(t, f.repos.Plan.SetTier(1, "professional", &end, false))

	var listings []*models.Listing
	for i := 0; i < 13; i++ {
		listings = append(listings, f.seedActive(t, 1, "Objekt", sweepNow.Add(-time.Duration(13-i)*24*time.Hour)))
	}

	result, err := f.jobs.ExpireOwnerPlan(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, entitlements.PlanProfessional, result.OldTier)
	assert.Equal(t, entitlements.PlanFree, result.NewTier)
	assert.Equal(t, 8, result.Deactivated)

	plan, err := f.repos.Plan.GetByUser(1)
	require.NoError(t, err)
	assert.Equal(t, "free", plan.PlanTier)
	assert.Nil(t, plan.PlanEndDate)

	// the 8 oldest went dark, the 5 newest stay visible
	for i, l := range listings {
		got, err := f.repos.Listing.GetByID(l.ID)
		require.NoError(t, err)
		if i < 8 {
			assert.False(t, got.IsActive, "listing %d", i)
			assert.Equal(t, models.ListingStatusPublished, got.Status)
			assert.Equal(t, models.DeactivatedReasonPlanDowngrade, got.DeactivatedReason)
		} else {
			assert.True(t, got.IsActive, "listing %d", i)
		}
	}

	deactivations := f.emitter.ofKind(models.NotificationKindListingDeactivated)
	require.Len(t, deactivations, 8)
	assert.Equal(t, listings[0].ID, deactivations[0].ReferenceID)

	expiredIntents := f.emitter.ofKind(models.NotificationKindPlanExpired)
	require.Len(t, expiredIntents, 1)
	assert.Equal(t, uint(1), expiredIntents[0].RecipientID)
	assert.Equal(t, "professional", expiredIntents[0].Payload["old_tier"])
	assert.Equal(t, "free", expiredIntents[0].Payload["new_tier"])
	assert.Equal(t, 8, expiredIntents[0].Payload["deactivated_count"])
}

func TestExpireOwnerPlanIsIdempotent(t *testing.T) {
	f := newSweepFixture(t)
	end := sweepNow.Add(-time.Hour)
	require.NoError(t, f.repos.Plan.SetTier(1, "basic", &end, false))
	for i := 0; i < 7; i++ {
		f.seedActive(t, 1, "Objekt", sweepNow.Add(-time.Duration(7-i)*time.Hour))
	}

	first, err := f.jobs.ExpireOwnerPlan(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Deactivated)
	f.emitter.reset()

	second, err := f.jobs.ExpireOwnerPlan(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, entitlements.PlanFree, second.OldTier)
	assert.Equal(t, entitlements.PlanFree, second.NewTier)
	assert.Zero(t, second.Deactivated)
	assert.Empty(t, f.emitter.intents)
}

func TestExpireOwnerPlanFutureEndDateIsNoop(t *testing.T) {
	f := newSweepFixture(t)
	end := sweepNow.Add(30 * 24 * time.Hour)
	require.NoError(t, f.repos.Plan.SetTier(1, "basic", &end, false))

	result, err := f.jobs.ExpireOwnerPlan(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, entitlements.PlanBasic, result.OldTier)
	assert.Equal(t, entitlements.PlanBasic, result.NewTier)
	assert.Zero(t, result.Deactivated)
	assert.Empty(t, f.emitter.intents)
}

func TestExpireOwnerPlanNonExpiringGrant(t *testing.T) {
	f := newSweepFixture(t)
	require.NoError(t, f.repos.Plan.SetTier(1, "professional", nil, true))

	result, err := f.jobs.ExpireOwnerPlan(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, entitlements.PlanProfessional, result.NewTier)
	assert.Empty(t, f.emitter.intents)
}

func TestExpireOwnerPlanBrokenRow(t *testing.T) {
	f := newSweepFixture(t)
	// paid tier, no end date, no non-expiring grant: billing wrote garbage
	require.NoError(t, f.repos.Plan.SetTier(1, "basic", nil, false))

	_, err := f.jobs.ExpireOwnerPlan(context.Background(), 1)
	assert.ErrorIs(t, err, ErrPlanDataIntegrity)
}

func TestReactivateOnUpgradeNewestFirst(t *testing.T) {
	f := newSweepFixture(t)
	end := sweepNow.Add(30 * 24 * time.Hour)
	require.NoError(t, f.repos.Plan.SetTier(1, "basic", &end, false))

	older := f.seedActive(t, 1, "Zuerst versteckt", sweepNow.Add(-48*time.Hour))
	newer := f.seedActive(t, 1, "Zuletzt versteckt", sweepNow.Add(-24*time.Hour))
	visible := f.seedActive(t, 1, "Sichtbar", sweepNow.Add(-time.Hour))

	olderAt := sweepNow.Add(-10 * time.Hour)
	newerAt := sweepNow.Add(-5 * time.Hour)
	require.NoError(t, f.repos.Listing.SetActive(older.ID, false, models.DeactivatedReasonPlanDowngrade, &olderAt))
	require.NoError(t, f.repos.Listing.SetActive(newer.ID, false, models.DeactivatedReasonPlanDowngrade, &newerAt))

	// headroom of one: only the most recently hidden listing returns
	count, err := f.jobs.ReactivateOnUpgrade(context.Background(), 1, entitlements.Limit(2))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := f.repos.Listing.GetByID(newer.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	got, err = f.repos.Listing.GetByID(older.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	got, err = f.repos.Listing.GetByID(visible.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	reactivations := f.emitter.ofKind(models.NotificationKindListingReactivated)
	require.Len(t, reactivations, 1)
	assert.Equal(t, newer.ID, reactivations[0].ReferenceID)

	// headroom used up: calling again changes nothing
	count, err = f.jobs.ReactivateOnUpgrade(context.Background(), 1, entitlements.Limit(2))
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestReactivateOnUpgradeUnlimited(t *testing.T) {
	f := newSweepFixture(t)
	end := sweepNow.Add(30 * 24 * time.Hour)
	require.NoError(t, f.repos.Plan.SetTier(1, "professional", &end, false))

	for i := 0; i < 3; i++ {
		l := f.seedActive(t, 1, "Versteckt", sweepNow.Add(-time.Duration(i+2)*time.Hour))
		at := sweepNow.Add(-time.Duration(i+1) * time.Hour)
		require.NoError(t, f.repos.Listing.SetActive(l.ID, false, models.DeactivatedReasonPlanDowngrade, &at))
	}

	count, err := f.jobs.ReactivateOnUpgrade(context.Background(), 1, entitlements.Unlimited)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestReactivateOnUpgradeSkipsManualAndExpired(t *testing.T) {
	f := newSweepFixture(t)
	end := sweepNow.Add(30 * 24 * time.Hour)
	require.NoError(t, f.repos.Plan.SetTier(1, "professional", &end, false))

	manual := f.seedActive(t, 1, "Manuell deaktiviert", sweepNow.Add(-3*time.Hour))
	at := sweepNow.Add(-time.Hour)
	require.NoError(t, f.repos.Listing.SetActive(manual.ID, false, models.DeactivatedReasonManual, &at))

	count, err := f.jobs.ReactivateOnUpgrade(context.Background(), 1, entitlements.Unlimited)
	require.NoError(t, err)
	assert.Zero(t, count)

	got, err := f.repos.Listing.GetByID(manual.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestApplyPlanChangeDowngrade(t *testing.T) {
	f := newSweepFixture(t)
	end := sweepNow.Add(30 * 24 * time.Hour)
	require.NoError(t, f.repos.Plan.SetTier(1, "professional", &end, false))
	for i := 0; i < 7; i++ {
		f.seedActive(t, 1, "Objekt", sweepNow.Add(-time.Duration(7-i)*time.Hour))
	}

	result, err := f.jobs.ApplyPlanChange(context.Background(), 1, entitlements.PlanFree, nil, false)
	require.NoError(t, err)
	assert.Equal(t, entitlements.PlanProfessional, result.OldTier)
	assert.Equal(t, entitlements.PlanFree, result.NewTier)
	assert.Len(t, result.Deactivated, 2)
	assert.Zero(t, result.Reactivated)

	count, err := f.repos.Listing.CountActive(1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestApplyPlanChangeUpgradeRestores(t *testing.T) {
	f := newSweepFixture(t)
	end := sweepNow.Add(30 * 24 * time.Hour)
	require.NoError(t, f.repos.Plan.SetTier(1, "basic", &end, false))
	for i := 0; i < 7; i++ {
		f.seedActive(t, 1, "Objekt", sweepNow.Add(-time.Duration(7-i)*time.Hour))
	}

	down, err := f.jobs.ApplyPlanChange(context.Background(), 1, entitlements.PlanFree, nil, false)
	require.NoError(t, err)
	require.Len(t, down.Deactivated, 2)

	newEnd := sweepNow.Add(365 * 24 * time.Hour)
	up, err := f.jobs.ApplyPlanChange(context.Background(), 1, entitlements.PlanBasic, &newEnd, false)
	require.NoError(t, err)
	assert.Equal(t, entitlements.PlanFree, up.OldTier)
	assert.Equal(t, entitlements.PlanBasic, up.NewTier)
	assert.Empty(t, up.Deactivated)
	assert.Equal(t, 2, up.Reactivated)

	count, err := f.repos.Listing.CountActive(1)
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
}

func TestApplyPlanChangeSameTierKeepsVisibility(t *testing.T) {
	f := newSweepFixture(t)
	end := sweepNow.Add(10 * 24 * time.Hour)
	require.NoError(t, f.repos.Plan.SetTier(1, "basic", &end, false))
	f.seedActive(t, 1, "Objekt", sweepNow.Add(-time.Hour))

	// renewal: same tier, later end date
	newEnd := sweepNow.Add(40 * 24 * time.Hour)
	result, err := f.jobs.ApplyPlanChange(context.Background(), 1, entitlements.PlanBasic, &newEnd, false)
	require.NoError(t, err)
	assert.Empty(t, result.Deactivated)
	assert.Zero(t, result.Reactivated)

	plan, err := f.repos.Plan.GetByUser(1)
	require.NoError(t, err)
	require.NotNil(t, plan.PlanEndDate)
	assert.Equal(t, newEnd, *plan.PlanEndDate)
}
