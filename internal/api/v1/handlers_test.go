package apiv1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarkusWeidner/ImmoFox/app/models"
	"github.com/MarkusWeidner/ImmoFox/app/repository"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/clock"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/guard"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/lifecycle"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/middleware"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/notify"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/usercontext"
)

var apiNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type apiMedia struct{ has bool }

func (m *apiMedia) HasMedia(ctx context.Context, listing *models.Listing) (bool, error) {
	return m.has, nil
}

type apiFixture struct {
	app   *fiber.App
	repos *repository.Repositories
	media *apiMedia
}

func uuidParam(h func(c *fiber.Ctx, uuid string) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return h(c, c.Params("uuid"))
	}
}

// asUser injects the session user the way the session middleware would.
func asUser(userID uint) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if userID != 0 {
			c.Locals("USER_CONTEXT", usercontext.UserContext{UserID: userID, IsLoggedIn: true})
		}
		return c.Next()
	}
}

func newAPIFixture(t *testing.T, userID uint) *apiFixture {
	t.Helper()
	repos := repository.NewMemoryRepositories()
	clk := &clock.Fixed{Time: apiNow}
	m := &apiMedia{has: true}
	engine := lifecycle.NewEngine(repos.Locker, m, notify.Discard{}, clk)
	server := &APIServer{
		repos:    repos,
		engine:   engine,
		guard:    guard.New(repos.Plan, repos.Listing, clk),
		validate: validator.New(),
	}

	app := fiber.New()
	app.Use(asUser(userID))
	app.Post("/listings", middleware.RequireAuth, server.PostListing)
	app.Get("/listings", middleware.RequireAuth, server.GetListings)
	app.Get("/listings/:uuid", uuidParam(server.GetListing))
	app.Post("/listings/:uuid/publish", middleware.RequireAuth, uuidParam(server.PostPublish))
	app.Post("/listings/:uuid/feature", middleware.RequireAuth, uuidParam(server.PostFeature))
	app.Delete("/listings/:uuid/feature", middleware.RequireAuth, uuidParam(server.DeleteFeature))
	app.Post("/listings/:uuid/archive", middleware.RequireAuth, uuidParam(server.PostArchive))
	app.Post("/listings/:uuid/images", middleware.RequireAuth, uuidParam(server.PostListingImage))
	app.Post("/listings/:uuid/favorite", middleware.RequireAuth, uuidParam(server.PostFavorite))
	app.Get("/entitlements", middleware.RequireAuth, server.GetEntitlements)
	app.Get("/analytics", middleware.RequireAuth, server.GetAnalytics)

	return &apiFixture{app: app, repos: repos, media: m}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)

	var decoded map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp, decoded
}

func (f *apiFixture) seedPlan(t *testing.T, userID uint, tier string) {
	t.Helper()
	var end *time.Time
	if tier != "free" {
		e := apiNow.Add(90 * 24 * time.Hour)
		end = &e
	}
	require.NoError(t, f.repos.Plan.SetTier(userID, tier, end, false))
}

func (f *apiFixture) seedDraft(t *testing.T, userID uint, title string) *models.Listing {
	t.Helper()
	l := &models.Listing{UserID: userID, Title: title}
	require.NoError(t, f.repos.Listing.Create(l))
	return l
}

func TestPostListingCreatesDraft(t *testing.T) {
	f := newAPIFixture(t, 1)
	f.seedPlan(t, 1, "free")

	resp, body := f.do(t, "POST", "/listings", fiber.Map{
		"title": "Altbau mit Balkon",
		"city":  "Berlin",
		"price": 145000,
	})
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, "DRAFT", body["status"])
	assert.NotEmpty(t, body["uuid"])
	assert.Equal(t, false, body["is_active"])
}

func TestPostListingValidation(t *testing.T) {
	f := newAPIFixture(t, 1)

	resp, _ := f.do(t, "POST", "/listings", fiber.Map{"title": "ab"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestListingRoutesRequireLogin(t *testing.T) {
	f := newAPIFixture(t, 0)

	resp, body := f.do(t, "POST", "/listings", fiber.Map{"title": "Anonym"})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", body["error"])
}

func TestPublishFlow(t *testing.T) {
	f := newAPIFixture(t, 1)
	f.seedPlan(t, 1, "free")
	draft := f.seedDraft(t, 1, "Reihenhaus")

	resp, body := f.do(t, "POST", "/listings/"+draft.UUID+"/publish", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "PUBLISHED", body["status"])
	assert.Equal(t, true, body["is_active"])
}

func TestPublishWithoutImage(t *testing.T) {
	f := newAPIFixture(t, 1)
	f.seedPlan(t, 1, "free")
	f.media.has = false
	draft := f.seedDraft(t, 1, "Ohne Bild")

	resp, _ := f.do(t, "POST", "/listings/"+draft.UUID+"/publish", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestPublishOverLimit(t *testing.T) {
	f := newAPIFixture(t, 1)
	f.seedPlan(t, 1, "free")
	for i := 0; i < 5; i++ {
		l := f.seedDraft(t, 1, "Bestand")
		at := apiNow.Add(-time.Duration(i+1) * time.Hour)
		require.NoError(t, f.repos.Listing.SetPublished(l.ID, at, at.Add(lifecycle.PublicationWindow)))
	}
	draft := f.seedDraft(t, 1, "Zu viel")

	resp, body := f.do(t, "POST", "/listings/"+draft.UUID+"/publish", nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "plan limit", body["error"])
	assert.Equal(t, "active_listing_limit_reached", body["reason"])
	assert.Equal(t, "free", body["tier"])
	assert.Equal(t, float64(5), body["limit"])
	assert.Equal(t, float64(5), body["count"])
}

func TestPublishUnknownUUID(t *testing.T) {
	f := newAPIFixture(t, 1)
	f.seedPlan(t, 1, "free")

	resp, _ := f.do(t, "POST", "/listings/3b1c0b74-0000-0000-0000-000000000000/publish", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestPublishForeignListing(t *testing.T) {
	f := newAPIFixture(t, 2)
	f.seedPlan(t, 1, "free")
	f.seedPlan(t, 2, "free")
	draft := f.seedDraft(t, 1, "Fremd")

	resp, body := f.do(t, "POST", "/listings/"+draft.UUID+"/publish", nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "not your listing", body["error"])
}

func TestFeatureDeniedOnFree(t *testing.T) {
	f := newAPIFixture(t, 1)
	f.seedPlan(t, 1, "free")
	draft := f.seedDraft(t, 1, "Boost")
	at := apiNow.Add(-time.Hour)
	require.NoError(t, f.repos.Listing.SetPublished(draft.ID, at, at.Add(lifecycle.PublicationWindow)))

	resp, body := f.do(t, "POST", "/listings/"+draft.UUID+"/feature", nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "featured_not_in_plan", body["reason"])
}

func TestArchiveTwiceConflicts(t *testing.T) {
	f := newAPIFixture(t, 1)
	f.seedPlan(t, 1, "free")
	draft := f.seedDraft(t, 1, "Weg damit")

	resp, _ := f.do(t, "POST", "/listings/"+draft.UUID+"/archive", nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp, body := f.do(t, "POST", "/listings/"+draft.UUID+"/archive", nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid transition", body["error"])
	assert.Equal(t, "ARCHIVED", body["status"])
}

func TestFirstImageAlwaysAllowed(t *testing.T) {
	f := newAPIFixture(t, 1)
	f.seedPlan(t, 1, "free")
	draft := f.seedDraft(t, 1, "Mit Bild")

	resp, _ := f.do(t, "POST", "/listings/"+draft.UUID+"/images", fiber.Map{"storage_key": "listings/1/a.jpg"})
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	// the second image needs the attachment entitlement
	resp, body := f.do(t, "POST", "/listings/"+draft.UUID+"/images", fiber.Map{"storage_key": "listings/1/b.jpg"})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "attachments_not_in_plan", body["reason"])
}

func TestSecondImageAllowedOnBasic(t *testing.T) {
	f := newAPIFixture(t, 1)
	f.seedPlan(t, 1, "basic")
	draft := f.seedDraft(t, 1, "Galerie")

	for i := 0; i < 2; i++ {
		resp, _ := f.do(t, "POST", "/listings/"+draft.UUID+"/images", fiber.Map{"storage_key": fmt.Sprintf("listings/1/%d.jpg", i)})
		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	}
}

func TestGetListingHiddenFromStrangers(t *testing.T) {
	f := newAPIFixture(t, 2)
	f.seedPlan(t, 1, "free")
	draft := f.seedDraft(t, 1, "Noch Entwurf")

	resp, _ := f.do(t, "GET", "/listings/"+draft.UUID, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestGetListingOwnerSeesDraft(t *testing.T) {
	f := newAPIFixture(t, 1)
	f.seedPlan(t, 1, "free")
	draft := f.seedDraft(t, 1, "Mein Entwurf")

	resp, body := f.do(t, "GET", "/listings/"+draft.UUID, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "DRAFT", body["status"])
}

func TestGetEntitlements(t *testing.T) {
	f := newAPIFixture(t, 1)
	f.seedPlan(t, 1, "professional")
	l := f.seedDraft(t, 1, "Aktiv")
	at := apiNow.Add(-time.Hour)
	require.NoError(t, f.repos.Listing.SetPublished(l.ID, at, at.Add(lifecycle.PublicationWindow)))

	resp, body := f.do(t, "GET", "/entitlements", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "professional", body["plan_tier"])
	assert.Equal(t, "unlimited", body["max_active_listings"])
	assert.Equal(t, "unlimited", body["max_featured_monthly"])
	assert.Equal(t, float64(1), body["active_listings"])
	assert.Equal(t, true, body["allow_analytics"])
}

func TestGetEntitlementsWithoutPlanRow(t *testing.T) {
	f := newAPIFixture(t, 9)

	resp, body := f.do(t, "GET", "/entitlements", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "free", body["plan_tier"])
	assert.Equal(t, float64(5), body["max_active_listings"])
}

func TestAnalyticsPlanGated(t *testing.T) {
	f := newAPIFixture(t, 1)
	f.seedPlan(t, 1, "basic")

	resp, body := f.do(t, "GET", "/analytics", nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "analytics_not_in_plan", body["reason"])
}

func TestAnalyticsOnProfessional(t *testing.T) {
	f := newAPIFixture(t, 1)
	f.seedPlan(t, 1, "professional")
	f.seedDraft(t, 1, "Objekt")

	resp, body := f.do(t, "GET", "/analytics", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["active_listings"])
	require.NotNil(t, body["listings"])
}

func TestFavoriteRoundtrip(t *testing.T) {
	f := newAPIFixture(t, 2)
	f.seedPlan(t, 1, "free")
	draft := f.seedDraft(t, 1, "Beliebt")

	resp, _ := f.do(t, "POST", "/listings/"+draft.UUID+"/favorite", nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	users, err := f.repos.Listing.FindFavoriteUserIDs(draft.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{2}, users)
}
