package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	apiv1 "github.com/MarkusWeidner/ImmoFox/internal/api/v1"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())

	v1 := api.Group("/v1")
	server := apiv1.NewAPIServer()

	v1.Get("/ping", server.GetPing)

	// listings; the detail view and contact endpoint are public
	listings := v1.Group("/listings")
	listings.Get("/", middleware.RequireAuth, server.GetListings)
	listings.Post("/", middleware.RequireAuth, server.PostListing)
	listings.Get("/:uuid", withUUID(server.GetListing))
	listings.Post("/:uuid/contact", withUUID(server.PostContact))
	listings.Post("/:uuid/publish", middleware.RequireAuth, withUUID(server.PostPublish))
	listings.Post("/:uuid/feature", middleware.RequireAuth, withUUID(server.PostFeature))
	listings.Delete("/:uuid/feature", middleware.RequireAuth, withUUID(server.DeleteFeature))
	listings.Post("/:uuid/archive", middleware.RequireAuth, withUUID(server.PostArchive))
	listings.Post("/:uuid/images", middleware.RequireAuth, withUUID(server.PostListingImage))
	listings.Post("/:uuid/favorite", middleware.RequireAuth, withUUID(server.PostFavorite))
	listings.Delete("/:uuid/favorite", middleware.RequireAuth, withUUID(server.DeleteFavorite))

	v1.Get("/analytics", middleware.RequireAuth, server.GetAnalytics)
	v1.Get("/entitlements", middleware.RequireAuth, server.GetEntitlements)

	// billing events, authenticated by signature
	v1.Post("/billing/webhook", server.PostBillingWebhook)

	// admin surface: manual plan changes and out-of-schedule sweeps
	admin := v1.Group("/admin", middleware.RequireAuth, middleware.RequireAdmin)
	admin.Put("/users/:id/plan", server.PutUserPlan)
	admin.Post("/sweeps/expiration", server.PostExpirationSweep)
	admin.Post("/sweeps/warnings", server.PostWarningSweep)
}

func withUUID(h func(c *fiber.Ctx, uuid string) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return h(c, c.Params("uuid"))
	}
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
