package apiv1

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/MarkusWeidner/ImmoFox/app/models"
	"github.com/MarkusWeidner/ImmoFox/app/repository"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/clock"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/entitlements"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/guard"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/lifecycle"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/media"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/metrics/counter"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/notify"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/usercontext"
)

// APIServer carries the wired lifecycle core for the HTTP handlers.
type APIServer struct {
	repos    *repository.Repositories
	engine   *lifecycle.Engine
	guard    *guard.Evaluator
	validate *validator.Validate
}

// NewAPIServer wires the API server from the global repository factory.
func NewAPIServer() *APIServer {
	repos := repository.GetGlobalRepositories()
	clk := clock.System()
	emitter := notify.NewOutboxEmitter(repos.Notification)
	engine := lifecycle.NewEngine(repos.Locker, media.NewChecker(repos.Listing), emitter, clk)

	return &APIServer{
		repos:    repos,
		engine:   engine,
		guard:    guard.New(repos.Plan, repos.Listing, clk),
		validate: validator.New(),
	}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ping": "pong"})
}

// CreateListingRequest is the payload for creating a draft.
type CreateListingRequest struct {
	Title       string `json:"title" validate:"required,min=3,max=255"`
	Description string `json:"description" validate:"max=10000"`
	City        string `json:"city" validate:"max=150"`
	PostalCode  string `json:"postal_code" validate:"max=20"`
	Price       int64  `json:"price" validate:"gte=0"`
}

// PostListing creates a new draft listing for the logged-in user.
func (s *APIServer) PostListing(c *fiber.Ctx) error {
	var req CreateListingRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := s.validate.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	listing := &models.Listing{
		UserID:      usercontext.GetUserID(c),
		Title:       req.Title,
		Description: req.Description,
		City:        req.City,
		PostalCode:  req.PostalCode,
		Price:       req.Price,
		Status:      models.ListingStatusDraft,
	}
	if err := s.repos.Listing.Create(listing); err != nil {
		return serverError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(listing)
}

// GetListings returns the logged-in user's listings, paginated.
func (s *APIServer) GetListings(c *fiber.Ctx) error {
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 20)
	if limit > 100 {
		limit = 100
	}
	listings, err := s.repos.Listing.GetByUserID(usercontext.GetUserID(c), offset, limit)
	if err != nil {
		return serverError(c, err)
	}
	return c.JSON(fiber.Map{"listings": listings})
}

// PostPublish moves a draft into the published state.
func (s *APIServer) PostPublish(c *fiber.Ctx, uuid string) error {
	listing, err := s.engine.Publish(c.UserContext(), uuid, usercontext.GetUserID(c))
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(listing)
}

// PostFeature puts the promotional boost on a listing.
func (s *APIServer) PostFeature(c *fiber.Ctx, uuid string) error {
	listing, err := s.engine.MarkFeatured(c.UserContext(), uuid, usercontext.GetUserID(c))
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(listing)
}

// DeleteFeature removes the boost; allowed on any plan.
func (s *APIServer) DeleteFeature(c *fiber.Ctx, uuid string) error {
	if err := s.engine.Unfeature(c.UserContext(), uuid, usercontext.GetUserID(c)); err != nil {
		return engineError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// PostArchive is the owner's terminal exit for a listing.
func (s *APIServer) PostArchive(c *fiber.Ctx, uuid string) error {
	if err := s.engine.Archive(c.UserContext(), uuid, usercontext.GetUserID(c)); err != nil {
		return engineError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AddImageRequest attaches a stored media reference to a listing.
type AddImageRequest struct {
	StorageKey string `json:"storage_key" validate:"required_without=URL,max=255"`
	URL        string `json:"url" validate:"required_without=StorageKey,max=255"`
	SortOrder  int    `json:"sort_order" validate:"gte=0"`
}

// PostListingImage records an uploaded image reference, plan-gated.
func (s *APIServer) PostListingImage(c *fiber.Ctx, uuid string) error {
	ownerID := usercontext.GetUserID(c)

	var req AddImageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := s.validate.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	listing, err := s.repos.Listing.GetByUUID(uuid)
	if err != nil {
		return engineError(c, translateStoreError(err))
	}
	if listing.UserID != ownerID {
		return engineError(c, lifecycle.ErrNotOwner)
	}

	// The first image is always allowed (publishing requires one); rich
	// media beyond that is an attachment entitlement.
	count, err := s.repos.Listing.CountImages(listing.ID)
	if err != nil {
		return serverError(c, err)
	}
	if count > 0 {
		decision, err := s.guard.Check(c.UserContext(), ownerID, guard.ActionAttachFile)
		if err != nil {
			return engineError(c, err)
		}
		if !decision.Allowed {
			return engineError(c, &lifecycle.LimitError{Action: guard.ActionAttachFile, Decision: decision})
		}
	}

	image := &models.ListingImage{
		ListingID:  listing.ID,
		StorageKey: req.StorageKey,
		URL:        req.URL,
		SortOrder:  req.SortOrder,
	}
	if err := s.repos.Listing.CreateImage(image); err != nil {
		return serverError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(image)
}

// GetListing is the public detail view. Counts a view when the listing is
// publicly visible; owners see their hidden listings too, without counting.
func (s *APIServer) GetListing(c *fiber.Ctx, uuid string) error {
	listing, err := s.repos.Listing.GetByUUID(uuid)
	if err != nil {
		return engineError(c, translateStoreError(err))
	}

	visible := listing.IsPublished() && listing.IsActive
	if !visible {
		if listing.UserID != usercontext.GetUserID(c) {
			return engineError(c, lifecycle.ErrListingNotFound)
		}
		return c.JSON(listing)
	}

	if err := counter.AddListingView(listing.ID); err != nil {
		log.Errorf("[API] view counter failed for listing %d: %v", listing.ID, err)
	}
	return c.JSON(listing)
}

// PostContact registers a contact request for a visible listing and tells
// the owner about it.
func (s *APIServer) PostContact(c *fiber.Ctx, uuid string) error {
	listing, err := s.repos.Listing.GetByUUID(uuid)
	if err != nil {
		return engineError(c, translateStoreError(err))
	}
	if !listing.IsPublished() || !listing.IsActive {
		return engineError(c, lifecycle.ErrListingNotFound)
	}

	if err := counter.AddListingContact(listing.ID); err != nil {
		log.Errorf("[API] contact counter failed for listing %d: %v", listing.ID, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// PostFavorite marks a listing as favorite for the logged-in user.
func (s *APIServer) PostFavorite(c *fiber.Ctx, uuid string) error {
	listing, err := s.repos.Listing.GetByUUID(uuid)
	if err != nil {
		return engineError(c, translateStoreError(err))
	}
	if err := s.repos.Listing.AddFavorite(usercontext.GetUserID(c), listing.ID); err != nil {
		return serverError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteFavorite removes a favorite mark.
func (s *APIServer) DeleteFavorite(c *fiber.Ctx, uuid string) error {
	listing, err := s.repos.Listing.GetByUUID(uuid)
	if err != nil {
		return engineError(c, translateStoreError(err))
	}
	if err := s.repos.Listing.RemoveFavorite(usercontext.GetUserID(c), listing.ID); err != nil {
		return serverError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetAnalytics is the plan-gated analytics surface: per-listing view and
// contact counts plus the active total.
func (s *APIServer) GetAnalytics(c *fiber.Ctx) error {
	ownerID := usercontext.GetUserID(c)
	decision, err := s.guard.Check(c.UserContext(), ownerID, guard.ActionViewAnalytics)
	if err != nil {
		return engineError(c, err)
	}
	if !decision.Allowed {
		return engineError(c, &lifecycle.LimitError{Action: guard.ActionViewAnalytics, Decision: decision})
	}

	active, err := s.repos.Listing.CountActive(ownerID)
	if err != nil {
		return serverError(c, err)
	}
	listings, err := s.repos.Listing.GetByUserID(ownerID, 0, 100)
	if err != nil {
		return serverError(c, err)
	}

	rows := make([]fiber.Map, 0, len(listings))
	for _, l := range listings {
		rows = append(rows, fiber.Map{
			"uuid":          l.UUID,
			"title":         l.Title,
			"status":        l.Status,
			"is_active":     l.IsActive,
			"view_count":    l.ViewCount,
			"contact_count": l.ContactCount,
		})
	}
	return c.JSON(fiber.Map{"active_listings": active, "listings": rows})
}

// GetEntitlements reports the caller's tier, limits and current usage.
func (s *APIServer) GetEntitlements(c *fiber.Ctx) error {
	ownerID := usercontext.GetUserID(c)
	plan, err := s.repos.Plan.GetByUser(ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			plan = &models.UserPlan{UserID: ownerID, PlanTier: string(entitlements.PlanFree)}
		} else {
			return serverError(c, err)
		}
	}

	tier := entitlements.NormalizePlan(plan.PlanTier)
	limits := entitlements.LimitsFor(tier)
	active, err := s.repos.Listing.CountActive(ownerID)
	if err != nil {
		return serverError(c, err)
	}

	return c.JSON(fiber.Map{
		"plan_tier":            string(tier),
		"plan_end_date":        plan.PlanEndDate,
		"max_active_listings":  limitJSON(limits.MaxActiveListings),
		"active_listings":      active,
		"allow_featured":       limits.AllowFeatured,
		"allow_attachments":    limits.AllowAttachments,
		"allow_analytics":      limits.AllowAnalytics,
		"max_featured_monthly": limitJSON(limits.MaxFeaturedPerMonth),
	})
}

func limitJSON(l entitlements.Limit) interface{} {
	if l.IsUnlimited() {
		return "unlimited"
	}
	return int64(l)
}

func translateStoreError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return lifecycle.ErrListingNotFound
	}
	return err
}
