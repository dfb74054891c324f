package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MarkusWeidner/ImmoFox/app/models"
)

// memoryData is the shared backing state of the in-memory stores. Tests and
// local tooling use it instead of MySQL; the semantics mirror the GORM
// implementations, including finder ordering.
type memoryData struct {
	mu            sync.Mutex
	listings      map[uint]*models.Listing
	images        map[uint][]models.ListingImage
	favorites     map[uint]map[uint]bool // listingID -> userID set
	plans         map[uint]*models.UserPlan
	notifications []*models.Notification
	nextListingID uint
	nextImageID   uint
	nextPlanID    uint
	nextNotifID   uint
	ownerLocks    map[uint]*sync.Mutex
	ownerLockMu   sync.Mutex
}

func newMemoryData() *memoryData {
	return &memoryData{
		listings:   make(map[uint]*models.Listing),
		images:     make(map[uint][]models.ListingImage),
		favorites:  make(map[uint]map[uint]bool),
		plans:      make(map[uint]*models.UserPlan),
		ownerLocks: make(map[uint]*sync.Mutex),
	}
}

// NewMemoryRepositories builds a Repositories bundle backed entirely by
// process memory, with a per-owner mutex standing in for the row lock.
func NewMemoryRepositories() *Repositories {
	data := newMemoryData()
	return &Repositories{
		Listing:      &memoryListingStore{data: data},
		Plan:         &memoryPlanStore{data: data},
		Notification: &memoryNotificationStore{data: data},
		Locker:       &memoryOwnerLocker{data: data},
	}
}

type memoryListingStore struct {
	data *memoryData
}

func (s *memoryListingStore) Create(listing *models.Listing) error {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	s.data.nextListingID++
	listing.ID = s.data.nextListingID
	if listing.UUID == "" {
		listing.UUID = uuid.New().String()
	}
	if listing.Status == "" {
		listing.Status = models.ListingStatusDraft
	}
	listing.CreatedAt = time.Now()
	cp := *listing
	s.data.listings[listing.ID] = &cp
	return nil
}

func (s *memoryListingStore) GetByID(id uint) (*models.Listing, error) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	l, ok := s.data.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *memoryListingStore) GetByUUID(uuid string) (*models.Listing, error) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	for _, l := range s.data.listings {
		if l.UUID == uuid {
			cp := *l
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryListingStore) GetByUserID(userID uint, offset, limit int) ([]models.Listing, error) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	var out []models.Listing
	for _, l := range s.data.listings {
		if l.UserID == userID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryListingStore) CountActive(userID uint) (int64, error) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	var count int64
	for _, l := range s.data.listings {
		if l.UserID == userID && l.IsActive {
			count++
		}
	}
	return count, nil
}

func (s *memoryListingStore) CountFeaturedSince(userID uint, since time.Time) (int64, error) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	var count int64
	for _, l := range s.data.listings {
		if l.UserID != userID || l.FeaturedAt == nil {
			continue
		}
		if !l.FeaturedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *memoryListingStore) CountImages(listingID uint) (int64, error) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	return int64(len(s.data.images[listingID])), nil
}

func (s *memoryListingStore) CreateImage(image *models.ListingImage) error {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	s.data.nextImageID++
	image.ID = s.data.nextImageID
	s.data.images[image.ListingID] = append(s.data.images[image.ListingID], *image)
	return nil
}

func (s *memoryListingStore) FindActiveOldestFirst(userID uint) ([]models.Listing, error) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	var out []models.Listing
	for _, l := range s.data.listings {
		if l.UserID == userID && l.IsActive {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := timeOrZero(out[i].PublishedAt), timeOrZero(out[j].PublishedAt)
		if !a.Equal(b) {
			return a.Before(b)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memoryListingStore) FindDowngradeDeactivated(userID uint) ([]models.Listing, error) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	var out []models.Listing
	for _, l := range s.data.listings {
		if l.UserID == userID && !l.IsActive &&
			l.Status == models.ListingStatusPublished &&
			l.DeactivatedReason == models.DeactivatedReasonPlanDowngrade {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := timeOrZero(out[i].DeactivatedAt), timeOrZero(out[j].DeactivatedAt)
		if !a.Equal(b) {
			return a.After(b)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *memoryListingStore) FindPublishedExpiredBefore(cutoff time.Time, limit int) ([]models.Listing, error) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	var out []models.Listing
	for _, l := range s.data.listings {
		if l.Status == models.ListingStatusPublished && l.ExpiresAt != nil && l.ExpiresAt.Before(cutoff) {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := timeOrZero(out[i].ExpiresAt), timeOrZero(out[j].ExpiresAt)
		if !a.Equal(b) {
			return a.Before(b)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryListingStore) FindPublishedExpiringBetween(from, to time.Time) ([]models.Listing, error) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	var out []models.Listing
	for _, l := range s.data.listings {
		if l.Status == models.ListingStatusPublished && l.IsActive && l.ExpiresAt != nil &&
			!l.ExpiresAt.Before(from) && l.ExpiresAt.Before(to) {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryListingStore) FindFavoriteUserIDs(listingID uint) ([]uint, error) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	var out []uint
	for userID := range s.data.favorites[listingID] {
		out = append(out, userID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *memoryListingStore) AddFavorite(userID, listingID uint) error {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	if s.data.favorites[listingID] == nil {
		s.data.favorites[listingID] = make(map[uint]bool)
	}
	s.data.favorites[listingID][userID] = true
	return nil
}

func (s *memoryListingStore) RemoveFavorite(userID, listingID uint) error {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	delete(s.data.favorites[listingID], userID)
	return nil
}

func (s *memoryListingStore) SetPublished(id uint, publishedAt, expiresAt time.Time) error {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	l, ok := s.data.listings[id]
	if !ok {
		return ErrNotFound
	}
	l.Status = models.ListingStatusPublished
	l.IsActive = true
	pa, ea := publishedAt, expiresAt
	l.PublishedAt = &pa
	l.ExpiresAt = &ea
	l.DeactivatedReason = ""
	l.DeactivatedAt = nil
	return nil
}

func (s *memoryListingStore) SetStatus(id uint, status string) error {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	l, ok := s.data.listings[id]
	if !ok {
		return ErrNotFound
	}
	l.Status = status
	return nil
}

func (s *memoryListingStore) SetActive(id uint, active bool, reason string, at *time.Time) error {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	l, ok := s.data.listings[id]
	if !ok {
		return ErrNotFound
	}
	l.IsActive = active
	if active {
		l.DeactivatedReason = ""
		l.DeactivatedAt = nil
	} else {
		l.DeactivatedReason = reason
		l.DeactivatedAt = at
		l.Featured = false
	}
	return nil
}

func (s *memoryListingStore) SetFeatured(id uint, featured bool, featuredAt, expiresAt *time.Time) error {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	l, ok := s.data.listings[id]
	if !ok {
		return ErrNotFound
	}
	l.Featured = featured
	if featuredAt != nil {
		l.FeaturedAt = featuredAt
	}
	l.FeaturedExpires = expiresAt
	return nil
}

type memoryPlanStore struct {
	data *memoryData
}

func (s *memoryPlanStore) GetByUser(userID uint) (*models.UserPlan, error) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	p, ok := s.data.plans[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memoryPlanStore) SetTier(userID uint, tier string, endDate *time.Time, nonExpiring bool) error {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	s.setTierLocked(userID, tier, endDate, nonExpiring)
	return nil
}

func (s *memoryPlanStore) setTierLocked(userID uint, tier string, endDate *time.Time, nonExpiring bool) {
	p, ok := s.data.plans[userID]
	if !ok {
		s.data.nextPlanID++
		p = &models.UserPlan{ID: s.data.nextPlanID, UserID: userID}
		s.data.plans[userID] = p
	}
	p.PlanTier = tier
	p.PlanEndDate = endDate
	p.NonExpiring = nonExpiring
}

func (s *memoryPlanStore) FindExpired(asOf time.Time) ([]models.UserPlan, error) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	var out []models.UserPlan
	for _, p := range s.data.plans {
		if p.PlanTier != "free" && !p.NonExpiring && p.PlanEndDate != nil && p.PlanEndDate.Before(asOf) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := timeOrZero(out[i].PlanEndDate), timeOrZero(out[j].PlanEndDate)
		if !a.Equal(b) {
			return a.Before(b)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memoryPlanStore) FindExpiringBetween(from, to time.Time) ([]models.UserPlan, error) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	var out []models.UserPlan
	for _, p := range s.data.plans {
		if p.PlanTier != "free" && !p.NonExpiring && p.PlanEndDate != nil &&
			!p.PlanEndDate.Before(from) && p.PlanEndDate.Before(to) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memoryNotificationStore struct {
	data *memoryData
}

func (s *memoryNotificationStore) Create(notification *models.Notification) error {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	s.data.nextNotifID++
	notification.ID = s.data.nextNotifID
	notification.CreatedAt = time.Now()
	cp := *notification
	s.data.notifications = append(s.data.notifications, &cp)
	return nil
}

func (s *memoryNotificationStore) FindUnsent(limit int) ([]models.Notification, error) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	var out []models.Notification
	for _, n := range s.data.notifications {
		if n.SentAt == nil {
			out = append(out, *n)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memoryNotificationStore) MarkSent(id uint, at time.Time) error {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	for _, n := range s.data.notifications {
		if n.ID == id {
			sent := at
			n.SentAt = &sent
			return nil
		}
	}
	return ErrNotFound
}

// memoryOwnerLocker serializes per-owner sections with a mutex per owner,
// standing in for the plan-row lock.
type memoryOwnerLocker struct {
	data *memoryData
}

func (l *memoryOwnerLocker) WithOwnerLock(ctx context.Context, userID uint, fn func(s Stores) error) error {
	_ = ctx
	l.data.ownerLockMu.Lock()
	mu, ok := l.data.ownerLocks[userID]
	if !ok {
		mu = &sync.Mutex{}
		l.data.ownerLocks[userID] = mu
	}
	l.data.ownerLockMu.Unlock()

	mu.Lock()
	defer mu.Unlock()

	// mirror the SQL locker: the plan row exists once a lock was taken
	l.data.mu.Lock()
	if _, ok := l.data.plans[userID]; !ok {
		(&memoryPlanStore{data: l.data}).setTierLocked(userID, "free", nil, false)
	}
	l.data.mu.Unlock()

	return fn(Stores{
		Listings: &memoryListingStore{data: l.data},
		Plans:    &memoryPlanStore{data: l.data},
	})
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
