package repository

import (
	"context"
	"errors"

	"github.com/MarkusWeidner/ImmoFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ownerLocker serializes per-owner mutations through the database. All
// guard-then-act paths for one owner funnel through the row lock on that
// owner's plan row, so a concurrent publish and an expiration sweep cannot
// both read a stale active count.
type ownerLocker struct {
	db *gorm.DB
}

// NewOwnerLocker creates an OwnerLocker backed by a GORM transaction with
// SELECT ... FOR UPDATE semantics.
func NewOwnerLocker(db *gorm.DB) OwnerLocker {
	return &ownerLocker{db: db}
}

// WithOwnerLock runs fn inside a transaction holding an exclusive lock on the
// owner's plan row. The stores passed to fn are bound to the transaction.
func (l *ownerLocker) WithOwnerLock(ctx context.Context, userID uint, fn func(s Stores) error) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var plan models.UserPlan
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).First(&plan).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Create the free default row first so there is something to
				// lock; the insert itself serializes racing creators via the
				// unique index on user_id.
				if _, cerr := models.GetOrCreateUserPlan(tx, userID); cerr != nil {
					return cerr
				}
				err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
					Where("user_id = ?", userID).First(&plan).Error
			}
			if err != nil {
				return translateNotFound(err)
			}
		}

		return fn(Stores{
			Listings: NewListingRepository(tx),
			Plans:    NewPlanRepository(tx),
		})
	})
}
