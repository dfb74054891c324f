package lifecycle

import (
	"errors"
	"fmt"

	"github.com/MarkusWeidner/ImmoFox/internal/pkg/guard"
)

// Expected failures are values the caller can switch on; only store I/O
// problems bubble up as plain wrapped errors.
var (
	// ErrListingNotFound means the listing does not exist.
	ErrListingNotFound = errors.New("listing not found")
	// ErrNotOwner means the caller does not own the listing.
	ErrNotOwner = errors.New("listing belongs to another user")
	// ErrNoMedia means the publish precondition of at least one image failed.
	ErrNoMedia = errors.New("listing has no images")
	// ErrNotActive means the operation needs a published, visible listing.
	ErrNotActive = errors.New("listing is not published and visible")
)

// LimitError is an entitlement denial. It carries the guard decision so the
// caller can explain which limit bit and where the owner stands.
type LimitError struct {
	Action   guard.Action
	Decision guard.Decision
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("plan %s denies %s (%s, limit %d, current %d)",
		e.Decision.Tier, e.Action, e.Decision.Reason, e.Decision.Limit, e.Decision.Count)
}

// InvalidTransitionError reports a status change the state machine forbids.
type InvalidTransitionError struct {
	From    string
	Trigger string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a %s listing", e.Trigger, e.From)
}
