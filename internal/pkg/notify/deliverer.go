package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/MarkusWeidner/ImmoFox/app/models"
	"github.com/MarkusWeidner/ImmoFox/app/repository"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/env"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/mail"
)

const deliveryBatchSize = 100

// Deliverer drains the notification outbox and sends each intent as a mail.
// Failed sends stay unsent and are retried on the next tick.
type Deliverer struct {
	store   repository.NotificationStore
	db      *gorm.DB
	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewDeliverer creates a deliverer over the notification store. The db handle
// is only used to resolve recipient addresses.
func NewDeliverer(store repository.NotificationStore, db *gorm.DB) *Deliverer {
	return &Deliverer{store: store, db: db}
}

// Start launches the periodic delivery loop.
func (d *Deliverer) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true
	d.stopCh = make(chan struct{})

	interval := time.Minute
	if v := env.GetEnv("NOTIFY_DELIVERY_INTERVAL_SECONDS", ""); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			interval = time.Duration(secs) * time.Second
		}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := d.DeliverBatch(context.Background()); err != nil {
					log.Errorf("[Notify] delivery batch failed: %v", err)
				}
			case <-d.stopCh:
				return
			}
		}
	}()
	log.Info("[Notify] deliverer started")
}

// Stop halts the delivery loop and waits for the running batch.
func (d *Deliverer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}
	close(d.stopCh)
	d.wg.Wait()
	d.running = false
	log.Info("[Notify] deliverer stopped")
}

// DeliverBatch sends one batch of unsent intents and returns how many went out.
func (d *Deliverer) DeliverBatch(ctx context.Context) (int, error) {
	_ = ctx
	pending, err := d.store.FindUnsent(deliveryBatchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range pending {
		n := &pending[i]
		user, err := models.FindUserByID(d.db, n.UserID)
		if err != nil {
			log.Errorf("[Notify] no recipient for notification %d (user %d): %v", n.ID, n.UserID, err)
			continue
		}

		subject, body := renderMail(n)
		if err := mail.SendMail(user.Email, subject, body); err != nil {
			// stays unsent, retried next tick
			continue
		}
		if err := d.store.MarkSent(n.ID, time.Now()); err != nil {
			log.Errorf("[Notify] mark sent failed for notification %d: %v", n.ID, err)
			continue
		}
		sent++
	}
	return sent, nil
}

func renderMail(n *models.Notification) (string, string) {
	var payload map[string]interface{}
	if len(n.Payload) > 0 {
		_ = json.Unmarshal([]byte(n.Payload), &payload)
	}
	title, _ := payload["listing_title"].(string)

	switch n.Kind {
	case models.NotificationKindPlanExpiring:
		days := "soon"
		if d, ok := payload["days_left"].(float64); ok {
			days = fmt.Sprintf("in %d days", int(d))
		}
		return "Your plan is about to expire",
			fmt.Sprintf("<p>Your plan expires %s. Renew it to keep all your listings online.</p>", days)
	case models.NotificationKindPlanExpired:
		return "Your plan has expired",
			"<p>Your plan has ended and your account is back on the free tier. Listings beyond the free limit were hidden, not deleted.</p>"
	case models.NotificationKindListingExpiring:
		return "Your listing is about to expire",
			fmt.Sprintf("<p>Your listing &quot;%s&quot; reaches the end of its publication window soon.</p>", title)
	case models.NotificationKindListingDeactivated:
		return "A listing was hidden",
			fmt.Sprintf("<p>Your listing &quot;%s&quot; is no longer publicly visible because of your current plan limits. Upgrade to restore it.</p>", title)
	case models.NotificationKindListingReactivated:
		return "A listing is back online",
			fmt.Sprintf("<p>Your listing &quot;%s&quot; is publicly visible again.</p>", title)
	case models.NotificationKindFavoritePublished:
		return "A listing you follow was published",
			fmt.Sprintf("<p>The listing &quot;%s&quot; you marked as favorite is now online.</p>", title)
	default:
		return "Notification", "<p>There is news on your account.</p>"
	}
}
