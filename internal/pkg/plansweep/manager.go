package plansweep

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/MarkusWeidner/ImmoFox/app/repository"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/clock"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/env"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/lifecycle"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/media"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/notify"
)

// Manager runs the periodic sweeps in the background. Both tickers default to
// daily; the interval is env-configurable for staging environments that want
// faster cycles.
type Manager struct {
	sweeper     *Sweeper
	jobs        *Jobs
	sweepTicker *time.Ticker
	warnTicker  *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global sweep manager (singleton), wired from the
// global repository factory.
func GetManager() *Manager {
	managerOnce.Do(func() {
		repos := repository.GetGlobalRepositories()
		clk := clock.System()
		emitter := notify.NewOutboxEmitter(repos.Notification)
		engine := lifecycle.NewEngine(repos.Locker, media.NewChecker(repos.Listing), emitter, clk)
		jobs := NewJobs(repos.Locker, repos.Plan, engine, emitter, clk)

		globalManager = &Manager{
			jobs:    jobs,
			sweeper: NewSweeper(jobs, repos.Plan, repos.Listing, NewRedisMarker(), emitter),
			stopCh:  make(chan struct{}),
		}
	})
	return globalManager
}

// GetJobs exposes the batch jobs for inline plan-change handling.
func (m *Manager) GetJobs() *Jobs {
	return m.jobs
}

// GetSweeper exposes the sweeper for manual admin triggers.
func (m *Manager) GetSweeper() *Sweeper {
	return m.sweeper
}

// Start starts the background sweep workers.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[PlanSweep Manager] Starting background sweeps")

	interval := sweepInterval()
	m.sweepTicker = time.NewTicker(interval)
	m.wg.Add(1)
	go m.expirationWorker()

	m.warnTicker = time.NewTicker(interval)
	m.wg.Add(1)
	go m.warningWorker()

	log.Infof("[PlanSweep Manager] Started (interval: %s)", interval)
}

// Stop stops the background sweep workers.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[PlanSweep Manager] Stopping background sweeps...")

	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}
	if m.warnTicker != nil {
		m.warnTicker.Stop()
	}

	close(m.stopCh)
	m.running = false

	m.wg.Wait()
	log.Info("[PlanSweep Manager] Stopped")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) expirationWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[PlanSweep Manager] Expiration worker stopping")
			return
		case <-m.sweepTicker.C:
			if _, err := m.sweeper.RunExpirationSweep(context.Background()); err != nil {
				log.Errorf("[PlanSweep Manager] Expiration sweep error: %v", err)
			}
		}
	}
}

func (m *Manager) warningWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[PlanSweep Manager] Warning worker stopping")
			return
		case <-m.warnTicker.C:
			if _, err := m.sweeper.RunExpiringWarningSweep(context.Background()); err != nil {
				log.Errorf("[PlanSweep Manager] Warning sweep error: %v", err)
			}
		}
	}
}

func sweepInterval() time.Duration {
	hours := 24
	if v, err := strconv.Atoi(env.GetEnv("PLAN_SWEEP_INTERVAL_HOURS", "24")); err == nil && v > 0 {
		hours = v
	}
	return time.Duration(hours) * time.Hour
}
