package counter

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

var (
	flusherMu   sync.Mutex
	flusherStop chan struct{}
	flusherWG   sync.WaitGroup
)

// StartFlusher drains the Redis counters into the database on an interval.
func StartFlusher(interval time.Duration) {
	flusherMu.Lock()
	defer flusherMu.Unlock()
	if flusherStop != nil {
		return
	}
	flusherStop = make(chan struct{})
	flusherWG.Add(1)

	go func() {
		defer flusherWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := FlushAll(); err != nil {
					log.Errorf("[Counter] flush failed: %v", err)
				}
			case <-flusherStop:
				// final drain so counts survive a restart
				if err := FlushAll(); err != nil {
					log.Errorf("[Counter] final flush failed: %v", err)
				}
				return
			}
		}
	}()
	log.Info("[Counter] flusher started")
}

// StopFlusher stops the flush loop after one final drain.
func StopFlusher() {
	flusherMu.Lock()
	defer flusherMu.Unlock()
	if flusherStop == nil {
		return
	}
	close(flusherStop)
	flusherWG.Wait()
	flusherStop = nil
	log.Info("[Counter] flusher stopped")
}
